package engine

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"skillup/core"
)

// BadgeEvaluator grants every newly qualifying badge exactly once.
type BadgeEvaluator struct {
	catalog  BadgeCatalog
	awards   AwardStore
	ledger   *Ledger
	tests    TestCollaborator
	progress *ProgressAggregator
	bus      *EventBus
	log      *slog.Logger
	now      func() time.Time
}

func NewBadgeEvaluator(catalog BadgeCatalog, awards AwardStore, ledger *Ledger, tests TestCollaborator, progress *ProgressAggregator, bus *EventBus) *BadgeEvaluator {
	if catalog == nil || awards == nil || ledger == nil || tests == nil || progress == nil {
		panic("NewBadgeEvaluator requires non-nil catalog, awards, ledger, tests, and progress")
	}
	return &BadgeEvaluator{
		catalog:  catalog,
		awards:   awards,
		ledger:   ledger,
		tests:    tests,
		progress: progress,
		bus:      bus,
		log:      slog.Default().With("component", "badge_evaluator"),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// EvaluateAndAward checks every catalog entry the learner does not own against
// freshly computed aggregates and returns the awards created by this call.
// Awards lost to a concurrent evaluation are skipped silently. On a store error
// the awards already created are returned together with the error.
func (e *BadgeEvaluator) EvaluateAndAward(ctx context.Context, learner core.LearnerID) ([]core.BadgeAward, error) {
	owned, err := e.awards.ListAwards(ctx, learner)
	if err != nil {
		return nil, err
	}
	defs, err := e.catalog.ListBadgeDefinitions(ctx)
	if err != nil {
		return nil, err
	}
	pending := pendingDefinitions(defs, owned)
	if len(pending) == 0 {
		return nil, nil
	}

	agg, err := e.aggregates(ctx, learner, pending)
	if err != nil {
		return nil, err
	}

	var created []core.BadgeAward
	for _, def := range pending {
		if !def.Condition.Met(agg) {
			continue
		}
		award := core.BadgeAward{LearnerID: learner, BadgeID: def.ID, AwardedAt: e.now()}
		inserted, err := e.awards.InsertAward(ctx, award)
		if err != nil {
			e.log.Error("award insert failed", "learner_id", learner, "badge_id", def.ID, "error", err)
			return created, err
		}
		if !inserted {
			e.log.Debug("badge already awarded", "learner_id", learner, "badge_id", def.ID)
			continue
		}
		e.log.Info("badge awarded", "learner_id", learner, "badge_id", def.ID, "badge", def.Name)
		created = append(created, award)
		e.bus.Publish(ctx, core.NewBadgeAwarded(award, def))
	}
	return created, nil
}

// Aggregates computes all learner aggregates.
func (e *BadgeEvaluator) Aggregates(ctx context.Context, learner core.LearnerID) (core.Aggregates, error) {
	return e.aggregates(ctx, learner, nil)
}

// aggregates computes only the figures the pending definitions need; a nil
// slice computes all of them.
func (e *BadgeEvaluator) aggregates(ctx context.Context, learner core.LearnerID, pending []core.BadgeDefinition) (core.Aggregates, error) {
	need := make(map[core.ConditionKind]bool, len(core.ConditionKinds))
	if pending == nil {
		for _, k := range core.ConditionKinds {
			need[k] = true
		}
	}
	for _, d := range pending {
		need[d.Condition.Kind] = true
	}

	var agg core.Aggregates
	var err error
	if need[core.PointsThreshold] {
		if agg.Points, err = e.ledger.GetPoints(ctx, learner); err != nil {
			return agg, err
		}
	}
	if need[core.TestsCompletedThreshold] {
		if agg.TestsCompleted, err = e.tests.CountDistinctTestsCompleted(ctx, learner); err != nil {
			return agg, err
		}
	}
	if need[core.CoursesCompletedThreshold] {
		if agg.CoursesCompleted, err = e.progress.CountFullyCompletedCourses(ctx, learner); err != nil {
			return agg, err
		}
	}
	return agg, nil
}

func pendingDefinitions(defs []core.BadgeDefinition, owned []core.BadgeAward) []core.BadgeDefinition {
	have := make(map[core.BadgeID]struct{}, len(owned))
	for _, a := range owned {
		have[a.BadgeID] = struct{}{}
	}
	out := make([]core.BadgeDefinition, 0, len(defs))
	for _, d := range defs {
		if _, ok := have[d.ID]; !ok {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
