package engine

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// Reconciler periodically re-runs badge evaluation for every active learner,
// granting badges whose trigger-time evaluation failed or that became
// reachable after a catalog change.
type Reconciler struct {
	activity  ActivityStore
	evaluator *BadgeEvaluator
	interval  time.Duration
	log       *slog.Logger
}

func NewReconciler(activity ActivityStore, evaluator *BadgeEvaluator, interval time.Duration) *Reconciler {
	if activity == nil || evaluator == nil {
		panic("NewReconciler requires non-nil activity store and evaluator")
	}
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &Reconciler{
		activity:  activity,
		evaluator: evaluator,
		interval:  interval,
		log:       slog.Default().With("component", "reconciler"),
	}
}

// Sweep evaluates every active learner once and returns the number of awards
// created. A failing learner does not stop the sweep.
func (r *Reconciler) Sweep(ctx context.Context) (int, error) {
	learners, err := r.activity.ListActiveLearners(ctx)
	if err != nil {
		return 0, err
	}
	var (
		created int
		errs    []error
	)
	for _, id := range learners {
		if ctx.Err() != nil {
			errs = append(errs, ctx.Err())
			break
		}
		awards, err := r.evaluator.EvaluateAndAward(ctx, id)
		created += len(awards)
		if err != nil {
			r.log.Warn("reconcile learner failed", "learner_id", id, "error", err)
			errs = append(errs, err)
		}
	}
	return created, errors.Join(errs...)
}

// Run sweeps on every tick until ctx is cancelled.
func (r *Reconciler) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	r.log.Info("reconciler started", "interval", r.interval)
	for {
		select {
		case <-ctx.Done():
			r.log.Info("reconciler stopped")
			return
		case <-ticker.C:
			start := time.Now()
			n, err := r.Sweep(ctx)
			if err != nil && !errors.Is(err, context.Canceled) {
				r.log.Error("reconcile sweep incomplete", "awards", n, "error", err)
				continue
			}
			r.log.Debug("reconcile sweep done", "awards", n, "duration", time.Since(start))
		}
	}
}

