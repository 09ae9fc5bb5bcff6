package engine

import (
	"context"

	"skillup/core"
)

// Ledger holds and mutates a learner's cumulative point balance.
type Ledger struct {
	store LedgerStore
	bus   *EventBus
}

func NewLedger(store LedgerStore, bus *EventBus) *Ledger {
	if store == nil {
		panic("NewLedger requires a non-nil store")
	}
	return &Ledger{store: store, bus: bus}
}

// AddPoints increments the balance by delta and returns the new total. Callers
// are trusted to pass non-negative deltas for accrual events. A learner without
// a balance row starts from zero.
func (l *Ledger) AddPoints(ctx context.Context, learner core.LearnerID, delta int64) (int64, error) {
	if delta == 0 {
		return l.GetPoints(ctx, learner)
	}
	total, err := l.store.AddPoints(ctx, learner, delta)
	if err != nil {
		return 0, err
	}
	l.accrued(ctx, learner, delta, total)
	return total, nil
}

// GetPoints returns the balance, 0 when the learner has no record.
func (l *Ledger) GetPoints(ctx context.Context, learner core.LearnerID) (int64, error) {
	return l.store.GetPoints(ctx, learner)
}

// accrued publishes a balance change applied by a store as part of another
// atomic write (completion, enrollment or submission).
func (l *Ledger) accrued(ctx context.Context, learner core.LearnerID, delta, total int64) {
	if delta == 0 {
		return
	}
	l.bus.Publish(ctx, core.NewPointsAdded(learner, delta, total))
}
