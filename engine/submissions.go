package engine

import (
	"context"
	"time"

	"skillup/core"
)

// TestRecorder is the default TestCollaborator: it stores each scored
// submission and accrues the score to the learner's balance in one store write.
type TestRecorder struct {
	store  SubmissionStore
	ledger *Ledger
	bus    *EventBus
	now    func() time.Time
}

func NewTestRecorder(store SubmissionStore, ledger *Ledger, bus *EventBus) *TestRecorder {
	if store == nil || ledger == nil {
		panic("NewTestRecorder requires non-nil store and ledger")
	}
	return &TestRecorder{store: store, ledger: ledger, bus: bus, now: func() time.Time { return time.Now().UTC() }}
}

// RecordSubmission commits the submission and its point accrual.
func (r *TestRecorder) RecordSubmission(ctx context.Context, learner core.LearnerID, test core.TestID, score int64) error {
	sub := core.TestSubmission{LearnerID: learner, TestID: test, Score: score, SubmittedAt: r.now()}
	total, err := r.store.InsertSubmission(ctx, sub)
	if err != nil {
		return err
	}
	r.ledger.accrued(ctx, learner, score, total)
	r.bus.Publish(ctx, core.NewTestSubmitted(learner, test, score))
	return nil
}

// CountDistinctTestsCompleted counts the distinct tests the learner submitted.
func (r *TestRecorder) CountDistinctTestsCompleted(ctx context.Context, learner core.LearnerID) (int64, error) {
	return r.store.CountDistinctTests(ctx, learner)
}

// ListSubmissions returns the learner's submissions in arrival order.
func (r *TestRecorder) ListSubmissions(ctx context.Context, learner core.LearnerID) ([]core.TestSubmission, error) {
	return r.store.ListSubmissions(ctx, learner)
}
