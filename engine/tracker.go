package engine

import (
	"context"
	"log/slog"
	"time"

	"skillup/core"
)

// CompletionTracker records lesson-completion facts with at-most-once semantics.
type CompletionTracker struct {
	store   CompletionStore
	courses CourseReader
	ledger  *Ledger
	bus     *EventBus
	points  int64
	log     *slog.Logger
	now     func() time.Time
}

func NewCompletionTracker(store CompletionStore, courses CourseReader, ledger *Ledger, bus *EventBus, points int64) *CompletionTracker {
	if store == nil || courses == nil || ledger == nil {
		panic("NewCompletionTracker requires non-nil store, courses, and ledger")
	}
	return &CompletionTracker{
		store:   store,
		courses: courses,
		ledger:  ledger,
		bus:     bus,
		points:  points,
		log:     slog.Default().With("component", "completion_tracker"),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// MarkCompleted inserts the completion record if absent and accrues the
// per-lesson points with it. A repeated or racing call for the same pair
// returns false without side effects.
func (t *CompletionTracker) MarkCompleted(ctx context.Context, learner core.LearnerID, lesson core.Lesson) (bool, error) {
	rec := core.CompletionRecord{LearnerID: learner, LessonID: lesson.ID, CompletedAt: t.now()}
	inserted, total, err := t.store.InsertCompletion(ctx, rec, t.points)
	if err != nil {
		return false, err
	}
	if !inserted {
		t.log.Debug("lesson already completed", "learner_id", learner, "lesson_id", lesson.ID)
		return false, nil
	}
	t.ledger.accrued(ctx, learner, t.points, total)
	t.bus.Publish(ctx, core.NewLessonCompleted(learner, lesson))
	return true, nil
}

// IsCompleted reports whether a completion record exists for the pair.
func (t *CompletionTracker) IsCompleted(ctx context.Context, learner core.LearnerID, lesson core.LessonID) (bool, error) {
	return t.store.HasCompletion(ctx, learner, lesson)
}

// ListCompleted returns the learner's completion records for lessons of the course.
func (t *CompletionTracker) ListCompleted(ctx context.Context, learner core.LearnerID, course core.CourseID) ([]core.CompletionRecord, error) {
	lessonIDs, err := t.courses.GetCourseLessonIDs(ctx, course)
	if err != nil {
		return nil, err
	}
	records, err := t.store.ListCompletions(ctx, learner)
	if err != nil {
		return nil, err
	}
	return filterByLessons(records, lessonIDs), nil
}

func filterByLessons(records []core.CompletionRecord, lessonIDs []core.LessonID) []core.CompletionRecord {
	members := make(map[core.LessonID]struct{}, len(lessonIDs))
	for _, id := range lessonIDs {
		members[id] = struct{}{}
	}
	out := make([]core.CompletionRecord, 0, len(records))
	for _, r := range records {
		if _, ok := members[r.LessonID]; ok {
			out = append(out, r)
		}
	}
	return out
}
