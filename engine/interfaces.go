package engine

import (
	"context"

	"skillup/core"
)

// LedgerStore persists learner point balances.
type LedgerStore interface {
	AddPoints(ctx context.Context, learner core.LearnerID, delta int64) (newTotal int64, err error)
	GetPoints(ctx context.Context, learner core.LearnerID) (int64, error)
}

// CompletionStore persists completion facts. InsertCompletion must be an atomic
// insert-or-ignore keyed on (learner, lesson); when the record is inserted the
// points delta is applied in the same atomic step and the new total returned.
type CompletionStore interface {
	InsertCompletion(ctx context.Context, rec core.CompletionRecord, points int64) (inserted bool, total int64, err error)
	HasCompletion(ctx context.Context, learner core.LearnerID, lesson core.LessonID) (bool, error)
	ListCompletions(ctx context.Context, learner core.LearnerID) ([]core.CompletionRecord, error)
}

// AwardStore persists badge awards with insert-or-ignore semantics on (learner, badge).
type AwardStore interface {
	InsertAward(ctx context.Context, award core.BadgeAward) (inserted bool, err error)
	ListAwards(ctx context.Context, learner core.LearnerID) ([]core.BadgeAward, error)
	CountAwards(ctx context.Context, badge core.BadgeID) (int64, error)
}

// EnrollmentStore persists enrollments with insert-or-ignore semantics on
// (learner, course), applying the points delta only on insert.
type EnrollmentStore interface {
	InsertEnrollment(ctx context.Context, e core.Enrollment, points int64) (inserted bool, total int64, err error)
	ListEnrollments(ctx context.Context, learner core.LearnerID) ([]core.Enrollment, error)
}

// SubmissionStore persists test submissions; the score accrues to the
// learner's balance in the same atomic step.
type SubmissionStore interface {
	InsertSubmission(ctx context.Context, sub core.TestSubmission) (total int64, err error)
	CountDistinctTests(ctx context.Context, learner core.LearnerID) (int64, error)
	ListSubmissions(ctx context.Context, learner core.LearnerID) ([]core.TestSubmission, error)
}

// ActivityStore lists learners with any recorded activity.
type ActivityStore interface {
	ListActiveLearners(ctx context.Context) ([]core.LearnerID, error)
}

// Storage is implemented by every persistence adapter.
type Storage interface {
	LedgerStore
	CompletionStore
	AwardStore
	EnrollmentStore
	SubmissionStore
	ActivityStore
}

// CourseReader is the read model of courses and lessons owned by the catalog
// collaborator. Missing entities are reported with core.ErrNotFound, except by
// GetLessons which silently skips unknown ids. GetCourseLessonIDs returns ids
// ordered by lesson order index.
type CourseReader interface {
	GetCourse(ctx context.Context, id core.CourseID) (core.Course, error)
	GetLesson(ctx context.Context, id core.LessonID) (core.Lesson, error)
	GetLessons(ctx context.Context, ids []core.LessonID) ([]core.Lesson, error)
	GetCourseLessonIDs(ctx context.Context, course core.CourseID) ([]core.LessonID, error)
	NextLesson(ctx context.Context, after core.Lesson) (core.Lesson, bool, error)
}

// BadgeCatalog lists the administrator-managed badge definitions.
type BadgeCatalog interface {
	ListBadgeDefinitions(ctx context.Context) ([]core.BadgeDefinition, error)
}

// SubmissionLister is implemented by test collaborators that can report a
// learner's submission history.
type SubmissionLister interface {
	ListSubmissions(ctx context.Context, learner core.LearnerID) ([]core.TestSubmission, error)
}

// TestCollaborator owns test submissions and their point accrual.
type TestCollaborator interface {
	RecordSubmission(ctx context.Context, learner core.LearnerID, test core.TestID, score int64) error
	CountDistinctTestsCompleted(ctx context.Context, learner core.LearnerID) (int64, error)
}
