package core

import (
	"errors"
	"math"
	"time"
)

// LearnerID identifies a learner. Identity itself is issued upstream; the engine
// only owns the learner's point balance.
type LearnerID int64

// LessonID identifies a lesson.
type LessonID int64

// CourseID identifies a course.
type CourseID int64

// BadgeID identifies a badge definition.
type BadgeID int64

// TestID identifies a test.
type TestID int64

// Default point policy.
const (
	LessonCompletionPoints int64 = 5
	EnrollmentPoints       int64 = 10
)

// Lesson is the engine's read-only view of a lesson.
type Lesson struct {
	ID         LessonID `json:"id"`
	CourseID   CourseID `json:"course_id"`
	OrderIndex int      `json:"order_index"`
	Title      string   `json:"title,omitempty"`
}

// Course is the engine's read-only view of a course.
type Course struct {
	ID        CourseID  `json:"id"`
	Title     string    `json:"title"`
	TeacherID LearnerID `json:"teacher_id,omitempty"`
}

// CompletionRecord is the immutable fact that a learner finished a lesson.
// At most one exists per (LearnerID, LessonID).
type CompletionRecord struct {
	LearnerID   LearnerID `json:"learner_id"`
	LessonID    LessonID  `json:"lesson_id"`
	CompletedAt time.Time `json:"completed_at"`
}

// Enrollment records that a learner joined a course. Unique per (LearnerID, CourseID).
type Enrollment struct {
	LearnerID  LearnerID `json:"learner_id"`
	CourseID   CourseID  `json:"course_id"`
	EnrolledAt time.Time `json:"enrolled_at"`
}

// TestSubmission is a scored test attempt. A learner may submit a test many
// times; badge conditions count distinct tests.
type TestSubmission struct {
	LearnerID   LearnerID `json:"learner_id"`
	TestID      TestID    `json:"test_id"`
	Score       int64     `json:"score"`
	SubmittedAt time.Time `json:"submitted_at"`
}

// BadgeAward is the immutable fact that a learner owns a badge.
// At most one exists per (LearnerID, BadgeID).
type BadgeAward struct {
	LearnerID LearnerID `json:"learner_id"`
	BadgeID   BadgeID   `json:"badge_id"`
	AwardedAt time.Time `json:"awarded_at"`
}

// CourseProgress summarizes a learner's completion state in one course.
type CourseProgress struct {
	CourseID  CourseID `json:"course_id"`
	Title     string   `json:"title,omitempty"`
	Completed int      `json:"completed_lessons"`
	Total     int      `json:"total_lessons"`
	Percent   float64  `json:"percent_completed"`
}

// NewCourseProgress derives the percentage from the counts. Percent is rounded
// to one decimal, is 0 for a course without lessons and never exceeds 100.
func NewCourseProgress(course CourseID, completed, total int) CourseProgress {
	p := CourseProgress{CourseID: course, Completed: completed, Total: total}
	if total <= 0 {
		return p
	}
	if completed > total {
		completed = total
	}
	p.Percent = math.Round(float64(completed)/float64(total)*1000) / 10
	return p
}

// FullyCompleted reports whether every lesson of a non-empty course is done.
func (p CourseProgress) FullyCompleted() bool {
	return p.Total > 0 && p.Completed >= p.Total
}

// AddSafe adds delta to base ensuring no signed overflow occurs.
func AddSafe(base int64, delta int64) (int64, error) {
	if (delta > 0 && base > math.MaxInt64-delta) || (delta < 0 && base < math.MinInt64-delta) {
		return 0, errors.New("integer overflow in AddSafe")
	}
	return base + delta, nil
}

// ValidateLearnerID rejects non-positive identifiers.
func ValidateLearnerID(id LearnerID) error {
	if id <= 0 {
		return errors.New("learner id must be positive")
	}
	return nil
}
