package core

import (
	"time"

	"github.com/google/uuid"
)

// EventType enumerates domain events.
type EventType string

const (
	EventLessonCompleted EventType = "lesson_completed"
	EventPointsAdded     EventType = "points_added"
	EventBadgeAwarded    EventType = "badge_awarded"
	EventEnrolled        EventType = "enrolled"
	EventTestSubmitted   EventType = "test_submitted"
)

// EventTypes lists every event the engine publishes.
var EventTypes = []EventType{EventLessonCompleted, EventPointsAdded, EventBadgeAwarded, EventEnrolled, EventTestSubmitted}

// Event represents an immutable domain event.
type Event struct {
	ID        string         `json:"id"`
	Type      EventType      `json:"type"`
	Time      time.Time      `json:"time"`
	LearnerID LearnerID      `json:"learner_id"`
	LessonID  LessonID       `json:"lesson_id,omitempty"`
	CourseID  CourseID       `json:"course_id,omitempty"`
	TestID    TestID         `json:"test_id,omitempty"`
	BadgeID   BadgeID        `json:"badge_id,omitempty"`
	Delta     int64          `json:"delta,omitempty"`
	Total     int64          `json:"total,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

func newEvent(typ EventType, learner LearnerID) Event {
	return Event{ID: uuid.NewString(), Type: typ, Time: time.Now().UTC(), LearnerID: learner}
}

func NewPointsAdded(learner LearnerID, delta int64, total int64) Event {
	ev := newEvent(EventPointsAdded, learner)
	ev.Delta, ev.Total = delta, total
	return ev
}

func NewLessonCompleted(learner LearnerID, lesson Lesson) Event {
	ev := newEvent(EventLessonCompleted, learner)
	ev.LessonID, ev.CourseID = lesson.ID, lesson.CourseID
	return ev
}

func NewBadgeAwarded(award BadgeAward, def BadgeDefinition) Event {
	ev := newEvent(EventBadgeAwarded, award.LearnerID)
	ev.BadgeID = award.BadgeID
	ev.Time = award.AwardedAt
	ev.Metadata = map[string]any{"name": def.Name}
	return ev
}

func NewEnrolled(learner LearnerID, course CourseID) Event {
	ev := newEvent(EventEnrolled, learner)
	ev.CourseID = course
	return ev
}

func NewTestSubmitted(learner LearnerID, test TestID, score int64) Event {
	ev := newEvent(EventTestSubmitted, learner)
	ev.TestID, ev.Delta = test, score
	return ev
}
