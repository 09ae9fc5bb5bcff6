package courses

import (
	"time"

	"skillup/core"
)

// CourseModel is the gorm row for a course.
type CourseModel struct {
	ID          int64  `gorm:"primaryKey"`
	Title       string `gorm:"size:200;not null"`
	Description string
	TeacherID   int64 `gorm:"index"`
	CreatedAt   time.Time
	Lessons     []LessonModel `gorm:"foreignKey:CourseID;constraint:OnDelete:CASCADE"`
}

func (CourseModel) TableName() string { return "courses" }

// LessonModel is the gorm row for a lesson.
type LessonModel struct {
	ID         int64  `gorm:"primaryKey"`
	CourseID   int64  `gorm:"not null;index:idx_lessons_course_order,priority:1"`
	OrderIndex int    `gorm:"not null;index:idx_lessons_course_order,priority:2"`
	Title      string `gorm:"size:200;not null"`
	Content    string
	CreatedAt  time.Time
}

func (LessonModel) TableName() string { return "lessons" }

func (m CourseModel) toCore() core.Course {
	return core.Course{ID: core.CourseID(m.ID), Title: m.Title, TeacherID: core.LearnerID(m.TeacherID)}
}

func (m LessonModel) toCore() core.Lesson {
	return core.Lesson{ID: core.LessonID(m.ID), CourseID: core.CourseID(m.CourseID), OrderIndex: m.OrderIndex, Title: m.Title}
}
