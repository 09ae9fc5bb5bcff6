package courses

import (
	"context"
	"fmt"
)

// DemoCourses is a small catalog for local runs and the demo server.
func DemoCourses() []CourseModel {
	return []CourseModel{
		{
			ID: 1, Title: "Go Fundamentals", TeacherID: 100,
			Lessons: []LessonModel{
				{ID: 101, OrderIndex: 1, Title: "Packages and modules"},
				{ID: 102, OrderIndex: 2, Title: "Types and interfaces"},
				{ID: 103, OrderIndex: 3, Title: "Errors"},
			},
		},
		{
			ID: 2, Title: "Concurrency in Practice", TeacherID: 100,
			Lessons: []LessonModel{
				{ID: 201, OrderIndex: 1, Title: "Goroutines"},
				{ID: 202, OrderIndex: 2, Title: "Channels"},
			},
		},
		{ID: 3, Title: "Coming Soon", TeacherID: 101},
	}
}

// Seed inserts the given courses when the course table is empty.
func (r *Repository) Seed(ctx context.Context, courses []CourseModel) (int, error) {
	var n int64
	if err := r.db.WithContext(ctx).Model(&CourseModel{}).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("count courses: %w", err)
	}
	if n > 0 {
		return 0, nil
	}
	for _, c := range courses {
		if _, err := r.CreateCourse(ctx, c); err != nil {
			return 0, err
		}
	}
	return len(courses), nil
}
