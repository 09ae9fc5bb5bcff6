package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"skillup/core"
)

// Courses is an in-memory engine.CourseReader, used by tests and the demo server.
type Courses struct {
	mu      sync.RWMutex
	courses map[core.CourseID]core.Course
	lessons map[core.LessonID]core.Lesson
}

func NewCourses() *Courses {
	return &Courses{courses: map[core.CourseID]core.Course{}, lessons: map[core.LessonID]core.Lesson{}}
}

// PutCourse adds or replaces a course.
func (c *Courses) PutCourse(course core.Course) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.courses[course.ID] = course
}

// PutLesson adds or replaces a lesson.
func (c *Courses) PutLesson(lesson core.Lesson) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lessons[lesson.ID] = lesson
}

// RemoveLesson deletes a lesson; completion records for it are kept.
func (c *Courses) RemoveLesson(id core.LessonID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.lessons, id)
}

func (c *Courses) GetCourse(_ context.Context, id core.CourseID) (core.Course, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	course, ok := c.courses[id]
	if !ok {
		return core.Course{}, fmt.Errorf("course %d: %w", id, core.ErrNotFound)
	}
	return course, nil
}

func (c *Courses) GetLesson(_ context.Context, id core.LessonID) (core.Lesson, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	lesson, ok := c.lessons[id]
	if !ok {
		return core.Lesson{}, fmt.Errorf("lesson %d: %w", id, core.ErrNotFound)
	}
	return lesson, nil
}

func (c *Courses) GetLessons(_ context.Context, ids []core.LessonID) ([]core.Lesson, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]core.Lesson, 0, len(ids))
	for _, id := range ids {
		if l, ok := c.lessons[id]; ok {
			out = append(out, l)
		}
	}
	return out, nil
}

func (c *Courses) GetCourseLessonIDs(_ context.Context, course core.CourseID) ([]core.LessonID, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if _, ok := c.courses[course]; !ok {
		return nil, fmt.Errorf("course %d: %w", course, core.ErrNotFound)
	}
	lessons := c.courseLessons(course)
	out := make([]core.LessonID, len(lessons))
	for i, l := range lessons {
		out[i] = l.ID
	}
	return out, nil
}

func (c *Courses) NextLesson(_ context.Context, after core.Lesson) (core.Lesson, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, l := range c.courseLessons(after.CourseID) {
		if l.OrderIndex > after.OrderIndex {
			return l, true, nil
		}
	}
	return core.Lesson{}, false, nil
}

// courseLessons returns the course's lessons by order index; c.mu must be held.
func (c *Courses) courseLessons(course core.CourseID) []core.Lesson {
	var out []core.Lesson
	for _, l := range c.lessons {
		if l.CourseID == course {
			out = append(out, l)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].OrderIndex == out[j].OrderIndex {
			return out[i].ID < out[j].ID
		}
		return out[i].OrderIndex < out[j].OrderIndex
	})
	return out
}
