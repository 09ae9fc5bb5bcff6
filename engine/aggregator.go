package engine

import (
	"context"
	"sort"

	"skillup/core"
)

// ProgressAggregator derives course-level completion state from completion
// facts. It never writes.
type ProgressAggregator struct {
	completions CompletionStore
	courses     CourseReader
}

func NewProgressAggregator(completions CompletionStore, courses CourseReader) *ProgressAggregator {
	if completions == nil || courses == nil {
		panic("NewProgressAggregator requires non-nil completions and courses")
	}
	return &ProgressAggregator{completions: completions, courses: courses}
}

// GetCourseProgress counts the learner's completions among the course's lessons.
// Fails with core.ErrNotFound when the course does not exist.
func (a *ProgressAggregator) GetCourseProgress(ctx context.Context, learner core.LearnerID, course core.CourseID) (core.CourseProgress, error) {
	lessonIDs, err := a.courses.GetCourseLessonIDs(ctx, course)
	if err != nil {
		return core.CourseProgress{}, err
	}
	records, err := a.completions.ListCompletions(ctx, learner)
	if err != nil {
		return core.CourseProgress{}, err
	}
	return core.NewCourseProgress(course, len(filterByLessons(records, lessonIDs)), len(lessonIDs)), nil
}

// IsCourseFullyCompleted reports completed == total with total > 0.
func (a *ProgressAggregator) IsCourseFullyCompleted(ctx context.Context, learner core.LearnerID, course core.CourseID) (bool, error) {
	p, err := a.GetCourseProgress(ctx, learner, course)
	if err != nil {
		return false, err
	}
	return p.FullyCompleted(), nil
}

// ActiveCourses returns the ids of courses in which the learner completed at
// least one lesson, in ascending order.
func (a *ProgressAggregator) ActiveCourses(ctx context.Context, learner core.LearnerID) ([]core.CourseID, error) {
	byCourse, err := a.completionsByCourse(ctx, learner)
	if err != nil {
		return nil, err
	}
	out := make([]core.CourseID, 0, len(byCourse))
	for c := range byCourse {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

// CountFullyCompletedCourses counts fully completed courses among those with
// completion activity. A course removed from the catalog is skipped.
func (a *ProgressAggregator) CountFullyCompletedCourses(ctx context.Context, learner core.LearnerID) (int64, error) {
	byCourse, err := a.completionsByCourse(ctx, learner)
	if err != nil {
		return 0, err
	}
	var n int64
	for course, done := range byCourse {
		lessonIDs, err := a.courses.GetCourseLessonIDs(ctx, course)
		if err != nil {
			if isNotFound(err) {
				continue
			}
			return 0, err
		}
		completed := 0
		for _, id := range lessonIDs {
			if _, ok := done[id]; ok {
				completed++
			}
		}
		if core.NewCourseProgress(course, completed, len(lessonIDs)).FullyCompleted() {
			n++
		}
	}
	return n, nil
}

func (a *ProgressAggregator) completionsByCourse(ctx context.Context, learner core.LearnerID) (map[core.CourseID]map[core.LessonID]struct{}, error) {
	records, err := a.completions.ListCompletions(ctx, learner)
	if err != nil || len(records) == 0 {
		return nil, err
	}
	ids := make([]core.LessonID, 0, len(records))
	for _, r := range records {
		ids = append(ids, r.LessonID)
	}
	lessons, err := a.courses.GetLessons(ctx, ids)
	if err != nil {
		return nil, err
	}
	out := make(map[core.CourseID]map[core.LessonID]struct{})
	for _, l := range lessons {
		if out[l.CourseID] == nil {
			out[l.CourseID] = make(map[core.LessonID]struct{})
		}
		out[l.CourseID][l.ID] = struct{}{}
	}
	return out, nil
}
