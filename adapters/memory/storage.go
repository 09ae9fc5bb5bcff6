package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"skillup/core"
)

// Store is a concurrent in-memory engine.Storage implementation. Each learner
// has its own record guarded by its own mutex, so insert-or-ignore and the
// matching point accrual happen under one lock.
type Store struct {
	learners sync.Map // map[core.LearnerID]*learnerRecord
}

type learnerRecord struct {
	mu          sync.Mutex
	points      int64
	lessons     map[core.LessonID]time.Time
	badges      map[core.BadgeID]time.Time
	courses     map[core.CourseID]time.Time
	tests       map[core.TestID]struct{}
	submissions []core.TestSubmission
}

func New() *Store { return &Store{} }

func (s *Store) getOrCreate(learner core.LearnerID) *learnerRecord {
	if v, ok := s.learners.Load(learner); ok {
		return v.(*learnerRecord)
	}
	rec := &learnerRecord{
		lessons: map[core.LessonID]time.Time{},
		badges:  map[core.BadgeID]time.Time{},
		courses: map[core.CourseID]time.Time{},
		tests:   map[core.TestID]struct{}{},
	}
	actual, _ := s.learners.LoadOrStore(learner, rec)
	return actual.(*learnerRecord)
}

func (s *Store) lookup(learner core.LearnerID) (*learnerRecord, bool) {
	v, ok := s.learners.Load(learner)
	if !ok {
		return nil, false
	}
	return v.(*learnerRecord), true
}

// accrue must be called with rec.mu held.
func (rec *learnerRecord) accrue(delta int64) (int64, error) {
	next, err := core.AddSafe(rec.points, delta)
	if err != nil {
		return 0, err
	}
	rec.points = next
	return next, nil
}

func (s *Store) AddPoints(_ context.Context, learner core.LearnerID, delta int64) (int64, error) {
	rec := s.getOrCreate(learner)
	rec.mu.Lock()
	defer rec.mu.Unlock()
	return rec.accrue(delta)
}

func (s *Store) GetPoints(_ context.Context, learner core.LearnerID) (int64, error) {
	rec, ok := s.lookup(learner)
	if !ok {
		return 0, nil
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	return rec.points, nil
}

func (s *Store) InsertCompletion(_ context.Context, c core.CompletionRecord, points int64) (bool, int64, error) {
	rec := s.getOrCreate(c.LearnerID)
	rec.mu.Lock()
	defer rec.mu.Unlock()
	if _, ok := rec.lessons[c.LessonID]; ok {
		return false, rec.points, nil
	}
	total, err := rec.accrue(points)
	if err != nil {
		return false, 0, err
	}
	rec.lessons[c.LessonID] = c.CompletedAt
	return true, total, nil
}

func (s *Store) HasCompletion(_ context.Context, learner core.LearnerID, lesson core.LessonID) (bool, error) {
	rec, ok := s.lookup(learner)
	if !ok {
		return false, nil
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	_, done := rec.lessons[lesson]
	return done, nil
}

func (s *Store) ListCompletions(_ context.Context, learner core.LearnerID) ([]core.CompletionRecord, error) {
	rec, ok := s.lookup(learner)
	if !ok {
		return nil, nil
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	out := make([]core.CompletionRecord, 0, len(rec.lessons))
	for id, at := range rec.lessons {
		out = append(out, core.CompletionRecord{LearnerID: learner, LessonID: id, CompletedAt: at})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LessonID < out[j].LessonID })
	return out, nil
}

func (s *Store) InsertAward(_ context.Context, a core.BadgeAward) (bool, error) {
	rec := s.getOrCreate(a.LearnerID)
	rec.mu.Lock()
	defer rec.mu.Unlock()
	if _, ok := rec.badges[a.BadgeID]; ok {
		return false, nil
	}
	rec.badges[a.BadgeID] = a.AwardedAt
	return true, nil
}

func (s *Store) ListAwards(_ context.Context, learner core.LearnerID) ([]core.BadgeAward, error) {
	rec, ok := s.lookup(learner)
	if !ok {
		return nil, nil
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	out := make([]core.BadgeAward, 0, len(rec.badges))
	for id, at := range rec.badges {
		out = append(out, core.BadgeAward{LearnerID: learner, BadgeID: id, AwardedAt: at})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].BadgeID < out[j].BadgeID })
	return out, nil
}

func (s *Store) CountAwards(_ context.Context, badge core.BadgeID) (int64, error) {
	var n int64
	s.learners.Range(func(_, v any) bool {
		rec := v.(*learnerRecord)
		rec.mu.Lock()
		if _, ok := rec.badges[badge]; ok {
			n++
		}
		rec.mu.Unlock()
		return true
	})
	return n, nil
}

func (s *Store) InsertEnrollment(_ context.Context, e core.Enrollment, points int64) (bool, int64, error) {
	rec := s.getOrCreate(e.LearnerID)
	rec.mu.Lock()
	defer rec.mu.Unlock()
	if _, ok := rec.courses[e.CourseID]; ok {
		return false, rec.points, nil
	}
	total, err := rec.accrue(points)
	if err != nil {
		return false, 0, err
	}
	rec.courses[e.CourseID] = e.EnrolledAt
	return true, total, nil
}

func (s *Store) ListEnrollments(_ context.Context, learner core.LearnerID) ([]core.Enrollment, error) {
	rec, ok := s.lookup(learner)
	if !ok {
		return nil, nil
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	out := make([]core.Enrollment, 0, len(rec.courses))
	for id, at := range rec.courses {
		out = append(out, core.Enrollment{LearnerID: learner, CourseID: id, EnrolledAt: at})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CourseID < out[j].CourseID })
	return out, nil
}

func (s *Store) InsertSubmission(_ context.Context, sub core.TestSubmission) (int64, error) {
	rec := s.getOrCreate(sub.LearnerID)
	rec.mu.Lock()
	defer rec.mu.Unlock()
	total, err := rec.accrue(sub.Score)
	if err != nil {
		return 0, err
	}
	rec.tests[sub.TestID] = struct{}{}
	rec.submissions = append(rec.submissions, sub)
	return total, nil
}

func (s *Store) CountDistinctTests(_ context.Context, learner core.LearnerID) (int64, error) {
	rec, ok := s.lookup(learner)
	if !ok {
		return 0, nil
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	return int64(len(rec.tests)), nil
}

// ListSubmissions returns the learner's submissions in arrival order.
func (s *Store) ListSubmissions(_ context.Context, learner core.LearnerID) ([]core.TestSubmission, error) {
	rec, ok := s.lookup(learner)
	if !ok {
		return nil, nil
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	return append([]core.TestSubmission(nil), rec.submissions...), nil
}

func (s *Store) ListActiveLearners(_ context.Context) ([]core.LearnerID, error) {
	var out []core.LearnerID
	s.learners.Range(func(k, _ any) bool {
		out = append(out, k.(core.LearnerID))
		return true
	})
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}
