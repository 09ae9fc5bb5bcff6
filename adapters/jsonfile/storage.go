package jsonfile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"sync"
	"time"

	"skillup/core"
)

// Store persists all learner facts to a single JSON file.
// Suitable for demos and small single-instance deployments.
type Store struct {
	path string
	mu   sync.Mutex
	data map[core.LearnerID]*learnerState
}

type learnerState struct {
	Points      int64                 `json:"points"`
	Lessons     map[string]time.Time  `json:"lessons"`
	Badges      map[string]time.Time  `json:"badges"`
	Courses     map[string]time.Time  `json:"courses"`
	Submissions []core.TestSubmission `json:"submissions,omitempty"`
}

func New(path string) (*Store, error) {
	s := &Store{path: path, data: map[core.LearnerID]*learnerState{}}
	if err := s.load(); err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}
	return s, nil
}

func (s *Store) load() error {
	b, err := os.ReadFile(s.path)
	if err != nil {
		return err
	}
	var raw map[string]*learnerState
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	for k, v := range raw {
		id, err := strconv.ParseInt(k, 10, 64)
		if err != nil {
			return err
		}
		v.ensure()
		s.data[core.LearnerID(id)] = v
	}
	return nil
}

// persist rewrites the file; write failures are reported as core.ErrStoreUnavailable.
func (s *Store) persist() error {
	if err := s.write(); err != nil {
		return fmt.Errorf("jsonfile persist: %w: %w", core.ErrStoreUnavailable, err)
	}
	return nil
}

func (s *Store) write() error {
	tmp := s.path + ".tmp"
	raw := make(map[string]*learnerState, len(s.data))
	for k, v := range s.data {
		raw[strconv.FormatInt(int64(k), 10)] = v
	}
	b, err := json.MarshalIndent(raw, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return err
	}
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}

func (st *learnerState) ensure() {
	if st.Lessons == nil {
		st.Lessons = map[string]time.Time{}
	}
	if st.Badges == nil {
		st.Badges = map[string]time.Time{}
	}
	if st.Courses == nil {
		st.Courses = map[string]time.Time{}
	}
}

func (s *Store) get(learner core.LearnerID) *learnerState {
	if st, ok := s.data[learner]; ok {
		return st
	}
	st := &learnerState{}
	st.ensure()
	s.data[learner] = st
	return st
}

// forget drops a state created for a write that did not persist.
func (s *Store) forget(learner core.LearnerID, st *learnerState) {
	if st.Points == 0 && len(st.Lessons) == 0 && len(st.Badges) == 0 && len(st.Courses) == 0 && len(st.Submissions) == 0 {
		delete(s.data, learner)
	}
}

func key(id int64) string { return strconv.FormatInt(id, 10) }

// insertOnce sets m[k] if absent and accrues points, persisting on change;
// s.mu must be held.
func (s *Store) insertOnce(learner core.LearnerID, st *learnerState, m map[string]time.Time, k string, at time.Time, points int64) (bool, int64, error) {
	if _, ok := m[k]; ok {
		return false, st.Points, nil
	}
	next, err := core.AddSafe(st.Points, points)
	if err != nil {
		return false, 0, err
	}
	m[k] = at
	prev := st.Points
	st.Points = next
	if err := s.persist(); err != nil {
		delete(m, k)
		st.Points = prev
		s.forget(learner, st)
		return false, 0, err
	}
	return true, next, nil
}

func (s *Store) AddPoints(_ context.Context, learner core.LearnerID, delta int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.get(learner)
	next, err := core.AddSafe(st.Points, delta)
	if err != nil {
		return 0, err
	}
	prev := st.Points
	st.Points = next
	if err := s.persist(); err != nil {
		st.Points = prev
		s.forget(learner, st)
		return 0, err
	}
	return next, nil
}

func (s *Store) GetPoints(_ context.Context, learner core.LearnerID) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if st, ok := s.data[learner]; ok {
		return st.Points, nil
	}
	return 0, nil
}

func (s *Store) InsertCompletion(_ context.Context, rec core.CompletionRecord, points int64) (bool, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.get(rec.LearnerID)
	return s.insertOnce(rec.LearnerID, st, st.Lessons, key(int64(rec.LessonID)), rec.CompletedAt, points)
}

func (s *Store) HasCompletion(_ context.Context, learner core.LearnerID, lesson core.LessonID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.data[learner]
	if !ok {
		return false, nil
	}
	_, done := st.Lessons[key(int64(lesson))]
	return done, nil
}

func (s *Store) ListCompletions(_ context.Context, learner core.LearnerID) ([]core.CompletionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []core.CompletionRecord
	if st, ok := s.data[learner]; ok {
		for id, at := range entries(st.Lessons) {
			out = append(out, core.CompletionRecord{LearnerID: learner, LessonID: core.LessonID(id), CompletedAt: at})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LessonID < out[j].LessonID })
	return out, nil
}

func (s *Store) InsertAward(_ context.Context, a core.BadgeAward) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.get(a.LearnerID)
	inserted, _, err := s.insertOnce(a.LearnerID, st, st.Badges, key(int64(a.BadgeID)), a.AwardedAt, 0)
	return inserted, err
}

func (s *Store) ListAwards(_ context.Context, learner core.LearnerID) ([]core.BadgeAward, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []core.BadgeAward
	if st, ok := s.data[learner]; ok {
		for id, at := range entries(st.Badges) {
			out = append(out, core.BadgeAward{LearnerID: learner, BadgeID: core.BadgeID(id), AwardedAt: at})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].BadgeID < out[j].BadgeID })
	return out, nil
}

func (s *Store) CountAwards(_ context.Context, badge core.BadgeID) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	k := key(int64(badge))
	for _, st := range s.data {
		if _, ok := st.Badges[k]; ok {
			n++
		}
	}
	return n, nil
}

func (s *Store) InsertEnrollment(_ context.Context, e core.Enrollment, points int64) (bool, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.get(e.LearnerID)
	return s.insertOnce(e.LearnerID, st, st.Courses, key(int64(e.CourseID)), e.EnrolledAt, points)
}

func (s *Store) ListEnrollments(_ context.Context, learner core.LearnerID) ([]core.Enrollment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []core.Enrollment
	if st, ok := s.data[learner]; ok {
		for id, at := range entries(st.Courses) {
			out = append(out, core.Enrollment{LearnerID: learner, CourseID: core.CourseID(id), EnrolledAt: at})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CourseID < out[j].CourseID })
	return out, nil
}

func (s *Store) InsertSubmission(_ context.Context, sub core.TestSubmission) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.get(sub.LearnerID)
	next, err := core.AddSafe(st.Points, sub.Score)
	if err != nil {
		return 0, err
	}
	prev, n := st.Points, len(st.Submissions)
	st.Points = next
	st.Submissions = append(st.Submissions, sub)
	if err := s.persist(); err != nil {
		st.Points = prev
		st.Submissions = st.Submissions[:n]
		s.forget(sub.LearnerID, st)
		return 0, err
	}
	return next, nil
}

// ListSubmissions returns the learner's submissions in arrival order.
func (s *Store) ListSubmissions(_ context.Context, learner core.LearnerID) ([]core.TestSubmission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.data[learner]
	if !ok {
		return nil, nil
	}
	return append([]core.TestSubmission(nil), st.Submissions...), nil
}

func (s *Store) CountDistinctTests(_ context.Context, learner core.LearnerID) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.data[learner]
	if !ok {
		return 0, nil
	}
	seen := map[core.TestID]struct{}{}
	for _, sub := range st.Submissions {
		seen[sub.TestID] = struct{}{}
	}
	return int64(len(seen)), nil
}

func (s *Store) ListActiveLearners(_ context.Context) ([]core.LearnerID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]core.LearnerID, 0, len(s.data))
	for id := range s.data {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

func entries(m map[string]time.Time) map[int64]time.Time {
	out := make(map[int64]time.Time, len(m))
	for k, v := range m {
		if id, err := strconv.ParseInt(k, 10, 64); err == nil {
			out[id] = v
		}
	}
	return out
}
