package analytics

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"skillup/core"
)

// Hook receives domain events for KPI aggregation.
type Hook interface {
	OnEvent(e core.Event)
}

func dayKey(t time.Time) string { return t.UTC().Format("2006-01-02") }

func weekKey(t time.Time) string {
	year, week := t.UTC().ISOWeek()
	return fmt.Sprintf("%d-W%02d", year, week)
}

// Metrics counts engine activity per day and per badge. It only sees events
// published since the process started; the stores remain the source of truth.
type Metrics struct {
	mu sync.RWMutex

	activeByDay  map[string]map[core.LearnerID]struct{}
	activeByWeek map[string]map[core.LearnerID]struct{}
	learners     map[core.LearnerID]struct{}

	pointsByDay      map[string]int64
	lessonsByDay     map[string]int64
	enrollmentsByDay map[string]int64
	testsByDay       map[string]int64

	badgesByDay   map[string]int64
	badgesByID    map[core.BadgeID]int64
	badgeNames    map[core.BadgeID]string
	badgesAwarded int64
}

func NewMetrics() *Metrics {
	return &Metrics{
		activeByDay:      make(map[string]map[core.LearnerID]struct{}),
		activeByWeek:     make(map[string]map[core.LearnerID]struct{}),
		learners:         make(map[core.LearnerID]struct{}),
		pointsByDay:      make(map[string]int64),
		lessonsByDay:     make(map[string]int64),
		enrollmentsByDay: make(map[string]int64),
		testsByDay:       make(map[string]int64),
		badgesByDay:      make(map[string]int64),
		badgesByID:       make(map[core.BadgeID]int64),
		badgeNames:       make(map[core.BadgeID]string),
	}
}

func (m *Metrics) OnEvent(e core.Event) {
	m.mu.Lock()
	defer m.mu.Unlock()

	day := dayKey(e.Time)
	track(m.activeByDay, day, e.LearnerID)
	track(m.activeByWeek, weekKey(e.Time), e.LearnerID)
	m.learners[e.LearnerID] = struct{}{}

	switch e.Type {
	case core.EventPointsAdded:
		if e.Delta > 0 {
			m.pointsByDay[day] += e.Delta
		}
	case core.EventLessonCompleted:
		m.lessonsByDay[day]++
	case core.EventEnrolled:
		m.enrollmentsByDay[day]++
	case core.EventTestSubmitted:
		m.testsByDay[day]++
	case core.EventBadgeAwarded:
		m.badgesByDay[day]++
		m.badgesByID[e.BadgeID]++
		m.badgesAwarded++
		if name, ok := e.Metadata["name"].(string); ok {
			m.badgeNames[e.BadgeID] = name
		}
	}
}

func track(set map[string]map[core.LearnerID]struct{}, key string, learner core.LearnerID) {
	if set[key] == nil {
		set[key] = make(map[core.LearnerID]struct{})
	}
	set[key][learner] = struct{}{}
}

// DailyActiveLearners returns the number of learners with activity on day (YYYY-MM-DD).
func (m *Metrics) DailyActiveLearners(day string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.activeByDay[day])
}

// WeeklyActiveLearners takes an ISO week key such as 2024-W07.
func (m *Metrics) WeeklyActiveLearners(week string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.activeByWeek[week])
}

// PointsAwardedByDay sums positive point deltas on day.
func (m *Metrics) PointsAwardedByDay(day string) int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.pointsByDay[day]
}

func (m *Metrics) BadgesAwardedByDay(day string) int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.badgesByDay[day]
}

// BadgeCount is the number of awards of one badge.
type BadgeCount struct {
	BadgeID core.BadgeID `json:"badge_id"`
	Name    string       `json:"name,omitempty"`
	Awards  int64        `json:"awards"`
}

// Summary is the admin view of the counters.
type Summary struct {
	ActiveLearners  int          `json:"active_learners"`
	ActiveToday     int          `json:"active_today"`
	ActiveThisWeek  int          `json:"active_this_week"`
	PointsToday     int64        `json:"points_awarded_today"`
	BadgesToday     int64        `json:"badges_awarded_today"`
	BadgesAwarded   int64        `json:"badges_awarded"`
	LessonsToday    int64        `json:"lessons_completed_today"`
	EnrollmentToday int64        `json:"enrollments_today"`
	TopBadges       []BadgeCount `json:"top_badges"`
}

// Summary reports totals for now and the limit most awarded badges.
func (m *Metrics) Summary(now time.Time, limit int) Summary {
	day := dayKey(now)
	s := Summary{
		ActiveToday:    m.DailyActiveLearners(day),
		ActiveThisWeek: m.WeeklyActiveLearners(weekKey(now)),
		PointsToday:    m.PointsAwardedByDay(day),
		BadgesToday:    m.BadgesAwardedByDay(day),
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	s.ActiveLearners = len(m.learners)
	s.BadgesAwarded = m.badgesAwarded
	s.LessonsToday = m.lessonsByDay[day]
	s.EnrollmentToday = m.enrollmentsByDay[day]
	s.TopBadges = make([]BadgeCount, 0, len(m.badgesByID))
	for id, n := range m.badgesByID {
		s.TopBadges = append(s.TopBadges, BadgeCount{BadgeID: id, Name: m.badgeNames[id], Awards: n})
	}
	sort.Slice(s.TopBadges, func(i, j int) bool {
		if s.TopBadges[i].Awards != s.TopBadges[j].Awards {
			return s.TopBadges[i].Awards > s.TopBadges[j].Awards
		}
		return s.TopBadges[i].BadgeID < s.TopBadges[j].BadgeID
	})
	if limit > 0 && len(s.TopBadges) > limit {
		s.TopBadges = s.TopBadges[:limit]
	}
	return s
}
