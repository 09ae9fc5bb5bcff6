package analytics

import (
	"encoding/json"
	"fmt"
	"io"
	"time"
)

// AggregatedData is the rollup of one UTC day.
type AggregatedData struct {
	Day            string    `json:"day"`
	ActiveLearners int       `json:"active_learners"`
	PointsAwarded  int64     `json:"points_awarded"`
	LessonsDone    int64     `json:"lessons_completed"`
	Enrollments    int64     `json:"enrollments"`
	TestsSubmitted int64     `json:"tests_submitted"`
	BadgesAwarded  int64     `json:"badges_awarded"`
	CreatedAt      time.Time `json:"created_at"`
}

// Rollup aggregates the counters of one day.
func (m *Metrics) Rollup(day time.Time) AggregatedData {
	key := dayKey(day)
	m.mu.RLock()
	defer m.mu.RUnlock()
	return AggregatedData{
		Day:            key,
		ActiveLearners: len(m.activeByDay[key]),
		PointsAwarded:  m.pointsByDay[key],
		LessonsDone:    m.lessonsByDay[key],
		Enrollments:    m.enrollmentsByDay[key],
		TestsSubmitted: m.testsByDay[key],
		BadgesAwarded:  m.badgesByDay[key],
		CreatedAt:      time.Now().UTC(),
	}
}

// Rollups returns one rollup per day from 'from' to 'to' inclusive, oldest first.
func (m *Metrics) Rollups(from, to time.Time) ([]AggregatedData, error) {
	from, to = from.UTC().Truncate(24*time.Hour), to.UTC().Truncate(24*time.Hour)
	if to.Before(from) {
		return nil, fmt.Errorf("invalid range: %s is before %s", dayKey(to), dayKey(from))
	}
	const maxDays = 366
	if to.Sub(from) > maxDays*24*time.Hour {
		return nil, fmt.Errorf("range exceeds %d days", maxDays)
	}
	var out []AggregatedData
	for d := from; !d.After(to); d = d.Add(24 * time.Hour) {
		out = append(out, m.Rollup(d))
	}
	return out, nil
}

// ExportData writes rollups as indented JSON.
func ExportData(w io.Writer, data []AggregatedData) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(data); err != nil {
		return fmt.Errorf("failed to export analytics: %w", err)
	}
	return nil
}
