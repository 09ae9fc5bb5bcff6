package report

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"skillup/core"
	"skillup/engine"
)

func TestWriteLearnerReport(t *testing.T) {
	awarded := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	summary := engine.LearnerSummary{
		LearnerID: 42,
		Points:    115,
		Badges: []engine.BadgeView{{
			BadgeDefinition: core.BadgeDefinition{ID: 1, Name: "Rookie", Description: "Earn 100 points"},
			AwardedAt:       awarded,
		}},
		Courses: []core.CourseProgress{
			{CourseID: 1, Title: "Go Fundamentals", Completed: 2, Total: 3, Percent: 66.7},
			{CourseID: 2, Title: "Concurrency in Practice", Completed: 2, Total: 2, Percent: 100},
		},
	}

	var buf bytes.Buffer
	require.NoError(t, WriteLearnerReport(&buf, summary, awarded))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{SheetSummary, SheetCourses, SheetBadges}, f.GetSheetList())

	points, err := f.GetCellValue(SheetSummary, "B2")
	require.NoError(t, err)
	assert.Equal(t, "115", points)

	rows, err := f.GetRows(SheetCourses)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "Go Fundamentals", rows[1][1])
	assert.Equal(t, "66.7", rows[1][4])

	badges, err := f.GetRows(SheetBadges)
	require.NoError(t, err)
	require.Len(t, badges, 2)
	assert.Equal(t, "Rookie", badges[1][1])
	assert.Equal(t, "2024-03-01T12:00:00Z", badges[1][3])
}

func TestWriteLearnerReport_Empty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteLearnerReport(&buf, engine.LearnerSummary{LearnerID: 1}, time.Now()))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows(SheetCourses)
	require.NoError(t, err)
	assert.Len(t, rows, 1, "header only")
}
