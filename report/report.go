// Package report renders learner progress summaries as spreadsheets.
package report

import (
	"fmt"
	"io"
	"time"

	"github.com/xuri/excelize/v2"

	"skillup/engine"
)

const (
	SheetSummary = "Summary"
	SheetCourses = "Courses"
	SheetBadges  = "Badges"
)

// ContentType is the MIME type of the generated workbook.
const ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// WriteLearnerReport writes summary as an xlsx workbook with one sheet for the
// totals, one for course progress and one for earned badges.
func WriteLearnerReport(w io.Writer, summary engine.LearnerSummary, generatedAt time.Time) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", SheetSummary); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}
	header, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("create style: %w", err)
	}

	summaryRows := [][]any{
		{"Learner", int64(summary.LearnerID)},
		{"Points", summary.Points},
		{"Badges", len(summary.Badges)},
		{"Courses", len(summary.Courses)},
		{"Generated", generatedAt.UTC().Format(time.RFC3339)},
	}
	if err := writeRows(f, SheetSummary, summaryRows); err != nil {
		return err
	}
	if err := f.SetCellStyle(SheetSummary, "A1", fmt.Sprintf("A%d", len(summaryRows)), header); err != nil {
		return fmt.Errorf("style summary: %w", err)
	}

	courseRows := [][]any{{"Course ID", "Title", "Completed", "Total", "Percent"}}
	for _, c := range summary.Courses {
		courseRows = append(courseRows, []any{int64(c.CourseID), c.Title, c.Completed, c.Total, c.Percent})
	}
	if err := addSheet(f, SheetCourses, courseRows, header); err != nil {
		return err
	}

	badgeRows := [][]any{{"Badge ID", "Name", "Description", "Awarded At"}}
	for _, b := range summary.Badges {
		badgeRows = append(badgeRows, []any{int64(b.ID), b.Name, b.Description, b.AwardedAt.UTC().Format(time.RFC3339)})
	}
	if err := addSheet(f, SheetBadges, badgeRows, header); err != nil {
		return err
	}

	if err := f.SetColWidth(SheetCourses, "B", "B", 32); err != nil {
		return fmt.Errorf("size columns: %w", err)
	}
	if err := f.Write(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

func addSheet(f *excelize.File, name string, rows [][]any, headerStyle int) error {
	if _, err := f.NewSheet(name); err != nil {
		return fmt.Errorf("create sheet %s: %w", name, err)
	}
	if err := writeRows(f, name, rows); err != nil {
		return err
	}
	last, err := excelize.CoordinatesToCellName(len(rows[0]), 1)
	if err != nil {
		return err
	}
	if err := f.SetCellStyle(name, "A1", last, headerStyle); err != nil {
		return fmt.Errorf("style %s: %w", name, err)
	}
	return nil
}

func writeRows(f *excelize.File, sheet string, rows [][]any) error {
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("write %s row %d: %w", sheet, i+1, err)
		}
	}
	return nil
}
