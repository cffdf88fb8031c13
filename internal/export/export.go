// Package export renders a course's quiz history as an xlsx workbook.
package export

import (
	"fmt"
	"io"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/studyloop/studyloop/internal/course"
)

const sheetName = "Quiz History"

var headers = []string{"Level", "Quiz ID", "Score", "Questions", "Percentage", "Completed At"}

// WriteHistory writes one row per recorded quiz attempt, oldest first.
func WriteHistory(w io.Writer, c course.Course) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", sheetName); err != nil {
		return fmt.Errorf("naming sheet: %w", err)
	}

	headerStyle, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("creating header style: %w", err)
	}

	for i, h := range headers {
		cell, err := excelize.CoordinatesToCellName(i+1, 1)
		if err != nil {
			return err
		}
		if err := f.SetCellValue(sheetName, cell, h); err != nil {
			return fmt.Errorf("writing header: %w", err)
		}
		if err := f.SetCellStyle(sheetName, cell, cell, headerStyle); err != nil {
			return fmt.Errorf("styling header: %w", err)
		}
	}

	for i, attempt := range c.History {
		row := i + 2
		values := []any{
			attempt.LevelTitle,
			attempt.QuizID,
			attempt.Score,
			attempt.TotalQuestions,
			fmt.Sprintf("%d%%", attempt.Percentage),
			attempt.Timestamp.Format(time.RFC3339),
		}
		for col, v := range values {
			cell, err := excelize.CoordinatesToCellName(col+1, row)
			if err != nil {
				return err
			}
			if err := f.SetCellValue(sheetName, cell, v); err != nil {
				return fmt.Errorf("writing row %d: %w", row, err)
			}
		}
	}

	if err := f.SetColWidth(sheetName, "A", "B", 28); err != nil {
		return fmt.Errorf("sizing columns: %w", err)
	}
	if err := f.SetColWidth(sheetName, "F", "F", 24); err != nil {
		return fmt.Errorf("sizing columns: %w", err)
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("writing workbook: %w", err)
	}
	return nil
}
