package report

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/library-service/cmd/api/library"
	"github.com/xuri/excelize/v2"
)

const sheet = "Sheet1"

var header = []any{"id", "user_id", "book_id", "is_returned", "is_overdue", "return_date", "due_date", "created_at", "updated_at"}

// Exporter writes borrowing reports as .xlsx workbooks named after a generated file ID.
type Exporter struct {
	dir string
}

func NewExporter(dir string) *Exporter {
	return &Exporter{dir: dir}
}

/* Writes one header row plus one row per borrowing and returns the ID to download the file with. */
func (e *Exporter) Export(ctx context.Context, borrowings []library.Borrowing) (string, error) {
	if err := os.MkdirAll(e.dir, 0o755); err != nil {
		return "", fmt.Errorf("creating reports directory: %w", err)
	}

	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return "", fmt.Errorf("writing report header: %w", err)
	}

	for i, b := range borrowings {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return "", err
		}
		row := []any{
			b.ID.String(),
			b.UserID.String(),
			b.BookID.String(),
			b.IsReturned,
			b.IsOverdue,
			formatTime(b.ReturnDate),
			b.DueDate.Format(time.RFC3339),
			b.CreatedAt.Format(time.RFC3339),
			b.UpdatedAt.Format(time.RFC3339),
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return "", fmt.Errorf("writing report row %d: %w", i+1, err)
		}
	}

	fileID := uuid.NewString()
	if err := f.SaveAs(e.path(fileID)); err != nil {
		return "", fmt.Errorf("saving report: %w", err)
	}
	return fileID, nil
}

/* Returns the path of a previously exported report. */
func (e *Exporter) Locate(fileID string) (string, error) {
	if _, err := uuid.Parse(fileID); err != nil {
		return "", library.ErrResponseReportNotFound
	}

	path := e.path(fileID)
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", library.ErrResponseReportNotFound
		}
		return "", fmt.Errorf("locating report: %w", err)
	}
	return path, nil
}

func (e *Exporter) path(fileID string) string {
	return filepath.Join(e.dir, fileID+".xlsx")
}

func formatTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format(time.RFC3339)
}
