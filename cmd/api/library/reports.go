package library

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Both bounds are optional and inclusive, on the borrowing creation time.
type ReportRequest struct {
	From *time.Time
	To   *time.Time
}

var errExporterNotConfigured = errors.New("report exporter not configured")

func (s *Service) GenerateReport(ctx context.Context, req ReportRequest) (string, error) {
	if req.From != nil && req.To != nil && req.From.After(*req.To) {
		return "", ErrResponseQueryDateInvalidFormat
	}
	if s.exporter == nil {
		return "", errExporterNotConfigured
	}

	borrowings, err := s.ListBorrowings(ctx, BorrowingFilter{CreatedFrom: req.From, CreatedTo: req.To})
	if err != nil {
		return "", err
	}

	fileID, err := s.exporter.Export(ctx, borrowings)
	if err != nil {
		return "", fmt.Errorf("exporting report: %w", err)
	}

	s.logger.Info("report generated", "file_id", fileID, "rows", len(borrowings))
	return fileID, nil
}

func (s *Service) LocateReport(ctx context.Context, fileID string) (string, error) {
	if s.exporter == nil {
		return "", errExporterNotConfigured
	}
	return s.exporter.Locate(fileID)
}
