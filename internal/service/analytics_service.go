package service

import (
	"bytes"
	"context"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/spec-kit/helpdesk-service/internal/domain"
	"github.com/spec-kit/helpdesk-service/internal/repository"
)

const analyticsSheet = "Departments"

var analyticsHeaders = []interface{}{"Department", "Open", "Closed", "Closed On Time", "Closed Delayed"}

// AnalyticsService serves read-only reporting.
type AnalyticsService struct {
	analytics repository.AnalyticsRepository
	emailLogs repository.EmailLogRepository
	now       func() time.Time
}

// NewAnalyticsService constructs the service.
func NewAnalyticsService(analytics repository.AnalyticsRepository, emailLogs repository.EmailLogRepository, clock func() time.Time) *AnalyticsService {
	if clock == nil {
		clock = time.Now
	}
	return &AnalyticsService{analytics: analytics, emailLogs: emailLogs, now: clock}
}

// DepartmentStats returns per-department ticket counts.
func (s *AnalyticsService) DepartmentStats(ctx context.Context) ([]domain.DepartmentStats, error) {
	return s.analytics.DepartmentStats(ctx)
}

// EmailStats tallies email log entries for the current UTC day and month.
func (s *AnalyticsService) EmailStats(ctx context.Context) (*domain.EmailStats, error) {
	now := s.now().UTC()
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)

	stats := &domain.EmailStats{}
	var err error
	if stats.Today.ByType, err = s.emailLogs.CountByType(ctx, dayStart); err != nil {
		return nil, err
	}
	if stats.Today.Successful, stats.Today.Failed, err = s.emailLogs.CountByOutcome(ctx, dayStart); err != nil {
		return nil, err
	}
	if stats.Month.ByType, err = s.emailLogs.CountByType(ctx, monthStart); err != nil {
		return nil, err
	}
	stats.Today.Total = sumCounts(stats.Today.ByType)
	stats.Month.Total = sumCounts(stats.Month.ByType)
	return stats, nil
}

// ExportDepartmentStats renders the department table as an XLSX workbook.
func (s *AnalyticsService) ExportDepartmentStats(ctx context.Context) ([]byte, error) {
	rows, err := s.analytics.DepartmentStats(ctx)
	if err != nil {
		return nil, err
	}
	return buildStatsWorkbook(rows)
}

func buildStatsWorkbook(rows []domain.DepartmentStats) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", analyticsSheet); err != nil {
		return nil, err
	}
	if err := f.SetSheetRow(analyticsSheet, "A1", &analyticsHeaders); err != nil {
		return nil, err
	}
	style, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return nil, err
	}
	if err := f.SetCellStyle(analyticsSheet, "A1", "E1", style); err != nil {
		return nil, err
	}

	for i, r := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return nil, err
		}
		row := []interface{}{r.DepartmentName, r.OpenTickets, r.ClosedTickets, r.ClosedOnTime, r.ClosedDelayed}
		if err := f.SetSheetRow(analyticsSheet, cell, &row); err != nil {
			return nil, err
		}
	}
	if err := f.SetColWidth(analyticsSheet, "A", "A", 30); err != nil {
		return nil, err
	}
	if err := f.SetColWidth(analyticsSheet, "B", "E", 16); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if _, err := f.WriteTo(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func sumCounts(counts []domain.EmailTypeCount) int64 {
	var total int64
	for _, c := range counts {
		total += c.Count
	}
	return total
}
