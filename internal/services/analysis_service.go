package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ledgerbook/internal/api"
	"ledgerbook/internal/cache"
	"ledgerbook/internal/core"
	applog "ledgerbook/internal/log"
)

// AnalysisRefreshInterval is how long a generated analysis is served before
// the backend is asked for a new one.
const AnalysisRefreshInterval = time.Hour

// AnalysisSource is the part of the API client the analysis page needs.
type AnalysisSource interface {
	Analysis(ctx context.Context, bookID int64, ym core.YearMonth) (api.Analysis, error)
}

// AnalysisReport is the monthly business analysis of a book.
type AnalysisReport struct {
	BookID      int64
	YearMonth   core.YearMonth
	Summary     core.IncomeStatement
	Overview    string
	Strengths   []string
	Warnings    []string
	Suggestions []string
	// Expenses are the category expenses as chart slices.
	Expenses    []core.ChartSlice
	GeneratedAt time.Time
	// Empty is set when the backend had no analysis for the month.
	Empty bool
}

// RefreshAt is when a new analysis can be requested.
func (r AnalysisReport) RefreshAt() time.Time {
	return r.GeneratedAt.Add(AnalysisRefreshInterval)
}

// AnalysisService fetches analyses and keeps each one for
// AnalysisRefreshInterval, since generating them is expensive upstream.
type AnalysisService struct {
	reports cache.Cache[AnalysisReport]
	logger  *applog.Logger
	now     func() time.Time
}

// NewAnalysisService creates the service. reports should expire entries
// after AnalysisRefreshInterval.
func NewAnalysisService(reports cache.Cache[AnalysisReport], logger *applog.Logger) *AnalysisService {
	if logger == nil {
		logger = applog.Discard()
	}
	return &AnalysisService{
		reports: reports,
		logger:  logger.WithComponent(applog.ComponentStats),
		now:     time.Now,
	}
}

// Report returns the analysis of one month, from cache while it is fresh.
// A month the backend has no analysis for yields an empty report.
func (s *AnalysisService) Report(ctx context.Context, src AnalysisSource, userID, bookID int64, ym core.YearMonth) (AnalysisReport, error) {
	key := fmt.Sprintf("b%d:u%d:%s", bookID, userID, ym)
	if s.reports != nil {
		if r, ok := s.reports.Get(key); ok {
			return r, nil
		}
	}

	raw, err := src.Analysis(ctx, bookID, ym)
	empty := errors.Is(err, api.ErrNotFound) || errors.Is(err, api.ErrNoData)
	if err != nil && !empty {
		return AnalysisReport{}, fmt.Errorf("analysis %s: %w", ym, err)
	}

	r := buildReport(raw, bookID, ym)
	r.GeneratedAt = s.now()
	r.Empty = empty || (raw.AIAnalysis.Overview == "" && len(raw.CategoryExpenses) == 0)
	if s.reports != nil {
		s.reports.Set(key, r)
	}
	s.logger.DebugContext(ctx, "Analysis loaded",
		applog.FieldBookID, bookID, applog.FieldYearMonth, ym.String(), "empty", r.Empty)
	return r, nil
}

func buildReport(a api.Analysis, bookID int64, ym core.YearMonth) AnalysisReport {
	b := core.CategoryBreakdown{YearMonth: ym, Type: core.Expense}
	if total := a.Summary.TotalExpense; total > 0 {
		b.Total = &total
	}
	b.Categories = make([]core.CategoryStatistic, len(a.CategoryExpenses))
	for i, c := range a.CategoryExpenses {
		pct := c.Percentage
		b.Categories[i] = core.CategoryStatistic{CategoryName: c.CategoryName, Amount: c.Amount, Percentage: &pct}
	}
	return AnalysisReport{
		BookID:      bookID,
		YearMonth:   ym,
		Summary:     core.IncomeStatement(a.Summary),
		Overview:    a.AIAnalysis.Overview,
		Strengths:   a.AIAnalysis.Strengths,
		Warnings:    a.AIAnalysis.Warnings,
		Suggestions: a.AIAnalysis.Suggestions,
		Expenses:    core.BuildCategoryChart(b),
	}
}

// InvalidateBook drops the cached analyses of a deleted book.
func (s *AnalysisService) InvalidateBook(ctx context.Context, bookID int64) {
	if s.reports == nil {
		return
	}
	n := s.reports.DeletePrefix(bookPrefix(bookID))
	s.logger.DebugContext(ctx, "Analysis cache invalidated", applog.FieldBookID, bookID, "entries", n)
}
