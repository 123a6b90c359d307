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

	"golang.org/x/sync/errgroup"
)

// dashboardMonths is the span of the monthly bars on the dashboard.
const dashboardMonths = 12

// StatisticsSource is the part of the API client the dashboards need.
type StatisticsSource interface {
	MonthlySummaries(ctx context.Context, bookID int64) ([]api.MonthlySummary, error)
	CategoryStatistics(ctx context.Context, bookID int64, ym core.YearMonth, typ core.TxType) (api.CategoryStatistics, error)
	FinancialStatement(ctx context.Context, bookID int64, ym core.YearMonth) (api.FinancialStatement, error)
	AccountBalances(ctx context.Context, bookID int64) ([]api.AccountBalance, error)
}

// CategoryChart is a breakdown together with its chart slices.
type CategoryChart struct {
	Breakdown core.CategoryBreakdown
	Slices    []core.ChartSlice
}

// Dashboard is everything the dashboard page shows for one month.
type Dashboard struct {
	BookID       int64
	YearMonth    core.YearMonth
	Monthly      []core.MonthlySummary
	Current      core.MonthlySummary
	IncomeChart  CategoryChart
	ExpenseChart CategoryChart
	Balances     []core.AccountBalance
}

// StatisticsService builds dashboard data from the statistics endpoints.
type StatisticsService struct {
	categories cache.Cache[core.CategoryBreakdown]
	logger     *applog.Logger
	now        func() time.Time
}

// NewStatisticsService creates the service. categories may be nil to disable caching.
func NewStatisticsService(categories cache.Cache[core.CategoryBreakdown], logger *applog.Logger) *StatisticsService {
	if logger == nil {
		logger = applog.Discard()
	}
	return &StatisticsService{
		categories: categories,
		logger:     logger.WithComponent(applog.ComponentStats),
		now:        time.Now,
	}
}

// CurrentMonth is the month dashboards default to.
func (s *StatisticsService) CurrentMonth() core.YearMonth {
	return core.YearMonthOf(s.now())
}

// Dashboard loads summaries, both category charts and account balances
// concurrently.
func (s *StatisticsService) Dashboard(ctx context.Context, src StatisticsSource, userID, bookID int64, ym core.YearMonth) (Dashboard, error) {
	d := Dashboard{BookID: bookID, YearMonth: ym}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		raw, err := src.MonthlySummaries(gctx, bookID)
		if errors.Is(err, api.ErrNotFound) {
			raw, err = nil, nil
		}
		if err != nil {
			return fmt.Errorf("monthly summaries: %w", err)
		}
		summaries, err := api.CoreSummaries(raw)
		if err != nil {
			return err
		}
		from, to := core.TrailingMonths(ym, dashboardMonths)
		d.Monthly = core.MonthlySeries(summaries, from, to)
		d.Current = d.Monthly[len(d.Monthly)-1]
		return nil
	})
	g.Go(func() error {
		chart, err := s.CategoryChart(gctx, src, userID, bookID, ym, core.Income)
		d.IncomeChart = chart
		return err
	})
	g.Go(func() error {
		chart, err := s.CategoryChart(gctx, src, userID, bookID, ym, core.Expense)
		d.ExpenseChart = chart
		return err
	})
	g.Go(func() error {
		balances, err := src.AccountBalances(gctx, bookID)
		if errors.Is(err, api.ErrNotFound) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("account balances: %w", err)
		}
		d.Balances = make([]core.AccountBalance, len(balances))
		for i, b := range balances {
			d.Balances[i] = b.Core()
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return Dashboard{}, err
	}
	return d, nil
}

// CategoryChart returns the category breakdown of one month and direction.
// A month without statistics yields an empty chart.
func (s *StatisticsService) CategoryChart(ctx context.Context, src StatisticsSource, userID, bookID int64, ym core.YearMonth, typ core.TxType) (CategoryChart, error) {
	key := fmt.Sprintf("b%d:u%d:%s:%s", bookID, userID, ym, typ)
	if s.categories != nil {
		if b, ok := s.categories.Get(key); ok {
			return CategoryChart{Breakdown: b, Slices: core.BuildCategoryChart(b)}, nil
		}
	}

	stats, err := src.CategoryStatistics(ctx, bookID, ym, typ)
	if errors.Is(err, api.ErrNotFound) {
		stats, err = api.CategoryStatistics{}, nil
	}
	if err != nil {
		return CategoryChart{}, fmt.Errorf("category statistics %s %s: %w", ym, typ, err)
	}
	b := stats.Core(ym, typ)
	if s.categories != nil {
		s.categories.Set(key, b)
	}
	return CategoryChart{Breakdown: b, Slices: core.BuildCategoryChart(b)}, nil
}

// Statement returns the income statement and balance sheet of a month.
func (s *StatisticsService) Statement(ctx context.Context, src StatisticsSource, bookID int64, ym core.YearMonth) (core.FinancialStatement, error) {
	st, err := src.FinancialStatement(ctx, bookID, ym)
	if errors.Is(err, api.ErrNotFound) {
		return core.FinancialStatement{YearMonth: ym}, nil
	}
	if err != nil {
		return core.FinancialStatement{}, fmt.Errorf("financial statement %s: %w", ym, err)
	}
	return st.Core(ym), nil
}

// InvalidateBook drops the cached category statistics of the book.
func (s *StatisticsService) InvalidateBook(ctx context.Context, bookID int64) {
	if s.categories == nil {
		return
	}
	n := s.categories.DeletePrefix(bookPrefix(bookID))
	s.logger.DebugContext(ctx, "Category cache invalidated", applog.FieldBookID, bookID, "entries", n)
}
