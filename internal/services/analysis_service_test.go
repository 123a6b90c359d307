package services

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"ledgerbook/internal/api"
	"ledgerbook/internal/cache"
	"ledgerbook/internal/core"
)

type fakeAnalysis struct {
	result api.Analysis
	err    error
	calls  int
}

func (f *fakeAnalysis) Analysis(ctx context.Context, bookID int64, ym core.YearMonth) (api.Analysis, error) {
	f.calls++
	return f.result, f.err
}

func TestAnalysisService_Report(t *testing.T) {
	src := &fakeAnalysis{result: api.Analysis{
		Summary: api.IncomeStatement{TotalIncome: 5000, TotalExpense: 1000, NetProfit: 4000, ProfitRate: 80},
		AIAnalysis: api.AnalysisComment{
			Overview:  "Sales grew while costs stayed flat.",
			Warnings:  []string{"Food costs doubled"},
			Strengths: []string{"Steady income"},
		},
		CategoryExpenses: []api.CategoryExpense{
			{CategoryName: "food", Amount: 600, Percentage: 60},
			{CategoryName: "rent", Amount: 400, Percentage: 40},
		},
	}}
	svc := NewAnalysisService(cache.NewLRUCache[AnalysisReport](10, AnalysisRefreshInterval), nil)
	fixed := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return fixed }
	mar := core.NewYearMonth(2025, 3)

	r, err := svc.Report(context.Background(), src, 1, 7, mar)
	if err != nil {
		t.Fatalf("Report: %v", err)
	}
	if r.Empty || r.Summary.NetProfit != 4000 || r.Overview == "" || len(r.Warnings) != 1 {
		t.Errorf("report = %+v", r)
	}
	if len(r.Expenses) != 2 || r.Expenses[0].Percent != 60 || r.Expenses[1].Name != "rent" {
		t.Errorf("expenses = %+v", r.Expenses)
	}
	if !r.RefreshAt().Equal(fixed.Add(time.Hour)) {
		t.Errorf("refresh at = %v", r.RefreshAt())
	}

	if _, err := svc.Report(context.Background(), src, 1, 7, mar); err != nil {
		t.Fatal(err)
	}
	if src.calls != 1 {
		t.Errorf("calls = %d, want cached second read", src.calls)
	}

	svc.InvalidateBook(context.Background(), 7)
	if _, err := svc.Report(context.Background(), src, 1, 7, mar); err != nil {
		t.Fatal(err)
	}
	if src.calls != 2 {
		t.Errorf("calls = %d, want refetch after invalidation", src.calls)
	}
}

func TestAnalysisService_MissingAndFailing(t *testing.T) {
	svc := NewAnalysisService(nil, nil)
	mar := core.NewYearMonth(2025, 3)

	missing := &fakeAnalysis{err: &api.Error{Status: http.StatusNotFound}}
	r, err := svc.Report(context.Background(), missing, 1, 7, mar)
	if err != nil || !r.Empty || len(r.Expenses) != 0 {
		t.Fatalf("missing analysis: %+v %v", r, err)
	}

	failing := &fakeAnalysis{err: &api.Error{Status: http.StatusBadGateway}}
	if _, err := svc.Report(context.Background(), failing, 1, 7, mar); err == nil || errors.Is(err, api.ErrNotFound) {
		t.Fatalf("expected upstream failure, got %v", err)
	}
}
