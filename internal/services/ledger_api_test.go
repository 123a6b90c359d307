package services

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"ledgerbook/internal/api"
	"ledgerbook/internal/core"
	applog "ledgerbook/internal/log"
)

// apiLedger serves raw envelopes per yearMonth from the account ledger
// endpoint of a real API client.
func apiLedger(t *testing.T, bodies map[string]string) *api.Client {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/accounts/3" {
			_, _ = w.Write([]byte(`{"success":true,"data":{"id":3,"code":"101","name":"Cash"}}`))
			return
		}
		body, ok := bodies[r.URL.Query().Get("yearMonth")]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"success":false,"data":null,"message":"no ledger"}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return api.New(srv.URL, 2*time.Second).WithTokens(api.NewSessionTokenSource(nil, "token", "", nil))
}

func TestLedgerService_ViewOverAPI_EmptyMonths(t *testing.T) {
	client := apiLedger(t, map[string]string{
		"2025-01": `{"success":true,"data":{"accountName":"Cash","entries":[
			{"date":"2025-01-05","description":"salary","debit":1000,"credit":0,"balance":1000}]}}`,
		"2025-02": `{"success":true,"data":null}`,
		"2025-03": `{"success":false,"data":null,"message":"no data for month"}`,
	})
	svc := NewLedgerService(nil, 2, nil)
	jan, apr := core.NewYearMonth(2025, 1), core.NewYearMonth(2025, 4)

	rng, err := svc.AccountLedgerRange(context.Background(), client, testRef, jan, apr)
	if err != nil {
		t.Fatalf("AccountLedgerRange: %v", err)
	}
	if rng.EmptyMonths != 3 || len(rng.Entries) != 1 || rng.AccountName != "Cash" {
		t.Fatalf("range = %+v", rng)
	}

	lv, err := svc.View(context.Background(), client, testRef, jan, apr, core.DefaultViewQuery())
	if err != nil {
		t.Fatalf("View: %v", err)
	}
	if st := lv.View.Stats; st.TotalIncome != 1000 || st.Count != 1 || st.Anomalies != 0 {
		t.Errorf("stats = %+v", st)
	}
}

func TestLedgerService_ViewOverAPI_CountsMalformedAmounts(t *testing.T) {
	client := apiLedger(t, map[string]string{
		"2025-01": `{"success":true,"data":{"accountName":"Cash","entries":[
			{"date":"2025-01-05","description":"salary","debit":1000,"credit":0,"balance":1000},
			{"date":"2025-01-06","description":"broken","balance":1000}]}}`,
		"2025-02": `{"success":true,"data":{"accountName":"Cash","entries":[
			{"date":"2025-02-01","description":"rent","debit":0,"credit":300,"balance":700},
			{"date":"2025-02-02","description":"typo","debit":"abc","credit":"abc","balance":700}]}}`,
	})
	var buf bytes.Buffer
	logger := applog.New(applog.Config{Level: slog.LevelDebug, Component: applog.ComponentApp, Output: &buf})
	svc := NewLedgerService(nil, 2, logger)
	jan, feb := core.NewYearMonth(2025, 1), core.NewYearMonth(2025, 2)

	lv, err := svc.View(context.Background(), client, testRef, jan, feb, core.DefaultViewQuery())
	if err != nil {
		t.Fatalf("View: %v", err)
	}
	st := lv.View.Stats
	if st.TotalIncome != 1000 || st.TotalExpense != 300 || st.Balance != 700 || st.Count != 4 || st.Anomalies != 2 {
		t.Errorf("stats = %+v", st)
	}

	out := buf.String()
	if !strings.Contains(out, "level=WARN") || !strings.Contains(out, "anomalies=2") ||
		!strings.Contains(out, "book_id=7") {
		t.Errorf("expected anomaly warning, got:\n%s", out)
	}
}

func TestLedgerService_ViewOverAPI_ServerErrorFailsRange(t *testing.T) {
	client := apiLedger(t, map[string]string{
		"2025-01": `{"success":true,"data":{"accountName":"Cash","entries":[]}}`,
	})
	srvErr := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"success":false,"message":"boom"}`))
	}))
	t.Cleanup(srvErr.Close)
	broken := api.New(srvErr.URL, 2*time.Second).WithTokens(api.NewSessionTokenSource(nil, "token", "", nil))

	svc := NewLedgerService(nil, 1, nil)
	jan := core.NewYearMonth(2025, 1)
	if _, err := svc.View(context.Background(), client, testRef, jan, jan, core.DefaultViewQuery()); err != nil {
		t.Fatalf("account name alone should be a valid month: %v", err)
	}
	if _, err := svc.View(context.Background(), broken, testRef, jan, jan, core.DefaultViewQuery()); err == nil {
		t.Fatal("expected a 500 to fail the range")
	}
}

func TestLedgerService_ViewOverAPI_LooksUpAccountName(t *testing.T) {
	client := apiLedger(t, map[string]string{
		"2025-01": `{"success":true,"data":{"entries":[
			{"date":"2025-01-05","description":"salary","debit":1000,"credit":0,"balance":1000}]}}`,
	})
	svc := NewLedgerService(nil, 1, nil)
	jan := core.NewYearMonth(2025, 1)

	lv, err := svc.View(context.Background(), client, testRef, jan, jan, core.DefaultViewQuery())
	if err != nil {
		t.Fatalf("View: %v", err)
	}
	if lv.AccountName != "Cash" || lv.View.Stats.TotalIncome != 1000 {
		t.Errorf("view = %+v", lv)
	}
}
