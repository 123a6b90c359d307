package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"ledgerbook/internal/api"
	"ledgerbook/internal/cache"
	"ledgerbook/internal/core"
)

// fakeLedger answers AccountLedger from a per-month table. Earlier months
// are delayed longer so responses arrive in reverse order.
type fakeLedger struct {
	mu       sync.Mutex
	months   map[core.YearMonth]api.AccountLedger
	failing  map[core.YearMonth]error
	delay    func(ym core.YearMonth) time.Duration
	calls    int
	inFlight atomic.Int32
	maxSeen  atomic.Int32
}

func (f *fakeLedger) AccountLedger(ctx context.Context, bookID, accountID int64, ym core.YearMonth) (api.AccountLedger, error) {
	n := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		m := f.maxSeen.Load()
		if n <= m || f.maxSeen.CompareAndSwap(m, n) {
			break
		}
	}

	f.mu.Lock()
	f.calls++
	f.mu.Unlock()

	if f.delay != nil {
		select {
		case <-time.After(f.delay(ym)):
		case <-ctx.Done():
			return api.AccountLedger{}, ctx.Err()
		}
	}
	if err, ok := f.failing[ym]; ok {
		return api.AccountLedger{}, err
	}
	l, ok := f.months[ym]
	if !ok {
		return api.AccountLedger{}, &api.Error{Status: http.StatusNotFound, Message: "no ledger"}
	}
	return l, nil
}

func (f *fakeLedger) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func ledgerFor(ym core.YearMonth, descs ...string) api.AccountLedger {
	l := api.AccountLedger{AccountName: "Cash"}
	for i, d := range descs {
		l.Entries = append(l.Entries, api.LedgerEntry{
			Date:        fmt.Sprintf("%s-%02d", ym, i+1),
			Description: d,
			Debit:       100,
		})
	}
	return l
}

var testRef = AccountRef{UserID: 1, BookID: 7, AccountID: 3}

func TestAccountLedgerRange_MonthOrderDespiteArrivalOrder(t *testing.T) {
	jan, feb, mar := core.NewYearMonth(2025, 1), core.NewYearMonth(2025, 2), core.NewYearMonth(2025, 3)
	src := &fakeLedger{
		months: map[core.YearMonth]api.AccountLedger{
			jan: ledgerFor(jan, "jan-a", "jan-b"),
			feb: ledgerFor(feb, "feb-a"),
			mar: ledgerFor(mar, "mar-a"),
		},
		delay: func(ym core.YearMonth) time.Duration {
			return time.Duration(4-ym.Month) * 20 * time.Millisecond
		},
	}
	svc := NewLedgerService(nil, 3, nil)

	got, err := svc.AccountLedgerRange(context.Background(), src, testRef, jan, mar)
	if err != nil {
		t.Fatalf("AccountLedgerRange: %v", err)
	}
	want := []string{"jan-a", "jan-b", "feb-a", "mar-a"}
	if len(got.Entries) != len(want) {
		t.Fatalf("entries = %+v", got.Entries)
	}
	for i, w := range want {
		if got.Entries[i].Description != w {
			t.Errorf("entry %d = %q, want %q", i, got.Entries[i].Description, w)
		}
	}
	if got.AccountName != "Cash" || got.EmptyMonths != 0 {
		t.Errorf("range = %+v", got)
	}
}

func TestAccountLedgerRange_NotFoundMonthIsEmpty(t *testing.T) {
	jan, mar := core.NewYearMonth(2025, 1), core.NewYearMonth(2025, 3)
	src := &fakeLedger{months: map[core.YearMonth]api.AccountLedger{
		jan: ledgerFor(jan, "a"),
		mar: ledgerFor(mar, "c"),
	}}
	svc := NewLedgerService(nil, 2, nil)

	got, err := svc.AccountLedgerRange(context.Background(), src, testRef, jan, mar)
	if err != nil {
		t.Fatalf("AccountLedgerRange: %v", err)
	}
	if len(got.Entries) != 2 || got.EmptyMonths != 1 {
		t.Errorf("entries=%d empty=%d, want 2 and 1", len(got.Entries), got.EmptyMonths)
	}
}

func TestAccountLedgerRange_FailureFailsRange(t *testing.T) {
	jan, feb := core.NewYearMonth(2025, 1), core.NewYearMonth(2025, 2)
	boom := &api.Error{Status: http.StatusInternalServerError, Message: "boom"}
	src := &fakeLedger{
		months:  map[core.YearMonth]api.AccountLedger{jan: ledgerFor(jan, "a")},
		failing: map[core.YearMonth]error{feb: boom},
	}
	svc := NewLedgerService(nil, 2, nil)

	_, err := svc.AccountLedgerRange(context.Background(), src, testRef, jan, feb)
	var apiErr *api.Error
	if !errors.As(err, &apiErr) || apiErr.Status != http.StatusInternalServerError {
		t.Fatalf("err = %v, want wrapped 500", err)
	}
}

func TestAccountLedgerRange_InvalidRange(t *testing.T) {
	svc := NewLedgerService(nil, 2, nil)
	_, err := svc.AccountLedgerRange(context.Background(), &fakeLedger{}, testRef,
		core.NewYearMonth(2025, 5), core.NewYearMonth(2025, 1))
	if !errors.Is(err, ErrInvalidRange) {
		t.Errorf("inverted range err = %v", err)
	}
	_, err = svc.AccountLedgerRange(context.Background(), &fakeLedger{}, testRef,
		core.NewYearMonth(2010, 1), core.NewYearMonth(2025, 1))
	if !errors.Is(err, ErrInvalidRange) {
		t.Errorf("oversized range err = %v", err)
	}
}

func TestAccountLedgerRange_ConcurrencyBound(t *testing.T) {
	src := &fakeLedger{
		months: map[core.YearMonth]api.AccountLedger{},
		delay:  func(core.YearMonth) time.Duration { return 10 * time.Millisecond },
	}
	svc := NewLedgerService(nil, 2, nil)

	_, err := svc.AccountLedgerRange(context.Background(), src, testRef,
		core.NewYearMonth(2024, 1), core.NewYearMonth(2024, 12))
	if err != nil {
		t.Fatalf("AccountLedgerRange: %v", err)
	}
	if got := src.maxSeen.Load(); got > 2 {
		t.Errorf("max in-flight = %d, want <= 2", got)
	}
	if src.callCount() != 12 {
		t.Errorf("calls = %d, want 12", src.callCount())
	}
}

func TestAccountLedgerRange_CacheAndInvalidate(t *testing.T) {
	jan := core.NewYearMonth(2025, 1)
	src := &fakeLedger{months: map[core.YearMonth]api.AccountLedger{jan: ledgerFor(jan, "a")}}
	c := cache.NewLRUCache[MonthLedger](100, time.Minute)
	svc := NewLedgerService(c, 2, nil)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if _, err := svc.AccountLedgerRange(ctx, src, testRef, jan, jan); err != nil {
			t.Fatal(err)
		}
	}
	if src.callCount() != 1 {
		t.Errorf("calls = %d, want 1 (second served from cache)", src.callCount())
	}

	other := testRef
	other.UserID = 2
	if _, err := svc.AccountLedgerRange(ctx, src, other, jan, jan); err != nil {
		t.Fatal(err)
	}
	if src.callCount() != 2 {
		t.Error("another user must not share cache entries")
	}

	svc.InvalidateBook(ctx, testRef.BookID)
	if c.Size() != 0 {
		t.Errorf("cache size after invalidate = %d", c.Size())
	}
	if _, err := svc.AccountLedgerRange(ctx, src, testRef, jan, jan); err != nil {
		t.Fatal(err)
	}
	if src.callCount() != 3 {
		t.Errorf("calls = %d, want refetch after invalidation", src.callCount())
	}
}

func TestLedgerService_View(t *testing.T) {
	jan := core.NewYearMonth(2025, 1)
	src := &fakeLedger{months: map[core.YearMonth]api.AccountLedger{jan: {
		AccountName: "Cash",
		Entries: []api.LedgerEntry{
			{Date: "2025-01-01", Debit: 1000},
			{Date: "2025-01-02", Credit: 300},
		},
	}}}
	svc := NewLedgerService(nil, 1, nil)

	lv, err := svc.View(context.Background(), src, testRef, jan, jan, core.DefaultViewQuery())
	if err != nil {
		t.Fatalf("View: %v", err)
	}
	st := lv.View.Stats
	if st.TotalIncome != 1000 || st.TotalExpense != 300 || st.Balance != 700 || st.Count != 2 {
		t.Errorf("stats = %+v", st)
	}
	if lv.View.Transactions[0].Date != "2025-01-02" {
		t.Errorf("latest first expected, got %+v", lv.View.Transactions)
	}
	if lv.AccountName != "Cash" || lv.BookID != testRef.BookID {
		t.Errorf("view = %+v", lv)
	}
}

func TestLedgerService_DefaultRange(t *testing.T) {
	svc := NewLedgerService(nil, 1, nil)
	svc.now = func() time.Time { return time.Date(2025, 3, 15, 0, 0, 0, 0, time.UTC) }

	from, to := svc.DefaultRange()
	if from != core.NewYearMonth(2024, 3) || to != core.NewYearMonth(2025, 3) {
		t.Errorf("DefaultRange = %s..%s", from, to)
	}
	if n := len(core.MonthsBetween(from, to)); n != DefaultRangeMonths {
		t.Errorf("months = %d", n)
	}
}
