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

// DefaultRangeMonths is how many months the ledger shows when no range is
// requested: the current month and the twelve before it.
const DefaultRangeMonths = 13

// MaxRangeMonths caps a single range request.
const MaxRangeMonths = 60

var ErrInvalidRange = errors.New("invalid month range")

// CheckRange rejects inverted ranges and ranges longer than MaxRangeMonths
// without materialising the months.
func CheckRange(from, to core.YearMonth) error {
	if n := core.MonthCount(from, to); n < 1 || n > MaxRangeMonths {
		return fmt.Errorf("%w: %s..%s", ErrInvalidRange, from, to)
	}
	return nil
}

// LedgerSource is the part of the API client the ledger needs.
type LedgerSource interface {
	AccountLedger(ctx context.Context, bookID, accountID int64, ym core.YearMonth) (api.AccountLedger, error)
}

// AccountLookup is implemented by sources that can name an account on its
// own, for ranges whose ledgers came without an account name.
type AccountLookup interface {
	Account(ctx context.Context, id int64) (api.Category, error)
}

// AccountRef names one account of a book as seen by one user. Cache
// entries are scoped by user so a book id never leaks another user's data.
type AccountRef struct {
	UserID    int64
	BookID    int64
	AccountID int64
}

// MonthLedger is the cached result for one (book, account, month).
type MonthLedger struct {
	AccountName string
	Entries     []core.LedgerEntry
}

// LedgerRange is a multi-month ledger in month order.
type LedgerRange struct {
	AccountName string
	From, To    core.YearMonth
	Entries     []core.LedgerEntry
	// EmptyMonths counts months the backend had no ledger for.
	EmptyMonths int
}

// LedgerView is a range rendered through a view query.
type LedgerView struct {
	BookID      int64
	AccountID   int64
	AccountName string
	From, To    core.YearMonth
	View        core.TransactionView
}

// LedgerService assembles account ledgers over month ranges.
type LedgerService struct {
	cache       cache.Cache[MonthLedger]
	concurrency int
	logger      *applog.Logger
	now         func() time.Time
}

// NewLedgerService creates the service. c may be nil to disable caching;
// concurrency bounds the month fetches of one range.
func NewLedgerService(c cache.Cache[MonthLedger], concurrency int, logger *applog.Logger) *LedgerService {
	if concurrency < 1 {
		concurrency = 1
	}
	if logger == nil {
		logger = applog.Discard()
	}
	return &LedgerService{
		cache:       c,
		concurrency: concurrency,
		logger:      logger.WithComponent(applog.ComponentLedger),
		now:         time.Now,
	}
}

// DefaultRange returns the trailing months ending at the current month.
func (s *LedgerService) DefaultRange() (from, to core.YearMonth) {
	return core.TrailingMonths(core.YearMonthOf(s.now()), DefaultRangeMonths)
}

// AccountLedgerRange fetches every month of from..to concurrently and joins
// the entries in month order, whatever order the responses arrive in. A
// month the backend reports as not found or without data counts as empty;
// any other failure fails the whole range.
func (s *LedgerService) AccountLedgerRange(ctx context.Context, src LedgerSource, ref AccountRef, from, to core.YearMonth) (LedgerRange, error) {
	if err := CheckRange(from, to); err != nil {
		return LedgerRange{}, err
	}
	months := core.MonthsBetween(from, to)

	results := make([]MonthLedger, len(months))
	found := make([]bool, len(months))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for i, ym := range months {
		g.Go(func() error {
			ml, ok, err := s.month(gctx, src, ref, ym)
			if err != nil {
				return err
			}
			results[i], found[i] = ml, ok
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return LedgerRange{}, err
	}

	out := LedgerRange{From: from, To: to}
	for i, ml := range results {
		if !found[i] {
			out.EmptyMonths++
		}
		if out.AccountName == "" {
			out.AccountName = ml.AccountName
		}
		out.Entries = append(out.Entries, ml.Entries...)
	}

	s.logger.DebugContext(ctx, "Ledger range assembled",
		applog.NewFields().WithLedger(ref.BookID, ref.AccountID).WithOperation(applog.OpFetch).ToSlice()...)
	return out, nil
}

func (s *LedgerService) month(ctx context.Context, src LedgerSource, ref AccountRef, ym core.YearMonth) (MonthLedger, bool, error) {
	key := monthKey(ref, ym)
	if s.cache != nil {
		if ml, ok := s.cache.Get(key); ok {
			return ml, ml.AccountName != "" || len(ml.Entries) > 0, nil
		}
	}

	ledger, err := src.AccountLedger(ctx, ref.BookID, ref.AccountID, ym)
	if errors.Is(err, api.ErrNotFound) || errors.Is(err, api.ErrNoData) {
		if s.cache != nil {
			s.cache.Set(key, MonthLedger{})
		}
		return MonthLedger{}, false, nil
	}
	if err != nil {
		return MonthLedger{}, false, fmt.Errorf("ledger %s: %w", ym, err)
	}

	ml := MonthLedger{AccountName: ledger.AccountName, Entries: ledger.CoreEntries()}
	if s.cache != nil {
		s.cache.Set(key, ml)
	}
	return ml, true, nil
}

// View builds the transaction view of an account over from..to.
func (s *LedgerService) View(ctx context.Context, src LedgerSource, ref AccountRef, from, to core.YearMonth, q core.ViewQuery) (LedgerView, error) {
	rng, err := s.AccountLedgerRange(ctx, src, ref, from, to)
	if err != nil {
		return LedgerView{}, err
	}
	view := core.BuildView(rng.Entries, q)
	if view.Stats.Anomalies > 0 {
		s.logger.WarnContext(ctx, "Anomalous amounts excluded from totals",
			applog.FieldBookID, ref.BookID,
			applog.FieldAccountID, ref.AccountID,
			applog.FieldAnomalies, view.Stats.Anomalies)
	}
	name := rng.AccountName
	if name == "" {
		name = s.accountName(ctx, src, ref)
	}
	return LedgerView{
		BookID:      ref.BookID,
		AccountID:   ref.AccountID,
		AccountName: name,
		From:        from,
		To:          to,
		View:        view,
	}, nil
}

func (s *LedgerService) accountName(ctx context.Context, src LedgerSource, ref AccountRef) string {
	lookup, ok := src.(AccountLookup)
	if !ok {
		return ""
	}
	acc, err := lookup.Account(ctx, ref.AccountID)
	if err != nil {
		s.logger.DebugContext(ctx, "Account name lookup failed",
			applog.FieldBookID, ref.BookID, applog.FieldAccountID, ref.AccountID, applog.FieldError, err)
		return ""
	}
	return acc.Name
}

// InvalidateBook drops every cached month of the book.
func (s *LedgerService) InvalidateBook(ctx context.Context, bookID int64) {
	if s.cache == nil {
		return
	}
	n := s.cache.DeletePrefix(bookPrefix(bookID))
	s.logger.DebugContext(ctx, "Ledger cache invalidated", applog.FieldBookID, bookID, "entries", n)
}

func bookPrefix(bookID int64) string {
	return fmt.Sprintf("b%d:", bookID)
}

func monthKey(ref AccountRef, ym core.YearMonth) string {
	return fmt.Sprintf("b%d:u%d:a%d:%s", ref.BookID, ref.UserID, ref.AccountID, ym)
}
