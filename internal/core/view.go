package core

import (
	"errors"
	"slices"
	"strings"
	"time"
)

const (
	FilterAll     FilterMode = "ALL"
	FilterIncome  FilterMode = "INCOME"
	FilterExpense FilterMode = "EXPENSE"

	SortLatest SortOrder = "latest"
	SortOldest SortOrder = "oldest"
)

type (
	FilterMode string
	SortOrder  string

	// ViewQuery selects which transactions are shown and in which order.
	ViewQuery struct {
		Filter FilterMode
		Sort   SortOrder
	}

	// TransactionView is the filtered, sorted list together with the
	// statistics of exactly that list.
	TransactionView struct {
		Query        ViewQuery
		Transactions []Transaction
		Stats        AggregateStats
	}
)

var (
	ErrInvalidFilter = errors.New("invalid filter, expected ALL, INCOME or EXPENSE")
	ErrInvalidSort   = errors.New("invalid sort, expected latest or oldest")
)

// DefaultViewQuery shows everything, newest first.
func DefaultViewQuery() ViewQuery {
	return ViewQuery{Filter: FilterAll, Sort: SortLatest}
}

// ParseFilterMode accepts the mode case-insensitively; empty means ALL.
func ParseFilterMode(s string) (FilterMode, error) {
	switch FilterMode(strings.ToUpper(strings.TrimSpace(s))) {
	case "", FilterAll:
		return FilterAll, nil
	case FilterIncome:
		return FilterIncome, nil
	case FilterExpense:
		return FilterExpense, nil
	}
	return "", ErrInvalidFilter
}

// ParseSortOrder accepts the order case-insensitively; empty means latest.
func ParseSortOrder(s string) (SortOrder, error) {
	switch SortOrder(strings.ToLower(strings.TrimSpace(s))) {
	case "", SortLatest:
		return SortLatest, nil
	case SortOldest:
		return SortOldest, nil
	}
	return "", ErrInvalidSort
}

// Filter returns a new slice holding the transactions matching mode.
func Filter(txs []Transaction, mode FilterMode) []Transaction {
	out := make([]Transaction, 0, len(txs))
	for _, t := range txs {
		if mode == FilterAll || mode == "" || string(t.Type) == string(mode) {
			out = append(out, t)
		}
	}
	return out
}

// Sort returns a sorted copy. Equal dates keep their input order.
func Sort(txs []Transaction, order SortOrder) []Transaction {
	type keyed struct {
		tx  Transaction
		key time.Time
	}
	items := make([]keyed, len(txs))
	for i, t := range txs {
		// unparseable dates sort as the zero time
		d, _ := ParseDate(t.Date)
		items[i] = keyed{tx: t, key: d}
	}
	slices.SortStableFunc(items, func(a, b keyed) int {
		c := a.key.Compare(b.key)
		if order == SortOldest {
			return c
		}
		return -c
	})
	out := make([]Transaction, len(items))
	for i, it := range items {
		out[i] = it.tx
	}
	return out
}

// BuildView runs the whole pipeline: normalize, filter, sort, aggregate.
// Statistics describe the filtered set, i.e. what the user is looking at.
func BuildView(entries []LedgerEntry, q ViewQuery) TransactionView {
	if q.Filter == "" {
		q.Filter = FilterAll
	}
	if q.Sort == "" {
		q.Sort = SortLatest
	}
	filtered := Filter(Normalize(entries), q.Filter)
	return TransactionView{
		Query:        q,
		Transactions: Sort(filtered, q.Sort),
		Stats:        Aggregate(filtered),
	}
}
