package core

import (
	"errors"
	"math"
	"strings"
	"time"
)

const (
	Income  TxType = "INCOME"
	Expense TxType = "EXPENSE"
)

const (
	Personal BookType = "PERSONAL"
	Business BookType = "BUSINESS"
)

type (
	TxType   string
	BookType string

	// LedgerEntry is one debit/credit line of an account ledger as returned
	// by the accounting backend.
	LedgerEntry struct {
		Date        string
		Description string
		Debit       float64
		Credit      float64
		Balance     float64
	}

	// Transaction is the display form of a ledger entry. ID is the position
	// of the entry in the fetched sequence, not a backend identifier.
	Transaction struct {
		ID      int
		Date    string
		Type    TxType
		Amount  float64
		Memo    string
		Balance float64
	}

	Book struct {
		ID       int64
		Name     string
		BookType BookType
	}

	// AccountBalance is the running balance of one account of a book.
	AccountBalance struct {
		AccountID   int64
		AccountCode string
		AccountName string
		Balance     float64
	}
)

var (
	ErrInvalidDate      = errors.New("invalid date")
	ErrNegativeAmount   = errors.New("negative amount")
	ErrInvalidAmount    = errors.New("invalid amount")
	ErrInvalidTxType    = errors.New("invalid transaction type")
	ErrInvalidBookType  = errors.New("invalid book type")
	ErrEmptyBookName    = errors.New("empty book name")
	ErrInvalidYearMonth = errors.New("invalid year-month, expected YYYY-MM")
)

var dateLayouts = []string{
	"2006-01-02",
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

// ParseDate accepts the date shapes the backend is known to emit.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, ErrInvalidDate
}

// Validate checks the shape of an entry at the network edge. NaN and
// infinite amounts pass here on purpose: the aggregator counts them.
func (e LedgerEntry) Validate() error {
	if _, err := ParseDate(e.Date); err != nil {
		return err
	}
	if e.Debit < 0 || e.Credit < 0 {
		return ErrNegativeAmount
	}
	return nil
}

func (t TxType) Valid() bool {
	return t == Income || t == Expense
}

func (b BookType) Valid() bool {
	return b == Personal || b == Business
}

func (b Book) Validate() error {
	if strings.TrimSpace(b.Name) == "" {
		return ErrEmptyBookName
	}
	if len(b.Name) > 100 {
		return errors.New("book name too long (max 100 characters)")
	}
	if !b.BookType.Valid() {
		return ErrInvalidBookType
	}
	return nil
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
