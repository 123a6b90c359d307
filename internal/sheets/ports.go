package sheets

import (
	"context"
	"errors"
	"fmt"

	"ledgerbook/internal/core"
)

var ErrEmptyExport = errors.New("export has no account")

// Export is one ledger view to be written out.
type Export struct {
	JobID       int64
	BookID      int64
	AccountName string
	From        core.YearMonth
	To          core.YearMonth
	Query       core.ViewQuery
	Rows        []core.Transaction
	Stats       core.AggregateStats
}

func (e Export) Validate() error {
	if e.AccountName == "" {
		return ErrEmptyExport
	}
	return nil
}

// Ports for outbound adapters.
type (
	// ExportWriter writes an export block and returns a reference to where
	// it landed.
	ExportWriter interface {
		WriteExport(ctx context.Context, e Export) (ref string, err error)
	}
)

// Header is the column layout of every export block.
var Header = []any{"Date", "Type", "Amount", "Memo", "Balance"}

// Values lays an export out as a block of rows: a title row, the header,
// one row per transaction and a closing totals row.
func Values(e Export) [][]any {
	out := make([][]any, 0, len(e.Rows)+3)
	out = append(out, []any{
		fmt.Sprintf("Export #%d", e.JobID),
		e.AccountName,
		e.From.String() + " ~ " + e.To.String(),
		string(e.Query.Filter),
		string(e.Query.Sort),
	})
	out = append(out, Header)
	for _, t := range e.Rows {
		out = append(out, []any{t.Date, string(t.Type), t.Amount, t.Memo, t.Balance})
	}
	out = append(out, []any{
		"Total",
		fmt.Sprintf("%d rows", e.Stats.Count),
		e.Stats.Balance,
		fmt.Sprintf("income %s / expense %s", core.FormatWon(e.Stats.TotalIncome), core.FormatWon(e.Stats.TotalExpense)),
		"",
	})
	return out
}
