package core

// Normalize turns account ledger entries into transactions, one per entry,
// in source order. A positive debit means money came into the account and is
// shown as income; anything else is shown as an expense of the credit side.
// Entries with both sides zero (opening/closing markers) become zero-amount
// expenses.
func Normalize(entries []LedgerEntry) []Transaction {
	out := make([]Transaction, len(entries))
	for i, e := range entries {
		t := Transaction{
			ID:      i,
			Date:    e.Date,
			Type:    Expense,
			Amount:  e.Credit,
			Memo:    e.Description,
			Balance: e.Balance,
		}
		if e.Debit > 0 {
			t.Type = Income
			t.Amount = e.Debit
		}
		out[i] = t
	}
	return out
}
