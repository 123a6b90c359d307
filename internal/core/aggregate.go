package core

// AggregateStats summarises a set of transactions.
type AggregateStats struct {
	TotalIncome  float64
	TotalExpense float64
	Balance      float64
	Count        int
	// Anomalies counts transactions whose amount was NaN or infinite and
	// therefore contributed nothing to the totals.
	Anomalies int
}

// Aggregate sums income and expense over txs. Non-finite amounts are
// skipped and counted instead of poisoning the totals.
func Aggregate(txs []Transaction) AggregateStats {
	var s AggregateStats
	for _, t := range txs {
		if !finite(t.Amount) {
			s.Anomalies++
			continue
		}
		switch t.Type {
		case Income:
			s.TotalIncome += t.Amount
		case Expense:
			s.TotalExpense += t.Amount
		}
	}
	s.Balance = s.TotalIncome - s.TotalExpense
	s.Count = len(txs)
	return s
}
