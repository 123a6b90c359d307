package core

// CategoryStatistic is the amount booked on one category in a period.
// Percentage is set only when the upstream source computed it.
type CategoryStatistic struct {
	CategoryID   int64
	CategoryName string
	Amount       float64
	Percentage   *float64
}

// CategoryBreakdown is a category list for one period and direction.
// Total is nil when the source did not report one.
type CategoryBreakdown struct {
	YearMonth  YearMonth
	Type       TxType
	Total      *float64
	Categories []CategoryStatistic
}

// ChartSlice is one chart-ready category record. Percent is in 0..100.
type ChartSlice struct {
	Name    string
	Value   float64
	Percent float64
}

// Fraction returns Percent scaled to 0..1.
func (c ChartSlice) Fraction() float64 {
	return c.Percent / 100
}

// MonthlySummary is the income/expense total of a single month.
type MonthlySummary struct {
	YearMonth YearMonth
	Income    float64
	Expense   float64
	Balance   float64
}

type (
	IncomeStatement struct {
		TotalIncome  float64
		TotalExpense float64
		NetProfit    float64
		ProfitRate   float64
	}

	BalanceSheet struct {
		TotalAssets      float64
		TotalLiabilities float64
		TotalEquity      float64
	}

	FinancialStatement struct {
		YearMonth       YearMonth
		IncomeStatement IncomeStatement
		BalanceSheet    BalanceSheet
	}
)

// BuildCategoryChart converts a breakdown into chart slices. A percentage
// supplied by the source alongside its own total is used as is, so client
// and server never disagree on rounding. Otherwise the percentage is derived
// from the total. A zero total yields 0% everywhere.
func BuildCategoryChart(b CategoryBreakdown) []ChartSlice {
	total, fromSource := categoryTotal(b)
	out := make([]ChartSlice, 0, len(b.Categories))
	for _, c := range b.Categories {
		value := c.Amount
		if !finite(value) {
			value = 0
		}
		s := ChartSlice{Name: c.CategoryName, Value: value}
		switch {
		case total == 0:
		case fromSource && c.Percentage != nil:
			s.Percent = *c.Percentage
		default:
			s.Percent = value / total * 100
		}
		if !finite(s.Percent) {
			s.Percent = 0
		}
		out = append(out, s)
	}
	return out
}

func categoryTotal(b CategoryBreakdown) (float64, bool) {
	if b.Total != nil {
		if !finite(*b.Total) {
			return 0, true
		}
		return *b.Total, true
	}
	var sum float64
	for _, c := range b.Categories {
		if finite(c.Amount) {
			sum += c.Amount
		}
	}
	return sum, false
}

// MonthlySeries fills the months from..to with the given summaries; missing
// months are present with zero values so charts keep a continuous axis.
func MonthlySeries(summaries []MonthlySummary, from, to YearMonth) []MonthlySummary {
	byMonth := make(map[YearMonth]MonthlySummary, len(summaries))
	for _, s := range summaries {
		byMonth[s.YearMonth] = s
	}
	months := MonthsBetween(from, to)
	out := make([]MonthlySummary, 0, len(months))
	for _, ym := range months {
		s, ok := byMonth[ym]
		if !ok {
			s = MonthlySummary{YearMonth: ym}
		}
		out = append(out, s)
	}
	return out
}
