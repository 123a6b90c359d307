package api

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"ledgerbook/internal/core"
)

// User is the signed-in account as the API describes it.
type User struct {
	ID    int64  `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
}

// LoginRequest is the body of POST /auth/login.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginResponse carries the token pair and the user.
type LoginResponse struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	User         User   `json:"user"`
}

// SignupRequest is the body of POST /auth/signup.
type SignupRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

// RefreshResponse carries a new token pair.
type RefreshResponse struct {
	AccessToken string `json:"accessToken"`
}

// Book is a ledger book owned by the user.
type Book struct {
	ID        int64         `json:"id"`
	Name      string        `json:"name"`
	BookType  core.BookType `json:"bookType"`
	CreatedAt string        `json:"createdAt"`
	UpdatedAt string        `json:"updatedAt"`
}

// Core returns the domain view of the book.
func (b Book) Core() core.Book {
	return core.Book{ID: b.ID, Name: b.Name, BookType: b.BookType}
}

// BookDetail is a book with the balances of its accounts.
type BookDetail struct {
	Book
	Accounts []AccountBalance `json:"accounts"`
}

// CreateBookRequest creates a book.
type CreateBookRequest struct {
	BookType core.BookType `json:"bookType"`
	Name     string        `json:"name"`
}

// UpdateBookRequest renames a book.
type UpdateBookRequest struct {
	Name string `json:"name"`
}

// AccountBalance is the current balance of one account.
type AccountBalance struct {
	AccountID   int64   `json:"accountId"`
	AccountCode string  `json:"accountCode,omitempty"`
	AccountName string  `json:"accountName"`
	Balance     float64 `json:"balance"`
}

func (a AccountBalance) Core() core.AccountBalance {
	return core.AccountBalance{
		AccountID:   a.AccountID,
		AccountCode: a.AccountCode,
		AccountName: a.AccountName,
		Balance:     a.Balance,
	}
}

// Transaction is a booked income or expense.
type Transaction struct {
	ID                int64       `json:"id"`
	BookID            int64       `json:"bookId"`
	Date              string      `json:"date"`
	Type              core.TxType `json:"type"`
	Amount            float64     `json:"amount"`
	CategoryID        int64       `json:"categoryId"`
	CategoryName      string      `json:"categoryName"`
	PaymentMethodID   int64       `json:"paymentMethodId"`
	PaymentMethodName string      `json:"paymentMethodName"`
	Memo              string      `json:"memo,omitempty"`
	CreatedAt         string      `json:"createdAt"`
}

// CreateTransactionRequest books a new transaction.
type CreateTransactionRequest struct {
	BookID          int64       `json:"bookId"`
	Date            string      `json:"date"`
	Type            core.TxType `json:"type"`
	Amount          float64     `json:"amount"`
	CategoryID      int64       `json:"categoryId"`
	PaymentMethodID int64       `json:"paymentMethodId"`
	Memo            string      `json:"memo,omitempty"`
}

// Validate checks a transaction before it is sent.
func (r CreateTransactionRequest) Validate() error {
	if r.BookID <= 0 {
		return fmt.Errorf("book id is required")
	}
	if _, err := core.ParseDate(r.Date); err != nil {
		return err
	}
	if !r.Type.Valid() {
		return core.ErrInvalidTxType
	}
	if r.Amount <= 0 {
		return core.ErrInvalidAmount
	}
	if r.CategoryID <= 0 || r.PaymentMethodID <= 0 {
		return fmt.Errorf("category and payment method are required")
	}
	if len(r.Memo) > 200 {
		return fmt.Errorf("memo too long (max 200 characters)")
	}
	return nil
}

// UpdateTransactionRequest changes only the fields that are set.
type UpdateTransactionRequest struct {
	Date            *string  `json:"date,omitempty"`
	Amount          *float64 `json:"amount,omitempty"`
	CategoryID      *int64   `json:"categoryId,omitempty"`
	PaymentMethodID *int64   `json:"paymentMethodId,omitempty"`
	Memo            *string  `json:"memo,omitempty"`
}

// Validate checks the fields that are set; at least one must be.
func (r UpdateTransactionRequest) Validate() error {
	if r.Date == nil && r.Amount == nil && r.CategoryID == nil && r.PaymentMethodID == nil && r.Memo == nil {
		return fmt.Errorf("nothing to update")
	}
	if r.Date != nil {
		if _, err := core.ParseDate(*r.Date); err != nil {
			return err
		}
	}
	if r.Amount != nil && *r.Amount <= 0 {
		return core.ErrInvalidAmount
	}
	if (r.CategoryID != nil && *r.CategoryID <= 0) || (r.PaymentMethodID != nil && *r.PaymentMethodID <= 0) {
		return fmt.Errorf("category and payment method must be valid ids")
	}
	if r.Memo != nil && len(*r.Memo) > 200 {
		return fmt.Errorf("memo too long (max 200 characters)")
	}
	return nil
}

// TransactionListParams filters GET /transactions. Zero fields are left out.
type TransactionListParams struct {
	BookID     int64
	Type       core.TxType
	StartDate  string
	EndDate    string
	CategoryID int64
	Page       int
	Size       int
}

// Category is an income/expense category, payment method or account.
type Category struct {
	ID   int64  `json:"id"`
	Code string `json:"code"`
	Name string `json:"name"`
	Type string `json:"type,omitempty"`
}

// Amount is a ledger amount as the API sends it. Numbers and numeric
// strings decode to their value; null, missing or non-numeric values decode
// to NaN so the aggregator counts them as anomalies instead of reading 0.
type Amount float64

var missingAmount = Amount(math.NaN())

func (a *Amount) UnmarshalJSON(b []byte) error {
	raw := strings.TrimSpace(string(b))
	if raw == "null" {
		*a = missingAmount
		return nil
	}
	if unq, err := strconv.Unquote(raw); err == nil {
		raw = strings.TrimSpace(unq)
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		*a = missingAmount
		return nil
	}
	*a = Amount(f)
	return nil
}

// MarshalJSON writes non-finite amounts as null.
func (a Amount) MarshalJSON() ([]byte, error) {
	f := float64(a)
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return []byte("null"), nil
	}
	return json.Marshal(f)
}

// LedgerEntry is one line of an account ledger as the API sends it.
type LedgerEntry struct {
	Date        string `json:"date"`
	Description string `json:"description"`
	Debit       Amount `json:"debit"`
	Credit      Amount `json:"credit"`
	Balance     Amount `json:"balance"`
}

// UnmarshalJSON marks amounts absent from the payload as missing.
func (e *LedgerEntry) UnmarshalJSON(b []byte) error {
	type plain LedgerEntry
	p := plain{Debit: missingAmount, Credit: missingAmount, Balance: missingAmount}
	if err := json.Unmarshal(b, &p); err != nil {
		return err
	}
	*e = LedgerEntry(p)
	return nil
}

// AccountLedger is one month of an account ledger.
type AccountLedger struct {
	AccountName    string        `json:"accountName"`
	OpeningBalance float64       `json:"openingBalance"`
	ClosingBalance float64       `json:"closingBalance"`
	Entries        []LedgerEntry `json:"entries"`
}

// Empty reports a ledger the backend sent without any content.
func (l AccountLedger) Empty() bool {
	return strings.TrimSpace(l.AccountName) == "" && len(l.Entries) == 0
}

// Validate rejects entries that would feed nonsense into the core. A
// missing account name is allowed; callers look the name up separately.
func (l AccountLedger) Validate() error {
	for i, e := range l.Entries {
		if err := e.core().Validate(); err != nil {
			return fmt.Errorf("%w: ledger entry %d: %v", ErrMalformedPayload, i, err)
		}
	}
	return nil
}

func (e LedgerEntry) core() core.LedgerEntry {
	return core.LedgerEntry{
		Date:        e.Date,
		Description: e.Description,
		Debit:       float64(e.Debit),
		Credit:      float64(e.Credit),
		Balance:     float64(e.Balance),
	}
}

// CoreEntries returns the entries in source order.
func (l AccountLedger) CoreEntries() []core.LedgerEntry {
	out := make([]core.LedgerEntry, len(l.Entries))
	for i, e := range l.Entries {
		out[i] = e.core()
	}
	return out
}

// IncomeStatement is the income side of a financial statement.
type IncomeStatement struct {
	TotalIncome  float64 `json:"totalIncome"`
	TotalExpense float64 `json:"totalExpense"`
	NetProfit    float64 `json:"netProfit"`
	ProfitRate   float64 `json:"profitRate"`
}

// BalanceSheet is the position side of a financial statement.
type BalanceSheet struct {
	TotalAssets      float64 `json:"totalAssets"`
	TotalLiabilities float64 `json:"totalLiabilities"`
	TotalEquity      float64 `json:"totalEquity"`
}

// FinancialStatement is the income statement and balance sheet of a month.
type FinancialStatement struct {
	IncomeStatement IncomeStatement `json:"incomeStatement"`
	BalanceSheet    BalanceSheet    `json:"balanceSheet"`
}

func (f FinancialStatement) Core(ym core.YearMonth) core.FinancialStatement {
	return core.FinancialStatement{
		YearMonth:       ym,
		IncomeStatement: core.IncomeStatement(f.IncomeStatement),
		BalanceSheet:    core.BalanceSheet(f.BalanceSheet),
	}
}

// MonthlySummary is one month of income and expense totals.
type MonthlySummary struct {
	YearMonth string  `json:"yearMonth"`
	Income    float64 `json:"income"`
	Expense   float64 `json:"expense"`
	Balance   float64 `json:"balance"`
}

// CoreSummaries converts summaries, rejecting unparseable months.
func CoreSummaries(in []MonthlySummary) ([]core.MonthlySummary, error) {
	out := make([]core.MonthlySummary, 0, len(in))
	for _, s := range in {
		ym, err := core.ParseYearMonth(s.YearMonth)
		if err != nil {
			return nil, fmt.Errorf("%w: summary month %q", ErrMalformedPayload, s.YearMonth)
		}
		out = append(out, core.MonthlySummary{YearMonth: ym, Income: s.Income, Expense: s.Expense, Balance: s.Balance})
	}
	return out, nil
}

// CategoryStatistic is one category total of a month.
type CategoryStatistic struct {
	CategoryID   int64    `json:"categoryId"`
	CategoryName string   `json:"categoryName"`
	Amount       float64  `json:"amount"`
	Percentage   *float64 `json:"percentage"`
}

// CategoryStatistics is the category breakdown of one month and direction.
type CategoryStatistics struct {
	YearMonth   string              `json:"yearMonth"`
	Type        core.TxType         `json:"type"`
	TotalAmount *float64            `json:"totalAmount"`
	Categories  []CategoryStatistic `json:"categories"`
}

// Core converts the response; ym and typ are what was asked for and fill
// in fields the server left out.
func (c CategoryStatistics) Core(ym core.YearMonth, typ core.TxType) core.CategoryBreakdown {
	if parsed, err := core.ParseYearMonth(c.YearMonth); err == nil {
		ym = parsed
	}
	if c.Type.Valid() {
		typ = c.Type
	}
	out := core.CategoryBreakdown{YearMonth: ym, Type: typ, Total: c.TotalAmount}
	out.Categories = make([]core.CategoryStatistic, len(c.Categories))
	for i, s := range c.Categories {
		out.Categories[i] = core.CategoryStatistic(s)
	}
	return out
}

// Analysis is the monthly business analysis: totals, the generated
// commentary and category expenses.
type Analysis struct {
	Summary          IncomeStatement   `json:"summary"`
	AIAnalysis       AnalysisComment   `json:"aiAnalysis"`
	CategoryExpenses []CategoryExpense `json:"categoryExpenses"`
}

// AnalysisComment is the generated commentary of an analysis.
type AnalysisComment struct {
	Overview    string   `json:"overview"`
	Strengths   []string `json:"strengths"`
	Warnings    []string `json:"warnings"`
	Suggestions []string `json:"suggestions"`
}

// CategoryExpense is one category share of the month's expenses.
type CategoryExpense struct {
	CategoryName string  `json:"categoryName"`
	Amount       float64 `json:"amount"`
	Percentage   float64 `json:"percentage"`
}
