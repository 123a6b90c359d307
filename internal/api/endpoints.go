package api

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"ledgerbook/internal/core"
)

// Login exchanges credentials for a token pair.
func (c *Client) Login(ctx context.Context, req LoginRequest) (LoginResponse, error) {
	var out LoginResponse
	err := c.call(ctx, request{method: http.MethodPost, path: "/auth/login", body: req, public: true}, &out)
	if err != nil {
		return LoginResponse{}, err
	}
	if out.AccessToken == "" {
		return LoginResponse{}, fmt.Errorf("/auth/login: %w: missing access token", ErrMalformedPayload)
	}
	return out, nil
}

// Signup registers a new user. It does not sign in.
func (c *Client) Signup(ctx context.Context, req SignupRequest) error {
	return c.call(ctx, request{method: http.MethodPost, path: "/auth/signup", body: req, public: true}, nil)
}

// Logout revokes the session server-side.
func (c *Client) Logout(ctx context.Context) error {
	return c.call(ctx, request{method: http.MethodPost, path: "/auth/logout"}, nil)
}

// Refresh trades a refresh token for a new access token.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (RefreshResponse, error) {
	var out RefreshResponse
	err := c.call(ctx, request{
		method: http.MethodPost,
		path:   "/auth/refresh",
		body:   refreshRequest{RefreshToken: refreshToken},
		public: true,
	}, &out)
	if err != nil {
		return RefreshResponse{}, err
	}
	if out.AccessToken == "" {
		return RefreshResponse{}, fmt.Errorf("/auth/refresh: %w: missing access token", ErrMalformedPayload)
	}
	return out, nil
}

// ListBooks returns the books of the signed-in user.
func (c *Client) ListBooks(ctx context.Context) ([]Book, error) {
	var out []Book
	if err := c.call(ctx, request{method: http.MethodGet, path: "/books"}, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// GetBook returns a book with its account balances.
func (c *Client) GetBook(ctx context.Context, id int64) (BookDetail, error) {
	var out BookDetail
	err := c.call(ctx, request{method: http.MethodGet, path: "/books/" + itoa(id)}, &out)
	return out, err
}

// CreateBook validates and creates a book.
func (c *Client) CreateBook(ctx context.Context, req CreateBookRequest) (Book, error) {
	if err := (core.Book{Name: req.Name, BookType: req.BookType}).Validate(); err != nil {
		return Book{}, err
	}
	var out Book
	err := c.call(ctx, request{method: http.MethodPost, path: "/books", body: req}, &out)
	return out, err
}

// UpdateBook renames a book.
func (c *Client) UpdateBook(ctx context.Context, id int64, req UpdateBookRequest) (Book, error) {
	if strings.TrimSpace(req.Name) == "" {
		return Book{}, core.ErrEmptyBookName
	}
	var out Book
	err := c.call(ctx, request{method: http.MethodPut, path: "/books/" + itoa(id), body: req}, &out)
	return out, err
}

// DeleteBook deletes a book and its transactions.
func (c *Client) DeleteBook(ctx context.Context, id int64) error {
	return c.call(ctx, request{method: http.MethodDelete, path: "/books/" + itoa(id)}, nil)
}

// ListTransactions returns transactions of a book, newest first.
func (c *Client) ListTransactions(ctx context.Context, p TransactionListParams) ([]Transaction, error) {
	q := url.Values{}
	q.Set("bookId", itoa(p.BookID))
	if p.Type != "" {
		q.Set("type", string(p.Type))
	}
	if p.StartDate != "" {
		q.Set("startDate", p.StartDate)
	}
	if p.EndDate != "" {
		q.Set("endDate", p.EndDate)
	}
	if p.CategoryID > 0 {
		q.Set("categoryId", itoa(p.CategoryID))
	}
	if p.Size > 0 {
		q.Set("page", strconv.Itoa(p.Page))
		q.Set("size", strconv.Itoa(p.Size))
	}
	var out []Transaction
	if err := c.call(ctx, request{method: http.MethodGet, path: "/transactions", query: q}, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// GetTransaction returns one transaction.
func (c *Client) GetTransaction(ctx context.Context, id int64) (Transaction, error) {
	var out Transaction
	err := c.call(ctx, request{method: http.MethodGet, path: "/transactions/" + itoa(id)}, &out)
	return out, err
}

// CreateTransaction validates and books a transaction.
func (c *Client) CreateTransaction(ctx context.Context, req CreateTransactionRequest) (Transaction, error) {
	if err := req.Validate(); err != nil {
		return Transaction{}, err
	}
	var out Transaction
	err := c.call(ctx, request{method: http.MethodPost, path: "/transactions", body: req}, &out)
	return out, err
}

// UpdateTransaction validates and applies a partial update.
func (c *Client) UpdateTransaction(ctx context.Context, id int64, req UpdateTransactionRequest) (Transaction, error) {
	if err := req.Validate(); err != nil {
		return Transaction{}, err
	}
	var out Transaction
	err := c.call(ctx, request{method: http.MethodPut, path: "/transactions/" + itoa(id), body: req}, &out)
	return out, err
}

// DeleteTransaction deletes a transaction.
func (c *Client) DeleteTransaction(ctx context.Context, id int64) error {
	return c.call(ctx, request{method: http.MethodDelete, path: "/transactions/" + itoa(id)}, nil)
}

// CategoryKind selects one of the category lists.
type CategoryKind string

const (
	CategoriesIncome         CategoryKind = "income"
	CategoriesExpense        CategoryKind = "expense"
	CategoriesPaymentMethods CategoryKind = "payment-methods"
)

// Categories returns one category list for a book type.
func (c *Client) Categories(ctx context.Context, kind CategoryKind, bookType core.BookType) ([]Category, error) {
	var out []Category
	err := c.call(ctx, request{
		method: http.MethodGet,
		path:   "/categories/" + string(kind),
		query:  url.Values{"bookType": {string(bookType)}},
	}, &out)
	return out, err
}

// Accounts returns the chart of accounts for a book type.
func (c *Client) Accounts(ctx context.Context, bookType core.BookType) ([]Category, error) {
	var out []Category
	err := c.call(ctx, request{
		method: http.MethodGet,
		path:   "/accounts",
		query:  url.Values{"bookType": {string(bookType)}},
	}, &out)
	return out, err
}

// Account returns one account of the chart of accounts.
func (c *Client) Account(ctx context.Context, id int64) (Category, error) {
	var out Category
	err := c.call(ctx, request{method: http.MethodGet, path: "/accounts/" + itoa(id)}, &out)
	return out, err
}

// AccountLedger fetches one month of an account's ledger. The result is
// validated; a 404 comes back as an error matching ErrNotFound and a month
// without content as one matching ErrNoData.
func (c *Client) AccountLedger(ctx context.Context, bookID, accountID int64, ym core.YearMonth) (AccountLedger, error) {
	var out AccountLedger
	path := fmt.Sprintf("/ledger/account/%d/%d", bookID, accountID)
	err := c.call(ctx, request{
		method: http.MethodGet,
		path:   path,
		query:  url.Values{"yearMonth": {ym.String()}},
	}, &out)
	if err != nil {
		return AccountLedger{}, err
	}
	if out.Empty() {
		return AccountLedger{}, fmt.Errorf("%s %s: %w", path, ym, ErrNoData)
	}
	if err := out.Validate(); err != nil {
		return AccountLedger{}, err
	}
	return out, nil
}

// FinancialStatement returns the statements of a month.
func (c *Client) FinancialStatement(ctx context.Context, bookID int64, ym core.YearMonth) (FinancialStatement, error) {
	var out FinancialStatement
	err := c.call(ctx, request{
		method: http.MethodGet,
		path:   "/ledger/statement/" + itoa(bookID),
		query:  url.Values{"yearMonth": {ym.String()}},
	}, &out)
	return out, err
}

// MonthlySummaries returns income and expense per month.
func (c *Client) MonthlySummaries(ctx context.Context, bookID int64) ([]MonthlySummary, error) {
	var out []MonthlySummary
	err := c.call(ctx, request{
		method: http.MethodGet,
		path:   "/statistics/summary",
		query:  url.Values{"bookId": {itoa(bookID)}},
	}, &out)
	return out, err
}

// CategoryStatistics returns the category breakdown of a month.
func (c *Client) CategoryStatistics(ctx context.Context, bookID int64, ym core.YearMonth, typ core.TxType) (CategoryStatistics, error) {
	var out CategoryStatistics
	err := c.call(ctx, request{
		method: http.MethodGet,
		path:   "/statistics/category",
		query: url.Values{
			"bookId":    {itoa(bookID)},
			"yearMonth": {ym.String()},
			"type":      {string(typ)},
		},
	}, &out)
	return out, err
}

// AccountBalances returns the current balance of every account.
func (c *Client) AccountBalances(ctx context.Context, bookID int64) ([]AccountBalance, error) {
	var out []AccountBalance
	err := c.call(ctx, request{
		method: http.MethodGet,
		path:   "/statistics/accounts",
		query:  url.Values{"bookId": {itoa(bookID)}},
	}, &out)
	return out, err
}

// Analysis returns the business analysis of a month.
func (c *Client) Analysis(ctx context.Context, bookID int64, ym core.YearMonth) (Analysis, error) {
	var out Analysis
	err := c.call(ctx, request{
		method: http.MethodGet,
		path:   "/analysis/" + itoa(bookID),
		query:  url.Values{"yearMonth": {ym.String()}},
	}, &out)
	return out, err
}

func itoa(id int64) string { return strconv.FormatInt(id, 10) }
