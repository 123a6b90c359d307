package http

import (
	"errors"
	"net/http"

	"ledgerbook/internal/api"
	"ledgerbook/internal/core"
	applog "ledgerbook/internal/log"
	"ledgerbook/internal/services"
	"ledgerbook/internal/session"
	"ledgerbook/internal/storage"
)

const recentExports = 5

type ledgerPartial struct {
	Params        LedgerParams
	Ledger        services.LedgerView
	Filters       []core.FilterMode
	Sorts         []core.SortOrder
	ExportEnabled bool
}

type ledgerPage struct {
	basePage
	Book     api.BookDetail
	Accounts []accountOption
	Partial  ledgerPartial
	Exports  []storage.ExportJob
}

// accountOption is one entry of the account picker. Accounts of the chart
// of accounts without a balance yet are listed too.
type accountOption struct {
	ID         int64
	Code       string
	Name       string
	Balance    float64
	HasBalance bool
}

type analysisPage struct {
	basePage
	Book   api.BookDetail
	Report services.AnalysisReport
	Prev   core.YearMonth
	Next   core.YearMonth
}

type statementPage struct {
	basePage
	Book      api.BookDetail
	Statement core.FinancialStatement
	Prev      core.YearMonth
	Next      core.YearMonth
}

// handleLedger renders the ledger page of one account with its filters,
// the account picker and the recent exports.
func (s *Server) handleLedger(w http.ResponseWriter, r *http.Request, sess *session.Session, client *api.Client) {
	book, ok := s.loadBook(w, r, sess, client)
	if !ok {
		return
	}
	partial, ok := s.ledgerView(w, r, sess, client, book)
	if !ok {
		return
	}
	p := ledgerPage{
		basePage: s.base(r, book.Name+" ledger"),
		Book:     book,
		Accounts: s.accountOptions(r, client, book),
		Partial:  partial,
	}
	if s.exports != nil {
		jobs, err := s.exports.RecentExports(r.Context(), book.ID, recentExports)
		if err != nil {
			s.logger.WarnContext(r.Context(), "Failed to list exports",
				applog.FieldBookID, book.ID, applog.FieldError, err)
		}
		p.Exports = jobs
	}
	s.render(w, r, http.StatusOK, "ledger_page", p)
}

// accountOptions merges the accounts with balances and the chart of
// accounts of the book type. The chart is best effort.
func (s *Server) accountOptions(r *http.Request, client *api.Client, book api.BookDetail) []accountOption {
	opts := make([]accountOption, 0, len(book.Accounts))
	seen := make(map[int64]int, len(book.Accounts))
	for _, a := range book.Accounts {
		seen[a.AccountID] = len(opts)
		opts = append(opts, accountOption{ID: a.AccountID, Code: a.AccountCode, Name: a.AccountName,
			Balance: a.Balance, HasBalance: true})
	}
	chart, err := client.Accounts(r.Context(), book.BookType)
	if err != nil {
		s.logger.WarnContext(r.Context(), "Failed to load chart of accounts",
			applog.FieldBookID, book.ID, applog.FieldError, err)
		return opts
	}
	for _, a := range chart {
		if a.ID <= 0 {
			continue
		}
		if i, ok := seen[a.ID]; ok {
			if opts[i].Code == "" {
				opts[i].Code = a.Code
			}
			continue
		}
		seen[a.ID] = len(opts)
		opts = append(opts, accountOption{ID: a.ID, Code: a.Code, Name: a.Name})
	}
	return opts
}

// handleLedgerView renders only the transaction table and totals, for
// filter and sort changes.
func (s *Server) handleLedgerView(w http.ResponseWriter, r *http.Request, sess *session.Session, client *api.Client) {
	book, ok := s.loadBook(w, r, sess, client)
	if !ok {
		return
	}
	partial, ok := s.ledgerView(w, r, sess, client, book)
	if !ok {
		return
	}
	s.render(w, r, http.StatusOK, "ledger_view", partial)
}

// ledgerView parses the query and builds the view. An account without any
// choice falls back to the first account of the book.
func (s *Server) ledgerView(w http.ResponseWriter, r *http.Request, sess *session.Session, client *api.Client, book api.BookDetail) (ledgerPartial, bool) {
	defFrom, defTo := s.ledger.DefaultRange()
	params, err := ParseLedgerParams(r.URL.Query(), defFrom, defTo)
	if err != nil {
		BadRequestError(err.Error()).Write(w)
		return ledgerPartial{}, false
	}
	if params.AccountID == 0 && len(book.Accounts) > 0 {
		params.AccountID = book.Accounts[0].AccountID
	}

	partial := ledgerPartial{
		Params:        params,
		Filters:       []core.FilterMode{core.FilterAll, core.FilterIncome, core.FilterExpense},
		Sorts:         []core.SortOrder{core.SortLatest, core.SortOldest},
		ExportEnabled: s.exports != nil,
	}
	if params.AccountID == 0 {
		partial.Ledger = services.LedgerView{BookID: book.ID, From: params.From, To: params.To,
			View: core.BuildView(nil, params.Query)}
		return partial, true
	}

	ref := services.AccountRef{UserID: sess.User.ID, BookID: book.ID, AccountID: params.AccountID}
	lv, err := s.ledger.View(r.Context(), client, ref, params.From, params.To, params.Query)
	if errors.Is(err, services.ErrInvalidRange) {
		BadRequestError(err.Error()).Write(w)
		return ledgerPartial{}, false
	}
	if err != nil {
		s.apiFailure(w, r, sess, err, applog.OpFetch)
		return ledgerPartial{}, false
	}
	partial.Ledger = lv
	return partial, true
}

// handleStatement renders the income statement and balance sheet.
func (s *Server) handleStatement(w http.ResponseWriter, r *http.Request, sess *session.Session, client *api.Client) {
	book, ok := s.loadBook(w, r, sess, client)
	if !ok {
		return
	}
	ym := parseYearMonth(r, "yearMonth", s.stats.CurrentMonth())
	st, err := s.stats.Statement(r.Context(), client, book.ID, ym)
	if err != nil {
		s.apiFailure(w, r, sess, err, applog.OpFetch)
		return
	}
	s.render(w, r, http.StatusOK, "statement_page", statementPage{
		basePage:  s.base(r, book.Name+" statement"),
		Book:      book,
		Statement: st,
		Prev:      ym.AddMonths(-1),
		Next:      ym.AddMonths(1),
	})
}

// handleAnalysis renders the monthly business analysis. Analyses are kept
// for an hour, so reloading the page does not regenerate them.
func (s *Server) handleAnalysis(w http.ResponseWriter, r *http.Request, sess *session.Session, client *api.Client) {
	if s.analysis == nil {
		s.fail(w, r, http.StatusServiceUnavailable, "Analysis is not enabled")
		return
	}
	book, ok := s.loadBook(w, r, sess, client)
	if !ok {
		return
	}
	ym := parseYearMonth(r, "yearMonth", s.stats.CurrentMonth())
	report, err := s.analysis.Report(r.Context(), client, sess.User.ID, book.ID, ym)
	if err != nil {
		s.apiFailure(w, r, sess, err, applog.OpFetch)
		return
	}
	s.render(w, r, http.StatusOK, "analysis_page", analysisPage{
		basePage: s.base(r, book.Name+" analysis"),
		Book:     book,
		Report:   report,
		Prev:     ym.AddMonths(-1),
		Next:     ym.AddMonths(1),
	})
}
