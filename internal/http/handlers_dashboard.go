package http

import (
	"net/http"

	"ledgerbook/internal/api"
	"ledgerbook/internal/core"
	applog "ledgerbook/internal/log"
	"ledgerbook/internal/services"
	"ledgerbook/internal/session"

	"golang.org/x/sync/errgroup"
)

const recentTransactions = 10

type monthBar struct {
	YearMonth    core.YearMonth
	Income       float64
	Expense      float64
	IncomeWidth  int
	ExpenseWidth int
}

type dashboardPage struct {
	basePage
	Book      api.BookDetail
	Dashboard services.Dashboard
	Bars      []monthBar
	Charts    []categoryChartPartial
	Prev      core.YearMonth
	Next      core.YearMonth

	IncomeCategories  []api.Category
	ExpenseCategories []api.Category
	PaymentMethods    []api.Category
	Recent            []api.Transaction
	Today             string
}

type categoryChartPartial struct {
	YearMonth core.YearMonth
	Type      core.TxType
	Slices    []core.ChartSlice
	Total     float64
	HasTotal  bool
}

func chartPartial(ym core.YearMonth, typ core.TxType, chart services.CategoryChart) categoryChartPartial {
	p := categoryChartPartial{YearMonth: ym, Type: typ, Slices: chart.Slices}
	if t := chart.Breakdown.Total; t != nil {
		p.Total, p.HasTotal = *t, true
	}
	return p
}

// handleDashboard renders monthly bars, category charts and balances of the
// selected book. Form options and recent transactions are best effort.
func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request, sess *session.Session, client *api.Client) {
	ctx := r.Context()
	book, ok := s.loadBook(w, r, sess, client)
	if !ok {
		return
	}
	ym := parseYearMonth(r, "yearMonth", s.stats.CurrentMonth())

	p := dashboardPage{
		basePage: s.base(r, book.Name),
		Book:     book,
		Prev:     ym.AddMonths(-1),
		Next:     ym.AddMonths(1),
		Today:    s.now().Format("2006-01-02"),
	}

	var g errgroup.Group
	g.Go(func() error {
		d, err := s.stats.Dashboard(ctx, client, sess.User.ID, book.ID, ym)
		p.Dashboard = d
		return err
	})
	g.Go(func() error {
		p.IncomeCategories = s.categories(r, client, api.CategoriesIncome, book.BookType)
		return nil
	})
	g.Go(func() error {
		p.ExpenseCategories = s.categories(r, client, api.CategoriesExpense, book.BookType)
		return nil
	})
	g.Go(func() error {
		p.PaymentMethods = s.categories(r, client, api.CategoriesPaymentMethods, book.BookType)
		return nil
	})
	g.Go(func() error {
		txs, err := client.ListTransactions(ctx, api.TransactionListParams{BookID: book.ID, Size: recentTransactions})
		if err != nil {
			s.logger.WarnContext(ctx, "Failed to load recent transactions",
				applog.FieldBookID, book.ID, applog.FieldError, err)
			return nil
		}
		p.Recent = txs
		return nil
	})
	if err := g.Wait(); err != nil {
		s.apiFailure(w, r, sess, err, applog.OpFetch)
		return
	}

	p.Bars = monthBars(p.Dashboard.Monthly)
	p.Charts = []categoryChartPartial{
		chartPartial(ym, core.Income, p.Dashboard.IncomeChart),
		chartPartial(ym, core.Expense, p.Dashboard.ExpenseChart),
	}
	s.render(w, r, http.StatusOK, "dashboard_page", p)
}

func (s *Server) categories(r *http.Request, client *api.Client, kind api.CategoryKind, bookType core.BookType) []api.Category {
	cats, err := client.Categories(r.Context(), kind, bookType)
	if err != nil {
		s.logger.WarnContext(r.Context(), "Failed to load categories",
			"kind", string(kind), applog.FieldError, err)
		return nil
	}
	return cats
}

func monthBars(monthly []core.MonthlySummary) []monthBar {
	var max float64
	for _, m := range monthly {
		if m.Income > max {
			max = m.Income
		}
		if m.Expense > max {
			max = m.Expense
		}
	}
	bars := make([]monthBar, len(monthly))
	for i, m := range monthly {
		bars[i] = monthBar{
			YearMonth:    m.YearMonth,
			Income:       m.Income,
			Expense:      m.Expense,
			IncomeWidth:  barWidth(m.Income, max),
			ExpenseWidth: barWidth(m.Expense, max),
		}
	}
	return bars
}

// handleCategoryChart renders the category breakdown partial.
func (s *Server) handleCategoryChart(w http.ResponseWriter, r *http.Request, sess *session.Session, client *api.Client) {
	ym := parseYearMonth(r, "yearMonth", s.stats.CurrentMonth())
	typ := parseTxType(r.URL.Query().Get("type"), core.Expense)

	chart, err := s.stats.CategoryChart(r.Context(), client, sess.User.ID, sess.SelectedBookID, ym, typ)
	if err != nil {
		s.apiFailure(w, r, sess, err, applog.OpFetch)
		return
	}
	s.render(w, r, http.StatusOK, "category_chart", chartPartial(ym, typ, chart))
}

type chartSliceJSON struct {
	Name     string  `json:"name"`
	Value    float64 `json:"value"`
	Percent  float64 `json:"percent"`
	Fraction float64 `json:"fraction"`
}

type categoryChartJSON struct {
	BookID    int64            `json:"bookId"`
	YearMonth string           `json:"yearMonth"`
	Type      core.TxType      `json:"type"`
	Total     *float64         `json:"total"`
	Slices    []chartSliceJSON `json:"slices"`
}

// handleCategoryChartJSON serves chart-ready slices for client-side charts.
// bookId defaults to the selected book.
func (s *Server) handleCategoryChartJSON(w http.ResponseWriter, r *http.Request, sess *session.Session, client *api.Client) {
	q := r.URL.Query()
	bookID := sess.SelectedBookID
	if v := q.Get("bookId"); v != "" {
		bookID = parseID(v)
	}
	if bookID == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "bookId is required"})
		return
	}
	ym := parseYearMonth(r, "yearMonth", s.stats.CurrentMonth())
	typ := parseTxType(q.Get("type"), core.Expense)

	chart, err := s.stats.CategoryChart(r.Context(), client, sess.User.ID, bookID, ym, typ)
	if err != nil {
		status := statusFor(err)
		if status == http.StatusUnprocessableEntity {
			status = http.StatusBadGateway
		}
		s.logger.ErrorContext(r.Context(), "Category chart failed",
			applog.FieldBookID, bookID, applog.FieldYearMonth, ym.String(), applog.FieldError, err)
		writeJSON(w, status, map[string]string{"error": api.UserMessage(err)})
		return
	}

	out := categoryChartJSON{
		BookID:    bookID,
		YearMonth: ym.String(),
		Type:      typ,
		Total:     chart.Breakdown.Total,
		Slices:    make([]chartSliceJSON, len(chart.Slices)),
	}
	for i, sl := range chart.Slices {
		out.Slices[i] = chartSliceJSON{Name: sl.Name, Value: sl.Value, Percent: sl.Percent, Fraction: sl.Fraction()}
	}
	writeJSON(w, http.StatusOK, out)
}
