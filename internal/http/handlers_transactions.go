package http

import (
	"errors"
	"net/http"

	"ledgerbook/internal/api"
	"ledgerbook/internal/core"
	applog "ledgerbook/internal/log"
	"ledgerbook/internal/session"
)

// handleCreateTransaction books a transaction on the selected book and
// drops the cached months and statistics of that book.
func (s *Server) handleCreateTransaction(w http.ResponseWriter, r *http.Request, sess *session.Session, client *api.Client) {
	body := NewRequestBodyParser(r)
	if err := body.Parse(); err != nil {
		BadRequestError("Malformed request").Write(w)
		return
	}

	typ := core.TxType(body.Get("type"))
	if !typ.Valid() {
		UnprocessableEntityError("Type must be INCOME or EXPENSE").Write(w)
		return
	}
	amount, err := core.ParseAmount(body.Get("amount"))
	if err != nil || amount == 0 {
		UnprocessableEntityError("Invalid amount").Write(w)
		return
	}
	date := body.Get("date")
	if date == "" {
		date = s.now().Format("2006-01-02")
	}
	day, err := core.ParseDate(date)
	if err != nil {
		UnprocessableEntityError("Invalid date, expected YYYY-MM-DD").Write(w)
		return
	}

	req := api.CreateTransactionRequest{
		BookID:          sess.SelectedBookID,
		Date:            day.Format("2006-01-02"),
		Type:            typ,
		Amount:          float64(amount),
		CategoryID:      parseID(body.Get("categoryId")),
		PaymentMethodID: parseID(body.Get("paymentMethodId")),
		Memo:            body.Get("memo"),
	}
	if err := req.Validate(); err != nil {
		UnprocessableEntityError(err.Error()).Write(w)
		return
	}

	tx, err := client.CreateTransaction(r.Context(), req)
	if err != nil {
		s.apiFailure(w, r, sess, err, applog.OpCreate)
		return
	}
	s.invalidateBook(r.Context(), sess.SelectedBookID)

	s.logger.InfoContext(r.Context(), "Transaction created",
		applog.FieldBookID, sess.SelectedBookID,
		"transaction_id", tx.ID,
		applog.FieldYearMonth, core.YearMonthOf(day).String())

	if !isHTMX(r) {
		http.Redirect(w, r, "/dashboard", http.StatusSeeOther)
		return
	}
	SuccessResponse("Transaction saved").
		TriggerTransactionCreated(sess.SelectedBookID, core.YearMonthOf(day)).
		TriggerLedgerRefresh().
		TriggerFormReset().
		TriggerSuccessNotification("Transaction saved").
		Write(w)
}

// handleDeleteTransaction deletes a transaction; one that is already gone
// counts as deleted.
func (s *Server) handleDeleteTransaction(w http.ResponseWriter, r *http.Request, sess *session.Session, client *api.Client) {
	id := parseID(r.PathValue("id"))
	if id == 0 {
		BadRequestError("Invalid transaction id").Write(w)
		return
	}
	if err := client.DeleteTransaction(r.Context(), id); err != nil && !errors.Is(err, api.ErrNotFound) {
		s.apiFailure(w, r, sess, err, applog.OpDelete)
		return
	}
	s.invalidateBook(r.Context(), sess.SelectedBookID)
	s.logger.InfoContext(r.Context(), "Transaction deleted",
		applog.FieldBookID, sess.SelectedBookID, "transaction_id", id)

	if !isHTMX(r) {
		http.Redirect(w, r, "/dashboard", http.StatusSeeOther)
		return
	}
	NewHTMXResponse().
		TriggerTransactionDeleted(sess.SelectedBookID).
		TriggerLedgerRefresh().
		TriggerSuccessNotification("Transaction deleted").
		Write(w)
}

type transactionEditPartial struct {
	Transaction    api.Transaction
	Categories     []api.Category
	PaymentMethods []api.Category
}

// transactionOfBook loads a transaction and checks it belongs to the
// selected book.
func (s *Server) transactionOfBook(w http.ResponseWriter, r *http.Request, sess *session.Session, client *api.Client) (api.Transaction, bool) {
	id := parseID(r.PathValue("id"))
	if id == 0 {
		BadRequestError("Invalid transaction id").Write(w)
		return api.Transaction{}, false
	}
	tx, err := client.GetTransaction(r.Context(), id)
	if err == nil && tx.BookID != 0 && tx.BookID != sess.SelectedBookID {
		err = &api.Error{Status: http.StatusNotFound, Message: "Transaction not found in this book"}
	}
	if err != nil {
		s.apiFailure(w, r, sess, err, applog.OpRead)
		return api.Transaction{}, false
	}
	return tx, true
}

// handleEditTransaction renders the edit form of one transaction.
func (s *Server) handleEditTransaction(w http.ResponseWriter, r *http.Request, sess *session.Session, client *api.Client) {
	tx, ok := s.transactionOfBook(w, r, sess, client)
	if !ok {
		return
	}
	book, ok := s.loadBook(w, r, sess, client)
	if !ok {
		return
	}
	kind := api.CategoriesExpense
	if tx.Type == core.Income {
		kind = api.CategoriesIncome
	}
	s.render(w, r, http.StatusOK, "transaction_edit", transactionEditPartial{
		Transaction:    tx,
		Categories:     s.categories(r, client, kind, book.BookType),
		PaymentMethods: s.categories(r, client, api.CategoriesPaymentMethods, book.BookType),
	})
}

// handleUpdateTransaction applies the fields sent in the body. Fields left
// out keep their value.
func (s *Server) handleUpdateTransaction(w http.ResponseWriter, r *http.Request, sess *session.Session, client *api.Client) {
	tx, ok := s.transactionOfBook(w, r, sess, client)
	if !ok {
		return
	}
	body := NewRequestBodyParser(r)
	if err := body.Parse(); err != nil {
		BadRequestError("Malformed request").Write(w)
		return
	}

	var req api.UpdateTransactionRequest
	if v := body.Get("date"); v != "" {
		day, err := core.ParseDate(v)
		if err != nil {
			UnprocessableEntityError("Invalid date, expected YYYY-MM-DD").Write(w)
			return
		}
		date := day.Format("2006-01-02")
		req.Date = &date
	}
	if v := body.Get("amount"); v != "" {
		amount, err := core.ParseAmount(v)
		if err != nil || amount == 0 {
			UnprocessableEntityError("Invalid amount").Write(w)
			return
		}
		f := float64(amount)
		req.Amount = &f
	}
	if id := parseID(body.Get("categoryId")); id > 0 {
		req.CategoryID = &id
	}
	if id := parseID(body.Get("paymentMethodId")); id > 0 {
		req.PaymentMethodID = &id
	}
	if body.Has("memo") {
		memo := body.Get("memo")
		req.Memo = &memo
	}
	if err := req.Validate(); err != nil {
		UnprocessableEntityError(err.Error()).Write(w)
		return
	}

	if _, err := client.UpdateTransaction(r.Context(), tx.ID, req); err != nil {
		s.apiFailure(w, r, sess, err, applog.OpUpdate)
		return
	}
	s.invalidateBook(r.Context(), sess.SelectedBookID)
	s.logger.InfoContext(r.Context(), "Transaction updated",
		applog.FieldBookID, sess.SelectedBookID, "transaction_id", tx.ID)

	if !isHTMX(r) {
		http.Redirect(w, r, "/dashboard", http.StatusSeeOther)
		return
	}
	SuccessResponse("Transaction updated").
		TriggerTransactionUpdated(sess.SelectedBookID, tx.ID).
		TriggerLedgerRefresh().
		TriggerSuccessNotification("Transaction updated").
		Write(w)
}
