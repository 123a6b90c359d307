package http

import (
	"errors"
	"net/http"
	"unicode/utf8"

	"ledgerbook/internal/api"
	"ledgerbook/internal/core"
	applog "ledgerbook/internal/log"
	"ledgerbook/internal/session"
)

const maxBookNameLength = 50

type booksPage struct {
	basePage
	Books    []api.Book
	Selected int64
}

func (s *Server) handleBooks(w http.ResponseWriter, r *http.Request, sess *session.Session, client *api.Client) {
	books, err := client.ListBooks(r.Context())
	if err != nil {
		s.apiFailure(w, r, sess, err, applog.OpList)
		return
	}
	s.render(w, r, http.StatusOK, "books_page", booksPage{
		basePage: s.base(r, "Books"),
		Books:    books,
		Selected: sess.SelectedBookID,
	})
}

// validBookName trims name and returns the message for an unusable one.
func validBookName(name string) (string, string) {
	name = sanitizeInput(name)
	switch {
	case name == "":
		return "", core.ErrEmptyBookName.Error()
	case utf8.RuneCountInString(name) > maxBookNameLength:
		return "", "Book name too long (max 50 characters)"
	}
	return name, ""
}

func (s *Server) handleCreateBook(w http.ResponseWriter, r *http.Request, sess *session.Session, client *api.Client) {
	if bad := ParseFormOrFail(w, r); bad != nil {
		bad.Write(w)
		return
	}
	name, msg := validBookName(r.FormValue("name"))
	if msg != "" {
		UnprocessableEntityError(msg).Write(w)
		return
	}
	bookType := core.BookType(r.FormValue("bookType"))
	if bookType == "" {
		bookType = core.Personal
	}
	if !bookType.Valid() {
		UnprocessableEntityError(core.ErrInvalidBookType.Error()).Write(w)
		return
	}

	book, err := client.CreateBook(r.Context(), api.CreateBookRequest{BookType: bookType, Name: name})
	if err != nil {
		s.apiFailure(w, r, sess, err, applog.OpCreate)
		return
	}
	s.logger.InfoContext(r.Context(), "Book created",
		applog.FieldBookID, book.ID,
		applog.FieldUserEmail, sess.User.Email)

	if sess.SelectedBookID == 0 {
		sess.SelectedBookID = book.ID
		if err := s.sessions.Save(r.Context(), sess); err != nil {
			s.logger.WarnContext(r.Context(), "Failed to select new book", applog.FieldError, err)
		}
	}
	RedirectResponse(w, r, "/books")
}

func (s *Server) handleDeleteBook(w http.ResponseWriter, r *http.Request, sess *session.Session, client *api.Client) {
	id := parseID(r.PathValue("id"))
	if id == 0 {
		BadRequestError("Invalid book id").Write(w)
		return
	}
	if err := client.DeleteBook(r.Context(), id); err != nil && !errors.Is(err, api.ErrNotFound) {
		s.apiFailure(w, r, sess, err, applog.OpDelete)
		return
	}
	s.invalidateBook(r.Context(), id)
	if s.analysis != nil {
		s.analysis.InvalidateBook(r.Context(), id)
	}
	s.logger.InfoContext(r.Context(), "Book deleted", applog.FieldBookID, id)

	if sess.SelectedBookID == id {
		sess.SelectedBookID = 0
		if err := s.sessions.Save(r.Context(), sess); err != nil {
			s.logger.WarnContext(r.Context(), "Failed to clear book selection", applog.FieldError, err)
		}
	}
	RedirectResponse(w, r, "/books")
}

// handleSelectBook makes a book the working book of the session after
// checking the user can read it.
func (s *Server) handleSelectBook(w http.ResponseWriter, r *http.Request, sess *session.Session, client *api.Client) {
	id := parseID(r.PathValue("id"))
	if id == 0 {
		BadRequestError("Invalid book id").Write(w)
		return
	}
	if _, err := client.GetBook(r.Context(), id); err != nil {
		s.apiFailure(w, r, sess, err, applog.OpRead)
		return
	}
	sess.SelectedBookID = id
	if err := s.sessions.Save(r.Context(), sess); err != nil {
		s.logger.ErrorContext(r.Context(), "Failed to save book selection", applog.FieldError, err)
		s.fail(w, r, http.StatusInternalServerError, "Could not select the book, please retry")
		return
	}
	RedirectResponse(w, r, "/dashboard")
}

// handleRenameBook changes the name of a book. The type of a book is fixed
// once created.
func (s *Server) handleRenameBook(w http.ResponseWriter, r *http.Request, sess *session.Session, client *api.Client) {
	id := parseID(r.PathValue("id"))
	if id == 0 {
		BadRequestError("Invalid book id").Write(w)
		return
	}
	if bad := ParseFormOrFail(w, r); bad != nil {
		bad.Write(w)
		return
	}
	name, msg := validBookName(r.FormValue("name"))
	if msg != "" {
		UnprocessableEntityError(msg).Write(w)
		return
	}

	book, err := client.UpdateBook(r.Context(), id, api.UpdateBookRequest{Name: name})
	if err != nil {
		s.apiFailure(w, r, sess, err, applog.OpUpdate)
		return
	}
	s.logger.InfoContext(r.Context(), "Book renamed",
		applog.FieldBookID, book.ID,
		applog.FieldUserEmail, sess.User.Email)
	RedirectResponse(w, r, "/books")
}
