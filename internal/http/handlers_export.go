package http

import (
	"errors"
	"fmt"
	"net/http"

	"ledgerbook/internal/api"
	applog "ledgerbook/internal/log"
	"ledgerbook/internal/services"
	"ledgerbook/internal/session"
)

// handleCreateExport freezes the ledger view described by the form into an
// export job. The worker writes it to the spreadsheet.
func (s *Server) handleCreateExport(w http.ResponseWriter, r *http.Request, sess *session.Session, client *api.Client) {
	if s.exports == nil {
		ServiceUnavailableError("Exports are not enabled").Write(w)
		return
	}
	if bad := ParseFormOrFail(w, r); bad != nil {
		bad.Write(w)
		return
	}

	defFrom, defTo := s.ledger.DefaultRange()
	params, err := ParseLedgerParams(r.Form, defFrom, defTo)
	if err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}
	if params.AccountID == 0 {
		UnprocessableEntityError("Choose an account to export").Write(w)
		return
	}

	job, err := s.exports.RequestExport(r.Context(), client, services.ExportRequest{
		Ref:         services.AccountRef{UserID: sess.User.ID, BookID: sess.SelectedBookID, AccountID: params.AccountID},
		From:        params.From,
		To:          params.To,
		Query:       params.Query,
		RequestedBy: sess.User.Email,
	})
	switch {
	case errors.Is(err, services.ErrInvalidRange):
		BadRequestError(err.Error()).Write(w)
		return
	case errors.Is(err, api.ErrUnauthorized), errors.Is(err, api.ErrNotFound):
		s.apiFailure(w, r, sess, err, applog.OpExport)
		return
	case err != nil:
		s.logger.ErrorContext(r.Context(), "Export request failed",
			applog.FieldBookID, sess.SelectedBookID,
			applog.FieldAccountID, params.AccountID,
			applog.FieldOperation, applog.OpExport,
			applog.FieldError, err)
		BadGatewayError("Could not queue the export, please retry").Write(w)
		return
	}

	msg := fmt.Sprintf("Export #%d queued", job.ID)
	SuccessResponse(msg).
		TriggerExportQueued(job.ID).
		TriggerSuccessNotification(msg).
		Write(w)
}
