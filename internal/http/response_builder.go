// Package http provides HTTP server and handler implementations.
//
// This file implements the Builder Pattern for constructing HTMX responses.
// It provides a fluent API for building HX-Trigger headers and consistent
// response formatting.

package http

import (
	"encoding/json"
	"html/template"
	"net/http"

	"ledgerbook/internal/core"
)

// HTMXResponseBuilder provides a fluent API for building HTMX responses.
type HTMXResponseBuilder struct {
	triggers   map[string]any
	statusCode int
	body       []byte
	headers    map[string]string
}

// NewHTMXResponse creates a new response builder with default 200 status.
func NewHTMXResponse() *HTMXResponseBuilder {
	return &HTMXResponseBuilder{
		triggers:   make(map[string]any),
		statusCode: http.StatusOK,
		headers:    make(map[string]string),
	}
}

func (b *HTMXResponseBuilder) Status(code int) *HTMXResponseBuilder {
	b.statusCode = code
	return b
}

// Trigger adds a named trigger with optional data to the HX-Trigger header.
func (b *HTMXResponseBuilder) Trigger(name string, data any) *HTMXResponseBuilder {
	b.triggers[name] = data
	return b
}

// TriggerTransactionCreated tells the page which book and month changed.
func (b *HTMXResponseBuilder) TriggerTransactionCreated(bookID int64, ym core.YearMonth) *HTMXResponseBuilder {
	return b.Trigger("transaction:created", map[string]any{"bookId": bookID, "yearMonth": ym.String()})
}

// TriggerTransactionDeleted tells the page a transaction of the book is gone.
func (b *HTMXResponseBuilder) TriggerTransactionDeleted(bookID int64) *HTMXResponseBuilder {
	return b.Trigger("transaction:deleted", map[string]any{"bookId": bookID})
}

// TriggerTransactionUpdated tells the page which transaction changed.
func (b *HTMXResponseBuilder) TriggerTransactionUpdated(bookID, txID int64) *HTMXResponseBuilder {
	return b.Trigger("transaction:updated", map[string]any{"bookId": bookID, "transactionId": txID})
}

// TriggerLedgerRefresh asks the ledger view and charts to reload.
func (b *HTMXResponseBuilder) TriggerLedgerRefresh() *HTMXResponseBuilder {
	return b.Trigger("ledger:refresh", struct{}{})
}

// TriggerExportQueued carries the id of the new export job.
func (b *HTMXResponseBuilder) TriggerExportQueued(jobID int64) *HTMXResponseBuilder {
	return b.Trigger("export:queued", map[string]int64{"jobId": jobID})
}

// TriggerFormReset clears the entry form after a successful post.
func (b *HTMXResponseBuilder) TriggerFormReset() *HTMXResponseBuilder {
	return b.Trigger("form:reset", struct{}{})
}

// NotificationType selects the style of a toast.
type NotificationType string

const (
	NotificationSuccess NotificationType = "success"
	NotificationError   NotificationType = "error"
	NotificationWarning NotificationType = "warning"
	NotificationInfo    NotificationType = "info"
)

// TriggerNotification adds a show-notification trigger.
func (b *HTMXResponseBuilder) TriggerNotification(notifType NotificationType, message string, durationMs int) *HTMXResponseBuilder {
	return b.Trigger("show-notification", map[string]any{
		"type":     string(notifType),
		"message":  message,
		"duration": durationMs,
	})
}

// TriggerSuccessNotification shows a success toast for three seconds.
func (b *HTMXResponseBuilder) TriggerSuccessNotification(message string) *HTMXResponseBuilder {
	return b.TriggerNotification(NotificationSuccess, message, 3000)
}

// TriggerErrorNotification shows an error toast for five seconds.
func (b *HTMXResponseBuilder) TriggerErrorNotification(message string) *HTMXResponseBuilder {
	return b.TriggerNotification(NotificationError, message, 5000)
}

// Header adds a custom header to the response.
func (b *HTMXResponseBuilder) Header(name, value string) *HTMXResponseBuilder {
	b.headers[name] = value
	return b
}

// BodyString sets a plain body without changing the content type.
func (b *HTMXResponseBuilder) BodyString(content string) *HTMXResponseBuilder {
	b.body = []byte(content)
	return b
}

// BodyHTML sets the response body as HTML content.
func (b *HTMXResponseBuilder) BodyHTML(html string) *HTMXResponseBuilder {
	b.headers["Content-Type"] = "text/html; charset=utf-8"
	b.body = []byte(html)
	return b
}

// Write sends the built response to the http.ResponseWriter.
func (b *HTMXResponseBuilder) Write(w http.ResponseWriter) {
	for name, value := range b.headers {
		w.Header().Set(name, value)
	}
	if len(b.triggers) > 0 {
		if triggerJSON, err := json.Marshal(b.triggers); err == nil {
			w.Header().Set("HX-Trigger", string(triggerJSON))
		}
	}
	w.WriteHeader(b.statusCode)
	if len(b.body) > 0 {
		_, _ = w.Write(b.body)
	}
}

// SuccessResponse is a 200 with an escaped success message.
func SuccessResponse(message string) *HTMXResponseBuilder {
	return NewHTMXResponse().BodyHTML(`<div class="success">` + template.HTMLEscapeString(message) + `</div>`)
}

// ErrorResponse creates a standard error response with HTML formatting.
// The message is HTML-escaped.
func ErrorResponse(statusCode int, message string) *HTMXResponseBuilder {
	return NewHTMXResponse().
		Status(statusCode).
		BodyHTML(`<div class="error">` + template.HTMLEscapeString(message) + `</div>`)
}

// BadRequestError is a 400 for requests that cannot be parsed.
func BadRequestError(message string) *HTMXResponseBuilder {
	return ErrorResponse(http.StatusBadRequest, message)
}

// UnprocessableEntityError is a 422 for input that fails validation.
func UnprocessableEntityError(message string) *HTMXResponseBuilder {
	return ErrorResponse(http.StatusUnprocessableEntity, message)
}

// BadGatewayError is a 502 for failures of the accounting API.
func BadGatewayError(message string) *HTMXResponseBuilder {
	return ErrorResponse(http.StatusBadGateway, message)
}

// ServiceUnavailableError is a 503 for features that are switched off.
func ServiceUnavailableError(message string) *HTMXResponseBuilder {
	return ErrorResponse(http.StatusServiceUnavailable, message)
}

// RedirectResponse sends HTMX requests to url with HX-Redirect and plain
// requests with a 303.
func RedirectResponse(w http.ResponseWriter, r *http.Request, url string) {
	if isHTMX(r) {
		NewHTMXResponse().Header("HX-Redirect", url).Write(w)
		return
	}
	http.Redirect(w, r, url, http.StatusSeeOther)
}
