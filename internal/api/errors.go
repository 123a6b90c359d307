package api

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrUnauthorized means the session tokens are no longer accepted and
	// could not be refreshed.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrNotFound is returned for 404 answers.
	ErrNotFound = errors.New("not found")
	// ErrMalformedPayload means the response decoded but failed validation.
	ErrMalformedPayload = errors.New("malformed payload")
	// ErrNoData means the API answered without content: a null data field,
	// or success=false on a 2xx status.
	ErrNoData = errors.New("no data")
)

// Error is a failed API call: a non-2xx status or an envelope with
// success=false.
type Error struct {
	Status   int
	Message  string
	Endpoint string
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = http.StatusText(e.Status)
	}
	if e.Endpoint != "" {
		return fmt.Sprintf("api %s: %d %s", e.Endpoint, e.Status, msg)
	}
	return fmt.Sprintf("api: %d %s", e.Status, msg)
}

// Is lets errors.Is match the sentinel errors by status.
func (e *Error) Is(target error) bool {
	switch target {
	case ErrUnauthorized:
		return e.Status == http.StatusUnauthorized
	case ErrNotFound:
		return e.Status == http.StatusNotFound
	case ErrNoData:
		return e.Status >= 200 && e.Status <= 299
	}
	return false
}

// UserMessage returns the server's message, or a generic one.
func UserMessage(err error) string {
	var apiErr *Error
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		return apiErr.Message
	}
	switch {
	case errors.Is(err, ErrUnauthorized):
		return "Your session has expired. Please sign in again."
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrNoData):
		return "The requested data was not found."
	case errors.Is(err, ErrMalformedPayload):
		return "The server returned data that could not be read."
	}
	return "The accounting service is unavailable. Please try again."
}
