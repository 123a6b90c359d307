// Package http provides HTTP server and handler implementations.
//
// This file holds the request parsing shared by handlers: ledger view
// parameters, month ranges and bodies sent either as forms or as JSON.

package http

import (
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"ledgerbook/internal/core"
	"ledgerbook/internal/services"
)

const maxBodyBytes = 64 << 10

// LedgerParams is what /ledger, /ui/ledger-view and /exports are asked for.
type LedgerParams struct {
	AccountID int64
	From, To  core.YearMonth
	Query     core.ViewQuery
}

// ParseLedgerParams reads accountId, filter, sort, from and to from values.
// An unknown filter or sort is an error, and so is a well-formed range that
// is inverted or longer than services.MaxRangeMonths. Months that do not
// parse fall back to the default range.
func ParseLedgerParams(values url.Values, defFrom, defTo core.YearMonth) (LedgerParams, error) {
	filter, err := core.ParseFilterMode(values.Get("filter"))
	if err != nil {
		return LedgerParams{}, err
	}
	sort, err := core.ParseSortOrder(values.Get("sort"))
	if err != nil {
		return LedgerParams{}, err
	}
	p := LedgerParams{
		AccountID: parseID(values.Get("accountId")),
		From:      defFrom,
		To:        defTo,
		Query:     core.ViewQuery{Filter: filter, Sort: sort},
	}

	from, errFrom := core.ParseYearMonth(strings.TrimSpace(values.Get("from")))
	to, errTo := core.ParseYearMonth(strings.TrimSpace(values.Get("to")))
	switch {
	case errFrom == nil && errTo == nil:
	case errFrom == nil:
		to = defTo
	case errTo == nil:
		from = to.AddMonths(-(services.DefaultRangeMonths - 1))
	default:
		return p, nil
	}
	if err := services.CheckRange(from, to); err != nil {
		return LedgerParams{}, err
	}
	p.From, p.To = from, to
	return p, nil
}

// Encode renders the parameters as a query string for links and forms.
func (p LedgerParams) Encode() string {
	v := url.Values{}
	if p.AccountID > 0 {
		v.Set("accountId", strconv.FormatInt(p.AccountID, 10))
	}
	v.Set("filter", string(p.Query.Filter))
	v.Set("sort", string(p.Query.Sort))
	v.Set("from", p.From.String())
	v.Set("to", p.To.String())
	return v.Encode()
}

// RequestBodyParser reads a body sent as JSON or as a form, as htmx
// json-enc and plain forms both post here.
type RequestBodyParser struct {
	body        []byte
	contentType string
	jsonData    map[string]any
	formData    url.Values
	parsed      bool
	err         error
}

// NewRequestBodyParser reads the body once, up to maxBodyBytes.
func NewRequestBodyParser(r *http.Request) *RequestBodyParser {
	p := &RequestBodyParser{contentType: r.Header.Get("Content-Type")}
	p.body, p.err = io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	return p
}

// Parse decodes the body once; later calls return the first result.
func (p *RequestBodyParser) Parse() error {
	if p.parsed {
		return p.err
	}
	p.parsed = true

	if p.err != nil {
		return p.err
	}
	if len(p.body) == 0 {
		p.formData = url.Values{}
		return nil
	}
	if p.body[0] == '{' || strings.HasPrefix(p.contentType, "application/json") {
		p.jsonData = make(map[string]any)
		p.err = json.Unmarshal(p.body, &p.jsonData)
		return p.err
	}
	p.formData, p.err = url.ParseQuery(string(p.body))
	return p.err
}

// Get returns a sanitized value from the parsed data (JSON or form).
func (p *RequestBodyParser) Get(key string) string {
	if p.jsonData != nil {
		if val, ok := p.jsonData[key]; ok {
			return sanitizeInput(stringValue(val))
		}
		return ""
	}
	if p.formData != nil {
		return sanitizeInput(p.formData.Get(key))
	}
	return ""
}

// Has reports whether key was sent at all, even empty.
func (p *RequestBodyParser) Has(key string) bool {
	if p.jsonData != nil {
		_, ok := p.jsonData[key]
		return ok
	}
	return p.formData != nil && p.formData.Has(key)
}

// IsJSON reports whether the body was sent as JSON.
func (p *RequestBodyParser) IsJSON() bool {
	return p.jsonData != nil
}

func stringValue(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(val)
	default:
		return ""
	}
}

// ParseFormOrFail parses the request form and returns an error response on
// failure, nil on success.
func ParseFormOrFail(w http.ResponseWriter, r *http.Request) *HTMXResponseBuilder {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := r.ParseForm(); err != nil {
		return BadRequestError("Malformed request")
	}
	return nil
}
