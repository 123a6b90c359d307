// Package api is the typed client for the remote accounting API. Every call
// decodes the {success,data,message,timestamp} envelope, turns failures into
// *Error values and validates payloads before they reach the core.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	applog "ledgerbook/internal/log"

	"golang.org/x/oauth2"
)

const maxResponseBytes = 4 << 20

// Client talks to the accounting API. A Client without a token source can
// only call the public auth endpoints; use WithTokens for everything else.
type Client struct {
	baseURL string
	http    *http.Client
	tokens  *SessionTokenSource
	logger  *applog.Logger
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient replaces the pooled default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithLogger sets the logger used for request tracing.
func WithLogger(l *applog.Logger) Option {
	return func(c *Client) { c.logger = l.WithComponent(applog.ComponentAPI) }
}

// New creates an unauthenticated client for baseURL.
func New(baseURL string, timeout time.Duration, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    newHTTPClientWithPooling(timeout),
		logger:  applog.Discard(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// WithTokens returns a copy of c that authenticates with ts.
func (c *Client) WithTokens(ts *SessionTokenSource) *Client {
	cp := *c
	cp.tokens = ts
	return &cp
}

// newHTTPClientWithPooling keeps connections to the API alive across the
// concurrent month fetches.
func newHTTPClientWithPooling(timeout time.Duration) *http.Client {
	dialer := &net.Dialer{
		Timeout:   10 * time.Second,
		KeepAlive: 30 * time.Second,
	}
	transport := &http.Transport{
		DialContext:           dialer.DialContext,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   16,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: timeout,
		ExpectContinueTimeout: time.Second,
		ForceAttemptHTTP2:     true,
	}
	return &http.Client{Transport: transport, Timeout: timeout}
}

type envelope struct {
	Success   bool            `json:"success"`
	Data      json.RawMessage `json:"data"`
	Message   string          `json:"message"`
	Timestamp string          `json:"timestamp"`
}

type request struct {
	method string
	path   string
	query  url.Values
	body   any
	public bool
}

// call performs r and decodes the envelope's data into out (which may be nil).
// On a 401 with a token source attached, the token is refreshed once and the
// request retried.
func (c *Client) call(ctx context.Context, r request, out any) error {
	var payload []byte
	if r.body != nil {
		b, err := json.Marshal(r.body)
		if err != nil {
			return fmt.Errorf("encode %s %s: %w", r.method, r.path, err)
		}
		payload = b
	}

	authed := !r.public && c.tokens != nil
	var access string
	if authed {
		tok, err := c.tokens.TokenContext(ctx)
		if err != nil {
			return fmt.Errorf("%s %s: %w", r.method, r.path, ErrUnauthorized)
		}
		access = tok.AccessToken
	}

	err := c.once(ctx, r, payload, access, out)
	var apiErr *Error
	if !authed || !errors.As(err, &apiErr) || apiErr.Status != http.StatusUnauthorized {
		return err
	}

	c.logger.DebugContext(ctx, "Access token rejected, refreshing", applog.FieldEndpoint, r.path)
	access, err = c.tokens.ForceRefresh(ctx, access)
	if err != nil {
		return fmt.Errorf("%s %s: %w", r.method, r.path, ErrUnauthorized)
	}
	return c.once(ctx, r, payload, access, out)
}

func (c *Client) once(ctx context.Context, r request, payload []byte, access string, out any) error {
	u := c.baseURL + r.path
	if len(r.query) > 0 {
		u += "?" + r.query.Encode()
	}
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, r.method, u, body)
	if err != nil {
		return fmt.Errorf("build request %s %s: %w", r.method, r.path, err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if access != "" {
		bearer(access).SetAuthHeader(req)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", r.method, r.path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("read %s %s: %w", r.method, r.path, err)
	}
	c.logger.DebugContext(ctx, "API call",
		applog.FieldMethod, r.method,
		applog.FieldEndpoint, r.path,
		applog.FieldStatusCode, resp.StatusCode,
		applog.FieldDuration, time.Since(start).Milliseconds())

	return decodeEnvelope(r.path, resp.StatusCode, raw, out)
}

func decodeEnvelope(endpoint string, status int, raw []byte, out any) error {
	var env envelope
	hasEnvelope := len(bytes.TrimSpace(raw)) > 0 && json.Unmarshal(raw, &env) == nil

	if status < 200 || status > 299 {
		e := &Error{Status: status, Endpoint: endpoint}
		if hasEnvelope {
			e.Message = env.Message
		}
		return e
	}
	if !hasEnvelope {
		if len(bytes.TrimSpace(raw)) == 0 {
			return nil
		}
		return fmt.Errorf("%s: %w: response is not an API envelope", endpoint, ErrMalformedPayload)
	}
	if !env.Success {
		return &Error{Status: status, Message: env.Message, Endpoint: endpoint}
	}
	if out == nil || len(env.Data) == 0 || string(env.Data) == "null" {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("%s: %w: %v", endpoint, ErrMalformedPayload, err)
	}
	return nil
}

// bearer is an oauth2 token carrying just an access token.
func bearer(access string) *oauth2.Token {
	return &oauth2.Token{AccessToken: access, TokenType: "Bearer"}
}
