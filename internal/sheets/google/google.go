package google

import (
	"context"
	"errors"
	"fmt"
	"sync"

	applog "ledgerbook/internal/log"
	ports "ledgerbook/internal/sheets"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"
)

// Client appends export blocks to one tab of a spreadsheet.
type Client struct {
	svc           *gsheet.Service
	spreadsheetID string
	sheetName     string
	logger        *applog.Logger

	mu         sync.Mutex
	sheetReady bool
}

var _ ports.ExportWriter = (*Client)(nil)

// New creates a Sheets client authenticated with service account credentials.
func New(ctx context.Context, spreadsheetID, sheetName string, credentialsJSON []byte, logger *applog.Logger) (*Client, error) {
	if spreadsheetID == "" {
		return nil, errors.New("missing spreadsheet id")
	}
	if len(credentialsJSON) == 0 {
		return nil, errors.New("missing service account credentials")
	}
	svc, err := gsheet.NewService(ctx,
		goption.WithCredentialsJSON(credentialsJSON),
		goption.WithScopes(gsheet.SpreadsheetsScope))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	return NewWithService(svc, spreadsheetID, sheetName, logger), nil
}

// NewWithService wraps an already configured service.
func NewWithService(svc *gsheet.Service, spreadsheetID, sheetName string, logger *applog.Logger) *Client {
	if logger == nil {
		logger = applog.Discard()
	}
	if sheetName == "" {
		sheetName = "Ledger"
	}
	return &Client{
		svc:           svc,
		spreadsheetID: spreadsheetID,
		sheetName:     sheetName,
		logger:        logger.WithComponent(applog.ComponentSheets),
	}
}

// WriteExport writes the export below whatever the tab already holds,
// separated by one blank row, and returns the A1 range it occupies.
func (c *Client) WriteExport(ctx context.Context, e ports.Export) (string, error) {
	if err := e.Validate(); err != nil {
		return "", fmt.Errorf("validation failed: %w", err)
	}
	if c.svc == nil {
		return "", errors.New("sheets service not initialized")
	}
	if err := c.ensureSheet(ctx); err != nil {
		return "", err
	}

	col := a1Range(c.sheetName, "A:A")
	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, col).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("failed to get sheet dimensions for %s: %w", c.sheetName, err)
	}
	start := nextBlockRow(len(resp.Values))

	values := ports.Values(e)
	rng := a1Range(c.sheetName, fmt.Sprintf("A%d:E%d", start, start+len(values)-1))
	// RAW keeps memos starting with "=" from being evaluated as formulas
	_, err = c.svc.Spreadsheets.Values.Update(c.spreadsheetID, rng, &gsheet.ValueRange{Values: values}).
		ValueInputOption("RAW").Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("failed to write %s: %w", rng, err)
	}

	c.logger.InfoContext(ctx, "Export written to sheet",
		applog.FieldJobID, e.JobID,
		applog.FieldTxCount, len(e.Rows),
		"range", rng)
	return rng, nil
}

// ensureSheet adds the export tab when the spreadsheet does not have it yet.
func (c *Client) ensureSheet(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sheetReady {
		return nil
	}
	ss, err := c.svc.Spreadsheets.Get(c.spreadsheetID).Fields("sheets.properties.title").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("read spreadsheet %s: %w", c.spreadsheetID, err)
	}
	for _, sh := range ss.Sheets {
		if sh.Properties != nil && sh.Properties.Title == c.sheetName {
			c.sheetReady = true
			return nil
		}
	}
	req := &gsheet.BatchUpdateSpreadsheetRequest{Requests: []*gsheet.Request{{
		AddSheet: &gsheet.AddSheetRequest{Properties: &gsheet.SheetProperties{Title: c.sheetName}},
	}}}
	if _, err := c.svc.Spreadsheets.BatchUpdate(c.spreadsheetID, req).Context(ctx).Do(); err != nil {
		return fmt.Errorf("add sheet %s: %w", c.sheetName, err)
	}
	c.logger.InfoContext(ctx, "Created export sheet", "sheet", c.sheetName)
	c.sheetReady = true
	return nil
}
