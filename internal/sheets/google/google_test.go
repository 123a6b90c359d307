package google

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"ledgerbook/internal/core"
	ports "ledgerbook/internal/sheets"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"
)

// fakeSheets serves the handful of Sheets API calls the writer makes.
type fakeSheets struct {
	mu        sync.Mutex
	titles    []string
	usedRows  int
	addSheets int
	writes    []gsheet.ValueRange
}

func (f *fakeSheets) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	w.Header().Set("Content-Type", "application/json")
	path := r.URL.Path

	switch {
	case strings.HasSuffix(path, ":batchUpdate"):
		var req gsheet.BatchUpdateSpreadsheetRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		for _, q := range req.Requests {
			if q.AddSheet != nil {
				f.titles = append(f.titles, q.AddSheet.Properties.Title)
				f.addSheets++
			}
		}
		_, _ = w.Write([]byte(`{"spreadsheetId":"sheet-id","replies":[{}]}`))
	case strings.Contains(path, "/values/") && r.Method == http.MethodGet:
		values := make([][]any, f.usedRows)
		for i := range values {
			values[i] = []any{"x"}
		}
		_ = json.NewEncoder(w).Encode(gsheet.ValueRange{Values: values})
	case strings.Contains(path, "/values/") && r.Method == http.MethodPut:
		if got := r.URL.Query().Get("valueInputOption"); got != "RAW" {
			http.Error(w, `{"error":{"code":400,"message":"bad option"}}`, http.StatusBadRequest)
			return
		}
		var vr gsheet.ValueRange
		_ = json.NewDecoder(r.Body).Decode(&vr)
		f.writes = append(f.writes, vr)
		f.usedRows += len(vr.Values)
		_, _ = w.Write([]byte(`{}`))
	case strings.HasSuffix(path, "/spreadsheets/sheet-id"):
		sheets := make([]*gsheet.Sheet, 0, len(f.titles))
		for _, t := range f.titles {
			sheets = append(sheets, &gsheet.Sheet{Properties: &gsheet.SheetProperties{Title: t}})
		}
		_ = json.NewEncoder(w).Encode(gsheet.Spreadsheet{Sheets: sheets})
	default:
		http.NotFound(w, r)
	}
}

func newTestClient(t *testing.T, fake *fakeSheets, sheetName string) *Client {
	t.Helper()
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)
	svc, err := gsheet.NewService(context.Background(),
		goption.WithEndpoint(srv.URL+"/"),
		goption.WithoutAuthentication(),
		goption.WithHTTPClient(srv.Client()))
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return NewWithService(svc, "sheet-id", sheetName, nil)
}

func testExport() ports.Export {
	rows := []core.Transaction{
		{Date: "2025-01-01", Type: core.Income, Amount: 1000, Memo: "pay", Balance: 1000},
		{Date: "2025-01-02", Type: core.Expense, Amount: 300, Memo: "=lunch", Balance: 700},
	}
	return ports.Export{
		JobID:       1,
		AccountName: "Cash",
		From:        core.NewYearMonth(2025, 1),
		To:          core.NewYearMonth(2025, 1),
		Query:       core.DefaultViewQuery(),
		Rows:        rows,
		Stats:       core.Aggregate(rows),
	}
}

func TestClient_WriteExport(t *testing.T) {
	fake := &fakeSheets{titles: []string{"Other"}}
	c := newTestClient(t, fake, "Ledger")

	ref, err := c.WriteExport(context.Background(), testExport())
	if err != nil {
		t.Fatalf("WriteExport: %v", err)
	}
	if ref != "Ledger!A1:E5" {
		t.Errorf("ref = %q", ref)
	}
	if fake.addSheets != 1 {
		t.Errorf("addSheets = %d, want 1", fake.addSheets)
	}
	if len(fake.writes) != 1 || len(fake.writes[0].Values) != 5 {
		t.Fatalf("writes = %+v", fake.writes)
	}

	ref, err = c.WriteExport(context.Background(), testExport())
	if err != nil {
		t.Fatalf("second WriteExport: %v", err)
	}
	if ref != "Ledger!A7:E11" {
		t.Errorf("second ref = %q, want block after a blank row", ref)
	}
	if fake.addSheets != 1 {
		t.Error("sheet must be created only once")
	}
}

func TestClient_WriteExport_Validation(t *testing.T) {
	c := &Client{spreadsheetID: "test"}
	_, err := c.WriteExport(context.Background(), ports.Export{})
	if !errors.Is(err, ports.ErrEmptyExport) {
		t.Errorf("expected ErrEmptyExport, got %v", err)
	}

	_, err = c.WriteExport(context.Background(), testExport())
	if err == nil || !strings.Contains(err.Error(), "not initialized") {
		t.Errorf("expected uninitialized service error, got %v", err)
	}
}

func TestNew_MissingSettings(t *testing.T) {
	if _, err := New(context.Background(), "", "Ledger", []byte("{}"), nil); err == nil {
		t.Error("expected error for missing spreadsheet id")
	}
	if _, err := New(context.Background(), "id", "Ledger", nil, nil); err == nil {
		t.Error("expected error for missing credentials")
	}
}

func TestA1Range(t *testing.T) {
	tests := []struct {
		sheet, cells, want string
	}{
		{"Ledger", "A:A", "Ledger!A:A"},
		{"2025 Ledger", "A1:E3", "'2025 Ledger'!A1:E3"},
		{"Bob's", "A1", "'Bob''s'!A1"},
	}
	for _, tt := range tests {
		if got := a1Range(tt.sheet, tt.cells); got != tt.want {
			t.Errorf("a1Range(%q, %q) = %q, want %q", tt.sheet, tt.cells, got, tt.want)
		}
	}
}

func TestNextBlockRow(t *testing.T) {
	for used, want := range map[int]int{0: 1, 1: 3, 5: 7} {
		if got := nextBlockRow(used); got != want {
			t.Errorf("nextBlockRow(%d) = %d, want %d", used, got, want)
		}
	}
}
