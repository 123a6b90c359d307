package memory

import (
	"context"
	"fmt"
	"sync"

	"ledgerbook/internal/core"
	ports "ledgerbook/internal/sheets"
)

// Store keeps exports in memory. Used in development and tests.
type Store struct {
	mu      sync.Mutex
	exports []ports.Export
}

var _ ports.ExportWriter = (*Store)(nil)

func New() *Store {
	return &Store{}
}

// WriteExport stores the export and returns a synthetic reference.
func (s *Store) WriteExport(_ context.Context, e ports.Export) (string, error) {
	if err := e.Validate(); err != nil {
		return "", err
	}
	e.Rows = append([]core.Transaction(nil), e.Rows...)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.exports = append(s.exports, e)
	return fmt.Sprintf("mem:%d", len(s.exports)), nil
}

// Exports returns what has been written so far, oldest first.
func (s *Store) Exports() []ports.Export {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]ports.Export(nil), s.exports...)
}
