package backend

import (
	"context"
	"fmt"

	applog "ledgerbook/internal/log"
	"ledgerbook/internal/session"
	"ledgerbook/internal/sheets"
	gsheet "ledgerbook/internal/sheets/google"
	"ledgerbook/internal/sheets/memory"
	"ledgerbook/internal/storage"
)

// DefaultFactory implements the Factory interface
type DefaultFactory struct {
	logger *applog.Logger
	sqlite *storage.SQLiteRepository
}

// NewFactory creates a new backend factory. The SQLite repository, which
// also holds export jobs, is shared with the sqlite session backend.
func NewFactory(logger *applog.Logger, sqlite *storage.SQLiteRepository) Factory {
	if logger == nil {
		logger = applog.Discard()
	}
	return &DefaultFactory{
		logger: logger.WithComponent(applog.ComponentBackend),
		sqlite: sqlite,
	}
}

// CreateSessionStore implements Factory.CreateSessionStore
func (f *DefaultFactory) CreateSessionStore(ctx context.Context, config Config) (*SessionResult, error) {
	switch config.SessionType {
	case MemorySessions:
		f.logger.Info("Initialized memory session store")
		return &SessionResult{Store: session.NewMemoryStore()}, nil

	case SQLiteSessions:
		if f.sqlite == nil {
			return nil, fmt.Errorf("sqlite session backend needs an open SQLite repository")
		}
		f.logger.Info("Using SQLite session store")
		// the repository is closed by its owner
		return &SessionResult{Store: f.sqlite, Pinger: f.sqlite}, nil

	case PostgresSessions:
		store, err := storage.NewPostgresSessionStore(ctx, config.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize postgres session store: %w", err)
		}
		f.logger.Info("Initialized postgres session store")
		return &SessionResult{Store: store, Pinger: store, Cleanup: store.Close}, nil

	case MySQLSessions:
		store, err := storage.NewMySQLSessionStore(ctx, config.MySQLDSN)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize mysql session store: %w", err)
		}
		f.logger.Info("Initialized mysql session store")
		return &SessionResult{Store: store, Pinger: store, Cleanup: store.Close}, nil
	}
	return nil, fmt.Errorf("unsupported session backend: %s", config.SessionType)
}

// CreateExportWriter implements Factory.CreateExportWriter
func (f *DefaultFactory) CreateExportWriter(ctx context.Context, config Config) (sheets.ExportWriter, error) {
	switch config.ExportType {
	case MemoryExports:
		f.logger.Info("Initialized memory export writer")
		return memory.New(), nil

	case SheetsExports:
		if config.GoogleCredentials == nil {
			return nil, fmt.Errorf("missing Google credentials loader")
		}
		creds, err := config.GoogleCredentials()
		if err != nil {
			return nil, fmt.Errorf("load Google credentials: %w", err)
		}
		cli, err := gsheet.New(ctx, config.GoogleSpreadsheetID, config.GoogleSheetName, creds, f.logger)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize Google Sheets client: %w", err)
		}
		f.logger.Info("Initialized Google Sheets export writer",
			"sheet", config.GoogleSheetName)
		return cli, nil
	}
	return nil, fmt.Errorf("unsupported export backend: %s", config.ExportType)
}
