package backend

import (
	"context"

	"ledgerbook/internal/session"
	"ledgerbook/internal/sheets"
)

// Pinger is implemented by stores the readiness check can ping.
type Pinger interface {
	Ping(ctx context.Context) error
}

// CleanupFunc represents a cleanup function for resources
type CleanupFunc func() error

// SessionResult contains the session store and optional cleanup function.
type SessionResult struct {
	Store session.Store
	// Pinger is nil for stores without a connection to check.
	Pinger  Pinger
	Cleanup CleanupFunc
}

// Factory creates backends based on configuration
type Factory interface {
	CreateSessionStore(ctx context.Context, config Config) (*SessionResult, error)
	CreateExportWriter(ctx context.Context, config Config) (sheets.ExportWriter, error)
}

// Config holds configuration for backend creation
type Config struct {
	SessionType SessionBackendType
	PostgresDSN string
	MySQLDSN    string

	ExportType          ExportBackendType
	GoogleSpreadsheetID string
	GoogleSheetName     string
	// GoogleCredentials loads service account JSON on demand.
	GoogleCredentials func() ([]byte, error)
}

type (
	SessionBackendType string
	ExportBackendType  string
)

const (
	MemorySessions   SessionBackendType = "memory"
	SQLiteSessions   SessionBackendType = "sqlite"
	PostgresSessions SessionBackendType = "postgres"
	MySQLSessions    SessionBackendType = "mysql"

	MemoryExports ExportBackendType = "memory"
	SheetsExports ExportBackendType = "sheets"
)

func (t SessionBackendType) IsValid() bool {
	switch t {
	case MemorySessions, SQLiteSessions, PostgresSessions, MySQLSessions:
		return true
	}
	return false
}

func (t SessionBackendType) String() string { return string(t) }

func (t ExportBackendType) IsValid() bool {
	return t == MemoryExports || t == SheetsExports
}

func (t ExportBackendType) String() string { return string(t) }
