package backend

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"ledgerbook/internal/config"
	"ledgerbook/internal/session"
	"ledgerbook/internal/sheets/memory"
	"ledgerbook/internal/storage"
)

func TestConfigValidate(t *testing.T) {
	creds := func() ([]byte, error) { return []byte("{}"), nil }
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"memory", Config{SessionType: MemorySessions, ExportType: MemoryExports}, false},
		{"unknown session", Config{SessionType: "redis", ExportType: MemoryExports}, true},
		{"postgres without dsn", Config{SessionType: PostgresSessions, ExportType: MemoryExports}, true},
		{"mysql with dsn", Config{SessionType: MySQLSessions, MySQLDSN: "u:p@tcp(db)/x", ExportType: MemoryExports}, false},
		{"unknown export", Config{SessionType: MemorySessions, ExportType: "csv"}, true},
		{"sheets without id", Config{SessionType: MemorySessions, ExportType: SheetsExports, GoogleCredentials: creds}, true},
		{"sheets", Config{SessionType: MemorySessions, ExportType: SheetsExports, GoogleSpreadsheetID: "id", GoogleCredentials: creds}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.cfg.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestFromAppConfig(t *testing.T) {
	if _, err := FromAppConfig(nil); err == nil {
		t.Error("expected error for nil config")
	}
	c, err := FromAppConfig(&config.Config{SessionBackend: "sqlite", ExportBackend: "memory"})
	if err != nil {
		t.Fatalf("FromAppConfig: %v", err)
	}
	if c.SessionType != SQLiteSessions || c.ExportType != MemoryExports {
		t.Errorf("config = %+v", c)
	}
}

func TestFactory_CreateSessionStore(t *testing.T) {
	ctx := context.Background()

	res, err := NewFactory(nil, nil).CreateSessionStore(ctx, Config{SessionType: MemorySessions})
	if err != nil {
		t.Fatalf("memory: %v", err)
	}
	if _, ok := res.Store.(*session.MemoryStore); !ok || res.Pinger != nil {
		t.Errorf("memory result = %+v", res)
	}

	if _, err := NewFactory(nil, nil).CreateSessionStore(ctx, Config{SessionType: SQLiteSessions}); err == nil {
		t.Error("sqlite without repository should fail")
	}

	repo, err := storage.NewSQLiteRepository(filepath.Join(t.TempDir(), "s.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer repo.Close()
	res, err = NewFactory(nil, repo).CreateSessionStore(ctx, Config{SessionType: SQLiteSessions})
	if err != nil {
		t.Fatalf("sqlite: %v", err)
	}
	if res.Store != session.Store(repo) || res.Cleanup != nil {
		t.Error("sqlite store should be the shared repository without its own cleanup")
	}
}

func TestFactory_CreateExportWriter(t *testing.T) {
	ctx := context.Background()
	f := NewFactory(nil, nil)

	w, err := f.CreateExportWriter(ctx, Config{ExportType: MemoryExports})
	if err != nil {
		t.Fatalf("memory: %v", err)
	}
	if _, ok := w.(*memory.Store); !ok {
		t.Errorf("writer = %T", w)
	}

	loadErr := errors.New("no file")
	_, err = f.CreateExportWriter(ctx, Config{
		ExportType:        SheetsExports,
		GoogleCredentials: func() ([]byte, error) { return nil, loadErr },
	})
	if !errors.Is(err, loadErr) {
		t.Errorf("err = %v, want credentials error", err)
	}
}
