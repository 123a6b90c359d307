package storage

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"ledgerbook/internal/session"

	"github.com/google/uuid"
)

// testSessionStore runs the session.Store behaviour every backend shares.
// Rows are dated in 1990 so a purge never touches live sessions of a shared
// database.
func testSessionStore(t *testing.T, store session.Store) {
	t.Helper()
	ctx := context.Background()
	base := time.Date(1990, 1, 1, 12, 0, 0, 0, time.UTC)

	s := &session.Session{
		ID:           uuid.NewString(),
		User:         session.User{ID: 7, Email: "a@b.c", Name: "Ann"},
		AccessToken:  "acc",
		RefreshToken: "ref",
		CreatedAt:    base,
		ExpiresAt:    base.Add(time.Hour),
	}
	kept := &session.Session{
		ID:        uuid.NewString(),
		User:      session.User{ID: 8, Email: "b@b.c"},
		CreatedAt: base,
		ExpiresAt: base.Add(3 * time.Hour),
	}
	t.Cleanup(func() {
		_ = store.Delete(ctx, s.Key())
		_ = store.Delete(ctx, kept.Key())
	})

	for _, sess := range []*session.Session{s, kept} {
		if err := store.Save(ctx, sess); err != nil {
			t.Fatalf("Save: %v", err)
		}
	}

	got, err := store.Get(ctx, s.Key())
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.User != s.User || got.AccessToken != "acc" || !got.ExpiresAt.Equal(s.ExpiresAt) {
		t.Errorf("Get = %+v", got)
	}
	if got.ID != "" {
		t.Error("raw id must not be stored")
	}

	s.AccessToken = "acc2"
	s.SelectedBookID = 3
	if err := store.Save(ctx, s); err != nil {
		t.Fatalf("Save update: %v", err)
	}
	got, err = store.Get(ctx, s.Key())
	if err != nil || got.AccessToken != "acc2" || got.SelectedBookID != 3 {
		t.Errorf("after update = %+v, %v", got, err)
	}

	if _, err := store.Get(ctx, session.HashID(uuid.NewString())); !errors.Is(err, session.ErrNotFound) {
		t.Errorf("unknown key err = %v", err)
	}

	n, err := store.PurgeExpired(ctx, base.Add(2*time.Hour))
	if err != nil || n < 1 {
		t.Fatalf("PurgeExpired = %d, %v", n, err)
	}
	if _, err := store.Get(ctx, s.Key()); !errors.Is(err, session.ErrNotFound) {
		t.Errorf("purged session still present: %v", err)
	}
	if _, err := store.Get(ctx, kept.Key()); err != nil {
		t.Errorf("unexpired session purged: %v", err)
	}

	if err := store.Delete(ctx, kept.Key()); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := store.Get(ctx, kept.Key()); !errors.Is(err, session.ErrNotFound) {
		t.Errorf("deleted session still present: %v", err)
	}
}

func TestSQLiteRepository_SessionStore(t *testing.T) {
	testSessionStore(t, newTestRepo(t))
}

func TestPostgresSessionStore(t *testing.T) {
	dsn := os.Getenv("LEDGERBOOK_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("LEDGERBOOK_TEST_POSTGRES_DSN not set")
	}
	store, err := NewPostgresSessionStore(context.Background(), dsn)
	if err != nil {
		t.Fatalf("NewPostgresSessionStore: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	if err := store.Ping(context.Background()); err != nil {
		t.Fatalf("Ping: %v", err)
	}
	testSessionStore(t, store)
}

func TestMySQLSessionStore(t *testing.T) {
	dsn := os.Getenv("LEDGERBOOK_TEST_MYSQL_DSN")
	if dsn == "" {
		t.Skip("LEDGERBOOK_TEST_MYSQL_DSN not set")
	}
	store, err := NewMySQLSessionStore(context.Background(), dsn)
	if err != nil {
		t.Fatalf("NewMySQLSessionStore: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	if err := store.Ping(context.Background()); err != nil {
		t.Fatalf("Ping: %v", err)
	}
	testSessionStore(t, store)
}

func TestNewMySQLSessionStore_BadDSN(t *testing.T) {
	if _, err := NewMySQLSessionStore(context.Background(), "::not a dsn"); err == nil {
		t.Fatal("expected a parse error")
	}
}
