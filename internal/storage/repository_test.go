package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"bunchee/internal/core"
	"bunchee/internal/ledger"
	"bunchee/internal/ledger/ledgertest"
)

func newTestRepo(t *testing.T) *SQLiteRepository {
	t.Helper()
	repo, err := NewSQLiteRepository(filepath.Join(t.TempDir(), "data", "test.db"))
	if err != nil {
		t.Fatalf("open repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo
}

func TestSQLiteRepositoryContract(t *testing.T) {
	ledgertest.Run(t, func(t *testing.T) ledger.Store { return newTestRepo(t) })
}

func TestMigrationsAreIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	for i := 0; i < 2; i++ {
		repo, err := NewSQLiteRepository(path)
		if err != nil {
			t.Fatalf("open %d: %v", i, err)
		}
		repo.Close()
	}
}

func TestSearchEscapesLikePattern(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	u, err := repo.CreateUser(ctx, core.User{Username: "alice", PasswordHash: "x"})
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	at := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	for _, name := range []string{"50% off", "500 sheets"} {
		if _, err := repo.CreateEntry(ctx, core.Entry{UserID: u.ID, Kind: core.Income, CustomName: name, Amount: core.Money{Cents: 1}, CreatedAt: at}); err != nil {
			t.Fatalf("create entry: %v", err)
		}
	}

	page, err := repo.SearchEntries(ctx, ledger.Query{Text: "50%"})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if page.Total != 1 || page.Entries[0].CustomName != "50% off" {
		t.Fatalf("expected literal %% match, got %+v", page)
	}
}

func TestTimestampsRoundTripInUTC(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	u, _ := repo.CreateUser(ctx, core.User{Username: "alice", PasswordHash: "x"})
	loc := time.FixedZone("ICT", 7*3600)
	at := time.Date(2025, 4, 1, 1, 30, 0, 123, loc)

	e, err := repo.CreateEntry(ctx, core.Entry{UserID: u.ID, Kind: core.Expense, Category: "ค่าน้ำ", Amount: core.Money{Cents: 10}, CreatedAt: at})
	if err != nil {
		t.Fatalf("create entry: %v", err)
	}
	got, err := repo.GetEntry(ctx, e.ID)
	if err != nil {
		t.Fatalf("get entry: %v", err)
	}
	if !got.CreatedAt.Equal(at) {
		t.Fatalf("created_at %v, want %v", got.CreatedAt, at)
	}
	if err := repo.Ping(ctx); err != nil {
		t.Fatalf("ping: %v", err)
	}
}
