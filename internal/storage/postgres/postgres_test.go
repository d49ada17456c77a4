package postgres

import (
	"context"
	"os"
	"testing"

	"bunchee/internal/ledger"
	"bunchee/internal/ledger/ledgertest"
)

// Set BUNCHEE_TEST_DATABASE_URL to run against a disposable database; the
// tables are truncated before each case.
func TestStoreContract(t *testing.T) {
	url := os.Getenv("BUNCHEE_TEST_DATABASE_URL")
	if url == "" {
		t.Skip("BUNCHEE_TEST_DATABASE_URL not set")
	}

	ledgertest.Run(t, func(t *testing.T) ledger.Store {
		ctx := context.Background()
		s, err := New(ctx, url)
		if err != nil {
			t.Fatalf("connect: %v", err)
		}
		if _, err := s.pool.Exec(ctx, `TRUNCATE entries, users RESTART IDENTITY CASCADE`); err != nil {
			t.Fatalf("truncate: %v", err)
		}
		t.Cleanup(func() { s.Close() })
		return s
	})
}

func TestEscapeLike(t *testing.T) {
	if got := escapeLike(`50%_a\b`); got != `50\%\_a\\b` {
		t.Fatalf("unexpected escape %q", got)
	}
}
