package postgres

import (
	"context"
	"os"
	"testing"

	"ledger/internal/ledger"
	"ledger/internal/ledger/ledgertest"
)

func TestMigrateURL(t *testing.T) {
	tests := []struct{ in, want string }{
		{"postgres://u:p@localhost:5432/ledger", "pgx5://u:p@localhost:5432/ledger"},
		{"postgresql://localhost/ledger?sslmode=disable", "pgx5://localhost/ledger?sslmode=disable"},
		{"pgx5://localhost/ledger", "pgx5://localhost/ledger"},
	}
	for _, tt := range tests {
		if got := migrateURL(tt.in); got != tt.want {
			t.Errorf("migrateURL(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

// Requires a disposable database; every subtest truncates it.
func TestPostgresStorePosting(t *testing.T) {
	url := os.Getenv("LEDGER_TEST_POSTGRES_URL")
	if url == "" {
		t.Skip("LEDGER_TEST_POSTGRES_URL not set")
	}
	ledgertest.Run(t, func(t *testing.T) ledger.Store {
		ctx := context.Background()
		s, err := Open(ctx, url)
		if err != nil {
			t.Fatalf("open: %v", err)
		}
		if _, err := s.pool.Exec(ctx, `TRUNCATE transactions, categories, accounts RESTART IDENTITY CASCADE`); err != nil {
			t.Fatalf("truncate: %v", err)
		}
		return s
	})
}
