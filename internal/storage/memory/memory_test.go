package memory

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"ledger/internal/core"
	"ledger/internal/ledger"
	"ledger/internal/ledger/ledgertest"
)

func TestMemoryStorePosting(t *testing.T) {
	ledgertest.Run(t, func(t *testing.T) ledger.Store { return New() })
}

func TestNewFromFilesSeeds(t *testing.T) {
	dir := t.TempDir()
	accounts := "# seeded accounts\nasset_bank:Checking\nexpense:Expenses - Groceries\n\nasset_bank:Checking\n"
	categories := "expense:Groceries\nincome:Salary\n"
	if err := os.WriteFile(filepath.Join(dir, "seed_accounts.txt"), []byte(accounts), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "seed_categories.txt"), []byte(categories), 0o644); err != nil {
		t.Fatal(err)
	}

	s, err := NewFromFiles(dir)
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	ctx := context.Background()
	accs, _ := s.ListAccounts(ctx)
	if len(accs) != 2 {
		t.Fatalf("expected 2 accounts, got %+v", accs)
	}
	if accs[0].Name != "Checking" || accs[0].Type != core.AssetBank || !accs[0].Balance.IsZero() {
		t.Fatalf("unexpected first account %+v", accs[0])
	}
	cats, _ := s.ListCategories(ctx)
	if len(cats) != 2 || cats[1].Type != core.IncomeCategory {
		t.Fatalf("unexpected categories %+v", cats)
	}
}

func TestNewFromFilesMissingDir(t *testing.T) {
	s, err := NewFromFiles(filepath.Join(t.TempDir(), "absent"))
	if err != nil {
		t.Fatalf("missing seed files should not fail: %v", err)
	}
	accs, _ := s.ListAccounts(context.Background())
	if len(accs) != 0 {
		t.Fatalf("expected empty store, got %d accounts", len(accs))
	}
}

func TestNewFromFilesUnreadableSeed(t *testing.T) {
	dir := t.TempDir()
	// A directory where the seed file should be opens fine but cannot be read.
	if err := os.Mkdir(filepath.Join(dir, "seed_accounts.txt"), 0o755); err != nil {
		t.Fatal(err)
	}
	if _, err := NewFromFiles(dir); err == nil {
		t.Fatal("expected error for unreadable seed file")
	}
}

func TestNewFromFilesRejectsBadType(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "seed_accounts.txt"), []byte("savings:Piggy\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := NewFromFiles(dir); err == nil {
		t.Fatal("expected error for unknown account type")
	}
}

func TestWithinTxHonoursCancelledContext(t *testing.T) {
	s := New()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	called := false
	err := s.WithinTx(ctx, func(ledger.Tx) error { called = true; return nil })
	if err == nil || called {
		t.Fatalf("expected cancelled unit to be skipped, err=%v called=%v", err, called)
	}
}
