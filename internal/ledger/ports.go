package ledger

import (
	"context"
	"time"

	"ledger/internal/core"
)

// Reader exposes the read side of the ledger store.
type Reader interface {
	GetAccount(ctx context.Context, id int64) (core.Account, error)
	ListAccounts(ctx context.Context) ([]core.Account, error)
	FindAccount(ctx context.Context, name string, typ core.AccountType) (core.Account, error)
	GetCategory(ctx context.Context, id int64) (core.Category, error)
	ListCategories(ctx context.Context) ([]core.Category, error)
	GetTransaction(ctx context.Context, id int64) (core.Transaction, error)
	ListTransactions(ctx context.Context, filter TransactionFilter) ([]core.Transaction, error)
}

// Tx is one all-or-nothing unit of work. Implementations must make the
// balance adjustments atomic increments and serialize concurrent units that
// touch the same account. Transactions read through GetTransaction or
// TransactionsByIDs are held until the unit ends, so a concurrent unit sees
// them only after commit.
type Tx interface {
	Reader

	// LockAccounts returns the accounts with the given ids, holding them
	// for the rest of the unit. Missing ids are simply absent from the result.
	LockAccounts(ctx context.Context, ids ...int64) ([]core.Account, error)
	AdjustBalance(ctx context.Context, accountID int64, delta core.Money) error

	InsertAccount(ctx context.Context, a core.Account) (core.Account, error)
	// UpsertAccount returns the account keyed by (name, type), creating it
	// when absent.
	UpsertAccount(ctx context.Context, name string, typ core.AccountType) (core.Account, error)
	InsertCategory(ctx context.Context, c core.Category) (core.Category, error)
	UpsertCategory(ctx context.Context, name string, typ core.CategoryType) (core.Category, error)

	InsertTransaction(ctx context.Context, t core.Transaction) (core.Transaction, error)
	UpdateTransaction(ctx context.Context, t core.Transaction) (core.Transaction, error)
	TransactionsByIDs(ctx context.Context, ids []int64) ([]core.Transaction, error)
	// DeleteTransactions fails unless every id is removed.
	DeleteTransactions(ctx context.Context, ids []int64) error
}

// Store is a ledger persistence backend.
type Store interface {
	Reader
	// WithinTx runs fn in a single transaction, committing when fn returns
	// nil and rolling back otherwise.
	WithinTx(ctx context.Context, fn func(tx Tx) error) error
	Close() error
}

// EventPublisher receives ledger events after they are committed.
type EventPublisher interface {
	PublishEvent(ctx context.Context, e core.Event) error
}

// TransactionFilter narrows ListTransactions. Zero values match everything.
type TransactionFilter struct {
	AccountID   int64 // matches either side of the posting
	Status      core.Status
	ImportBatch string
	From, To    time.Time // inclusive day range
	Limit       int
}

// Match reports whether t passes the filter; stores without query support
// use it directly.
func (f TransactionFilter) Match(t core.Transaction) bool {
	if f.AccountID != 0 && t.DebitAccountID != f.AccountID && t.CreditAccountID != f.AccountID {
		return false
	}
	if f.Status != "" && t.Status != f.Status {
		return false
	}
	if f.ImportBatch != "" && t.ImportBatch != f.ImportBatch {
		return false
	}
	if !f.From.IsZero() && t.Date.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && t.Date.After(f.To) {
		return false
	}
	return true
}
