package importer

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	"ledger/internal/cache"
	"ledger/internal/core"
	"ledger/internal/ledger"
)

const uncategorized = "Uncategorized"

// Provisioner finds or creates the counterpart accounts and categories an
// import needs. Concurrent requests for the same (name, type) share one
// store upsert, and resolved ids are cached.
type Provisioner struct {
	store ledger.Store
	group singleflight.Group
	ids   *cache.LRUCache[int64]
}

func NewProvisioner(store ledger.Store, cacheSize int, ttl time.Duration) *Provisioner {
	return &Provisioner{
		store: store,
		ids:   cache.NewLRUCache[int64](cacheSize, ttl),
	}
}

// Cache exposes the id cache so a cache.Manager can expire entries.
func (p *Provisioner) Cache() *cache.LRUCache[int64] { return p.ids }

// Reset forgets every resolved id, e.g. after a posting named an account
// that no longer exists.
func (p *Provisioner) Reset() { p.ids.Purge() }

// ExpenseAccount returns the id of "Expenses - <label>".
func (p *Provisioner) ExpenseAccount(ctx context.Context, label string) (int64, error) {
	return p.account(ctx, accountName("Expenses", label), core.ExpenseAccount)
}

// IncomeAccount returns the id of "Income - <label>".
func (p *Provisioner) IncomeAccount(ctx context.Context, label string) (int64, error) {
	return p.account(ctx, accountName("Income", label), core.IncomeAccount)
}

// Category returns the id of the category named exactly label.
func (p *Provisioner) Category(ctx context.Context, label string, typ core.CategoryType) (int64, error) {
	key := fmt.Sprintf("category|%s|%s", typ, label)
	return p.resolve(ctx, key, func(tx ledger.Tx) (int64, error) {
		c, err := tx.UpsertCategory(ctx, label, typ)
		return c.ID, err
	})
}

func (p *Provisioner) account(ctx context.Context, name string, typ core.AccountType) (int64, error) {
	key := fmt.Sprintf("account|%s|%s", typ, name)
	return p.resolve(ctx, key, func(tx ledger.Tx) (int64, error) {
		a, err := tx.UpsertAccount(ctx, name, typ)
		return a.ID, err
	})
}

func (p *Provisioner) resolve(ctx context.Context, key string, upsert func(ledger.Tx) (int64, error)) (int64, error) {
	if id, ok := p.ids.Get(key); ok {
		return id, nil
	}
	v, err, _ := p.group.Do(key, func() (any, error) {
		var id int64
		err := p.store.WithinTx(ctx, func(tx ledger.Tx) error {
			var err error
			id, err = upsert(tx)
			return err
		})
		if err != nil {
			return int64(0), err
		}
		p.ids.Set(key, id)
		slog.DebugContext(ctx, "Resolved import counterpart", "key", key, "id", id)
		return id, nil
	})
	if err != nil {
		return 0, fmt.Errorf("provision %s: %w", key, err)
	}
	return v.(int64), nil
}

func accountName(prefix, label string) string {
	if label == "" {
		label = uncategorized
	}
	return prefix + " - " + label
}
