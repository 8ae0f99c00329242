// Package ledger implements the posting engine: every operation that creates,
// changes or removes a transaction keeps the balances of the two accounts it
// touches in step, inside one store transaction.
package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"ledger/internal/core"
)

// Service is the posting engine.
type Service struct {
	store  Store
	events EventPublisher
	now    func() time.Time
}

// NewService returns a posting engine over store. events may be nil.
func NewService(store Store, events EventPublisher) *Service {
	return &Service{
		store:  store,
		events: events,
		now:    time.Now,
	}
}

// Store returns the backing store.
func (s *Service) Store() Store { return s.store }

// Create inserts a pending transaction and applies its posting.
func (s *Service) Create(ctx context.Context, in core.TransactionInput) (core.Transaction, error) {
	if err := in.Validate(); err != nil {
		return core.Transaction{}, err
	}

	var created core.Transaction
	err := s.store.WithinTx(ctx, func(tx Tx) error {
		if err := lockAccounts(ctx, tx, in.DebitAccountID, in.CreditAccountID); err != nil {
			return err
		}
		if err := checkCategory(ctx, tx, in.CategoryID); err != nil {
			return err
		}
		var err error
		created, err = tx.InsertTransaction(ctx, in.Transaction())
		if err != nil {
			return err
		}
		return applyDeltas(ctx, tx, created.Posting())
	})
	if err != nil {
		return core.Transaction{}, err
	}

	slog.DebugContext(ctx, "Transaction posted",
		"id", created.ID,
		"amount_cents", created.Amount.Cents,
		"debit_account_id", created.DebitAccountID,
		"credit_account_id", created.CreditAccountID)

	s.publish(ctx, core.Event{
		Type:           core.EventTransactionCreated,
		TransactionIDs: []int64{created.ID},
		AccountIDs:     []int64{created.DebitAccountID, created.CreditAccountID},
		ImportBatch:    created.ImportBatch,
	})
	return created, nil
}

// Update applies patch to transaction id. When the patch changes the amount
// or either account, the old posting is reversed and the new one applied.
func (s *Service) Update(ctx context.Context, id int64, patch core.TransactionPatch) (core.Transaction, error) {
	if err := patch.Validate(); err != nil {
		return core.Transaction{}, err
	}

	var old, updated core.Transaction
	err := s.store.WithinTx(ctx, func(tx Tx) error {
		var err error
		old, err = tx.GetTransaction(ctx, id)
		if err != nil {
			return err
		}
		updated, err = updateOne(ctx, tx, old, patch)
		return err
	})
	if err != nil {
		return core.Transaction{}, err
	}

	s.publish(ctx, core.Event{
		Type:           core.EventTransactionUpdated,
		TransactionIDs: []int64{id},
		AccountIDs:     touchedAccounts([]core.Transaction{old, updated}),
	})
	return updated, nil
}

// Delete reverses the posting of transaction id and removes it.
func (s *Service) Delete(ctx context.Context, id int64) error {
	var removed core.Transaction
	err := s.store.WithinTx(ctx, func(tx Tx) error {
		var err error
		removed, err = tx.GetTransaction(ctx, id)
		if err != nil {
			return err
		}
		if err := lockAccounts(ctx, tx, removed.DebitAccountID, removed.CreditAccountID); err != nil {
			return err
		}
		if err := applyDeltas(ctx, tx, removed.Reversal()); err != nil {
			return err
		}
		return tx.DeleteTransactions(ctx, []int64{id})
	})
	if err != nil {
		return err
	}

	s.publish(ctx, core.Event{
		Type:           core.EventTransactionDeleted,
		TransactionIDs: []int64{id},
		AccountIDs:     []int64{removed.DebitAccountID, removed.CreditAccountID},
	})
	return nil
}

// BulkUpdate applies patch to every existing transaction in ids and returns
// how many were updated. Balance-affecting patches re-post each row, so the
// account balances stay consistent afterwards. A failure on any row aborts the batch.
func (s *Service) BulkUpdate(ctx context.Context, ids []int64, patch core.TransactionPatch) (int, error) {
	if err := patch.Validate(); err != nil {
		return 0, err
	}
	ids = uniqueIDs(ids)
	if len(ids) == 0 {
		return 0, nil
	}

	var touched []core.Transaction
	err := s.store.WithinTx(ctx, func(tx Tx) error {
		rows, err := tx.TransactionsByIDs(ctx, ids)
		if err != nil {
			return err
		}
		if patch.TouchesBalance() {
			// Lock every account up front so the lock order stays ascending.
			if err := lockAccounts(ctx, tx, accountsAfterPatch(rows, patch)...); err != nil {
				return err
			}
		}
		for _, old := range rows {
			updated, err := updateOne(ctx, tx, old, patch)
			if err != nil {
				return fmt.Errorf("transaction %d: %w", old.ID, err)
			}
			touched = append(touched, old, updated)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	n := len(touched) / 2
	if n > 0 {
		s.publish(ctx, core.Event{
			Type:           core.EventTransactionsUpdated,
			TransactionIDs: transactionIDs(touched),
			AccountIDs:     touchedAccounts(touched),
		})
	}
	return n, nil
}

// BulkDelete reverses and removes every existing transaction in ids and
// returns how many were removed.
func (s *Service) BulkDelete(ctx context.Context, ids []int64) (int, error) {
	ids = uniqueIDs(ids)
	if len(ids) == 0 {
		return 0, nil
	}

	var rows []core.Transaction
	err := s.store.WithinTx(ctx, func(tx Tx) error {
		var err error
		rows, err = tx.TransactionsByIDs(ctx, ids)
		if err != nil {
			return err
		}
		if len(rows) == 0 {
			return nil
		}
		if err := lockAccounts(ctx, tx, touchedAccounts(rows)...); err != nil {
			return err
		}
		for _, t := range rows {
			if err := applyDeltas(ctx, tx, t.Reversal()); err != nil {
				return err
			}
		}
		return tx.DeleteTransactions(ctx, transactionIDs(rows))
	})
	if err != nil {
		return 0, err
	}

	if len(rows) > 0 {
		s.publish(ctx, core.Event{
			Type:           core.EventTransactionsDeleted,
			TransactionIDs: transactionIDs(rows),
			AccountIDs:     touchedAccounts(rows),
		})
	}
	return len(rows), nil
}

// AccountBalance returns the stored balance of an account.
func (s *Service) AccountBalance(ctx context.Context, accountID int64) (core.Money, error) {
	acc, err := s.store.GetAccount(ctx, accountID)
	if err != nil {
		return core.Money{}, err
	}
	return acc.Balance, nil
}

// Get returns one transaction.
func (s *Service) Get(ctx context.Context, id int64) (core.Transaction, error) {
	return s.store.GetTransaction(ctx, id)
}

// List returns the transactions matching filter ordered by date then id.
func (s *Service) List(ctx context.Context, filter TransactionFilter) ([]core.Transaction, error) {
	return s.store.ListTransactions(ctx, filter)
}

func (s *Service) ListAccounts(ctx context.Context) ([]core.Account, error) {
	return s.store.ListAccounts(ctx)
}

func (s *Service) ListCategories(ctx context.Context) ([]core.Category, error) {
	return s.store.ListCategories(ctx)
}

// CreateAccount adds an account. Accounts always open with a zero balance;
// an opening balance is recorded as a transaction.
func (s *Service) CreateAccount(ctx context.Context, a core.Account) (core.Account, error) {
	a.Name = strings.TrimSpace(a.Name)
	if err := a.Validate(); err != nil {
		return core.Account{}, err
	}
	a.Balance = core.Money{}
	var created core.Account
	err := s.store.WithinTx(ctx, func(tx Tx) error {
		var err error
		created, err = tx.InsertAccount(ctx, a)
		return err
	})
	return created, err
}

// CreateCategory adds a category, checking that its parent exists.
func (s *Service) CreateCategory(ctx context.Context, c core.Category) (core.Category, error) {
	c.Name = strings.TrimSpace(c.Name)
	if err := c.Validate(); err != nil {
		return core.Category{}, err
	}
	var created core.Category
	err := s.store.WithinTx(ctx, func(tx Tx) error {
		if err := checkCategory(ctx, tx, c.ParentID); err != nil {
			return err
		}
		var err error
		created, err = tx.InsertCategory(ctx, c)
		return err
	})
	return created, err
}

// Verify recomputes every balance from transaction history and reports the
// accounts whose stored balance disagrees. It never changes the ledger.
func (s *Service) Verify(ctx context.Context) ([]core.BalanceDrift, error) {
	accounts, err := s.store.ListAccounts(ctx)
	if err != nil {
		return nil, err
	}
	txs, err := s.store.ListTransactions(ctx, TransactionFilter{})
	if err != nil {
		return nil, err
	}
	computed := core.ComputeBalances(txs)

	var drift []core.BalanceDrift
	for _, a := range accounts {
		if c := computed[a.ID]; c != a.Balance {
			drift = append(drift, core.BalanceDrift{
				AccountID: a.ID,
				Name:      a.Name,
				Stored:    a.Balance,
				Computed:  c,
			})
		}
	}
	return drift, nil
}

func (s *Service) publish(ctx context.Context, e core.Event) {
	if s.events == nil {
		return
	}
	e.OccurredAt = s.now().UTC()
	if err := s.events.PublishEvent(ctx, e); err != nil {
		// The change is committed; a lost event must not fail the caller.
		slog.ErrorContext(ctx, "Failed to publish ledger event",
			"type", e.Type,
			"transaction_ids", e.TransactionIDs,
			"error", err)
	}
}

func updateOne(ctx context.Context, tx Tx, old core.Transaction, patch core.TransactionPatch) (core.Transaction, error) {
	next, err := patch.Apply(old)
	if err != nil {
		return core.Transaction{}, err
	}
	if patch.CategoryID != nil {
		if err := checkCategory(ctx, tx, patch.CategoryID); err != nil {
			return core.Transaction{}, err
		}
	}
	if patch.TouchesBalance() {
		if err := lockAccounts(ctx, tx, old.DebitAccountID, old.CreditAccountID, next.DebitAccountID, next.CreditAccountID); err != nil {
			return core.Transaction{}, err
		}
		if err := applyDeltas(ctx, tx, old.Reversal()); err != nil {
			return core.Transaction{}, err
		}
		if err := applyDeltas(ctx, tx, next.Posting()); err != nil {
			return core.Transaction{}, err
		}
	}
	return tx.UpdateTransaction(ctx, next)
}

// lockAccounts locks the distinct ids in ascending order and fails with a
// not found error naming every missing id.
func lockAccounts(ctx context.Context, tx Tx, ids ...int64) error {
	ids = uniqueIDs(ids)
	found, err := tx.LockAccounts(ctx, ids...)
	if err != nil {
		return err
	}
	if len(found) == len(ids) {
		return nil
	}
	present := make(map[int64]bool, len(found))
	for _, a := range found {
		present[a.ID] = true
	}
	var missing []int64
	for _, id := range ids {
		if !present[id] {
			missing = append(missing, id)
		}
	}
	return core.NewNotFoundError("accounts", missing)
}

func checkCategory(ctx context.Context, tx Tx, id *int64) error {
	if id == nil {
		return nil
	}
	_, err := tx.GetCategory(ctx, *id)
	return err
}

func applyDeltas(ctx context.Context, tx Tx, deltas []core.BalanceDelta) error {
	for _, d := range deltas {
		if err := tx.AdjustBalance(ctx, d.AccountID, d.Delta); err != nil {
			return err
		}
	}
	return nil
}

func accountsAfterPatch(rows []core.Transaction, patch core.TransactionPatch) []int64 {
	ids := touchedAccounts(rows)
	if patch.DebitAccountID != nil {
		ids = append(ids, *patch.DebitAccountID)
	}
	if patch.CreditAccountID != nil {
		ids = append(ids, *patch.CreditAccountID)
	}
	return uniqueIDs(ids)
}

func touchedAccounts(txs []core.Transaction) []int64 {
	ids := make([]int64, 0, len(txs)*2)
	for _, t := range txs {
		ids = append(ids, t.DebitAccountID, t.CreditAccountID)
	}
	return uniqueIDs(ids)
}

func transactionIDs(txs []core.Transaction) []int64 {
	ids := make([]int64, 0, len(txs))
	for _, t := range txs {
		ids = append(ids, t.ID)
	}
	return uniqueIDs(ids)
}

// uniqueIDs returns the sorted distinct non-zero ids.
func uniqueIDs(ids []int64) []int64 {
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if id != 0 {
			out = append(out, id)
		}
	}
	slices.Sort(out)
	return slices.Compact(out)
}
