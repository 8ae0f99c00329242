// Package ledgertest holds the posting behaviour every ledger.Store must
// support. Store packages call Run from their own tests.
package ledgertest

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"testing"

	"ledger/internal/core"
	"ledger/internal/ledger"
)

// Factory returns a fresh, empty store. Run closes it.
type Factory func(t *testing.T) ledger.Store

type fixture struct {
	svc       *ledger.Service
	bank      core.Account
	card      core.Account
	groceries core.Account
	salary    core.Account
}

func setup(t *testing.T, newStore Factory) fixture {
	t.Helper()
	store := newStore(t)
	t.Cleanup(func() { store.Close() })

	svc := ledger.NewService(store, nil)
	mk := func(name string, typ core.AccountType) core.Account {
		a, err := svc.CreateAccount(context.Background(), core.Account{Name: name, Type: typ, Active: true})
		if err != nil {
			t.Fatalf("create account %s: %v", name, err)
		}
		return a
	}
	return fixture{
		svc:       svc,
		bank:      mk("Checking", core.AssetBank),
		card:      mk("Visa", core.LiabilityCreditCard),
		groceries: mk("Expenses - Groceries", core.ExpenseAccount),
		salary:    mk("Income - Salary", core.IncomeAccount),
	}
}

func (f fixture) balance(t *testing.T, a core.Account) int64 {
	t.Helper()
	m, err := f.svc.AccountBalance(context.Background(), a.ID)
	if err != nil {
		t.Fatalf("balance of %s: %v", a.Name, err)
	}
	return m.Cents
}

func (f fixture) create(t *testing.T, debit, credit core.Account, cents int64) core.Transaction {
	t.Helper()
	tx, err := f.svc.Create(context.Background(), input(debit.ID, credit.ID, cents))
	if err != nil {
		t.Fatalf("create transaction: %v", err)
	}
	return tx
}

func (f fixture) assertNoDrift(t *testing.T) {
	t.Helper()
	drift, err := f.svc.Verify(context.Background())
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if len(drift) > 0 {
		t.Fatalf("balances drifted from history: %+v", drift)
	}
}

func input(debit, credit, cents int64) core.TransactionInput {
	return core.TransactionInput{
		Date:            core.NewDate(2024, 3, 1),
		Amount:          core.Money{Cents: cents},
		Description:     "test",
		DebitAccountID:  debit,
		CreditAccountID: credit,
	}
}

// Run executes the posting suite against stores built by newStore.
func Run(t *testing.T, newStore Factory) {
	ctx := context.Background()

	t.Run("create applies posting", func(t *testing.T) {
		f := setup(t, newStore)
		tx := f.create(t, f.groceries, f.bank, 5000)
		if tx.ID == 0 || tx.Status != core.StatusPending {
			t.Fatalf("unexpected transaction %+v", tx)
		}
		if got := f.balance(t, f.groceries); got != 5000 {
			t.Errorf("debit balance = %d, want 5000", got)
		}
		if got := f.balance(t, f.bank); got != -5000 {
			t.Errorf("credit balance = %d, want -5000", got)
		}
		stored, err := f.svc.Get(ctx, tx.ID)
		if err != nil || stored.Amount.Cents != 5000 || stored.Description != "test" {
			t.Fatalf("stored transaction %+v err=%v", stored, err)
		}
	})

	t.Run("create rejects equal accounts", func(t *testing.T) {
		f := setup(t, newStore)
		_, err := f.svc.Create(ctx, input(f.bank.ID, f.bank.ID, 100))
		if !errors.Is(err, core.ErrValidation) {
			t.Fatalf("expected validation error, got %v", err)
		}
		txs, _ := f.svc.List(ctx, ledger.TransactionFilter{})
		if len(txs) != 0 || f.balance(t, f.bank) != 0 {
			t.Fatalf("rejected create left traces: %d rows, balance %d", len(txs), f.balance(t, f.bank))
		}
	})

	t.Run("create rejects unknown accounts", func(t *testing.T) {
		f := setup(t, newStore)
		_, err := f.svc.Create(ctx, input(f.bank.ID, 9999, 100))
		if !errors.Is(err, core.ErrNotFound) {
			t.Fatalf("expected not found, got %v", err)
		}
		txs, _ := f.svc.List(ctx, ledger.TransactionFilter{})
		if len(txs) != 0 || f.balance(t, f.bank) != 0 {
			t.Fatal("failed create must not leave a row or a balance change")
		}
	})

	t.Run("create rejects unknown category", func(t *testing.T) {
		f := setup(t, newStore)
		in := input(f.groceries.ID, f.bank.ID, 100)
		missing := int64(424242)
		in.CategoryID = &missing
		if _, err := f.svc.Create(ctx, in); !errors.Is(err, core.ErrNotFound) {
			t.Fatalf("expected not found, got %v", err)
		}
		if f.balance(t, f.bank) != 0 {
			t.Fatal("balance changed")
		}
	})

	t.Run("delete then recreate restores balances", func(t *testing.T) {
		f := setup(t, newStore)
		f.create(t, f.bank, f.salary, 250000)
		tx := f.create(t, f.groceries, f.bank, 4250)
		before := []int64{f.balance(t, f.bank), f.balance(t, f.groceries)}

		if err := f.svc.Delete(ctx, tx.ID); err != nil {
			t.Fatalf("delete: %v", err)
		}
		if f.balance(t, f.bank) != 250000 || f.balance(t, f.groceries) != 0 {
			t.Fatalf("delete did not reverse posting")
		}
		if _, err := f.svc.Get(ctx, tx.ID); !errors.Is(err, core.ErrNotFound) {
			t.Fatalf("deleted row still readable: %v", err)
		}

		f.create(t, f.groceries, f.bank, 4250)
		after := []int64{f.balance(t, f.bank), f.balance(t, f.groceries)}
		if before[0] != after[0] || before[1] != after[1] {
			t.Fatalf("round trip mismatch: before %v after %v", before, after)
		}
	})

	t.Run("delete unknown", func(t *testing.T) {
		f := setup(t, newStore)
		if err := f.svc.Delete(ctx, 777); !errors.Is(err, core.ErrNotFound) {
			t.Fatalf("expected not found, got %v", err)
		}
	})

	t.Run("update description keeps balances", func(t *testing.T) {
		f := setup(t, newStore)
		tx := f.create(t, f.groceries, f.bank, 1999)
		desc := "Weekly shop"
		notes := "receipt in drawer"
		updated, err := f.svc.Update(ctx, tx.ID, core.TransactionPatch{Description: &desc, Notes: &notes})
		if err != nil {
			t.Fatalf("update: %v", err)
		}
		if updated.Description != desc || updated.Notes != notes {
			t.Fatalf("fields not written: %+v", updated)
		}
		if f.balance(t, f.groceries) != 1999 || f.balance(t, f.bank) != -1999 {
			t.Fatal("description update changed balances")
		}
	})

	t.Run("update amount shifts both sides", func(t *testing.T) {
		f := setup(t, newStore)
		tx := f.create(t, f.groceries, f.bank, 1000)
		amount := core.Money{Cents: 1750}
		if _, err := f.svc.Update(ctx, tx.ID, core.TransactionPatch{Amount: &amount}); err != nil {
			t.Fatalf("update: %v", err)
		}
		if got := f.balance(t, f.groceries); got != 1750 {
			t.Errorf("debit balance = %d, want 1750", got)
		}
		if got := f.balance(t, f.bank); got != -1750 {
			t.Errorf("credit balance = %d, want -1750", got)
		}
		f.assertNoDrift(t)
	})

	t.Run("update accounts moves posting", func(t *testing.T) {
		f := setup(t, newStore)
		tx := f.create(t, f.groceries, f.bank, 1000)
		card := f.card.ID
		if _, err := f.svc.Update(ctx, tx.ID, core.TransactionPatch{CreditAccountID: &card}); err != nil {
			t.Fatalf("update: %v", err)
		}
		if f.balance(t, f.bank) != 0 || f.balance(t, f.card) != -1000 || f.balance(t, f.groceries) != 1000 {
			t.Fatal("posting not moved to new credit account")
		}
		f.assertNoDrift(t)
	})

	t.Run("update failures leave ledger unchanged", func(t *testing.T) {
		f := setup(t, newStore)
		tx := f.create(t, f.groceries, f.bank, 1000)

		same := f.groceries.ID
		if _, err := f.svc.Update(ctx, tx.ID, core.TransactionPatch{CreditAccountID: &same}); !errors.Is(err, core.ErrValidation) {
			t.Fatalf("expected validation error, got %v", err)
		}
		missing := int64(9999)
		if _, err := f.svc.Update(ctx, tx.ID, core.TransactionPatch{DebitAccountID: &missing}); !errors.Is(err, core.ErrNotFound) {
			t.Fatalf("expected not found, got %v", err)
		}
		desc := "x"
		if _, err := f.svc.Update(ctx, 12345, core.TransactionPatch{Description: &desc}); !errors.Is(err, core.ErrNotFound) {
			t.Fatalf("expected transaction not found, got %v", err)
		}
		if f.balance(t, f.groceries) != 1000 || f.balance(t, f.bank) != -1000 {
			t.Fatal("failed updates changed balances")
		}
	})

	t.Run("status machine", func(t *testing.T) {
		f := setup(t, newStore)
		tx := f.create(t, f.groceries, f.bank, 500)
		skip := core.StatusReconciled
		if _, err := f.svc.Update(ctx, tx.ID, core.TransactionPatch{Status: &skip}); !errors.Is(err, core.ErrValidation) {
			t.Fatalf("pending must be cleared before reconciling, got %v", err)
		}
		for _, next := range []core.Status{core.StatusCleared, core.StatusReconciled} {
			s := next
			updated, err := f.svc.Update(ctx, tx.ID, core.TransactionPatch{Status: &s})
			if err != nil || updated.Status != next {
				t.Fatalf("move to %s: %+v err=%v", next, updated, err)
			}
		}
		back := core.StatusPending
		if _, err := f.svc.Update(ctx, tx.ID, core.TransactionPatch{Status: &back}); !errors.Is(err, core.ErrValidation) {
			t.Fatalf("reconciled must be terminal, got %v", err)
		}
		if f.balance(t, f.bank) != -500 {
			t.Fatal("status changes must not touch balances")
		}
	})

	t.Run("bulk delete reverses every posting", func(t *testing.T) {
		f := setup(t, newStore)
		f.create(t, f.bank, f.salary, 100000)
		a := f.create(t, f.groceries, f.bank, 1200)
		b := f.create(t, f.groceries, f.card, 800)
		c := f.create(t, f.groceries, f.bank, 300)

		n, err := f.svc.BulkDelete(ctx, []int64{a.ID, b.ID, c.ID, 424242})
		if err != nil || n != 3 {
			t.Fatalf("bulk delete: n=%d err=%v", n, err)
		}
		if f.balance(t, f.groceries) != 0 || f.balance(t, f.card) != 0 || f.balance(t, f.bank) != 100000 {
			t.Fatal("bulk delete did not reverse postings")
		}
		txs, _ := f.svc.List(ctx, ledger.TransactionFilter{})
		if len(txs) != 1 {
			t.Fatalf("expected 1 remaining row, got %d", len(txs))
		}
		f.assertNoDrift(t)
	})

	t.Run("bulk update re-posts balance fields", func(t *testing.T) {
		f := setup(t, newStore)
		a := f.create(t, f.groceries, f.bank, 1200)
		b := f.create(t, f.groceries, f.bank, 800)
		card := f.card.ID
		cleared := core.StatusCleared

		n, err := f.svc.BulkUpdate(ctx, []int64{a.ID, b.ID}, core.TransactionPatch{CreditAccountID: &card, Status: &cleared})
		if err != nil || n != 2 {
			t.Fatalf("bulk update: n=%d err=%v", n, err)
		}
		if f.balance(t, f.bank) != 0 || f.balance(t, f.card) != -2000 {
			t.Fatal("bulk update did not move postings")
		}
		got, _ := f.svc.Get(ctx, a.ID)
		if got.Status != core.StatusCleared {
			t.Fatalf("status = %s", got.Status)
		}
		f.assertNoDrift(t)
	})

	t.Run("bulk update is all or nothing", func(t *testing.T) {
		f := setup(t, newStore)
		a := f.create(t, f.groceries, f.bank, 1200)
		b := f.create(t, f.bank, f.salary, 5000)
		bank := f.bank.ID
		if _, err := f.svc.BulkUpdate(ctx, []int64{a.ID, b.ID}, core.TransactionPatch{CreditAccountID: &bank, DebitAccountID: &bank}); !errors.Is(err, core.ErrValidation) {
			t.Fatalf("expected validation error, got %v", err)
		}
		amount := core.Money{Cents: 1}
		// Row b already credits salary, so debiting salary makes it invalid.
		salary := f.salary.ID
		_, err := f.svc.BulkUpdate(ctx, []int64{a.ID, b.ID}, core.TransactionPatch{Amount: &amount, DebitAccountID: &salary})
		if !errors.Is(err, core.ErrValidation) {
			t.Fatalf("expected validation error for row b, got %v", err)
		}
		got, _ := f.svc.Get(ctx, a.ID)
		if got.Amount.Cents != 1200 || f.balance(t, f.groceries) != 1200 {
			t.Fatal("failed bulk update partially applied")
		}
		f.assertNoDrift(t)
	})

	t.Run("random sequences keep balances consistent", func(t *testing.T) {
		f := setup(t, newStore)
		accounts := []core.Account{f.bank, f.card, f.groceries, f.salary}
		rng := rand.New(rand.NewSource(7))
		var live []int64
		for step := 0; step < 60; step++ {
			switch op := rng.Intn(4); {
			case op <= 1 || len(live) == 0:
				d := accounts[rng.Intn(len(accounts))]
				c := accounts[rng.Intn(len(accounts))]
				if d.ID == c.ID {
					continue
				}
				tx := f.create(t, d, c, int64(rng.Intn(10000)+1))
				live = append(live, tx.ID)
			case op == 2:
				id := live[rng.Intn(len(live))]
				amount := core.Money{Cents: int64(rng.Intn(10000) + 1)}
				if _, err := f.svc.Update(ctx, id, core.TransactionPatch{Amount: &amount}); err != nil {
					t.Fatalf("step %d update: %v", step, err)
				}
			default:
				i := rng.Intn(len(live))
				if err := f.svc.Delete(ctx, live[i]); err != nil {
					t.Fatalf("step %d delete: %v", step, err)
				}
				live = append(live[:i], live[i+1:]...)
			}
			f.assertNoDrift(t)
		}
	})

	t.Run("concurrent postings lose no update", func(t *testing.T) {
		f := setup(t, newStore)
		const workers = 8
		const perWorker = 5
		var wg sync.WaitGroup
		errs := make(chan error, workers*perWorker)
		for w := 0; w < workers; w++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for i := 0; i < perWorker; i++ {
					if _, err := f.svc.Create(ctx, input(f.groceries.ID, f.bank.ID, 100)); err != nil {
						errs <- err
					}
				}
			}()
		}
		wg.Wait()
		close(errs)
		for err := range errs {
			t.Fatalf("concurrent create: %v", err)
		}
		if got := f.balance(t, f.bank); got != -workers*perWorker*100 {
			t.Fatalf("bank balance = %d, want %d", got, -workers*perWorker*100)
		}
		f.assertNoDrift(t)
	})

	t.Run("concurrent deletes reverse once", func(t *testing.T) {
		f := setup(t, newStore)
		tx := f.create(t, f.groceries, f.bank, 1000)
		const workers = 6
		var (
			wg       sync.WaitGroup
			mu       sync.Mutex
			deleted  int
			notFound int
			other    []error
		)
		for w := 0; w < workers; w++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				err := f.svc.Delete(ctx, tx.ID)
				mu.Lock()
				defer mu.Unlock()
				switch {
				case err == nil:
					deleted++
				case errors.Is(err, core.ErrNotFound):
					notFound++
				default:
					other = append(other, err)
				}
			}()
		}
		wg.Wait()
		if len(other) > 0 {
			t.Fatalf("unexpected delete errors: %v", other)
		}
		if deleted != 1 || notFound != workers-1 {
			t.Fatalf("deleted=%d notFound=%d, want 1 and %d", deleted, notFound, workers-1)
		}
		if f.balance(t, f.groceries) != 0 || f.balance(t, f.bank) != 0 {
			t.Fatalf("balances not restored: groceries=%d bank=%d",
				f.balance(t, f.groceries), f.balance(t, f.bank))
		}
		f.assertNoDrift(t)
	})

	t.Run("concurrent updates reverse the committed amount", func(t *testing.T) {
		f := setup(t, newStore)
		tx := f.create(t, f.groceries, f.bank, 100)
		const workers = 6
		var wg sync.WaitGroup
		errs := make(chan error, workers)
		for w := 0; w < workers; w++ {
			wg.Add(1)
			go func(cents int64) {
				defer wg.Done()
				amount := core.Money{Cents: cents}
				if _, err := f.svc.Update(ctx, tx.ID, core.TransactionPatch{Amount: &amount}); err != nil {
					errs <- err
				}
			}(int64(200 + w*100))
		}
		wg.Wait()
		close(errs)
		for err := range errs {
			t.Fatalf("concurrent update: %v", err)
		}
		final, err := f.svc.Get(ctx, tx.ID)
		if err != nil {
			t.Fatal(err)
		}
		if got := f.balance(t, f.groceries); got != final.Amount.Cents {
			t.Fatalf("groceries balance = %d, want stored amount %d", got, final.Amount.Cents)
		}
		f.assertNoDrift(t)
	})

	t.Run("upsert is keyed on name and type", func(t *testing.T) {
		f := setup(t, newStore)
		store := f.svc.Store()
		var first, second, other core.Account
		err := store.WithinTx(ctx, func(tx ledger.Tx) error {
			var err error
			if first, err = tx.UpsertAccount(ctx, "Expenses - Travel", core.ExpenseAccount); err != nil {
				return err
			}
			if second, err = tx.UpsertAccount(ctx, "Expenses - Travel", core.ExpenseAccount); err != nil {
				return err
			}
			other, err = tx.UpsertAccount(ctx, "Expenses - Travel", core.IncomeAccount)
			return err
		})
		if err != nil {
			t.Fatalf("upsert: %v", err)
		}
		if first.ID != second.ID || first.ID == other.ID {
			t.Fatalf("unexpected ids %d %d %d", first.ID, second.ID, other.ID)
		}
		found, err := store.FindAccount(ctx, "Expenses - Travel", core.ExpenseAccount)
		if err != nil || found.ID != first.ID {
			t.Fatalf("find: %+v err=%v", found, err)
		}

		var c1, c2 core.Category
		err = store.WithinTx(ctx, func(tx ledger.Tx) error {
			var err error
			if c1, err = tx.UpsertCategory(ctx, "Travel", core.ExpenseCategory); err != nil {
				return err
			}
			c2, err = tx.UpsertCategory(ctx, "Travel", core.ExpenseCategory)
			return err
		})
		if err != nil || c1.ID != c2.ID {
			t.Fatalf("category upsert: %d %d err=%v", c1.ID, c2.ID, err)
		}
	})

	t.Run("failed unit rolls back", func(t *testing.T) {
		f := setup(t, newStore)
		boom := errors.New("boom")
		err := f.svc.Store().WithinTx(ctx, func(tx ledger.Tx) error {
			if err := tx.AdjustBalance(ctx, f.bank.ID, core.Money{Cents: 999}); err != nil {
				return err
			}
			if _, err := tx.UpsertAccount(ctx, "Ghost", core.AssetCash); err != nil {
				return err
			}
			return boom
		})
		if !errors.Is(err, boom) {
			t.Fatalf("expected boom, got %v", err)
		}
		if f.balance(t, f.bank) != 0 {
			t.Fatal("balance change survived rollback")
		}
		if _, err := f.svc.Store().FindAccount(ctx, "Ghost", core.AssetCash); !errors.Is(err, core.ErrNotFound) {
			t.Fatalf("account insert survived rollback: %v", err)
		}
	})

	t.Run("list filters", func(t *testing.T) {
		f := setup(t, newStore)
		f.create(t, f.groceries, f.bank, 100)
		f.create(t, f.groceries, f.card, 200)
		in := input(f.bank.ID, f.salary.ID, 300)
		in.ImportBatch = "import-test"
		if _, err := f.svc.Create(ctx, in); err != nil {
			t.Fatal(err)
		}

		byAccount, err := f.svc.List(ctx, ledger.TransactionFilter{AccountID: f.bank.ID})
		if err != nil || len(byAccount) != 2 {
			t.Fatalf("account filter: %d err=%v", len(byAccount), err)
		}
		byBatch, err := f.svc.List(ctx, ledger.TransactionFilter{ImportBatch: "import-test"})
		if err != nil || len(byBatch) != 1 || byBatch[0].ImportBatch != "import-test" {
			t.Fatalf("batch filter: %+v err=%v", byBatch, err)
		}
		limited, err := f.svc.List(ctx, ledger.TransactionFilter{Limit: 1})
		if err != nil || len(limited) != 1 {
			t.Fatalf("limit: %d err=%v", len(limited), err)
		}
	})
}
