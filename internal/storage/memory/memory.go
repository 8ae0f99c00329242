package memory

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"ledger/internal/core"
	"ledger/internal/ledger"
)

// Store keeps the ledger in process memory. One mutex serializes every unit
// of work; a failed unit restores the state it started from.
type Store struct {
	mu    sync.Mutex
	state state
	now   func() time.Time
}

var _ ledger.Store = (*Store)(nil)

func New() *Store {
	return &Store{state: newState(), now: time.Now}
}

// NewFromFiles seeds a store from seed_accounts.txt and seed_categories.txt
// in base. Each line is "<type>:<name>"; blank lines and # comments are
// skipped. Missing files leave the store empty.
func NewFromFiles(base string) (*Store, error) {
	s := New()
	ctx := context.Background()
	accountLines, err := readLines(filepath.Join(base, "seed_accounts.txt"))
	if err != nil {
		return nil, err
	}
	categoryLines, err := readLines(filepath.Join(base, "seed_categories.txt"))
	if err != nil {
		return nil, err
	}
	err = s.WithinTx(ctx, func(tx ledger.Tx) error {
		for _, line := range accountLines {
			typ, name, ok := strings.Cut(line, ":")
			if !ok {
				return fmt.Errorf("seed account %q: expected <type>:<name>", line)
			}
			a := core.Account{Name: strings.TrimSpace(name), Type: core.AccountType(strings.TrimSpace(typ)), Active: true}
			if err := a.Validate(); err != nil {
				return fmt.Errorf("seed account %q: %w", line, err)
			}
			if _, err := tx.UpsertAccount(ctx, a.Name, a.Type); err != nil {
				return err
			}
		}
		for _, line := range categoryLines {
			typ, name, ok := strings.Cut(line, ":")
			if !ok {
				return fmt.Errorf("seed category %q: expected <type>:<name>", line)
			}
			c := core.Category{Name: strings.TrimSpace(name), Type: core.CategoryType(strings.TrimSpace(typ)), Active: true}
			if err := c.Validate(); err != nil {
				return fmt.Errorf("seed category %q: %w", line, err)
			}
			if _, err := tx.UpsertCategory(ctx, c.Name, c.Type); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error { return nil }

// WithinTx implements ledger.Store.
func (s *Store) WithinTx(ctx context.Context, fn func(tx ledger.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.state.clone()
	if err := fn(&memTx{state: &s.state, now: s.now}); err != nil {
		s.state = snapshot
		return err
	}
	return nil
}

func (s *Store) GetAccount(ctx context.Context, id int64) (core.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.getAccount(id)
}

func (s *Store) ListAccounts(ctx context.Context) ([]core.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.listAccounts(), nil
}

func (s *Store) FindAccount(ctx context.Context, name string, typ core.AccountType) (core.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.findAccount(name, typ)
}

func (s *Store) GetCategory(ctx context.Context, id int64) (core.Category, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.getCategory(id)
}

func (s *Store) ListCategories(ctx context.Context) ([]core.Category, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.listCategories(), nil
}

func (s *Store) GetTransaction(ctx context.Context, id int64) (core.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.getTransaction(id)
}

func (s *Store) ListTransactions(ctx context.Context, filter ledger.TransactionFilter) ([]core.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.listTransactions(filter), nil
}

type state struct {
	accounts     map[int64]core.Account
	categories   map[int64]core.Category
	transactions map[int64]core.Transaction
	lastID       struct{ account, category, transaction int64 }
}

func newState() state {
	return state{
		accounts:     make(map[int64]core.Account),
		categories:   make(map[int64]core.Category),
		transactions: make(map[int64]core.Transaction),
	}
}

func (st state) clone() state {
	out := newState()
	for k, v := range st.accounts {
		out.accounts[k] = v
	}
	for k, v := range st.categories {
		out.categories[k] = v
	}
	for k, v := range st.transactions {
		out.transactions[k] = v
	}
	out.lastID = st.lastID
	return out
}

func (st *state) getAccount(id int64) (core.Account, error) {
	a, ok := st.accounts[id]
	if !ok {
		return core.Account{}, core.NewNotFoundError("account", id)
	}
	return a, nil
}

func (st *state) listAccounts() []core.Account {
	out := make([]core.Account, 0, len(st.accounts))
	for _, a := range st.accounts {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (st *state) findAccount(name string, typ core.AccountType) (core.Account, error) {
	for _, a := range st.accounts {
		if a.Name == name && a.Type == typ {
			return a, nil
		}
	}
	return core.Account{}, core.NewNotFoundError("account", fmt.Sprintf("%s (%s)", name, typ))
}

func (st *state) getCategory(id int64) (core.Category, error) {
	c, ok := st.categories[id]
	if !ok {
		return core.Category{}, core.NewNotFoundError("category", id)
	}
	return c, nil
}

func (st *state) listCategories() []core.Category {
	out := make([]core.Category, 0, len(st.categories))
	for _, c := range st.categories {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (st *state) getTransaction(id int64) (core.Transaction, error) {
	t, ok := st.transactions[id]
	if !ok {
		return core.Transaction{}, core.NewNotFoundError("transaction", id)
	}
	return t, nil
}

func (st *state) listTransactions(filter ledger.TransactionFilter) []core.Transaction {
	out := make([]core.Transaction, 0, len(st.transactions))
	for _, t := range st.transactions {
		if filter.Match(t) {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.Before(out[j].Date)
		}
		return out[i].ID < out[j].ID
	})
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out
}

// memTx runs with Store.mu held.
type memTx struct {
	*state
	now func() time.Time
}

func (t *memTx) GetAccount(_ context.Context, id int64) (core.Account, error) {
	return t.getAccount(id)
}

func (t *memTx) ListAccounts(context.Context) ([]core.Account, error) {
	return t.listAccounts(), nil
}

func (t *memTx) FindAccount(_ context.Context, name string, typ core.AccountType) (core.Account, error) {
	return t.findAccount(name, typ)
}

func (t *memTx) GetCategory(_ context.Context, id int64) (core.Category, error) {
	return t.getCategory(id)
}

func (t *memTx) ListCategories(context.Context) ([]core.Category, error) {
	return t.listCategories(), nil
}

func (t *memTx) GetTransaction(_ context.Context, id int64) (core.Transaction, error) {
	return t.getTransaction(id)
}

func (t *memTx) ListTransactions(_ context.Context, filter ledger.TransactionFilter) ([]core.Transaction, error) {
	return t.listTransactions(filter), nil
}

func (t *memTx) LockAccounts(_ context.Context, ids ...int64) ([]core.Account, error) {
	var out []core.Account
	for _, id := range ids {
		if a, ok := t.accounts[id]; ok {
			out = append(out, a)
		}
	}
	return out, nil
}

func (t *memTx) AdjustBalance(_ context.Context, accountID int64, delta core.Money) error {
	a, ok := t.accounts[accountID]
	if !ok {
		return core.NewNotFoundError("account", accountID)
	}
	a.Balance = a.Balance.Add(delta)
	a.UpdatedAt = t.now().UTC()
	t.accounts[accountID] = a
	return nil
}

func (t *memTx) InsertAccount(_ context.Context, a core.Account) (core.Account, error) {
	if _, err := t.findAccount(a.Name, a.Type); err == nil {
		return core.Account{}, core.NewValidationError("name", "account %q of type %s already exists", a.Name, a.Type)
	}
	t.lastID.account++
	a.ID = t.lastID.account
	a.CreatedAt = t.now().UTC()
	a.UpdatedAt = a.CreatedAt
	t.accounts[a.ID] = a
	return a, nil
}

func (t *memTx) UpsertAccount(ctx context.Context, name string, typ core.AccountType) (core.Account, error) {
	if a, err := t.findAccount(name, typ); err == nil {
		return a, nil
	}
	return t.InsertAccount(ctx, core.Account{Name: name, Type: typ, Active: true})
}

func (t *memTx) InsertCategory(_ context.Context, c core.Category) (core.Category, error) {
	for _, existing := range t.categories {
		if existing.Name == c.Name && existing.Type == c.Type {
			return core.Category{}, core.NewValidationError("name", "category %q of type %s already exists", c.Name, c.Type)
		}
	}
	t.lastID.category++
	c.ID = t.lastID.category
	c.CreatedAt = t.now().UTC()
	t.categories[c.ID] = c
	return c, nil
}

func (t *memTx) UpsertCategory(ctx context.Context, name string, typ core.CategoryType) (core.Category, error) {
	for _, c := range t.categories {
		if c.Name == name && c.Type == typ {
			return c, nil
		}
	}
	return t.InsertCategory(ctx, core.Category{Name: name, Type: typ, Active: true})
}

func (t *memTx) InsertTransaction(_ context.Context, tr core.Transaction) (core.Transaction, error) {
	t.lastID.transaction++
	tr.ID = t.lastID.transaction
	tr.CreatedAt = t.now().UTC()
	tr.UpdatedAt = tr.CreatedAt
	t.transactions[tr.ID] = tr
	return tr, nil
}

func (t *memTx) UpdateTransaction(_ context.Context, tr core.Transaction) (core.Transaction, error) {
	if _, ok := t.transactions[tr.ID]; !ok {
		return core.Transaction{}, core.NewNotFoundError("transaction", tr.ID)
	}
	tr.UpdatedAt = t.now().UTC()
	t.transactions[tr.ID] = tr
	return tr, nil
}

func (t *memTx) TransactionsByIDs(_ context.Context, ids []int64) ([]core.Transaction, error) {
	var out []core.Transaction
	for _, id := range ids {
		if tr, ok := t.transactions[id]; ok {
			out = append(out, tr)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (t *memTx) DeleteTransactions(_ context.Context, ids []int64) error {
	for _, id := range ids {
		if _, ok := t.transactions[id]; !ok {
			return core.Persistence("delete transactions", fmt.Errorf("transaction %d is gone", id))
		}
	}
	for _, id := range ids {
		delete(t.transactions, id)
	}
	return nil
}

func readLines(path string) ([]string, error) {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open seed file: %w", err)
	}
	defer f.Close()
	var out []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		out = append(out, line)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read seed file %s: %w", filepath.Base(path), err)
	}
	return dedupe(out), nil
}

// dedupe drops repeated lines, keeping the first occurrence in input order.
func dedupe(in []string) []string {
	seen := map[string]struct{}{}
	out := make([]string, 0, len(in))
	for _, v := range in {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
