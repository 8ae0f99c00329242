package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"ledger/internal/core"
	"ledger/internal/ledger"
)

const (
	dateLayout = "2006-01-02"
	timeLayout = time.RFC3339Nano
)

// DBTX is satisfied by *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(context.Context, string, ...interface{}) (sql.Result, error)
	QueryContext(context.Context, string, ...interface{}) (*sql.Rows, error)
	QueryRowContext(context.Context, string, ...interface{}) *sql.Row
}

func New(db DBTX) *Queries {
	return &Queries{db: db, now: time.Now}
}

// Queries runs the ledger statements against a database or an open
// transaction. Bound to a transaction it implements ledger.Tx.
type Queries struct {
	db  DBTX
	now func() time.Time
}

func (q *Queries) WithTx(tx *sql.Tx) *Queries {
	return &Queries{db: tx, now: q.now}
}

var _ ledger.Tx = (*Queries)(nil)

const accountColumns = `id, name, type, balance_cents, active, created_at, updated_at`

const categoryColumns = `id, name, type, parent_id, active, created_at`

const transactionColumns = `id, date, amount_cents, description, debit_account_id, credit_account_id,
	category_id, status, reference, notes, import_batch, created_at, updated_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanAccount(row scanner) (core.Account, error) {
	var (
		a                    core.Account
		typ, created, update string
	)
	if err := row.Scan(&a.ID, &a.Name, &typ, &a.Balance.Cents, &a.Active, &created, &update); err != nil {
		return core.Account{}, err
	}
	a.Type = core.AccountType(typ)
	a.CreatedAt = parseTime(created)
	a.UpdatedAt = parseTime(update)
	return a, nil
}

func scanCategory(row scanner) (core.Category, error) {
	var (
		c            core.Category
		typ, created string
		parent       sql.NullInt64
	)
	if err := row.Scan(&c.ID, &c.Name, &typ, &parent, &c.Active, &created); err != nil {
		return core.Category{}, err
	}
	c.Type = core.CategoryType(typ)
	if parent.Valid {
		c.ParentID = &parent.Int64
	}
	c.CreatedAt = parseTime(created)
	return c, nil
}

func scanTransaction(row scanner) (core.Transaction, error) {
	var (
		t                core.Transaction
		date, status     string
		created, updated string
		category         sql.NullInt64
	)
	err := row.Scan(&t.ID, &date, &t.Amount.Cents, &t.Description, &t.DebitAccountID, &t.CreditAccountID,
		&category, &status, &t.Reference, &t.Notes, &t.ImportBatch, &created, &updated)
	if err != nil {
		return core.Transaction{}, err
	}
	d, err := time.Parse(dateLayout, date)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("parse transaction %d date %q: %w", t.ID, date, err)
	}
	t.Date = d
	t.Status = core.Status(status)
	if category.Valid {
		t.CategoryID = &category.Int64
	}
	t.CreatedAt = parseTime(created)
	t.UpdatedAt = parseTime(updated)
	return t, nil
}

func parseTime(s string) time.Time {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func (q *Queries) stamp() string {
	return q.now().UTC().Format(timeLayout)
}

func (q *Queries) GetAccount(ctx context.Context, id int64) (core.Account, error) {
	a, err := scanAccount(q.db.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return core.Account{}, core.NewNotFoundError("account", id)
	}
	if err != nil {
		return core.Account{}, core.Persistence("get account", err)
	}
	return a, nil
}

func (q *Queries) ListAccounts(ctx context.Context) ([]core.Account, error) {
	rows, err := q.db.QueryContext(ctx, `SELECT `+accountColumns+` FROM accounts ORDER BY id`)
	if err != nil {
		return nil, core.Persistence("list accounts", err)
	}
	return collectAccounts(rows, "list accounts")
}

func (q *Queries) FindAccount(ctx context.Context, name string, typ core.AccountType) (core.Account, error) {
	a, err := scanAccount(q.db.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE name = ? AND type = ?`, name, string(typ)))
	if errors.Is(err, sql.ErrNoRows) {
		return core.Account{}, core.NewNotFoundError("account", fmt.Sprintf("%s (%s)", name, typ))
	}
	if err != nil {
		return core.Account{}, core.Persistence("find account", err)
	}
	return a, nil
}

// LockAccounts reads the accounts. The store opens every transaction with
// BEGIN IMMEDIATE, so the write lock is already held.
func (q *Queries) LockAccounts(ctx context.Context, ids ...int64) ([]core.Account, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	in, args := inClause(ids)
	rows, err := q.db.QueryContext(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE id IN (`+in+`) ORDER BY id`, args...)
	if err != nil {
		return nil, core.Persistence("lock accounts", err)
	}
	return collectAccounts(rows, "lock accounts")
}

func (q *Queries) AdjustBalance(ctx context.Context, accountID int64, delta core.Money) error {
	res, err := q.db.ExecContext(ctx,
		`UPDATE accounts SET balance_cents = balance_cents + ?, updated_at = ? WHERE id = ?`,
		delta.Cents, q.stamp(), accountID)
	if err != nil {
		return core.Persistence("adjust balance", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return core.Persistence("adjust balance", err)
	}
	if n == 0 {
		return core.NewNotFoundError("account", accountID)
	}
	return nil
}

func (q *Queries) InsertAccount(ctx context.Context, a core.Account) (core.Account, error) {
	now := q.stamp()
	created, err := scanAccount(q.db.QueryRowContext(ctx,
		`INSERT INTO accounts (name, type, balance_cents, active, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 RETURNING `+accountColumns,
		a.Name, string(a.Type), a.Balance.Cents, a.Active, now, now))
	if isUniqueViolation(err) {
		return core.Account{}, core.NewValidationError("name", "account %q of type %s already exists", a.Name, a.Type)
	}
	if err != nil {
		return core.Account{}, core.Persistence("insert account", err)
	}
	return created, nil
}

func (q *Queries) UpsertAccount(ctx context.Context, name string, typ core.AccountType) (core.Account, error) {
	now := q.stamp()
	a, err := scanAccount(q.db.QueryRowContext(ctx,
		`INSERT INTO accounts (name, type, balance_cents, active, created_at, updated_at)
		 VALUES (?, ?, 0, 1, ?, ?)
		 ON CONFLICT (name, type) DO UPDATE SET name = excluded.name
		 RETURNING `+accountColumns,
		name, string(typ), now, now))
	if err != nil {
		return core.Account{}, core.Persistence("upsert account", err)
	}
	return a, nil
}

func (q *Queries) GetCategory(ctx context.Context, id int64) (core.Category, error) {
	c, err := scanCategory(q.db.QueryRowContext(ctx,
		`SELECT `+categoryColumns+` FROM categories WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return core.Category{}, core.NewNotFoundError("category", id)
	}
	if err != nil {
		return core.Category{}, core.Persistence("get category", err)
	}
	return c, nil
}

func (q *Queries) ListCategories(ctx context.Context) ([]core.Category, error) {
	rows, err := q.db.QueryContext(ctx, `SELECT `+categoryColumns+` FROM categories ORDER BY id`)
	if err != nil {
		return nil, core.Persistence("list categories", err)
	}
	defer rows.Close()
	var out []core.Category
	for rows.Next() {
		c, err := scanCategory(rows)
		if err != nil {
			return nil, core.Persistence("list categories", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, core.Persistence("list categories", err)
	}
	return out, nil
}

func (q *Queries) InsertCategory(ctx context.Context, c core.Category) (core.Category, error) {
	var parent sql.NullInt64
	if c.ParentID != nil {
		parent = sql.NullInt64{Int64: *c.ParentID, Valid: true}
	}
	created, err := scanCategory(q.db.QueryRowContext(ctx,
		`INSERT INTO categories (name, type, parent_id, active, created_at)
		 VALUES (?, ?, ?, ?, ?)
		 RETURNING `+categoryColumns,
		c.Name, string(c.Type), parent, c.Active, q.stamp()))
	if isUniqueViolation(err) {
		return core.Category{}, core.NewValidationError("name", "category %q of type %s already exists", c.Name, c.Type)
	}
	if err != nil {
		return core.Category{}, core.Persistence("insert category", err)
	}
	return created, nil
}

func (q *Queries) UpsertCategory(ctx context.Context, name string, typ core.CategoryType) (core.Category, error) {
	c, err := scanCategory(q.db.QueryRowContext(ctx,
		`INSERT INTO categories (name, type, active, created_at)
		 VALUES (?, ?, 1, ?)
		 ON CONFLICT (name, type) DO UPDATE SET name = excluded.name
		 RETURNING `+categoryColumns,
		name, string(typ), q.stamp()))
	if err != nil {
		return core.Category{}, core.Persistence("upsert category", err)
	}
	return c, nil
}

func (q *Queries) GetTransaction(ctx context.Context, id int64) (core.Transaction, error) {
	t, err := scanTransaction(q.db.QueryRowContext(ctx,
		`SELECT `+transactionColumns+` FROM transactions WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return core.Transaction{}, core.NewNotFoundError("transaction", id)
	}
	if err != nil {
		return core.Transaction{}, core.Persistence("get transaction", err)
	}
	return t, nil
}

func (q *Queries) ListTransactions(ctx context.Context, f ledger.TransactionFilter) ([]core.Transaction, error) {
	var (
		where []string
		args  []any
	)
	if f.AccountID != 0 {
		where = append(where, `(debit_account_id = ? OR credit_account_id = ?)`)
		args = append(args, f.AccountID, f.AccountID)
	}
	if f.Status != "" {
		where = append(where, `status = ?`)
		args = append(args, string(f.Status))
	}
	if f.ImportBatch != "" {
		where = append(where, `import_batch = ?`)
		args = append(args, f.ImportBatch)
	}
	if !f.From.IsZero() {
		where = append(where, `date >= ?`)
		args = append(args, f.From.Format(dateLayout))
	}
	if !f.To.IsZero() {
		where = append(where, `date <= ?`)
		args = append(args, f.To.Format(dateLayout))
	}

	query := `SELECT ` + transactionColumns + ` FROM transactions`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, ` AND `)
	}
	query += ` ORDER BY date, id`
	if f.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, f.Limit)
	}

	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, core.Persistence("list transactions", err)
	}
	return collectTransactions(rows, "list transactions")
}

func (q *Queries) TransactionsByIDs(ctx context.Context, ids []int64) ([]core.Transaction, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	in, args := inClause(ids)
	rows, err := q.db.QueryContext(ctx,
		`SELECT `+transactionColumns+` FROM transactions WHERE id IN (`+in+`) ORDER BY id`, args...)
	if err != nil {
		return nil, core.Persistence("load transactions", err)
	}
	return collectTransactions(rows, "load transactions")
}

func (q *Queries) InsertTransaction(ctx context.Context, t core.Transaction) (core.Transaction, error) {
	now := q.stamp()
	created, err := scanTransaction(q.db.QueryRowContext(ctx,
		`INSERT INTO transactions (date, amount_cents, description, debit_account_id, credit_account_id,
			category_id, status, reference, notes, import_batch, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 RETURNING `+transactionColumns,
		t.Date.Format(dateLayout), t.Amount.Cents, t.Description, t.DebitAccountID, t.CreditAccountID,
		nullableID(t.CategoryID), string(t.Status), t.Reference, t.Notes, t.ImportBatch, now, now))
	if err != nil {
		return core.Transaction{}, core.Persistence("insert transaction", err)
	}
	return created, nil
}

func (q *Queries) UpdateTransaction(ctx context.Context, t core.Transaction) (core.Transaction, error) {
	updated, err := scanTransaction(q.db.QueryRowContext(ctx,
		`UPDATE transactions SET date = ?, amount_cents = ?, description = ?, debit_account_id = ?,
			credit_account_id = ?, category_id = ?, status = ?, reference = ?, notes = ?, updated_at = ?
		 WHERE id = ?
		 RETURNING `+transactionColumns,
		t.Date.Format(dateLayout), t.Amount.Cents, t.Description, t.DebitAccountID, t.CreditAccountID,
		nullableID(t.CategoryID), string(t.Status), t.Reference, t.Notes, q.stamp(), t.ID))
	if errors.Is(err, sql.ErrNoRows) {
		return core.Transaction{}, core.NewNotFoundError("transaction", t.ID)
	}
	if err != nil {
		return core.Transaction{}, core.Persistence("update transaction", err)
	}
	return updated, nil
}

func (q *Queries) DeleteTransactions(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	in, args := inClause(ids)
	res, err := q.db.ExecContext(ctx, `DELETE FROM transactions WHERE id IN (`+in+`)`, args...)
	if err != nil {
		return core.Persistence("delete transactions", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return core.Persistence("delete transactions", err)
	}
	if n != int64(len(ids)) {
		return core.Persistence("delete transactions",
			fmt.Errorf("deleted %d of %d rows", n, len(ids)))
	}
	return nil
}

func collectAccounts(rows *sql.Rows, op string) ([]core.Account, error) {
	defer rows.Close()
	var out []core.Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, core.Persistence(op, err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, core.Persistence(op, err)
	}
	return out, nil
}

func collectTransactions(rows *sql.Rows, op string) ([]core.Transaction, error) {
	defer rows.Close()
	var out []core.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, core.Persistence(op, err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, core.Persistence(op, err)
	}
	return out, nil
}

func inClause(ids []int64) (string, []any) {
	marks := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		marks[i] = "?"
		args[i] = id
	}
	return strings.Join(marks, ", "), args
}

func nullableID(id *int64) sql.NullInt64 {
	if id == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *id, Valid: true}
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
