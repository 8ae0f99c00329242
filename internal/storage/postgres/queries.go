package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"ledger/internal/core"
	"ledger/internal/ledger"
)

// DBTX is satisfied by *pgxpool.Pool and pgx.Tx.
type DBTX interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Query(context.Context, string, ...any) (pgx.Rows, error)
	QueryRow(context.Context, string, ...any) pgx.Row
}

func New(db DBTX) *Queries {
	return &Queries{db: db}
}

type Queries struct {
	db DBTX
	// locking is set on transaction-bound queries; transaction rows read
	// through them are held FOR UPDATE until commit.
	locking bool
}

func (q *Queries) WithTx(tx pgx.Tx) *Queries {
	return &Queries{db: tx, locking: true}
}

func (q *Queries) forUpdate() string {
	if q.locking {
		return ` FOR UPDATE`
	}
	return ``
}

var _ ledger.Tx = (*Queries)(nil)

const accountColumns = `id, name, type, balance_cents, active, created_at, updated_at`

const categoryColumns = `id, name, type, parent_id, active, created_at`

const transactionColumns = `id, date, amount_cents, description, debit_account_id, credit_account_id,
	category_id, status, reference, notes, import_batch, created_at, updated_at`

func scanAccount(row pgx.Row) (core.Account, error) {
	var (
		a   core.Account
		typ string
	)
	err := row.Scan(&a.ID, &a.Name, &typ, &a.Balance.Cents, &a.Active, &a.CreatedAt, &a.UpdatedAt)
	a.Type = core.AccountType(typ)
	return a, err
}

func scanCategory(row pgx.Row) (core.Category, error) {
	var (
		c   core.Category
		typ string
	)
	err := row.Scan(&c.ID, &c.Name, &typ, &c.ParentID, &c.Active, &c.CreatedAt)
	c.Type = core.CategoryType(typ)
	return c, err
}

func scanTransaction(row pgx.Row) (core.Transaction, error) {
	var (
		t      core.Transaction
		status string
	)
	err := row.Scan(&t.ID, &t.Date, &t.Amount.Cents, &t.Description, &t.DebitAccountID, &t.CreditAccountID,
		&t.CategoryID, &status, &t.Reference, &t.Notes, &t.ImportBatch, &t.CreatedAt, &t.UpdatedAt)
	t.Status = core.Status(status)
	t.Date = t.Date.UTC()
	return t, err
}

func (q *Queries) GetAccount(ctx context.Context, id int64) (core.Account, error) {
	a, err := scanAccount(q.db.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return core.Account{}, core.NewNotFoundError("account", id)
	}
	if err != nil {
		return core.Account{}, core.Persistence("get account", err)
	}
	return a, nil
}

func (q *Queries) ListAccounts(ctx context.Context) ([]core.Account, error) {
	return q.accounts(ctx, "list accounts", `SELECT `+accountColumns+` FROM accounts ORDER BY id`)
}

func (q *Queries) FindAccount(ctx context.Context, name string, typ core.AccountType) (core.Account, error) {
	a, err := scanAccount(q.db.QueryRow(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE name = $1 AND type = $2`, name, string(typ)))
	if errors.Is(err, pgx.ErrNoRows) {
		return core.Account{}, core.NewNotFoundError("account", fmt.Sprintf("%s (%s)", name, typ))
	}
	if err != nil {
		return core.Account{}, core.Persistence("find account", err)
	}
	return a, nil
}

func (q *Queries) LockAccounts(ctx context.Context, ids ...int64) ([]core.Account, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	return q.accounts(ctx, "lock accounts",
		`SELECT `+accountColumns+` FROM accounts WHERE id = ANY($1) ORDER BY id FOR UPDATE`, ids)
}

func (q *Queries) accounts(ctx context.Context, op, query string, args ...any) ([]core.Account, error) {
	rows, err := q.db.Query(ctx, query, args...)
	if err != nil {
		return nil, core.Persistence(op, err)
	}
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

func (q *Queries) AdjustBalance(ctx context.Context, accountID int64, delta core.Money) error {
	tag, err := q.db.Exec(ctx,
		`UPDATE accounts SET balance_cents = balance_cents + $1, updated_at = now() WHERE id = $2`,
		delta.Cents, accountID)
	if err != nil {
		return core.Persistence("adjust balance", err)
	}
	if tag.RowsAffected() == 0 {
		return core.NewNotFoundError("account", accountID)
	}
	return nil
}

func (q *Queries) InsertAccount(ctx context.Context, a core.Account) (core.Account, error) {
	created, err := scanAccount(q.db.QueryRow(ctx,
		`INSERT INTO accounts (name, type, balance_cents, active)
		 VALUES ($1, $2, $3, $4)
		 RETURNING `+accountColumns,
		a.Name, string(a.Type), a.Balance.Cents, a.Active))
	if isUniqueViolation(err) {
		return core.Account{}, core.NewValidationError("name", "account %q of type %s already exists", a.Name, a.Type)
	}
	if err != nil {
		return core.Account{}, core.Persistence("insert account", err)
	}
	return created, nil
}

func (q *Queries) UpsertAccount(ctx context.Context, name string, typ core.AccountType) (core.Account, error) {
	a, err := scanAccount(q.db.QueryRow(ctx,
		`INSERT INTO accounts (name, type) VALUES ($1, $2)
		 ON CONFLICT (name, type) DO UPDATE SET name = EXCLUDED.name
		 RETURNING `+accountColumns,
		name, string(typ)))
	if err != nil {
		return core.Account{}, core.Persistence("upsert account", err)
	}
	return a, nil
}

func (q *Queries) GetCategory(ctx context.Context, id int64) (core.Category, error) {
	c, err := scanCategory(q.db.QueryRow(ctx, `SELECT `+categoryColumns+` FROM categories WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return core.Category{}, core.NewNotFoundError("category", id)
	}
	if err != nil {
		return core.Category{}, core.Persistence("get category", err)
	}
	return c, nil
}

func (q *Queries) ListCategories(ctx context.Context) ([]core.Category, error) {
	rows, err := q.db.Query(ctx, `SELECT `+categoryColumns+` FROM categories ORDER BY id`)
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
	created, err := scanCategory(q.db.QueryRow(ctx,
		`INSERT INTO categories (name, type, parent_id, active)
		 VALUES ($1, $2, $3, $4)
		 RETURNING `+categoryColumns,
		c.Name, string(c.Type), c.ParentID, c.Active))
	if isUniqueViolation(err) {
		return core.Category{}, core.NewValidationError("name", "category %q of type %s already exists", c.Name, c.Type)
	}
	if err != nil {
		return core.Category{}, core.Persistence("insert category", err)
	}
	return created, nil
}

func (q *Queries) UpsertCategory(ctx context.Context, name string, typ core.CategoryType) (core.Category, error) {
	c, err := scanCategory(q.db.QueryRow(ctx,
		`INSERT INTO categories (name, type) VALUES ($1, $2)
		 ON CONFLICT (name, type) DO UPDATE SET name = EXCLUDED.name
		 RETURNING `+categoryColumns,
		name, string(typ)))
	if err != nil {
		return core.Category{}, core.Persistence("upsert category", err)
	}
	return c, nil
}

func (q *Queries) GetTransaction(ctx context.Context, id int64) (core.Transaction, error) {
	t, err := scanTransaction(q.db.QueryRow(ctx,
		`SELECT `+transactionColumns+` FROM transactions WHERE id = $1`+q.forUpdate(), id))
	if errors.Is(err, pgx.ErrNoRows) {
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
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	if f.AccountID != 0 {
		p := arg(f.AccountID)
		where = append(where, `(debit_account_id = `+p+` OR credit_account_id = `+p+`)`)
	}
	if f.Status != "" {
		where = append(where, `status = `+arg(string(f.Status)))
	}
	if f.ImportBatch != "" {
		where = append(where, `import_batch = `+arg(f.ImportBatch))
	}
	if !f.From.IsZero() {
		where = append(where, `date >= `+arg(f.From))
	}
	if !f.To.IsZero() {
		where = append(where, `date <= `+arg(f.To))
	}

	query := `SELECT ` + transactionColumns + ` FROM transactions`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, ` AND `)
	}
	query += ` ORDER BY date, id`
	if f.Limit > 0 {
		query += ` LIMIT ` + arg(f.Limit)
	}
	return q.transactions(ctx, "list transactions", query, args...)
}

func (q *Queries) TransactionsByIDs(ctx context.Context, ids []int64) ([]core.Transaction, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	return q.transactions(ctx, "load transactions",
		`SELECT `+transactionColumns+` FROM transactions WHERE id = ANY($1) ORDER BY id`+q.forUpdate(), ids)
}

func (q *Queries) transactions(ctx context.Context, op, query string, args ...any) ([]core.Transaction, error) {
	rows, err := q.db.Query(ctx, query, args...)
	if err != nil {
		return nil, core.Persistence(op, err)
	}
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

func (q *Queries) InsertTransaction(ctx context.Context, t core.Transaction) (core.Transaction, error) {
	created, err := scanTransaction(q.db.QueryRow(ctx,
		`INSERT INTO transactions (date, amount_cents, description, debit_account_id, credit_account_id,
			category_id, status, reference, notes, import_batch)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 RETURNING `+transactionColumns,
		t.Date, t.Amount.Cents, t.Description, t.DebitAccountID, t.CreditAccountID,
		t.CategoryID, string(t.Status), t.Reference, t.Notes, t.ImportBatch))
	if err != nil {
		return core.Transaction{}, core.Persistence("insert transaction", err)
	}
	return created, nil
}

func (q *Queries) UpdateTransaction(ctx context.Context, t core.Transaction) (core.Transaction, error) {
	updated, err := scanTransaction(q.db.QueryRow(ctx,
		`UPDATE transactions SET date = $1, amount_cents = $2, description = $3, debit_account_id = $4,
			credit_account_id = $5, category_id = $6, status = $7, reference = $8, notes = $9, updated_at = now()
		 WHERE id = $10
		 RETURNING `+transactionColumns,
		t.Date, t.Amount.Cents, t.Description, t.DebitAccountID, t.CreditAccountID,
		t.CategoryID, string(t.Status), t.Reference, t.Notes, t.ID))
	if errors.Is(err, pgx.ErrNoRows) {
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
	tag, err := q.db.Exec(ctx, `DELETE FROM transactions WHERE id = ANY($1)`, ids)
	if err != nil {
		return core.Persistence("delete transactions", err)
	}
	if n := tag.RowsAffected(); n != int64(len(ids)) {
		return core.Persistence("delete transactions",
			fmt.Errorf("deleted %d of %d rows", n, len(ids)))
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
