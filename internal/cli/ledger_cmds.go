package cli

import (
	"context"
	"flag"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/google/subcommands"

	"ledger/internal/core"
	"ledger/internal/ledger"
)

type accountAddCmd struct {
	app  *App
	name string
	typ  string
}

func (*accountAddCmd) Name() string     { return "account-add" }
func (*accountAddCmd) Synopsis() string { return "create an account" }
func (*accountAddCmd) Usage() string {
	return `ledger account-add -name <name> -type <type>

  Types: asset_bank, asset_investment, asset_cash, liability_credit_card,
  liability_loan, income, expense.
`
}

func (c *accountAddCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.name, "name", "", "Account name.")
	f.StringVar(&c.typ, "type", "", "Account type.")
}

func (c *accountAddCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if c.name == "" || c.typ == "" {
		return c.app.usageError("-name and -type are required")
	}
	return c.app.run(ctx, func(s *Session) error {
		a, err := s.Service.CreateAccount(ctx, core.Account{Name: c.name, Type: core.AccountType(c.typ), Active: true})
		if err != nil {
			return err
		}
		fmt.Fprintf(c.app.out(), "Created account %d: %s (%s)\n", a.ID, a.Name, a.Type)
		return nil
	})
}

type accountsCmd struct {
	app *App
}

func (*accountsCmd) Name() string     { return "accounts" }
func (*accountsCmd) Synopsis() string { return "list accounts with their balances" }
func (*accountsCmd) Usage() string    { return "ledger accounts\n" }

func (*accountsCmd) SetFlags(*flag.FlagSet) {}

func (c *accountsCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	return c.app.run(ctx, func(s *Session) error {
		accounts, err := s.Service.ListAccounts(ctx)
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(c.app.out(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tNAME\tTYPE\tBALANCE")
		for _, a := range accounts {
			fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", a.ID, a.Name, a.Type, display(a.Balance, s.Currency))
		}
		return w.Flush()
	})
}

type categoryAddCmd struct {
	app    *App
	name   string
	typ    string
	parent int64
}

func (*categoryAddCmd) Name() string     { return "category-add" }
func (*categoryAddCmd) Synopsis() string { return "create a category" }
func (*categoryAddCmd) Usage() string {
	return `ledger category-add -name <name> -type income|expense|transfer [-parent <id>]
`
}

func (c *categoryAddCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.name, "name", "", "Category name.")
	f.StringVar(&c.typ, "type", "", "Category type.")
	f.Int64Var(&c.parent, "parent", 0, "Parent category id.")
}

func (c *categoryAddCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if c.name == "" || c.typ == "" {
		return c.app.usageError("-name and -type are required")
	}
	return c.app.run(ctx, func(s *Session) error {
		cat, err := s.Service.CreateCategory(ctx, core.Category{
			Name:     c.name,
			Type:     core.CategoryType(c.typ),
			ParentID: optionalID(c.parent),
			Active:   true,
		})
		if err != nil {
			return err
		}
		fmt.Fprintf(c.app.out(), "Created category %d: %s (%s)\n", cat.ID, cat.Name, cat.Type)
		return nil
	})
}

type balanceCmd struct {
	app     *App
	account int64
}

func (*balanceCmd) Name() string     { return "balance" }
func (*balanceCmd) Synopsis() string { return "print the balance of an account" }
func (*balanceCmd) Usage() string    { return "ledger balance -account <id>\n" }

func (c *balanceCmd) SetFlags(f *flag.FlagSet) {
	f.Int64Var(&c.account, "account", 0, "Account id.")
}

func (c *balanceCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if c.account <= 0 {
		return c.app.usageError("-account is required")
	}
	return c.app.run(ctx, func(s *Session) error {
		b, err := s.Service.AccountBalance(ctx, c.account)
		if err != nil {
			return err
		}
		fmt.Fprintln(c.app.out(), display(b, s.Currency))
		return nil
	})
}

type txAddCmd struct {
	app         *App
	date        string
	amount      string
	description string
	debit       int64
	credit      int64
	category    int64
	reference   string
	notes       string
}

func (*txAddCmd) Name() string     { return "tx-add" }
func (*txAddCmd) Synopsis() string { return "post a transaction" }
func (*txAddCmd) Usage() string {
	return `ledger tx-add -date <YYYY-MM-DD> -amount <amount> -debit <id> -credit <id> [-description <text>] [-category <id>]

  The amount moves from the credit account to the debit account.
`
}

func (c *txAddCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.date, "date", "", "Transaction date.")
	f.StringVar(&c.amount, "amount", "", "Positive amount, e.g. 12.50.")
	f.StringVar(&c.description, "description", "", "Description.")
	f.Int64Var(&c.debit, "debit", 0, "Debit account id.")
	f.Int64Var(&c.credit, "credit", 0, "Credit account id.")
	f.Int64Var(&c.category, "category", 0, "Category id.")
	f.StringVar(&c.reference, "reference", "", "External reference.")
	f.StringVar(&c.notes, "notes", "", "Notes.")
}

func (c *txAddCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	date, err := parseDay(c.date)
	if err != nil {
		return c.app.usageError("%v", err)
	}
	amount, err := parsePositiveAmount(c.amount)
	if err != nil {
		return c.app.usageError("%v", err)
	}
	return c.app.run(ctx, func(s *Session) error {
		t, err := s.Service.Create(ctx, core.TransactionInput{
			Date:            date,
			Amount:          amount,
			Description:     c.description,
			DebitAccountID:  c.debit,
			CreditAccountID: c.credit,
			CategoryID:      optionalID(c.category),
			Reference:       c.reference,
			Notes:           c.notes,
		})
		if err != nil {
			return err
		}
		fmt.Fprintf(c.app.out(), "Created transaction %d: %s %s\n", t.ID, t.Date.Format(time.DateOnly), display(t.Amount, s.Currency))
		return nil
	})
}

// patchFlags are the editable transaction fields shared by tx-update and
// tx-bulk-update. Only flags given on the command line end up in the patch.
type patchFlags struct {
	date          string
	amount        string
	description   string
	debit         int64
	credit        int64
	category      int64
	clearCategory bool
	status        string
	reference     string
	notes         string
}

func (p *patchFlags) register(f *flag.FlagSet) {
	f.StringVar(&p.date, "date", "", "New date.")
	f.StringVar(&p.amount, "amount", "", "New amount.")
	f.StringVar(&p.description, "description", "", "New description.")
	f.Int64Var(&p.debit, "debit", 0, "New debit account id.")
	f.Int64Var(&p.credit, "credit", 0, "New credit account id.")
	f.Int64Var(&p.category, "category", 0, "New category id.")
	f.BoolVar(&p.clearCategory, "clear-category", false, "Remove the category.")
	f.StringVar(&p.status, "status", "", "New status: pending, cleared or reconciled.")
	f.StringVar(&p.reference, "reference", "", "New reference.")
	f.StringVar(&p.notes, "notes", "", "New notes.")
}

func (p *patchFlags) patch(f *flag.FlagSet) (core.TransactionPatch, error) {
	set := setFlags(f)
	var patch core.TransactionPatch
	if set["date"] {
		d, err := parseDay(p.date)
		if err != nil {
			return patch, err
		}
		patch.Date = &d
	}
	if set["amount"] {
		m, err := parsePositiveAmount(p.amount)
		if err != nil {
			return patch, err
		}
		patch.Amount = &m
	}
	if set["description"] {
		patch.Description = &p.description
	}
	if set["debit"] {
		patch.DebitAccountID = &p.debit
	}
	if set["credit"] {
		patch.CreditAccountID = &p.credit
	}
	if set["category"] {
		patch.CategoryID = &p.category
	}
	patch.ClearCategory = p.clearCategory
	if set["status"] {
		st := core.Status(p.status)
		patch.Status = &st
	}
	if set["reference"] {
		patch.Reference = &p.reference
	}
	if set["notes"] {
		patch.Notes = &p.notes
	}
	return patch, nil
}

type txUpdateCmd struct {
	app *App
	id  int64
	patchFlags
}

func (*txUpdateCmd) Name() string     { return "tx-update" }
func (*txUpdateCmd) Synopsis() string { return "change a transaction and re-post it" }
func (*txUpdateCmd) Usage() string {
	return `ledger tx-update -id <id> [-date ...] [-amount ...] [-debit ...] [-credit ...] [-status ...]
`
}

func (c *txUpdateCmd) SetFlags(f *flag.FlagSet) {
	f.Int64Var(&c.id, "id", 0, "Transaction id.")
	c.patchFlags.register(f)
}

func (c *txUpdateCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if c.id <= 0 {
		return c.app.usageError("-id is required")
	}
	patch, err := c.patch(f)
	if err != nil {
		return c.app.usageError("%v", err)
	}
	return c.app.run(ctx, func(s *Session) error {
		t, err := s.Service.Update(ctx, c.id, patch)
		if err != nil {
			return err
		}
		fmt.Fprintf(c.app.out(), "Updated transaction %d (%s)\n", t.ID, t.Status)
		return nil
	})
}

type txDeleteCmd struct {
	app *App
	id  int64
}

func (*txDeleteCmd) Name() string     { return "tx-delete" }
func (*txDeleteCmd) Synopsis() string { return "delete a transaction and reverse its posting" }
func (*txDeleteCmd) Usage() string    { return "ledger tx-delete -id <id>\n" }

func (c *txDeleteCmd) SetFlags(f *flag.FlagSet) {
	f.Int64Var(&c.id, "id", 0, "Transaction id.")
}

func (c *txDeleteCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if c.id <= 0 {
		return c.app.usageError("-id is required")
	}
	return c.app.run(ctx, func(s *Session) error {
		if err := s.Service.Delete(ctx, c.id); err != nil {
			return err
		}
		fmt.Fprintf(c.app.out(), "Deleted transaction %d\n", c.id)
		return nil
	})
}

type txBulkUpdateCmd struct {
	app *App
	ids string
	patchFlags
}

func (*txBulkUpdateCmd) Name() string     { return "tx-bulk-update" }
func (*txBulkUpdateCmd) Synopsis() string { return "apply one change to many transactions" }
func (*txBulkUpdateCmd) Usage() string {
	return `ledger tx-bulk-update -ids <id,id,...> [-status ...] [-category ...] [-debit ...]

  All transactions are updated or none is.
`
}

func (c *txBulkUpdateCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.ids, "ids", "", "Comma separated transaction ids.")
	c.patchFlags.register(f)
}

func (c *txBulkUpdateCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	ids, err := parseIDs(c.ids)
	if err != nil {
		return c.app.usageError("%v", err)
	}
	patch, err := c.patch(f)
	if err != nil {
		return c.app.usageError("%v", err)
	}
	return c.app.run(ctx, func(s *Session) error {
		n, err := s.Service.BulkUpdate(ctx, ids, patch)
		if err != nil {
			return err
		}
		fmt.Fprintf(c.app.out(), "Updated %d transactions\n", n)
		return nil
	})
}

type txBulkDeleteCmd struct {
	app *App
	ids string
}

func (*txBulkDeleteCmd) Name() string     { return "tx-bulk-delete" }
func (*txBulkDeleteCmd) Synopsis() string { return "delete many transactions at once" }
func (*txBulkDeleteCmd) Usage() string    { return "ledger tx-bulk-delete -ids <id,id,...>\n" }

func (c *txBulkDeleteCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.ids, "ids", "", "Comma separated transaction ids.")
}

func (c *txBulkDeleteCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	ids, err := parseIDs(c.ids)
	if err != nil {
		return c.app.usageError("%v", err)
	}
	return c.app.run(ctx, func(s *Session) error {
		n, err := s.Service.BulkDelete(ctx, ids)
		if err != nil {
			return err
		}
		fmt.Fprintf(c.app.out(), "Deleted %d transactions\n", n)
		return nil
	})
}

type txListCmd struct {
	app     *App
	account int64
	status  string
	batch   string
	from    string
	to      string
	limit   int
}

func (*txListCmd) Name() string     { return "tx-list" }
func (*txListCmd) Synopsis() string { return "list transactions" }
func (*txListCmd) Usage() string {
	return `ledger tx-list [-account <id>] [-status <status>] [-batch <import batch>] [-from <date>] [-to <date>] [-limit <n>]
`
}

func (c *txListCmd) SetFlags(f *flag.FlagSet) {
	f.Int64Var(&c.account, "account", 0, "Only transactions touching this account.")
	f.StringVar(&c.status, "status", "", "Only transactions in this status.")
	f.StringVar(&c.batch, "batch", "", "Only transactions of this import batch.")
	f.StringVar(&c.from, "from", "", "First day, inclusive.")
	f.StringVar(&c.to, "to", "", "Last day, inclusive.")
	f.IntVar(&c.limit, "limit", 0, "Maximum number of transactions.")
}

func (c *txListCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	filter := ledger.TransactionFilter{
		AccountID:   c.account,
		Status:      core.Status(c.status),
		ImportBatch: c.batch,
		Limit:       c.limit,
	}
	var err error
	if c.from != "" {
		if filter.From, err = parseDay(c.from); err != nil {
			return c.app.usageError("%v", err)
		}
	}
	if c.to != "" {
		if filter.To, err = parseDay(c.to); err != nil {
			return c.app.usageError("%v", err)
		}
	}
	return c.app.run(ctx, func(s *Session) error {
		txs, err := s.Service.List(ctx, filter)
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(c.app.out(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tDATE\tAMOUNT\tDEBIT\tCREDIT\tSTATUS\tDESCRIPTION")
		for _, t := range txs {
			fmt.Fprintf(w, "%d\t%s\t%s\t%d\t%d\t%s\t%s\n",
				t.ID, t.Date.Format(time.DateOnly), display(t.Amount, s.Currency),
				t.DebitAccountID, t.CreditAccountID, t.Status, t.Description)
		}
		return w.Flush()
	})
}
