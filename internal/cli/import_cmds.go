package cli

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/google/subcommands"

	"ledger/internal/amqp"
	"ledger/internal/core"
	"ledger/internal/importer"
)

// sourceFlags select what to import and how to read it.
type sourceFlags struct {
	format  string
	file    string
	rng     string
	account int64
	mapping importer.FieldMapping
}

func (s *sourceFlags) register(f *flag.FlagSet) {
	f.StringVar(&s.format, "format", "qif", "Input format: qif, csv or sheet.")
	f.StringVar(&s.file, "file", "", "Input file; - reads stdin.")
	f.StringVar(&s.rng, "range", "", "Spreadsheet range for -format sheet, e.g. Bank!A1:E.")
	f.Int64Var(&s.account, "account", 0, "Id of the account the export belongs to.")
	f.StringVar(&s.mapping.DateField, "date-field", "Date", "Column holding the date.")
	f.StringVar(&s.mapping.AmountField, "amount-field", "Amount", "Column holding the signed amount.")
	f.StringVar(&s.mapping.DescriptionField, "description-field", "Description", "Column holding the description.")
	f.StringVar(&s.mapping.CategoryField, "category-field", "", "Column holding the category label.")
	f.StringVar(&s.mapping.ReferenceField, "reference-field", "", "Column holding the reference.")
	f.StringVar(&s.mapping.Delimiter, "delimiter", ",", "CSV field delimiter.")
}

func (s *sourceFlags) check() error {
	format := importer.Format(s.format)
	if !format.IsValid() {
		return fmt.Errorf("unknown format %q", s.format)
	}
	if s.account <= 0 {
		return errors.New("-account is required")
	}
	if format == importer.FormatSheet {
		if s.rng == "" {
			return errors.New("-range is required for sheet imports")
		}
	} else if s.file == "" {
		return errors.New("-file is required")
	}
	return nil
}

func (s *sourceFlags) content() (string, error) {
	if importer.Format(s.format) == importer.FormatSheet {
		return "", nil
	}
	var (
		b   []byte
		err error
	)
	if s.file == "-" {
		b, err = io.ReadAll(os.Stdin)
	} else {
		b, err = os.ReadFile(s.file)
	}
	if err != nil {
		return "", fmt.Errorf("read %s: %w", s.file, err)
	}
	return string(b), nil
}

func (s *sourceFlags) preview(ctx context.Context, sess *Session) (importer.Preview, error) {
	content, err := s.content()
	if err != nil {
		return importer.Preview{}, err
	}
	switch importer.Format(s.format) {
	case importer.FormatQIF:
		return sess.Previewer.PreviewQIF(ctx, content, s.account)
	case importer.FormatCSV:
		return sess.Previewer.PreviewCSV(ctx, content, s.mapping, s.account)
	}
	if sess.Records == nil {
		return importer.Preview{}, core.NewValidationError("format", "GOOGLE_SPREADSHEET_ID is not configured")
	}
	data, err := sess.Records.ReadRecords(ctx, s.rng)
	if err != nil {
		return importer.Preview{}, fmt.Errorf("read sheet range %s: %w", s.rng, err)
	}
	return sess.Previewer.PreviewRecords(ctx, data, s.mapping, s.account)
}

func printPreview(w io.Writer, p importer.Preview, currency string) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ROW\tDATE\tAMOUNT\tCATEGORY\tDESCRIPTION\tSTATUS")
	for _, c := range p.Candidates {
		amount := display(c.Amount, currency)
		if c.IsDebit {
			amount = "-" + amount
		}
		date := ""
		if !c.Date.IsZero() {
			date = c.Date.Format(time.DateOnly)
		}
		status := "ok"
		if !c.Valid() {
			status = "invalid"
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\n", c.Row, date, amount, c.Category, c.Description, status)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(w, "\n%d of %d records can be imported\n", p.ValidCount(), len(p.Candidates))
	for _, e := range p.Errors {
		fmt.Fprintln(w, "error:", e)
	}
	for _, warning := range p.Warnings {
		fmt.Fprintln(w, "warning:", warning)
	}
	return nil
}

type previewCmd struct {
	app *App
	sourceFlags
}

func (*previewCmd) Name() string     { return "preview" }
func (*previewCmd) Synopsis() string { return "show what an import would post, without posting" }
func (*previewCmd) Usage() string {
	return `ledger preview -format qif|csv|sheet (-file <path> | -range <range>) -account <id> [mapping flags]
`
}

func (c *previewCmd) SetFlags(f *flag.FlagSet) { c.sourceFlags.register(f) }

func (c *previewCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if err := c.check(); err != nil {
		return c.app.usageError("%v", err)
	}
	return c.app.run(ctx, func(s *Session) error {
		p, err := c.preview(ctx, s)
		if err != nil {
			return err
		}
		return printPreview(c.app.out(), p, s.Currency)
	})
}

type importCmd struct {
	app           *App
	defaultDebit  int64
	defaultCredit int64
	queue         bool
	sourceFlags
}

func (*importCmd) Name() string     { return "import" }
func (*importCmd) Synopsis() string { return "post every valid record of an export" }
func (*importCmd) Usage() string {
	return `ledger import -format qif|csv|sheet (-file <path> | -range <range>) -account <id> [-default-debit <id>] [-default-credit <id>] [-queue]

  Outflows debit -default-debit, or "Expenses - <category>" when unset.
  Inflows credit -default-credit, or "Income - <category>" when unset.
  Invalid rows are reported and skipped. With -queue the job is published
  for ledger-worker instead of running here.
`
}

func (c *importCmd) SetFlags(f *flag.FlagSet) {
	c.sourceFlags.register(f)
	f.Int64Var(&c.defaultDebit, "default-debit", 0, "Counterpart account for outflows.")
	f.Int64Var(&c.defaultCredit, "default-credit", 0, "Counterpart account for inflows.")
	f.BoolVar(&c.queue, "queue", false, "Publish an import job instead of importing now.")
}

func (c *importCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if err := c.check(); err != nil {
		return c.app.usageError("%v", err)
	}
	return c.app.run(ctx, func(s *Session) error {
		if c.queue {
			return c.enqueue(ctx, s)
		}
		p, err := c.preview(ctx, s)
		if err != nil {
			return err
		}
		res, err := s.Executor.Execute(ctx, p, importer.ExecuteOptions{
			AccountID:              c.account,
			DefaultDebitAccountID:  optionalID(c.defaultDebit),
			DefaultCreditAccountID: optionalID(c.defaultCredit),
		})
		fmt.Fprintf(c.app.out(), "Batch %s: %d imported, %d failed\n", res.BatchID, res.SuccessCount, len(res.Errors))
		for _, e := range res.Errors {
			fmt.Fprintln(c.app.out(), e)
		}
		return err
	})
}

func (c *importCmd) enqueue(ctx context.Context, s *Session) error {
	if s.Jobs == nil {
		return errors.New("no AMQP broker available; set AMQP_URL")
	}
	content, err := c.content()
	if err != nil {
		return err
	}
	msg := amqp.NewImportJobMessage(importer.Format(c.format), c.account)
	msg.Content = content
	msg.Range = c.rng
	if msg.Format != importer.FormatQIF {
		mapping := c.mapping
		msg.Mapping = &mapping
	}
	msg.DefaultDebitAccountID = optionalID(c.defaultDebit)
	msg.DefaultCreditAccountID = optionalID(c.defaultCredit)
	if err := s.Jobs.PublishImportJob(ctx, msg); err != nil {
		return err
	}
	fmt.Fprintf(c.app.out(), "Queued import job %s\n", msg.JobID)
	return nil
}

type verifyCmd struct {
	app *App
}

func (*verifyCmd) Name() string     { return "verify" }
func (*verifyCmd) Synopsis() string { return "check stored balances against the transaction history" }
func (*verifyCmd) Usage() string    { return "ledger verify\n" }

func (*verifyCmd) SetFlags(*flag.FlagSet) {}

func (c *verifyCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	return c.app.run(ctx, func(s *Session) error {
		drifts, err := s.Service.Verify(ctx)
		if err != nil {
			return err
		}
		if len(drifts) == 0 {
			fmt.Fprintln(c.app.out(), "All balances match the transaction history")
			return nil
		}
		for _, d := range drifts {
			fmt.Fprintf(c.app.out(), "%d %s: stored %s, computed %s\n",
				d.AccountID, d.Name, display(d.Stored, s.Currency), display(d.Computed, s.Currency))
		}
		return fmt.Errorf("%d accounts out of balance", len(drifts))
	})
}
