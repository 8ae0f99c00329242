package cli

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/Rhymond/go-money"
	"github.com/google/subcommands"

	"ledger/internal/amqp"
	"ledger/internal/core"
	"ledger/internal/parser"
)

// JobPublisher queues import jobs for cmd/ledger-worker.
type JobPublisher interface {
	PublishImportJob(ctx context.Context, msg *amqp.ImportJobMessage) error
}

// App is shared by every subcommand. Open is only called once a command has
// parsed its flags, so usage errors never touch the store.
type App struct {
	Out  io.Writer
	Err  io.Writer
	Open func(ctx context.Context) (*Session, error)
}

// Commands returns the ledger subcommands bound to app.
func Commands(app *App) []subcommands.Command {
	return []subcommands.Command{
		&accountAddCmd{app: app},
		&accountsCmd{app: app},
		&categoryAddCmd{app: app},
		&balanceCmd{app: app},
		&txAddCmd{app: app},
		&txUpdateCmd{app: app},
		&txDeleteCmd{app: app},
		&txBulkUpdateCmd{app: app},
		&txBulkDeleteCmd{app: app},
		&txListCmd{app: app},
		&previewCmd{app: app},
		&importCmd{app: app},
		&verifyCmd{app: app},
	}
}

// Register adds the subcommands and the built-in help commands to commander.
func Register(commander *subcommands.Commander, app *App) {
	commander.Register(commander.HelpCommand(), "")
	commander.Register(commander.FlagsCommand(), "")
	commander.Register(commander.CommandsCommand(), "")
	for _, c := range Commands(app) {
		group := "ledger"
		switch c.(type) {
		case *previewCmd, *importCmd:
			group = "import"
		}
		commander.Register(c, group)
	}
}

// run opens a session, calls fn and maps its error to an exit status.
func (a *App) run(ctx context.Context, fn func(*Session) error) subcommands.ExitStatus {
	s, err := a.Open(ctx)
	if err != nil {
		fmt.Fprintln(a.errOut(), "Error:", err)
		return subcommands.ExitFailure
	}
	defer s.Close()

	if err := fn(s); err != nil {
		fmt.Fprintln(a.errOut(), "Error:", err)
		if errors.Is(err, core.ErrValidation) {
			return subcommands.ExitUsageError
		}
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}

func (a *App) out() io.Writer {
	if a.Out == nil {
		return os.Stdout
	}
	return a.Out
}

func (a *App) errOut() io.Writer {
	if a.Err == nil {
		return os.Stderr
	}
	return a.Err
}

func (a *App) usageError(format string, args ...any) subcommands.ExitStatus {
	fmt.Fprintf(a.errOut(), "Error: "+format+"\n", args...)
	return subcommands.ExitUsageError
}

// display formats m in currency, e.g. "€1,234.50".
func display(m core.Money, currency string) string {
	return money.New(m.Cents, currency).Display()
}

func parseDay(s string) (time.Time, error) {
	t, err := time.Parse(time.DateOnly, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: want YYYY-MM-DD", s)
	}
	return t, nil
}

// parsePositiveAmount accepts the same notations as the import parsers.
func parsePositiveAmount(s string) (core.Money, error) {
	d, ok := parser.ParseAmount(s)
	if !ok {
		return core.Money{}, fmt.Errorf("invalid amount %q", s)
	}
	m, err := core.MoneyFromDecimal(d)
	if err != nil {
		return core.Money{}, err
	}
	if m.Cents <= 0 {
		return core.Money{}, fmt.Errorf("amount must be positive, got %q", s)
	}
	return m, nil
}

func parseIDs(s string) ([]int64, error) {
	var ids []int64
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil || id <= 0 {
			return nil, fmt.Errorf("invalid id %q", part)
		}
		ids = append(ids, id)
	}
	if len(ids) == 0 {
		return nil, errors.New("no ids given")
	}
	return ids, nil
}

// setFlags returns the names of the flags given on the command line.
func setFlags(f *flag.FlagSet) map[string]bool {
	set := map[string]bool{}
	f.Visit(func(fl *flag.Flag) { set[fl.Name] = true })
	return set
}

func optionalID(id int64) *int64 {
	if id == 0 {
		return nil
	}
	return &id
}
