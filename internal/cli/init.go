// Package cli holds the start-up helpers shared by cmd/ledger and
// cmd/ledger-worker, and the ledger subcommands.
package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"ledger/internal/backend"
	"ledger/internal/config"
	"ledger/internal/importer"
	"ledger/internal/ledger"
	"ledger/internal/log"
	"ledger/internal/sheets"
	gsheet "ledger/internal/sheets/google"
)

// SetupLogger installs a text logger at level as the slog default. An
// unknown level falls back to info with a warning.
func SetupLogger(level string, component string) *log.Logger {
	lvl, err := log.ParseLevel(level)
	cfg := log.DefaultConfig()
	cfg.Level = lvl
	cfg.Component = component
	logger := log.New(cfg)
	log.SetDefault(logger)
	if err != nil {
		logger.WarnContext(context.Background(), "Falling back to info logging", log.FieldError, err)
	}
	return logger
}

// LoadEnvFile loads .env for local development. A missing file is fine.
func LoadEnvFile() {
	_ = godotenv.Load()
}

func LoadAndValidateConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Session is an opened ledger: the posting engine, the import pipeline and
// the optional job queue, ready for one command or one worker process.
type Session struct {
	Service   *ledger.Service
	Previewer *importer.Previewer
	Executor  *importer.Executor
	Provision *importer.Provisioner
	Backend   *backend.Result
	// Records is nil when no spreadsheet is configured.
	Records sheets.RecordReader
	// Jobs is nil when no broker is reachable.
	Jobs     JobPublisher
	Currency string
}

func (s *Session) Close() error {
	if s.Backend == nil || s.Backend.Cleanup == nil {
		return nil
	}
	return s.Backend.Cleanup()
}

// NewSession wires the engines over an already opened backend.
func NewSession(res *backend.Result, cfg *config.Config) *Session {
	events := res.Events()
	svc := ledger.NewService(res.Store, events)
	provision := importer.NewProvisioner(res.Store, cfg.ProvisionCacheSize, cfg.ProvisionCacheTTL)
	s := &Session{
		Service:   svc,
		Previewer: importer.NewPreviewer(res.Store),
		Executor:  importer.NewExecutor(svc, provision, events),
		Provision: provision,
		Backend:   res,
		Currency:  cfg.Currency,
	}
	if res.AMQP != nil {
		s.Jobs = res.AMQP
	}
	return s
}

// OpenSession opens the configured backend and, when a spreadsheet is
// configured, the Sheets reader.
func OpenSession(ctx context.Context, cfg *config.Config) (*Session, error) {
	bcfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		return nil, err
	}
	res, err := backend.NewFactory(slog.Default()).CreateBackend(ctx, bcfg)
	if err != nil {
		return nil, fmt.Errorf("open backend: %w", err)
	}
	s := NewSession(res, cfg)

	if cfg.GoogleSpreadsheetID != "" {
		client, err := gsheet.New(ctx, cfg.GoogleSpreadsheetID, cfg.GoogleServiceAccountFile)
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("open spreadsheet: %w", err)
		}
		s.Records = client
	}
	return s, nil
}

// GracefulShutdown returns a context cancelled on SIGINT or SIGTERM. cleanup
// runs after cancellation, bounded by timeout; done closes when it returns.
func GracefulShutdown(logger *log.Logger, timeout time.Duration, cleanup func()) (context.Context, <-chan struct{}) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	go func() {
		defer close(done)
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigChan
		logger.InfoContext(ctx, "Shutdown signal received", "signal", sig.String())
		cancel()

		finished := make(chan struct{})
		go func() {
			defer close(finished)
			if cleanup != nil {
				cleanup()
			}
		}()
		select {
		case <-finished:
			logger.InfoContext(context.Background(), "Shutdown complete")
		case <-time.After(timeout):
			logger.WarnContext(context.Background(), "Shutdown timeout reached")
		}
	}()

	return ctx, done
}
