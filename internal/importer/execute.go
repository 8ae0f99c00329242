package importer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"ledger/internal/core"
	"ledger/internal/ledger"
)

// Poster creates one balanced transaction; *ledger.Service implements it.
type Poster interface {
	Create(ctx context.Context, in core.TransactionInput) (core.Transaction, error)
}

type ExecuteOptions struct {
	// AccountID is the imported account; zero means the preview's account.
	AccountID              int64
	DefaultCreditAccountID *int64
	DefaultDebitAccountID  *int64
}

type Result struct {
	BatchID        string   `json:"batch_id"`
	SuccessCount   int      `json:"success_count"`
	Errors         []string `json:"errors,omitempty"`
	TransactionIDs []int64  `json:"transaction_ids,omitempty"`
}

// Executor posts previewed candidates one by one. A failed row is reported
// and skipped; accounts and categories it provisioned stay.
type Executor struct {
	poster    Poster
	provision *Provisioner
	events    ledger.EventPublisher
	now       func() time.Time
	newID     func() string
}

// NewExecutor returns an executor. events may be nil.
func NewExecutor(poster Poster, provision *Provisioner, events ledger.EventPublisher) *Executor {
	return &Executor{
		poster:    poster,
		provision: provision,
		events:    events,
		now:       time.Now,
		newID:     uuid.NewString,
	}
}

// Execute posts every candidate of preview. When ctx is cancelled the run
// stops between rows; the partial result is returned with ctx.Err().
func (e *Executor) Execute(ctx context.Context, preview Preview, opts ExecuteOptions) (Result, error) {
	if opts.AccountID == 0 {
		opts.AccountID = preview.AccountID
	}
	res := Result{BatchID: e.batchID()}
	started := e.now()

	var runErr error
	for i, c := range preview.Candidates {
		if err := ctx.Err(); err != nil {
			for _, skipped := range preview.Candidates[i:] {
				res.Errors = append(res.Errors, (&core.RowError{Row: skipped.Row, Err: err}).Error())
			}
			runErr = err
			break
		}
		tx, err := e.executeRow(ctx, res.BatchID, c, opts)
		if err != nil {
			rowErr := &core.RowError{Row: c.Row, Err: err}
			slog.WarnContext(ctx, "Import row failed",
				"batch", res.BatchID,
				"row", c.Row,
				"error", err)
			res.Errors = append(res.Errors, rowErr.Error())
			if errors.Is(err, core.ErrNotFound) {
				e.provision.Reset()
			}
			continue
		}
		res.SuccessCount++
		res.TransactionIDs = append(res.TransactionIDs, tx.ID)
	}

	slog.InfoContext(ctx, "Import completed",
		"batch", res.BatchID,
		"format", preview.Format,
		"account_id", opts.AccountID,
		"succeeded", res.SuccessCount,
		"failed", len(res.Errors),
		"duration_ms", e.now().Sub(started).Milliseconds())

	e.publish(context.WithoutCancel(ctx), res, opts.AccountID)
	return res, runErr
}

func (e *Executor) executeRow(ctx context.Context, batch string, c Candidate, opts ExecuteOptions) (core.Transaction, error) {
	if !c.Valid() {
		return core.Transaction{}, errors.New(strings.Join(c.Errors, "; "))
	}

	var debit, credit int64
	var err error
	if c.IsDebit {
		credit = opts.AccountID
		if opts.DefaultDebitAccountID != nil {
			debit = *opts.DefaultDebitAccountID
		} else if debit, err = e.provision.ExpenseAccount(ctx, c.Category); err != nil {
			return core.Transaction{}, err
		}
	} else {
		debit = opts.AccountID
		if opts.DefaultCreditAccountID != nil {
			credit = *opts.DefaultCreditAccountID
		} else if credit, err = e.provision.IncomeAccount(ctx, c.Category); err != nil {
			return core.Transaction{}, err
		}
	}

	var categoryID *int64
	if c.Category != "" {
		id, err := e.provision.Category(ctx, c.Category, categoryType(c.IsDebit))
		if err != nil {
			return core.Transaction{}, err
		}
		categoryID = &id
	}

	return e.poster.Create(ctx, core.TransactionInput{
		Date:            c.Date,
		Amount:          c.Amount,
		Description:     c.Description,
		DebitAccountID:  debit,
		CreditAccountID: credit,
		CategoryID:      categoryID,
		Reference:       c.Reference,
		Notes:           fmt.Sprintf("Imported (batch %s)", batch),
		ImportBatch:     batch,
	})
}

// batchID is import-<UTC start>-<8 hex chars>.
func (e *Executor) batchID() string {
	suffix := strings.ReplaceAll(e.newID(), "-", "")
	if len(suffix) > 8 {
		suffix = suffix[:8]
	}
	return fmt.Sprintf("import-%s-%s", e.now().UTC().Format("20060102T150405Z"), suffix)
}

func (e *Executor) publish(ctx context.Context, res Result, accountID int64) {
	if e.events == nil {
		return
	}
	err := e.events.PublishEvent(ctx, core.Event{
		Type:           core.EventImportCompleted,
		TransactionIDs: res.TransactionIDs,
		AccountIDs:     []int64{accountID},
		ImportBatch:    res.BatchID,
		SuccessCount:   res.SuccessCount,
		ErrorCount:     len(res.Errors),
		OccurredAt:     e.now().UTC(),
	})
	if err != nil {
		slog.ErrorContext(ctx, "Failed to publish import event", "batch", res.BatchID, "error", err)
	}
}
