// Package worker runs queued import jobs.
package worker

import (
	"context"
	"fmt"
	"time"

	"ledger/internal/amqp"
	"ledger/internal/core"
	"ledger/internal/importer"
	"ledger/internal/log"
	"ledger/internal/sheets"
)

// ImportWorker previews and executes one import job at a time. Row failures
// are part of a successful run; only failures that prevent the run (unknown
// account, unreadable source, broken mapping) are returned.
type ImportWorker struct {
	previewer *importer.Previewer
	executor  *importer.Executor
	records   sheets.RecordReader
	logger    *log.Logger
}

// NewImportWorker returns a worker. records may be nil when no spreadsheet
// is configured; sheet jobs then fail validation.
func NewImportWorker(previewer *importer.Previewer, executor *importer.Executor, records sheets.RecordReader, logger *log.Logger) *ImportWorker {
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	return &ImportWorker{
		previewer: previewer,
		executor:  executor,
		records:   records,
		logger:    logger.WithComponent(log.ComponentWorker),
	}
}

// HandleImportJob processes msg. Its signature matches amqp.Client.ConsumeImportJobs.
func (w *ImportWorker) HandleImportJob(ctx context.Context, msg *amqp.ImportJobMessage) error {
	_, err := w.Run(ctx, msg)
	return err
}

// Run previews and executes msg and returns the execution result.
func (w *ImportWorker) Run(ctx context.Context, msg *amqp.ImportJobMessage) (importer.Result, error) {
	started := time.Now()
	ctx = log.WithTraceID(ctx, msg.JobID)
	logger := w.logger.WithFields(log.NewFields().WithJob(msg.JobID, string(msg.Format), msg.AccountID))

	preview, err := w.preview(ctx, msg)
	if err != nil {
		logger.ErrorContext(ctx, "Import preview failed", log.FieldOperation, log.OpPreview, log.FieldErrorType, log.ErrorType(err), log.FieldError, err)
		return importer.Result{}, err
	}
	for _, warning := range preview.Warnings {
		logger.WarnContext(ctx, "Import preview warning", "warning", warning)
	}

	res, err := w.executor.Execute(ctx, preview, importer.ExecuteOptions{
		AccountID:              msg.AccountID,
		DefaultDebitAccountID:  msg.DefaultDebitAccountID,
		DefaultCreditAccountID: msg.DefaultCreditAccountID,
	})
	for _, rowErr := range res.Errors {
		logger.WarnContext(ctx, "Import row rejected", log.FieldBatch, res.BatchID, log.FieldError, rowErr)
	}
	fields := log.NewFields().
		WithOperation(log.OpImport).
		WithImportResult(res.BatchID, res.SuccessCount, len(res.Errors)).
		WithError(err)
	fields[log.FieldDuration] = time.Since(started).Milliseconds()
	if err != nil {
		logger.ErrorContext(ctx, "Import job interrupted", fields.ToSlice()...)
		return res, err
	}
	logger.InfoContext(ctx, "Import job finished", fields.ToSlice()...)
	return res, nil
}

func (w *ImportWorker) preview(ctx context.Context, msg *amqp.ImportJobMessage) (importer.Preview, error) {
	switch msg.Format {
	case importer.FormatQIF:
		return w.previewer.PreviewQIF(ctx, msg.Content, msg.AccountID)
	case importer.FormatCSV:
		if msg.Mapping == nil {
			return importer.Preview{}, core.NewValidationError("mapping", "required for csv imports")
		}
		return w.previewer.PreviewCSV(ctx, msg.Content, *msg.Mapping, msg.AccountID)
	case importer.FormatSheet:
		if msg.Mapping == nil {
			return importer.Preview{}, core.NewValidationError("mapping", "required for sheet imports")
		}
		if w.records == nil {
			return importer.Preview{}, core.NewValidationError("format", "no spreadsheet configured")
		}
		data, err := w.records.ReadRecords(ctx, msg.Range)
		if err != nil {
			return importer.Preview{}, fmt.Errorf("read sheet range %s: %w", msg.Range, err)
		}
		return w.previewer.PreviewRecords(ctx, data, *msg.Mapping, msg.AccountID)
	}
	return importer.Preview{}, core.NewValidationError("format", "unsupported format %q", msg.Format)
}
