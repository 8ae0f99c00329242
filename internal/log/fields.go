package log

import "slices"

// Common field names for structured logging
const (
	FieldComponent   = "component"
	FieldOperation   = "operation"
	FieldError       = "error"
	FieldErrorType   = "error_type"
	FieldDuration    = "duration_ms"
	FieldJobID       = "job_id"
	FieldBatch       = "batch"
	FieldFormat      = "format"
	FieldAccountID   = "account_id"
	FieldTransaction = "transaction_id"
	FieldAmountCents = "amount_cents"
	FieldSucceeded   = "succeeded"
	FieldFailed      = "failed"
)

// Components
const (
	ComponentApp      = "app"
	ComponentCLI      = "cli"
	ComponentLedger   = "ledger"
	ComponentImporter = "importer"
	ComponentStorage  = "storage"
	ComponentAMQP     = "amqp"
	ComponentWorker   = "worker"
	ComponentSheets   = "sheets"
	ComponentCache    = "cache"
	ComponentBackend  = "backend"
)

// Operations
const (
	OpCreate   = "create"
	OpUpdate   = "update"
	OpDelete   = "delete"
	OpList     = "list"
	OpPreview  = "preview"
	OpImport   = "import"
	OpVerify   = "verify"
	OpStartup  = "startup"
	OpShutdown = "shutdown"
)

// Error type categories
const (
	ErrorTypeValidation    = "validation_error"
	ErrorTypeConfiguration = "configuration_error"
	ErrorTypeDatabase      = "database_error"
	ErrorTypeNetwork       = "network_error"
	ErrorTypeNotFound      = "not_found_error"
	ErrorTypeCanceled      = "canceled"
	ErrorTypeInternal      = "internal_error"
)

// LogFields builds a set of slog attributes.
type LogFields map[string]any

func NewFields() LogFields {
	return make(LogFields)
}

func (f LogFields) WithComponent(component string) LogFields {
	f[FieldComponent] = component
	return f
}

func (f LogFields) WithOperation(op string) LogFields {
	f[FieldOperation] = op
	return f
}

// WithError adds the error and its category. A nil err is ignored.
func (f LogFields) WithError(err error) LogFields {
	if err != nil {
		f[FieldError] = err.Error()
		f[FieldErrorType] = ErrorType(err)
	}
	return f
}

func (f LogFields) WithJob(jobID, format string, accountID int64) LogFields {
	f[FieldJobID] = jobID
	f[FieldFormat] = format
	f[FieldAccountID] = accountID
	return f
}

// WithImportResult adds the outcome of an import batch.
func (f LogFields) WithImportResult(batch string, succeeded, failed int) LogFields {
	f[FieldBatch] = batch
	f[FieldSucceeded] = succeeded
	f[FieldFailed] = failed
	return f
}

// ToSlice converts LogFields to key/value pairs for slog, sorted by key.
func (f LogFields) ToSlice() []any {
	keys := make([]string, 0, len(f))
	for k := range f {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	out := make([]any, 0, len(f)*2)
	for _, k := range keys {
		out = append(out, k, f[k])
	}
	return out
}
