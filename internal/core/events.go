package core

import "time"

const (
	EventTransactionCreated  = "transaction.created"
	EventTransactionUpdated  = "transaction.updated"
	EventTransactionDeleted  = "transaction.deleted"
	EventTransactionsUpdated = "transactions.bulk_updated"
	EventTransactionsDeleted = "transactions.bulk_deleted"
	EventImportCompleted     = "import.completed"
)

// Event is a committed ledger change announced to other services.
type Event struct {
	Type           string    `json:"type"`
	TransactionIDs []int64   `json:"transaction_ids,omitempty"`
	AccountIDs     []int64   `json:"account_ids,omitempty"`
	ImportBatch    string    `json:"import_batch,omitempty"`
	SuccessCount   int       `json:"success_count,omitempty"`
	ErrorCount     int       `json:"error_count,omitempty"`
	OccurredAt     time.Time `json:"occurred_at"`
}
