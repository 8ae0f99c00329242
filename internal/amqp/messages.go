package amqp

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"ledger/internal/importer"
)

// ImportJobMessage asks a worker to preview and execute one import. Content
// carries the QIF or CSV text; sheet jobs name a Range instead.
type ImportJobMessage struct {
	JobID                  string                 `json:"job_id"`
	Format                 importer.Format        `json:"format"`
	Content                string                 `json:"content,omitempty"`
	Range                  string                 `json:"range,omitempty"`
	AccountID              int64                  `json:"account_id"`
	Mapping                *importer.FieldMapping `json:"mapping,omitempty"`
	DefaultDebitAccountID  *int64                 `json:"default_debit_account_id,omitempty"`
	DefaultCreditAccountID *int64                 `json:"default_credit_account_id,omitempty"`
	Timestamp              time.Time              `json:"timestamp"`
}

// NewImportJobMessage creates a job with a fresh id.
func NewImportJobMessage(format importer.Format, accountID int64) *ImportJobMessage {
	return &ImportJobMessage{
		JobID:     uuid.NewString(),
		Format:    format,
		AccountID: accountID,
		Timestamp: time.Now(),
	}
}

func (m *ImportJobMessage) Validate() error {
	var errs []error
	if !m.Format.IsValid() {
		errs = append(errs, fmt.Errorf("unknown format %q", m.Format))
	}
	if m.AccountID <= 0 {
		errs = append(errs, errors.New("account_id is required"))
	}
	switch m.Format {
	case importer.FormatSheet:
		if m.Range == "" {
			errs = append(errs, errors.New("range is required for sheet imports"))
		}
	default:
		if m.Content == "" {
			errs = append(errs, errors.New("content is required"))
		}
	}
	if m.Format != importer.FormatQIF && m.Mapping == nil {
		errs = append(errs, errors.New("mapping is required for tabular imports"))
	}
	return errors.Join(errs...)
}

func (m *ImportJobMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func ImportJobMessageFromJSON(data []byte) (*ImportJobMessage, error) {
	var msg ImportJobMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
