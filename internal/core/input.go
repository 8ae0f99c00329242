package core

import (
	"strings"
	"time"
)

// TransactionInput carries the caller supplied fields of a new transaction.
type TransactionInput struct {
	Date            time.Time
	Amount          Money
	Description     string
	DebitAccountID  int64
	CreditAccountID int64
	CategoryID      *int64
	Status          Status // must be empty or pending
	Reference       string
	Notes           string
	ImportBatch     string
}

// Validate performs the checks that need no storage access.
func (in TransactionInput) Validate() error {
	if in.DebitAccountID == 0 {
		return NewValidationError("debit_account_id", "debit account is required")
	}
	if in.CreditAccountID == 0 {
		return NewValidationError("credit_account_id", "credit account is required")
	}
	if in.DebitAccountID == in.CreditAccountID {
		return NewValidationError("credit_account_id", "debit and credit accounts must differ")
	}
	if in.Status != "" && in.Status != StatusPending {
		return NewValidationError("status", "new transactions start as %s, got %q", StatusPending, in.Status)
	}
	return in.Transaction().Validate()
}

// Transaction returns the pending transaction described by in.
func (in TransactionInput) Transaction() Transaction {
	return Transaction{
		Date:            in.Date,
		Amount:          in.Amount,
		Description:     strings.TrimSpace(in.Description),
		DebitAccountID:  in.DebitAccountID,
		CreditAccountID: in.CreditAccountID,
		CategoryID:      in.CategoryID,
		Status:          StatusPending,
		Reference:       in.Reference,
		Notes:           in.Notes,
		ImportBatch:     in.ImportBatch,
	}
}

// TransactionPatch lists the mutable fields of a transaction. Nil fields are
// left untouched.
type TransactionPatch struct {
	Date            *time.Time
	Amount          *Money
	Description     *string
	DebitAccountID  *int64
	CreditAccountID *int64
	CategoryID      *int64
	ClearCategory   bool
	Status          *Status
	Reference       *string
	Notes           *string
}

// IsEmpty reports whether p would change nothing.
func (p TransactionPatch) IsEmpty() bool {
	return p.Date == nil && p.Amount == nil && p.Description == nil &&
		p.DebitAccountID == nil && p.CreditAccountID == nil &&
		p.CategoryID == nil && !p.ClearCategory && p.Status == nil &&
		p.Reference == nil && p.Notes == nil
}

// TouchesBalance reports whether applying p requires re-posting.
func (p TransactionPatch) TouchesBalance() bool {
	return p.Amount != nil || p.DebitAccountID != nil || p.CreditAccountID != nil
}

// Validate checks p in isolation.
func (p TransactionPatch) Validate() error {
	if p.IsEmpty() {
		return NewValidationError("", "patch has no fields to update")
	}
	if p.CategoryID != nil && p.ClearCategory {
		return NewValidationError("category_id", "cannot set and clear category at once")
	}
	if p.DebitAccountID != nil && *p.DebitAccountID <= 0 {
		return NewValidationError("debit_account_id", "invalid account id %d", *p.DebitAccountID)
	}
	if p.CreditAccountID != nil && *p.CreditAccountID <= 0 {
		return NewValidationError("credit_account_id", "invalid account id %d", *p.CreditAccountID)
	}
	if p.Status != nil && !p.Status.IsValid() {
		return NewValidationError("status", "unknown status %q", *p.Status)
	}
	if p.Amount != nil {
		if err := p.Amount.Validate(); err != nil {
			return NewValidationError("amount", "amount must be positive")
		}
	}
	return nil
}

// Apply returns t with p applied. The status transition and the resulting
// transaction are validated.
func (p TransactionPatch) Apply(t Transaction) (Transaction, error) {
	out := t
	if p.Date != nil {
		out.Date = *p.Date
	}
	if p.Amount != nil {
		out.Amount = *p.Amount
	}
	if p.Description != nil {
		out.Description = strings.TrimSpace(*p.Description)
	}
	if p.DebitAccountID != nil {
		out.DebitAccountID = *p.DebitAccountID
	}
	if p.CreditAccountID != nil {
		out.CreditAccountID = *p.CreditAccountID
	}
	if p.CategoryID != nil {
		id := *p.CategoryID
		out.CategoryID = &id
	}
	if p.ClearCategory {
		out.CategoryID = nil
	}
	if p.Status != nil {
		if !t.Status.CanTransition(*p.Status) {
			return t, NewValidationError("status", "cannot move transaction from %s to %s", t.Status, *p.Status)
		}
		out.Status = *p.Status
	}
	if p.Reference != nil {
		out.Reference = *p.Reference
	}
	if p.Notes != nil {
		out.Notes = *p.Notes
	}
	if err := out.Validate(); err != nil {
		return t, err
	}
	return out, nil
}
