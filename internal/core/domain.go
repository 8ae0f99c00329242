package core

import (
	"strings"
	"time"
)

const (
	AssetBank           AccountType = "asset_bank"
	AssetInvestment     AccountType = "asset_investment"
	AssetCash           AccountType = "asset_cash"
	LiabilityCreditCard AccountType = "liability_credit_card"
	LiabilityLoan       AccountType = "liability_loan"
	IncomeAccount       AccountType = "income"
	ExpenseAccount      AccountType = "expense"
)

const (
	IncomeCategory   CategoryType = "income"
	ExpenseCategory  CategoryType = "expense"
	TransferCategory CategoryType = "transfer"
)

const (
	StatusPending    Status = "pending"
	StatusCleared    Status = "cleared"
	StatusReconciled Status = "reconciled"
)

type (
	AccountType  string
	CategoryType string
	Status       string

	Account struct {
		ID        int64
		Name      string
		Type      AccountType
		Balance   Money
		Active    bool
		CreatedAt time.Time
		UpdatedAt time.Time
	}

	Category struct {
		ID        int64
		Name      string
		Type      CategoryType
		ParentID  *int64
		Active    bool
		CreatedAt time.Time
	}

	Transaction struct {
		ID              int64
		Date            time.Time
		Amount          Money
		Description     string
		DebitAccountID  int64
		CreditAccountID int64
		CategoryID      *int64
		Status          Status
		Reference       string
		Notes           string
		ImportBatch     string // empty unless created by an import run
		CreatedAt       time.Time
		UpdatedAt       time.Time
	}
)

// IsValid reports whether t is one of the known account types.
func (t AccountType) IsValid() bool {
	switch t {
	case AssetBank, AssetInvestment, AssetCash, LiabilityCreditCard, LiabilityLoan, IncomeAccount, ExpenseAccount:
		return true
	default:
		return false
	}
}

func (t CategoryType) IsValid() bool {
	switch t {
	case IncomeCategory, ExpenseCategory, TransferCategory:
		return true
	default:
		return false
	}
}

func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusCleared, StatusReconciled:
		return true
	default:
		return false
	}
}

// CanTransition reports whether a transaction in status s may be moved to next.
// Only cleared transactions can be reconciled, reconciled is terminal and
// setting the current status again is always allowed.
func (s Status) CanTransition(next Status) bool {
	if !next.IsValid() {
		return false
	}
	switch {
	case s == next:
		return true
	case s == StatusReconciled:
		return false
	case next == StatusReconciled:
		return s == StatusCleared
	default:
		return true
	}
}

func (a Account) Validate() error {
	if strings.TrimSpace(a.Name) == "" {
		return NewValidationError("name", "account name is required")
	}
	if len(a.Name) > 200 {
		return NewValidationError("name", "account name too long (max 200 characters)")
	}
	if !a.Type.IsValid() {
		return NewValidationError("type", "unknown account type %q", a.Type)
	}
	return nil
}

func (c Category) Validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return NewValidationError("name", "category name is required")
	}
	if len(c.Name) > 200 {
		return NewValidationError("name", "category name too long (max 200 characters)")
	}
	if !c.Type.IsValid() {
		return NewValidationError("type", "unknown category type %q", c.Type)
	}
	if c.ParentID != nil && c.ID != 0 && *c.ParentID == c.ID {
		return NewValidationError("parent_id", "category cannot be its own parent")
	}
	return nil
}

// Validate checks the invariants every stored transaction must satisfy.
func (t Transaction) Validate() error {
	if t.Date.IsZero() {
		return NewValidationError("date", "date is required")
	}
	if err := t.Amount.Validate(); err != nil {
		return NewValidationError("amount", "amount must be positive")
	}
	if t.DebitAccountID == t.CreditAccountID {
		return NewValidationError("credit_account_id", "debit and credit accounts must differ")
	}
	if len(t.Description) > 500 {
		return NewValidationError("description", "description too long (max 500 characters)")
	}
	if !t.Status.IsValid() {
		return NewValidationError("status", "unknown status %q", t.Status)
	}
	return nil
}

// Posting returns the balance deltas this transaction applies: the debit
// account gains the amount and the credit account loses it.
func (t Transaction) Posting() []BalanceDelta {
	return []BalanceDelta{
		{AccountID: t.DebitAccountID, Delta: t.Amount},
		{AccountID: t.CreditAccountID, Delta: t.Amount.Neg()},
	}
}

// Reversal returns the deltas that undo Posting.
func (t Transaction) Reversal() []BalanceDelta {
	return []BalanceDelta{
		{AccountID: t.DebitAccountID, Delta: t.Amount.Neg()},
		{AccountID: t.CreditAccountID, Delta: t.Amount},
	}
}

// BalanceDelta is a signed change to one account's balance.
type BalanceDelta struct {
	AccountID int64
	Delta     Money
}

// NewDate returns midnight UTC of the given calendar day. Out of range
// month and day values are normalized the way time.Date does.
func NewDate(year, month, day int) time.Time {
	return time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
}
