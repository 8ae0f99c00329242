// Package importer turns bank exports into ledger postings: a side effect
// free preview first, then an execution pass that posts every candidate.
package importer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/agnivade/levenshtein"
	"github.com/shopspring/decimal"

	"ledger/internal/core"
	"ledger/internal/ledger"
	"ledger/internal/parser"
)

type Format string

const (
	FormatQIF   Format = "qif"
	FormatCSV   Format = "csv"
	FormatSheet Format = "sheet"
)

func (f Format) IsValid() bool {
	switch f {
	case FormatQIF, FormatCSV, FormatSheet:
		return true
	}
	return false
}

// maxHintDistance bounds the edit distance for "did you mean" hints.
const maxHintDistance = 2

// FieldMapping names the columns holding each candidate field.
type FieldMapping struct {
	DateField        string `json:"date_field"`
	AmountField      string `json:"amount_field"`
	DescriptionField string `json:"description_field"`
	CategoryField    string `json:"category_field,omitempty"`
	ReferenceField   string `json:"reference_field,omitempty"`
	Delimiter        string `json:"delimiter,omitempty"`
}

// DelimiterRune returns the first rune of Delimiter, or the CSV default.
func (m FieldMapping) DelimiterRune() rune {
	for _, r := range m.Delimiter {
		return r
	}
	return parser.DefaultDelimiter
}

func (m FieldMapping) fields() []struct{ name, column string } {
	return []struct{ name, column string }{
		{"date", m.DateField},
		{"amount", m.AmountField},
		{"description", m.DescriptionField},
		{"category", m.CategoryField},
		{"reference", m.ReferenceField},
	}
}

// Candidate is one normalized import record. Invalid candidates keep their
// raw values and list what is wrong in Errors.
type Candidate struct {
	Row         int        `json:"row"`
	Date        time.Time  `json:"date"`
	Amount      core.Money `json:"amount"`
	IsDebit     bool       `json:"is_debit"`
	Description string     `json:"description"`
	Category    string     `json:"category,omitempty"`
	Reference   string     `json:"reference,omitempty"`
	Errors      []string   `json:"errors,omitempty"`
}

func (c Candidate) Valid() bool { return len(c.Errors) == 0 }

type Preview struct {
	Format     Format        `json:"format"`
	AccountID  int64         `json:"account_id"`
	Candidates []Candidate   `json:"candidates"`
	Mappings   *FieldMapping `json:"mappings,omitempty"`
	Errors     []string      `json:"errors,omitempty"`
	Warnings   []string      `json:"warnings,omitempty"`
}

// Valid reports whether every candidate can be posted.
func (p Preview) Valid() bool { return len(p.Errors) == 0 }

func (p Preview) ValidCount() int {
	n := 0
	for _, c := range p.Candidates {
		if c.Valid() {
			n++
		}
	}
	return n
}

// Previewer builds previews. It only reads from the ledger.
type Previewer struct {
	reader ledger.Reader
}

func NewPreviewer(reader ledger.Reader) *Previewer {
	return &Previewer{reader: reader}
}

func (p *Previewer) PreviewQIF(ctx context.Context, content string, accountID int64) (Preview, error) {
	if _, err := p.reader.GetAccount(ctx, accountID); err != nil {
		return Preview{}, err
	}

	out := Preview{Format: FormatQIF, AccountID: accountID}
	for i, rec := range parser.ParseQIF(content) {
		c := Candidate{
			Row:         i + 1,
			Date:        ParseDate(rec.Date),
			Description: rec.Description,
			Category:    strings.TrimSpace(rec.Category),
			Reference:   strings.TrimSpace(rec.Reference),
		}
		if c.Date.IsZero() {
			c.Errors = append(c.Errors, fmt.Sprintf("invalid date %q", rec.Date))
		}
		setAmount(&c, rec.AmountText, rec.AmountValid, rec.Amount)
		out.Candidates = append(out.Candidates, c)
	}
	return p.finish(ctx, out)
}

func (p *Previewer) PreviewCSV(ctx context.Context, content string, mapping FieldMapping, accountID int64) (Preview, error) {
	out, err := p.PreviewRecords(ctx, parser.ParseCSV(content, mapping.DelimiterRune()), mapping, accountID)
	if err != nil {
		return Preview{}, err
	}
	out.Format = FormatCSV
	return out, nil
}

// PreviewRecords previews already split records, such as a spreadsheet range.
func (p *Previewer) PreviewRecords(ctx context.Context, data parser.CSVData, mapping FieldMapping, accountID int64) (Preview, error) {
	if _, err := p.reader.GetAccount(ctx, accountID); err != nil {
		return Preview{}, err
	}

	if err := checkMapping(data, mapping); err != nil {
		return Preview{}, err
	}

	out := Preview{Format: FormatSheet, AccountID: accountID, Mappings: &mapping}

	for i, row := range data.Rows {
		c := Candidate{
			Row:         i + 1,
			Date:        ParseDate(row[mapping.DateField]),
			Description: strings.TrimSpace(row[mapping.DescriptionField]),
		}
		if mapping.CategoryField != "" {
			c.Category = strings.TrimSpace(row[mapping.CategoryField])
		}
		if mapping.ReferenceField != "" {
			c.Reference = strings.TrimSpace(row[mapping.ReferenceField])
		}
		if c.Date.IsZero() {
			c.Errors = append(c.Errors, fmt.Sprintf("invalid date %q", row[mapping.DateField]))
		}
		raw := row[mapping.AmountField]
		amount, ok := parser.ParseAmount(raw)
		setAmount(&c, raw, ok, amount)
		out.Candidates = append(out.Candidates, c)
	}
	return p.finish(ctx, out)
}

func checkMapping(data parser.CSVData, m FieldMapping) error {
	var missing []string
	for _, f := range m.fields()[:3] {
		if f.column == "" {
			missing = append(missing, f.name+" (unmapped)")
		}
	}
	for _, f := range m.fields() {
		if f.column != "" && !data.HasHeader(f.column) {
			missing = append(missing, fmt.Sprintf("%s column %q", f.name, f.column))
		}
	}
	if len(missing) > 0 {
		return core.NewValidationError("mapping", "fields not found in headers: %s", strings.Join(missing, ", "))
	}
	return nil
}

func setAmount(c *Candidate, raw string, ok bool, amount decimal.Decimal) {
	if !ok {
		c.Errors = append(c.Errors, fmt.Sprintf("invalid amount %q", raw))
		return
	}
	abs, err := core.MoneyFromDecimal(amount.Abs())
	switch {
	case err != nil:
		c.Errors = append(c.Errors, fmt.Sprintf("amount %q is out of range", raw))
	case abs.IsZero():
		c.Errors = append(c.Errors, "amount is zero")
	default:
		c.Amount = abs
		c.IsDebit = amount.Sign() < 0
	}
}

func (p *Previewer) finish(ctx context.Context, out Preview) (Preview, error) {
	if len(out.Candidates) == 0 {
		out.Warnings = append(out.Warnings, "no records found")
		return out, nil
	}
	for _, c := range out.Candidates {
		if !c.Valid() {
			out.Errors = append(out.Errors, (&core.RowError{Row: c.Row, Err: errors.New(strings.Join(c.Errors, "; "))}).Error())
		}
	}

	warnings, err := p.categoryWarnings(ctx, out.Candidates)
	if err != nil {
		return Preview{}, err
	}
	out.Warnings = append(out.Warnings, warnings...)

	slog.DebugContext(ctx, "Import preview built",
		"format", out.Format,
		"account_id", out.AccountID,
		"candidates", len(out.Candidates),
		"valid", out.ValidCount())
	return out, nil
}

// categoryWarnings lists labels that execution will create as new
// categories, with a hint when an existing name is a near miss.
func (p *Previewer) categoryWarnings(ctx context.Context, candidates []Candidate) ([]string, error) {
	type key struct {
		name string
		typ  core.CategoryType
	}
	wanted := map[key]bool{}
	for _, c := range candidates {
		if c.Category == "" || !c.Valid() {
			continue
		}
		wanted[key{c.Category, categoryType(c.IsDebit)}] = true
	}
	if len(wanted) == 0 {
		return nil, nil
	}

	existing, err := p.reader.ListCategories(ctx)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	for _, c := range existing {
		delete(wanted, key{c.Name, c.Type})
	}

	keys := make([]key, 0, len(wanted))
	for k := range wanted {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].name != keys[j].name {
			return keys[i].name < keys[j].name
		}
		return keys[i].typ < keys[j].typ
	})

	var out []string
	for _, k := range keys {
		msg := fmt.Sprintf("category %q (%s) will be created", k.name, k.typ)
		if hint := closest(k.name, existing); hint != "" {
			msg += fmt.Sprintf("; did you mean %q?", hint)
		}
		out = append(out, msg)
	}
	return out, nil
}

func closest(label string, existing []core.Category) string {
	best, bestDist := "", maxHintDistance+1
	target := strings.ToLower(label)
	for _, c := range existing {
		if c.Name == label {
			continue
		}
		if d := levenshtein.ComputeDistance(target, strings.ToLower(c.Name)); d < bestDist {
			best, bestDist = c.Name, d
		}
	}
	return best
}

func categoryType(isDebit bool) core.CategoryType {
	if isDebit {
		return core.ExpenseCategory
	}
	return core.IncomeCategory
}
