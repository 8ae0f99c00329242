// Package parser turns raw import files into loosely typed records.
// Parsers never fail: malformed values are kept as text and validated later.
package parser

import (
	"strings"

	"github.com/shopspring/decimal"
)

// QIFRecord is one `^` terminated entry of a QIF file.
type QIFRecord struct {
	Date        string
	AmountText  string
	Amount      decimal.Decimal
	AmountValid bool
	Description string
	Category    string
	Cleared     string
	Reference   string
}

// ParseQIF splits content into entries and keeps those carrying both a date
// and an amount. Unknown tags, including `!Type:` headers, are ignored.
func ParseQIF(content string) []QIFRecord {
	var (
		records []QIFRecord
		cur     qifEntry
	)
	for _, line := range splitLines(content) {
		trimmed := strings.TrimSpace(line)
		if trimmed == "^" {
			if rec, ok := cur.record(); ok {
				records = append(records, rec)
			}
			cur = qifEntry{}
			continue
		}
		if trimmed == "" {
			continue
		}
		tag, value := trimmed[0], strings.TrimSpace(trimmed[1:])
		switch tag {
		case 'D':
			cur.date = value
		case 'T':
			cur.amount = value
		case 'P':
			cur.payee = value
		case 'M':
			cur.memo = value
		case 'L':
			cur.category = value
		case 'C':
			cur.cleared = value
		case 'N':
			cur.reference = value
		}
	}
	// The final entry may omit its closing `^`.
	if rec, ok := cur.record(); ok {
		records = append(records, rec)
	}
	return records
}

type qifEntry struct {
	date, amount, payee, memo, category, cleared, reference string
}

func (e qifEntry) record() (QIFRecord, bool) {
	if e.date == "" || e.amount == "" {
		return QIFRecord{}, false
	}
	amount, ok := ParseAmount(e.amount)
	return QIFRecord{
		Date:        e.date,
		AmountText:  e.amount,
		Amount:      amount,
		AmountValid: ok,
		Description: joinDescription(e.payee, e.memo),
		Category:    e.category,
		Cleared:     e.cleared,
		Reference:   e.reference,
	}, true
}

func joinDescription(payee, memo string) string {
	switch {
	case payee != "" && memo != "":
		return payee + " - " + memo
	case payee != "":
		return payee
	default:
		return memo
	}
}

// ParseAmount reads a signed decimal amount. Currency symbols, spaces and
// thousands separators are dropped; a lone comma is read as the decimal mark.
func ParseAmount(raw string) (decimal.Decimal, bool) {
	s := strings.TrimSpace(raw)
	s = strings.Map(func(r rune) rune {
		switch r {
		case '$', '€', '£', ' ', '\u00a0':
			return -1
		}
		return r
	}, s)
	if strings.Contains(s, ".") {
		s = strings.ReplaceAll(s, ",", "")
	} else if strings.Count(s, ",") == 1 {
		s = strings.Replace(s, ",", ".", 1)
	}
	if s == "" {
		return decimal.Zero, false
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, false
	}
	return d, true
}

func splitLines(content string) []string {
	content = strings.ReplaceAll(content, "\r\n", "\n")
	return strings.Split(content, "\n")
}
