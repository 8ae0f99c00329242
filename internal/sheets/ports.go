// Package sheets defines the spreadsheet import source.
package sheets

import (
	"context"

	"ledger/internal/parser"
)

// RecordReader reads a spreadsheet range as header-keyed records, the same
// shape the CSV parser produces.
type RecordReader interface {
	ReadRecords(ctx context.Context, rng string) (parser.CSVData, error)
}
