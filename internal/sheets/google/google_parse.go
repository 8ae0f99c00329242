package google

import (
	"fmt"
	"strings"

	"ledger/internal/parser"
)

// RecordsFromValues converts a values matrix (as returned by the Sheets API)
// into header-keyed records. The first row holds the headers. The API drops
// trailing empty cells, so short rows are padded with "". Rows with no
// content are skipped.
func RecordsFromValues(values [][]interface{}) parser.CSVData {
	if len(values) == 0 {
		return parser.CSVData{}
	}
	headers := toStrings(values[0])
	out := parser.CSVData{Headers: headers}
	for _, raw := range values[1:] {
		row := toStrings(raw)
		if isBlank(row) {
			continue
		}
		rec := make(map[string]string, len(headers))
		for i, h := range headers {
			rec[h] = safeGet(row, i)
		}
		out.Rows = append(out.Rows, rec)
	}
	return out
}

func toStrings(in []interface{}) []string {
	out := make([]string, len(in))
	for i, v := range in {
		if v == nil {
			continue
		}
		out[i] = strings.TrimSpace(fmt.Sprint(v))
	}
	return out
}

func isBlank(row []string) bool {
	for _, v := range row {
		if v != "" {
			return false
		}
	}
	return true
}

func safeGet(arr []string, idx int) string {
	if idx >= 0 && idx < len(arr) {
		return arr[idx]
	}
	return ""
}
