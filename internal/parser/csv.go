package parser

import "strings"

const DefaultDelimiter = ','

// CSVData is a header row plus one name to value map per data row.
type CSVData struct {
	Headers []string
	Rows    []map[string]string
}

// HasHeader reports whether name is one of the header fields.
func (d CSVData) HasHeader(name string) bool {
	for _, h := range d.Headers {
		if h == name {
			return true
		}
	}
	return false
}

// ParseCSV reads a header line and zips every following line against it.
// Fields are split naively on delimiter and surrounding double quotes are
// stripped; quoted delimiters are not supported. Rows shorter or longer than
// the header are truncated to the shorter length. A zero delimiter means comma.
func ParseCSV(content string, delimiter rune) CSVData {
	if delimiter == 0 {
		delimiter = DefaultDelimiter
	}
	var data CSVData
	headerSeen := false
	for _, line := range splitLines(content) {
		if strings.TrimSpace(line) == "" {
			continue
		}
		fields := splitFields(line, delimiter)
		if !headerSeen {
			data.Headers = fields
			headerSeen = true
			continue
		}
		n := min(len(fields), len(data.Headers))
		row := make(map[string]string, n)
		for i := 0; i < n; i++ {
			row[data.Headers[i]] = fields[i]
		}
		data.Rows = append(data.Rows, row)
	}
	return data
}

func splitFields(line string, delimiter rune) []string {
	parts := strings.Split(line, string(delimiter))
	for i, p := range parts {
		p = strings.TrimSpace(p)
		p = strings.TrimPrefix(p, `"`)
		p = strings.TrimSuffix(p, `"`)
		parts[i] = p
	}
	return parts
}
