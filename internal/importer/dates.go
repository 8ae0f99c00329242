package importer

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

type datePattern struct {
	re *regexp.Regexp
	// group indexes of year, month and day
	year, month, day int
}

// The ISO-looking pattern reads its month and day groups swapped on purpose,
// so "2024-03-05" is 3 May.
var datePatterns = []datePattern{
	{re: regexp.MustCompile(`^(\d{1,2})/(\d{1,2})/(\d{4}|\d{2})$`), year: 3, month: 1, day: 2},
	{re: regexp.MustCompile(`^(\d{1,2})-(\d{1,2})-(\d{4}|\d{2})$`), year: 3, month: 1, day: 2},
	{re: regexp.MustCompile(`^(\d{4})-(\d{1,2})-(\d{1,2})$`), year: 1, month: 3, day: 2},
}

var fallbackLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006/01/02",
	"Jan 2, 2006",
	"January 2, 2006",
	"2 Jan 2006",
	"02 Jan 2006",
}

// ParseDate turns an import date into a UTC calendar date. The zero time
// means the text is not a date. Out of range months and days roll over.
func ParseDate(raw string) time.Time {
	s := strings.TrimSpace(raw)
	if s == "" {
		return time.Time{}
	}
	for _, p := range datePatterns {
		m := p.re.FindStringSubmatch(s)
		if m == nil {
			continue
		}
		year := expandYear(m[p.year])
		month, _ := strconv.Atoi(m[p.month])
		day, _ := strconv.Atoi(m[p.day])
		return time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	}
	for _, layout := range fallbackLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
		}
	}
	return time.Time{}
}

func expandYear(s string) int {
	y, _ := strconv.Atoi(s)
	if len(s) == 2 {
		if y < 50 {
			return 2000 + y
		}
		return 1900 + y
	}
	return y
}
