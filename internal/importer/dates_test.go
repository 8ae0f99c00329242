package importer

import (
	"testing"
	"time"
)

func TestParseDate(t *testing.T) {
	tests := []struct {
		in   string
		want time.Time
	}{
		{"01/15/2024", date(2024, 1, 15)},
		{"1/5/24", date(2024, 1, 5)},
		{"12/31/99", date(1999, 12, 31)},
		{"03/01/49", date(2049, 3, 1)},
		{"03/01/50", date(1950, 3, 1)},
		{"01-15-2024", date(2024, 1, 15)},
		{" 2-3-24 ", date(2024, 2, 3)},
		// month and day are swapped for the dashed year-first form
		{"2024-03-05", date(2024, 5, 3)},
		{"2024-01-15", date(2025, 3, 1)},
		{"13/01/2024", date(2025, 1, 1)},
		{"02/30/2024", date(2024, 3, 1)},
		{"2024/03/05", date(2024, 3, 5)},
		{"2024-03-05T10:30:00Z", date(2024, 3, 5)},
		{"2024-03-05T10:30:00", date(2024, 3, 5)},
		{"Mar 5, 2024", date(2024, 3, 5)},
		{"March 5, 2024", date(2024, 3, 5)},
		{"5 Mar 2024", date(2024, 3, 5)},
		{"05 Mar 2024", date(2024, 3, 5)},
	}
	for _, tt := range tests {
		if got := ParseDate(tt.in); !got.Equal(tt.want) {
			t.Errorf("ParseDate(%q) = %s, want %s", tt.in, got.Format(time.DateOnly), tt.want.Format(time.DateOnly))
		}
	}
}

func TestParseDateInvalid(t *testing.T) {
	for _, in := range []string{"", "   ", "not a date", "2024.03.05", "1/2", "123/1/2024"} {
		if got := ParseDate(in); !got.IsZero() {
			t.Errorf("ParseDate(%q) = %s, want zero", in, got)
		}
	}
}

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
