package parser

import (
	"reflect"
	"testing"
)

func TestParseQIF_SingleEntry(t *testing.T) {
	records := ParseQIF("D12/1/2024\nT-50.00\nPGrocery Store\nLFood\nCX\n^")
	if len(records) != 1 {
		t.Fatalf("len(records) = %d, want 1", len(records))
	}
	r := records[0]
	if r.Date != "12/1/2024" {
		t.Errorf("Date = %q", r.Date)
	}
	if !r.AmountValid || r.Amount.String() != "-50" {
		t.Errorf("Amount = %s (valid=%v), want -50.00", r.Amount, r.AmountValid)
	}
	if r.Description != "Grocery Store" {
		t.Errorf("Description = %q", r.Description)
	}
	if r.Category != "Food" {
		t.Errorf("Category = %q", r.Category)
	}
	if r.Cleared != "X" {
		t.Errorf("Cleared = %q", r.Cleared)
	}
}

func TestParseQIF_MultipleEntries(t *testing.T) {
	content := "!Type:Bank\r\n" +
		"D01/15/2024\r\nT1,250.00\r\nPACME Corp\r\nMJanuary salary\r\nLSalary\r\nN1001\r\n^\r\n" +
		"D01/16/2024\r\nPNo amount here\r\n^\r\n" +
		"T-3.50\r\nPNo date here\r\n^\r\n" +
		"D01/17/2024\r\nT-12.00\r\nMCoffee beans\r\nXunknown tag\r\n^\r\n" +
		"D01/18/2024\r\nTabc\r\nPBroken amount\r\n"

	records := ParseQIF(content)
	if len(records) != 3 {
		t.Fatalf("len(records) = %d, want 3: %+v", len(records), records)
	}
	if records[0].Description != "ACME Corp - January salary" {
		t.Errorf("Description = %q", records[0].Description)
	}
	if records[0].Reference != "1001" || records[0].Amount.String() != "1250" {
		t.Errorf("unexpected first record: %+v", records[0])
	}
	if records[1].Description != "Coffee beans" {
		t.Errorf("memo only description = %q", records[1].Description)
	}
	if records[2].AmountValid || records[2].AmountText != "abc" {
		t.Errorf("broken amount should be kept as text: %+v", records[2])
	}
}

func TestParseQIF_Restartable(t *testing.T) {
	records := ParseQIF("D1/1/24\nT5\n^\nD1/2/24\nT6\n^\n")
	first := make([]string, 0, len(records))
	for _, r := range records {
		first = append(first, r.Date)
	}
	second := make([]string, 0, len(records))
	for _, r := range records {
		second = append(second, r.Date)
	}
	if !reflect.DeepEqual(first, second) || len(first) != 2 {
		t.Fatalf("iteration not repeatable: %v vs %v", first, second)
	}
}

func TestParseCSV(t *testing.T) {
	data := ParseCSV("Date,Amount\n1/1/2024,-10\n", 0)
	want := []map[string]string{{"Date": "1/1/2024", "Amount": "-10"}}
	if !reflect.DeepEqual(data.Rows, want) {
		t.Fatalf("Rows = %v, want %v", data.Rows, want)
	}
	if !data.HasHeader("Amount") || data.HasHeader("Payee") {
		t.Fatalf("unexpected headers %v", data.Headers)
	}
}

func TestParseCSV_QuotesAndMismatchedRows(t *testing.T) {
	content := "\"Date\";\"Amount\";\"Memo\"\n" +
		"\"02/03/2024\";\"-4,50\"\n" +
		"02/04/2024;12;rent;extra\n\n"
	data := ParseCSV(content, ';')

	if !reflect.DeepEqual(data.Headers, []string{"Date", "Amount", "Memo"}) {
		t.Fatalf("Headers = %v", data.Headers)
	}
	if len(data.Rows) != 2 {
		t.Fatalf("len(Rows) = %d", len(data.Rows))
	}
	if _, ok := data.Rows[0]["Memo"]; ok || data.Rows[0]["Amount"] != "-4,50" {
		t.Errorf("short row not truncated: %v", data.Rows[0])
	}
	if len(data.Rows[1]) != 3 || data.Rows[1]["Memo"] != "rent" {
		t.Errorf("long row not truncated: %v", data.Rows[1])
	}
}

func TestParseCSV_Empty(t *testing.T) {
	data := ParseCSV("", ',')
	if len(data.Headers) != 0 || len(data.Rows) != 0 {
		t.Fatalf("expected empty data, got %+v", data)
	}
}

func TestParseAmount(t *testing.T) {
	cases := []struct {
		in   string
		want string
		ok   bool
	}{
		{"-50.00", "-50", true},
		{"1,234.56", "1234.56", true},
		{"€ 12,5", "12.5", true},
		{"$-3", "-3", true},
		{"", "0", false},
		{"twelve", "0", false},
	}
	for _, tc := range cases {
		got, ok := ParseAmount(tc.in)
		if ok != tc.ok || got.String() != tc.want {
			t.Errorf("ParseAmount(%q) = %s,%v want %s,%v", tc.in, got, ok, tc.want, tc.ok)
		}
	}
}
