package google

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestRecordsFromValues(t *testing.T) {
	values := [][]interface{}{
		{"Date", " Amount ", "Description", "Category"},
		{"01/15/2024", "-42.10", "Grocery Store", "Food"},
		{"01/16/2024", 1250.5, "Payroll"},
		{},
		{"", "", ""},
		{"01/17/2024", "-3", nil, "Coffee"},
	}
	data := RecordsFromValues(values)
	if len(data.Headers) != 4 || data.Headers[1] != "Amount" {
		t.Fatalf("headers = %q", data.Headers)
	}
	if len(data.Rows) != 3 {
		t.Fatalf("len(rows) = %d, want 3", len(data.Rows))
	}
	if got := data.Rows[0]["Description"]; got != "Grocery Store" {
		t.Errorf("description = %q", got)
	}
	if got := data.Rows[1]["Amount"]; got != "1250.5" {
		t.Errorf("numeric cell = %q", got)
	}
	if got, ok := data.Rows[1]["Category"]; !ok || got != "" {
		t.Errorf("short row should be padded, got %q ok=%v", got, ok)
	}
	if got := data.Rows[2]["Description"]; got != "" {
		t.Errorf("nil cell = %q", got)
	}
}

func TestRecordsFromValuesEmpty(t *testing.T) {
	data := RecordsFromValues(nil)
	if len(data.Headers) != 0 || len(data.Rows) != 0 {
		t.Fatalf("expected empty data, got %+v", data)
	}
}

func TestLoadCredentials(t *testing.T) {
	t.Setenv("GOOGLE_SERVICE_ACCOUNT_JSON", "")
	t.Setenv("GOOGLE_APPLICATION_CREDENTIALS", "")

	if _, err := loadCredentials(""); err == nil {
		t.Fatal("expected error without credentials")
	}

	t.Setenv("GOOGLE_SERVICE_ACCOUNT_JSON", `{"type":"service_account"}`)
	data, err := loadCredentials("")
	if err != nil || string(data) != `{"type":"service_account"}` {
		t.Fatalf("inline credentials: %q err=%v", data, err)
	}

	path := filepath.Join(t.TempDir(), "sa.json")
	if err := os.WriteFile(path, []byte(`{"from":"file"}`), 0o600); err != nil {
		t.Fatal(err)
	}
	data, err = loadCredentials(path)
	if err != nil || string(data) != `{"from":"file"}` {
		t.Fatalf("file credentials: %q err=%v", data, err)
	}

	if _, err := loadCredentials(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestNewRequiresSpreadsheetID(t *testing.T) {
	if _, err := New(context.Background(), "  ", ""); err == nil {
		t.Fatal("expected error for empty spreadsheet id")
	}
}
