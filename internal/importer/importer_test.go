package importer

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"ledger/internal/core"
	"ledger/internal/ledger"
	"ledger/internal/parser"
	"ledger/internal/storage/memory"
)

type fixture struct {
	store    *memory.Store
	svc      *ledger.Service
	checking core.Account
	events   *eventRecorder
	preview  *Previewer
	exec     *Executor
}

type eventRecorder struct {
	mu     sync.Mutex
	events []core.Event
}

func (r *eventRecorder) PublishEvent(_ context.Context, e core.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	store := memory.New()
	svc := ledger.NewService(store, nil)
	checking, err := svc.CreateAccount(context.Background(), core.Account{Name: "Checking", Type: core.AssetBank, Active: true})
	if err != nil {
		t.Fatal(err)
	}
	events := &eventRecorder{}
	exec := NewExecutor(svc, NewProvisioner(store, 64, time.Minute), events)
	exec.now = func() time.Time { return time.Date(2024, 3, 9, 14, 5, 6, 0, time.UTC) }
	exec.newID = func() string { return "0a1b2c3d-4e5f-6789-abcd-ef0123456789" }
	return fixture{
		store:    store,
		svc:      svc,
		checking: checking,
		events:   events,
		preview:  NewPreviewer(store),
		exec:     exec,
	}
}

func (f fixture) balance(t *testing.T, id int64) int64 {
	t.Helper()
	m, err := f.svc.AccountBalance(context.Background(), id)
	if err != nil {
		t.Fatal(err)
	}
	return m.Cents
}

var bankMapping = FieldMapping{
	DateField:        "Date",
	AmountField:      "Amount",
	DescriptionField: "Description",
	CategoryField:    "Category",
}

func TestPreviewQIF(t *testing.T) {
	f := newFixture(t)
	content := "!Type:Bank\n" +
		"D12/1/2024\nT-50.00\nPGrocery Store\nLFood\nCX\n^\n" +
		"Dyesterday\nT10\nPBad date\n^\n" +
		"D12/3/2024\nT0.00\nPZero\n^\n"

	p, err := f.preview.PreviewQIF(context.Background(), content, f.checking.ID)
	if err != nil {
		t.Fatalf("preview: %v", err)
	}
	if p.Format != FormatQIF || len(p.Candidates) != 3 {
		t.Fatalf("unexpected preview %+v", p)
	}
	c := p.Candidates[0]
	if !c.Valid() || !c.IsDebit || c.Amount.Cents != 5000 || c.Category != "Food" || !c.Date.Equal(core.NewDate(2024, 12, 1)) {
		t.Fatalf("unexpected first candidate %+v", c)
	}
	if p.Candidates[1].Valid() || p.Candidates[2].Valid() {
		t.Fatal("invalid candidates must stay in the list flagged")
	}
	if p.Valid() || p.ValidCount() != 1 {
		t.Fatalf("Valid=%v ValidCount=%d", p.Valid(), p.ValidCount())
	}
	if len(p.Errors) != 2 || !strings.HasPrefix(p.Errors[0], "Row 2: invalid date") || p.Errors[1] != "Row 3: amount is zero" {
		t.Fatalf("errors = %q", p.Errors)
	}
	if len(p.Warnings) != 1 || !strings.Contains(p.Warnings[0], `"Food" (expense) will be created`) {
		t.Fatalf("warnings = %q", p.Warnings)
	}
}

func TestPreviewUnknownAccount(t *testing.T) {
	f := newFixture(t)
	if _, err := f.preview.PreviewQIF(context.Background(), "", 999); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if _, err := f.preview.PreviewCSV(context.Background(), "", bankMapping, 999); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestPreviewEmptyInput(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// No header row means no mapped column can be found.
	_, err := f.preview.PreviewCSV(ctx, "", bankMapping, f.checking.ID)
	if !errors.Is(err, core.ErrValidation) {
		t.Fatalf("expected validation error for empty CSV, got %v", err)
	}
	for _, col := range []string{`"Date"`, `"Amount"`, `"Description"`, `"Category"`} {
		if !strings.Contains(err.Error(), col) {
			t.Errorf("missing column %s not reported: %v", col, err)
		}
	}

	tests := []struct {
		name string
		run  func() (Preview, error)
	}{
		{"csv header only", func() (Preview, error) {
			return f.preview.PreviewCSV(ctx, "Date,Amount,Description,Category\n", bankMapping, f.checking.ID)
		}},
		{"qif", func() (Preview, error) {
			return f.preview.PreviewQIF(ctx, "", f.checking.ID)
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := tt.run()
			if err != nil {
				t.Fatal(err)
			}
			if len(p.Candidates) != 0 || len(p.Warnings) != 1 || p.Warnings[0] != "no records found" {
				t.Fatalf("unexpected preview %+v", p)
			}
		})
	}
}

func TestPreviewRejectsAmountsBeyondCents(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	content := "Date,Amount,Description\n" +
		"01/15/2024,-184467440737095517.16,Wrapped\n" +
		"01/16/2024,-1.00,Fine\n"
	mapping := FieldMapping{DateField: "Date", AmountField: "Amount", DescriptionField: "Description"}

	p, err := f.preview.PreviewCSV(ctx, content, mapping, f.checking.ID)
	if err != nil {
		t.Fatal(err)
	}
	if c := p.Candidates[0]; c.Valid() || !c.Amount.IsZero() || len(c.Errors) != 1 ||
		!strings.Contains(c.Errors[0], "out of range") {
		t.Fatalf("oversized amount candidate %+v", c)
	}
	if p.ValidCount() != 1 || len(p.Errors) != 1 || !strings.HasPrefix(p.Errors[0], "Row 1: amount") {
		t.Fatalf("errors = %q", p.Errors)
	}

	res, err := f.exec.Execute(ctx, p, ExecuteOptions{AccountID: f.checking.ID})
	if err != nil {
		t.Fatal(err)
	}
	if res.SuccessCount != 1 || len(res.Errors) != 1 || !strings.HasPrefix(res.Errors[0], "Row 1: ") {
		t.Fatalf("result %+v", res)
	}
	if got := f.balance(t, f.checking.ID); got != -100 {
		t.Fatalf("checking balance = %d, want -100", got)
	}
}

func TestPreviewCSVMissingColumns(t *testing.T) {
	f := newFixture(t)
	mapping := bankMapping
	mapping.AmountField = "Value"
	mapping.ReferenceField = "Ref"
	_, err := f.preview.PreviewCSV(context.Background(), "Date,Amount,Description,Category\n01/02/2024,1,x,y", mapping, f.checking.ID)
	if !errors.Is(err, core.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if !strings.Contains(err.Error(), `"Value"`) || !strings.Contains(err.Error(), `"Ref"`) {
		t.Fatalf("all missing columns should be reported: %v", err)
	}
}

func TestPreviewCSV(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	if _, err := f.svc.CreateCategory(ctx, core.Category{Name: "Groceries", Type: core.ExpenseCategory, Active: true}); err != nil {
		t.Fatal(err)
	}
	content := "Date;Amount;Description;Category\n" +
		"01/15/2024;-1,234.56;Rent;Housing\n" +
		"2024-03-05;\"$42.10\";Refund;\n" +
		"01/20/2024;abc;Broken;\n" +
		"01/21/2024;-9.99;Shop;Grocerys\n"
	mapping := bankMapping
	mapping.Delimiter = ";"

	p, err := f.preview.PreviewCSV(ctx, content, mapping, f.checking.ID)
	if err != nil {
		t.Fatal(err)
	}
	if p.Format != FormatCSV || p.Mappings == nil || len(p.Candidates) != 4 {
		t.Fatalf("unexpected preview %+v", p)
	}
	if c := p.Candidates[0]; c.Amount.Cents != 123456 || !c.IsDebit {
		t.Fatalf("thousands separator amount: %+v", c)
	}
	if c := p.Candidates[1]; c.IsDebit || c.Amount.Cents != 4210 || !c.Date.Equal(core.NewDate(2024, 5, 3)) {
		t.Fatalf("second candidate %+v", c)
	}
	if c := p.Candidates[2]; c.Valid() || c.Errors[0] != `invalid amount "abc"` {
		t.Fatalf("third candidate %+v", c)
	}
	var hinted bool
	for _, w := range p.Warnings {
		if strings.Contains(w, `"Grocerys"`) && strings.Contains(w, `did you mean "Groceries"`) {
			hinted = true
		}
	}
	if !hinted {
		t.Fatalf("expected near-miss hint, got %q", p.Warnings)
	}
}

func TestPreviewRecordsFromSheet(t *testing.T) {
	f := newFixture(t)
	data := parser.CSVData{
		Headers: []string{"Date", "Amount", "Description"},
		Rows:    []map[string]string{{"Date": "3/1/24", "Amount": "12.5", "Description": "Interest"}},
	}
	mapping := FieldMapping{DateField: "Date", AmountField: "Amount", DescriptionField: "Description"}
	p, err := f.preview.PreviewRecords(context.Background(), data, mapping, f.checking.ID)
	if err != nil {
		t.Fatal(err)
	}
	if p.Format != FormatSheet || p.ValidCount() != 1 || p.Candidates[0].Amount.Cents != 1250 {
		t.Fatalf("unexpected preview %+v", p)
	}
}

func TestExecuteIncomeCreatesCounterpart(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	preview := Preview{
		Format:    FormatCSV,
		AccountID: f.checking.ID,
		Candidates: []Candidate{{
			Row: 1, Date: core.NewDate(2024, 1, 31), Amount: core.Money{Cents: 10000},
			Description: "Payroll", Category: "Salary",
		}},
	}

	res, err := f.exec.Execute(ctx, preview, ExecuteOptions{AccountID: f.checking.ID})
	if err != nil {
		t.Fatal(err)
	}
	if res.SuccessCount != 1 || len(res.Errors) != 0 {
		t.Fatalf("unexpected result %+v", res)
	}
	if res.BatchID != "import-20240309T140506Z-0a1b2c3d" {
		t.Fatalf("batch id = %q", res.BatchID)
	}

	income, err := f.store.FindAccount(ctx, "Income - Salary", core.IncomeAccount)
	if err != nil {
		t.Fatalf("income account not created: %v", err)
	}
	tx, err := f.svc.Get(ctx, res.TransactionIDs[0])
	if err != nil {
		t.Fatal(err)
	}
	if tx.DebitAccountID != f.checking.ID || tx.CreditAccountID != income.ID || tx.Amount.Cents != 10000 {
		t.Fatalf("unexpected posting %+v", tx)
	}
	if tx.Notes != "Imported (batch "+res.BatchID+")" || tx.ImportBatch != res.BatchID || tx.CategoryID == nil {
		t.Fatalf("unexpected import metadata %+v", tx)
	}
	if f.balance(t, f.checking.ID) != 10000 || f.balance(t, income.ID) != -10000 {
		t.Fatal("balances not posted")
	}
	cat, err := f.store.GetCategory(ctx, *tx.CategoryID)
	if err != nil || cat.Name != "Salary" || cat.Type != core.IncomeCategory {
		t.Fatalf("category %+v err=%v", cat, err)
	}

	if len(f.events.events) != 1 || f.events.events[0].Type != core.EventImportCompleted || f.events.events[0].SuccessCount != 1 {
		t.Fatalf("events = %+v", f.events.events)
	}
}

func TestExecuteCollectsRowErrors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	preview := Preview{
		AccountID: f.checking.ID,
		Candidates: []Candidate{
			{Row: 1, Date: core.NewDate(2024, 1, 2), Amount: core.Money{Cents: 500}, IsDebit: true, Description: "Coffee"},
			{Row: 2, Description: "Broken", Errors: []string{`invalid date "x"`}},
			{Row: 3, Date: core.NewDate(2024, 1, 3), Amount: core.Money{Cents: 700}, IsDebit: true, Description: "Lunch"},
		},
	}
	self := f.checking.ID
	res, err := f.exec.Execute(ctx, preview, ExecuteOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if res.SuccessCount != 2 || len(res.Errors) != 1 || res.Errors[0] != `Row 2: invalid date "x"` {
		t.Fatalf("unexpected result %+v", res)
	}
	uncat, err := f.store.FindAccount(ctx, "Expenses - Uncategorized", core.ExpenseAccount)
	if err != nil {
		t.Fatal(err)
	}
	if f.balance(t, uncat.ID) != 1200 || f.balance(t, f.checking.ID) != -1200 {
		t.Fatal("unexpected balances")
	}

	// A default debit equal to the imported account fails every row.
	res, err = f.exec.Execute(ctx, Preview{AccountID: self, Candidates: preview.Candidates[:1]}, ExecuteOptions{DefaultDebitAccountID: &self})
	if err != nil {
		t.Fatal(err)
	}
	if res.SuccessCount != 0 || len(res.Errors) != 1 || !strings.HasPrefix(res.Errors[0], "Row 1: ") {
		t.Fatalf("unexpected result %+v", res)
	}
}

func TestExecuteUsesDefaults(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	card, err := f.svc.CreateAccount(ctx, core.Account{Name: "Visa", Type: core.LiabilityCreditCard, Active: true})
	if err != nil {
		t.Fatal(err)
	}
	preview := Preview{
		AccountID: f.checking.ID,
		Candidates: []Candidate{
			{Row: 1, Date: core.NewDate(2024, 1, 2), Amount: core.Money{Cents: 500}, IsDebit: true, Category: "Food"},
			{Row: 2, Date: core.NewDate(2024, 1, 3), Amount: core.Money{Cents: 900}},
		},
	}
	res, err := f.exec.Execute(ctx, preview, ExecuteOptions{DefaultDebitAccountID: &card.ID, DefaultCreditAccountID: &card.ID})
	if err != nil || res.SuccessCount != 2 {
		t.Fatalf("res=%+v err=%v", res, err)
	}
	if f.balance(t, card.ID) != 500-900 {
		t.Fatalf("card balance = %d", f.balance(t, card.ID))
	}
	if _, err := f.store.FindAccount(ctx, "Expenses - Food", core.ExpenseAccount); !errors.Is(err, core.ErrNotFound) {
		t.Fatal("defaults must bypass account provisioning")
	}
}

func TestExecuteStopsOnCancel(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	preview := Preview{
		AccountID: f.checking.ID,
		Candidates: []Candidate{
			{Row: 1, Date: core.NewDate(2024, 1, 2), Amount: core.Money{Cents: 500}, IsDebit: true},
			{Row: 2, Date: core.NewDate(2024, 1, 3), Amount: core.Money{Cents: 700}, IsDebit: true},
		},
	}
	res, err := f.exec.Execute(ctx, preview, ExecuteOptions{})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if res.SuccessCount != 0 || len(res.Errors) != 2 {
		t.Fatalf("unexpected partial result %+v", res)
	}
	if len(f.events.events) != 1 || f.events.events[0].ErrorCount != 2 {
		t.Fatalf("completion event expected even on cancel: %+v", f.events.events)
	}
}

func TestProvisionerSharesUpserts(t *testing.T) {
	store := memory.New()
	p := NewProvisioner(store, 16, time.Minute)
	ctx := context.Background()

	var wg sync.WaitGroup
	ids := make([]int64, 16)
	for i := range ids {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id, err := p.ExpenseAccount(ctx, "Travel")
			if err != nil {
				t.Error(err)
			}
			ids[i] = id
		}(i)
	}
	wg.Wait()
	for _, id := range ids {
		if id != ids[0] || id == 0 {
			t.Fatalf("ids differ: %v", ids)
		}
	}
	accounts, _ := store.ListAccounts(ctx)
	if len(accounts) != 1 || accounts[0].Name != "Expenses - Travel" {
		t.Fatalf("accounts = %+v", accounts)
	}
	if p.Cache().Size() != 1 {
		t.Fatalf("cache size = %d", p.Cache().Size())
	}

	income, err := p.IncomeAccount(ctx, "")
	if err != nil || income == ids[0] {
		t.Fatalf("income id %d err=%v", income, err)
	}
	if _, err := store.FindAccount(ctx, "Income - Uncategorized", core.IncomeAccount); err != nil {
		t.Fatal(err)
	}

	p.Reset()
	if p.Cache().Size() != 0 {
		t.Fatalf("cache size after reset = %d", p.Cache().Size())
	}
}
