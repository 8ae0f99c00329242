package google

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"

	"ledger/internal/parser"
	"ledger/internal/sheets"
)

// Client reads bank statement ranges from one spreadsheet.
type Client struct {
	svc           *gsheet.Service
	spreadsheetID string
}

var _ sheets.RecordReader = (*Client)(nil)

// New creates a read-only Sheets client for spreadsheetID. Credentials come
// from credentialsFile, or from GOOGLE_SERVICE_ACCOUNT_JSON /
// GOOGLE_APPLICATION_CREDENTIALS when it is empty.
func New(ctx context.Context, spreadsheetID, credentialsFile string) (*Client, error) {
	spreadsheetID = strings.TrimSpace(spreadsheetID)
	if spreadsheetID == "" {
		return nil, errors.New("missing GOOGLE_SPREADSHEET_ID")
	}
	svc, err := newSheetsService(ctx, credentialsFile)
	if err != nil {
		return nil, fmt.Errorf("sheets service: %w", err)
	}
	return &Client{svc: svc, spreadsheetID: spreadsheetID}, nil
}

// newSheetsService initializes a Sheets Service using Service Account credentials.
func newSheetsService(ctx context.Context, credentialsFile string) (*gsheet.Service, error) {
	credentialsJSON, err := loadCredentials(credentialsFile)
	if err != nil {
		return nil, err
	}

	slog.DebugContext(ctx, "Creating Google Sheets service with Service Account",
		"credentials_size", len(credentialsJSON),
		"scope", gsheet.SpreadsheetsReadonlyScope)

	service, err := gsheet.NewService(ctx,
		goption.WithCredentialsJSON(credentialsJSON),
		goption.WithScopes(gsheet.SpreadsheetsReadonlyScope))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	return service, nil
}

func loadCredentials(file string) ([]byte, error) {
	inline := strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_JSON"))
	if file == "" {
		file = strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
	}
	switch {
	case file != "":
		data, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
		return data, nil
	case inline != "":
		return []byte(inline), nil
	default:
		return nil, errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_FILE, GOOGLE_SERVICE_ACCOUNT_JSON, or GOOGLE_APPLICATION_CREDENTIALS)")
	}
}

// ReadRange returns the formatted cell values of rng, e.g. "Bank!A1:E".
func (c *Client) ReadRange(ctx context.Context, rng string) ([][]interface{}, error) {
	if c.svc == nil {
		return nil, errors.New("sheets service not initialized")
	}
	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, rng).
		ValueRenderOption("FORMATTED_VALUE").
		Context(ctx).
		Do()
	if err != nil {
		return nil, fmt.Errorf("read range %s: %w", rng, err)
	}
	slog.InfoContext(ctx, "Read spreadsheet range",
		"spreadsheet_id", c.spreadsheetID,
		"range", rng,
		"rows", len(resp.Values))
	return resp.Values, nil
}

// ReadRecords implements sheets.RecordReader.
func (c *Client) ReadRecords(ctx context.Context, rng string) (parser.CSVData, error) {
	values, err := c.ReadRange(ctx, rng)
	if err != nil {
		return parser.CSVData{}, err
	}
	return RecordsFromValues(values), nil
}
