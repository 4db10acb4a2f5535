// Package google mirrors bill records into a backup Google Spreadsheet.
//
// The spreadsheet is write-mostly: the worker appends one row per bill and
// clears rows for deleted bills. It is never read back into the database,
// so a sync failure can only delay the backup, not corrupt local state.
package google

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"bollette/internal/core"
	ports "bollette/internal/sheets"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"
)

type Client struct {
	svc           *gsheet.Service
	spreadsheetID string
	billsSheet    string
}

// Ensure interface conformance
var (
	_ ports.BillAppender = (*Client)(nil)
	_ ports.BillRemover  = (*Client)(nil)
)

// NewFromEnv creates a Sheets client from environment variables.
// Required: GOOGLE_SPREADSHEET_ID.
// Credentials: GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, or
// GOOGLE_APPLICATION_CREDENTIALS.
// Optional: GOOGLE_SHEET_NAME (default "Bills").
func NewFromEnv(ctx context.Context) (*Client, error) {
	spreadsheetID := strings.TrimSpace(os.Getenv("GOOGLE_SPREADSHEET_ID"))
	if spreadsheetID == "" {
		return nil, errors.New("missing GOOGLE_SPREADSHEET_ID")
	}

	sheetName := strings.TrimSpace(os.Getenv("GOOGLE_SHEET_NAME"))
	if sheetName == "" {
		sheetName = "Bills"
	}

	svc, err := newSheetsService(ctx)
	if err != nil {
		return nil, fmt.Errorf("sheets service: %w", err)
	}

	return &Client{
		svc:           svc,
		spreadsheetID: spreadsheetID,
		billsSheet:    sheetName,
	}, nil
}

func newSheetsService(ctx context.Context) (*gsheet.Service, error) {
	serviceAccountJSON := strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_JSON"))
	serviceAccountFile := strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_FILE"))
	if serviceAccountJSON == "" && serviceAccountFile == "" {
		serviceAccountFile = strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
	}

	var credentialsJSON []byte
	var err error
	switch {
	case serviceAccountJSON != "":
		credentialsJSON = []byte(serviceAccountJSON)
	case serviceAccountFile != "":
		credentialsJSON, err = os.ReadFile(serviceAccountFile)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
	default:
		return nil, errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, or GOOGLE_APPLICATION_CREDENTIALS)")
	}

	service, err := gsheet.NewService(ctx,
		goption.WithCredentialsJSON(credentialsJSON),
		goption.WithScopes(gsheet.SpreadsheetsScope))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	return service, nil
}

// AppendBill writes one bill as a row: date, the four costs, total cost,
// the four usage readings and total kWh.
func (c *Client) AppendBill(ctx context.Context, b core.Bill) (string, error) {
	if c.svc == nil {
		return "", errors.New("sheets service not initialized")
	}

	// Find the next empty row from the date column
	rng := fmt.Sprintf("%s!A:A", c.billsSheet)
	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, rng).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("get sheet dimensions for %s: %w", c.billsSheet, err)
	}
	nextRow := len(resp.Values) + 1

	dataRange := fmt.Sprintf("%s!A%d:K%d", c.billsSheet, nextRow, nextRow)
	vr := &gsheet.ValueRange{Values: [][]any{{
		b.Date.String(),
		b.GasCost.Units(),
		b.ElectricityDeliveryCost.Units(),
		b.ElectricityGenerationCost.Units(),
		b.OtherCost.Units(),
		b.TotalCost().Units(),
		b.GasTherms,
		b.ElectricityOnPeakKWh,
		b.ElectricityOffPeakKWh,
		b.ElectricitySuperOffPeakKWh,
		b.TotalKWh(),
	}}}

	_, err = c.svc.Spreadsheets.Values.Update(c.spreadsheetID, dataRange, vr).
		ValueInputOption("USER_ENTERED").Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("update row in sheet %s: %w", c.billsSheet, err)
	}

	ref := fmt.Sprintf("%s!A%d:K%d", c.billsSheet, nextRow, nextRow)
	slog.InfoContext(ctx, "Bill mirrored to backup sheet", "date", b.Date.String(), "ref", ref)
	return ref, nil
}

// RemoveBillRow clears the row whose date column matches the given date.
// A date that is not present is a no-op: the bill may have been deleted
// before its first sync ever ran.
func (c *Client) RemoveBillRow(ctx context.Context, date core.Date) error {
	if c.svc == nil {
		return errors.New("sheets service not initialized")
	}

	rng := fmt.Sprintf("%s!A:A", c.billsSheet)
	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, rng).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("read date column: %w", err)
	}

	want := date.String()
	for i, row := range resp.Values {
		if len(row) == 0 {
			continue
		}
		if s, ok := row[0].(string); ok && s == want {
			clearRange := fmt.Sprintf("%s!A%d:K%d", c.billsSheet, i+1, i+1)
			_, err := c.svc.Spreadsheets.Values.Clear(c.spreadsheetID, clearRange, &gsheet.ClearValuesRequest{}).
				Context(ctx).Do()
			if err != nil {
				return fmt.Errorf("clear row %d: %w", i+1, err)
			}
			slog.InfoContext(ctx, "Backup row cleared", "date", want, "row", i+1)
			return nil
		}
	}

	slog.WarnContext(ctx, "No backup row found for deleted bill", "date", want)
	return nil
}
