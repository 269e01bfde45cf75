// Package sheets exports the sales ledger to a Google spreadsheet.
package sheets

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"google.golang.org/api/option"
	sheetsapi "google.golang.org/api/sheets/v4"

	"github.com/mamadbah2/shellsale/internal/config"
)

// Repository defines the spreadsheet operations the ledger relies on.
type Repository interface {
	WriteRow(ctx context.Context, sheetRange string, values []interface{}) error
	ReadRange(ctx context.Context, sheetRange string) ([][]interface{}, error)
}

// SheetRange is an A1 column range such as Sales!A:J. Ledger rows are written across
// its columns and the first column holds the row key.
type SheetRange struct {
	Sheet string
	From  string
	To    string
}

// ParseSheetRange validates a Sheet!X:Y column range.
func ParseSheetRange(raw string) (SheetRange, error) {
	sheet, cols, ok := strings.Cut(strings.TrimSpace(raw), "!")
	if !ok || strings.TrimSpace(sheet) == "" {
		return SheetRange{}, fmt.Errorf("range %q must look like Sheet!A:J", raw)
	}
	from, to, ok := strings.Cut(strings.ToUpper(cols), ":")
	if !ok || columnNumber(from) == 0 || columnNumber(to) == 0 {
		return SheetRange{}, fmt.Errorf("range %q must name a column span such as A:J", raw)
	}
	if columnNumber(to) < columnNumber(from) {
		return SheetRange{}, fmt.Errorf("range %q ends before it starts", raw)
	}
	return SheetRange{Sheet: sheet, From: from, To: to}, nil
}

func (r SheetRange) String() string { return r.Sheet + "!" + r.From + ":" + r.To }

// KeyColumn is the first column of the range, e.g. Sales!C:C for Sales!C:L.
func (r SheetRange) KeyColumn() string { return r.Sheet + "!" + r.From + ":" + r.From }

// Width is the number of columns spanned.
func (r SheetRange) Width() int { return columnNumber(r.To) - columnNumber(r.From) + 1 }

// columnNumber converts A1 column letters to a 1-based index, 0 when invalid.
func columnNumber(col string) int {
	if col == "" || len(col) > 3 {
		return 0
	}
	n := 0
	for _, c := range col {
		if c < 'A' || c > 'Z' {
			return 0
		}
		n = n*26 + int(c-'A'+1)
	}
	return n
}

// GoogleSheetRepository implements Repository using the official Google Sheets API.
type GoogleSheetRepository struct {
	service       *sheetsapi.Service
	spreadsheetID string
	logger        *zap.Logger
}

// NewGoogleSheetRepository builds a Google Sheets backed repository instance from a
// service-account credentials file.
func NewGoogleSheetRepository(ctx context.Context, cfg config.SheetsConfig, logger *zap.Logger) (*GoogleSheetRepository, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if !cfg.Enabled() {
		return nil, fmt.Errorf("sheets ledger requires GOOGLE_SHEETS_CREDENTIALS_PATH and GOOGLE_SHEET_LEDGER_ID")
	}

	service, err := sheetsapi.NewService(ctx, option.WithCredentialsFile(cfg.CredentialsPath), option.WithScopes(sheetsapi.SpreadsheetsScope))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize sheets client: %w", err)
	}

	return &GoogleSheetRepository{
		service:       service,
		spreadsheetID: cfg.SpreadsheetID,
		logger:        logger,
	}, nil
}

// WriteRow appends the provided values to the supplied sheet range.
func (r *GoogleSheetRepository) WriteRow(ctx context.Context, sheetRange string, values []interface{}) error {
	if sheetRange == "" {
		return fmt.Errorf("sheetRange must not be empty")
	}
	if rng, err := ParseSheetRange(sheetRange); err == nil && len(values) > rng.Width() {
		return fmt.Errorf("row of %d values does not fit range %s", len(values), rng)
	}

	payload := &sheetsapi.ValueRange{Values: [][]interface{}{values}}

	call := r.service.Spreadsheets.Values.Append(r.spreadsheetID, sheetRange, payload).
		ValueInputOption("RAW").
		InsertDataOption("INSERT_ROWS").
		Context(ctx)

	if _, err := call.Do(); err != nil {
		return fmt.Errorf("append row into range %s: %w", sheetRange, err)
	}

	r.logger.Debug("row appended to sheet", zap.String("range", sheetRange))
	return nil
}

// ReadRange fetches a rectangular data range from the spreadsheet.
func (r *GoogleSheetRepository) ReadRange(ctx context.Context, sheetRange string) ([][]interface{}, error) {
	if sheetRange == "" {
		return nil, fmt.Errorf("sheetRange must not be empty")
	}

	resp, err := r.service.Spreadsheets.Values.Get(r.spreadsheetID, sheetRange).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("read range %s: %w", sheetRange, err)
	}

	return resp.Values, nil
}
