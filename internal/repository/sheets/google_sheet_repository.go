package sheets

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"google.golang.org/api/option"
	sheetsapi "google.golang.org/api/sheets/v4"

	"github.com/mamadbah2/avicontrol/internal/config"
)

// ErrNoRange is returned when a call names no A1 range.
var ErrNoRange = errors.New("sheet range is required")

// Repository is where batch summaries and closed orders are exported. Rows
// are only ever appended; ReadRange lets the exporter skip orders already
// written by an earlier run.
type Repository interface {
	WriteRow(ctx context.Context, sheetRange string, values []interface{}) error
	AppendRows(ctx context.Context, sheetRange string, rows [][]interface{}) error
	ReadRange(ctx context.Context, sheetRange string) ([][]interface{}, error)
}

// ExportSheet is the Google Sheets workbook holding the Batches and Orders tabs.
type ExportSheet struct {
	values        *sheetsapi.SpreadsheetsValuesService
	spreadsheetID string
	logger        *zap.Logger
}

// NewGoogleSheetRepository opens the export workbook with a service account
// credentials file.
func NewGoogleSheetRepository(ctx context.Context, cfg config.SheetsConfig, logger *zap.Logger) (Repository, error) {
	return newExportSheet(ctx, cfg.SpreadsheetID, logger,
		option.WithCredentialsFile(cfg.CredentialsPath),
		option.WithScopes(sheetsapi.SpreadsheetsScope),
	)
}

func newExportSheet(ctx context.Context, spreadsheetID string, logger *zap.Logger, opts ...option.ClientOption) (*ExportSheet, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if spreadsheetID == "" {
		return nil, errors.New("spreadsheet id is required")
	}

	svc, err := sheetsapi.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize sheets client: %w", err)
	}

	return &ExportSheet{
		values:        svc.Spreadsheets.Values,
		spreadsheetID: spreadsheetID,
		logger:        logger.With(zap.String("spreadsheet_id", spreadsheetID)),
	}, nil
}

// WriteRow appends one batch summary row.
func (s *ExportSheet) WriteRow(ctx context.Context, sheetRange string, values []interface{}) error {
	return s.AppendRows(ctx, sheetRange, [][]interface{}{values})
}

// AppendRows adds rows under the last filled row of the tab. Values are
// entered as a user would type them, so amounts like "12.50" become numbers.
func (s *ExportSheet) AppendRows(ctx context.Context, sheetRange string, rows [][]interface{}) error {
	if sheetRange == "" {
		return ErrNoRange
	}
	if len(rows) == 0 {
		return nil
	}

	_, err := s.values.Append(s.spreadsheetID, sheetRange, &sheetsapi.ValueRange{Values: rows}).
		ValueInputOption("USER_ENTERED").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).
		Do()
	if err != nil {
		return fmt.Errorf("append %d rows to %s: %w", len(rows), sheetRange, err)
	}

	s.logger.Debug("export rows appended", zap.String("range", sheetRange), zap.Int("rows", len(rows)))
	return nil
}

// ReadRange returns the cells of sheetRange; trailing empty rows are omitted
// by the API.
func (s *ExportSheet) ReadRange(ctx context.Context, sheetRange string) ([][]interface{}, error) {
	if sheetRange == "" {
		return nil, ErrNoRange
	}

	resp, err := s.values.Get(s.spreadsheetID, sheetRange).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", sheetRange, err)
	}
	return resp.Values, nil
}
