package sheets

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/Veraticus/policybook/internal/common"
	"github.com/Veraticus/policybook/internal/model"
	"github.com/Veraticus/policybook/internal/service"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"
)

var _ service.ClientExporter = (*Exporter)(nil)

// Headers is the header row of the exported sheet.
var Headers = []string{"Name", "Email", "Insurance Company", "Car Model", "Car Year", "Price", "Next Payment"}

// Exporter mirrors the client table to a Google spreadsheet.
type Exporter struct {
	service *sheets.Service
	logger  *slog.Logger
	config  Config
}

// NewExporter creates an exporter authenticated with the configured credentials.
func NewExporter(ctx context.Context, config Config, logger *slog.Logger) (*Exporter, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	srv, err := createSheetsService(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create sheets service: %w", err)
	}

	return NewExporterWithService(srv, config, logger), nil
}

// NewExporterWithService creates an exporter over an existing Sheets service.
func NewExporterWithService(srv *sheets.Service, config Config, logger *slog.Logger) *Exporter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Exporter{
		service: srv,
		config:  config,
		logger:  logger,
	}
}

// NewServiceForEndpoint builds an unauthenticated Sheets service against a
// custom endpoint, such as a local emulator.
func NewServiceForEndpoint(ctx context.Context, endpoint string, client *http.Client) (*sheets.Service, error) {
	return sheets.NewService(ctx, option.WithEndpoint(endpoint), option.WithHTTPClient(client))
}

// Export replaces the contents of the target sheet with the given clients.
func (e *Exporter) Export(ctx context.Context, clients []model.Client) error {
	e.logger.Info("starting client export", "clients", len(clients))

	spreadsheetID, sheetID, err := e.getOrCreateSpreadsheet(ctx)
	if err != nil {
		return fmt.Errorf("failed to get spreadsheet: %w", err)
	}

	retryOpts := common.RetryOptions{
		MaxAttempts:  e.config.RetryAttempts,
		InitialDelay: e.config.RetryDelay,
		MaxDelay:     30 * time.Second,
		Multiplier:   2.0,
	}

	err = common.WithRetry(ctx, func() error {
		return classifyAPIError(e.clearSheet(ctx, spreadsheetID))
	}, retryOpts)
	if err != nil {
		return fmt.Errorf("failed to clear sheet: %w", err)
	}

	values := PrepareValues(clients)

	err = common.WithRetry(ctx, func() error {
		return classifyAPIError(e.writeData(ctx, spreadsheetID, values))
	}, retryOpts)
	if err != nil {
		return fmt.Errorf("failed to write data: %w", err)
	}

	if e.config.EnableFormatting {
		err = common.WithRetry(ctx, func() error {
			return classifyAPIError(e.applyFormatting(ctx, spreadsheetID, sheetID))
		}, retryOpts)
		if err != nil {
			// Formatting is cosmetic; the data is already written.
			e.logger.Warn("failed to apply formatting", "error", err)
		}
	}

	e.logger.Info("client export completed",
		"spreadsheet_id", spreadsheetID,
		"rows_written", len(values))

	return nil
}

// PrepareValues renders the header row and one row per client, ordered by
// next payment date and then email.
func PrepareValues(clients []model.Client) [][]any {
	sorted := make([]model.Client, len(clients))
	copy(sorted, clients)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].NextPayment != sorted[j].NextPayment {
			return sorted[i].NextPayment < sorted[j].NextPayment
		}
		return sorted[i].Email < sorted[j].Email
	})

	values := make([][]any, 0, len(sorted)+1)
	header := make([]any, len(Headers))
	for i, h := range Headers {
		header[i] = h
	}
	values = append(values, header)

	for _, c := range sorted {
		values = append(values, c.Values())
	}
	return values
}

// createSheetsService creates a Google Sheets API service.
func createSheetsService(ctx context.Context, config Config) (*sheets.Service, error) {
	var tokenSource oauth2.TokenSource

	if config.ServiceAccountPath != "" {
		jsonKey, err := os.ReadFile(config.ServiceAccountPath)
		if err != nil {
			return nil, fmt.Errorf("unable to read service account key file: %w", err)
		}

		jwtConfig, err := google.JWTConfigFromJSON(jsonKey, sheets.SpreadsheetsScope)
		if err != nil {
			return nil, fmt.Errorf("unable to parse service account key: %w", err)
		}

		tokenSource = jwtConfig.TokenSource(ctx)
	} else {
		client := oauthConfig(config.ClientID, config.ClientSecret, "")
		token := &oauth2.Token{
			RefreshToken: config.RefreshToken,
			TokenType:    "Bearer",
		}
		tokenSource = client.TokenSource(ctx, token)
	}

	httpClient := oauth2.NewClient(ctx, tokenSource)
	srv, err := sheets.NewService(ctx, option.WithHTTPClient(httpClient))
	if err != nil {
		return nil, fmt.Errorf("unable to create sheets service: %w", err)
	}

	return srv, nil
}

// getOrCreateSpreadsheet returns the spreadsheet ID and the numeric ID of the
// target sheet, creating whichever is missing.
func (e *Exporter) getOrCreateSpreadsheet(ctx context.Context) (string, int64, error) {
	if e.config.SpreadsheetID != "" {
		spreadsheet, err := e.service.Spreadsheets.Get(e.config.SpreadsheetID).Context(ctx).Do()
		if err != nil {
			return "", 0, fmt.Errorf("unable to access spreadsheet %s: %w", e.config.SpreadsheetID, err)
		}

		for _, sheet := range spreadsheet.Sheets {
			if sheet.Properties != nil && sheet.Properties.Title == e.config.SheetTitle {
				return e.config.SpreadsheetID, sheet.Properties.SheetId, nil
			}
		}

		sheetID, err := e.addSheet(ctx, e.config.SpreadsheetID)
		if err != nil {
			return "", 0, err
		}
		return e.config.SpreadsheetID, sheetID, nil
	}

	spreadsheet := &sheets.Spreadsheet{
		Properties: &sheets.SpreadsheetProperties{
			Title:    e.config.SpreadsheetName,
			TimeZone: e.config.TimeZone,
		},
		Sheets: []*sheets.Sheet{
			{
				Properties: &sheets.SheetProperties{
					Title: e.config.SheetTitle,
				},
			},
		},
	}

	created, err := e.service.Spreadsheets.Create(spreadsheet).Context(ctx).Do()
	if err != nil {
		return "", 0, fmt.Errorf("unable to create spreadsheet: %w", err)
	}

	e.logger.Info("created new spreadsheet",
		"id", created.SpreadsheetId,
		"url", created.SpreadsheetUrl)

	var sheetID int64
	if len(created.Sheets) > 0 && created.Sheets[0].Properties != nil {
		sheetID = created.Sheets[0].Properties.SheetId
	}
	return created.SpreadsheetId, sheetID, nil
}

func (e *Exporter) addSheet(ctx context.Context, spreadsheetID string) (int64, error) {
	req := &sheets.BatchUpdateSpreadsheetRequest{
		Requests: []*sheets.Request{{
			AddSheet: &sheets.AddSheetRequest{
				Properties: &sheets.SheetProperties{Title: e.config.SheetTitle},
			},
		}},
	}
	resp, err := e.service.Spreadsheets.BatchUpdate(spreadsheetID, req).Context(ctx).Do()
	if err != nil {
		return 0, fmt.Errorf("unable to add sheet %q: %w", e.config.SheetTitle, err)
	}
	if len(resp.Replies) == 0 || resp.Replies[0].AddSheet == nil || resp.Replies[0].AddSheet.Properties == nil {
		return 0, fmt.Errorf("unable to add sheet %q: empty reply", e.config.SheetTitle)
	}

	e.logger.Info("added sheet", "title", e.config.SheetTitle)
	return resp.Replies[0].AddSheet.Properties.SheetId, nil
}

func (e *Exporter) sheetRange(cells string) string {
	return fmt.Sprintf("'%s'!%s", strings.ReplaceAll(e.config.SheetTitle, "'", "''"), cells)
}

// clearSheet clears all data from the target sheet.
func (e *Exporter) clearSheet(ctx context.Context, spreadsheetID string) error {
	_, err := e.service.Spreadsheets.Values.Clear(spreadsheetID, e.sheetRange("A:Z"), &sheets.ClearValuesRequest{}).Context(ctx).Do()
	return err
}

// writeData writes the data to the spreadsheet.
func (e *Exporter) writeData(ctx context.Context, spreadsheetID string, values [][]any) error {
	// Write in batches to avoid API limits
	for i := 0; i < len(values); i += e.config.BatchSize {
		end := min(i+e.config.BatchSize, len(values))

		batch := values[i:end]
		valueRange := &sheets.ValueRange{
			Values: batch,
		}

		_, err := e.service.Spreadsheets.Values.Update(spreadsheetID, e.sheetRange(fmt.Sprintf("A%d", i+1)), valueRange).
			ValueInputOption("RAW").
			Context(ctx).
			Do()
		if err != nil {
			return fmt.Errorf("failed to write batch starting at row %d: %w", i+1, err)
		}

		e.logger.Debug("wrote batch", "start_row", i+1, "rows", len(batch))
	}

	return nil
}

// applyFormatting bolds and freezes the header row and resizes the columns.
func (e *Exporter) applyFormatting(ctx context.Context, spreadsheetID string, sheetID int64) error {
	requests := []*sheets.Request{
		{
			RepeatCell: &sheets.RepeatCellRequest{
				Range: &sheets.GridRange{
					SheetId:          sheetID,
					StartRowIndex:    0,
					EndRowIndex:      1,
					StartColumnIndex: 0,
					EndColumnIndex:   int64(len(Headers)),
				},
				Cell: &sheets.CellData{
					UserEnteredFormat: &sheets.CellFormat{
						TextFormat: &sheets.TextFormat{
							Bold: true,
						},
					},
				},
				Fields: "userEnteredFormat.textFormat",
			},
		},
		{
			AutoResizeDimensions: &sheets.AutoResizeDimensionsRequest{
				Dimensions: &sheets.DimensionRange{
					SheetId:    sheetID,
					Dimension:  "COLUMNS",
					StartIndex: 0,
					EndIndex:   int64(len(Headers)),
				},
			},
		},
		{
			UpdateSheetProperties: &sheets.UpdateSheetPropertiesRequest{
				Properties: &sheets.SheetProperties{
					SheetId: sheetID,
					GridProperties: &sheets.GridProperties{
						FrozenRowCount: 1,
					},
				},
				Fields: "gridProperties.frozenRowCount",
			},
		},
	}

	batchUpdate := &sheets.BatchUpdateSpreadsheetRequest{
		Requests: requests,
	}

	_, err := e.service.Spreadsheets.BatchUpdate(spreadsheetID, batchUpdate).Context(ctx).Do()
	return err
}

// classifyAPIError marks Sheets API errors for WithRetry: 429 is a rate
// limit, 5xx is retried, anything else fails immediately.
func classifyAPIError(err error) error {
	if err == nil {
		return nil
	}
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.Code == http.StatusTooManyRequests:
			return fmt.Errorf("%w: %w", common.ErrRateLimit, err)
		case apiErr.Code >= http.StatusInternalServerError:
			return &common.RetryableError{Err: err, Retryable: true}
		default:
			return &common.RetryableError{Err: err, Retryable: false}
		}
	}
	return err
}
