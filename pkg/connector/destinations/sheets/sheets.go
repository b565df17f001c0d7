// Package sheets implements the Google Sheets tabular sink. Each destination
// is a sheet (tab) of one spreadsheet and a write is a single values update
// anchored at the start cell.
package sheets

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	sheetsapi "google.golang.org/api/sheets/v4"

	"github.com/ultimatecoffee/shopsync/pkg/config"
	"github.com/ultimatecoffee/shopsync/pkg/connector/core"
	"github.com/ultimatecoffee/shopsync/pkg/connector/registry"
	"github.com/ultimatecoffee/shopsync/pkg/errors"
	"github.com/ultimatecoffee/shopsync/pkg/logger"
)

func init() {
	_ = registry.RegisterSink(config.SinkSheets, New)
}

// Sink writes rows into the sheets of one spreadsheet
type Sink struct {
	service          *sheetsapi.Service
	spreadsheetID    string
	valueInputOption string
	logger           *zap.Logger
}

// New creates a Sheets sink from the sink configuration. A service account
// key file is used when sink.credentials_file is set, application default
// credentials otherwise.
func New(ctx context.Context, cfg *config.Config) (core.Sink, error) {
	var opts []option.ClientOption
	if cfg.Sink.CredentialsFile != "" {
		data, err := os.ReadFile(cfg.Sink.CredentialsFile)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeConfig, "failed to read sheets credentials")
		}
		jwtConfig, err := google.JWTConfigFromJSON(data, sheetsapi.SpreadsheetsScope)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeAuthentication, "invalid sheets credentials")
		}
		opts = append(opts, option.WithHTTPClient(jwtConfig.Client(ctx)))
	} else {
		client, err := google.DefaultClient(ctx, sheetsapi.SpreadsheetsScope)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeAuthentication, "no default credentials for sheets")
		}
		opts = append(opts, option.WithHTTPClient(client))
	}

	return NewWithOptions(ctx, cfg.Sink.SpreadsheetID, cfg.Sink.ValueInputOption, logger.Get(), opts...)
}

// NewWithOptions creates a Sheets sink with explicit client options
func NewWithOptions(ctx context.Context, spreadsheetID, valueInputOption string, log *zap.Logger, opts ...option.ClientOption) (*Sink, error) {
	if spreadsheetID == "" {
		return nil, errors.New(errors.ErrorTypeConfig, "spreadsheet ID is required")
	}
	if valueInputOption == "" {
		valueInputOption = "USER_ENTERED"
	}
	if log == nil {
		log = zap.NewNop()
	}

	service, err := sheetsapi.NewService(ctx, opts...)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConnection, "failed to create sheets service")
	}

	return &Sink{
		service:          service,
		spreadsheetID:    spreadsheetID,
		valueInputOption: valueInputOption,
		logger:           log.With(zap.String("component", "sheets_sink")),
	}, nil
}

// Name implements core.Sink
func (s *Sink) Name() string { return config.SinkSheets }

// Write implements core.Sink
func (s *Sink) Write(ctx context.Context, destination string, startRow, startCol int, rows []core.Row) error {
	if len(rows) == 0 {
		return nil
	}
	if startRow < 1 || startCol < 1 {
		return errors.Newf(errors.ErrorTypeValidation, "invalid start cell (%d, %d)", startRow, startCol)
	}

	rng := A1(destination, startRow, startCol)
	values := make([][]interface{}, len(rows))
	for i, row := range rows {
		values[i] = cells(row)
	}

	resp, err := s.service.Spreadsheets.Values.
		Update(s.spreadsheetID, rng, &sheetsapi.ValueRange{
			MajorDimension: "ROWS",
			Range:          rng,
			Values:         values,
		}).
		ValueInputOption(s.valueInputOption).
		Context(ctx).
		Do()
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeSink, fmt.Sprintf("failed to update %s", rng))
	}

	s.logger.Debug("sheet updated",
		zap.String("range", rng),
		zap.Int64("rows", resp.UpdatedRows),
		zap.Int64("cells", resp.UpdatedCells))
	return nil
}

// Health checks that the spreadsheet is reachable
func (s *Sink) Health(ctx context.Context) error {
	_, err := s.service.Spreadsheets.Get(s.spreadsheetID).Fields("spreadsheetId").Context(ctx).Do()
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeConnection, "spreadsheet unreachable")
	}
	return nil
}

// Close implements core.Sink
func (s *Sink) Close() error { return nil }

// A1 returns the A1 notation of the cell at (row, col), both 1-based, on
// the named sheet
func A1(sheet string, row, col int) string {
	return fmt.Sprintf("'%s'!%s%d", strings.ReplaceAll(sheet, "'", "''"), ColumnLetters(col), row)
}

// ColumnLetters converts a 1-based column index to its letters (1 → A, 27 → AA)
func ColumnLetters(col int) string {
	var b []byte
	for col > 0 {
		col--
		b = append([]byte{byte('A' + col%26)}, b...)
		col /= 26
	}
	return string(b)
}

// cells converts a row into values the API accepts. Blank cells are sent as
// empty strings so they clear whatever the sheet held before.
func cells(row core.Row) []interface{} {
	out := make([]interface{}, len(row))
	for i, v := range row {
		switch t := v.(type) {
		case nil:
			out[i] = ""
		case time.Time:
			out[i] = core.FormatCell(t)
		default:
			out[i] = t
		}
	}
	return out
}
