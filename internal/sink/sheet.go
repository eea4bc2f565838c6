package sink

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"

	"larkexport/internal/models"
	"larkexport/internal/service"
)

// GoogleSheetSink writes export rows into a freshly created tab of an
// existing spreadsheet.
type GoogleSheetSink struct {
	svc *sheets.Service
}

// NewGoogleSheetSink builds a Sheets client from a service-account
// credentials file.
func NewGoogleSheetSink(ctx context.Context, credentialsFile string) (*GoogleSheetSink, error) {
	data, err := os.ReadFile(credentialsFile)
	if err != nil {
		return nil, fmt.Errorf("read credentials file: %w", err)
	}
	conf, err := google.JWTConfigFromJSON(data, sheets.SpreadsheetsScope)
	if err != nil {
		return nil, fmt.Errorf("parse credentials: %w", err)
	}
	svc, err := sheets.NewService(ctx, option.WithHTTPClient(conf.Client(ctx)))
	if err != nil {
		return nil, fmt.Errorf("init sheets client: %w", err)
	}
	return &GoogleSheetSink{svc: svc}, nil
}

var _ service.SheetSink = (*GoogleSheetSink)(nil)

// Write creates a collision-resistant tab and fills it with the header
// plus one row per message, using literal value semantics. Failures are
// reported in the result rather than returned; a tab left behind by a
// failed values write is not rolled back.
func (s *GoogleSheetSink) Write(ctx context.Context, rows []models.ExportRow, spreadsheetID string) models.SheetWriteResult {
	tabName := "Export_" + sanitizeTimestamp(time.Now().UTC())
	addTab := &sheets.BatchUpdateSpreadsheetRequest{
		Requests: []*sheets.Request{{
			AddSheet: &sheets.AddSheetRequest{
				Properties: &sheets.SheetProperties{Title: tabName},
			},
		}},
	}
	if _, err := s.svc.Spreadsheets.BatchUpdate(spreadsheetID, addTab).Context(ctx).Do(); err != nil {
		return models.SheetWriteResult{Success: false, Error: fmt.Sprintf("create sheet tab: %v", err)}
	}

	values := make([][]interface{}, 0, len(rows)+1)
	values = append(values, headerRow())
	for _, row := range rows {
		values = append(values, []interface{}{row.Time, row.Sender, row.Text})
	}
	vr := &sheets.ValueRange{Values: values}
	_, err := s.svc.Spreadsheets.Values.Update(spreadsheetID, tabName+"!A1", vr).
		ValueInputOption("RAW").Context(ctx).Do()
	if err != nil {
		return models.SheetWriteResult{Success: false, Error: fmt.Sprintf("write values: %v", err)}
	}

	return models.SheetWriteResult{
		Success:   true,
		Message:   fmt.Sprintf("Exported %d messages to tab %s", len(rows), tabName),
		SheetURL:  "https://docs.google.com/spreadsheets/d/" + spreadsheetID,
		SheetName: tabName,
	}
}

// sanitizeTimestamp renders an ISO timestamp with colons and dots
// replaced so the result is safe as a tab name.
func sanitizeTimestamp(t time.Time) string {
	s := t.Format("2006-01-02T15:04:05.000Z")
	s = strings.ReplaceAll(s, ":", "-")
	return strings.ReplaceAll(s, ".", "-")
}
