// Package sheets writes reports into a Google Sheets spreadsheet.
package sheets

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"

	"biztrack/internal/aggregate"
	"biztrack/internal/log"
	"biztrack/internal/report"
)

var _ report.Writer = (*Writer)(nil)

type Writer struct {
	svc           *gsheet.Service
	spreadsheetID string
	logger        *log.Logger
}

// New wraps an existing Sheets service.
func New(svc *gsheet.Service, spreadsheetID string, logger *log.Logger) (*Writer, error) {
	spreadsheetID = strings.TrimSpace(spreadsheetID)
	if spreadsheetID == "" {
		return nil, errors.New("missing spreadsheet id")
	}
	if logger == nil {
		logger = log.Discard()
	}
	return &Writer{svc: svc, spreadsheetID: spreadsheetID, logger: logger.WithComponent(log.ComponentReport)}, nil
}

// NewFromEnv creates a writer authenticated with a service account.
// Credentials come from GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE
// or GOOGLE_APPLICATION_CREDENTIALS, in that order.
func NewFromEnv(ctx context.Context, spreadsheetID string, logger *log.Logger) (*Writer, error) {
	if strings.TrimSpace(spreadsheetID) == "" {
		return nil, errors.New("missing GOOGLE_SPREADSHEET_ID")
	}
	creds, err := credentialsFromEnv()
	if err != nil {
		return nil, err
	}
	svc, err := gsheet.NewService(ctx,
		goption.WithCredentialsJSON(creds),
		goption.WithScopes(gsheet.SpreadsheetsScope))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	return New(svc, spreadsheetID, logger)
}

func credentialsFromEnv() ([]byte, error) {
	if js := strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_JSON")); js != "" {
		return []byte(js), nil
	}
	path := strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_FILE"))
	if path == "" {
		path = strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
	}
	if path == "" {
		return nil, errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, or GOOGLE_APPLICATION_CREDENTIALS)")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read service account file: %w", err)
	}
	return data, nil
}

// WriteReceipts writes the feed into the sheet named title, creating the
// sheet when missing and overwriting from A1 otherwise.
func (w *Writer) WriteReceipts(ctx context.Context, title string, feed *aggregate.Feed[aggregate.ReceiptRow]) (string, error) {
	title, err := report.ValidateTitle(title)
	if err != nil {
		return "", err
	}
	if w.svc == nil {
		return "", errors.New("sheets service not initialized")
	}
	if err := w.ensureSheet(ctx, title); err != nil {
		return "", err
	}

	rows := append([][]string{report.Header}, report.ReceiptRows(feed)...)
	values := make([][]any, len(rows))
	for i, r := range rows {
		cells := make([]any, len(r))
		for j, c := range r {
			cells[j] = c
		}
		values[i] = cells
	}

	rng := fmt.Sprintf("%s!A1:%s%d", quoteSheet(title), column(len(report.Header)), len(rows))
	_, err = w.svc.Spreadsheets.Values.Update(w.spreadsheetID, rng, &gsheet.ValueRange{Values: values}).
		ValueInputOption("USER_ENTERED").Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("write %s: %w", rng, err)
	}

	w.logger.InfoContext(ctx, "Receipts exported",
		log.FieldOperation, log.OpExport,
		"range", rng,
		log.FieldRecords, len(rows)-2)
	return rng, nil
}

func (w *Writer) ensureSheet(ctx context.Context, title string) error {
	ss, err := w.svc.Spreadsheets.Get(w.spreadsheetID).Fields("sheets.properties.title").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("read spreadsheet %s: %w", w.spreadsheetID, err)
	}
	for _, s := range ss.Sheets {
		if s.Properties != nil && s.Properties.Title == title {
			return nil
		}
	}

	req := &gsheet.BatchUpdateSpreadsheetRequest{Requests: []*gsheet.Request{{
		AddSheet: &gsheet.AddSheetRequest{Properties: &gsheet.SheetProperties{Title: title}},
	}}}
	if _, err := w.svc.Spreadsheets.BatchUpdate(w.spreadsheetID, req).Context(ctx).Do(); err != nil {
		return fmt.Errorf("add sheet %q: %w", title, err)
	}
	w.logger.InfoContext(ctx, "Sheet created", "sheet", title)
	return nil
}

func quoteSheet(title string) string {
	return "'" + strings.ReplaceAll(title, "'", "''") + "'"
}

// column converts a 1-based index into an A1 column name.
func column(n int) string {
	var out []byte
	for n > 0 {
		n--
		out = append([]byte{byte('A' + n%26)}, out...)
		n /= 26
	}
	return string(out)
}
