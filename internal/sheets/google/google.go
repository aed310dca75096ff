package google

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"steady/internal/core"
	"steady/internal/ingest"
	ports "steady/internal/sheets"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"
)

const defaultRowCacheDuration = 2 * time.Minute

type Client struct {
	svc           *gsheet.Service
	spreadsheetID string
	earningsSheet string
	summarySheet  string

	// Row count of the summary sheet, so consecutive appends skip a read.
	mu                 sync.Mutex
	cachedRowCount     int
	cacheExpiresAt     time.Time
	cacheValidDuration time.Duration
}

// Ensure interface conformance
var (
	_ ports.PeriodReader  = (*Client)(nil)
	_ ports.SummaryWriter = (*Client)(nil)
)

// NewFromEnv creates a Sheets client using environment variables.
// Required: GOOGLE_SPREADSHEET_ID
// Optional sheet names: GOOGLE_SHEET_NAME (default "Earnings"),
// GOOGLE_SUMMARY_SHEET_NAME (default "Summary").
func NewFromEnv(ctx context.Context) (*Client, error) {
	spreadsheetID := strings.TrimSpace(os.Getenv("GOOGLE_SPREADSHEET_ID"))
	if spreadsheetID == "" {
		return nil, errors.New("missing GOOGLE_SPREADSHEET_ID")
	}
	earnings := envOr("GOOGLE_SHEET_NAME", "Earnings")
	summary := envOr("GOOGLE_SUMMARY_SHEET_NAME", "Summary")

	svc, err := newSheetsService(ctx)
	if err != nil {
		return nil, fmt.Errorf("sheets service: %w", err)
	}
	return New(svc, spreadsheetID, earnings, summary), nil
}

func New(svc *gsheet.Service, spreadsheetID, earningsSheet, summarySheet string) *Client {
	return &Client{
		svc:                svc,
		spreadsheetID:      spreadsheetID,
		earningsSheet:      earningsSheet,
		summarySheet:       summarySheet,
		cacheValidDuration: defaultRowCacheDuration,
	}
}

func envOr(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

// newSheetsService initializes a Sheets Service using Service Account credentials.
// Uses GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, or GOOGLE_APPLICATION_CREDENTIALS.
func newSheetsService(ctx context.Context) (*gsheet.Service, error) {
	credentialsJSON, err := serviceAccountCredentials(ctx)
	if err != nil {
		return nil, err
	}

	service, err := gsheet.NewService(ctx,
		goption.WithCredentialsJSON(credentialsJSON),
		goption.WithScopes(gsheet.SpreadsheetsScope))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}

	slog.InfoContext(ctx, "Google Sheets service created", "credentials_size", len(credentialsJSON))
	return service, nil
}

func serviceAccountCredentials(ctx context.Context) ([]byte, error) {
	serviceAccountJSON := strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_JSON"))
	serviceAccountFile := strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_FILE"))
	if serviceAccountJSON == "" && serviceAccountFile == "" {
		serviceAccountFile = strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
	}

	switch {
	case serviceAccountJSON != "":
		slog.DebugContext(ctx, "Using inline service account credentials")
		return []byte(serviceAccountJSON), nil
	case serviceAccountFile != "":
		slog.DebugContext(ctx, "Reading service account credentials", "path", serviceAccountFile)
		data, err := os.ReadFile(serviceAccountFile)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
		return data, nil
	default:
		return nil, errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, or GOOGLE_APPLICATION_CREDENTIALS)")
	}
}

// ReadPeriods reads the earnings sheet. The first row is the header; column
// names follow the CSV import.
func (c *Client) ReadPeriods(ctx context.Context) ([]core.EarningsPeriod, error) {
	if c.svc == nil {
		return nil, errors.New("sheets service not initialized")
	}
	rng := fmt.Sprintf("%s!A:Z", c.earningsSheet)
	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, rng).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", rng, err)
	}

	periods, err := parseValues(resp.Values)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", rng, err)
	}
	slog.DebugContext(ctx, "Read earnings sheet", "sheet", c.earningsSheet, "periods", len(periods))
	return periods, nil
}

// parseValues converts a values matrix as returned by the Sheets API.
func parseValues(values [][]interface{}) ([]core.EarningsPeriod, error) {
	rows := make([][]string, len(values))
	for i, row := range values {
		rows[i] = toStrings(row)
	}
	return ingest.ParseRows(rows)
}

// AppendSummary writes one summary line below the last used row.
func (c *Client) AppendSummary(ctx context.Context, row ports.SummaryRow) (string, error) {
	next, err := c.nextSummaryRow(ctx)
	if err != nil {
		return "", err
	}

	dataRange := fmt.Sprintf("%s!A%d:H%d", c.summarySheet, next, next)
	vr := &gsheet.ValueRange{Values: [][]any{summaryValues(row)}}
	_, err = c.svc.Spreadsheets.Values.Update(c.spreadsheetID, dataRange, vr).
		ValueInputOption("USER_ENTERED").Context(ctx).Do()
	if err != nil {
		c.InvalidateRowCache()
		return "", fmt.Errorf("failed to update %s: %w", dataRange, err)
	}
	return dataRange, nil
}

func summaryValues(row ports.SummaryRow) []any {
	return []any{
		row.GeneratedAt.UTC().Format(time.RFC3339),
		row.LatestPeriod.UTC().Format("2006-01-02"),
		row.Gross.StringFixed(2),
		fmt.Sprintf("%.1f", row.Score),
		fmt.Sprintf("%.2f", row.ForecastPoint),
		fmt.Sprintf("%.2f", row.ForecastLower),
		fmt.Sprintf("%.2f", row.ForecastUpper),
		row.TopInsight,
	}
}

// nextSummaryRow returns the 1-based row the next summary goes to. The row
// count is read from the sheet only when the cached value has expired.
func (c *Client) nextSummaryRow(ctx context.Context) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if time.Now().Before(c.cacheExpiresAt) {
		c.cachedRowCount++
		return c.cachedRowCount, nil
	}
	if c.svc == nil {
		return 0, errors.New("sheets service not initialized")
	}

	rng := fmt.Sprintf("%s!A:A", c.summarySheet)
	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, rng).Context(ctx).Do()
	if err != nil {
		return 0, fmt.Errorf("failed to get sheet dimensions for %s: %w", c.summarySheet, err)
	}
	c.cachedRowCount = len(resp.Values) + 1
	c.cacheExpiresAt = time.Now().Add(c.cacheValidDuration)
	return c.cachedRowCount, nil
}

// InvalidateRowCache forces the next append to re-read the sheet size.
func (c *Client) InvalidateRowCache() {
	c.mu.Lock()
	c.cacheExpiresAt = time.Time{}
	c.mu.Unlock()
}

func toStrings(in []interface{}) []string {
	out := make([]string, len(in))
	for i, v := range in {
		out[i] = strings.TrimSpace(fmt.Sprint(v))
	}
	return out
}
