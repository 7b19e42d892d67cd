// Package sheets stores day records in a Google Sheets tab, one row per
// date:
//
//	A: date (YYYY-MM-DD)  B: items (JSON)  C: total paid  D: carry forward  E: updated at
//
// Values are written RAW so amounts keep their exact decimal text.
package sheets

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"sort"
	"strings"
	"time"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"

	"milkbook/internal/core"
	"milkbook/internal/store"
)

// Config is passed in by the backend factory; nothing here reads the
// environment.
type Config struct {
	SpreadsheetID   string
	SheetName       string
	CredentialsJSON string
	CredentialsFile string
}

// valuesAPI is the slice of the Sheets values API the store needs.
type valuesAPI interface {
	get(ctx context.Context, rng string) ([][]interface{}, error)
	update(ctx context.Context, rng string, rows [][]interface{}) error
	append(ctx context.Context, rng string, rows [][]interface{}) error
}

type Client struct {
	api       valuesAPI
	sheetName string
	now       func() time.Time
}

var (
	_ store.Store  = (*Client)(nil)
	_ store.Lister = (*Client)(nil)
)

var header = []interface{}{"Date", "Items", "Total Paid", "Carry Forward", "Updated At"}

// New creates a Sheets-backed store using service account credentials.
func New(ctx context.Context, cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.SpreadsheetID) == "" {
		return nil, errors.New("missing spreadsheet id")
	}
	sheetName := strings.TrimSpace(cfg.SheetName)
	if sheetName == "" {
		sheetName = "Ledger"
	}

	svc, err := newSheetsService(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("sheets service: %w", err)
	}

	return &Client{
		api:       &serviceValues{svc: svc, spreadsheetID: cfg.SpreadsheetID},
		sheetName: sheetName,
		now:       time.Now,
	}, nil
}

// newSheetsService initializes a Sheets Service from service account
// credentials, inline JSON taking precedence over a file path.
func newSheetsService(ctx context.Context, cfg Config) (*gsheet.Service, error) {
	var credentialsJSON []byte
	switch {
	case strings.TrimSpace(cfg.CredentialsJSON) != "":
		slog.InfoContext(ctx, "Using inline JSON credentials")
		credentialsJSON = []byte(cfg.CredentialsJSON)
	case strings.TrimSpace(cfg.CredentialsFile) != "":
		slog.InfoContext(ctx, "Reading credentials from file", "path", cfg.CredentialsFile)
		raw, err := os.ReadFile(cfg.CredentialsFile)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
		credentialsJSON = raw
	default:
		return nil, errors.New("missing service account credentials")
	}

	service, err := gsheet.NewService(ctx,
		goption.WithCredentialsJSON(credentialsJSON),
		goption.WithScopes(gsheet.SpreadsheetsScope),
		goption.WithHTTPClient(newHTTPClientWithPooling()),
	)
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	return service, nil
}

// newHTTPClientWithPooling creates an HTTP client for the Sheets API with
// connection pooling and bounded timeouts.
func newHTTPClientWithPooling() *http.Client {
	dialer := &net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 30 * time.Second,
	}

	transport := &http.Transport{
		DialContext:           dialer.DialContext,
		MaxIdleConns:          20,
		MaxIdleConnsPerHost:   5,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 30 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		ForceAttemptHTTP2:     true,
	}

	return &http.Client{
		Transport: transport,
		Timeout:   60 * time.Second,
	}
}

// Get scans the date column for an exact key.
func (c *Client) Get(ctx context.Context, date core.Date) (core.DayRecord, bool, error) {
	rows, err := c.readRows(ctx)
	if err != nil {
		return core.DayRecord{}, false, err
	}
	key := date.String()
	for _, row := range rows {
		cols := toStrings(row)
		if len(cols) == 0 || cols[0] != key {
			continue
		}
		rec, err := parseRow(cols)
		if err != nil {
			return core.DayRecord{}, false, fmt.Errorf("parse row for %s: %w", key, err)
		}
		return rec, true, nil
	}
	return core.DayRecord{}, false, nil
}

// Put overwrites the row holding rec.Date, or appends one.
func (c *Client) Put(ctx context.Context, rec core.DayRecord) error {
	if err := rec.Date.Validate(); err != nil {
		return err
	}
	row, err := c.formatRow(rec)
	if err != nil {
		return err
	}

	rows, err := c.readRows(ctx)
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		if err := c.api.update(ctx, fmt.Sprintf("%s!A1:E1", c.sheetName), [][]interface{}{header}); err != nil {
			return fmt.Errorf("write header in sheet %s: %w", c.sheetName, err)
		}
	}

	key := rec.Date.String()
	for i, existing := range rows {
		cols := toStrings(existing)
		if len(cols) > 0 && cols[0] == key {
			rowNum := i + 1
			rng := fmt.Sprintf("%s!A%d:E%d", c.sheetName, rowNum, rowNum)
			if err := c.api.update(ctx, rng, [][]interface{}{row}); err != nil {
				return fmt.Errorf("update %s: %w", rng, err)
			}
			return nil
		}
	}

	rng := fmt.Sprintf("%s!A:E", c.sheetName)
	if err := c.api.append(ctx, rng, [][]interface{}{row}); err != nil {
		return fmt.Errorf("append to sheet %s: %w", c.sheetName, err)
	}
	return nil
}

// Dates lists every date that has a row, ascending.
func (c *Client) Dates(ctx context.Context) ([]core.Date, error) {
	rows, err := c.readRows(ctx)
	if err != nil {
		return nil, err
	}
	var out []core.Date
	for _, row := range rows {
		cols := toStrings(row)
		if len(cols) == 0 {
			continue
		}
		d, err := core.ParseDate(cols[0])
		if err != nil {
			// header or hand-edited garbage
			continue
		}
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j].Time) })
	return out, nil
}

func (c *Client) readRows(ctx context.Context) ([][]interface{}, error) {
	rng := fmt.Sprintf("%s!A:E", c.sheetName)
	rows, err := c.api.get(ctx, rng)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", rng, err)
	}
	return rows, nil
}

func (c *Client) formatRow(rec core.DayRecord) ([]interface{}, error) {
	items := rec.Items
	if items == nil {
		items = []core.LineItem{}
	}
	raw, err := json.Marshal(items)
	if err != nil {
		return nil, fmt.Errorf("encode items: %w", err)
	}
	return []interface{}{
		rec.Date.String(),
		string(raw),
		rec.TotalPaid.String(),
		rec.CarryForward.String(),
		c.now().UTC().Format(time.RFC3339),
	}, nil
}

func parseRow(cols []string) (core.DayRecord, error) {
	if len(cols) < 4 {
		return core.DayRecord{}, fmt.Errorf("expected at least 4 columns, got %d", len(cols))
	}
	date, err := core.ParseDate(cols[0])
	if err != nil {
		return core.DayRecord{}, err
	}
	var items []core.LineItem
	if s := strings.TrimSpace(cols[1]); s != "" {
		if err := json.Unmarshal([]byte(s), &items); err != nil {
			return core.DayRecord{}, fmt.Errorf("decode items: %w", err)
		}
	}
	for i := range items {
		items[i] = items[i].Recompute()
	}
	if items == nil {
		items = []core.LineItem{}
	}
	paid, err := core.ParseMoney(cols[2])
	if err != nil {
		return core.DayRecord{}, fmt.Errorf("total paid %q: %w", cols[2], err)
	}
	carry, err := core.ParseSignedMoney(cols[3])
	if err != nil {
		return core.DayRecord{}, fmt.Errorf("carry forward %q: %w", cols[3], err)
	}
	return core.DayRecord{Date: date, Items: items, TotalPaid: paid, CarryForward: carry}, nil
}

func toStrings(in []interface{}) []string {
	out := make([]string, len(in))
	for i, v := range in {
		out[i] = strings.TrimSpace(fmt.Sprint(v))
	}
	return out
}

// serviceValues adapts the generated Sheets client to valuesAPI.
type serviceValues struct {
	svc           *gsheet.Service
	spreadsheetID string
}

func (s *serviceValues) get(ctx context.Context, rng string) ([][]interface{}, error) {
	resp, err := s.svc.Spreadsheets.Values.Get(s.spreadsheetID, rng).Context(ctx).Do()
	if err != nil {
		return nil, err
	}
	return resp.Values, nil
}

func (s *serviceValues) update(ctx context.Context, rng string, rows [][]interface{}) error {
	_, err := s.svc.Spreadsheets.Values.Update(s.spreadsheetID, rng, &gsheet.ValueRange{Values: rows}).
		ValueInputOption("RAW").Context(ctx).Do()
	return err
}

func (s *serviceValues) append(ctx context.Context, rng string, rows [][]interface{}) error {
	_, err := s.svc.Spreadsheets.Values.Append(s.spreadsheetID, rng, &gsheet.ValueRange{Values: rows}).
		ValueInputOption("RAW").InsertDataOption("INSERT_ROWS").Context(ctx).Do()
	return err
}
