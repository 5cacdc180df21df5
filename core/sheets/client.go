// Package sheets adapts the Google Sheets API to table.Store and probes
// access to user spreadsheets.
package sheets

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"

	"github.com/m3rciful/sheetbot/core/logger"
	"github.com/m3rciful/sheetbot/core/table"
)

var (
	// ErrNoAccess means the service account may not open the spreadsheet.
	ErrNoAccess = errors.New("sheets: no access")
	// ErrSpreadsheetNotFound means the spreadsheet does not exist.
	ErrSpreadsheetNotFound = errors.New("sheets: spreadsheet not found")
)

// Config configures a Client.
type Config struct {
	CredentialsJSON string
	SpreadsheetID   string
	Timeout         time.Duration
	// Options are appended after the credentials; tests point the endpoint at a fake server.
	Options []option.ClientOption
}

// Client talks to one master spreadsheet. It is safe for concurrent use.
type Client struct {
	svc           *sheets.Service
	spreadsheetID string
	timeout       time.Duration

	mu      sync.RWMutex
	headers map[string][]string
}

var _ table.Store = (*Client)(nil)

// New builds a Client from service account credentials.
func New(ctx context.Context, cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.SpreadsheetID) == "" {
		return nil, errors.New("sheets: spreadsheet id is required")
	}
	opts := make([]option.ClientOption, 0, len(cfg.Options)+2)
	if cfg.CredentialsJSON != "" {
		opts = append(opts,
			option.WithCredentialsJSON([]byte(cfg.CredentialsJSON)),
			option.WithScopes(sheets.SpreadsheetsScope),
		)
	}
	opts = append(opts, cfg.Options...)
	svc, err := sheets.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("sheets: create service: %w", err)
	}
	return NewWithService(svc, cfg.SpreadsheetID, cfg.Timeout), nil
}

// NewWithService wraps an existing service.
func NewWithService(svc *sheets.Service, spreadsheetID string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		svc:           svc,
		spreadsheetID: spreadsheetID,
		timeout:       timeout,
		headers:       make(map[string][]string),
	}
}

func (c *Client) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, c.timeout)
}

func (c *Client) observe(ctx context.Context, op, tab string, start time.Time, err error) {
	attrs := []slog.Attr{
		slog.String("status", logger.Status(err)),
		slog.String("op", op),
		slog.String("table", tab),
		slog.Duration("duration", time.Since(start)),
	}
	if err != nil && !errors.Is(err, table.ErrNotFound) {
		attrs = append(attrs, logger.Err(err))
		if code := httpCode(err); code != 0 {
			attrs = append(attrs, slog.Int("http_code", code))
		}
		logger.Warn(ctx, logger.CompSheets, "sheets.call", attrs...)
		return
	}
	logger.Debug(ctx, logger.CompSheets, "sheets.call", attrs...)
}

// quote renders a sheet name for A1 notation.
func quote(tab string) string {
	return "'" + strings.ReplaceAll(tab, "'", "''") + "'"
}

func cells(row []interface{}) []string {
	out := make([]string, len(row))
	for i, v := range row {
		out[i] = fmt.Sprint(v)
	}
	return out
}

func toInterfaces(values []string) []interface{} {
	out := make([]interface{}, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}

// EnsureHeader implements table.Store. A missing tab is created and an empty
// first row is rewritten, so the check always reads the live sheet.
func (c *Client) EnsureHeader(ctx context.Context, tab string, columns []string) (err error) {
	start := time.Now()
	defer func() { c.observe(ctx, "ensure_header", tab, start, err) }()

	current, err := c.readHeader(ctx, tab)
	if isMissingSheet(err) {
		if err = c.addSheet(ctx, tab); err != nil {
			return err
		}
		current, err = nil, nil
	}
	if err != nil {
		return err
	}

	switch {
	case table.EmptyHeader(current):
		if err = c.writeRow(ctx, tab, 1, columns); err != nil {
			return err
		}
	case !table.SameHeader(current, columns):
		return fmt.Errorf("%w: %q has %v", table.ErrHeaderMismatch, tab, current)
	}
	c.storeHeader(tab, columns)
	return nil
}

// FindRowByKey implements table.Store.
func (c *Client) FindRowByKey(ctx context.Context, tab, keyColumn, keyValue string) (row table.Row, err error) {
	start := time.Now()
	defer func() { c.observe(ctx, "find", tab, start, err) }()

	cctx, cancel := c.bound(ctx)
	defer cancel()
	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, quote(tab)).Context(cctx).Do()
	if err != nil {
		return table.Row{}, fmt.Errorf("sheets: read %q: %w", tab, err)
	}
	if len(resp.Values) == 0 {
		c.forgetHeader(tab)
		return table.Row{}, table.ErrNotFound
	}
	header := cells(resp.Values[0])
	col := -1
	for i, h := range header {
		if strings.TrimSpace(h) == keyColumn {
			col = i
			break
		}
	}
	if col < 0 {
		c.forgetHeader(tab)
		return table.Row{}, fmt.Errorf("sheets: %q has no column %q", tab, keyColumn)
	}
	for i, raw := range resp.Values[1:] {
		values := cells(raw)
		if col < len(values) && strings.TrimSpace(values[col]) == keyValue {
			fields := make(map[string]string, len(header))
			for j, h := range header {
				if j < len(values) {
					fields[strings.TrimSpace(h)] = values[j]
				}
			}
			return table.Row{Index: i + 2, Values: fields}, nil
		}
	}
	return table.Row{}, table.ErrNotFound
}

// InsertRow implements table.Store.
func (c *Client) InsertRow(ctx context.Context, tab string, fields map[string]string) (row table.Row, err error) {
	start := time.Now()
	defer func() { c.observe(ctx, "insert", tab, start, err) }()

	header, err := c.header(ctx, tab)
	if err != nil {
		return table.Row{}, err
	}
	cctx, cancel := c.bound(ctx)
	defer cancel()
	vr := &sheets.ValueRange{Values: [][]interface{}{toInterfaces(table.Project(header, fields))}}
	resp, err := c.svc.Spreadsheets.Values.Append(c.spreadsheetID, quote(tab)+"!A1", vr).
		ValueInputOption("RAW").
		InsertDataOption("INSERT_ROWS").
		Context(cctx).
		Do()
	if err != nil {
		return table.Row{}, fmt.Errorf("sheets: append to %q: %w", tab, err)
	}
	index := 0
	if resp.Updates != nil {
		index = rowFromRange(resp.Updates.UpdatedRange)
	}
	return table.Row{Index: index, Values: fields}, nil
}

// UpdateRow implements table.Store.
func (c *Client) UpdateRow(ctx context.Context, tab string, row table.Row, fields map[string]string) (err error) {
	start := time.Now()
	defer func() { c.observe(ctx, "update", tab, start, err) }()

	if row.Index < 2 {
		return fmt.Errorf("sheets: invalid data row %d", row.Index)
	}
	header, err := c.header(ctx, tab)
	if err != nil {
		return err
	}
	return c.writeRow(ctx, tab, row.Index, table.Project(header, fields))
}

// Probe opens spreadsheetID and returns its title. Access failures map to
// ErrNoAccess and ErrSpreadsheetNotFound.
func (c *Client) Probe(ctx context.Context, spreadsheetID string) (title string, err error) {
	start := time.Now()
	defer func() { c.observe(ctx, "probe", spreadsheetID, start, err) }()

	cctx, cancel := c.bound(ctx)
	defer cancel()
	resp, err := c.svc.Spreadsheets.Get(spreadsheetID).Fields("properties.title").Context(cctx).Do()
	if err != nil {
		return "", Classify(err)
	}
	if resp.Properties != nil {
		title = resp.Properties.Title
	}
	return title, nil
}

// Classify maps API errors onto the package sentinels and leaves others wrapped.
func Classify(err error) error {
	if err == nil {
		return nil
	}
	switch httpCode(err) {
	case http.StatusForbidden, http.StatusUnauthorized:
		return fmt.Errorf("%w: %w", ErrNoAccess, err)
	case http.StatusNotFound:
		return fmt.Errorf("%w: %w", ErrSpreadsheetNotFound, err)
	}
	return fmt.Errorf("sheets: %w", err)
}

func httpCode(err error) int {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		return apiErr.Code
	}
	return 0
}

func isMissingSheet(err error) bool {
	var apiErr *googleapi.Error
	if !errors.As(err, &apiErr) || apiErr.Code != http.StatusBadRequest {
		return false
	}
	return strings.Contains(apiErr.Message, "Unable to parse range")
}

func (c *Client) readHeader(ctx context.Context, tab string) ([]string, error) {
	cctx, cancel := c.bound(ctx)
	defer cancel()
	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, quote(tab)+"!1:1").Context(cctx).Do()
	if err != nil {
		return nil, err
	}
	if len(resp.Values) == 0 {
		return nil, nil
	}
	return cells(resp.Values[0]), nil
}

func (c *Client) header(ctx context.Context, tab string) ([]string, error) {
	if h := c.cachedHeader(tab); h != nil {
		return h, nil
	}
	h, err := c.readHeader(ctx, tab)
	if err != nil {
		return nil, fmt.Errorf("sheets: read header of %q: %w", tab, err)
	}
	if table.EmptyHeader(h) {
		return nil, fmt.Errorf("sheets: %q has no header", tab)
	}
	for i := range h {
		h[i] = strings.TrimSpace(h[i])
	}
	c.storeHeader(tab, h)
	return h, nil
}

func (c *Client) cachedHeader(tab string) []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.headers[tab]
}

func (c *Client) storeHeader(tab string, header []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.headers[tab] = append([]string(nil), header...)
}

func (c *Client) forgetHeader(tab string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.headers, tab)
}

func (c *Client) addSheet(ctx context.Context, tab string) error {
	cctx, cancel := c.bound(ctx)
	defer cancel()
	req := &sheets.BatchUpdateSpreadsheetRequest{
		Requests: []*sheets.Request{{
			AddSheet: &sheets.AddSheetRequest{Properties: &sheets.SheetProperties{Title: tab}},
		}},
	}
	if _, err := c.svc.Spreadsheets.BatchUpdate(c.spreadsheetID, req).Context(cctx).Do(); err != nil {
		return fmt.Errorf("sheets: add sheet %q: %w", tab, err)
	}
	logger.Info(ctx, logger.CompSheets, "sheets.tab_created", slog.String("table", tab))
	return nil
}

func (c *Client) writeRow(ctx context.Context, tab string, index int, values []string) error {
	cctx, cancel := c.bound(ctx)
	defer cancel()
	rng := quote(tab) + "!A" + strconv.Itoa(index)
	vr := &sheets.ValueRange{Values: [][]interface{}{toInterfaces(values)}}
	if _, err := c.svc.Spreadsheets.Values.Update(c.spreadsheetID, rng, vr).ValueInputOption("RAW").Context(cctx).Do(); err != nil {
		return fmt.Errorf("sheets: write row %d of %q: %w", index, tab, err)
	}
	return nil
}

var updatedRangeRe = regexp.MustCompile(`![A-Z]+(\d+)`)

// rowFromRange extracts the first row number from an A1 range like "'Tab'!A5:D5".
func rowFromRange(rng string) int {
	m := updatedRangeRe.FindStringSubmatch(rng)
	if m == nil {
		return 0
	}
	n, _ := strconv.Atoi(m[1])
	return n
}
