// Package registration stores which spreadsheet each user registered and
// checks that the bot's service account can still open it.
package registration

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/m3rciful/sheetbot/core/logger"
	"github.com/m3rciful/sheetbot/core/metrics"
	"github.com/m3rciful/sheetbot/core/scene"
	"github.com/m3rciful/sheetbot/core/sheets"
	"github.com/m3rciful/sheetbot/core/table"
)

// Master table columns.
const (
	ColUserID       = "User ID"
	ColUsername     = "Username"
	ColURL          = "Spreadsheet URL"
	ColRegisteredAt = "Registered At"
)

// Columns is the master table header, in order.
var Columns = []string{ColUserID, ColUsername, ColURL, ColRegisteredAt}

var (
	// ErrInvalidURL is returned for links that are not Google spreadsheet URLs.
	ErrInvalidURL = errors.New("invalid spreadsheet url")
	// ErrNotRegistered is returned by Get when the user has no row.
	ErrNotRegistered = errors.New("not registered")
	// ErrAccessDenied wraps every verification failure.
	ErrAccessDenied = errors.New("spreadsheet not accessible")
)

// UserRegistration is one row of the master table.
type UserRegistration struct {
	UserID         int64
	Username       string
	SpreadsheetURL string
	RegisteredAt   time.Time
}

// SpreadsheetID extracts the id from SpreadsheetURL.
func (r UserRegistration) SpreadsheetID() string {
	id, _ := ExtractID(r.SpreadsheetURL)
	return id
}

func (r UserRegistration) fields() map[string]string {
	return map[string]string{
		ColUserID:       strconv.FormatInt(r.UserID, 10),
		ColUsername:     r.Username,
		ColURL:          r.SpreadsheetURL,
		ColRegisteredAt: r.RegisteredAt.UTC().Format(time.RFC3339),
	}
}

func fromRow(row table.Row) (UserRegistration, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(row.Get(ColUserID)), 10, 64)
	if err != nil {
		return UserRegistration{}, fmt.Errorf("row %d: bad %s: %w", row.Index, ColUserID, err)
	}
	reg := UserRegistration{
		UserID:         id,
		Username:       row.Get(ColUsername),
		SpreadsheetURL: strings.TrimSpace(row.Get(ColURL)),
	}
	if ts := strings.TrimSpace(row.Get(ColRegisteredAt)); ts != "" {
		if t, err := time.Parse(time.RFC3339, ts); err == nil {
			reg.RegisteredAt = t
		}
	}
	return reg, nil
}

// Prober checks access to a spreadsheet by id.
type Prober interface {
	Probe(ctx context.Context, spreadsheetID string) (string, error)
}

// Config tunes a Service.
type Config struct {
	Table         string
	VerifyTimeout time.Duration
	Now           func() time.Time
	Metrics       metrics.Recorder
}

// Service reads and writes registrations in the master table.
type Service struct {
	store   table.Store
	prober  Prober
	table   string
	timeout time.Duration
	now     func() time.Time
	metrics metrics.Recorder

	headerReady atomic.Bool
}

// NewService builds a Service.
func NewService(store table.Store, prober Prober, cfg Config) *Service {
	s := &Service{
		store:   store,
		prober:  prober,
		table:   cfg.Table,
		timeout: cfg.VerifyTimeout,
		now:     cfg.Now,
		metrics: metrics.OrNop(cfg.Metrics),
	}
	if s.table == "" {
		s.table = "Registrations"
	}
	if s.timeout <= 0 {
		s.timeout = 5 * time.Second
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// ensureHeader initialises the header once per process; a failed lookup or
// insert clears the flag. Two concurrent first calls both run EnsureHeader,
// which is idempotent.
func (s *Service) ensureHeader(ctx context.Context) error {
	if s.headerReady.Load() {
		return nil
	}
	if err := s.store.EnsureHeader(ctx, s.table, Columns); err != nil {
		return fmt.Errorf("ensure header: %w", err)
	}
	s.headerReady.Store(true)
	return nil
}

// Get returns the registration of userID or ErrNotRegistered.
func (s *Service) Get(ctx context.Context, userID int64) (UserRegistration, error) {
	if err := s.ensureHeader(ctx); err != nil {
		return UserRegistration{}, err
	}
	row, err := s.store.FindRowByKey(ctx, s.table, ColUserID, strconv.FormatInt(userID, 10))
	if err != nil {
		if errors.Is(err, table.ErrNotFound) {
			return UserRegistration{}, ErrNotRegistered
		}
		return UserRegistration{}, fmt.Errorf("lookup registration: %w", err)
	}
	return fromRow(row)
}

// Register validates rawURL and upserts the user's row. A failed lookup is
// returned as an error and never followed by an insert.
func (s *Service) Register(ctx context.Context, user scene.User, rawURL string) (reg UserRegistration, err error) {
	result := "failed"
	defer func() {
		s.metrics.RecordRegistration(result)
		attrs := []slog.Attr{
			slog.String("status", logger.Status(err)),
			slog.String("outcome", result),
			slog.Int64("user_id", user.ID),
		}
		if err != nil {
			attrs = append(attrs, logger.Err(err))
		}
		logger.Info(ctx, logger.CompRegistration, "registration.upsert", attrs...)
	}()

	rawURL = strings.TrimSpace(rawURL)
	if !ValidateURL(rawURL) {
		result = "invalid"
		return UserRegistration{}, ErrInvalidURL
	}
	if err := s.ensureHeader(ctx); err != nil {
		return UserRegistration{}, err
	}

	reg = UserRegistration{
		UserID:         user.ID,
		Username:       user.DisplayName(),
		SpreadsheetURL: rawURL,
		RegisteredAt:   s.now().UTC().Truncate(time.Second),
	}
	row, err := s.store.FindRowByKey(ctx, s.table, ColUserID, strconv.FormatInt(user.ID, 10))
	switch {
	case err == nil:
		if err := s.store.UpdateRow(ctx, s.table, row, reg.fields()); err != nil {
			return UserRegistration{}, fmt.Errorf("update registration: %w", err)
		}
		result = "updated"
	case errors.Is(err, table.ErrNotFound):
		// The tab may have been emptied since the header was last seen.
		if err := s.store.EnsureHeader(ctx, s.table, Columns); err != nil {
			s.headerReady.Store(false)
			return UserRegistration{}, fmt.Errorf("ensure header: %w", err)
		}
		if _, err := s.store.InsertRow(ctx, s.table, reg.fields()); err != nil {
			return UserRegistration{}, fmt.Errorf("insert registration: %w", err)
		}
		result = "inserted"
	default:
		s.headerReady.Store(false)
		return UserRegistration{}, fmt.Errorf("lookup registration: %w", err)
	}
	return reg, nil
}

// Verify checks that the service account can open the registered spreadsheet.
// Every failure, including a timeout, is reported as ErrAccessDenied wrapping the cause.
func (s *Service) Verify(ctx context.Context, reg UserRegistration) (err error) {
	result := "ok"
	defer func() {
		s.metrics.RecordVerification(result)
		attrs := []slog.Attr{
			slog.String("status", logger.Status(err)),
			slog.String("outcome", result),
			slog.Int64("user_id", reg.UserID),
		}
		if err != nil {
			attrs = append(attrs, logger.Err(err))
		}
		logger.Info(ctx, logger.CompRegistration, "registration.verify", attrs...)
	}()

	id := reg.SpreadsheetID()
	if id == "" {
		result = Reason(ErrInvalidURL)
		return fmt.Errorf("%w: %w", ErrAccessDenied, ErrInvalidURL)
	}
	vctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	if _, err := s.prober.Probe(vctx, id); err != nil {
		result = Reason(err)
		return fmt.Errorf("%w: %w", ErrAccessDenied, err)
	}
	return nil
}

// Reason classifies a verification error for logs, metrics and user messages.
func Reason(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, sheets.ErrNoAccess):
		return "no_access"
	case errors.Is(err, sheets.ErrSpreadsheetNotFound):
		return "not_found"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, ErrInvalidURL):
		return "invalid_url"
	default:
		return "error"
	}
}
