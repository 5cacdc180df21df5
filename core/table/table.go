// Package table defines the remote table contract used for the master registry.
package table

import (
	"context"
	"errors"
	"strings"
)

var (
	// ErrNotFound is returned by FindRowByKey when no row matches. It is never
	// returned for backend failures.
	ErrNotFound = errors.New("table: row not found")
	// ErrHeaderMismatch is returned when a table already has a different header.
	ErrHeaderMismatch = errors.New("table: header mismatch")
)

// Row is one data row. Index is the 1-based row number, the header being row 1.
type Row struct {
	Index  int
	Values map[string]string
}

// Get returns the value of column.
func (r Row) Get(column string) string {
	return r.Values[column]
}

// Store is a spreadsheet-like table keyed by a column value.
// Implementations are not transactional; callers serialize writers per key.
type Store interface {
	// EnsureHeader writes columns as the header when the table has none.
	// An identical header is a no-op and a different one yields ErrHeaderMismatch.
	EnsureHeader(ctx context.Context, table string, columns []string) error
	// FindRowByKey returns the first row whose keyColumn equals keyValue.
	FindRowByKey(ctx context.Context, table, keyColumn, keyValue string) (Row, error)
	// InsertRow appends a row and returns it with its index.
	InsertRow(ctx context.Context, table string, fields map[string]string) (Row, error)
	// UpdateRow overwrites the row at row.Index with fields.
	UpdateRow(ctx context.Context, table string, row Row, fields map[string]string) error
}

// SameHeader reports whether got starts with want, ignoring surrounding spaces.
func SameHeader(got, want []string) bool {
	if len(got) < len(want) {
		return false
	}
	for i := range want {
		if strings.TrimSpace(got[i]) != want[i] {
			return false
		}
	}
	for _, extra := range got[len(want):] {
		if strings.TrimSpace(extra) != "" {
			return false
		}
	}
	return true
}

// EmptyHeader reports whether every cell of header is blank.
func EmptyHeader(header []string) bool {
	for _, h := range header {
		if strings.TrimSpace(h) != "" {
			return false
		}
	}
	return true
}

// Project orders fields by columns.
func Project(columns []string, fields map[string]string) []string {
	out := make([]string, len(columns))
	for i, c := range columns {
		out[i] = fields[c]
	}
	return out
}
