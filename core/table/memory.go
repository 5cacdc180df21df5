package table

import (
	"context"
	"fmt"
	"maps"
	"sync"
)

type memTable struct {
	header []string
	rows   [][]string
}

// MemoryStore is an in-process Store for tests and offline runs.
type MemoryStore struct {
	mu     sync.Mutex
	tables map[string]*memTable

	// Fail, when set, is consulted before every operation; a non-nil error aborts it.
	Fail func(op string) error
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{tables: make(map[string]*memTable)}
}

func (m *MemoryStore) check(op string) error {
	if m.Fail == nil {
		return nil
	}
	return m.Fail(op)
}

func (m *MemoryStore) table(name string) *memTable {
	t, ok := m.tables[name]
	if !ok {
		t = &memTable{}
		m.tables[name] = t
	}
	return t
}

// SetHeader seeds a header, bypassing EnsureHeader checks.
func (m *MemoryStore) SetHeader(name string, header []string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.table(name).header = append([]string(nil), header...)
}

// Clear drops the header and every row of name, like emptying a sheet by hand.
func (m *MemoryStore) Clear(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tables[name] = &memTable{}
}

// Rows returns a copy of the data rows of name.
func (m *MemoryStore) Rows(name string) []map[string]string {
	m.mu.Lock()
	defer m.mu.Unlock()
	t := m.table(name)
	out := make([]map[string]string, 0, len(t.rows))
	for _, r := range t.rows {
		out = append(out, t.toFields(r))
	}
	return out
}

func (t *memTable) toFields(row []string) map[string]string {
	fields := make(map[string]string, len(t.header))
	for i, col := range t.header {
		if i < len(row) {
			fields[col] = row[i]
		}
	}
	return fields
}

func (t *memTable) column(name string) int {
	for i, c := range t.header {
		if c == name {
			return i
		}
	}
	return -1
}

// EnsureHeader implements Store.
func (m *MemoryStore) EnsureHeader(_ context.Context, name string, columns []string) error {
	if err := m.check("ensure_header"); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	t := m.table(name)
	switch {
	case EmptyHeader(t.header):
		t.header = append([]string(nil), columns...)
		return nil
	case SameHeader(t.header, columns):
		return nil
	default:
		return fmt.Errorf("%w: %q has %v", ErrHeaderMismatch, name, t.header)
	}
}

// FindRowByKey implements Store.
func (m *MemoryStore) FindRowByKey(_ context.Context, name, keyColumn, keyValue string) (Row, error) {
	if err := m.check("find"); err != nil {
		return Row{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	t := m.table(name)
	if EmptyHeader(t.header) && len(t.rows) == 0 {
		return Row{}, ErrNotFound
	}
	col := t.column(keyColumn)
	if col < 0 {
		return Row{}, fmt.Errorf("table %q: unknown column %q", name, keyColumn)
	}
	for i, r := range t.rows {
		if col < len(r) && r[col] == keyValue {
			return Row{Index: i + 2, Values: t.toFields(r)}, nil
		}
	}
	return Row{}, ErrNotFound
}

// InsertRow implements Store.
func (m *MemoryStore) InsertRow(_ context.Context, name string, fields map[string]string) (Row, error) {
	if err := m.check("insert"); err != nil {
		return Row{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	t := m.table(name)
	if EmptyHeader(t.header) {
		return Row{}, fmt.Errorf("table %q has no header", name)
	}
	t.rows = append(t.rows, Project(t.header, fields))
	return Row{Index: len(t.rows) + 1, Values: maps.Clone(fields)}, nil
}

// UpdateRow implements Store.
func (m *MemoryStore) UpdateRow(_ context.Context, name string, row Row, fields map[string]string) error {
	if err := m.check("update"); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	t := m.table(name)
	i := row.Index - 2
	if i < 0 || i >= len(t.rows) {
		return fmt.Errorf("table %q: row %d out of range", name, row.Index)
	}
	t.rows[i] = Project(t.header, fields)
	return nil
}
