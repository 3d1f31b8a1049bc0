package remote

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/hyperengineering/fieldsync/internal/types"
)

// Memory is an in-memory Service. It is safe for concurrent use and
// supports failure injection per table.
type Memory struct {
	mu       sync.Mutex
	tables   map[string]map[string]types.Row
	failures map[string]error
	calls    map[string]int
}

// NewMemory returns an empty Memory service.
func NewMemory() *Memory {
	return &Memory{
		tables:   make(map[string]map[string]types.Row),
		failures: make(map[string]error),
		calls:    make(map[string]int),
	}
}

// FailTable makes every call against table return err until cleared with
// a nil err.
func (m *Memory) FailTable(table string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		delete(m.failures, table)
		return
	}
	m.failures[table] = err
}

// Calls returns how many calls of op ("upsert", "update", "select") were made.
func (m *Memory) Calls(op string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[op]
}

// Put stores row directly, bypassing failure injection. It seeds
// server-authored data.
func (m *Memory) Put(table string, row types.Row) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rowsLocked(table)[row.String("id")] = row.Clone()
}

// Get returns a copy of the stored row.
func (m *Memory) Get(table, id string) (types.Row, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.tables[table][id]
	if !ok {
		return nil, false
	}
	return row.Clone(), true
}

// Len returns the number of rows stored for table.
func (m *Memory) Len(table string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.tables[table])
}

func (m *Memory) rowsLocked(table string) map[string]types.Row {
	rows, ok := m.tables[table]
	if !ok {
		rows = make(map[string]types.Row)
		m.tables[table] = rows
	}
	return rows
}

func (m *Memory) begin(op, table string) error {
	m.calls[op]++
	return m.failures[table]
}

// Upsert implements Service. Rows without an id get a generated one.
func (m *Memory) Upsert(ctx context.Context, table string, row types.Row) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.begin("upsert", table); err != nil {
		return "", err
	}

	row = row.Clone()
	id := row.String("id")
	if id == "" {
		id = uuid.NewString()
		row["id"] = id
	}
	if _, err := types.ParseTime(row.String("updated_at")); err != nil {
		return "", fmt.Errorf("%w: %s %s: updated_at: %v", ErrInvalidRow, table, id, err)
	}
	m.rowsLocked(table)[id] = row
	return id, nil
}

// Update implements Service.
func (m *Memory) Update(ctx context.Context, table string, patch types.Row, filter Filter) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.begin("update", table); err != nil {
		return err
	}

	for id, row := range m.tables[table] {
		if !matches(row, []Filter{filter}) {
			continue
		}
		next := row.Clone()
		for k, v := range patch {
			if k == "id" {
				continue
			}
			next[k] = v
		}
		m.tables[table][id] = next
	}
	return nil
}

// Select implements Service.
func (m *Memory) Select(ctx context.Context, table string, query Query) ([]types.Row, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.begin("select", table); err != nil {
		return nil, err
	}

	var out []types.Row
	for _, row := range m.tables[table] {
		if !matches(row, query.Filters) {
			continue
		}
		if query.UpdatedAfter != nil && !rowUpdatedAt(row).After(*query.UpdatedAfter) {
			continue
		}
		out = append(out, row.Clone())
	}

	sort.Slice(out, func(i, j int) bool {
		ti, tj := rowUpdatedAt(out[i]), rowUpdatedAt(out[j])
		if !ti.Equal(tj) {
			return ti.Before(tj)
		}
		return out[i].String("id") < out[j].String("id")
	})
	if query.Limit > 0 && len(out) > query.Limit {
		out = out[:query.Limit]
	}
	return out, nil
}

var _ Service = (*Memory)(nil)
