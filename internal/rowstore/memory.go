package rowstore

import (
	"context"
	"fmt"
	"maps"
	"sort"
	"strings"
	"sync"
)

// Memory is an in-process Client. It backs dry runs and tests.
type Memory struct {
	mu     sync.Mutex
	tables map[string][]Row
}

var _ Client = (*Memory)(nil)

// NewMemory returns an empty in-memory row store.
func NewMemory() *Memory {
	return &Memory{tables: make(map[string][]Row)}
}

// Rows returns a copy of every row in table, in insertion order.
func (m *Memory) Rows(table string) []Row {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]Row, 0, len(m.tables[table]))
	for _, r := range m.tables[table] {
		out = append(out, maps.Clone(r))
	}
	return out
}

func (m *Memory) Select(ctx context.Context, table string, q Query) ([]Row, error) {
	if err := checkIdent(table); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []Row
	for _, r := range m.tables[table] {
		if !matches(r, q.Filters) {
			continue
		}
		out = append(out, project(r, q.Columns))
	}

	if q.Order != nil {
		col, desc := q.Order.Column, q.Order.Desc
		sort.SliceStable(out, func(i, j int) bool {
			if desc {
				return less(out[j][col], out[i][col])
			}
			return less(out[i][col], out[j][col])
		})
	}
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

func (m *Memory) Insert(ctx context.Context, table string, rows ...Row) error {
	if err := checkIdent(table); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, r := range rows {
		m.tables[table] = append(m.tables[table], maps.Clone(r))
	}
	return nil
}

func (m *Memory) Upsert(ctx context.Context, table, conflict string, rows ...Row) error {
	if err := checkIdent(table); err != nil {
		return err
	}
	keys := strings.Split(conflict, ",")
	for i := range keys {
		keys[i] = strings.TrimSpace(keys[i])
	}
	if err := checkIdent(keys...); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for _, r := range rows {
		filters := make([]Filter, 0, len(keys))
		for _, k := range keys {
			v, ok := r[k]
			if !ok {
				return fmt.Errorf("upsert into %s: row missing conflict column %s", table, k)
			}
			filters = append(filters, Eq(k, v))
		}

		replaced := false
		for i, existing := range m.tables[table] {
			if matches(existing, filters) {
				merged := maps.Clone(existing)
				maps.Copy(merged, r)
				m.tables[table][i] = merged
				replaced = true
				break
			}
		}
		if !replaced {
			m.tables[table] = append(m.tables[table], maps.Clone(r))
		}
	}
	return nil
}

func (m *Memory) Update(ctx context.Context, table string, values Row, filters ...Filter) error {
	if err := checkIdent(table); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	for i, r := range m.tables[table] {
		if matches(r, filters) {
			merged := maps.Clone(r)
			maps.Copy(merged, values)
			m.tables[table][i] = merged
		}
	}
	return nil
}

func matches(r Row, filters []Filter) bool {
	for _, f := range filters {
		if !equal(r[f.Column], f.Value) {
			return false
		}
	}
	return true
}

func project(r Row, columns []string) Row {
	if len(columns) == 0 {
		return maps.Clone(r)
	}
	out := make(Row, len(columns))
	for _, c := range columns {
		if v, ok := r[c]; ok {
			out[c] = v
		}
	}
	return out
}

func equal(a, b any) bool {
	if ab, ok := a.(bool); ok {
		if bb, ok := b.(bool); ok {
			return ab == bb
		}
	}
	if an, ok := asInt(a); ok {
		if bn, ok := asInt(b); ok {
			return an == bn
		}
	}
	return fmt.Sprint(a) == fmt.Sprint(b)
}

func less(a, b any) bool {
	if an, ok := asInt(a); ok {
		if bn, ok := asInt(b); ok {
			return an < bn
		}
	}
	return fmt.Sprint(a) < fmt.Sprint(b)
}

func asInt(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	default:
		return 0, false
	}
}
