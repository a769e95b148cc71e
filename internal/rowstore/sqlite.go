package rowstore

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var schemaSQL string

// SQLite is a Client backed by a local SQLite database file.
type SQLite struct {
	db *sql.DB
}

var _ Client = (*SQLite)(nil)

// OpenSQLite opens or creates the database at path and applies the schema.
func OpenSQLite(path string) (*SQLite, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(4)
	db.SetConnMaxLifetime(time.Hour)

	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}
	return &SQLite{db: db}, nil
}

// Close closes the database.
func (s *SQLite) Close() error {
	return s.db.Close()
}

func (s *SQLite) Select(ctx context.Context, table string, q Query) ([]Row, error) {
	if err := checkIdent(table); err != nil {
		return nil, err
	}
	if err := checkIdent(q.Columns...); err != nil {
		return nil, err
	}

	cols := "*"
	if len(q.Columns) > 0 {
		cols = strings.Join(q.Columns, ", ")
	}
	where, args, err := whereClause(q.Filters)
	if err != nil {
		return nil, err
	}

	stmt := fmt.Sprintf("SELECT %s FROM %s%s", cols, table, where)
	if q.Order != nil {
		if err := checkIdent(q.Order.Column); err != nil {
			return nil, err
		}
		dir := "ASC"
		if q.Order.Desc {
			dir = "DESC"
		}
		stmt += fmt.Sprintf(" ORDER BY %s %s", q.Order.Column, dir)
	}
	if q.Limit > 0 {
		stmt += fmt.Sprintf(" LIMIT %d", q.Limit)
	}

	rows, err := s.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", table, err)
	}
	defer rows.Close()

	names, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("failed to read columns of %s: %w", table, err)
	}

	var out []Row
	for rows.Next() {
		vals := make([]any, len(names))
		ptrs := make([]any, len(names))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("failed to scan %s row: %w", table, err)
		}
		r := make(Row, len(names))
		for i, n := range names {
			if b, ok := vals[i].([]byte); ok {
				r[n] = string(b)
				continue
			}
			r[n] = vals[i]
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate %s rows: %w", table, err)
	}
	return out, nil
}

func (s *SQLite) Insert(ctx context.Context, table string, rows ...Row) error {
	return s.write(ctx, table, "", rows)
}

func (s *SQLite) Upsert(ctx context.Context, table, conflict string, rows ...Row) error {
	if conflict == "" {
		return fmt.Errorf("upsert into %s: conflict columns required", table)
	}
	return s.write(ctx, table, conflict, rows)
}

func (s *SQLite) write(ctx context.Context, table, conflict string, rows []Row) error {
	if err := checkIdent(table); err != nil {
		return err
	}
	if len(rows) == 0 {
		return nil
	}

	var keys []string
	if conflict != "" {
		for _, k := range strings.Split(conflict, ",") {
			keys = append(keys, strings.TrimSpace(k))
		}
		if err := checkIdent(keys...); err != nil {
			return err
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, r := range rows {
		cols := sortedColumns(r)
		if err := checkIdent(cols...); err != nil {
			return err
		}
		args := make([]any, len(cols))
		for i, c := range cols {
			if args[i], err = bindValue(r[c]); err != nil {
				return fmt.Errorf("failed to encode %s.%s: %w", table, c, err)
			}
		}

		stmt := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
			table, strings.Join(cols, ", "), placeholders(len(cols)))
		if len(keys) > 0 {
			stmt += fmt.Sprintf(" ON CONFLICT(%s) DO %s", strings.Join(keys, ", "), updateSet(cols, keys))
		}
		if _, err := tx.ExecContext(ctx, stmt, args...); err != nil {
			return fmt.Errorf("failed to write %s row: %w", table, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit %s rows: %w", table, err)
	}
	return nil
}

func (s *SQLite) Update(ctx context.Context, table string, values Row, filters ...Filter) error {
	if err := checkIdent(table); err != nil {
		return err
	}
	cols := sortedColumns(values)
	if len(cols) == 0 {
		return nil
	}
	if err := checkIdent(cols...); err != nil {
		return err
	}

	sets := make([]string, len(cols))
	args := make([]any, 0, len(cols)+len(filters))
	for i, c := range cols {
		sets[i] = c + " = ?"
		v, err := bindValue(values[c])
		if err != nil {
			return fmt.Errorf("failed to encode %s.%s: %w", table, c, err)
		}
		args = append(args, v)
	}
	where, wargs, err := whereClause(filters)
	if err != nil {
		return err
	}
	args = append(args, wargs...)

	stmt := fmt.Sprintf("UPDATE %s SET %s%s", table, strings.Join(sets, ", "), where)
	if _, err := s.db.ExecContext(ctx, stmt, args...); err != nil {
		return fmt.Errorf("failed to update %s: %w", table, err)
	}
	return nil
}

func whereClause(filters []Filter) (string, []any, error) {
	if len(filters) == 0 {
		return "", nil, nil
	}
	conds := make([]string, len(filters))
	args := make([]any, len(filters))
	for i, f := range filters {
		if err := checkIdent(f.Column); err != nil {
			return "", nil, err
		}
		v, err := bindValue(f.Value)
		if err != nil {
			return "", nil, err
		}
		conds[i] = f.Column + " = ?"
		args[i] = v
	}
	return " WHERE " + strings.Join(conds, " AND "), args, nil
}

func updateSet(cols, keys []string) string {
	var sets []string
	for _, c := range cols {
		if slices.Contains(keys, c) {
			continue
		}
		sets = append(sets, fmt.Sprintf("%s = excluded.%s", c, c))
	}
	if len(sets) == 0 {
		return "NOTHING"
	}
	return "UPDATE SET " + strings.Join(sets, ", ")
}

// bindValue maps Go values onto SQLite storage classes. Structured values
// are stored as JSON text.
func bindValue(v any) (any, error) {
	switch x := v.(type) {
	case nil, string, int, int64, float64, []byte:
		return x, nil
	case bool:
		if x {
			return int64(1), nil
		}
		return int64(0), nil
	case time.Time:
		return x.UTC().Format(time.RFC3339Nano), nil
	case json.RawMessage:
		return string(x), nil
	default:
		b, err := json.Marshal(x)
		if err != nil {
			return nil, err
		}
		return string(b), nil
	}
}

func sortedColumns(r Row) []string {
	cols := make([]string, 0, len(r))
	for c := range r {
		cols = append(cols, c)
	}
	sort.Strings(cols)
	return cols
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}
