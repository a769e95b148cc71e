package rowstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strconv"
)

// Table names used by inboxindex.
const (
	TableTokens       = "gm_tokens"
	TableMessageIndex = "gmail_message_index"
	TableMessages     = "gmail_messages"
)

// Row is one table row keyed by column name.
type Row map[string]any

// Filter restricts a query or update to rows whose Column equals Value.
type Filter struct {
	Column string
	Value  any
}

// Eq returns an equality filter.
func Eq(column string, value any) Filter {
	return Filter{Column: column, Value: value}
}

// Order sorts query results by a single column.
type Order struct {
	Column string
	Desc   bool
}

// Query describes a select. Empty Columns selects every column; a zero
// Limit returns all matching rows.
type Query struct {
	Columns []string
	Filters []Filter
	Order   *Order
	Limit   int
}

// Client is the table-oriented interface to the row-store backend.
type Client interface {
	Select(ctx context.Context, table string, q Query) ([]Row, error)
	Insert(ctx context.Context, table string, rows ...Row) error
	// Upsert inserts rows, replacing the supplied columns of any row that
	// conflicts on the comma-separated conflict columns.
	Upsert(ctx context.Context, table, conflict string, rows ...Row) error
	Update(ctx context.Context, table string, values Row, filters ...Filter) error
}

// ErrInvalidIdentifier is returned for table or column names that are not
// plain lower-case identifiers.
var ErrInvalidIdentifier = errors.New("invalid identifier")

var identRe = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

func checkIdent(names ...string) error {
	for _, n := range names {
		if !identRe.MatchString(n) {
			return fmt.Errorf("%w: %q", ErrInvalidIdentifier, n)
		}
	}
	return nil
}

// String reads a text column. Missing or NULL values yield "".
func String(row Row, column string) string {
	switch v := row[column].(type) {
	case nil:
		return ""
	case string:
		return v
	case []byte:
		return string(v)
	default:
		return fmt.Sprint(v)
	}
}

// Int64 reads an integer column regardless of how the backend decoded it.
func Int64(row Row, column string) int64 {
	switch v := row[column].(type) {
	case int64:
		return v
	case int:
		return int64(v)
	case int32:
		return int64(v)
	case float64:
		return int64(v)
	case json.Number:
		n, err := v.Int64()
		if err != nil {
			f, _ := v.Float64()
			return int64(f)
		}
		return n
	case string:
		n, _ := strconv.ParseInt(v, 10, 64)
		return n
	default:
		return 0
	}
}

// Bool reads a boolean column. SQLite stores booleans as integers.
func Bool(row Row, column string) bool {
	switch v := row[column].(type) {
	case bool:
		return v
	case int64:
		return v != 0
	case int:
		return v != 0
	case float64:
		return v != 0
	case json.Number:
		return v.String() != "0"
	case string:
		b, _ := strconv.ParseBool(v)
		return b
	default:
		return false
	}
}

// DecodeJSON decodes a JSON column into dst. The column may hold encoded
// text (SQLite, text columns) or an already decoded value (jsonb through
// PostgREST). It reports false when the column is NULL or missing.
func DecodeJSON(row Row, column string, dst any) (bool, error) {
	var raw []byte
	switch v := row[column].(type) {
	case nil:
		return false, nil
	case string:
		raw = []byte(v)
	case []byte:
		raw = v
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return false, fmt.Errorf("failed to re-encode column %s: %w", column, err)
		}
		raw = b
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return false, fmt.Errorf("failed to decode column %s: %w", column, err)
	}
	return true, nil
}
