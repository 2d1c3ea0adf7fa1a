// Package roster bulk-loads license usage exports into PostgreSQL.
package roster

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

type ColumnType string

const (
	TypeText      ColumnType = "text"
	TypeInteger   ColumnType = "integer"
	TypeFloat     ColumnType = "float"
	TypeTimestamp ColumnType = "timestamp"
)

// Column is one CSV header kept by the loader. The table column is the
// lowercased header.
type Column struct {
	Header string
	Type   ColumnType
}

func (c Column) Name() string {
	return strings.ToLower(c.Header)
}

func (c Column) sqlType() string {
	switch c.Type {
	case TypeInteger:
		return "BIGINT"
	case TypeFloat:
		return "DOUBLE PRECISION"
	case TypeTimestamp:
		return "TIMESTAMP"
	default:
		return "TEXT"
	}
}

// DefaultColumns is the analyst-functions export layout.
func DefaultColumns() []Column {
	return []Column{
		{Header: "USER_NAME", Type: TypeText},
		{Header: "USER_EMAIL", Type: TypeText},
		{Header: "LAST_ACTIVITY", Type: TypeTimestamp},
		{Header: "ANALYST_FUNCTIONS", Type: TypeInteger},
		{Header: "NON_ANALYST_FUNCTIONS", Type: TypeInteger},
		{Header: "ANALYST_PCT", Type: TypeFloat},
		{Header: "ANALYST_USER_FLAG", Type: TypeInteger},
		{Header: "ANALYST_THRESHOLD", Type: TypeFloat},
		{Header: "ANALYST_ACTIONS_PER_DAY", Type: TypeFloat},
		{Header: "ANALYST_ACTIONS_PER_ACTIVE_DAYS", Type: TypeFloat},
		{Header: "ACTIVE_DAYS", Type: TypeInteger},
	}
}

// Layouts tried in order for timestamp cells.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
	"01/02/2006 15:04:05",
	"01/02/2006 15:04",
	"01/02/2006",
}

// coerce converts one cell. Blank cells are NULL.
func (c Column) coerce(raw string) (any, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	switch c.Type {
	case TypeInteger:
		n, err := strconv.ParseInt(raw, 10, 64)
		if err == nil {
			return n, nil
		}
		// Exports written through a float-typed frame render integers as "3.0".
		f, ferr := strconv.ParseFloat(raw, 64)
		if ferr != nil || f != float64(int64(f)) {
			return nil, fmt.Errorf("%s: %q is not an integer", c.Header, raw)
		}
		return int64(f), nil
	case TypeFloat:
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, fmt.Errorf("%s: %q is not a number", c.Header, raw)
		}
		return f, nil
	case TypeTimestamp:
		for _, layout := range timestampLayouts {
			if t, err := time.Parse(layout, raw); err == nil {
				return t, nil
			}
		}
		return nil, fmt.Errorf("%s: %q is not a timestamp", c.Header, raw)
	default:
		return raw, nil
	}
}
