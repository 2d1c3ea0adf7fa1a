package provider

import (
	"fmt"

	"rosterlink/internal/identity"
)

// Select answers q over an already loaded table. It is the shared query
// engine for providers that hold whole datasets in memory.
//
// Filters compare the stringified cell to the filter value exactly; a null
// cell never equals anything. Filters and operators on columns the table does
// not have are contract mismatches. Projected columns that do not exist are
// skipped.
func Select(providerID string, src *identity.Table, q Query) (*identity.Table, error) {
	q = q.Normalized()
	if err := q.Validate(); err != nil {
		return nil, NewError(ErrorContractMismatch, providerID, q.Dataset, "invalid query", err)
	}
	for col := range q.Filters {
		if !src.HasColumn(col) {
			return nil, NewError(ErrorContractMismatch, providerID, q.Dataset,
				fmt.Sprintf("filter on unknown column %q", col), nil)
		}
	}
	for col := range q.Operators {
		if !src.HasColumn(col) {
			return nil, NewError(ErrorContractMismatch, providerID, q.Dataset,
				fmt.Sprintf("operator on unknown column %q", col), nil)
		}
	}

	columns := project(src, q.Columns)
	out := &identity.Table{Name: q.Dataset, Columns: columns}
	for _, row := range src.Rows {
		if !matches(row, q) {
			continue
		}
		rec := make(identity.Row, len(columns))
		for _, c := range columns {
			rec[c] = row[c]
		}
		out.Rows = append(out.Rows, rec)
	}
	return out, nil
}

func project(src *identity.Table, wanted []string) []string {
	if len(wanted) == 0 {
		return append([]string(nil), src.Columns...)
	}
	cols := make([]string, 0, len(wanted))
	for _, c := range wanted {
		if src.HasColumn(c) {
			cols = append(cols, c)
		}
	}
	return cols
}

func matches(row identity.Row, q Query) bool {
	for col, want := range q.Filters {
		v := row[col]
		if v == nil || fmt.Sprint(v) != want {
			return false
		}
	}
	for col := range q.Operators {
		// OpNotNull is the only operator Validate lets through.
		if row[col] == nil {
			return false
		}
	}
	return true
}
