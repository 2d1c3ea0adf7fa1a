package identity

import (
	"cmp"
	"fmt"
	"sort"
	"strings"
	"time"
)

// TieBreak decides which entry a directory keeps when several share a key.
//
// Entries are ranked by PriorityField (greatest wins, or least with
// PreferLowest; nulls always lose; numbers rank below times, which rank
// below strings), then by the raw identifier (last sorted
// wins), then by the row's canonical encoding (last sorted wins). The ranking
// is total, so the kept entry never depends on input order.
type TieBreak struct {
	PriorityField string
	PreferLowest  bool
}

// Ambiguity reports a directory key shared by more than one entry.
type Ambiguity struct {
	Directory  string
	Field      string
	Key        Key
	Candidates int
}

func (a Ambiguity) Error() string {
	return fmt.Sprintf("%s.%s: %d entries share key %q", a.Directory, a.Field, a.Candidates, string(a.Key))
}

func (a Ambiguity) Unwrap() error {
	return ErrAmbiguousDirectoryKey
}

// Index maps normalized identifiers of one directory field to a single entry.
type Index struct {
	Directory   string
	Field       string
	Ambiguities []Ambiguity
	entries     map[Key]Row
}

// KeyFunc turns a raw directory value into an index key.
type KeyFunc func(raw any) Key

// BuildIndex deduplicates table on field. Rows with an absent key are skipped.
func BuildIndex(table *Table, field string, tb TieBreak) (*Index, error) {
	return BuildIndexWith(table, field, tb, NormalizeValue)
}

// BuildIndexWith is BuildIndex with a custom key function, used when a pass
// transforms the directory side of the join.
func BuildIndexWith(table *Table, field string, tb TieBreak, key KeyFunc) (*Index, error) {
	if table == nil {
		return nil, fmt.Errorf("directory table is required")
	}
	if !table.HasColumn(field) {
		return nil, &ColumnError{Source: table.Name, Column: field}
	}
	if tb.PriorityField != "" && !table.HasColumn(tb.PriorityField) {
		return nil, &ColumnError{Source: table.Name, Column: tb.PriorityField}
	}

	groups := make(map[Key][]Row, len(table.Rows))
	for _, row := range table.Rows {
		k := key(row[field])
		if k.IsAbsent() {
			continue
		}
		groups[k] = append(groups[k], row)
	}

	idx := &Index{
		Directory: table.Name,
		Field:     field,
		entries:   make(map[Key]Row, len(groups)),
	}
	for k, rows := range groups {
		kept := rows[0]
		for _, candidate := range rows[1:] {
			if tb.prefers(field, candidate, kept) {
				kept = candidate
			}
		}
		idx.entries[k] = kept
		if len(rows) > 1 {
			idx.Ambiguities = append(idx.Ambiguities, Ambiguity{
				Directory:  table.Name,
				Field:      field,
				Key:        k,
				Candidates: len(rows),
			})
		}
	}
	sort.Slice(idx.Ambiguities, func(i, j int) bool {
		return idx.Ambiguities[i].Key < idx.Ambiguities[j].Key
	})
	return idx, nil
}

// Lookup returns the entry for k. Absent keys never match.
func (ix *Index) Lookup(k Key) (Row, bool) {
	if ix == nil || k.IsAbsent() {
		return nil, false
	}
	row, ok := ix.entries[k]
	return row, ok
}

// Len returns the number of distinct keys.
func (ix *Index) Len() int {
	if ix == nil {
		return 0
	}
	return len(ix.entries)
}

// prefers reports whether a outranks b.
func (tb TieBreak) prefers(field string, a, b Row) bool {
	if tb.PriorityField != "" {
		pa, pb := a[tb.PriorityField], b[tb.PriorityField]
		switch {
		case pa == nil && pb != nil:
			return false
		case pa != nil && pb == nil:
			return true
		case pa != nil && pb != nil:
			if c := compareScalars(pa, pb); c != 0 {
				if tb.PreferLowest {
					return c < 0
				}
				return c > 0
			}
		}
	}
	ra, _ := scalarString(a[field])
	rb, _ := scalarString(b[field])
	if ra != rb {
		return ra > rb
	}
	return canonical(a) > canonical(b)
}

// compareScalars orders numbers before times before everything else, then
// compares within the class. Ranking by class first keeps the order total
// when a priority column mixes types.
func compareScalars(a, b any) int {
	ka, kb := scalarClass(a), scalarClass(b)
	if ka != kb {
		return cmp.Compare(ka, kb)
	}
	switch ka {
	case classNumber:
		fa, _ := asFloat(a)
		fb, _ := asFloat(b)
		return cmp.Compare(fa, fb)
	case classTime:
		return a.(time.Time).Compare(b.(time.Time))
	default:
		sa, _ := scalarString(a)
		sb, _ := scalarString(b)
		return strings.Compare(sa, sb)
	}
}

const (
	classNumber = iota
	classTime
	classOther
)

func scalarClass(v any) int {
	if _, ok := asFloat(v); ok {
		return classNumber
	}
	if _, ok := v.(time.Time); ok {
		return classTime
	}
	return classOther
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}

// canonical encodes a row with sorted columns.
func canonical(row Row) string {
	cols := make([]string, 0, len(row))
	for c := range row {
		cols = append(cols, c)
	}
	sort.Strings(cols)
	var b strings.Builder
	for _, c := range cols {
		s, ok := scalarString(row[c])
		if !ok {
			s = "\x00"
		}
		b.WriteString(c)
		b.WriteByte('=')
		b.WriteString(s)
		b.WriteByte('\x1f')
	}
	return b.String()
}
