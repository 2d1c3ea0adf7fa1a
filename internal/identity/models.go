package identity

// Row is a flat record keyed by column name. A nil value is an explicit null.
type Row map[string]any

// Table is a rectangular result set as returned by an input provider.
// A column listed in Columns but missing from a row map reads as null.
type Table struct {
	Name    string
	Columns []string
	Rows    []Row
}

// HasColumn reports whether the table declares the named column.
func (t *Table) HasColumn(name string) bool {
	if t == nil {
		return false
	}
	for _, c := range t.Columns {
		if c == name {
			return true
		}
	}
	return false
}

// Len returns the number of rows.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.Rows)
}

// State is the resolution lifecycle of a subject.
type State int

const (
	// StatePending means no pass has been attempted or every attempted pass missed.
	StatePending State = iota
	// StateResolved means a pass matched and the subject carries a directory entry.
	StateResolved
	// StateTerminal means every pass was exhausted and the subject is confirmed absent.
	StateTerminal
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateResolved:
		return "resolved"
	case StateTerminal:
		return "terminal"
	default:
		return "unknown"
	}
}

// Outcome records how a subject was resolved. Pass and Entry are set only
// when State is StateResolved.
type Outcome struct {
	State State
	Pass  string
	Entry Row
}

// Subject is a roster row moving through the cascade. Row is the caller's
// input and is never written to; derived keys live alongside it.
type Subject struct {
	Row     Row
	Derived map[string]Key
	Outcome Outcome
}

// key returns the comparison key for field, preferring a derived key of the same name.
func (s *Subject) key(field string) Key {
	if k, ok := s.Derived[field]; ok {
		return k
	}
	return NormalizeValue(s.Row[field])
}

// PassCount is the number of subjects a single pass resolved.
type PassCount struct {
	Pass    string `json:"pass"`
	Matched int    `json:"matched"`
}

// Stats summarises a resolution run.
type Stats struct {
	Total    int         `json:"total"`
	Passes   []PassCount `json:"passes"`
	Terminal int         `json:"terminal"`
	Dropped  int         `json:"dropped"`
}

// Resolved returns the number of subjects matched by any pass.
func (s Stats) Resolved() int {
	n := 0
	for _, p := range s.Passes {
		n += p.Matched
	}
	return n
}

// Result is the outcome of one resolution run.
type Result struct {
	// Subjects holds every input subject, in input order, with its final outcome.
	Subjects []Subject
	// Records is the enriched output honouring the plan's policy.
	Records     []Row
	Stats       Stats
	Ambiguities []Ambiguity
}
