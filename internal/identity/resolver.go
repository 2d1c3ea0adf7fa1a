package identity

import (
	"fmt"
	"io"
	"log/slog"
)

// Resolver runs a plan's pass cascade over in-memory snapshots. It performs
// no I/O and never mutates its inputs, so one Resolver may serve many runs.
type Resolver struct {
	plan   Plan
	logger *slog.Logger
}

type Option func(*Resolver)

func WithLogger(logger *slog.Logger) Option {
	return func(r *Resolver) {
		r.logger = logger
	}
}

// NewResolver applies plan defaults and validates the plan.
func NewResolver(plan Plan, opts ...Option) (*Resolver, error) {
	plan = plan.WithDefaults()
	if err := plan.Validate(); err != nil {
		return nil, err
	}

	r := &Resolver{
		plan:   plan,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Plan returns the effective plan, defaults applied.
func (r *Resolver) Plan() Plan {
	return r.plan
}

// WithPolicy returns a resolver sharing this plan but using policy.
func (r *Resolver) WithPolicy(policy Policy) (*Resolver, error) {
	if _, err := ParsePolicy(string(policy)); err != nil {
		return nil, err
	}
	clone := *r
	clone.plan.Policy = policy
	return &clone, nil
}

type indexKey struct {
	directory string
	field     string
	transform DerivationKind
}

func directoryKey(kind DerivationKind) KeyFunc {
	if kind == "" {
		return NormalizeValue
	}
	return Derivation{Kind: kind}.Derive
}

// Resolve enriches subjects against directories, keyed by the directory names
// the passes use. Structural problems abort before any subject is examined.
func (r *Resolver) Resolve(subjects *Table, directories map[string]*Table) (*Result, error) {
	if subjects == nil {
		return nil, fmt.Errorf("subject table is required")
	}
	if err := r.check(subjects, directories); err != nil {
		return nil, err
	}

	indexes, ambiguities, err := r.buildIndexes(directories)
	if err != nil {
		return nil, err
	}
	for _, a := range ambiguities {
		r.logger.Warn("ambiguous directory key",
			"directory", a.Directory,
			"field", a.Field,
			"key", string(a.Key),
			"candidates", a.Candidates,
		)
	}

	subs := r.derive(subjects)
	stats := Stats{
		Total:  len(subs),
		Passes: make([]PassCount, 0, len(r.plan.Passes)),
	}

	for _, pass := range r.plan.Passes {
		ix := indexes[indexKey{pass.Directory, pass.DirectoryField, pass.DirectoryKey}]
		matched := 0
		for i := range subs {
			s := &subs[i]
			if s.Outcome.State != StatePending {
				continue
			}
			entry, ok := ix.Lookup(s.key(pass.SubjectField))
			if !ok {
				continue
			}
			s.Outcome = Outcome{State: StateResolved, Pass: pass.Name, Entry: entry}
			matched++
		}
		stats.Passes = append(stats.Passes, PassCount{Pass: pass.Name, Matched: matched})
		r.logger.Debug("pass complete", "pass", pass.Name, "matched", matched)
	}

	records := make([]Row, 0, len(subs))
	for i := range subs {
		s := &subs[i]
		if s.Outcome.State == StatePending {
			s.Outcome = Outcome{State: StateTerminal}
			if r.plan.Policy == PolicyMatchOrDrop {
				stats.Dropped++
				continue
			}
			stats.Terminal++
		}
		records = append(records, r.render(s))
	}

	return &Result{
		Subjects:    subs,
		Records:     records,
		Stats:       stats,
		Ambiguities: ambiguities,
	}, nil
}

// check rejects runs whose inputs cannot satisfy the plan.
func (r *Resolver) check(subjects *Table, directories map[string]*Table) error {
	available := make(map[string]struct{}, len(r.plan.Derivations))
	for _, d := range r.plan.Derivations {
		if subjects.HasColumn(d.Target) {
			return planError("derivation target %q would overwrite a subject column", d.Target)
		}
		if _, ok := available[d.Source]; !ok && !subjects.HasColumn(d.Source) {
			return &ColumnError{Source: subjects.Name, Column: d.Source}
		}
		available[d.Target] = struct{}{}
	}

	for _, pass := range r.plan.Passes {
		dir, ok := directories[pass.Directory]
		if !ok || dir == nil {
			return planError("pass %q references unknown directory %q", pass.Name, pass.Directory)
		}
		if !dir.HasColumn(pass.DirectoryField) {
			return &ColumnError{Source: pass.Directory, Column: pass.DirectoryField}
		}
		if _, ok := available[pass.SubjectField]; !ok && !subjects.HasColumn(pass.SubjectField) {
			return &ColumnError{Source: subjects.Name, Column: pass.SubjectField}
		}
	}

	for _, f := range r.plan.Enrich {
		if subjects.HasColumn(f.Target) {
			return planError("enrichment target %q would overwrite a subject column", f.Target)
		}
	}
	if subjects.HasColumn(r.plan.ProvenanceField) {
		return planError("provenance field %q would overwrite a subject column", r.plan.ProvenanceField)
	}
	return nil
}

func (r *Resolver) buildIndexes(directories map[string]*Table) (map[indexKey]*Index, []Ambiguity, error) {
	indexes := make(map[indexKey]*Index, len(r.plan.Passes))
	var ambiguities []Ambiguity
	for _, pass := range r.plan.Passes {
		key := indexKey{pass.Directory, pass.DirectoryField, pass.DirectoryKey}
		if _, built := indexes[key]; built {
			continue
		}
		view := *directories[pass.Directory]
		view.Name = pass.Directory
		ix, err := BuildIndexWith(&view, pass.DirectoryField, r.plan.TieBreaks[pass.Directory], directoryKey(pass.DirectoryKey))
		if err != nil {
			return nil, nil, err
		}
		indexes[key] = ix
		ambiguities = append(ambiguities, ix.Ambiguities...)
	}
	return indexes, ambiguities, nil
}

// derive wraps each row as a pending subject and computes derived keys in plan order.
func (r *Resolver) derive(subjects *Table) []Subject {
	subs := make([]Subject, len(subjects.Rows))
	for i, row := range subjects.Rows {
		s := Subject{Row: row}
		if len(r.plan.Derivations) > 0 {
			s.Derived = make(map[string]Key, len(r.plan.Derivations))
			for _, d := range r.plan.Derivations {
				var raw any = row[d.Source]
				if k, ok := s.Derived[d.Source]; ok {
					raw = string(k)
				}
				s.Derived[d.Target] = d.Derive(raw)
			}
		}
		subs[i] = s
	}
	return subs
}

// render copies the subject row and attaches enrichment and provenance.
func (r *Resolver) render(s *Subject) Row {
	rec := make(Row, len(s.Row)+len(r.plan.Enrich)+1)
	for k, v := range s.Row {
		rec[k] = v
	}
	switch s.Outcome.State {
	case StateResolved:
		for _, f := range r.plan.Enrich {
			rec[f.Target] = s.Outcome.Entry[f.Source]
		}
		rec[r.plan.ProvenanceField] = s.Outcome.Pass
	case StateTerminal:
		for _, f := range r.plan.Enrich {
			rec[f.Target] = f.Sentinel
		}
		rec[r.plan.ProvenanceField] = r.plan.UnresolvedLabel
	}
	return rec
}
