// Package plan loads resolution plans from YAML. A plan file carries the
// identity.Plan itself plus the provider queries that produce the subject
// table and every directory the passes name.
package plan

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"rosterlink/internal/identity"
	"rosterlink/internal/provider"
)

// Source names the provider and query producing one table.
type Source struct {
	Provider string
	Query    provider.Query
}

// Lookup is a single-record query keyed on one column, filled per request.
type Lookup struct {
	Source
	KeyField string
}

// DefaultLookupKey is the directory column holding the single-sign-on ID.
const DefaultLookupKey = "mysingle_id"

// File is a loaded plan file.
type File struct {
	Plan        identity.Plan
	Subjects    Source
	Directories map[string]Source
	// Employee is nil when the plan declares no employee lookup.
	Employee *Lookup
}

// DirectoryNames returns directory names in pass order.
func (f *File) DirectoryNames() []string {
	return f.Plan.Directories()
}

// Providers returns every provider ID the file's sources name, sorted.
func (f *File) Providers() []string {
	seen := map[string]struct{}{f.Subjects.Provider: {}}
	for _, src := range f.Directories {
		seen[src.Provider] = struct{}{}
	}
	if f.Employee != nil {
		seen[f.Employee.Provider] = struct{}{}
	}
	ids := make([]string, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Retarget returns a copy of f whose sources all read from providerID.
// Queries are unchanged, so a CSV export directory can stand in for the
// database it was exported from.
func (f *File) Retarget(providerID string) *File {
	out := *f
	out.Subjects.Provider = providerID
	out.Directories = make(map[string]Source, len(f.Directories))
	for name, src := range f.Directories {
		src.Provider = providerID
		out.Directories[name] = src
	}
	if f.Employee != nil {
		lookup := *f.Employee
		lookup.Provider = providerID
		out.Employee = &lookup
	}
	return &out
}

type sourceDoc struct {
	Provider  string            `yaml:"provider"`
	Dataset   string            `yaml:"dataset"`
	Filters   map[string]string `yaml:"filters"`
	Operators map[string]string `yaml:"operators"`
	Columns   []string          `yaml:"columns"`
	TieBreak  *tieBreakDoc      `yaml:"tie_break"`
}

type tieBreakDoc struct {
	PriorityField string `yaml:"priority_field"`
	PreferLowest  bool   `yaml:"prefer_lowest"`
}

type lookupDoc struct {
	Provider string            `yaml:"provider"`
	Dataset  string            `yaml:"dataset"`
	Filters  map[string]string `yaml:"filters"`
	Columns  []string          `yaml:"columns"`
	KeyField string            `yaml:"key_field"`
}

type passDoc struct {
	Name           string `yaml:"name"`
	SubjectField   string `yaml:"subject_field"`
	DirectoryField string `yaml:"directory_field"`
	Directory      string `yaml:"directory"`
	DirectoryKey   string `yaml:"directory_key"`
}

type derivationDoc struct {
	Kind   string `yaml:"kind"`
	Source string `yaml:"source"`
	Target string `yaml:"target"`
	From   string `yaml:"from"`
	To     string `yaml:"to"`
}

type enrichDoc struct {
	Target   string `yaml:"target"`
	Source   string `yaml:"source"`
	Sentinel string `yaml:"sentinel"`
}

type fileDoc struct {
	Provider        string               `yaml:"provider"`
	Policy          string               `yaml:"policy"`
	ProvenanceField string               `yaml:"provenance_field"`
	UnresolvedLabel string               `yaml:"unresolved_label"`
	Subjects        sourceDoc            `yaml:"subjects"`
	Directories     map[string]sourceDoc `yaml:"directories"`
	Passes          []passDoc            `yaml:"passes"`
	Derivations     []derivationDoc      `yaml:"derivations"`
	Enrich          []enrichDoc          `yaml:"enrich"`
	Employee        *lookupDoc           `yaml:"employee"`
}

// Load reads and parses the plan file at path.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read plan %s: %w", path, err)
	}
	f, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("plan %s: %w", path, err)
	}
	return f, nil
}

// Parse decodes a plan document. Unknown keys are rejected. Every error
// wraps identity.ErrInvalidPlan.
func Parse(data []byte) (*File, error) {
	var doc fileDoc
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: decode: %v", identity.ErrInvalidPlan, err)
	}

	policy, err := identity.ParsePolicy(doc.Policy)
	if err != nil {
		return nil, err
	}

	p := identity.Plan{
		Policy:          policy,
		ProvenanceField: doc.ProvenanceField,
		UnresolvedLabel: doc.UnresolvedLabel,
		TieBreaks:       make(map[string]identity.TieBreak),
	}
	for _, d := range doc.Passes {
		p.Passes = append(p.Passes, identity.Pass{
			Name:           d.Name,
			SubjectField:   d.SubjectField,
			DirectoryField: d.DirectoryField,
			Directory:      d.Directory,
			DirectoryKey:   identity.DerivationKind(d.DirectoryKey),
		})
	}
	for _, d := range doc.Derivations {
		p.Derivations = append(p.Derivations, identity.Derivation{
			Kind:   identity.DerivationKind(d.Kind),
			Source: d.Source,
			Target: d.Target,
			From:   d.From,
			To:     d.To,
		})
	}
	if doc.Enrich != nil {
		p.Enrich = make([]identity.EnrichField, 0, len(doc.Enrich))
		for _, d := range doc.Enrich {
			p.Enrich = append(p.Enrich, identity.EnrichField(d))
		}
	}
	p = p.WithDefaults()
	if err := p.Validate(); err != nil {
		return nil, err
	}

	subjects, err := toSource(doc.Provider, doc.Subjects)
	if err != nil {
		return nil, fmt.Errorf("%w: subjects: %v", identity.ErrInvalidPlan, err)
	}

	dirs := make(map[string]Source, len(doc.Directories))
	for name, d := range doc.Directories {
		src, err := toSource(doc.Provider, d)
		if err != nil {
			return nil, fmt.Errorf("%w: directory %q: %v", identity.ErrInvalidPlan, name, err)
		}
		if d.TieBreak != nil {
			p.TieBreaks[name] = identity.TieBreak(*d.TieBreak)
		}
		dirs[name] = src
	}

	for _, name := range p.Directories() {
		if _, ok := dirs[name]; !ok {
			return nil, fmt.Errorf("%w: directory %q used by a pass is not declared", identity.ErrInvalidPlan, name)
		}
	}
	for name, src := range dirs {
		dirs[name] = withRequiredColumns(src, p, name)
	}
	subjects = withSubjectColumns(subjects, p)

	f := &File{Plan: p, Subjects: subjects, Directories: dirs}
	if doc.Employee != nil {
		lookup, err := toLookup(doc.Provider, *doc.Employee)
		if err != nil {
			return nil, fmt.Errorf("%w: employee: %v", identity.ErrInvalidPlan, err)
		}
		f.Employee = lookup
	}
	return f, nil
}

func toLookup(defaultProvider string, d lookupDoc) (*Lookup, error) {
	src, err := toSource(defaultProvider, sourceDoc{
		Provider: d.Provider,
		Dataset:  d.Dataset,
		Filters:  d.Filters,
		Columns:  d.Columns,
	})
	if err != nil {
		return nil, err
	}
	key := d.KeyField
	if key == "" {
		key = DefaultLookupKey
	}
	if _, ok := src.Query.Filters[key]; ok {
		return nil, fmt.Errorf("key field %q must not also be a static filter", key)
	}
	return &Lookup{Source: src, KeyField: key}, nil
}

// Query returns the lookup query for one key value.
func (l *Lookup) Query(value string) provider.Query {
	q := l.Source.Query
	filters := make(map[string]string, len(q.Filters)+1)
	for k, v := range q.Filters {
		filters[k] = v
	}
	filters[l.KeyField] = value
	q.Filters = filters
	return q
}

func toSource(defaultProvider string, d sourceDoc) (Source, error) {
	src := Source{
		Provider: d.Provider,
		Query: provider.Query{
			Dataset: d.Dataset,
			Filters: d.Filters,
			Columns: d.Columns,
		},
	}
	if src.Provider == "" {
		src.Provider = defaultProvider
	}
	if src.Provider == "" {
		return Source{}, fmt.Errorf("provider is required")
	}
	if len(d.Operators) > 0 {
		src.Query.Operators = make(map[string]provider.Operator, len(d.Operators))
		for col, op := range d.Operators {
			src.Query.Operators[col] = provider.Operator(op)
		}
	}
	src.Query = src.Query.Normalized()
	if err := src.Query.Validate(); err != nil {
		return Source{}, err
	}
	return src, nil
}

// withRequiredColumns widens an explicit projection with every column the
// plan reads from the directory, so a trimmed column list cannot silently
// drop a join key. An empty projection already means every column.
func withRequiredColumns(src Source, p identity.Plan, directory string) Source {
	if len(src.Query.Columns) == 0 {
		return src
	}
	cols := append([]string(nil), src.Query.Columns...)
	for _, pass := range p.Passes {
		if pass.Directory == directory {
			cols = append(cols, pass.DirectoryField)
		}
	}
	for _, f := range p.Enrich {
		cols = append(cols, f.Source)
	}
	if tb, ok := p.TieBreaks[directory]; ok && tb.PriorityField != "" {
		cols = append(cols, tb.PriorityField)
	}
	src.Query.Columns = cols
	src.Query = src.Query.Normalized()
	return src
}

// withSubjectColumns is withRequiredColumns for the subject side: pass keys
// and derivation sources that are not themselves derived.
func withSubjectColumns(src Source, p identity.Plan) Source {
	if len(src.Query.Columns) == 0 {
		return src
	}
	derived := make(map[string]struct{}, len(p.Derivations))
	for _, d := range p.Derivations {
		derived[d.Target] = struct{}{}
	}
	cols := append([]string(nil), src.Query.Columns...)
	add := func(c string) {
		if _, ok := derived[c]; !ok {
			cols = append(cols, c)
		}
	}
	for _, d := range p.Derivations {
		add(d.Source)
	}
	for _, pass := range p.Passes {
		add(pass.SubjectField)
	}
	src.Query.Columns = cols
	src.Query = src.Query.Normalized()
	return src
}
