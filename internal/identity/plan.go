package identity

import "fmt"

// Policy selects what happens to subjects no pass resolves.
type Policy string

const (
	// PolicyRetainAll keeps unresolved subjects and classifies them terminally.
	PolicyRetainAll Policy = "retain-all"
	// PolicyMatchOrDrop excludes unresolved subjects from the output.
	PolicyMatchOrDrop Policy = "match-or-drop"
)

// ParsePolicy accepts the two policy names; empty means retain-all.
func ParsePolicy(s string) (Policy, error) {
	switch Policy(s) {
	case "", PolicyRetainAll:
		return PolicyRetainAll, nil
	case PolicyMatchOrDrop:
		return PolicyMatchOrDrop, nil
	default:
		return "", planError("unknown policy %q", s)
	}
}

// Sentinels rendered for terminal subjects.
const (
	SentinelTerminated = "Possibly Terminated"
	SentinelUnknown    = "Unknown"
)

const (
	DefaultProvenanceField = "match_source"
	DefaultUnresolvedLabel = "unresolved"
)

// Pass pairs a subject field with a directory field. SubjectField may name a
// derived key. DirectoryKey transforms directory values before indexing so
// both sides of the join share one key space; a pass on a name_fold target
// folds the directory side too unless DirectoryKey says otherwise.
type Pass struct {
	Name           string
	SubjectField   string
	DirectoryField string
	Directory      string
	DirectoryKey   DerivationKind
}

// EnrichField copies directory column Source onto subject column Target.
// Sentinel is rendered when the subject ends terminal.
type EnrichField struct {
	Target   string
	Source   string
	Sentinel string
}

// DefaultEnrichment is the HR attribute set the roster dashboard renders.
func DefaultEnrichment() []EnrichField {
	return []EnrichField{
		{Target: "full_name", Source: "full_name", Sentinel: SentinelTerminated},
		{Target: "status", Source: "status", Sentinel: SentinelUnknown},
		{Target: "cost_center_name", Source: "cost_center_name", Sentinel: SentinelUnknown},
		{Target: "dept_name", Source: "dept_name", Sentinel: SentinelUnknown},
		{Target: "title", Source: "title", Sentinel: SentinelUnknown},
	}
}

// Plan is the full configuration of a resolution run.
type Plan struct {
	Passes      []Pass
	Enrich      []EnrichField
	Policy      Policy
	Derivations []Derivation
	// TieBreaks is keyed by directory name.
	TieBreaks map[string]TieBreak
	// ProvenanceField receives the resolving pass name, or UnresolvedLabel.
	ProvenanceField string
	UnresolvedLabel string
}

// WithDefaults fills optional fields.
func (p Plan) WithDefaults() Plan {
	if p.Policy == "" {
		p.Policy = PolicyRetainAll
	}
	if p.ProvenanceField == "" {
		p.ProvenanceField = DefaultProvenanceField
	}
	if p.UnresolvedLabel == "" {
		p.UnresolvedLabel = DefaultUnresolvedLabel
	}
	if p.Enrich == nil {
		p.Enrich = DefaultEnrichment()
	}
	enrich := make([]EnrichField, len(p.Enrich))
	for i, f := range p.Enrich {
		if f.Source == "" {
			f.Source = f.Target
		}
		if f.Sentinel == "" {
			f.Sentinel = SentinelUnknown
		}
		enrich[i] = f
	}
	p.Enrich = enrich

	folded := make(map[string]struct{})
	for _, d := range p.Derivations {
		if d.Kind == DeriveNameFold {
			folded[d.Target] = struct{}{}
		}
	}
	passes := make([]Pass, len(p.Passes))
	for i, pass := range p.Passes {
		if _, ok := folded[pass.SubjectField]; ok && pass.DirectoryKey == "" {
			pass.DirectoryKey = DeriveNameFold
		}
		passes[i] = pass
	}
	p.Passes = passes
	return p
}

// Validate checks the plan on its own, without any input tables.
func (p Plan) Validate() error {
	if len(p.Passes) == 0 {
		return planError("at least one pass is required")
	}
	if _, err := ParsePolicy(string(p.Policy)); err != nil {
		return err
	}

	names := make(map[string]struct{}, len(p.Passes))
	for i, pass := range p.Passes {
		if pass.Name == "" || pass.SubjectField == "" || pass.DirectoryField == "" || pass.Directory == "" {
			return planError("pass %d needs name, subject field, directory field and directory", i+1)
		}
		if _, dup := names[pass.Name]; dup {
			return planError("duplicate pass name %q", pass.Name)
		}
		switch pass.DirectoryKey {
		case "", DeriveLocalPart, DeriveStripRealm, DeriveNameFold:
		default:
			return planError("pass %q: directory key %q is not supported", pass.Name, pass.DirectoryKey)
		}
		names[pass.Name] = struct{}{}
	}

	targets := make(map[string]struct{}, len(p.Enrich))
	for _, f := range p.Enrich {
		if f.Target == "" {
			return planError("enrichment field needs a target")
		}
		if _, dup := targets[f.Target]; dup {
			return planError("duplicate enrichment target %q", f.Target)
		}
		targets[f.Target] = struct{}{}
	}
	if _, clash := targets[p.ProvenanceField]; clash && p.ProvenanceField != "" {
		return planError("provenance field %q is also an enrichment target", p.ProvenanceField)
	}

	derived := make(map[string]struct{}, len(p.Derivations))
	for _, d := range p.Derivations {
		if err := d.validate(); err != nil {
			return err
		}
		if _, dup := derived[d.Target]; dup {
			return planError("duplicate derivation target %q", d.Target)
		}
		derived[d.Target] = struct{}{}
	}
	return nil
}

// Directories returns the distinct directory names in pass order.
func (p Plan) Directories() []string {
	seen := make(map[string]struct{}, len(p.Passes))
	var out []string
	for _, pass := range p.Passes {
		if _, ok := seen[pass.Directory]; ok {
			continue
		}
		seen[pass.Directory] = struct{}{}
		out = append(out, pass.Directory)
	}
	return out
}

func (p Pass) String() string {
	return fmt.Sprintf("%s(%s→%s.%s)", p.Name, p.SubjectField, p.Directory, p.DirectoryField)
}
