package plan

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rosterlink/internal/identity"
	"rosterlink/internal/provider"
)

func TestLoad_RosterPlan(t *testing.T) {
	f, err := Load(filepath.Join("testdata", "roster.yaml"))
	require.NoError(t, err)

	p := f.Plan
	assert.Equal(t, identity.PolicyRetainAll, p.Policy)
	assert.Equal(t, identity.DefaultProvenanceField, p.ProvenanceField)
	assert.Equal(t, identity.DefaultEnrichment(), p.Enrich)
	require.Len(t, p.Passes, 2)
	assert.Equal(t, identity.Pass{Name: "email", SubjectField: "user_email", DirectoryField: "smtp", Directory: "hr"}, p.Passes[0])
	assert.Equal(t, "login", p.Passes[1].SubjectField)
	assert.Equal(t, []identity.Derivation{{Kind: identity.DeriveStripRealm, Source: "user_name", Target: "login"}}, p.Derivations)
	assert.Equal(t, identity.TieBreak{PriorityField: "ghr_id"}, p.TieBreaks["hr"])

	assert.Equal(t, "postgres", f.Subjects.Provider)
	assert.Equal(t, "analyst_functions_users", f.Subjects.Query.Dataset)

	hr := f.Directories["hr"]
	assert.Equal(t, "postgres", hr.Provider)
	assert.Equal(t, map[string]string{"MLR": "L"}, hr.Query.Filters)
	assert.Equal(t, map[string]provider.Operator{"smtp": provider.OpNotNull}, hr.Query.Operators)
	assert.Contains(t, hr.Query.Columns, "ghr_id", "tie-break column is always fetched")
	assert.Equal(t, []string{"hr"}, f.DirectoryNames())

	require.NotNil(t, f.Employee)
	assert.Equal(t, "mysingle_id", f.Employee.KeyField)
	q := f.Employee.Query("j.doe")
	assert.Equal(t, map[string]string{"MLR": "L", "mysingle_id": "j.doe"}, q.Filters)
	assert.Equal(t, map[string]string{"MLR": "L"}, f.Employee.Source.Query.Filters, "lookup query must not mutate the template")
}

func TestParse_EmployeeLookup(t *testing.T) {
	base := `
provider: memory
subjects: {dataset: users}
directories:
  hr: {dataset: employees}
passes:
  - {name: email, subject_field: email, directory_field: smtp, directory: hr}
`
	t.Run("absent section", func(t *testing.T) {
		f, err := Parse([]byte(base))
		require.NoError(t, err)
		assert.Nil(t, f.Employee)
	})

	t.Run("key field defaults", func(t *testing.T) {
		f, err := Parse([]byte(base + "employee: {dataset: employees}\n"))
		require.NoError(t, err)
		require.NotNil(t, f.Employee)
		assert.Equal(t, DefaultLookupKey, f.Employee.KeyField)
		assert.Equal(t, "memory", f.Employee.Provider)
	})

	t.Run("key field cannot be a static filter", func(t *testing.T) {
		_, err := Parse([]byte(base + "employee: {dataset: employees, filters: {mysingle_id: x}}\n"))
		assert.ErrorIs(t, err, identity.ErrInvalidPlan)
	})
}

func TestParse(t *testing.T) {
	t.Run("per-source provider overrides the default", func(t *testing.T) {
		f, err := Parse([]byte(`
provider: csv
subjects: {dataset: roster, provider: memory}
directories:
  hr: {dataset: hr}
passes:
  - {name: email, subject_field: email, directory_field: smtp, directory: hr}
`))
		require.NoError(t, err)
		assert.Equal(t, "memory", f.Subjects.Provider)
		assert.Equal(t, "csv", f.Directories["hr"].Provider)
		assert.Empty(t, f.Directories["hr"].Query.Columns)
	})

	t.Run("explicit enrichment with sentinels", func(t *testing.T) {
		f, err := Parse([]byte(`
provider: csv
policy: match-or-drop
subjects: {dataset: roster}
directories:
  hr: {dataset: hr, columns: [smtp]}
passes:
  - {name: email, subject_field: email, directory_field: smtp, directory: hr}
enrich:
  - {target: employee_name, source: full_name, sentinel: Possibly Terminated}
  - {target: org}
`))
		require.NoError(t, err)
		assert.Equal(t, identity.PolicyMatchOrDrop, f.Plan.Policy)
		assert.Equal(t, []identity.EnrichField{
			{Target: "employee_name", Source: "full_name", Sentinel: identity.SentinelTerminated},
			{Target: "org", Source: "org", Sentinel: identity.SentinelUnknown},
		}, f.Plan.Enrich)
		assert.Equal(t, []string{"smtp", "full_name", "org"}, f.Directories["hr"].Query.Columns)
	})

	t.Run("subject projection keeps join sources", func(t *testing.T) {
		f, err := Parse([]byte(`
provider: csv
subjects: {dataset: roster, columns: [active_days]}
directories:
  hr: {dataset: hr}
derivations:
  - {kind: local_part, source: user_email, target: email_local}
passes:
  - {name: local, subject_field: email_local, directory_field: mysingle_id, directory: hr}
`))
		require.NoError(t, err)
		assert.Equal(t, []string{"active_days", "user_email"}, f.Subjects.Query.Columns)
	})

	invalid := []struct {
		name string
		doc  string
	}{
		{name: "unknown key", doc: `
provider: csv
subject: {dataset: roster}
passes: [{name: a, subject_field: a, directory_field: b, directory: hr}]
`},
		{name: "pass names undeclared directory", doc: `
provider: csv
subjects: {dataset: roster}
passes: [{name: a, subject_field: a, directory_field: b, directory: hr}]
`},
		{name: "missing provider", doc: `
subjects: {dataset: roster}
directories: {hr: {dataset: hr}}
passes: [{name: a, subject_field: a, directory_field: b, directory: hr}]
`},
		{name: "bad operator", doc: `
provider: csv
subjects: {dataset: roster}
directories: {hr: {dataset: hr, operators: {smtp: isnull}}}
passes: [{name: a, subject_field: a, directory_field: b, directory: hr}]
`},
		{name: "unknown policy", doc: `
provider: csv
policy: keep-half
subjects: {dataset: roster}
directories: {hr: {dataset: hr}}
passes: [{name: a, subject_field: a, directory_field: b, directory: hr}]
`},
		{name: "no passes", doc: `
provider: csv
subjects: {dataset: roster}
`},
		{name: "empty document", doc: ``},
	}
	for _, tt := range invalid {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.doc))
			assert.ErrorIs(t, err, identity.ErrInvalidPlan)
		})
	}
}

func TestParse_DirectoryKey(t *testing.T) {
	base := `
provider: memory
subjects: {dataset: users}
directories:
  hr: {dataset: employees}
derivations:
  - {kind: name_fold, source: display_name, target: folded_name}
`
	t.Run("name folded passes fold the directory side too", func(t *testing.T) {
		f, err := Parse([]byte(base + "passes: [{name: name, subject_field: folded_name, directory_field: full_name, directory: hr}]\n"))
		require.NoError(t, err)
		assert.Equal(t, identity.DeriveNameFold, f.Plan.Passes[0].DirectoryKey)
	})

	t.Run("explicit key is kept", func(t *testing.T) {
		f, err := Parse([]byte(base + "passes: [{name: name, subject_field: folded_name, directory_field: login, directory: hr, directory_key: strip_realm}]\n"))
		require.NoError(t, err)
		assert.Equal(t, identity.DeriveStripRealm, f.Plan.Passes[0].DirectoryKey)
	})

	t.Run("unsupported key is rejected", func(t *testing.T) {
		_, err := Parse([]byte(base + "passes: [{name: name, subject_field: folded_name, directory_field: full_name, directory: hr, directory_key: domain_rewrite}]\n"))
		assert.ErrorIs(t, err, identity.ErrInvalidPlan)
	})
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestFile_Retarget(t *testing.T) {
	f, err := Load(filepath.Join("testdata", "roster.yaml"))
	require.NoError(t, err)
	assert.Equal(t, []string{"postgres"}, f.Providers())

	csv := f.Retarget("csv")
	assert.Equal(t, []string{"csv"}, csv.Providers())
	assert.Equal(t, "csv", csv.Directories["hr"].Provider)
	assert.Equal(t, "csv", csv.Employee.Provider)
	assert.Equal(t, f.Directories["hr"].Query, csv.Directories["hr"].Query)

	assert.Equal(t, "postgres", f.Directories["hr"].Provider, "original is untouched")
	assert.Equal(t, "postgres", f.Employee.Provider)
}
