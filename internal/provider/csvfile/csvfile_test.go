package csvfile

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rosterlink/internal/identity"
	"rosterlink/internal/provider"
)

func writeFile(t *testing.T, dir, name string, data []byte) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), data, 0o600))
}

func TestNew_RequiresDir(t *testing.T) {
	_, err := New("")
	assert.Error(t, err)
}

func TestProvider_Fetch(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "hr.csv", []byte(" smtp ,nt_id,full_name\n"+
		"a@x.com,a01,Alice A\n"+
		"b@x.com,,Bob B\n"+
		"c@x.com,c01\n"+
		"d@x.com,d01,Dan D,extra\n"))

	p, err := New(dir, WithID("hr-files"))
	require.NoError(t, err)
	assert.Equal(t, "hr-files", p.ID())

	t.Run("headers trimmed and empty cells null", func(t *testing.T) {
		out, err := p.Fetch(context.Background(), provider.Query{Dataset: "hr"})
		require.NoError(t, err)
		assert.Equal(t, []string{"smtp", "nt_id", "full_name"}, out.Columns)
		require.Len(t, out.Rows, 4)
		assert.Nil(t, out.Rows[1]["nt_id"])
	})

	t.Run("ragged rows padded and truncated", func(t *testing.T) {
		out, err := p.Fetch(context.Background(), provider.Query{Dataset: "hr"})
		require.NoError(t, err)
		assert.Nil(t, out.Rows[2]["full_name"])
		assert.Equal(t, identity.Row{"smtp": "d@x.com", "nt_id": "d01", "full_name": "Dan D"}, out.Rows[3])
	})

	t.Run("query semantics apply", func(t *testing.T) {
		out, err := p.Fetch(context.Background(), provider.Query{
			Dataset:   "hr",
			Operators: map[string]provider.Operator{"nt_id": provider.OpNotNull},
			Columns:   []string{"nt_id", "title"},
		})
		require.NoError(t, err)
		assert.Equal(t, []string{"nt_id"}, out.Columns)
		assert.Len(t, out.Rows, 3)
	})
}

func TestProvider_Encodings(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{
			name: "utf-8 with bom",
			data: append([]byte{0xEF, 0xBB, 0xBF}, []byte("name\nJosé\n")...),
		},
		{
			name: "utf-16le with bom",
			data: []byte{0xFF, 0xFE, 'n', 0, 'a', 0, 'm', 0, 'e', 0, '\n', 0, 'J', 0, 'o', 0, 's', 0, 0xE9, 0, '\n', 0},
		},
		{
			name: "latin-1 fallback",
			data: []byte("name\nJos\xe9\n"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			writeFile(t, dir, "people.csv", tt.data)
			p, err := New(dir)
			require.NoError(t, err)

			out, err := p.Fetch(context.Background(), provider.Query{Dataset: "people"})
			require.NoError(t, err)
			assert.Equal(t, []string{"name"}, out.Columns)
			require.Len(t, out.Rows, 1)
			assert.Equal(t, "José", out.Rows[0]["name"])
		})
	}
}

func TestProvider_Errors(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "empty.csv", nil)
	p, err := New(dir)
	require.NoError(t, err)

	t.Run("missing file", func(t *testing.T) {
		_, err := p.Fetch(context.Background(), provider.Query{Dataset: "absent"})
		assert.Equal(t, provider.ErrorNotFound, provider.GetCategory(err))
	})

	t.Run("empty file", func(t *testing.T) {
		_, err := p.Fetch(context.Background(), provider.Query{Dataset: "empty"})
		assert.Equal(t, provider.ErrorBadData, provider.GetCategory(err))
	})

	t.Run("path traversal rejected", func(t *testing.T) {
		_, err := p.Fetch(context.Background(), provider.Query{Dataset: "../etc/passwd"})
		assert.ErrorIs(t, err, provider.ErrInvalidQuery)
	})

	t.Run("cancelled context is unavailable", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := p.Fetch(ctx, provider.Query{Dataset: "empty"})
		assert.True(t, errors.Is(err, provider.ErrProviderUnavailable))
	})
}

func TestProvider_Health(t *testing.T) {
	p, err := New(t.TempDir())
	require.NoError(t, err)
	assert.NoError(t, p.Health(context.Background()))

	p, err = New(filepath.Join(t.TempDir(), "missing"))
	require.NoError(t, err)
	assert.ErrorIs(t, p.Health(context.Background()), provider.ErrProviderUnavailable)
}
