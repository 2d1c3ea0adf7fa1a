package postgres

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rosterlink/internal/provider"
)

func TestNew_RequiresPool(t *testing.T) {
	_, err := New(nil)
	assert.Error(t, err)
}

func TestBuildSelect(t *testing.T) {
	table := pgx.Identifier{"license", "pageradm_employee_ghr"}
	available := []string{"mysingle_id", "nt_id", "full_name", "status"}

	t.Run("all columns without predicates", func(t *testing.T) {
		stmt, args, cols, err := buildSelect(table, available, provider.Query{Dataset: "pageradm_employee_ghr"})
		require.NoError(t, err)
		assert.Equal(t, `SELECT "mysingle_id", "nt_id", "full_name", "status" FROM "license"."pageradm_employee_ghr"`, stmt)
		assert.Empty(t, args)
		assert.Equal(t, available, cols)
	})

	t.Run("filters and operators in stable order", func(t *testing.T) {
		stmt, args, cols, err := buildSelect(table, available, provider.Query{
			Dataset:   "pageradm_employee_ghr",
			Filters:   map[string]string{"status": "active", "mysingle_id": "alice"},
			Operators: map[string]provider.Operator{"nt_id": provider.OpNotNull},
			Columns:   []string{"full_name", "title"},
		})
		require.NoError(t, err)
		assert.Equal(t, `SELECT "full_name" FROM "license"."pageradm_employee_ghr" `+
			`WHERE "mysingle_id"::text = $1 AND "status"::text = $2 AND "nt_id" IS NOT NULL`, stmt)
		assert.Equal(t, []any{"alice", "active"}, args)
		assert.Equal(t, []string{"full_name"}, cols)
	})

	t.Run("filter on unknown column", func(t *testing.T) {
		_, _, _, err := buildSelect(table, available, provider.Query{
			Dataset: "pageradm_employee_ghr",
			Filters: map[string]string{"region": "emea"},
		})
		assert.Error(t, err)
	})

	t.Run("identifiers are quoted", func(t *testing.T) {
		stmt, _, _, err := buildSelect(pgx.Identifier{"license", `x"; DROP TABLE y; --`}, available, provider.Query{
			Dataset: "x",
			Columns: []string{"nt_id"},
		})
		require.NoError(t, err)
		assert.Contains(t, stmt, `"x""; DROP TABLE y; --"`)
	})
}

func TestProvider_Table(t *testing.T) {
	p := &Provider{schema: "license"}
	assert.Equal(t, pgx.Identifier{"license", "employees"}, p.table("employees"))
	assert.Equal(t, pgx.Identifier{"hr", "employees"}, p.table("hr.employees"))
}

func TestProvider_Classify(t *testing.T) {
	p := &Provider{id: DefaultID}

	err := p.classify("employees", "query", &pgconn.PgError{Code: undefinedTable})
	assert.Equal(t, provider.ErrorNotFound, provider.GetCategory(err))

	err = p.classify("employees", "query", &pgconn.PgError{Code: "42703"})
	assert.Equal(t, provider.ErrorContractMismatch, provider.GetCategory(err))

	err = p.classify("employees", "acquire connection", errors.New("dial tcp 127.0.0.1:5432: connect: connection refused"))
	assert.ErrorIs(t, err, provider.ErrProviderUnavailable)

	err = p.classify("employees", "query", fmt.Errorf("read rows: %w", context.DeadlineExceeded))
	assert.Equal(t, provider.ErrorTimeout, provider.GetCategory(err))
	assert.ErrorIs(t, err, provider.ErrProviderUnavailable)

	err = p.classify("employees", "query", fmt.Errorf("read rows: %w", context.Canceled))
	assert.Equal(t, provider.ErrorCanceled, provider.GetCategory(err))
	assert.NotErrorIs(t, err, provider.ErrProviderUnavailable)
}
