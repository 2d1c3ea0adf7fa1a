package roster

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const export = "USER_NAME,USER_EMAIL,LAST_ACTIVITY,ANALYST_FUNCTIONS,NON_ANALYST_FUNCTIONS,ANALYST_PCT," +
	"ANALYST_USER_FLAG,ANALYST_THRESHOLD,ANALYST_ACTIONS_PER_DAY,ANALYST_ACTIONS_PER_ACTIVE_DAYS,ACTIVE_DAYS,EXTRA\n" +
	"alice@CORP,alice@x.com,2025-03-01 09:30:00,12,3.0,0.8,1,0.5,2.25,4.5,20,ignored\n" +
	"bob@CORP,,,,,,,,,,,\n"

func TestParse_Export(t *testing.T) {
	rows, err := Parse([]byte(export), DefaultColumns())
	require.NoError(t, err)
	require.Len(t, rows, 2)

	alice := rows[0]
	require.Len(t, alice, 11)
	assert.Equal(t, "alice@CORP", alice[0])
	assert.Equal(t, time.Date(2025, 3, 1, 9, 30, 0, 0, time.UTC), alice[2])
	assert.Equal(t, int64(12), alice[3])
	assert.Equal(t, int64(3), alice[4], "integral float renders as integer")
	assert.Equal(t, 0.8, alice[5])
	assert.Equal(t, int64(20), alice[10])

	bob := rows[1]
	assert.Equal(t, "bob@CORP", bob[0])
	for i := 1; i < len(bob); i++ {
		assert.Nil(t, bob[i], "column %d", i)
	}
}

func TestParse_HeaderMatching(t *testing.T) {
	cols := []Column{{Header: "ACTIVE_DAYS", Type: TypeInteger}, {Header: "USER_NAME", Type: TypeText}}
	rows, err := Parse([]byte("\xEF\xBB\xBF user_name , active_days\nalice,7\n"), cols)
	require.NoError(t, err)
	assert.Equal(t, [][]any{{int64(7), "alice"}}, rows)
}

func TestParse_Errors(t *testing.T) {
	t.Run("missing column", func(t *testing.T) {
		_, err := Parse([]byte("USER_NAME\nalice\n"), DefaultColumns())
		require.ErrorIs(t, err, ErrMissingColumn)
		assert.Contains(t, err.Error(), "USER_EMAIL")
		assert.Contains(t, err.Error(), "ACTIVE_DAYS")
	})

	t.Run("unparseable cell names the row", func(t *testing.T) {
		cols := []Column{{Header: "USER_NAME", Type: TypeText}, {Header: "ACTIVE_DAYS", Type: TypeInteger}}
		_, err := Parse([]byte("USER_NAME,ACTIVE_DAYS\nalice,7\nbob,seven\n"), cols)
		var rowErr *RowError
		require.ErrorAs(t, err, &rowErr)
		assert.Equal(t, 3, rowErr.Line)
		assert.Contains(t, err.Error(), `ACTIVE_DAYS: "seven" is not an integer`)
	})

	t.Run("fractional integer", func(t *testing.T) {
		cols := []Column{{Header: "ACTIVE_DAYS", Type: TypeInteger}}
		_, err := Parse([]byte("ACTIVE_DAYS\n2.5\n"), cols)
		assert.Error(t, err)
	})

	t.Run("empty file", func(t *testing.T) {
		_, err := Parse(nil, DefaultColumns())
		assert.ErrorContains(t, err, "no header row")
	})
}

func TestColumn_Coerce(t *testing.T) {
	ts := Column{Header: "LAST_ACTIVITY", Type: TypeTimestamp}
	for _, raw := range []string{"2025-03-01T09:30:00Z", "2025-03-01 09:30", "03/01/2025 09:30:00"} {
		v, err := ts.coerce(raw)
		require.NoError(t, err, raw)
		assert.Equal(t, time.Date(2025, 3, 1, 9, 30, 0, 0, time.UTC), v, raw)
	}
	_, err := ts.coerce("yesterday")
	assert.Error(t, err)

	v, err := Column{Header: "ANALYST_PCT", Type: TypeFloat}.coerce(" 0.25 ")
	require.NoError(t, err)
	assert.Equal(t, 0.25, v)
}

func TestLoader_CreateTableSQL(t *testing.T) {
	l := &Loader{schema: "license-dev", table: DefaultTable, columns: DefaultColumns()[:3]}
	assert.Equal(t,
		`CREATE TABLE IF NOT EXISTS "license-dev"."analyst_functions_users" (id BIGSERIAL PRIMARY KEY, "user_name" TEXT, "user_email" TEXT, "last_activity" TIMESTAMP)`,
		l.createTableSQL())
}
