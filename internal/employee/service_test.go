package employee

//go:generate mockgen -source=service.go -destination=mocks/mocks.go -package=mocks Fetcher

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"rosterlink/internal/employee/mocks"
	"rosterlink/internal/identity"
	"rosterlink/internal/identity/plan"
	"rosterlink/internal/provider"
	dErrors "rosterlink/pkg/domain-errors"
)

func testLookup() *plan.Lookup {
	return &plan.Lookup{
		Source: plan.Source{
			Provider: "postgres",
			Query: provider.Query{
				Dataset: "pageradm_employee_ghr",
				Filters: map[string]string{"MLR": "L"},
				Columns: []string{"full_name", "mysingle_id"},
			},
		},
		KeyField: plan.DefaultLookupKey,
	}
}

func TestNew(t *testing.T) {
	ctrl := gomock.NewController(t)
	fetcher := mocks.NewMockFetcher(ctrl)

	_, err := New(nil, testLookup())
	assert.ErrorContains(t, err, "fetcher is required")

	_, err = New(fetcher, nil)
	assert.ErrorContains(t, err, "employee lookup is required")
}

func TestLookup(t *testing.T) {
	ctrl := gomock.NewController(t)
	fetcher := mocks.NewMockFetcher(ctrl)
	svc, err := New(fetcher, testLookup())
	require.NoError(t, err)

	t.Run("first matching row plus user", func(t *testing.T) {
		fetcher.EXPECT().Fetch(gomock.Any(), "postgres", provider.Query{
			Dataset: "pageradm_employee_ghr",
			Filters: map[string]string{"MLR": "L", "mysingle_id": "j.doe"},
			Columns: []string{"full_name", "mysingle_id"},
		}).Return(&identity.Table{
			Columns: []string{"full_name", "mysingle_id"},
			Rows: []identity.Row{
				{"full_name": "Jane Doe", "mysingle_id": "j.doe"},
				{"full_name": "Jane Doe (old)", "mysingle_id": "j.doe"},
			},
		}, nil)

		row, err := svc.Lookup(context.Background(), " j.doe ")
		require.NoError(t, err)
		assert.Equal(t, identity.Row{"full_name": "Jane Doe", "mysingle_id": "j.doe", "user": "j.doe"}, row)
	})

	t.Run("unknown requester yields empty row", func(t *testing.T) {
		fetcher.EXPECT().Fetch(gomock.Any(), "postgres", gomock.Any()).
			Return(&identity.Table{Columns: []string{"full_name", "mysingle_id"}}, nil)

		row, err := svc.Lookup(context.Background(), "ghost")
		require.NoError(t, err)
		assert.Empty(t, row)
		assert.NotNil(t, row)
	})

	t.Run("provider outage", func(t *testing.T) {
		fetcher.EXPECT().Fetch(gomock.Any(), "postgres", gomock.Any()).
			Return(nil, provider.NewError(provider.ErrorOutage, "postgres", "pageradm_employee_ghr", "down", nil))

		_, err := svc.Lookup(context.Background(), "j.doe")
		assert.True(t, dErrors.HasCode(err, dErrors.CodeUnavailable))
		assert.ErrorIs(t, err, provider.ErrProviderUnavailable)
	})

	t.Run("other provider failure is internal", func(t *testing.T) {
		fetcher.EXPECT().Fetch(gomock.Any(), "postgres", gomock.Any()).
			Return(nil, provider.NewError(provider.ErrorContractMismatch, "postgres", "pageradm_employee_ghr", "no column", nil))

		_, err := svc.Lookup(context.Background(), "j.doe")
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInternal))
	})

	t.Run("blank requester", func(t *testing.T) {
		_, err := svc.Lookup(context.Background(), "  ")
		assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))
	})
}
