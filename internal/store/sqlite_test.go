package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridian-steel/registry-cli/internal/model"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	st, err := NewSQLite(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func sampleCompany(name, abnValue string) model.Company {
	return model.Company{
		Name: name,
		ABN:  abnValue,
		Address: model.Address{
			Street:   "12 Wharf Rd",
			City:     "Newcastle",
			State:    "NSW",
			Postcode: "2300",
			Country:  "Australia",
		},
		Contact: model.Contact{
			Name:  "Dana Walsh",
			Email: "dana@example.com",
			Phone: "+61 2 5550 1234",
		},
		CreatedBy:  "dana@example.com",
		SuperAdmin: "dana@example.com",
	}
}

func TestSQLite_CreateAndGetCompany(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	created, err := st.CreateCompany(ctx, sampleCompany("Beta Steel", "51824753556"))
	require.NoError(t, err)
	require.NotEmpty(t, created.ID)
	assert.Equal(t, model.CompanyPending, created.Status)

	got, err := st.GetCompany(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "Beta Steel", got.Name)
	assert.Equal(t, "51824753556", got.ABN)
	assert.Equal(t, "NSW", got.Address.State)
	assert.Equal(t, "dana@example.com", got.Contact.Email)
	assert.Empty(t, got.AuthorizedUsers)
}

func TestSQLite_GetCompany_Missing(t *testing.T) {
	st := newTestSQLiteStore(t)

	_, err := st.GetCompany(context.Background(), "nope")
	assert.True(t, eris.Is(err, ErrNotFound))
}

func TestSQLite_DuplicateABNRejected(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	_, err := st.CreateCompany(ctx, sampleCompany("Beta Steel", "51824753556"))
	require.NoError(t, err)

	_, err = st.CreateCompany(ctx, sampleCompany("Beta Steel Trading", "51824753556"))
	assert.True(t, eris.Is(err, ErrDuplicateABN))
}

func TestSQLite_EmptyABNNotUnique(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	_, err := st.CreateCompany(ctx, sampleCompany("Alpha Metals", ""))
	require.NoError(t, err)
	_, err = st.CreateCompany(ctx, sampleCompany("Gamma Metals", ""))
	require.NoError(t, err)
}

func TestSQLite_CompaniesByABN(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	created, err := st.CreateCompany(ctx, sampleCompany("Beta Steel", "51824753556"))
	require.NoError(t, err)

	got, err := st.CompaniesByABN(ctx, "51824753556")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, created.ID, got[0].ID)

	got, err = st.CompaniesByABN(ctx, "53004085616")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestSQLite_ListCompanies_Filters(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	a, err := st.CreateCompany(ctx, sampleCompany("Alpha Metals", ""))
	require.NoError(t, err)
	_, err = st.CreateCompany(ctx, sampleCompany("Beta Steel", ""))
	require.NoError(t, err)

	require.NoError(t, st.UpdateCompanyStatus(ctx, a.ID, model.CompanyApproved))

	approved, err := st.ListCompanies(ctx, CompanyFilter{Status: model.CompanyApproved})
	require.NoError(t, err)
	require.Len(t, approved, 1)
	assert.Equal(t, "Alpha Metals", approved[0].Name)

	all, err := st.ListCompanies(ctx, CompanyFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	limited, err := st.ListCompanies(ctx, CompanyFilter{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, limited, 1)

	australian, err := st.ListCompanies(ctx, CompanyFilter{Country: "Australia"})
	require.NoError(t, err)
	assert.Len(t, australian, 2)
}

func TestSQLite_UpdateCompanyStatus_Missing(t *testing.T) {
	st := newTestSQLiteStore(t)

	err := st.UpdateCompanyStatus(context.Background(), "nope", model.CompanyApproved)
	assert.True(t, eris.Is(err, ErrNotFound))
}

func TestSQLite_AddAuthorizedUser(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	created, err := st.CreateCompany(ctx, sampleCompany("Beta Steel", ""))
	require.NoError(t, err)

	require.NoError(t, st.AddAuthorizedUser(ctx, created.ID, "kim@example.com"))
	// Re-adding is a no-op, not an error.
	require.NoError(t, st.AddAuthorizedUser(ctx, created.ID, "kim@example.com"))

	got, err := st.GetCompany(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"kim@example.com"}, got.AuthorizedUsers)
	assert.True(t, got.IsAuthorized("KIM@example.com"))
}

func TestSQLite_AccessRequestLifecycle(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	company, err := st.CreateCompany(ctx, sampleCompany("Beta Steel", "51824753556"))
	require.NoError(t, err)

	created, err := st.CreateAccessRequest(ctx, model.AccessRequest{
		CompanyID:      company.ID,
		CompanyName:    company.Name,
		ABN:            company.ABN,
		RequesterEmail: "kim@example.com",
		RequesterName:  "Kim Ngo",
		Message:        "I work in the Newcastle office.",
		MatchedBy:      model.MatchedByABN,
	})
	require.NoError(t, err)
	assert.Equal(t, model.RequestPending, created.Status)
	assert.Nil(t, created.DecidedAt)

	got, err := st.GetAccessRequest(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, model.MatchedByABN, got.MatchedBy)
	assert.Equal(t, "I work in the Newcastle office.", got.Message)

	require.NoError(t, st.UpdateAccessRequestStatus(ctx, created.ID, model.RequestApproved, "dana@example.com"))

	got, err = st.GetAccessRequest(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RequestApproved, got.Status)
	assert.Equal(t, "dana@example.com", got.DecidedBy)
	require.NotNil(t, got.DecidedAt)
}

func TestSQLite_DuplicatePendingRequestRejected(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	company, err := st.CreateCompany(ctx, sampleCompany("Beta Steel", ""))
	require.NoError(t, err)

	req := model.AccessRequest{
		CompanyID:      company.ID,
		RequesterEmail: "kim@example.com",
		Message:        "double click",
		MatchedBy:      model.MatchedByName,
	}
	_, err = st.CreateAccessRequest(ctx, req)
	require.NoError(t, err)

	_, err = st.CreateAccessRequest(ctx, req)
	assert.True(t, eris.Is(err, ErrDuplicateRequest))
}

func TestSQLite_DecidedRequestAllowsNewPending(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	company, err := st.CreateCompany(ctx, sampleCompany("Beta Steel", ""))
	require.NoError(t, err)

	req := model.AccessRequest{
		CompanyID:      company.ID,
		RequesterEmail: "kim@example.com",
		Message:        "first attempt",
		MatchedBy:      model.MatchedByName,
	}
	first, err := st.CreateAccessRequest(ctx, req)
	require.NoError(t, err)
	require.NoError(t, st.UpdateAccessRequestStatus(ctx, first.ID, model.RequestDenied, "dana@example.com"))

	// The partial index only guards pending requests.
	_, err = st.CreateAccessRequest(ctx, req)
	require.NoError(t, err)
}

func TestSQLite_ListAccessRequests_Filters(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	company, err := st.CreateCompany(ctx, sampleCompany("Beta Steel", ""))
	require.NoError(t, err)
	other, err := st.CreateCompany(ctx, sampleCompany("Alpha Metals", ""))
	require.NoError(t, err)

	_, err = st.CreateAccessRequest(ctx, model.AccessRequest{
		CompanyID: company.ID, RequesterEmail: "a@example.com", Message: "m", MatchedBy: model.MatchedByName,
	})
	require.NoError(t, err)
	second, err := st.CreateAccessRequest(ctx, model.AccessRequest{
		CompanyID: other.ID, RequesterEmail: "b@example.com", Message: "m", MatchedBy: model.MatchedByABN,
	})
	require.NoError(t, err)
	require.NoError(t, st.UpdateAccessRequestStatus(ctx, second.ID, model.RequestApproved, "dana@example.com"))

	pending, err := st.ListAccessRequests(ctx, RequestFilter{Status: model.RequestPending})
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "a@example.com", pending[0].RequesterEmail)

	byCompany, err := st.ListAccessRequests(ctx, RequestFilter{CompanyID: other.ID})
	require.NoError(t, err)
	require.Len(t, byCompany, 1)
	assert.Equal(t, "b@example.com", byCompany[0].RequesterEmail)
}

func TestSQLite_Stats(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	a, err := st.CreateCompany(ctx, sampleCompany("Alpha Metals", ""))
	require.NoError(t, err)
	b, err := st.CreateCompany(ctx, sampleCompany("Beta Steel", ""))
	require.NoError(t, err)
	_, err = st.CreateCompany(ctx, sampleCompany("Gamma Metals", ""))
	require.NoError(t, err)

	require.NoError(t, st.UpdateCompanyStatus(ctx, a.ID, model.CompanyApproved))

	_, err = st.CreateAccessRequest(ctx, model.AccessRequest{
		CompanyID: b.ID, RequesterEmail: "kim@example.com", Message: "m", MatchedBy: model.MatchedByName,
	})
	require.NoError(t, err)

	stats, err := st.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.TotalCompanies)
	assert.Equal(t, 1, stats.CompaniesByStatus[model.CompanyApproved])
	assert.Equal(t, 2, stats.CompaniesByStatus[model.CompanyPending])
	assert.Equal(t, 1, stats.TotalRequests)
	assert.Equal(t, 1, stats.RequestsByStatus[model.RequestPending])
	assert.Equal(t, 3, stats.CompaniesByState["NSW"])
}
