package store

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridian-steel/registry-cli/internal/model"
)

func newMockPostgres(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return NewPostgresFromPool(mock), mock
}

func pgCompanyRows() *pgxmock.Rows {
	return pgxmock.NewRows([]string{
		"id", "name", "abn", "street", "city", "state", "postcode", "country",
		"contact_name", "contact_email", "contact_phone",
		"created_by", "super_admin", "admins", "authorized_users",
		"status", "created_at", "updated_at",
	})
}

func addPgCompany(rows *pgxmock.Rows, id, name, abnValue string) *pgxmock.Rows {
	now := time.Now().UTC()
	return rows.AddRow(
		id, name, abnValue, "12 Wharf Rd", "Newcastle", "NSW", "2300", "Australia",
		"Dana Walsh", "dana@example.com", "+61 2 5550 1234",
		"dana@example.com", "dana@example.com", []byte(`[]`), []byte(`["kim@example.com"]`),
		"approved", now, now,
	)
}

func TestPostgres_GetCompany(t *testing.T) {
	st, mock := newMockPostgres(t)

	mock.ExpectQuery(`SELECT .+ FROM companies WHERE id = \$1`).
		WithArgs("c1").
		WillReturnRows(addPgCompany(pgCompanyRows(), "c1", "Beta Steel", "51824753556"))

	got, err := st.GetCompany(context.Background(), "c1")
	require.NoError(t, err)
	assert.Equal(t, "Beta Steel", got.Name)
	assert.Equal(t, model.CompanyApproved, got.Status)
	assert.Equal(t, []string{"kim@example.com"}, got.AuthorizedUsers)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_GetCompany_Missing(t *testing.T) {
	st, mock := newMockPostgres(t)

	mock.ExpectQuery(`SELECT .+ FROM companies WHERE id = \$1`).
		WithArgs("missing").
		WillReturnRows(pgCompanyRows())

	_, err := st.GetCompany(context.Background(), "missing")
	assert.True(t, eris.Is(err, ErrNotFound))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_CompaniesByABN(t *testing.T) {
	st, mock := newMockPostgres(t)

	mock.ExpectQuery(`SELECT .+ FROM companies WHERE abn = \$1 ORDER BY created_at`).
		WithArgs("51824753556").
		WillReturnRows(addPgCompany(pgCompanyRows(), "c1", "Beta Steel", "51824753556"))

	got, err := st.CompaniesByABN(context.Background(), "51824753556")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "c1", got[0].ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_CreateCompany_DuplicateABN(t *testing.T) {
	st, mock := newMockPostgres(t)

	mock.ExpectExec(`INSERT INTO companies`).
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "idx_companies_abn"})

	_, err := st.CreateCompany(context.Background(), model.Company{Name: "Beta Steel", ABN: "51824753556"})
	assert.True(t, eris.Is(err, ErrDuplicateABN))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_CreateCompany(t *testing.T) {
	st, mock := newMockPostgres(t)

	mock.ExpectExec(`INSERT INTO companies`).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	created, err := st.CreateCompany(context.Background(), model.Company{Name: "Beta Steel", ABN: "51824753556"})
	require.NoError(t, err)
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, model.CompanyPending, created.Status)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_UpdateCompanyStatus_Missing(t *testing.T) {
	st, mock := newMockPostgres(t)

	mock.ExpectExec(`UPDATE companies SET status`).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := st.UpdateCompanyStatus(context.Background(), "missing", model.CompanyApproved)
	assert.True(t, eris.Is(err, ErrNotFound))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_CreateAccessRequest_DuplicatePending(t *testing.T) {
	st, mock := newMockPostgres(t)

	mock.ExpectExec(`INSERT INTO access_requests`).
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "idx_requests_pending"})

	_, err := st.CreateAccessRequest(context.Background(), model.AccessRequest{
		CompanyID:      "c1",
		RequesterEmail: "kim@example.com",
		Message:        "double submit",
		MatchedBy:      model.MatchedByName,
	})
	assert.True(t, eris.Is(err, ErrDuplicateRequest))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_Stats(t *testing.T) {
	st, mock := newMockPostgres(t)

	mock.ExpectQuery(`SELECT status, COUNT\(\*\) FROM companies GROUP BY status`).
		WillReturnRows(pgxmock.NewRows([]string{"status", "count"}).
			AddRow("approved", 2).AddRow("pending", 1))
	mock.ExpectQuery(`SELECT status, COUNT\(\*\) FROM access_requests GROUP BY status`).
		WillReturnRows(pgxmock.NewRows([]string{"status", "count"}).
			AddRow("pending", 1))
	mock.ExpectQuery(`SELECT state, COUNT\(\*\) FROM companies WHERE state != '' GROUP BY state`).
		WillReturnRows(pgxmock.NewRows([]string{"state", "count"}).
			AddRow("NSW", 2).AddRow("VIC", 1))

	stats, err := st.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, stats.TotalCompanies)
	assert.Equal(t, 2, stats.CompaniesByStatus[model.CompanyApproved])
	assert.Equal(t, 1, stats.TotalRequests)
	assert.Equal(t, 2, stats.CompaniesByState["NSW"])
	require.NoError(t, mock.ExpectationsWereMet())
}
