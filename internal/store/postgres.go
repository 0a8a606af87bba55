package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/meridian-steel/registry-cli/internal/model"
)

// Pool is the subset of pgxpool.Pool the store uses. pgxmock satisfies
// it in tests.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
	Close()
}

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool Pool
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// preparedStatements lists queries to prepare on each new connection
// for the hot paths: registration probes and inserts.
var preparedStatements = map[string]string{
	"companies_by_abn":  `SELECT ` + pgCompanyColumns + ` FROM companies WHERE abn = $1 ORDER BY created_at`,
	"get_company":       `SELECT ` + pgCompanyColumns + ` FROM companies WHERE id = $1`,
	"insert_request":    pgInsertRequest,
	"get_request":       `SELECT ` + pgRequestColumns + ` FROM access_requests WHERE id = $1`,
	"update_req_status": `UPDATE access_requests SET status = $1, decided_at = $2, decided_by = $3 WHERE id = $4`,
	"update_co_status":  `UPDATE companies SET status = $1, updated_at = $2 WHERE id = $3`,
}

// NewPostgres creates a PostgresStore with a connection pool. The
// initial ping retries with exponential backoff so a briefly
// unavailable database does not fail startup.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}

	ping := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 4), ctx)
	if err := backoff.Retry(func() error { return pool.Ping(ctx) }, ping); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}

	return &PostgresStore{pool: pool}, nil
}

// NewPostgresFromPool wraps an existing pool. Used by tests with pgxmock.
func NewPostgresFromPool(pool Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS companies (
	id               TEXT PRIMARY KEY,
	name             TEXT NOT NULL,
	abn              TEXT NOT NULL DEFAULT '',
	street           TEXT NOT NULL DEFAULT '',
	city             TEXT NOT NULL DEFAULT '',
	state            TEXT NOT NULL DEFAULT '',
	postcode         TEXT NOT NULL DEFAULT '',
	country          TEXT NOT NULL DEFAULT '',
	contact_name     TEXT NOT NULL DEFAULT '',
	contact_email    TEXT NOT NULL DEFAULT '',
	contact_phone    TEXT NOT NULL DEFAULT '',
	created_by       TEXT NOT NULL DEFAULT '',
	super_admin      TEXT NOT NULL DEFAULT '',
	admins           JSONB NOT NULL DEFAULT '[]',
	authorized_users JSONB NOT NULL DEFAULT '[]',
	status           TEXT NOT NULL DEFAULT 'pending',
	created_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at       TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS access_requests (
	id              TEXT PRIMARY KEY,
	company_id      TEXT NOT NULL REFERENCES companies(id),
	company_name    TEXT NOT NULL DEFAULT '',
	abn             TEXT NOT NULL DEFAULT '',
	requester_email TEXT NOT NULL,
	requester_name  TEXT NOT NULL DEFAULT '',
	message         TEXT NOT NULL,
	matched_by      TEXT NOT NULL DEFAULT 'name',
	status          TEXT NOT NULL DEFAULT 'pending',
	created_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
	decided_at      TIMESTAMPTZ,
	decided_by      TEXT NOT NULL DEFAULT ''
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_companies_abn
	ON companies(abn) WHERE abn != '';
CREATE INDEX IF NOT EXISTS idx_companies_status ON companies(status);
CREATE UNIQUE INDEX IF NOT EXISTS idx_requests_pending
	ON access_requests(company_id, requester_email) WHERE status = 'pending';
CREATE INDEX IF NOT EXISTS idx_requests_status ON access_requests(status);
CREATE INDEX IF NOT EXISTS idx_requests_company ON access_requests(company_id);
`

const pgCompanyColumns = `id, name, abn, street, city, state, postcode, country,
	contact_name, contact_email, contact_phone,
	created_by, super_admin, admins, authorized_users,
	status, created_at, updated_at`

const pgRequestColumns = `id, company_id, company_name, abn,
	requester_email, requester_name, message, matched_by,
	status, created_at, decided_at, decided_by`

const pgInsertRequest = `INSERT INTO access_requests
	(id, company_id, company_name, abn, requester_email, requester_name, message, matched_by, status, created_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.pool.Ping(ctx), "postgres: ping")
}

func (s *PostgresStore) CreateCompany(ctx context.Context, c model.Company) (*model.Company, error) {
	c.ID = uuid.New().String()
	now := time.Now().UTC()
	c.CreatedAt = now
	c.UpdatedAt = now
	if c.Status == "" {
		c.Status = model.CompanyPending
	}

	admins, users, err := marshalMembers(c.Admins, c.AuthorizedUsers)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: marshal members")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO companies (`+pgCompanyColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)`,
		c.ID, c.Name, c.ABN,
		c.Address.Street, c.Address.City, c.Address.State, c.Address.Postcode, c.Address.Country,
		c.Contact.Name, c.Contact.Email, c.Contact.Phone,
		c.CreatedBy, c.SuperAdmin, []byte(admins), []byte(users),
		string(c.Status), now, now,
	)
	if err != nil {
		if isPgUnique(err, "idx_companies_abn") {
			return nil, eris.Wrap(ErrDuplicateABN, c.ABN)
		}
		return nil, eris.Wrap(err, "postgres: insert company")
	}
	return &c, nil
}

func (s *PostgresStore) GetCompany(ctx context.Context, id string) (*model.Company, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+pgCompanyColumns+` FROM companies WHERE id = $1`, id)
	return scanPgCompany(row)
}

func (s *PostgresStore) CompaniesByABN(ctx context.Context, normalized string) ([]model.Company, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+pgCompanyColumns+` FROM companies WHERE abn = $1 ORDER BY created_at`, normalized)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: query companies by abn")
	}
	return collectPgCompanies(rows)
}

func (s *PostgresStore) AllCompanies(ctx context.Context) ([]model.Company, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+pgCompanyColumns+` FROM companies`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: query all companies")
	}
	return collectPgCompanies(rows)
}

func (s *PostgresStore) ListCompanies(ctx context.Context, filter CompanyFilter) ([]model.Company, error) {
	query := `SELECT ` + pgCompanyColumns + ` FROM companies WHERE true`
	args := []any{}
	argIdx := 1

	if filter.Status != "" {
		query += fmt.Sprintf(` AND status = $%d`, argIdx)
		args = append(args, string(filter.Status))
		argIdx++
	}
	if filter.Country != "" {
		query += fmt.Sprintf(` AND country = $%d`, argIdx)
		args = append(args, filter.Country)
		argIdx++
	}
	query += ` ORDER BY created_at DESC`
	if filter.Limit > 0 {
		query += fmt.Sprintf(` LIMIT $%d`, argIdx)
		args = append(args, filter.Limit)
		argIdx++
	}
	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, argIdx)
		args = append(args, filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list companies")
	}
	return collectPgCompanies(rows)
}

func (s *PostgresStore) UpdateCompanyStatus(ctx context.Context, id string, status model.CompanyStatus) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE companies SET status = $1, updated_at = $2 WHERE id = $3`,
		string(status), time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update company status %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrap(ErrNotFound, id)
	}
	return nil
}

func (s *PostgresStore) AddAuthorizedUser(ctx context.Context, companyID, email string) error {
	c, err := s.GetCompany(ctx, companyID)
	if err != nil {
		return err
	}
	for _, u := range c.AuthorizedUsers {
		if strings.EqualFold(u, email) {
			return nil
		}
	}
	users, err := json.Marshal(append(c.AuthorizedUsers, email))
	if err != nil {
		return eris.Wrap(err, "postgres: marshal authorized users")
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE companies SET authorized_users = $1, updated_at = $2 WHERE id = $3`,
		users, time.Now().UTC(), companyID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: add authorized user %s", companyID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrap(ErrNotFound, companyID)
	}
	return nil
}

func (s *PostgresStore) CreateAccessRequest(ctx context.Context, r model.AccessRequest) (*model.AccessRequest, error) {
	r.ID = uuid.New().String()
	r.CreatedAt = time.Now().UTC()
	if r.Status == "" {
		r.Status = model.RequestPending
	}

	_, err := s.pool.Exec(ctx, pgInsertRequest,
		r.ID, r.CompanyID, r.CompanyName, r.ABN,
		r.RequesterEmail, r.RequesterName, r.Message, string(r.MatchedBy),
		string(r.Status), r.CreatedAt,
	)
	if err != nil {
		if isPgUnique(err, "idx_requests_pending") {
			return nil, eris.Wrap(ErrDuplicateRequest, r.RequesterEmail)
		}
		return nil, eris.Wrap(err, "postgres: insert access request")
	}
	return &r, nil
}

func (s *PostgresStore) GetAccessRequest(ctx context.Context, id string) (*model.AccessRequest, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+pgRequestColumns+` FROM access_requests WHERE id = $1`, id)
	return scanPgRequest(row)
}

func (s *PostgresStore) ListAccessRequests(ctx context.Context, filter RequestFilter) ([]model.AccessRequest, error) {
	query := `SELECT ` + pgRequestColumns + ` FROM access_requests WHERE true`
	args := []any{}
	argIdx := 1

	if filter.Status != "" {
		query += fmt.Sprintf(` AND status = $%d`, argIdx)
		args = append(args, string(filter.Status))
		argIdx++
	}
	if filter.CompanyID != "" {
		query += fmt.Sprintf(` AND company_id = $%d`, argIdx)
		args = append(args, filter.CompanyID)
		argIdx++
	}
	query += ` ORDER BY created_at DESC`
	if filter.Limit > 0 {
		query += fmt.Sprintf(` LIMIT $%d`, argIdx)
		args = append(args, filter.Limit)
		argIdx++
	}
	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, argIdx)
		args = append(args, filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list access requests")
	}
	defer rows.Close()

	var out []model.AccessRequest
	for rows.Next() {
		r, err := scanPgRequest(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate access requests")
}

func (s *PostgresStore) UpdateAccessRequestStatus(ctx context.Context, id string, status model.RequestStatus, decidedBy string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE access_requests SET status = $1, decided_at = $2, decided_by = $3 WHERE id = $4`,
		string(status), time.Now().UTC(), decidedBy, id,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update access request %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrap(ErrNotFound, id)
	}
	return nil
}

func (s *PostgresStore) Stats(ctx context.Context) (*model.RegistryStats, error) {
	stats := &model.RegistryStats{
		CompaniesByStatus: map[model.CompanyStatus]int{},
		RequestsByStatus:  map[model.RequestStatus]int{},
		CompaniesByState:  map[string]int{},
	}

	rows, err := s.pool.Query(ctx,
		`SELECT status, COUNT(*) FROM companies GROUP BY status`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: company stats")
	}
	if err := scanPgCounts(rows, func(k string, n int) {
		stats.CompaniesByStatus[model.CompanyStatus(k)] = n
		stats.TotalCompanies += n
	}); err != nil {
		return nil, err
	}

	rows, err = s.pool.Query(ctx,
		`SELECT status, COUNT(*) FROM access_requests GROUP BY status`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: request stats")
	}
	if err := scanPgCounts(rows, func(k string, n int) {
		stats.RequestsByStatus[model.RequestStatus(k)] = n
		stats.TotalRequests += n
	}); err != nil {
		return nil, err
	}

	rows, err = s.pool.Query(ctx,
		`SELECT state, COUNT(*) FROM companies WHERE state != '' GROUP BY state`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: state stats")
	}
	if err := scanPgCounts(rows, func(k string, n int) {
		stats.CompaniesByState[k] = n
	}); err != nil {
		return nil, err
	}

	return stats, nil
}

// --- scan helpers ---

func scanPgCompany(row pgx.Row) (*model.Company, error) {
	var c model.Company
	var admins, users []byte
	var status string

	err := row.Scan(
		&c.ID, &c.Name, &c.ABN,
		&c.Address.Street, &c.Address.City, &c.Address.State, &c.Address.Postcode, &c.Address.Country,
		&c.Contact.Name, &c.Contact.Email, &c.Contact.Phone,
		&c.CreatedBy, &c.SuperAdmin, &admins, &users,
		&status, &c.CreatedAt, &c.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: scan company")
	}

	c.Status = model.CompanyStatus(status)
	if err := json.Unmarshal(admins, &c.Admins); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal admins")
	}
	if err := json.Unmarshal(users, &c.AuthorizedUsers); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal authorized users")
	}
	return &c, nil
}

func collectPgCompanies(rows pgx.Rows) ([]model.Company, error) {
	defer rows.Close()

	var out []model.Company
	for rows.Next() {
		c, err := scanPgCompany(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *c)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate companies")
}

func scanPgRequest(row pgx.Row) (*model.AccessRequest, error) {
	var r model.AccessRequest
	var matchedBy, status string
	var decidedAt *time.Time

	err := row.Scan(
		&r.ID, &r.CompanyID, &r.CompanyName, &r.ABN,
		&r.RequesterEmail, &r.RequesterName, &r.Message, &matchedBy,
		&status, &r.CreatedAt, &decidedAt, &r.DecidedBy,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: scan access request")
	}

	r.MatchedBy = model.MatchPath(matchedBy)
	r.Status = model.RequestStatus(status)
	r.DecidedAt = decidedAt
	return &r, nil
}

func scanPgCounts(rows pgx.Rows, add func(key string, n int)) error {
	defer rows.Close()
	for rows.Next() {
		var k string
		var n int
		if err := rows.Scan(&k, &n); err != nil {
			return eris.Wrap(err, "postgres: scan count")
		}
		add(k, n)
	}
	return eris.Wrap(rows.Err(), "postgres: iterate counts")
}

// isPgUnique reports whether err is a unique violation on the given
// constraint or index name.
func isPgUnique(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == "23505" && strings.Contains(pgErr.ConstraintName, constraint)
}
