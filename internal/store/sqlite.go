package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/meridian-steel/registry-cli/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
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
	admins           TEXT NOT NULL DEFAULT '[]',
	authorized_users TEXT NOT NULL DEFAULT '[]',
	status           TEXT NOT NULL DEFAULT 'pending',
	created_at       DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at       DATETIME NOT NULL DEFAULT (datetime('now'))
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
	created_at      DATETIME NOT NULL DEFAULT (datetime('now')),
	decided_at      DATETIME,
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

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

const companyColumns = `id, name, abn, street, city, state, postcode, country,
	contact_name, contact_email, contact_phone,
	created_by, super_admin, admins, authorized_users,
	status, created_at, updated_at`

func (s *SQLiteStore) CreateCompany(ctx context.Context, c model.Company) (*model.Company, error) {
	c.ID = uuid.New().String()
	now := time.Now().UTC()
	c.CreatedAt = now
	c.UpdatedAt = now
	if c.Status == "" {
		c.Status = model.CompanyPending
	}

	admins, users, err := marshalMembers(c.Admins, c.AuthorizedUsers)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: marshal members")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO companies (`+companyColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.Name, c.ABN,
		c.Address.Street, c.Address.City, c.Address.State, c.Address.Postcode, c.Address.Country,
		c.Contact.Name, c.Contact.Email, c.Contact.Phone,
		c.CreatedBy, c.SuperAdmin, admins, users,
		string(c.Status), now, now,
	)
	if err != nil {
		if isSQLiteUnique(err, "companies.abn") {
			return nil, eris.Wrap(ErrDuplicateABN, c.ABN)
		}
		return nil, eris.Wrap(err, "sqlite: insert company")
	}
	return &c, nil
}

func (s *SQLiteStore) GetCompany(ctx context.Context, id string) (*model.Company, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+companyColumns+` FROM companies WHERE id = ?`, id)
	return scanCompany(row)
}

func (s *SQLiteStore) CompaniesByABN(ctx context.Context, normalized string) ([]model.Company, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+companyColumns+` FROM companies WHERE abn = ? ORDER BY created_at`, normalized)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: query companies by abn")
	}
	return collectCompanies(rows)
}

func (s *SQLiteStore) AllCompanies(ctx context.Context) ([]model.Company, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+companyColumns+` FROM companies`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: query all companies")
	}
	return collectCompanies(rows)
}

func (s *SQLiteStore) ListCompanies(ctx context.Context, filter CompanyFilter) ([]model.Company, error) {
	query := `SELECT ` + companyColumns + ` FROM companies WHERE 1=1`
	var args []any

	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	if filter.Country != "" {
		query += ` AND country = ?`
		args = append(args, filter.Country)
	}
	query += ` ORDER BY created_at DESC`
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}
	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list companies")
	}
	return collectCompanies(rows)
}

func (s *SQLiteStore) UpdateCompanyStatus(ctx context.Context, id string, status model.CompanyStatus) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE companies SET status = ?, updated_at = ? WHERE id = ?`,
		string(status), time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update company status %s", id)
	}
	return checkRowsAffected(res, id)
}

func (s *SQLiteStore) AddAuthorizedUser(ctx context.Context, companyID, email string) error {
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
		return eris.Wrap(err, "sqlite: marshal authorized users")
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE companies SET authorized_users = ?, updated_at = ? WHERE id = ?`,
		string(users), time.Now().UTC(), companyID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: add authorized user %s", companyID)
	}
	return checkRowsAffected(res, companyID)
}

const requestColumns = `id, company_id, company_name, abn,
	requester_email, requester_name, message, matched_by,
	status, created_at, decided_at, decided_by`

func (s *SQLiteStore) CreateAccessRequest(ctx context.Context, r model.AccessRequest) (*model.AccessRequest, error) {
	r.ID = uuid.New().String()
	r.CreatedAt = time.Now().UTC()
	if r.Status == "" {
		r.Status = model.RequestPending
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO access_requests (`+requestColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, NULL, '')`,
		r.ID, r.CompanyID, r.CompanyName, r.ABN,
		r.RequesterEmail, r.RequesterName, r.Message, string(r.MatchedBy),
		string(r.Status), r.CreatedAt,
	)
	if err != nil {
		if isSQLiteUnique(err, "access_requests.company_id") {
			return nil, eris.Wrap(ErrDuplicateRequest, r.RequesterEmail)
		}
		return nil, eris.Wrap(err, "sqlite: insert access request")
	}
	return &r, nil
}

func (s *SQLiteStore) GetAccessRequest(ctx context.Context, id string) (*model.AccessRequest, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+requestColumns+` FROM access_requests WHERE id = ?`, id)
	return scanRequest(row)
}

func (s *SQLiteStore) ListAccessRequests(ctx context.Context, filter RequestFilter) ([]model.AccessRequest, error) {
	query := `SELECT ` + requestColumns + ` FROM access_requests WHERE 1=1`
	var args []any

	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	if filter.CompanyID != "" {
		query += ` AND company_id = ?`
		args = append(args, filter.CompanyID)
	}
	query += ` ORDER BY created_at DESC`
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}
	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list access requests")
	}
	defer rows.Close()

	var out []model.AccessRequest
	for rows.Next() {
		r, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate access requests")
}

func (s *SQLiteStore) UpdateAccessRequestStatus(ctx context.Context, id string, status model.RequestStatus, decidedBy string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE access_requests SET status = ?, decided_at = ?, decided_by = ? WHERE id = ?`,
		string(status), time.Now().UTC(), decidedBy, id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update access request %s", id)
	}
	return checkRowsAffected(res, id)
}

func (s *SQLiteStore) Stats(ctx context.Context) (*model.RegistryStats, error) {
	stats := &model.RegistryStats{
		CompaniesByStatus: map[model.CompanyStatus]int{},
		RequestsByStatus:  map[model.RequestStatus]int{},
		CompaniesByState:  map[string]int{},
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT status, COUNT(*) FROM companies GROUP BY status`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: company stats")
	}
	if err := scanCounts(rows, func(k string, n int) {
		stats.CompaniesByStatus[model.CompanyStatus(k)] = n
		stats.TotalCompanies += n
	}); err != nil {
		return nil, err
	}

	rows, err = s.db.QueryContext(ctx,
		`SELECT status, COUNT(*) FROM access_requests GROUP BY status`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: request stats")
	}
	if err := scanCounts(rows, func(k string, n int) {
		stats.RequestsByStatus[model.RequestStatus(k)] = n
		stats.TotalRequests += n
	}); err != nil {
		return nil, err
	}

	rows, err = s.db.QueryContext(ctx,
		`SELECT state, COUNT(*) FROM companies WHERE state != '' GROUP BY state`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: state stats")
	}
	if err := scanCounts(rows, func(k string, n int) {
		stats.CompaniesByState[k] = n
	}); err != nil {
		return nil, err
	}

	return stats, nil
}

// --- scan helpers ---

type scannable interface {
	Scan(dest ...any) error
}

func scanCompany(row scannable) (*model.Company, error) {
	var c model.Company
	var admins, users, status string

	err := row.Scan(
		&c.ID, &c.Name, &c.ABN,
		&c.Address.Street, &c.Address.City, &c.Address.State, &c.Address.Postcode, &c.Address.Country,
		&c.Contact.Name, &c.Contact.Email, &c.Contact.Phone,
		&c.CreatedBy, &c.SuperAdmin, &admins, &users,
		&status, &c.CreatedAt, &c.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrap(err, "scan company")
	}

	c.Status = model.CompanyStatus(status)
	if err := json.Unmarshal([]byte(admins), &c.Admins); err != nil {
		return nil, eris.Wrap(err, "unmarshal admins")
	}
	if err := json.Unmarshal([]byte(users), &c.AuthorizedUsers); err != nil {
		return nil, eris.Wrap(err, "unmarshal authorized users")
	}
	return &c, nil
}

func collectCompanies(rows *sql.Rows) ([]model.Company, error) {
	defer rows.Close()

	var out []model.Company
	for rows.Next() {
		c, err := scanCompany(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *c)
	}
	return out, eris.Wrap(rows.Err(), "iterate companies")
}

func scanRequest(row scannable) (*model.AccessRequest, error) {
	var r model.AccessRequest
	var matchedBy, status string
	var decidedAt sql.NullTime

	err := row.Scan(
		&r.ID, &r.CompanyID, &r.CompanyName, &r.ABN,
		&r.RequesterEmail, &r.RequesterName, &r.Message, &matchedBy,
		&status, &r.CreatedAt, &decidedAt, &r.DecidedBy,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrap(err, "scan access request")
	}

	r.MatchedBy = model.MatchPath(matchedBy)
	r.Status = model.RequestStatus(status)
	if decidedAt.Valid {
		t := decidedAt.Time
		r.DecidedAt = &t
	}
	return &r, nil
}

func scanCounts(rows *sql.Rows, add func(key string, n int)) error {
	defer rows.Close()
	for rows.Next() {
		var k string
		var n int
		if err := rows.Scan(&k, &n); err != nil {
			return eris.Wrap(err, "scan count")
		}
		add(k, n)
	}
	return eris.Wrap(rows.Err(), "iterate counts")
}

func checkRowsAffected(res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Wrap(ErrNotFound, id)
	}
	return nil
}

func marshalMembers(admins, users []string) (string, string, error) {
	if admins == nil {
		admins = []string{}
	}
	if users == nil {
		users = []string{}
	}
	a, err := json.Marshal(admins)
	if err != nil {
		return "", "", err
	}
	u, err := json.Marshal(users)
	if err != nil {
		return "", "", err
	}
	return string(a), string(u), nil
}

// isSQLiteUnique reports whether err is a UNIQUE constraint violation
// touching the given "table.column" prefix.
func isSQLiteUnique(err error, constraint string) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") && strings.Contains(msg, constraint)
}
