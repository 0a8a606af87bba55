// Package store persists companies and access requests behind a single
// interface with SQLite and Postgres backends.
package store

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/meridian-steel/registry-cli/internal/model"
)

// Sentinel errors shared by both backends. Callers match with
// eris.Is / errors.Is.
var (
	// ErrNotFound is returned when a company or access request does
	// not exist.
	ErrNotFound = eris.New("store: not found")

	// ErrDuplicateABN is returned when an insert collides with the
	// unique index on the ABN column.
	ErrDuplicateABN = eris.New("store: abn already registered")

	// ErrDuplicateRequest is returned when a requester already has a
	// pending access request against the same company.
	ErrDuplicateRequest = eris.New("store: access request already pending")
)

// CompanyFilter specifies criteria for listing companies.
type CompanyFilter struct {
	Status  model.CompanyStatus `json:"status,omitempty"`
	Country string              `json:"country,omitempty"`
	Limit   int                 `json:"limit,omitempty"`
	Offset  int                 `json:"offset,omitempty"`
}

// RequestFilter specifies criteria for listing access requests.
type RequestFilter struct {
	Status    model.RequestStatus `json:"status,omitempty"`
	CompanyID string              `json:"company_id,omitempty"`
	Limit     int                 `json:"limit,omitempty"`
	Offset    int                 `json:"offset,omitempty"`
}

// Store defines the persistence interface for the company registry.
// The CompaniesByABN and AllCompanies methods double as the matcher's
// candidate source.
type Store interface {
	// Companies
	CreateCompany(ctx context.Context, c model.Company) (*model.Company, error)
	GetCompany(ctx context.Context, id string) (*model.Company, error)
	CompaniesByABN(ctx context.Context, normalized string) ([]model.Company, error)
	AllCompanies(ctx context.Context) ([]model.Company, error)
	ListCompanies(ctx context.Context, filter CompanyFilter) ([]model.Company, error)
	UpdateCompanyStatus(ctx context.Context, id string, status model.CompanyStatus) error
	AddAuthorizedUser(ctx context.Context, companyID, email string) error

	// Access requests
	CreateAccessRequest(ctx context.Context, r model.AccessRequest) (*model.AccessRequest, error)
	GetAccessRequest(ctx context.Context, id string) (*model.AccessRequest, error)
	ListAccessRequests(ctx context.Context, filter RequestFilter) ([]model.AccessRequest, error)
	UpdateAccessRequestStatus(ctx context.Context, id string, status model.RequestStatus, decidedBy string) error

	// Dashboard
	Stats(ctx context.Context) (*model.RegistryStats, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
