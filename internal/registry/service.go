// Package registry orchestrates company registration: payload
// validation, duplicate detection, access requests, and the approval
// workflow.
package registry

import (
	"context"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/meridian-steel/registry-cli/internal/abn"
	"github.com/meridian-steel/registry-cli/internal/match"
	"github.com/meridian-steel/registry-cli/internal/model"
	"github.com/meridian-steel/registry-cli/internal/store"
)

// Validation sentinels. The API layer maps these to 400s.
var (
	ErrInvalidABN      = eris.New("registry: abn failed checksum validation")
	ErrEmptyMessage    = eris.New("registry: access request message is required")
	ErrNoTargetCompany = eris.New("registry: access request target company is required")
	ErrNotPending      = eris.New("registry: record is not pending")
)

// Service is the registration front door. Matchers only suggest
// duplicates; a human submitter decides whether to proceed, and a
// reviewer approves or rejects what was created.
type Service struct {
	store    store.Store
	matcher  *match.Matcher
	validate *validator.Validate
}

// NewService creates a Service over the given store.
func NewService(st store.Store, m *match.Matcher) *Service {
	return &Service{
		store:    st,
		matcher:  m,
		validate: validator.New(),
	}
}

// RegisterInput is a proposed company registration.
type RegisterInput struct {
	Name string `json:"name" validate:"required,min=2"`
	ABN  string `json:"abn" validate:"omitempty"`

	Street   string `json:"street"`
	City     string `json:"city"`
	State    string `json:"state"`
	Postcode string `json:"postcode"`
	Country  string `json:"country"`

	ContactName  string `json:"contact_name"`
	ContactEmail string `json:"contact_email" validate:"required,email"`
	ContactPhone string `json:"contact_phone"`

	// AcknowledgeDuplicates is set once the submitter has seen the
	// name-match candidates and chosen to register anyway.
	AcknowledgeDuplicates bool `json:"acknowledge_duplicates"`
}

// RegisterOutcome reports what Register did. Exactly one of Company
// (created) or the duplicate fields is meaningful: an ABNMatch blocks
// creation outright, NameMatches block until acknowledged.
type RegisterOutcome struct {
	Created     bool                   `json:"created"`
	Company     *model.Company         `json:"company,omitempty"`
	ABNMatch    *model.Company         `json:"abn_match,omitempty"`
	NameMatches []model.MatchCandidate `json:"name_matches,omitempty"`
}

// Register validates the input, probes for duplicates, and creates a
// pending company when the path is clear.
//
// A well-formed ABN that fails the checksum rejects the registration;
// an ABN already held by another company surfaces that company instead
// of creating a duplicate. Name candidates are advisory: the first
// call returns them and creates nothing, a second call with
// AcknowledgeDuplicates set proceeds. Matcher data-access failures
// never block registration (they fail open inside the matcher).
func (s *Service) Register(ctx context.Context, in RegisterInput) (*RegisterOutcome, error) {
	in.Name = strings.TrimSpace(in.Name)
	if err := s.validate.Struct(in); err != nil {
		return nil, eris.Wrap(err, "registry: validate registration")
	}

	normalized := abn.Normalize(in.ABN)
	if normalized != "" && !abn.Valid(normalized) {
		return nil, eris.Wrap(ErrInvalidABN, in.ABN)
	}

	if normalized != "" {
		if existing := s.matcher.MatchABN(ctx, normalized); existing != nil {
			zap.L().Info("register: abn already held",
				zap.String("abn", normalized),
				zap.String("company_id", existing.ID),
			)
			return &RegisterOutcome{ABNMatch: existing}, nil
		}
	}

	if !in.AcknowledgeDuplicates {
		if candidates := s.matcher.MatchName(ctx, in.Name); len(candidates) > 0 {
			zap.L().Info("register: name candidates surfaced",
				zap.String("name", in.Name),
				zap.Int("candidates", len(candidates)),
			)
			return &RegisterOutcome{NameMatches: candidates}, nil
		}
	}

	company := model.Company{
		Name: in.Name,
		ABN:  normalized,
		Address: model.Address{
			Street:   in.Street,
			City:     in.City,
			State:    in.State,
			Postcode: in.Postcode,
			Country:  in.Country,
		},
		Contact: model.Contact{
			Name:  in.ContactName,
			Email: in.ContactEmail,
			Phone: in.ContactPhone,
		},
		CreatedBy:  in.ContactEmail,
		SuperAdmin: in.ContactEmail,
		Status:     model.CompanyPending,
	}

	created, err := s.store.CreateCompany(ctx, company)
	if err != nil {
		// A concurrent registration can win the ABN index race between
		// the probe and the insert.
		if eris.Is(err, store.ErrDuplicateABN) {
			if existing := s.matcher.MatchABN(ctx, normalized); existing != nil {
				return &RegisterOutcome{ABNMatch: existing}, nil
			}
		}
		return nil, err
	}

	zap.L().Info("register: company created",
		zap.String("company_id", created.ID),
		zap.String("name", created.Name),
		zap.String("abn", created.ABN),
	)

	return &RegisterOutcome{Created: true, Company: created}, nil
}

// AccessRequestInput is a request to join an existing company.
type AccessRequestInput struct {
	CompanyID      string          `json:"company_id" validate:"required"`
	RequesterEmail string          `json:"requester_email" validate:"required,email"`
	RequesterName  string          `json:"requester_name"`
	Message        string          `json:"message" validate:"required"`
	MatchedBy      model.MatchPath `json:"matched_by" validate:"required,oneof=abn name"`
}

// SubmitAccessRequest records a pending access request against the
// chosen company. The target must exist and the justification message
// must be non-empty; creation failures surface to the caller — the
// user retries, nothing is swallowed.
func (s *Service) SubmitAccessRequest(ctx context.Context, in AccessRequestInput) (*model.AccessRequest, error) {
	in.Message = strings.TrimSpace(in.Message)
	if in.Message == "" {
		return nil, ErrEmptyMessage
	}
	if strings.TrimSpace(in.CompanyID) == "" {
		return nil, ErrNoTargetCompany
	}
	if err := s.validate.Struct(in); err != nil {
		return nil, eris.Wrap(err, "registry: validate access request")
	}

	company, err := s.store.GetCompany(ctx, in.CompanyID)
	if err != nil {
		return nil, err
	}

	created, err := s.store.CreateAccessRequest(ctx, model.AccessRequest{
		CompanyID:      company.ID,
		CompanyName:    company.Name,
		ABN:            company.ABN,
		RequesterEmail: in.RequesterEmail,
		RequesterName:  in.RequesterName,
		Message:        in.Message,
		MatchedBy:      in.MatchedBy,
		Status:         model.RequestPending,
	})
	if err != nil {
		zap.L().Error("access request creation failed",
			zap.String("company_id", in.CompanyID),
			zap.String("requester", in.RequesterEmail),
			zap.Error(err),
		)
		return nil, err
	}

	zap.L().Info("access request submitted",
		zap.String("request_id", created.ID),
		zap.String("company_id", company.ID),
		zap.String("matched_by", string(created.MatchedBy)),
	)

	return created, nil
}

// ApproveAccessRequest grants the requester access: the request moves
// to approved and the requester joins the company's authorized users.
func (s *Service) ApproveAccessRequest(ctx context.Context, requestID, decidedBy string) error {
	req, err := s.store.GetAccessRequest(ctx, requestID)
	if err != nil {
		return err
	}
	if req.Status != model.RequestPending {
		return eris.Wrap(ErrNotPending, requestID)
	}

	if err := s.store.AddAuthorizedUser(ctx, req.CompanyID, req.RequesterEmail); err != nil {
		return err
	}
	if err := s.store.UpdateAccessRequestStatus(ctx, requestID, model.RequestApproved, decidedBy); err != nil {
		return err
	}

	zap.L().Info("access request approved",
		zap.String("request_id", requestID),
		zap.String("company_id", req.CompanyID),
		zap.String("requester", req.RequesterEmail),
	)
	return nil
}

// DenyAccessRequest declines a pending request.
func (s *Service) DenyAccessRequest(ctx context.Context, requestID, decidedBy string) error {
	req, err := s.store.GetAccessRequest(ctx, requestID)
	if err != nil {
		return err
	}
	if req.Status != model.RequestPending {
		return eris.Wrap(ErrNotPending, requestID)
	}
	return s.store.UpdateAccessRequestStatus(ctx, requestID, model.RequestDenied, decidedBy)
}

// ApproveCompany moves a pending company to approved. This is the
// human review backstop behind the fail-open matchers.
func (s *Service) ApproveCompany(ctx context.Context, companyID string) error {
	return s.decideCompany(ctx, companyID, model.CompanyApproved)
}

// RejectCompany moves a pending company to rejected.
func (s *Service) RejectCompany(ctx context.Context, companyID string) error {
	return s.decideCompany(ctx, companyID, model.CompanyRejected)
}

func (s *Service) decideCompany(ctx context.Context, companyID string, status model.CompanyStatus) error {
	company, err := s.store.GetCompany(ctx, companyID)
	if err != nil {
		return err
	}
	if company.Status != model.CompanyPending {
		return eris.Wrap(ErrNotPending, companyID)
	}
	if err := s.store.UpdateCompanyStatus(ctx, companyID, status); err != nil {
		return err
	}
	zap.L().Info("company reviewed",
		zap.String("company_id", companyID),
		zap.String("status", string(status)),
	)
	return nil
}

// MatchName exposes the advisory name matcher for the form's on-blur
// probe.
func (s *Service) MatchName(ctx context.Context, name string) []model.MatchCandidate {
	return s.matcher.MatchName(ctx, name)
}

// MatchABN exposes the exact identifier matcher for the form's on-blur
// probe.
func (s *Service) MatchABN(ctx context.Context, raw string) *model.Company {
	return s.matcher.MatchABN(ctx, raw)
}

// GetCompany fetches a single company by id.
func (s *Service) GetCompany(ctx context.Context, id string) (*model.Company, error) {
	return s.store.GetCompany(ctx, id)
}

// ListCompanies lists companies matching the filter.
func (s *Service) ListCompanies(ctx context.Context, filter store.CompanyFilter) ([]model.Company, error) {
	return s.store.ListCompanies(ctx, filter)
}

// ListAccessRequests lists access requests matching the filter.
func (s *Service) ListAccessRequests(ctx context.Context, filter store.RequestFilter) ([]model.AccessRequest, error) {
	return s.store.ListAccessRequests(ctx, filter)
}

// Stats aggregates registry counts for the dashboard.
func (s *Service) Stats(ctx context.Context) (*model.RegistryStats, error) {
	return s.store.Stats(ctx)
}
