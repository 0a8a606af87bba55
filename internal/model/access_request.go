package model

import "time"

// RequestStatus is the lifecycle state of an access request. The
// registry only ever creates requests as pending; approval and denial
// happen through the decision workflow.
type RequestStatus string

const (
	RequestPending  RequestStatus = "pending"
	RequestApproved RequestStatus = "approved"
	RequestDenied   RequestStatus = "denied"
)

// MatchPath records which matcher surfaced the duplicate that led the
// requester to an existing company.
type MatchPath string

const (
	MatchedByABN  MatchPath = "abn"
	MatchedByName MatchPath = "name"
)

// AccessRequest is a user's request to join an existing company
// instead of registering a duplicate.
type AccessRequest struct {
	ID          string `json:"id" db:"id"`
	CompanyID   string `json:"company_id" db:"company_id"`
	CompanyName string `json:"company_name" db:"company_name"`
	ABN         string `json:"abn,omitempty" db:"abn"`

	RequesterEmail string `json:"requester_email" db:"requester_email"`
	RequesterName  string `json:"requester_name,omitempty" db:"requester_name"`

	// Message is the requester's free-text justification. Always
	// non-empty; submission is rejected without one.
	Message string `json:"message" db:"message"`

	MatchedBy MatchPath     `json:"matched_by" db:"matched_by"`
	Status    RequestStatus `json:"status" db:"status"`

	CreatedAt time.Time  `json:"created_at" db:"created_at"`
	DecidedAt *time.Time `json:"decided_at,omitempty" db:"decided_at"`
	DecidedBy string     `json:"decided_by,omitempty" db:"decided_by"`
}
