// Package model defines the registry's domain records.
package model

import (
	"strings"
	"time"
)

// CompanyStatus is the approval state of a registered company.
type CompanyStatus string

const (
	CompanyPending  CompanyStatus = "pending"
	CompanyApproved CompanyStatus = "approved"
	CompanyRejected CompanyStatus = "rejected"
)

// ValidCompanyStatus reports whether s is a known company status.
func ValidCompanyStatus(s CompanyStatus) bool {
	switch s {
	case CompanyPending, CompanyApproved, CompanyRejected:
		return true
	}
	return false
}

// Address is a company's physical address.
type Address struct {
	Street   string `json:"street,omitempty" db:"street"`
	City     string `json:"city,omitempty" db:"city"`
	State    string `json:"state,omitempty" db:"state"`
	Postcode string `json:"postcode,omitempty" db:"postcode"`
	Country  string `json:"country,omitempty" db:"country"`
}

// Contact is a company's primary contact person.
type Contact struct {
	Name  string `json:"name,omitempty" db:"contact_name"`
	Email string `json:"email,omitempty" db:"contact_email"`
	Phone string `json:"phone,omitempty" db:"contact_phone"`
}

// Company is a registered business entity. Records are never deleted;
// the status and the authorized-user set are the only fields mutated
// after creation.
type Company struct {
	ID   string `json:"id" db:"id"`
	Name string `json:"name" db:"name"`

	// ABN is the normalized 11-digit identifier, or empty when the
	// registrant did not supply one. When present it satisfies the
	// ABR checksum.
	ABN string `json:"abn,omitempty" db:"abn"`

	Address Address `json:"address"`
	Contact Contact `json:"contact"`

	// Ownership metadata.
	CreatedBy       string   `json:"created_by,omitempty" db:"created_by"`
	SuperAdmin      string   `json:"super_admin,omitempty" db:"super_admin"`
	Admins          []string `json:"admins,omitempty" db:"admins"`
	AuthorizedUsers []string `json:"authorized_users,omitempty" db:"authorized_users"`

	Status    CompanyStatus `json:"status" db:"status"`
	CreatedAt time.Time     `json:"created_at" db:"created_at"`
	UpdatedAt time.Time     `json:"updated_at" db:"updated_at"`
}

// IsAuthorized reports whether the given email already has access to
// the company, in any role.
func (c *Company) IsAuthorized(email string) bool {
	if strings.EqualFold(c.SuperAdmin, email) || strings.EqualFold(c.CreatedBy, email) {
		return true
	}
	for _, a := range c.Admins {
		if strings.EqualFold(a, email) {
			return true
		}
	}
	for _, u := range c.AuthorizedUsers {
		if strings.EqualFold(u, email) {
			return true
		}
	}
	return false
}
