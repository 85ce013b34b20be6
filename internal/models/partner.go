package models

import "time"

// Partner is a person known to the academy. Instructor marks partners eligible to teach.
type Partner struct {
	ID         string    `db:"id" json:"id"`
	Name       string    `db:"name" json:"name"`
	Email      *string   `db:"email" json:"email,omitempty"`
	Instructor bool      `db:"instructor" json:"instructor"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time `db:"updated_at" json:"updated_at"`
}

// PartnerDetail adds the read-only projection of attended sessions.
type PartnerDetail struct {
	Partner
	AttendedSessions []Session `json:"attended_sessions"`
}

// PartnerFilter captures filtering options for listing partners.
type PartnerFilter struct {
	Instructor *bool
	Search     string
	Page       int
	PageSize   int
	SortBy     string
	SortOrder  string
}
