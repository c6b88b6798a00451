// internal/app/identity/identity.go

// Package identity wraps the external identity provider. The provider is
// the system of record for credentials and carries the authorization claim
// set (roles, paid flag) inside issued tokens, so downstream requests can
// trust it without a database round trip.
package identity

import "errors"

var (
	// ErrNotFound is returned when no identity exists for the lookup.
	ErrNotFound = errors.New("identity not found")

	// ErrEmailTaken is returned when a create races with an existing
	// identity for the same email.
	ErrEmailTaken = errors.New("email already in use")
)

// Identity is the provider-side record for one subject.
type Identity struct {
	UID   string
	Email string
}

// Claims is the authorization claim set mirrored into issued tokens.
// Roles mirrors the record store's role set; Paid is the aggregate
// "any service active" flag.
type Claims struct {
	Roles []string `json:"roles"`
	Paid  bool     `json:"paid"`
}
