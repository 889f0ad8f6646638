// Package identity defines the boundary to the external identity
// provider: the current principal and the access context derived from
// it for tenant filtering.
package identity

import (
	"context"
	"fmt"

	"github.com/fieldworks/satchel/internal/record"
)

// Principal is the authenticated identity a session runs as.
type Principal struct {
	UserID   string
	TenantID string

	// AllTenants marks a privileged operator who reads across tenant
	// boundaries.
	AllTenants bool
}

// Valid reports whether the principal is usable: a user id is always
// required, and a tenant id is required unless the principal operates
// across all tenants.
func (p Principal) Valid() bool {
	if p.UserID == "" {
		return false
	}
	return p.TenantID != "" || p.AllTenants
}

// Access derives the access context consulted by tenant filtering.
func (p Principal) Access() record.AccessContext {
	return record.AccessContext{
		UserID:     p.UserID,
		TenantID:   p.TenantID,
		AllTenants: p.AllTenants,
	}
}

// Provider authenticates and returns the current principal. The
// authentication mechanism itself is an external collaborator.
type Provider interface {
	Authenticate(ctx context.Context) (Principal, error)
}

// StaticProvider returns a fixed principal. Used by the CLI (which
// receives identity from flags or config) and by tests.
type StaticProvider struct {
	Principal Principal
}

// Authenticate returns the configured principal, or an error if it is
// not valid.
func (p StaticProvider) Authenticate(ctx context.Context) (Principal, error) {
	if !p.Principal.Valid() {
		return Principal{}, fmt.Errorf("invalid principal: user=%q tenant=%q all_tenants=%v",
			p.Principal.UserID, p.Principal.TenantID, p.Principal.AllTenants)
	}
	return p.Principal, nil
}
