package record

import "time"

// Scope declares how a store's records are partitioned.
//
// The scope is a property of the store definition, never a per-call
// decision. A store holding data with no tenant attribute (shared
// reference data) must be declared global, or tenant filtering would
// silently empty every read.
type Scope string

const (
	// ScopeGlobal marks a store whose records are shared across tenants.
	// Reads from a global store are never tenant-filtered.
	ScopeGlobal Scope = "global"

	// ScopeTenant marks a store whose records belong to exactly one tenant.
	ScopeTenant Scope = "tenant"
)

// Valid reports whether s is a known scope.
func (s Scope) Valid() bool {
	return s == ScopeGlobal || s == ScopeTenant
}

// Definition describes one record store: its name, partitioning scope,
// staleness TTL, and the remote endpoints that serve it.
//
// Definitions are declared in CUE and loaded once at startup (see the
// schema package). All components consult the definition rather than
// re-deciding scope or endpoints at call sites.
type Definition struct {
	// Name identifies the store ("parts", "machines", ...).
	Name string

	// Scope is global or tenant. Tenant-scoped stores require every
	// record to carry a tenant id.
	Scope Scope

	// TTL is the maximum age of the store's cached data before a read
	// attempts a refresh. Zero means never stale.
	TTL time.Duration

	// Endpoint is the remote collection path for fetch/create/update.
	Endpoint string

	// SubEndpoint is the remote sub-resource path template, if the
	// store's records have dependent sub-items ("" if none). The
	// server-assigned parent id is substituted at sync time.
	SubEndpoint string

	// Preload marks the store for session-start warming.
	Preload bool
}

// Global reports whether the store is exempt from tenant filtering.
func (d Definition) Global() bool {
	return d.Scope == ScopeGlobal
}

// CachedRecord is one locally cached copy of a server-owned record.
//
// The local store is disposable derived state: a CachedRecord may be
// rebuilt from the remote system at any time. Durable intent lives in
// the mutation queue (until synced) or in the remote system (after).
type CachedRecord struct {
	Store    string         `json:"store"`
	ID       string         `json:"id"`
	Payload  map[string]any `json:"payload"`
	Scope    Scope          `json:"scope"`
	TenantID string         `json:"tenant_id,omitempty"`

	// RemoteID is the server-assigned identifier, learned when the
	// record's create mutation syncs. Empty until then.
	RemoteID string `json:"remote_id,omitempty"`

	// Synced is false while a mutation for this record is unconfirmed.
	Synced bool `json:"synced"`
}

// AccessContext carries the identity attributes consulted by tenant
// filtering. A zero AccessContext fails closed: tenant-scoped reads
// return nothing rather than everything.
type AccessContext struct {
	UserID   string
	TenantID string

	// AllTenants bypasses tenant filtering for privileged operators.
	AllTenants bool
}

// Zero reports whether the context carries no identity at all.
func (c AccessContext) Zero() bool {
	return c.UserID == "" && c.TenantID == "" && !c.AllTenants
}
