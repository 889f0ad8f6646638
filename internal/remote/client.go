// Package remote defines the boundary to the remote system of record.
// Satchel assumes only the contract specified here: a creation
// endpoint that accepts one payload (client-known terminal fields
// included) and returns a server-assigned id, update and sub-resource
// endpoints keyed by that id, and a collection fetch per store.
package remote

import (
	"context"
	"errors"
	"fmt"
)

// Record is one loosely-typed record as the remote system serves it.
// Payload shape is validated and normalized by the schema package at
// the local store's write boundary, not here.
type Record struct {
	ID       string
	TenantID string
	Payload  map[string]any
}

// Client is the remote API surface the sync engine replays against.
type Client interface {
	// FetchAll returns every record of a collection endpoint.
	FetchAll(ctx context.Context, endpoint string) ([]Record, error)

	// Create posts one payload and returns the server-assigned id.
	Create(ctx context.Context, endpoint string, payload map[string]any) (remoteID string, err error)

	// Update overwrites the remote record identified by remoteID.
	Update(ctx context.Context, endpoint, remoteID string, payload map[string]any) error

	// CreateSub posts to a sub-resource endpoint. The endpoint already
	// carries the parent's server-assigned id.
	CreateSub(ctx context.Context, endpoint string, payload map[string]any) error
}

// Probe reports whether the remote system is currently reachable.
// Consulted by the cache reader's offline decision and by the sync
// processor's connectivity-restored trigger.
type Probe interface {
	Online(ctx context.Context) bool
}

// ErrUnreachable marks transport-level failures: no route, refused
// connection, DNS failure. Distinct from a reachable server answering
// with an error status.
var ErrUnreachable = errors.New("remote unreachable")

// StatusError is a reachable server's non-2xx answer.
type StatusError struct {
	Status   int
	Endpoint string
	Body     string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("remote %s: status %d: %s", e.Endpoint, e.Status, e.Body)
}

// IsSchemaRejection reports whether the server rejected the payload
// shape. Retrying a structurally invalid payload cannot succeed.
func IsSchemaRejection(err error) bool {
	var se *StatusError
	if errors.As(err, &se) {
		return se.Status == 400 || se.Status == 422
	}
	return false
}

// IsTransient reports whether the failure is worth retrying: transport
// failure, server error, or throttling.
func IsTransient(err error) bool {
	if errors.Is(err, ErrUnreachable) {
		return true
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.Status >= 500 || se.Status == 429
	}
	return false
}
