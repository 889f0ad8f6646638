package record

import "time"

// Operation names the remote effect a mutation replays.
type Operation string

const (
	// OpCreate creates a new remote record and learns its server id.
	OpCreate Operation = "create"

	// OpUpdate overwrites an existing remote record.
	OpUpdate Operation = "update"

	// OpCompleteSub completes a dependent sub-item of a parent record.
	// Requires the parent's server-assigned id, so it replays only
	// after its parent mutation has synced.
	OpCompleteSub Operation = "complete_sub"
)

// Valid reports whether op is a known operation.
func (op Operation) Valid() bool {
	switch op {
	case OpCreate, OpUpdate, OpCompleteSub:
		return true
	}
	return false
}

// MutationStatus tracks a queued mutation through its lifecycle:
// pending -> syncing -> removed on success, back to pending on a
// transient failure, or failed once the retry budget is exhausted.
type MutationStatus string

const (
	StatusPending MutationStatus = "pending"
	StatusSyncing MutationStatus = "syncing"
	StatusFailed  MutationStatus = "failed"
)

// PendingMutation is one durable, not-yet-confirmed write.
//
// Exactly one PendingMutation exists per logical user action: the
// queue's idempotency key (ActionKey) makes a second enqueue of the
// same action a no-op, so no logical write can reach the remote system
// twice through two code paths.
type PendingMutation struct {
	// CorrelationID is a client-generated UUIDv7 linking the mutation
	// to its eventual remote counterpart.
	CorrelationID string

	TargetStore string
	RecordID    string
	Operation   Operation

	// Endpoint is the remote path the mutation replays against. For
	// OpCompleteSub it is a template containing ParentPlaceholder,
	// resolved with the parent's server id at sync time.
	Endpoint string

	// Payload is the complete locally known state at enqueue time,
	// terminal-state fields included. It is replayed as-is: stripping
	// fields and relying on a second finalize call is how offline
	// terminal state gets silently downgraded.
	Payload map[string]any

	Status   MutationStatus
	Attempts int

	// ParentID is the correlation id of the mutation this one depends
	// on ("" if independent). Dependent mutations replay sequentially
	// after their parent succeeds.
	ParentID string

	// ParentStore and ParentRecord locate the parent's cached record,
	// from which the parent's server-assigned id is resolved when the
	// endpoint template is expanded. Set iff ParentID is set.
	ParentStore  string
	ParentRecord string

	// Seq orders the queue FIFO per store.
	Seq int64

	CreatedAt time.Time

	// LastError holds the most recent sync failure, for diagnostics
	// and the manual-retry surface.
	LastError string
}

// ParentPlaceholder is substituted in a dependent mutation's endpoint
// with the parent's server-assigned id during replay.
const ParentPlaceholder = "{parent}"

// SyncOutcome is the result class of one replay attempt.
type SyncOutcome string

const (
	OutcomeSuccess SyncOutcome = "success"
	OutcomeError   SyncOutcome = "error"

	// OutcomeCancelled means the drain's context ended mid-replay.
	// The mutation stays pending with its attempts recorded and is
	// not a failure.
	OutcomeCancelled SyncOutcome = "cancelled"
)

// SyncResult is the ephemeral outcome of replaying one mutation. It
// exists only to drive the queue state transition and is never stored.
type SyncResult struct {
	CorrelationID string
	Outcome       SyncOutcome
	RemoteID      string
	SyncedAt      time.Time
	Err           error
}
