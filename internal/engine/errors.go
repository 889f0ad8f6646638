package engine

import (
	"errors"
	"fmt"
)

// ErrSyncInProgress is returned by SyncOnce when another drain is
// already running. The caller relies on the running drain's outcome.
var ErrSyncInProgress = errors.New("sync already in progress")

// ErrNoSession is returned when a read or write happens before
// BeginSession has established an identity.
var ErrNoSession = errors.New("no session established")

// OfflineNoDataError reports an offline read of a store that has never
// been fetched. Recoverable by retrying once online. Never raised when
// any cached data exists, however stale.
type OfflineNoDataError struct {
	Store string
}

func (e *OfflineNoDataError) Error() string {
	return fmt.Sprintf("offline and no cached data for store %q", e.Store)
}

// RemoteFetchError reports a reachable-but-failed fetch with no cached
// fallback. Distinct from OfflineNoDataError: the network was up.
type RemoteFetchError struct {
	Store string
	Err   error
}

func (e *RemoteFetchError) Error() string {
	return fmt.Sprintf("remote fetch for store %q failed: %v", e.Store, e.Err)
}

func (e *RemoteFetchError) Unwrap() error {
	return e.Err
}

// SyncPermanentFailure reports a mutation whose retry budget is
// exhausted. The mutation stays in the queue as failed and is surfaced
// for manual retry; dropping it would be data loss.
type SyncPermanentFailure struct {
	CorrelationID string
	Store         string
	Attempts      int
	Err           error
}

func (e *SyncPermanentFailure) Error() string {
	return fmt.Sprintf("mutation %s (store %q) failed permanently after %d attempts: %v",
		e.CorrelationID, e.Store, e.Attempts, e.Err)
}

func (e *SyncPermanentFailure) Unwrap() error {
	return e.Err
}

// SchemaMismatchError reports a payload rejected structurally, either
// by the local store schema at the write boundary or by the remote
// system at replay. Never retried automatically: a structurally
// invalid payload cannot succeed on retry.
type SchemaMismatchError struct {
	Store string
	Err   error
}

func (e *SchemaMismatchError) Error() string {
	return fmt.Sprintf("payload for store %q does not match schema: %v", e.Store, e.Err)
}

func (e *SchemaMismatchError) Unwrap() error {
	return e.Err
}

// IsOfflineNoData reports whether err is an OfflineNoDataError.
// Uses errors.As to handle wrapped errors.
func IsOfflineNoData(err error) bool {
	var e *OfflineNoDataError
	return errors.As(err, &e)
}

// IsRemoteFetch reports whether err is a RemoteFetchError.
func IsRemoteFetch(err error) bool {
	var e *RemoteFetchError
	return errors.As(err, &e)
}

// IsSchemaMismatch reports whether err is a SchemaMismatchError.
func IsSchemaMismatch(err error) bool {
	var e *SchemaMismatchError
	return errors.As(err, &e)
}

// IsPermanentFailure reports whether err is a SyncPermanentFailure.
func IsPermanentFailure(err error) bool {
	var e *SyncPermanentFailure
	return errors.As(err, &e)
}
