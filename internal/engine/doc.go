// Package engine is the offline-first core: it decides every read path
// (cache vs. refresh), owns the single writer path into the mutation
// queue, replays queued mutations against the remote system when
// connectivity allows, warms the cache at session start, and sequences
// the identity transition that clears tenant-scoped state.
//
// Thread-safety model:
//   - Read, Write, CompleteSubItem, PendingCount: safe from any goroutine
//   - SyncOnce: single-flight; a concurrent call returns ErrSyncInProgress
//   - BeginSession: must complete before reads or writes for that identity
package engine
