// Package record defines the data model shared by the local store and the
// sync engine: cached records, pending mutations, store definitions, and
// the canonical payload encoding used for idempotency keys.
package record
