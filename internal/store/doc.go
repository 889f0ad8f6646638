// Package store provides the durable local layer: a keyed cache of
// server-owned records, the ordered mutation queue, and per-store fetch
// metadata, all in one SQLite database so the optimistic cache write
// and the queue append commit in a single transaction.
package store
