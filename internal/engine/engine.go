package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/fieldworks/satchel/internal/identity"
	"github.com/fieldworks/satchel/internal/record"
	"github.com/fieldworks/satchel/internal/remote"
	"github.com/fieldworks/satchel/internal/schema"
	"github.com/fieldworks/satchel/internal/store"
)

// Defaults for the read race bound and the retry budget.
const (
	DefaultStaleTimeout = 300 * time.Millisecond
	DefaultMaxAttempts  = 5
	DefaultBackoffBase  = 500 * time.Millisecond
	DefaultBackoffMax   = 30 * time.Second
)

// alwaysOnline is the probe used when the remote client does not
// report connectivity. Sync attempts then discover unreachability
// through transport errors instead.
type alwaysOnline struct{}

func (alwaysOnline) Online(context.Context) bool { return true }

// Engine wires the local store, the schema registry, and the remote
// client into the offline-first data layer.
type Engine struct {
	store   *store.Store
	schemas *schema.Registry
	remote  remote.Client
	probe   remote.Probe
	logger  *slog.Logger

	clock   *Clock
	gen     Generator
	nowFn   func() time.Time

	staleTimeout time.Duration
	maxAttempts  int
	backoffBase  time.Duration
	backoffMax   time.Duration

	// syncMu makes the queue drain single-flight.
	syncMu sync.Mutex

	// mu guards the session principal.
	mu        sync.RWMutex
	principal identity.Principal
	hasSession bool
}

// Option configures the engine.
type Option func(*Engine)

// WithLogger sets the structured logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithProbe sets the connectivity probe. Default: the remote client if
// it implements remote.Probe, otherwise always online.
func WithProbe(p remote.Probe) Option {
	return func(e *Engine) { e.probe = p }
}

// WithGenerator overrides the correlation id generator (for testing).
func WithGenerator(g Generator) Option {
	return func(e *Engine) { e.gen = g }
}

// WithNow overrides the wall clock (for testing staleness).
func WithNow(now func() time.Time) Option {
	return func(e *Engine) { e.nowFn = now }
}

// WithStaleTimeout bounds the stale-read race against the remote fetch.
func WithStaleTimeout(d time.Duration) Option {
	return func(e *Engine) { e.staleTimeout = d }
}

// WithRetryBudget sets the per-mutation attempt limit and the
// exponential backoff bounds applied between attempts.
func WithRetryBudget(maxAttempts int, base, max time.Duration) Option {
	return func(e *Engine) {
		e.maxAttempts = maxAttempts
		e.backoffBase = base
		e.backoffMax = max
	}
}

// New creates an Engine over an opened store. The queue clock resumes
// from the highest persisted seq so restarts never reuse a position.
func New(ctx context.Context, s *store.Store, reg *schema.Registry, client remote.Client, opts ...Option) (*Engine, error) {
	e := &Engine{
		store:        s,
		schemas:      reg,
		remote:       client,
		logger:       slog.Default(),
		gen:          UUIDv7Generator{},
		nowFn:        time.Now,
		staleTimeout: DefaultStaleTimeout,
		maxAttempts:  DefaultMaxAttempts,
		backoffBase:  DefaultBackoffBase,
		backoffMax:   DefaultBackoffMax,
	}
	for _, opt := range opts {
		opt(e)
	}

	if e.probe == nil {
		if p, ok := client.(remote.Probe); ok {
			e.probe = p
		} else {
			e.probe = alwaysOnline{}
		}
	}

	maxSeq, err := s.MaxSeq(ctx)
	if err != nil {
		return nil, fmt.Errorf("engine: seed clock: %w", err)
	}
	e.clock = NewClockAt(maxSeq)

	return e, nil
}

// PendingCount returns the number of unconfirmed mutations for a
// store. Drives "N pending sync" indicators in the UI layer.
func (e *Engine) PendingCount(ctx context.Context, storeName string) (int, error) {
	return e.store.PendingCount(ctx, storeName)
}

// FailedMutations returns the mutations awaiting manual retry.
func (e *Engine) FailedMutations(ctx context.Context) ([]record.PendingMutation, error) {
	return e.store.FailedMutations(ctx)
}

// RetryFailed returns a failed mutation to the queue with a fresh
// attempt budget. The next drain picks it up.
func (e *Engine) RetryFailed(ctx context.Context, correlationID string) error {
	return e.store.RetryFailed(ctx, correlationID)
}

// ClearCache drops every cached record and all fetch metadata. The
// mutation queue survives: cache is disposable, queued intent is not.
// The next reads refetch from the remote system.
func (e *Engine) ClearCache(ctx context.Context) error {
	return e.store.ClearAll(ctx)
}

// access returns the session's access context, or ErrNoSession.
func (e *Engine) access() (record.AccessContext, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if !e.hasSession {
		return record.AccessContext{}, ErrNoSession
	}
	return e.principal.Access(), nil
}

func (e *Engine) now() time.Time {
	return e.nowFn()
}
