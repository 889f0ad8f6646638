package engine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/fieldworks/satchel/internal/identity"
)

// BeginSession runs the identity transition as one explicit sequence:
// authenticate, clear tenant-scoped caches, preload, proceed.
//
// Clearing happens BEFORE the new identity's preload so a previous
// identity's tenant data can never leak into the new session on a
// shared device. It is a sequenced step of this call, never a reactive
// effect of "identity changed": reactive clearing is how an
// identity-null event, a clear, and a state update chase each other
// into a reload loop.
//
// When offline, authentication and clearing still run; the preload is
// skipped and the session starts against whatever the queue and cache
// already hold.
func (e *Engine) BeginSession(ctx context.Context, provider identity.Provider) (*PreloadReport, error) {
	principal, err := provider.Authenticate(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin session: authenticate: %w", err)
	}

	if err := e.store.ClearTenantScoped(ctx); err != nil {
		return nil, fmt.Errorf("begin session: clear tenant caches: %w", err)
	}

	e.mu.Lock()
	e.principal = principal
	e.hasSession = true
	e.mu.Unlock()

	e.logger.Info("session established",
		slog.String("user", principal.UserID),
		slog.String("tenant", principal.TenantID),
		slog.Bool("all_tenants", principal.AllTenants))

	if !e.probe.Online(ctx) {
		e.logger.Info("offline login, preload skipped")
		return &PreloadReport{}, nil
	}

	report, err := e.Preload(ctx)
	if err != nil {
		return report, fmt.Errorf("begin session: preload: %w", err)
	}
	return report, nil
}

// Principal returns the session identity, or ok=false before
// BeginSession.
func (e *Engine) Principal() (identity.Principal, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.principal, e.hasSession
}
