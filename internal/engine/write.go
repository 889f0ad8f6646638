package engine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/fieldworks/satchel/internal/record"
)

// Write applies an optimistic local write and queues its mutation for
// replay, as one transaction. Returns the local record id.
//
// This is the ONLY path into the mutation queue. Every entity type
// funnels its writes through here; no component may apply a cache
// write and queue separately, and no second "also queue this" path
// exists. A repeated trigger of the same logical action (same store,
// record, operation) while the first is unconfirmed collapses into
// the existing mutation.
//
// The payload is validated against the store schema first and stored
// complete, terminal-state fields included, so replay reproduces
// exactly the state the user produced offline.
func (e *Engine) Write(ctx context.Context, storeName, localID string, payload map[string]any, op record.Operation) (string, error) {
	access, err := e.access()
	if err != nil {
		return "", err
	}

	def, err := e.store.Definition(storeName)
	if err != nil {
		return "", err
	}
	if op == record.OpCompleteSub {
		return "", fmt.Errorf("write: use CompleteSubItem for %s", op)
	}

	normalized, err := e.schemas.Normalize(storeName, payload)
	if err != nil {
		return "", &SchemaMismatchError{Store: storeName, Err: err}
	}

	if localID == "" {
		localID = e.gen.Generate()
	}

	rec := record.CachedRecord{
		Store:    storeName,
		ID:       localID,
		Payload:  normalized,
		Scope:    def.Scope,
		TenantID: tenantForWrite(def, access),
	}
	mut := record.PendingMutation{
		CorrelationID: e.gen.Generate(),
		TargetStore:   storeName,
		RecordID:      localID,
		Operation:     op,
		Endpoint:      def.Endpoint,
		Payload:       normalized,
		Status:        record.StatusPending,
		Seq:           e.clock.Next(),
		CreatedAt:     e.now(),
	}

	inserted, err := e.store.PutWithMutation(ctx, rec, mut)
	if err != nil {
		return "", fmt.Errorf("write %s/%s: %w", storeName, localID, err)
	}
	if !inserted {
		e.logger.Debug("duplicate logical action coalesced",
			slog.String("store", storeName), slog.String("record", localID),
			slog.String("operation", string(op)))
	}
	return localID, nil
}

// CompleteSubItem queues the completion of a dependent sub-item of a
// parent record (e.g. one protocol step of a maintenance order). The
// sub-resource endpoint needs the parent's server-assigned id; if the
// parent's own create is still unconfirmed, the sub-mutation is
// chained to it and replays only after the parent syncs.
func (e *Engine) CompleteSubItem(ctx context.Context, storeName, parentLocalID, subID string, payload map[string]any) (string, error) {
	access, err := e.access()
	if err != nil {
		return "", err
	}

	def, err := e.store.Definition(storeName)
	if err != nil {
		return "", err
	}
	if def.SubEndpoint == "" {
		return "", fmt.Errorf("store %q has no sub-resource endpoint", storeName)
	}

	if _, ok, err := e.store.GetRecord(ctx, storeName, parentLocalID); err != nil {
		return "", err
	} else if !ok {
		return "", fmt.Errorf("parent record %s/%s not found", storeName, parentLocalID)
	}

	localID := parentLocalID + "/" + subID

	rec := record.CachedRecord{
		Store:    storeName,
		ID:       localID,
		Payload:  payload,
		Scope:    def.Scope,
		TenantID: tenantForWrite(def, access),
	}
	mut := record.PendingMutation{
		CorrelationID: e.gen.Generate(),
		TargetStore:   storeName,
		RecordID:      localID,
		Operation:     record.OpCompleteSub,
		Endpoint:      def.SubEndpoint,
		Payload:       payload,
		Status:        record.StatusPending,
		ParentStore:   storeName,
		ParentRecord:  parentLocalID,
		Seq:           e.clock.Next(),
		CreatedAt:     e.now(),
	}

	// Chain to the parent's unconfirmed create, if any, so this
	// replays strictly after the parent's remote id is learned.
	parentMut, ok, err := e.store.UnconfirmedMutation(ctx, storeName, parentLocalID, record.OpCreate)
	if err != nil {
		return "", err
	}
	if ok {
		mut.ParentID = parentMut.CorrelationID
	}

	inserted, err := e.store.PutWithMutation(ctx, rec, mut)
	if err != nil {
		return "", fmt.Errorf("complete sub-item %s/%s: %w", storeName, localID, err)
	}
	if !inserted {
		e.logger.Debug("duplicate sub-item completion coalesced",
			slog.String("store", storeName), slog.String("record", localID))
	}
	return localID, nil
}

func tenantForWrite(def record.Definition, access record.AccessContext) string {
	if def.Global() {
		return ""
	}
	return access.TenantID
}
