package store

import (
	"fmt"
	"time"

	"github.com/fieldworks/satchel/internal/record"
)

var seqCounter int64

func nextSeq() int64 {
	seqCounter++
	return seqCounter
}

func tenantRecord(store, id, tenant string) record.CachedRecord {
	return record.CachedRecord{
		Store:    store,
		ID:       id,
		Payload:  map[string]any{"name": "widget " + id, "status": "open"},
		Scope:    record.ScopeTenant,
		TenantID: tenant,
	}
}

func globalRecord(store, id string) record.CachedRecord {
	return record.CachedRecord{
		Store:   store,
		ID:      id,
		Payload: map[string]any{"name": "part " + id},
		Scope:   record.ScopeGlobal,
	}
}

func testMutation(store, recordID string, op record.Operation, seq int64) record.PendingMutation {
	return record.PendingMutation{
		CorrelationID: fmt.Sprintf("corr-%s-%s-%s-%d", store, recordID, op, seq),
		TargetStore:   store,
		RecordID:      recordID,
		Operation:     op,
		Endpoint:      "/" + store,
		Payload:       map[string]any{"id": recordID, "status": "open"},
		Status:        record.StatusPending,
		Seq:           seq,
		CreatedAt:     time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC),
	}
}
