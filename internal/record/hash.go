package record

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefix for action-key hashing. Version suffix enables future
// algorithm migration.
const domainAction = "satchel/action/v1"

// hashWithDomain computes SHA-256 with domain separation.
// Format: SHA256(domain + 0x00 + data). The null separator prevents
// domain/data boundary ambiguity.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// ActionKey computes the idempotency key for a logical user action.
//
// The queue enforces UNIQUE(action_key) over unconfirmed mutations, so
// two enqueue attempts for the same (store, record, operation) collapse
// into one PendingMutation regardless of which code path issued them.
// The payload is intentionally excluded: a repeated trigger of the same
// logical action must dedupe even if a timestamp-ish payload field
// differs between triggers.
func ActionKey(store, recordID string, op Operation) string {
	obj := map[string]any{
		"store":     store,
		"record_id": recordID,
		"operation": string(op),
	}
	canonical, err := MarshalCanonical(obj)
	if err != nil {
		// Inputs are strings only; canonical marshal cannot fail.
		panic(fmt.Sprintf("ActionKey: %v", err))
	}
	return hashWithDomain(domainAction, canonical)
}
