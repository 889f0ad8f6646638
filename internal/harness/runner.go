package harness

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/fieldworks/satchel/internal/engine"
	"github.com/fieldworks/satchel/internal/identity"
	"github.com/fieldworks/satchel/internal/record"
	"github.com/fieldworks/satchel/internal/remote"
	"github.com/fieldworks/satchel/internal/schema"
	"github.com/fieldworks/satchel/internal/store"
	"github.com/fieldworks/satchel/internal/testutil"
)

// storeDecls is the fixed store layout every scenario runs against.
const storeDecls = `
stores: {
	part_catalog: {
		scope:    "global"
		ttl:      "24h"
		endpoint: "/parts"
		preload:  true
		schema: {
			name: string
			unit: string | *"piece"
		}
	}
	machines: {
		scope:    "tenant"
		ttl:      "24h"
		endpoint: "/machines"
		preload:  true
		schema: {
			serial: string
		}
	}
	orders: {
		scope:        "tenant"
		ttl:          "24h"
		endpoint:     "/orders"
		sub_endpoint: "/orders/{parent}/items"
		schema: {
			title:  string
			status: "open" | "in_progress" | "completed"
		}
	}
}
`

// seqGenerator yields cor-1, cor-2, ... so traces are reproducible.
type seqGenerator struct {
	n int
}

func (g *seqGenerator) Generate() string {
	g.n++
	return fmt.Sprintf("cor-%d", g.n)
}

// Run executes a scenario and returns its event trace, one line per
// observable effect.
func Run(t *testing.T, scenario *Scenario) []string {
	t.Helper()
	ctx := context.Background()

	reg, err := schema.Parse(storeDecls)
	require.NoError(t, err)

	st, err := store.Open(filepath.Join(t.TempDir(), "satchel.db"), reg.Definitions())
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	fake := testutil.NewFakeRemote()
	fake.SetOnline(scenario.Online)
	for endpoint, seeds := range scenario.Collections {
		recs := make([]remote.Record, 0, len(seeds))
		for _, seed := range seeds {
			recs = append(recs, remote.Record{ID: seed.ID, TenantID: seed.Tenant, Payload: seed.Payload})
		}
		fake.SetCollection(endpoint, recs)
	}

	clock := testutil.NewWallClock(time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC))
	eng, err := engine.New(ctx, st, reg, fake,
		engine.WithGenerator(&seqGenerator{}),
		engine.WithNow(clock.Now),
		engine.WithStaleTimeout(50*time.Millisecond),
		engine.WithRetryBudget(3, time.Millisecond, 2*time.Millisecond),
	)
	require.NoError(t, err)

	r := &runner{t: t, ctx: ctx, eng: eng, fake: fake}
	r.begin(scenario.Tenant)
	for i, step := range scenario.Steps {
		r.step(i, step)
	}
	return r.trace
}

type runner struct {
	t     *testing.T
	ctx   context.Context
	eng   *engine.Engine
	fake  *testutil.FakeRemote
	trace []string
}

func (r *runner) emit(format string, args ...any) {
	r.trace = append(r.trace, fmt.Sprintf(format, args...))
}

func (r *runner) begin(tenant string) {
	report, err := r.eng.BeginSession(r.ctx, identity.StaticProvider{Principal: identity.Principal{
		UserID:   "worker-1",
		TenantID: tenant,
	}})
	require.NoError(r.t, err)
	if report.Total == 0 {
		r.emit("session %s", tenant)
	} else {
		r.emit("session %s %s", tenant, report)
	}
}

func (r *runner) step(i int, step Step) {
	switch step.Op {
	case OpOnline:
		r.fake.SetOnline(true)
		r.emit("online")

	case OpOffline:
		r.fake.SetOnline(false)
		r.emit("offline")

	case OpFail:
		var cause error = remote.ErrUnreachable
		kind := "unreachable"
		if step.Status != 0 {
			cause = &remote.StatusError{Status: step.Status, Endpoint: step.Endpoint}
			kind = fmt.Sprintf("status=%d", step.Status)
		}
		if step.Times < 0 {
			r.fake.FailAlways(step.Endpoint, cause)
			r.emit("fail %s always %s", step.Endpoint, kind)
		} else {
			r.fake.FailTimes(step.Endpoint, step.Times, cause)
			r.emit("fail %s times=%d %s", step.Endpoint, step.Times, kind)
		}

	case OpWrite:
		op := record.OpCreate
		if step.Update {
			op = record.OpUpdate
		}
		id, err := r.eng.Write(r.ctx, step.Store, step.ID, step.Payload, op)
		if step.ExpectError {
			require.Error(r.t, err, "step %d: write was expected to fail", i)
			r.emit("write %s rejected %s", step.Store, errClass(err))
			return
		}
		require.NoError(r.t, err, "step %d", i)
		r.emit("write %s/%s queued pending=%d", step.Store, id, r.pending(step.Store))

	case OpComplete:
		id, err := r.eng.CompleteSubItem(r.ctx, step.Store, step.ID, step.Sub, step.Payload)
		if step.ExpectError {
			require.Error(r.t, err, "step %d: complete was expected to fail", i)
			r.emit("complete %s rejected %s", step.Store, errClass(err))
			return
		}
		require.NoError(r.t, err, "step %d", i)
		r.emit("complete %s/%s queued pending=%d", step.Store, id, r.pending(step.Store))

	case OpSync:
		report, err := r.eng.SyncOnce(r.ctx)
		require.NoError(r.t, err, "step %d", i)
		if report.Offline {
			r.emit("sync offline")
			return
		}
		r.emit("sync synced=%d retried=%d failed=%d", report.Synced, report.Retried, report.Failed)
		for _, failure := range report.Failures {
			r.emit("failure %s", errClass(failure))
		}

	case OpRead:
		recs, err := r.eng.Read(r.ctx, step.Store)
		if step.ExpectError {
			require.Error(r.t, err, "step %d: read was expected to fail", i)
			r.emit("read %s rejected %s", step.Store, errClass(err))
			return
		}
		require.NoError(r.t, err, "step %d", i)
		r.emit("read %s: %s", step.Store, renderRecords(recs))

	case OpRetryAll:
		failed, err := r.eng.FailedMutations(r.ctx)
		require.NoError(r.t, err, "step %d", i)
		for _, mut := range failed {
			require.NoError(r.t, r.eng.RetryFailed(r.ctx, mut.CorrelationID), "step %d", i)
		}
		r.emit("retry_all n=%d", len(failed))
	}
}

func (r *runner) pending(storeName string) int {
	n, err := r.eng.PendingCount(r.ctx, storeName)
	require.NoError(r.t, err)
	return n
}

// renderRecords summarizes visible records: confirmed ones show their
// server id, unconfirmed ones are starred.
func renderRecords(recs []record.CachedRecord) string {
	if len(recs) == 0 {
		return "(empty)"
	}
	parts := make([]string, 0, len(recs))
	for _, rec := range recs {
		switch {
		case !rec.Synced:
			parts = append(parts, rec.ID+"*")
		case rec.RemoteID != "" && rec.RemoteID != rec.ID:
			parts = append(parts, rec.ID+"="+rec.RemoteID)
		default:
			parts = append(parts, rec.ID)
		}
	}
	sort.Strings(parts)
	return strings.Join(parts, " ")
}

func errClass(err error) string {
	switch {
	case engine.IsSchemaMismatch(err):
		return "schema_mismatch"
	case engine.IsOfflineNoData(err):
		return "offline_no_data"
	case engine.IsRemoteFetch(err):
		return "remote_fetch"
	case engine.IsPermanentFailure(err):
		return "permanent"
	default:
		return "error"
	}
}
