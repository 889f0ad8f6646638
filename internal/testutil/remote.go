package testutil

import (
	"context"
	"fmt"
	"sync"

	"github.com/fieldworks/satchel/internal/remote"
)

// Call records one invocation against the fake remote.
type Call struct {
	Method   string // "fetch", "create", "update", "create_sub"
	Endpoint string
	RemoteID string
	Payload  map[string]any
}

// failureScript makes the next n calls to an endpoint fail. n < 0
// means fail forever.
type failureScript struct {
	remaining int
	err       error
}

// FakeRemote is an in-memory, scriptable remote system of record.
// It implements remote.Client and remote.Probe.
//
// Thread-safety: all methods are safe for concurrent use.
type FakeRemote struct {
	mu          sync.Mutex
	online      bool
	collections map[string][]remote.Record
	failures    map[string]*failureScript
	nextID      int
	calls       []Call

	// fetchGate, when set, blocks every FetchAll until released or
	// the context ends. Used to test the stale-read race.
	fetchGate chan struct{}
}

// NewFakeRemote creates an online fake with no data.
func NewFakeRemote() *FakeRemote {
	return &FakeRemote{
		online:      true,
		collections: make(map[string][]remote.Record),
		failures:    make(map[string]*failureScript),
	}
}

// SetOnline toggles the connectivity probe.
func (f *FakeRemote) SetOnline(online bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.online = online
}

// Online implements remote.Probe.
func (f *FakeRemote) Online(ctx context.Context) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.online
}

// SetCollection scripts the records FetchAll returns for an endpoint.
func (f *FakeRemote) SetCollection(endpoint string, recs []remote.Record) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.collections[endpoint] = recs
}

// FailTimes makes the next n calls against endpoint fail with err.
func (f *FakeRemote) FailTimes(endpoint string, n int, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures[endpoint] = &failureScript{remaining: n, err: err}
}

// FailAlways makes every call against endpoint fail with err.
func (f *FakeRemote) FailAlways(endpoint string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures[endpoint] = &failureScript{remaining: -1, err: err}
}

// GateFetches makes FetchAll block until ReleaseFetches is called or
// the caller's context ends. Used to simulate a slow remote.
func (f *FakeRemote) GateFetches() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetchGate = make(chan struct{})
}

// ReleaseFetches unblocks gated fetches.
func (f *FakeRemote) ReleaseFetches() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fetchGate != nil {
		close(f.fetchGate)
		f.fetchGate = nil
	}
}

// Calls returns a copy of the recorded invocations.
func (f *FakeRemote) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	calls := make([]Call, len(f.calls))
	copy(calls, f.calls)
	return calls
}

// CallsTo returns the recorded invocations of one method.
func (f *FakeRemote) CallsTo(method string) []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []Call
	for _, c := range f.calls {
		if c.Method == method {
			out = append(out, c)
		}
	}
	return out
}

// FetchAll implements remote.Client.
func (f *FakeRemote) FetchAll(ctx context.Context, endpoint string) ([]remote.Record, error) {
	f.mu.Lock()
	gate := f.fetchGate
	f.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %v", remote.ErrUnreachable, ctx.Err())
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, Call{Method: "fetch", Endpoint: endpoint})
	if err := f.nextFailure(endpoint); err != nil {
		return nil, err
	}
	recs, ok := f.collections[endpoint]
	if !ok {
		return []remote.Record{}, nil
	}
	out := make([]remote.Record, len(recs))
	copy(out, recs)
	return out, nil
}

// Create implements remote.Client, assigning ids srv-1, srv-2, ...
func (f *FakeRemote) Create(ctx context.Context, endpoint string, payload map[string]any) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, Call{Method: "create", Endpoint: endpoint, Payload: payload})
	if err := f.nextFailure(endpoint); err != nil {
		return "", err
	}
	f.nextID++
	return fmt.Sprintf("srv-%d", f.nextID), nil
}

// Update implements remote.Client.
func (f *FakeRemote) Update(ctx context.Context, endpoint, remoteID string, payload map[string]any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, Call{Method: "update", Endpoint: endpoint, RemoteID: remoteID, Payload: payload})
	return f.nextFailure(endpoint)
}

// CreateSub implements remote.Client.
func (f *FakeRemote) CreateSub(ctx context.Context, endpoint string, payload map[string]any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, Call{Method: "create_sub", Endpoint: endpoint, Payload: payload})
	return f.nextFailure(endpoint)
}

// nextFailure consumes one scripted failure. Caller holds f.mu.
func (f *FakeRemote) nextFailure(endpoint string) error {
	script, ok := f.failures[endpoint]
	if !ok || script.remaining == 0 {
		return nil
	}
	if script.remaining > 0 {
		script.remaining--
	}
	return script.err
}
