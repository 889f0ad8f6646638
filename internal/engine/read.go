package engine

import (
	"context"
	"log/slog"
	"time"

	"github.com/fieldworks/satchel/internal/record"
	"github.com/fieldworks/satchel/internal/remote"
)

type fetchOutcome struct {
	err error
}

// Read returns the records of a store visible to the current session,
// choosing the path that balances freshness against availability:
//
//  1. Offline: serve from cache unconditionally; if the store was
//     never fetched and holds nothing, OfflineNoDataError.
//  2. Online and fresh: serve from cache, no network call.
//  3. Online and stale: race a remote refresh against the stale-read
//     timeout; whichever resolves first is served. The losing fetch
//     still updates the cache for the next read.
//  4. Refresh failed outright with cached data present: silent
//     fallback to cache. With nothing cached: RemoteFetchError.
//
// Read never returns an error for offline-with-cache.
func (e *Engine) Read(ctx context.Context, storeName string) ([]record.CachedRecord, error) {
	access, err := e.access()
	if err != nil {
		return nil, err
	}

	def, err := e.store.Definition(storeName)
	if err != nil {
		return nil, err
	}

	if !e.probe.Online(ctx) {
		return e.readOffline(ctx, storeName, access)
	}

	stale, err := e.store.IsStale(ctx, storeName, def.TTL, e.now())
	if err != nil {
		return nil, err
	}
	if !stale {
		return e.store.GetAll(ctx, storeName, access)
	}

	return e.readStale(ctx, def, access)
}

func (e *Engine) readOffline(ctx context.Context, storeName string, access record.AccessContext) ([]record.CachedRecord, error) {
	recs, err := e.store.GetAll(ctx, storeName, access)
	if err != nil {
		return nil, err
	}
	if len(recs) > 0 {
		return recs, nil
	}

	// An empty result from a store that has been fetched is real data
	// (the collection is empty, or tenant filtering applies). Only a
	// never-fetched empty store is "no data".
	_, fetched, err := e.store.LastFetched(ctx, storeName)
	if err != nil {
		return nil, err
	}
	if !fetched {
		return nil, &OfflineNoDataError{Store: storeName}
	}
	return recs, nil
}

// readStale races a remote refresh against the stale-read timeout.
func (e *Engine) readStale(ctx context.Context, def record.Definition, access record.AccessContext) ([]record.CachedRecord, error) {
	// The fetch must outlive a caller that gives up waiting: the
	// losing fetch still refreshes the cache for the next read.
	fetchCtx := context.WithoutCancel(ctx)
	done := make(chan fetchOutcome, 1)
	go func() {
		done <- fetchOutcome{err: e.refreshStore(fetchCtx, def)}
	}()

	timer := time.NewTimer(e.staleTimeout)
	defer timer.Stop()

	select {
	case out := <-done:
		if out.err == nil {
			return e.store.GetAll(ctx, def.Name, access)
		}
		return e.readFallback(ctx, def.Name, access, out.err)

	case <-timer.C:
		// Serve the stale cached value now; the refresh continues in
		// the background.
		e.logger.Debug("stale read served from cache", slog.String("store", def.Name))
		return e.readFallback(ctx, def.Name, access, nil)

	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// readFallback serves cached data after a slow or failed refresh.
// fetchErr is nil when the refresh merely lost the race.
func (e *Engine) readFallback(ctx context.Context, storeName string, access record.AccessContext, fetchErr error) ([]record.CachedRecord, error) {
	recs, err := e.store.GetAll(ctx, storeName, access)
	if err != nil {
		return nil, err
	}
	if len(recs) > 0 || fetchErr == nil {
		if fetchErr != nil {
			e.logger.Warn("remote fetch failed, serving cached data",
				slog.String("store", storeName), slog.String("error", fetchErr.Error()))
		}
		return recs, nil
	}

	_, fetched, err := e.store.LastFetched(ctx, storeName)
	if err != nil {
		return nil, err
	}
	if fetched {
		return recs, nil
	}
	return nil, &RemoteFetchError{Store: storeName, Err: fetchErr}
}

// refreshStore fetches a store's collection from the remote system,
// normalizes each record against the store schema, and commits the
// batch plus the fetch timestamp in one transaction. Records failing
// normalization are logged and skipped, not fatal to the batch.
func (e *Engine) refreshStore(ctx context.Context, def record.Definition) error {
	remoteRecs, err := e.remote.FetchAll(ctx, def.Endpoint)
	if err != nil {
		return err
	}

	recs := make([]record.CachedRecord, 0, len(remoteRecs))
	for _, rr := range remoteRecs {
		if rr.ID == "" {
			e.logger.Warn("skipping remote record without id", slog.String("store", def.Name))
			continue
		}
		payload, err := e.schemas.Normalize(def.Name, rr.Payload)
		if err != nil {
			e.logger.Warn("skipping remote record failing schema",
				slog.String("store", def.Name), slog.String("id", rr.ID),
				slog.String("error", err.Error()))
			continue
		}
		recs = append(recs, record.CachedRecord{
			Store:    def.Name,
			ID:       rr.ID,
			Payload:  payload,
			Scope:    def.Scope,
			TenantID: tenantFor(def, rr),
			RemoteID: rr.ID,
			Synced:   true,
		})
	}

	return e.store.PutFetched(ctx, def.Name, recs, e.now().UnixMilli())
}

func tenantFor(def record.Definition, rr remote.Record) string {
	if def.Global() {
		return ""
	}
	return rr.TenantID
}
