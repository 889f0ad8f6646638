package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
)

// PreloadReport summarizes a session-start cache warm.
type PreloadReport struct {
	Loaded       int
	Failed       int
	Total        int
	FailedStores []string
}

// String renders the "4 of 5 stores preloaded" summary.
func (r *PreloadReport) String() string {
	return fmt.Sprintf("%d of %d stores preloaded", r.Loaded, r.Total)
}

// Preload warms the local store with every store marked for preload,
// while connectivity is known-good, so later offline operation has a
// complete dataset.
//
// Stores are fetched sequentially, not in parallel: one slow or
// failing fetch must not abort the rest. Each failure is logged and
// skipped; the report carries the per-store outcome. Preload returns
// an error only for local store faults, never for fetch failures.
func (e *Engine) Preload(ctx context.Context) (*PreloadReport, error) {
	defs := e.store.Definitions()
	sort.Slice(defs, func(i, j int) bool { return defs[i].Name < defs[j].Name })

	report := &PreloadReport{}
	for _, def := range defs {
		if !def.Preload {
			continue
		}
		report.Total++

		if err := ctx.Err(); err != nil {
			return report, err
		}

		if err := e.refreshStore(ctx, def); err != nil {
			report.Failed++
			report.FailedStores = append(report.FailedStores, def.Name)
			e.logger.Warn("preload fetch failed, skipping store",
				slog.String("store", def.Name), slog.String("error", err.Error()))
			continue
		}
		report.Loaded++
	}

	e.logger.Info("preload finished", slog.String("summary", report.String()))
	return report, nil
}
