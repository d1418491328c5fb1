package forecast

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/properlytic/engine/internal/store"
)

// metricKey identifies one (cell, year) pair within a fetch cycle.
type metricKey struct {
	CellID string
	Year   int
}

// metricSet accumulates rows from both sources, keyed for the merge step.
// Chunks complete in arbitrary order; final output order always comes from
// the lattice, never from fetch completion order.
type metricSet struct {
	mu        sync.Mutex
	primary   map[metricKey]*store.MetricRow
	secondary map[metricKey]*store.MetricRow
}

func newMetricSet() *metricSet {
	return &metricSet{
		primary:   make(map[metricKey]*store.MetricRow),
		secondary: make(map[metricKey]*store.MetricRow),
	}
}

func (ms *metricSet) add(source store.Source, rows []store.MetricRow) {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	for i := range rows {
		row := &rows[i]
		key := metricKey{CellID: row.CellID, Year: row.Year}
		if source == store.SourceSecondary {
			ms.secondary[key] = row
		} else {
			ms.primary[key] = row
		}
	}
}

// chunkSizeFor computes how many cell ids fit in one metric request. Each
// (cell x year) pair consumes one row of the fixed per-request row cap,
// so the chunk size shrinks as the year fan-out grows. Sizing chunks for a
// single year while requesting many silently drops rows past the cap.
func chunkSizeFor(rowCap, minChunk, nYears int) int {
	if nYears < 1 {
		nYears = 1
	}
	size := rowCap / nYears
	if size < minChunk {
		return minChunk
	}
	return size
}

// fetchMetrics retrieves rows from both metric sources for the given cell
// ids and years. Cell ids are partitioned into row-cap-sized chunks; each
// chunk queries the two sources concurrently, and chunk pairs run under a
// bounded fan-out to avoid exhausting the datastore connection pool.
//
// A failing chunk or source logs and contributes zero rows without aborting
// its siblings: a map with 95% coverage is more useful than a blank one.
func (s *Service) fetchMetrics(ctx context.Context, cellIDs []string, years []int, resolution int) (*metricSet, error) {
	set := newMetricSet()
	if len(cellIDs) == 0 || len(years) == 0 {
		return set, nil
	}

	chunkSize := chunkSizeFor(s.fetch.RowCap, s.fetch.MinChunk, len(years))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.fetch.MaxConcurrent)

	for start := 0; start < len(cellIDs); start += chunkSize {
		end := start + chunkSize
		if end > len(cellIDs) {
			end = len(cellIDs)
		}
		chunk := cellIDs[start:end]

		g.Go(func() error {
			var wg sync.WaitGroup
			for _, source := range []store.Source{store.SourcePrimary, store.SourceSecondary} {
				wg.Add(1)
				go func(source store.Source) {
					defer wg.Done()
					rows, err := s.store.SelectMetrics(gctx, source, resolution, years, chunk)
					if err != nil {
						s.logger.Warn("metric chunk failed, skipping",
							"source", string(source), "cells", len(chunk), "years", len(years), "error", err)
						return
					}
					set.add(source, rows)
				}(source)
			}
			wg.Wait()
			return gctx.Err()
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return set, nil
}
