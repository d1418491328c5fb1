package forecast

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/properlytic/engine/internal/cache"
	"github.com/properlytic/engine/internal/store"
)

// mockStore implements store.Datastore with injectable behavior and call
// counters.
type mockStore struct {
	mu           sync.Mutex
	latticeCalls int
	metricCalls  int
	detailCalls  int
	historyCalls int

	selectLattice     func(areaID string, resolution int, bounds *store.Bounds, offset, limit int) ([]store.GridCell, error)
	selectMetrics     func(source store.Source, resolution int, years []int, cellIDs []string) ([]store.MetricRow, error)
	selectCellDetail  func(cellID string, year int) (*store.DetailRow, error)
	selectCellHistory func(cellID string, fromYear, toYear int) ([]store.HistoryPoint, error)
}

func (m *mockStore) SelectLattice(_ context.Context, areaID string, resolution int, bounds *store.Bounds, offset, limit int) ([]store.GridCell, error) {
	m.mu.Lock()
	m.latticeCalls++
	m.mu.Unlock()
	if m.selectLattice == nil {
		return nil, nil
	}
	return m.selectLattice(areaID, resolution, bounds, offset, limit)
}

func (m *mockStore) SelectMetrics(_ context.Context, source store.Source, resolution int, years []int, cellIDs []string) ([]store.MetricRow, error) {
	m.mu.Lock()
	m.metricCalls++
	m.mu.Unlock()
	if m.selectMetrics == nil {
		return nil, nil
	}
	return m.selectMetrics(source, resolution, years, cellIDs)
}

func (m *mockStore) SelectCellDetail(_ context.Context, cellID string, year int) (*store.DetailRow, error) {
	m.mu.Lock()
	m.detailCalls++
	m.mu.Unlock()
	if m.selectCellDetail == nil {
		return nil, store.ErrNotFound
	}
	return m.selectCellDetail(cellID, year)
}

func (m *mockStore) SelectCellHistory(_ context.Context, cellID string, fromYear, toYear int) ([]store.HistoryPoint, error) {
	m.mu.Lock()
	m.historyCalls++
	m.mu.Unlock()
	if m.selectCellHistory == nil {
		return nil, nil
	}
	return m.selectCellHistory(cellID, fromYear, toYear)
}

func (m *mockStore) calls() (lattice, metrics int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.latticeCalls, m.metricCalls
}

func newTestCache(t *testing.T) *cache.Manager {
	t.Helper()
	m, err := cache.NewManager(cache.Config{
		DetailCacheSizeMB: 8,
		DetailTTL:         time.Minute,
		LatticeEntries:    32,
		DatasetEntries:    32,
	})
	if err != nil {
		t.Fatalf("failed to create cache: %v", err)
	}
	t.Cleanup(func() { m.Close() })
	return m
}

func newTestService(t *testing.T, ms *mockStore, fetch FetchConfig) *Service {
	t.Helper()
	return NewService(ServiceConfig{
		Store:  ms,
		Cache:  newTestCache(t),
		AreaID: "austin",
		Fetch:  fetch,
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
}

func fptr(v float64) *float64 { return &v }

func iptr(v int64) *int64 { return &v }
