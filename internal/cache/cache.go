// Package cache memoizes lattice pages, assembled datasets, and detail
// payloads so that pans and zooms within the same effective view skip the
// datastore entirely.
package cache

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/allegro/bigcache/v3"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/properlytic/engine/internal/store"
)

// boundsPrecision is the number of lat/lng decimal places baked into cache
// keys. Two places is coarse enough to get hits on sub-pixel pans and fine
// enough not to serve a meaningfully different viewport.
const boundsPrecision = 2

// Config contains cache configuration.
type Config struct {
	DetailCacheSizeMB int
	DetailTTL         time.Duration
	LatticeEntries    int
	DatasetEntries    int
}

// Manager manages the engine's caches. Keys must incorporate every parameter
// that affects the cached output: resolution, the sorted year set, and
// bounds rounded to boundsPrecision. Entries are never invalidated
// in-session; forecast data is static for the process lifetime. Anyone
// adding a write path must add invalidation.
type Manager struct {
	detailCache  *bigcache.BigCache
	latticeCache *lru.Cache[string, []store.GridCell]
	datasetCache *lru.Cache[string, any]
}

// NewManager creates a new cache manager.
func NewManager(cfg Config) (*Manager, error) {
	detailConfig := bigcache.Config{
		Shards:             256,
		LifeWindow:         cfg.DetailTTL,
		CleanWindow:        cfg.DetailTTL / 2,
		MaxEntriesInWindow: 10000,
		MaxEntrySize:       64 * 1024,
		HardMaxCacheSize:   cfg.DetailCacheSizeMB,
		Verbose:            false,
	}

	detailCache, err := bigcache.New(context.Background(), detailConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create detail cache: %w", err)
	}

	latticeCache, err := lru.New[string, []store.GridCell](cfg.LatticeEntries)
	if err != nil {
		return nil, fmt.Errorf("failed to create lattice cache: %w", err)
	}

	datasetCache, err := lru.New[string, any](cfg.DatasetEntries)
	if err != nil {
		return nil, fmt.Errorf("failed to create dataset cache: %w", err)
	}

	return &Manager{
		detailCache:  detailCache,
		latticeCache: latticeCache,
		datasetCache: datasetCache,
	}, nil
}

// GetLattice retrieves a cached lattice.
func (m *Manager) GetLattice(key string) ([]store.GridCell, bool) {
	return m.latticeCache.Get(key)
}

// SetLattice stores a lattice.
func (m *Manager) SetLattice(key string, cells []store.GridCell) {
	m.latticeCache.Add(key, cells)
}

// GetDataset retrieves a cached assembled dataset.
func (m *Manager) GetDataset(key string) (any, bool) {
	return m.datasetCache.Get(key)
}

// SetDataset stores an assembled dataset.
func (m *Manager) SetDataset(key string, value any) {
	m.datasetCache.Add(key, value)
}

// GetDetail retrieves a serialized detail payload.
func (m *Manager) GetDetail(key string) ([]byte, bool) {
	data, err := m.detailCache.Get(key)
	if err != nil {
		return nil, false
	}
	return data, true
}

// SetDetail stores a serialized detail payload.
func (m *Manager) SetDetail(key string, data []byte) error {
	return m.detailCache.Set(key, data)
}

// LatticeKey generates a cache key for a lattice fetch.
func LatticeKey(areaID string, resolution int, bounds *store.Bounds) string {
	return fmt.Sprintf("lattice:%s:r%d:%s", areaID, resolution, boundsKey(bounds))
}

// DatasetKey generates a cache key for an assembled year-indexed dataset.
// Years are treated as a set: order does not affect the key.
func DatasetKey(resolution int, years []int, bounds *store.Bounds) string {
	sorted := make([]int, len(years))
	copy(sorted, years)
	sort.Ints(sorted)

	parts := make([]string, len(sorted))
	for i, y := range sorted {
		parts[i] = strconv.Itoa(y)
	}
	return fmt.Sprintf("dataset:r%d:y%s:%s", resolution, strings.Join(parts, ","), boundsKey(bounds))
}

// DetailKey generates a cache key for a single-cell detail payload.
func DetailKey(cellID string, year int) string {
	return fmt.Sprintf("detail:%s:%d", cellID, year)
}

func boundsKey(bounds *store.Bounds) string {
	if bounds == nil {
		return "all"
	}
	return fmt.Sprintf("%.*f,%.*f,%.*f,%.*f",
		boundsPrecision, bounds.MinLat,
		boundsPrecision, bounds.MaxLat,
		boundsPrecision, bounds.MinLng,
		boundsPrecision, bounds.MaxLng)
}

// Stats returns cache statistics.
func (m *Manager) Stats() map[string]interface{} {
	return map[string]interface{}{
		"detail_cache_len":  m.detailCache.Len(),
		"detail_cache_cap":  m.detailCache.Capacity(),
		"lattice_cache_len": m.latticeCache.Len(),
		"dataset_cache_len": m.datasetCache.Len(),
	}
}

// Close closes the cache manager.
func (m *Manager) Close() error {
	return m.detailCache.Close()
}
