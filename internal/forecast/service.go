package forecast

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/properlytic/engine/internal/cache"
	"github.com/properlytic/engine/internal/grid"
	"github.com/properlytic/engine/internal/store"
)

// ErrSuperseded is returned when a newer fetch cycle replaced this one while
// it was in flight. Callers drop the result; the newer cycle's result is the
// one worth rendering.
var ErrSuperseded = errors.New("forecast: fetch cycle superseded")

// FetchConfig bounds the engine's datastore interactions.
type FetchConfig struct {
	// PageSize is the lattice page size per request.
	PageSize int
	// RowCap is the datastore's fixed per-request row cap for metric queries.
	RowCap int
	// MinChunk is the floor on metric chunk size regardless of year fan-out.
	MinChunk int
	// MaxConcurrent is the number of metric chunk pairs in flight at once.
	MaxConcurrent int
	// LatticeCeiling is the hard cap on total lattice rows per fetch.
	LatticeCeiling int
	// PaddingFraction of the visible span added to each viewport edge.
	PaddingFraction float64
}

// DefaultFetchConfig returns the production fetch limits.
func DefaultFetchConfig() FetchConfig {
	return FetchConfig{
		PageSize:        1000,
		RowCap:          1000,
		MinChunk:        10,
		MaxConcurrent:   4,
		LatticeCeiling:  50000,
		PaddingFraction: 0.25,
	}
}

// ServiceConfig contains forecast service configuration.
type ServiceConfig struct {
	Store  store.Datastore
	Cache  *cache.Manager
	AreaID string
	Fetch  FetchConfig
	Logger *slog.Logger
}

// Service runs the viewport pipeline: resolution resolve, bounds, cached
// lattice fetch, chunked metric fetch, merge, year-indexed assembly.
type Service struct {
	store  store.Datastore
	cache  *cache.Manager
	areaID string
	fetch  FetchConfig
	logger *slog.Logger

	mu         sync.Mutex
	generation uint64
	cancelPrev context.CancelFunc
}

// NewService creates a new forecast service.
func NewService(cfg ServiceConfig) *Service {
	fetch := cfg.Fetch
	defaults := DefaultFetchConfig()
	if fetch.PageSize <= 0 {
		fetch.PageSize = defaults.PageSize
	}
	if fetch.RowCap <= 0 {
		fetch.RowCap = defaults.RowCap
	}
	if fetch.MinChunk <= 0 {
		fetch.MinChunk = defaults.MinChunk
	}
	if fetch.MaxConcurrent <= 0 {
		fetch.MaxConcurrent = defaults.MaxConcurrent
	}
	if fetch.LatticeCeiling <= 0 {
		fetch.LatticeCeiling = defaults.LatticeCeiling
	}
	if fetch.PaddingFraction <= 0 {
		fetch.PaddingFraction = defaults.PaddingFraction
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Service{
		store:  cfg.Store,
		cache:  cfg.Cache,
		areaID: cfg.AreaID,
		fetch:  fetch,
		logger: logger,
	}
}

// ViewportResult is the renderer consumption interface: a fresh, immutable
// year-indexed dataset, superseded wholesale on the next camera or year
// change.
type ViewportResult struct {
	Resolution int              `json:"resolution"`
	Bounds     store.Bounds     `json:"bounds"`
	Years      map[int][]Record `json:"years"`
}

// beginCycle starts a new fetch cycle, cancelling whatever cycle was in
// flight. The returned generation identifies this cycle; results arriving
// after a newer cycle started are discarded.
func (s *Service) beginCycle(ctx context.Context) (context.Context, context.CancelFunc, uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancelPrev != nil {
		s.cancelPrev()
	}
	s.generation++
	ctx, cancel := context.WithCancel(ctx)
	s.cancelPrev = cancel
	return ctx, cancel, s.generation
}

func (s *Service) currentGeneration() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.generation
}

// ViewportForecast produces the year-indexed dataset for a camera position
// and year set. Results are memoized by (resolution, year set, rounded
// bounds); identical effective views hit the cache without a datastore
// round-trip.
func (s *Service) ViewportForecast(ctx context.Context, cam grid.Camera, years []int, resolutionOverride *int) (*ViewportResult, error) {
	resolution := grid.ResolutionForZoom(cam.Zoom, resolutionOverride)
	bounds := grid.BoundsForCamera(cam, s.fetch.PaddingFraction)

	datasetKey := cache.DatasetKey(resolution, years, &bounds)
	if cached, ok := s.cache.GetDataset(datasetKey); ok {
		if result, ok := cached.(*ViewportResult); ok {
			return result, nil
		}
	}

	ctx, cancel, gen := s.beginCycle(ctx)
	defer cancel()

	lattice, err := s.latticeForBounds(ctx, resolution, &bounds)
	if err != nil {
		return nil, err
	}

	ids := make([]string, len(lattice))
	for i, cell := range lattice {
		ids[i] = cell.ID
	}

	metrics, err := s.fetchMetrics(ctx, ids, years, resolution)
	if err != nil {
		if s.currentGeneration() != gen {
			return nil, ErrSuperseded
		}
		return nil, err
	}

	result := &ViewportResult{
		Resolution: resolution,
		Bounds:     bounds,
		Years:      assemble(lattice, years, metrics),
	}
	s.cache.SetDataset(datasetKey, result)

	if s.currentGeneration() != gen {
		return nil, ErrSuperseded
	}
	return result, nil
}

// latticeForBounds returns the lattice for a resolution and bounding box,
// memoized by rounded bounds.
func (s *Service) latticeForBounds(ctx context.Context, resolution int, bounds *store.Bounds) ([]store.GridCell, error) {
	key := cache.LatticeKey(s.areaID, resolution, bounds)
	if cells, ok := s.cache.GetLattice(key); ok {
		return cells, nil
	}

	cells, err := s.fetchLattice(ctx, resolution, bounds)
	if err != nil {
		return nil, err
	}
	s.cache.SetLattice(key, cells)
	return cells, nil
}
