package forecast

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/properlytic/engine/internal/store"
)

// pagedLattice emulates a datastore holding total rows, serving LIMIT/OFFSET
// pages.
func pagedLattice(total int) func(string, int, *store.Bounds, int, int) ([]store.GridCell, error) {
	return func(_ string, _ int, _ *store.Bounds, offset, limit int) ([]store.GridCell, error) {
		if offset >= total {
			return nil, nil
		}
		end := offset + limit
		if end > total {
			end = total
		}
		cells := make([]store.GridCell, 0, end-offset)
		for i := offset; i < end; i++ {
			cells = append(cells, store.GridCell{ID: fmt.Sprintf("cell-%05d", i), Lat: 30, Lng: -97})
		}
		return cells, nil
	}
}

func TestFetchLattice_StopsAtShortPage(t *testing.T) {
	ms := &mockStore{selectLattice: pagedLattice(2250)}
	svc := newTestService(t, ms, FetchConfig{PageSize: 1000, LatticeCeiling: 50000})

	cells, err := svc.fetchLattice(context.Background(), 8, nil)
	if err != nil {
		t.Fatalf("fetchLattice: %v", err)
	}
	if len(cells) != 2250 {
		t.Errorf("expected 2250 cells, got %d", len(cells))
	}
	if latticeCalls, _ := ms.calls(); latticeCalls != 3 {
		t.Errorf("expected exactly 3 page fetches, got %d", latticeCalls)
	}
	// Lattice order is deterministic: sequential pages, stable sort key.
	if cells[0].ID != "cell-00000" || cells[2249].ID != "cell-02249" {
		t.Errorf("unexpected lattice order: first=%s last=%s", cells[0].ID, cells[2249].ID)
	}
}

func TestFetchLattice_ExactPageBoundary(t *testing.T) {
	// A total that is an exact multiple of the page size needs one trailing
	// empty page to terminate.
	ms := &mockStore{selectLattice: pagedLattice(2000)}
	svc := newTestService(t, ms, FetchConfig{PageSize: 1000, LatticeCeiling: 50000})

	cells, err := svc.fetchLattice(context.Background(), 8, nil)
	if err != nil {
		t.Fatalf("fetchLattice: %v", err)
	}
	if len(cells) != 2000 {
		t.Errorf("expected 2000 cells, got %d", len(cells))
	}
}

func TestFetchLattice_CeilingTruncatesSilently(t *testing.T) {
	// A datastore that keeps returning full pages forever must be stopped by
	// the safety ceiling, as truncation rather than error.
	full := func(_ string, _ int, _ *store.Bounds, offset, limit int) ([]store.GridCell, error) {
		cells := make([]store.GridCell, limit)
		for i := range cells {
			cells[i] = store.GridCell{ID: fmt.Sprintf("cell-%05d", offset+i), Lat: 30, Lng: -97}
		}
		return cells, nil
	}
	ms := &mockStore{selectLattice: full}
	svc := newTestService(t, ms, FetchConfig{PageSize: 10, LatticeCeiling: 35})

	cells, err := svc.fetchLattice(context.Background(), 8, nil)
	if err != nil {
		t.Fatalf("hitting the ceiling is not an error: %v", err)
	}
	if len(cells) != 35 {
		t.Errorf("expected truncation at ceiling 35, got %d", len(cells))
	}
}

func TestFetchLattice_EmptyIsNotAnError(t *testing.T) {
	ms := &mockStore{}
	svc := newTestService(t, ms, FetchConfig{PageSize: 1000})

	cells, err := svc.fetchLattice(context.Background(), 8, nil)
	if err != nil {
		t.Fatalf("no rows is a valid state, got error: %v", err)
	}
	if len(cells) != 0 {
		t.Errorf("expected empty lattice, got %d", len(cells))
	}
}

func TestFetchLattice_SurfacesDatastoreError(t *testing.T) {
	dbErr := errors.New("auth failure")
	ms := &mockStore{
		selectLattice: func(string, int, *store.Bounds, int, int) ([]store.GridCell, error) {
			return nil, dbErr
		},
	}
	svc := newTestService(t, ms, FetchConfig{PageSize: 1000})

	_, err := svc.fetchLattice(context.Background(), 8, nil)
	if !errors.Is(err, dbErr) {
		t.Fatalf("datastore errors must propagate, got %v", err)
	}
	if !strings.Contains(err.Error(), "offset") {
		t.Errorf("error should carry paging context: %v", err)
	}
}
