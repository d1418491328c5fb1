package forecast

import (
	"context"
	"fmt"

	"github.com/properlytic/engine/internal/store"
)

// fetchLattice retrieves the full static lattice for an area, resolution,
// and optional bounding box, paging around the datastore's fixed per-request
// row cap.
//
// Pages are fetched strictly sequentially (each offset depends on the
// previous page's count), so lattice order is deterministic across calls.
// Fetching stops at the first short page, or silently truncates at the
// safety ceiling; an incomplete lattice beats an unbounded response. Zero
// rows is a valid "no data here yet" state, not an error. Query errors are
// surfaced, never swallowed: an empty lattice from an error must stay
// distinguishable from one with legitimately no data.
func (s *Service) fetchLattice(ctx context.Context, resolution int, bounds *store.Bounds) ([]store.GridCell, error) {
	var cells []store.GridCell
	offset := 0

	for {
		page, err := s.store.SelectLattice(ctx, s.areaID, resolution, bounds, offset, s.fetch.PageSize)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch lattice page at offset %d: %w", offset, err)
		}

		cells = append(cells, page...)

		if len(page) < s.fetch.PageSize {
			break
		}
		if len(cells) >= s.fetch.LatticeCeiling {
			s.logger.Warn("lattice fetch hit safety ceiling, truncating",
				"resolution", resolution, "rows", len(cells), "ceiling", s.fetch.LatticeCeiling)
			cells = cells[:s.fetch.LatticeCeiling]
			break
		}
		offset += len(page)
	}

	return cells, nil
}
