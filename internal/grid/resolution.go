// Package grid maps camera state to H3 grid cells and geographic bounds.
package grid

import (
	h3 "github.com/uber/h3-go/v4"
)

// Resolution tiers served by the engine. Coarser resolutions cover more
// geography per cell.
const (
	MinResolution = 5
	MaxResolution = 9
)

// zoomTiers are exclusive lower bounds for the finer tier: a zoom exactly at
// a threshold belongs to the finer side.
var zoomTiers = [...]struct {
	below      float64
	resolution int
}{
	{10.5, 5},
	{12.0, 6},
	{13.5, 7},
	{15.0, 8},
}

// ResolutionForZoom picks the grid resolution for a continuous zoom level.
// A valid override wins unconditionally; invalid overrides are ignored.
// Pure and deterministic: the result is a cache-key component.
func ResolutionForZoom(zoom float64, override *int) int {
	if override != nil && *override >= MinResolution && *override <= MaxResolution {
		return *override
	}
	for _, tier := range zoomTiers {
		if zoom < tier.below {
			return tier.resolution
		}
	}
	return MaxResolution
}

// CellForPoint returns the H3 cell identifier containing a point at the
// given resolution.
func CellForPoint(lat, lng float64, resolution int) string {
	return h3.LatLngToCell(h3.NewLatLng(lat, lng), resolution).String()
}

// CellResolution reports the resolution encoded in a cell identifier, or -1
// if the identifier is not a valid cell.
func CellResolution(id string) int {
	cell := h3.Cell(h3.IndexFromString(id))
	if !cell.IsValid() {
		return -1
	}
	return cell.Resolution()
}

// CellCenter returns the centroid of a cell.
func CellCenter(id string) (lat, lng float64, ok bool) {
	cell := h3.Cell(h3.IndexFromString(id))
	if !cell.IsValid() {
		return 0, 0, false
	}
	ll := cell.LatLng()
	return ll.Lat, ll.Lng, true
}

// NeighborCells returns all cells within ringSize rings of the given cell,
// excluding the cell itself. Used for spatial fallback search.
func NeighborCells(id string, ringSize int) []string {
	cell := h3.Cell(h3.IndexFromString(id))
	if !cell.IsValid() || ringSize < 1 {
		return nil
	}
	disk := cell.GridDisk(ringSize)
	out := make([]string, 0, len(disk))
	for _, c := range disk {
		if c == cell {
			continue
		}
		out = append(out, c.String())
	}
	return out
}

// ChildCells returns the children of a cell at a finer resolution.
func ChildCells(id string, resolution int) []string {
	cell := h3.Cell(h3.IndexFromString(id))
	if !cell.IsValid() || resolution <= cell.Resolution() || resolution > MaxResolution {
		return nil
	}
	children := cell.Children(resolution)
	out := make([]string, 0, len(children))
	for _, c := range children {
		out = append(out, c.String())
	}
	return out
}

// CellBoundary returns the polygon boundary of a cell as (lat, lng) pairs.
func CellBoundary(id string) [][2]float64 {
	cell := h3.Cell(h3.IndexFromString(id))
	if !cell.IsValid() {
		return nil
	}
	boundary := cell.Boundary()
	out := make([][2]float64, 0, len(boundary))
	for _, ll := range boundary {
		out = append(out, [2]float64{ll.Lat, ll.Lng})
	}
	return out
}
