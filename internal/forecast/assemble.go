package forecast

import (
	"math"

	"github.com/properlytic/engine/internal/store"
)

// assemble builds the year-indexed result: for every requested year, one
// normalized record per lattice cell, in lattice order. The full lattice is
// iterated, not just cells with metric rows, so cells lacking data still
// appear as no-data placeholders and the renderer paints a continuous
// coverage layer.
//
// Rows with a non-finite coordinate or an empty identifier are dropped
// before merging: they are expected data-quality noise, and a non-finite
// coordinate silently breaks screen-space projection downstream.
func assemble(lattice []store.GridCell, years []int, metrics *metricSet) map[int][]Record {
	valid := lattice[:0:0]
	for _, cell := range lattice {
		if cell.ID == "" {
			continue
		}
		if !isFinite(cell.Lat) || !isFinite(cell.Lng) {
			continue
		}
		valid = append(valid, cell)
	}

	out := make(map[int][]Record, len(years))
	for _, year := range years {
		records := make([]Record, 0, len(valid))
		for _, cell := range valid {
			key := metricKey{CellID: cell.ID, Year: year}
			records = append(records, mergeCell(cell, metrics.primary[key], metrics.secondary[key]))
		}
		out[year] = records
	}
	return out
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
