// Package forecast assembles viewport-filtered, year-indexed forecast
// datasets from the lattice and two overlapping metric sources.
package forecast

import (
	"github.com/properlytic/engine/internal/store"
)

// Record is the normalized per-cell output unit consumed by the renderer.
// Numeric fields are nullable; null must never be read as zero.
type Record struct {
	ID             string   `json:"id"`
	Lat            float64  `json:"lat"`
	Lng            float64  `json:"lng"`
	Opportunity    *float64 `json:"opportunity"`
	Reliability    *float64 `json:"reliability"`
	PropertyCount  *int64   `json:"property_count"`
	SampleAccuracy *float64 `json:"sample_accuracy"`
	AlertPct       *float64 `json:"alert_pct"`
	MedYears       *float64 `json:"med_years"`
	PredictedValue *float64 `json:"predicted_value"`
	HasData        bool     `json:"has_data"`
}

// mergeCell merges the two source rows for one (cell, year) key into a
// normalized record. Precedence is applied field by field: the secondary
// source wins when its field is non-null, then the primary, then null. A
// cell may take property_count from one source and opportunity from the
// other in the same merge.
//
// HasData reflects source presence, not field content: a row that exists
// with all-null metrics still counts as covered, so the renderer draws it
// as a neutral cell instead of a hole in the grid.
func mergeCell(cell store.GridCell, primary, secondary *store.MetricRow) Record {
	rec := Record{
		ID:      cell.ID,
		Lat:     cell.Lat,
		Lng:     cell.Lng,
		HasData: primary != nil || secondary != nil,
	}

	rec.Opportunity = coalesceFloat(fieldFloat(secondary, func(m *store.MetricRow) *float64 { return m.Opportunity }),
		fieldFloat(primary, func(m *store.MetricRow) *float64 { return m.Opportunity }))
	rec.Reliability = coalesceFloat(fieldFloat(secondary, func(m *store.MetricRow) *float64 { return m.Reliability }),
		fieldFloat(primary, func(m *store.MetricRow) *float64 { return m.Reliability }))
	rec.PropertyCount = coalesceInt(fieldInt(secondary, func(m *store.MetricRow) *int64 { return m.PropertyCount }),
		fieldInt(primary, func(m *store.MetricRow) *int64 { return m.PropertyCount }))
	rec.SampleAccuracy = coalesceFloat(fieldFloat(secondary, func(m *store.MetricRow) *float64 { return m.SampleAccuracy }),
		fieldFloat(primary, func(m *store.MetricRow) *float64 { return m.SampleAccuracy }))
	rec.AlertPct = coalesceFloat(fieldFloat(secondary, func(m *store.MetricRow) *float64 { return m.AlertPct }),
		fieldFloat(primary, func(m *store.MetricRow) *float64 { return m.AlertPct }))
	rec.MedYears = coalesceFloat(fieldFloat(secondary, func(m *store.MetricRow) *float64 { return m.MedYears }),
		fieldFloat(primary, func(m *store.MetricRow) *float64 { return m.MedYears }))
	rec.PredictedValue = coalesceFloat(fieldFloat(secondary, func(m *store.MetricRow) *float64 { return m.PredictedValue }),
		fieldFloat(primary, func(m *store.MetricRow) *float64 { return m.PredictedValue }))

	return rec
}

func fieldFloat(m *store.MetricRow, get func(*store.MetricRow) *float64) *float64 {
	if m == nil {
		return nil
	}
	return get(m)
}

func fieldInt(m *store.MetricRow, get func(*store.MetricRow) *int64) *int64 {
	if m == nil {
		return nil
	}
	return get(m)
}

func coalesceFloat(preferred, fallback *float64) *float64 {
	if preferred != nil {
		return preferred
	}
	return fallback
}

func coalesceInt(preferred, fallback *int64) *int64 {
	if preferred != nil {
		return preferred
	}
	return fallback
}
