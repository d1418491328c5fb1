// Package store defines the datastore query surface for the forecast engine.
package store

import (
	"context"
	"errors"
)

// ErrNotFound is returned by single-row lookups when no row exists.
var ErrNotFound = errors.New("store: not found")

// Source identifies one of the two overlapping metric sources.
type Source string

const (
	// SourcePrimary is the legacy, coarser metric source.
	SourcePrimary Source = "primary"
	// SourceSecondary is the richer, canonical metric source. Its fields win
	// on merge when non-null.
	SourceSecondary Source = "secondary"
)

// Bounds is a geographic bounding box.
type Bounds struct {
	MinLat float64 `json:"min_lat"`
	MaxLat float64 `json:"max_lat"`
	MinLng float64 `json:"min_lng"`
	MaxLng float64 `json:"max_lng"`
}

// GridCell is one entry of the static lattice for an (area, resolution).
type GridCell struct {
	ID  string  `json:"id"`
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// MetricRow is a per-(cell, year) forecast row from one source. Numeric
// fields are nullable; neither source is guaranteed complete.
type MetricRow struct {
	CellID         string
	Year           int
	Opportunity    *float64
	Reliability    *float64
	PropertyCount  *int64
	SampleAccuracy *float64
	AlertPct       *float64
	MedYears       *float64
	PredictedValue *float64
}

// DetailRow is the rich per-cell detail row. Proforma, risk, and fan fields
// are populated only when the richer source has them.
type DetailRow struct {
	CellID string
	Year   int
	Label  string
	Lat    *float64
	Lng    *float64

	Opportunity      *float64
	OpportunityTrend *float64

	Reliability     *float64
	ScoreVolume     *float64
	ScoreDispersion *float64
	ScoreRecency    *float64
	ScoreCoverage   *float64
	ScoreStability  *float64

	PropertyCount  *int64
	SampleAccuracy *float64
	AlertPct       *float64
	MedYears       *float64
	PredictedValue *float64

	GrossRent        *float64
	OperatingExpense *float64
	NetIncome        *float64
	CapRate          *float64

	RiskScore  *float64
	RiskFlood  *float64
	RiskMarket *float64

	// Percentile fan over a 5-year horizon, nil when the source has none.
	FanP10 []float64
	FanP50 []float64
	FanP90 []float64
}

// HistoryPoint is one year of the historical value series.
type HistoryPoint struct {
	Year  int      `json:"year"`
	Value *float64 `json:"value"`
}

// Datastore is the external query surface the engine depends on.
//
// SelectLattice supports range pagination; callers page until a short page.
// SelectMetrics carries a fixed per-request row cap (~1000 rows) that callers
// must respect by chunking cellIDs against the year fan-out.
// SelectCellDetail returns ErrNotFound when no row exists for the key.
type Datastore interface {
	SelectLattice(ctx context.Context, areaID string, resolution int, bounds *Bounds, offset, limit int) ([]GridCell, error)
	SelectMetrics(ctx context.Context, source Source, resolution int, years []int, cellIDs []string) ([]MetricRow, error)
	SelectCellDetail(ctx context.Context, cellID string, year int) (*DetailRow, error)
	SelectCellHistory(ctx context.Context, cellID string, fromYear, toYear int) ([]HistoryPoint, error)
}
