package forecast

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/properlytic/engine/internal/grid"
	"github.com/properlytic/engine/internal/store"
)

// ErrDetailNotFound is returned when neither the rich detail source nor the
// legacy fallback has a row for the requested cell. Callers treat it as
// "nothing to show", not a fault.
var ErrDetailNotFound = errors.New("forecast: cell detail not found")

// Opportunity is the forecast change estimate with display metadata.
type Opportunity struct {
	Value *float64 `json:"value"`
	Unit  string   `json:"unit"`
	Trend *float64 `json:"trend"`
}

// ReliabilityScore is the composite confidence score and its named
// sub-components.
type ReliabilityScore struct {
	Value      *float64 `json:"value"`
	Volume     *float64 `json:"volume"`
	Dispersion *float64 `json:"dispersion"`
	Recency    *float64 `json:"recency"`
	Coverage   *float64 `json:"coverage"`
	Stability  *float64 `json:"stability"`
}

// Proforma is the financial block, populated only from the richer source.
type Proforma struct {
	GrossRent        *float64 `json:"gross_rent"`
	OperatingExpense *float64 `json:"operating_expense"`
	NetIncome        *float64 `json:"net_income"`
	CapRate          *float64 `json:"cap_rate"`
}

// RiskBlock is the risk-scoring block, populated only from the richer source.
type RiskBlock struct {
	Score  *float64 `json:"score"`
	Flood  *float64 `json:"flood"`
	Market *float64 `json:"market"`
}

// FanChart holds percentile bands over the forecast horizon. It is drawn
// from the baseline-year snapshot so the chart does not jump while the user
// scrubs the timeline.
type FanChart struct {
	SourceYear int       `json:"source_year"`
	Years      []int     `json:"years"`
	P10        []float64 `json:"p10"`
	P50        []float64 `json:"p50"`
	P90        []float64 `json:"p90"`
}

// CellDetail is the full attribute detail for one selected cell. In the
// degraded fallback shape, Proforma, Risk, and Fan are absent (nil), never
// zero-filled: "field absent" and "field present but zero" render
// differently.
type CellDetail struct {
	CellID         string              `json:"cell_id"`
	Year           int                 `json:"year"`
	Label          string              `json:"label,omitempty"`
	Lat            *float64            `json:"lat"`
	Lng            *float64            `json:"lng"`
	Opportunity    Opportunity         `json:"opportunity"`
	Reliability    ReliabilityScore    `json:"reliability"`
	PropertyCount  *int64              `json:"property_count"`
	SampleAccuracy *float64            `json:"sample_accuracy"`
	AlertPct       *float64            `json:"alert_pct"`
	MedYears       *float64            `json:"med_years"`
	PredictedValue *float64            `json:"predicted_value"`
	Proforma       *Proforma           `json:"proforma,omitempty"`
	Risk           *RiskBlock          `json:"risk,omitempty"`
	History        []store.HistoryPoint `json:"history,omitempty"`
	Fan            *FanChart           `json:"fan,omitempty"`
	Degraded       bool                `json:"degraded"`
}

// DetailConfig contains detail resolver configuration.
type DetailConfig struct {
	Store        store.Datastore
	Logger       *slog.Logger
	BaselineYear int
	HistoryFrom  int
	HistoryTo    int
}

// DetailResolver fetches full single-cell detail with a two-tier fallback:
// the rich detail source first, then the legacy metric source. The
// transition is one-way; there is no path back to the rich shape within a
// lookup.
type DetailResolver struct {
	store        store.Datastore
	logger       *slog.Logger
	baselineYear int
	historyFrom  int
	historyTo    int
}

// NewDetailResolver creates a new detail resolver.
func NewDetailResolver(cfg DetailConfig) *DetailResolver {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &DetailResolver{
		store:        cfg.Store,
		logger:       logger,
		baselineYear: cfg.BaselineYear,
		historyFrom:  cfg.HistoryFrom,
		historyTo:    cfg.HistoryTo,
	}
}

// Resolve returns the detail for one cell and year, or ErrDetailNotFound
// when both tiers come up empty.
func (r *DetailResolver) Resolve(ctx context.Context, cellID string, year int) (*CellDetail, error) {
	row, err := r.store.SelectCellDetail(ctx, cellID, year)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			r.logger.Warn("detail lookup failed, degrading to legacy source",
				"cell", cellID, "year", year, "error", err)
		}
		return r.resolveFallback(ctx, cellID, year)
	}
	return r.resolvePrimary(ctx, row)
}

func (r *DetailResolver) resolvePrimary(ctx context.Context, row *store.DetailRow) (*CellDetail, error) {
	detail := &CellDetail{
		CellID: row.CellID,
		Year:   row.Year,
		Label:  row.Label,
		Lat:    row.Lat,
		Lng:    row.Lng,
		Opportunity: Opportunity{
			Value: row.Opportunity,
			Unit:  "pct_per_year",
			Trend: row.OpportunityTrend,
		},
		Reliability: ReliabilityScore{
			Value:      row.Reliability,
			Volume:     row.ScoreVolume,
			Dispersion: row.ScoreDispersion,
			Recency:    row.ScoreRecency,
			Coverage:   row.ScoreCoverage,
			Stability:  row.ScoreStability,
		},
		PropertyCount:  row.PropertyCount,
		SampleAccuracy: row.SampleAccuracy,
		AlertPct:       row.AlertPct,
		MedYears:       row.MedYears,
		PredictedValue: row.PredictedValue,
	}

	if row.GrossRent != nil || row.OperatingExpense != nil || row.NetIncome != nil || row.CapRate != nil {
		detail.Proforma = &Proforma{
			GrossRent:        row.GrossRent,
			OperatingExpense: row.OperatingExpense,
			NetIncome:        row.NetIncome,
			CapRate:          row.CapRate,
		}
	}
	if row.RiskScore != nil || row.RiskFlood != nil || row.RiskMarket != nil {
		detail.Risk = &RiskBlock{
			Score:  row.RiskScore,
			Flood:  row.RiskFlood,
			Market: row.RiskMarket,
		}
	}

	// The history window is fixed, independent of the requested year.
	history, err := r.store.SelectCellHistory(ctx, row.CellID, r.historyFrom, r.historyTo)
	if err != nil {
		r.logger.Warn("history fetch failed, omitting series", "cell", row.CellID, "error", err)
	} else {
		detail.History = history
	}

	detail.Fan = r.fanForCell(ctx, row)
	return detail, nil
}

// fanForCell sources fan percentiles from the baseline-year snapshot when
// the requested year differs, so the chart stays stable across timeline
// scrubs. When that snapshot is unavailable, the row's own percentile
// columns are used.
func (r *DetailResolver) fanForCell(ctx context.Context, row *store.DetailRow) *FanChart {
	if row.Year != r.baselineYear {
		baseRow, err := r.store.SelectCellDetail(ctx, row.CellID, r.baselineYear)
		if err == nil {
			if fan := fanFromRow(baseRow); fan != nil {
				return fan
			}
		} else if !errors.Is(err, store.ErrNotFound) {
			r.logger.Warn("baseline fan lookup failed", "cell", row.CellID, "error", err)
		}
	}
	return fanFromRow(row)
}

func fanFromRow(row *store.DetailRow) *FanChart {
	n := len(row.FanP50)
	if n == 0 || len(row.FanP10) != n || len(row.FanP90) != n {
		return nil
	}
	years := make([]int, n)
	for i := range years {
		years[i] = row.Year + 1 + i
	}
	return &FanChart{
		SourceYear: row.Year,
		Years:      years,
		P10:        row.FanP10,
		P50:        row.FanP50,
		P90:        row.FanP90,
	}
}

// resolveFallback builds the degraded shape from the legacy metric source.
func (r *DetailResolver) resolveFallback(ctx context.Context, cellID string, year int) (*CellDetail, error) {
	resolution := grid.CellResolution(cellID)
	if resolution < 0 {
		return nil, fmt.Errorf("invalid cell identifier %q: %w", cellID, ErrDetailNotFound)
	}

	rows, err := r.store.SelectMetrics(ctx, store.SourcePrimary, resolution, []int{year}, []string{cellID})
	if err != nil {
		return nil, fmt.Errorf("fallback detail lookup failed: %w", err)
	}
	if len(rows) == 0 {
		return nil, ErrDetailNotFound
	}
	row := rows[0]

	detail := &CellDetail{
		CellID: cellID,
		Year:   year,
		Opportunity: Opportunity{
			Value: row.Opportunity,
			Unit:  "pct_per_year",
		},
		Reliability:    ReliabilityScore{Value: row.Reliability},
		PropertyCount:  row.PropertyCount,
		SampleAccuracy: row.SampleAccuracy,
		AlertPct:       row.AlertPct,
		MedYears:       row.MedYears,
		PredictedValue: row.PredictedValue,
		Degraded:       true,
	}
	if lat, lng, ok := grid.CellCenter(cellID); ok {
		detail.Lat = &lat
		detail.Lng = &lng
	}
	return detail, nil
}
