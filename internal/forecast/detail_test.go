package forecast

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/properlytic/engine/internal/grid"
	"github.com/properlytic/engine/internal/store"
)

func newTestDetailResolver(ms *mockStore) *DetailResolver {
	return NewDetailResolver(DetailConfig{
		Store:        ms,
		Logger:       slog.New(slog.NewTextHandler(io.Discard, nil)),
		BaselineYear: 2026,
		HistoryFrom:  2019,
		HistoryTo:    2025,
	})
}

func detailRow(cellID string, year int, fanBase float64) *store.DetailRow {
	return &store.DetailRow{
		CellID:      cellID,
		Year:        year,
		Label:       "East Austin",
		Lat:         fptr(30.26),
		Lng:         fptr(-97.72),
		Opportunity: fptr(0.055),
		Reliability: fptr(0.81),
		ScoreVolume: fptr(0.2), ScoreDispersion: fptr(0.15), ScoreRecency: fptr(0.18),
		ScoreCoverage: fptr(0.14), ScoreStability: fptr(0.14),
		PropertyCount:  iptr(900),
		PredictedValue: fptr(420000),
		GrossRent:      fptr(28000),
		NetIncome:      fptr(19000),
		RiskScore:      fptr(0.3),
		FanP10:         []float64{fanBase - 10, fanBase - 20, fanBase - 30, fanBase - 40, fanBase - 50},
		FanP50:         []float64{fanBase, fanBase + 5, fanBase + 10, fanBase + 15, fanBase + 20},
		FanP90:         []float64{fanBase + 10, fanBase + 25, fanBase + 40, fanBase + 55, fanBase + 70},
	}
}

func TestResolve_PrimaryWithBaselineFan(t *testing.T) {
	cellID := grid.CellForPoint(30.2672, -97.7431, 8)
	var historyFrom, historyTo int

	ms := &mockStore{
		selectCellDetail: func(id string, year int) (*store.DetailRow, error) {
			switch year {
			case 2028:
				return detailRow(id, 2028, 500), nil
			case 2026:
				return detailRow(id, 2026, 400), nil
			}
			return nil, store.ErrNotFound
		},
		selectCellHistory: func(id string, from, to int) ([]store.HistoryPoint, error) {
			historyFrom, historyTo = from, to
			return []store.HistoryPoint{{Year: 2019, Value: fptr(300000)}, {Year: 2025, Value: fptr(390000)}}, nil
		},
	}
	r := newTestDetailResolver(ms)

	detail, err := r.Resolve(context.Background(), cellID, 2028)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if detail.Degraded {
		t.Errorf("primary hit must not be degraded")
	}
	if detail.Proforma == nil || detail.Risk == nil {
		t.Errorf("rich blocks missing: proforma=%v risk=%v", detail.Proforma, detail.Risk)
	}

	// Fan must come from the baseline snapshot, not the scrubbed year.
	if detail.Fan == nil || detail.Fan.SourceYear != 2026 {
		t.Fatalf("fan should be sourced from baseline 2026, got %+v", detail.Fan)
	}
	if detail.Fan.P50[0] != 400 {
		t.Errorf("fan values should be the baseline's, got %v", detail.Fan.P50[0])
	}
	if detail.Fan.Years[0] != 2027 || detail.Fan.Years[4] != 2031 {
		t.Errorf("fan horizon wrong: %v", detail.Fan.Years)
	}

	// The history window is fixed, independent of the requested year.
	if historyFrom != 2019 || historyTo != 2025 {
		t.Errorf("history window = [%d, %d], want [2019, 2025]", historyFrom, historyTo)
	}
	if len(detail.History) != 2 {
		t.Errorf("history lost: %v", detail.History)
	}
}

func TestResolve_BaselineYearUsesOwnFan(t *testing.T) {
	cellID := grid.CellForPoint(30.2672, -97.7431, 8)
	ms := &mockStore{
		selectCellDetail: func(id string, year int) (*store.DetailRow, error) {
			if year == 2026 {
				return detailRow(id, 2026, 400), nil
			}
			return nil, store.ErrNotFound
		},
	}
	r := newTestDetailResolver(ms)

	detail, err := r.Resolve(context.Background(), cellID, 2026)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if detail.Fan == nil || detail.Fan.SourceYear != 2026 {
		t.Errorf("baseline year should use its own fan: %+v", detail.Fan)
	}
	// No second detail lookup needed when year == baseline.
	if ms.detailCalls != 1 {
		t.Errorf("expected 1 detail lookup, got %d", ms.detailCalls)
	}
}

func TestResolve_MissingBaselineFallsBackToOwnFan(t *testing.T) {
	cellID := grid.CellForPoint(30.2672, -97.7431, 8)
	ms := &mockStore{
		selectCellDetail: func(id string, year int) (*store.DetailRow, error) {
			if year == 2029 {
				return detailRow(id, 2029, 550), nil
			}
			return nil, store.ErrNotFound
		},
	}
	r := newTestDetailResolver(ms)

	detail, err := r.Resolve(context.Background(), cellID, 2029)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if detail.Fan == nil || detail.Fan.SourceYear != 2029 {
		t.Errorf("missing baseline snapshot should fall back to the row's own fan: %+v", detail.Fan)
	}
}

func TestResolve_DegradedFallback(t *testing.T) {
	cellID := grid.CellForPoint(30.2672, -97.7431, 8)
	ms := &mockStore{
		selectMetrics: func(source store.Source, resolution int, years []int, cellIDs []string) ([]store.MetricRow, error) {
			if source != store.SourcePrimary {
				t.Errorf("fallback must query the legacy source, got %s", source)
			}
			if resolution != 8 {
				t.Errorf("fallback resolution should be introspected from the cell id, got %d", resolution)
			}
			return []store.MetricRow{{
				CellID:         cellIDs[0],
				Year:           years[0],
				Opportunity:    fptr(0.03),
				PredictedValue: fptr(310000),
			}}, nil
		},
	}
	r := newTestDetailResolver(ms)

	detail, err := r.Resolve(context.Background(), cellID, 2027)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if !detail.Degraded {
		t.Errorf("fallback shape must be marked degraded")
	}
	// Rich-only blocks are absent, not zero-filled: N/A renders differently
	// from $0.
	if detail.Proforma != nil || detail.Risk != nil || detail.Fan != nil {
		t.Errorf("fallback must not synthesize rich blocks: %+v", detail)
	}
	if detail.Opportunity.Value == nil || *detail.Opportunity.Value != 0.03 {
		t.Errorf("fallback metrics lost: %+v", detail.Opportunity)
	}
	if detail.Lat == nil || detail.Lng == nil {
		t.Errorf("fallback should derive coordinates from the cell id")
	}
}

func TestResolve_NotFoundInBothTiers(t *testing.T) {
	cellID := grid.CellForPoint(30.2672, -97.7431, 8)
	ms := &mockStore{}
	r := newTestDetailResolver(ms)

	_, err := r.Resolve(context.Background(), cellID, 2027)
	if !errors.Is(err, ErrDetailNotFound) {
		t.Fatalf("expected ErrDetailNotFound, got %v", err)
	}
}

func TestResolve_InvalidCellID(t *testing.T) {
	ms := &mockStore{}
	r := newTestDetailResolver(ms)

	_, err := r.Resolve(context.Background(), "not-a-cell", 2027)
	if !errors.Is(err, ErrDetailNotFound) {
		t.Fatalf("expected ErrDetailNotFound for invalid id, got %v", err)
	}
}
