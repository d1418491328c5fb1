package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements Datastore over a local SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) the forecast database at dbPath.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory for sqlite: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite: %w", err)
	}

	// Enable WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate: %w", err)
	}

	return s, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS lattice (
		area_id TEXT NOT NULL,
		resolution INTEGER NOT NULL,
		cell_id TEXT NOT NULL,
		lat REAL NOT NULL,
		lng REAL NOT NULL,
		PRIMARY KEY (area_id, resolution, cell_id)
	);

	CREATE INDEX IF NOT EXISTS idx_lattice_bounds ON lattice(area_id, resolution, lat, lng);

	CREATE TABLE IF NOT EXISTS metrics_primary (
		cell_id TEXT NOT NULL,
		year INTEGER NOT NULL,
		resolution INTEGER NOT NULL,
		opportunity REAL,
		reliability REAL,
		property_count INTEGER,
		sample_accuracy REAL,
		alert_pct REAL,
		med_years REAL,
		predicted_value REAL,
		PRIMARY KEY (cell_id, year, resolution)
	);

	CREATE TABLE IF NOT EXISTS metrics_secondary (
		cell_id TEXT NOT NULL,
		year INTEGER NOT NULL,
		resolution INTEGER NOT NULL,
		opportunity REAL,
		reliability REAL,
		property_count INTEGER,
		sample_accuracy REAL,
		alert_pct REAL,
		med_years REAL,
		predicted_value REAL,
		PRIMARY KEY (cell_id, year, resolution)
	);

	CREATE TABLE IF NOT EXISTS cell_detail (
		cell_id TEXT NOT NULL,
		year INTEGER NOT NULL,
		label TEXT DEFAULT '',
		lat REAL,
		lng REAL,
		opportunity REAL,
		opportunity_trend REAL,
		reliability REAL,
		score_volume REAL,
		score_dispersion REAL,
		score_recency REAL,
		score_coverage REAL,
		score_stability REAL,
		property_count INTEGER,
		sample_accuracy REAL,
		alert_pct REAL,
		med_years REAL,
		predicted_value REAL,
		gross_rent REAL,
		operating_expense REAL,
		net_income REAL,
		cap_rate REAL,
		risk_score REAL,
		risk_flood REAL,
		risk_market REAL,
		fan_p10_json TEXT,
		fan_p50_json TEXT,
		fan_p90_json TEXT,
		PRIMARY KEY (cell_id, year)
	);

	CREATE TABLE IF NOT EXISTS cell_history (
		cell_id TEXT NOT NULL,
		year INTEGER NOT NULL,
		value REAL,
		PRIMARY KEY (cell_id, year)
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// SelectLattice returns one page of lattice cells for an area and resolution,
// optionally restricted to a bounding box.
func (s *SQLiteStore) SelectLattice(ctx context.Context, areaID string, resolution int, bounds *Bounds, offset, limit int) ([]GridCell, error) {
	query := `
		SELECT cell_id, lat, lng FROM lattice
		WHERE area_id = ? AND resolution = ?
	`
	args := []interface{}{areaID, resolution}

	if bounds != nil {
		query += " AND lat >= ? AND lat <= ? AND lng >= ? AND lng <= ?"
		args = append(args, bounds.MinLat, bounds.MaxLat, bounds.MinLng, bounds.MaxLng)
	}

	query += " ORDER BY cell_id LIMIT ? OFFSET ?"
	args = append(args, limit, offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query lattice: %w", err)
	}
	defer rows.Close()

	var cells []GridCell
	for rows.Next() {
		var c GridCell
		if err := rows.Scan(&c.ID, &c.Lat, &c.Lng); err != nil {
			return nil, err
		}
		cells = append(cells, c)
	}
	return cells, rows.Err()
}

// SelectMetrics returns metric rows from one source for the given years and
// cell identifiers. Callers are responsible for keeping len(cellIDs)*len(years)
// under the per-request row cap.
func (s *SQLiteStore) SelectMetrics(ctx context.Context, source Source, resolution int, years []int, cellIDs []string) ([]MetricRow, error) {
	if len(cellIDs) == 0 || len(years) == 0 {
		return nil, nil
	}

	table := "metrics_primary"
	if source == SourceSecondary {
		table = "metrics_secondary"
	}

	query := fmt.Sprintf(`
		SELECT cell_id, year, opportunity, reliability, property_count,
		       sample_accuracy, alert_pct, med_years, predicted_value
		FROM %s
		WHERE resolution = ? AND year IN (%s) AND cell_id IN (%s)
	`, table, placeholders(len(years)), placeholders(len(cellIDs)))

	args := make([]interface{}, 0, 1+len(years)+len(cellIDs))
	args = append(args, resolution)
	for _, y := range years {
		args = append(args, y)
	}
	for _, id := range cellIDs {
		args = append(args, id)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", table, err)
	}
	defer rows.Close()

	var out []MetricRow
	for rows.Next() {
		var m MetricRow
		var opportunity, reliability, sampleAccuracy, alertPct, medYears, predictedValue sql.NullFloat64
		var propertyCount sql.NullInt64
		err := rows.Scan(&m.CellID, &m.Year, &opportunity, &reliability, &propertyCount,
			&sampleAccuracy, &alertPct, &medYears, &predictedValue)
		if err != nil {
			return nil, err
		}
		m.Opportunity = nullFloat(opportunity)
		m.Reliability = nullFloat(reliability)
		m.PropertyCount = nullInt(propertyCount)
		m.SampleAccuracy = nullFloat(sampleAccuracy)
		m.AlertPct = nullFloat(alertPct)
		m.MedYears = nullFloat(medYears)
		m.PredictedValue = nullFloat(predictedValue)
		out = append(out, m)
	}
	return out, rows.Err()
}

// SelectCellDetail returns the rich detail row for one cell and year, or
// ErrNotFound.
func (s *SQLiteStore) SelectCellDetail(ctx context.Context, cellID string, year int) (*DetailRow, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT cell_id, year, label, lat, lng,
		       opportunity, opportunity_trend,
		       reliability, score_volume, score_dispersion, score_recency, score_coverage, score_stability,
		       property_count, sample_accuracy, alert_pct, med_years, predicted_value,
		       gross_rent, operating_expense, net_income, cap_rate,
		       risk_score, risk_flood, risk_market,
		       fan_p10_json, fan_p50_json, fan_p90_json
		FROM cell_detail WHERE cell_id = ? AND year = ?
	`, cellID, year)

	var d DetailRow
	var lat, lng, opportunity, opportunityTrend sql.NullFloat64
	var reliability, scoreVolume, scoreDispersion, scoreRecency, scoreCoverage, scoreStability sql.NullFloat64
	var sampleAccuracy, alertPct, medYears, predictedValue sql.NullFloat64
	var grossRent, operatingExpense, netIncome, capRate sql.NullFloat64
	var riskScore, riskFlood, riskMarket sql.NullFloat64
	var propertyCount sql.NullInt64
	var fanP10, fanP50, fanP90 sql.NullString

	err := row.Scan(&d.CellID, &d.Year, &d.Label, &lat, &lng,
		&opportunity, &opportunityTrend,
		&reliability, &scoreVolume, &scoreDispersion, &scoreRecency, &scoreCoverage, &scoreStability,
		&propertyCount, &sampleAccuracy, &alertPct, &medYears, &predictedValue,
		&grossRent, &operatingExpense, &netIncome, &capRate,
		&riskScore, &riskFlood, &riskMarket,
		&fanP10, &fanP50, &fanP90)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	d.Lat = nullFloat(lat)
	d.Lng = nullFloat(lng)
	d.Opportunity = nullFloat(opportunity)
	d.OpportunityTrend = nullFloat(opportunityTrend)
	d.Reliability = nullFloat(reliability)
	d.ScoreVolume = nullFloat(scoreVolume)
	d.ScoreDispersion = nullFloat(scoreDispersion)
	d.ScoreRecency = nullFloat(scoreRecency)
	d.ScoreCoverage = nullFloat(scoreCoverage)
	d.ScoreStability = nullFloat(scoreStability)
	d.PropertyCount = nullInt(propertyCount)
	d.SampleAccuracy = nullFloat(sampleAccuracy)
	d.AlertPct = nullFloat(alertPct)
	d.MedYears = nullFloat(medYears)
	d.PredictedValue = nullFloat(predictedValue)
	d.GrossRent = nullFloat(grossRent)
	d.OperatingExpense = nullFloat(operatingExpense)
	d.NetIncome = nullFloat(netIncome)
	d.CapRate = nullFloat(capRate)
	d.RiskScore = nullFloat(riskScore)
	d.RiskFlood = nullFloat(riskFlood)
	d.RiskMarket = nullFloat(riskMarket)

	if d.FanP10, err = unmarshalFan(fanP10); err != nil {
		return nil, fmt.Errorf("failed to unmarshal fan p10: %w", err)
	}
	if d.FanP50, err = unmarshalFan(fanP50); err != nil {
		return nil, fmt.Errorf("failed to unmarshal fan p50: %w", err)
	}
	if d.FanP90, err = unmarshalFan(fanP90); err != nil {
		return nil, fmt.Errorf("failed to unmarshal fan p90: %w", err)
	}

	return &d, nil
}

// SelectCellHistory returns the historical value series for one cell over a
// closed year range, ordered by year.
func (s *SQLiteStore) SelectCellHistory(ctx context.Context, cellID string, fromYear, toYear int) ([]HistoryPoint, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT year, value FROM cell_history
		WHERE cell_id = ? AND year >= ? AND year <= ?
		ORDER BY year ASC
	`, cellID, fromYear, toYear)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer rows.Close()

	var out []HistoryPoint
	for rows.Next() {
		var p HistoryPoint
		var value sql.NullFloat64
		if err := rows.Scan(&p.Year, &value); err != nil {
			return nil, err
		}
		p.Value = nullFloat(value)
		out = append(out, p)
	}
	return out, rows.Err()
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func nullFloat(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}

func nullInt(v sql.NullInt64) *int64 {
	if !v.Valid {
		return nil
	}
	i := v.Int64
	return &i
}

func unmarshalFan(v sql.NullString) ([]float64, error) {
	if !v.Valid || v.String == "" {
		return nil, nil
	}
	var out []float64
	if err := json.Unmarshal([]byte(v.String), &out); err != nil {
		return nil, err
	}
	return out, nil
}
