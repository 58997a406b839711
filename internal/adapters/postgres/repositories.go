package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"threatlens/internal/domain"
)

const indicatorColumns = `id, type, value, source, tags, first_seen, last_seen`

func scanIndicator(row pgx.Row) (domain.Indicator, error) {
	var (
		ind domain.Indicator
		typ string
	)
	err := row.Scan(&ind.ID, &typ, &ind.Value, &ind.Source, &ind.Tags, &ind.FirstSeen, &ind.LastSeen)
	if errors.Is(err, pgx.ErrNoRows) {
		return ind, domain.ErrNotFound
	}
	ind.Type = domain.IndicatorType(typ)
	return ind, err
}

// IndicatorRepository
func (db *DB) UpsertIndicator(ctx context.Context, ind domain.Indicator) (domain.Indicator, error) {
	tags := ind.Tags
	if tags == nil {
		tags = []string{}
	}
	return scanIndicator(db.Pool.QueryRow(ctx, `
		INSERT INTO indicators (type, value, source, tags)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (value) DO UPDATE SET last_seen = now()
		RETURNING `+indicatorColumns,
		string(ind.Type), ind.Value, ind.Source, tags))
}

func (db *DB) GetIndicator(ctx context.Context, id string) (domain.Indicator, error) {
	return scanIndicator(db.Pool.QueryRow(ctx, `SELECT `+indicatorColumns+` FROM indicators WHERE id = $1`, id))
}

func (db *DB) FindIndicator(ctx context.Context, value string) (domain.Indicator, error) {
	return scanIndicator(db.Pool.QueryRow(ctx, `SELECT `+indicatorColumns+` FROM indicators WHERE value = $1`, value))
}

// OutcomeRepository
func (db *DB) AppendOutcomes(ctx context.Context, indicatorID string, outcomes []domain.EnrichmentOutcome) error {
	if len(outcomes) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, o := range outcomes {
		var score *float64
		if o.Success {
			s := o.Score
			score = &s
		}
		var kind *string
		if !o.Success {
			k := string(o.ErrorKind)
			kind = &k
		}
		batch.Queue(`
			INSERT INTO enrichment_outcomes
				(indicator_id, provider_id, signal_type, success, score, raw_detail, error_kind, error_message, attempts, latency_ms, enriched_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		`, indicatorID, o.ProviderID, string(o.SignalType), o.Success, score, o.RawDetail, kind,
			nullIfEmpty(o.ErrorMessage), o.Attempts, o.Latency.Milliseconds(), o.EnrichedAt)
	}
	return db.Pool.SendBatch(ctx, batch).Close()
}

func (db *DB) ListOutcomes(ctx context.Context, indicatorID string) ([]domain.EnrichmentOutcome, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT provider_id, signal_type, success, score, raw_detail, error_kind, error_message, attempts, latency_ms, enriched_at
		FROM enrichment_outcomes
		WHERE indicator_id = $1
		ORDER BY enriched_at, id
	`, indicatorID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.EnrichmentOutcome
	for rows.Next() {
		var (
			o         domain.EnrichmentOutcome
			signal    string
			score     *float64
			kind, msg *string
			latencyMS int64
		)
		if err := rows.Scan(&o.ProviderID, &signal, &o.Success, &score, &o.RawDetail, &kind, &msg, &o.Attempts, &latencyMS, &o.EnrichedAt); err != nil {
			return nil, err
		}
		o.SignalType = domain.SignalType(signal)
		if score != nil {
			o.Score = *score
		}
		if kind != nil {
			o.ErrorKind = domain.ErrorKind(*kind)
		}
		if msg != nil {
			o.ErrorMessage = *msg
		}
		o.Latency = time.Duration(latencyMS) * time.Millisecond
		out = append(out, o)
	}
	return out, rows.Err()
}

// VerdictRepository
func (db *DB) AppendVerdict(ctx context.Context, indicatorID string, v domain.Verdict) error {
	factors := v.KeyFactors
	if factors == nil {
		factors = []string{}
	}
	_, err := db.Pool.Exec(ctx, `
		INSERT INTO classifications
			(indicator_id, risk_level, risk_score, confidence, reasoning, key_factors, model, average_score, max_score, classified_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, indicatorID, string(v.RiskLevel), v.RiskScore, v.Confidence, v.Reasoning, factors, v.Model, v.AverageScore, v.MaxScore, v.ClassifiedAt)
	return err
}

func (db *DB) LatestVerdict(ctx context.Context, indicatorID string) (domain.Verdict, bool, error) {
	var (
		v     domain.Verdict
		level string
	)
	err := db.Pool.QueryRow(ctx, `
		SELECT risk_level, risk_score, confidence, reasoning, key_factors, model, average_score, max_score, classified_at
		FROM classifications
		WHERE indicator_id = $1
		ORDER BY classified_at DESC, id DESC
		LIMIT 1
	`, indicatorID).Scan(&level, &v.RiskScore, &v.Confidence, &v.Reasoning, &v.KeyFactors, &v.Model, &v.AverageScore, &v.MaxScore, &v.ClassifiedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return v, false, nil
	}
	if err != nil {
		return v, false, err
	}
	v.RiskLevel = domain.RiskLevel(level)
	return v, true, nil
}

// CountByRiskLevel counts each indicator once, by its latest verdict.
func (db *DB) CountByRiskLevel(ctx context.Context) (map[domain.RiskLevel]int, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT risk_level, count(*)
		FROM (
			SELECT DISTINCT ON (indicator_id) indicator_id, risk_level
			FROM classifications
			ORDER BY indicator_id, classified_at DESC, id DESC
		) latest
		GROUP BY risk_level
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[domain.RiskLevel]int)
	for rows.Next() {
		var (
			level string
			n     int
		)
		if err := rows.Scan(&level, &n); err != nil {
			return nil, err
		}
		out[domain.RiskLevel(level)] = n
	}
	return out, rows.Err()
}

func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
