// Package sqlite implements the persistence ports on an embedded SQLite file
// through the pure Go modernc driver.
package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/google/uuid"
	"github.com/pressly/goose/v3"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"threatlens/internal/domain"
	"threatlens/internal/ports"
)

//go:embed migrations/*.sql
var migrations embed.FS

// Store keeps timestamps as unix nanoseconds and JSON columns as text.
type Store struct {
	db     *sql.DB
	logger *zap.Logger
	now    func() time.Time
}

var _ ports.Store = (*Store)(nil)

// Open opens (creating if needed) the database at path and applies pending
// migrations.
func Open(ctx context.Context, path string, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	dsn := fmt.Sprintf("file:%s?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One writer; claims rely on it.
	db.SetMaxOpenConns(1)

	s := &Store{db: db, logger: logger, now: time.Now}
	applied, err := s.Migrate(ctx)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	logger.Info("sqlite store ready", zap.String("db_path", path), zap.Int("migrations_applied", applied))
	return s, nil
}

func (s *Store) Migrate(ctx context.Context) (int, error) {
	fsys, err := fs.Sub(migrations, "migrations")
	if err != nil {
		return 0, err
	}
	provider, err := goose.NewProvider(goose.DialectSQLite3, s.db, fsys)
	if err != nil {
		return 0, fmt.Errorf("goose provider: %w", err)
	}
	results, err := provider.Up(ctx)
	return len(results), err
}

func (s *Store) Close() {
	if err := s.db.Close(); err != nil {
		s.logger.Error("close sqlite", zap.Error(err))
	}
}

func (s *Store) UpsertIndicator(ctx context.Context, ind domain.Indicator) (domain.Indicator, error) {
	tags := ind.Tags
	if tags == nil {
		tags = []string{}
	}
	tagsJSON, err := json.Marshal(tags)
	if err != nil {
		return domain.Indicator{}, err
	}
	now := s.now().UnixNano()
	return scanIndicator(s.db.QueryRowContext(ctx, `
		INSERT INTO indicators (id, type, value, source, tags, first_seen, last_seen)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(value) DO UPDATE SET last_seen = excluded.last_seen
		RETURNING `+indicatorColumns,
		uuid.NewString(), string(ind.Type), ind.Value, ind.Source, string(tagsJSON), now, now))
}

func (s *Store) GetIndicator(ctx context.Context, id string) (domain.Indicator, error) {
	return scanIndicator(s.db.QueryRowContext(ctx, `SELECT `+indicatorColumns+` FROM indicators WHERE id = ?`, id))
}

func (s *Store) FindIndicator(ctx context.Context, value string) (domain.Indicator, error) {
	return scanIndicator(s.db.QueryRowContext(ctx, `SELECT `+indicatorColumns+` FROM indicators WHERE value = ?`, value))
}

const indicatorColumns = `id, type, value, source, tags, first_seen, last_seen`

func scanIndicator(row *sql.Row) (domain.Indicator, error) {
	var (
		ind             domain.Indicator
		typ, tags       string
		first, lastSeen int64
	)
	err := row.Scan(&ind.ID, &typ, &ind.Value, &ind.Source, &tags, &first, &lastSeen)
	if errors.Is(err, sql.ErrNoRows) {
		return ind, domain.ErrNotFound
	}
	if err != nil {
		return ind, err
	}
	ind.Type = domain.IndicatorType(typ)
	ind.FirstSeen = time.Unix(0, first).UTC()
	ind.LastSeen = time.Unix(0, lastSeen).UTC()
	if err := json.Unmarshal([]byte(tags), &ind.Tags); err != nil {
		return ind, fmt.Errorf("decode tags: %w", err)
	}
	return ind, nil
}

func (s *Store) AppendOutcomes(ctx context.Context, indicatorID string, outcomes []domain.EnrichmentOutcome) (err error) {
	if len(outcomes) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		} else {
			err = tx.Commit()
		}
	}()

	for _, o := range outcomes {
		var (
			score  sql.NullFloat64
			kind   sql.NullString
			msg    sql.NullString
			detail sql.NullString
		)
		if o.Success {
			score = sql.NullFloat64{Float64: o.Score, Valid: true}
		} else {
			kind = sql.NullString{String: string(o.ErrorKind), Valid: true}
		}
		if o.ErrorMessage != "" {
			msg = sql.NullString{String: o.ErrorMessage, Valid: true}
		}
		if o.RawDetail != nil {
			b, mErr := json.Marshal(o.RawDetail)
			if mErr != nil {
				return fmt.Errorf("encode detail for %s: %w", o.ProviderID, mErr)
			}
			detail = sql.NullString{String: string(b), Valid: true}
		}
		if _, err = tx.ExecContext(ctx, `
			INSERT INTO enrichment_outcomes
				(indicator_id, provider_id, signal_type, success, score, raw_detail, error_kind, error_message, attempts, latency_ms, enriched_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, indicatorID, o.ProviderID, string(o.SignalType), o.Success, score, detail, kind, msg,
			o.Attempts, o.Latency.Milliseconds(), o.EnrichedAt.UnixNano()); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) ListOutcomes(ctx context.Context, indicatorID string) ([]domain.EnrichmentOutcome, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT provider_id, signal_type, success, score, raw_detail, error_kind, error_message, attempts, latency_ms, enriched_at
		FROM enrichment_outcomes
		WHERE indicator_id = ?
		ORDER BY enriched_at, id
	`, indicatorID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.EnrichmentOutcome
	for rows.Next() {
		var (
			o                 domain.EnrichmentOutcome
			signal            string
			score             sql.NullFloat64
			detail, kind, msg sql.NullString
			latencyMS, at     int64
		)
		if err := rows.Scan(&o.ProviderID, &signal, &o.Success, &score, &detail, &kind, &msg, &o.Attempts, &latencyMS, &at); err != nil {
			return nil, err
		}
		o.SignalType = domain.SignalType(signal)
		o.Score = score.Float64
		o.ErrorKind = domain.ErrorKind(kind.String)
		o.ErrorMessage = msg.String
		o.Latency = time.Duration(latencyMS) * time.Millisecond
		o.EnrichedAt = time.Unix(0, at).UTC()
		if detail.Valid {
			if err := json.Unmarshal([]byte(detail.String), &o.RawDetail); err != nil {
				return nil, fmt.Errorf("decode detail for %s: %w", o.ProviderID, err)
			}
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

func (s *Store) AppendVerdict(ctx context.Context, indicatorID string, v domain.Verdict) error {
	factors := v.KeyFactors
	if factors == nil {
		factors = []string{}
	}
	b, err := json.Marshal(factors)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO classifications
			(indicator_id, risk_level, risk_score, confidence, reasoning, key_factors, model, average_score, max_score, classified_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, indicatorID, string(v.RiskLevel), v.RiskScore, v.Confidence, v.Reasoning, string(b), v.Model,
		v.AverageScore, v.MaxScore, v.ClassifiedAt.UnixNano())
	return err
}

func (s *Store) LatestVerdict(ctx context.Context, indicatorID string) (domain.Verdict, bool, error) {
	var (
		v              domain.Verdict
		level, factors string
		at             int64
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT risk_level, risk_score, confidence, reasoning, key_factors, model, average_score, max_score, classified_at
		FROM classifications
		WHERE indicator_id = ?
		ORDER BY classified_at DESC, id DESC
		LIMIT 1
	`, indicatorID).Scan(&level, &v.RiskScore, &v.Confidence, &v.Reasoning, &factors, &v.Model, &v.AverageScore, &v.MaxScore, &at)
	if errors.Is(err, sql.ErrNoRows) {
		return v, false, nil
	}
	if err != nil {
		return v, false, err
	}
	v.RiskLevel = domain.RiskLevel(level)
	v.ClassifiedAt = time.Unix(0, at).UTC()
	if err := json.Unmarshal([]byte(factors), &v.KeyFactors); err != nil {
		return v, false, fmt.Errorf("decode key factors: %w", err)
	}
	return v, true, nil
}

func (s *Store) CountByRiskLevel(ctx context.Context) (map[domain.RiskLevel]int, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT c.risk_level, COUNT(*)
		FROM classifications c
		WHERE c.id = (
			SELECT c2.id FROM classifications c2
			WHERE c2.indicator_id = c.indicator_id
			ORDER BY c2.classified_at DESC, c2.id DESC
			LIMIT 1
		)
		GROUP BY c.risk_level
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
