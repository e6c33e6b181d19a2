package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/Checker-Finance/assetcache/pkg/model"
)

const postgresSchema = `
CREATE SCHEMA IF NOT EXISTS cache;
CREATE TABLE IF NOT EXISTS cache.assets (
	id                  TEXT PRIMARY KEY,
	rank                TEXT NOT NULL,
	symbol              TEXT NOT NULL,
	name                TEXT NOT NULL,
	supply              TEXT NOT NULL,
	max_supply          TEXT,
	market_cap_usd      TEXT NOT NULL,
	volume_usd_24hr     TEXT NOT NULL,
	price_usd           TEXT NOT NULL,
	change_percent_24hr TEXT NOT NULL,
	vwap_24hr           TEXT,
	explorer            TEXT,
	saved_timestamp     BIGINT NOT NULL
);
CREATE TABLE IF NOT EXISTS cache.preferences (
	key        TEXT PRIMARY KEY,
	value      BIGINT NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
`

// rank is compared numerically when it looks like a number; anything else sorts as 0.
const pgRankOrder = `CASE WHEN rank ~ '^-?[0-9]+(\.[0-9]+)?$' THEN rank::numeric ELSE 0 END, id`

type PGPoolConfig struct {
	MaxConns          int32
	MinConns          int32
	MaxConnLifetime   time.Duration
	MaxConnIdleTime   time.Duration
	HealthCheckPeriod time.Duration
}

// PostgresStore keeps the cache in the cache schema of a shared database.
type PostgresStore struct {
	PG     *pgxpool.Pool
	logger *zap.Logger
}

// NewPostgres connects, applies the schema and returns the store.
func NewPostgres(ctx context.Context, pgURL string, poolCfg PGPoolConfig, logger *zap.Logger) (*PostgresStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg, err := pgxpool.ParseConfig(pgURL)
	if err != nil {
		return nil, fmt.Errorf("invalid pg config: %w", err)
	}
	if poolCfg.MaxConns > 0 {
		cfg.MaxConns = poolCfg.MaxConns
	}
	if poolCfg.MinConns > 0 {
		cfg.MinConns = poolCfg.MinConns
	}
	if poolCfg.MaxConnLifetime > 0 {
		cfg.MaxConnLifetime = poolCfg.MaxConnLifetime
	}
	if poolCfg.MaxConnIdleTime > 0 {
		cfg.MaxConnIdleTime = poolCfg.MaxConnIdleTime
	}
	if poolCfg.HealthCheckPeriod > 0 {
		cfg.HealthCheckPeriod = poolCfg.HealthCheckPeriod
	}

	connectCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(connectCtx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}
	if _, err := pool.Exec(connectCtx, postgresSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("apply cache schema: %w", err)
	}
	return &PostgresStore{PG: pool, logger: logger}, nil
}

func (s *PostgresStore) ready() error {
	if s == nil || s.PG == nil {
		return fmt.Errorf("postgres unavailable: %w", ErrClosed)
	}
	return nil
}

func (s *PostgresStore) GetAll(ctx context.Context) ([]model.CachedRecord, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	rows, err := s.PG.Query(ctx, `SELECT `+assetColumns+` FROM cache.assets ORDER BY `+pgRankOrder)
	if err != nil {
		return nil, fmt.Errorf("query assets: %w", err)
	}
	defer rows.Close()

	var out []model.CachedRecord
	for rows.Next() {
		var r model.CachedRecord
		if err := rows.Scan(
			&r.ID, &r.Rank, &r.Symbol, &r.Name, &r.Supply, &r.MaxSupply,
			&r.MarketCapUsd, &r.VolumeUsd24Hr, &r.PriceUsd, &r.ChangePercent24Hr,
			&r.Vwap24Hr, &r.Explorer, &r.SavedTimestamp,
		); err != nil {
			return nil, fmt.Errorf("scan asset: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *PostgresStore) GetByID(ctx context.Context, id string) (*model.CachedRecord, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	var r model.CachedRecord
	err := s.PG.QueryRow(ctx, `SELECT `+assetColumns+` FROM cache.assets WHERE id = $1`, id).Scan(
		&r.ID, &r.Rank, &r.Symbol, &r.Name, &r.Supply, &r.MaxSupply,
		&r.MarketCapUsd, &r.VolumeUsd24Hr, &r.PriceUsd, &r.ChangePercent24Hr,
		&r.Vwap24Hr, &r.Explorer, &r.SavedTimestamp,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("GetByID scan failed: %w", err)
	}
	return &r, nil
}

func (s *PostgresStore) ReplaceAll(ctx context.Context, records []model.CachedRecord) error {
	if err := s.ready(); err != nil {
		return err
	}
	return pgx.BeginFunc(ctx, s.PG, func(tx pgx.Tx) error {
		return replaceAssetsPG(ctx, tx, records)
	})
}

func (s *PostgresStore) SharedSavedTimestamp(ctx context.Context) (int64, bool, error) {
	if err := s.ready(); err != nil {
		return 0, false, err
	}
	var ts int64
	err := s.PG.QueryRow(ctx, `SELECT saved_timestamp FROM cache.assets LIMIT 1`).Scan(&ts)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("read saved timestamp: %w", err)
	}
	return ts, true, nil
}

func (s *PostgresStore) ReadMarker(ctx context.Context) (int64, bool, error) {
	if err := s.ready(); err != nil {
		return 0, false, err
	}
	var ts int64
	err := s.PG.QueryRow(ctx, `SELECT value FROM cache.preferences WHERE key = $1`, markerKey).Scan(&ts)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("read marker: %w", err)
	}
	return ts, true, nil
}

func (s *PostgresStore) WriteMarker(ctx context.Context, ts int64) error {
	if err := s.ready(); err != nil {
		return err
	}
	return writeMarkerPG(ctx, s.PG, ts)
}

func (s *PostgresStore) ClearMarker(ctx context.Context) error {
	if err := s.ready(); err != nil {
		return err
	}
	if _, err := s.PG.Exec(ctx, `DELETE FROM cache.preferences WHERE key = $1`, markerKey); err != nil {
		return fmt.Errorf("clear marker: %w", err)
	}
	return nil
}

// WriteSnapshot replaces every record and the marker in one transaction.
func (s *PostgresStore) WriteSnapshot(ctx context.Context, records []model.CachedRecord, ts int64) error {
	if err := s.ready(); err != nil {
		return err
	}
	err := pgx.BeginFunc(ctx, s.PG, func(tx pgx.Tx) error {
		if err := replaceAssetsPG(ctx, tx, records); err != nil {
			return err
		}
		return writeMarkerPG(ctx, tx, ts)
	})
	if err != nil {
		s.logger.Error("store.pg.snapshot_failed", zap.Error(err))
	}
	return err
}

func (s *PostgresStore) HealthCheck(ctx context.Context) error {
	if err := s.ready(); err != nil {
		return err
	}
	if err := s.PG.Ping(ctx); err != nil {
		return fmt.Errorf("postgres ping failed: %w", err)
	}
	return nil
}

func (s *PostgresStore) Close() error {
	if s != nil && s.PG != nil {
		s.PG.Close()
	}
	return nil
}

type pgExecer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

func replaceAssetsPG(ctx context.Context, tx pgx.Tx, records []model.CachedRecord) error {
	if _, err := tx.Exec(ctx, `DELETE FROM cache.assets`); err != nil {
		return fmt.Errorf("delete assets: %w", err)
	}
	if len(records) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, r := range records {
		batch.Queue(`
			INSERT INTO cache.assets (`+assetColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
			ON CONFLICT (id) DO UPDATE SET
				rank = EXCLUDED.rank,
				symbol = EXCLUDED.symbol,
				name = EXCLUDED.name,
				supply = EXCLUDED.supply,
				max_supply = EXCLUDED.max_supply,
				market_cap_usd = EXCLUDED.market_cap_usd,
				volume_usd_24hr = EXCLUDED.volume_usd_24hr,
				price_usd = EXCLUDED.price_usd,
				change_percent_24hr = EXCLUDED.change_percent_24hr,
				vwap_24hr = EXCLUDED.vwap_24hr,
				explorer = EXCLUDED.explorer,
				saved_timestamp = EXCLUDED.saved_timestamp`,
			r.ID, r.Rank, r.Symbol, r.Name, r.Supply, r.MaxSupply,
			r.MarketCapUsd, r.VolumeUsd24Hr, r.PriceUsd, r.ChangePercent24Hr,
			r.Vwap24Hr, r.Explorer, r.SavedTimestamp,
		)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("insert assets: %w", err)
	}
	return nil
}

func writeMarkerPG(ctx context.Context, db pgExecer, ts int64) error {
	_, err := db.Exec(ctx, `
		INSERT INTO cache.preferences (key, value, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (key) DO UPDATE SET
			value = EXCLUDED.value,
			updated_at = EXCLUDED.updated_at`,
		markerKey, ts)
	if err != nil {
		return fmt.Errorf("write marker: %w", err)
	}
	return nil
}
