package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/Checker-Finance/assetcache/pkg/model"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS assets (
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
	saved_timestamp     INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS preferences (
	key        TEXT PRIMARY KEY,
	value      INTEGER NOT NULL,
	updated_at INTEGER NOT NULL
);
`

const assetColumns = `id, rank, symbol, name, supply, max_supply, market_cap_usd,
	volume_usd_24hr, price_usd, change_percent_24hr, vwap_24hr, explorer, saved_timestamp`

// SQLiteStore is the on-device Backend. Records and the marker live in the
// same database file, so snapshots are written in one transaction.
type SQLiteStore struct {
	db     *sql.DB
	logger *zap.Logger
}

// OpenSQLite opens (or creates) the cache database at path. ":memory:" is accepted.
func OpenSQLite(path string, logger *zap.Logger) (*SQLiteStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("sqlite path is required")
	}
	if path != ":memory:" {
		path = filepath.Clean(path)
	}

	dsn := "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// a single connection serializes writers and keeps ":memory:" databases shared
	db.SetMaxOpenConns(1)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	logger.Info("store.sqlite.opened", zap.String("path", path))
	return &SQLiteStore{db: db, logger: logger}, nil
}

func (s *SQLiteStore) ready() error {
	if s == nil || s.db == nil {
		return ErrClosed
	}
	return nil
}

func (s *SQLiteStore) GetAll(ctx context.Context) ([]model.CachedRecord, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+assetColumns+` FROM assets ORDER BY CAST(rank AS REAL), id`)
	if err != nil {
		return nil, fmt.Errorf("query assets: %w", err)
	}
	defer rows.Close()

	var out []model.CachedRecord
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate assets: %w", err)
	}
	return out, nil
}

func (s *SQLiteStore) GetByID(ctx context.Context, id string) (*model.CachedRecord, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	row := s.db.QueryRowContext(ctx, `SELECT `+assetColumns+` FROM assets WHERE id = ?`, id)
	r, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func (s *SQLiteStore) ReplaceAll(ctx context.Context, records []model.CachedRecord) error {
	if err := s.ready(); err != nil {
		return err
	}
	return s.inTx(ctx, func(tx *sql.Tx) error {
		return replaceAssetsTx(ctx, tx, records)
	})
}

func (s *SQLiteStore) SharedSavedTimestamp(ctx context.Context) (int64, bool, error) {
	if err := s.ready(); err != nil {
		return 0, false, err
	}
	var ts int64
	err := s.db.QueryRowContext(ctx, `SELECT saved_timestamp FROM assets LIMIT 1`).Scan(&ts)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("read saved timestamp: %w", err)
	}
	return ts, true, nil
}

func (s *SQLiteStore) ReadMarker(ctx context.Context) (int64, bool, error) {
	if err := s.ready(); err != nil {
		return 0, false, err
	}
	var ts int64
	err := s.db.QueryRowContext(ctx, `SELECT value FROM preferences WHERE key = ?`, markerKey).Scan(&ts)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("read marker: %w", err)
	}
	return ts, true, nil
}

func (s *SQLiteStore) WriteMarker(ctx context.Context, ts int64) error {
	if err := s.ready(); err != nil {
		return err
	}
	return writeMarkerSQLite(ctx, s.db, ts)
}

func (s *SQLiteStore) ClearMarker(ctx context.Context) error {
	if err := s.ready(); err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM preferences WHERE key = ?`, markerKey); err != nil {
		return fmt.Errorf("clear marker: %w", err)
	}
	return nil
}

// WriteSnapshot replaces every record and the marker in one transaction.
func (s *SQLiteStore) WriteSnapshot(ctx context.Context, records []model.CachedRecord, ts int64) error {
	if err := s.ready(); err != nil {
		return err
	}
	return s.inTx(ctx, func(tx *sql.Tx) error {
		if err := replaceAssetsTx(ctx, tx, records); err != nil {
			return err
		}
		return writeMarkerSQLite(ctx, tx, ts)
	})
}

func (s *SQLiteStore) HealthCheck(ctx context.Context) error {
	if err := s.ready(); err != nil {
		return err
	}
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("sqlite ping failed: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

func (s *SQLiteStore) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		s.logger.Error("store.sqlite.tx_failed", zap.Error(err))
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func replaceAssetsTx(ctx context.Context, tx *sql.Tx, records []model.CachedRecord) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM assets`); err != nil {
		return fmt.Errorf("delete assets: %w", err)
	}
	if len(records) == 0 {
		return nil
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT OR REPLACE INTO assets (`+assetColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, r := range records {
		if _, err := stmt.ExecContext(ctx,
			r.ID, r.Rank, r.Symbol, r.Name, r.Supply, nullable(r.MaxSupply),
			r.MarketCapUsd, r.VolumeUsd24Hr, r.PriceUsd, r.ChangePercent24Hr,
			nullable(r.Vwap24Hr), nullable(r.Explorer), r.SavedTimestamp,
		); err != nil {
			return fmt.Errorf("insert asset %s: %w", r.ID, err)
		}
	}
	return nil
}

func writeMarkerSQLite(ctx context.Context, db execer, ts int64) error {
	_, err := db.ExecContext(ctx,
		`INSERT INTO preferences (key, value, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		markerKey, ts, time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("write marker: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (model.CachedRecord, error) {
	var (
		r                         model.CachedRecord
		maxSupply, vwap, explorer sql.NullString
	)
	err := row.Scan(
		&r.ID, &r.Rank, &r.Symbol, &r.Name, &r.Supply, &maxSupply,
		&r.MarketCapUsd, &r.VolumeUsd24Hr, &r.PriceUsd, &r.ChangePercent24Hr,
		&vwap, &explorer, &r.SavedTimestamp,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return r, err
		}
		return r, fmt.Errorf("scan asset: %w", err)
	}
	r.MaxSupply = fromNull(maxSupply)
	r.Vwap24Hr = fromNull(vwap)
	r.Explorer = fromNull(explorer)
	return r, nil
}

func nullable(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func fromNull(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	v := ns.String
	return &v
}
