// Package assetsync serves asset data network-first with the local snapshot as
// fallback, and owns the explicit "save offline" path into the cache.
package assetsync

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Checker-Finance/assetcache/internal/metrics"
	"github.com/Checker-Finance/assetcache/internal/store"
	"github.com/Checker-Finance/assetcache/pkg/model"
)

const (
	opFetchAll  = "fetch_all"
	opFetchByID = "fetch_by_id"
)

// RemoteSource is the live market data provider.
type RemoteSource interface {
	GetAllAssets(ctx context.Context) ([]model.Asset, error)
	GetAssetByID(ctx context.Context, id string) (model.Asset, error)
}

// SnapshotNotifier is told about every snapshot that was written.
type SnapshotNotifier interface {
	NotifySnapshotSaved(ctx context.Context, evt model.SnapshotSavedEvent) error
}

type Option func(*Coordinator)

// WithClock overrides the time source used for snapshot timestamps.
func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) {
		if now != nil {
			c.now = now
		}
	}
}

func WithNotifier(n SnapshotNotifier) Option {
	return func(c *Coordinator) { c.notifier = n }
}

type Coordinator struct {
	logger   *zap.Logger
	remote   RemoteSource
	local    store.LocalStore
	prefs    store.PreferenceStore
	snapshot store.SnapshotWriter // set when local and prefs are one backend
	notifier SnapshotNotifier
	now      func() time.Time
}

func NewCoordinator(logger *zap.Logger, remote RemoteSource, local store.LocalStore, prefs store.PreferenceStore, opts ...Option) *Coordinator {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Coordinator{
		logger: logger,
		remote: remote,
		local:  local,
		prefs:  prefs,
		now:    time.Now,
	}
	if w, ok := local.(store.SnapshotWriter); ok && sameBackend(local, prefs) {
		c.snapshot = w
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func sameBackend(a, b any) bool {
	if a == nil || b == nil {
		return false
	}
	ta, tb := reflect.TypeOf(a), reflect.TypeOf(b)
	return ta == tb && ta.Comparable() && a == b
}

// FetchAllAssets returns the live asset list. Unless forceRefresh is set, a
// network failure is answered from the last snapshot when one exists.
// Live results are never written to the cache.
func (c *Coordinator) FetchAllAssets(ctx context.Context, forceRefresh bool) Result[[]model.Asset] {
	assets, err := c.remote.GetAllAssets(ctx)
	if err == nil {
		metrics.IncFetch(opFetchAll, metrics.SourceNetwork)
		return Success(assets, false, 0)
	}

	if forceRefresh {
		c.logger.Warn("assetsync.refresh_failed", zap.Error(err))
		metrics.IncFetch(opFetchAll, metrics.SourceError)
		return Failure[[]model.Asset](err)
	}

	c.logger.Warn("assetsync.remote_failed",
		zap.String("operation", opFetchAll),
		zap.Error(err))
	return c.fallbackAll(ctx, err)
}

func (c *Coordinator) fallbackAll(ctx context.Context, remoteErr error) Result[[]model.Asset] {
	records, err := c.local.GetAll(ctx)
	if err != nil {
		return c.fallbackFailed(opFetchAll, remoteErr, err)
	}
	if len(records) == 0 {
		metrics.IncFallback(opFetchAll, "miss")
		metrics.IncFetch(opFetchAll, metrics.SourceError)
		return Failure[[]model.Asset](remoteErr)
	}

	ts, ok, err := c.local.SharedSavedTimestamp(ctx)
	if err != nil {
		return c.fallbackFailed(opFetchAll, remoteErr, err)
	}
	if !ok {
		ts = records[0].SavedTimestamp
	}

	c.logger.Info("assetsync.served_from_cache",
		zap.String("operation", opFetchAll),
		zap.Int("count", len(records)),
		zap.Int64("saved_timestamp", ts))
	metrics.IncFallback(opFetchAll, "hit")
	metrics.IncFetch(opFetchAll, metrics.SourceCache)
	return Success(model.Assets(records), true, ts)
}

// FetchAssetByID is FetchAllAssets for a single asset, without a forced mode.
func (c *Coordinator) FetchAssetByID(ctx context.Context, id string) Result[model.Asset] {
	id = strings.TrimSpace(id)
	if id == "" {
		return Failure[model.Asset](model.ErrNotFound)
	}

	asset, err := c.remote.GetAssetByID(ctx, id)
	if err == nil {
		metrics.IncFetch(opFetchByID, metrics.SourceNetwork)
		return Success(asset, false, 0)
	}

	c.logger.Warn("assetsync.remote_failed",
		zap.String("operation", opFetchByID),
		zap.String("id", id),
		zap.Error(err))

	rec, cacheErr := c.local.GetByID(ctx, id)
	if cacheErr != nil {
		return c.fallbackFailedOne(err, cacheErr)
	}
	if rec == nil {
		metrics.IncFallback(opFetchByID, "miss")
		metrics.IncFetch(opFetchByID, metrics.SourceError)
		return Failure[model.Asset](err)
	}

	metrics.IncFallback(opFetchByID, "hit")
	metrics.IncFetch(opFetchByID, metrics.SourceCache)
	return Success(rec.Asset, true, rec.SavedTimestamp)
}

func (c *Coordinator) fallbackFailed(op string, remoteErr, cacheErr error) Result[[]model.Asset] {
	c.logCacheFailure(op, cacheErr)
	return Failure[[]model.Asset](&FallbackError{Remote: remoteErr, Cache: cacheErr})
}

func (c *Coordinator) fallbackFailedOne(remoteErr, cacheErr error) Result[model.Asset] {
	c.logCacheFailure(opFetchByID, cacheErr)
	return Failure[model.Asset](&FallbackError{Remote: remoteErr, Cache: cacheErr})
}

func (c *Coordinator) logCacheFailure(op string, err error) {
	c.logger.Error("assetsync.cache_read_failed",
		zap.String("operation", op),
		zap.Error(err))
	metrics.IncFallback(op, "error")
	metrics.IncFetch(op, metrics.SourceError)
	metrics.IncError("assetsync", "cache_read")
}

// PersistSnapshot replaces the whole cache with assets, stamped with a single
// timestamp that is also written as the last-update marker. The timestamp is
// strictly greater than the previous marker.
func (c *Coordinator) PersistSnapshot(ctx context.Context, assets []model.Asset) error {
	ts := c.now().UnixMilli()
	if prev, ok, err := c.prefs.ReadMarker(ctx); err != nil {
		c.logger.Warn("assetsync.marker_read_failed", zap.Error(err))
	} else if ok && ts <= prev {
		ts = prev + 1
	}

	records := model.NewCachedRecords(assets, ts)
	if err := c.writeSnapshot(ctx, records, ts); err != nil {
		c.logger.Error("assetsync.snapshot_failed",
			zap.Int("count", len(records)),
			zap.Error(err))
		metrics.SnapshotWrites.WithLabelValues("error").Inc()
		metrics.IncError("assetsync", "snapshot_write")
		return err
	}

	c.logger.Info("assetsync.snapshot_saved",
		zap.Int("count", len(records)),
		zap.Int64("saved_timestamp", ts))
	metrics.RecordSnapshot(ts, len(records))
	c.notify(ctx, assets, ts)
	return nil
}

func (c *Coordinator) writeSnapshot(ctx context.Context, records []model.CachedRecord, ts int64) error {
	if c.snapshot != nil {
		return c.snapshot.WriteSnapshot(ctx, records, ts)
	}
	// Separate stores: a reader may briefly see new records with the old marker.
	if err := c.local.ReplaceAll(ctx, records); err != nil {
		return err
	}
	return c.prefs.WriteMarker(ctx, ts)
}

func (c *Coordinator) notify(ctx context.Context, assets []model.Asset, ts int64) {
	if c.notifier == nil {
		return
	}
	ids := make([]string, 0, len(assets))
	for _, a := range assets {
		ids = append(ids, a.ID)
	}
	evt := model.SnapshotSavedEvent{
		SavedTimestamp: ts,
		AssetCount:     len(assets),
		AssetIDs:       ids,
		OccurredAt:     time.UnixMilli(ts).UTC(),
	}
	if err := c.notifier.NotifySnapshotSaved(ctx, evt); err != nil {
		c.logger.Warn("assetsync.notify_failed", zap.Error(err))
	}
}

// LastUpdateTimestamp returns the last-update marker. A failed read is
// reported as absent.
func (c *Coordinator) LastUpdateTimestamp(ctx context.Context) (int64, bool) {
	ts, ok, err := c.prefs.ReadMarker(ctx)
	if err != nil {
		c.logger.Warn("assetsync.marker_read_failed", zap.Error(err))
		return 0, false
	}
	return ts, ok
}

// InvalidateCache drops every cached record and clears the marker.
func (c *Coordinator) InvalidateCache(ctx context.Context) error {
	if err := c.local.ReplaceAll(ctx, nil); err != nil {
		return err
	}
	if err := c.prefs.ClearMarker(ctx); err != nil {
		return err
	}
	c.logger.Info("assetsync.cache_invalidated")
	return nil
}

// IsNotFound reports whether err means the asset does not exist remotely.
func IsNotFound(err error) bool {
	return errors.Is(err, model.ErrNotFound)
}
