package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Checker-Finance/assetcache/pkg/model"
)

type backendFactory func(t *testing.T) Backend

func backends() map[string]backendFactory {
	return map[string]backendFactory{
		"memory": func(t *testing.T) Backend {
			return NewMemory()
		},
		"sqlite": func(t *testing.T) Backend {
			s, err := OpenSQLite(filepath.Join(t.TempDir(), "cache.db"), zap.NewNop())
			require.NoError(t, err)
			t.Cleanup(func() { _ = s.Close() })
			return s
		},
		"redis": func(t *testing.T) Backend {
			mr := miniredis.RunT(t)
			rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
			s := NewRedisFromClient(rdb, "test", zap.NewNop())
			t.Cleanup(func() { _ = s.Close() })
			return s
		},
	}
}

func record(id, rank string, ts int64) model.CachedRecord {
	return model.CachedRecord{
		Asset: model.Asset{
			ID:                id,
			Rank:              rank,
			Symbol:            id[:1],
			Name:              id,
			Supply:            "100",
			MarketCapUsd:      "1000",
			VolumeUsd24Hr:     "10",
			PriceUsd:          "1.5",
			ChangePercent24Hr: "-0.25",
		},
		SavedTimestamp: ts,
	}
}

func ids(records []model.CachedRecord) []string {
	out := make([]string, len(records))
	for i, r := range records {
		out[i] = r.ID
	}
	return out
}

func TestBackends(t *testing.T) {
	for name, factory := range backends() {
		t.Run(name, func(t *testing.T) {
			t.Run("empty", func(t *testing.T) {
				s := factory(t)
				ctx := context.Background()

				all, err := s.GetAll(ctx)
				require.NoError(t, err)
				assert.Empty(t, all)

				rec, err := s.GetByID(ctx, "bitcoin")
				require.NoError(t, err)
				assert.Nil(t, rec)

				_, ok, err := s.SharedSavedTimestamp(ctx)
				require.NoError(t, err)
				assert.False(t, ok)

				_, ok, err = s.ReadMarker(ctx)
				require.NoError(t, err)
				assert.False(t, ok)
			})

			t.Run("numeric rank order", func(t *testing.T) {
				s := factory(t)
				ctx := context.Background()

				require.NoError(t, s.ReplaceAll(ctx, []model.CachedRecord{
					record("tether", "10", 5),
					record("solana", "9", 5),
					record("bitcoin", "1", 5),
					record("zcash", "2", 5),
					record("aave", "2", 5),
				}))

				all, err := s.GetAll(ctx)
				require.NoError(t, err)
				assert.Equal(t, []string{"bitcoin", "aave", "zcash", "solana", "tether"}, ids(all))
			})

			t.Run("replace leaves no survivors", func(t *testing.T) {
				s := factory(t)
				ctx := context.Background()

				require.NoError(t, s.ReplaceAll(ctx, []model.CachedRecord{
					record("bitcoin", "1", 100),
					record("ethereum", "2", 100),
				}))
				require.NoError(t, s.ReplaceAll(ctx, []model.CachedRecord{
					record("solana", "1", 200),
				}))

				all, err := s.GetAll(ctx)
				require.NoError(t, err)
				assert.Equal(t, []string{"solana"}, ids(all))

				gone, err := s.GetByID(ctx, "bitcoin")
				require.NoError(t, err)
				assert.Nil(t, gone)

				ts, ok, err := s.SharedSavedTimestamp(ctx)
				require.NoError(t, err)
				assert.True(t, ok)
				assert.Equal(t, int64(200), ts)
			})

			t.Run("replace with empty clears", func(t *testing.T) {
				s := factory(t)
				ctx := context.Background()

				require.NoError(t, s.ReplaceAll(ctx, []model.CachedRecord{record("bitcoin", "1", 100)}))
				require.NoError(t, s.ReplaceAll(ctx, nil))

				all, err := s.GetAll(ctx)
				require.NoError(t, err)
				assert.Empty(t, all)

				_, ok, err := s.SharedSavedTimestamp(ctx)
				require.NoError(t, err)
				assert.False(t, ok)
			})

			t.Run("optional fields round trip", func(t *testing.T) {
				s := factory(t)
				ctx := context.Background()

				capped := record("bitcoin", "1", 42)
				capped.MaxSupply = model.StringPtr("21000000")
				capped.Vwap24Hr = model.StringPtr("64000.1")
				capped.Explorer = model.StringPtr("https://blockchain.info/")
				uncapped := record("ethereum", "2", 42)

				require.NoError(t, s.ReplaceAll(ctx, []model.CachedRecord{capped, uncapped}))

				got, err := s.GetByID(ctx, "bitcoin")
				require.NoError(t, err)
				require.NotNil(t, got)
				assert.Equal(t, capped, *got)

				got, err = s.GetByID(ctx, "ethereum")
				require.NoError(t, err)
				require.NotNil(t, got)
				assert.Nil(t, got.MaxSupply)
				assert.Nil(t, got.Vwap24Hr)
				assert.Nil(t, got.Explorer)
			})

			t.Run("marker", func(t *testing.T) {
				s := factory(t)
				ctx := context.Background()

				require.NoError(t, s.WriteMarker(ctx, 1700000000000))
				ts, ok, err := s.ReadMarker(ctx)
				require.NoError(t, err)
				assert.True(t, ok)
				assert.Equal(t, int64(1700000000000), ts)

				require.NoError(t, s.WriteMarker(ctx, 1700000000001))
				ts, _, err = s.ReadMarker(ctx)
				require.NoError(t, err)
				assert.Equal(t, int64(1700000000001), ts)

				require.NoError(t, s.ClearMarker(ctx))
				_, ok, err = s.ReadMarker(ctx)
				require.NoError(t, err)
				assert.False(t, ok)
			})

			t.Run("clear marker keeps records", func(t *testing.T) {
				s := factory(t)
				ctx := context.Background()

				require.NoError(t, s.WriteSnapshot(ctx, []model.CachedRecord{record("bitcoin", "1", 7)}, 7))
				require.NoError(t, s.ClearMarker(ctx))

				all, err := s.GetAll(ctx)
				require.NoError(t, err)
				assert.Len(t, all, 1)
			})

			t.Run("write snapshot", func(t *testing.T) {
				s := factory(t)
				ctx := context.Background()

				require.NoError(t, s.ReplaceAll(ctx, []model.CachedRecord{record("dogecoin", "8", 1)}))
				require.NoError(t, s.WriteSnapshot(ctx, []model.CachedRecord{
					record("bitcoin", "1", 99),
					record("ethereum", "2", 99),
				}, 99))

				all, err := s.GetAll(ctx)
				require.NoError(t, err)
				assert.Equal(t, []string{"bitcoin", "ethereum"}, ids(all))

				saved, ok, err := s.SharedSavedTimestamp(ctx)
				require.NoError(t, err)
				require.True(t, ok)

				marker, ok, err := s.ReadMarker(ctx)
				require.NoError(t, err)
				require.True(t, ok)
				assert.Equal(t, saved, marker)
			})

			t.Run("health", func(t *testing.T) {
				s := factory(t)
				assert.NoError(t, s.HealthCheck(context.Background()))
			})
		})
	}
}

func TestMemoryStore_Closed(t *testing.T) {
	s := NewMemory()
	require.NoError(t, s.Close())

	_, err := s.GetAll(context.Background())
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, s.WriteMarker(context.Background(), 1), ErrClosed)
	assert.ErrorIs(t, s.HealthCheck(context.Background()), ErrClosed)
}

func TestMemoryStore_CanceledContext(t *testing.T) {
	s := NewMemory()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.GetAll(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSQLiteStore_Closed(t *testing.T) {
	s, err := OpenSQLite(filepath.Join(t.TempDir(), "cache.db"), nil)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	_, err = s.GetAll(context.Background())
	assert.ErrorIs(t, err, ErrClosed)
	assert.NoError(t, s.Close())
}

func TestSQLiteStore_Persists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.db")
	ctx := context.Background()

	s, err := OpenSQLite(path, nil)
	require.NoError(t, err)
	require.NoError(t, s.WriteSnapshot(ctx, []model.CachedRecord{record("bitcoin", "1", 11)}, 11))
	require.NoError(t, s.Close())

	reopened, err := OpenSQLite(path, nil)
	require.NoError(t, err)
	defer reopened.Close()

	all, err := reopened.GetAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"bitcoin"}, ids(all))

	ts, ok, err := reopened.ReadMarker(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int64(11), ts)
}

func TestOpenSQLite_EmptyPath(t *testing.T) {
	_, err := OpenSQLite("  ", nil)
	assert.Error(t, err)
}

func TestRedisStore_KeyLayout(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	s := NewRedisFromClient(rdb, "ac", nil)
	defer s.Close()

	require.NoError(t, s.WriteSnapshot(context.Background(), []model.CachedRecord{record("bitcoin", "1", 5)}, 5))

	assert.True(t, mr.Exists("ac:assets"))
	assert.Equal(t, "5", mustGet(t, mr, "ac:assets:saved_ts"))
	assert.Equal(t, "5", mustGet(t, mr, "ac:pref:last_update_timestamp"))
	assert.NotEmpty(t, mr.HGet("ac:assets", "bitcoin"))
}

func TestRedisStore_NotInitialized(t *testing.T) {
	s := &RedisStore{}
	err := s.HealthCheck(context.Background())
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "redis not initialized")

	_, err = s.GetAll(context.Background())
	assert.ErrorIs(t, err, ErrClosed)
	assert.NoError(t, s.Close())
}

func TestRedisStore_Down(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)

	s := NewRedisFromClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}), "", nil)
	mr.Close()

	err = s.HealthCheck(context.Background())
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "redis ping failed")
}

func TestNewRedis_Unreachable(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	addr := mr.Addr()
	mr.Close()

	_, err = NewRedis(addr, 0, "", "x", nil)
	assert.Error(t, err)
}

func mustGet(t *testing.T, mr *miniredis.Miniredis, key string) string {
	t.Helper()
	v, err := mr.Get(key)
	require.NoError(t, err)
	return v
}
