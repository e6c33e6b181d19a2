package view

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Checker-Finance/assetcache/internal/assetsync"
	"github.com/Checker-Finance/assetcache/internal/store"
	"github.com/Checker-Finance/assetcache/pkg/model"
)

type stubRemote struct {
	assets []model.Asset
	err    error
}

func (s *stubRemote) GetAllAssets(context.Context) ([]model.Asset, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.assets, nil
}

func (s *stubRemote) GetAssetByID(_ context.Context, id string) (model.Asset, error) {
	if s.err != nil {
		return model.Asset{}, s.err
	}
	for _, a := range s.assets {
		if a.ID == id {
			return a, nil
		}
	}
	return model.Asset{}, model.NotFoundError(id)
}

// failingSave wraps a Source and rejects snapshots.
type failingSave struct {
	Source
	err error
}

func (f failingSave) PersistSnapshot(context.Context, []model.Asset) error { return f.err }

func utc(t *testing.T) {
	t.Helper()
	prev := TimeZone
	TimeZone = time.UTC
	t.Cleanup(func() { TimeZone = prev })
}

func btc() model.Asset {
	return model.Asset{ID: "bitcoin", Rank: "1", Symbol: "BTC", Name: "Bitcoin", PriceUsd: "65000.12", ChangePercent24Hr: "-2.5"}
}

func newSource(remote *stubRemote, clock int64) (*assetsync.Coordinator, *store.MemoryStore) {
	mem := store.NewMemory()
	c := assetsync.NewCoordinator(zap.NewNop(), remote, mem, mem,
		assetsync.WithClock(func() time.Time { return time.UnixMilli(clock) }))
	return c, mem
}

// --- AssetList ---

func TestAssetList_BannerOnConstruction(t *testing.T) {
	utc(t)
	src, _ := newSource(&stubRemote{assets: []model.Asset{btc()}}, 1_700_000_000_000)
	require.NoError(t, src.PersistSnapshot(context.Background(), []model.Asset{btc()}))

	l := NewAssetList(context.Background(), src)

	st := l.State()
	assert.True(t, st.HasLastUpdate)
	assert.Equal(t, "14/11/2023 22:13:20", st.Banner())
	assert.Empty(t, st.Assets)
}

func TestAssetList_NoBannerWithoutSnapshot(t *testing.T) {
	src, _ := newSource(&stubRemote{}, 0)
	l := NewAssetList(context.Background(), src)
	assert.Equal(t, "", l.State().Banner())
}

func TestAssetList_LoadFromNetwork(t *testing.T) {
	src, _ := newSource(&stubRemote{assets: []model.Asset{btc()}}, 1)
	l := NewAssetList(context.Background(), src)

	st := l.Load(context.Background(), false)

	assert.False(t, st.Loading)
	assert.Empty(t, st.Error)
	assert.False(t, st.FromCache)
	assert.Len(t, st.Assets, 1)
}

func TestAssetList_LoadErrorShowsCause(t *testing.T) {
	src, _ := newSource(&stubRemote{err: errors.New("Unable to resolve host")}, 1)
	l := NewAssetList(context.Background(), src)

	st := l.Load(context.Background(), false)

	assert.Equal(t, "Unable to resolve host", st.Error)
	assert.False(t, st.Loading)
}

func TestAssetList_LoadErrorWithoutMessage(t *testing.T) {
	src, _ := newSource(&stubRemote{err: errors.New("")}, 1)
	l := NewAssetList(context.Background(), src)

	st := l.Load(context.Background(), true)

	assert.Equal(t, "unknown error", st.Error)
}

func TestAssetList_SaveOfflineThenOffline(t *testing.T) {
	remote := &stubRemote{assets: []model.Asset{btc()}}
	src, mem := newSource(remote, 5000)
	l := NewAssetList(context.Background(), src)
	l.Load(context.Background(), false)

	st := l.SaveOffline(context.Background())

	assert.True(t, st.ShowSaveSuccess)
	assert.True(t, st.FromCache)
	assert.Equal(t, int64(5000), st.LastUpdate)
	records, err := mem.GetAll(context.Background())
	require.NoError(t, err)
	assert.Len(t, records, 1)

	l.DismissSaveSuccess()
	assert.False(t, l.State().ShowSaveSuccess)

	remote.err = errors.New("offline")
	st = l.Load(context.Background(), false)
	assert.True(t, st.FromCache)
	assert.Equal(t, int64(5000), st.LastUpdate)
	assert.Empty(t, st.Error)
}

func TestAssetList_SaveOfflineEmptyIsNoop(t *testing.T) {
	src, mem := newSource(&stubRemote{}, 1)
	l := NewAssetList(context.Background(), src)

	st := l.SaveOffline(context.Background())

	assert.False(t, st.ShowSaveSuccess)
	_, ok, err := mem.ReadMarker(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestAssetList_SaveFailure(t *testing.T) {
	src, _ := newSource(&stubRemote{assets: []model.Asset{btc()}}, 1)
	l := NewAssetList(context.Background(), failingSave{Source: src, err: errors.New("disk full")})
	l.Load(context.Background(), false)

	st := l.SaveOffline(context.Background())

	assert.Equal(t, "error saving data: disk full", st.Error)
	assert.False(t, st.ShowSaveSuccess)
}

// --- AssetDetail ---

func TestAssetDetail_Load(t *testing.T) {
	src, _ := newSource(&stubRemote{assets: []model.Asset{btc()}}, 1)
	d := NewAssetDetail(src)

	st := d.Load(context.Background(), "bitcoin")

	require.NotNil(t, st.Asset)
	assert.Equal(t, "Bitcoin", st.Asset.Name)
	assert.False(t, st.FromCache)
	assert.Equal(t, "", st.Banner())
}

func TestAssetDetail_CachedFallback(t *testing.T) {
	utc(t)
	remote := &stubRemote{assets: []model.Asset{btc()}}
	src, _ := newSource(remote, 0)
	require.NoError(t, src.PersistSnapshot(context.Background(), remote.assets))
	remote.err = errors.New("timeout")

	st := NewAssetDetail(src).Load(context.Background(), "bitcoin")

	require.NotNil(t, st.Asset)
	assert.True(t, st.FromCache)
	assert.Equal(t, "01/01/1970 00:00:00", st.Banner())
}

func TestAssetDetail_Missing(t *testing.T) {
	src, _ := newSource(&stubRemote{err: errors.New("timeout")}, 0)

	st := NewAssetDetail(src).Load(context.Background(), "doesnotexist")

	assert.Nil(t, st.Asset)
	assert.Equal(t, "timeout", st.Error)
}

// --- formatting ---

func TestFormatTimestamp(t *testing.T) {
	utc(t)
	assert.Equal(t, "", FormatTimestamp(123, false))
	assert.Equal(t, "02/01/2024 03:04:05", FormatTimestamp(time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC).UnixMilli(), true))
}

func TestFormatLargeNumber(t *testing.T) {
	cases := map[string]string{
		"1280000000000":   "1.28T",
		"25500000000":     "25.50B",
		"19700000":        "19.70M",
		"1500":            "1.50K",
		"999.999":         "1,000.00",
		"12.345":          "12.35",
		"not-a-number":    "0.00",
		"999999999999999": "1000.00T",
	}
	for in, want := range cases {
		assert.Equal(t, want, FormatLargeNumber(model.ParseDecimal(in)), in)
	}
}

func TestFormatPrice(t *testing.T) {
	assert.Equal(t, "$65,000.12", FormatPrice(decimal.RequireFromString("65000.12"), 2))
	assert.Equal(t, "$0.1235", FormatPrice(decimal.RequireFromString("0.12345"), 4))
}

func TestFormatChange(t *testing.T) {
	assert.Equal(t, "-2.50%", FormatChange(decimal.RequireFromString("-2.5")))
	assert.Equal(t, "+3.14%", FormatChange(decimal.RequireFromString("3.14159")))
	assert.Equal(t, "+0.00%", FormatChange(decimal.Zero))
}

func TestFormatMaxSupply(t *testing.T) {
	a := btc()
	assert.Equal(t, "∞ Unlimited", FormatMaxSupply(a))
	a.MaxSupply = model.StringPtr("21000000")
	assert.Equal(t, "21.00M", FormatMaxSupply(a))
}
