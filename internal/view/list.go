// Package view holds presentation state for the asset list and detail screens.
// State holders call the sync coordinator and expose copyable snapshots of
// what a renderer should show.
package view

import (
	"context"
	"sync"

	"github.com/Checker-Finance/assetcache/internal/assetsync"
	"github.com/Checker-Finance/assetcache/pkg/model"
)

// Source is the part of the coordinator the views consume.
type Source interface {
	FetchAllAssets(ctx context.Context, forceRefresh bool) assetsync.Result[[]model.Asset]
	FetchAssetByID(ctx context.Context, id string) assetsync.Result[model.Asset]
	PersistSnapshot(ctx context.Context, assets []model.Asset) error
	LastUpdateTimestamp(ctx context.Context) (int64, bool)
}

type ListState struct {
	Loading         bool
	Assets          []model.Asset
	Error           string
	FromCache       bool
	LastUpdate      int64
	HasLastUpdate   bool
	ShowSaveSuccess bool
}

// Banner is the "data as of" line, empty when no snapshot time is known.
func (s ListState) Banner() string {
	return FormatTimestamp(s.LastUpdate, s.HasLastUpdate)
}

type AssetList struct {
	src   Source
	mu    sync.Mutex
	state ListState
}

// NewAssetList builds the list state and shows the persisted marker right away.
func NewAssetList(ctx context.Context, src Source) *AssetList {
	l := &AssetList{src: src}
	l.state.LastUpdate, l.state.HasLastUpdate = src.LastUpdateTimestamp(ctx)
	return l
}

func (l *AssetList) State() ListState {
	l.mu.Lock()
	defer l.mu.Unlock()
	s := l.state
	s.Assets = append([]model.Asset(nil), l.state.Assets...)
	return s
}

// Load fetches the list, bypassing the cache when force is set.
func (l *AssetList) Load(ctx context.Context, force bool) ListState {
	l.mu.Lock()
	l.state.Loading = true
	l.state.Error = ""
	l.mu.Unlock()

	res := l.src.FetchAllAssets(ctx, force)

	l.mu.Lock()
	res.Match(nil,
		func(assets []model.Asset, fromCache bool, ts int64, hasTS bool) {
			l.state.Assets = assets
			l.state.FromCache = fromCache
			l.state.LastUpdate, l.state.HasLastUpdate = ts, hasTS
			l.state.Error = ""
		},
		func(err error) {
			l.state.Error = assetsync.Message(err)
		})
	l.state.Loading = false
	l.mu.Unlock()

	return l.State()
}

// SaveOffline snapshots the assets currently shown. Nothing happens when the
// list is empty.
func (l *AssetList) SaveOffline(ctx context.Context) ListState {
	current := l.State().Assets
	if len(current) == 0 {
		return l.State()
	}

	err := l.src.PersistSnapshot(ctx, current)

	l.mu.Lock()
	if err != nil {
		l.state.Error = "error saving data: " + assetsync.Message(err)
	} else {
		l.state.ShowSaveSuccess = true
		l.state.FromCache = true
		l.state.LastUpdate, l.state.HasLastUpdate = l.src.LastUpdateTimestamp(ctx)
	}
	l.mu.Unlock()

	return l.State()
}

func (l *AssetList) DismissSaveSuccess() {
	l.mu.Lock()
	l.state.ShowSaveSuccess = false
	l.mu.Unlock()
}
