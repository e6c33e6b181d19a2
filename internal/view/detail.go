package view

import (
	"context"
	"sync"

	"github.com/Checker-Finance/assetcache/internal/assetsync"
	"github.com/Checker-Finance/assetcache/pkg/model"
)

type DetailState struct {
	Loading       bool
	Asset         *model.Asset
	Error         string
	FromCache     bool
	LastUpdate    int64
	HasLastUpdate bool
}

func (s DetailState) Banner() string {
	return FormatTimestamp(s.LastUpdate, s.HasLastUpdate)
}

type AssetDetail struct {
	src   Source
	mu    sync.Mutex
	state DetailState
}

func NewAssetDetail(src Source) *AssetDetail {
	return &AssetDetail{src: src}
}

func (d *AssetDetail) State() DetailState {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

func (d *AssetDetail) Load(ctx context.Context, id string) DetailState {
	d.mu.Lock()
	d.state.Loading = true
	d.state.Error = ""
	d.mu.Unlock()

	res := d.src.FetchAssetByID(ctx, id)

	d.mu.Lock()
	defer d.mu.Unlock()
	res.Match(nil,
		func(a model.Asset, fromCache bool, ts int64, hasTS bool) {
			d.state.Asset = &a
			d.state.FromCache = fromCache
			d.state.LastUpdate, d.state.HasLastUpdate = ts, hasTS
		},
		func(err error) {
			d.state.Error = assetsync.Message(err)
		})
	d.state.Loading = false
	return d.state
}
