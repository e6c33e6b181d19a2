package api

import (
	"time"

	"github.com/Checker-Finance/assetcache/pkg/model"
)

// AssetsResponse wraps a list or single asset. Timestamp and AsOf are only
// present for data served from the local snapshot.
type AssetsResponse struct {
	Data      any    `json:"data"`
	FromCache bool   `json:"from_cache"`
	Timestamp *int64 `json:"timestamp,omitempty"`
	AsOf      string `json:"as_of,omitempty"`
}

type SnapshotRequest struct {
	Assets []model.Asset `json:"assets"`
}

type SnapshotResponse struct {
	Saved     int    `json:"saved"`
	Timestamp *int64 `json:"timestamp,omitempty"`
	AsOf      string `json:"as_of,omitempty"`
}

type LastUpdateResponse struct {
	Timestamp *int64 `json:"timestamp"`
	AsOf      string `json:"as_of,omitempty"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

func asOf(ts int64, ok bool) (*int64, string) {
	if !ok {
		return nil, ""
	}
	return &ts, time.UnixMilli(ts).UTC().Format(time.RFC3339)
}
