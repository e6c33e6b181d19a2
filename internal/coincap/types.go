package coincap

import (
	"context"

	"github.com/Checker-Finance/assetcache/pkg/model"
)

// AssetsResponse is the payload of GET /assets.
type AssetsResponse struct {
	Data      []model.Asset `json:"data"`
	Timestamp int64         `json:"timestamp"`
}

// AssetResponse is the payload of GET /assets/{id}.
type AssetResponse struct {
	Data      *model.Asset `json:"data"`
	Timestamp int64        `json:"timestamp"`
}

// ErrorResponse is returned by CoinCap on 4xx responses.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// KeySource yields the bearer token for each request.
type KeySource interface {
	APIKey(ctx context.Context) (string, error)
}

// StaticKey is a KeySource with a fixed token.
type StaticKey string

func (k StaticKey) APIKey(context.Context) (string, error) { return string(k), nil }
