package coincap

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Checker-Finance/assetcache/internal/httpclient"
	"github.com/Checker-Finance/assetcache/internal/metrics"
	"github.com/Checker-Finance/assetcache/internal/rate"
	"github.com/Checker-Finance/assetcache/pkg/model"
)

const (
	DefaultBaseURL = "https://rest.coincap.io/v3"

	endpointAssets = "assets"
	endpointAsset  = "asset"
	rateLimitKey   = "coincap"
)

// apiError is a 4xx answer from CoinCap.
type apiError struct {
	Status  int
	Message string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("coincap returned %d: %s", e.Status, e.Message)
}

// Config configures a Client.
type Config struct {
	BaseURL  string
	Timeout  time.Duration
	RetryMax int
}

// Client reads asset listings from the CoinCap REST API.
// Every failure is reported as a *model.TransportError, except an unknown
// asset id which is reported as model.ErrNotFound.
type Client struct {
	logger  *zap.Logger
	baseURL string
	keys    KeySource
	exec    *httpclient.Executor
}

// NewClient constructs a CoinCap client. keys may be nil for anonymous access.
func NewClient(logger *zap.Logger, cfg Config, keys KeySource, rateMgr *rate.Manager) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if keys == nil {
		keys = StaticKey("")
	}

	httpClient := &http.Client{Timeout: cfg.Timeout}
	exec := httpclient.New(logger, rateMgr, httpClient, httpclient.Options{
		RetryMax: cfg.RetryMax,
		Tag:      "coincap",
		ErrorHandler: func(status int, body []byte) error {
			var errResp ErrorResponse
			_ = json.Unmarshal(body, &errResp)

			msg := errResp.Message
			if msg == "" {
				msg = errResp.Error
			}
			if msg == "" {
				msg = http.StatusText(status)
			}
			logger.Warn("coincap.client_error",
				zap.Int("status", status),
				zap.String("message", msg))
			return &apiError{Status: status, Message: msg}
		},
	})

	return &Client{
		logger:  logger,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		keys:    keys,
		exec:    exec,
	}
}

// GetAllAssets fetches the asset listing.
// GET /assets
func (c *Client) GetAllAssets(ctx context.Context) ([]model.Asset, error) {
	start := time.Now()
	defer metrics.ObserveDuration(metrics.CoinCapRequestDuration, start, endpointAssets)

	var resp AssetsResponse
	if err := c.getJSON(ctx, "/assets", &resp); err != nil {
		metrics.IncCoinCapRequest(endpointAssets, "error")
		return nil, &model.TransportError{Op: "GET /assets", Err: err}
	}
	if resp.Data == nil {
		metrics.IncCoinCapRequest(endpointAssets, "error")
		return nil, &model.TransportError{Op: "GET /assets", Err: errors.New("response has no data")}
	}

	metrics.IncCoinCapRequest(endpointAssets, "ok")
	return resp.Data, nil
}

// GetAssetByID fetches one asset.
// GET /assets/{id}
func (c *Client) GetAssetByID(ctx context.Context, id string) (model.Asset, error) {
	start := time.Now()
	defer metrics.ObserveDuration(metrics.CoinCapRequestDuration, start, endpointAsset)

	var resp AssetResponse
	err := c.getJSON(ctx, "/assets/"+url.PathEscape(id), &resp)

	var apiErr *apiError
	switch {
	case errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound:
		metrics.IncCoinCapRequest(endpointAsset, "not_found")
		return model.Asset{}, model.NotFoundError(id)
	case err != nil:
		metrics.IncCoinCapRequest(endpointAsset, "error")
		return model.Asset{}, &model.TransportError{Op: "GET /assets/" + id, Err: err}
	case resp.Data == nil || resp.Data.ID == "":
		metrics.IncCoinCapRequest(endpointAsset, "not_found")
		return model.Asset{}, model.NotFoundError(id)
	}

	metrics.IncCoinCapRequest(endpointAsset, "ok")
	return *resp.Data, nil
}

// getJSON performs an authenticated GET request and decodes the JSON response.
func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	key, err := c.keys.APIKey(ctx)
	if err != nil {
		return fmt.Errorf("api key: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if key != "" {
		req.Header.Set("Authorization", "Bearer "+key)
	}

	err = c.exec.DoJSON(ctx, req, rateLimitKey, out)

	var apiErr *apiError
	if errors.As(err, &apiErr) && (apiErr.Status == http.StatusUnauthorized || apiErr.Status == http.StatusForbidden) {
		if inv, ok := c.keys.(interface{ Invalidate() }); ok {
			inv.Invalidate()
		}
	}
	return err
}
