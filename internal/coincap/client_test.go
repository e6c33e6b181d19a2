package coincap

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Checker-Finance/assetcache/pkg/model"
)

const assetsBody = `{
	"data": [
		{"id":"bitcoin","rank":"1","symbol":"BTC","name":"Bitcoin","supply":"19700000","maxSupply":"21000000",
		 "marketCapUsd":"1280000000000","volumeUsd24Hr":"9876543210","priceUsd":"65000.12",
		 "changePercent24Hr":"-2.5","vwap24Hr":"64900.01","explorer":"https://blockchain.info/"},
		{"id":"ethereum","rank":"2","symbol":"ETH","name":"Ethereum","supply":"120000000","maxSupply":null,
		 "marketCapUsd":"400000000000","volumeUsd24Hr":"5000000000","priceUsd":"3300.5",
		 "changePercent24Hr":"1.25","vwap24Hr":null,"explorer":null}
	],
	"timestamp": 1718000000000
}`

type invalidatingKey struct {
	invalidated atomic.Bool
}

func (k *invalidatingKey) APIKey(context.Context) (string, error) { return "rotating", nil }
func (k *invalidatingKey) Invalidate()                             { k.invalidated.Store(true) }

func newTestClient(t *testing.T, handler http.HandlerFunc, keys KeySource) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewClient(zap.NewNop(), Config{BaseURL: server.URL + "/", RetryMax: 1}, keys, nil)
}

func TestClient_GetAllAssets(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/assets", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(assetsBody))
	}, StaticKey("test-key"))

	assets, err := client.GetAllAssets(context.Background())
	require.NoError(t, err)
	require.Len(t, assets, 2)

	assert.Equal(t, "bitcoin", assets[0].ID)
	assert.Equal(t, "65000.12", assets[0].PriceUsd)
	require.NotNil(t, assets[0].MaxSupply)
	assert.Equal(t, "21000000", *assets[0].MaxSupply)
	assert.Nil(t, assets[1].MaxSupply)
	assert.Nil(t, assets[1].Explorer)
}

func TestClient_AnonymousOmitsAuthorization(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`{"data":[],"timestamp":1}`))
	}, nil)

	assets, err := client.GetAllAssets(context.Background())
	require.NoError(t, err)
	assert.Empty(t, assets)
}

func TestClient_GetAssetByID(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/assets/bitcoin", r.URL.Path)
		_, _ = w.Write([]byte(`{"data":{"id":"bitcoin","rank":"1","symbol":"BTC","name":"Bitcoin","priceUsd":"65000.12"},"timestamp":1}`))
	}, StaticKey("k"))

	asset, err := client.GetAssetByID(context.Background(), "bitcoin")
	require.NoError(t, err)
	assert.Equal(t, "BTC", asset.Symbol)
}

func TestClient_GetAssetByID_NotFound(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":"doesnotexist not found"}`))
	}, StaticKey("k"))

	_, err := client.GetAssetByID(context.Background(), "doesnotexist")
	require.Error(t, err)
	assert.ErrorIs(t, err, model.ErrNotFound)
	assert.NotErrorIs(t, err, model.ErrTransport)
}

func TestClient_GetAssetByID_NullData(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"data":null,"timestamp":1}`))
	}, StaticKey("k"))

	_, err := client.GetAssetByID(context.Background(), "ghost")
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestClient_ServerErrorIsTransport(t *testing.T) {
	var calls atomic.Int32
	client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}, StaticKey("k"))

	_, err := client.GetAllAssets(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, model.ErrTransport)
	assert.EqualValues(t, 2, calls.Load(), "RetryMax=1 means two attempts")
}

func TestClient_UnauthorizedInvalidatesKey(t *testing.T) {
	keys := &invalidatingKey{}
	client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"message":"invalid api key"}`))
	}, keys)

	_, err := client.GetAllAssets(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, model.ErrTransport)
	assert.Contains(t, err.Error(), "invalid api key")
	assert.True(t, keys.invalidated.Load())
}

func TestClient_DecodeFailureIsTransport(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("<html>maintenance</html>"))
	}, nil)

	_, err := client.GetAllAssets(context.Background())
	assert.ErrorIs(t, err, model.ErrTransport)
}

func TestClient_UnreachableIsTransport(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	addr := server.URL
	server.Close()

	client := NewClient(zap.NewNop(), Config{BaseURL: addr}, nil, nil)
	_, err := client.GetAllAssets(context.Background())
	assert.ErrorIs(t, err, model.ErrTransport)
}
