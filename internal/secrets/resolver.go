package secrets

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	pkgsecrets "github.com/Checker-Finance/assetcache/pkg/secrets"
)

const apiKeyField = "api_key"

// ErrNoAPIKey is returned when neither a static key nor a secret name is configured.
var ErrNoAPIKey = errors.New("no api key configured")

// APIKeyResolver yields the CoinCap API key, either a static value from the
// environment or a field of an AWS Secrets Manager secret cached in memory.
type APIKeyResolver struct {
	logger     *zap.Logger
	staticKey  string
	secretName string
	provider   pkgsecrets.Provider
	cache      *pkgsecrets.Cache[string]
}

// NewAPIKeyResolver builds a resolver. A non-empty staticKey always wins;
// provider and cache are only consulted when secretName is set.
func NewAPIKeyResolver(
	logger *zap.Logger,
	staticKey string,
	secretName string,
	provider pkgsecrets.Provider,
	cache *pkgsecrets.Cache[string],
) *APIKeyResolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &APIKeyResolver{
		logger:     logger,
		staticKey:  strings.TrimSpace(staticKey),
		secretName: strings.TrimSpace(secretName),
		provider:   provider,
		cache:      cache,
	}
}

// APIKey returns the current key. An empty key with a nil error means the
// remote is called anonymously.
func (r *APIKeyResolver) APIKey(ctx context.Context) (string, error) {
	if r.staticKey != "" {
		return r.staticKey, nil
	}
	if r.secretName == "" || r.provider == nil {
		return "", nil
	}

	if r.cache != nil {
		if key, ok := r.cache.Get(r.secretName); ok {
			return key, nil
		}
	}

	secret, err := r.provider.GetSecret(ctx, r.secretName)
	if err != nil {
		r.logger.Warn("secrets.api_key_fetch_failed",
			zap.String("secret", r.secretName),
			zap.Error(err))
		return "", fmt.Errorf("resolve api key from %q: %w", r.secretName, err)
	}

	key := strings.TrimSpace(secret[apiKeyField])
	if key == "" {
		return "", fmt.Errorf("secret %q has no %s field: %w", r.secretName, apiKeyField, ErrNoAPIKey)
	}

	if r.cache != nil {
		r.cache.Put(r.secretName, key)
	}
	r.logger.Info("secrets.api_key_resolved", zap.String("secret", r.secretName))
	return key, nil
}

// Invalidate drops the cached key so the next call re-reads the secret.
func (r *APIKeyResolver) Invalidate() {
	if r.cache != nil && r.secretName != "" {
		r.cache.Bust(r.secretName)
	}
}
