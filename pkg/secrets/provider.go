package secrets

import "context"

// Provider resolves a named secret into its key/value fields.
// Concrete implementations (AWS, static, ...) can satisfy this.
type Provider interface {
	GetSecret(ctx context.Context, name string) (map[string]string, error)
}

// StaticProvider serves secrets from a fixed map. Useful for local runs and tests.
type StaticProvider map[string]map[string]string

func (p StaticProvider) GetSecret(_ context.Context, name string) (map[string]string, error) {
	if v, ok := p[name]; ok {
		return v, nil
	}
	return nil, ErrSecretNotFound
}
