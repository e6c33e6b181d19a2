package assetsync

import (
	"fmt"
)

// FallbackError is reported when the network failed and reading the cache
// failed too. Both causes are reachable through errors.Is/As.
type FallbackError struct {
	Remote error
	Cache  error
}

func (e *FallbackError) Error() string {
	return fmt.Sprintf("network: %v; cache: %v", e.Remote, e.Cache)
}

func (e *FallbackError) Unwrap() []error {
	return []error{e.Remote, e.Cache}
}
