package adapters

import (
	"errors"
	"fmt"
	"sync"

	"github.com/kndndrj/snowgate/core"
)

var (
	errNoValidTypeAliases   = errors.New("no valid type aliases provided")
	ErrUnsupportedTypeAlias = errors.New("no driver registered for provided type alias")
)

var (
	registryMu sync.RWMutex
	// registeredAdapters holds implemented adapters - specific adapters register themselves in their init functions.
	registeredAdapters = make(map[string]core.Adapter)
)

// register registers a new adapter for specific warehouse
func register(adapter core.Adapter, aliases ...string) error {
	if len(aliases) < 1 {
		return errNoValidTypeAliases
	}

	registryMu.Lock()
	defer registryMu.Unlock()

	invalidCount := 0
	for _, alias := range aliases {
		if alias == "" {
			invalidCount++
			continue
		}
		registeredAdapters[alias] = adapter
	}

	if invalidCount == len(aliases) {
		return errNoValidTypeAliases
	}

	return nil
}

// Mux is an interface to all internal adapters.
type Mux struct{}

func (*Mux) GetAdapter(typ string) (core.Adapter, error) {
	registryMu.RLock()
	defer registryMu.RUnlock()

	value, ok := registeredAdapters[typ]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedTypeAlias, typ)
	}

	return value, nil
}

// NewPool is a wrapper around core.NewPool that uses the internal mux for
// adapter registration.
func NewPool(cfg core.PoolConfig) (*core.Pool, error) {
	if cfg.Adapter == nil {
		if cfg.Params == nil {
			return nil, fmt.Errorf("%w: connection parameters are required", core.ErrConfiguration)
		}
		adapter, err := new(Mux).GetAdapter(cfg.Params.Type)
		if err != nil {
			return nil, fmt.Errorf("%w: Mux.GetAdapter: %w", core.ErrConfiguration, err)
		}
		cfg.Adapter = adapter
	}

	p, err := core.NewPool(cfg)
	if err != nil {
		return nil, fmt.Errorf("core.NewPool: %w", err)
	}

	return p, nil
}
