package mock

import (
	"context"

	"github.com/kndndrj/snowgate/core"
)

type adapterConfig struct {
	querySideEffects   map[string]func(context.Context) error
	anyQuerySideEffect func(context.Context) error
	connectSideEffect  func(context.Context, *core.ConnectionParams) error
	useSideEffect      func(context.Context, core.SessionContext) error
	rowsAffected       int64
	currentContext     core.SessionContext

	resultStreamOptions []ResultStreamOption
}

type AdapterOption func(*adapterConfig)

// AdapterWithQuerySideEffect runs sideEffect before the given statement is
// executed. A returned error becomes the statement's error.
func AdapterWithQuerySideEffect(query string, sideEffect func(context.Context) error) AdapterOption {
	return func(c *adapterConfig) {
		_, ok := c.querySideEffects[query]
		if ok {
			panic("side effect already registered for query: " + query)
		}

		c.querySideEffects[query] = sideEffect
	}
}

// AdapterWithAnyQuerySideEffect runs sideEffect before every statement
// without a statement specific side effect.
func AdapterWithAnyQuerySideEffect(sideEffect func(context.Context) error) AdapterOption {
	return func(c *adapterConfig) {
		c.anyQuerySideEffect = sideEffect
	}
}

func AdapterWithConnectSideEffect(sideEffect func(context.Context, *core.ConnectionParams) error) AdapterOption {
	return func(c *adapterConfig) {
		c.connectSideEffect = sideEffect
	}
}

func AdapterWithUseSideEffect(sideEffect func(context.Context, core.SessionContext) error) AdapterOption {
	return func(c *adapterConfig) {
		c.useSideEffect = sideEffect
	}
}

func AdapterWithRowsAffected(n int64) AdapterOption {
	return func(c *adapterConfig) {
		c.rowsAffected = n
	}
}

// AdapterWithCurrentContext sets the context every new session starts in.
func AdapterWithCurrentContext(sc core.SessionContext) AdapterOption {
	return func(c *adapterConfig) {
		c.currentContext = sc
	}
}

func AdapterWithResultStreamOpts(opts ...ResultStreamOption) AdapterOption {
	return func(c *adapterConfig) {
		c.resultStreamOptions = append(c.resultStreamOptions, opts...)
	}
}
