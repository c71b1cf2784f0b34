package builders

import "strings"

// TypeProcessor converts a scanned driver value before it reaches the stream.
type TypeProcessor func(any) any

type clientConfig struct {
	processors map[string]TypeProcessor
}

type ClientOption func(*clientConfig)

// WithTypeProcessor applies fn to values of every listed database type.
// Type names are case insensitive; the first registration for a type wins.
func WithTypeProcessor(fn TypeProcessor, types ...string) ClientOption {
	return func(cc *clientConfig) {
		for _, typ := range types {
			key := strings.ToLower(typ)
			if _, ok := cc.processors[key]; ok {
				continue
			}
			cc.processors[key] = fn
		}
	}
}
