package mock

import (
	"time"

	"github.com/kndndrj/snowgate/core"
)

type resultStreamConfig struct {
	meta        *core.Meta
	header      core.Header
	columnTypes []core.ColumnType
	nextWait    time.Duration

	// failAt is the index of the row that fails with rowErr, -1 for none
	failAt int
	rowErr error
}

type ResultStreamOption func(*resultStreamConfig)

// ResultStreamWithNextSleep delays every Next call.
func ResultStreamWithNextSleep(d time.Duration) ResultStreamOption {
	return func(c *resultStreamConfig) {
		c.nextWait = d
	}
}

func ResultStreamWithMeta(meta *core.Meta) ResultStreamOption {
	return func(c *resultStreamConfig) {
		c.meta = meta
	}
}

func ResultStreamWithHeader(header core.Header) ResultStreamOption {
	return func(c *resultStreamConfig) {
		c.header = header
	}
}

func ResultStreamWithColumnTypes(types ...core.ColumnType) ResultStreamOption {
	return func(c *resultStreamConfig) {
		c.columnTypes = types
	}
}

// ResultStreamWithRowError makes fetching the row at index fail with err.
func ResultStreamWithRowError(index int, err error) ResultStreamOption {
	return func(c *resultStreamConfig) {
		c.failAt = index
		c.rowErr = err
	}
}
