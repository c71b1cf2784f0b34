package core

import "context"

type (
	// Row and Header are attributes of ResultStream iterator
	Row    []any
	Header []string

	// ColumnType describes what the driver knows about a result column.
	// DatabaseType is empty when the driver doesn't report it.
	ColumnType struct {
		Name         string
		DatabaseType string
		Scale        int64
		HasScale     bool
	}

	// Meta holds metadata
	Meta struct {
		// number of rows changed by a statement without a result set
		RowsAffected *int64
		// warehouse side identifier of the statement
		QueryID string
	}

	// ResultStream is a result from executed query and has a form of an iterator
	ResultStream interface {
		Meta() *Meta
		Header() Header
		ColumnTypes() []ColumnType
		Next() (Row, error)
		HasNext() bool
		Close()
	}
)

type (
	SchemaType int

	// FormatterOptions provide various options for formatters
	FormatterOptions struct {
		SchemaType SchemaType
		// ChunkStart is the index of the first row, used by formatters that number rows
		ChunkStart int
	}

	// Formatter converts an execution result to bytes
	Formatter interface {
		Format(result *ExecutionResult, opts *FormatterOptions) ([]byte, error)
	}
)

const (
	SchemaFul SchemaType = iota
	SchemaLess
)

type (
	// Adapter opens a new warehouse session for the provided parameters.
	// Connect performs the authentication handshake and applies the session defaults.
	Adapter interface {
		Connect(ctx context.Context, params *ConnectionParams) (Driver, error)
	}

	// Driver is a single live warehouse session. It is not safe for concurrent use.
	Driver interface {
		Query(ctx context.Context, query string) (ResultStream, error)
		Exec(ctx context.Context, query string) (ResultStream, error)
		Close()
	}

	// ContextSwitcher is an optional interface for drivers that can change
	// the current warehouse, database, schema or role of a session.
	ContextSwitcher interface {
		Use(ctx context.Context, sc SessionContext) error
		CurrentContext(ctx context.Context) (SessionContext, error)
	}
)

// SessionContext is the set of namespace defaults active in a session.
type SessionContext struct {
	Warehouse string `json:"warehouse,omitempty" yaml:"warehouse"`
	Database  string `json:"database,omitempty" yaml:"database"`
	Schema    string `json:"schema,omitempty" yaml:"schema"`
	Role      string `json:"role,omitempty" yaml:"role"`
}

func (sc SessionContext) IsZero() bool {
	return sc == SessionContext{}
}

// Merge returns a copy of sc with every non-empty field of other applied on top.
func (sc SessionContext) Merge(other SessionContext) SessionContext {
	if other.Warehouse != "" {
		sc.Warehouse = other.Warehouse
	}
	if other.Database != "" {
		sc.Database = other.Database
	}
	if other.Schema != "" {
		sc.Schema = other.Schema
	}
	if other.Role != "" {
		sc.Role = other.Role
	}
	return sc
}
