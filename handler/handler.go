package handler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/jonboulle/clockwork"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/kndndrj/snowgate/core"
	"github.com/kndndrj/snowgate/core/format"
	"github.com/kndndrj/snowgate/metrics"
)

const (
	ToolExecuteSQL = "execute_sql"

	defaultMaxCellWidth = 50

	// largest timeout_ms that fits in a time.Duration
	maxTimeoutMs = math.MaxInt64 / int64(time.Millisecond)
)

const executeSQLDescription = `
PURPOSE:
Execute a single SQL statement on the configured Snowflake account and return the result.

USAGE RULES:
- Send one statement per call. Batches separated by ';' are treated as administrative.
- Prefer aggregated, filtered queries with a LIMIT. Results are cut at row_limit.
- database, schema and warehouse override the session defaults for this statement only.

SAFETY:
Statements are classified as read_only, data_modifying, schema_modifying, administrative
or destructive. Disabled classes are rejected before anything reaches the warehouse.
`

// Executor runs statements. It is implemented by *core.Gateway.
type Executor interface {
	Execute(ctx context.Context, req *core.StatementRequest) (*core.ExecutionResult, error)
}

type ExecuteInput struct {
	Statement string `json:"statement" jsonschema:"the SQL statement to execute"`
	RowLimit  int    `json:"row_limit,omitempty" jsonschema:"maximum number of rows to return"`
	TimeoutMs int    `json:"timeout_ms,omitempty" jsonschema:"execution time budget in milliseconds"`
	Database  string `json:"database,omitempty" jsonschema:"database to use for this statement"`
	Schema    string `json:"schema,omitempty" jsonschema:"schema to use for this statement"`
	Warehouse string `json:"warehouse,omitempty" jsonschema:"warehouse to use for this statement"`
	Format    string `json:"format,omitempty" jsonschema:"text rendering of the rows: table, json or csv"`
}

// ExecuteOutput holds exactly one of Result and Error.
type ExecuteOutput struct {
	Result *core.ExecutionResult `json:"result,omitempty"`
	Error  *core.ClassifiedError `json:"error,omitempty"`
}

type Config struct {
	Logger   *slog.Logger
	Clock    clockwork.Clock
	Executor Executor
	// MaxCellWidth cuts wide cells of the table rendering.
	MaxCellWidth int
}

func (cfg *Config) Validate() error {
	if cfg.Executor == nil {
		return errors.New("executor is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.DiscardHandler)
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.MaxCellWidth == 0 {
		cfg.MaxCellWidth = defaultMaxCellWidth
	}
	return nil
}

// Handler binds the gateway to MCP tools. It holds no gateway logic.
type Handler struct {
	cfg Config
	log *slog.Logger

	formatters map[string]core.Formatter
}

func New(cfg Config) (*Handler, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%w: handler: %w", core.ErrConfiguration, err)
	}

	return &Handler{
		cfg: cfg,
		log: cfg.Logger,
		formatters: map[string]core.Formatter{
			"table": format.NewTable(cfg.MaxCellWidth),
			"json":  format.NewJSON(),
			"csv":   format.NewCSV(),
		},
	}, nil
}

// Register adds the tools to server.
func (h *Handler) Register(server *mcp.Server) error {
	in, err := jsonschema.For[ExecuteInput](nil)
	if err != nil {
		return fmt.Errorf("failed to create %s input schema: %w", ToolExecuteSQL, err)
	}

	mcp.AddTool(server, &mcp.Tool{
		Name:        ToolExecuteSQL,
		Description: executeSQLDescription,
		InputSchema: in,
	}, func(ctx context.Context, _ *mcp.CallToolRequest, in ExecuteInput) (*mcp.CallToolResult, any, error) {
		return h.ExecuteSQL(ctx, in), nil, nil
	})

	return nil
}

// ExecuteSQL runs the statement and converts the outcome to a tool result.
// Failures are reported in the result, never as a protocol error.
func (h *Handler) ExecuteSQL(ctx context.Context, in ExecuteInput) *mcp.CallToolResult {
	start := h.cfg.Clock.Now()

	res, err := h.cfg.Executor.Execute(ctx, in.request())

	var out *mcp.CallToolResult
	if err != nil {
		out = h.errorResult(in.Statement, err)
	} else {
		out = h.successResult(in, res)
	}

	status := "success"
	if out.IsError {
		status = "error"
	}
	metrics.ToolCallsTotal.WithLabelValues(ToolExecuteSQL, status).Inc()
	metrics.ToolCallDuration.WithLabelValues(ToolExecuteSQL).Observe(h.cfg.Clock.Since(start).Seconds())

	return out
}

func (in ExecuteInput) request() *core.StatementRequest {
	req := &core.StatementRequest{
		Statement: strings.TrimSpace(in.Statement),
		RowLimit:  in.RowLimit,
		Database:  in.Database,
		Schema:    in.Schema,
		Warehouse: in.Warehouse,
	}
	req.Timeout = time.Duration(min(int64(in.TimeoutMs), maxTimeoutMs)) * time.Millisecond
	return req
}

func (h *Handler) formatter(name string) (core.Formatter, error) {
	if name == "" {
		name = "table"
	}
	f, ok := h.formatters[strings.ToLower(name)]
	if !ok {
		return nil, fmt.Errorf("unknown format %q", name)
	}
	return f, nil
}

func (h *Handler) successResult(in ExecuteInput, res *core.ExecutionResult) *mcp.CallToolResult {
	f, err := h.formatter(in.Format)
	if err != nil {
		// the statement already ran, fall back to the default rendering
		h.log.Warn("handler: falling back to table rendering", "error", err)
		f = h.formatters["table"]
	}

	text, err := renderResult(in.Statement, res, f)
	if err != nil {
		h.log.Error("handler: could not render result", "error", err)
		text = fmt.Sprintf("Query executed successfully, but the result could not be rendered: %s", err)
	}

	return &mcp.CallToolResult{
		Content:           []mcp.Content{&mcp.TextContent{Text: text}},
		StructuredContent: ExecuteOutput{Result: res},
	}
}

func (h *Handler) errorResult(statement string, err error) *mcp.CallToolResult {
	cerr := core.ClassifyError(err)

	return &mcp.CallToolResult{
		Content:           []mcp.Content{&mcp.TextContent{Text: renderError(statement, cerr)}},
		StructuredContent: ExecuteOutput{Error: cerr},
		IsError:           true,
	}
}
