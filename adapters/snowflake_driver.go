package adapters

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/snowflakedb/gosnowflake"

	"github.com/kndndrj/snowgate/core"
	"github.com/kndndrj/snowgate/core/builders"
)

var (
	_ core.Driver          = (*snowflakeDriver)(nil)
	_ core.ContextSwitcher = (*snowflakeDriver)(nil)
)

// snowflakeDriver is a single pinned snowflake session.
type snowflakeDriver struct {
	c    *builders.Client
	conn *builders.Conn
}

func newSnowflakeDriver(ctx context.Context, c *builders.Client) (*snowflakeDriver, error) {
	conn, err := c.Conn(ctx)
	if err != nil {
		return nil, err
	}
	return &snowflakeDriver{c: c, conn: conn}, nil
}

// Query executes a query and returns the result as a stream.
func (r *snowflakeDriver) Query(ctx context.Context, query string) (core.ResultStream, error) {
	return r.run(ctx, query, r.conn.Query)
}

// Exec executes a statement that has no result set.
func (r *snowflakeDriver) Exec(ctx context.Context, query string) (core.ResultStream, error) {
	return r.run(ctx, query, r.conn.Exec)
}

func (r *snowflakeDriver) run(ctx context.Context, query string, fn func(context.Context, string) (*builders.ResultStream, error)) (core.ResultStream, error) {
	// the driver blocks on send, so the channel must be buffered
	queryIDs := make(chan string, 1)
	ctx = gosnowflake.WithQueryIDChan(ctx, queryIDs)

	stream, err := fn(ctx, query)
	if err != nil {
		return nil, translateError(err)
	}

	select {
	case id := <-queryIDs:
		stream.Meta().QueryID = id
	default:
	}

	return stream, nil
}

// Close closes the underlying sql.DB connection.
func (r *snowflakeDriver) Close() {
	_ = r.conn.Close()
	r.c.Close()
}

// Use switches the session context. Fields are applied role first, because
// the role decides which warehouses and databases are visible.
func (r *snowflakeDriver) Use(ctx context.Context, sc core.SessionContext) error {
	steps := []struct {
		object string
		name   string
	}{
		{"ROLE", sc.Role},
		{"WAREHOUSE", sc.Warehouse},
		{"DATABASE", sc.Database},
		{"SCHEMA", sc.Schema},
	}

	for _, step := range steps {
		if step.name == "" {
			continue
		}
		stmt := fmt.Sprintf("USE %s %s", step.object, quoteIdentifier(step.name))
		stream, err := r.Exec(ctx, stmt)
		if err != nil {
			return fmt.Errorf("use %s %q: %w", strings.ToLower(step.object), step.name, err)
		}
		stream.Close()
	}

	return nil
}

const currentContextQuery = "SELECT CURRENT_WAREHOUSE(), CURRENT_DATABASE(), CURRENT_SCHEMA(), CURRENT_ROLE()"

func (r *snowflakeDriver) CurrentContext(ctx context.Context) (core.SessionContext, error) {
	stream, err := r.Query(ctx, currentContextQuery)
	if err != nil {
		return core.SessionContext{}, err
	}
	defer stream.Close()

	if !stream.HasNext() {
		return core.SessionContext{}, errors.New("no session context returned")
	}
	row, err := stream.Next()
	if err != nil {
		return core.SessionContext{}, err
	}
	if len(row) < 4 {
		return core.SessionContext{}, errors.New("could not retrieve session context: insufficient info")
	}

	str := func(v any) string {
		if v == nil {
			return ""
		}
		return fmt.Sprint(v)
	}

	return core.SessionContext{
		Warehouse: str(row[0]),
		Database:  str(row[1]),
		Schema:    str(row[2]),
		Role:      str(row[3]),
	}, nil
}

var plainIdentifier = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_$]*$`)

// quoteIdentifier leaves plain and already quoted identifiers alone and
// quotes everything else, so that case insensitive names keep resolving.
func quoteIdentifier(name string) string {
	if plainIdentifier.MatchString(name) {
		return name
	}
	if len(name) >= 2 && strings.HasPrefix(name, `"`) && strings.HasSuffix(name, `"`) &&
		!strings.Contains(strings.ReplaceAll(name[1:len(name)-1], `""`, ""), `"`) {
		return name
	}
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
