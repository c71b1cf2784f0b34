package handler

import (
	"fmt"
	"strings"

	"github.com/kndndrj/snowgate/core"
)

func orNone(s string) string {
	if s == "" {
		return "<none>"
	}
	return s
}

func renderResult(statement string, res *core.ExecutionResult, f core.Formatter) (string, error) {
	var b strings.Builder

	b.WriteString("Query executed successfully\n\n")
	fmt.Fprintf(&b, "SQL: %s\n\n", strings.TrimSpace(statement))

	sc := res.Meta.Context
	fmt.Fprintf(&b, "Context: Database=%s, Schema=%s, Warehouse=%s\n\n", orNone(sc.Database), orNone(sc.Schema), orNone(sc.Warehouse))

	if res.Meta.RowsAffected != nil {
		fmt.Fprintf(&b, "Rows affected: %d\n", *res.Meta.RowsAffected)
		return b.String(), nil
	}

	if res.Meta.Truncated {
		fmt.Fprintf(&b, "Results: more than %d rows (showing first %d), %d columns\n", res.Meta.RowCount, res.Meta.RowCount, len(res.Columns))
	} else {
		fmt.Fprintf(&b, "Results: %d rows, %d columns\n", res.Meta.RowCount, len(res.Columns))
	}

	if len(res.Columns) > 0 {
		data, err := f.Format(res, &core.FormatterOptions{SchemaType: core.SchemaFul})
		if err != nil {
			return "", fmt.Errorf("f.Format: %w", err)
		}
		b.WriteString("\nData:\n")
		b.Write(data)
		b.WriteString("\n")
	}

	if res.Meta.Truncated {
		fmt.Fprintf(&b, "\nResults truncated. Showing first %d rows only.\n", res.Meta.RowCount)
		b.WriteString("Consider adding a LIMIT clause or filtering the query.\n")
	}

	return b.String(), nil
}

func renderError(statement string, cerr *core.ClassifiedError) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Query failed (%s/%s)\n\n", cerr.Kind, cerr.Reason)
	if s := strings.TrimSpace(statement); s != "" {
		fmt.Fprintf(&b, "SQL: %s\n\n", s)
	}

	b.WriteString("Error: ")
	if cerr.Code != "" {
		b.WriteString(cerr.Code)
		if cerr.SQLState != "" {
			fmt.Fprintf(&b, " (%s)", cerr.SQLState)
		}
		b.WriteString(": ")
	}
	b.WriteString(cerr.Message)
	b.WriteString("\n")

	if cerr.Hint != "" {
		fmt.Fprintf(&b, "\nHint: %s\n", cerr.Hint)
	}

	return b.String()
}
