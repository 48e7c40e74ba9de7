package core

import "context"

type contextKey string

const (
	ctxKeyRunID contextKey = "run_id"
	ctxKeyTable contextKey = "table"
)

// ContextWithRunID tags ctx with the current transfer or check run.
func ContextWithRunID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxKeyRunID, id)
}

// ContextWithTable tags ctx with the table being processed.
func ContextWithTable(ctx context.Context, table string) context.Context {
	return context.WithValue(ctx, ctxKeyTable, table)
}

// RunIDFromContext extracts the run id from context.
func RunIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(ctxKeyRunID).(string); ok {
		return v
	}
	return ""
}

// TableFromContext extracts the table from context.
func TableFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(ctxKeyTable).(string); ok {
		return v
	}
	return ""
}
