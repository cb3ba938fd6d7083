package database

import (
	"context"
	"strings"
	"time"

	"github.com/nfrund/roomchat/internal/config"
	"github.com/surrealdb/surrealdb.go"
)

// Query executes a raw SurrealQL query with parameters and returns the
// results of the first statement. It's a generic function that can
// unmarshal results into any type T.
//
// Example:
//
//	query := "SELECT * FROM message WHERE room_id = $room"
//	rows, err := Query[messageRow](ctx, db, query, map[string]any{"room": "1"})
func Query[T any](ctx context.Context, db *surrealdb.DB, query string, params map[string]any) ([]T, error) {
	if db == nil {
		return nil, NewDBError(ErrNotConnected, "query").WithParams(loggableParams(params))
	}
	queryResults, err := surrealdb.Query[[]T](ctx, db, query, params)
	if err != nil {
		return nil, NewDBError(err, "query execution failed").WithQuery(compact(query)).WithParams(loggableParams(params))
	}
	if queryResults == nil || len(*queryResults) == 0 {
		return nil, nil
	}
	return (*queryResults)[0].Result, nil
}

// QueryOne executes a query and returns a single result.
// If no results are found, it returns nil, nil.
func QueryOne[T any](ctx context.Context, db *surrealdb.DB, query string, params map[string]any) (*T, error) {
	// CREATE/UPDATE/DELETE statements don't support LIMIT.
	if strings.HasPrefix(strings.ToUpper(strings.TrimSpace(query)), "SELECT") && !hasLimitClause(query) {
		query += " LIMIT 1"
	}

	results, err := Query[T](ctx, db, query, params)
	if err != nil {
		return nil, err
	}
	if len(results) == 0 {
		return nil, nil
	}
	return &results[0], nil
}

// Execute runs a query that doesn't return rows (INSERT, UPDATE, DELETE, etc.).
func Execute(ctx context.Context, db *surrealdb.DB, query string, params map[string]any) error {
	if db == nil {
		return NewDBError(ErrNotConnected, "execute").WithParams(loggableParams(params))
	}
	if _, err := surrealdb.Query[any](ctx, db, query, params); err != nil {
		return NewDBError(err, "query execution failed").WithQuery(compact(query)).WithParams(loggableParams(params))
	}
	return nil
}

// hasLimitClause checks if the query already has a LIMIT clause
func hasLimitClause(query string) bool {
	query = " " + strings.ToUpper(query) + " "
	return strings.Contains(query, " LIMIT ")
}

// redactedParams name query parameters whose values are user content.
var redactedParams = map[string]bool{"data": true, "content": true, "file_url": true}

// loggableParams copies params for error messages with user content masked.
func loggableParams(params map[string]any) map[string]any {
	if len(params) == 0 {
		return nil
	}
	out := make(map[string]any, len(params))
	for k, v := range params {
		if redactedParams[k] {
			v = "[redacted]"
		}
		out[k] = v
	}
	return out
}

// compact collapses whitespace so multi-line queries log on one line.
func compact(query string) string {
	return strings.Join(strings.Fields(query), " ")
}

// base carries the connection and timeouts shared by every store.
type base struct {
	db             *surrealdb.DB
	queryTimeout   time.Duration
	executeTimeout time.Duration
}

func newBase(db *surrealdb.DB, cfg config.Provider) base {
	return base{
		db:             db,
		queryTimeout:   cfg.GetDBQueryTimeout(),
		executeTimeout: cfg.GetDBExecuteTimeout(),
	}
}

func (b base) readCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return getTimeoutFromContext(ctx, b.queryTimeout, ContextKeyQueryTimeout)
}

func (b base) writeCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return getTimeoutFromContext(ctx, b.executeTimeout, ContextKeyExecuteTimeout)
}
