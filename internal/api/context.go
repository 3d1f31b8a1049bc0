package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/hyperengineering/fieldsync/internal/schema"
)

// tableContextKey is the context key for the resolved table.
type tableContextKey struct{}

// ErrNoTableInContext indicates no table was found in the context.
var ErrNoTableInContext = errors.New("no table in context")

// WithTable returns a new context with the table attached.
func WithTable(ctx context.Context, t schema.Table) context.Context {
	return context.WithValue(ctx, tableContextKey{}, t)
}

// TableFromContext extracts the table from the context.
func TableFromContext(ctx context.Context) (schema.Table, error) {
	t, ok := ctx.Value(tableContextKey{}).(schema.Table)
	if !ok || t.Name == "" {
		return schema.Table{}, ErrNoTableInContext
	}
	return t, nil
}

// MustTableFromContext extracts the table or panics.
// Use only when TableMiddleware guarantees its presence.
func MustTableFromContext(ctx context.Context) schema.Table {
	t, err := TableFromContext(ctx)
	if err != nil {
		panic("table not in context: middleware misconfiguration")
	}
	return t
}

// TableMiddleware resolves the {table} URL parameter against the table
// registry. Unknown tables get 404.
func TableMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		name := chi.URLParam(r, "table")
		t, ok := schema.Lookup(name)
		if !ok {
			WriteProblem(w, r, http.StatusNotFound, "Unknown table: "+name)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithTable(r.Context(), t)))
	})
}
