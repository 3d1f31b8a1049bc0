// Package remote defines the capability the sync engine needs from the
// server side, plus its implementations: an in-memory fake, an HTTP client
// for the reference server, and a Postgres backend.
package remote

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/hyperengineering/fieldsync/internal/types"
)

// Service is the remote data service. Rows use remote field names.
type Service interface {
	// Upsert inserts or replaces the row identified by row["id"] and
	// returns the server id.
	Upsert(ctx context.Context, table string, row types.Row) (string, error)

	// Update merges patch into every row matching filter.
	Update(ctx context.Context, table string, patch types.Row, filter Filter) error

	// Select returns rows matching query ordered by updated_at, then id.
	Select(ctx context.Context, table string, query Query) ([]types.Row, error)
}

// Filter is an equality match on one remote field.
type Filter struct {
	Column string
	Value  any
}

// Query selects rows from one table.
type Query struct {
	// Filters are ANDed equality matches.
	Filters []Filter

	// UpdatedAfter keeps rows with updated_at strictly later than it.
	UpdatedAfter *time.Time

	// Limit caps the result. Zero means no limit.
	Limit int
}

// ErrInvalidRow is returned for rows the service cannot store.
var ErrInvalidRow = errors.New("invalid row")

// Error is a failure reported by the remote side.
type Error struct {
	Op     string
	Status int
	Detail string
}

func (e *Error) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("remote %s: status %d", e.Op, e.Status)
	}
	return fmt.Sprintf("remote %s: status %d: %s", e.Op, e.Status, e.Detail)
}

// Temporary reports whether retrying the call may succeed.
func (e *Error) Temporary() bool {
	return e.Status == 0 || e.Status == http.StatusTooManyRequests || e.Status >= 500
}

// AsError unwraps a *Error from err.
func AsError(err error) (*Error, bool) {
	var re *Error
	if errors.As(err, &re) {
		return re, true
	}
	return nil, false
}

// matches reports whether row satisfies every filter. Values compare by
// their string form so JSON numbers and Go ints agree.
func matches(row types.Row, filters []Filter) bool {
	for _, f := range filters {
		want := types.Row{"v": f.Value}.String("v")
		if row.String(f.Column) != want {
			return false
		}
	}
	return true
}

// rowUpdatedAt parses the row's updated_at, zero when missing or invalid.
func rowUpdatedAt(row types.Row) time.Time {
	s := row.String("updated_at")
	if s == "" {
		return time.Time{}
	}
	t, err := types.ParseTime(s)
	if err != nil {
		return time.Time{}
	}
	return t
}
