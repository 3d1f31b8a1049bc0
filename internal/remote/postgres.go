package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/hyperengineering/fieldsync/internal/types"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Pool settings for the Postgres backend.
const (
	MaxConns        = 10
	MinConns        = 2
	MaxConnLifetime = 10 * time.Minute
	MaxConnIdleTime = 5 * time.Minute
)

// NewPostgresPool opens and pings a pgx pool for databaseURL.
func NewPostgresPool(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse postgres config: %w", err)
	}

	config.MaxConns = MaxConns
	config.MinConns = MinConns
	config.MaxConnLifetime = MaxConnLifetime
	config.MaxConnIdleTime = MaxConnIdleTime

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("create postgres pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	slog.Info("postgres pool created", "component", "remote", "max_conns", MaxConns)
	return pool, nil
}

// Postgres is a Service storing every table's rows as JSONB documents in a
// single remote_rows table keyed by (table_name, id).
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres wraps an open pool.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

const postgresSchema = `
CREATE TABLE IF NOT EXISTS remote_rows (
    table_name TEXT NOT NULL,
    id         TEXT NOT NULL,
    data       JSONB NOT NULL,
    updated_at TIMESTAMPTZ NOT NULL,
    PRIMARY KEY (table_name, id)
);
CREATE INDEX IF NOT EXISTS idx_remote_rows_updated ON remote_rows (table_name, updated_at, id);
`

// Migrate creates the backing table if needed.
func (p *Postgres) Migrate(ctx context.Context) error {
	if _, err := p.pool.Exec(ctx, postgresSchema); err != nil {
		return fmt.Errorf("migrate remote_rows: %w", err)
	}
	return nil
}

// Ping checks connectivity to the database.
func (p *Postgres) Ping(ctx context.Context) error {
	return p.pool.Ping(ctx)
}

// Upsert implements Service.
func (p *Postgres) Upsert(ctx context.Context, table string, row types.Row) (string, error) {
	id := row.String("id")
	if id == "" {
		return "", fmt.Errorf("%w: %s: missing id", ErrInvalidRow, table)
	}
	updatedAt, err := types.ParseTime(row.String("updated_at"))
	if err != nil {
		return "", fmt.Errorf("%w: %s %s: updated_at: %v", ErrInvalidRow, table, id, err)
	}
	data, err := json.Marshal(row)
	if err != nil {
		return "", fmt.Errorf("encode row: %w", err)
	}

	var serverID string
	err = p.pool.QueryRow(ctx, `
		INSERT INTO remote_rows (table_name, id, data, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (table_name, id) DO UPDATE SET
			data = excluded.data,
			updated_at = excluded.updated_at
		RETURNING id
	`, table, id, data, updatedAt).Scan(&serverID)
	if err != nil {
		return "", fmt.Errorf("upsert %s %s: %w", table, id, err)
	}
	return serverID, nil
}

// Update implements Service. A patch carrying updated_at also moves the
// indexed timestamp so incremental selects see the change.
func (p *Postgres) Update(ctx context.Context, table string, patch types.Row, filter Filter) error {
	patch = patch.Clone()
	delete(patch, "id")
	data, err := json.Marshal(patch)
	if err != nil {
		return fmt.Errorf("encode patch: %w", err)
	}

	var updatedAt *time.Time
	if s := patch.String("updated_at"); s != "" {
		t, err := types.ParseTime(s)
		if err != nil {
			return fmt.Errorf("%w: %s: updated_at: %v", ErrInvalidRow, table, err)
		}
		updatedAt = &t
	}

	_, err = p.pool.Exec(ctx, `
		UPDATE remote_rows
		SET data = data || $1::jsonb,
		    updated_at = COALESCE($2, updated_at)
		WHERE table_name = $3 AND data->>$4 = $5
	`, data, updatedAt, table, filter.Column, types.Row{"v": filter.Value}.String("v"))
	if err != nil {
		return fmt.Errorf("update %s: %w", table, err)
	}
	return nil
}

// Select implements Service.
func (p *Postgres) Select(ctx context.Context, table string, query Query) ([]types.Row, error) {
	where := []string{"table_name = $1"}
	args := []any{table}
	if query.UpdatedAfter != nil {
		args = append(args, *query.UpdatedAfter)
		where = append(where, fmt.Sprintf("updated_at > $%d", len(args)))
	}
	for _, f := range query.Filters {
		args = append(args, f.Column, types.Row{"v": f.Value}.String("v"))
		where = append(where, fmt.Sprintf("data->>$%d = $%d", len(args)-1, len(args)))
	}

	sql := "SELECT data FROM remote_rows WHERE " + strings.Join(where, " AND ") + " ORDER BY updated_at ASC, id ASC"
	if query.Limit > 0 {
		args = append(args, query.Limit)
		sql += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := p.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("select %s: %w", table, err)
	}
	defer rows.Close()

	var out []types.Row
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("scan %s row: %w", table, err)
		}
		var row types.Row
		if err := json.Unmarshal(data, &row); err != nil {
			return nil, fmt.Errorf("decode %s row: %w", table, err)
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("iterate %s rows: %w", table, err)
	}
	return out, nil
}

var _ Service = (*Postgres)(nil)
