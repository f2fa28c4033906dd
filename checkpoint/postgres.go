package checkpoint

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/hupe1980/reportgraph/core"
)

const defaultPostgresTable = "reportgraph_checkpoints"

const createCheckpointTableSQL = `CREATE TABLE IF NOT EXISTS %s (
    session_id  TEXT PRIMARY KEY,
    state       JSONB NOT NULL,
    updated_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`

// Querier abstracts the pgx methods the store needs. *pgxpool.Pool, *pgx.Conn
// and pgx.Tx satisfy it.
type Querier interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresOptions configures a Postgres store.
type PostgresOptions struct {
	// Table overrides the table name. It is sanitized as an identifier.
	Table string
}

// Postgres stores checkpoints as JSONB rows keyed by session id.
type Postgres struct {
	db    Querier
	table string
}

var _ core.CheckpointStore = (*Postgres)(nil)

// NewPostgres creates a store over db.
func NewPostgres(db Querier, optFns ...func(o *PostgresOptions)) *Postgres {
	opts := PostgresOptions{Table: defaultPostgresTable}
	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.Table == "" {
		opts.Table = defaultPostgresTable
	}

	return &Postgres{db: db, table: pgx.Identifier{opts.Table}.Sanitize()}
}

// EnsureSchema creates the checkpoint table if it does not exist.
func (p *Postgres) EnsureSchema(ctx context.Context) error {
	if _, err := p.db.Exec(ctx, fmt.Sprintf(createCheckpointTableSQL, p.table)); err != nil {
		return fmt.Errorf("checkpoint: create table: %w", err)
	}

	return nil
}

// Save upserts the state of a session.
func (p *Postgres) Save(ctx context.Context, sessionID string, state *core.ExecutionState) error {
	if sessionID == "" {
		return errEmptySessionID
	}

	raw, err := encode(state)
	if err != nil {
		return err
	}

	query := fmt.Sprintf(`INSERT INTO %s (session_id, state, updated_at) VALUES ($1, $2, NOW())
		ON CONFLICT (session_id) DO UPDATE SET state = EXCLUDED.state, updated_at = NOW()`, p.table)

	if _, err := p.db.Exec(ctx, query, sessionID, string(raw)); err != nil {
		return fmt.Errorf("checkpoint: postgres save: %w", err)
	}

	return nil
}

// Load returns the last saved state of a session.
func (p *Postgres) Load(ctx context.Context, sessionID string) (*core.ExecutionState, error) {
	query := fmt.Sprintf(`SELECT state FROM %s WHERE session_id = $1`, p.table)

	var raw string
	if err := p.db.QueryRow(ctx, query, sessionID).Scan(&raw); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, core.ErrCheckpointNotFound
		}

		return nil, fmt.Errorf("checkpoint: postgres load: %w", err)
	}

	return decode([]byte(raw))
}

// Delete removes the checkpoint of a session.
func (p *Postgres) Delete(ctx context.Context, sessionID string) error {
	query := fmt.Sprintf(`DELETE FROM %s WHERE session_id = $1`, p.table)

	if _, err := p.db.Exec(ctx, query, sessionID); err != nil {
		return fmt.Errorf("checkpoint: postgres delete: %w", err)
	}

	return nil
}
