package store

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/jackc/pgx/v5"

	apperrors "github.com/CanhCl92/AutoAccess/internal/errors"
)

// Postgres is a MacroStore on a single pgx connection. pgx.Conn is not
// safe for concurrent use, so calls are serialized.
type Postgres struct {
	mu   sync.Mutex
	conn *pgx.Conn
}

// NewPostgres connects and ensures the schema exists.
func NewPostgres(ctx context.Context, connString string) (*Postgres, error) {
	conn, err := pgx.Connect(ctx, connString)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.Unavailable, "connect to database")
	}
	if err := initSchema(ctx, conn); err != nil {
		conn.Close(ctx)
		return nil, apperrors.Wrap(err, apperrors.Internal, "initialize database schema")
	}
	return &Postgres{conn: conn}, nil
}

func initSchema(ctx context.Context, conn *pgx.Conn) error {
	_, err := conn.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS macros (
			id TEXT PRIMARY KEY,
			version INT NOT NULL DEFAULT 1,
			body JSONB NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE TABLE IF NOT EXISTS macro_aliases (
			name TEXT PRIMARY KEY,
			steps JSONB NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
	`)
	return err
}

func (p *Postgres) SaveMacro(ctx context.Context, rec MacroRecord) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, err := p.conn.Exec(ctx, `
		INSERT INTO macros (id, version, body, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (id) DO UPDATE SET version = EXCLUDED.version, body = EXCLUDED.body, updated_at = NOW()
	`, rec.ID, rec.Version, string(rec.Raw))
	if err != nil {
		return apperrors.Wrapf(err, apperrors.Internal, "save macro %s", rec.ID)
	}
	return nil
}

func (p *Postgres) Macro(ctx context.Context, id string) (MacroRecord, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	rec := MacroRecord{ID: id}
	var body string
	err := p.conn.QueryRow(ctx, `SELECT version, body::text, updated_at FROM macros WHERE id = $1`, id).
		Scan(&rec.Version, &body, &rec.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return MacroRecord{}, macroNotFound(id)
	}
	if err != nil {
		return MacroRecord{}, apperrors.Wrapf(err, apperrors.Internal, "load macro %s", id)
	}
	rec.Raw = json.RawMessage(body)
	return rec, nil
}

func (p *Postgres) Macros(ctx context.Context) ([]MacroRecord, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	rows, err := p.conn.Query(ctx, `SELECT id, version, body::text, updated_at FROM macros ORDER BY id`)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.Internal, "list macros")
	}
	defer rows.Close()

	var out []MacroRecord
	for rows.Next() {
		var rec MacroRecord
		var body string
		if err := rows.Scan(&rec.ID, &rec.Version, &body, &rec.UpdatedAt); err != nil {
			return nil, apperrors.Wrap(err, apperrors.Internal, "scan macro")
		}
		rec.Raw = json.RawMessage(body)
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (p *Postgres) DeleteMacro(ctx context.Context, id string) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	tag, err := p.conn.Exec(ctx, `DELETE FROM macros WHERE id = $1`, id)
	if err != nil {
		return false, apperrors.Wrapf(err, apperrors.Internal, "delete macro %s", id)
	}
	return tag.RowsAffected() > 0, nil
}

func (p *Postgres) SaveAlias(ctx context.Context, name string, steps json.RawMessage) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, err := p.conn.Exec(ctx, `
		INSERT INTO macro_aliases (name, steps, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (name) DO UPDATE SET steps = EXCLUDED.steps, updated_at = NOW()
	`, name, string(steps))
	if err != nil {
		return apperrors.Wrapf(err, apperrors.Internal, "save alias %s", name)
	}
	return nil
}

func (p *Postgres) Aliases(ctx context.Context) (map[string]json.RawMessage, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	rows, err := p.conn.Query(ctx, `SELECT name, steps::text FROM macro_aliases`)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.Internal, "list aliases")
	}
	defer rows.Close()

	out := make(map[string]json.RawMessage)
	for rows.Next() {
		var name, steps string
		if err := rows.Scan(&name, &steps); err != nil {
			return nil, apperrors.Wrap(err, apperrors.Internal, "scan alias")
		}
		out[name] = json.RawMessage(steps)
	}
	return out, rows.Err()
}

// Reset drops the tables, for tests.
func (p *Postgres) Reset(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, err := p.conn.Exec(ctx, `DROP TABLE IF EXISTS macros; DROP TABLE IF EXISTS macro_aliases;`)
	if err != nil {
		return err
	}
	return initSchema(ctx, p.conn)
}

func (p *Postgres) Close(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.conn.Close(ctx)
}

var (
	_ MacroStore = (*Memory)(nil)
	_ MacroStore = (*Postgres)(nil)
)
