// Package pgstore is a Postgres backend.Backend over a pgx connection pool.
package pgstore

import (
	"context"
	stderrors "errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hpungsan/stream/internal/backend"
	"github.com/hpungsan/stream/internal/errors"
	"github.com/hpungsan/stream/internal/fragment"
)

const schema = `
CREATE TABLE IF NOT EXISTS stacks (
  id         TEXT PRIMARY KEY,
  name       TEXT NOT NULL,
  created_at BIGINT NOT NULL
);

CREATE TABLE IF NOT EXISTS prompt_blocks (
  id          TEXT PRIMARY KEY,
  type        TEXT NOT NULL,
  title       TEXT NOT NULL,
  content     TEXT NOT NULL,
  tags        TEXT[] NOT NULL DEFAULT '{}',
  stack_id    TEXT,
  stack_order INTEGER,
  created_at  BIGINT NOT NULL,
  updated_at  BIGINT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_prompt_blocks_created
ON prompt_blocks(created_at DESC, id DESC);

CREATE INDEX IF NOT EXISTS idx_prompt_blocks_stack
ON prompt_blocks(stack_id, stack_order)
WHERE stack_id IS NOT NULL;

CREATE TABLE IF NOT EXISTS tag_colors (
  name      TEXT PRIMARY KEY,
  hue       INTEGER NOT NULL,
  lightness INTEGER NOT NULL DEFAULT 32
);
`

const fragmentColumns = `id, type, title, content, tags, stack_id, stack_order, created_at`

// Store implements backend.Backend on Postgres.
type Store struct {
	pool *pgxpool.Pool
}

var _ backend.Backend = (*Store)(nil)

// New connects to url and creates the schema if needed.
func New(ctx context.Context, url string) (*Store, error) {
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, errors.NewConnectivity(err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, errors.NewConnectivity(err)
	}
	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, mapError("migrate", err)
	}
	return &Store{pool: pool}, nil
}

// mapError converts driver failures into StreamErrors.
func mapError(op string, err error) error {
	if err == nil {
		return nil
	}
	if _, ok := errors.As(err); ok {
		return err
	}
	if stderrors.Is(err, context.Canceled) || stderrors.Is(err, context.DeadlineExceeded) {
		return errors.NewConnectivity(err)
	}
	var pgErr *pgconn.PgError
	if stderrors.As(err, &pgErr) {
		switch strings.TrimSpace(pgErr.Code) {
		case "23505": // unique_violation
			return errors.NewConflict(op + ": already exists")
		case "08000", "08003", "08006", "57P01":
			return errors.NewConnectivity(err)
		}
	}
	if pgconn.SafeToRetry(err) {
		return errors.NewConnectivity(err)
	}
	return errors.NewPersistence(op, err)
}

func (s *Store) ListFragments(ctx context.Context) ([]fragment.Fragment, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+fragmentColumns+` FROM prompt_blocks ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, mapError("list prompts", err)
	}
	defer rows.Close()

	out := []fragment.Fragment{}
	for rows.Next() {
		f, err := scanFragment(rows)
		if err != nil {
			return nil, mapError("list prompts", err)
		}
		out = append(out, f)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError("list prompts", err)
	}
	return out, nil
}

func (s *Store) CreateFragment(ctx context.Context, f fragment.Fragment) error {
	stackID, stackOrder := membershipColumns(f)
	createdAt := f.CreatedAt
	now := time.Now().UnixMilli()
	if createdAt == 0 {
		createdAt = now
	}
	tags := f.Tags
	if tags == nil {
		tags = []string{}
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO prompt_blocks (
			id, type, title, content, tags, stack_id, stack_order, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		f.ID, string(f.Kind), f.Title, f.Content, tags, stackID, stackOrder, createdAt, now,
	)
	return mapError("create prompt", err)
}

// UpdateFragment applies p inside a transaction holding the row lock.
func (s *Store) UpdateFragment(ctx context.Context, id string, p fragment.Patch) error {
	if err := p.Validate(); err != nil {
		return err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return mapError("update prompt", err)
	}
	defer tx.Rollback(ctx)

	row := tx.QueryRow(ctx, `SELECT `+fragmentColumns+` FROM prompt_blocks WHERE id = $1 FOR UPDATE`, id)
	current, err := scanFragment(row)
	if stderrors.Is(err, pgx.ErrNoRows) {
		return errors.NewNotFound("prompt", id)
	}
	if err != nil {
		return mapError("update prompt", err)
	}
	if p.Empty() {
		return nil
	}

	next := p.Apply(current)
	stackID, stackOrder := membershipColumns(next)
	tags := next.Tags
	if tags == nil {
		tags = []string{}
	}
	if _, err := tx.Exec(ctx, `
		UPDATE prompt_blocks
		SET type = $1, title = $2, content = $3, tags = $4,
			stack_id = $5, stack_order = $6, updated_at = $7
		WHERE id = $8`,
		string(next.Kind), next.Title, next.Content, tags,
		stackID, stackOrder, time.Now().UnixMilli(), id,
	); err != nil {
		return mapError("update prompt", err)
	}
	return mapError("update prompt", tx.Commit(ctx))
}

func (s *Store) DeleteFragment(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM prompt_blocks WHERE id = $1`, id)
	if err != nil {
		return mapError("delete prompt", err)
	}
	if tag.RowsAffected() == 0 {
		return errors.NewNotFound("prompt", id)
	}
	return nil
}

func (s *Store) ListTagColors(ctx context.Context) ([]fragment.TagColor, error) {
	rows, err := s.pool.Query(ctx, `SELECT name, hue, lightness FROM tag_colors ORDER BY name`)
	if err != nil {
		return nil, mapError("list tag colors", err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (fragment.TagColor, error) {
		var c fragment.TagColor
		err := row.Scan(&c.Name, &c.Hue, &c.Lightness)
		return c, err
	})
	if err != nil {
		return nil, mapError("list tag colors", err)
	}
	if out == nil {
		out = []fragment.TagColor{}
	}
	return out, nil
}

func (s *Store) UpsertTagColor(ctx context.Context, c fragment.TagColor) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO tag_colors (name, hue, lightness) VALUES ($1, $2, $3)
		ON CONFLICT (name) DO UPDATE SET hue = EXCLUDED.hue, lightness = EXCLUDED.lightness`,
		c.Name, c.Hue, c.Lightness,
	)
	return mapError("save tag color", err)
}

func (s *Store) DeleteTagColor(ctx context.Context, name string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM tag_colors WHERE name = $1`, name)
	return mapError("delete tag color", err)
}

func (s *Store) ListStacks(ctx context.Context) ([]fragment.Stack, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, name, created_at FROM stacks ORDER BY created_at ASC, id ASC`)
	if err != nil {
		return nil, mapError("list stacks", err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (fragment.Stack, error) {
		var st fragment.Stack
		err := row.Scan(&st.ID, &st.Name, &st.CreatedAt)
		return st, err
	})
	if err != nil {
		return nil, mapError("list stacks", err)
	}
	if out == nil {
		out = []fragment.Stack{}
	}
	return out, nil
}

func (s *Store) CreateStack(ctx context.Context, st fragment.Stack) error {
	createdAt := st.CreatedAt
	if createdAt == 0 {
		createdAt = time.Now().UnixMilli()
	}
	_, err := s.pool.Exec(ctx, `INSERT INTO stacks (id, name, created_at) VALUES ($1, $2, $3)`, st.ID, st.Name, createdAt)
	return mapError("create stack", err)
}

func (s *Store) RenameStack(ctx context.Context, id, name string) error {
	tag, err := s.pool.Exec(ctx, `UPDATE stacks SET name = $1 WHERE id = $2`, name, id)
	if err != nil {
		return mapError("rename stack", err)
	}
	if tag.RowsAffected() == 0 {
		return errors.NewNotFound("stack", id)
	}
	return nil
}

// DeleteStack unlinks members and removes the stack in one transaction.
func (s *Store) DeleteStack(ctx context.Context, id string) error {
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx,
			`UPDATE prompt_blocks SET stack_id = NULL, stack_order = NULL, updated_at = $1 WHERE stack_id = $2`,
			time.Now().UnixMilli(), id,
		); err != nil {
			return err
		}
		_, err := tx.Exec(ctx, `DELETE FROM stacks WHERE id = $1`, id)
		return err
	})
	return mapError("delete stack", err)
}

func (s *Store) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return errors.NewConnectivity(err)
	}
	return nil
}

func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

func scanFragment(row pgx.Row) (fragment.Fragment, error) {
	var (
		f          fragment.Fragment
		kind       string
		stackID    *string
		stackOrder *int32
	)
	if err := row.Scan(&f.ID, &kind, &f.Title, &f.Content, &f.Tags, &stackID, &stackOrder, &f.CreatedAt); err != nil {
		return fragment.Fragment{}, err
	}

	f.Kind = fragment.Kind(kind)
	if !f.Kind.Valid() {
		f.Kind = fragment.KindContext
	}
	if f.Tags == nil {
		f.Tags = []string{}
	}
	if stackID != nil && *stackID != "" {
		m := &fragment.Membership{StackID: *stackID}
		if stackOrder != nil {
			pos := int(*stackOrder)
			m.Position = &pos
		}
		f.Stack = m
	}
	return f, nil
}

func membershipColumns(f fragment.Fragment) (*string, *int32) {
	if f.Stack == nil {
		return nil, nil
	}
	id := f.Stack.StackID
	if f.Stack.Position == nil {
		return &id, nil
	}
	pos := int32(*f.Stack.Position)
	return &id, &pos
}
