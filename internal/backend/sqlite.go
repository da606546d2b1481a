package backend

import (
	"context"
	"database/sql"

	"github.com/hpungsan/stream/internal/db"
	"github.com/hpungsan/stream/internal/fragment"
)

// SQLite is the default local Backend over internal/db.
type SQLite struct {
	db *sql.DB
}

var _ Backend = (*SQLite)(nil)

// NewSQLite wraps an initialised database (see db.Init).
func NewSQLite(conn *sql.DB) *SQLite {
	return &SQLite{db: conn}
}

func (s *SQLite) ListFragments(ctx context.Context) ([]fragment.Fragment, error) {
	return db.ListFragments(ctx, s.db)
}

func (s *SQLite) CreateFragment(ctx context.Context, f fragment.Fragment) error {
	return db.InsertFragment(ctx, s.db, f)
}

func (s *SQLite) UpdateFragment(ctx context.Context, id string, p fragment.Patch) error {
	return db.UpdateFragment(ctx, s.db, id, p)
}

func (s *SQLite) DeleteFragment(ctx context.Context, id string) error {
	return db.DeleteFragment(ctx, s.db, id)
}

func (s *SQLite) ListTagColors(ctx context.Context) ([]fragment.TagColor, error) {
	return db.ListTagColors(ctx, s.db)
}

func (s *SQLite) UpsertTagColor(ctx context.Context, c fragment.TagColor) error {
	return db.UpsertTagColor(ctx, s.db, c)
}

func (s *SQLite) DeleteTagColor(ctx context.Context, name string) error {
	return db.DeleteTagColor(ctx, s.db, name)
}

func (s *SQLite) ListStacks(ctx context.Context) ([]fragment.Stack, error) {
	return db.ListStacks(ctx, s.db)
}

func (s *SQLite) CreateStack(ctx context.Context, st fragment.Stack) error {
	return db.InsertStack(ctx, s.db, st)
}

func (s *SQLite) RenameStack(ctx context.Context, id, name string) error {
	return db.RenameStack(ctx, s.db, id, name)
}

func (s *SQLite) DeleteStack(ctx context.Context, id string) error {
	return db.DeleteStack(ctx, s.db, id)
}

func (s *SQLite) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLite) Close() error {
	return s.db.Close()
}
