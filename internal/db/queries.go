package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"time"

	"github.com/hpungsan/stream/internal/errors"
	"github.com/hpungsan/stream/internal/fragment"
)

// querier is satisfied by *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

const fragmentColumns = `id, type, title, content, tags_json, stack_id, stack_order, created_at`

// InsertFragment stores a new fragment. Presentation flags are not stored.
func InsertFragment(ctx context.Context, db *sql.DB, f fragment.Fragment) error {
	tagsJSON, err := encodeTags(f.Tags)
	if err != nil {
		return err
	}
	stackID, stackOrder := membershipColumns(f)

	createdAt := f.CreatedAt
	if createdAt == 0 {
		createdAt = time.Now().UnixMilli()
	}

	query := `
		INSERT INTO prompt_blocks (
			id, type, title, content, tags_json, stack_id, stack_order, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err = db.ExecContext(ctx, query,
		f.ID, string(f.Kind), f.Title, f.Content, tagsJSON, stackID, stackOrder,
		createdAt, time.Now().UnixMilli(),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return errors.NewConflict("prompt already exists: " + f.ID)
		}
		return errors.NewInternal(err)
	}
	return nil
}

// isUniqueConstraintError checks if the error is a SQLite UNIQUE constraint violation.
func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	// SQLite returns "UNIQUE constraint failed: ..." for unique violations
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// ListFragments returns every stored fragment, newest first.
func ListFragments(ctx context.Context, db *sql.DB) ([]fragment.Fragment, error) {
	rows, err := db.QueryContext(ctx, `SELECT `+fragmentColumns+` FROM prompt_blocks ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	defer rows.Close()

	out := []fragment.Fragment{}
	for rows.Next() {
		f, err := scanFragment(rows)
		if err != nil {
			return nil, errors.NewInternal(err)
		}
		out = append(out, f)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewInternal(err)
	}
	return out, nil
}

// GetFragment retrieves a fragment by id.
func GetFragment(ctx context.Context, db *sql.DB, id string) (fragment.Fragment, error) {
	return getFragment(ctx, db, id)
}

func getFragment(ctx context.Context, q querier, id string) (fragment.Fragment, error) {
	row := q.QueryRowContext(ctx, `SELECT `+fragmentColumns+` FROM prompt_blocks WHERE id = ?`, id)
	f, err := scanFragment(row)
	if err == sql.ErrNoRows {
		return fragment.Fragment{}, errors.NewNotFound("prompt", id)
	}
	if err != nil {
		return fragment.Fragment{}, errors.NewInternal(err)
	}
	return f, nil
}

// CountFragments returns the number of stored fragments.
func CountFragments(ctx context.Context, db *sql.DB) (int, error) {
	var n int
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM prompt_blocks`).Scan(&n); err != nil {
		return 0, errors.NewInternal(err)
	}
	return n, nil
}

// UpdateFragment applies a partial update. The row is read and rewritten in
// one transaction so stack moves clear the stored position exactly as the
// in-memory Patch.Apply does.
func UpdateFragment(ctx context.Context, db *sql.DB, id string, p fragment.Patch) error {
	if err := p.Validate(); err != nil {
		return err
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return errors.NewInternal(err)
	}
	defer tx.Rollback()

	current, err := getFragment(ctx, tx, id)
	if err != nil {
		return err
	}
	if p.Empty() {
		return nil
	}
	next := p.Apply(current)

	tagsJSON, err := encodeTags(next.Tags)
	if err != nil {
		return err
	}
	stackID, stackOrder := membershipColumns(next)

	query := `
		UPDATE prompt_blocks
		SET type = ?, title = ?, content = ?, tags_json = ?,
			stack_id = ?, stack_order = ?, updated_at = ?
		WHERE id = ?
	`
	if _, err := tx.ExecContext(ctx, query,
		string(next.Kind), next.Title, next.Content, tagsJSON,
		stackID, stackOrder, time.Now().UnixMilli(), id,
	); err != nil {
		return errors.NewInternal(err)
	}

	if err := tx.Commit(); err != nil {
		return errors.NewInternal(err)
	}
	return nil
}

// DeleteFragment permanently removes a fragment.
func DeleteFragment(ctx context.Context, db *sql.DB, id string) error {
	result, err := db.ExecContext(ctx, `DELETE FROM prompt_blocks WHERE id = ?`, id)
	if err != nil {
		return errors.NewInternal(err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return errors.NewInternal(err)
	}
	if rowsAffected == 0 {
		return errors.NewNotFound("prompt", id)
	}
	return nil
}

// ListTagColors returns all custom tag colours ordered by name.
func ListTagColors(ctx context.Context, db *sql.DB) ([]fragment.TagColor, error) {
	rows, err := db.QueryContext(ctx, `SELECT name, hue, lightness FROM tag_colors ORDER BY name`)
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	defer rows.Close()

	out := []fragment.TagColor{}
	for rows.Next() {
		var c fragment.TagColor
		if err := rows.Scan(&c.Name, &c.Hue, &c.Lightness); err != nil {
			return nil, errors.NewInternal(err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewInternal(err)
	}
	return out, nil
}

// UpsertTagColor inserts or replaces the colour for c.Name.
func UpsertTagColor(ctx context.Context, db *sql.DB, c fragment.TagColor) error {
	query := `
		INSERT INTO tag_colors (name, hue, lightness) VALUES (?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET hue = excluded.hue, lightness = excluded.lightness
	`
	if _, err := db.ExecContext(ctx, query, c.Name, c.Hue, c.Lightness); err != nil {
		return errors.NewInternal(err)
	}
	return nil
}

// DeleteTagColor removes the custom colour for name. Missing names are not an error.
func DeleteTagColor(ctx context.Context, db *sql.DB, name string) error {
	if _, err := db.ExecContext(ctx, `DELETE FROM tag_colors WHERE name = ?`, name); err != nil {
		return errors.NewInternal(err)
	}
	return nil
}

// ListStacks returns all stacks, oldest first.
func ListStacks(ctx context.Context, db *sql.DB) ([]fragment.Stack, error) {
	rows, err := db.QueryContext(ctx, `SELECT id, name, created_at FROM stacks ORDER BY created_at ASC, id ASC`)
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	defer rows.Close()

	out := []fragment.Stack{}
	for rows.Next() {
		var s fragment.Stack
		if err := rows.Scan(&s.ID, &s.Name, &s.CreatedAt); err != nil {
			return nil, errors.NewInternal(err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewInternal(err)
	}
	return out, nil
}

// InsertStack stores a new stack.
func InsertStack(ctx context.Context, db *sql.DB, s fragment.Stack) error {
	createdAt := s.CreatedAt
	if createdAt == 0 {
		createdAt = time.Now().UnixMilli()
	}
	_, err := db.ExecContext(ctx, `INSERT INTO stacks (id, name, created_at) VALUES (?, ?, ?)`, s.ID, s.Name, createdAt)
	if err != nil {
		if isUniqueConstraintError(err) {
			return errors.NewConflict("stack already exists: " + s.ID)
		}
		return errors.NewInternal(err)
	}
	return nil
}

// RenameStack changes a stack's name.
func RenameStack(ctx context.Context, db *sql.DB, id, name string) error {
	result, err := db.ExecContext(ctx, `UPDATE stacks SET name = ? WHERE id = ?`, name, id)
	if err != nil {
		return errors.NewInternal(err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return errors.NewInternal(err)
	}
	if rowsAffected == 0 {
		return errors.NewNotFound("stack", id)
	}
	return nil
}

// DeleteStack unlinks every member fragment and deletes the stack in one
// transaction. Deleting a missing stack is not an error.
func DeleteStack(ctx context.Context, db *sql.DB, id string) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return errors.NewInternal(err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`UPDATE prompt_blocks SET stack_id = NULL, stack_order = NULL, updated_at = ? WHERE stack_id = ?`,
		time.Now().UnixMilli(), id,
	); err != nil {
		return errors.NewInternal(err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM stacks WHERE id = ?`, id); err != nil {
		return errors.NewInternal(err)
	}
	if err := tx.Commit(); err != nil {
		return errors.NewInternal(err)
	}
	return nil
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// scanFragment scans a single row into a Fragment.
func scanFragment(row rowScanner) (fragment.Fragment, error) {
	var (
		f          fragment.Fragment
		kind       string
		tagsJSON   sql.NullString
		stackID    sql.NullString
		stackOrder sql.NullInt64
	)

	if err := row.Scan(&f.ID, &kind, &f.Title, &f.Content, &tagsJSON, &stackID, &stackOrder, &f.CreatedAt); err != nil {
		return fragment.Fragment{}, err
	}

	f.Kind = fragment.Kind(kind)
	if !f.Kind.Valid() {
		f.Kind = fragment.KindContext
	}

	f.Tags = []string{}
	if tagsJSON.Valid && tagsJSON.String != "" {
		if err := json.Unmarshal([]byte(tagsJSON.String), &f.Tags); err != nil {
			return fragment.Fragment{}, err
		}
	}

	if stackID.Valid && stackID.String != "" {
		m := &fragment.Membership{StackID: stackID.String}
		if stackOrder.Valid {
			pos := int(stackOrder.Int64)
			m.Position = &pos
		}
		f.Stack = m
	}

	return f, nil
}

func encodeTags(tags []string) (sql.NullString, error) {
	if tags == nil {
		tags = []string{}
	}
	data, err := json.Marshal(tags)
	if err != nil {
		return sql.NullString{}, errors.NewInternal(err)
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}

func membershipColumns(f fragment.Fragment) (sql.NullString, sql.NullInt64) {
	if f.Stack == nil {
		return sql.NullString{}, sql.NullInt64{}
	}
	stackID := sql.NullString{String: f.Stack.StackID, Valid: true}
	if f.Stack.Position == nil {
		return stackID, sql.NullInt64{}
	}
	return stackID, sql.NullInt64{Int64: int64(*f.Stack.Position), Valid: true}
}
