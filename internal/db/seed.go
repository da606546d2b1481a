package db

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/hpungsan/stream/internal/fragment"
)

//go:embed seed.yaml
var seedYAML []byte

type seedBlock struct {
	ID      string   `yaml:"id"`
	Type    string   `yaml:"type"`
	Title   string   `yaml:"title"`
	Content string   `yaml:"content"`
	Tags    []string `yaml:"tags"`
}

// SeedFragments parses the embedded starter library. The first entry gets
// the newest timestamp so it lists first.
func SeedFragments() ([]fragment.Fragment, error) {
	var blocks []seedBlock
	if err := yaml.Unmarshal(seedYAML, &blocks); err != nil {
		return nil, fmt.Errorf("parse seed: %w", err)
	}

	now := time.Now().UnixMilli()
	out := make([]fragment.Fragment, 0, len(blocks))
	for i, b := range blocks {
		kind, err := fragment.ParseKind(b.Type)
		if err != nil {
			return nil, fmt.Errorf("seed %s: %w", b.ID, err)
		}
		out = append(out, fragment.Fragment{
			ID:        b.ID,
			Kind:      kind,
			Title:     b.Title,
			Content:   b.Content,
			Tags:      fragment.NormalizeTags(b.Tags),
			CreatedAt: now - int64(i),
		})
	}
	return out, nil
}

// Seed inserts the starter library when the database has no fragments.
// Reports whether anything was inserted.
func Seed(ctx context.Context, db *sql.DB) (bool, error) {
	n, err := CountFragments(ctx, db)
	if err != nil {
		return false, err
	}
	if n > 0 {
		return false, nil
	}

	frags, err := SeedFragments()
	if err != nil {
		return false, err
	}
	for _, f := range frags {
		if err := InsertFragment(ctx, db, f); err != nil {
			return false, err
		}
	}
	return true, nil
}
