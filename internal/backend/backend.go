// Package backend defines the persistence collaborator consumed by the
// store, palette and stack controllers, and its implementations.
package backend

import (
	"context"

	"github.com/hpungsan/stream/internal/fragment"
)

// Fragments persists prompt fragments. Ephemeral fragments never reach it.
type Fragments interface {
	ListFragments(ctx context.Context) ([]fragment.Fragment, error)
	CreateFragment(ctx context.Context, f fragment.Fragment) error
	UpdateFragment(ctx context.Context, id string, p fragment.Patch) error
	DeleteFragment(ctx context.Context, id string) error
}

// TagColors persists custom tag colours.
type TagColors interface {
	ListTagColors(ctx context.Context) ([]fragment.TagColor, error)
	UpsertTagColor(ctx context.Context, c fragment.TagColor) error
	DeleteTagColor(ctx context.Context, name string) error
}

// Stacks persists stacks. DeleteStack also clears membership on every
// stored fragment that referenced the stack.
type Stacks interface {
	ListStacks(ctx context.Context) ([]fragment.Stack, error)
	CreateStack(ctx context.Context, s fragment.Stack) error
	RenameStack(ctx context.Context, id, name string) error
	DeleteStack(ctx context.Context, id string) error
}

// Backend is the full collaborator.
type Backend interface {
	Fragments
	TagColors
	Stacks

	// Ping checks connectivity.
	Ping(ctx context.Context) error
	Close() error
}
