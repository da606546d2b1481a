// Package stacks manages named groupings of fragments and the per-stack
// ordering index.
package stacks

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/hpungsan/stream/internal/backend"
	"github.com/hpungsan/stream/internal/errors"
	"github.com/hpungsan/stream/internal/fragment"
	"github.com/hpungsan/stream/internal/logger"
	"github.com/hpungsan/stream/internal/store"
)

// AllName labels the "no stack" selection in notices.
const AllName = "All"

// Options configures a Controller.
type Options struct {
	Logger *logger.Logger

	// Now stamps new stacks; defaults to time.Now.
	Now func() time.Time
}

// Controller owns the stack list and the active-stack selection.
// Membership itself lives on fragments in the store.
type Controller struct {
	mu     sync.Mutex
	stacks []fragment.Stack // creation order
	active string

	backend backend.Stacks
	store   *store.Store
	log     *logger.Logger
	now     func() time.Time
}

// New returns an empty Controller. A nil backend keeps stacks in memory.
func New(b backend.Stacks, s *store.Store, opts Options) *Controller {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Controller{
		backend: b,
		store:   s,
		log:     logger.OrNop(opts.Logger).With("component", "stacks"),
		now:     now,
	}
}

// Load replaces the stack list with stacks read from the backend.
func (c *Controller) Load(stacks []fragment.Stack) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stacks = slices.Clone(stacks)
	if c.active != "" && c.indexLocked(c.active) < 0 {
		c.active = ""
	}
}

// List returns every stack in creation order.
func (c *Controller) List() []fragment.Stack {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.stacks)
}

// Get returns the stack with id.
func (c *Controller) Get(id string) (fragment.Stack, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if i := c.indexLocked(id); i >= 0 {
		return c.stacks[i], true
	}
	return fragment.Stack{}, false
}

// Find returns the stack with the given id or, failing that, the first
// stack with that exact name.
func (c *Controller) Find(ref string) (fragment.Stack, bool) {
	if s, ok := c.Get(ref); ok {
		return s, true
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, s := range c.stacks {
		if s.Name == ref {
			return s, true
		}
	}
	return fragment.Stack{}, false
}

func (c *Controller) indexLocked(id string) int {
	return slices.IndexFunc(c.stacks, func(s fragment.Stack) bool { return s.ID == id })
}

func normalizeName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", errors.NewInvalidRequest("stack name is required")
	}
	return name, nil
}

// Create adds a stack locally and then writes it to the backend.
func (c *Controller) Create(ctx context.Context, name string) (fragment.Stack, error) {
	name, err := normalizeName(name)
	if err != nil {
		return fragment.Stack{}, err
	}
	s := fragment.Stack{ID: fragment.NewID(), Name: name, CreatedAt: c.now().UnixMilli()}

	c.mu.Lock()
	c.stacks = append(c.stacks, s)
	c.mu.Unlock()

	if err := c.persist(ctx, "create stack", func(ctx context.Context) error {
		return c.backend.CreateStack(ctx, s)
	}); err != nil {
		return s, err
	}
	c.store.Notify(store.Notice{Level: store.LevelSuccess, Message: fmt.Sprintf("Stack %q created", name)})
	return s, nil
}

// Rename changes a stack's name locally and in the backend.
func (c *Controller) Rename(ctx context.Context, id, name string) error {
	name, err := normalizeName(name)
	if err != nil {
		return err
	}

	c.mu.Lock()
	i := c.indexLocked(id)
	if i < 0 {
		c.mu.Unlock()
		return errors.NewNotFound("stack", id)
	}
	c.stacks[i].Name = name
	c.mu.Unlock()

	return c.persist(ctx, "rename stack", func(ctx context.Context) error {
		return c.backend.RenameStack(ctx, id, name)
	})
}

// Delete removes a stack. Member fragments are unassigned, never deleted,
// and the selection resets if the stack was active.
func (c *Controller) Delete(ctx context.Context, id string) error {
	c.mu.Lock()
	i := c.indexLocked(id)
	if i < 0 {
		c.mu.Unlock()
		return errors.NewNotFound("stack", id)
	}
	s := c.stacks[i]
	c.stacks = slices.Delete(c.stacks, i, i+1)
	if c.active == id {
		c.active = ""
	}
	c.mu.Unlock()

	cleared := c.store.ClearStack(id)
	c.log.Debug("stack deleted", "id", id, "members", len(cleared))

	if err := c.persist(ctx, "delete stack", func(ctx context.Context) error {
		return c.backend.DeleteStack(ctx, id)
	}); err != nil {
		return err
	}
	c.store.Notify(store.Notice{Level: store.LevelInfo, Message: fmt.Sprintf("Stack %q deleted", s.Name)})
	return nil
}

// persist runs a backend write. Failures are logged, reported as a
// notice and returned; local state is not rolled back.
func (c *Controller) persist(ctx context.Context, op string, fn func(context.Context) error) error {
	if c.backend == nil {
		return nil
	}
	if err := fn(ctx); err != nil {
		c.log.Error(op+" failed", "error", err)
		c.store.Notify(store.Notice{Level: store.LevelError, Message: "Failed to save stack"})
		if sErr, ok := errors.As(err); ok && sErr.Code != errors.ErrInternal {
			return sErr
		}
		return errors.NewPersistence(op, err)
	}
	return nil
}

// Assign moves fragments into stackID, or out of any stack when stackID
// is empty. Moving to a different stack clears the position. Unknown
// fragment ids are skipped; the number moved is returned.
func (c *Controller) Assign(ids []string, stackID string) (int, error) {
	target := AllName
	if stackID != "" {
		s, ok := c.Get(stackID)
		if !ok {
			return 0, errors.NewNotFound("stack", stackID)
		}
		target = s.Name
	}

	moved := 0
	for _, id := range ids {
		err := c.store.Update(id, fragment.Patch{StackID: fragment.Some(stackID)})
		if errors.Is(err, errors.ErrNotFound) {
			continue
		}
		if err != nil {
			return moved, err
		}
		moved++
	}

	if moved > 0 {
		noun := "prompt"
		if moved > 1 {
			noun = "prompts"
		}
		c.store.Notify(store.Notice{
			Level:   store.LevelSuccess,
			Message: fmt.Sprintf("Moved %d %s to %s", moved, noun, target),
		})
	}
	return moved, nil
}

// SetPosition sets or, with nil, clears a member's position within its
// stack. Positions need not be contiguous or unique.
func (c *Controller) SetPosition(id string, pos *int) error {
	f, ok := c.store.Get(id)
	if !ok {
		return errors.NewNotFound("prompt", id)
	}
	if f.StackID() == "" {
		return errors.NewInvalidRequest("prompt is not in a stack")
	}
	return c.store.Update(id, fragment.Patch{Position: fragment.Some(pos)})
}

// View returns the members of stackID ordered by position, unpositioned
// members last.
func (c *Controller) View(stackID string) []fragment.Fragment {
	if stackID == "" {
		return nil
	}
	return c.store.Query(store.Filter{StackID: stackID})
}

// Select makes stackID the active stack; "" selects all.
func (c *Controller) Select(stackID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if stackID != "" && c.indexLocked(stackID) < 0 {
		return errors.NewNotFound("stack", stackID)
	}
	c.active = stackID
	return nil
}

// Active returns the selected stack id, or "" for all.
func (c *Controller) Active() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active
}
