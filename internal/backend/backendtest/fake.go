// Package backendtest provides an in-memory backend.Backend that records
// calls and can be primed to fail, for controller tests.
package backendtest

import (
	"context"
	"slices"
	"sync"

	"github.com/hpungsan/stream/internal/backend"
	"github.com/hpungsan/stream/internal/errors"
	"github.com/hpungsan/stream/internal/fragment"
)

// Operation names recorded in Call.Op.
const (
	OpListFragments  = "ListFragments"
	OpCreateFragment = "CreateFragment"
	OpUpdateFragment = "UpdateFragment"
	OpDeleteFragment = "DeleteFragment"
	OpListTagColors  = "ListTagColors"
	OpUpsertTagColor = "UpsertTagColor"
	OpDeleteTagColor = "DeleteTagColor"
	OpListStacks     = "ListStacks"
	OpCreateStack    = "CreateStack"
	OpRenameStack    = "RenameStack"
	OpDeleteStack    = "DeleteStack"
	OpPing           = "Ping"
)

// Call is one recorded backend invocation.
type Call struct {
	Op       string
	ID       string
	Fragment fragment.Fragment
	Patch    fragment.Patch
	Color    fragment.TagColor
	Stack    fragment.Stack
}

var _ backend.Backend = (*Fake)(nil)

// Fake is safe for concurrent use.
type Fake struct {
	mu        sync.Mutex
	fragments []fragment.Fragment
	colors    map[string]fragment.TagColor
	stacks    []fragment.Stack
	calls     []Call
	fail      map[string]error
	gate      chan struct{}
}

// New returns an empty Fake.
func New() *Fake {
	return &Fake{
		colors: make(map[string]fragment.TagColor),
		fail:   make(map[string]error),
	}
}

// FailOn makes every call to op return err until cleared with a nil err.
func (f *Fake) FailOn(op string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err == nil {
		delete(f.fail, op)
		return
	}
	f.fail[op] = err
}

// Hold makes every write block until the returned release func is called.
func (f *Fake) Hold() (release func()) {
	gate := make(chan struct{})
	f.mu.Lock()
	f.gate = gate
	f.mu.Unlock()
	var once sync.Once
	return func() {
		once.Do(func() {
			f.mu.Lock()
			if f.gate == gate {
				f.gate = nil
			}
			f.mu.Unlock()
			close(gate)
		})
	}
}

// SeedFragments stores fragments as if persisted earlier, newest first.
func (f *Fake) SeedFragments(frags ...fragment.Fragment) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, fr := range frags {
		f.fragments = append(f.fragments, fr.Clone())
	}
}

// SeedStacks stores stacks as if persisted earlier.
func (f *Fake) SeedStacks(stacks ...fragment.Stack) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stacks = append(f.stacks, stacks...)
}

// SeedColors stores tag colours as if persisted earlier.
func (f *Fake) SeedColors(colors ...fragment.TagColor) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range colors {
		f.colors[c.Name] = c
	}
}

// Calls returns recorded calls, filtered to ops when any are given.
func (f *Fake) Calls(ops ...string) []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []Call
	for _, c := range f.calls {
		if len(ops) == 0 || slices.Contains(ops, c.Op) {
			out = append(out, c)
		}
	}
	return out
}

// Fragment returns the stored fragment with id.
func (f *Fake) Fragment(id string) (fragment.Fragment, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	i := f.indexLocked(id)
	if i < 0 {
		return fragment.Fragment{}, false
	}
	return f.fragments[i].Clone(), true
}

// Color returns the stored colour for name.
func (f *Fake) Color(name string) (fragment.TagColor, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.colors[name]
	return c, ok
}

// record logs the call, waits on any hold, then returns a primed error.
func (f *Fake) record(c Call) error {
	f.mu.Lock()
	f.calls = append(f.calls, c)
	gate := f.gate
	f.mu.Unlock()

	if gate != nil {
		<-gate
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fail[c.Op]
}

func (f *Fake) indexLocked(id string) int {
	return slices.IndexFunc(f.fragments, func(fr fragment.Fragment) bool { return fr.ID == id })
}

func (f *Fake) ListFragments(ctx context.Context) ([]fragment.Fragment, error) {
	if err := f.record(Call{Op: OpListFragments}); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]fragment.Fragment, len(f.fragments))
	for i, fr := range f.fragments {
		out[i] = fr.Clone()
	}
	return out, nil
}

func (f *Fake) CreateFragment(ctx context.Context, fr fragment.Fragment) error {
	if err := f.record(Call{Op: OpCreateFragment, ID: fr.ID, Fragment: fr.Clone()}); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.indexLocked(fr.ID) >= 0 {
		return errors.NewConflict("fragment already exists: " + fr.ID)
	}
	stored := fr.Clone()
	stored.Flags = fragment.Flags{}
	f.fragments = append([]fragment.Fragment{stored}, f.fragments...)
	return nil
}

func (f *Fake) UpdateFragment(ctx context.Context, id string, p fragment.Patch) error {
	if err := f.record(Call{Op: OpUpdateFragment, ID: id, Patch: p}); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	i := f.indexLocked(id)
	if i < 0 {
		return errors.NewNotFound("prompt", id)
	}
	f.fragments[i] = p.Apply(f.fragments[i])
	return nil
}

func (f *Fake) DeleteFragment(ctx context.Context, id string) error {
	if err := f.record(Call{Op: OpDeleteFragment, ID: id}); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	i := f.indexLocked(id)
	if i < 0 {
		return errors.NewNotFound("prompt", id)
	}
	f.fragments = slices.Delete(f.fragments, i, i+1)
	return nil
}

func (f *Fake) ListTagColors(ctx context.Context) ([]fragment.TagColor, error) {
	if err := f.record(Call{Op: OpListTagColors}); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]fragment.TagColor, 0, len(f.colors))
	for _, c := range f.colors {
		out = append(out, c)
	}
	slices.SortFunc(out, func(a, b fragment.TagColor) int {
		if a.Name < b.Name {
			return -1
		}
		if a.Name > b.Name {
			return 1
		}
		return 0
	})
	return out, nil
}

func (f *Fake) UpsertTagColor(ctx context.Context, c fragment.TagColor) error {
	if err := f.record(Call{Op: OpUpsertTagColor, ID: c.Name, Color: c}); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.colors[c.Name] = c
	return nil
}

func (f *Fake) DeleteTagColor(ctx context.Context, name string) error {
	if err := f.record(Call{Op: OpDeleteTagColor, ID: name}); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.colors, name)
	return nil
}

func (f *Fake) ListStacks(ctx context.Context) ([]fragment.Stack, error) {
	if err := f.record(Call{Op: OpListStacks}); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.stacks), nil
}

func (f *Fake) CreateStack(ctx context.Context, s fragment.Stack) error {
	if err := f.record(Call{Op: OpCreateStack, ID: s.ID, Stack: s}); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stacks = append(f.stacks, s)
	return nil
}

func (f *Fake) RenameStack(ctx context.Context, id, name string) error {
	if err := f.record(Call{Op: OpRenameStack, ID: id, Stack: fragment.Stack{ID: id, Name: name}}); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.stacks {
		if f.stacks[i].ID == id {
			f.stacks[i].Name = name
			return nil
		}
	}
	return errors.NewNotFound("stack", id)
}

func (f *Fake) DeleteStack(ctx context.Context, id string) error {
	if err := f.record(Call{Op: OpDeleteStack, ID: id}); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.fragments {
		if f.fragments[i].StackID() == id {
			f.fragments[i].Stack = nil
		}
	}
	f.stacks = slices.DeleteFunc(f.stacks, func(s fragment.Stack) bool { return s.ID == id })
	return nil
}

func (f *Fake) Ping(ctx context.Context) error {
	return f.record(Call{Op: OpPing})
}

func (f *Fake) Close() error { return nil }
