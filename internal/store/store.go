// Package store owns the in-memory fragment collection. Mutations apply
// locally first and reach the backend in the background; removal is a
// two-phase soft delete with an undo window.
package store

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/hpungsan/stream/internal/backend"
	"github.com/hpungsan/stream/internal/bg"
	"github.com/hpungsan/stream/internal/errors"
	"github.com/hpungsan/stream/internal/fragment"
	"github.com/hpungsan/stream/internal/logger"
	"github.com/hpungsan/stream/internal/palette"
	"github.com/hpungsan/stream/internal/tagger"
)

// Default timings.
const (
	DefaultExitDelay  = 400 * time.Millisecond
	DefaultUndoWindow = 6 * time.Second
	DefaultNewFlagFor = 2 * time.Second
)

// Options configures a Store. Zero durations take the defaults.
type Options struct {
	Clock       Clock
	Logger      *logger.Logger
	Runner      *bg.Runner
	AutoTagging bool
	ExitDelay   time.Duration
	UndoWindow  time.Duration
	NewFlagFor  time.Duration
}

// removal is a fragment that left the list and is waiting for its
// deferred backend delete.
type removal struct {
	frag  fragment.Fragment
	timer Timer
}

// Store is the authoritative fragment collection for one session.
// Lock order: callers holding their own lock (rack, stacks) may call into
// the Store; the Store never calls out while holding mu.
type Store struct {
	mu          sync.Mutex
	frags       []fragment.Fragment // newest first
	exiting     map[string]Timer    // phase 1: pending-removal flag set
	removed     map[string]*removal // phase 2: undo window open
	focused     string
	autoTagging bool

	backend backend.Fragments
	palette *palette.Registry
	runner  *bg.Runner
	clock   Clock
	log     *logger.Logger

	exitDelay  time.Duration
	undoWindow time.Duration
	newFlagFor time.Duration

	hookMu   sync.RWMutex
	subs     map[int]func(Notice)
	nextSub  int
	onRemove []func(id string)
}

// New returns an empty Store. A nil palette gets an in-memory registry.
func New(b backend.Fragments, pal *palette.Registry, opts Options) *Store {
	log := logger.OrNop(opts.Logger)
	runner := opts.Runner
	if runner == nil {
		runner = bg.New(0, log)
	}
	if pal == nil {
		pal = palette.NewRegistry(nil, runner, palette.Options{Logger: log})
	}
	clock := opts.Clock
	if clock == nil {
		clock = realClock{}
	}
	s := &Store{
		exiting:     make(map[string]Timer),
		removed:     make(map[string]*removal),
		autoTagging: opts.AutoTagging,
		backend:     b,
		palette:     pal,
		runner:      runner,
		clock:       clock,
		log:         log.With("component", "store"),
		exitDelay:   pick(opts.ExitDelay, DefaultExitDelay),
		undoWindow:  pick(opts.UndoWindow, DefaultUndoWindow),
		newFlagFor:  pick(opts.NewFlagFor, DefaultNewFlagFor),
		subs:        make(map[int]func(Notice)),
	}
	return s
}

func pick(d, def time.Duration) time.Duration {
	if d > 0 {
		return d
	}
	return def
}

// Palette returns the colour registry the store assigns tag colours from.
func (s *Store) Palette() *palette.Registry { return s.palette }

// Subscribe registers fn for every Notice and returns a func that
// unregisters it. fn may be called from background goroutines.
func (s *Store) Subscribe(fn func(Notice)) (unsubscribe func()) {
	s.hookMu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	s.hookMu.Unlock()
	return func() {
		s.hookMu.Lock()
		delete(s.subs, id)
		s.hookMu.Unlock()
	}
}

// OnRemove registers fn to run when a removal starts. The rack uses it to
// drop the id.
func (s *Store) OnRemove(fn func(id string)) {
	s.hookMu.Lock()
	s.onRemove = append(s.onRemove, fn)
	s.hookMu.Unlock()
}

// Notify delivers n to every subscriber.
func (s *Store) Notify(n Notice) {
	s.log.Debug("notice", "level", n.Level.String(), "message", n.Message)
	s.hookMu.RLock()
	fns := make([]func(Notice), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	s.hookMu.RUnlock()
	for _, fn := range fns {
		fn(n)
	}
}

func (s *Store) fireOnRemove(id string) {
	s.hookMu.RLock()
	fns := slices.Clone(s.onRemove)
	s.hookMu.RUnlock()
	for _, fn := range fns {
		fn(id)
	}
}

// Load replaces the collection with fragments read from the backend,
// newest first, and makes sure every tag has a colour. Fragments inside
// an open undo window stay removed; those in their exit delay stay
// flagged so the removal still completes.
func (s *Store) Load(frags []fragment.Fragment) {
	var tags []string
	s.mu.Lock()
	s.frags = make([]fragment.Fragment, 0, len(frags))
	for _, f := range frags {
		if _, pending := s.removed[f.ID]; pending {
			continue
		}
		f = f.Clone()
		_, exiting := s.exiting[f.ID]
		f.Flags = fragment.Flags{PendingRemoval: exiting}
		f.Tags = fragment.NormalizeTags(f.Tags)
		s.frags = append(s.frags, f)
		tags = append(tags, f.Tags...)
	}
	s.mu.Unlock()

	s.palette.Ensure(tags...)
}

// ResetTagColor drops tag's custom colour. A custom tag still carried by
// a fragment gets a fresh auto-assigned colour straight away.
func (s *Store) ResetTagColor(tag string) bool {
	tag = strings.TrimSpace(tag)
	if !s.palette.Reset(tag) {
		return false
	}
	if slices.Contains(s.AllTags(), tag) {
		s.palette.Ensure(tag)
	}
	return true
}

// AutoTagging reports whether Create classifies content.
func (s *Store) AutoTagging() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.autoTagging
}

// SetAutoTagging toggles classification on create.
func (s *Store) SetAutoTagging(on bool) {
	s.mu.Lock()
	s.autoTagging = on
	s.mu.Unlock()
}

// Draft describes a fragment to create. Zero fields take defaults.
type Draft struct {
	Kind     fragment.Kind
	Title    string
	Content  string
	Tags     []string
	StackID  string
	Position *int
}

// Create adds a context fragment built from content at the head of the
// list and persists it in the background.
func (s *Store) Create(content string) fragment.Fragment {
	f, _ := s.CreateDraft(Draft{Content: content})
	return f
}

// CreateDraft is Create with explicit fields. Tags given in d are kept
// alongside any detected ones.
func (s *Store) CreateDraft(d Draft) (fragment.Fragment, error) {
	kind := d.Kind
	if kind == "" {
		kind = fragment.KindContext
	}
	if !kind.Valid() {
		return fragment.Fragment{}, errors.NewInvalidRequest("unknown kind: " + string(kind))
	}
	if d.Position != nil && *d.Position < 1 {
		return fragment.Fragment{}, errors.NewInvalidRequest("position must be a positive integer")
	}

	title := d.Title
	if title == "" {
		title = fragment.DeriveTitle(d.Content)
	}

	s.mu.Lock()
	auto := s.autoTagging
	s.mu.Unlock()

	tags := slices.Clone(d.Tags)
	if auto {
		tags = append(tagger.Classify(d.Content), tags...)
	}

	f := fragment.Fragment{
		ID:        fragment.NewID(),
		Kind:      kind,
		Title:     title,
		Content:   d.Content,
		Tags:      fragment.NormalizeTags(tags),
		Flags:     fragment.Flags{New: true},
		CreatedAt: s.clock.Now().UnixMilli(),
	}
	if d.StackID != "" {
		f.Stack = &fragment.Membership{StackID: d.StackID, Position: d.Position}
	}

	s.palette.Ensure(f.Tags...)
	s.insertHead(f)
	s.persistCreate(f)
	return f.Clone(), nil
}

// CreateStub adds an ephemeral rack stub. Stubs never reach the backend.
func (s *Store) CreateStub() fragment.Fragment {
	f := fragment.Fragment{
		ID:        fragment.NewID(),
		Kind:      fragment.KindInstruction,
		Title:     fragment.StubTitle,
		Tags:      []string{fragment.StubTag},
		Flags:     fragment.Flags{New: true, Ephemeral: true},
		CreatedAt: s.clock.Now().UnixMilli(),
	}
	s.insertHead(f)
	s.Notify(Notice{Level: LevelSuccess, Message: MsgStubAdded})
	return f.Clone()
}

func (s *Store) insertHead(f fragment.Fragment) {
	s.mu.Lock()
	s.frags = slices.Insert(s.frags, 0, f)
	s.mu.Unlock()
	s.armNewFlag(f.ID)
}

// armNewFlag clears the New flag after the configured delay, if the
// fragment is still present.
func (s *Store) armNewFlag(id string) {
	s.clock.AfterFunc(s.newFlagFor, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if i := s.indexLocked(id); i >= 0 {
			s.frags[i].Flags.New = false
		}
	})
}

func persistKey(id string) string { return "fragment:" + id }

func (s *Store) persistCreate(f fragment.Fragment) {
	if s.backend == nil {
		return
	}
	rec := f.Clone()
	rec.Flags = fragment.Flags{}
	s.runner.Do(persistKey(f.ID), func(ctx context.Context) {
		if err := s.backend.CreateFragment(ctx, rec); err != nil {
			s.log.Error("create failed", "id", rec.ID, "error", err)
			s.Notify(Notice{Level: LevelError, Message: MsgSaveFailed})
			return
		}
		s.Notify(Notice{Level: LevelSuccess, Message: MsgSynced})
	})
}

// Update applies p to the fragment immediately and, unless it is a stub,
// sends the same patch to the backend. A failed write is reported, not
// rolled back.
func (s *Store) Update(id string, p fragment.Patch) error {
	if err := p.Validate(); err != nil {
		return err
	}
	if p.Tags.Set {
		p.Tags.Value = fragment.NormalizeTags(p.Tags.Value)
	}

	s.mu.Lock()
	i := s.indexLocked(id)
	if i < 0 {
		s.mu.Unlock()
		return errors.NewNotFound("prompt", id)
	}
	updated := p.Apply(s.frags[i])
	updated.Flags = s.frags[i].Flags
	s.frags[i] = updated
	ephemeral := updated.Flags.Ephemeral
	s.mu.Unlock()

	if p.Tags.Set {
		s.palette.Ensure(p.Tags.Value...)
	}
	if ephemeral || p.Empty() || s.backend == nil {
		return nil
	}

	s.runner.Do(persistKey(id), func(ctx context.Context) {
		if err := s.backend.UpdateFragment(ctx, id, p); err != nil {
			s.log.Error("update failed", "id", id, "error", err)
			s.Notify(Notice{Level: LevelError, Message: MsgUpdateFailed})
		}
	})
	return nil
}

// Remove starts a two-phase removal. The fragment is flagged at once and
// leaves the rack and focus; after the exit delay it leaves the list and,
// unless it is a stub, an undo window opens before the backend delete.
// Removing a fragment that is already being removed is a no-op.
func (s *Store) Remove(id string) error {
	s.mu.Lock()
	i := s.indexLocked(id)
	if i < 0 {
		s.mu.Unlock()
		if s.isRemoved(id) {
			return nil
		}
		return errors.NewNotFound("prompt", id)
	}
	if s.frags[i].Flags.PendingRemoval {
		s.mu.Unlock()
		return nil
	}
	s.frags[i].Flags.PendingRemoval = true
	if s.focused == id {
		s.focused = ""
	}
	s.exiting[id] = s.clock.AfterFunc(s.exitDelay, func() { s.finishExit(id) })
	s.mu.Unlock()

	s.fireOnRemove(id)
	return nil
}

func (s *Store) isRemoved(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.removed[id]
	return ok
}

// finishExit is phase two of Remove.
func (s *Store) finishExit(id string) {
	s.mu.Lock()
	if _, ok := s.exiting[id]; !ok {
		s.mu.Unlock()
		return
	}
	delete(s.exiting, id)
	i := s.indexLocked(id)
	if i < 0 || !s.frags[i].Flags.PendingRemoval {
		s.mu.Unlock()
		return
	}
	f := s.frags[i]
	s.frags = slices.Delete(s.frags, i, i+1)
	if f.Flags.Ephemeral {
		s.mu.Unlock()
		return
	}
	f.Flags = fragment.Flags{}
	s.removed[id] = &removal{
		frag:  f,
		timer: s.clock.AfterFunc(s.undoWindow, func() { s.commitDelete(id) }),
	}
	s.mu.Unlock()

	s.Notify(Notice{
		Level:   LevelInfo,
		Message: MsgArchived,
		Action: &Action{
			Label:      ActionLabelUndo,
			FragmentID: id,
			Run:        func() error { return s.Undo(id) },
		},
	})
}

// commitDelete runs when the undo window closes.
func (s *Store) commitDelete(id string) {
	s.mu.Lock()
	if _, ok := s.removed[id]; !ok {
		s.mu.Unlock()
		return
	}
	delete(s.removed, id)
	s.mu.Unlock()

	s.deleteInBackground(id)
}

func (s *Store) deleteInBackground(id string) {
	if s.backend == nil {
		return
	}
	s.runner.Do(persistKey(id), func(ctx context.Context) {
		if err := s.backend.DeleteFragment(ctx, id); err != nil {
			s.log.Error("deferred delete failed", "id", id, "error", err)
		}
	})
}

// Undo cancels a removal. During the exit delay it just clears the flag;
// inside the undo window it reinserts the fragment at the head, flagged
// New. Rack membership is not restored.
func (s *Store) Undo(id string) error {
	s.mu.Lock()
	if t, ok := s.exiting[id]; ok {
		t.Stop()
		delete(s.exiting, id)
		if i := s.indexLocked(id); i >= 0 {
			s.frags[i].Flags.PendingRemoval = false
		}
		s.mu.Unlock()
		s.Notify(Notice{Level: LevelSuccess, Message: MsgRestored})
		return nil
	}

	r, ok := s.removed[id]
	if !ok {
		s.mu.Unlock()
		return errors.NewNotFound("removed prompt", id)
	}
	r.timer.Stop()
	delete(s.removed, id)
	f := r.frag
	f.Flags = fragment.Flags{New: true}
	s.mu.Unlock()

	s.insertHead(f)
	s.Notify(Notice{Level: LevelSuccess, Message: MsgRestored})
	return nil
}

// PendingDeletes returns the ids waiting for their undo window to close.
func (s *Store) PendingDeletes() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.removed))
	for id := range s.removed {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Flush completes every removal in progress without waiting for its
// timers, then waits for all background writes. Used before a
// short-lived process exits.
func (s *Store) Flush(ctx context.Context) error {
	var commit []string

	s.mu.Lock()
	for id, t := range s.exiting {
		t.Stop()
		delete(s.exiting, id)
		i := s.indexLocked(id)
		if i < 0 {
			continue
		}
		f := s.frags[i]
		s.frags = slices.Delete(s.frags, i, i+1)
		if !f.Flags.Ephemeral {
			commit = append(commit, id)
		}
	}
	for id, r := range s.removed {
		r.timer.Stop()
		delete(s.removed, id)
		commit = append(commit, id)
	}
	s.mu.Unlock()

	slices.Sort(commit)
	for _, id := range commit {
		s.deleteInBackground(id)
	}
	return s.runner.Wait(ctx)
}

// Wait blocks until background writes issued so far have finished.
func (s *Store) Wait(ctx context.Context) error {
	return s.runner.Wait(ctx)
}

// Focus marks id as the fragment being edited. An empty id clears it.
func (s *Store) Focus(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id == "" {
		s.focused = ""
		return nil
	}
	i := s.indexLocked(id)
	if i < 0 || s.frags[i].Flags.PendingRemoval {
		return errors.NewNotFound("prompt", id)
	}
	s.focused = id
	return nil
}

// Focused returns the fragment being edited, if any.
func (s *Store) Focused() (fragment.Fragment, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.focused == "" {
		return fragment.Fragment{}, false
	}
	if i := s.indexLocked(s.focused); i >= 0 {
		return s.frags[i].Clone(), true
	}
	return fragment.Fragment{}, false
}

// ClearStack drops membership of stackID from every fragment in memory
// and returns the affected ids. It does not write to the backend; stack
// deletion cascades there.
func (s *Store) ClearStack(stackID string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var ids []string
	for i := range s.frags {
		if s.frags[i].StackID() == stackID {
			s.frags[i].Stack = nil
			ids = append(ids, s.frags[i].ID)
		}
	}
	for _, r := range s.removed {
		if r.frag.StackID() == stackID {
			r.frag.Stack = nil
		}
	}
	return ids
}

// Get returns a copy of the fragment with id.
func (s *Store) Get(id string) (fragment.Fragment, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i := s.indexLocked(id); i >= 0 {
		return s.frags[i].Clone(), true
	}
	return fragment.Fragment{}, false
}

// Has reports whether id is in the list. Fragments mid-exit count.
func (s *Store) Has(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.indexLocked(id) >= 0
}

// List returns a copy of every fragment, stubs included, newest first.
func (s *Store) List() []fragment.Fragment {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]fragment.Fragment, len(s.frags))
	for i, f := range s.frags {
		out[i] = f.Clone()
	}
	return out
}

// Len returns the number of fragments in the list.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.frags)
}

func (s *Store) indexLocked(id string) int {
	return slices.IndexFunc(s.frags, func(f fragment.Fragment) bool { return f.ID == id })
}
