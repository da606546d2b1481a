// Package session composes the controllers one user works with: the
// fragment store, tag palette, rack, stacks and dry-run runner, all sharing
// one backend and one background runner.
package session

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/hpungsan/stream/internal/backend"
	"github.com/hpungsan/stream/internal/bg"
	"github.com/hpungsan/stream/internal/config"
	"github.com/hpungsan/stream/internal/dryrun"
	"github.com/hpungsan/stream/internal/errors"
	"github.com/hpungsan/stream/internal/fragment"
	"github.com/hpungsan/stream/internal/logger"
	"github.com/hpungsan/stream/internal/palette"
	"github.com/hpungsan/stream/internal/rack"
	"github.com/hpungsan/stream/internal/stacks"
	"github.com/hpungsan/stream/internal/store"
)

// State is the initial-load state of a Session.
type State int

const (
	StateLoading State = iota
	StateReady
	StateError
)

func (s State) String() string {
	switch s {
	case StateReady:
		return "ready"
	case StateError:
		return "error"
	default:
		return "loading"
	}
}

// Load notices.
const (
	MsgConnected      = "Connected to API"
	MsgConnectFailed  = "API connection failed"
	MsgRackEmpty      = "Rack is empty"
	MsgColorSaveError = "Failed to save tag color"
)

// Options configures a Session.
type Options struct {
	Logger *logger.Logger

	// Clock drives store timers; defaults to the wall clock.
	Clock store.Clock

	// DryRun overrides the Gemini runner built from config.
	DryRun dryrun.Runner
}

// Session is safe for concurrent use; each controller guards its own state.
type Session struct {
	Backend backend.Backend
	Palette *palette.Registry
	Store   *store.Store
	Rack    *rack.Rack
	Stacks  *stacks.Controller

	dry    dryrun.Runner
	runner *bg.Runner
	log    *logger.Logger

	mu      sync.Mutex
	state   State
	loadErr error
}

// New builds the controllers without touching the backend. The session
// starts in StateLoading.
func New(b backend.Backend, cfg *config.Config, opts Options) *Session {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	log := logger.OrNop(opts.Logger)
	runner := bg.New(cfg.PersistTimeout(), log)

	s := &Session{
		Backend: b,
		runner:  runner,
		log:     log.With("component", "session"),
	}

	s.Palette = palette.NewRegistry(b, runner, palette.Options{
		Logger: log,
		OnPersistError: func(op, tag string, err error) {
			s.Store.Notify(store.Notice{Level: store.LevelError, Message: MsgColorSaveError})
		},
	})
	s.Store = store.New(b, s.Palette, store.Options{
		Clock:       opts.Clock,
		Logger:      log,
		Runner:      runner,
		AutoTagging: cfg.AutoTaggingEnabled(),
		ExitDelay:   cfg.ExitDelay(),
		UndoWindow:  cfg.UndoWindow(),
		NewFlagFor:  cfg.NewFlagFor(),
	})
	s.Rack = rack.New(s.Store)
	s.Stacks = stacks.New(b, s.Store, stacks.Options{Logger: log})

	s.dry = opts.DryRun
	if s.dry == nil {
		s.dry = dryrun.NewGemini(cfg.APIKey, cfg.DryRunModel)
	}
	return s
}

// Open builds a session and performs the initial load. On failure the
// session is closed and the CONNECTIVITY error returned.
func Open(ctx context.Context, b backend.Backend, cfg *config.Config, opts Options) (*Session, error) {
	s := New(b, cfg, opts)
	if err := s.Load(ctx); err != nil {
		_ = s.Close(ctx)
		return nil, err
	}
	return s, nil
}

// Load reads fragments, tag colours and stacks in parallel. Nothing is
// applied unless all three succeed: a failed load leaves the session in
// StateError rather than showing an empty library.
func (s *Session) Load(ctx context.Context) error {
	s.setState(StateLoading, nil)

	var (
		frags  []fragment.Fragment
		colors []fragment.TagColor
		list   []fragment.Stack
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		frags, err = s.Backend.ListFragments(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		colors, err = s.Backend.ListTagColors(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		list, err = s.Backend.ListStacks(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		loadErr := errors.NewConnectivity(err)
		s.log.Error("initial load failed", "error", err)
		s.setState(StateError, loadErr)
		s.Store.Notify(store.Notice{Level: store.LevelError, Message: MsgConnectFailed})
		return loadErr
	}

	// Colours first so the store does not hand out hues already persisted.
	s.Palette.Load(colors)
	s.Store.Load(frags)
	s.Stacks.Load(list)

	s.setState(StateReady, nil)
	s.log.Info("session loaded", "fragments", len(frags), "colors", len(colors), "stacks", len(list))
	s.Store.Notify(store.Notice{Level: store.LevelSuccess, Message: MsgConnected})
	return nil
}

func (s *Session) setState(st State, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = st
	s.loadErr = err
}

// State returns the load state and, in StateError, the load error.
func (s *Session) State() (State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state, s.loadErr
}

// DryRun sends the compiled rack to the dry-run runner. An error result is
// also emitted as a notice.
func (s *Session) DryRun(ctx context.Context) dryrun.Result {
	prompt := s.Rack.CompiledOutput()
	if prompt == "" {
		res := dryrun.Result{Error: MsgRackEmpty}
		s.Store.Notify(store.Notice{Level: store.LevelError, Message: res.Error})
		return res
	}
	res := s.dry.Run(ctx, prompt)
	if res.Error != "" {
		s.log.Warn("dry run failed", "error", res.Error)
		s.Store.Notify(store.Notice{Level: store.LevelError, Message: res.Error})
	}
	return res
}

// Close commits pending deletes, waits for background writes and closes
// the backend.
func (s *Session) Close(ctx context.Context) error {
	flushErr := s.Store.Flush(ctx)
	if err := s.runner.Wait(ctx); err != nil && flushErr == nil {
		flushErr = err
	}
	if s.Backend != nil {
		if err := s.Backend.Close(); err != nil && flushErr == nil {
			flushErr = err
		}
	}
	return flushErr
}
