package palette

import (
	"context"
	"maps"
	"sort"
	"strings"
	"sync"

	"github.com/hpungsan/stream/internal/backend"
	"github.com/hpungsan/stream/internal/bg"
	"github.com/hpungsan/stream/internal/errors"
	"github.com/hpungsan/stream/internal/fragment"
	"github.com/hpungsan/stream/internal/logger"
	"github.com/hpungsan/stream/internal/tagger"
)

// Options configures a Registry.
type Options struct {
	Logger *logger.Logger

	// OnPersistError is called from a background goroutine when a colour
	// write fails. op is "save" or "reset".
	OnPersistError func(op, tag string, err error)
}

// Registry owns custom tag colours. Assignments are applied in memory
// immediately and persisted in the background, so hues handed out in
// quick succession are tracked before any write completes.
type Registry struct {
	mu     sync.RWMutex
	custom map[string]Color

	backend backend.TagColors
	runner  *bg.Runner
	log     *logger.Logger
	onErr   func(op, tag string, err error)
}

// NewRegistry returns an empty Registry. A nil backend keeps colours in
// memory only.
func NewRegistry(b backend.TagColors, runner *bg.Runner, opts Options) *Registry {
	log := logger.OrNop(opts.Logger)
	if runner == nil {
		runner = bg.New(0, log)
	}
	return &Registry{
		custom:  make(map[string]Color),
		backend: b,
		runner:  runner,
		log:     log.With("component", "palette"),
		onErr:   opts.OnPersistError,
	}
}

// Load replaces the custom assignments with colours read from the backend.
// A zero lightness means the row predates lightness and gets the default.
func (r *Registry) Load(colors []fragment.TagColor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.custom = make(map[string]Color, len(colors))
	for _, c := range colors {
		l := c.Lightness
		if l == 0 {
			l = DefaultLightness
		}
		r.custom[c.Name] = Color{Hue: c.Hue, Lightness: l}
	}
}

// Ensure assigns a colour to every tag that has none and is not built in.
// It returns the tags that were newly assigned, in input order.
func (r *Registry) Ensure(tags ...string) []string {
	r.mu.Lock()
	var assigned []string
	var writes []fragment.TagColor
	for _, tag := range tags {
		tag = strings.TrimSpace(tag)
		if tag == "" || tagger.IsBuiltin(tag) {
			continue
		}
		if _, ok := r.custom[tag]; ok {
			continue
		}
		c := Color{Hue: NextHue(r.huesLocked()), Lightness: DefaultLightness}
		r.custom[tag] = c
		assigned = append(assigned, tag)
		writes = append(writes, fragment.TagColor{Name: tag, Hue: c.Hue, Lightness: c.Lightness})
	}
	r.mu.Unlock()

	for _, w := range writes {
		r.persist(w)
	}
	return assigned
}

// Set binds tag to an exact colour chosen by the user. It fails with
// COLOR_CONFLICT, leaving state unchanged, when another tag already
// resolves to the same hue and lightness.
func (r *Registry) Set(tag string, hue, lightness int) error {
	tag = strings.TrimSpace(tag)
	if tag == "" {
		return errors.NewInvalidRequest("tag is required")
	}
	if hue < 0 || hue >= 360 {
		return errors.NewInvalidRequest("hue must be in [0,360)")
	}
	if lightness < MinLightness || lightness > MaxLightness {
		return errors.NewInvalidRequest("lightness must be in [10,85]")
	}
	c := Color{Hue: hue, Lightness: lightness}

	r.mu.Lock()
	if owner, ok := r.usedLocked(tag)[c.Key()]; ok {
		r.mu.Unlock()
		return errors.NewColorConflict(tag, owner, hue, lightness)
	}
	r.custom[tag] = c
	r.mu.Unlock()

	r.persist(fragment.TagColor{Name: tag, Hue: hue, Lightness: lightness})
	return nil
}

// Reset removes the custom binding for tag, freeing its colour. Built-in
// tags fall back to their fixed colour.
func (r *Registry) Reset(tag string) bool {
	r.mu.Lock()
	_, ok := r.custom[tag]
	delete(r.custom, tag)
	r.mu.Unlock()
	if !ok {
		return false
	}

	if r.backend != nil {
		r.runner.Do("color:"+tag, func(ctx context.Context) {
			if err := r.backend.DeleteTagColor(ctx, tag); err != nil {
				r.fail("reset", tag, err)
			}
		})
	}
	return true
}

// Resolve returns the effective colour of tag: a custom binding first,
// then the built-in colour.
func (r *Registry) Resolve(tag string) (Color, bool) {
	r.mu.RLock()
	c, ok := r.custom[tag]
	r.mu.RUnlock()
	if ok {
		return c, true
	}
	return BuiltinColor(tag)
}

// Custom returns a copy of the custom assignments only.
func (r *Registry) Custom() map[string]Color {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return maps.Clone(r.custom)
}

// Snapshot returns the effective colour of every built-in and custom tag.
func (r *Registry) Snapshot() map[string]Color {
	out := make(map[string]Color, len(builtinColors))
	maps.Copy(out, builtinColors)
	r.mu.RLock()
	maps.Copy(out, r.custom)
	r.mu.RUnlock()
	return out
}

// Used maps every colour key in use to its owning tag, ignoring except.
func (r *Registry) Used(except string) map[string]string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.usedLocked(except)
}

// TagColors returns the custom assignments sorted by name, in wire form.
func (r *Registry) TagColors() []fragment.TagColor {
	r.mu.RLock()
	out := make([]fragment.TagColor, 0, len(r.custom))
	for name, c := range r.custom {
		out = append(out, fragment.TagColor{Name: name, Hue: c.Hue, Lightness: c.Lightness})
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (r *Registry) usedLocked(except string) map[string]string {
	used := make(map[string]string, len(builtinColors)+len(r.custom))
	for name, c := range builtinColors {
		if name == except {
			continue
		}
		if _, overridden := r.custom[name]; overridden {
			continue
		}
		used[c.Key()] = name
	}
	for name, c := range r.custom {
		if name == except {
			continue
		}
		used[c.Key()] = name
	}
	return used
}

func (r *Registry) huesLocked() []float64 {
	hues := make([]float64, 0, len(r.custom))
	for _, c := range r.custom {
		hues = append(hues, float64(c.Hue))
	}
	return hues
}

func (r *Registry) persist(c fragment.TagColor) {
	if r.backend == nil {
		return
	}
	r.runner.Do("color:"+c.Name, func(ctx context.Context) {
		if err := r.backend.UpsertTagColor(ctx, c); err != nil {
			r.fail("save", c.Name, err)
		}
	})
}

func (r *Registry) fail(op, tag string, err error) {
	r.log.Error("tag color write failed", "op", op, "tag", tag, "error", err)
	if r.onErr != nil {
		r.onErr(op, tag, err)
	}
}
