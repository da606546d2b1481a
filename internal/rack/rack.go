// Package rack holds the ordered working set of fragments staged for
// export and compiles it into one text blob.
package rack

import (
	"slices"
	"sync"

	"github.com/hpungsan/stream/internal/errors"
	"github.com/hpungsan/stream/internal/fragment"
	"github.com/hpungsan/stream/internal/store"
)

// Rack is session-local and never persisted. It always reads fragment
// content from the store at compile time.
type Rack struct {
	mu    sync.Mutex
	ids   []string
	store *store.Store
}

// New returns an empty rack bound to s. Ids leave the rack as soon as
// their fragment starts being removed.
func New(s *store.Store) *Rack {
	r := &Rack{store: s}
	s.OnRemove(func(id string) { r.Remove(id) })
	return r
}

// Toggle appends id if absent and removes it if present. It reports
// whether id is in the rack afterwards. Toggling a stub off discards it.
func (r *Rack) Toggle(id string) (bool, error) {
	r.mu.Lock()
	if i := slices.Index(r.ids, id); i >= 0 {
		r.ids = slices.Delete(r.ids, i, i+1)
		r.mu.Unlock()

		if f, ok := r.store.Get(id); ok && f.Flags.Ephemeral {
			if err := r.store.Remove(id); err != nil {
				return false, err
			}
		}
		return false, nil
	}
	defer r.mu.Unlock()
	if err := r.checkLocked(id); err != nil {
		return false, err
	}
	r.ids = append(r.ids, id)
	return true, nil
}

// Add appends id unless it is already racked.
func (r *Rack) Add(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if slices.Contains(r.ids, id) {
		return nil
	}
	if err := r.checkLocked(id); err != nil {
		return err
	}
	r.ids = append(r.ids, id)
	return nil
}

func (r *Rack) checkLocked(id string) error {
	f, ok := r.store.Get(id)
	if !ok || f.Flags.PendingRemoval {
		return errors.NewNotFound("prompt", id)
	}
	return nil
}

// AddStub creates an ephemeral stub and appends it.
func (r *Rack) AddStub() fragment.Fragment {
	f := r.store.CreateStub()
	r.mu.Lock()
	r.ids = append(r.ids, f.ID)
	r.mu.Unlock()
	return f
}

// Remove drops id and reports whether it was racked.
func (r *Rack) Remove(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	i := slices.Index(r.ids, id)
	if i < 0 {
		return false
	}
	r.ids = slices.Delete(r.ids, i, i+1)
	return true
}

// Reorder replaces the list wholesale. Unknown and repeated ids are dropped.
func (r *Rack) Reorder(ids []string) {
	next := make([]string, 0, len(ids))
	for _, id := range ids {
		if slices.Contains(next, id) || !r.store.Has(id) {
			continue
		}
		next = append(next, id)
	}
	r.mu.Lock()
	r.ids = next
	r.mu.Unlock()
}

// Clear empties the rack.
func (r *Rack) Clear() {
	r.mu.Lock()
	r.ids = nil
	r.mu.Unlock()
}

// Contains reports whether id is racked.
func (r *Rack) Contains(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Contains(r.ids, id)
}

// IDs returns racked ids that still resolve, in rack order.
func (r *Rack) IDs() []string {
	frags := r.Fragments()
	ids := make([]string, len(frags))
	for i, f := range frags {
		ids[i] = f.ID
	}
	return ids
}

// Fragments returns the racked fragments that still resolve, in order.
func (r *Rack) Fragments() []fragment.Fragment {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]fragment.Fragment, 0, len(r.ids))
	for _, id := range r.ids {
		if f, ok := r.store.Get(id); ok {
			out = append(out, f)
		}
	}
	return out
}

// Len returns the number of racked ids that still resolve.
func (r *Rack) Len() int {
	return len(r.Fragments())
}

// CompiledOutput joins the content of every resolvable racked fragment
// with a blank line.
func (r *Rack) CompiledOutput() string {
	frags := r.Fragments()
	contents := make([]string, len(frags))
	for i, f := range frags {
		contents[i] = f.Content
	}
	return Join(contents)
}

// CompiledHTML renders CompiledOutput as markdown.
func (r *Rack) CompiledHTML() (string, error) {
	return RenderHTML(r.CompiledOutput())
}
