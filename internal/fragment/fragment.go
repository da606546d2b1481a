// Package fragment holds the prompt data model shared by every layer:
// fragments, stacks, tag colours and the partial-update record.
package fragment

import (
	"slices"
	"strings"

	"github.com/hpungsan/stream/internal/errors"
)

// Kind is the semantic role of a fragment. It is informational only.
type Kind string

const (
	KindPersona     Kind = "persona"
	KindContext     Kind = "context"
	KindConstraint  Kind = "constraint"
	KindFormat      Kind = "format"
	KindInstruction Kind = "instruction"
	KindExample     Kind = "example"
)

// Kinds lists every valid Kind in display order.
var Kinds = []Kind{KindPersona, KindContext, KindConstraint, KindFormat, KindInstruction, KindExample}

// Valid reports whether k is one of the closed set of kinds.
func (k Kind) Valid() bool {
	return slices.Contains(Kinds, k)
}

// ParseKind parses s (case-insensitive, trimmed) into a Kind.
func ParseKind(s string) (Kind, error) {
	k := Kind(strings.ToLower(strings.TrimSpace(s)))
	if !k.Valid() {
		return "", errors.NewInvalidRequest("unknown kind: " + s)
	}
	return k, nil
}

// Membership places a fragment in a stack. Position is optional; a nil
// Position sorts after every positioned member.
type Membership struct {
	StackID  string
	Position *int
}

// Flags are presentation-only and never persisted.
type Flags struct {
	// New is set on create and undo and cleared shortly after.
	New bool

	// PendingRemoval is set while the exit transition of a removal runs.
	PendingRemoval bool

	// Ephemeral marks a rack stub. Stubs are never persisted.
	Ephemeral bool
}

// Fragment is a single prompt block.
type Fragment struct {
	// ID is a ULID assigned at creation
	ID string

	Kind    Kind
	Title   string
	Content string

	// Tags behaves as a set; order carries no meaning
	Tags []string

	// Stack is nil when the fragment is unassigned
	Stack *Membership

	Flags Flags

	// CreatedAt is the Unix timestamp in milliseconds
	CreatedAt int64
}

// Clone returns a deep copy so callers can't alias store-owned slices.
func (f Fragment) Clone() Fragment {
	out := f
	if f.Tags != nil {
		out.Tags = slices.Clone(f.Tags)
	}
	if f.Stack != nil {
		m := Membership{StackID: f.Stack.StackID}
		if f.Stack.Position != nil {
			p := *f.Stack.Position
			m.Position = &p
		}
		out.Stack = &m
	}
	return out
}

// StackID returns the owning stack id, or "" when unassigned.
func (f Fragment) StackID() string {
	if f.Stack == nil {
		return ""
	}
	return f.Stack.StackID
}

// Position returns the stack position, if any.
func (f Fragment) Position() (int, bool) {
	if f.Stack == nil || f.Stack.Position == nil {
		return 0, false
	}
	return *f.Stack.Position, true
}

// HasTag reports whether f carries tag (exact match).
func (f Fragment) HasTag(tag string) bool {
	return slices.Contains(f.Tags, tag)
}

// Stack is a named grouping of fragments.
type Stack struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	CreatedAt int64  `json:"created_at"`
}

// TagColor binds a tag label to an HSL hue and lightness.
type TagColor struct {
	Name      string `json:"name"`
	Hue       int    `json:"hue"`
	Lightness int    `json:"lightness"`
}
