package fragment

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/hpungsan/stream/internal/errors"
)

// Optional is a field that is either absent or present with a value.
// A present zero value is meaningful (e.g. a present "" StackID unassigns).
type Optional[T any] struct {
	Set   bool
	Value T
}

// Some returns a present Optional holding v.
func Some[T any](v T) Optional[T] {
	return Optional[T]{Set: true, Value: v}
}

// Patch is a partial update. Only Set fields are applied or sent to the
// backend; presentation flags are not part of it.
type Patch struct {
	Kind    Optional[Kind]
	Title   Optional[string]
	Content Optional[string]
	Tags    Optional[[]string]

	// StackID "" removes the fragment from its stack.
	StackID Optional[string]

	// Position nil clears the position within the stack.
	Position Optional[*int]
}

// Empty reports whether no field is set.
func (p Patch) Empty() bool {
	return !p.Kind.Set && !p.Title.Set && !p.Content.Set && !p.Tags.Set &&
		!p.StackID.Set && !p.Position.Set
}

// Validate checks field values without looking at any fragment.
func (p Patch) Validate() error {
	if p.Kind.Set && !p.Kind.Value.Valid() {
		return errors.NewInvalidRequest(fmt.Sprintf("unknown kind: %s", p.Kind.Value))
	}
	if p.Position.Set && p.Position.Value != nil && *p.Position.Value < 1 {
		return errors.NewInvalidRequest("stack position must be a positive integer")
	}
	return nil
}

// Apply returns a copy of f with the patch applied. Moving to a different
// stack (or out of any stack) drops the old position unless the same patch
// sets one. A position without a stack is ignored.
func (p Patch) Apply(f Fragment) Fragment {
	out := f.Clone()
	if p.Kind.Set {
		out.Kind = p.Kind.Value
	}
	if p.Title.Set {
		out.Title = p.Title.Value
	}
	if p.Content.Set {
		out.Content = p.Content.Value
	}
	if p.Tags.Set {
		out.Tags = NormalizeTags(p.Tags.Value)
	}
	if p.StackID.Set {
		switch {
		case p.StackID.Value == "":
			out.Stack = nil
		case out.Stack == nil || out.Stack.StackID != p.StackID.Value:
			out.Stack = &Membership{StackID: p.StackID.Value}
		}
	}
	if p.Position.Set && out.Stack != nil {
		if p.Position.Value == nil {
			out.Stack.Position = nil
		} else {
			pos := *p.Position.Value
			out.Stack.Position = &pos
		}
	}
	return out
}

// MarshalJSON encodes only the set fields using the wire names
// (type, title, content, tags, stack_id, stack_order). Cleared stack
// fields encode as null.
func (p Patch) MarshalJSON() ([]byte, error) {
	m := make(map[string]any, 6)
	if p.Kind.Set {
		m["type"] = p.Kind.Value
	}
	if p.Title.Set {
		m["title"] = p.Title.Value
	}
	if p.Content.Set {
		m["content"] = p.Content.Value
	}
	if p.Tags.Set {
		tags := p.Tags.Value
		if tags == nil {
			tags = []string{}
		}
		m["tags"] = tags
	}
	if p.StackID.Set {
		if p.StackID.Value == "" {
			m["stack_id"] = nil
		} else {
			m["stack_id"] = p.StackID.Value
		}
	}
	if p.Position.Set {
		m["stack_order"] = p.Position.Value
	}
	return json.Marshal(m)
}

// UnmarshalJSON decodes a wire patch, treating present keys as set.
// Unknown keys are ignored.
func (p *Patch) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*p = Patch{}

	if v, ok := raw["type"]; ok {
		var s string
		if err := json.Unmarshal(v, &s); err != nil {
			return fmt.Errorf("type: %w", err)
		}
		k, err := ParseKind(s)
		if err != nil {
			return err
		}
		p.Kind = Some(k)
	}
	if v, ok := raw["title"]; ok {
		var s string
		if err := json.Unmarshal(v, &s); err != nil {
			return fmt.Errorf("title: %w", err)
		}
		p.Title = Some(s)
	}
	if v, ok := raw["content"]; ok {
		var s string
		if err := json.Unmarshal(v, &s); err != nil {
			return fmt.Errorf("content: %w", err)
		}
		p.Content = Some(s)
	}
	if v, ok := raw["tags"]; ok {
		var tags []string
		if err := json.Unmarshal(v, &tags); err != nil {
			return fmt.Errorf("tags: %w", err)
		}
		p.Tags = Some(NormalizeTags(tags))
	}
	if v, ok := raw["stack_id"]; ok {
		var s string
		if !isNull(v) {
			if err := json.Unmarshal(v, &s); err != nil {
				return fmt.Errorf("stack_id: %w", err)
			}
		}
		p.StackID = Some(s)
	}
	if v, ok := raw["stack_order"]; ok {
		var pos *int
		if !isNull(v) {
			var n int
			if err := json.Unmarshal(v, &n); err != nil {
				return fmt.Errorf("stack_order: %w", err)
			}
			pos = &n
		}
		p.Position = Some(pos)
	}
	return nil
}

func isNull(v json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(v), []byte("null"))
}
