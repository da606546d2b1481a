package fragment

// Record is the wire and storage shape of a fragment. Presentation flags
// are not carried.
type Record struct {
	ID         string   `json:"id"`
	Type       Kind     `json:"type"`
	Title      string   `json:"title"`
	Content    string   `json:"content"`
	Tags       []string `json:"tags"`
	StackID    *string  `json:"stack_id"`
	StackOrder *int     `json:"stack_order"`
	CreatedAt  int64    `json:"created_at"`
}

// ToFragment converts a Record into a Fragment. An unknown type falls back
// to KindContext so a bad row never hides content.
func (r *Record) ToFragment() Fragment {
	f := Fragment{
		ID:        r.ID,
		Kind:      r.Type,
		Title:     r.Title,
		Content:   r.Content,
		Tags:      NormalizeTags(r.Tags),
		CreatedAt: r.CreatedAt,
	}
	if !f.Kind.Valid() {
		f.Kind = KindContext
	}
	if r.StackID != nil && *r.StackID != "" {
		m := &Membership{StackID: *r.StackID}
		if r.StackOrder != nil {
			pos := *r.StackOrder
			m.Position = &pos
		}
		f.Stack = m
	}
	return f
}

// ToRecord converts a Fragment to its persisted form.
func ToRecord(f Fragment) Record {
	r := Record{
		ID:        f.ID,
		Type:      f.Kind,
		Title:     f.Title,
		Content:   f.Content,
		Tags:      f.Tags,
		CreatedAt: f.CreatedAt,
	}
	if r.Tags == nil {
		r.Tags = []string{}
	}
	if f.Stack != nil {
		id := f.Stack.StackID
		r.StackID = &id
		if f.Stack.Position != nil {
			pos := *f.Stack.Position
			r.StackOrder = &pos
		}
	}
	return r
}
