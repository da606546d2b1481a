package fragment

// Summary represents a fragment's metadata without the full content.
// Used for list output (CLI, MCP) to keep payloads small.
type Summary struct {
	ID       string   `json:"id"`
	Type     Kind     `json:"type"`
	Title    string   `json:"title"`
	Tags     []string `json:"tags,omitempty"`
	StackID  string   `json:"stack_id,omitempty"`
	Position *int     `json:"stack_order,omitempty"`

	// Chars is the content length in runes
	Chars int `json:"chars"`

	// TokensEstimate is the estimated token count for LLM context budgeting
	TokensEstimate int `json:"tokens_estimate"`

	Ephemeral bool  `json:"ephemeral,omitempty"`
	CreatedAt int64 `json:"created_at"`
}

// ToSummary strips the content from f.
func (f Fragment) ToSummary() Summary {
	s := Summary{
		ID:             f.ID,
		Type:           f.Kind,
		Title:          f.Title,
		Tags:           f.Tags,
		StackID:        f.StackID(),
		Chars:          CountChars(f.Content),
		TokensEstimate: EstimateTokens(f.Content),
		Ephemeral:      f.Flags.Ephemeral,
		CreatedAt:      f.CreatedAt,
	}
	if pos, ok := f.Position(); ok {
		s.Position = &pos
	}
	return s
}
