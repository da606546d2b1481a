package mcp

import (
	"context"
	"encoding/json"
	"sort"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/hpungsan/stream/internal/errors"
	"github.com/hpungsan/stream/internal/fragment"
	"github.com/hpungsan/stream/internal/palette"
	"github.com/hpungsan/stream/internal/session"
	"github.com/hpungsan/stream/internal/store"
	"github.com/hpungsan/stream/internal/tagger"
)

// Handlers holds dependencies for MCP tool handlers.
type Handlers struct {
	sess *session.Session
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(sess *session.Session) *Handlers {
	return &Handlers{sess: sess}
}

// Request types for each tool

// CreateRequest represents the arguments for prompt_create.
type CreateRequest struct {
	Content    string        `json:"content"`
	Type       fragment.Kind `json:"type,omitempty"`
	Title      string        `json:"title,omitempty"`
	Tags       []string      `json:"tags,omitempty"`
	Stack      string        `json:"stack,omitempty"`
	StackOrder *int          `json:"stack_order,omitempty"`
}

// IDRequest carries a single prompt id.
type IDRequest struct {
	ID string `json:"id"`
}

// ListRequest represents the arguments for prompt_list.
type ListRequest struct {
	Search string   `json:"search,omitempty"`
	Tags   []string `json:"tags,omitempty"`
	Stack  string   `json:"stack,omitempty"`
}

// UpdateRequest represents the arguments for prompt_update.
type UpdateRequest struct {
	ID      string         `json:"id"`
	Type    *fragment.Kind `json:"type,omitempty"`
	Title   *string        `json:"title,omitempty"`
	Content *string        `json:"content,omitempty"`
	Tags    *[]string      `json:"tags,omitempty"`
}

// ClassifyRequest represents the arguments for prompt_classify.
type ClassifyRequest struct {
	Text string `json:"text"`
}

// IDsRequest carries an ordered list of prompt ids.
type IDsRequest struct {
	IDs []string `json:"ids"`
}

// CompileRequest represents the arguments for rack_compile.
type CompileRequest struct {
	HTML bool `json:"html,omitempty"`
}

// StackRequest represents the arguments for the stack tools.
type StackRequest struct {
	Stack string   `json:"stack,omitempty"`
	Name  string   `json:"name,omitempty"`
	IDs   []string `json:"ids,omitempty"`
}

// ColorRequest represents the arguments for the colour tools.
type ColorRequest struct {
	Tag       string `json:"tag"`
	Hue       *int   `json:"hue,omitempty"`
	Lightness *int   `json:"lightness,omitempty"`
}

// Output types

// ListOutput is the prompt_list and stack_view result.
type ListOutput struct {
	Items []fragment.Summary `json:"items"`
	Count int                `json:"count"`
}

// CompileOutput is the rack_compile result.
type CompileOutput struct {
	IDs  []string `json:"ids"`
	Text string   `json:"text"`
	HTML string   `json:"html,omitempty"`
}

// ColorOutput is one tag colour.
type ColorOutput struct {
	Tag       string `json:"tag"`
	Hue       int    `json:"hue"`
	Lightness int    `json:"lightness"`
	Hex       string `json:"hex"`
	Builtin   bool   `json:"builtin"`
}

// resolveStack maps a stack id or name to its id. Empty stays empty.
func (h *Handlers) resolveStack(ref string) (string, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return "", nil
	}
	st, ok := h.sess.Stacks.Find(ref)
	if !ok {
		return "", errors.NewNotFound("stack", ref)
	}
	return st.ID, nil
}

func summaries(frags []fragment.Fragment) ListOutput {
	out := ListOutput{Items: make([]fragment.Summary, len(frags)), Count: len(frags)}
	for i, f := range frags {
		out.Items[i] = f.ToSummary()
	}
	return out
}

// Handler implementations

// HandlePromptCreate handles the prompt_create tool call.
func (h *Handlers) HandlePromptCreate(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[CreateRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}
	if strings.TrimSpace(input.Content) == "" {
		return errorResult(errors.NewInvalidRequest("content is required")), nil
	}
	stackID, err := h.resolveStack(input.Stack)
	if err != nil {
		return errorResult(err), nil
	}

	f, err := h.sess.Store.CreateDraft(store.Draft{
		Kind:     input.Type,
		Title:    strings.TrimSpace(input.Title),
		Content:  input.Content,
		Tags:     input.Tags,
		StackID:  stackID,
		Position: input.StackOrder,
	})
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(fragment.ToRecord(f))
}

// HandlePromptGet handles the prompt_get tool call.
func (h *Handlers) HandlePromptGet(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[IDRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}
	f, ok := h.sess.Store.Get(input.ID)
	if !ok {
		return errorResult(errors.NewNotFound("prompt", input.ID)), nil
	}
	return successResult(fragment.ToRecord(f))
}

// HandlePromptList handles the prompt_list tool call.
func (h *Handlers) HandlePromptList(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ListRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}
	stackID, err := h.resolveStack(input.Stack)
	if err != nil {
		return errorResult(err), nil
	}
	frags := h.sess.Store.Query(store.Filter{
		Search:  input.Search,
		Tags:    input.Tags,
		StackID: stackID,
	})
	return successResult(summaries(frags))
}

// HandlePromptUpdate handles the prompt_update tool call.
func (h *Handlers) HandlePromptUpdate(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[UpdateRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	var p fragment.Patch
	if input.Type != nil {
		p.Kind = fragment.Some(*input.Type)
	}
	if input.Title != nil {
		p.Title = fragment.Some(*input.Title)
	}
	if input.Content != nil {
		p.Content = fragment.Some(*input.Content)
	}
	if input.Tags != nil {
		p.Tags = fragment.Some(*input.Tags)
	}
	if p.Empty() {
		return errorResult(errors.NewInvalidRequest("no updates provided")), nil
	}

	if err := h.sess.Store.Update(input.ID, p); err != nil {
		return errorResult(err), nil
	}
	f, _ := h.sess.Store.Get(input.ID)
	return successResult(fragment.ToRecord(f))
}

// HandlePromptRemove handles the prompt_remove tool call.
func (h *Handlers) HandlePromptRemove(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[IDRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}
	if err := h.sess.Store.Remove(input.ID); err != nil {
		return errorResult(err), nil
	}
	return successResult(map[string]any{"id": input.ID, "removed": true})
}

// HandlePromptUndo handles the prompt_undo tool call.
func (h *Handlers) HandlePromptUndo(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[IDRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}
	if err := h.sess.Store.Undo(input.ID); err != nil {
		return errorResult(err), nil
	}
	return successResult(map[string]any{"id": input.ID, "restored": true})
}

// HandlePromptClassify handles the prompt_classify tool call.
func (h *Handlers) HandlePromptClassify(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ClassifyRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}
	return successResult(map[string]any{"tags": tagger.Classify(input.Text)})
}

// HandleRackToggle handles the rack_toggle tool call.
func (h *Handlers) HandleRackToggle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[IDRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}
	in, err := h.sess.Rack.Toggle(input.ID)
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(map[string]any{"id": input.ID, "in_rack": in, "rack": h.sess.Rack.IDs()})
}

// HandleRackReorder handles the rack_reorder tool call.
func (h *Handlers) HandleRackReorder(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[IDsRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}
	h.sess.Rack.Reorder(input.IDs)
	return successResult(map[string]any{"rack": h.sess.Rack.IDs()})
}

// HandleRackCompile handles the rack_compile tool call.
func (h *Handlers) HandleRackCompile(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[CompileRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}
	out := CompileOutput{IDs: h.sess.Rack.IDs(), Text: h.sess.Rack.CompiledOutput()}
	if input.HTML {
		html, err := h.sess.Rack.CompiledHTML()
		if err != nil {
			return errorResult(errors.NewInternal(err)), nil
		}
		out.HTML = html
	}
	return successResult(out)
}

// HandleRackStub handles the rack_stub tool call.
func (h *Handlers) HandleRackStub(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	f := h.sess.Rack.AddStub()
	return successResult(fragment.ToRecord(f))
}

// HandleStackCreate handles the stack_create tool call.
func (h *Handlers) HandleStackCreate(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[StackRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}
	st, err := h.sess.Stacks.Create(ctx, input.Name)
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(st)
}

// HandleStackRename handles the stack_rename tool call.
func (h *Handlers) HandleStackRename(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[StackRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}
	id, err := h.resolveStack(input.Stack)
	if err != nil {
		return errorResult(err), nil
	}
	if id == "" {
		return errorResult(errors.NewInvalidRequest("stack is required")), nil
	}
	if err := h.sess.Stacks.Rename(ctx, id, input.Name); err != nil {
		return errorResult(err), nil
	}
	st, _ := h.sess.Stacks.Get(id)
	return successResult(st)
}

// HandleStackDelete handles the stack_delete tool call.
func (h *Handlers) HandleStackDelete(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[StackRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}
	id, err := h.resolveStack(input.Stack)
	if err != nil {
		return errorResult(err), nil
	}
	if id == "" {
		return errorResult(errors.NewInvalidRequest("stack is required")), nil
	}
	if err := h.sess.Stacks.Delete(ctx, id); err != nil {
		return errorResult(err), nil
	}
	return successResult(map[string]any{"id": id, "deleted": true})
}

// HandleStackAssign handles the stack_assign tool call.
func (h *Handlers) HandleStackAssign(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[StackRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}
	id, err := h.resolveStack(input.Stack)
	if err != nil {
		return errorResult(err), nil
	}
	moved, err := h.sess.Stacks.Assign(input.IDs, id)
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(map[string]any{"moved": moved, "stack_id": id})
}

// HandleStackView handles the stack_view tool call.
func (h *Handlers) HandleStackView(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[StackRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}
	id, err := h.resolveStack(input.Stack)
	if err != nil {
		return errorResult(err), nil
	}
	if id == "" {
		return errorResult(errors.NewInvalidRequest("stack is required")), nil
	}
	return successResult(summaries(h.sess.Stacks.View(id)))
}

// HandleColorSet handles the color_set tool call.
func (h *Handlers) HandleColorSet(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ColorRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}
	if input.Hue == nil {
		return errorResult(errors.NewInvalidRequest("hue is required")), nil
	}
	lightness := palette.DefaultLightness
	if input.Lightness != nil {
		lightness = *input.Lightness
	}
	if err := h.sess.Palette.Set(input.Tag, *input.Hue, lightness); err != nil {
		return errorResult(err), nil
	}
	tag := strings.TrimSpace(input.Tag)
	c, _ := h.sess.Palette.Resolve(tag)
	return successResult(colorOutput(tag, c, false))
}

// HandleColorReset handles the color_reset tool call.
func (h *Handlers) HandleColorReset(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ColorRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}
	reset := h.sess.Store.ResetTagColor(input.Tag)
	return successResult(map[string]any{"tag": input.Tag, "reset": reset})
}

// HandleColorList handles the color_list tool call.
func (h *Handlers) HandleColorList(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	snap := h.sess.Palette.Snapshot()
	custom := h.sess.Palette.Custom()
	out := make([]ColorOutput, 0, len(snap))
	for tag, c := range snap {
		_, overridden := custom[tag]
		out = append(out, colorOutput(tag, c, !overridden && tagger.IsBuiltin(tag)))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Tag < out[j].Tag })
	return successResult(map[string]any{"colors": out})
}

func colorOutput(tag string, c palette.Color, builtin bool) ColorOutput {
	return ColorOutput{Tag: tag, Hue: c.Hue, Lightness: c.Lightness, Hex: c.Hex(), Builtin: builtin}
}

// Result helpers

// errorResult creates an MCP error result from any error.
// Uses IsError: true so MCP clients recognize failures properly.
// Note: Internal error details are not exposed to prevent leaking sensitive info.
func errorResult(err error) *mcp.CallToolResult {
	var payload map[string]any

	if sErr, ok := errors.As(err); ok {
		// Keep any wrapping context ("ids[2]: ...") in front of the message
		msg := sErr.Message
		if prefix := strings.TrimSuffix(err.Error(), sErr.Error()); prefix != err.Error() {
			msg = prefix + msg
		}
		errorObj := map[string]any{
			"code":    sErr.Code,
			"message": msg,
			"status":  sErr.Status,
		}
		if sErr.Code == errors.ErrInternal {
			errorObj["message"] = "an internal error occurred"
		} else if sErr.Details != nil {
			errorObj["details"] = sErr.Details
		}
		payload = map[string]any{"error": errorObj}
	} else {
		payload = map[string]any{
			"error": map[string]any{
				"code":    "INTERNAL",
				"message": "an internal error occurred",
				"status":  500,
			},
		}
	}

	content, _ := json.Marshal(payload)
	return &mcp.CallToolResult{
		Content: []mcp.Content{mcp.TextContent{Type: "text", Text: string(content)}},
		IsError: true,
	}
}

// successResult creates an MCP success result from any data.
func successResult(data any) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultJSON(data)
}
