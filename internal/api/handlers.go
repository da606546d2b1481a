package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/hpungsan/stream/internal/backend"
	"github.com/hpungsan/stream/internal/errors"
	"github.com/hpungsan/stream/internal/fragment"
	"github.com/hpungsan/stream/internal/logger"
	"github.com/hpungsan/stream/internal/palette"
	"github.com/hpungsan/stream/internal/rack"
	"github.com/hpungsan/stream/internal/tagger"
)

// Handlers contains HTTP route handlers for the API.
type Handlers struct {
	backend backend.Backend
	log     *logger.Logger
}

type messageResponse struct {
	Message string `json:"message"`
}

type healthResponse struct {
	Status   string `json:"status"`
	Database string `json:"database"`
}

// HandleHealth handles GET /api/health.
func (h *Handlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	if err := h.backend.Ping(r.Context()); err != nil {
		h.log.Warn("health check failed", "error", err)
		renderError(w, errors.NewConnectivity(err))
		return
	}
	renderJSON(w, http.StatusOK, healthResponse{Status: "ok", Database: "connected"})
}

// --- blocks ---

// HandleListBlocks handles GET /api/blocks, newest first.
func (h *Handlers) HandleListBlocks(w http.ResponseWriter, r *http.Request) {
	frags, err := h.backend.ListFragments(r.Context())
	if err != nil {
		renderError(w, err)
		return
	}
	out := make([]fragment.Record, len(frags))
	for i, f := range frags {
		out[i] = fragment.ToRecord(f)
	}
	renderJSON(w, http.StatusOK, out)
}

// HandleCreateBlock handles POST /api/blocks. A missing id, type, title or
// created_at is filled in.
func (h *Handlers) HandleCreateBlock(w http.ResponseWriter, r *http.Request) {
	var rec fragment.Record
	if err := decodeJSON(w, r, &rec); err != nil {
		renderError(w, err)
		return
	}

	if rec.Type == "" {
		rec.Type = fragment.KindContext
	}
	if !rec.Type.Valid() {
		renderError(w, errors.NewInvalidRequest("unknown type: "+string(rec.Type)))
		return
	}
	if rec.StackOrder != nil && *rec.StackOrder < 1 {
		renderError(w, errors.NewInvalidRequest("stack_order must be a positive integer"))
		return
	}
	if rec.ID == "" {
		rec.ID = fragment.NewID()
	}
	if strings.TrimSpace(rec.Title) == "" {
		rec.Title = fragment.DeriveTitle(rec.Content)
	}
	if rec.CreatedAt == 0 {
		rec.CreatedAt = time.Now().UnixMilli()
	}

	f := rec.ToFragment()
	if err := h.backend.CreateFragment(r.Context(), f); err != nil {
		renderError(w, err)
		return
	}
	renderJSON(w, http.StatusCreated, fragment.ToRecord(f))
}

// HandleUpdateBlock handles PATCH /api/blocks/{id}. Only present fields
// are applied; an explicit null clears stack_id or stack_order.
func (h *Handlers) HandleUpdateBlock(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		renderError(w, errors.NewInvalidRequest("block ID is required"))
		return
	}

	var p fragment.Patch
	if err := decodeJSON(w, r, &p); err != nil {
		renderError(w, err)
		return
	}
	if err := p.Validate(); err != nil {
		renderError(w, err)
		return
	}
	if err := h.backend.UpdateFragment(r.Context(), id, p); err != nil {
		renderError(w, err)
		return
	}

	if p.Empty() {
		renderJSON(w, http.StatusOK, messageResponse{Message: "No updates provided"})
		return
	}
	renderJSON(w, http.StatusOK, messageResponse{Message: "Block updated successfully"})
}

// HandleDeleteBlock handles DELETE /api/blocks/{id}. Deleting a missing
// block succeeds.
func (h *Handlers) HandleDeleteBlock(w http.ResponseWriter, r *http.Request) {
	if err := h.backend.DeleteFragment(r.Context(), r.PathValue("id")); err != nil && !errors.Is(err, errors.ErrNotFound) {
		renderError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- tag colors ---

type tagColorRequest struct {
	Hue       *int `json:"hue"`
	Lightness int  `json:"lightness"`
}

// HandleListTagColors handles GET /api/tag-colors.
func (h *Handlers) HandleListTagColors(w http.ResponseWriter, r *http.Request) {
	colors, err := h.backend.ListTagColors(r.Context())
	if err != nil {
		renderError(w, err)
		return
	}
	if colors == nil {
		colors = []fragment.TagColor{}
	}
	renderJSON(w, http.StatusOK, colors)
}

// HandleSetTagColor handles PUT /api/tag-colors/{name}. Lightness defaults
// to 32 when omitted.
func (h *Handlers) HandleSetTagColor(w http.ResponseWriter, r *http.Request) {
	name := strings.TrimSpace(r.PathValue("name"))
	if name == "" {
		renderError(w, errors.NewInvalidRequest("tag name is required"))
		return
	}

	var req tagColorRequest
	if err := decodeJSON(w, r, &req); err != nil {
		renderError(w, err)
		return
	}
	if req.Hue == nil {
		renderError(w, errors.NewInvalidRequest("hue is required"))
		return
	}
	if *req.Hue < 0 || *req.Hue >= 360 {
		renderError(w, errors.NewInvalidRequest("hue must be in [0,360)"))
		return
	}
	if req.Lightness == 0 {
		req.Lightness = palette.DefaultLightness
	}
	if req.Lightness < palette.MinLightness || req.Lightness > palette.MaxLightness {
		renderError(w, errors.NewInvalidRequest("lightness must be in [10,85]"))
		return
	}

	tc := fragment.TagColor{Name: name, Hue: *req.Hue, Lightness: req.Lightness}
	if err := h.backend.UpsertTagColor(r.Context(), tc); err != nil {
		renderError(w, err)
		return
	}
	renderJSON(w, http.StatusOK, tc)
}

// HandleDeleteTagColor handles DELETE /api/tag-colors/{name}.
func (h *Handlers) HandleDeleteTagColor(w http.ResponseWriter, r *http.Request) {
	if err := h.backend.DeleteTagColor(r.Context(), r.PathValue("name")); err != nil {
		renderError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- stacks ---

type stackRequest struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// HandleListStacks handles GET /api/stacks, oldest first.
func (h *Handlers) HandleListStacks(w http.ResponseWriter, r *http.Request) {
	stacks, err := h.backend.ListStacks(r.Context())
	if err != nil {
		renderError(w, err)
		return
	}
	if stacks == nil {
		stacks = []fragment.Stack{}
	}
	renderJSON(w, http.StatusOK, stacks)
}

// HandleCreateStack handles POST /api/stacks.
func (h *Handlers) HandleCreateStack(w http.ResponseWriter, r *http.Request) {
	var req stackRequest
	if err := decodeJSON(w, r, &req); err != nil {
		renderError(w, err)
		return
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		renderError(w, errors.NewInvalidRequest("name is required"))
		return
	}
	s := fragment.Stack{ID: req.ID, Name: name, CreatedAt: time.Now().UnixMilli()}
	if s.ID == "" {
		s.ID = fragment.NewID()
	}
	if err := h.backend.CreateStack(r.Context(), s); err != nil {
		renderError(w, err)
		return
	}
	renderJSON(w, http.StatusCreated, s)
}

// HandleRenameStack handles PATCH /api/stacks/{id}.
func (h *Handlers) HandleRenameStack(w http.ResponseWriter, r *http.Request) {
	var req stackRequest
	if err := decodeJSON(w, r, &req); err != nil {
		renderError(w, err)
		return
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		renderError(w, errors.NewInvalidRequest("name is required"))
		return
	}
	if err := h.backend.RenameStack(r.Context(), r.PathValue("id"), name); err != nil {
		renderError(w, err)
		return
	}
	renderJSON(w, http.StatusOK, messageResponse{Message: "Stack updated successfully"})
}

// HandleDeleteStack handles DELETE /api/stacks/{id}. Member blocks are
// unlinked, not deleted.
func (h *Handlers) HandleDeleteStack(w http.ResponseWriter, r *http.Request) {
	if err := h.backend.DeleteStack(r.Context(), r.PathValue("id")); err != nil {
		renderError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- tools ---

type classifyRequest struct {
	Text string `json:"text"`
}

type classifyResponse struct {
	Tags []string `json:"tags"`
}

// HandleClassify handles POST /api/classify.
func (h *Handlers) HandleClassify(w http.ResponseWriter, r *http.Request) {
	var req classifyRequest
	if err := decodeJSON(w, r, &req); err != nil {
		renderError(w, err)
		return
	}
	renderJSON(w, http.StatusOK, classifyResponse{Tags: tagger.Classify(req.Text)})
}

type previewRequest struct {
	IDs []string `json:"ids"`
}

type previewResponse struct {
	Text string `json:"text"`
	HTML string `json:"html"`
}

// HandlePreview handles POST /api/rack/preview: joins the named blocks in
// the given order and renders the result as markdown. Unknown ids are skipped.
func (h *Handlers) HandlePreview(w http.ResponseWriter, r *http.Request) {
	var req previewRequest
	if err := decodeJSON(w, r, &req); err != nil {
		renderError(w, err)
		return
	}

	frags, err := h.backend.ListFragments(r.Context())
	if err != nil {
		renderError(w, err)
		return
	}
	byID := make(map[string]string, len(frags))
	for _, f := range frags {
		byID[f.ID] = f.Content
	}
	contents := make([]string, 0, len(req.IDs))
	for _, id := range req.IDs {
		if c, ok := byID[id]; ok {
			contents = append(contents, c)
		}
	}

	text := rack.Join(contents)
	html, err := rack.RenderHTML(text)
	if err != nil {
		renderError(w, errors.NewInternal(err))
		return
	}
	renderJSON(w, http.StatusOK, previewResponse{Text: text, HTML: html})
}
