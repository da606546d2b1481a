package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/hpungsan/stream/internal/backend"
	"github.com/hpungsan/stream/internal/config"
	"github.com/hpungsan/stream/internal/db"
	"github.com/hpungsan/stream/internal/fragment"
)

func setupTest(t *testing.T) (http.Handler, backend.Backend) {
	t.Helper()
	database, err := db.Init(t.TempDir())
	if err != nil {
		t.Fatalf("db.Init: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	b := backend.NewSQLite(database)
	return NewHandler(b, config.DefaultConfig(), nil), b
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return v
}

type errorEnvelope struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
		Status  int    `json:"status"`
	} `json:"error"`
}

func seedBlock(t *testing.T, b backend.Backend, id, content string, createdAt int64) {
	t.Helper()
	f := fragment.Fragment{
		ID:        id,
		Kind:      fragment.KindContext,
		Title:     fragment.DeriveTitle(content),
		Content:   content,
		Tags:      []string{"Logic"},
		CreatedAt: createdAt,
	}
	if err := b.CreateFragment(context.Background(), f); err != nil {
		t.Fatalf("seed %s: %v", id, err)
	}
}

// --- health ---

func TestHandleHealth(t *testing.T) {
	h, _ := setupTest(t)

	for _, path := range []string{"/", "/api/health"} {
		rec := do(t, h, "GET", path, "")
		if rec.Code != http.StatusOK {
			t.Fatalf("%s status = %d, want 200", path, rec.Code)
		}
		got := decode[healthResponse](t, rec)
		if got.Status != "ok" || got.Database != "connected" {
			t.Errorf("%s body = %+v", path, got)
		}
	}
}

func TestSecurityHeaders(t *testing.T) {
	h, _ := setupTest(t)
	rec := do(t, h, "GET", "/api/health", "")

	if rec.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Error("missing X-Content-Type-Options")
	}
	if rec.Header().Get("X-Frame-Options") != "DENY" {
		t.Error("missing X-Frame-Options")
	}
}

// --- blocks ---

func TestHandleCreateBlock_FillsDefaults(t *testing.T) {
	h, b := setupTest(t)

	rec := do(t, h, "POST", "/api/blocks", `{"content":"def foo(): pass","tags":["Python","Code"]}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201: %s", rec.Code, rec.Body.String())
	}
	got := decode[fragment.Record](t, rec)
	if got.ID == "" {
		t.Error("expected generated id")
	}
	if got.Type != fragment.KindContext {
		t.Errorf("type = %q, want context", got.Type)
	}
	if got.Title != "def foo(): pass" {
		t.Errorf("title = %q", got.Title)
	}

	frags, err := b.ListFragments(context.Background())
	if err != nil {
		t.Fatalf("ListFragments: %v", err)
	}
	if len(frags) != 1 || frags[0].ID != got.ID {
		t.Fatalf("stored = %+v", frags)
	}
}

func TestHandleCreateBlock_InvalidType(t *testing.T) {
	h, _ := setupTest(t)

	rec := do(t, h, "POST", "/api/blocks", `{"id":"x","type":"poem","content":"hi"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	env := decode[errorEnvelope](t, rec)
	if env.Error.Code != "INVALID_REQUEST" {
		t.Errorf("code = %q", env.Error.Code)
	}
}

func TestHandleCreateBlock_Duplicate(t *testing.T) {
	h, b := setupTest(t)
	seedBlock(t, b, "dup", "hello", 1)

	rec := do(t, h, "POST", "/api/blocks", `{"id":"dup","content":"again"}`)
	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", rec.Code)
	}
}

func TestHandleCreateBlock_BadJSON(t *testing.T) {
	h, _ := setupTest(t)

	rec := do(t, h, "POST", "/api/blocks", `{not json`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestHandleListBlocks_NewestFirst(t *testing.T) {
	h, b := setupTest(t)
	seedBlock(t, b, "old", "first", 100)
	seedBlock(t, b, "new", "second", 200)

	rec := do(t, h, "GET", "/api/blocks", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	got := decode[[]fragment.Record](t, rec)
	if len(got) != 2 || got[0].ID != "new" || got[1].ID != "old" {
		t.Fatalf("order = %+v", got)
	}
}

func TestHandleListBlocks_EmptyIsArray(t *testing.T) {
	h, _ := setupTest(t)

	rec := do(t, h, "GET", "/api/blocks", "")
	if strings.TrimSpace(rec.Body.String()) != "[]" {
		t.Errorf("body = %q, want []", rec.Body.String())
	}
}

func TestHandleUpdateBlock(t *testing.T) {
	h, b := setupTest(t)
	seedBlock(t, b, "a", "hello", 1)

	rec := do(t, h, "PATCH", "/api/blocks/a", `{"title":"Renamed","tags":["Rules"]}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	if msg := decode[messageResponse](t, rec).Message; msg != "Block updated successfully" {
		t.Errorf("message = %q", msg)
	}

	frags, _ := b.ListFragments(context.Background())
	if frags[0].Title != "Renamed" || frags[0].Content != "hello" {
		t.Errorf("stored = %+v", frags[0])
	}
	if len(frags[0].Tags) != 1 || frags[0].Tags[0] != "Rules" {
		t.Errorf("tags = %v", frags[0].Tags)
	}
}

func TestHandleUpdateBlock_Empty(t *testing.T) {
	h, b := setupTest(t)
	seedBlock(t, b, "a", "hello", 1)

	rec := do(t, h, "PATCH", "/api/blocks/a", `{}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if msg := decode[messageResponse](t, rec).Message; msg != "No updates provided" {
		t.Errorf("message = %q", msg)
	}
}

func TestHandleUpdateBlock_NotFound(t *testing.T) {
	h, _ := setupTest(t)

	rec := do(t, h, "PATCH", "/api/blocks/missing", `{"title":"x"}`)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
	env := decode[errorEnvelope](t, rec)
	if env.Error.Code != "NOT_FOUND" || env.Error.Status != 404 {
		t.Errorf("envelope = %+v", env)
	}
}

func TestHandleUpdateBlock_InvalidPosition(t *testing.T) {
	h, b := setupTest(t)
	seedBlock(t, b, "a", "hello", 1)

	rec := do(t, h, "PATCH", "/api/blocks/a", `{"stack_order":0}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestHandleDeleteBlock_Idempotent(t *testing.T) {
	h, b := setupTest(t)
	seedBlock(t, b, "a", "hello", 1)

	for i := 0; i < 2; i++ {
		rec := do(t, h, "DELETE", "/api/blocks/a", "")
		if rec.Code != http.StatusNoContent {
			t.Fatalf("attempt %d status = %d, want 204", i, rec.Code)
		}
	}
}

// --- tag colors ---

func TestHandleTagColors(t *testing.T) {
	h, _ := setupTest(t)

	rec := do(t, h, "PUT", "/api/tag-colors/Go", `{"hue":200}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("PUT status = %d: %s", rec.Code, rec.Body.String())
	}
	put := decode[fragment.TagColor](t, rec)
	if put.Lightness != 32 {
		t.Errorf("lightness = %d, want default 32", put.Lightness)
	}

	rec = do(t, h, "PUT", "/api/tag-colors/C%23", `{"hue":10,"lightness":50}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("PUT escaped status = %d", rec.Code)
	}

	rec = do(t, h, "GET", "/api/tag-colors", "")
	colors := decode[[]fragment.TagColor](t, rec)
	if len(colors) != 2 {
		t.Fatalf("colors = %+v", colors)
	}
	if colors[0].Name != "C#" {
		t.Errorf("escaped name = %q, want C#", colors[0].Name)
	}

	rec = do(t, h, "DELETE", "/api/tag-colors/Go", "")
	if rec.Code != http.StatusNoContent {
		t.Fatalf("DELETE status = %d", rec.Code)
	}
	colors = decode[[]fragment.TagColor](t, do(t, h, "GET", "/api/tag-colors", ""))
	if len(colors) != 1 {
		t.Errorf("after delete = %+v", colors)
	}
}

func TestHandleSetTagColor_Validation(t *testing.T) {
	h, _ := setupTest(t)

	tests := []struct {
		name string
		body string
	}{
		{"missing hue", `{"lightness":40}`},
		{"hue too high", `{"hue":360}`},
		{"negative hue", `{"hue":-1}`},
		{"lightness too low", `{"hue":1,"lightness":5}`},
		{"lightness too high", `{"hue":1,"lightness":90}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, h, "PUT", "/api/tag-colors/Go", tt.body)
			if rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", rec.Code)
			}
		})
	}
}

// --- stacks ---

func TestHandleStacks_Lifecycle(t *testing.T) {
	h, b := setupTest(t)

	rec := do(t, h, "POST", "/api/stacks", `{"id":"s1","name":"  Drafts "}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d: %s", rec.Code, rec.Body.String())
	}
	if got := decode[fragment.Stack](t, rec); got.Name != "Drafts" {
		t.Errorf("name = %q, want trimmed", got.Name)
	}

	rec = do(t, h, "PATCH", "/api/stacks/s1", `{"name":"Final"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("rename status = %d", rec.Code)
	}

	stacks := decode[[]fragment.Stack](t, do(t, h, "GET", "/api/stacks", ""))
	if len(stacks) != 1 || stacks[0].Name != "Final" {
		t.Fatalf("stacks = %+v", stacks)
	}

	seedBlock(t, b, "m", "member", 1)
	do(t, h, "PATCH", "/api/blocks/m", `{"stack_id":"s1","stack_order":2}`)

	rec = do(t, h, "DELETE", "/api/stacks/s1", "")
	if rec.Code != http.StatusNoContent {
		t.Fatalf("delete status = %d", rec.Code)
	}
	blocks := decode[[]fragment.Record](t, do(t, h, "GET", "/api/blocks", ""))
	if blocks[0].StackID != nil || blocks[0].StackOrder != nil {
		t.Errorf("member not unlinked: %+v", blocks[0])
	}
}

func TestHandleCreateStack_NameRequired(t *testing.T) {
	h, _ := setupTest(t)

	rec := do(t, h, "POST", "/api/stacks", `{"name":"   "}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestHandleRenameStack_NotFound(t *testing.T) {
	h, _ := setupTest(t)

	rec := do(t, h, "PATCH", "/api/stacks/nope", `{"name":"x"}`)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

// --- tools ---

func TestHandleClassify(t *testing.T) {
	h, _ := setupTest(t)

	rec := do(t, h, "POST", "/api/classify", `{"text":"def foo(): pass"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	got := decode[classifyResponse](t, rec)
	if len(got.Tags) != 2 || got.Tags[0] != "Python" || got.Tags[1] != "Code" {
		t.Errorf("tags = %v", got.Tags)
	}
}

func TestHandlePreview(t *testing.T) {
	h, b := setupTest(t)
	seedBlock(t, b, "a", "# Title", 1)
	seedBlock(t, b, "b", "Body text", 2)

	rec := do(t, h, "POST", "/api/rack/preview", `{"ids":["a","gone","b"]}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	got := decode[previewResponse](t, rec)
	if got.Text != "# Title\n\nBody text" {
		t.Errorf("text = %q", got.Text)
	}
	if !strings.Contains(got.HTML, "<h1>Title</h1>") {
		t.Errorf("html = %q", got.HTML)
	}
}

// --- middleware ---

func TestCORS(t *testing.T) {
	h, _ := setupTest(t)

	req := httptest.NewRequest("OPTIONS", "/api/blocks", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("preflight status = %d, want 204", rec.Code)
	}
	if rec.Header().Get("Access-Control-Allow-Origin") != "http://localhost:3000" {
		t.Errorf("allow-origin = %q", rec.Header().Get("Access-Control-Allow-Origin"))
	}

	req = httptest.NewRequest("GET", "/api/health", nil)
	req.Header.Set("Origin", "http://evil.example")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Header().Get("Access-Control-Allow-Origin") != "" {
		t.Error("unlisted origin should not be allowed")
	}
}
