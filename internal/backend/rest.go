package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/hpungsan/stream/internal/errors"
	"github.com/hpungsan/stream/internal/fragment"
)

// REST is a Backend that talks to a Stream API server (see internal/api).
type REST struct {
	base   string
	client *http.Client
}

var _ Backend = (*REST)(nil)

// NewREST returns a client for the API rooted at baseURL
// (e.g. "http://localhost:8000"). A nil client uses http.DefaultClient.
func NewREST(baseURL string, client *http.Client) *REST {
	if client == nil {
		client = http.DefaultClient
	}
	return &REST{base: strings.TrimRight(baseURL, "/") + "/api", client: client}
}

// apiError mirrors the server's error envelope.
type apiError struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
		Status  int    `json:"status"`
	} `json:"error"`
}

func (c *REST) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return errors.NewInternal(err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, reader)
	if err != nil {
		return errors.NewInternal(err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return errors.NewConnectivity(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return decodeError(resp)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.NewInternal(fmt.Errorf("decode %s %s: %w", method, path, err))
	}
	return nil
}

func decodeError(resp *http.Response) error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	var env apiError
	if json.Unmarshal(data, &env) == nil && env.Error.Code != "" {
		return &errors.StreamError{
			Code:    errors.ErrorCode(env.Error.Code),
			Status:  resp.StatusCode,
			Message: env.Error.Message,
		}
	}
	msg := strings.TrimSpace(string(data))
	if msg == "" {
		msg = resp.Status
	}
	switch resp.StatusCode {
	case http.StatusNotFound:
		return &errors.StreamError{Code: errors.ErrNotFound, Status: 404, Message: msg}
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return errors.NewInvalidRequest(msg)
	default:
		return &errors.StreamError{Code: errors.ErrPersistence, Status: resp.StatusCode, Message: msg}
	}
}

func (c *REST) ListFragments(ctx context.Context) ([]fragment.Fragment, error) {
	var records []fragment.Record
	if err := c.do(ctx, http.MethodGet, "/blocks", nil, &records); err != nil {
		return nil, err
	}
	out := make([]fragment.Fragment, len(records))
	for i := range records {
		out[i] = records[i].ToFragment()
	}
	return out, nil
}

func (c *REST) CreateFragment(ctx context.Context, f fragment.Fragment) error {
	return c.do(ctx, http.MethodPost, "/blocks", fragment.ToRecord(f), nil)
}

func (c *REST) UpdateFragment(ctx context.Context, id string, p fragment.Patch) error {
	return c.do(ctx, http.MethodPatch, "/blocks/"+url.PathEscape(id), p, nil)
}

func (c *REST) DeleteFragment(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/blocks/"+url.PathEscape(id), nil, nil)
}

func (c *REST) ListTagColors(ctx context.Context) ([]fragment.TagColor, error) {
	var out []fragment.TagColor
	if err := c.do(ctx, http.MethodGet, "/tag-colors", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *REST) UpsertTagColor(ctx context.Context, tc fragment.TagColor) error {
	return c.do(ctx, http.MethodPut, "/tag-colors/"+url.PathEscape(tc.Name), tc, nil)
}

func (c *REST) DeleteTagColor(ctx context.Context, name string) error {
	return c.do(ctx, http.MethodDelete, "/tag-colors/"+url.PathEscape(name), nil, nil)
}

func (c *REST) ListStacks(ctx context.Context) ([]fragment.Stack, error) {
	var out []fragment.Stack
	if err := c.do(ctx, http.MethodGet, "/stacks", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *REST) CreateStack(ctx context.Context, s fragment.Stack) error {
	return c.do(ctx, http.MethodPost, "/stacks", s, nil)
}

func (c *REST) RenameStack(ctx context.Context, id, name string) error {
	return c.do(ctx, http.MethodPatch, "/stacks/"+url.PathEscape(id), map[string]string{"name": name}, nil)
}

func (c *REST) DeleteStack(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/stacks/"+url.PathEscape(id), nil, nil)
}

func (c *REST) Ping(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/health", nil, nil)
}

// Close is a no-op; the http.Client is owned by the caller.
func (c *REST) Close() error { return nil }
