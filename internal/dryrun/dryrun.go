// Package dryrun sends a compiled rack to a model for a quick advisory
// answer. Nothing here touches session state.
package dryrun

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"google.golang.org/genai"
)

// DefaultModel is used when no model is configured.
const DefaultModel = "gemini-2.5-flash"

// Result messages.
const (
	ErrMissingKey = "API Key not found in environment."
	ErrFailed     = "Failed to generate response."
	NoResponse    = "No response generated."
)

// Result is the outcome of a dry run. Exactly one of Text or Error is
// meaningful: Error is set when the call could not be made or failed.
type Result struct {
	Text  string `json:"text"`
	Error string `json:"error,omitempty"`
}

// Runner runs a prompt against a model.
type Runner interface {
	Run(ctx context.Context, prompt string) Result
}

type generateFunc func(ctx context.Context, prompt string) (string, error)

// Gemini is a Runner backed by the Gemini API. The client is created on
// first use.
type Gemini struct {
	apiKey string
	model  string

	once     sync.Once
	generate generateFunc
	initErr  error
}

var _ Runner = (*Gemini)(nil)

// NewGemini returns a runner for model using apiKey. An empty key is
// accepted; Run then reports ErrMissingKey.
func NewGemini(apiKey, model string) *Gemini {
	if model == "" {
		model = DefaultModel
	}
	return &Gemini{apiKey: strings.TrimSpace(apiKey), model: model}
}

// Model returns the configured model name.
func (g *Gemini) Model() string { return g.model }

// Run sends prompt and returns the model's text. It never returns an error
// value; failures are reported in Result.Error.
func (g *Gemini) Run(ctx context.Context, prompt string) Result {
	if g.apiKey == "" && g.generate == nil {
		return Result{Error: ErrMissingKey}
	}

	g.once.Do(func() {
		if g.generate != nil {
			return
		}
		g.generate, g.initErr = g.newGenerate(ctx)
	})
	if g.initErr != nil {
		return Result{Error: errorText(g.initErr)}
	}

	text, err := g.generate(ctx, prompt)
	if err != nil {
		return Result{Error: errorText(err)}
	}
	if strings.TrimSpace(text) == "" {
		return Result{Text: NoResponse}
	}
	return Result{Text: text}
}

func (g *Gemini) newGenerate(ctx context.Context) (generateFunc, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  g.apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}

	// Thinking is disabled for quick feedback.
	cfg := &genai.GenerateContentConfig{
		ThinkingConfig: &genai.ThinkingConfig{ThinkingBudget: genai.Ptr[int32](0)},
	}
	return func(ctx context.Context, prompt string) (string, error) {
		resp, err := client.Models.GenerateContent(ctx, g.model, genai.Text(prompt), cfg)
		if err != nil {
			return "", err
		}
		return resp.Text(), nil
	}, nil
}

func errorText(err error) string {
	if msg := strings.TrimSpace(err.Error()); msg != "" {
		return msg
	}
	return ErrFailed
}
