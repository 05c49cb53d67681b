// Package generator produces landing page content with Gemini.
package generator

import (
	"context"
	"errors"
	"fmt"

	"pagedraft/internal/document"
	"pagedraft/internal/regen"

	"google.golang.org/genai"
)

// ErrEmptyResponse is returned when the model answers with no text.
var ErrEmptyResponse = errors.New("generator: empty model response")

// Gemini implements regen.Generator with Gemini text generation.
type Gemini struct {
	client *genai.Client
	model  string
}

var _ regen.Generator = (*Gemini)(nil)

func NewGemini(ctx context.Context, apiKey, model string) (*Gemini, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}
	return &Gemini{client: client, model: model}, nil
}

// Generate asks the model for a complete page written for prompt. The
// existing page is sent along so the model keeps its style and structure.
func (g *Gemini) Generate(ctx context.Context, prompt string, existing document.Page) (regen.Result, error) {
	instructions, err := BuildPrompt(prompt, existing)
	if err != nil {
		return regen.Result{}, err
	}
	resp, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(instructions), nil)
	if err != nil {
		return regen.Result{}, fmt.Errorf("generate content: %w", err)
	}
	text := resp.Text()
	if text == "" {
		return regen.Result{}, ErrEmptyResponse
	}
	return ParseResult(text, existing)
}
