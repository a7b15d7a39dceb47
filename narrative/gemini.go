package narrative

import (
	"context"
	"fmt"

	"google.golang.org/genai"
)

// DefaultGeminiModel is used when no model is configured.
const DefaultGeminiModel = "gemini-2.0-flash"

// GeminiBackend generates text with Google's Gemini API.
type GeminiBackend struct {
	client *genai.Client
	model  string
}

// GeminiOptions configure NewGeminiBackend.
type GeminiOptions struct {
	APIKey string
	Model  string
	// BaseURL overrides the API endpoint (proxies, tests).
	BaseURL string
}

// NewGeminiBackend creates a Gemini-backed text generator.
func NewGeminiBackend(ctx context.Context, opts GeminiOptions) (*GeminiBackend, error) {
	if opts.APIKey == "" {
		return nil, fmt.Errorf("gemini API key is required")
	}
	if opts.Model == "" {
		opts.Model = DefaultGeminiModel
	}
	cc := &genai.ClientConfig{
		APIKey:  opts.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if opts.BaseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: opts.BaseURL}
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}
	return &GeminiBackend{client: client, model: opts.Model}, nil
}

// Generate sends prompt as a single user turn and returns the response text.
func (b *GeminiBackend) Generate(ctx context.Context, prompt string) (string, error) {
	resp, err := b.client.Models.GenerateContent(ctx, b.model, genai.Text(prompt), nil)
	if err != nil {
		return "", fmt.Errorf("gemini generate failed: %w", err)
	}
	text := resp.Text()
	if text == "" {
		return "", ErrEmptyResponse
	}
	return text, nil
}

// Name returns the backend name.
func (b *GeminiBackend) Name() string {
	return fmt.Sprintf("gemini:%s", b.model)
}
