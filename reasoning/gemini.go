package reasoning

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

// GeminiModel implements Model with the Google GenAI SDK.
type GeminiModel struct {
	client    *genai.Client
	model     string
	maxTokens int32
}

// NewGeminiModel creates a Gemini-backed model.
func NewGeminiModel(ctx context.Context, apiKey, model string, maxTokens int) (*GeminiModel, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("GenAI API key is required")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}
	return NewGeminiModelWithClient(client, model, maxTokens), nil
}

// NewGeminiModelWithClient creates a model over an existing client.
func NewGeminiModelWithClient(client *genai.Client, model string, maxTokens int) *GeminiModel {
	if model == "" {
		model = "gemini-2.5-flash"
	}
	if maxTokens <= 0 {
		maxTokens = 1024
	}
	return &GeminiModel{client: client, model: model, maxTokens: int32(maxTokens)}
}

// Complete requests a JSON response for prompt and the optional screenshot.
func (m *GeminiModel) Complete(ctx context.Context, prompt string, image []byte) (string, error) {
	parts := []*genai.Part{genai.NewPartFromText(prompt)}
	if len(image) > 0 {
		parts = append(parts, genai.NewPartFromBytes(image, "image/jpeg"))
	}
	contents := []*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)}

	resp, err := m.client.Models.GenerateContent(ctx, m.model, contents, &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
		MaxOutputTokens:  m.maxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("failed to generate content: %w", err)
	}
	out := strings.TrimSpace(resp.Text())
	if out == "" {
		return "", ErrEmptyResponse
	}
	return out, nil
}
