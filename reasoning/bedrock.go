package reasoning

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
)

// BedrockAPI is the subset of the Bedrock runtime client used by BedrockModel.
type BedrockAPI interface {
	InvokeModel(ctx context.Context, params *bedrockruntime.InvokeModelInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error)
}

// BedrockModel implements Model using Anthropic models on AWS Bedrock.
type BedrockModel struct {
	client    BedrockAPI
	modelID   string
	maxTokens int
}

// NewBedrockModel creates a Bedrock-backed model.
func NewBedrockModel(region, modelID string, maxTokens int) (*BedrockModel, error) {
	cfg, err := config.LoadDefaultConfig(context.Background(),
		config.WithRegion(region),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return NewBedrockModelWithClient(bedrockruntime.NewFromConfig(cfg), modelID, maxTokens), nil
}

// NewBedrockModelWithClient creates a model over an existing client.
func NewBedrockModelWithClient(client BedrockAPI, modelID string, maxTokens int) *BedrockModel {
	if maxTokens <= 0 {
		maxTokens = 1024
	}
	return &BedrockModel{client: client, modelID: modelID, maxTokens: maxTokens}
}

// Complete sends prompt, plus image when present, as one user message.
func (m *BedrockModel) Complete(ctx context.Context, prompt string, image []byte) (string, error) {
	content := []map[string]interface{}{}
	if len(image) > 0 {
		content = append(content, map[string]interface{}{
			"type": "image",
			"source": map[string]interface{}{
				"type":       "base64",
				"media_type": "image/jpeg",
				"data":       base64.StdEncoding.EncodeToString(image),
			},
		})
	}
	content = append(content, map[string]interface{}{
		"type": "text",
		"text": prompt,
	})

	requestBody := map[string]interface{}{
		"anthropic_version": "bedrock-2023-05-31",
		"max_tokens":        m.maxTokens,
		"messages": []map[string]interface{}{
			{
				"role":    "user",
				"content": content,
			},
		},
	}

	payloadBytes, err := json.Marshal(requestBody)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	output, err := m.client.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     aws.String(m.modelID),
		ContentType: aws.String("application/json"),
		Accept:      aws.String("application/json"),
		Body:        payloadBytes,
	})
	if err != nil {
		return "", fmt.Errorf("failed to invoke Bedrock model: %w", err)
	}

	var response struct {
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
		StopReason string `json:"stop_reason"`
	}
	if err := json.Unmarshal(output.Body, &response); err != nil {
		return "", fmt.Errorf("failed to unmarshal response: %w", err)
	}

	var text strings.Builder
	for _, c := range response.Content {
		if c.Type == "text" {
			text.WriteString(c.Text)
		}
	}
	out := strings.TrimSpace(text.String())
	if out == "" {
		return "", ErrEmptyResponse
	}
	return out, nil
}
