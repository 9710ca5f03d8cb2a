// Package clients holds the external service clients. All of them are
// explicitly constructed and injected; nothing here is a process-wide
// singleton.
package clients

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"github.com/rs/zerolog"
	"google.golang.org/api/option"
)

// GeminiClient wraps the two generative models the pipeline uses: a fast
// one for boundary detection and a stronger one for deep extraction.
type GeminiClient struct {
	boundary   *GeminiModel
	extraction *GeminiModel
	sdk        *genai.Client
}

// GeminiModel is one bound generative model.
type GeminiModel struct {
	model *genai.GenerativeModel
	name  string
	log   zerolog.Logger
}

// NewGeminiClient creates both models. The response MIME type is pinned to
// JSON; responses still arrive fenced or prose-wrapped often enough that
// downstream parsing cannot assume clean JSON.
func NewGeminiClient(ctx context.Context, apiKey, boundaryModelName, extractionModelName string, log zerolog.Logger) (*GeminiClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini api key must not be empty")
	}

	sdk, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}

	mk := func(name string) *GeminiModel {
		m := sdk.GenerativeModel(name)
		m.GenerationConfig.ResponseMIMEType = "application/json"
		return &GeminiModel{
			model: m,
			name:  name,
			log:   log.With().Str("component", "gemini").Str("model", name).Logger(),
		}
	}

	return &GeminiClient{
		boundary:   mk(boundaryModelName),
		extraction: mk(extractionModelName),
		sdk:        sdk,
	}, nil
}

// Boundary returns the phase-1 model.
func (c *GeminiClient) Boundary() *GeminiModel {
	return c.boundary
}

// Extraction returns the phase-2 model.
func (c *GeminiClient) Extraction() *GeminiModel {
	return c.extraction
}

// Close releases the underlying SDK client.
func (c *GeminiClient) Close() error {
	return c.sdk.Close()
}

// GenerateContent sends a prompt plus a video blob and returns the model's
// raw text response.
func (m *GeminiModel) GenerateContent(ctx context.Context, video []byte, mimeType, promptText string) (string, error) {
	if len(video) == 0 {
		return "", fmt.Errorf("video payload must not be empty")
	}
	if strings.TrimSpace(promptText) == "" {
		return "", fmt.Errorf("prompt must not be empty")
	}
	if mimeType == "" {
		mimeType = "video/mp4"
	}

	m.log.Debug().Int("videoBytes", len(video)).Msg("sending generate request")

	resp, err := m.model.GenerateContent(ctx,
		genai.Text(promptText),
		genai.Blob{MIMEType: mimeType, Data: video},
	)
	if err != nil {
		return "", fmt.Errorf("gemini %s GenerateContent failed: %w", m.name, err)
	}
	if resp == nil || len(resp.Candidates) == 0 {
		return "", fmt.Errorf("gemini %s returned no candidates", m.name)
	}

	candidate := resp.Candidates[0]
	if candidate.Content == nil || len(candidate.Content.Parts) == 0 {
		if candidate.FinishReason != genai.FinishReasonStop && candidate.FinishReason != genai.FinishReasonUnspecified {
			return "", fmt.Errorf("gemini %s response blocked: %s", m.name, candidate.FinishReason)
		}
		return "", fmt.Errorf("gemini %s returned empty content (finish reason %s)", m.name, candidate.FinishReason)
	}

	var sb strings.Builder
	for _, part := range candidate.Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			sb.WriteString(string(txt))
		} else {
			m.log.Warn().Str("type", fmt.Sprintf("%T", part)).Msg("unexpected response part type")
		}
	}

	out := sb.String()
	if strings.TrimSpace(out) == "" {
		return "", fmt.Errorf("gemini %s returned empty text", m.name)
	}
	return out, nil
}
