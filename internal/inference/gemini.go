package inference

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"
	"google.golang.org/genai"
)

// DefaultGeminiModel is used when the Gemini caption backend is selected without a model.
const DefaultGeminiModel = "gemini-2.5-flash-lite"

const geminiCaptionPrompt = `Write a short, one-sentence caption describing this image.
Respond ONLY with the caption text, no quotes or other formatting.`

// GeminiCaptioner captions images with Google's Gemini API. It is an alternative caption
// source to the hosted image-to-text model and runs under the same retry policy.
type GeminiCaptioner struct {
	client *genai.Client
	model  string
}

// NewGeminiCaptioner creates a Gemini caption source authenticated with apiKey.
func NewGeminiCaptioner(ctx context.Context, apiKey, model string) (*GeminiCaptioner, error) {
	return newGeminiCaptioner(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	}, model)
}

func newGeminiCaptioner(ctx context.Context, cfg *genai.ClientConfig, model string) (*GeminiCaptioner, error) {
	if model == "" {
		model = DefaultGeminiModel
	}
	client, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	return &GeminiCaptioner{client: client, model: model}, nil
}

// CaptionAttempt asks Gemini for a caption once. API errors are treated as retryable,
// an empty answer as terminal.
func (g *GeminiCaptioner) CaptionAttempt(ctx context.Context, imageData []byte) AttemptResult {
	parts := []*genai.Part{
		genai.NewPartFromText(geminiCaptionPrompt),
		{InlineData: &genai.Blob{Data: imageData, MIMEType: http.DetectContentType(imageData)}},
	}
	contents := []*genai.Content{
		genai.NewContentFromParts(parts, genai.RoleUser),
	}

	result, err := g.client.Models.GenerateContent(ctx, g.model, contents, nil)
	if err != nil {
		return AttemptResult{
			Err:       &RemoteServiceError{Endpoint: g.model, Message: "generate content failed", Err: err},
			Retryable: ctx.Err() == nil,
		}
	}

	text := strings.TrimSpace(result.Text())
	if text == "" {
		return AttemptResult{Err: &RemoteServiceError{Endpoint: g.model, Message: "empty caption"}}
	}

	if result.UsageMetadata != nil {
		log.Debug().
			Int32("inputTokens", result.UsageMetadata.PromptTokenCount).
			Int32("outputTokens", result.UsageMetadata.CandidatesTokenCount).
			Msg("gemini caption usage")
	}

	return AttemptResult{Text: text}
}
