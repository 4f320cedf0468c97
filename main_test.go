package main

import (
	"context"
	"testing"

	"github.com/raine/image-analysis-app/config"
	"github.com/raine/image-analysis-app/internal/inference"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewCaptionSource(t *testing.T) {
	client := inference.NewClient("http://127.0.0.1:0", "hf_test")

	t.Run("hugging face", func(t *testing.T) {
		cfg := &config.Config{CaptionBackend: config.CaptionBackendHuggingFace}

		source, err := newCaptionSource(context.Background(), cfg, client)
		require.NoError(t, err)
		assert.IsType(t, &inference.HuggingFaceCaptioner{}, source)
	})

	t.Run("gemini", func(t *testing.T) {
		cfg := &config.Config{
			CaptionBackend: config.CaptionBackendGemini,
			GeminiAPIKey:   "gemini-test-key",
		}

		source, err := newCaptionSource(context.Background(), cfg, client)
		require.NoError(t, err)
		assert.IsType(t, &inference.GeminiCaptioner{}, source)
	})
}

func TestSetupGroups(t *testing.T) {
	tests := []struct {
		name    string
		missing []string
		want    int
	}{
		{name: "first run", missing: []string{"HF_TOKEN"}, want: 2},
		{name: "only gemini key", missing: []string{"GEMINI_API_KEY"}, want: 1},
		{name: "both", missing: []string{"HF_TOKEN", "GEMINI_API_KEY"}, want: 3},
		{name: "nothing", missing: nil, want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var answers setupAnswers
			assert.Len(t, setupGroups(tt.missing, &answers), tt.want)
		})
	}
}

func TestSetupAnswers_ValuesSkipsEmpty(t *testing.T) {
	answers := setupAnswers{geminiKey: "gemini-key", adminID: "42"}

	assert.Equal(t, map[string]string{
		"GEMINI_API_KEY":    "gemini-key",
		"ADMIN_TELEGRAM_ID": "42",
	}, answers.values())
}
