package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type capturedRequest struct {
	Path string
	Body struct {
		Contents []struct {
			Role  string `json:"role"`
			Parts []struct {
				Text       string `json:"text"`
				InlineData *struct {
					MimeType string `json:"mime_type"`
					Data     string `json:"data"`
				} `json:"inline_data"`
			} `json:"parts"`
		} `json:"contents"`
		SystemInstruction *struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"systemInstruction"`
		GenerationConfig struct {
			Temperature      float64 `json:"temperature"`
			ResponseMimeType string  `json:"responseMimeType"`
		} `json:"generationConfig"`
	}
}

func newCapturingClient(t *testing.T, reply string, captured *capturedRequest) *GeminiClient {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured.Path = r.URL.Path
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured.Body))
		fmt.Fprintf(w, `{"candidates":[{"content":{"parts":[{"text":%q}]}}]}`, reply)
	}))
	t.Cleanup(srv.Close)
	return NewGeminiClient("test-key", "gemini-2.5-flash", 5*time.Second, nil).WithBaseURL(srv.URL)
}

func TestVisionCompletionMapsRoles(t *testing.T) {
	var captured capturedRequest
	client := newCapturingClient(t, "Sounds lovely.", &captured)

	text, err := client.VisionCompletion(context.Background(), VisionRequest{
		Messages: []ChatMessage{
			{Role: "system", Content: "You are an interior designer."},
			{Role: "user", Content: "What about a blue rug?"},
			{Role: "assistant", Content: "Blue works with oak."},
		},
		Temperature: 0.4,
	})
	require.NoError(t, err)
	assert.Equal(t, "Sounds lovely.", text)

	require.NotNil(t, captured.Body.SystemInstruction)
	assert.Equal(t, "You are an interior designer.", captured.Body.SystemInstruction.Parts[0].Text)
	require.Len(t, captured.Body.Contents, 2)
	assert.Equal(t, "user", captured.Body.Contents[0].Role)
	assert.Equal(t, "model", captured.Body.Contents[1].Role)
	assert.InDelta(t, 0.4, captured.Body.GenerationConfig.Temperature, 0.001)
}

func TestVisionCompletionAttachesImageToLastTurn(t *testing.T) {
	var captured capturedRequest
	client := newCapturingClient(t, `{"room_type":"Office"}`, &captured)

	_, err := client.VisionCompletion(context.Background(), VisionRequest{
		System:    "Analyze rooms.",
		Messages:  []ChatMessage{{Role: "user", Content: "describe this room"}},
		Image:     []byte("photo-bytes"),
		ImageMIME: "image/png",
		ForceJSON: true,
	})
	require.NoError(t, err)

	require.Len(t, captured.Body.Contents, 1)
	parts := captured.Body.Contents[0].Parts
	require.Len(t, parts, 2)
	require.NotNil(t, parts[0].InlineData)
	assert.Equal(t, "image/png", parts[0].InlineData.MimeType)
	assert.Equal(t, "describe this room", parts[1].Text)
	assert.Equal(t, "application/json", captured.Body.GenerationConfig.ResponseMimeType)
}

func TestCompleteUsesModelOverrideFromContext(t *testing.T) {
	var captured capturedRequest
	client := newCapturingClient(t, "ok", &captured)

	ctx := WithModel(context.Background(), "models/gemini-2.5-pro")
	_, err := client.VisionCompletion(ctx, VisionRequest{
		Messages: []ChatMessage{{Role: "user", Content: "hi"}},
	})
	require.NoError(t, err)
	assert.Contains(t, captured.Path, "/models/gemini-2.5-pro:generateContent")
}

func TestWithModelKeepsClientDefaultWhenEmpty(t *testing.T) {
	var captured capturedRequest
	client := newCapturingClient(t, "ok", &captured)

	ctx := WithModel(context.Background(), "  ")
	_, err := client.VisionCompletion(ctx, VisionRequest{
		Messages: []ChatMessage{{Role: "user", Content: "hi"}},
	})
	require.NoError(t, err)
	assert.Contains(t, captured.Path, "/models/gemini-2.5-flash:generateContent")
}

func TestCompleteClassifiesQuotaExhaustion(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{name: "http 429", status: http.StatusTooManyRequests, body: `{"error":{"message":"slow down"}}`},
		{name: "resource exhausted status", status: http.StatusBadRequest, body: `{"error":{"message":"quota","status":"RESOURCE_EXHAUSTED"}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				fmt.Fprint(w, tt.body)
			}))
			t.Cleanup(srv.Close)

			client := NewGeminiClient("test-key", "gemini-2.5-flash", 5*time.Second, nil).WithBaseURL(srv.URL)
			_, err := client.VisionCompletion(context.Background(), VisionRequest{
				Messages: []ChatMessage{{Role: "user", Content: "hi"}},
			})
			require.ErrorIs(t, err, ErrQuotaExhausted)
		})
	}
}

func TestCompleteRequiresCredentials(t *testing.T) {
	client := NewGeminiClient("", "gemini-2.5-flash", 5*time.Second, nil)
	_, err := client.VisionCompletion(context.Background(), VisionRequest{
		Messages: []ChatMessage{{Role: "user", Content: "hi"}},
	})
	require.Error(t, err)
}

func TestCompleteRequiresMessages(t *testing.T) {
	client := NewGeminiClient("test-key", "gemini-2.5-flash", 5*time.Second, nil)
	_, err := client.VisionCompletion(context.Background(), VisionRequest{})
	require.Error(t, err)
}
