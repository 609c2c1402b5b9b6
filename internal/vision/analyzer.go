package vision

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"lumina/internal/llm"
	"lumina/internal/prompts"
	"lumina/internal/storage"
)

// MaxImageBytes caps the payload sent to any vision collaborator.
const MaxImageBytes = 7 * 1024 * 1024

// ErrNoImage indicates the edit or generation collaborator returned no usable
// image payload.
var ErrNoImage = errors.New("no image produced")

// Analyzer extracts a structured critique from a room photo.
type Analyzer interface {
	Analyze(ctx context.Context, image []byte, mimeType string, roomContext storage.RoomContext) (storage.RoomAnalysis, error)
}

// GeminiAnalyzer implements Analyzer on top of the shared Gemini client,
// routing its calls to a dedicated analysis model.
type GeminiAnalyzer struct {
	client llm.Client
	model  string
}

// NewGeminiAnalyzer constructs a Gemini-powered room analyzer. An empty model
// keeps the client's default.
func NewGeminiAnalyzer(client llm.Client, model string) *GeminiAnalyzer {
	return &GeminiAnalyzer{client: client, model: model}
}

// Analyze sends the photo with the analysis prompt and validates the response
// shape before constructing the domain value.
func (g *GeminiAnalyzer) Analyze(ctx context.Context, image []byte, mimeType string, roomContext storage.RoomContext) (storage.RoomAnalysis, error) {
	if g == nil || g.client == nil {
		return storage.RoomAnalysis{}, fmt.Errorf("vision: analyzer unavailable")
	}
	if len(image) == 0 {
		return storage.RoomAnalysis{}, fmt.Errorf("vision: empty image data")
	}
	if len(image) > MaxImageBytes {
		return storage.RoomAnalysis{}, fmt.Errorf("vision: image exceeds %d bytes", MaxImageBytes)
	}

	content, err := g.client.VisionCompletion(llm.WithModel(ctx, g.model), llm.VisionRequest{
		Messages: []llm.ChatMessage{
			{Role: "user", Content: prompts.BuildAnalysisPrompt(roomContext)},
		},
		Image:       image,
		ImageMIME:   DetectMime(image, mimeType),
		Temperature: 0.2,
		ForceJSON:   true,
	})
	if err != nil {
		return storage.RoomAnalysis{}, fmt.Errorf("vision: analyze request: %w", err)
	}

	return parseAnalysis(content)
}

// parseAnalysis decodes the collaborator's duck-typed JSON and checks its
// shape field by field; unchecked fields never reach the domain type.
func parseAnalysis(content string) (storage.RoomAnalysis, error) {
	var raw struct {
		RoomType              string                    `json:"room_type"`
		ArchitecturalFeatures []string                  `json:"architectural_features"`
		DesignIssues          []string                  `json:"design_issues"`
		DecorSuggestions      []string                  `json:"decor_suggestions"`
		SuggestedPrompts      []storage.SuggestedPrompt `json:"suggested_prompts"`
	}

	if err := json.Unmarshal([]byte(content), &raw); err != nil {
		start := strings.Index(content, "{")
		end := strings.LastIndex(content, "}")
		if start < 0 || end <= start {
			return storage.RoomAnalysis{}, fmt.Errorf("vision: parse analysis: %w", err)
		}
		if err := json.Unmarshal([]byte(content[start:end+1]), &raw); err != nil {
			return storage.RoomAnalysis{}, fmt.Errorf("vision: parse analysis: %w", err)
		}
	}

	analysis := storage.RoomAnalysis{
		RoomType:              strings.TrimSpace(raw.RoomType),
		ArchitecturalFeatures: cleanList(raw.ArchitecturalFeatures),
		DesignIssues:          cleanList(raw.DesignIssues),
		DecorSuggestions:      cleanList(raw.DecorSuggestions),
		SuggestedPrompts:      cleanPrompts(raw.SuggestedPrompts),
	}
	if analysis.RoomType == "" {
		analysis.RoomType = "Unknown Room"
	}

	return analysis, nil
}

func cleanList(items []string) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		if trimmed := strings.TrimSpace(item); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func cleanPrompts(items []storage.SuggestedPrompt) []storage.SuggestedPrompt {
	out := make([]storage.SuggestedPrompt, 0, len(items))
	for _, item := range items {
		item.Title = strings.TrimSpace(item.Title)
		item.Prompt = strings.TrimSpace(item.Prompt)
		if item.Title == "" || item.Prompt == "" {
			continue
		}
		out = append(out, item)
	}
	return out
}

// DetectMime sanitizes a caller-provided content type, sniffing when absent.
func DetectMime(data []byte, provided string) string {
	mime := strings.TrimSpace(provided)
	if mime == "" {
		mime = http.DetectContentType(data)
	}
	if !strings.Contains(mime, "image/") {
		return "image/jpeg"
	}
	return mime
}
