package vision

import (
	"context"
	"fmt"
	"strings"
	"time"

	"google.golang.org/genai"

	"lumina/internal/llm"
)

// Editor applies a fully composed edit instruction to an input image and
// returns the edited image, or fails. It never retries on its own.
type Editor interface {
	Edit(ctx context.Context, image []byte, mimeType, instruction string) ([]byte, string, error)
}

// GeminiEditor renders in-place edits via Gemini image outputs.
type GeminiEditor struct {
	apiKey  string
	model   string
	timeout time.Duration
}

const defaultEditModel = "gemini-2.5-flash-image"

// NewGeminiEditor constructs an editor able to request inline image responses.
func NewGeminiEditor(apiKey, model string, timeout time.Duration) *GeminiEditor {
	if strings.TrimSpace(model) == "" {
		model = defaultEditModel
	}
	model = strings.TrimPrefix(strings.TrimSpace(model), "models/")
	if timeout <= 0 {
		timeout = 90 * time.Second
	}
	return &GeminiEditor{
		apiKey:  apiKey,
		model:   model,
		timeout: timeout,
	}
}

// Edit sends the input image plus the instruction and returns the first
// inline image candidate.
func (g *GeminiEditor) Edit(ctx context.Context, image []byte, mimeType, instruction string) ([]byte, string, error) {
	if g == nil || strings.TrimSpace(g.apiKey) == "" {
		return nil, "", fmt.Errorf("vision: editor unavailable")
	}
	if len(image) == 0 {
		return nil, "", fmt.Errorf("vision: empty input image")
	}
	if len(image) > MaxImageBytes {
		return nil, "", fmt.Errorf("vision: image exceeds %d bytes", MaxImageBytes)
	}
	if strings.TrimSpace(instruction) == "" {
		return nil, "", fmt.Errorf("vision: empty edit instruction")
	}

	childCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	client, err := genai.NewClient(childCtx, &genai.ClientConfig{
		APIKey: g.apiKey,
	})
	if err != nil {
		return nil, "", fmt.Errorf("vision: create genai client: %w", err)
	}

	contents := []*genai.Content{
		genai.NewContentFromParts([]*genai.Part{
			genai.NewPartFromBytes(image, DetectMime(image, mimeType)),
			genai.NewPartFromText(instruction),
		}, genai.RoleUser),
	}

	resp, err := client.Models.GenerateContent(childCtx, g.model, contents, nil)
	if err != nil {
		return nil, "", fmt.Errorf("vision: edit request: %w", classifyQuota(err))
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return nil, "", fmt.Errorf("vision: edit: %w", ErrNoImage)
	}

	for _, part := range resp.Candidates[0].Content.Parts {
		if part.InlineData == nil || len(part.InlineData.Data) == 0 {
			continue
		}
		mime := part.InlineData.MIMEType
		if strings.TrimSpace(mime) == "" {
			mime = "image/png"
		}
		return part.InlineData.Data, mime, nil
	}
	return nil, "", fmt.Errorf("vision: edit: %w", ErrNoImage)
}

// classifyQuota maps upstream rate-limit signals onto the shared sentinel so
// callers can surface a distinct retry-after condition.
func classifyQuota(err error) error {
	if err == nil {
		return nil
	}
	msg := err.Error()
	if strings.Contains(msg, "429") || strings.Contains(msg, "RESOURCE_EXHAUSTED") {
		return fmt.Errorf("%v: %w", err, llm.ErrQuotaExhausted)
	}
	return err
}
