package director

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"lumina/internal/llm"
	"lumina/internal/prompts"
)

// GeminiCollaborator backs the director with a Gemini chat model. The image
// attached to every turn is the original room photo so drafts stay anchored
// to the authentic state rather than to an intermediate edit.
type GeminiCollaborator struct {
	client llm.Client
}

// NewGeminiCollaborator wraps an llm.Client as the director's collaborator.
func NewGeminiCollaborator(client llm.Client) *GeminiCollaborator {
	return &GeminiCollaborator{client: client}
}

type draftPayload struct {
	Text             string   `json:"text"`
	TargetElements   []string `json:"target_elements"`
	PreserveElements []string `json:"preserve_elements"`
	RestoreElements  []string `json:"restore_elements"`
}

// Converse runs one classification round at temperature zero and parses the
// model's structured draft. A reply with no targets and no restorations is
// the conversational branch.
func (c *GeminiCollaborator) Converse(ctx context.Context, req Request) (Reply, error) {
	system := prompts.BuildDirectorSystem(req.Analysis, req.RoomContext)
	turn := prompts.BuildDirectorTurn(req.UserMessage, req.History)

	raw, err := c.client.VisionCompletion(ctx, llm.VisionRequest{
		System:      system,
		Messages:    []llm.ChatMessage{{Role: "user", Content: turn}},
		Image:       req.CurrentImage,
		ImageMIME:   req.CurrentImageMIME,
		Temperature: 0,
		ForceJSON:   true,
	})
	if err != nil {
		return Reply{}, fmt.Errorf("director: gemini converse: %w", err)
	}

	payload, err := parseDraft(raw)
	if err != nil {
		return Reply{}, fmt.Errorf("director: gemini converse: %w", err)
	}

	reply := Reply{Text: strings.TrimSpace(payload.Text)}
	if len(payload.TargetElements) > 0 || len(payload.RestoreElements) > 0 {
		reply.Draft = &Draft{
			TargetElements:   payload.TargetElements,
			PreserveElements: payload.PreserveElements,
			RestoreElements:  payload.RestoreElements,
		}
	}
	return reply, nil
}

// parseDraft decodes the model output, tolerating prose wrapped around the
// JSON object.
func parseDraft(raw string) (draftPayload, error) {
	var payload draftPayload
	trimmed := strings.TrimSpace(raw)
	if err := json.Unmarshal([]byte(trimmed), &payload); err == nil {
		return payload, nil
	}

	start := strings.Index(trimmed, "{")
	end := strings.LastIndex(trimmed, "}")
	if start >= 0 && end > start {
		if err := json.Unmarshal([]byte(trimmed[start:end+1]), &payload); err == nil {
			return payload, nil
		}
	}

	return draftPayload{}, fmt.Errorf("no parsable draft in model output")
}
