package studio

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"lumina/internal/events"
	"lumina/internal/llm"
	"lumina/internal/media"
	"lumina/internal/prompts"
	"lumina/internal/session"
	"lumina/internal/storage"
	"lumina/internal/vision"
)

const (
	maxUploadBytes = 10 * 1024 * 1024 // 10 MB
)

// Handler bundles dependencies for the design studio endpoints.
type Handler struct {
	Store     storage.Store
	Hub       *session.Hub
	Broker    *events.Broker
	Generator vision.Generator
	Uploader  media.Uploader
	Logger    zerolog.Logger
}

// CreateProject handles POST /api/v1/projects. It accepts a multipart room
// photo plus the declared room context, runs the structured critique and
// returns the project in the selection phase.
func (h Handler) CreateProject(w http.ResponseWriter, r *http.Request) {
	image, mimeType, roomContext, err := parseUploadRequest(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	originalURL := h.storeImage(r.Context(), image, mimeType, media.KindRoomPhoto)

	project, err := h.Store.CreateProject(r.Context(), storage.Project{
		RoomContext:      roomContext,
		OriginalImageURL: originalURL,
	})
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	sess := h.Hub.GetOrCreate(project.ID)
	analysis, err := sess.Analyze(r.Context(), image, mimeType, roomContext)
	if err != nil {
		// The session returned to idle; the empty project record goes with it.
		if delErr := h.Store.DeleteProject(r.Context(), project.ID); delErr != nil {
			h.Logger.Error().Err(delErr).Str("project_id", project.ID).Msg("cleanup failed project")
		}
		h.Hub.Remove(project.ID)
		h.writeFailure(w, "could not analyze room photo", err)
		return
	}
	project.Analysis = analysis

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"project":  project,
		"analysis": analysis,
		"state":    sess.State(),
	})
}

// ListProjects handles GET /api/v1/projects.
func (h Handler) ListProjects(w http.ResponseWriter, r *http.Request) {
	projects, err := h.Store.ListProjects(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(projects)
}

// GetProject handles GET /api/v1/projects/{id}.
func (h Handler) GetProject(w http.ResponseWriter, r *http.Request) {
	project, err := h.Store.GetProject(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			http.Error(w, "project not found", http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	state := session.StateIdle
	if sess, ok := h.Hub.Get(project.ID); ok {
		state = sess.State()
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"project": project,
		"state":   state,
	})
}

// DeleteProject handles DELETE /api/v1/projects/{id}.
func (h Handler) DeleteProject(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.Store.DeleteProject(r.Context(), id); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			http.Error(w, "project not found", http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	h.Hub.Remove(id)
	w.WriteHeader(http.StatusNoContent)
}

// RedesignRequest selects what to render: a style preset, one of the
// analysis suggestions, or a free-form prompt. Exactly one must be set.
type RedesignRequest struct {
	PresetID        string `json:"preset_id,omitempty"`
	SuggestionIndex *int   `json:"suggestion_index,omitempty"`
	Prompt          string `json:"prompt,omitempty"`
}

// Redesign handles POST /api/v1/projects/{id}/redesign.
func (h Handler) Redesign(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.liveSession(w, r)
	if !ok {
		return
	}

	var req RedesignRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	instruction, label, err := h.resolveInstruction(req, sess)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	result, err := sess.Redesign(r.Context(), instruction, label)
	if err != nil {
		h.writeFailure(w, "could not render redesign", err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(result)
}

// ChatRequest carries one user message in the refinement conversation.
type ChatRequest struct {
	Message string `json:"message"`
}

// Chat handles POST /api/v1/projects/{id}/chat.
func (h Handler) Chat(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.liveSession(w, r)
	if !ok {
		return
	}

	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		http.Error(w, "message is required", http.StatusBadRequest)
		return
	}

	reply, err := sess.Chat(r.Context(), req.Message)
	if err != nil && reply.Text == "" {
		h.writeFailure(w, "could not process message", err)
		return
	}
	if err != nil {
		// A degraded round still carries a usable conversational reply; the
		// retryable cause travels in the status code.
		h.Logger.Warn().Err(err).Msg("chat round degraded")
		w.Header().Set("Content-Type", "application/json")
		if errors.Is(err, llm.ErrQuotaExhausted) {
			w.Header().Set("Retry-After", "30")
			w.WriteHeader(http.StatusTooManyRequests)
		} else {
			w.WriteHeader(http.StatusBadGateway)
		}
		_ = json.NewEncoder(w).Encode(reply)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(reply)
}

// Reset handles POST /api/v1/projects/{id}/reset.
func (h Handler) Reset(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.liveSession(w, r)
	if !ok {
		return
	}
	sess.Reset()

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"state": sess.State()})
}

// Presets handles GET /api/v1/presets.
func (h Handler) Presets(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(prompts.StylePresets)
}

// GenerateRequest carries a free-form text-to-image prompt.
type GenerateRequest struct {
	Prompt string `json:"prompt"`
}

// Generate handles POST /api/v1/generate: a one-shot text-to-image render
// with no session attached.
func (h Handler) Generate(w http.ResponseWriter, r *http.Request) {
	if h.Generator == nil {
		http.Error(w, "image generation not configured", http.StatusServiceUnavailable)
		return
	}

	var req GenerateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.Prompt) == "" {
		http.Error(w, "prompt is required", http.StatusBadRequest)
		return
	}

	image, mimeType, err := h.Generator.Generate(r.Context(), req.Prompt)
	if err != nil {
		h.writeFailure(w, "could not generate image", err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{
		"image_url": h.storeImage(r.Context(), image, mimeType, media.KindRender),
	})
}

// StreamEvents handles GET /api/v1/events: session state transitions over SSE.
func (h Handler) StreamEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ch := h.Broker.Subscribe()
	defer h.Broker.Unsubscribe(ch)

	for {
		select {
		case <-r.Context().Done():
			return
		case evt := <-ch:
			payload, err := json.Marshal(evt)
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "data: %s\n\n", payload)
			flusher.Flush()
		}
	}
}

// liveSession resolves the project's session, writing the error response on
// failure.
func (h Handler) liveSession(w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	id := chi.URLParam(r, "id")
	if _, err := h.Store.GetProject(r.Context(), id); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			http.Error(w, "project not found", http.StatusNotFound)
		} else {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
		return nil, false
	}

	sess, ok := h.Hub.Get(id)
	if !ok {
		http.Error(w, "no live session for project; upload the room photo again", http.StatusConflict)
		return nil, false
	}
	return sess, true
}

func (h Handler) resolveInstruction(req RedesignRequest, sess *session.Session) (instruction, label string, err error) {
	set := 0
	if strings.TrimSpace(req.PresetID) != "" {
		set++
	}
	if req.SuggestionIndex != nil {
		set++
	}
	if strings.TrimSpace(req.Prompt) != "" {
		set++
	}
	if set != 1 {
		return "", "", fmt.Errorf("exactly one of preset_id, suggestion_index or prompt is required")
	}

	switch {
	case req.PresetID != "":
		preset, ok := prompts.PresetByID(req.PresetID)
		if !ok {
			return "", "", fmt.Errorf("unknown preset %q", req.PresetID)
		}
		return preset.Prompt, preset.Name, nil
	case req.SuggestionIndex != nil:
		suggestions := sess.Context().Analysis().SuggestedPrompts
		i := *req.SuggestionIndex
		if i < 0 || i >= len(suggestions) {
			return "", "", fmt.Errorf("suggestion index out of range")
		}
		return suggestions[i].Prompt, suggestions[i].Title, nil
	default:
		return req.Prompt, req.Prompt, nil
	}
}

// writeFailure maps pipeline errors to status codes: exhausted quota is
// retryable, busy sessions conflict, everything else from a collaborator is
// a bad gateway.
func (h Handler) writeFailure(w http.ResponseWriter, message string, err error) {
	switch {
	case errors.Is(err, llm.ErrQuotaExhausted):
		w.Header().Set("Retry-After", "30")
		http.Error(w, message+": model quota exhausted, retry shortly", http.StatusTooManyRequests)
	case errors.Is(err, session.ErrBusy):
		http.Error(w, "a render is already in progress", http.StatusConflict)
	case errors.Is(err, session.ErrInvalidState):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, session.ErrCanceled):
		http.Error(w, "session was reset", http.StatusConflict)
	default:
		h.Logger.Error().Err(err).Msg(message)
		http.Error(w, message, http.StatusBadGateway)
	}
}

// storeImage uploads to object storage when configured, falling back to an
// inline data URI so responses always carry an addressable image.
func (h Handler) storeImage(ctx context.Context, data []byte, mimeType string, kind media.Kind) string {
	if h.Uploader != nil {
		res, err := h.Uploader.Upload(ctx, media.UploadInput{
			Filename:    string(kind) + extensionFor(mimeType),
			ContentType: mimeType,
			Body:        bytes.NewReader(data),
			Size:        int64(len(data)),
			Kind:        kind,
		})
		if err == nil && res.URL != "" {
			return res.URL
		}
		if err != nil && !errors.Is(err, media.ErrUploaderDisabled) {
			h.Logger.Warn().Err(err).Msg("media upload failed, inlining image")
		}
	}
	return media.DataURL(data, mimeType)
}

func extensionFor(mimeType string) string {
	switch mimeType {
	case "image/jpeg":
		return ".jpg"
	case "image/webp":
		return ".webp"
	default:
		return ".png"
	}
}

// parseUploadRequest extracts the room photo and declared context from a
// multipart upload.
func parseUploadRequest(r *http.Request) ([]byte, string, storage.RoomContext, error) {
	const maxFormMemory = maxUploadBytes + (1 << 20)
	if err := r.ParseMultipartForm(maxFormMemory); err != nil {
		return nil, "", "", fmt.Errorf("invalid multipart payload: %w", err)
	}

	roomContext, err := storage.ParseRoomContext(r.FormValue("room_context"))
	if err != nil {
		return nil, "", "", err
	}

	file, header, err := r.FormFile("photo")
	if err != nil {
		return nil, "", "", fmt.Errorf("room photo is required")
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, maxUploadBytes+1))
	if err != nil {
		return nil, "", "", fmt.Errorf("read image: %w", err)
	}
	if len(data) == 0 {
		return nil, "", "", fmt.Errorf("room photo is required")
	}
	if len(data) > maxUploadBytes {
		return nil, "", "", fmt.Errorf("image too large (max %d MB)", maxUploadBytes/(1024*1024))
	}

	mimeType := vision.DetectMime(data, header.Header.Get("Content-Type"))
	return data, mimeType, roomContext, nil
}
