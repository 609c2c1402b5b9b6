package studio_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lumina/internal/director"
	"lumina/internal/events"
	"lumina/internal/llm"
	"lumina/internal/media"
	"lumina/internal/server"
	"lumina/internal/session"
	"lumina/internal/storage"
	"lumina/internal/studio"
)

type fakeAnalyzer struct{ err error }

func (f *fakeAnalyzer) Analyze(_ context.Context, _ []byte, _ string, _ storage.RoomContext) (storage.RoomAnalysis, error) {
	if f.err != nil {
		return storage.RoomAnalysis{}, f.err
	}
	return storage.RoomAnalysis{
		RoomType:              "Living Room",
		ArchitecturalFeatures: []string{"Herringbone oak flooring"},
		SuggestedPrompts: []storage.SuggestedPrompt{
			{Title: "Cozy refresh", Prompt: "Add warm textiles and layered lighting"},
		},
	}, nil
}

type fakeEditor struct{ err error }

func (f *fakeEditor) Edit(_ context.Context, _ []byte, _ string, _ string) ([]byte, string, error) {
	if f.err != nil {
		return nil, "", f.err
	}
	return []byte("rendered-image"), "image/png", nil
}

type fakeGenerator struct{ err error }

func (f *fakeGenerator) Generate(_ context.Context, _ string) ([]byte, string, error) {
	if f.err != nil {
		return nil, "", f.err
	}
	return []byte("generated-image"), "image/png", nil
}

type scriptedCollaborator struct {
	reply director.Reply
	err   error
}

func (s *scriptedCollaborator) Converse(_ context.Context, _ director.Request) (director.Reply, error) {
	return s.reply, s.err
}

type testEnv struct {
	server *httptest.Server
	store  storage.Store
	hub    *session.Hub
}

func newTestEnv(t *testing.T, analyzer *fakeAnalyzer, editor *fakeEditor, collab director.Collaborator) *testEnv {
	t.Helper()
	store := storage.NewInMemoryStore()
	broker := events.NewBroker()
	hub := session.NewHub(session.Deps{
		Analyzer: analyzer,
		Editor:   editor,
		Director: director.New(collab),
		Store:    store,
		Uploader: media.Disabled(),
		Broker:   broker,
		Logger:   zerolog.Nop(),
	})

	handler := studio.Handler{
		Store:     store,
		Hub:       hub,
		Broker:    broker,
		Generator: &fakeGenerator{},
		Uploader:  media.Disabled(),
		Logger:    zerolog.Nop(),
	}

	srv := httptest.NewServer(server.New("0", handler, nil).Handler)
	t.Cleanup(srv.Close)
	return &testEnv{server: srv, store: store, hub: hub}
}

func multipartUpload(t *testing.T, roomContext string) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("photo", "room.jpg")
	require.NoError(t, err)
	_, err = part.Write([]byte("fake-jpeg-bytes"))
	require.NoError(t, err)
	if roomContext != "" {
		require.NoError(t, writer.WriteField("room_context", roomContext))
	}
	require.NoError(t, writer.Close())
	return body, writer.FormDataContentType()
}

func (e *testEnv) createProject(t *testing.T) string {
	t.Helper()
	body, contentType := multipartUpload(t, "Residential")
	resp, err := http.Post(e.server.URL+"/api/v1/projects/", contentType, body)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var payload struct {
		Project storage.Project `json:"project"`
		State   string          `json:"state"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&payload))
	require.NotEmpty(t, payload.Project.ID)
	return payload.Project.ID
}

func postJSON(t *testing.T, url string, payload any) *http.Response {
	t.Helper()
	body, err := json.Marshal(payload)
	require.NoError(t, err)
	resp, err := http.Post(url, "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	return resp
}

func TestCreateProjectRunsAnalysis(t *testing.T) {
	env := newTestEnv(t, &fakeAnalyzer{}, &fakeEditor{}, &scriptedCollaborator{})

	body, contentType := multipartUpload(t, "Residential")
	resp, err := http.Post(env.server.URL+"/api/v1/projects/", contentType, body)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var payload struct {
		Project  storage.Project      `json:"project"`
		Analysis storage.RoomAnalysis `json:"analysis"`
		State    string               `json:"state"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&payload))
	assert.Equal(t, "Living Room", payload.Analysis.RoomType)
	assert.Equal(t, string(session.StateSelecting), payload.State)
	assert.True(t, strings.HasPrefix(payload.Project.OriginalImageURL, "data:"))
}

func TestCreateProjectRequiresPhoto(t *testing.T) {
	env := newTestEnv(t, &fakeAnalyzer{}, &fakeEditor{}, &scriptedCollaborator{})

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	require.NoError(t, writer.WriteField("room_context", "Residential"))
	require.NoError(t, writer.Close())

	resp, err := http.Post(env.server.URL+"/api/v1/projects/", writer.FormDataContentType(), body)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestCreateProjectCleansUpOnAnalysisFailure(t *testing.T) {
	env := newTestEnv(t, &fakeAnalyzer{err: fmt.Errorf("model unavailable")}, &fakeEditor{}, &scriptedCollaborator{})

	body, contentType := multipartUpload(t, "Residential")
	resp, err := http.Post(env.server.URL+"/api/v1/projects/", contentType, body)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)

	projects, err := env.store.ListProjects(context.Background())
	require.NoError(t, err)
	assert.Empty(t, projects)
}

func TestRedesignWithPreset(t *testing.T) {
	env := newTestEnv(t, &fakeAnalyzer{}, &fakeEditor{}, &scriptedCollaborator{})
	id := env.createProject(t)

	resp := postJSON(t, env.server.URL+"/api/v1/projects/"+id+"/redesign", studio.RedesignRequest{PresetID: "japandi-calm"})
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var result storage.RedesignResult
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&result))
	assert.Equal(t, "Japandi Calm", result.Instruction)
	assert.True(t, strings.HasPrefix(result.ImageURL, "data:image/png;base64,"))
}

func TestRedesignWithSuggestionIndex(t *testing.T) {
	env := newTestEnv(t, &fakeAnalyzer{}, &fakeEditor{}, &scriptedCollaborator{})
	id := env.createProject(t)

	idx := 0
	resp := postJSON(t, env.server.URL+"/api/v1/projects/"+id+"/redesign", studio.RedesignRequest{SuggestionIndex: &idx})
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var result storage.RedesignResult
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&result))
	assert.Equal(t, "Cozy refresh", result.Instruction)
}

func TestRedesignValidation(t *testing.T) {
	env := newTestEnv(t, &fakeAnalyzer{}, &fakeEditor{}, &scriptedCollaborator{})
	id := env.createProject(t)
	url := env.server.URL + "/api/v1/projects/" + id + "/redesign"

	idx := 3
	tests := []struct {
		name string
		req  studio.RedesignRequest
	}{
		{name: "nothing selected", req: studio.RedesignRequest{}},
		{name: "multiple selectors", req: studio.RedesignRequest{PresetID: "japandi-calm", Prompt: "custom"}},
		{name: "unknown preset", req: studio.RedesignRequest{PresetID: "brutalist"}},
		{name: "suggestion out of range", req: studio.RedesignRequest{SuggestionIndex: &idx}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := postJSON(t, url, tt.req)
			defer resp.Body.Close()
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		})
	}
}

func TestRedesignUnknownProject(t *testing.T) {
	env := newTestEnv(t, &fakeAnalyzer{}, &fakeEditor{}, &scriptedCollaborator{})

	resp := postJSON(t, env.server.URL+"/api/v1/projects/missing/redesign", studio.RedesignRequest{PresetID: "japandi-calm"})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestChatConversationalReply(t *testing.T) {
	collab := &scriptedCollaborator{reply: director.Reply{Text: "A blue rug would suit the oak floor."}}
	env := newTestEnv(t, &fakeAnalyzer{}, &fakeEditor{}, collab)
	id := env.createProject(t)

	resp := postJSON(t, env.server.URL+"/api/v1/projects/"+id+"/redesign", studio.RedesignRequest{PresetID: "japandi-calm"})
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = postJSON(t, env.server.URL+"/api/v1/projects/"+id+"/chat", studio.ChatRequest{Message: "what about a blue rug?"})
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var reply session.ChatReply
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&reply))
	assert.Equal(t, "A blue rug would suit the oak floor.", reply.Text)
	assert.Nil(t, reply.Result)
}

func TestChatQuotaExhaustionIsRetryable(t *testing.T) {
	collab := &scriptedCollaborator{err: fmt.Errorf("gemini status 429: %w", llm.ErrQuotaExhausted)}
	env := newTestEnv(t, &fakeAnalyzer{}, &fakeEditor{}, collab)
	id := env.createProject(t)

	resp := postJSON(t, env.server.URL+"/api/v1/projects/"+id+"/redesign", studio.RedesignRequest{PresetID: "japandi-calm"})
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = postJSON(t, env.server.URL+"/api/v1/projects/"+id+"/chat", studio.ChatRequest{Message: "change the rug"})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("Retry-After"))

	// The degraded reply still carries a conversational apology.
	var reply session.ChatReply
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&reply))
	assert.NotEmpty(t, reply.Text)
}

func TestChatRequiresMessage(t *testing.T) {
	env := newTestEnv(t, &fakeAnalyzer{}, &fakeEditor{}, &scriptedCollaborator{})
	id := env.createProject(t)

	resp := postJSON(t, env.server.URL+"/api/v1/projects/"+id+"/chat", studio.ChatRequest{Message: "  "})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestResetReturnsSessionToIdle(t *testing.T) {
	env := newTestEnv(t, &fakeAnalyzer{}, &fakeEditor{}, &scriptedCollaborator{})
	id := env.createProject(t)

	resp := postJSON(t, env.server.URL+"/api/v1/projects/"+id+"/reset", struct{}{})
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var payload struct {
		State string `json:"state"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&payload))
	assert.Equal(t, string(session.StateIdle), payload.State)

	// A redesign on the reset session conflicts until a new photo is analyzed.
	resp = postJSON(t, env.server.URL+"/api/v1/projects/"+id+"/redesign", studio.RedesignRequest{PresetID: "japandi-calm"})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestPresetsEndpoint(t *testing.T) {
	env := newTestEnv(t, &fakeAnalyzer{}, &fakeEditor{}, &scriptedCollaborator{})

	resp, err := http.Get(env.server.URL + "/api/v1/presets")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var presets []struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&presets))
	require.Len(t, presets, 6)
	assert.Equal(t, "modern-minimalist", presets[0].ID)
}

func TestGenerateEndpoint(t *testing.T) {
	env := newTestEnv(t, &fakeAnalyzer{}, &fakeEditor{}, &scriptedCollaborator{})

	resp := postJSON(t, env.server.URL+"/api/v1/generate", studio.GenerateRequest{Prompt: "a sunlit reading nook"})
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var payload map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&payload))
	assert.True(t, strings.HasPrefix(payload["image_url"], "data:image/png;base64,"))

	resp = postJSON(t, env.server.URL+"/api/v1/generate", studio.GenerateRequest{})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestDeleteProjectRemovesSession(t *testing.T) {
	env := newTestEnv(t, &fakeAnalyzer{}, &fakeEditor{}, &scriptedCollaborator{})
	id := env.createProject(t)

	req, err := http.NewRequest(http.MethodDelete, env.server.URL+"/api/v1/projects/"+id+"/", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	_, ok := env.hub.Get(id)
	assert.False(t, ok)

	resp2, err := http.Get(env.server.URL + "/api/v1/projects/" + id + "/")
	require.NoError(t, err)
	defer resp2.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp2.StatusCode)
}

func TestHealthEndpoint(t *testing.T) {
	env := newTestEnv(t, &fakeAnalyzer{}, &fakeEditor{}, &scriptedCollaborator{})

	resp, err := http.Get(env.server.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.JSONEq(t, `{"status":"ok"}`, string(body))
}
