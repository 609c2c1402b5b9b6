package session

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"lumina/internal/director"
	"lumina/internal/events"
	"lumina/internal/media"
	"lumina/internal/prompts"
	"lumina/internal/storage"
	"lumina/internal/vision"
)

// State names one phase of a design session's lifecycle.
type State string

const (
	StateIdle       State = "idle"
	StateAnalyzing  State = "analyzing"
	StateSelecting  State = "selecting"
	StateGenerating State = "generating"
	StateComplete   State = "complete"
)

var (
	// ErrBusy rejects operations while an analysis or render is in flight.
	ErrBusy = errors.New("session: busy")
	// ErrInvalidState rejects operations from a phase that does not allow them.
	ErrInvalidState = errors.New("session: operation not allowed in current state")
	// ErrCanceled marks work discarded because the session was reset mid-flight.
	ErrCanceled = errors.New("session: canceled")
)

// Deps wires a session to its collaborators and persistence.
type Deps struct {
	Analyzer vision.Analyzer
	Editor   vision.Editor
	Director *director.Director
	Store    storage.Store
	Uploader media.Uploader
	Broker   *events.Broker
	Logger   zerolog.Logger
}

// Session drives one project through upload, analysis, style selection and
// iterative refinement. All inbound calls are serialized through state
// checks; long network calls run outside the lock under an epoch guard so a
// concurrent Reset discards their results instead of racing them.
type Session struct {
	id        string
	projectID string
	deps      Deps

	mu           sync.Mutex
	state        State
	epoch        int
	context      *ContextStore
	currentImage []byte
	currentMIME  string
}

// ChatReply is the outcome of one conversational round.
type ChatReply struct {
	Text   string                  `json:"text"`
	Result *storage.RedesignResult `json:"result,omitempty"`
}

// New constructs an idle session bound to a project.
func New(projectID string, deps Deps) *Session {
	return &Session{
		id:        uuid.NewString(),
		projectID: projectID,
		deps:      deps,
		state:     StateIdle,
		context:   NewContextStore(),
	}
}

// ID returns the session identifier used in event streams.
func (s *Session) ID() string { return s.id }

// ProjectID returns the bound project.
func (s *Session) ProjectID() string { return s.projectID }

// State returns the current lifecycle phase.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Context exposes the session's context store.
func (s *Session) Context() *ContextStore { return s.context }

// Analyze records the original photo, runs the structured critique and moves
// the session to the selection phase. A failure returns the session to idle
// with nothing recorded.
func (s *Session) Analyze(ctx context.Context, image []byte, mimeType string, roomContext storage.RoomContext) (storage.RoomAnalysis, error) {
	s.mu.Lock()
	if s.state == StateAnalyzing || s.state == StateGenerating {
		s.mu.Unlock()
		return storage.RoomAnalysis{}, ErrBusy
	}
	if s.state != StateIdle {
		s.mu.Unlock()
		return storage.RoomAnalysis{}, fmt.Errorf("%w: analyze from %s", ErrInvalidState, s.state)
	}
	epoch := s.epoch
	s.setStateLocked(StateIdle, StateAnalyzing, "analyzing room photo")
	s.mu.Unlock()

	analysis, err := s.deps.Analyzer.Analyze(ctx, image, mimeType, roomContext)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.epoch != epoch {
		return storage.RoomAnalysis{}, ErrCanceled
	}
	if err != nil {
		s.setStateLocked(StateAnalyzing, StateIdle, "analysis failed")
		return storage.RoomAnalysis{}, fmt.Errorf("session: analyze: %w", err)
	}

	analysis = director.FilterSuggestions(analysis, roomContext)
	if err := s.context.RecordAnalysis(image, mimeType, analysis, roomContext); err != nil {
		s.setStateLocked(StateAnalyzing, StateIdle, "analysis failed")
		return storage.RoomAnalysis{}, err
	}
	s.currentImage = append([]byte(nil), image...)
	s.currentMIME = mimeType

	if _, err := s.deps.Store.UpdateAnalysis(ctx, s.projectID, analysis); err != nil {
		s.deps.Logger.Error().Err(err).Str("project_id", s.projectID).Msg("persist analysis")
	}
	s.setStateLocked(StateAnalyzing, StateSelecting, "analysis complete")
	return analysis, nil
}

// Redesign renders one full edit of the original photo from an explicit
// instruction (a style preset, a suggested prompt or a custom description).
// The instruction always carries the hard generation constraints. A failure
// leaves the session in the phase it started from, prior result intact.
func (s *Session) Redesign(ctx context.Context, instruction, label string) (storage.RedesignResult, error) {
	payload := director.ComposePresetPrompt(instruction)
	return s.render(ctx, payload, label, "rendering redesign")
}

// Chat runs one director round. Conversational replies return immediately;
// edit instructions trigger a render anchored to the ORIGINAL photo so the
// authentic room state can never drift across refinements. A failed render
// surfaces a status notice and returns the session to complete with the
// previous image untouched.
func (s *Session) Chat(ctx context.Context, message string) (ChatReply, error) {
	s.mu.Lock()
	if s.state == StateAnalyzing || s.state == StateGenerating {
		s.mu.Unlock()
		return ChatReply{}, ErrBusy
	}
	if s.state != StateComplete {
		s.mu.Unlock()
		return ChatReply{}, fmt.Errorf("%w: chat from %s", ErrInvalidState, s.state)
	}
	s.mu.Unlock()

	if err := s.context.AppendMessage(RoleUser, message); err != nil {
		return ChatReply{}, err
	}

	image, mime := s.context.OriginalImage()
	analysis := s.context.Analysis()
	decision, err := s.deps.Director.Respond(ctx, director.Request{
		UserMessage:      message,
		History:          s.context.History(prompts.HistoryCharBudget),
		Analysis:         &analysis,
		RoomContext:      s.context.RoomContext(),
		CurrentImage:     image,
		CurrentImageMIME: mime,
	})
	if err != nil {
		s.deps.Logger.Warn().Err(err).Str("project_id", s.projectID).Msg("director round failed")
		s.context.AppendNotice(decision.ConfirmationText)
		s.recordTranscript(ctx, storage.TranscriptEntry{Role: string(RoleUser), Text: message})
		return ChatReply{Text: decision.ConfirmationText}, err
	}

	s.recordTranscript(ctx, storage.TranscriptEntry{Role: string(RoleUser), Text: message})

	if decision.IsConversationalOnly() {
		if appendErr := s.context.AppendMessage(RoleDesigner, decision.ConfirmationText); appendErr != nil {
			return ChatReply{}, appendErr
		}
		s.recordTranscript(ctx, storage.TranscriptEntry{Role: string(RoleDesigner), Text: decision.ConfirmationText})
		return ChatReply{Text: decision.ConfirmationText}, nil
	}

	result, err := s.render(ctx, decision.EditPrompt, message, "rendering refinement")
	if err != nil {
		notice := "I couldn't render that change, so I've kept your latest design untouched. Please try again in a moment."
		s.context.AppendNotice(notice)
		s.recordTranscript(ctx, storage.TranscriptEntry{Role: string(RoleDesigner), Text: notice, Notice: true})
		return ChatReply{Text: notice}, err
	}

	if appendErr := s.context.AppendMessage(RoleDesigner, decision.ConfirmationText); appendErr != nil {
		return ChatReply{}, appendErr
	}
	s.recordTranscript(ctx, storage.TranscriptEntry{Role: string(RoleDesigner), Text: decision.ConfirmationText})
	return ChatReply{Text: decision.ConfirmationText, Result: &result}, nil
}

// render runs one image edit against the original photo under the epoch
// guard and commits the result atomically.
func (s *Session) render(ctx context.Context, payload, label, detail string) (storage.RedesignResult, error) {
	s.mu.Lock()
	if s.state == StateAnalyzing || s.state == StateGenerating {
		s.mu.Unlock()
		return storage.RedesignResult{}, ErrBusy
	}
	if s.state != StateSelecting && s.state != StateComplete {
		s.mu.Unlock()
		return storage.RedesignResult{}, fmt.Errorf("%w: render from %s", ErrInvalidState, s.state)
	}
	from := s.state
	epoch := s.epoch
	s.setStateLocked(from, StateGenerating, detail)
	s.mu.Unlock()

	image, mime := s.context.OriginalImage()
	rendered, renderedMIME, err := s.deps.Editor.Edit(ctx, image, mime, payload)

	var result storage.RedesignResult
	if err == nil {
		url := s.storeImage(ctx, rendered, renderedMIME)
		result = storage.RedesignResult{
			ID:          uuid.NewString(),
			Instruction: label,
			ImageURL:    url,
			CreatedAt:   time.Now().UTC(),
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.epoch != epoch {
		return storage.RedesignResult{}, ErrCanceled
	}
	if err != nil {
		// The prior stable phase and its image survive a failed render.
		s.setStateLocked(StateGenerating, from, "render failed")
		return storage.RedesignResult{}, fmt.Errorf("session: render: %w", err)
	}

	s.currentImage = rendered
	s.currentMIME = renderedMIME
	if _, persistErr := s.deps.Store.AppendResult(ctx, s.projectID, result); persistErr != nil {
		s.deps.Logger.Error().Err(persistErr).Str("project_id", s.projectID).Msg("persist result")
	}
	s.setStateLocked(StateGenerating, StateComplete, "render complete")
	return result, nil
}

// Reset abandons in-flight work and returns the session to idle. Any render
// or analysis already started commits nothing when it completes.
func (s *Session) Reset() {
	s.mu.Lock()
	from := s.state
	s.epoch++
	s.currentImage = nil
	s.currentMIME = ""
	s.setStateLocked(from, StateIdle, "session reset")
	s.mu.Unlock()

	s.context.Reset()
}

// CurrentImage returns the most recently rendered image, or the original
// photo when nothing has been rendered yet.
func (s *Session) CurrentImage() ([]byte, string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]byte(nil), s.currentImage...), s.currentMIME
}

// storeImage uploads the rendered image when object storage is configured
// and falls back to an inline data URI otherwise.
func (s *Session) storeImage(ctx context.Context, data []byte, mimeType string) string {
	if s.deps.Uploader != nil {
		res, err := s.deps.Uploader.Upload(ctx, media.UploadInput{
			Filename:    "render" + extensionFor(mimeType),
			ContentType: mimeType,
			Body:        bytes.NewReader(data),
			Size:        int64(len(data)),
			Kind:        media.KindRender,
			ProjectID:   s.projectID,
		})
		if err == nil && res.URL != "" {
			return res.URL
		}
		if err != nil && !errors.Is(err, media.ErrUploaderDisabled) {
			s.deps.Logger.Warn().Err(err).Msg("media upload failed, inlining image")
		}
	}
	return media.DataURL(data, mimeType)
}

func (s *Session) recordTranscript(ctx context.Context, entry storage.TranscriptEntry) {
	entry.ID = uuid.NewString()
	entry.CreatedAt = time.Now().UTC()
	if err := s.deps.Store.AppendTranscript(ctx, s.projectID, entry); err != nil {
		s.deps.Logger.Error().Err(err).Str("project_id", s.projectID).Msg("persist transcript")
	}
}

// setStateLocked transitions the state and publishes the change. Caller must
// hold s.mu.
func (s *Session) setStateLocked(from, to State, detail string) {
	s.state = to
	if s.deps.Broker != nil {
		s.deps.Broker.Publish(events.Event{
			SessionID: s.id,
			ProjectID: s.projectID,
			From:      string(from),
			To:        string(to),
			Detail:    detail,
		})
	}
	s.deps.Logger.Debug().
		Str("session_id", s.id).
		Str("from", string(from)).
		Str("to", string(to)).
		Msg("session transition")
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
