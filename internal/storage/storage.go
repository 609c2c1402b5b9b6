package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound indicates that a project could not be located in the backing store.
var ErrNotFound = errors.New("project not found")

// RoomContext constrains analysis and instruction generation for a session.
// It is chosen once at upload time and never changes mid-session.
type RoomContext string

const (
	ContextResidential RoomContext = "Residential"
	ContextCommercial  RoomContext = "Commercial"
)

// ParseRoomContext normalizes an inbound context label, defaulting to residential.
func ParseRoomContext(raw string) (RoomContext, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "residential":
		return ContextResidential, nil
	case "commercial":
		return ContextCommercial, nil
	default:
		return "", fmt.Errorf("storage: unknown room context %q", raw)
	}
}

// RoomAnalysis is the structured critique produced once per uploaded photo.
// ArchitecturalFeatures is the canonical record of the room's original
// materials; it is never mutated after the analysis is recorded.
type RoomAnalysis struct {
	RoomType              string            `json:"room_type"`
	ArchitecturalFeatures []string          `json:"architectural_features"`
	DesignIssues          []string          `json:"design_issues"`
	DecorSuggestions      []string          `json:"decor_suggestions"`
	SuggestedPrompts      []SuggestedPrompt `json:"suggested_prompts"`
}

// SuggestedPrompt is a ready-to-send edit instruction proposed by the analysis.
type SuggestedPrompt struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Prompt      string `json:"prompt"`
}

// RedesignResult records one generated image together with the instruction
// that produced it.
type RedesignResult struct {
	ID          string    `json:"id"`
	Instruction string    `json:"instruction"`
	ImageURL    string    `json:"image_url"`
	CreatedAt   time.Time `json:"created_at"`
}

// TranscriptEntry is one persisted chat line. Notice entries are transient
// status updates shown in the UI; they are stored for the record but never
// fed back into prompting.
type TranscriptEntry struct {
	ID        string    `json:"id"`
	Role      string    `json:"role"`
	Text      string    `json:"text"`
	Notice    bool      `json:"notice,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Project is the persisted log of one redesign session: the original image,
// its analysis, every generated result and the chat transcript. It is written
// as the session progresses and read back for display, never consulted by the
// director during an active session.
type Project struct {
	ID               string            `json:"id"`
	RoomContext      RoomContext       `json:"room_context"`
	OriginalImageURL string            `json:"original_image_url"`
	Analysis         RoomAnalysis      `json:"analysis"`
	Results          []RedesignResult  `json:"results"`
	Transcript       []TranscriptEntry `json:"transcript"`
	CreatedAt        time.Time         `json:"created_at"`
}

// Store defines the persistence behaviors the application relies on.
type Store interface {
	CreateProject(ctx context.Context, input Project) (Project, error)
	ListProjects(ctx context.Context) ([]Project, error)
	GetProject(ctx context.Context, id string) (Project, error)
	UpdateAnalysis(ctx context.Context, id string, analysis RoomAnalysis) (Project, error)
	AppendResult(ctx context.Context, id string, result RedesignResult) (Project, error)
	AppendTranscript(ctx context.Context, id string, entries ...TranscriptEntry) error
	DeleteProject(ctx context.Context, id string) error
	Close()
}

// NewStore selects a backing store based on whether a database URL is provided.
func NewStore(ctx context.Context, databaseURL string) (Store, error) {
	if databaseURL == "" {
		return NewInMemoryStore(), nil
	}

	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := ensureSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}

	return &PostgresStore{pool: pool}, nil
}

func ensureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, `CREATE TABLE IF NOT EXISTS projects (
        id TEXT PRIMARY KEY,
        room_context TEXT NOT NULL,
        original_image_url TEXT,
        analysis JSONB DEFAULT '{}'::jsonb,
        results JSONB DEFAULT '[]'::jsonb,
        transcript JSONB DEFAULT '[]'::jsonb,
        created_at TIMESTAMPTZ NOT NULL DEFAULT now()
    )`)
	if err != nil {
		return fmt.Errorf("create projects table: %w", err)
	}

	var schemaAlters = []string{
		`ALTER TABLE projects ADD COLUMN IF NOT EXISTS original_image_url TEXT`,
		`ALTER TABLE projects ADD COLUMN IF NOT EXISTS analysis JSONB DEFAULT '{}'::jsonb`,
		`ALTER TABLE projects ADD COLUMN IF NOT EXISTS results JSONB DEFAULT '[]'::jsonb`,
		`ALTER TABLE projects ADD COLUMN IF NOT EXISTS transcript JSONB DEFAULT '[]'::jsonb`,
	}
	for _, stmt := range schemaAlters {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("alter projects table: %w", err)
		}
	}

	return nil
}
