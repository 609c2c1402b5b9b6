package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore persists projects in PostgreSQL.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// CreateProject stores the provided project in PostgreSQL.
func (s *PostgresStore) CreateProject(ctx context.Context, input Project) (Project, error) {
	if input.ID == "" {
		input.ID = uuid.NewString()
	}
	if input.CreatedAt.IsZero() {
		input.CreatedAt = time.Now()
	}
	if input.Results == nil {
		input.Results = []RedesignResult{}
	}
	if input.Transcript == nil {
		input.Transcript = []TranscriptEntry{}
	}

	analysisJSON, resultsJSON, transcriptJSON, err := marshalProjectColumns(input)
	if err != nil {
		return Project{}, err
	}

	if _, err := s.pool.Exec(ctx,
		`INSERT INTO projects (id, room_context, original_image_url, analysis, results, transcript, created_at)
         VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		input.ID, string(input.RoomContext), input.OriginalImageURL,
		analysisJSON, resultsJSON, transcriptJSON, input.CreatedAt); err != nil {
		return Project{}, fmt.Errorf("insert project: %w", err)
	}

	return input, nil
}

// ListProjects returns a slice of the most recent projects.
func (s *PostgresStore) ListProjects(ctx context.Context) ([]Project, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, room_context, original_image_url, analysis, results, transcript, created_at
         FROM projects ORDER BY created_at DESC LIMIT 50`)
	if err != nil {
		return nil, fmt.Errorf("query projects: %w", err)
	}
	defer rows.Close()

	projects := []Project{}
	for rows.Next() {
		item, err := scanProject(rows)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				break
			}
			return nil, err
		}
		projects = append(projects, item)
	}

	return projects, nil
}

// GetProject returns a project by ID.
func (s *PostgresStore) GetProject(ctx context.Context, id string) (Project, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, room_context, original_image_url, analysis, results, transcript, created_at
         FROM projects WHERE id = $1`, id)

	item, err := scanProject(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Project{}, ErrNotFound
		}
		return Project{}, err
	}
	return item, nil
}

// UpdateAnalysis stores the analysis produced for the uploaded photo.
func (s *PostgresStore) UpdateAnalysis(ctx context.Context, id string, analysis RoomAnalysis) (Project, error) {
	payload, err := json.Marshal(analysis)
	if err != nil {
		return Project{}, fmt.Errorf("marshal analysis: %w", err)
	}

	tag, err := s.pool.Exec(ctx, `UPDATE projects SET analysis = $2 WHERE id = $1`, id, payload)
	if err != nil {
		return Project{}, fmt.Errorf("update analysis: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return Project{}, ErrNotFound
	}

	return s.GetProject(ctx, id)
}

// AppendResult adds a generated redesign to the project log.
func (s *PostgresStore) AppendResult(ctx context.Context, id string, result RedesignResult) (Project, error) {
	if result.ID == "" {
		result.ID = uuid.NewString()
	}

	payload, err := json.Marshal(result)
	if err != nil {
		return Project{}, fmt.Errorf("marshal result: %w", err)
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE projects SET results = results || $2::jsonb WHERE id = $1`, id, payload)
	if err != nil {
		return Project{}, fmt.Errorf("append result: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return Project{}, ErrNotFound
	}

	return s.GetProject(ctx, id)
}

// AppendTranscript adds chat entries to the project log.
func (s *PostgresStore) AppendTranscript(ctx context.Context, id string, entries ...TranscriptEntry) error {
	if len(entries) == 0 {
		return nil
	}

	payload, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("marshal transcript entries: %w", err)
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE projects SET transcript = transcript || $2::jsonb WHERE id = $1`, id, payload)
	if err != nil {
		return fmt.Errorf("append transcript: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}

	return nil
}

// DeleteProject removes a project by ID.
func (s *PostgresStore) DeleteProject(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM projects WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete project: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Close releases database resources.
func (s *PostgresStore) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

func marshalProjectColumns(p Project) ([]byte, []byte, []byte, error) {
	analysisJSON, err := json.Marshal(p.Analysis)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("marshal analysis: %w", err)
	}
	resultsJSON, err := json.Marshal(p.Results)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("marshal results: %w", err)
	}
	transcriptJSON, err := json.Marshal(p.Transcript)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("marshal transcript: %w", err)
	}
	return analysisJSON, resultsJSON, transcriptJSON, nil
}

func scanProject(row pgx.Row) (Project, error) {
	var (
		item           Project
		roomContext    string
		analysisJSON   []byte
		resultsJSON    []byte
		transcriptJSON []byte
	)
	if err := row.Scan(&item.ID, &roomContext, &item.OriginalImageURL,
		&analysisJSON, &resultsJSON, &transcriptJSON, &item.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Project{}, pgx.ErrNoRows
		}
		return Project{}, fmt.Errorf("scan project: %w", err)
	}

	item.RoomContext = RoomContext(roomContext)
	if len(analysisJSON) > 0 {
		if err := json.Unmarshal(analysisJSON, &item.Analysis); err != nil {
			return Project{}, fmt.Errorf("decode analysis: %w", err)
		}
	}
	if len(resultsJSON) > 0 {
		if err := json.Unmarshal(resultsJSON, &item.Results); err != nil {
			return Project{}, fmt.Errorf("decode results: %w", err)
		}
	}
	if len(transcriptJSON) > 0 {
		if err := json.Unmarshal(transcriptJSON, &item.Transcript); err != nil {
			return Project{}, fmt.Errorf("decode transcript: %w", err)
		}
	}

	return item, nil
}
