package storage

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// InMemoryStore is a thread-safe store used when a database is not configured.
type InMemoryStore struct {
	mu       sync.RWMutex
	projects []Project
}

// NewInMemoryStore constructs an empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{projects: make([]Project, 0)}
}

// CreateProject prepends a project to the in-memory slice.
func (s *InMemoryStore) CreateProject(_ context.Context, input Project) (Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

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

	s.projects = append([]Project{input}, s.projects...)
	if len(s.projects) > 50 {
		s.projects = s.projects[:50]
	}

	return input, nil
}

// ListProjects returns a snapshot of stored projects.
func (s *InMemoryStore) ListProjects(_ context.Context) ([]Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snapshot := make([]Project, len(s.projects))
	copy(snapshot, s.projects)
	return snapshot, nil
}

// GetProject returns a project by ID.
func (s *InMemoryStore) GetProject(_ context.Context, id string) (Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, p := range s.projects {
		if p.ID == id {
			return p, nil
		}
	}
	return Project{}, ErrNotFound
}

// UpdateAnalysis stores the analysis produced for the uploaded photo.
func (s *InMemoryStore) UpdateAnalysis(_ context.Context, id string, analysis RoomAnalysis) (Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for idx, p := range s.projects {
		if p.ID == id {
			s.projects[idx].Analysis = analysis
			return s.projects[idx], nil
		}
	}
	return Project{}, ErrNotFound
}

// AppendResult adds a generated redesign to the project log.
func (s *InMemoryStore) AppendResult(_ context.Context, id string, result RedesignResult) (Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for idx, p := range s.projects {
		if p.ID == id {
			if result.ID == "" {
				result.ID = uuid.NewString()
			}
			if result.CreatedAt.IsZero() {
				result.CreatedAt = time.Now()
			}
			s.projects[idx].Results = append(s.projects[idx].Results, result)
			return s.projects[idx], nil
		}
	}
	return Project{}, ErrNotFound
}

// AppendTranscript adds chat entries to the project log.
func (s *InMemoryStore) AppendTranscript(_ context.Context, id string, entries ...TranscriptEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for idx, p := range s.projects {
		if p.ID == id {
			s.projects[idx].Transcript = append(s.projects[idx].Transcript, entries...)
			return nil
		}
	}
	return ErrNotFound
}

// DeleteProject removes a project by ID.
func (s *InMemoryStore) DeleteProject(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for idx, p := range s.projects {
		if p.ID == id {
			s.projects = append(s.projects[:idx], s.projects[idx+1:]...)
			return nil
		}
	}
	return ErrNotFound
}

// Close satisfies the Store interface.
func (s *InMemoryStore) Close() {}
