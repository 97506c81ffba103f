package jobs

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/maltedev/price-spread/internal/database"
)

var ErrJobNotFound = errors.New("job not found")

type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Job is one queued crawl session and its result counts.
type Job struct {
	ID          string     `json:"id"`
	SessionID   string     `json:"session_id,omitempty"`
	Marketplace string     `json:"marketplace"`
	Query       string     `json:"query"`
	Status      Status     `json:"status"`
	Outcome     string     `json:"outcome,omitempty"`
	Pages       int        `json:"pages"`
	Candidates  int        `json:"candidates"`
	Accepted    int        `json:"accepted"`
	Error       string     `json:"error,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

type Store interface {
	Create(ctx context.Context, job *Job) error
	Update(ctx context.Context, job *Job) error
	Get(ctx context.Context, id string) (*Job, error)
}

type MemoryStore struct {
	mu   sync.RWMutex
	jobs map[string]Job
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{jobs: make(map[string]Job)}
}

func (s *MemoryStore) Create(_ context.Context, job *Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.ID] = *job
	return nil
}

func (s *MemoryStore) Update(_ context.Context, job *Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[job.ID]; !ok {
		return ErrJobNotFound
	}
	s.jobs[job.ID] = *job
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (*Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[id]
	if !ok {
		return nil, ErrJobNotFound
	}
	return &job, nil
}

// DBStore persists jobs in the session_runs table.
type DBStore struct {
	runs *database.RunRepository
}

func NewDBStore(runs *database.RunRepository) *DBStore {
	return &DBStore{runs: runs}
}

func (s *DBStore) Create(ctx context.Context, job *Job) error {
	return s.runs.Insert(ctx, toRun(job))
}

func (s *DBStore) Update(ctx context.Context, job *Job) error {
	err := s.runs.Update(ctx, toRun(job))
	if errors.Is(err, database.ErrRunNotFound) {
		return ErrJobNotFound
	}
	return err
}

func (s *DBStore) Get(ctx context.Context, id string) (*Job, error) {
	run, err := s.runs.Get(ctx, id)
	if errors.Is(err, database.ErrRunNotFound) {
		return nil, ErrJobNotFound
	}
	if err != nil {
		return nil, err
	}
	return fromRun(run), nil
}

func toRun(j *Job) *database.SessionRun {
	return &database.SessionRun{
		ID:          j.ID,
		SessionID:   j.SessionID,
		Marketplace: j.Marketplace,
		Query:       j.Query,
		Status:      string(j.Status),
		Outcome:     j.Outcome,
		Pages:       j.Pages,
		Candidates:  j.Candidates,
		Accepted:    j.Accepted,
		Error:       j.Error,
		CreatedAt:   j.CreatedAt,
		StartedAt:   j.StartedAt,
		CompletedAt: j.CompletedAt,
	}
}

func fromRun(r *database.SessionRun) *Job {
	return &Job{
		ID:          r.ID,
		SessionID:   r.SessionID,
		Marketplace: r.Marketplace,
		Query:       r.Query,
		Status:      Status(r.Status),
		Outcome:     r.Outcome,
		Pages:       r.Pages,
		Candidates:  r.Candidates,
		Accepted:    r.Accepted,
		Error:       r.Error,
		CreatedAt:   r.CreatedAt,
		StartedAt:   r.StartedAt,
		CompletedAt: r.CompletedAt,
	}
}
