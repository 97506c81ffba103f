package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/maltedev/price-spread/internal/models"
	"github.com/maltedev/price-spread/internal/notify"
	"github.com/maltedev/price-spread/internal/queue"
	"github.com/maltedev/price-spread/internal/session"
	"golang.org/x/sync/errgroup"
)

// SessionRunner runs one crawl session.
type SessionRunner interface {
	Run(ctx context.Context, m models.Marketplace, query string, n session.Notifier) (*session.Result, error)
}

type Manager struct {
	store    Store
	queue    queue.Queue
	runner   SessionRunner
	messages notify.MessageLog
	workers  int
	logger   *slog.Logger
}

func NewManager(store Store, q queue.Queue, runner SessionRunner, messages notify.MessageLog, workers int, logger *slog.Logger) *Manager {
	if workers < 1 {
		workers = 1
	}
	return &Manager{
		store:    store,
		queue:    q,
		runner:   runner,
		messages: messages,
		workers:  workers,
		logger:   logger.With("component", "job_manager"),
	}
}

// Submit records a pending job and queues it for a worker.
func (m *Manager) Submit(ctx context.Context, marketplace models.Marketplace, query string) (*Job, error) {
	job := &Job{
		ID:          uuid.New().String(),
		Marketplace: string(marketplace),
		Query:       query,
		Status:      StatusPending,
		CreatedAt:   time.Now().UTC(),
	}

	if err := m.store.Create(ctx, job); err != nil {
		return nil, fmt.Errorf("failed to create job: %w", err)
	}

	if err := m.queue.Push(&queue.Task{
		ID:          job.ID,
		Marketplace: job.Marketplace,
		Query:       job.Query,
		CreatedAt:   job.CreatedAt,
	}); err != nil {
		m.finish(ctx, job, StatusFailed, err)
		return nil, fmt.Errorf("failed to queue job: %w", err)
	}

	m.logger.Info("job created", "id", job.ID, "marketplace", marketplace, "query", query)
	return job, nil
}

func (m *Manager) Get(ctx context.Context, id string) (*Job, error) {
	return m.store.Get(ctx, id)
}

func (m *Manager) Messages(ctx context.Context, id string) ([]notify.Message, error) {
	return m.messages.List(ctx, id)
}

// Run starts the workers and blocks until ctx is done or the queue is closed.
func (m *Manager) Run(ctx context.Context) error {
	m.logger.Info("job workers started", "workers", m.workers)

	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < m.workers; i++ {
		worker := i
		g.Go(func() error {
			return m.work(gctx, worker)
		})
	}

	err := g.Wait()
	m.logger.Info("job workers stopped")
	if errors.Is(err, context.Canceled) || errors.Is(err, queue.ErrQueueClosed) {
		return nil
	}
	return err
}

func (m *Manager) work(ctx context.Context, worker int) error {
	for {
		task, err := m.queue.Pop(ctx)
		if err != nil {
			return err
		}
		m.process(ctx, worker, task)
	}
}

func (m *Manager) process(ctx context.Context, worker int, task *queue.Task) {
	logger := m.logger.With("job", task.ID, "worker", worker)

	job, err := m.store.Get(ctx, task.ID)
	if err != nil {
		logger.Error("failed to load job", "error", err)
		return
	}

	now := time.Now().UTC()
	job.Status = StatusRunning
	job.StartedAt = &now
	if err := m.store.Update(ctx, job); err != nil {
		logger.Error("failed to update job status", "error", err)
	}

	logger.Info("processing job", "marketplace", job.Marketplace, "query", job.Query)

	n := notify.NewLogNotifier(job.ID, m.messages)
	res, runErr := m.runner.Run(ctx, models.Marketplace(job.Marketplace), job.Query, n)
	if res != nil {
		job.SessionID = res.ID
		job.Pages = res.Diagnostics.Pages
		job.Candidates = res.Diagnostics.Candidates
		job.Accepted = res.Diagnostics.Accepted
		job.Outcome = string(res.Outcome.Kind)
	}

	if runErr != nil {
		job.Outcome = string(session.DeliveryFailed)
		logger.Error("job failed", "error", runErr)
		m.finish(ctx, job, StatusFailed, runErr)
		return
	}

	m.finish(ctx, job, StatusCompleted, nil)
	logger.Info("job completed", "outcome", job.Outcome, "accepted", job.Accepted)
}

func (m *Manager) finish(ctx context.Context, job *Job, status Status, err error) {
	now := time.Now().UTC()
	job.Status = status
	job.CompletedAt = &now
	if err != nil {
		job.Error = err.Error()
	}

	// ctx may already be cancelled on shutdown; the record still has to land.
	if uerr := m.store.Update(context.WithoutCancel(ctx), job); uerr != nil {
		m.logger.Error("failed to update job status", "job", job.ID, "error", uerr)
	}
}
