package queue

import (
	"context"
	"errors"
	"sync"
	"time"
)

var (
	ErrQueueFull   = errors.New("queue is full")
	ErrQueueClosed = errors.New("queue is closed")
)

// Task asks a worker to run one crawl session.
type Task struct {
	ID          string
	Marketplace string
	Query       string
	CreatedAt   time.Time
}

type Queue interface {
	Push(task *Task) error
	Pop(ctx context.Context) (*Task, error)
	Size() int
	Close() error
}

// InMemoryQueue is a bounded FIFO. Push never blocks; Pop blocks until a task
// arrives, the queue is closed and drained, or ctx is done.
type InMemoryQueue struct {
	tasks  chan *Task
	mu     sync.RWMutex
	closed bool
}

func NewInMemoryQueue(capacity int) *InMemoryQueue {
	if capacity < 1 {
		capacity = 1
	}
	return &InMemoryQueue{tasks: make(chan *Task, capacity)}
}

func (q *InMemoryQueue) Push(task *Task) error {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		return ErrQueueClosed
	}
	select {
	case q.tasks <- task:
		return nil
	default:
		return ErrQueueFull
	}
}

func (q *InMemoryQueue) Pop(ctx context.Context) (*Task, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case task, ok := <-q.tasks:
		if !ok {
			return nil, ErrQueueClosed
		}
		return task, nil
	}
}

func (q *InMemoryQueue) Size() int {
	return len(q.tasks)
}

// Close stops accepting tasks. Tasks already queued can still be popped.
func (q *InMemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if !q.closed {
		q.closed = true
		close(q.tasks)
	}
	return nil
}
