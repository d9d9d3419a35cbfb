// Package queue provides a priority queue of dependent tasks and a worker
// pool that drains it.
package queue

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
)

var (
	// ErrClosed is returned when adding to a closed queue.
	ErrClosed = errors.New("queue: closed")
	// ErrDuplicateTask is returned when a task id is already known.
	ErrDuplicateTask = errors.New("queue: duplicate task id")
	// ErrBlocked marks tasks failed because their dependencies can never resolve.
	ErrBlocked = errors.New("queue: dependencies cannot resolve")
)

// Status is the lifecycle state of a task.
type Status int

const (
	StatusQueued Status = iota
	StatusRunning
	StatusCompleted
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusQueued:
		return "queued"
	case StatusRunning:
		return "running"
	case StatusCompleted:
		return "completed"
	case StatusFailed:
		return "failed"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// Task is a unit of work. Lower Priority values are served first.
type Task struct {
	ID         string
	Type       string
	ClusterID  string
	Priority   int
	DependsOn  []string
	Retries    int
	MaxRetries int
	Run        func(ctx context.Context) error
}

// Stats is a point-in-time count of tasks by state.
type Stats struct {
	Queued    int
	Running   int
	Completed int
	Failed    int
}

type entry struct {
	task *Task
	seq  uint64
}

// Queue orders tasks by priority and insertion, releasing a task only once
// each dependency has completed or failed. It is safe for concurrent use.
type Queue struct {
	mu      sync.Mutex
	pending []entry
	status  map[string]Status
	errs    map[string]error
	seq     uint64
	running int
	closed  bool
}

// New creates an empty queue.
func New() *Queue {
	return &Queue{
		status: make(map[string]Status),
		errs:   make(map[string]error),
	}
}

// Add enqueues a task, assigning an id when empty.
func (q *Queue) Add(t *Task) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.addLocked(t)
}

// AddAll enqueues tasks in order, stopping at the first error.
func (q *Queue) AddAll(tasks []*Task) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, t := range tasks {
		if err := q.addLocked(t); err != nil {
			return err
		}
	}
	return nil
}

func (q *Queue) addLocked(t *Task) error {
	if q.closed {
		return ErrClosed
	}
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if _, ok := q.status[t.ID]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateTask, t.ID)
	}
	q.status[t.ID] = StatusQueued
	q.pushLocked(t)
	return nil
}

func (q *Queue) pushLocked(t *Task) {
	q.seq++
	e := entry{task: t, seq: q.seq}
	i := sort.Search(len(q.pending), func(i int) bool {
		p := q.pending[i]
		if p.task.Priority != t.Priority {
			return p.task.Priority > t.Priority
		}
		return p.seq > e.seq
	})
	q.pending = append(q.pending, entry{})
	copy(q.pending[i+1:], q.pending[i:])
	q.pending[i] = e
}

// Next returns the highest priority task whose dependencies are all
// completed or failed, marking it running. It never blocks.
func (q *Queue) Next() (*Task, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for i, e := range q.pending {
		if !q.readyLocked(e.task) {
			continue
		}
		q.pending = append(q.pending[:i], q.pending[i+1:]...)
		q.status[e.task.ID] = StatusRunning
		q.running++
		return e.task, true
	}
	return nil, false
}

func (q *Queue) readyLocked(t *Task) bool {
	for _, dep := range t.DependsOn {
		switch q.status[dep] {
		case StatusCompleted, StatusFailed:
		default:
			return false
		}
	}
	return true
}

// Complete marks a running task completed.
func (q *Queue) Complete(id string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.status[id] != StatusRunning {
		return
	}
	q.running--
	q.status[id] = StatusCompleted
	delete(q.errs, id)
}

// Fail records a failed run. The task is requeued while Retries < MaxRetries
// and marked failed otherwise. It reports whether the task was requeued.
func (q *Queue) Fail(t *Task, err error) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.status[t.ID] != StatusRunning {
		return false
	}
	q.running--
	q.errs[t.ID] = err

	if t.Retries < t.MaxRetries && !q.closed {
		t.Retries++
		q.status[t.ID] = StatusQueued
		q.pushLocked(t)
		return true
	}
	q.status[t.ID] = StatusFailed
	return false
}

// Status returns the state of a task.
func (q *Queue) Status(id string) (Status, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	s, ok := q.status[id]
	return s, ok
}

// Err returns the last error recorded for a task.
func (q *Queue) Err(id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.errs[id]
}

// Stats returns current task counts.
func (q *Queue) Stats() Stats {
	q.mu.Lock()
	defer q.mu.Unlock()
	s := Stats{Queued: len(q.pending), Running: q.running}
	for _, st := range q.status {
		switch st {
		case StatusCompleted:
			s.Completed++
		case StatusFailed:
			s.Failed++
		}
	}
	return s
}

// Idle reports whether nothing is queued or running.
func (q *Queue) Idle() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending) == 0 && q.running == 0
}

// Unblock fails the first queued task when nothing is running and no queued
// task is ready, which happens with unknown or cyclic dependencies. It
// returns the failed task, or nil when the queue is not stalled.
func (q *Queue) Unblock() *Task {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.running > 0 || len(q.pending) == 0 {
		return nil
	}
	for _, e := range q.pending {
		if q.readyLocked(e.task) {
			return nil
		}
	}
	t := q.pending[0].task
	q.pending = q.pending[1:]
	q.status[t.ID] = StatusFailed
	q.errs[t.ID] = ErrBlocked
	return t
}

// Close stops the queue from accepting new tasks. Queued tasks remain
// available to Next.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
}
