package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"github.com/nirujahdev/LANKA-NEWS-ROOM-sub001/internal/logger"
)

// ErrTaskTimeout is recorded when a task exceeds the pool timeout.
var ErrTaskTimeout = errors.New("queue: task timed out")

var now = time.Now

// TaskPanicError wraps a panic recovered from a task.
type TaskPanicError struct {
	TaskID string
	Value  any
}

func (e TaskPanicError) Error() string {
	return fmt.Sprintf("queue: panic in task %s: %v", e.TaskID, e.Value)
}

// Result records one execution of a task.
type Result struct {
	TaskID    string
	Type      string
	ClusterID string
	Attempt   int // 1-based
	Err       error
	Requeued  bool
	Duration  time.Duration
}

// PoolConfig configures a Pool.
type PoolConfig struct {
	Workers      int           // GOMAXPROCS when <= 0
	TaskTimeout  time.Duration // No limit when <= 0
	PollInterval time.Duration // Idle sleep between polls
}

// Pool runs tasks from a Queue on a fixed number of workers.
type Pool struct {
	q    *Queue
	cfg  PoolConfig
	log  *slog.Logger
	wg   sync.WaitGroup
	stop chan struct{}
	once sync.Once

	mu      sync.Mutex
	results []Result
}

// NewPool creates a pool for q. Call Start to launch workers.
func NewPool(q *Queue, cfg PoolConfig) *Pool {
	if cfg.Workers <= 0 {
		cfg.Workers = runtime.GOMAXPROCS(0)
		if cfg.Workers <= 0 {
			cfg.Workers = 1
		}
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 10 * time.Millisecond
	}
	return &Pool{
		q:    q,
		cfg:  cfg,
		log:  logger.Get(),
		stop: make(chan struct{}),
	}
}

// Start launches the workers.
func (p *Pool) Start(ctx context.Context) {
	p.wg.Add(p.cfg.Workers)
	for i := 0; i < p.cfg.Workers; i++ {
		go p.worker(ctx, i)
	}
}

func (p *Pool) worker(ctx context.Context, id int) {
	defer p.wg.Done()
	for {
		select {
		case <-p.stop:
			return
		case <-ctx.Done():
			return
		default:
		}

		task, ok := p.q.Next()
		if !ok {
			select {
			case <-p.stop:
				return
			case <-ctx.Done():
				return
			case <-time.After(p.cfg.PollInterval):
			}
			continue
		}
		p.execute(ctx, id, task)
	}
}

func (p *Pool) execute(ctx context.Context, workerID int, task *Task) {
	start := now()
	attempt := task.Retries + 1
	err := p.runWithTimeout(ctx, task)
	elapsed := now().Sub(start)

	res := Result{
		TaskID:    task.ID,
		Type:      task.Type,
		ClusterID: task.ClusterID,
		Attempt:   attempt,
		Err:       err,
		Duration:  elapsed,
	}

	if err != nil {
		res.Requeued = p.q.Fail(task, err)
		p.log.Warn("Task failed",
			"task_id", task.ID,
			"type", task.Type,
			"cluster_id", task.ClusterID,
			"worker", workerID,
			"attempt", attempt,
			"requeued", res.Requeued,
			"duration", elapsed,
			"error", err.Error())
	} else {
		p.q.Complete(task.ID)
		p.log.Debug("Task completed",
			"task_id", task.ID,
			"type", task.Type,
			"cluster_id", task.ClusterID,
			"worker", workerID,
			"duration", elapsed)
	}

	p.mu.Lock()
	p.results = append(p.results, res)
	p.mu.Unlock()
}

// runWithTimeout races the task against the timeout. A timed out task keeps
// running in its goroutine but its result is discarded.
func (p *Pool) runWithTimeout(ctx context.Context, task *Task) error {
	if task.Run == nil {
		return fmt.Errorf("queue: task %s has no run function", task.ID)
	}

	runCtx, cancel := ctx, context.CancelFunc(func() {})
	if p.cfg.TaskTimeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, p.cfg.TaskTimeout)
	}
	defer cancel()

	done := make(chan error, 1)
	go func() {
		defer func() {
			if recovered := recover(); recovered != nil {
				done <- TaskPanicError{TaskID: task.ID, Value: recovered}
			}
		}()
		done <- task.Run(runCtx)
	}()

	select {
	case err := <-done:
		return err
	case <-runCtx.Done():
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%w after %s", ErrTaskTimeout, p.cfg.TaskTimeout)
	}
}

// Wait blocks until the queue is drained, failing tasks whose dependencies
// can never resolve, then stops the pool. It returns early with the context
// error if ctx ends first.
func (p *Pool) Wait(ctx context.Context) error {
	defer p.Stop()
	for {
		if p.q.Idle() {
			return nil
		}
		if t := p.q.Unblock(); t != nil {
			p.log.Warn("Task blocked on unresolved dependencies", "task_id", t.ID, "type", t.Type, "depends_on", t.DependsOn)
			p.mu.Lock()
			p.results = append(p.results, Result{TaskID: t.ID, Type: t.Type, ClusterID: t.ClusterID, Attempt: t.Retries + 1, Err: ErrBlocked})
			p.mu.Unlock()
			continue
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(p.cfg.PollInterval):
		}
	}
}

// Stop closes the queue to new tasks and waits for in-flight tasks to finish.
func (p *Pool) Stop() {
	p.once.Do(func() {
		p.q.Close()
		close(p.stop)
		p.wg.Wait()
		stats := p.q.Stats()
		p.log.Debug("Worker pool stopped",
			"queued", stats.Queued,
			"completed", stats.Completed,
			"failed", stats.Failed)
	})
}

// Results returns a copy of the executions recorded so far.
func (p *Pool) Results() []Result {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Result, len(p.results))
	copy(out, p.results)
	return out
}

// Run drains tasks on a new pool and returns the recorded results.
func Run(ctx context.Context, cfg PoolConfig, tasks []*Task) ([]Result, Stats, error) {
	q := New()
	if err := q.AddAll(tasks); err != nil {
		return nil, Stats{}, err
	}
	pool := NewPool(q, cfg)
	pool.Start(ctx)
	err := pool.Wait(ctx)
	return pool.Results(), q.Stats(), err
}
