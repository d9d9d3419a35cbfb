package queue

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func testPoolConfig(workers int) PoolConfig {
	return PoolConfig{Workers: workers, TaskTimeout: time.Second, PollInterval: time.Millisecond}
}

func TestPool_BoundsConcurrency(t *testing.T) {
	var current, peak int32
	var tasks []*Task
	for i := 0; i < 8; i++ {
		tasks = append(tasks, &Task{Run: func(ctx context.Context) error {
			n := atomic.AddInt32(&current, 1)
			for {
				p := atomic.LoadInt32(&peak)
				if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
					break
				}
			}
			time.Sleep(10 * time.Millisecond)
			atomic.AddInt32(&current, -1)
			return nil
		}})
	}

	results, stats, err := Run(context.Background(), testPoolConfig(2), tasks)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if peak > 2 {
		t.Errorf("Expected at most 2 concurrent tasks, saw %d", peak)
	}
	if stats.Completed != 8 || len(results) != 8 {
		t.Errorf("Expected 8 completed, got stats=%+v results=%d", stats, len(results))
	}
	for _, r := range results {
		if r.Duration <= 0 {
			t.Errorf("Expected positive duration for %s", r.TaskID)
		}
	}
}

func TestPool_TimeoutDiscardsResult(t *testing.T) {
	cfg := testPoolConfig(1)
	cfg.TaskTimeout = 20 * time.Millisecond

	results, stats, err := Run(context.Background(), cfg, []*Task{{
		ID: "slow",
		Run: func(ctx context.Context) error {
			time.Sleep(200 * time.Millisecond)
			return nil
		},
	}})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if stats.Failed != 1 {
		t.Errorf("Expected timed out task to fail, got %+v", stats)
	}
	if len(results) != 1 || !errors.Is(results[0].Err, ErrTaskTimeout) {
		t.Errorf("Expected ErrTaskTimeout, got %+v", results)
	}
}

func TestPool_RecoversPanicAndContinues(t *testing.T) {
	ran := false
	results, stats, err := Run(context.Background(), testPoolConfig(1), []*Task{
		{ID: "panics", Priority: 0, Run: func(ctx context.Context) error { panic("bad input") }},
		{ID: "next", Priority: 1, Run: func(ctx context.Context) error { ran = true; return nil }},
	})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if !ran {
		t.Error("Expected worker to survive the panic")
	}
	var panicErr TaskPanicError
	if !errors.As(results[0].Err, &panicErr) || panicErr.TaskID != "panics" {
		t.Errorf("Expected TaskPanicError, got %v", results[0].Err)
	}
	if stats.Completed != 1 || stats.Failed != 1 {
		t.Errorf("Unexpected stats %+v", stats)
	}
}

func TestPool_RetriesThenSucceeds(t *testing.T) {
	var calls int32
	results, stats, err := Run(context.Background(), testPoolConfig(1), []*Task{{
		ID:         "flaky",
		MaxRetries: 2,
		Run: func(ctx context.Context) error {
			if atomic.AddInt32(&calls, 1) == 1 {
				return errors.New("transient")
			}
			return nil
		},
	}})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if stats.Completed != 1 || stats.Failed != 0 {
		t.Errorf("Unexpected stats %+v", stats)
	}
	if len(results) != 2 || !results[0].Requeued || results[1].Attempt != 2 {
		t.Errorf("Expected requeued first attempt then success, got %+v", results)
	}
}

func TestPool_DependentRunsAfterUpstreamFails(t *testing.T) {
	var mu sync.Mutex
	var order []string
	record := func(id string) {
		mu.Lock()
		order = append(order, id)
		mu.Unlock()
	}

	_, stats, err := Run(context.Background(), testPoolConfig(3), []*Task{
		{ID: "B", MaxRetries: 1, Run: func(ctx context.Context) error { record("B"); return errors.New("down") }},
		{ID: "A", DependsOn: []string{"B"}, Run: func(ctx context.Context) error { record("A"); return nil }},
	})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if stats.Completed != 1 || stats.Failed != 1 {
		t.Errorf("Unexpected stats %+v", stats)
	}
	if len(order) != 3 || order[2] != "A" {
		t.Errorf("Expected B twice then A, got %v", order)
	}
}

func TestPool_WaitFailsBlockedTasks(t *testing.T) {
	results, stats, err := Run(context.Background(), testPoolConfig(2), []*Task{
		{ID: "orphan", DependsOn: []string{"never-added"}, Run: func(ctx context.Context) error { return nil }},
	})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if stats.Failed != 1 {
		t.Errorf("Expected orphan to fail, got %+v", stats)
	}
	if len(results) != 1 || !errors.Is(results[0].Err, ErrBlocked) {
		t.Errorf("Expected ErrBlocked result, got %+v", results)
	}
}

func TestPool_StopClosesQueue(t *testing.T) {
	q := New()
	pool := NewPool(q, testPoolConfig(2))
	pool.Start(context.Background())
	pool.Stop()
	pool.Stop()

	if err := q.Add(&Task{}); !errors.Is(err, ErrClosed) {
		t.Errorf("Expected ErrClosed after Stop, got %v", err)
	}
}

func TestPool_WaitHonoursContext(t *testing.T) {
	q := New()
	block := make(chan struct{})
	defer close(block)
	_ = q.Add(&Task{ID: "hang", Run: func(ctx context.Context) error { <-block; return nil }})

	pool := NewPool(q, PoolConfig{Workers: 1, PollInterval: time.Millisecond})
	pool.Start(context.Background())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- pool.Wait(ctx) }()

	// Let Wait observe the deadline, then release the task so Stop can drain.
	time.Sleep(40 * time.Millisecond)
	block <- struct{}{}

	if err := <-done; !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Expected deadline error, got %v", err)
	}
}
