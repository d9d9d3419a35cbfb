package queue

import (
	"errors"
	"testing"
)

func noop() *Task { return &Task{} }

func mustNext(t *testing.T, q *Queue) *Task {
	t.Helper()
	task, ok := q.Next()
	if !ok {
		t.Fatal("Expected a ready task")
	}
	return task
}

func TestQueue_PriorityThenInsertionOrder(t *testing.T) {
	q := New()
	_ = q.AddAll([]*Task{
		{ID: "low", Priority: 5},
		{ID: "high", Priority: 1},
		{ID: "mid-a", Priority: 3},
		{ID: "mid-b", Priority: 3},
	})

	want := []string{"high", "mid-a", "mid-b", "low"}
	for _, id := range want {
		if got := mustNext(t, q); got.ID != id {
			t.Fatalf("Expected %s, got %s", id, got.ID)
		}
	}
	if _, ok := q.Next(); ok {
		t.Error("Expected empty queue")
	}
}

func TestQueue_DependenciesGateRelease(t *testing.T) {
	q := New()
	_ = q.Add(&Task{ID: "summary", Priority: 2})
	_ = q.Add(&Task{ID: "translate", Priority: 1, DependsOn: []string{"summary"}})

	first := mustNext(t, q)
	if first.ID != "summary" {
		t.Fatalf("Expected summary first despite lower priority of dependent, got %s", first.ID)
	}
	if _, ok := q.Next(); ok {
		t.Fatal("Dependent must not be released while dependency runs")
	}

	q.Complete("summary")
	if got := mustNext(t, q); got.ID != "translate" {
		t.Errorf("Expected translate, got %s", got.ID)
	}
}

func TestQueue_FailedDependencyStillReleasesDependent(t *testing.T) {
	q := New()
	b := &Task{ID: "B", MaxRetries: 2}
	_ = q.Add(b)
	_ = q.Add(&Task{ID: "A", DependsOn: []string{"B"}})

	for i := 0; i < 2; i++ {
		task := mustNext(t, q)
		if task.ID != "B" {
			t.Fatalf("Expected B retry, got %s", task.ID)
		}
		if !q.Fail(task, errors.New("boom")) {
			t.Fatalf("Expected requeue on attempt %d", i+1)
		}
	}
	task := mustNext(t, q)
	if q.Fail(task, errors.New("boom")) {
		t.Fatal("Expected B to be permanently failed after exhausting retries")
	}
	if b.Retries != 2 {
		t.Errorf("Expected 2 retries recorded, got %d", b.Retries)
	}

	if got := mustNext(t, q); got.ID != "A" {
		t.Errorf("Expected A to become eligible, got %s", got.ID)
	}
	if s, _ := q.Status("B"); s != StatusFailed {
		t.Errorf("Expected B failed, got %s", s)
	}
	if q.Err("B") == nil {
		t.Error("Expected B error to be kept")
	}
}

func TestQueue_Stats(t *testing.T) {
	q := New()
	_ = q.AddAll([]*Task{{ID: "1"}, {ID: "2"}, {ID: "3"}, {ID: "4"}})

	a := mustNext(t, q)
	b := mustNext(t, q)
	_ = mustNext(t, q)
	q.Complete(a.ID)
	q.Fail(b, errors.New("x"))

	got := q.Stats()
	want := Stats{Queued: 1, Running: 1, Completed: 1, Failed: 1}
	if got != want {
		t.Errorf("Stats() = %+v, want %+v", got, want)
	}
}

func TestQueue_AddErrors(t *testing.T) {
	q := New()
	if err := q.Add(&Task{ID: "x"}); err != nil {
		t.Fatalf("Add() error = %v", err)
	}
	if err := q.Add(&Task{ID: "x"}); !errors.Is(err, ErrDuplicateTask) {
		t.Errorf("Expected ErrDuplicateTask, got %v", err)
	}

	task := noop()
	_ = q.Add(task)
	if task.ID == "" {
		t.Error("Expected generated id")
	}

	q.Close()
	if err := q.Add(noop()); !errors.Is(err, ErrClosed) {
		t.Errorf("Expected ErrClosed, got %v", err)
	}
	if _, ok := q.Next(); !ok {
		t.Error("Queued tasks must remain available after Close")
	}
}

func TestQueue_UnblockUnknownDependency(t *testing.T) {
	q := New()
	_ = q.Add(&Task{ID: "orphan", DependsOn: []string{"ghost"}})
	_ = q.Add(&Task{ID: "after", DependsOn: []string{"orphan"}})

	if _, ok := q.Next(); ok {
		t.Fatal("Expected nothing ready")
	}
	blocked := q.Unblock()
	if blocked == nil || blocked.ID != "orphan" {
		t.Fatalf("Expected orphan to be unblocked, got %+v", blocked)
	}
	if !errors.Is(q.Err("orphan"), ErrBlocked) {
		t.Errorf("Expected ErrBlocked, got %v", q.Err("orphan"))
	}
	if got := mustNext(t, q); got.ID != "after" {
		t.Errorf("Expected dependent of failed task to run, got %s", got.ID)
	}
	if q.Unblock() != nil {
		t.Error("Unblock must be a no-op while a task is running")
	}
}

func TestQueue_CompleteIgnoresUnknown(t *testing.T) {
	q := New()
	q.Complete("missing")
	if q.Stats() != (Stats{}) {
		t.Errorf("Expected empty stats, got %+v", q.Stats())
	}
}
