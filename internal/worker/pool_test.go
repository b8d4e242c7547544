package worker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestNewPool(t *testing.T) {
	p1 := NewPool[int](context.Background(), 5)
	if p1.workers != 5 {
		t.Errorf("expected 5 workers, got %d", p1.workers)
	}

	p2 := NewPool[int](context.Background(), 0)
	if p2.workers != 1 {
		t.Errorf("expected default 1 worker for 0 input, got %d", p2.workers)
	}

	p3 := NewPool[int](context.Background(), -1)
	if p3.workers != 1 {
		t.Errorf("expected default 1 worker for negative input, got %d", p3.workers)
	}
}

func TestPool_ExecutionOrder(t *testing.T) {
	pool := NewPool[int](context.Background(), 3)
	pool.Start()

	count := 5
	for i := 0; i < count; i++ {
		pool.Submit(func(ctx context.Context) (int, error) {
			time.Sleep(time.Duration(count-i) * time.Millisecond)
			return i * 10, nil
		})
	}

	results := pool.Wait()
	if len(results) != count {
		t.Fatalf("expected %d results, got %d", count, len(results))
	}
	for i, r := range results {
		if r.Index != i || r.Value != i*10 {
			t.Errorf("result %d = %+v, want index %d value %d", i, r, i, i*10)
		}
	}
}

func TestPool_ErrorAndPanic(t *testing.T) {
	pool := NewPool[string](context.Background(), 2)
	pool.Start()

	pool.Submit(func(ctx context.Context) (string, error) { return "", errors.New("job error") })
	pool.Submit(func(ctx context.Context) (string, error) { panic("boom") })
	pool.Submit(func(ctx context.Context) (string, error) { return "ok", nil })

	results := pool.Wait()
	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
	if results[0].Err == nil || results[1].Err == nil {
		t.Errorf("expected errors for the first two tasks, got %+v", results[:2])
	}
	if results[2].Err != nil || results[2].Value != "ok" {
		t.Errorf("unexpected third result %+v", results[2])
	}
}

func TestPool_SubmitAfterShutdown(t *testing.T) {
	pool := NewPool[int](context.Background(), 2)
	pool.Start()
	pool.Shutdown()

	done := make(chan bool)
	go func() {
		done <- pool.Submit(func(ctx context.Context) (int, error) { return 1, nil })
	}()

	select {
	case accepted := <-done:
		if accepted {
			t.Error("expected Submit to refuse work after shutdown")
		}
	case <-time.After(time.Second):
		t.Fatal("Submit after shutdown blocked")
	}
}

func TestPool_Shutdown(t *testing.T) {
	pool := NewPool[int](context.Background(), 2)
	pool.Start()

	started := make(chan struct{})
	pool.Submit(func(ctx context.Context) (int, error) {
		close(started)
		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		case <-time.After(5 * time.Second):
			return 1, nil
		}
	})
	<-started

	done := make(chan struct{})
	go func() {
		pool.Shutdown()
		for range pool.results {
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Shutdown timed out")
	}
}

func TestMap_BoundedConcurrency(t *testing.T) {
	workers := 4
	var current, maxSeen int32
	var mu sync.Mutex

	items := make([]int, 40)
	for i := range items {
		items[i] = i
	}

	results := Map(context.Background(), workers, items, func(ctx context.Context, n int) (int, error) {
		c := atomic.AddInt32(&current, 1)
		mu.Lock()
		if c > maxSeen {
			maxSeen = c
		}
		mu.Unlock()
		time.Sleep(2 * time.Millisecond)
		atomic.AddInt32(&current, -1)
		return n * n, nil
	})

	if len(results) != len(items) {
		t.Fatalf("expected %d results, got %d", len(items), len(results))
	}
	for i, r := range results {
		if r.Err != nil || r.Value != i*i {
			t.Errorf("result %d = %+v", i, r)
		}
	}
	if maxSeen > int32(workers) {
		t.Errorf("max concurrency %d exceeded workers %d", maxSeen, workers)
	}
}

func TestMap_Empty(t *testing.T) {
	results := Map(context.Background(), 2, []string{}, func(ctx context.Context, s string) (string, error) {
		return s, nil
	})
	if len(results) != 0 {
		t.Errorf("expected no results, got %d", len(results))
	}
}

func TestMap_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	results := Map(ctx, 2, []int{1, 2, 3}, func(ctx context.Context, n int) (int, error) {
		return n, ctx.Err()
	})
	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
	for i, r := range results {
		if !errors.Is(r.Err, context.Canceled) {
			t.Errorf("result %d: expected context.Canceled, got %v", i, r.Err)
		}
	}
}
