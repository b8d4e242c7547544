package worker

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
)

// Task is a unit of work producing a value
type Task[T any] func(ctx context.Context) (T, error)

// Result carries a task's output together with its submission order
type Result[T any] struct {
	Index int
	Value T
	Err   error
}

type queued[T any] struct {
	index int
	task  Task[T]
}

// Pool runs tasks on a fixed number of goroutines
type Pool[T any] struct {
	workers    int
	jobQueue   chan queued[T]
	results    chan Result[T]
	next       atomic.Int64
	wg         sync.WaitGroup
	ctx        context.Context
	cancelFunc context.CancelFunc
	closeOnce  sync.Once
}

// NewPool creates a pool bound to ctx; cancelling ctx stops the workers
func NewPool[T any](ctx context.Context, workers int) *Pool[T] {
	if workers <= 0 {
		workers = 1
	}

	ctx, cancel := context.WithCancel(ctx)

	return &Pool[T]{
		workers:    workers,
		jobQueue:   make(chan queued[T], workers*2),
		results:    make(chan Result[T], workers*2),
		ctx:        ctx,
		cancelFunc: cancel,
	}
}

// Start launches the workers
func (p *Pool[T]) Start() {
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker()
	}
}

func (p *Pool[T]) worker() {
	defer p.wg.Done()

	for {
		select {
		case <-p.ctx.Done():
			return
		case job, ok := <-p.jobQueue:
			if !ok {
				return
			}
			result := run(p.ctx, job)
			select {
			case p.results <- result:
			case <-p.ctx.Done():
				return
			}
		}
	}
}

func run[T any](ctx context.Context, job queued[T]) (res Result[T]) {
	res.Index = job.index
	defer func() {
		if r := recover(); r != nil {
			res.Err = fmt.Errorf("task %d panicked: %v", job.index, r)
		}
	}()
	res.Value, res.Err = job.task(ctx)
	return res
}

// Submit queues a task. It returns false when the pool has been cancelled.
// Results are drained only by Wait, so callers submitting more than
// 2x workers tasks must call Wait from another goroutine or use Map.
func (p *Pool[T]) Submit(task Task[T]) bool {
	if p.ctx.Err() != nil {
		return false
	}
	job := queued[T]{index: int(p.next.Add(1) - 1), task: task}
	select {
	case <-p.ctx.Done():
		return false
	case p.jobQueue <- job:
		return true
	}
}

// Wait closes the queue, waits for the workers and returns results in submission order
func (p *Pool[T]) Wait() []Result[T] {
	close(p.jobQueue)

	go func() {
		p.wg.Wait()
		p.closeResults()
	}()

	var results []Result[T]
	for result := range p.results {
		results = append(results, result)
	}

	slices.SortFunc(results, func(a, b Result[T]) int { return a.Index - b.Index })
	return results
}

// Shutdown cancels in-flight work and stops the workers
func (p *Pool[T]) Shutdown() {
	p.cancelFunc()
	p.wg.Wait()
	p.closeResults()
}

func (p *Pool[T]) closeResults() {
	p.closeOnce.Do(func() {
		close(p.results)
	})
}

// Map applies fn to every item with bounded concurrency.
// The returned slice is aligned with items; items never run
// because ctx was cancelled carry the context error.
func Map[In, Out any](ctx context.Context, workers int, items []In, fn func(context.Context, In) (Out, error)) []Result[Out] {
	out := make([]Result[Out], len(items))
	if len(items) == 0 {
		return out
	}

	pool := NewPool[Out](ctx, workers)
	defer pool.cancelFunc()
	pool.Start()

	seen := make([]bool, len(items))
	done := make(chan struct{})
	go func() {
		defer close(done)
		for r := range pool.results {
			out[r.Index] = r
			seen[r.Index] = true
		}
	}()

	for _, item := range items {
		if !pool.Submit(func(ctx context.Context) (Out, error) { return fn(ctx, item) }) {
			break
		}
	}
	close(pool.jobQueue)
	pool.wg.Wait()
	pool.closeResults()
	<-done

	for i := range out {
		if seen[i] {
			continue
		}
		err := ctx.Err()
		if err == nil {
			err = context.Canceled
		}
		out[i] = Result[Out]{Index: i, Err: err}
	}
	return out
}
