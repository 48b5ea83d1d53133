// Package queue serializes work per key with a bounded number of tasks in
// flight, dispatching waiting tasks in FIFO order.
package queue

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	fifo "github.com/eapache/queue"
)

// Task is a unit of queued work.
type Task func(ctx context.Context) (any, error)

// Future resolves once its task has run or been abandoned.
type Future struct {
	done  chan struct{}
	value any
	err   error
}

func newFuture() *Future {
	return &Future{done: make(chan struct{})}
}

func (f *Future) resolve(value any, err error) {
	f.value = value
	f.err = err
	close(f.done)
}

// Done is closed when the future resolves.
func (f *Future) Done() <-chan struct{} {
	return f.done
}

// Wait blocks until the task settles or ctx is done.
func (f *Future) Wait(ctx context.Context) (any, error) {
	select {
	case <-f.done:
		return f.value, f.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

type job struct {
	ctx    context.Context
	task   Task
	future *Future
}

type lane struct {
	active  int
	pending *fifo.Queue
}

// Stats describes the state of one key.
type Stats struct {
	Active  int
	Pending int
}

// Queue runs at most maxConcurrent tasks per key.
type Queue struct {
	mu            sync.Mutex
	maxConcurrent int
	limits        map[string]int
	lanes         map[string]*lane
	logger        *slog.Logger
}

func New(logger *slog.Logger, maxConcurrent int) *Queue {
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}

	return &Queue{
		maxConcurrent: maxConcurrent,
		limits:        make(map[string]int),
		lanes:         make(map[string]*lane),
		logger:        logger,
	}
}

// SetLimit overrides the concurrency ceiling for one key.
func (q *Queue) SetLimit(key string, maxConcurrent int) {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.limits[key] = max(1, maxConcurrent)
}

// Enqueue registers task under key before returning, so tasks enqueued from
// one goroutine start in call order.
func (q *Queue) Enqueue(ctx context.Context, key string, task Task) *Future {
	j := &job{ctx: ctx, task: task, future: newFuture()}

	q.mu.Lock()

	l, ok := q.lanes[key]
	if !ok {
		l = &lane{pending: fifo.New()}
		q.lanes[key] = l
	}

	if l.active < q.limit(key) {
		l.active++
		q.mu.Unlock()

		go q.run(key, j)

		return j.future
	}

	l.pending.Add(j)
	q.mu.Unlock()

	return j.future
}

// Do enqueues task and waits for its result.
func (q *Queue) Do(ctx context.Context, key string, task Task) (any, error) {
	return q.Enqueue(ctx, key, task).Wait(ctx)
}

// Stats returns active and pending counts for key.
func (q *Queue) Stats(key string) Stats {
	q.mu.Lock()
	defer q.mu.Unlock()

	l, ok := q.lanes[key]
	if !ok {
		return Stats{}
	}

	return Stats{Active: l.active, Pending: l.pending.Length()}
}

func (q *Queue) run(key string, j *job) {
	for j != nil {
		if err := j.ctx.Err(); err != nil {
			// Cancelled while waiting; never started.
			j.future.resolve(nil, err)
		} else {
			value, err := q.execute(key, j)
			j.future.resolve(value, err)
		}

		j = q.next(key)
	}
}

func (q *Queue) execute(key string, j *job) (value any, err error) {
	defer func() {
		if r := recover(); r != nil {
			q.logger.Error("queued task panicked", "key", key, "panic", r)
			err = fmt.Errorf("queued task for %s panicked: %v", key, r)
		}
	}()

	return j.task(j.ctx)
}

// next hands the slot to the oldest pending job or releases it.
func (q *Queue) next(key string) *job {
	q.mu.Lock()
	defer q.mu.Unlock()

	l := q.lanes[key]
	if l.pending.Length() > 0 {
		j, _ := l.pending.Remove().(*job)

		return j
	}

	l.active--
	if l.active == 0 {
		delete(q.lanes, key)
	}

	return nil
}

func (q *Queue) limit(key string) int {
	if limit, ok := q.limits[key]; ok {
		return limit
	}

	return q.maxConcurrent
}
