package engine

import "context"

// TaskQueue is a FIFO hand-off channel for pending tasks. Termination is
// signalled by closing the underlying channel: every blocked worker
// observes the close exactly once and exits after finishing its in-flight
// task.
type TaskQueue struct {
	ch chan Task
}

// NewTaskQueue creates a queue with the given capacity.
func NewTaskQueue(capacity int) *TaskQueue {
	return &TaskQueue{ch: make(chan Task, capacity)}
}

// Put enqueues a task. Blocks if the queue is full.
func (q *TaskQueue) Put(t Task) {
	q.ch <- t
}

// Get blocks until a task is available, the queue is closed, or the
// context is cancelled. ok is false in the latter two cases.
func (q *TaskQueue) Get(ctx context.Context) (t Task, ok bool) {
	select {
	case t, ok = <-q.ch:
		return t, ok
	case <-ctx.Done():
		return Task{}, false
	}
}

// Close signals no more tasks will arrive.
func (q *TaskQueue) Close() {
	close(q.ch)
}

// ResultQueue carries terminal results from workers to the single result
// consumer. It is closed once, after all workers have exited.
type ResultQueue struct {
	ch chan Result
}

// NewResultQueue creates a queue with the given capacity.
func NewResultQueue(capacity int) *ResultQueue {
	return &ResultQueue{ch: make(chan Result, capacity)}
}

// Put enqueues a result.
func (q *ResultQueue) Put(r Result) {
	q.ch <- r
}

// Drain returns the receive channel for ranging until close.
func (q *ResultQueue) Drain() <-chan Result {
	return q.ch
}

// Close signals no more results will arrive.
func (q *ResultQueue) Close() {
	close(q.ch)
}
