package engine

import (
	"sync"
)

// taskQueue is a thread-safe FIFO of tasks shared by every worker.
//
// Unbounded so Submit never blocks. Each task is handed to exactly one
// worker. The signal channel holds at most one token; a consumer that takes
// the last token while work remains passes it on, so idle workers wake up
// one at a time instead of all at once.
type taskQueue struct {
	mu     sync.Mutex
	tasks  []*task
	closed bool
	signal chan struct{}
}

func newTaskQueue() *taskQueue {
	return &taskQueue{
		tasks:  make([]*task, 0, 64),
		signal: make(chan struct{}, 1),
	}
}

// Enqueue appends t. Returns false if the queue is closed.
func (q *taskQueue) Enqueue(t *task) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}

	q.tasks = append(q.tasks, t)
	q.notify()
	return true
}

// notify drops a wake-up token if none is pending. Caller holds mu.
func (q *taskQueue) notify() {
	if q.closed {
		return
	}
	select {
	case q.signal <- struct{}{}:
	default:
	}
}

// TryDequeue removes the front task without blocking.
func (q *taskQueue) TryDequeue() (*task, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.tasks) == 0 {
		return nil, false
	}

	t := q.tasks[0]
	q.tasks[0] = nil
	if len(q.tasks) == 1 {
		q.tasks = q.tasks[:0]
	} else {
		q.tasks = q.tasks[1:]
	}

	if len(q.tasks) > 0 {
		q.notify()
	}
	return t, true
}

// Dequeue blocks until a task is available. Returns false once the queue is
// closed and drained.
func (q *taskQueue) Dequeue() (*task, bool) {
	for {
		if t, ok := q.TryDequeue(); ok {
			return t, true
		}

		q.mu.Lock()
		if q.closed && len(q.tasks) == 0 {
			q.mu.Unlock()
			return nil, false
		}
		q.mu.Unlock()

		<-q.signal
	}
}

// Len returns the number of queued tasks.
func (q *taskQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.tasks)
}

// Close stops accepting tasks and wakes every waiter. Queued tasks are
// still handed out.
func (q *taskQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}
	q.closed = true
	close(q.signal)
}
