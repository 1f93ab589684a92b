// Package queue holds the in-memory FIFO used between relay stages.
// Contents are not persisted; a restart re-scans from the checkpoint.
package queue

import "sync"

// MemoryQueue is an unbounded FIFO guarded by a single mutex.
type MemoryQueue[T any] struct {
	mu    sync.Mutex
	items []T
}

func NewMemoryQueue[T any]() *MemoryQueue[T] {
	return &MemoryQueue[T]{}
}

// Enqueue appends items in order.
func (q *MemoryQueue[T]) Enqueue(items ...T) {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.items = append(q.items, items...)
}

// Dequeue pops the oldest item. ok is false when the queue is empty.
func (q *MemoryQueue[T]) Dequeue() (item T, ok bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 {
		return item, false
	}

	item = q.items[0]
	var zero T
	q.items[0] = zero
	q.items = q.items[1:]
	return item, true
}

// DequeueAll drains the queue and returns its contents in insertion order.
func (q *MemoryQueue[T]) DequeueAll() []T {
	q.mu.Lock()
	defer q.mu.Unlock()

	items := q.items
	q.items = nil
	return items
}

func (q *MemoryQueue[T]) Size() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	return len(q.items)
}
