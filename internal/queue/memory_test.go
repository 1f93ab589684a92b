package queue

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMemoryQueueFIFO(t *testing.T) {
	q := NewMemoryQueue[int]()
	require.Equal(t, 0, q.Size())

	_, ok := q.Dequeue()
	require.False(t, ok)

	q.Enqueue(1, 2)
	q.Enqueue(3)
	require.Equal(t, 3, q.Size())

	for _, want := range []int{1, 2, 3} {
		got, ok := q.Dequeue()
		require.True(t, ok)
		require.Equal(t, want, got)
	}

	_, ok = q.Dequeue()
	require.False(t, ok)
}

func TestMemoryQueueDequeueAll(t *testing.T) {
	q := NewMemoryQueue[string]()
	q.Enqueue("a", "b", "c")

	require.Equal(t, []string{"a", "b", "c"}, q.DequeueAll())
	require.Equal(t, 0, q.Size())
	require.Empty(t, q.DequeueAll())

	q.Enqueue("d")
	got, ok := q.Dequeue()
	require.True(t, ok)
	require.Equal(t, "d", got)
}

func TestMemoryQueueConcurrentAccess(t *testing.T) {
	const producers, perProducer = 8, 250
	q := NewMemoryQueue[int]()

	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				q.Enqueue(i)
			}
		}()
	}
	wg.Wait()
	require.Equal(t, producers*perProducer, q.Size())

	var mu sync.Mutex
	seen := 0
	for c := 0; c < 4; c++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				if _, ok := q.Dequeue(); !ok {
					return
				}
				mu.Lock()
				seen++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	require.Equal(t, producers*perProducer, seen)
}
