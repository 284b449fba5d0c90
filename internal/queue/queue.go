package queue

import (
	"container/heap"
	"sync"
	"time"
)

// Item is a single buffered update
type Item[T any] struct {
	Value T
	At    time.Time
	seq   uint64
}

// timeHeap implements heap.Interface
type timeHeap[T any] []*Item[T]

func (h timeHeap[T]) Len() int {
	return len(h)
}

// Less orders by timestamp; items with equal timestamps keep their arrival order
func (h timeHeap[T]) Less(i, j int) bool {
	if h[i].At.Equal(h[j].At) {
		return h[i].seq < h[j].seq
	}
	return h[i].At.Before(h[j].At)
}

func (h timeHeap[T]) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
}

func (h *timeHeap[T]) Push(x any) {
	*h = append(*h, x.(*Item[T]))
}

func (h *timeHeap[T]) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil // avoid memory leak
	*h = old[0 : n-1]
	return item
}

// UpdateQueue buffers timestamped updates and releases them oldest first.
// It is safe for concurrent use.
type UpdateQueue[T any] struct {
	heap timeHeap[T]
	seq  uint64
	mu   sync.Mutex
}

func NewUpdateQueue[T any]() *UpdateQueue[T] {
	q := &UpdateQueue[T]{
		heap: make(timeHeap[T], 0),
	}
	heap.Init(&q.heap)
	return q
}

func (q *UpdateQueue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.heap.Len()
}

// Enqueue buffers value with its timestamp
func (q *UpdateQueue[T]) Enqueue(value T, at time.Time) {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.seq++
	heap.Push(&q.heap, &Item[T]{
		Value: value,
		At:    at,
		seq:   q.seq,
	})
}

// DequeueAll drains the queue, oldest first
func (q *UpdateQueue[T]) DequeueAll() []T {
	q.mu.Lock()
	defer q.mu.Unlock()

	items := make([]T, 0, q.heap.Len())
	for q.heap.Len() > 0 {
		items = append(items, heap.Pop(&q.heap).(*Item[T]).Value)
	}
	return items
}
