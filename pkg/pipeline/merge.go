package pipeline

import (
	"container/heap"
	"context"
	"errors"
	"io"
	"time"

	"github.com/ccollicutt/logsniff/pkg/record"
)

// RecordStream is a pull iterator over normalized records. *Result
// implements it.
type RecordStream interface {
	Next(ctx context.Context) (*record.Normalized, error)
	Close() error
}

// Merged combines several streams into one ordered by primary instant, oldest
// first. Records without an instant are emitted as soon as they reach the
// head of their stream.
type Merged struct {
	streams []RecordStream
	heap    *recordHeap
	started bool
}

// Merge creates a chronologically merged stream.
func Merge(streams ...RecordStream) *Merged {
	return &Merged{
		streams: streams,
		heap:    &recordHeap{},
	}
}

// Next returns the oldest pending record across all streams, or io.EOF when
// every stream is exhausted.
func (m *Merged) Next(ctx context.Context) (*record.Normalized, error) {
	if !m.started {
		m.started = true
		if err := m.init(ctx); err != nil {
			return nil, err
		}
	}
	if m.heap.Len() == 0 {
		return nil, io.EOF
	}

	item := heap.Pop(m.heap).(*heapItem)
	if err := m.refill(ctx, item.stream); err != nil {
		return nil, err
	}
	return item.rec, nil
}

func (m *Merged) init(ctx context.Context) error {
	heap.Init(m.heap)
	for i := range m.streams {
		if err := m.refill(ctx, i); err != nil {
			return err
		}
	}
	return nil
}

func (m *Merged) refill(ctx context.Context, i int) error {
	rec, err := m.streams[i].Next(ctx)
	if errors.Is(err, io.EOF) {
		return nil
	}
	if err != nil {
		return err
	}
	at, _ := rec.Primary()
	heap.Push(m.heap, &heapItem{rec: rec, at: at, stream: i})
	return nil
}

// Close closes every stream and returns the first error.
func (m *Merged) Close() error {
	var firstErr error
	for _, s := range m.streams {
		if err := s.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

type heapItem struct {
	rec    *record.Normalized
	at     time.Time
	stream int
}

// recordHeap orders items by instant, then by stream index.
type recordHeap []*heapItem

func (h recordHeap) Len() int { return len(h) }

func (h recordHeap) Less(i, j int) bool {
	if !h[i].at.Equal(h[j].at) {
		return h[i].at.Before(h[j].at)
	}
	return h[i].stream < h[j].stream
}

func (h recordHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *recordHeap) Push(x any) {
	*h = append(*h, x.(*heapItem))
}

func (h *recordHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return item
}
