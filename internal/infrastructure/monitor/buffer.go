package monitor

import (
	"sync"
	"sync/atomic"

	"github.com/doeshing/extscan-go/internal/domain"
)

// batchBuffer collects classified events between exports. Swap hands the whole batch to
// the caller and installs a fresh slice, so ingestion never races with an export.
type batchBuffer struct {
	mu       sync.Mutex
	events   []domain.ClassifiedEvent
	capacity int
	dropped  atomic.Int64
}

func newBatchBuffer(capacity int) *batchBuffer {
	if capacity <= 0 {
		capacity = domain.DefaultBufferCapacity
	}
	return &batchBuffer{
		events:   make([]domain.ClassifiedEvent, 0, capacity),
		capacity: capacity,
	}
}

// Append adds ev unless the buffer is full, in which case the event is counted as dropped.
func (b *batchBuffer) Append(ev domain.ClassifiedEvent) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.events) >= b.capacity {
		b.dropped.Add(1)
		return false
	}
	b.events = append(b.events, ev)
	return true
}

// Swap returns the buffered batch and resets the buffer.
func (b *batchBuffer) Swap() []domain.ClassifiedEvent {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.events) == 0 {
		return nil
	}
	batch := b.events
	b.events = make([]domain.ClassifiedEvent, 0, b.capacity)
	return batch
}

// Len returns the number of buffered events.
func (b *batchBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.events)
}

// Dropped returns the number of events rejected because the buffer was full.
func (b *batchBuffer) Dropped() int64 {
	return b.dropped.Load()
}
