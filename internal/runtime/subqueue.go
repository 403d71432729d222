package runtime

import (
	"sync"
)

// SubQueue decouples a producer from a single subscriber channel. Events are
// held in memory until the subscriber reads them; when maxLen is reached the
// oldest queued event is dropped so a stalled subscriber cannot grow it
// without bound.
type SubQueue[T any] struct {
	mu      sync.Mutex
	cond    *sync.Cond
	queue   []T
	maxLen  int
	dropped uint64
	closed  bool

	outCh  chan T // consumer reads from this
	paused bool   // gate dispatch until snapshot sent
}

// NewSubQueue creates a paused queue. maxLen <= 0 means unbounded.
func NewSubQueue[T any](outBuf, maxLen int) *SubQueue[T] {
	sq := &SubQueue[T]{
		outCh:  make(chan T, outBuf),
		maxLen: maxLen,
		paused: true,
	}
	sq.cond = sync.NewCond(&sq.mu)
	go sq.dispatch()
	return sq
}

// Channel exposed to subscriber.
func (sq *SubQueue[T]) Chan() <-chan T { return sq.outCh }

// Enqueue appends to the in-memory queue and wakes dispatcher.
func (sq *SubQueue[T]) Enqueue(ev T) {
	sq.mu.Lock()
	if !sq.closed {
		if sq.maxLen > 0 && len(sq.queue) >= sq.maxLen {
			var zero T
			sq.queue[0] = zero
			sq.queue = sq.queue[1:]
			sq.dropped++
		}
		sq.queue = append(sq.queue, ev)
		sq.cond.Signal()
	}
	sq.mu.Unlock()
}

// Dropped returns how many events were discarded because the queue was full.
func (sq *SubQueue[T]) Dropped() uint64 {
	sq.mu.Lock()
	defer sq.mu.Unlock()
	return sq.dropped
}

// SetPaused gates dispatching (used to hold back live events during snapshot).
func (sq *SubQueue[T]) SetPaused(v bool) {
	sq.mu.Lock()
	sq.paused = v
	sq.cond.Broadcast()
	sq.mu.Unlock()
}

// SnapshotSend pushes directly to the subscriber channel, bypassing the
// queue. Only valid while paused, and the channel must have room for the
// whole snapshot.
func (sq *SubQueue[T]) SnapshotSend(ev T) {
	sq.outCh <- ev
}

// Close stops the dispatcher and closes the out channel.
func (sq *SubQueue[T]) Close() {
	sq.mu.Lock()
	sq.closed = true
	sq.cond.Broadcast()
	sq.mu.Unlock()
}

func (sq *SubQueue[T]) dispatch() {
	for {
		sq.mu.Lock()
		for !sq.closed && (sq.paused || len(sq.queue) == 0) {
			sq.cond.Wait()
		}
		if sq.closed {
			sq.queue = nil
			sq.mu.Unlock()
			close(sq.outCh)
			return
		}
		ev := sq.queue[0]
		sq.queue = sq.queue[1:]
		sq.mu.Unlock()

		sq.outCh <- ev
	}
}
