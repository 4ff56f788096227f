// (c) Siemens AG 2023
//
// SPDX-License-Identifier: MIT

/*
Package ringbuf provides a fixed-capacity, lossy FIFO ring buffer that
decouples a single producer from a single consumer.

The producer never blocks: when the ring is full, [Ring.Push] rejects the new
item and counts it as dropped. The consumer uses [Ring.Wait] to sleep until
items become available, then pops them using [Ring.Pop] and processes them
outside the ring's lock. After [Ring.Close], Wait keeps returning true until
all items pushed before closing have been popped, so a consumer always drains
the ring completely on an orderly shutdown.
*/
package ringbuf

import (
	"sync"
)

// Ring is a fixed-capacity circular buffer of items of type T. The zero value
// is not usable; create rings using New.
type Ring[T any] struct {
	mu      sync.Mutex
	avail   *sync.Cond // signalled when size turns non-zero or on close.
	slots   []T
	first   int // index of the oldest item.
	last    int // index of the next free slot.
	size    int
	closed  bool
	pushed  uint64
	dropped uint64
}

// New returns a new ring with the specified fixed capacity, which must be at
// least 1.
func New[T any](capacity int) *Ring[T] {
	if capacity < 1 {
		panic("ringbuf: capacity must be at least 1")
	}
	r := &Ring[T]{
		slots: make([]T, capacity),
	}
	r.avail = sync.NewCond(&r.mu)
	return r
}

// Push appends item to the ring and wakes up a waiting consumer. If the ring
// is full or already closed, the item is rejected, the drop counter gets
// incremented, and Push returns false. Push never blocks for longer than it
// takes to update the ring's metadata.
func (r *Ring[T]) Push(item T) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed || r.size == len(r.slots) {
		r.dropped++
		return false
	}
	r.slots[r.last] = item
	r.last = (r.last + 1) % len(r.slots)
	r.size++
	r.pushed++
	if r.size == 1 {
		r.avail.Signal()
	}
	return true
}

// Pop removes the oldest item from the ring and returns it. If the ring is
// empty, Pop returns the zero value of T and false; it never blocks.
func (r *Ring[T]) Pop() (item T, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.size == 0 {
		return
	}
	var zero T
	item = r.slots[r.first]
	r.slots[r.first] = zero // don't keep popped items alive.
	r.first = (r.first + 1) % len(r.slots)
	r.size--
	return item, true
}

// Wait blocks until the ring contains at least one item, returning true, or
// until the ring has been closed and is empty, returning false.
func (r *Ring[T]) Wait() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for r.size == 0 && !r.closed {
		r.avail.Wait()
	}
	return r.size > 0
}

// Close marks the ring as closed: further pushes are rejected and a consumer
// blocked in Wait is woken up. Items already in the ring can still be popped.
// Close is idempotent.
func (r *Ring[T]) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	r.closed = true
	r.avail.Broadcast()
}

// Len returns the number of items currently in the ring.
func (r *Ring[T]) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.size
}

// Cap returns the fixed capacity of the ring.
func (r *Ring[T]) Cap() int {
	return len(r.slots)
}

// Stats returns the number of items successfully pushed and the number of
// items dropped so far.
func (r *Ring[T]) Stats() (pushed, dropped uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pushed, r.dropped
}
