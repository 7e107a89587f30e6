// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package audit

import (
	"context"
	"slices"
	"sync"
)

//go:generate mockgen -destination=mocks/mock_store.go -package=mocks -source=store.go Store

// Store persists audit events and keeps at most a fixed number of them.
type Store interface {
	// Append adds an event, evicting the oldest when the store is full.
	Append(ctx context.Context, e Event) error
	// Tail returns up to limit events, newest first.
	Tail(ctx context.Context, limit int) ([]Event, error)
	// Len returns the number of stored events.
	Len(ctx context.Context) (int, error)
}

// RingBuffer is an in-memory Store of fixed capacity.
type RingBuffer struct {
	mu       sync.RWMutex
	buf      []Event
	start    int
	size     int
	capacity int
}

// NewRingBuffer creates a ring holding at most capacity events. A capacity
// below one selects the default of 1000.
func NewRingBuffer(capacity int) *RingBuffer {
	if capacity < 1 {
		capacity = 1000
	}
	return &RingBuffer{
		buf:      make([]Event, capacity),
		capacity: capacity,
	}
}

// Capacity returns the maximum number of events kept.
func (r *RingBuffer) Capacity() int {
	return r.capacity
}

// Append implements Store. Eviction happens under the same lock as the write.
func (r *RingBuffer) Append(_ context.Context, e Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.size < r.capacity {
		r.buf[(r.start+r.size)%r.capacity] = e
		r.size++
		return nil
	}
	r.buf[r.start] = e
	r.start = (r.start + 1) % r.capacity
	return nil
}

// Tail implements Store.
func (r *RingBuffer) Tail(_ context.Context, limit int) ([]Event, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if limit <= 0 || limit > r.size {
		limit = r.size
	}
	out := make([]Event, 0, limit)
	for i := range limit {
		out = append(out, r.buf[(r.start+r.size-1-i)%r.capacity])
	}
	return out, nil
}

// Len implements Store.
func (r *RingBuffer) Len(context.Context) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.size, nil
}

// Events returns every stored event, oldest first.
func (r *RingBuffer) Events() []Event {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Event, 0, r.size)
	for i := range r.size {
		out = append(out, r.buf[(r.start+i)%r.capacity])
	}
	return slices.Clip(out)
}
