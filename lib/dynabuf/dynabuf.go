// Copyright 2026 The Downlink Authors
// SPDX-License-Identifier: Apache-2.0

// Package dynabuf provides the growable byte buffer that image
// assembly appends into. A single Buffer is typically created per
// ingest session and reused across many products: Clear keeps the
// allocated storage, so the buffer stops allocating once it has grown
// to the largest product seen.
//
// Reserve/Commit supports callers that must write through an external
// encoder of unknown output size: Reserve returns an uncommitted
// scratch region at the end of the buffer, and Commit folds the bytes
// actually produced into the contents. An abandoned reservation has
// no effect.
package dynabuf

import (
	"errors"
	"fmt"
)

// ErrLimit is returned (wrapped) when an operation would grow the
// buffer past the limit given to NewWithLimit.
var ErrLimit = errors.New("buffer limit exceeded")

// Buffer is an append-only byte buffer with explicit capacity
// management. The zero value is not usable; construct with New or
// NewWithLimit.
//
// Buffer is not safe for concurrent use.
type Buffer struct {
	data  []byte
	limit int // 0 means unlimited
}

// New returns an empty Buffer with the given initial capacity and no
// growth limit.
func New(capacity int) *Buffer {
	if capacity < 0 {
		capacity = 0
	}
	return &Buffer{data: make([]byte, 0, capacity)}
}

// NewWithLimit returns an empty Buffer that refuses to grow beyond
// limit bytes. A limit of zero means unlimited.
func NewWithLimit(capacity, limit int) *Buffer {
	if limit > 0 && capacity > limit {
		capacity = limit
	}
	b := New(capacity)
	b.limit = limit
	return b
}

// Len returns the number of committed bytes.
func (b *Buffer) Len() int { return len(b.data) }

// Cap returns the current capacity.
func (b *Buffer) Cap() int { return cap(b.data) }

// Bytes returns the committed contents. The slice aliases the
// buffer's storage and is invalidated by the next mutating call.
func (b *Buffer) Bytes() []byte { return b.data }

// Clear discards the contents but keeps the allocated capacity.
func (b *Buffer) Clear() { b.data = b.data[:0] }

// Append copies p onto the end of the buffer, growing it as needed.
func (b *Buffer) Append(p []byte) error {
	if err := b.ensure(len(p)); err != nil {
		return fmt.Errorf("append %d bytes to %d-byte buffer: %w",
			len(p), len(b.data), err)
	}
	b.data = append(b.data, p...)
	return nil
}

// Reserve guarantees capacity for n more bytes and returns the
// uncommitted region as a scratch slice of length n. The region
// becomes part of the contents only after a matching Commit. The
// returned slice is invalidated by any other mutating call.
func (b *Buffer) Reserve(n int) ([]byte, error) {
	if n < 0 {
		return nil, fmt.Errorf("reserve: negative count %d", n)
	}
	if err := b.ensure(n); err != nil {
		return nil, fmt.Errorf("reserve %d bytes beyond %d committed: %w",
			n, len(b.data), err)
	}
	return b.data[len(b.data) : len(b.data)+n], nil
}

// Commit extends the contents over the first n bytes of the most
// recent reservation.
func (b *Buffer) Commit(n int) error {
	if n < 0 || len(b.data)+n > cap(b.data) {
		return fmt.Errorf("commit %d bytes with %d reserved",
			n, cap(b.data)-len(b.data))
	}
	b.data = b.data[:len(b.data)+n]
	return nil
}

// ensure grows the backing array so at least n more bytes fit.
// Capacity doubles on growth (or jumps straight to the needed size
// when doubling is not enough), keeping repeated appends linear.
func (b *Buffer) ensure(n int) error {
	need := len(b.data) + n
	if b.limit > 0 && need > b.limit {
		return fmt.Errorf("%d bytes needed, limit is %d: %w",
			need, b.limit, ErrLimit)
	}
	if need <= cap(b.data) {
		return nil
	}
	newCap := 2 * cap(b.data)
	if newCap < need {
		newCap = need
	}
	if b.limit > 0 && newCap > b.limit {
		newCap = b.limit
	}
	grown := make([]byte, len(b.data), newCap)
	copy(grown, b.data)
	b.data = grown
	return nil
}
