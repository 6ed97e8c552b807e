// Copyright 2026 The Downlink Authors
// SPDX-License-Identifier: Apache-2.0

package dynabuf

import (
	"bytes"
	"errors"
	"testing"
)

func TestAppendAndBytes(t *testing.T) {
	b := New(4)
	if err := b.Append([]byte("abc")); err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	if err := b.Append([]byte("defgh")); err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	if got, want := b.Bytes(), []byte("abcdefgh"); !bytes.Equal(got, want) {
		t.Errorf("Bytes() = %q, want %q", got, want)
	}
	if b.Len() != 8 {
		t.Errorf("Len() = %d, want 8", b.Len())
	}
}

func TestClearKeepsCapacity(t *testing.T) {
	b := New(0)
	if err := b.Append(make([]byte, 1000)); err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	capBefore := b.Cap()
	b.Clear()
	if b.Len() != 0 {
		t.Errorf("Len() after Clear = %d, want 0", b.Len())
	}
	if b.Cap() != capBefore {
		t.Errorf("Cap() after Clear = %d, want %d", b.Cap(), capBefore)
	}
}

func TestGrowthDoubles(t *testing.T) {
	b := New(8)
	for i := 0; i < 100; i++ {
		if err := b.Append([]byte("0123456789")); err != nil {
			t.Fatalf("Append %d failed: %v", i, err)
		}
	}
	if b.Len() != 1000 {
		t.Errorf("Len() = %d, want 1000", b.Len())
	}
}

func TestLimit(t *testing.T) {
	b := NewWithLimit(0, 10)
	if err := b.Append(make([]byte, 10)); err != nil {
		t.Fatalf("Append within limit failed: %v", err)
	}
	err := b.Append([]byte{0})
	if !errors.Is(err, ErrLimit) {
		t.Errorf("Append past limit = %v, want ErrLimit", err)
	}
	// A failed append must not disturb the contents.
	if b.Len() != 10 {
		t.Errorf("Len() after failed append = %d, want 10", b.Len())
	}

	if _, err := b.Reserve(1); !errors.Is(err, ErrLimit) {
		t.Errorf("Reserve past limit = %v, want ErrLimit", err)
	}
}

func TestReserveCommit(t *testing.T) {
	b := New(0)
	if err := b.Append([]byte("head")); err != nil {
		t.Fatalf("Append failed: %v", err)
	}

	scratch, err := b.Reserve(16)
	if err != nil {
		t.Fatalf("Reserve failed: %v", err)
	}
	if len(scratch) != 16 {
		t.Fatalf("Reserve returned %d bytes, want 16", len(scratch))
	}
	// The reservation is invisible until committed.
	if b.Len() != 4 {
		t.Errorf("Len() after Reserve = %d, want 4", b.Len())
	}

	n := copy(scratch, "tail")
	if err := b.Commit(n); err != nil {
		t.Fatalf("Commit failed: %v", err)
	}
	if got, want := b.Bytes(), []byte("headtail"); !bytes.Equal(got, want) {
		t.Errorf("Bytes() = %q, want %q", got, want)
	}
}

func TestAbandonedReservation(t *testing.T) {
	b := New(0)
	if err := b.Append([]byte("data")); err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	if _, err := b.Reserve(100); err != nil {
		t.Fatalf("Reserve failed: %v", err)
	}
	// No Commit: the next append lands directly after the contents.
	if err := b.Append([]byte("more")); err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	if got, want := b.Bytes(), []byte("datamore"); !bytes.Equal(got, want) {
		t.Errorf("Bytes() = %q, want %q", got, want)
	}
}

func TestCommitBounds(t *testing.T) {
	b := New(8)
	if _, err := b.Reserve(4); err != nil {
		t.Fatalf("Reserve failed: %v", err)
	}
	if err := b.Commit(b.Cap() + 1); err == nil {
		t.Error("Commit past capacity should fail")
	}
	if err := b.Commit(-1); err == nil {
		t.Error("Commit of negative count should fail")
	}
}
