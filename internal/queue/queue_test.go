// SPDX-License-Identifier: GPL-3.0-or-later

package queue

import (
	"testing"
	"time"

	"github.com/mediacore/engine/internal/native"
)

func TestPacketQueuePushPopBookkeeping(t *testing.T) {
	q := NewPacketQueue()
	q.Push(&native.Packet{Size: 10, Duration: 100})
	q.Push(&native.Packet{Size: 20, Duration: 200})

	if got, want := q.BufferLength(), int64(30); got != want {
		t.Fatalf("BufferLength() = %d, want %d", got, want)
	}
	if got, want := q.Duration(), int64(300); got != want {
		t.Fatalf("Duration() = %d, want %d", got, want)
	}

	p, ok := q.Pop()
	if !ok || p.Size != 10 {
		t.Fatalf("Pop() = %+v, %v, want first packet", p, ok)
	}
	if got, want := q.BufferLength(), int64(20); got != want {
		t.Fatalf("BufferLength() after pop = %d, want %d", got, want)
	}
}

func TestPacketQueueTryPopEmpty(t *testing.T) {
	q := NewPacketQueue()
	if _, ok := q.TryPop(); ok {
		t.Fatal("TryPop on empty queue returned ok=true")
	}
}

func TestPacketQueuePopBlocksUntilPush(t *testing.T) {
	q := NewPacketQueue()
	done := make(chan *native.Packet, 1)
	go func() {
		p, ok := q.Pop()
		if ok {
			done <- p
		} else {
			done <- nil
		}
	}()

	select {
	case <-done:
		t.Fatal("Pop returned before any packet was pushed")
	case <-time.After(20 * time.Millisecond):
	}

	q.Push(&native.Packet{Size: 5})
	select {
	case p := <-done:
		if p == nil || p.Size != 5 {
			t.Fatalf("Pop() = %+v, want size 5", p)
		}
	case <-time.After(time.Second):
		t.Fatal("Pop never woke up after Push")
	}
}

func TestPacketQueueCloseWakesPop(t *testing.T) {
	q := NewPacketQueue()
	done := make(chan bool, 1)
	go func() {
		_, ok := q.Pop()
		done <- ok
	}()
	time.Sleep(10 * time.Millisecond)
	q.Close()
	select {
	case ok := <-done:
		if ok {
			t.Fatal("Pop() ok=true after Close with no items")
		}
	case <-time.After(time.Second):
		t.Fatal("Close did not wake a blocked Pop")
	}
}

func TestPacketQueueClearZeroesBookkeeping(t *testing.T) {
	q := NewPacketQueue()
	q.Push(&native.Packet{Size: 10, Duration: 5})
	q.Clear()
	if q.Len() != 0 || q.BufferLength() != 0 || q.Duration() != 0 {
		t.Fatalf("Clear left Len=%d BufferLength=%d Duration=%d, want all zero", q.Len(), q.BufferLength(), q.Duration())
	}
}

func TestFrameQueueOrdering(t *testing.T) {
	q := NewFrameQueue()
	q.Push(&native.Frame{StartTicks: 1})
	q.Push(&native.Frame{StartTicks: 2})

	f1, ok := q.TryPop()
	if !ok || f1.StartTicks != 1 {
		t.Fatalf("first TryPop = %+v, want StartTicks=1", f1)
	}
	f2, ok := q.TryPop()
	if !ok || f2.StartTicks != 2 {
		t.Fatalf("second TryPop = %+v, want StartTicks=2", f2)
	}
	if _, ok := q.TryPop(); ok {
		t.Fatal("TryPop on drained queue returned ok=true")
	}
}

func TestSentQueueLenAndClear(t *testing.T) {
	q := NewSentQueue()
	q.Push(&native.Packet{})
	q.Push(&native.Packet{})
	if q.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", q.Len())
	}
	q.Clear()
	if q.Len() != 0 {
		t.Fatalf("Len() after Clear = %d, want 0", q.Len())
	}
}
