// SPDX-License-Identifier: GPL-3.0-or-later

// Package queue implements the per-component packet and frame FIFOs:
// bookkeeping queues whose byte length and total duration are kept
// consistent with their contents.
package queue

import (
	"sync"

	"github.com/mediacore/engine/internal/native"
)

// PacketQueue is a FIFO of pending compressed packets for one component.
// buffer_length tracks the sum of packet sizes and duration the sum of
// packet durations, both zeroed by Clear.
type PacketQueue struct {
	mu       sync.Mutex
	cond     *sync.Cond
	items    []*native.Packet
	length   int64 // sum of packet sizes
	duration int64 // sum of packet durations (ticks)
	closed   bool
}

func NewPacketQueue() *PacketQueue {
	q := &PacketQueue{}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Push appends a packet (drain packets count toward bookkeeping with zero
// size/duration).
func (q *PacketQueue) Push(p *native.Packet) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = append(q.items, p)
	q.length += int64(p.Size)
	q.duration += p.Duration
	q.cond.Signal()
}

// Pop removes and returns the oldest packet, blocking until one is
// available or the queue is closed (in which case ok is false).
func (q *PacketQueue) Pop() (p *native.Packet, ok bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.items) == 0 && !q.closed {
		q.cond.Wait()
	}
	if len(q.items) == 0 {
		return nil, false
	}
	p = q.items[0]
	q.items = q.items[1:]
	q.length -= int64(p.Size)
	q.duration -= p.Duration
	return p, true
}

// TryPop removes and returns the oldest packet without blocking.
func (q *PacketQueue) TryPop() (p *native.Packet, ok bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return nil, false
	}
	p = q.items[0]
	q.items = q.items[1:]
	q.length -= int64(p.Size)
	q.duration -= p.Duration
	return p, true
}

// Len returns the number of queued packets.
func (q *PacketQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// BufferLength returns the sum of queued packet sizes.
func (q *PacketQueue) BufferLength() int64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.length
}

// Duration returns the sum of queued packet durations.
func (q *PacketQueue) Duration() int64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.duration
}

// Clear releases every queued packet's native memory and zeroes
// bookkeeping.
func (q *PacketQueue) Clear() {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, p := range q.items {
		p.Release()
	}
	q.items = nil
	q.length = 0
	q.duration = 0
}

// Close wakes any blocked Pop with ok=false; used during shutdown.
func (q *PacketQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	q.cond.Broadcast()
}

// Reopen clears the closed flag so the queue can be reused after a seek.
func (q *PacketQueue) Reopen() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = false
}

// SentQueue tracks packets handed to the codec but not yet confirmed
// consumed; cleared in bulk once a send/receive cycle produces output.
type SentQueue struct {
	mu    sync.Mutex
	items []*native.Packet
}

func NewSentQueue() *SentQueue { return &SentQueue{} }

func (q *SentQueue) Push(p *native.Packet) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = append(q.items, p)
}

// Clear releases every tracked packet's native memory.
func (q *SentQueue) Clear() {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, p := range q.items {
		p.Release()
	}
	q.items = nil
}

func (q *SentQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// FrameQueue is a FIFO of decoded raw frames awaiting materialisation.
type FrameQueue struct {
	mu     sync.Mutex
	cond   *sync.Cond
	items  []*native.Frame
	closed bool
}

func NewFrameQueue() *FrameQueue {
	q := &FrameQueue{}
	q.cond = sync.NewCond(&q.mu)
	return q
}

func (q *FrameQueue) Push(f *native.Frame) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = append(q.items, f)
	q.cond.Signal()
}

func (q *FrameQueue) Pop() (f *native.Frame, ok bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.items) == 0 && !q.closed {
		q.cond.Wait()
	}
	if len(q.items) == 0 {
		return nil, false
	}
	f = q.items[0]
	q.items = q.items[1:]
	return f, true
}

func (q *FrameQueue) TryPop() (f *native.Frame, ok bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return nil, false
	}
	f = q.items[0]
	q.items = q.items[1:]
	return f, true
}

func (q *FrameQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

func (q *FrameQueue) Clear() {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, f := range q.items {
		f.Release()
	}
	q.items = nil
}

func (q *FrameQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	q.cond.Broadcast()
}

func (q *FrameQueue) Reopen() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = false
}
