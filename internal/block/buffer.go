// SPDX-License-Identifier: GPL-3.0-or-later

package block

import (
	"sort"
	"sync"

	"github.com/mediacore/engine/internal/native"
	"github.com/mediacore/engine/internal/types"
)

// Materialiser converts a raw native frame into an existing Block,
// reusing the block's buffer where possible. Implemented per media type by
// internal/component.
type Materialiser interface {
	Materialise(f *native.Frame, into Block) error
}

// Buffer is the per-media-type ring of reusable blocks described in §4.3:
// a capped, time-ordered sequence served by timestamp, with blocks
// recycled between the pool and the playback list.
type Buffer struct {
	mu        sync.Mutex
	mediaType types.MediaType
	capacity  int
	pool      []Block
	playback  []Block
	mat       Materialiser
}

// NewBuffer preallocates capacity blocks of the given media type, all
// starting in the pool.
func NewBuffer(mt types.MediaType, capacity int, mat Materialiser) (*Buffer, error) {
	b := &Buffer{mediaType: mt, capacity: capacity, mat: mat}
	for i := 0; i < capacity; i++ {
		blk, err := New(mt)
		if err != nil {
			return nil, err
		}
		b.pool = append(b.pool, blk)
	}
	return b, nil
}

// Add materialises frame into a reused block and inserts it into the
// playback list in sorted order, per §4.3's add contract.
func (b *Buffer) Add(f *native.Frame, streamIndex int) (Block, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	// If a playback block at exactly this start time exists, evict it back
	// to the pool first so no two playback blocks share a start_time.
	if i := b.findExact(f.StartTicks); i >= 0 {
		b.evictLocked(i)
	}

	if len(b.pool) == 0 {
		// Pool empty: evict the oldest playback block to make room.
		if len(b.playback) == 0 {
			return nil, types.Wrap(types.ErrConvertFailed, "block buffer: zero capacity")
		}
		b.evictLocked(0)
	}

	blk := b.pool[len(b.pool)-1]
	b.pool = b.pool[:len(b.pool)-1]

	if err := b.mat.Materialise(f, blk); err != nil {
		// Return the block to the pool; the frame is dropped per the
		// per-frame failure policy of §7.
		b.pool = append(b.pool, blk)
		return nil, err
	}
	blk.setTimes(streamIndex, f.StartTicks, f.EndTicks)

	idx := sort.Search(len(b.playback), func(i int) bool {
		return b.playback[i].StartTime() >= f.StartTicks
	})
	b.playback = append(b.playback, nil)
	copy(b.playback[idx+1:], b.playback[idx:])
	b.playback[idx] = blk

	return blk, nil
}

// evictLocked moves playback[i] back to the pool. Caller holds the lock.
func (b *Buffer) evictLocked(i int) {
	blk := b.playback[i]
	b.playback = append(b.playback[:i], b.playback[i+1:]...)
	b.pool = append(b.pool, blk)
}

func (b *Buffer) findExact(start int64) int {
	for i, blk := range b.playback {
		if blk.StartTime() == start {
			return i
		}
	}
	return -1
}

// IndexOf returns the greatest index with start_time <= t, 0 if t precedes
// the range, or the last index if t follows it, found by binary search.
func (b *Buffer) IndexOf(t int64) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.indexOfLocked(t)
}

func (b *Buffer) indexOfLocked(t int64) int {
	n := len(b.playback)
	if n == 0 {
		return 0
	}
	if t <= b.playback[0].StartTime() {
		return 0
	}
	if t >= b.playback[n-1].StartTime() {
		return n - 1
	}

	lo, hi := 0, n-1
	for lo < hi {
		mid := (lo + hi + 1) / 2
		if b.playback[mid].StartTime() <= t {
			lo = mid
		} else {
			hi = mid - 1
		}
	}
	return lo
}

// BlockAt returns the block at IndexOf(t), or nil if the buffer is empty.
func (b *Buffer) BlockAt(t int64) Block {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.playback) == 0 {
		return nil
	}
	return b.playback[b.indexOfLocked(t)]
}

// Next returns the block immediately after current in the playback list,
// or nil if current is the last block or not found.
func (b *Buffer) Next(current Block) Block {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, blk := range b.playback {
		if blk == current {
			if i+1 < len(b.playback) {
				return b.playback[i+1]
			}
			return nil
		}
	}
	return nil
}

// RangeStartTime returns the first playback block's start time, 0 if empty.
func (b *Buffer) RangeStartTime() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.playback) == 0 {
		return 0
	}
	return b.playback[0].StartTime()
}

// RangeEndTime returns the last playback block's end time, 0 if empty.
func (b *Buffer) RangeEndTime() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.playback) == 0 {
		return 0
	}
	return b.playback[len(b.playback)-1].EndTime()
}

// RangeDuration returns RangeEndTime - RangeStartTime.
func (b *Buffer) RangeDuration() int64 {
	return b.RangeEndTime() - b.RangeStartTime()
}

// IsMonotonic reports whether every playback block shares the same
// duration.
func (b *Buffer) IsMonotonic() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.playback) < 2 {
		return true
	}
	d := b.playback[0].Duration()
	for _, blk := range b.playback[1:] {
		if blk.Duration() != d {
			return false
		}
	}
	return true
}

// CapacityPercent returns len(playback) / capacity.
func (b *Buffer) CapacityPercent() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.capacity == 0 {
		return 0
	}
	return float64(len(b.playback)) / float64(b.capacity)
}

// Len returns the number of blocks currently in the playback list.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.playback)
}

// Capacity returns the buffer's fixed capacity.
func (b *Buffer) Capacity() int { return b.capacity }

// Clear returns all playback blocks to the pool without deallocating.
func (b *Buffer) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.pool = append(b.pool, b.playback...)
	b.playback = nil
}

// Dispose releases all block memory; the buffer must not be used
// afterwards.
func (b *Buffer) Dispose() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.pool = nil
	b.playback = nil
}
