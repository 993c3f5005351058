// SPDX-License-Identifier: GPL-3.0-or-later

package block

import (
	"testing"

	"github.com/mediacore/engine/internal/native"
	"github.com/mediacore/engine/internal/types"
)

// passthroughMaterialiser gives a VideoBlock a small fixed-size buffer and
// ignores the frame's payload, so tests can assert on the block's
// timestamps without pulling in a real scaler/resampler.
type passthroughMaterialiser struct{}

func (passthroughMaterialiser) Materialise(f *native.Frame, into Block) error {
	if vb, ok := into.(*VideoBlock); ok {
		vb.EnsureCapacity(3, 2)
	}
	return nil
}

func newTestBuffer(t *testing.T, capacity int) *Buffer {
	t.Helper()
	buf, err := NewBuffer(types.MediaTypeVideo, capacity, passthroughMaterialiser{})
	if err != nil {
		t.Fatalf("NewBuffer: %v", err)
	}
	return buf
}

func TestBufferAddOrdersByStartTime(t *testing.T) {
	buf := newTestBuffer(t, 4)
	for _, start := range []int64{30, 10, 20} {
		if _, err := buf.Add(&native.Frame{StartTicks: start, EndTicks: start + 5}, 0); err != nil {
			t.Fatalf("Add(%d): %v", start, err)
		}
	}
	if buf.Len() != 3 {
		t.Fatalf("Len() = %d, want 3", buf.Len())
	}
	if got := buf.RangeStartTime(); got != 10 {
		t.Fatalf("RangeStartTime() = %d, want 10", got)
	}
	if got := buf.RangeEndTime(); got != 35 {
		t.Fatalf("RangeEndTime() = %d, want 35", got)
	}
}

func TestBufferAddSameStartTimeEvictsPrevious(t *testing.T) {
	buf := newTestBuffer(t, 4)
	buf.Add(&native.Frame{StartTicks: 10, EndTicks: 20}, 0)
	buf.Add(&native.Frame{StartTicks: 10, EndTicks: 25}, 0)
	if buf.Len() != 1 {
		t.Fatalf("Len() = %d, want 1 (duplicate start_time should evict)", buf.Len())
	}
	if got := buf.RangeEndTime(); got != 25 {
		t.Fatalf("RangeEndTime() = %d, want 25", got)
	}
}

func TestBufferAddBeyondCapacityEvictsOldest(t *testing.T) {
	buf := newTestBuffer(t, 2)
	buf.Add(&native.Frame{StartTicks: 10, EndTicks: 20}, 0)
	buf.Add(&native.Frame{StartTicks: 20, EndTicks: 30}, 0)
	buf.Add(&native.Frame{StartTicks: 30, EndTicks: 40}, 0)
	if buf.Len() != 2 {
		t.Fatalf("Len() = %d, want 2 (capacity should cap playback length)", buf.Len())
	}
	if got := buf.RangeStartTime(); got != 20 {
		t.Fatalf("RangeStartTime() = %d, want 20 (oldest block should have been evicted)", got)
	}
}

func TestBufferIndexOfAndBlockAt(t *testing.T) {
	buf := newTestBuffer(t, 8)
	for _, start := range []int64{0, 100, 200, 300} {
		buf.Add(&native.Frame{StartTicks: start, EndTicks: start + 100}, 0)
	}

	cases := []struct {
		t    int64
		want int64
	}{
		{t: -50, want: 0},
		{t: 0, want: 0},
		{t: 150, want: 100},
		{t: 250, want: 200},
		{t: 1000, want: 300},
	}
	for _, tc := range cases {
		blk := buf.BlockAt(tc.t)
		if blk == nil {
			t.Fatalf("BlockAt(%d) = nil", tc.t)
		}
		if got := blk.StartTime(); got != tc.want {
			t.Errorf("BlockAt(%d).StartTime() = %d, want %d", tc.t, got, tc.want)
		}
	}
}

func TestBufferClearReturnsBlocksToPool(t *testing.T) {
	buf := newTestBuffer(t, 3)
	buf.Add(&native.Frame{StartTicks: 1, EndTicks: 2}, 0)
	buf.Add(&native.Frame{StartTicks: 2, EndTicks: 3}, 0)
	buf.Clear()
	if buf.Len() != 0 {
		t.Fatalf("Len() after Clear = %d, want 0", buf.Len())
	}
	// The pool must have been replenished: adding capacity-many blocks again
	// must not error.
	for _, start := range []int64{5, 6, 7} {
		if _, err := buf.Add(&native.Frame{StartTicks: start, EndTicks: start + 1}, 0); err != nil {
			t.Fatalf("Add after Clear: %v", err)
		}
	}
}

func TestNewUnknownMediaType(t *testing.T) {
	if _, err := New(types.MediaTypeUnknown); err == nil {
		t.Fatal("New(MediaTypeUnknown) returned no error")
	}
}

func TestAudioBlockEnsureCapacityReallocatesOnlyWhenNeeded(t *testing.T) {
	b := &AudioBlock{}
	buf1 := b.EnsureCapacity(10, 2)
	if len(buf1) != 40 {
		t.Fatalf("len(buf1) = %d, want 40", len(buf1))
	}
	addr1 := &buf1[0]
	buf2 := b.EnsureCapacity(5, 2) // smaller: must reuse backing array
	if len(buf2) != 20 {
		t.Fatalf("len(buf2) = %d, want 20", len(buf2))
	}
	if &buf2[0] != addr1 {
		t.Fatal("EnsureCapacity reallocated for a smaller request")
	}
}
