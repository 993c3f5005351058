// SPDX-License-Identifier: GPL-3.0-or-later

package clock

import (
	"testing"
	"time"

	"github.com/mediacore/engine/internal/types"
)

func newFakeClock(start time.Time) (*Clock, *time.Time) {
	now := start
	c := New()
	c.nowFunc = func() time.Time { return now }
	c.lastMark = now
	return c, &now
}

func TestClockPausedPositionDoesNotAdvance(t *testing.T) {
	c, now := newFakeClock(time.Unix(0, 0))
	c.SetPosition(1000)
	*now = now.Add(time.Second)
	if got := c.Position(); got != 1000 {
		t.Fatalf("Position() while paused = %d, want 1000", got)
	}
}

func TestClockRunningPositionAdvancesAtSpeed(t *testing.T) {
	c, now := newFakeClock(time.Unix(0, 0))
	c.Play()
	*now = now.Add(time.Second)
	if got, want := c.Position(), int64(types.TicksPerSecond); got != want {
		t.Fatalf("Position() after 1s at speed 1.0 = %d, want %d", got, want)
	}
}

func TestClockSpeedScalesElapsedPosition(t *testing.T) {
	c, now := newFakeClock(time.Unix(0, 0))
	if err := c.SetSpeed(2.0); err != nil {
		t.Fatalf("SetSpeed: %v", err)
	}
	c.Play()
	*now = now.Add(time.Second)
	if got, want := c.Position(), int64(2*types.TicksPerSecond); got != want {
		t.Fatalf("Position() after 1s at speed 2.0 = %d, want %d", got, want)
	}
}

func TestClockSetSpeedRejectsOutOfRange(t *testing.T) {
	c := New()
	if err := c.SetSpeed(-1); err == nil {
		t.Error("SetSpeed(-1) returned no error")
	}
	if err := c.SetSpeed(c.maxSpeed + 1); err == nil {
		t.Error("SetSpeed(maxSpeed+1) returned no error")
	}
}

func TestClockPausePreservesPositionAcrossPlayPause(t *testing.T) {
	c, now := newFakeClock(time.Unix(0, 0))
	c.Play()
	*now = now.Add(500 * time.Millisecond)
	c.Pause()
	pausedAt := c.Position()
	*now = now.Add(time.Second)
	if got := c.Position(); got != pausedAt {
		t.Fatalf("Position() kept advancing after Pause: got %d, want %d", got, pausedAt)
	}
	if c.IsRunning() {
		t.Fatal("IsRunning() true after Pause")
	}
}

func TestClockResetZeroesPosition(t *testing.T) {
	c, _ := newFakeClock(time.Unix(0, 0))
	c.SetPosition(12345)
	c.Reset()
	if got := c.Position(); got != 0 {
		t.Fatalf("Position() after Reset = %d, want 0", got)
	}
}
