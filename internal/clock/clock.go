// SPDX-License-Identifier: GPL-3.0-or-later

// Package clock implements the monotonic, resettable, speed-scalable
// RealTimeClock of §4.4.
package clock

import (
	"sync"
	"time"

	"github.com/mediacore/engine/internal/types"
)

// Clock is a speed-adjustable, pausable clock reporting position in the
// engine's 100-ns tick scale. All reads and writes serialise through a
// single read-writer lock, per §4.4's thread-safety rule.
type Clock struct {
	mu sync.RWMutex

	offsetTicks int64
	speed       float64
	maxSpeed    float64
	running     bool
	lastMark    time.Time // wall-clock instant offsetTicks was last valid at

	nowFunc func() time.Time
}

// New creates a clock at position 0, speed 1.0, paused.
func New() *Clock {
	return &Clock{speed: 1.0, maxSpeed: 8.0, nowFunc: time.Now, lastMark: time.Now()}
}

// SetMaxSpeed bounds future SetSpeed calls; default is 8.0.
func (c *Clock) SetMaxSpeed(max float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.maxSpeed = max
}

// Position returns offset_ticks + elapsed_ticks * speed_ratio.
func (c *Clock) Position() int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.positionLocked()
}

func (c *Clock) positionLocked() int64 {
	if !c.running {
		return c.offsetTicks
	}
	elapsed := c.nowFunc().Sub(c.lastMark)
	elapsedTicks := int64(elapsed) / 100 // time.Duration is ns; 100ns ticks
	return c.offsetTicks + int64(float64(elapsedTicks)*c.speed)
}

// Play starts (or resumes) the clock without changing position.
func (c *Clock) Play() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running {
		return
	}
	c.offsetTicks = c.positionLocked()
	c.lastMark = c.nowFunc()
	c.running = true
}

// Pause freezes the clock at its current position.
func (c *Clock) Pause() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.offsetTicks = c.positionLocked()
	c.running = false
}

// Reset leaves speed unchanged and sets the observable position to 0.
func (c *Clock) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.offsetTicks = 0
	c.lastMark = c.nowFunc()
}

// SetPosition atomically repositions the clock, preserving running state.
func (c *Clock) SetPosition(ticks int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.offsetTicks = ticks
	c.lastMark = c.nowFunc()
}

// Speed returns the current speed_ratio.
func (c *Clock) Speed() float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.speed
}

// SetSpeed atomically captures position, then updates offset and speed, so
// the observable position is preserved across the change, per §4.4.
func (c *Clock) SetSpeed(speed float64) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if speed < 0 || speed > c.maxSpeed {
		return types.Wrap(types.ErrConvertFailed, "speed %v out of range [0,%v]", speed, c.maxSpeed)
	}

	pos := c.positionLocked()
	c.offsetTicks = pos
	c.lastMark = c.nowFunc()
	c.speed = speed
	return nil
}

// IsRunning reports whether the clock is currently playing.
func (c *Clock) IsRunning() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.running
}
