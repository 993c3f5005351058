// SPDX-License-Identifier: GPL-3.0-or-later

// Package renderer defines the host-supplied, capability-based renderer
// interface of §4's "Renderer interface" and §9's "dynamic dispatch for
// renderers" design note, plus a couple of reference implementations.
package renderer

import (
	"fmt"
	"sync/atomic"

	"github.com/mediacore/engine/internal/block"
)

// Renderer is implemented once per media type by the host application.
type Renderer interface {
	Update(blk block.Block, clockPosition int64, renderIndex int)
	OnStopped()
	OnStarted()
	OnSeekCompleted()
}

// Null discards every callback; useful for headless playback (the CLI demo
// uses it for every media type when run with -quiet).
type Null struct{}

func (Null) Update(block.Block, int64, int) {}
func (Null) OnStopped()                     {}
func (Null) OnStarted()                     {}
func (Null) OnSeekCompleted()               {}

var _ Renderer = Null{}

// Counting records how many updates/lifecycle calls it received; used by
// tests.
type Counting struct {
	Updates         int64
	Stopped         int64
	Started         int64
	SeekCompletions int64
	Last            atomic.Value // block.Block
}

func (c *Counting) Update(blk block.Block, _ int64, _ int) {
	atomic.AddInt64(&c.Updates, 1)
	c.Last.Store(blk)
}
func (c *Counting) OnStopped()       { atomic.AddInt64(&c.Stopped, 1) }
func (c *Counting) OnStarted()       { atomic.AddInt64(&c.Started, 1) }
func (c *Counting) OnSeekCompleted() { atomic.AddInt64(&c.SeekCompletions, 1) }

// Printer writes a one-line summary to stdout on every update; used by the
// CLI demo.
type Printer struct{ Label string }

func (p Printer) Update(blk block.Block, pos int64, renderIndex int) {
	fmt.Printf("[%s] #%d pos=%d block=[%d,%d]\n", p.Label, renderIndex, pos, blk.StartTime(), blk.EndTime())
}
func (p Printer) OnStopped()       { fmt.Printf("[%s] stopped\n", p.Label) }
func (p Printer) OnStarted()       { fmt.Printf("[%s] started\n", p.Label) }
func (p Printer) OnSeekCompleted() { fmt.Printf("[%s] seek completed\n", p.Label) }
