// SPDX-License-Identifier: GPL-3.0-or-later

package container

import (
	"errors"
	"io"
	"sort"
	"time"

	"github.com/mediacore/engine/internal/component"
	"github.com/mediacore/engine/internal/native"
	"github.com/mediacore/engine/internal/types"
)

// realtimeMinInterval is the minimum spacing enforced between reads of a
// realtime source, per §4.1.
const realtimeMinInterval = 10 * time.Millisecond

// Read reads one packet and dispatches it to its owning component, per
// §4.1. Returns the media type of the packet read, types.MediaTypeUnknown
// on a recoverable (retry-worthy) condition, and io.EOF once the stream has
// been fully drained (at which point every component has received a drain
// packet).
func (c *Container) Read() (types.MediaType, error) {
	c.readMu.Lock()
	defer c.readMu.Unlock()

	if c.requiresPictureAttachments {
		c.requiresPictureAttachments = false
		if pkt, ok := c.demuxer.AttachedPicturePacket(c.attachedPicStreamIndex); ok {
			if comp, exists := c.byIndex[pkt.StreamIndex]; exists {
				comp.Packets().Push(pkt)
				return comp.MediaType(), nil
			}
			pkt.Release()
		}
	}

	if c.isStreamRealtime {
		if since := time.Since(c.lastReadTime); since < realtimeMinInterval {
			time.Sleep(realtimeMinInterval - since)
		}
	}

	pkt, err := c.demuxer.ReadPacket()
	c.lastReadTime = time.Now()

	if err != nil {
		if errors.Is(err, io.EOF) {
			c.drainAll()
			c.isAtEndOfStream = true
			return types.MediaTypeUnknown, io.EOF
		}
		if errors.Is(err, native.ErrAgain) {
			return types.MediaTypeUnknown, nil
		}
		return types.MediaTypeUnknown, types.Wrap(types.ErrReadFailed, "read: %v", err)
	}

	comp, ok := c.byIndex[pkt.StreamIndex]
	if !ok {
		pkt.Release()
		return types.MediaTypeUnknown, nil
	}
	comp.Packets().Push(pkt)
	return comp.MediaType(), nil
}

func (c *Container) drainAll() {
	for _, comp := range c.components() {
		comp.Packets().Push(&native.Packet{StreamIndex: comp.StreamIndex(), Drain: true})
	}
}

// Decode dequeues one pending packet per component and drains its codec,
// returning every produced frame across all components sorted ascending by
// start time, per §4.1.
func (c *Container) Decode() ([]decodedFrame, error) {
	c.decodeMu.Lock()
	defer c.decodeMu.Unlock()

	var out []decodedFrame
	for _, comp := range c.components() {
		if comp.Packets().Len() == 0 {
			continue
		}
		if err := comp.DecodeOne(); err != nil && !errors.Is(err, io.EOF) {
			if c.log != nil {
				c.log.Warnf("container", "component %d: decode: %v", comp.StreamIndex(), err)
			}
			continue
		}
		for {
			f, ok := comp.Frames().TryPop()
			if !ok {
				break
			}
			out = append(out, decodedFrame{comp: comp, frame: f})
		}
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].frame.StartTicks < out[j].frame.StartTicks })
	return out, nil
}

// decodedFrame pairs a raw frame with the component that produced it.
type decodedFrame struct {
	comp  *component.Component
	frame *native.Frame
}

// Convert materialises a decoded frame into a reused block via its owning
// component, per §4.1.
func (c *Container) Convert(df decodedFrame) (err error) {
	c.convertMu.Lock()
	defer c.convertMu.Unlock()

	_, err = df.comp.Blocks().Add(df.frame, df.comp.StreamIndex())
	df.frame.Release()
	return err
}
