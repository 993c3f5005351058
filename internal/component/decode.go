// SPDX-License-Identifier: GPL-3.0-or-later

package component

import (
	"errors"

	"github.com/mediacore/engine/internal/native"
	"github.com/mediacore/engine/internal/types"
)

// decodeAudioVideo implements the new-API send/receive loop of §4.2:
// send one packet, drain every frame the codec is willing to emit, then
// release the sent packet's native memory once any output was produced.
func (c *Component) decodeAudioVideo(pkt *native.Packet) error {
	if pkt.Drain {
		c.setState(StateDraining)
	} else if c.State() == StateIdle {
		c.setState(StateActive)
	}

	sendErr := c.codec.SendPacket(pkt)
	if sendErr != nil && !errors.Is(sendErr, native.ErrAgain) {
		return types.Wrap(types.ErrConvertFailed, "component %d: send_packet: %v", c.streamIndex, sendErr)
	}

	produced := false
	for {
		frame, err := c.codec.ReceiveFrame()
		if errors.Is(err, native.ErrAgain) {
			break
		}
		if errors.Is(err, native.ErrEOF) {
			c.setState(StateFlushed)
			break
		}
		if err != nil {
			if c.log != nil {
				c.log.Warnf("decode", "component %d: receive_frame: %v", c.streamIndex, err)
			}
			break
		}
		frame.StartTicks -= c.startTimeOffset
		frame.EndTicks = frame.StartTicks + frame.DurationTicks
		c.frames.Push(frame)
		produced = true
	}

	if produced {
		c.sent.Clear()
	}
	return nil
}

// decodeSubtitle implements the legacy decode_subtitle2-style loop of §4.2:
// a packet may yield zero or more subtitle frames. After the first call, the
// decoder is offered empty packets until it reports no more output, so that
// subtitle rectangles bundled into a single packet are all drained.
func (c *Component) decodeSubtitle(pkt *native.Packet) error {
	if pkt.Drain {
		c.setState(StateDraining)
	} else if c.State() == StateIdle {
		c.setState(StateActive)
	}

	first := pkt
	for {
		frame, got, err := c.subtitle.Decode(first)
		if err != nil {
			if c.log != nil {
				c.log.Warnf("decode", "component %d: decode_subtitle2: %v", c.streamIndex, err)
			}
			break
		}
		if !got {
			break
		}
		frame.StartTicks -= c.startTimeOffset
		frame.EndTicks = frame.StartTicks + frame.DurationTicks
		c.frames.Push(frame)

		// Keep draining the same source packet with empty follow-ups.
		first = &native.Packet{StreamIndex: pkt.StreamIndex, Drain: false}
	}

	if pkt.Drain {
		c.setState(StateFlushed)
	}
	c.sent.Clear()
	return nil
}
