// SPDX-License-Identifier: GPL-3.0-or-later

package container

import (
	"sort"

	"github.com/mediacore/engine/internal/component"
	"github.com/mediacore/engine/internal/types"
)

// maxDropPassSize triggers a frame-drop pass mid sub-loop once accumulated
// output grows large, per §4.5 step 6e ("≥24 frames triggers a drop pass").
const maxDropPassSize = 24

// Seek implements the seek engine of §4.5: keyframe seek plus targeted
// decoding until the main component has a frame at or after the target,
// backing off by one second on each failed attempt.
func (c *Container) Seek(t int64) ([]decodedFrame, error) {
	main := c.mainComponent()
	if main == nil {
		return nil, nil
	}

	if t <= 0 {
		if err := c.demuxer.SeekStart(c.seeksByBytes); err != nil {
			if c.log != nil {
				c.log.Warnf("container", "seek(start): %v", err)
			}
			return nil, nil
		}
		c.clearAll()
		c.requiresPictureAttachments = true
		c.isAtEndOfStream = false
		return nil, nil
	}

	// Clamp to [main.start_time_offset, main.duration].
	lo := main.StartTimeOffset()
	hi := main.DurationTicks()
	if t < lo {
		t = lo
	}
	if t > hi {
		t = hi
	}

	relativeTarget := t + main.StartTimeOffset()
	if c.seeksByBytes {
		relativeTarget = t
	}

	for {
		atStart := false
		if relativeTarget <= main.StartTimeOffset() {
			atStart = true
			if err := c.demuxer.SeekStart(c.seeksByBytes); err != nil {
				if c.log != nil {
					c.log.Warnf("container", "seek(start fallback): %v", err)
				}
				return nil, nil
			}
		} else {
			if err := c.demuxer.SeekTime(main.StreamIndex(), relativeTarget, true); err != nil {
				if c.log != nil {
					c.log.Warnf("container", "seek(%d): %v", relativeTarget, err)
				}
				return nil, nil
			}
		}

		c.clearAll()
		c.requiresPictureAttachments = true
		c.isAtEndOfStream = false

		frames, rangeOk := c.decodeUntilRangeOk(t)
		if rangeOk {
			sort.SliceStable(frames, func(i, j int) bool { return frames[i].frame.StartTicks < frames[j].frame.StartTicks })
			return frames, nil
		}

		for _, df := range frames {
			df.frame.Release()
		}

		if atStart {
			// Start-of-stream is terminal; nothing earlier to try.
			return nil, nil
		}
		relativeTarget -= types.TicksPerSecond
	}
}

// mainComponent is video unless the video stream is attached-picture-only,
// otherwise audio, per §4.5 step 3.
func (c *Container) mainComponent() *component.Component {
	if c.video != nil && !c.videoAttachedPicOnly {
		return c.video
	}
	return c.audio
}

func (c *Container) clearAll() {
	for _, comp := range c.components() {
		comp.ClearPacketQueues()
	}
}

// decodeUntilRangeOk reads and decodes until at_end_of_stream or the main
// component has a frame with start_time >= t. Only the main component is
// checked: frames of the other components are collected, but whether any
// of them reaches t does not affect when the loop stops.
func (c *Container) decodeUntilRangeOk(t int64) ([]decodedFrame, bool) {
	var collected []decodedFrame
	seen := make(map[int]bool)

	rangeOk := func() bool {
		for _, comp := range c.components() {
			if comp == c.mainComponent() {
				if !seen[comp.StreamIndex()] {
					return false
				}
				continue
			}
			// Non-main components are not checked.
		}
		return true
	}

	for {
		if c.isAtEndOfStream {
			return collected, true
		}
		if rangeOk() {
			return collected, true
		}

		mt, err := c.Read()
		if err != nil {
			// io.EOF is handled via c.isAtEndOfStream on the next loop turn.
			_ = mt
		}

		frames, _ := c.Decode()
		for _, df := range frames {
			if df.frame.StartTicks >= t {
				seen[df.comp.StreamIndex()] = true
			}
			collected = append(collected, df)
		}

		if len(collected) >= maxDropPassSize {
			collected = dropFrames(collected, t)
		}
	}
}

// dropFrames keeps output bounded during a long sub-loop by discarding
// frames that are clearly below the target once a later frame has also
// crossed below it, per §4.5 step 6e's drop rule.
func dropFrames(frames []decodedFrame, t int64) []decodedFrame {
	out := frames[:0]
	for i, df := range frames {
		if i+1 < len(frames) {
			next := frames[i+1]
			if df.frame.StartTicks+next.frame.StartTicks <= t {
				df.frame.Release()
				continue
			}
		}
		out = append(out, df)
	}
	return out
}
