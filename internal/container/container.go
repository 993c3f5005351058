// SPDX-License-Identifier: GPL-3.0-or-later

// Package container wraps the native demuxer: opening input, selecting
// streams, reading packets, decoding, and seeking, per §4.1 and §4.5.
package container

import (
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/mediacore/engine/internal/block"
	"github.com/mediacore/engine/internal/component"
	"github.com/mediacore/engine/internal/corelog"
	"github.com/mediacore/engine/internal/native"
	"github.com/mediacore/engine/internal/types"
)

// Options configures Container.Open, combining native.OpenOptions /
// native.ComponentOptions with the per-stream disable flags of §6.
type Options struct {
	Native    native.OpenOptions
	Component native.ComponentOptions

	IsAudioDisabled    bool
	IsVideoDisabled    bool
	IsSubtitleDisabled bool

	AudioStreamSpec    types.StreamSpecifier
	VideoStreamSpec    types.StreamSpecifier
	SubtitleStreamSpec types.StreamSpecifier

	BlockCapacity int

	Materialise component.Options
}

// Container owns the demuxer handle and the set of components selected
// from it.
type Container struct {
	readMu    sync.Mutex
	decodeMu  sync.Mutex
	convertMu sync.Mutex

	demuxer native.Demuxer
	log     *corelog.Logger

	streams []native.StreamInfo

	video    *component.Component
	audio    *component.Component
	subtitle *component.Component
	byIndex  map[int]*component.Component

	mediaStartTimeOffset int64
	isStreamRealtime     bool
	seeksByBytes         bool
	lastReadTime         time.Time

	isAtEndOfStream bool

	// videoAttachedPicOnly is true when the selected video stream is a
	// still-image attachment (cover art), per §4.5 step 3's main-component
	// rule.
	videoAttachedPicOnly bool

	// attachedPicStreamIndex is the stream index Read redelivers the
	// attached-picture packet for when requiresPictureAttachments is set,
	// or -1 if the open selected no such stream.
	attachedPicStreamIndex int

	// requiresPictureAttachments tracks whether the attached-picture packet
	// must be re-injected: Open sets it when the video stream is an
	// attached picture, and every Seek sets it again. Read consumes this
	// flag and pushes the packet via native.Demuxer.AttachedPicturePacket
	// before doing a normal ReadPacket.
	requiresPictureAttachments bool
}

// New wraps an already-constructed native.Demuxer (so tests can inject the
// fake package's implementation).
func New(demuxer native.Demuxer, log *corelog.Logger) *Container {
	return &Container{demuxer: demuxer, log: log, byIndex: make(map[int]*component.Component)}
}

// Open probes the input, selects the best stream per media type, and
// constructs one MediaComponent per selection, per §4.1.
func (c *Container) Open(urlOrPath string, opts Options) error {
	if err := c.demuxer.Open(urlOrPath, opts.Native); err != nil {
		return err
	}
	c.streams = c.demuxer.Streams()

	videoIdx := -1
	if !opts.IsVideoDisabled {
		videoIdx = selectStream(c.streams, types.MediaTypeVideo, opts.VideoStreamSpec, -1)
	}
	audioIdx := -1
	if !opts.IsAudioDisabled {
		audioIdx = selectStream(c.streams, types.MediaTypeAudio, opts.AudioStreamSpec, videoIdx)
	}
	subtitleIdx := -1
	if !opts.IsSubtitleDisabled {
		hint := audioIdx
		if hint < 0 {
			hint = videoIdx
		}
		subtitleIdx = selectStream(c.streams, types.MediaTypeSubtitle, opts.SubtitleStreamSpec, hint)
	}

	if videoIdx < 0 && audioIdx < 0 {
		return types.Wrap(types.ErrOpenFailed, "no audio or video stream selectable")
	}

	capacity := opts.BlockCapacity
	if capacity <= 0 {
		capacity = 64
	}

	var minOffset int64 = -1
	build := func(idx int) (*component.Component, error) {
		if idx < 0 {
			return nil, nil
		}
		info := c.streams[idx]
		comp, err := component.New(c.demuxer, info, opts.Component, capacity, opts.Materialise, c.log)
		if err != nil {
			if c.log != nil {
				c.log.Warnf("container", "component %d (%s) init failed: %v", idx, info.MediaType, err)
			}
			return nil, nil // per §7: component init failures remove the component, not the whole open
		}
		if minOffset < 0 || info.StartTimeTicks < minOffset {
			minOffset = info.StartTimeTicks
		}
		return comp, nil
	}

	var err error
	if c.video, err = build(videoIdx); err != nil {
		return err
	}
	if c.audio, err = build(audioIdx); err != nil {
		return err
	}
	if c.subtitle, err = build(subtitleIdx); err != nil {
		return err
	}

	if c.video == nil && c.audio == nil {
		return types.Wrap(types.ErrOpenFailed, "no decodable audio or video component")
	}

	if minOffset < 0 {
		minOffset = 0
	}
	c.mediaStartTimeOffset = minOffset

	for _, comp := range []*component.Component{c.video, c.audio, c.subtitle} {
		if comp != nil {
			c.byIndex[comp.StreamIndex()] = comp
		}
	}

	c.isStreamRealtime = isRealtime(c.demuxer.FormatName(), urlOrPath)
	c.seeksByBytes = c.demuxer.FormatDiscontinuous() && c.demuxer.BitRate() > 0 && c.demuxer.FormatName() != "ogg"

	c.videoAttachedPicOnly = videoIsAttachedPic(c.streams, videoIdx)
	c.attachedPicStreamIndex = -1
	if c.videoAttachedPicOnly {
		c.attachedPicStreamIndex = videoIdx
	}
	c.requiresPictureAttachments = c.videoAttachedPicOnly

	return c.demuxer.SeekStart(c.seeksByBytes)
}

func videoIsAttachedPic(streams []native.StreamInfo, idx int) bool {
	if idx < 0 || idx >= len(streams) {
		return false
	}
	return streams[idx].AttachedPic
}

// isRealtime reports whether the source should be treated as a network
// stream whose reads back-pressure instead of failing, per §4.1/GLOSSARY.
func isRealtime(formatName, urlOrPath string) bool {
	switch formatName {
	case "rtp", "rtsp", "sdp":
		return true
	}
	if u, err := url.Parse(urlOrPath); err == nil {
		switch strings.ToLower(u.Scheme) {
		case "rtp", "udp":
			return true
		}
	}
	return false
}

// selectStream picks the best stream of the given media type: an explicit
// spec match wins; otherwise the first stream of that type is chosen,
// preferring one whose RelatedStreamIndex matches hint when present.
func selectStream(streams []native.StreamInfo, mt types.MediaType, spec types.StreamSpecifier, hint int) int {
	best := -1
	for i, s := range streams {
		if s.MediaType != mt {
			continue
		}
		if spec.HasType || spec.HasIndex {
			if spec.Matches(s.MediaType, i) {
				return i
			}
			continue
		}
		if best < 0 {
			best = i
		}
		if hint >= 0 && s.RelatedStreamIndex == hint {
			return i
		}
	}
	return best
}

func (c *Container) Video() *component.Component    { return c.video }
func (c *Container) Audio() *component.Component    { return c.audio }
func (c *Container) Subtitle() *component.Component { return c.subtitle }
func (c *Container) MediaStartTimeOffset() int64    { return c.mediaStartTimeOffset }
func (c *Container) IsStreamRealtime() bool         { return c.isStreamRealtime }
func (c *Container) SeeksByBytes() bool             { return c.seeksByBytes }
func (c *Container) IsAtEndOfStream() bool           { return c.isAtEndOfStream }

// Drained reports whether the stream has reached end-of-stream and every
// selected component has consumed its drain packet, per §8 scenario 4
// ("EOF drains pipeline ... emits media_ended").
func (c *Container) Drained() bool {
	if !c.isAtEndOfStream {
		return false
	}
	for _, comp := range c.components() {
		if comp.State() != component.StateFlushed {
			return false
		}
	}
	return true
}

func (c *Container) components() []*component.Component {
	var out []*component.Component
	for _, comp := range []*component.Component{c.video, c.audio, c.subtitle} {
		if comp != nil {
			out = append(out, comp)
		}
	}
	return out
}

// Close stops and disposes every component and releases the demuxer, per
// §4.1 and the lifecycle reversal of §3.
func (c *Container) Close() error {
	for _, comp := range c.components() {
		comp.Close()
	}
	return c.demuxer.Close()
}

// BlockBufferOf is a thin accessor so the worker package does not need to
// reach into Component internals directly.
func BlockBufferOf(comp *component.Component) *block.Buffer {
	if comp == nil {
		return nil
	}
	return comp.Blocks()
}
