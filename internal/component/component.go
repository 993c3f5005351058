// SPDX-License-Identifier: GPL-3.0-or-later

// Package component implements MediaComponent: the per-stream owner of a
// codec context that turns packets into frames and frames into blocks.
// Audio, video, and subtitle streams share the decode loop and the state
// machine but diverge in materialisation, modelled here as a common
// Component with a type-specific materialise method (§4.2, §9).
package component

import (
	"io"
	"sync"

	"github.com/mediacore/engine/internal/block"
	"github.com/mediacore/engine/internal/corelog"
	"github.com/mediacore/engine/internal/native"
	"github.com/mediacore/engine/internal/queue"
	"github.com/mediacore/engine/internal/types"
)

// State is the decoder-side state machine of §4.2.
type State int

const (
	StateIdle State = iota
	StateActive
	StateDraining
	StateFlushed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateActive:
		return "active"
	case StateDraining:
		return "draining"
	case StateFlushed:
		return "flushed"
	default:
		return "unknown"
	}
}

// Options configures materialisation targets; the engine façade builds one
// from its own Options (§6's "engine output spec" configuration group).
type Options struct {
	AudioSampleRate   int
	AudioChannels     int
	AudioSampleFormat string
	VideoFilterGraph  string
}

// Component owns one stream's codec context, its pending queues, and the
// BlockBuffer its materialised blocks land in.
type Component struct {
	mu sync.Mutex

	streamIndex int
	mediaType   types.MediaType
	info        native.StreamInfo

	startTimeOffset int64
	durationTicks   int64

	codec    native.CodecContext // audio/video
	subtitle native.SubtitleDecoder

	packets *queue.PacketQueue
	sent    *queue.SentQueue
	frames  *queue.FrameQueue
	blocks  *block.Buffer

	state State

	opts Options
	log  *corelog.Logger

	// video materialisation state
	scaler        native.Scaler
	scalerSrcW    int
	scalerSrcH    int
	scalerSrcPix  string

	// audio materialisation state
	resampler       native.Resampler
	lastSampleFmt   string
	lastSampleRate  int
	lastChannels    int

	demuxer native.Demuxer
}

// New constructs a Component for the given stream, opening its codec
// context (or legacy subtitle decoder) and a BlockBuffer of the requested
// capacity.
func New(demuxer native.Demuxer, info native.StreamInfo, copts native.ComponentOptions, capacity int, opts Options, log *corelog.Logger) (*Component, error) {
	c := &Component{
		streamIndex: info.Index,
		mediaType:   info.MediaType,
		info:        info,
		packets:     queue.NewPacketQueue(),
		sent:        queue.NewSentQueue(),
		frames:      queue.NewFrameQueue(),
		opts:        opts,
		log:         log,
		demuxer:     demuxer,
	}

	c.startTimeOffset = info.StartTimeTicks
	c.durationTicks = info.DurationTicks

	var mat block.Materialiser = c
	buf, err := block.NewBuffer(info.MediaType, capacity, mat)
	if err != nil {
		return nil, err
	}
	c.blocks = buf

	if info.MediaType == types.MediaTypeSubtitle {
		dec, err := demuxer.NewSubtitleDecoder(info.Index)
		if err != nil {
			return nil, err
		}
		c.subtitle = dec
		return c, nil
	}

	codec, err := demuxer.NewCodecContext(info.Index, copts)
	if err != nil {
		return nil, err
	}
	c.codec = codec
	return c, nil
}

func (c *Component) StreamIndex() int        { return c.streamIndex }
func (c *Component) MediaType() types.MediaType { return c.mediaType }
func (c *Component) StartTimeOffset() int64  { return c.startTimeOffset }
func (c *Component) DurationTicks() int64    { return c.durationTicks }
func (c *Component) Blocks() *block.Buffer   { return c.blocks }
func (c *Component) Packets() *queue.PacketQueue { return c.packets }
func (c *Component) Frames() *queue.FrameQueue   { return c.frames }

func (c *Component) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// ClearPacketQueues flushes the codec and resets the state machine to Idle,
// per §4.2's "*→Idle on clear_packet_queues (which also calls
// flush_buffers)".
func (c *Component) ClearPacketQueues() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.packets.Clear()
	c.sent.Clear()
	c.frames.Clear()
	if c.codec != nil {
		c.codec.Flush()
	}
	c.state = StateIdle
}

// Close disposes the component's native resources.
func (c *Component) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.packets.Clear()
	c.sent.Clear()
	c.frames.Clear()
	if c.codec != nil {
		c.codec.Close()
	}
	if c.subtitle != nil {
		c.subtitle.Close()
	}
	if c.scaler != nil {
		c.scaler.Close()
	}
	if c.resampler != nil {
		c.resampler.Close()
	}
	c.blocks.Dispose()
}

// DecodeOne dequeues one pending packet (possibly a drain packet) and runs
// it through the component's decode protocol, pushing every produced frame
// onto the frame queue. Blocks while the packet queue is empty; returns
// io.EOF only if the packet queue is closed while empty.
func (c *Component) DecodeOne() error {
	pkt, ok := c.packets.Pop()
	if !ok {
		return io.EOF
	}
	c.sent.Push(pkt)

	if c.mediaType == types.MediaTypeSubtitle {
		return c.decodeSubtitle(pkt)
	}
	return c.decodeAudioVideo(pkt)
}

func (c *Component) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}
