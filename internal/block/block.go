// SPDX-License-Identifier: GPL-3.0-or-later

// Package block implements the fixed-format, preallocated playback units
// (Block) and the per-media-type BlockBuffer ring described in the data
// model and §4.3.
package block

import "github.com/mediacore/engine/internal/types"

// Block is the common shape of every playback unit.
type Block interface {
	StreamIndex() int
	StartTime() int64
	EndTime() int64
	Duration() int64
	MidTime() int64
	MediaType() types.MediaType

	setTimes(streamIndex int, start, end int64)
}

type baseBlock struct {
	streamIndex int
	start       int64
	end         int64
}

func (b *baseBlock) StreamIndex() int { return b.streamIndex }
func (b *baseBlock) StartTime() int64 { return b.start }
func (b *baseBlock) EndTime() int64   { return b.end }
func (b *baseBlock) Duration() int64  { return b.end - b.start }
func (b *baseBlock) MidTime() int64   { return b.start + (b.end-b.start)/2 }

func (b *baseBlock) setTimes(streamIndex int, start, end int64) {
	b.streamIndex = streamIndex
	b.start = start
	b.end = end
}

// AudioBlock is 16-bit interleaved signed PCM.
type AudioBlock struct {
	baseBlock
	Channels          int
	SampleRate        int
	SamplesPerChannel int
	Buffer            []byte
}

func (b *AudioBlock) MediaType() types.MediaType { return types.MediaTypeAudio }

// EnsureCapacity resizes Buffer only when the required byte count differs,
// per §4.2's materialisation rule: "reallocates output buffer only when
// required length differs."
func (b *AudioBlock) EnsureCapacity(samplesPerChannel, channels int) []byte {
	need := samplesPerChannel * channels * 2
	if cap(b.Buffer) < need {
		b.Buffer = make([]byte, need)
	} else {
		b.Buffer = b.Buffer[:need]
	}
	b.SamplesPerChannel = samplesPerChannel
	b.Channels = channels
	return b.Buffer
}

// VideoBlock is 24-bit BGR.
type VideoBlock struct {
	baseBlock
	Stride        int
	PixelWidth    int
	PixelHeight   int
	AspectRatioNum int
	AspectRatioDen int
	Buffer        []byte
}

func (b *VideoBlock) MediaType() types.MediaType { return types.MediaTypeVideo }

// EnsureCapacity resizes Buffer only when the required byte count changes.
func (b *VideoBlock) EnsureCapacity(stride, height int) []byte {
	need := stride * height
	if cap(b.Buffer) < need {
		b.Buffer = make([]byte, need)
	} else {
		b.Buffer = b.Buffer[:need]
	}
	b.Stride = stride
	return b.Buffer
}

// SubtitleTextType identifies the original subtitle encoding, mirrored from
// the native package so callers outside internal/native don't need to
// import it.
type SubtitleTextType int

const (
	SubtitleTextPlain SubtitleTextType = iota
	SubtitleTextASS
	SubtitleTextBitmap
)

// SubtitleBlock holds stripped plain-text lines.
type SubtitleBlock struct {
	baseBlock
	Lines    []string
	TextType SubtitleTextType
}

func (b *SubtitleBlock) MediaType() types.MediaType { return types.MediaTypeSubtitle }

// New creates a zero-valued block for the given media type. Returns an
// error for an unknown media type, per the BlockBuffer factory contract.
func New(mt types.MediaType) (Block, error) {
	switch mt {
	case types.MediaTypeAudio:
		return &AudioBlock{}, nil
	case types.MediaTypeVideo:
		return &VideoBlock{}, nil
	case types.MediaTypeSubtitle:
		return &SubtitleBlock{}, nil
	default:
		return nil, types.Wrap(types.ErrConvertFailed, "create_block: unknown media type %v", mt)
	}
}
