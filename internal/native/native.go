// SPDX-License-Identifier: GPL-3.0-or-later

// Package native declares the engine's view of the native decoding library
// (demuxer + codec + resampler + scaler) as a small set of Go interfaces.
// The rest of the engine treats the native library as an opaque C ABI and
// never imports the binding package directly; internal/native/astiavnative
// is the sole adapter that does.
package native

import (
	"errors"
	"time"

	"github.com/mediacore/engine/internal/types"
)

// Sentinel errors returned by CodecContext.ReceiveFrame and Demuxer.ReadPacket.
var (
	// ErrAgain means the codec needs more input before it can produce a
	// frame; not a failure.
	ErrAgain = errors.New("native: resource temporarily unavailable")
	// ErrEOF means a draining codec has produced all buffered frames.
	ErrEOF = errors.New("native: no more output")
)

// Packet is an opaque compressed unit read from the demuxer. A Packet with
// Drain set to true carries no payload and signals end-of-stream to a
// component's decode loop.
type Packet struct {
	StreamIndex int
	Size        int
	Pts         int64
	Dts         int64
	Duration    int64
	Drain       bool

	native Releasable
}

// Releasable is implemented by native handles that own a single C
// allocation, freed exactly once.
type Releasable interface {
	Release()
}

// SetNative attaches the underlying native handle; only the adapter calls this.
func (p *Packet) SetNative(h Releasable) { p.native = h }

// Native returns the underlying native handle, for use by the adapter that
// set it; other packages should not need this.
func (p *Packet) Native() Releasable { return p.native }

// Release frees the packet's native memory, if any. Safe to call more than
// once; only the first call has an effect.
func (p *Packet) Release() {
	if p.native != nil {
		p.native.Release()
		p.native = nil
	}
}

// Frame is a raw decoded unit (audio samples, a video picture, or a
// subtitle rectangle set) still owned by the native codec layer.
type Frame struct {
	MediaType     types.MediaType
	StartTicks    int64
	DurationTicks int64
	EndTicks      int64
	Pts           int64
	Dts           int64
	// CompressedSizeEstimate approximates the compressed size that produced
	// this frame, used for buffering heuristics.
	CompressedSizeEstimate int

	// Video, Audio, Subtitle hold the type-specific payload for a decoded
	// frame; exactly one is populated, matching MediaType.
	Video    *VideoPayload
	Audio    *AudioPayload
	Subtitle *SubtitlePayload

	stale  bool
	native Releasable
}

// SetNative attaches the underlying native handle; only the adapter calls this.
func (f *Frame) SetNative(h Releasable) { f.native = h }

// Native returns the underlying native handle, for use by the adapter that
// set it; other packages should not need this.
func (f *Frame) Native() Releasable { return f.native }

// Release frees the frame's native memory exactly once and marks it stale.
func (f *Frame) Release() {
	if f.native != nil {
		f.native.Release()
		f.native = nil
	}
	f.stale = true
}

// Stale reports whether the frame's native pointer has already been
// released; a stale frame must not be materialised.
func (f *Frame) Stale() bool { return f.stale }

// VideoPayload exposes the fields a video frame needs for materialisation.
// Populated by the adapter alongside Frame for video-typed frames.
type VideoPayload struct {
	Width            int
	Height           int
	PixelFormat      string
	AspectRatioNum   int
	AspectRatioDen   int
}

// AudioPayload exposes the fields an audio frame needs for materialisation.
type AudioPayload struct {
	SampleFormat string
	SampleRate   int
	Channels     int
	ChannelLayout string
	NbSamples    int
}

// SubtitlePayload carries raw decoded subtitle text/rectangles prior to
// stripping.
type SubtitlePayload struct {
	Lines    []string
	TextType SubtitleTextType
}

// SubtitleTextType identifies the original subtitle encoding.
type SubtitleTextType int

const (
	SubtitleTextPlain SubtitleTextType = iota
	SubtitleTextASS
	SubtitleTextBitmap
)

// StreamInfo describes one demuxed stream.
type StreamInfo struct {
	Index              int
	MediaType          types.MediaType
	TimeBase           types.TimeBase
	StartTimeTicks     int64
	DurationTicks      int64
	CodecID            string
	AttachedPic        bool
	BitRate            int64
	FrameRateNum       int
	FrameRateDen       int
	RelatedStreamIndex int // hint used for audio/subtitle stream selection
}

// OpenOptions configure Demuxer.Open.
type OpenOptions struct {
	InputFormat   string
	FormatOptions map[string]string
	GeneratePTS   bool
	Timeout       time.Duration
}

// ComponentOptions configure a per-stream codec context.
type ComponentOptions struct {
	LowRes       bool
	FastDecoding bool
	Threads      int
	CodecOptions map[string]string
}

// AudioSpec is the canonical output spec audio frames are resampled to.
type AudioSpec struct {
	SampleFormat string
	SampleRate   int
	Channels     int
}

// Demuxer wraps the native container: opening input, enumerating streams,
// reading packets, and seeking.
type Demuxer interface {
	Open(urlOrPath string, opts OpenOptions) error
	Streams() []StreamInfo
	FormatName() string
	FormatDiscontinuous() bool
	BitRate() int64
	ReadPacket() (*Packet, error) // io.EOF at end of stream
	SeekStart(byteSeek bool) error
	SeekTime(streamIndex int, ticks int64, backward bool) error
	// AttachedPicturePacket returns a fresh copy of a stream's attached
	// picture packet (cover art), for redelivering it after a seek; ok is
	// false if streamIndex isn't an attached-picture stream.
	AttachedPicturePacket(streamIndex int) (pkt *Packet, ok bool)
	NewCodecContext(streamIndex int, opts ComponentOptions) (CodecContext, error)
	NewSubtitleDecoder(streamIndex int) (SubtitleDecoder, error)
	NewScaler(srcW, srcH int, srcPixelFormat string) (Scaler, error)
	NewResampler(target AudioSpec) (Resampler, error)
	Close() error
}

// CodecContext wraps a codec's send/receive decode loop for audio and
// video streams (the "new API" of §4.2).
type CodecContext interface {
	SendPacket(p *Packet) error
	// ReceiveFrame returns ErrAgain when the codec needs more input,
	// ErrEOF once draining has produced all buffered frames. The
	// returned Frame carries its type-specific payload in Video or Audio.
	ReceiveFrame() (*Frame, error)
	Flush()
	Close()
}

// SubtitleDecoder wraps the legacy decode_subtitle2-style API: a packet may
// yield zero or more subtitle frames, and the decoder keeps yielding more
// from the same source packet via repeated empty sends until it reports no
// more output.
type SubtitleDecoder interface {
	Decode(p *Packet) (f *Frame, got bool, err error) // got = a frame was produced
	Close()
}

// Scaler converts a decoded video frame into 24-bit BGR.
type Scaler interface {
	ScaleToBGR(f *Frame) (stride int, bgr []byte, err error)
	Close()
}

// Resampler converts decoded audio samples into the canonical output spec.
type Resampler interface {
	Resample(f *Frame, target AudioSpec) (samples []byte, samplesPerChannel int, err error)
	Close()
}
