// SPDX-License-Identifier: GPL-3.0-or-later

// Package fake provides an in-memory native.Demuxer implementation driven
// by synthetic packets and frames with deterministic timestamps, so the
// engine's container/component/block/clock/command packages can be unit
// tested without a real FFmpeg install, testing cgo-bound media code
// behind an interface rather than against the binding itself.
package fake

import (
	"io"
	"sync"

	"github.com/mediacore/engine/internal/native"
	"github.com/mediacore/engine/internal/types"
)

// Source describes one synthetic stream's content.
type Source struct {
	MediaType     types.MediaType
	TimeBase      types.TimeBase
	DurationTicks int64
	// FrameTicks is the playback duration of each synthetic frame this
	// stream produces.
	FrameTicks int64
	AttachedPic bool
}

// Demuxer is a deterministic, in-memory native.Demuxer.
type Demuxer struct {
	mu      sync.Mutex
	sources []Source
	cursor  []int64 // next start tick to emit per stream
	order   []int   // round-robin read order
	pos     int
	opened  bool
	closed  bool

	formatName    string
	discontinuous bool
	bitRate       int64
}

// NewDemuxer constructs a fake demuxer from the given sources.
func NewDemuxer(sources []Source) *Demuxer {
	return &Demuxer{sources: sources, formatName: "fake"}
}

func (d *Demuxer) Open(_ string, _ native.OpenOptions) error {
	d.cursor = make([]int64, len(d.sources))
	d.opened = true
	return nil
}

func (d *Demuxer) Streams() []native.StreamInfo {
	out := make([]native.StreamInfo, len(d.sources))
	for i, s := range d.sources {
		out[i] = native.StreamInfo{
			Index:         i,
			MediaType:     s.MediaType,
			TimeBase:      s.TimeBase,
			DurationTicks: s.DurationTicks,
			AttachedPic:   s.AttachedPic,
			CodecID:       "fake",
		}
	}
	return out
}

func (d *Demuxer) FormatName() string           { return d.formatName }
func (d *Demuxer) FormatDiscontinuous() bool     { return d.discontinuous }
func (d *Demuxer) BitRate() int64               { return d.bitRate }

// SetDiscontinuous lets tests exercise the seeks_by_bytes heuristic.
func (d *Demuxer) SetDiscontinuous(v bool) { d.discontinuous = v }
func (d *Demuxer) SetBitRate(v int64)      { d.bitRate = v }
func (d *Demuxer) SetFormatName(v string)  { d.formatName = v }

func (d *Demuxer) ReadPacket() (*native.Packet, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return nil, io.EOF
	}

	// Round robin across streams until each has produced its full duration.
	for tries := 0; tries < len(d.sources); tries++ {
		idx := d.pos % len(d.sources)
		d.pos++

		src := d.sources[idx]
		start := d.cursor[idx]
		if start >= src.DurationTicks {
			continue
		}

		end := start + src.FrameTicks
		if end > src.DurationTicks {
			end = src.DurationTicks
		}
		d.cursor[idx] = end

		pkt := &native.Packet{
			StreamIndex: idx,
			Size:        64,
			Pts:         start,
			Dts:         start,
			Duration:    end - start,
		}
		pkt.SetNative(noopHandle{})
		return pkt, nil
	}

	return nil, io.EOF
}

func (d *Demuxer) SeekStart(byteSeek bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	for i := range d.cursor {
		d.cursor[i] = 0
	}
	d.pos = 0
	d.closed = false
	return nil
}

// AttachedPicturePacket returns a synthetic packet for streamIndex if its
// Source was configured with AttachedPic, mirroring how a real demuxer
// hands back an AVStream's cover-art packet outside the normal read loop.
func (d *Demuxer) AttachedPicturePacket(streamIndex int) (*native.Packet, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if streamIndex < 0 || streamIndex >= len(d.sources) || !d.sources[streamIndex].AttachedPic {
		return nil, false
	}
	pkt := &native.Packet{StreamIndex: streamIndex, Size: 64}
	pkt.SetNative(noopHandle{})
	return pkt, true
}

func (d *Demuxer) SeekTime(streamIndex int, ticks int64, backward bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	for i := range d.cursor {
		if ticks < d.cursor[i] || backward {
			d.cursor[i] = clampNonNegative(ticks - ticks%maxTick(d.sources[i].FrameTicks))
		}
	}
	d.pos = 0
	d.closed = false
	return nil
}

func clampNonNegative(v int64) int64 {
	if v < 0 {
		return 0
	}
	return v
}

func maxTick(v int64) int64 {
	if v <= 0 {
		return 1
	}
	return v
}

func (d *Demuxer) NewCodecContext(streamIndex int, _ native.ComponentOptions) (native.CodecContext, error) {
	return &codecContext{src: d.sources[streamIndex]}, nil
}

func (d *Demuxer) NewSubtitleDecoder(streamIndex int) (native.SubtitleDecoder, error) {
	return &subtitleDecoder{src: d.sources[streamIndex]}, nil
}

func (d *Demuxer) NewScaler(srcW, srcH int, srcPixelFormat string) (native.Scaler, error) {
	return &scaler{}, nil
}

func (d *Demuxer) NewResampler(target native.AudioSpec) (native.Resampler, error) {
	return &resampler{}, nil
}

func (d *Demuxer) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	return nil
}

type noopHandle struct{}

func (noopHandle) Release() {}

// codecContext turns each incoming packet directly into one frame; a drain
// packet yields one final frame then native.ErrEOF.
type codecContext struct {
	src     Source
	pending *native.Packet
	drained bool
}

func (c *codecContext) SendPacket(p *native.Packet) error {
	c.pending = p
	if p.Drain {
		c.drained = false
	}
	return nil
}

func (c *codecContext) ReceiveFrame() (*native.Frame, error) {
	if c.pending == nil {
		return nil, native.ErrAgain
	}
	if c.pending.Drain {
		if c.drained {
			return nil, native.ErrEOF
		}
		c.drained = true
		return nil, native.ErrEOF
	}

	p := c.pending
	c.pending = nil

	f := &native.Frame{
		MediaType:     c.src.MediaType,
		StartTicks:    p.Pts,
		DurationTicks: p.Duration,
		EndTicks:      p.Pts + p.Duration,
		Pts:           p.Pts,
		Dts:           p.Dts,
	}
	f.SetNative(noopHandle{})

	switch c.src.MediaType {
	case types.MediaTypeVideo:
		f.Video = &native.VideoPayload{Width: 64, Height: 48, PixelFormat: "yuv420p", AspectRatioNum: 1, AspectRatioDen: 1}
	case types.MediaTypeAudio:
		f.Audio = &native.AudioPayload{SampleFormat: "s16", SampleRate: 48000, Channels: 2, NbSamples: 1024}
	}

	return f, nil
}

func (c *codecContext) Flush() { c.pending = nil }
func (c *codecContext) Close() {}

type subtitleDecoder struct{ src Source }

// Decode yields one frame per packet read from the demuxer; a drain packet
// or an empty follow-up send (no native handle) reports no more output.
func (s *subtitleDecoder) Decode(p *native.Packet) (*native.Frame, bool, error) {
	if p.Drain || p.Native() == nil {
		return nil, false, nil
	}
	f := &native.Frame{
		MediaType:     types.MediaTypeSubtitle,
		StartTicks:    p.Pts,
		DurationTicks: p.Duration,
		EndTicks:      p.Pts + p.Duration,
		Subtitle:      &native.SubtitlePayload{Lines: []string{"fake subtitle"}, TextType: native.SubtitleTextPlain},
	}
	f.SetNative(noopHandle{})
	return f, true, nil
}

func (s *subtitleDecoder) Close() {}

type scaler struct{}

func (s *scaler) ScaleToBGR(f *native.Frame) (int, []byte, error) {
	payload := f.Video
	stride := payload.Width * 3
	return stride, make([]byte, stride*payload.Height), nil
}
func (s *scaler) Close() {}

type resampler struct{}

func (r *resampler) Resample(f *native.Frame, target native.AudioSpec) ([]byte, int, error) {
	payload := f.Audio
	samples := payload.NbSamples
	if target.SampleRate > 0 && payload.SampleRate > 0 {
		samples = payload.NbSamples * target.SampleRate / payload.SampleRate
	}
	return make([]byte, samples*target.Channels*2), samples, nil
}
func (r *resampler) Close() {}
