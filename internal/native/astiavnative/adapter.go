// SPDX-License-Identifier: GPL-3.0-or-later

// Package astiavnative is the sole adapter between the engine and
// github.com/asticode/go-astiav, the FFmpeg binding used for demuxing and
// decoding. Every astiav symbol the engine touches is confined to this
// package; internal/native's interfaces are the only surface the rest of
// the engine sees.
package astiavnative

import (
	"errors"
	"fmt"
	"io"
	"sync"

	astiav "github.com/asticode/go-astiav"

	"github.com/mediacore/engine/internal/native"
	"github.com/mediacore/engine/internal/types"
)

// initOnce guards astiav's process-wide logging callback, matching the
// "global state behind a one-shot init" design note: the native library's
// log callback is a process singleton.
var initOnce sync.Once

func ensureInit(logf func(level astiav.LogLevel, msg string)) {
	initOnce.Do(func() {
		astiav.SetLogLevel(astiav.LogLevelError)
		astiav.SetLogCallback(func(level astiav.LogLevel, msg string) {
			if logf != nil {
				logf(level, msg)
			}
		})
	})
}

// Demuxer implements native.Demuxer over an astiav.FormatContext.
type Demuxer struct {
	fc       *astiav.FormatContext
	streams  []native.StreamInfo
	pkt      *astiav.Packet
	logf     func(level astiav.LogLevel, msg string)
	formatName string
	discontinuous bool
	bitRate  int64
}

// NewDemuxer constructs an unopened Demuxer; logf receives native log
// callback lines (may be nil).
func NewDemuxer(logf func(level astiav.LogLevel, msg string)) *Demuxer {
	ensureInit(logf)
	return &Demuxer{logf: logf}
}

func (d *Demuxer) Open(urlOrPath string, opts native.OpenOptions) error {
	d.fc = astiav.AllocFormatContext()
	if d.fc == nil {
		return fmt.Errorf("%w: AllocFormatContext", types.ErrOpenFailed)
	}

	var inputFormat *astiav.InputFormat
	if opts.InputFormat != "" {
		inputFormat = astiav.FindInputFormat(opts.InputFormat)
		if inputFormat == nil {
			return types.Wrap(types.ErrOpenFailed, "unknown input format %q", opts.InputFormat)
		}
	}

	dict := astiav.NewDictionary()
	defer dict.Free()
	if _, ok := opts.FormatOptions["scan_all_pmts"]; !ok {
		_ = dict.Set("scan_all_pmts", "1", 0)
	}
	for k, v := range opts.FormatOptions {
		if err := dict.Set(k, v, 0); err != nil {
			// Unrecognised option keys are tolerated with a log line, per
			// the failure semantics of §4.1: option parsing warns and
			// continues rather than aborting the open.
			if d.logf != nil {
				d.logf(astiav.LogLevelWarning, fmt.Sprintf("format option %s=%s rejected: %v", k, v, err))
			}
		}
	}
	if opts.GeneratePTS {
		_ = dict.Set("fflags", "+genpts", 0)
	}

	if err := d.fc.OpenInput(urlOrPath, inputFormat, dict); err != nil {
		return types.Wrap(types.ErrOpenFailed, "OpenInput(%s): %v", urlOrPath, err)
	}
	if err := d.fc.FindStreamInfo(nil); err != nil {
		// Stream-info probing failure is logged and tolerated per §4.1.
		if d.logf != nil {
			d.logf(astiav.LogLevelWarning, fmt.Sprintf("FindStreamInfo: %v", err))
		}
	}

	d.formatName = d.fc.InputFormat().Name()
	d.bitRate = d.fc.BitRate()
	d.discontinuous = d.fc.Flags().Has(astiav.FormatContextFlagDiscardCorrupt) || isDiscontinuousFormat(d.formatName)

	d.streams = make([]native.StreamInfo, 0, len(d.fc.Streams()))
	for _, s := range d.fc.Streams() {
		params := s.CodecParameters()
		tb := s.TimeBase()
		info := native.StreamInfo{
			Index:          s.Index(),
			MediaType:      mapMediaType(params.MediaType()),
			TimeBase:       types.TimeBase{Num: tb.Num(), Den: tb.Den()},
			StartTimeTicks: rescaleToTicks(s.StartTime(), tb),
			DurationTicks:  rescaleToTicks(s.Duration(), tb),
			CodecID:        params.CodecID().String(),
			AttachedPic:    s.Disposition().Has(astiav.StreamDispositionAttachedPic),
			BitRate:        params.BitRate(),
		}
		fr := s.AvgFrameRate()
		info.FrameRateNum, info.FrameRateDen = fr.Num(), fr.Den()
		d.streams = append(d.streams, info)
	}

	d.pkt = astiav.AllocPacket()
	if d.pkt == nil {
		return types.Wrap(types.ErrOpenFailed, "AllocPacket")
	}

	return nil
}

func isDiscontinuousFormat(name string) bool {
	switch name {
	case "mpegts", "mpeg", "hls", "flv":
		return true
	default:
		return false
	}
}

func mapMediaType(mt astiav.MediaType) types.MediaType {
	switch mt {
	case astiav.MediaTypeAudio:
		return types.MediaTypeAudio
	case astiav.MediaTypeVideo:
		return types.MediaTypeVideo
	case astiav.MediaTypeSubtitle:
		return types.MediaTypeSubtitle
	default:
		return types.MediaTypeUnknown
	}
}

func rescaleToTicks(units int64, tb astiav.Rational) int64 {
	if tb.Den() == 0 {
		return 0
	}
	return units * int64(tb.Num()) * types.TicksPerSecond / int64(tb.Den())
}

func (d *Demuxer) Streams() []native.StreamInfo { return d.streams }
func (d *Demuxer) FormatName() string           { return d.formatName }
func (d *Demuxer) FormatDiscontinuous() bool     { return d.discontinuous }
func (d *Demuxer) BitRate() int64               { return d.bitRate }

func (d *Demuxer) ReadPacket() (*native.Packet, error) {
	if err := d.fc.ReadFrame(d.pkt); err != nil {
		if errors.Is(err, astiav.ErrEof) || errors.Is(err, io.EOF) {
			return nil, io.EOF
		}
		if errors.Is(err, astiav.ErrEagain) {
			return nil, native.ErrAgain
		}
		return nil, types.Wrap(types.ErrReadFailed, "ReadFrame: %v", err)
	}

	stream := d.fc.Streams()[d.pkt.StreamIndex()]
	tb := stream.TimeBase()

	out := &native.Packet{
		StreamIndex: d.pkt.StreamIndex(),
		Size:        d.pkt.Size(),
		Pts:         rescaleToTicks(d.pkt.Pts(), tb),
		Dts:         rescaleToTicks(d.pkt.Dts(), tb),
		Duration:    rescaleToTicks(d.pkt.Duration(), tb),
	}

	cloned := astiav.AllocPacket()
	if err := cloned.Ref(d.pkt); err != nil {
		cloned.Free()
		return nil, types.Wrap(types.ErrReadFailed, "packet ref: %v", err)
	}
	out.SetNative(packetHandle{p: cloned})
	d.pkt.Unref()

	return out, nil
}

func (d *Demuxer) SeekStart(byteSeek bool) error {
	flags := astiav.NewSeekFlags(astiav.SeekFlagBackward)
	if byteSeek {
		flags = astiav.NewSeekFlags(astiav.SeekFlagBackward, astiav.SeekFlagByte)
	}
	if err := d.fc.SeekFrame(-1, 0, flags); err != nil {
		return types.Wrap(types.ErrSeekFailed, "SeekFrame(start): %v", err)
	}
	d.fc.FlushBuffers()
	return nil
}

// AttachedPicturePacket returns a cloned copy of the stream's attached
// picture, stored by FFmpeg as a single packet on the AVStream itself
// rather than delivered through the normal read loop.
func (d *Demuxer) AttachedPicturePacket(streamIndex int) (*native.Packet, bool) {
	streams := d.fc.Streams()
	if streamIndex < 0 || streamIndex >= len(streams) {
		return nil, false
	}
	stream := streams[streamIndex]
	if !stream.Disposition().Has(astiav.StreamDispositionAttachedPic) {
		return nil, false
	}
	ap := stream.AttachedPic()
	if ap == nil || ap.Size() == 0 {
		return nil, false
	}

	tb := stream.TimeBase()
	out := &native.Packet{
		StreamIndex: streamIndex,
		Size:        ap.Size(),
		Pts:         rescaleToTicks(ap.Pts(), tb),
		Dts:         rescaleToTicks(ap.Dts(), tb),
		Duration:    rescaleToTicks(ap.Duration(), tb),
	}
	cloned := astiav.AllocPacket()
	if err := cloned.Ref(ap); err != nil {
		cloned.Free()
		return nil, false
	}
	out.SetNative(packetHandle{p: cloned})
	return out, true
}

func (d *Demuxer) SeekTime(streamIndex int, ticks int64, backward bool) error {
	var flags astiav.SeekFlags
	if backward {
		flags = astiav.NewSeekFlags(astiav.SeekFlagBackward)
	} else {
		flags = astiav.NewSeekFlags()
	}
	tb := d.fc.Streams()[streamIndex].TimeBase()
	target := ticks * int64(tb.Den()) / (int64(tb.Num()) * types.TicksPerSecond)
	if err := d.fc.SeekFrame(streamIndex, target, flags); err != nil {
		return types.Wrap(types.ErrSeekFailed, "SeekFrame(%d): %v", streamIndex, err)
	}
	return nil
}

func (d *Demuxer) NewCodecContext(streamIndex int, opts native.ComponentOptions) (native.CodecContext, error) {
	stream := d.fc.Streams()[streamIndex]
	params := stream.CodecParameters()

	decoder := astiav.FindDecoder(params.CodecID())
	if decoder == nil {
		return nil, types.Wrap(types.ErrDecoderNotFound, "codec id %s", params.CodecID())
	}

	ctx := astiav.AllocCodecContext(decoder)
	if ctx == nil {
		return nil, types.Wrap(types.ErrCodecOpenFailed, "AllocCodecContext")
	}
	if err := params.ToCodecContext(ctx); err != nil {
		ctx.Free()
		return nil, types.Wrap(types.ErrCodecOpenFailed, "ToCodecContext: %v", err)
	}
	ctx.SetPacketTimeBase(stream.TimeBase())
	ctx.SetThreadCount(opts.Threads)

	dict := astiav.NewDictionary()
	defer dict.Free()
	if opts.LowRes {
		_ = dict.Set("lowres", "1", 0)
	}
	if opts.FastDecoding {
		ctx.SetFlags2(ctx.Flags2().Add(astiav.CodecContextFlags2Fast))
	}
	for k, v := range opts.CodecOptions {
		_ = dict.Set(k, v, 0)
	}

	if err := ctx.Open(decoder, dict); err != nil {
		ctx.Free()
		return nil, types.Wrap(types.ErrCodecOpenFailed, "Open: %v", err)
	}

	return &codecContext{ctx: ctx, tb: stream.TimeBase(), mediaType: mapMediaType(params.MediaType()), frame: astiav.AllocFrame()}, nil
}

func (d *Demuxer) NewSubtitleDecoder(streamIndex int) (native.SubtitleDecoder, error) {
	stream := d.fc.Streams()[streamIndex]
	params := stream.CodecParameters()

	decoder := astiav.FindDecoder(params.CodecID())
	if decoder == nil {
		return nil, types.Wrap(types.ErrDecoderNotFound, "codec id %s", params.CodecID())
	}
	ctx := astiav.AllocCodecContext(decoder)
	if ctx == nil {
		return nil, types.Wrap(types.ErrCodecOpenFailed, "AllocCodecContext")
	}
	if err := params.ToCodecContext(ctx); err != nil {
		ctx.Free()
		return nil, types.Wrap(types.ErrCodecOpenFailed, "ToCodecContext: %v", err)
	}
	if err := ctx.Open(decoder, nil); err != nil {
		ctx.Free()
		return nil, types.Wrap(types.ErrCodecOpenFailed, "Open: %v", err)
	}
	return &subtitleDecoder{ctx: ctx, tb: stream.TimeBase()}, nil
}

func (d *Demuxer) NewScaler(srcW, srcH int, srcPixelFormat string) (native.Scaler, error) {
	pf := astiav.FindPixelFormat(srcPixelFormat)
	flags := astiav.NewSoftwareScaleContextFlags(astiav.SoftwareScaleContextFlagBicubic)
	ssc, err := astiav.CreateSoftwareScaleContext(srcW, srcH, pf, srcW, srcH, astiav.PixelFormatBgr24, flags)
	if err != nil {
		return nil, types.Wrap(types.ErrConvertFailed, "CreateSoftwareScaleContext: %v", err)
	}
	dst := astiav.AllocFrame()
	dst.SetWidth(srcW)
	dst.SetHeight(srcH)
	dst.SetPixelFormat(astiav.PixelFormatBgr24)
	if err := dst.AllocBuffer(1); err != nil {
		dst.Free()
		ssc.Free()
		return nil, types.Wrap(types.ErrConvertFailed, "AllocBuffer: %v", err)
	}
	return &scaler{ssc: ssc, dst: dst}, nil
}

func (d *Demuxer) NewResampler(target native.AudioSpec) (native.Resampler, error) {
	swr := astiav.AllocSoftwareResampleContext()
	if swr == nil {
		return nil, types.Wrap(types.ErrConvertFailed, "AllocSoftwareResampleContext")
	}
	return &resampler{swr: swr, target: target, dst: astiav.AllocFrame()}, nil
}

func (d *Demuxer) Close() error {
	if d.pkt != nil {
		d.pkt.Free()
		d.pkt = nil
	}
	if d.fc != nil {
		d.fc.CloseInput()
		d.fc.Free()
		d.fc = nil
	}
	return nil
}

type packetHandle struct{ p *astiav.Packet }

func (h packetHandle) Release() {
	h.p.Unref()
	h.p.Free()
}

type frameHandle struct{ f *astiav.Frame }

func (h frameHandle) Release() {
	h.f.Unref()
	h.f.Free()
}

// codecContext implements native.CodecContext over an astiav.CodecContext
// using the send/receive decode loop of §4.2.
type codecContext struct {
	ctx       *astiav.CodecContext
	tb        astiav.Rational
	mediaType types.MediaType
	frame     *astiav.Frame
}

func (c *codecContext) SendPacket(p *native.Packet) error {
	var apkt *astiav.Packet
	if !p.Drain {
		ph, _ := p.Native().(packetHandle)
		apkt = ph.p
	}
	if err := c.ctx.SendPacket(apkt); err != nil {
		if errors.Is(err, astiav.ErrEagain) {
			return native.ErrAgain
		}
		return types.Wrap(types.ErrConvertFailed, "SendPacket: %v", err)
	}
	return nil
}

func (c *codecContext) ReceiveFrame() (*native.Frame, error) {
	if err := c.ctx.ReceiveFrame(c.frame); err != nil {
		if errors.Is(err, astiav.ErrEagain) {
			return nil, native.ErrAgain
		}
		if errors.Is(err, astiav.ErrEof) {
			return nil, native.ErrEOF
		}
		return nil, types.Wrap(types.ErrConvertFailed, "ReceiveFrame: %v", err)
	}

	clone := astiav.AllocFrame()
	if err := clone.Ref(c.frame); err != nil {
		clone.Free()
		return nil, types.Wrap(types.ErrConvertFailed, "frame ref: %v", err)
	}
	c.frame.Unref()

	start := rescaleToTicks(clone.Pts(), c.tb)

	out := &native.Frame{
		MediaType:  c.mediaType,
		StartTicks: start,
		Pts:        clone.Pts(),
		Dts:        clone.PktDts(),
	}
	out.SetNative(frameHandle{f: clone})

	switch c.mediaType {
	case types.MediaTypeVideo:
		arNum, arDen := 1, 1
		if sar := clone.SampleAspectRatio(); sar.Num() > 0 && sar.Den() > 0 {
			arNum, arDen = sar.Num(), sar.Den()
		}
		out.Video = &native.VideoPayload{
			Width:          clone.Width(),
			Height:         clone.Height(),
			PixelFormat:    normalizePixelFormat(clone.PixelFormat().String()),
			AspectRatioNum: arNum,
			AspectRatioDen: arDen,
		}
		// video block duration is resolved by the component from frame-rate
	case types.MediaTypeAudio:
		out.Audio = &native.AudioPayload{
			SampleFormat:  clone.SampleFormat().String(),
			SampleRate:    clone.SampleRate(),
			Channels:      clone.ChannelLayout().Channels(),
			ChannelLayout: clone.ChannelLayout().String(),
			NbSamples:     clone.NbSamples(),
		}
		out.DurationTicks = int64(clone.NbSamples()) * types.TicksPerSecond / int64(clone.SampleRate())
	}
	out.EndTicks = out.StartTicks + out.DurationTicks

	return out, nil
}

// normalizePixelFormat remaps deprecated YUVJ formats to their non-J
// equivalents, per §4.2's materialisation rule.
func normalizePixelFormat(name string) string {
	switch name {
	case "yuvj420p":
		return "yuv420p"
	case "yuvj422p":
		return "yuv422p"
	case "yuvj444p":
		return "yuv444p"
	case "yuvj440p":
		return "yuv440p"
	default:
		return name
	}
}

func (c *codecContext) Flush() { c.ctx.FlushBuffers() }

func (c *codecContext) Close() {
	if c.frame != nil {
		c.frame.Free()
		c.frame = nil
	}
	c.ctx.Free()
}

// subtitleDecoder implements the legacy decode_subtitle2-style loop.
type subtitleDecoder struct {
	ctx *astiav.CodecContext
	tb  astiav.Rational
	sub astiav.Subtitle
}

func (s *subtitleDecoder) Decode(p *native.Packet) (*native.Frame, bool, error) {
	var apkt *astiav.Packet
	if !p.Drain {
		ph, _ := p.Native().(packetHandle)
		apkt = ph.p
	}

	gotFrame, err := s.ctx.DecodeSubtitle2(&s.sub, apkt)
	if err != nil {
		return nil, false, types.Wrap(types.ErrConvertFailed, "DecodeSubtitle2: %v", err)
	}
	if !gotFrame {
		return nil, false, nil
	}

	lines := make([]string, 0, len(s.sub.Rects()))
	textType := native.SubtitleTextBitmap
	for _, r := range s.sub.Rects() {
		if txt := r.Text(); txt != "" {
			lines = append(lines, txt)
			textType = native.SubtitleTextPlain
		} else if ass := r.ASS(); ass != "" {
			lines = append(lines, ass)
			textType = native.SubtitleTextASS
		}
	}

	start := rescaleToTicks(p.Pts, s.tb)
	frame := &native.Frame{
		MediaType:     types.MediaTypeSubtitle,
		StartTicks:    start,
		DurationTicks: int64(s.sub.EndDisplayTime()) * types.TicksPerSecond / 1000,
		Subtitle:      &native.SubtitlePayload{Lines: lines, TextType: textType},
	}
	frame.EndTicks = frame.StartTicks + frame.DurationTicks
	frame.SetNative(subtitleHandle{sub: &s.sub})

	return frame, true, nil
}

func (s *subtitleDecoder) Close() { s.ctx.Free() }

type subtitleHandle struct{ sub *astiav.Subtitle }

func (h subtitleHandle) Release() { h.sub.Free() }

// scaler implements native.Scaler via astiav.SoftwareScaleContext.
type scaler struct {
	ssc *astiav.SoftwareScaleContext
	dst *astiav.Frame
}

func (s *scaler) ScaleToBGR(f *native.Frame) (int, []byte, error) {
	if f.Video == nil {
		return 0, nil, types.Wrap(types.ErrConvertFailed, "scaler: frame has no video payload")
	}
	fh, ok := nativeFrame(f)
	if !ok {
		return 0, nil, types.Wrap(types.ErrConvertFailed, "scaler: frame has no native handle")
	}
	if err := s.ssc.ScaleFrame(fh.f, s.dst); err != nil {
		return 0, nil, types.Wrap(types.ErrConvertFailed, "ScaleFrame: %v", err)
	}
	n, err := s.dst.ImageBufferSize(1)
	if err != nil {
		return 0, nil, types.Wrap(types.ErrConvertFailed, "ImageBufferSize: %v", err)
	}
	out := make([]byte, n)
	if _, err := s.dst.ImageCopyToBuffer(out, 1); err != nil {
		return 0, nil, types.Wrap(types.ErrConvertFailed, "ImageCopyToBuffer: %v", err)
	}
	stride := f.Video.Width * 3
	return stride, out, nil
}

func (s *scaler) Close() {
	s.dst.Free()
	s.ssc.Free()
}

func nativeFrame(f *native.Frame) (frameHandle, bool) {
	fh, ok := f.Native().(frameHandle)
	return fh, ok
}

// resampler implements native.Resampler via astiav.SoftwareResampleContext.
type resampler struct {
	swr    *astiav.SoftwareResampleContext
	target native.AudioSpec
	dst    *astiav.Frame
}

func (r *resampler) Resample(f *native.Frame, target native.AudioSpec) ([]byte, int, error) {
	if f.Audio == nil {
		return nil, 0, types.Wrap(types.ErrConvertFailed, "resampler: frame has no audio payload")
	}
	payload := f.Audio
	fh, ok := nativeFrame(f)
	if !ok {
		return nil, 0, types.Wrap(types.ErrConvertFailed, "resampler: frame has no native handle")
	}

	targetSamples := int(int64(payload.NbSamples) * int64(target.SampleRate) / int64(payload.SampleRate))
	if targetSamples <= 0 {
		targetSamples = payload.NbSamples
	}

	r.dst.Unref()
	r.dst.SetSampleFormat(astiav.FindSampleFormat(target.SampleFormat))
	r.dst.SetSampleRate(target.SampleRate)
	r.dst.SetChannelLayout(astiav.ChannelLayoutForChannels(target.Channels))
	r.dst.SetNbSamples(targetSamples)
	if err := r.dst.AllocBuffer(0); err != nil {
		return nil, 0, types.Wrap(types.ErrConvertFailed, "AllocBuffer: %v", err)
	}

	if err := r.swr.ConvertFrame(fh.f, r.dst); err != nil {
		return nil, 0, types.Wrap(types.ErrConvertFailed, "ConvertFrame: %v", err)
	}

	n, err := r.dst.Data().Bytes(0)
	if err != nil {
		return nil, 0, types.Wrap(types.ErrConvertFailed, "Data().Bytes: %v", err)
	}
	out := make([]byte, len(n))
	copy(out, n)

	return out, r.dst.NbSamples(), nil
}

func (r *resampler) Close() {
	r.dst.Free()
	r.swr.Free()
}
