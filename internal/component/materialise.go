// SPDX-License-Identifier: GPL-3.0-or-later

package component

import (
	"github.com/mediacore/engine/internal/block"
	"github.com/mediacore/engine/internal/native"
	"github.com/mediacore/engine/internal/types"
)

// Materialise implements block.Materialiser, dispatching to the
// type-specialised conversion per §4.2 and §9's "polymorphic components"
// design note.
func (c *Component) Materialise(f *native.Frame, into block.Block) error {
	if f.Stale() {
		return types.Wrap(types.ErrConvertFailed, "component %d: stale frame", c.streamIndex)
	}
	switch c.mediaType {
	case types.MediaTypeVideo:
		return c.materialiseVideo(f, into.(*block.VideoBlock))
	case types.MediaTypeAudio:
		return c.materialiseAudio(f, into.(*block.AudioBlock))
	case types.MediaTypeSubtitle:
		return c.materialiseSubtitle(f, into.(*block.SubtitleBlock))
	default:
		return types.Wrap(types.ErrConvertFailed, "component %d: unknown media type", c.streamIndex)
	}
}

// materialiseVideo scales the source picture to 24-bit BGR, lazily
// rebuilding the scaler when source geometry or pixel format changes, per
// §4.2's video materialisation rule.
func (c *Component) materialiseVideo(f *native.Frame, blk *block.VideoBlock) error {
	if f.Video == nil {
		return types.Wrap(types.ErrConvertFailed, "component %d: video frame missing payload", c.streamIndex)
	}
	v := f.Video

	if c.scaler == nil || c.scalerSrcW != v.Width || c.scalerSrcH != v.Height || c.scalerSrcPix != v.PixelFormat {
		if c.scaler != nil {
			c.scaler.Close()
		}
		scaler, err := c.demuxer.NewScaler(v.Width, v.Height, v.PixelFormat)
		if err != nil {
			c.scaler = nil
			return types.Wrap(types.ErrConvertFailed, "component %d: new_scaler: %v", c.streamIndex, err)
		}
		c.scaler = scaler
		c.scalerSrcW, c.scalerSrcH, c.scalerSrcPix = v.Width, v.Height, v.PixelFormat
	}

	stride, bgr, err := c.scaler.ScaleToBGR(f)
	if err != nil {
		return types.Wrap(types.ErrConvertFailed, "component %d: scale_to_bgr: %v", c.streamIndex, err)
	}

	dst := blk.EnsureCapacity(stride, v.Height)
	copy(dst, bgr)

	blk.PixelWidth = v.Width
	blk.PixelHeight = v.Height
	arNum, arDen := v.AspectRatioNum, v.AspectRatioDen
	if arNum == 0 || arDen == 0 {
		arNum, arDen = 1, 1
	}
	blk.AspectRatioNum, blk.AspectRatioDen = arNum, arDen

	return nil
}

// materialiseAudio lazily (re)initialises the resampler when the source
// spec differs from the last one seen, then resamples into the engine's
// canonical output spec, per §4.2's audio materialisation rule.
func (c *Component) materialiseAudio(f *native.Frame, blk *block.AudioBlock) error {
	if f.Audio == nil {
		return types.Wrap(types.ErrConvertFailed, "component %d: audio frame missing payload", c.streamIndex)
	}
	a := f.Audio

	target := native.AudioSpec{
		SampleFormat: c.opts.AudioSampleFormat,
		SampleRate:   c.opts.AudioSampleRate,
		Channels:     c.opts.AudioChannels,
	}
	if target.SampleFormat == "" {
		target.SampleFormat = "s16"
	}
	if target.SampleRate == 0 {
		target.SampleRate = a.SampleRate
	}
	if target.Channels == 0 {
		target.Channels = a.Channels
	}

	if c.resampler == nil || c.lastSampleFmt != a.SampleFormat || c.lastSampleRate != a.SampleRate || c.lastChannels != a.Channels {
		if c.resampler != nil {
			c.resampler.Close()
		}
		resampler, err := c.demuxer.NewResampler(target)
		if err != nil {
			c.resampler = nil
			return types.Wrap(types.ErrConvertFailed, "component %d: new_resampler: %v", c.streamIndex, err)
		}
		c.resampler = resampler
		c.lastSampleFmt, c.lastSampleRate, c.lastChannels = a.SampleFormat, a.SampleRate, a.Channels
	}

	samples, samplesPerChannel, err := c.resampler.Resample(f, target)
	if err != nil {
		return types.Wrap(types.ErrConvertFailed, "component %d: resample: %v", c.streamIndex, err)
	}

	dst := blk.EnsureCapacity(samplesPerChannel, target.Channels)
	copy(dst, samples)
	blk.SampleRate = target.SampleRate

	return nil
}

// materialiseSubtitle copies decoded lines and strips ASS/SRT formatting
// according to text_type, dropping empty lines, per §4.2 and §6.
func (c *Component) materialiseSubtitle(f *native.Frame, blk *block.SubtitleBlock) error {
	if f.Subtitle == nil {
		return types.Wrap(types.ErrConvertFailed, "component %d: subtitle frame missing payload", c.streamIndex)
	}
	s := f.Subtitle

	out := make([]string, 0, len(s.Lines))
	for _, line := range s.Lines {
		var stripped string
		switch s.TextType {
		case native.SubtitleTextASS:
			stripped = stripASS(line)
		case native.SubtitleTextPlain:
			stripped = stripSRT(line)
		default:
			stripped = line
		}
		if stripped == "" {
			continue
		}
		out = append(out, stripped)
	}

	blk.Lines = out
	switch s.TextType {
	case native.SubtitleTextASS:
		blk.TextType = block.SubtitleTextASS
	case native.SubtitleTextBitmap:
		blk.TextType = block.SubtitleTextBitmap
	default:
		blk.TextType = block.SubtitleTextPlain
	}

	return nil
}
