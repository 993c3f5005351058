// SPDX-License-Identifier: GPL-3.0-or-later

package container

import (
	"errors"
	"io"
	"testing"

	"github.com/mediacore/engine/internal/corelog"
	"github.com/mediacore/engine/internal/native/fake"
	"github.com/mediacore/engine/internal/types"
)

func testSources() []fake.Source {
	return []fake.Source{
		{MediaType: types.MediaTypeVideo, TimeBase: types.TimeBase{Num: 1, Den: 25}, DurationTicks: 10 * types.TicksPerSecond, FrameTicks: types.TicksPerSecond / 25},
		{MediaType: types.MediaTypeAudio, TimeBase: types.TimeBase{Num: 1, Den: 48000}, DurationTicks: 10 * types.TicksPerSecond, FrameTicks: types.TicksPerSecond / 50},
	}
}

func openTestContainer(t *testing.T, opts Options) *Container {
	t.Helper()
	d := fake.NewDemuxer(testSources())
	c := New(d, corelog.New(corelog.LevelNone))
	if opts.BlockCapacity == 0 {
		opts.BlockCapacity = 32
	}
	if err := c.Open("fake://source", opts); err != nil {
		t.Fatalf("Open: %v", err)
	}
	return c
}

func TestOpenSelectsVideoAndAudio(t *testing.T) {
	c := openTestContainer(t, Options{})
	if c.Video() == nil {
		t.Fatal("Video() = nil, want a selected video component")
	}
	if c.Audio() == nil {
		t.Fatal("Audio() = nil, want a selected audio component")
	}
	if c.Subtitle() != nil {
		t.Fatal("Subtitle() != nil, no subtitle source was offered")
	}
}

func TestOpenFailsWithNoAudioOrVideo(t *testing.T) {
	d := fake.NewDemuxer([]fake.Source{{MediaType: types.MediaTypeSubtitle, DurationTicks: 1}})
	c := New(d, corelog.New(corelog.LevelNone))
	err := c.Open("fake://subs-only", Options{BlockCapacity: 4})
	if !errors.Is(err, types.ErrOpenFailed) {
		t.Fatalf("Open() error = %v, want ErrOpenFailed", err)
	}
}

func TestDisabledStreamsAreNotSelected(t *testing.T) {
	c := openTestContainer(t, Options{IsAudioDisabled: true})
	if c.Audio() != nil {
		t.Fatal("Audio() != nil despite IsAudioDisabled")
	}
	if c.Video() == nil {
		t.Fatal("Video() = nil, want a selected video component")
	}
}

func TestReadAndDecodeProduceOrderedFrames(t *testing.T) {
	c := openTestContainer(t, Options{})

	var total []decodedFrame
	for i := 0; i < 400; i++ {
		_, err := c.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		frames, err := c.Decode()
		if err != nil {
			t.Fatalf("Decode: %v", err)
		}
		total = append(total, frames...)
	}

	if len(total) == 0 {
		t.Fatal("no frames decoded")
	}
	for i := 1; i < len(total); i++ {
		if total[i].frame.StartTicks < total[i-1].frame.StartTicks {
			t.Fatalf("frames out of order at %d: %d < %d", i, total[i].frame.StartTicks, total[i-1].frame.StartTicks)
		}
	}
	for _, df := range total {
		if err := c.Convert(df); err != nil {
			t.Fatalf("Convert: %v", err)
		}
	}
	if c.Video().Blocks().Len() == 0 {
		t.Fatal("video block buffer is empty after conversion")
	}
}

func TestSeekToZeroResetsToStart(t *testing.T) {
	c := openTestContainer(t, Options{})
	drainSome(t, c, 50)

	frames, err := c.Seek(0)
	if err != nil {
		t.Fatalf("Seek(0): %v", err)
	}
	if frames != nil {
		t.Fatalf("Seek(0) returned %d frames, want nil (seek-to-start returns no frames)", len(frames))
	}
	if c.IsAtEndOfStream() {
		t.Fatal("IsAtEndOfStream() true immediately after Seek(0)")
	}
}

func TestSeekMidStreamReturnsFramesAtOrAfterTarget(t *testing.T) {
	c := openTestContainer(t, Options{})
	target := int64(4 * types.TicksPerSecond)

	frames, err := c.Seek(target)
	if err != nil {
		t.Fatalf("Seek(%d): %v", target, err)
	}
	if len(frames) == 0 {
		t.Fatal("Seek returned no frames")
	}

	foundMain := false
	for _, df := range frames {
		if df.comp == c.Video() && df.frame.StartTicks >= target {
			foundMain = true
		}
	}
	if !foundMain {
		t.Fatalf("no video frame with start_time >= %d among seek results", target)
	}
	for _, df := range frames {
		df.frame.Release()
	}
}

func drainSome(t *testing.T, c *Container, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		if _, err := c.Read(); errors.Is(err, io.EOF) {
			return
		}
		if _, err := c.Decode(); err != nil {
			t.Fatalf("Decode: %v", err)
		}
	}
}

func TestAttachedPictureRedeliveredOnOpenAndSeek(t *testing.T) {
	sources := []fake.Source{
		{MediaType: types.MediaTypeVideo, TimeBase: types.TimeBase{Num: 1, Den: 25}, DurationTicks: types.TicksPerSecond, FrameTicks: types.TicksPerSecond, AttachedPic: true},
		{MediaType: types.MediaTypeAudio, TimeBase: types.TimeBase{Num: 1, Den: 48000}, DurationTicks: 10 * types.TicksPerSecond, FrameTicks: types.TicksPerSecond / 50},
	}
	d := fake.NewDemuxer(sources)
	c := New(d, corelog.New(corelog.LevelNone))
	if err := c.Open("fake://cover-art", Options{BlockCapacity: 16}); err != nil {
		t.Fatalf("Open: %v", err)
	}
	if !c.videoAttachedPicOnly {
		t.Fatal("videoAttachedPicOnly = false, want true for an AttachedPic video source")
	}

	mt, err := c.Read()
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if mt != types.MediaTypeVideo {
		t.Fatalf("first Read() after Open = %v, want video (attached picture)", mt)
	}

	frames, err := c.Seek(2 * types.TicksPerSecond)
	if err != nil {
		t.Fatalf("Seek: %v", err)
	}
	redelivered := false
	for _, df := range frames {
		if df.comp == c.Video() {
			redelivered = true
		}
		df.frame.Release()
	}
	if !redelivered {
		t.Fatal("Seek() did not redeliver the attached-picture frame among its results")
	}
}

func TestCloseDisposesComponentsAndDemuxer(t *testing.T) {
	c := openTestContainer(t, Options{})
	if err := c.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}
