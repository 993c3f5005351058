// SPDX-License-Identifier: GPL-3.0-or-later

package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/mediacore/engine/internal/native"
	"github.com/mediacore/engine/internal/native/fake"
	"github.com/mediacore/engine/internal/types"
	"github.com/mediacore/engine/renderer"
)

func fakeFactory() DemuxerFactory {
	return func() native.Demuxer {
		return fake.NewDemuxer([]fake.Source{
			{MediaType: types.MediaTypeVideo, TimeBase: types.TimeBase{Num: 1, Den: 25}, DurationTicks: 5 * types.TicksPerSecond, FrameTicks: types.TicksPerSecond / 25},
			{MediaType: types.MediaTypeAudio, TimeBase: types.TimeBase{Num: 1, Den: 48000}, DurationTicks: 5 * types.TicksPerSecond, FrameTicks: types.TicksPerSecond / 50},
		})
	}
}

func TestOpenPlaySeekStopCloseLifecycle(t *testing.T) {
	videoRenderer := &renderer.Counting{}
	e := New(fakeFactory(), DefaultOptions(), map[string]renderer.Renderer{"video": videoRenderer})
	defer e.Shutdown()

	ctx := context.Background()
	if err := e.Open("fake://engine-test").Wait(ctx); err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := e.Play().Wait(ctx); err != nil {
		t.Fatalf("Play: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) && videoRenderer.Updates == 0 {
		time.Sleep(20 * time.Millisecond)
	}
	if videoRenderer.Updates == 0 {
		t.Fatal("video renderer never received an Update call after Play")
	}

	target := int64(2 * types.TicksPerSecond)
	if err := e.Seek(target).Wait(ctx); err != nil {
		t.Fatalf("Seek: %v", err)
	}
	// The clock keeps running after Seek sets it, so the position read
	// here is the target plus the few ticks elapsed since.
	if got := e.Clock().Position(); got < target || got > target+int64(types.TicksPerSecond) {
		t.Fatalf("Clock().Position() after Seek = %d, want %d (plus under one second of playback)", got, target)
	}

	if err := e.Stop().Wait(ctx); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if err := e.Close().Wait(ctx); err != nil {
		t.Fatalf("Close: %v", err)
	}
}

func TestSubscribeReceivesLifecycleEvents(t *testing.T) {
	e := New(fakeFactory(), DefaultOptions(), nil)
	defer e.Shutdown()

	events, unsubscribe := e.Subscribe(16)
	defer unsubscribe()

	ctx := context.Background()
	if err := e.Open("fake://engine-test").Wait(ctx); err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := e.Close().Wait(ctx); err != nil {
		t.Fatalf("Close: %v", err)
	}

	var kinds []EventKind
	deadline := time.Now().Add(time.Second)
collect:
	for time.Now().Before(deadline) {
		select {
		case ev := <-events:
			kinds = append(kinds, ev.Kind)
		case <-time.After(50 * time.Millisecond):
			if len(kinds) >= 4 {
				break collect
			}
		}
	}

	want := []EventKind{EventMediaOpening, EventMediaOpened, EventMediaClosing, EventMediaClosed}
	if len(kinds) < len(want) {
		t.Fatalf("events = %v, want at least %v", kinds, want)
	}
	for i, k := range want {
		if kinds[i] != k {
			t.Fatalf("events[%d] = %v, want %v (full sequence %v)", i, kinds[i], k, kinds)
		}
	}
}

func TestOpenOnDisposedEngineIsResolvedImmediately(t *testing.T) {
	e := New(fakeFactory(), DefaultOptions(), nil)
	e.disposed.Store(true)
	defer e.Shutdown()

	h := e.Open("fake://engine-test")
	select {
	case <-h.Done():
	default:
		t.Fatal("Open() on a disposed engine did not return an already-resolved handle")
	}
	if err := h.Wait(context.Background()); !errors.Is(err, types.ErrDisposed) {
		t.Fatalf("Wait() = %v, want ErrDisposed", err)
	}
}

func TestSeekOnUnopenedEngineFails(t *testing.T) {
	e := New(fakeFactory(), DefaultOptions(), nil)
	defer e.Shutdown()

	err := e.Seek(0).Wait(context.Background())
	if !errors.Is(err, types.ErrDisposed) {
		t.Fatalf("Seek() before Open = %v, want ErrDisposed", err)
	}
}
