// SPDX-License-Identifier: GPL-3.0-or-later

// Package engine is the public façade of the media engine: open, close,
// change-media, play, pause, stop, and seek, each asynchronous and
// returning a completion handle, per §6.
package engine

import (
	"context"
	"sync"
	"sync/atomic"

	astiavnative "github.com/mediacore/engine/internal/native/astiavnative"

	"github.com/mediacore/engine/internal/clock"
	"github.com/mediacore/engine/internal/command"
	"github.com/mediacore/engine/internal/component"
	"github.com/mediacore/engine/internal/container"
	"github.com/mediacore/engine/internal/corelog"
	"github.com/mediacore/engine/internal/native"
	"github.com/mediacore/engine/internal/types"
	"github.com/mediacore/engine/internal/worker"
)

// DemuxerFactory builds a fresh native.Demuxer for each Open/ChangeMedia;
// the CLI demo uses astiavnative.NewDemuxer, tests use fake.NewDemuxer.
type DemuxerFactory func() native.Demuxer

// Engine is the public media-engine handle described in §6.
type Engine struct {
	mu sync.Mutex

	demuxerFactory DemuxerFactory
	log            *corelog.Logger
	bus            *bus
	renderers      map[string]worker.Renderer

	cmd *command.Manager
	clk *clock.Clock

	opts Options

	container *container.Container
	workers   *worker.Set

	disposed atomic.Bool
	source   string
}

// New constructs an Engine. demuxerFactory is called once per Open/
// ChangeMedia to produce a fresh native.Demuxer.
func New(demuxerFactory DemuxerFactory, opts Options, renderers map[string]worker.Renderer) *Engine {
	if demuxerFactory == nil {
		demuxerFactory = func() native.Demuxer { return astiavnative.NewDemuxer(nil) }
	}
	log := corelog.New(corelog.ParseLevel(opts.LogLevel))
	e := &Engine{
		demuxerFactory: demuxerFactory,
		log:            log,
		bus:            newBus(log),
		renderers:      renderers,
		clk:            clock.New(),
		opts:           opts,
	}
	log.OnMessage = func(level corelog.Level, aspect, text string) {
		e.bus.publish(Event{Kind: EventLogMessage, LogLevel: level, Aspect: aspect, Text: text})
	}
	e.cmd = command.New(executor{e})
	return e
}

// executor adapts Engine's private exec methods to command.Executor; kept
// separate from Engine itself because the façade's public Open/Close/...
// methods already use those names for the async, handle-returning API.
type executor struct{ e *Engine }

func (x executor) Open(ctx context.Context, payload any) error        { return x.e.doOpen(ctx, payload.(string)) }
func (x executor) Close(ctx context.Context) error                    { return x.e.doClose(ctx) }
func (x executor) ChangeMedia(ctx context.Context, payload any) error  { return x.e.doChangeMedia(ctx, payload.(string)) }
func (x executor) Play(ctx context.Context) error                     { return x.e.doPlay(ctx) }
func (x executor) Pause(ctx context.Context) error                    { return x.e.doPause(ctx) }
func (x executor) Stop(ctx context.Context) error                     { return x.e.doStop(ctx) }
func (x executor) Seek(ctx context.Context, target int64) error       { return x.e.doSeek(ctx, target) }

// Subscribe returns a channel of future engine events.
func (e *Engine) Subscribe(buffer int) (<-chan Event, func()) { return e.bus.Subscribe(buffer) }

// Clock exposes the engine's RealTimeClock for renderers/tests that need
// direct position reads.
func (e *Engine) Clock() *clock.Clock { return e.clk }

// Open asynchronously opens a URI or custom byte stream, per §6.
func (e *Engine) Open(source string) *command.Handle {
	if e.disposed.Load() {
		return command.Resolved(types.ErrDisposed)
	}
	return e.cmd.Open(source)
}

// Close asynchronously tears the engine down; any in-flight seek or
// pending play/pause/stop is cancelled, per §4.6.
func (e *Engine) Close() *command.Handle { return e.cmd.Close() }

// ChangeMedia asynchronously re-opens a new source, preserving position
// and speed, per §4.6.
func (e *Engine) ChangeMedia(source string) *command.Handle { return e.cmd.ChangeMedia(source) }

func (e *Engine) Play() *command.Handle  { return e.cmd.Play() }
func (e *Engine) Pause() *command.Handle { return e.cmd.Pause() }
func (e *Engine) Stop() *command.Handle  { return e.cmd.Stop() }

// Seek asynchronously seeks to an absolute 0-based position in ticks.
func (e *Engine) Seek(positionTicks int64) *command.Handle { return e.cmd.Seek(positionTicks) }

// Shutdown stops the command worker; call after Close completes.
func (e *Engine) Shutdown() { e.cmd.Shutdown() }

// --- executor methods, invoked serially by the command worker ------------

func (e *Engine) doOpen(_ context.Context, source string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.bus.publish(Event{Kind: EventMediaOpening})

	demuxer := e.demuxerFactory()
	c := container.New(demuxer, e.log)

	copts := container.Options{
		Native:             e.opts.nativeOpen(),
		Component:          e.opts.nativeComponent(),
		IsAudioDisabled:    e.opts.IsAudioDisabled,
		IsVideoDisabled:    e.opts.IsVideoDisabled,
		IsSubtitleDisabled: e.opts.IsSubtitleDisabled,
		AudioStreamSpec:    mustParseSpec(e.opts.AudioStreamSpec),
		VideoStreamSpec:    mustParseSpec(e.opts.VideoStreamSpec),
		SubtitleStreamSpec: mustParseSpec(e.opts.SubtitleStreamSpec),
		BlockCapacity:      e.opts.BlockCapacity,
		Materialise: component.Options{
			AudioSampleRate:   e.opts.AudioSampleRate,
			AudioChannels:     e.opts.AudioChannelCount,
			AudioSampleFormat: e.opts.AudioSampleFormat,
			VideoFilterGraph:  e.opts.VideoFilterGraph,
		},
	}

	if err := c.Open(source, copts); err != nil {
		e.bus.publish(Event{Kind: EventLogMessage, LogLevel: corelog.LevelError, Aspect: "open", Text: err.Error()})
		return err
	}

	e.container = c
	e.source = source
	e.clk.Reset()

	e.workers = worker.New(c, e.clk, e.log, e.renderers, func() {
		e.bus.publish(Event{Kind: EventMediaEnded})
	})
	e.workers.Start(context.Background())

	e.bus.publish(Event{Kind: EventMediaOpened})
	return nil
}

func (e *Engine) doClose(_ context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.bus.publish(Event{Kind: EventMediaClosing})

	if e.workers != nil {
		_ = e.workers.Stop()
		e.workers = nil
	}
	if e.container != nil {
		_ = e.container.Close()
		e.container = nil
	}
	e.clk.Pause()
	e.clk.Reset()

	e.bus.publish(Event{Kind: EventMediaClosed})
	return nil
}

// doChangeMedia preserves clock position and speed across a container
// re-open, per §4.6.
func (e *Engine) doChangeMedia(ctx context.Context, source string) error {
	pos := e.clk.Position()
	speed := e.clk.Speed()
	running := e.clk.IsRunning()

	if err := e.doClose(ctx); err != nil {
		return err
	}
	if err := e.doOpen(ctx, source); err != nil {
		return err
	}

	e.clk.SetPosition(pos)
	_ = e.clk.SetSpeed(speed)
	if running {
		e.clk.Play()
	}
	return nil
}

func (e *Engine) doPlay(_ context.Context) error {
	e.clk.Play()
	e.notifyRenderers(func(r worker.Renderer) { r.OnStarted() })
	return nil
}

func (e *Engine) doPause(_ context.Context) error {
	e.clk.Pause()
	return nil
}

func (e *Engine) doStop(_ context.Context) error {
	e.clk.Pause()
	e.clk.Reset()
	e.notifyRenderers(func(r worker.Renderer) { r.OnStopped() })
	return nil
}

// doSeek performs the container's seek engine then repositions the clock.
func (e *Engine) doSeek(_ context.Context, target int64) error {
	e.mu.Lock()
	c := e.container
	e.mu.Unlock()
	if c == nil {
		return types.ErrDisposed
	}

	old := e.clk.Position()
	frames, err := c.Seek(target)
	if err != nil {
		return err
	}
	for _, f := range frames {
		if err := c.Convert(f); err != nil && e.log != nil {
			e.log.Warnf("engine", "seek: convert: %v", err)
		}
	}
	e.clk.SetPosition(target)
	e.bus.publish(Event{Kind: EventPositionChanged, OldPosition: old, NewPosition: target})
	e.notifyRenderers(func(r worker.Renderer) { r.OnSeekCompleted() })
	return nil
}

func (e *Engine) notifyRenderers(f func(worker.Renderer)) {
	for _, r := range e.renderers {
		if r != nil {
			f(r)
		}
	}
}
