// SPDX-License-Identifier: GPL-3.0-or-later

// Package worker coordinates the reader, decoder, materialiser, and
// renderer goroutines described in §5: long-running loops that block on
// their input and observe a shared stop signal at every turn.
package worker

import (
	"context"
	"errors"
	"io"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/mediacore/engine/internal/clock"
	"github.com/mediacore/engine/internal/component"
	"github.com/mediacore/engine/internal/container"
	"github.com/mediacore/engine/internal/corelog"
	"github.com/mediacore/engine/renderer"
)

// Renderer is the host-supplied capability-based callback interface of
// §4's "Renderer interface", one instance per media type.
type Renderer = renderer.Renderer

// Set owns the three cooperating goroutines for one open container: reader,
// decoder-materialiser, and renderer.
type Set struct {
	c   *container.Container
	clk *clock.Clock
	log *corelog.Logger

	renderers map[string]Renderer // keyed by media type string

	// onEnded, if set, is invoked exactly once by decodeLoop when the
	// container reports the whole pipeline drained (§8 scenario 4).
	onEnded func()

	g      *errgroup.Group
	ctx    context.Context
	cancel context.CancelFunc
}

// New constructs a worker Set bound to an open container and a shared
// clock; renderers may be nil for any media type the host does not handle.
// onEnded may be nil; it is called once when the stream finishes draining.
func New(c *container.Container, clk *clock.Clock, log *corelog.Logger, renderers map[string]Renderer, onEnded func()) *Set {
	return &Set{c: c, clk: clk, log: log, renderers: renderers, onEnded: onEnded}
}

// Start launches the reader, the combined decoder/block-materialiser, and
// the renderer loops, supervised by an errgroup so any worker's fatal error
// stops the others, per §5.
func (s *Set) Start(parent context.Context) {
	ctx, cancel := context.WithCancel(parent)
	g, gctx := errgroup.WithContext(ctx)
	s.ctx = gctx
	s.cancel = cancel
	s.g = g

	g.Go(func() error { return s.readLoop(gctx) })
	g.Go(func() error { return s.decodeLoop(gctx) })
	g.Go(func() error { return s.renderLoop(gctx) })
}

// Stop cancels every worker and waits for them to exit.
func (s *Set) Stop() error {
	if s.cancel == nil {
		return nil
	}
	s.cancel()
	err := s.g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// readLoop blocks on Container.Read, per §5's reader thread; it suspends
// naturally inside the demuxer call for network inputs.
func (s *Set) readLoop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		_, err := s.c.Read()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			if s.log != nil {
				s.log.Warnf("worker", "read: %v", err)
			}
			continue
		}
	}
}

// decodeLoop pops packets, produces frames, and materialises them into
// blocks, per §5's decoder and block-worker threads (merged here since
// both operate on Container.Decode/Convert which already serialise via
// Container's own mutexes).
func (s *Set) decodeLoop(ctx context.Context) error {
	ticker := time.NewTicker(2 * time.Millisecond)
	defer ticker.Stop()

	ended := false
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		frames, err := s.c.Decode()
		if err != nil {
			if s.log != nil {
				s.log.Warnf("worker", "decode: %v", err)
			}
			continue
		}
		for _, f := range frames {
			if err := s.c.Convert(f); err != nil && s.log != nil {
				s.log.Warnf("worker", "convert: %v", err)
			}
		}

		if !ended && s.c.Drained() {
			ended = true
			if s.onEnded != nil {
				s.onEnded()
			}
		}
	}
}

// renderLoop is driven by the clock tick; for each media type it looks up
// the current block by position and invokes the host callback, per §5's
// renderer thread.
func (s *Set) renderLoop(ctx context.Context) error {
	ticker := time.NewTicker(16 * time.Millisecond)
	defer ticker.Stop()

	renderIndex := 0
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		pos := s.clk.Position()

		s.renderOne("video", s.c.Video(), pos, renderIndex)
		s.renderOne("audio", s.c.Audio(), pos, renderIndex)
		s.renderOne("subtitle", s.c.Subtitle(), pos, renderIndex)
		renderIndex++
	}
}

// renderOne looks up the block covering pos in comp's BlockBuffer and, if
// one exists, invokes the renderer registered for mediaType.
func (s *Set) renderOne(mediaType string, comp *component.Component, pos int64, renderIndex int) {
	if comp == nil {
		return
	}
	r, ok := s.renderers[mediaType]
	if !ok || r == nil {
		return
	}
	blk := container.BlockBufferOf(comp).BlockAt(pos)
	if blk == nil {
		return
	}
	r.Update(blk, pos, renderIndex)
}
