// SPDX-License-Identifier: GPL-3.0-or-later

// Package command implements CommandManager: the serialised, asynchronous
// controller for the engine's lifecycle and seek operations, per §4.6.
package command

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/mediacore/engine/internal/types"
)

// Kind identifies a command's operation.
type Kind int

const (
	KindOpen Kind = iota
	KindClose
	KindChangeMedia
	KindPlay
	KindPause
	KindStop
	KindSeek
)

func (k Kind) String() string {
	switch k {
	case KindOpen:
		return "open"
	case KindClose:
		return "close"
	case KindChangeMedia:
		return "change_media"
	case KindPlay:
		return "play"
	case KindPause:
		return "pause"
	case KindStop:
		return "stop"
	case KindSeek:
		return "seek"
	default:
		return "unknown"
	}
}

// Handle is the completion future returned to callers of Submit; it
// resolves once the command worker has run (or cancelled) the command.
type Handle struct {
	id   string
	done chan struct{}
	err  error
	mu   sync.Mutex
}

func newHandle() *Handle {
	return &Handle{id: uuid.NewString(), done: make(chan struct{})}
}

// ID returns the command's correlation id.
func (h *Handle) ID() string { return h.id }

// Wait blocks until the command completes or ctx is cancelled.
func (h *Handle) Wait(ctx context.Context) error {
	select {
	case <-h.done:
		h.mu.Lock()
		defer h.mu.Unlock()
		return h.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Done returns a channel closed once the command completes, for callers
// that want to select on it alongside other events.
func (h *Handle) Done() <-chan struct{} { return h.done }

func (h *Handle) resolve(err error) {
	h.mu.Lock()
	h.err = err
	h.mu.Unlock()
	close(h.done)
}

// Resolved returns a Handle that is already complete with err; used by
// callers that must reject a command before it can be queued (the engine
// façade rejects Open once disposed).
func Resolved(err error) *Handle {
	h := newHandle()
	h.resolve(err)
	return h
}

// record is one queued command, carrying its payload and completion
// handle.
type record struct {
	kind    Kind
	payload any
	handle  *Handle
}

// SeekPayload carries a coalescing seek's target, mutated in place when a
// newer seek replaces one already queued.
type SeekPayload struct {
	mu     sync.Mutex
	Target int64
}

func (p *SeekPayload) setTarget(t int64) {
	p.mu.Lock()
	p.Target = t
	p.mu.Unlock()
}

func (p *SeekPayload) target() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.Target
}

// Executor runs each command kind against the engine; supplied by the
// engine façade so this package stays free of engine-level dependencies.
type Executor interface {
	Open(ctx context.Context, payload any) error
	Close(ctx context.Context) error
	ChangeMedia(ctx context.Context, payload any) error
	Play(ctx context.Context) error
	Pause(ctx context.Context) error
	Stop(ctx context.Context) error
	Seek(ctx context.Context, target int64) error
}

// Manager serialises Open/Close via a single in-flight guard, queues
// Play/Pause/Stop in order, and coalesces Seek requests, per §4.6.
type Manager struct {
	exec Executor

	mu          sync.Mutex
	openOrClose bool // true while an Open or Close is in flight

	queue chan *record

	pendingSeek *record

	ctx    context.Context
	cancel context.CancelFunc

	wg sync.WaitGroup
}

// New constructs a Manager and starts its command worker goroutine.
func New(exec Executor) *Manager {
	ctx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		exec:   exec,
		queue:  make(chan *record, 64),
		ctx:    ctx,
		cancel: cancel,
	}
	m.wg.Add(1)
	go m.run()
	return m
}

// Shutdown stops the command worker, cancelling anything still pending.
func (m *Manager) Shutdown() {
	m.cancel()
	m.wg.Wait()
}

func (m *Manager) run() {
	defer m.wg.Done()
	for {
		select {
		case <-m.ctx.Done():
			m.drainCancelled()
			return
		case rec := <-m.queue:
			m.execute(rec)
		}
	}
}

func (m *Manager) drainCancelled() {
	for {
		select {
		case rec := <-m.queue:
			rec.handle.resolve(types.ErrCancelled)
		default:
			return
		}
	}
}

func (m *Manager) execute(rec *record) {
	ctx := m.ctx
	var err error
	switch rec.kind {
	case KindOpen:
		m.mu.Lock()
		m.openOrClose = true
		m.mu.Unlock()
		err = m.exec.Open(ctx, rec.payload)
		m.mu.Lock()
		m.openOrClose = false
		m.mu.Unlock()
	case KindClose:
		m.mu.Lock()
		m.openOrClose = true
		m.mu.Unlock()
		m.cancelPendingSeek()
		err = m.exec.Close(ctx)
		m.mu.Lock()
		m.openOrClose = false
		m.mu.Unlock()
	case KindChangeMedia:
		err = m.exec.ChangeMedia(ctx, rec.payload)
	case KindPlay:
		err = m.exec.Play(ctx)
	case KindPause:
		err = m.exec.Pause(ctx)
	case KindStop:
		err = m.exec.Stop(ctx)
	case KindSeek:
		select {
		case <-rec.handle.done:
			// Already resolved as cancelled by a Close that ran first.
			return
		default:
		}
		m.mu.Lock()
		target := rec.payload.(*SeekPayload).target()
		if m.pendingSeek == rec {
			m.pendingSeek = nil
		}
		m.mu.Unlock()
		err = m.exec.Seek(ctx, target)
	}
	rec.handle.resolve(err)
}

func (m *Manager) cancelPendingSeek() {
	m.mu.Lock()
	pending := m.pendingSeek
	m.pendingSeek = nil
	m.mu.Unlock()
	if pending != nil {
		pending.handle.resolve(types.ErrCancelled)
	}
}

// Open enqueues an Open command.
func (m *Manager) Open(payload any) *Handle { return m.submit(KindOpen, payload) }

// Close enqueues a Close command, which cancels any in-flight seek and any
// pending play/pause/stop commands, per §4.6.
func (m *Manager) Close() *Handle {
	m.mu.Lock()
	m.drainQueuedPlayPauseStop()
	m.mu.Unlock()
	return m.submit(KindClose, nil)
}

// drainQueuedPlayPauseStop cancels any play/pause/stop commands still
// sitting in the queue; caller holds m.mu. Other queued commands are put
// back in their original order.
func (m *Manager) drainQueuedPlayPauseStop() {
	var keep []*record
	for {
		select {
		case rec := <-m.queue:
			switch rec.kind {
			case KindPlay, KindPause, KindStop:
				rec.handle.resolve(types.ErrCancelled)
			default:
				keep = append(keep, rec)
			}
		default:
			for _, rec := range keep {
				m.queue <- rec
			}
			return
		}
	}
}

// ChangeMedia enqueues a media change, which the executor implements to
// preserve position and speed across the re-open, per §4.6.
func (m *Manager) ChangeMedia(payload any) *Handle { return m.submit(KindChangeMedia, payload) }

// Play enqueues a Play command.
func (m *Manager) Play() *Handle { return m.submit(KindPlay, nil) }

// Pause enqueues a Pause command.
func (m *Manager) Pause() *Handle { return m.submit(KindPause, nil) }

// Stop enqueues a Stop command.
func (m *Manager) Stop() *Handle { return m.submit(KindStop, nil) }

// Seek enqueues a coalescing seek: if a seek is queued and has not started
// yet, its target is replaced in place and the caller receives that seek's
// handle. A seek issued while another one is already running is queued as
// a new command.
func (m *Manager) Seek(target int64) *Handle {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.pendingSeek != nil {
		m.pendingSeek.payload.(*SeekPayload).setTarget(target)
		return m.pendingSeek.handle
	}

	payload := &SeekPayload{Target: target}
	rec := &record{kind: KindSeek, payload: payload, handle: newHandle()}
	m.pendingSeek = rec
	select {
	case m.queue <- rec:
	default:
		go func() { m.queue <- rec }()
	}
	return rec.handle
}

func (m *Manager) submit(kind Kind, payload any) *Handle {
	rec := &record{kind: kind, payload: payload, handle: newHandle()}
	select {
	case m.queue <- rec:
	default:
		go func() { m.queue <- rec }()
	}
	return rec.handle
}
