// SPDX-License-Identifier: GPL-3.0-or-later

package command

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/mediacore/engine/internal/types"
)

// recordingExecutor logs every call it receives (guarded by mu) and lets
// tests block a given call until released, to exercise coalescing and
// cancellation ordering deterministically.
type recordingExecutor struct {
	mu    sync.Mutex
	calls []string

	block chan struct{} // if non-nil, Open/Seek waits on it before returning

	lastSeekTarget int64 // target of the most recent Seek call, guarded by mu
}

func (e *recordingExecutor) record(s string) {
	e.mu.Lock()
	e.calls = append(e.calls, s)
	e.mu.Unlock()
}

func (e *recordingExecutor) Open(_ context.Context, payload any) error {
	e.record("open:" + payload.(string))
	if e.block != nil {
		<-e.block
	}
	return nil
}
func (e *recordingExecutor) Close(context.Context) error { e.record("close"); return nil }
func (e *recordingExecutor) ChangeMedia(_ context.Context, payload any) error {
	e.record("change:" + payload.(string))
	return nil
}
func (e *recordingExecutor) Play(context.Context) error  { e.record("play"); return nil }
func (e *recordingExecutor) Pause(context.Context) error { e.record("pause"); return nil }
func (e *recordingExecutor) Stop(context.Context) error  { e.record("stop"); return nil }
func (e *recordingExecutor) Seek(_ context.Context, target int64) error {
	e.record("seek")
	e.mu.Lock()
	e.lastSeekTarget = target
	e.mu.Unlock()
	if e.block != nil {
		<-e.block
	}
	return nil
}

func (e *recordingExecutor) snapshot() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]string, len(e.calls))
	copy(out, e.calls)
	return out
}

func TestOpenPlayCloseRunInOrder(t *testing.T) {
	exec := &recordingExecutor{}
	m := New(exec)
	defer m.Shutdown()

	ctx := context.Background()
	if err := m.Open("a.mp4").Wait(ctx); err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := m.Play().Wait(ctx); err != nil {
		t.Fatalf("Play: %v", err)
	}
	if err := m.Close().Wait(ctx); err != nil {
		t.Fatalf("Close: %v", err)
	}

	got := exec.snapshot()
	want := []string{"open:a.mp4", "play", "close"}
	if len(got) != len(want) {
		t.Fatalf("calls = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("calls = %v, want %v", got, want)
		}
	}
}

func TestSeekCoalescesToLatestTarget(t *testing.T) {
	exec := &recordingExecutor{block: make(chan struct{})}
	m := New(exec)
	defer m.Shutdown()

	// Open occupies the worker so neither Seek below is popped off the
	// queue before the second one arrives, making the coalescing
	// deterministic rather than racing the worker goroutine.
	openHandle := m.Open("a.mp4")
	time.Sleep(20 * time.Millisecond)

	h2 := m.Seek(10)
	h3 := m.Seek(20)
	if h2 != h3 {
		t.Fatal("two seeks issued before the worker drains the queue should coalesce to the same handle")
	}

	close(exec.block)
	if err := openHandle.Wait(context.Background()); err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := h3.Wait(context.Background()); err != nil {
		t.Fatalf("coalesced seek: %v", err)
	}

	seekCount := 0
	for _, c := range exec.snapshot() {
		if c == "seek" {
			seekCount++
		}
	}
	if seekCount != 1 {
		t.Fatalf("executor.Seek called %d times, want 1 for a coalesced pair", seekCount)
	}
	exec.mu.Lock()
	gotTarget := exec.lastSeekTarget
	exec.mu.Unlock()
	if gotTarget != 20 {
		t.Fatalf("coalesced seek ran with target %d, want the latest target 20", gotTarget)
	}
}

func TestCloseCancelsQueuedPlayPauseStop(t *testing.T) {
	exec := &recordingExecutor{block: make(chan struct{})}
	m := New(exec)
	defer m.Shutdown()

	// Open blocks the worker so Play/Pause/Stop pile up in the queue.
	openHandle := m.Open("a.mp4")
	time.Sleep(10 * time.Millisecond)

	playHandle := m.Play()
	pauseHandle := m.Pause()

	closeHandle := m.Close()

	close(exec.block)
	if err := openHandle.Wait(context.Background()); err != nil {
		t.Fatalf("open: %v", err)
	}

	if err := playHandle.Wait(context.Background()); !errors.Is(err, types.ErrCancelled) {
		t.Fatalf("play.Wait() = %v, want ErrCancelled", err)
	}
	if err := pauseHandle.Wait(context.Background()); !errors.Is(err, types.ErrCancelled) {
		t.Fatalf("pause.Wait() = %v, want ErrCancelled", err)
	}
	if err := closeHandle.Wait(context.Background()); err != nil {
		t.Fatalf("close: %v", err)
	}
}

func TestHandleWaitRespectsContextCancellation(t *testing.T) {
	exec := &recordingExecutor{block: make(chan struct{})}
	defer close(exec.block)
	m := New(exec)
	defer m.Shutdown()

	h := m.Open("a.mp4")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if err := h.Wait(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Wait() = %v, want DeadlineExceeded", err)
	}
}

func TestResolvedHandleIsImmediatelyDone(t *testing.T) {
	h := Resolved(types.ErrDisposed)
	select {
	case <-h.Done():
	default:
		t.Fatal("Resolved handle's Done channel is not closed")
	}
	if err := h.Wait(context.Background()); !errors.Is(err, types.ErrDisposed) {
		t.Fatalf("Wait() = %v, want ErrDisposed", err)
	}
}
