// SPDX-License-Identifier: GPL-3.0-or-later

package engine

import (
	"sync"

	"github.com/mediacore/engine/internal/corelog"
)

// EventKind identifies one of the façade's public events, per §6.
type EventKind int

const (
	EventMediaOpening EventKind = iota
	EventMediaOpened
	EventMediaClosing
	EventMediaClosed
	EventMediaEnded
	EventPositionChanged
	EventBufferingStarted
	EventBufferingEnded
	EventLogMessage
)

// Event carries the payload for one emitted event; fields not relevant to
// Kind are left zero.
type Event struct {
	Kind EventKind

	// PositionChanged
	OldPosition int64
	NewPosition int64

	// LogMessage
	LogLevel corelog.Level
	Aspect   string
	Text     string
}

// bus is a hand-rolled channel-fanout event dispatcher: every subscriber
// gets its own buffered channel and a dropped event (other than a log
// message) is logged rather than blocking the publisher, matching the
// engine's "never block a worker on a slow observer" rule.
type bus struct {
	mu   sync.Mutex
	subs map[int]chan Event
	next int
	log  *corelog.Logger
}

func newBus(log *corelog.Logger) *bus {
	return &bus{subs: make(map[int]chan Event), log: log}
}

// Subscribe returns a channel of future events and an unsubscribe func.
func (b *bus) Subscribe(buffer int) (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.next
	b.next++
	ch := make(chan Event, buffer)
	b.subs[id] = ch
	return ch, func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if c, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(c)
		}
	}
}

func (b *bus) publish(ev Event) {
	b.mu.Lock()
	dropped := false
	for _, ch := range b.subs {
		select {
		case ch <- ev:
		default:
			dropped = true
		}
	}
	b.mu.Unlock()
	// Logged after unlocking, because the logger's OnMessage hook publishes
	// on this bus; a dropped log message is not logged again.
	if dropped && b.log != nil && ev.Kind != EventLogMessage {
		b.log.Warnf("engine", "event subscriber full, dropping event kind=%d", ev.Kind)
	}
}
