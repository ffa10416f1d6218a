package router

import (
	"context"
	"errors"
	"sync"
)

// ErrClosed is returned by Mailbox.Next after the mailbox is closed.
var ErrClosed = errors.New("mailbox closed")

// Mailbox holds the most recent unconsumed event of each subscribed kind.
// It has a single consumer.
type Mailbox struct {
	router *Router
	kinds  [numKinds]bool

	mu     sync.Mutex
	slots  [numKinds]*Event
	drops  uint64
	closed bool

	notify chan struct{}
	done   chan struct{}
}

func newMailbox(r *Router, kinds []Kind) *Mailbox {
	mb := &Mailbox{
		router: r,
		notify: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
	for _, k := range kinds {
		if k >= 0 && k < numKinds {
			mb.kinds[k] = true
		}
	}
	return mb
}

// put overwrites the slot for ev.Kind with a private copy of ev.
func (m *Mailbox) put(ev Event) {
	if ev.Kind < 0 || ev.Kind >= numKinds || !m.kinds[ev.Kind] {
		return
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}

	own := ev.clone()
	if old := m.slots[ev.Kind]; old != nil {
		old.Close()
		m.drops++
		m.router.drops.Add(1)
	}
	m.slots[ev.Kind] = &own
	m.mu.Unlock()

	select {
	case m.notify <- struct{}{}:
	default:
	}
}

// Next blocks until an event is available and returns the oldest one by
// sequence number. The caller owns the returned event and must Close it.
func (m *Mailbox) Next(ctx context.Context) (Event, error) {
	for {
		m.mu.Lock()
		if m.closed {
			m.mu.Unlock()
			return Event{}, ErrClosed
		}

		var oldest *Event
		idx := -1
		for i, ev := range m.slots {
			if ev != nil && (oldest == nil || ev.Seq < oldest.Seq) {
				oldest = ev
				idx = i
			}
		}
		if oldest != nil {
			m.slots[idx] = nil
			m.mu.Unlock()
			return *oldest, nil
		}
		m.mu.Unlock()

		select {
		case <-ctx.Done():
			return Event{}, ctx.Err()
		case <-m.done:
			return Event{}, ErrClosed
		case <-m.notify:
		}
	}
}

// Drops returns how many events this mailbox overwrote before they were read.
func (m *Mailbox) Drops() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.drops
}

// Close detaches the mailbox from its router.
func (m *Mailbox) Close() {
	m.router.Unsubscribe(m)
}

func (m *Mailbox) close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	m.closed = true
	for i, ev := range m.slots {
		if ev != nil {
			ev.Close()
			m.slots[i] = nil
		}
	}
	close(m.done)
}
