package router

import (
	"sync"
	"sync/atomic"
	"time"

	"gocv.io/x/gocv"

	"github.com/ayusman/yolodesk/internal/postprocess"
)

// Listener receives every event synchronously.
type Listener interface {
	OnEvent(ev Event)
}

// ListenerFunc adapts a function to Listener.
type ListenerFunc func(ev Event)

func (f ListenerFunc) OnEvent(ev Event) { f(ev) }

// Router delivers events to listeners and mailboxes. Publishing never blocks
// on a slow consumer.
type Router struct {
	mu        sync.RWMutex
	listeners map[int]Listener
	nextID    int
	mailboxes map[*Mailbox]struct{}

	seq   atomic.Uint64
	drops atomic.Uint64
}

// New creates an empty Router.
func New() *Router {
	return &Router{
		listeners: make(map[int]Listener),
		mailboxes: make(map[*Mailbox]struct{}),
	}
}

// AddListener registers l and returns a function that removes it.
func (r *Router) AddListener(l Listener) func() {
	r.mu.Lock()
	id := r.nextID
	r.nextID++
	r.listeners[id] = l
	r.mu.Unlock()

	return func() {
		r.mu.Lock()
		delete(r.listeners, id)
		r.mu.Unlock()
	}
}

// Subscribe returns a mailbox for the given kinds, or for every kind when
// none are given.
func (r *Router) Subscribe(kinds ...Kind) *Mailbox {
	if len(kinds) == 0 {
		kinds = Kinds
	}
	mb := newMailbox(r, kinds)

	r.mu.Lock()
	r.mailboxes[mb] = struct{}{}
	r.mu.Unlock()

	return mb
}

// Unsubscribe detaches mb and closes it. Safe to call more than once.
func (r *Router) Unsubscribe(mb *Mailbox) {
	r.mu.Lock()
	delete(r.mailboxes, mb)
	r.mu.Unlock()

	mb.close()
}

// Drops returns how many unconsumed mailbox events have been overwritten.
func (r *Router) Drops() uint64 {
	return r.drops.Load()
}

// Publish stamps ev with a sequence number and delivers it.
func (r *Router) Publish(ev Event) {
	ev.Seq = r.seq.Add(1)
	if ev.Time.IsZero() {
		ev.Time = time.Now()
	}

	r.mu.RLock()
	listeners := make([]Listener, 0, len(r.listeners))
	for _, l := range r.listeners {
		listeners = append(listeners, l)
	}
	mailboxes := make([]*Mailbox, 0, len(r.mailboxes))
	for mb := range r.mailboxes {
		mailboxes = append(mailboxes, mb)
	}
	r.mu.RUnlock()

	for _, l := range listeners {
		l.OnEvent(ev)
	}
	for _, mb := range mailboxes {
		mb.put(ev)
	}
}

// PublishInput publishes the raw display frame.
func (r *Router) PublishInput(path string, frame *gocv.Mat) {
	r.Publish(Event{Kind: Input, Path: path, Frame: frame})
}

// PublishOutput publishes the annotated frame.
func (r *Router) PublishOutput(path string, frame *gocv.Mat) {
	r.Publish(Event{Kind: Output, Path: path, Frame: frame})
}

// PublishResult publishes the class counts of a frame.
func (r *Router) PublishResult(path string, counts postprocess.ClassCounts) {
	r.Publish(Event{Kind: Result, Path: path, Counts: counts})
}

// PublishStatus publishes a status message.
func (r *Router) PublishStatus(msg string) {
	r.Publish(Event{Kind: Status, Message: msg})
}

// PublishProgress publishes progress in [0, 1000].
func (r *Router) PublishProgress(p int) {
	r.Publish(Event{Kind: Progress, Progress: p})
}

// PublishFPS publishes a throughput message.
func (r *Router) PublishFPS(msg string) {
	r.Publish(Event{Kind: FPS, Message: msg})
}
