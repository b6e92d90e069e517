// Package events fans viewpoint changes out to in-process handlers and
// transport watchers while keeping a bounded, ordered history.
package events

import (
	"context"
	"sync"
)

// Config controls the retention policy for the change history.
type Config struct {
	Retain int
}

// Default retention keeps the last 256 changes if no explicit value is provided.
const defaultRetention = 256

// Handler runs synchronously inside Publish, in subscription order. It must not
// publish to the same stream.
type Handler func(Change)

// Stream sequences changes, invokes handlers in-line and offers them to
// channel watchers without blocking the publisher.
type Stream struct {
	mu        sync.Mutex
	nextSeq   uint64
	nextID    uint64
	retention int
	history   []Change
	handlers  []handlerEntry
	watchers  map[uint64]chan Change
}

type handlerEntry struct {
	id      uint64
	handler Handler
}

// Subscription detaches a handler or watcher. Unsubscribe is idempotent.
type Subscription struct {
	stream *Stream
	id     uint64
	once   sync.Once
}

// NewStream constructs a stream using the provided configuration.
func NewStream(cfg Config) *Stream {
	retention := cfg.Retain
	if retention <= 0 {
		retention = defaultRetention
	}
	return &Stream{retention: retention, watchers: make(map[uint64]chan Change)}
}

// Subscribe registers a synchronous handler.
func (s *Stream) Subscribe(handler Handler) *Subscription {
	if s == nil || handler == nil {
		return &Subscription{}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	s.handlers = append(s.handlers, handlerEntry{id: s.nextID, handler: handler})
	return &Subscription{stream: s, id: s.nextID}
}

// Watch returns a buffered channel receiving future changes until ctx ends or
// the subscription is cancelled. Changes are dropped for a watcher whose buffer
// is full.
func (s *Stream) Watch(ctx context.Context, buffer int) (<-chan Change, *Subscription) {
	if buffer <= 0 {
		buffer = 16
	}
	ch := make(chan Change, buffer)
	s.mu.Lock()
	s.nextID++
	id := s.nextID
	s.watchers[id] = ch
	s.mu.Unlock()
	sub := &Subscription{stream: s, id: id}
	if ctx != nil {
		go func() {
			<-ctx.Done()
			sub.Unsubscribe()
		}()
	}
	return ch, sub
}

// Unsubscribe detaches the handler or closes the watcher channel.
func (sub *Subscription) Unsubscribe() {
	if sub == nil || sub.stream == nil {
		return
	}
	sub.once.Do(func() {
		sub.stream.remove(sub.id)
	})
}

// Publish assigns the next sequence number, records the change and delivers it.
// Handlers run on the caller's goroutine before Publish returns.
func (s *Stream) Publish(change Change) Change {
	if s == nil {
		return change
	}
	s.mu.Lock()
	s.nextSeq++
	change.Sequence = s.nextSeq
	s.history = append(s.history, change)
	//1.- Trim the oldest entries once the retention budget is exceeded.
	if overflow := len(s.history) - s.retention; overflow > 0 {
		s.history = append([]Change(nil), s.history[overflow:]...)
	}
	handlers := make([]Handler, 0, len(s.handlers))
	for _, entry := range s.handlers {
		handlers = append(handlers, entry.handler)
	}
	for _, ch := range s.watchers {
		//2.- Watchers are transports; never let a slow socket stall the tick.
		select {
		case ch <- change:
		default:
		}
	}
	s.mu.Unlock()

	//3.- Run handlers outside the lock so they may unsubscribe themselves.
	for _, handler := range handlers {
		handler(change)
	}
	return change
}

// History returns up to limit of the most recent changes, oldest first. A
// non-positive limit returns everything retained.
func (s *Stream) History(limit int) []Change {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	start := 0
	if limit > 0 && len(s.history) > limit {
		start = len(s.history) - limit
	}
	return append([]Change(nil), s.history[start:]...)
}

// Last returns the most recent change.
func (s *Stream) Last() (Change, bool) {
	if s == nil {
		return Change{}, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.history) == 0 {
		return Change{}, false
	}
	return s.history[len(s.history)-1], true
}

func (s *Stream) remove(id uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ch, ok := s.watchers[id]; ok {
		delete(s.watchers, id)
		close(ch)
		return
	}
	for idx, entry := range s.handlers {
		if entry.id == id {
			s.handlers = append(s.handlers[:idx:idx], s.handlers[idx+1:]...)
			return
		}
	}
}
