// Package framehub fans camera frames out to preview clients. Every
// subscriber has a single-frame mailbox: a slow reader skips frames instead
// of stalling the capture.
package framehub

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Frame is one encoded image. Data must not be modified after Publish.
type Frame struct {
	Data      []byte
	Timestamp time.Time
	Seq       uint64
}

// Stats summarizes hub activity.
type Stats struct {
	Published   uint64
	Subscribers int
	Drops       uint64
}

type slot struct {
	mu     sync.Mutex
	cond   *sync.Cond
	frame  *Frame
	drops  uint64
	closed bool
}

// Hub distributes the latest frame to every subscriber.
type Hub struct {
	mu     sync.Mutex
	slots  map[string]*slot
	latest *Frame
	seq    uint64
	drops  uint64
	closed bool
}

func New() *Hub {
	return &Hub{slots: make(map[string]*slot)}
}

// Publish hands data to every subscriber, replacing any unread frame.
func (h *Hub) Publish(data []byte) {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.seq++
	frame := &Frame{Data: data, Timestamp: time.Now(), Seq: h.seq}
	h.latest = frame
	slots := make([]*slot, 0, len(h.slots))
	for _, s := range h.slots {
		slots = append(slots, s)
	}
	h.mu.Unlock()

	for _, s := range slots {
		s.mu.Lock()
		if !s.closed {
			if s.frame != nil {
				s.drops++
			}
			s.frame = frame
			s.cond.Signal()
		}
		s.mu.Unlock()
	}
}

// Subscribe registers a mailbox. read blocks until a frame arrives and
// returns nil once the subscription or the hub is closed. The most recent
// frame, if any, is delivered first.
func (h *Hub) Subscribe() (read func() *Frame, cancel func()) {
	s := &slot{}
	s.cond = sync.NewCond(&s.mu)
	id := uuid.NewString()

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return func() *Frame { return nil }, func() {}
	}
	s.frame = h.latest
	h.slots[id] = s
	h.mu.Unlock()

	read = func() *Frame {
		s.mu.Lock()
		defer s.mu.Unlock()
		for s.frame == nil && !s.closed {
			s.cond.Wait()
		}
		if s.closed {
			return nil
		}
		frame := s.frame
		s.frame = nil
		return frame
	}

	var once sync.Once
	cancel = func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.slots, id)
			h.mu.Unlock()

			s.mu.Lock()
			s.closed = true
			h.addDrops(s.drops)
			s.cond.Broadcast()
			s.mu.Unlock()
		})
	}
	return read, cancel
}

// Latest returns the most recently published frame, or nil.
func (h *Hub) Latest() *Frame {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.latest
}

// Reset forgets the latest frame, for example when the camera stops.
func (h *Hub) Reset() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.latest = nil
}

func (h *Hub) Stats() Stats {
	h.mu.Lock()
	slots := make([]*slot, 0, len(h.slots))
	for _, s := range h.slots {
		slots = append(slots, s)
	}
	stats := Stats{Published: h.seq, Subscribers: len(h.slots), Drops: h.drops}
	h.mu.Unlock()

	for _, s := range slots {
		s.mu.Lock()
		stats.Drops += s.drops
		s.mu.Unlock()
	}
	return stats
}

// Close wakes every reader with nil and rejects further publishes.
func (h *Hub) Close() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	slots := h.slots
	h.slots = make(map[string]*slot)
	h.mu.Unlock()

	for _, s := range slots {
		s.mu.Lock()
		s.closed = true
		s.cond.Broadcast()
		s.mu.Unlock()
	}
}

func (h *Hub) addDrops(n uint64) {
	h.mu.Lock()
	h.drops += n
	h.mu.Unlock()
}
