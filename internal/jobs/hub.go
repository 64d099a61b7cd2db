package jobs

import (
	"sync"
	"time"
)

// subscriberBuffer bounds the frames queued per sink. A sink that falls this
// far behind loses intermediate frames rather than blocking the publisher.
const subscriberBuffer = 64

// Subscription is one live push-channel attachment to a job.
type Subscription struct {
	ch  chan Frame
	hub *hub
}

// Frames returns the subscription's delivery channel. The channel is closed by
// the hub after the terminal grace delay or by Close.
func (s *Subscription) Frames() <-chan Frame {
	return s.ch
}

// Close detaches the subscription. Safe to call more than once and after the
// hub has already closed the channel.
func (s *Subscription) Close() {
	if s == nil || s.hub == nil {
		return
	}
	s.hub.remove(s)
}

// hub fans job state changes out to every live subscriber. One hub exists per
// job and is owned by the registry entry.
type hub struct {
	mu     sync.Mutex
	sinks  map[*Subscription]struct{}
	closed bool
	timer  *time.Timer
}

func newHub() *hub {
	return &hub{sinks: make(map[*Subscription]struct{})}
}

// attach registers a new sink and queues the snapshot frame before any future
// delta can be published, so late subscribers always observe current state.
// When the hub has already closed, the snapshot is still buffered before the
// channel closes, so the subscriber drains current state and then sees EOF.
func (h *hub) attach(connected Frame) *Subscription {
	h.mu.Lock()
	defer h.mu.Unlock()
	sub := &Subscription{ch: make(chan Frame, subscriberBuffer), hub: h}
	sub.ch <- connected
	if h.closed {
		close(sub.ch)
		sub.hub = nil
		return sub
	}
	h.sinks[sub] = struct{}{}
	return sub
}

// publish delivers a frame to every sink. Delivery is non-blocking per sink; a
// full buffer drops the frame for that sink only.
func (h *hub) publish(frame Frame) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	for sub := range h.sinks {
		select {
		case sub.ch <- frame:
		default:
		}
	}
}

func (h *hub) remove(sub *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.sinks[sub]; !ok {
		return
	}
	delete(h.sinks, sub)
	close(sub.ch)
}

// scheduleClose closes every sink after the grace delay, leaving in-flight
// writes time to flush. Idempotent.
func (h *hub) scheduleClose(grace time.Duration) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed || h.timer != nil {
		return
	}
	if grace <= 0 {
		h.closeLocked()
		return
	}
	h.timer = time.AfterFunc(grace, h.closeAll)
}

// closeAll immediately closes every sink. Used by the grace timer and by the
// retention sweep.
func (h *hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closeLocked()
}

func (h *hub) closeLocked() {
	if h.closed {
		return
	}
	h.closed = true
	if h.timer != nil {
		h.timer.Stop()
		h.timer = nil
	}
	for sub := range h.sinks {
		delete(h.sinks, sub)
		close(sub.ch)
	}
}

func (h *hub) subscriberCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.sinks)
}
