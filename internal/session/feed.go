package session

import (
	"sync"
	"time"
)

const defaultSubscriberBuffer = 64

// StreamEventKind distinguishes output chunks from the terminal event.
type StreamEventKind uint8

const (
	StreamOutput StreamEventKind = iota + 1
	StreamExit
)

// StreamEvent is one delivery to an attached consumer. Output events carry
// raw bytes in PTY order; chunk boundaries are not meaningful. The exit
// event is delivered exactly once per subscriber, last, before the channel
// closes.
type StreamEvent struct {
	Kind       StreamEventKind
	TS         time.Time
	Data       []byte
	Truncated  bool // chunks were dropped for this subscriber before this one
	State      State
	ExitStatus int
}

// Subscription is one consumer's attachment to a session's output feed.
// Cancel detaches without affecting the session or other subscribers.
type Subscription struct {
	id   uint64
	feed *feed
	ch   chan StreamEvent
}

// Events delivers output chunks in order, then one exit event, then closes.
func (s *Subscription) Events() <-chan StreamEvent {
	if s == nil {
		return nil
	}
	return s.ch
}

// Cancel detaches the subscription. Idempotent.
func (s *Subscription) Cancel() {
	if s == nil || s.feed == nil {
		return
	}
	s.feed.cancel(s.id)
}

type subscriber struct {
	ch      chan StreamEvent
	dropped uint64
}

// feed fans raw output chunks out to any number of subscribers. Every
// subscriber sees chunks in production order; a slow subscriber loses
// chunks rather than stalling the producer, and the first chunk after a
// gap is marked Truncated.
type feed struct {
	mu       sync.Mutex
	subs     map[uint64]*subscriber
	nextSub  uint64
	finished bool
}

func newFeed() *feed {
	return &feed{subs: make(map[uint64]*subscriber)}
}

func (f *feed) publish(data []byte) {
	if f == nil || len(data) == 0 {
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.finished || len(f.subs) == 0 {
		return
	}
	ts := time.Now().UTC()
	for _, sub := range f.subs {
		ev := StreamEvent{Kind: StreamOutput, TS: ts, Data: data, Truncated: sub.dropped > 0}
		select {
		case sub.ch <- ev:
			sub.dropped = 0
		default:
			sub.dropped++
		}
	}
}

// finish delivers the terminal event to every subscriber and invalidates
// the feed. Later subscribe calls fail; repeated finish calls are no-ops.
func (f *feed) finish(state State, exitStatus int) {
	if f == nil {
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.finished {
		return
	}
	f.finished = true
	ev := StreamEvent{Kind: StreamExit, TS: time.Now().UTC(), State: state, ExitStatus: exitStatus}
	for id, sub := range f.subs {
		delete(f.subs, id)
		deliverFinal(sub.ch, ev)
		close(sub.ch)
	}
}

// deliverFinal makes room for the exit event if the subscriber's buffer is
// full: dropping an old chunk is acceptable, dropping the exit event is not.
func deliverFinal(ch chan StreamEvent, ev StreamEvent) {
	for {
		select {
		case ch <- ev:
			return
		default:
		}
		select {
		case <-ch:
		default:
			// Consumer drained concurrently; retry the send.
		}
	}
}

func (f *feed) subscribe(buffer int) (*Subscription, error) {
	if f == nil {
		return nil, ErrUnknownSession
	}
	if buffer <= 0 {
		buffer = defaultSubscriberBuffer
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.finished {
		return nil, ErrUnknownSession
	}
	f.nextSub++
	id := f.nextSub
	sub := &subscriber{ch: make(chan StreamEvent, buffer)}
	f.subs[id] = sub
	return &Subscription{id: id, feed: f, ch: sub.ch}, nil
}

func (f *feed) cancel(id uint64) {
	if f == nil {
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	sub, ok := f.subs[id]
	if !ok {
		return
	}
	delete(f.subs, id)
	close(sub.ch)
}

func (f *feed) subscriberCount() int {
	if f == nil {
		return 0
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs)
}
