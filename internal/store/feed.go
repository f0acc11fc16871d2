package store

import (
	"context"
	"errors"
	"sync"
)

// ErrStreamClosed is returned by Next after Close.
var ErrStreamClosed = errors.New("snapshot stream closed")

// Feed fans full-collection snapshots out to subscribers. Each subscriber
// holds at most one pending snapshot; a newer snapshot replaces an unread
// one, since every snapshot is the complete state.
type Feed struct {
	mu     sync.Mutex
	subs   map[*Stream]struct{}
	seq    uint64
	last   *Snapshot
	closed bool
}

// NewFeed creates an empty feed.
func NewFeed() *Feed {
	return &Feed{subs: make(map[*Stream]struct{})}
}

// Stream is one subscription to a Feed. It yields an unbounded sequence of
// snapshots until it fails or is closed; a failed stream is replaced by
// subscribing again.
type Stream struct {
	feed    *Feed
	pending chan Snapshot
	done    chan struct{}

	mu   sync.Mutex
	err  error
	once sync.Once
}

// Next blocks until a snapshot is available, the stream fails, or ctx ends.
func (s *Stream) Next(ctx context.Context) (Snapshot, error) {
	// Prefer a pending snapshot over a failure that raced with it.
	select {
	case snap := <-s.pending:
		return snap, nil
	default:
	}

	select {
	case snap := <-s.pending:
		return snap, nil
	case <-s.done:
		return Snapshot{}, s.Err()
	case <-ctx.Done():
		return Snapshot{}, ctx.Err()
	}
}

// Err returns the failure that ended the stream, if any.
func (s *Stream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err == nil {
		return ErrStreamClosed
	}
	return s.err
}

// Close detaches the stream from its feed. It is safe to call more than once.
func (s *Stream) Close() {
	s.feed.remove(s)
	s.finish(nil)
}

func (s *Stream) finish(err error) {
	s.once.Do(func() {
		s.mu.Lock()
		s.err = err
		s.mu.Unlock()
		close(s.done)
	})
}

func (s *Stream) offer(snap Snapshot) {
	select {
	case <-s.pending:
	default:
	}
	s.pending <- snap
}

// Subscribe registers a stream and primes it with initial.
func (f *Feed) Subscribe(initial Snapshot) *Stream {
	s := &Stream{
		feed:    f,
		pending: make(chan Snapshot, 1),
		done:    make(chan struct{}),
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		s.finish(ErrStreamClosed)
		return s
	}
	// A publish may have happened after initial was read.
	if f.last != nil && f.last.TakenAt.After(initial.TakenAt) {
		initial = *f.last
	} else {
		initial.Seq = f.seq
	}
	s.offer(initial)
	f.subs[s] = struct{}{}
	return s
}

// Publish delivers snap to every subscriber and returns its sequence number.
// A snapshot taken before the last published one is dropped.
func (f *Feed) Publish(snap Snapshot) uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return f.seq
	}
	if f.last != nil && !snap.TakenAt.IsZero() && snap.TakenAt.Before(f.last.TakenAt) {
		return f.seq
	}
	f.seq++
	snap.Seq = f.seq
	f.last = &snap
	for s := range f.subs {
		s.offer(snap)
	}
	return f.seq
}

// Fail ends every current stream with err. New subscriptions are still
// accepted.
func (f *Feed) Fail(err error) {
	f.mu.Lock()
	subs := f.subs
	f.subs = make(map[*Stream]struct{})
	f.mu.Unlock()

	for s := range subs {
		s.finish(err)
	}
}

// Close ends all streams and rejects new ones.
func (f *Feed) Close() {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
	f.Fail(ErrStreamClosed)
}

// Subscribers returns the number of attached streams.
func (f *Feed) Subscribers() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs)
}

func (f *Feed) remove(s *Stream) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.subs, s)
}
