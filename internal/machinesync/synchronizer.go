// Package machinesync keeps a local mirror of the machine collection. It
// subscribes to the store's snapshot feed, rebuilds the list from every
// snapshot, and hands each rebuilt list to its observers.
package machinesync

import (
	"context"
	"log"
	"sort"
	"sync"
	"time"

	"laundryonline/internal/model"
	"laundryonline/internal/status"
	"laundryonline/internal/store"
)

// Source opens snapshot subscriptions. store.Store satisfies it.
type Source interface {
	Subscribe(ctx context.Context) (*store.Stream, error)
}

// Observer receives every rebuilt machine list, in delivery order, on the
// synchronizer's goroutine. The slice must not be modified.
type Observer interface {
	Observe(ctx context.Context, machines []model.Machine)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(ctx context.Context, machines []model.Machine)

func (f ObserverFunc) Observe(ctx context.Context, machines []model.Machine) {
	f(ctx, machines)
}

// State reports the health of the subscription. Loading stays true until
// the first snapshot arrives; Stalled is set whenever the subscription has
// failed and not yet recovered, in which case the list is the last known one.
type State struct {
	Loading      bool      `json:"loading"`
	Stalled      bool      `json:"stalled"`
	LastError    string    `json:"lastError,omitempty"`
	LastSnapshot time.Time `json:"lastSnapshot"`
	Seq          uint64    `json:"seq"`
	Reconnects   int       `json:"reconnects"`
	Machines     int       `json:"machines"`
}

// Options configures a Synchronizer.
type Options struct {
	Buckets      *status.Buckets
	Normalizer   *status.Normalizer
	ReconnectMin time.Duration
	ReconnectMax time.Duration
	Now          func() time.Time
}

// Synchronizer maintains the live machine list.
type Synchronizer struct {
	src  Source
	opts Options

	mu        sync.RWMutex
	machines  []model.Machine
	state     State
	observers []Observer
}

// New creates a Synchronizer reading from src.
func New(src Source, opts Options) *Synchronizer {
	if opts.Buckets == nil {
		opts.Buckets = status.DefaultBuckets()
	}
	if opts.Normalizer == nil {
		opts.Normalizer, _ = status.NewNormalizer(nil)
	}
	if opts.ReconnectMin <= 0 {
		opts.ReconnectMin = 500 * time.Millisecond
	}
	if opts.ReconnectMax < opts.ReconnectMin {
		opts.ReconnectMax = 30 * time.Second
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Synchronizer{
		src:      src,
		opts:     opts,
		machines: []model.Machine{},
		state:    State{Loading: true},
	}
}

// AddObserver registers o. Observers must be added before Run.
func (s *Synchronizer) AddObserver(o Observer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.observers = append(s.observers, o)
}

// Run subscribes and applies snapshots until ctx is cancelled. A failed
// subscription marks the synchronizer stalled and is retried with
// exponential backoff.
func (s *Synchronizer) Run(ctx context.Context) {
	log.Println("Starting machine synchronizer...")
	backoff := s.opts.ReconnectMin

	for {
		err := s.follow(ctx, func() { backoff = s.opts.ReconnectMin })
		if ctx.Err() != nil {
			log.Println("Machine synchronizer shutting down.")
			return
		}
		s.stall(err)
		log.Printf("Machine subscription failed: %v; retrying in %s", err, backoff)

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			log.Println("Machine synchronizer shutting down.")
			return
		case <-timer.C:
		}
		backoff *= 2
		if backoff > s.opts.ReconnectMax {
			backoff = s.opts.ReconnectMax
		}
	}
}

// follow consumes one subscription until it fails. onSnapshot runs after
// each applied snapshot.
func (s *Synchronizer) follow(ctx context.Context, onSnapshot func()) error {
	stream, err := s.src.Subscribe(ctx)
	if err != nil {
		return err
	}
	defer stream.Close()

	for {
		snap, err := stream.Next(ctx)
		if err != nil {
			return err
		}
		s.Apply(ctx, snap)
		onSnapshot()
	}
}

// Apply replaces the local list with the contents of snap and notifies the
// observers.
func (s *Synchronizer) Apply(ctx context.Context, snap store.Snapshot) {
	list := BuildList(snap, s.opts.Normalizer)

	s.mu.Lock()
	wasStalled := s.state.Stalled
	s.machines = list
	if wasStalled {
		s.state.Reconnects++
	}
	s.state.Loading = false
	s.state.Stalled = false
	s.state.LastError = ""
	s.state.LastSnapshot = s.opts.Now().UTC()
	s.state.Seq = snap.Seq
	s.state.Machines = len(list)
	observers := append([]Observer(nil), s.observers...)
	s.mu.Unlock()

	if wasStalled {
		log.Printf("Machine subscription recovered with %d machines", len(list))
	}
	for _, o := range observers {
		o.Observe(ctx, list)
	}
}

func (s *Synchronizer) stall(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.Stalled = true
	if err != nil {
		s.state.LastError = err.Error()
	}
}

// BuildList turns a snapshot into the display list: statuses translated to
// the canonical set, sorted by name then ID. It depends on snap alone and
// never returns nil.
func BuildList(snap store.Snapshot, norm *status.Normalizer) []model.Machine {
	list := make([]model.Machine, len(snap.Machines))
	copy(list, snap.Machines)
	for i := range list {
		list[i].Status = string(norm.Normalize(list[i].Status))
	}
	sort.SliceStable(list, func(i, j int) bool {
		if list[i].Name != list[j].Name {
			return list[i].Name < list[j].Name
		}
		return list[i].ID < list[j].ID
	})
	return list
}

// Machines returns a copy of the current list.
func (s *Synchronizer) Machines() []model.Machine {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.Machine, len(s.machines))
	copy(out, s.machines)
	return out
}

// Get looks up one machine in the local list.
func (s *Synchronizer) Get(id string) (model.Machine, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, m := range s.machines {
		if m.ID == id {
			return m, true
		}
	}
	return model.Machine{}, false
}

// State returns the current subscription state.
func (s *Synchronizer) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Buckets returns the bucket mapping in use.
func (s *Synchronizer) Buckets() *status.Buckets {
	return s.opts.Buckets
}
