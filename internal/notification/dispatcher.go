package notification

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"laundryonline/internal/messaging"
	"laundryonline/internal/model"
	"laundryonline/internal/status"
)

// Marker performs the conditional notified write-back. store.Store
// satisfies it.
type Marker interface {
	MarkNotified(ctx context.Context, id string) (bool, error)
}

// runKey identifies one run of a machine.
type runKey struct {
	id    string
	start int64
}

func keyOf(m model.Machine) runKey {
	k := runKey{id: m.ID, start: -1}
	if m.StartTime != nil {
		k.start = m.StartTime.UnixMilli()
	}
	return k
}

// DispatcherOptions configures a Dispatcher.
type DispatcherOptions struct {
	Gate        *Gate
	MessageGate *Gate
	Inbox       *Inbox
	Now         func() time.Time
}

// Dispatcher turns completed machines and inbound push messages into
// notifications. Each completed run produces at most one notification: the
// store's notified flag is flipped conditionally, and runs already handled
// by this process are remembered in case the write-back fails.
type Dispatcher struct {
	marker      Marker
	gate        *Gate
	messageGate *Gate
	inbox       *Inbox
	now         func() time.Time

	mu    sync.Mutex
	seen  map[runKey]struct{}
	sinks []Sink
}

// NewDispatcher creates a Dispatcher writing back through marker.
func NewDispatcher(marker Marker, opts DispatcherOptions) *Dispatcher {
	if opts.Gate == nil {
		opts.Gate = NewGate("notification")
	}
	if opts.MessageGate == nil {
		opts.MessageGate = NewGate("messaging")
	}
	if opts.Inbox == nil {
		opts.Inbox = NewInbox(0)
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Dispatcher{
		marker:      marker,
		gate:        opts.Gate,
		messageGate: opts.MessageGate,
		inbox:       opts.Inbox,
		now:         opts.Now,
		seen:        make(map[runKey]struct{}),
	}
}

// AddSink registers s to receive every emitted notification after the inbox.
func (d *Dispatcher) AddSink(s Sink) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.sinks = append(d.sinks, s)
}

// Gate returns the completion permission.
func (d *Dispatcher) Gate() *Gate { return d.gate }

// MessageGate returns the push-message permission.
func (d *Dispatcher) MessageGate() *Gate { return d.messageGate }

// Inbox returns the notification list.
func (d *Dispatcher) Inbox() *Inbox { return d.inbox }

// Observe scans a machine list for completed, unnotified runs. It is called
// with every list the synchronizer rebuilds and does nothing until the
// permission is granted.
func (d *Dispatcher) Observe(ctx context.Context, machines []model.Machine) {
	if !d.gate.Granted() {
		return
	}

	// Runs are reserved in the seen-set before the write-back, which happens
	// outside the lock; every outcome keeps the reservation.
	var candidates []model.Machine
	d.mu.Lock()
	complete := make(map[runKey]struct{})
	for _, m := range machines {
		if status.Status(m.Status) != status.Complete {
			continue
		}
		key := keyOf(m)
		complete[key] = struct{}{}
		if m.Notified {
			continue
		}
		if _, ok := d.seen[key]; ok {
			continue
		}
		d.seen[key] = struct{}{}
		candidates = append(candidates, m)
	}
	// Forget runs that are no longer complete.
	for key := range d.seen {
		if _, ok := complete[key]; !ok {
			delete(d.seen, key)
		}
	}
	d.mu.Unlock()

	var emit []Notification
	for _, m := range candidates {
		flipped, err := d.marker.MarkNotified(ctx, m.ID)
		switch {
		case err != nil:
			// The flag could not be written; the local record alone keeps
			// this run from firing again in this process.
			log.Printf("Error marking machine %s notified: %v", m.ID, err)
		case !flipped:
			// Another writer already notified this run.
			continue
		}
		emit = append(emit, Completion(m, d.now()))
	}

	for _, n := range emit {
		log.Printf("Machine %s completed; notifying", n.MachineID)
		d.emit(ctx, n)
	}
}

// HandleMessage turns an inbound push message into a notification. It does
// nothing until the messaging permission is granted.
func (d *Dispatcher) HandleMessage(ctx context.Context, msg messaging.Message) {
	if !d.messageGate.Granted() {
		return
	}
	if msg.Notification == nil {
		log.Printf("Ignoring push message without notification payload")
		return
	}
	d.emit(ctx, Notification{
		ID:        uuid.NewString(),
		Title:     msg.Notification.Title,
		Message:   msg.Notification.Body,
		Timestamp: d.now().UTC(),
		MachineID: msg.Data["machineId"],
		Source:    SourceMessage,
	})
}

func (d *Dispatcher) emit(ctx context.Context, n Notification) {
	d.inbox.Add(n)
	d.mu.Lock()
	sinks := append([]Sink(nil), d.sinks...)
	d.mu.Unlock()
	for _, s := range sinks {
		s.Deliver(ctx, n)
	}
}
