// Package hub fans live updates out to connected WebSocket clients: every
// rebuilt machine list goes to everyone, and notifications go to the users
// following the machine.
package hub

import (
	"context"
	"encoding/json"
	"log"
	"sync"

	"laundryonline/internal/model"
	"laundryonline/internal/notification"
)

type Writer interface {
	Write(message []byte) error
	Close() error
}

// SendBuffer is how many frames may wait for a slow connection before it is
// dropped.
const SendBuffer = 64

// Connection is one client. Frames queued for it are written by its own
// goroutine, so a slow client never holds up the others.
type Connection struct {
	UserID string
	Writer Writer

	send chan []byte
	done chan struct{}
	stop sync.Once
}

// SubscriberLookup resolves the followers of a machine. store.Store
// satisfies it.
type SubscriberLookup interface {
	Subscribers(ctx context.Context, machineID string) ([]string, error)
}

// Message is the envelope of every frame sent to clients.
type Message struct {
	Type string `json:"type"`
	Body any    `json:"body,omitempty"`
}

const (
	TypeMachines     = "machines"
	TypeNotification = "notification"
	TypeState        = "state"
	TypePong         = "pong"
)

// Renderer turns a machine list into the body of a machines frame.
type Renderer func(machines []model.Machine) any

type Hub struct {
	subs   SubscriberLookup
	render Renderer

	mu          sync.RWMutex
	connections map[string]map[*Connection]struct{}
	latest      []byte
}

func New(subs SubscriberLookup, render Renderer) *Hub {
	if render == nil {
		render = func(machines []model.Machine) any { return machines }
	}
	return &Hub{
		subs:        subs,
		render:      render,
		connections: make(map[string]map[*Connection]struct{}),
	}
}

// Register adds conn and starts its writer. The first frame it receives is
// the last machine list the hub sent, or initial when there was none yet;
// every later list follows it in order.
func (h *Hub) Register(conn *Connection, initial []byte) {
	conn.send = make(chan []byte, SendBuffer)
	conn.done = make(chan struct{})
	go h.pump(conn)

	h.mu.Lock()
	if h.connections[conn.UserID] == nil {
		h.connections[conn.UserID] = make(map[*Connection]struct{})
	}
	h.connections[conn.UserID][conn] = struct{}{}
	first := h.latest
	if first == nil {
		first = initial
	}
	if first != nil {
		conn.enqueue(first)
	}
	h.mu.Unlock()
}

// Unregister removes conn and stops its writer. Queued frames are dropped.
func (h *Hub) Unregister(conn *Connection) {
	h.mu.Lock()
	set := h.connections[conn.UserID]
	if set != nil {
		delete(set, conn)
		if len(set) == 0 {
			delete(h.connections, conn.UserID)
		}
	}
	h.mu.Unlock()

	if conn.done != nil {
		conn.stop.Do(func() { close(conn.done) })
	}
}

// Connections counts registered connections.
func (h *Hub) Connections() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := 0
	for _, set := range h.connections {
		n += len(set)
	}
	return n
}

// Send queues message for a single connection.
func (h *Hub) Send(conn *Connection, message []byte) {
	if !conn.enqueue(message) {
		h.drop(conn)
	}
}

// Broadcast queues message for every connection of userID.
func (h *Hub) Broadcast(userID string, message []byte) {
	h.mu.RLock()
	failed := enqueueAll(h.connections[userID], message, nil)
	h.mu.RUnlock()

	h.dropAll(failed)
}

// BroadcastAll queues message for every connection.
func (h *Hub) BroadcastAll(message []byte) {
	h.mu.RLock()
	var failed []*Connection
	for _, set := range h.connections {
		failed = enqueueAll(set, message, failed)
	}
	h.mu.RUnlock()

	h.dropAll(failed)
}

func enqueueAll(set map[*Connection]struct{}, message []byte, failed []*Connection) []*Connection {
	for c := range set {
		if !c.enqueue(message) {
			failed = append(failed, c)
		}
	}
	return failed
}

// enqueue reports false when the connection's queue is full.
func (c *Connection) enqueue(message []byte) bool {
	select {
	case c.send <- message:
		return true
	case <-c.done:
		return true
	default:
		return false
	}
}

func (h *Hub) pump(c *Connection) {
	for {
		select {
		case <-c.done:
			return
		case msg := <-c.send:
			if err := c.Writer.Write(msg); err != nil {
				h.drop(c)
				return
			}
		}
	}
}

func (h *Hub) drop(c *Connection) {
	h.Unregister(c)
	_ = c.Writer.Close()
}

func (h *Hub) dropAll(conns []*Connection) {
	for _, c := range conns {
		log.Printf("Dropping slow connection of user %s", c.UserID)
		h.drop(c)
	}
}

// Frame encodes a message envelope.
func (h *Hub) Frame(typ string, body any) ([]byte, error) {
	return json.Marshal(Message{Type: typ, Body: body})
}

// MachinesFrame encodes a machine list the way Observe sends it.
func (h *Hub) MachinesFrame(machines []model.Machine) ([]byte, error) {
	return h.Frame(TypeMachines, h.render(machines))
}

// Observe pushes every rebuilt machine list to all clients and keeps it for
// the ones that connect later.
func (h *Hub) Observe(ctx context.Context, machines []model.Machine) {
	out, err := h.MachinesFrame(machines)
	if err != nil {
		log.Printf("Error encoding machine list: %v", err)
		return
	}
	h.mu.Lock()
	h.latest = out
	var failed []*Connection
	for _, set := range h.connections {
		failed = enqueueAll(set, out, failed)
	}
	h.mu.Unlock()

	h.dropAll(failed)
}

// Deliver pushes a notification to the followers of its machine, or to all
// clients when it is not tied to a machine.
func (h *Hub) Deliver(ctx context.Context, n notification.Notification) {
	out, err := h.Frame(TypeNotification, n)
	if err != nil {
		log.Printf("Error encoding notification: %v", err)
		return
	}
	if n.MachineID == "" || h.subs == nil {
		h.BroadcastAll(out)
		return
	}
	users, err := h.subs.Subscribers(ctx, n.MachineID)
	if err != nil {
		log.Printf("Error loading subscribers of machine %s: %v", n.MachineID, err)
		return
	}
	for _, uid := range users {
		h.Broadcast(uid, out)
	}
}
