package notification

import (
	"sync"

	"laundryonline/internal/apperr"
)

// Inbox is a bounded, append-only list of notifications. When full, the
// oldest entry is dropped.
type Inbox struct {
	mu    sync.RWMutex
	size  int
	items []Notification
}

// NewInbox creates an inbox holding at most size notifications.
func NewInbox(size int) *Inbox {
	if size <= 0 {
		size = 200
	}
	return &Inbox{size: size}
}

// Add appends n.
func (b *Inbox) Add(n Notification) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.items = append(b.items, n)
	if over := len(b.items) - b.size; over > 0 {
		b.items = append([]Notification(nil), b.items[over:]...)
	}
}

// List returns the notifications oldest first.
func (b *Inbox) List() []Notification {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]Notification, len(b.items))
	copy(out, b.items)
	return out
}

// MarkRead flags one notification as read.
func (b *Inbox) MarkRead(id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i := range b.items {
		if b.items[i].ID == id {
			b.items[i].Read = true
			return nil
		}
	}
	return apperr.NotFound("notification.mark_read", "notification not found")
}

// Unread counts unread notifications.
func (b *Inbox) Unread() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	n := 0
	for _, item := range b.items {
		if !item.Read {
			n++
		}
	}
	return n
}

// Len returns the number of stored notifications.
func (b *Inbox) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.items)
}
