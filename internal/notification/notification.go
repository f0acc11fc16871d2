package notification

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"laundryonline/internal/model"
)

// Source tells where a notification came from.
type Source string

const (
	SourceCompletion Source = "completion"
	SourceMessage    Source = "message"
)

// Notification is a user-visible alert. It lives only in memory.
type Notification struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
	Read      bool      `json:"read"`
	MachineID string    `json:"machineId,omitempty"`
	Source    Source    `json:"source"`
}

// Completion builds the alert raised when m finishes its cycle.
func Completion(m model.Machine, now time.Time) Notification {
	return Notification{
		ID:        uuid.NewString(),
		Title:     fmt.Sprintf("%s is done!", m.Name),
		Message:   fmt.Sprintf("Your laundry in %s has completed its cycle.", m.Name),
		Timestamp: now.UTC(),
		MachineID: m.ID,
		Source:    SourceCompletion,
	}
}

// Sink receives every emitted notification.
type Sink interface {
	Deliver(ctx context.Context, n Notification)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, n Notification)

func (f SinkFunc) Deliver(ctx context.Context, n Notification) {
	f(ctx, n)
}
