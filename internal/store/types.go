package store

import (
	"time"

	"laundryonline/internal/model"
)

// Snapshot is a full point-in-time copy of the machine collection, sorted by
// machine ID. Snapshots are shared between subscribers and must be treated
// as read-only.
type Snapshot struct {
	Machines []model.Machine
	Seq      uint64
	TakenAt  time.Time
}

// Len returns the number of machines in the snapshot.
func (s Snapshot) Len() int {
	return len(s.Machines)
}

// Patch is a partial machine update. Nil fields are left untouched.
// UpdatedBy is recorded in the audit fields on every patch.
type Patch struct {
	Name              *string
	Location          *string
	Status            *string
	StartTime         *time.Time
	EstimatedDuration *int
	Notified          *bool
	UpdatedBy         string
}

func (p Patch) columns(now time.Time) map[string]any {
	cols := map[string]any{
		"last_updated_by": p.UpdatedBy,
		"last_updated_at": now,
	}
	if p.Name != nil {
		cols["name"] = *p.Name
	}
	if p.Location != nil {
		cols["location"] = *p.Location
	}
	if p.Status != nil {
		cols["status"] = *p.Status
	}
	if p.StartTime != nil {
		cols["start_time"] = *p.StartTime
	}
	if p.EstimatedDuration != nil {
		cols["estimated_duration"] = *p.EstimatedDuration
	}
	if p.Notified != nil {
		cols["notified"] = *p.Notified
	}
	return cols
}
