package machinesync

import (
	"time"

	"laundryonline/internal/model"
	"laundryonline/internal/status"
)

// Partition groups machines by bucket. Every machine appears in exactly one
// of the three lists.
type Partition struct {
	Available  []model.Machine `json:"available"`
	InUse      []model.Machine `json:"inUse"`
	Unbucketed []model.Machine `json:"unbucketed"`
}

// PartitionOf splits machines using b.
func PartitionOf(machines []model.Machine, b *status.Buckets) Partition {
	p := Partition{
		Available:  []model.Machine{},
		InUse:      []model.Machine{},
		Unbucketed: []model.Machine{},
	}
	for _, m := range machines {
		switch b.Of(status.Status(m.Status)) {
		case status.BucketAvailable:
			p.Available = append(p.Available, m)
		case status.BucketInUse:
			p.InUse = append(p.InUse, m)
		default:
			p.Unbucketed = append(p.Unbucketed, m)
		}
	}
	return p
}

// Partition splits the current list with the configured buckets.
func (s *Synchronizer) Partition() Partition {
	return PartitionOf(s.Machines(), s.opts.Buckets)
}

// View is a machine with its derived display fields.
type View struct {
	model.Machine
	Bucket      status.Bucket `json:"bucket"`
	TimeDisplay string        `json:"timeDisplay,omitempty"`
}

// ViewOf derives the display fields of m at now.
func ViewOf(m model.Machine, b *status.Buckets, now time.Time) View {
	v := View{Machine: m, Bucket: b.Of(status.Status(m.Status))}
	switch status.Status(m.Status) {
	case status.Running:
		if m.EstimatedDuration != nil {
			v.TimeDisplay = FormatRemaining(m.StartTime, m.EstimatedDuration, now)
		} else {
			v.TimeDisplay = FormatElapsed(m.StartTime, now)
		}
	case status.Complete:
		v.TimeDisplay = "Cycle complete"
	}
	return v
}

// Views returns the current list with display fields, optionally limited to
// one bucket. An empty bucket filter returns everything.
func (s *Synchronizer) Views(bucket status.Bucket) []View {
	now := s.opts.Now()
	machines := s.Machines()
	views := make([]View, 0, len(machines))
	for _, m := range machines {
		v := ViewOf(m, s.opts.Buckets, now)
		if bucket != status.BucketNone && v.Bucket != bucket {
			continue
		}
		views = append(views, v)
	}
	return views
}
