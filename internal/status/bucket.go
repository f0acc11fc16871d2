package status

import "fmt"

// Bucket is a display grouping derived from a status.
type Bucket string

const (
	BucketAvailable Bucket = "available"
	BucketInUse     Bucket = "in_use"
	BucketNone      Bucket = ""
)

// Buckets classifies statuses into display groups. The mapping comes from
// configuration; callers never hardcode which statuses count as available.
type Buckets struct {
	available []Status
	inUse     []Status
}

// NewBuckets validates that no status is in both groups.
func NewBuckets(available, inUse []string) (*Buckets, error) {
	b := &Buckets{}
	seen := make(map[Status]Bucket)
	for _, raw := range available {
		s := Status(raw)
		if !s.Valid() {
			return nil, fmt.Errorf("bucket %q: unknown status %q", BucketAvailable, raw)
		}
		seen[s] = BucketAvailable
		b.available = append(b.available, s)
	}
	for _, raw := range inUse {
		s := Status(raw)
		if !s.Valid() {
			return nil, fmt.Errorf("bucket %q: unknown status %q", BucketInUse, raw)
		}
		if seen[s] == BucketAvailable {
			return nil, fmt.Errorf("status %q is listed in both buckets", raw)
		}
		b.inUse = append(b.inUse, s)
	}
	return b, nil
}

// DefaultBuckets is available={available}, in_use={running, complete}.
func DefaultBuckets() *Buckets {
	return &Buckets{
		available: []Status{Available},
		inUse:     []Status{Running, Complete},
	}
}

// Of returns the bucket of s, or BucketNone when s is unmapped.
func (b *Buckets) Of(s Status) Bucket {
	for _, v := range b.available {
		if s == v {
			return BucketAvailable
		}
	}
	for _, v := range b.inUse {
		if s == v {
			return BucketInUse
		}
	}
	return BucketNone
}
