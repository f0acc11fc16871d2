package status

import (
	"fmt"
	"sort"
	"strings"
)

// Status is the canonical machine status written to the store.
type Status string

const (
	Available Status = "available"
	Running   Status = "running"
	Complete  Status = "complete"
	Offline   Status = "offline"
	Unknown   Status = "unknown"
)

// Canonical lists the statuses accepted on egress, in display order.
var Canonical = []Status{Available, Running, Complete, Offline}

// DefaultAliases maps legacy status strings seen in older records onto the
// canonical set.
var DefaultAliases = map[string]Status{
	"active":       Running,
	"inactive":     Available,
	"idle":         Available,
	"in_use":       Running,
	"done":         Complete,
	"finished":     Complete,
	"out_of_order": Offline,
}

// Valid reports whether s is one of the canonical statuses.
func (s Status) Valid() bool {
	for _, c := range Canonical {
		if s == c {
			return true
		}
	}
	return false
}

// IsRun reports whether s belongs to an ongoing or just-finished run.
func (s Status) IsRun() bool {
	return s == Running || s == Complete
}

// Normalizer translates raw status strings on ingress.
type Normalizer struct {
	aliases map[string]Status
}

// NewNormalizer builds a Normalizer from alias -> canonical pairs. A nil map
// uses DefaultAliases.
func NewNormalizer(aliases map[string]string) (*Normalizer, error) {
	n := &Normalizer{aliases: make(map[string]Status)}
	if aliases == nil {
		for k, v := range DefaultAliases {
			n.aliases[k] = v
		}
		return n, nil
	}
	for raw, target := range aliases {
		s := Status(strings.ToLower(strings.TrimSpace(target)))
		if !s.Valid() {
			return nil, fmt.Errorf("alias %q maps to non-canonical status %q", raw, target)
		}
		n.aliases[strings.ToLower(strings.TrimSpace(raw))] = s
	}
	return n, nil
}

// Normalize maps raw onto the canonical set. Unrecognized values become
// Unknown rather than being dropped.
func (n *Normalizer) Normalize(raw string) Status {
	key := strings.ToLower(strings.TrimSpace(raw))
	if s := Status(key); s.Valid() {
		return s
	}
	if n != nil {
		if s, ok := n.aliases[key]; ok {
			return s
		}
	}
	return Unknown
}

// Parse is Normalize for user input: Unknown is an error.
func (n *Normalizer) Parse(raw string) (Status, error) {
	s := n.Normalize(raw)
	if s == Unknown {
		return Unknown, fmt.Errorf("unrecognized status %q", raw)
	}
	return s, nil
}

// Spellings lists every lower-case string that normalizes to s: the
// canonical value and its aliases, sorted. Stores use it to match rows
// written before the status was canonicalized.
func (n *Normalizer) Spellings(s Status) []string {
	out := []string{string(s)}
	if n != nil {
		for raw, target := range n.aliases {
			if target == s && raw != string(s) {
				out = append(out, raw)
			}
		}
	}
	sort.Strings(out)
	return out
}
