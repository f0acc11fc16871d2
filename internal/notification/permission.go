package notification

import (
	"context"
	"fmt"
	"log"
	"sync"

	"laundryonline/internal/apperr"
)

// Permission is the state of a notification permission.
type Permission string

const (
	PermissionDefault Permission = "default"
	PermissionGranted Permission = "granted"
	PermissionDenied  Permission = "denied"
)

// ParsePermission validates raw.
func ParsePermission(raw string) (Permission, error) {
	switch p := Permission(raw); p {
	case PermissionDefault, PermissionGranted, PermissionDenied:
		return p, nil
	}
	return "", apperr.InvalidInput("notification.permission", fmt.Sprintf("unknown permission %q", raw))
}

// Prompter asks for a permission once.
type Prompter interface {
	Prompt(ctx context.Context) (Permission, error)
}

// ConfigPrompter answers from configuration.
type ConfigPrompter struct {
	Enabled bool
}

func (p ConfigPrompter) Prompt(ctx context.Context) (Permission, error) {
	if p.Enabled {
		return PermissionGranted, nil
	}
	return PermissionDenied, nil
}

// Gate holds one permission. The zero value is not usable; use NewGate.
type Gate struct {
	name  string
	mu    sync.RWMutex
	state Permission
}

// NewGate returns a gate in the default state.
func NewGate(name string) *Gate {
	return &Gate{name: name, state: PermissionDefault}
}

// Request prompts once while the gate is still in the default state. A
// failed prompt leaves it there.
func (g *Gate) Request(ctx context.Context, p Prompter) Permission {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.state != PermissionDefault {
		return g.state
	}
	got, err := p.Prompt(ctx)
	if err != nil {
		log.Printf("Error requesting %s permission: %v", g.name, err)
		return g.state
	}
	g.state = got
	log.Printf("%s permission: %s", g.name, got)
	return got
}

// Set overrides the state, e.g. from a user toggling it.
func (g *Gate) Set(p Permission) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.state = p
}

// State returns the current permission.
func (g *Gate) State() Permission {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.state
}

// Granted reports whether dispatch is allowed.
func (g *Gate) Granted() bool {
	return g.State() == PermissionGranted
}
