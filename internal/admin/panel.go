// Package admin implements the machine mutations reserved for administrators.
package admin

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"laundryonline/internal/apperr"
	"laundryonline/internal/model"
	"laundryonline/internal/status"
	"laundryonline/internal/store"
)

// Authorizer answers the admin role lookup. *auth.Service satisfies it.
type Authorizer interface {
	IsAdmin(ctx context.Context, uid string) (bool, error)
}

// CreateRequest describes a new machine. Empty fields get defaults: a
// generated ID and name, type washer, status available.
type CreateRequest struct {
	ID                string          `json:"id"`
	Name              string          `json:"name"`
	Type              string          `json:"type"`
	Location          string          `json:"location"`
	Status            string          `json:"status"`
	StartTime         *model.FlexTime `json:"startTime"`
	EstimatedDuration *int            `json:"estimatedDuration"`
}

// StatusUpdate changes the status of a machine. EstimatedDuration only
// applies when a run starts.
type StatusUpdate struct {
	Status            string `json:"status" binding:"required"`
	EstimatedDuration *int   `json:"estimatedDuration"`
}

// Options configures a Panel.
type Options struct {
	Normalizer      *status.Normalizer
	DefaultDuration int
	Now             func() time.Time
}

// Panel performs admin-gated writes to the store.
type Panel struct {
	store store.Store
	authz Authorizer
	opts  Options
}

// NewPanel creates a Panel.
func NewPanel(st store.Store, authz Authorizer, opts Options) *Panel {
	if opts.Normalizer == nil {
		opts.Normalizer, _ = status.NewNormalizer(nil)
	}
	if opts.DefaultDuration <= 0 {
		opts.DefaultDuration = 45
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Panel{store: st, authz: authz, opts: opts}
}

func (p *Panel) requireAdmin(ctx context.Context, op, actor string) error {
	if actor == "" {
		return apperr.AuthFailure(op, "you must be signed in")
	}
	ok, err := p.authz.IsAdmin(ctx, actor)
	if err != nil {
		return err
	}
	if !ok {
		return apperr.PermissionDenied(op, "admin access required")
	}
	return nil
}

// CreateMachine adds a machine. Names must be unique among machines that
// are not offline.
func (p *Panel) CreateMachine(ctx context.Context, actor string, req CreateRequest) (model.Machine, error) {
	const op = "admin.create"
	if err := p.requireAdmin(ctx, op, actor); err != nil {
		return model.Machine{}, err
	}
	now := p.opts.Now().UTC()

	m := model.Machine{
		ID:            strings.TrimSpace(req.ID),
		Name:          strings.TrimSpace(req.Name),
		Type:          strings.ToLower(strings.TrimSpace(req.Type)),
		Location:      strings.TrimSpace(req.Location),
		CreatedBy:     actor,
		CreatedAt:     now,
		LastUpdatedBy: actor,
		LastUpdatedAt: now,
	}
	if m.ID == "" {
		m.ID = "machine_" + uuid.NewString()
	}
	if m.Name == "" {
		m.Name = fmt.Sprintf("Machine %04d", now.UnixMilli()%10000)
	}
	switch m.Type {
	case "":
		m.Type = model.TypeWasher
	case model.TypeWasher, model.TypeDryer:
	default:
		return model.Machine{}, apperr.InvalidInput(op, fmt.Sprintf("machine type must be %q or %q", model.TypeWasher, model.TypeDryer))
	}

	st := status.Available
	if req.Status != "" {
		parsed, err := p.opts.Normalizer.Parse(req.Status)
		if err != nil {
			return model.Machine{}, apperr.InvalidInput(op, err.Error())
		}
		st = parsed
	}
	if req.EstimatedDuration != nil && *req.EstimatedDuration <= 0 {
		return model.Machine{}, apperr.InvalidInput(op, "estimated duration must be positive")
	}
	m.Status = string(st)
	if st == status.Running {
		start := now
		if req.StartTime != nil && !req.StartTime.IsZero() {
			start = req.StartTime.UTC()
		}
		m.StartTime = &start
		m.EstimatedDuration = p.duration(req.EstimatedDuration)
	}

	if _, err := p.store.Get(ctx, m.ID); err == nil {
		return model.Machine{}, apperr.Conflict(op, fmt.Sprintf("machine %s already exists", m.ID))
	} else if !apperr.Is(err, apperr.KindNotFound) {
		return model.Machine{}, err
	}
	if st != status.Offline {
		exists, err := p.store.ActiveNameExists(ctx, m.Name)
		if err != nil {
			return model.Machine{}, err
		}
		if exists {
			return model.Machine{}, apperr.Conflict(op, fmt.Sprintf("a machine named %q already exists", m.Name))
		}
	}

	if err := p.store.Set(ctx, m); err != nil {
		return model.Machine{}, err
	}
	log.Printf("Machine %s (%s) created by %s", m.ID, m.Name, actor)
	return p.store.Get(ctx, m.ID)
}

// UpdateStatus moves a machine to a new status. Starting a run stamps the
// start time and estimate and clears notified; writing complete clears
// notified so the completion is announced. A run that ends or is replaced
// is archived.
func (p *Panel) UpdateStatus(ctx context.Context, actor, id string, req StatusUpdate) (model.Machine, error) {
	const op = "admin.update_status"
	if err := p.requireAdmin(ctx, op, actor); err != nil {
		return model.Machine{}, err
	}
	next, err := p.opts.Normalizer.Parse(req.Status)
	if err != nil {
		return model.Machine{}, apperr.InvalidInput(op, err.Error())
	}
	if req.EstimatedDuration != nil && *req.EstimatedDuration <= 0 {
		return model.Machine{}, apperr.InvalidInput(op, "estimated duration must be positive")
	}

	now := p.opts.Now().UTC()
	s := string(next)
	patch := store.Patch{Status: &s, UpdatedBy: actor}
	notified := false
	switch next {
	case status.Running:
		patch.StartTime = &now
		patch.EstimatedDuration = p.duration(req.EstimatedDuration)
		patch.Notified = &notified
	case status.Complete:
		patch.Notified = &notified
	}

	prev, updated, err := p.store.Update(ctx, id, patch)
	if err != nil {
		return model.Machine{}, err
	}

	prevStatus := p.opts.Normalizer.Normalize(prev.Status)
	if endsRun(prevStatus, next) {
		prev.Status = string(prevStatus)
		if run, ok := store.RunRecord(prev, now, actor); ok {
			if err := p.store.AppendRun(ctx, run); err != nil {
				log.Printf("Error archiving run of machine %s: %v", id, err)
			}
		}
	}
	log.Printf("Machine %s status %s -> %s by %s", id, prev.Status, next, actor)
	return updated, nil
}

// DeleteMachine removes a machine and its subscriptions.
func (p *Panel) DeleteMachine(ctx context.Context, actor, id string) error {
	const op = "admin.delete"
	if err := p.requireAdmin(ctx, op, actor); err != nil {
		return err
	}
	if err := p.store.Remove(ctx, id); err != nil {
		return err
	}
	log.Printf("Machine %s deleted by %s", id, actor)
	return nil
}

func (p *Panel) duration(requested *int) *int {
	d := p.opts.DefaultDuration
	if requested != nil && *requested > 0 {
		d = *requested
	}
	return &d
}

// endsRun reports whether moving from prev to next closes the run prev
// belonged to. Restarting a run closes the old one.
func endsRun(prev, next status.Status) bool {
	if !prev.IsRun() {
		return false
	}
	return next != status.Complete
}
