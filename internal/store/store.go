package store

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"hash/fnv"
	"log"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"laundryonline/internal/apperr"
	"laundryonline/internal/model"
	"laundryonline/internal/status"
)

// Store is the realtime store: path-scoped reads and writes over the machine
// collection plus a live snapshot subscription.
type Store interface {
	// Subscribe opens a stream whose first snapshot is the current state.
	Subscribe(ctx context.Context) (*Stream, error)
	Snapshot(ctx context.Context) (Snapshot, error)
	Get(ctx context.Context, id string) (model.Machine, error)
	Set(ctx context.Context, m model.Machine) error
	Update(ctx context.Context, id string, p Patch) (prev, next model.Machine, err error)
	Remove(ctx context.Context, id string) error
	// MarkNotified flips notified to true for a complete machine and reports
	// whether this call performed the flip.
	MarkNotified(ctx context.Context, id string) (bool, error)
	ActiveNameExists(ctx context.Context, name string) (bool, error)

	AddSubscriber(ctx context.Context, machineID, userID string) error
	RemoveSubscriber(ctx context.Context, machineID, userID string) error
	Subscribers(ctx context.Context, machineID string) ([]string, error)
	SubscribedMachines(ctx context.Context, userID string) ([]string, error)

	SavePushSubscription(ctx context.Context, sub model.PushSubscription) error
	DeletePushSubscription(ctx context.Context, endpoint string) error
	PushSubscriptionsForMachine(ctx context.Context, machineID string) ([]model.PushSubscription, error)

	AppendRun(ctx context.Context, run model.RunHistory) error
	Runs(ctx context.Context, machineID string, limit int) ([]model.RunHistory, error)

	// Watch republishes when the table changes underneath the service.
	Watch(ctx context.Context, interval time.Duration)
	Close()
	DB() *gorm.DB
}

// gormStore implements the Store interface using GORM.
type gormStore struct {
	db   *gorm.DB
	feed *Feed
	now  func() time.Time
	norm *status.Normalizer

	// publishMu orders snapshot reads with their publication, so a slow
	// writer cannot publish an older state after a newer one.
	publishMu       sync.Mutex
	lastFingerprint atomic.Uint64
}

// Option configures a store.
type Option func(*gormStore)

// WithNormalizer sets the alias table used to match status values written
// before they were canonicalized. The default aliases apply otherwise.
func WithNormalizer(n *status.Normalizer) Option {
	return func(s *gormStore) {
		if n != nil {
			s.norm = n
		}
	}
}

// NewGormStore creates a new GORM-backed store.
func NewGormStore(db *gorm.DB, opts ...Option) Store {
	norm, _ := status.NewNormalizer(nil)
	s := &gormStore{db: db, feed: NewFeed(), now: time.Now, norm: norm}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *gormStore) DB() *gorm.DB {
	return s.db
}

func (s *gormStore) Close() {
	s.feed.Close()
}

func (s *gormStore) Subscribe(ctx context.Context) (*Stream, error) {
	snap, err := s.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return s.feed.Subscribe(snap), nil
}

func (s *gormStore) Snapshot(ctx context.Context) (Snapshot, error) {
	var machines []model.Machine
	if err := s.db.WithContext(ctx).Order("id").Find(&machines).Error; err != nil {
		return Snapshot{}, classify("store.snapshot", err)
	}
	if machines == nil {
		machines = []model.Machine{}
	}
	return Snapshot{Machines: machines, TakenAt: s.now().UTC()}, nil
}

func (s *gormStore) Get(ctx context.Context, id string) (model.Machine, error) {
	var m model.Machine
	if err := s.db.WithContext(ctx).First(&m, "id = ?", id).Error; err != nil {
		return model.Machine{}, classify("store.get", err)
	}
	return m, nil
}

func (s *gormStore) Set(ctx context.Context, m model.Machine) error {
	if m.ID == "" {
		return apperr.InvalidInput("store.set", "machine id is required")
	}
	if m.LastUpdatedAt.IsZero() {
		m.LastUpdatedAt = s.now().UTC()
	}
	err := s.db.WithContext(ctx).Omit(clause.Associations).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"name", "type", "location", "status", "start_time", "estimated_duration",
			"notified", "last_updated_by", "last_updated_at",
		}),
	}).Create(&m).Error
	if err != nil {
		return classify("store.set", err)
	}
	s.publish(ctx)
	return nil
}

func (s *gormStore) Update(ctx context.Context, id string, p Patch) (model.Machine, model.Machine, error) {
	var prev, next model.Machine
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&prev, "id = ?", id).Error; err != nil {
			return err
		}
		if err := tx.Model(&model.Machine{}).Where("id = ?", id).Updates(p.columns(s.now().UTC())).Error; err != nil {
			return err
		}
		return tx.First(&next, "id = ?", id).Error
	})
	if err != nil {
		return model.Machine{}, model.Machine{}, classify("store.update", err)
	}
	s.publish(ctx)
	return prev, next, nil
}

func (s *gormStore) Remove(ctx context.Context, id string) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("machine_id = ?", id).Delete(&model.MachineSubscriber{}).Error; err != nil {
			return err
		}
		res := tx.Where("id = ?", id).Delete(&model.Machine{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return nil
	})
	if err != nil {
		return classify("store.remove", err)
	}
	s.publish(ctx)
	return nil
}

func (s *gormStore) MarkNotified(ctx context.Context, id string) (bool, error) {
	// Legacy spellings of complete match too; the flip rewrites them to the
	// canonical value.
	res := s.db.WithContext(ctx).Model(&model.Machine{}).
		Where("id = ? AND LOWER(TRIM(status)) IN ? AND notified = ?", id, s.norm.Spellings(status.Complete), false).
		Updates(map[string]any{"notified": true, "status": string(status.Complete)})
	if res.Error != nil {
		return false, classify("store.mark_notified", res.Error)
	}
	if res.RowsAffected == 0 {
		return false, nil
	}
	s.publish(ctx)
	return true, nil
}

func (s *gormStore) ActiveNameExists(ctx context.Context, name string) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&model.Machine{}).
		Where("name = ? AND LOWER(TRIM(status)) NOT IN ?", name, s.norm.Spellings(status.Offline)).
		Count(&count).Error
	if err != nil {
		return false, classify("store.name_exists", err)
	}
	return count > 0, nil
}

// Watch polls the table and republishes when its contents changed without
// going through this store, e.g. another replica writing the same database.
// A failed poll ends the current streams so subscribers can reconnect.
func (s *gormStore) Watch(ctx context.Context, interval time.Duration) {
	log.Println("Starting store watcher...")
	timer := time.NewTimer(interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("Store watcher shutting down.")
			return
		case <-timer.C:
			s.poll(ctx)
			timer.Reset(interval)
		}
	}
}

func (s *gormStore) poll(ctx context.Context) {
	s.publishMu.Lock()
	defer s.publishMu.Unlock()
	snap, err := s.Snapshot(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		log.Printf("Error polling machines: %v", err)
		s.feed.Fail(err)
		return
	}
	fp := fingerprint(snap.Machines)
	if s.lastFingerprint.Swap(fp) == fp {
		return
	}
	s.feed.Publish(snap)
}

// publish pushes the current state to all subscribers after a write. The
// write itself already succeeded, so a failed read only ends the streams.
func (s *gormStore) publish(ctx context.Context) {
	s.publishMu.Lock()
	defer s.publishMu.Unlock()
	snap, err := s.Snapshot(context.WithoutCancel(ctx))
	if err != nil {
		log.Printf("Error loading snapshot after write: %v", err)
		s.feed.Fail(err)
		return
	}
	s.lastFingerprint.Store(fingerprint(snap.Machines))
	s.feed.Publish(snap)
}

func fingerprint(machines []model.Machine) uint64 {
	h := fnv.New64a()
	for _, m := range machines {
		var start, dur int64 = -1, -1
		if m.StartTime != nil {
			start = m.StartTime.UnixMilli()
		}
		if m.EstimatedDuration != nil {
			dur = int64(*m.EstimatedDuration)
		}
		fmt.Fprintf(h, "%s|%s|%s|%s|%s|%d|%d|%t|%d;",
			m.ID, m.Name, m.Type, m.Location, m.Status, start, dur, m.Notified, m.LastUpdatedAt.UnixNano())
	}
	return h.Sum64()
}

// classify maps database errors onto the shared error taxonomy.
func classify(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return &apperr.Error{Kind: apperr.KindNotFound, Op: op, Message: "record not found", Err: err}
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled), errors.Is(err, driver.ErrBadConn):
		return apperr.Network(op, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return apperr.Network(op, err)
	}
	var appErr *apperr.Error
	if errors.As(err, &appErr) {
		return err
	}
	return fmt.Errorf("%s: %w", op, err)
}
