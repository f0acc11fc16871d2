package store

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"laundryonline/internal/model"
)

// AddSubscriber records that userID follows machineID. The machine must
// exist; subscribing twice is a no-op.
func (s *gormStore) AddSubscriber(ctx context.Context, machineID, userID string) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var m model.Machine
		if err := tx.Select("id").First(&m, "id = ?", machineID).Error; err != nil {
			return err
		}
		return tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&model.MachineSubscriber{
			MachineID: machineID,
			UserID:    userID,
			CreatedAt: time.Now().UTC(),
		}).Error
	})
	return classify("store.add_subscriber", err)
}

// RemoveSubscriber deletes the subscription if present.
func (s *gormStore) RemoveSubscriber(ctx context.Context, machineID, userID string) error {
	err := s.db.WithContext(ctx).
		Where("machine_id = ? AND user_id = ?", machineID, userID).
		Delete(&model.MachineSubscriber{}).Error
	return classify("store.remove_subscriber", err)
}

// Subscribers lists the user IDs following machineID.
func (s *gormStore) Subscribers(ctx context.Context, machineID string) ([]string, error) {
	var ids []string
	err := s.db.WithContext(ctx).Model(&model.MachineSubscriber{}).
		Where("machine_id = ?", machineID).
		Order("user_id").
		Pluck("user_id", &ids).Error
	if err != nil {
		return nil, classify("store.subscribers", err)
	}
	return ids, nil
}

// SubscribedMachines lists the machine IDs userID follows.
func (s *gormStore) SubscribedMachines(ctx context.Context, userID string) ([]string, error) {
	var ids []string
	err := s.db.WithContext(ctx).Model(&model.MachineSubscriber{}).
		Where("user_id = ?", userID).
		Order("machine_id").
		Pluck("machine_id", &ids).Error
	if err != nil {
		return nil, classify("store.subscribed_machines", err)
	}
	return ids, nil
}

// SavePushSubscription creates or replaces a browser push endpoint.
func (s *gormStore) SavePushSubscription(ctx context.Context, sub model.PushSubscription) error {
	if sub.CreatedAt.IsZero() {
		sub.CreatedAt = time.Now().UTC()
	}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "endpoint"}},
		DoUpdates: clause.AssignmentColumns([]string{"user_id", "p256dh", "auth"}),
	}).Create(&sub).Error
	return classify("store.save_push_subscription", err)
}

// DeletePushSubscription removes an endpoint.
func (s *gormStore) DeletePushSubscription(ctx context.Context, endpoint string) error {
	err := s.db.WithContext(ctx).Delete(&model.PushSubscription{Endpoint: endpoint}).Error
	return classify("store.delete_push_subscription", err)
}

// PushSubscriptionsForMachine returns the push endpoints of every user
// following machineID.
func (s *gormStore) PushSubscriptionsForMachine(ctx context.Context, machineID string) ([]model.PushSubscription, error) {
	var subscriptions []model.PushSubscription
	err := s.db.WithContext(ctx).
		Joins("JOIN machine_subscribers ms ON ms.user_id = push_subscriptions.user_id").
		Where("ms.machine_id = ?", machineID).
		Find(&subscriptions).Error
	if err != nil {
		return nil, classify("store.push_subscriptions", err)
	}
	return subscriptions, nil
}
