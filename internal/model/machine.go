package model

import "time"

// Machine types accepted at creation.
const (
	TypeWasher = "washer"
	TypeDryer  = "dryer"
)

// Machine is a laundry machine record. Status holds the canonical status
// string; legacy values are translated before they are written.
type Machine struct {
	ID                string     `gorm:"primaryKey;size:64" json:"id"`
	Name              string     `gorm:"size:128;not null;index" json:"name"`
	Type              string     `gorm:"size:16;not null" json:"type"`
	Location          string     `gorm:"size:256" json:"location"`
	Status            string     `gorm:"size:32;not null;index" json:"status"`
	StartTime         *time.Time `json:"startTime,omitempty"`
	EstimatedDuration *int       `json:"estimatedDuration,omitempty"` // minutes
	Notified          bool       `gorm:"not null;default:false" json:"notified"`
	CreatedBy         string     `gorm:"size:64" json:"createdBy,omitempty"`
	CreatedAt         time.Time  `json:"createdAt"`
	LastUpdatedBy     string     `gorm:"size:64" json:"lastUpdatedBy,omitempty"`
	LastUpdatedAt     time.Time  `json:"lastUpdatedAt"`

	// Associations
	Subscribers []MachineSubscriber `gorm:"foreignKey:MachineID;constraint:OnDelete:CASCADE" json:"-"`
}

// MachineSubscriber records that a user wants completion alerts for a
// machine. The same row answers both "who follows this machine" and "which
// machines does this user follow".
type MachineSubscriber struct {
	MachineID string    `gorm:"primaryKey;size:64"`
	UserID    string    `gorm:"primaryKey;size:64;index"`
	CreatedAt time.Time `gorm:"not null"`
}
