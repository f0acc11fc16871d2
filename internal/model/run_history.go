package model

import "time"

// RunHistory is an archived machine run (cold table).
type RunHistory struct {
	ID                int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	MachineID         string    `gorm:"size:64;not null;index:idx_run_machine_ended,priority:1" json:"machineId"`
	StartedAt         time.Time `gorm:"not null" json:"startedAt"`
	EndedAt           time.Time `gorm:"not null;index:idx_run_machine_ended,priority:2,sort:desc" json:"endedAt"` // Time the run's end was observed
	PredictedEnd      time.Time `gorm:"not null" json:"predictedEnd"`
	EstimatedDuration *int      `json:"estimatedDuration,omitempty"`
	FinalStatus       string    `gorm:"size:32;not null" json:"finalStatus"`
	EndedBy           string    `gorm:"size:64" json:"endedBy,omitempty"`
}
