package model

import "time"

// RoleAdmin grants access to machine mutations.
const RoleAdmin = "admin"

// User is an account known to the auth service.
type User struct {
	ID           string    `gorm:"primaryKey;size:64"`
	Email        string    `gorm:"uniqueIndex;size:256;not null"`
	PasswordHash string    `gorm:"not null"`
	DisplayName  string    `gorm:"size:128"`
	PhotoURL     string    `gorm:"size:512"`
	Role         string    `gorm:"size:32"`
	CreatedAt    time.Time `gorm:"not null"`
	UpdatedAt    time.Time `gorm:"not null"`
}
