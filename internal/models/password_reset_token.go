package models

import "time"

// PasswordResetToken persists an issued reset token for the database token store.
type PasswordResetToken struct {
	Token      string    `gorm:"primaryKey;size:64" json:"-"`
	Email      string    `gorm:"size:320;not null" json:"email"`
	CustomerID string    `gorm:"size:128;not null;index" json:"customer_id"`
	IssuedAt   time.Time `gorm:"not null;index" json:"issued_at"`
	CreatedAt  time.Time `json:"created_at"`
}
