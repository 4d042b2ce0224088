package model

import (
	"time"

	"gorm.io/gorm"
)

// UserSession represents an issued login session
type UserSession struct {
	ID           uint      `json:"id" gorm:"primarykey"`
	UserID       uint      `json:"user_id" gorm:"index;not null"`
	SessionToken string    `json:"-" gorm:"type:varchar(255);uniqueIndex;not null"`
	ExpiresAt    time.Time `json:"expires_at" gorm:"not null"`
	CreatedAt    time.Time `json:"created_at"`
}

// BeforeCreate hook will be called before creating a new UserSession record
func (s *UserSession) BeforeCreate(tx *gorm.DB) (err error) {
	if s.SessionToken == "" {
		s.SessionToken = generateSecureToken()
	}
	return nil
}

// IsExpired checks if the session is expired
func (s *UserSession) IsExpired() bool {
	return time.Now().After(s.ExpiresAt)
}
