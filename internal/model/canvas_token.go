package model

import (
	"time"
)

// CanvasToken holds the Canvas OAuth credentials for one user
type CanvasToken struct {
	ID           uint      `json:"id" gorm:"primarykey"`
	UserID       uint      `json:"user_id" gorm:"uniqueIndex;not null"`
	AccessToken  string    `json:"-" gorm:"type:text;not null"`
	RefreshToken string    `json:"-" gorm:"type:text;not null"`
	ExpiresAt    time.Time `json:"expires_at" gorm:"not null"`
	Scope        string    `json:"scope" gorm:"type:text"`
	TokenType    string    `json:"token_type" gorm:"type:varchar(32);default:Bearer"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// ExpiresWithin reports whether the access token expires inside the window
func (t *CanvasToken) ExpiresWithin(window time.Duration) bool {
	return time.Now().Add(window).After(t.ExpiresAt)
}
