package model

import (
	"time"

	"gorm.io/gorm"
)

// User represents a staff member allowed to submit course shell batches
type User struct {
	ID        uint           `json:"id" gorm:"primarykey"`
	OktaID    string         `json:"okta_id" gorm:"type:varchar(255);uniqueIndex;not null"`
	Email     string         `json:"email" gorm:"type:varchar(255);uniqueIndex;not null"`
	FirstName string         `json:"first_name" gorm:"type:varchar(100)"`
	LastName  string         `json:"last_name" gorm:"type:varchar(100)"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"-" gorm:"index"`
}
