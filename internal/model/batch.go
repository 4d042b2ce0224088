package model

import (
	"time"
)

// Creation batch statuses. A batch is terminal once every shell has a
// terminal status: completed when none failed, completed_with_errors
// otherwise.
const (
	BatchStatusInProgress          = "in_progress"
	BatchStatusCompleted           = "completed"
	BatchStatusCompletedWithErrors = "completed_with_errors"
)

// CreationBatch is the ledger row tracking one bulk submission
type CreationBatch struct {
	ID              uint      `json:"id" gorm:"primarykey"`
	BatchID         string    `json:"batch_id" gorm:"type:varchar(64);uniqueIndex;not null"`
	UserID          uint      `json:"user_id" gorm:"index;not null"`
	TotalShells     int       `json:"total_shells" gorm:"not null"`
	CompletedShells int       `json:"completed_shells" gorm:"not null;default:0"`
	FailedShells    int       `json:"failed_shells" gorm:"not null;default:0"`
	Status          string    `json:"status" gorm:"type:varchar(32);not null;default:in_progress"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// IsTerminal reports whether the batch has reached a final status
func (b *CreationBatch) IsTerminal() bool {
	return b.Status == BatchStatusCompleted || b.Status == BatchStatusCompletedWithErrors
}
