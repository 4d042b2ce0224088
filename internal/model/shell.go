package model

import (
	"time"
)

// Course shell statuses. A shell is created pending and makes exactly one
// terminal transition, performed by the batch runner.
const (
	ShellStatusPending = "pending"
	ShellStatusCreated = "created"
	ShellStatusFailed  = "failed"
)

// CourseShell is one requested course creation: one template instantiated
// under one Canvas account.
type CourseShell struct {
	ID              uint       `json:"id" gorm:"primarykey"`
	Name            string     `json:"name" gorm:"type:varchar(255);not null"`
	CourseCode      string     `json:"course_code" gorm:"type:varchar(100);not null"`
	CanvasID        *string    `json:"canvas_id,omitempty" gorm:"type:varchar(64)"`
	AccountID       string     `json:"account_id" gorm:"type:varchar(64);not null"`
	StartDate       *time.Time `json:"start_date,omitempty"`
	EndDate         *time.Time `json:"end_date,omitempty"`
	Status          string     `json:"status" gorm:"type:varchar(16);not null;default:pending"`
	Error           *string    `json:"error,omitempty" gorm:"type:text"`
	BatchID         string     `json:"batch_id" gorm:"type:varchar(64);index;not null"`
	CreatedByUserID uint       `json:"created_by_user_id" gorm:"not null"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// IsTerminal reports whether the shell has reached a final status
func (s *CourseShell) IsTerminal() bool {
	return s.Status == ShellStatusCreated || s.Status == ShellStatusFailed
}
