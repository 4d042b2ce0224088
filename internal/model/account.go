package model

import (
	"time"
)

// CanvasAccount mirrors one node of the Canvas account hierarchy in the
// local cache. Rows are upserted on every listing and never deleted.
type CanvasAccount struct {
	ID              uint      `json:"id" gorm:"primarykey"`
	CanvasID        string    `json:"canvas_id" gorm:"type:varchar(64);uniqueIndex;not null"`
	Name            string    `json:"name" gorm:"type:varchar(255);not null"`
	ParentAccountID *string   `json:"parent_account_id,omitempty" gorm:"type:varchar(64)"`
	WorkflowState   string    `json:"workflow_state" gorm:"type:varchar(32);not null"`
	RootAccountID   *string   `json:"root_account_id,omitempty" gorm:"type:varchar(64)"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}
