package store

import (
	"errors"

	"shell-service/internal/model"
)

// ErrNotFound is returned when a requested record does not exist, or when
// a guarded update matched no row.
var ErrNotFound = errors.New("record not found")

// Store is the persistence boundary for the service. The gorm
// implementation backs production; the in-memory implementation backs
// tests and local development without Postgres.
type Store interface {
	// Users
	GetUser(id uint) (*model.User, error)
	GetUserByOktaID(oktaID string) (*model.User, error)
	UpsertUser(user *model.User) (*model.User, error)

	// Sessions
	CreateUserSession(session *model.UserSession) error
	GetUserSessionByToken(token string) (*model.UserSession, error)

	// Canvas account cache
	UpsertCanvasAccount(account *model.CanvasAccount) error
	ListCanvasAccounts() ([]model.CanvasAccount, error)

	// Canvas OAuth tokens
	GetCanvasToken(userID uint) (*model.CanvasToken, error)
	// GetLatestCanvasToken returns the most recently stored token; the
	// service-wide Canvas connection uses whichever admin authorized last.
	GetLatestCanvasToken() (*model.CanvasToken, error)
	UpsertCanvasToken(token *model.CanvasToken) (*model.CanvasToken, error)
	DeleteCanvasToken(userID uint) error

	// Course shells
	CreateCourseShells(shells []model.CourseShell) ([]model.CourseShell, error)
	GetCourseShellsByBatch(batchID string) ([]model.CourseShell, error)
	GetPendingShellsByBatch(batchID string) ([]model.CourseShell, error)
	// MarkShellCreated and MarkShellFailed only transition pending shells;
	// they return ErrNotFound when the shell is missing or already terminal.
	MarkShellCreated(shellID uint, canvasID string) error
	MarkShellFailed(shellID uint, message string) error

	// Creation batches
	CreateCreationBatch(batch *model.CreationBatch) error
	GetCreationBatch(batchID string) (*model.CreationBatch, error)
	IncrementBatchCompleted(batchID string) error
	IncrementBatchFailed(batchID string) error
	// FinalizeBatch moves the batch to its terminal status once
	// completed+failed == total and returns the updated row.
	FinalizeBatch(batchID string) (*model.CreationBatch, error)
	GetRecentBatches(userID uint, limit int) ([]model.CreationBatch, error)
	ListBatchesByStatus(status string) ([]model.CreationBatch, error)
}
