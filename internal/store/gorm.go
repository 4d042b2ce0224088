package store

import (
	"errors"
	"time"

	"shell-service/internal/model"
	"shell-service/prometheus"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormStore implements Store on top of a gorm Postgres connection
type GormStore struct {
	db *gorm.DB
}

// NewGormStore creates a Store backed by the given database handle
func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func translate(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}

// GetUser fetches a user by primary key
func (s *GormStore) GetUser(id uint) (*model.User, error) {
	defer prometheus.TrackDBOperation("query")(time.Now())
	var user model.User
	if err := s.db.First(&user, id).Error; err != nil {
		return nil, translate(err)
	}
	return &user, nil
}

// GetUserByOktaID fetches a user by external identity
func (s *GormStore) GetUserByOktaID(oktaID string) (*model.User, error) {
	defer prometheus.TrackDBOperation("query")(time.Now())
	var user model.User
	if err := s.db.Where("okta_id = ?", oktaID).First(&user).Error; err != nil {
		return nil, translate(err)
	}
	return &user, nil
}

// UpsertUser creates the user or refreshes its profile fields, keyed by okta id
func (s *GormStore) UpsertUser(user *model.User) (*model.User, error) {
	defer prometheus.TrackDBOperation("upsert")(time.Now())
	err := s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "okta_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"email", "first_name", "last_name", "updated_at"}),
	}).Create(user).Error
	if err != nil {
		return nil, err
	}
	var saved model.User
	if err := s.db.Where("okta_id = ?", user.OktaID).First(&saved).Error; err != nil {
		return nil, translate(err)
	}
	return &saved, nil
}

// CreateUserSession stores a new login session
func (s *GormStore) CreateUserSession(session *model.UserSession) error {
	defer prometheus.TrackDBOperation("insert")(time.Now())
	return s.db.Create(session).Error
}

// GetUserSessionByToken fetches a session by its opaque token
func (s *GormStore) GetUserSessionByToken(token string) (*model.UserSession, error) {
	defer prometheus.TrackDBOperation("query")(time.Now())
	var session model.UserSession
	if err := s.db.Where("session_token = ?", token).First(&session).Error; err != nil {
		return nil, translate(err)
	}
	return &session, nil
}

// UpsertCanvasAccount inserts or refreshes one cached account, keyed by canvas id
func (s *GormStore) UpsertCanvasAccount(account *model.CanvasAccount) error {
	defer prometheus.TrackDBOperation("upsert")(time.Now())
	return s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "canvas_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"name", "parent_account_id", "workflow_state", "root_account_id", "updated_at"}),
	}).Create(account).Error
}

// ListCanvasAccounts returns the full account cache
func (s *GormStore) ListCanvasAccounts() ([]model.CanvasAccount, error) {
	defer prometheus.TrackDBOperation("query")(time.Now())
	var accounts []model.CanvasAccount
	if err := s.db.Order("id").Find(&accounts).Error; err != nil {
		return nil, err
	}
	return accounts, nil
}

// GetCanvasToken fetches the stored Canvas OAuth token for a user
func (s *GormStore) GetCanvasToken(userID uint) (*model.CanvasToken, error) {
	defer prometheus.TrackDBOperation("query")(time.Now())
	var token model.CanvasToken
	if err := s.db.Where("user_id = ?", userID).First(&token).Error; err != nil {
		return nil, translate(err)
	}
	return &token, nil
}

// GetLatestCanvasToken returns the most recently stored Canvas token
func (s *GormStore) GetLatestCanvasToken() (*model.CanvasToken, error) {
	defer prometheus.TrackDBOperation("query")(time.Now())
	var token model.CanvasToken
	if err := s.db.Order("updated_at DESC").First(&token).Error; err != nil {
		return nil, translate(err)
	}
	return &token, nil
}

// UpsertCanvasToken stores or replaces the Canvas OAuth token for a user
func (s *GormStore) UpsertCanvasToken(token *model.CanvasToken) (*model.CanvasToken, error) {
	defer prometheus.TrackDBOperation("upsert")(time.Now())
	err := s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"access_token", "refresh_token", "expires_at", "scope", "token_type", "updated_at"}),
	}).Create(token).Error
	if err != nil {
		return nil, err
	}
	var saved model.CanvasToken
	if err := s.db.Where("user_id = ?", token.UserID).First(&saved).Error; err != nil {
		return nil, translate(err)
	}
	return &saved, nil
}

// DeleteCanvasToken removes the stored Canvas OAuth token for a user
func (s *GormStore) DeleteCanvasToken(userID uint) error {
	defer prometheus.TrackDBOperation("delete")(time.Now())
	return s.db.Where("user_id = ?", userID).Delete(&model.CanvasToken{}).Error
}

// CreateCourseShells bulk-inserts the shell rows for one batch
func (s *GormStore) CreateCourseShells(shells []model.CourseShell) ([]model.CourseShell, error) {
	defer prometheus.TrackDBOperation("insert")(time.Now())
	if err := s.db.Create(&shells).Error; err != nil {
		return nil, err
	}
	return shells, nil
}

// GetCourseShellsByBatch returns all shells of a batch in insertion order
func (s *GormStore) GetCourseShellsByBatch(batchID string) ([]model.CourseShell, error) {
	defer prometheus.TrackDBOperation("query")(time.Now())
	var shells []model.CourseShell
	if err := s.db.Where("batch_id = ?", batchID).Order("id").Find(&shells).Error; err != nil {
		return nil, err
	}
	return shells, nil
}

// GetPendingShellsByBatch returns the shells of a batch still awaiting creation
func (s *GormStore) GetPendingShellsByBatch(batchID string) ([]model.CourseShell, error) {
	defer prometheus.TrackDBOperation("query")(time.Now())
	var shells []model.CourseShell
	err := s.db.Where("batch_id = ? AND status = ?", batchID, model.ShellStatusPending).
		Order("id").Find(&shells).Error
	if err != nil {
		return nil, err
	}
	return shells, nil
}

// MarkShellCreated records a successful creation. The status guard makes
// the terminal transition exactly-once.
func (s *GormStore) MarkShellCreated(shellID uint, canvasID string) error {
	defer prometheus.TrackDBOperation("update")(time.Now())
	result := s.db.Model(&model.CourseShell{}).
		Where("id = ? AND status = ?", shellID, model.ShellStatusPending).
		Updates(map[string]interface{}{
			"status":    model.ShellStatusCreated,
			"canvas_id": canvasID,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// MarkShellFailed records a failed creation with its error message
func (s *GormStore) MarkShellFailed(shellID uint, message string) error {
	defer prometheus.TrackDBOperation("update")(time.Now())
	result := s.db.Model(&model.CourseShell{}).
		Where("id = ? AND status = ?", shellID, model.ShellStatusPending).
		Updates(map[string]interface{}{
			"status": model.ShellStatusFailed,
			"error":  message,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// CreateCreationBatch stores a new ledger row
func (s *GormStore) CreateCreationBatch(batch *model.CreationBatch) error {
	defer prometheus.TrackDBOperation("insert")(time.Now())
	return s.db.Create(batch).Error
}

// GetCreationBatch fetches a ledger row by its public batch id
func (s *GormStore) GetCreationBatch(batchID string) (*model.CreationBatch, error) {
	defer prometheus.TrackDBOperation("query")(time.Now())
	var batch model.CreationBatch
	if err := s.db.Where("batch_id = ?", batchID).First(&batch).Error; err != nil {
		return nil, translate(err)
	}
	return &batch, nil
}

// IncrementBatchCompleted bumps the completed counter. The increment is
// done in SQL so parallel shell workers never lose updates.
func (s *GormStore) IncrementBatchCompleted(batchID string) error {
	defer prometheus.TrackDBOperation("update")(time.Now())
	return s.db.Model(&model.CreationBatch{}).
		Where("batch_id = ?", batchID).
		UpdateColumn("completed_shells", gorm.Expr("completed_shells + 1")).Error
}

// IncrementBatchFailed bumps the failed counter atomically
func (s *GormStore) IncrementBatchFailed(batchID string) error {
	defer prometheus.TrackDBOperation("update")(time.Now())
	return s.db.Model(&model.CreationBatch{}).
		Where("batch_id = ?", batchID).
		UpdateColumn("failed_shells", gorm.Expr("failed_shells + 1")).Error
}

// FinalizeBatch sets the terminal status once every shell is accounted for
func (s *GormStore) FinalizeBatch(batchID string) (*model.CreationBatch, error) {
	defer prometheus.TrackDBOperation("update")(time.Now())
	batch, err := s.GetCreationBatch(batchID)
	if err != nil {
		return nil, err
	}
	if batch.CompletedShells+batch.FailedShells < batch.TotalShells {
		return batch, nil
	}
	status := model.BatchStatusCompleted
	if batch.FailedShells > 0 {
		status = model.BatchStatusCompletedWithErrors
	}
	err = s.db.Model(&model.CreationBatch{}).
		Where("batch_id = ? AND status = ?", batchID, model.BatchStatusInProgress).
		UpdateColumn("status", status).Error
	if err != nil {
		return nil, err
	}
	return s.GetCreationBatch(batchID)
}

// GetRecentBatches returns the newest batches owned by a user
func (s *GormStore) GetRecentBatches(userID uint, limit int) ([]model.CreationBatch, error) {
	defer prometheus.TrackDBOperation("query")(time.Now())
	var batches []model.CreationBatch
	err := s.db.Where("user_id = ?", userID).
		Order("created_at DESC").Limit(limit).Find(&batches).Error
	if err != nil {
		return nil, err
	}
	return batches, nil
}

// ListBatchesByStatus returns every batch in the given status, oldest first
func (s *GormStore) ListBatchesByStatus(status string) ([]model.CreationBatch, error) {
	defer prometheus.TrackDBOperation("query")(time.Now())
	var batches []model.CreationBatch
	if err := s.db.Where("status = ?", status).Order("id").Find(&batches).Error; err != nil {
		return nil, err
	}
	return batches, nil
}
