package store

import (
	"sort"
	"strings"
	"sync"
	"time"

	"shell-service/internal/model"
)

// MemoryStore is an in-memory Store used by tests and by local development
// without a Postgres instance. All methods are safe for concurrent use.
type MemoryStore struct {
	mu sync.Mutex

	users    map[uint]model.User
	sessions map[string]model.UserSession
	accounts map[string]model.CanvasAccount
	tokens   map[uint]model.CanvasToken
	shells   map[uint]model.CourseShell
	batches  map[string]model.CreationBatch

	nextUserID    uint
	nextSessionID uint
	nextAccountID uint
	nextTokenID   uint
	nextShellID   uint
	nextBatchID   uint
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:    make(map[uint]model.User),
		sessions: make(map[string]model.UserSession),
		accounts: make(map[string]model.CanvasAccount),
		tokens:   make(map[uint]model.CanvasToken),
		shells:   make(map[uint]model.CourseShell),
		batches:  make(map[string]model.CreationBatch),
	}
}

// GetUser fetches a user by primary key
func (s *MemoryStore) GetUser(id uint) (*model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &user, nil
}

// GetUserByOktaID fetches a user by external identity
func (s *MemoryStore) GetUserByOktaID(oktaID string) (*model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, user := range s.users {
		if user.OktaID == oktaID {
			u := user
			return &u, nil
		}
	}
	return nil, ErrNotFound
}

// UpsertUser creates the user or refreshes its profile fields
func (s *MemoryStore) UpsertUser(user *model.User) (*model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	for id, existing := range s.users {
		if existing.OktaID == user.OktaID {
			existing.Email = user.Email
			existing.FirstName = user.FirstName
			existing.LastName = user.LastName
			existing.UpdatedAt = now
			s.users[id] = existing
			return &existing, nil
		}
	}
	s.nextUserID++
	saved := *user
	saved.ID = s.nextUserID
	saved.CreatedAt = now
	saved.UpdatedAt = now
	s.users[saved.ID] = saved
	return &saved, nil
}

// CreateUserSession stores a new login session
func (s *MemoryStore) CreateUserSession(session *model.UserSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextSessionID++
	session.ID = s.nextSessionID
	if session.SessionToken == "" {
		// Mirrors the gorm BeforeCreate hook
		session.SessionToken = model.NewSessionToken()
	}
	session.CreatedAt = time.Now()
	s.sessions[session.SessionToken] = *session
	return nil
}

// GetUserSessionByToken fetches a session by its opaque token
func (s *MemoryStore) GetUserSessionByToken(token string) (*model.UserSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[token]
	if !ok {
		return nil, ErrNotFound
	}
	return &session, nil
}

// UpsertCanvasAccount inserts or refreshes one cached account
func (s *MemoryStore) UpsertCanvasAccount(account *model.CanvasAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	if existing, ok := s.accounts[account.CanvasID]; ok {
		existing.Name = account.Name
		existing.ParentAccountID = account.ParentAccountID
		existing.WorkflowState = account.WorkflowState
		existing.RootAccountID = account.RootAccountID
		existing.UpdatedAt = now
		s.accounts[account.CanvasID] = existing
		return nil
	}
	s.nextAccountID++
	saved := *account
	saved.ID = s.nextAccountID
	saved.CreatedAt = now
	saved.UpdatedAt = now
	s.accounts[saved.CanvasID] = saved
	return nil
}

// ListCanvasAccounts returns the full account cache
func (s *MemoryStore) ListCanvasAccounts() ([]model.CanvasAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	accounts := make([]model.CanvasAccount, 0, len(s.accounts))
	for _, account := range s.accounts {
		accounts = append(accounts, account)
	}
	sort.Slice(accounts, func(i, j int) bool { return accounts[i].ID < accounts[j].ID })
	return accounts, nil
}

// GetCanvasToken fetches the stored Canvas OAuth token for a user
func (s *MemoryStore) GetCanvasToken(userID uint) (*model.CanvasToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	token, ok := s.tokens[userID]
	if !ok {
		return nil, ErrNotFound
	}
	return &token, nil
}

// GetLatestCanvasToken returns the most recently stored Canvas token
func (s *MemoryStore) GetLatestCanvasToken() (*model.CanvasToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var latest *model.CanvasToken
	for _, token := range s.tokens {
		token := token
		if latest == nil || token.UpdatedAt.After(latest.UpdatedAt) {
			latest = &token
		}
	}
	if latest == nil {
		return nil, ErrNotFound
	}
	return latest, nil
}

// UpsertCanvasToken stores or replaces the Canvas OAuth token for a user
func (s *MemoryStore) UpsertCanvasToken(token *model.CanvasToken) (*model.CanvasToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	if existing, ok := s.tokens[token.UserID]; ok {
		existing.AccessToken = token.AccessToken
		existing.RefreshToken = token.RefreshToken
		existing.ExpiresAt = token.ExpiresAt
		existing.Scope = token.Scope
		existing.TokenType = token.TokenType
		existing.UpdatedAt = now
		s.tokens[token.UserID] = existing
		return &existing, nil
	}
	s.nextTokenID++
	saved := *token
	saved.ID = s.nextTokenID
	saved.CreatedAt = now
	saved.UpdatedAt = now
	s.tokens[saved.UserID] = saved
	return &saved, nil
}

// DeleteCanvasToken removes the stored Canvas OAuth token for a user
func (s *MemoryStore) DeleteCanvasToken(userID uint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tokens, userID)
	return nil
}

// CreateCourseShells bulk-inserts the shell rows for one batch
func (s *MemoryStore) CreateCourseShells(shells []model.CourseShell) ([]model.CourseShell, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	created := make([]model.CourseShell, 0, len(shells))
	for _, shell := range shells {
		s.nextShellID++
		shell.ID = s.nextShellID
		if shell.Status == "" {
			shell.Status = model.ShellStatusPending
		}
		shell.CreatedAt = now
		shell.UpdatedAt = now
		s.shells[shell.ID] = shell
		created = append(created, shell)
	}
	return created, nil
}

func (s *MemoryStore) shellsByBatch(batchID string, onlyPending bool) []model.CourseShell {
	shells := make([]model.CourseShell, 0)
	for _, shell := range s.shells {
		if shell.BatchID != batchID {
			continue
		}
		if onlyPending && shell.Status != model.ShellStatusPending {
			continue
		}
		shells = append(shells, shell)
	}
	sort.Slice(shells, func(i, j int) bool { return shells[i].ID < shells[j].ID })
	return shells
}

// GetCourseShellsByBatch returns all shells of a batch in insertion order
func (s *MemoryStore) GetCourseShellsByBatch(batchID string) ([]model.CourseShell, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.shellsByBatch(batchID, false), nil
}

// GetPendingShellsByBatch returns the shells of a batch still awaiting creation
func (s *MemoryStore) GetPendingShellsByBatch(batchID string) ([]model.CourseShell, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.shellsByBatch(batchID, true), nil
}

// MarkShellCreated records a successful creation, exactly once
func (s *MemoryStore) MarkShellCreated(shellID uint, canvasID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	shell, ok := s.shells[shellID]
	if !ok || shell.Status != model.ShellStatusPending {
		return ErrNotFound
	}
	shell.Status = model.ShellStatusCreated
	shell.CanvasID = &canvasID
	shell.UpdatedAt = time.Now()
	s.shells[shellID] = shell
	return nil
}

// MarkShellFailed records a failed creation with its error message
func (s *MemoryStore) MarkShellFailed(shellID uint, message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	shell, ok := s.shells[shellID]
	if !ok || shell.Status != model.ShellStatusPending {
		return ErrNotFound
	}
	shell.Status = model.ShellStatusFailed
	shell.Error = &message
	shell.UpdatedAt = time.Now()
	s.shells[shellID] = shell
	return nil
}

// CreateCreationBatch stores a new ledger row
func (s *MemoryStore) CreateCreationBatch(batch *model.CreationBatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextBatchID++
	batch.ID = s.nextBatchID
	if batch.Status == "" {
		batch.Status = model.BatchStatusInProgress
	}
	now := time.Now()
	batch.CreatedAt = now
	batch.UpdatedAt = now
	s.batches[batch.BatchID] = *batch
	return nil
}

// GetCreationBatch fetches a ledger row by its public batch id
func (s *MemoryStore) GetCreationBatch(batchID string) (*model.CreationBatch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	batch, ok := s.batches[batchID]
	if !ok {
		return nil, ErrNotFound
	}
	return &batch, nil
}

// IncrementBatchCompleted bumps the completed counter atomically
func (s *MemoryStore) IncrementBatchCompleted(batchID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	batch, ok := s.batches[batchID]
	if !ok {
		return ErrNotFound
	}
	batch.CompletedShells++
	batch.UpdatedAt = time.Now()
	s.batches[batchID] = batch
	return nil
}

// IncrementBatchFailed bumps the failed counter atomically
func (s *MemoryStore) IncrementBatchFailed(batchID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	batch, ok := s.batches[batchID]
	if !ok {
		return ErrNotFound
	}
	batch.FailedShells++
	batch.UpdatedAt = time.Now()
	s.batches[batchID] = batch
	return nil
}

// FinalizeBatch sets the terminal status once every shell is accounted for
func (s *MemoryStore) FinalizeBatch(batchID string) (*model.CreationBatch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	batch, ok := s.batches[batchID]
	if !ok {
		return nil, ErrNotFound
	}
	if batch.CompletedShells+batch.FailedShells < batch.TotalShells {
		return &batch, nil
	}
	if batch.Status == model.BatchStatusInProgress {
		if batch.FailedShells > 0 {
			batch.Status = model.BatchStatusCompletedWithErrors
		} else {
			batch.Status = model.BatchStatusCompleted
		}
		batch.UpdatedAt = time.Now()
		s.batches[batchID] = batch
	}
	return &batch, nil
}

// GetRecentBatches returns the newest batches owned by a user
func (s *MemoryStore) GetRecentBatches(userID uint, limit int) ([]model.CreationBatch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	batches := make([]model.CreationBatch, 0)
	for _, batch := range s.batches {
		if batch.UserID == userID {
			batches = append(batches, batch)
		}
	}
	sort.Slice(batches, func(i, j int) bool { return batches[i].ID > batches[j].ID })
	if limit > 0 && len(batches) > limit {
		batches = batches[:limit]
	}
	return batches, nil
}

// ListBatchesByStatus returns every batch in the given status, oldest first
func (s *MemoryStore) ListBatchesByStatus(status string) ([]model.CreationBatch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	batches := make([]model.CreationBatch, 0)
	for _, batch := range s.batches {
		if strings.EqualFold(batch.Status, status) {
			batches = append(batches, batch)
		}
	}
	sort.Slice(batches, func(i, j int) bool { return batches[i].ID < batches[j].ID })
	return batches, nil
}
