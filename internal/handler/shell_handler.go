package handler

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"shell-service/internal/batch"
	"shell-service/internal/middleware"
	"shell-service/internal/model"
	"shell-service/internal/store"
	"shell-service/pkg/logger"
	"shell-service/prometheus"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// BatchQueue is the slice of the batch runner the handler needs
type BatchQueue interface {
	Enqueue(batchID string) error
}

// ShellHandler serves batch submission and status polling
type ShellHandler struct {
	store store.Store
	queue BatchQueue
}

// NewShellHandler creates a ShellHandler
func NewShellHandler(st store.Store, queue BatchQueue) *ShellHandler {
	return &ShellHandler{store: st, queue: queue}
}

// ShellTemplate is one course template in a submission
type ShellTemplate struct {
	Name       string `json:"name"`
	CourseCode string `json:"courseCode"`
	StartDate  string `json:"startDate,omitempty"`
	EndDate    string `json:"endDate,omitempty"`
}

// CreateShellsRequest is the batch submission payload
type CreateShellsRequest struct {
	Shells           []ShellTemplate `json:"shells"`
	SelectedAccounts []string        `json:"selectedAccounts"`
}

// CreateShellsResponse acknowledges a submission before any external
// course has been created
type CreateShellsResponse struct {
	BatchID     string              `json:"batchId"`
	TotalShells int                 `json:"totalShells"`
	Shells      []model.CourseShell `json:"shells"`
}

// parseDate accepts RFC 3339 timestamps and bare dates
func parseDate(value string) (*time.Time, error) {
	if value == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return &t, nil
	}
	t, err := time.Parse("2006-01-02", value)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// Create validates a submission, persists the ledger and one pending
// shell per (account, template) pair, then hands the batch to the runner.
// The response returns immediately; creation happens asynchronously.
func (h *ShellHandler) Create(c echo.Context) error {
	log := logger.FromContext(c)
	user, ok := middleware.CurrentUser(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "authentication required"})
	}

	var req CreateShellsRequest
	if err := c.Bind(&req); err != nil {
		log.Warn("Invalid request data", zap.Error(err))
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request data"})
	}

	// Validate before touching any state
	if len(req.Shells) == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "at least one course template is required"})
	}
	if len(req.SelectedAccounts) == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "at least one account must be selected"})
	}
	for _, accountID := range req.SelectedAccounts {
		if strings.TrimSpace(accountID) == "" {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "account ids must not be empty"})
		}
	}

	type parsedTemplate struct {
		template ShellTemplate
		start    *time.Time
		end      *time.Time
	}
	parsed := make([]parsedTemplate, 0, len(req.Shells))
	for _, template := range req.Shells {
		if strings.TrimSpace(template.Name) == "" {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "course name is required"})
		}
		if strings.TrimSpace(template.CourseCode) == "" {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "course code is required"})
		}
		start, err := parseDate(template.StartDate)
		if err != nil {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid start date: " + template.StartDate})
		}
		end, err := parseDate(template.EndDate)
		if err != nil {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid end date: " + template.EndDate})
		}
		parsed = append(parsed, parsedTemplate{template: template, start: start, end: end})
	}

	batchID := uuid.New().String()
	totalShells := len(req.Shells) * len(req.SelectedAccounts)

	if err := h.store.CreateCreationBatch(&model.CreationBatch{
		BatchID:     batchID,
		UserID:      user.ID,
		TotalShells: totalShells,
		Status:      model.BatchStatusInProgress,
	}); err != nil {
		log.Error("Failed to create batch", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to create batch"})
	}

	// Account-major, template-minor: the runner preserves this order
	shells := make([]model.CourseShell, 0, totalShells)
	for _, accountID := range req.SelectedAccounts {
		for _, p := range parsed {
			shells = append(shells, model.CourseShell{
				Name:            p.template.Name,
				CourseCode:      p.template.CourseCode,
				AccountID:       accountID,
				StartDate:       p.start,
				EndDate:         p.end,
				Status:          model.ShellStatusPending,
				BatchID:         batchID,
				CreatedByUserID: user.ID,
			})
		}
	}

	created, err := h.store.CreateCourseShells(shells)
	if err != nil {
		log.Error("Failed to create course shells", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to create course shells"})
	}

	prometheus.BatchesSubmittedCounter.Inc()
	log.Info("Batch submitted",
		zap.String("batch_id", batchID),
		zap.Int("templates", len(req.Shells)),
		zap.Int("accounts", len(req.SelectedAccounts)),
		zap.Int("total_shells", totalShells))

	if err := h.queue.Enqueue(batchID); err != nil {
		if errors.Is(err, batch.ErrQueueFull) {
			// The batch is persisted and will be recovered on restart
			log.Error("Batch queue full", zap.String("batch_id", batchID))
			return c.JSON(http.StatusServiceUnavailable, echo.Map{
				"error":   "too many batches queued, try again later",
				"batchId": batchID,
			})
		}
		log.Error("Failed to enqueue batch", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to start batch"})
	}

	return c.JSON(http.StatusOK, CreateShellsResponse{
		BatchID:     batchID,
		TotalShells: totalShells,
		Shells:      created,
	})
}

// Status returns the ledger row plus all shells of one batch. Unknown
// batches and batches owned by someone else both return 404.
func (h *ShellHandler) Status(c echo.Context) error {
	log := logger.FromContext(c)
	user, ok := middleware.CurrentUser(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "authentication required"})
	}

	batchID := c.Param("batchId")
	ledger, err := h.store.GetCreationBatch(batchID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "batch not found"})
		}
		log.Error("Failed to fetch batch", zap.String("batch_id", batchID), zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to fetch batch status"})
	}
	if ledger.UserID != user.ID {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "batch not found"})
	}

	shells, err := h.store.GetCourseShellsByBatch(batchID)
	if err != nil {
		log.Error("Failed to fetch batch shells", zap.String("batch_id", batchID), zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to fetch batch status"})
	}

	return c.JSON(http.StatusOK, echo.Map{
		"batch":  ledger,
		"shells": shells,
	})
}

// RecentActivity returns the caller's most recent batches
func (h *ShellHandler) RecentActivity(c echo.Context) error {
	log := logger.FromContext(c)
	user, ok := middleware.CurrentUser(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "authentication required"})
	}

	batches, err := h.store.GetRecentBatches(user.ID, 10)
	if err != nil {
		log.Error("Failed to fetch recent batches", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to fetch recent activity"})
	}
	return c.JSON(http.StatusOK, batches)
}
