package handler

import (
	"net/http"

	"shell-service/internal/canvas"
	"shell-service/internal/model"
	"shell-service/internal/store"
	"shell-service/pkg/logger"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// AccountHandler serves the Canvas account listing
type AccountHandler struct {
	store      store.Store
	discoverer *canvas.Discoverer
}

// NewAccountHandler creates an AccountHandler
func NewAccountHandler(st store.Store, discoverer *canvas.Discoverer) *AccountHandler {
	return &AccountHandler{store: st, discoverer: discoverer}
}

// List runs account discovery, refreshes the local cache and returns the
// flattened account list. A root fetch failure returns 502 and caches
// nothing; failures below the root only prune subtrees.
func (h *AccountHandler) List(c echo.Context) error {
	log := logger.FromContext(c)
	log.Info("Listing Canvas accounts")

	accounts, err := h.discoverer.Discover(c.Request().Context())
	if err != nil {
		log.Error("Account discovery failed", zap.Error(err))
		return c.JSON(http.StatusBadGateway, echo.Map{
			"error": "failed to fetch accounts from Canvas",
		})
	}

	for _, account := range accounts {
		cached := model.CanvasAccount{
			CanvasID:      account.ID.String(),
			Name:          account.Name,
			WorkflowState: account.WorkflowState,
		}
		if account.ParentAccountID != nil {
			parent := account.ParentAccountID.String()
			cached.ParentAccountID = &parent
		}
		if account.RootAccountID != nil {
			root := account.RootAccountID.String()
			cached.RootAccountID = &root
		}
		if err := h.store.UpsertCanvasAccount(&cached); err != nil {
			log.Error("Failed to cache account",
				zap.String("canvas_id", cached.CanvasID), zap.Error(err))
			return c.JSON(http.StatusInternalServerError, echo.Map{
				"error": "failed to store accounts",
			})
		}
	}

	log.Info("Accounts retrieved successfully", zap.Int("count", len(accounts)))
	return c.JSON(http.StatusOK, accounts)
}
