package handler

import (
	"net/http"
	"time"

	"shell-service/internal/canvas"
	"shell-service/internal/middleware"
	"shell-service/internal/model"
	"shell-service/internal/store"
	"shell-service/pkg/config"
	"shell-service/pkg/jwtutil"
	"shell-service/pkg/logger"
	"shell-service/prometheus"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// AuthHandler serves login, the Okta callback and the Canvas OAuth flow
type AuthHandler struct {
	store store.Store
	auth  config.AuthConfig
	oauth *canvas.OAuthManager
}

// NewAuthHandler creates an AuthHandler
func NewAuthHandler(st store.Store, auth config.AuthConfig, oauth *canvas.OAuthManager) *AuthHandler {
	return &AuthHandler{store: st, auth: auth, oauth: oauth}
}

// LoginResponse is returned on successful authentication
type LoginResponse struct {
	User      *model.User `json:"user"`
	Token     string      `json:"token"`
	ExpiresAt time.Time   `json:"expiresAt"`
}

// issueSession creates a session row and a JWT wrapping it
func (h *AuthHandler) issueSession(user *model.User) (*LoginResponse, error) {
	expiresAt := time.Now().Add(h.auth.SessionTTL)
	session := &model.UserSession{
		UserID:    user.ID,
		ExpiresAt: expiresAt,
	}
	if err := h.store.CreateUserSession(session); err != nil {
		return nil, err
	}

	token, err := jwtutil.GenerateToken(user.Email, user.ID, session.SessionToken)
	if err != nil {
		return nil, err
	}
	return &LoginResponse{User: user, Token: token, ExpiresAt: expiresAt}, nil
}

// Login authenticates against the configured admin credentials
func (h *AuthHandler) Login(c echo.Context) error {
	log := logger.FromContext(c)
	prometheus.AuthAttemptsCounter.Inc()

	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := c.Bind(&req); err != nil {
		prometheus.RecordAuthError("invalid_request")
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request"})
	}
	if req.Username == "" || req.Password == "" {
		prometheus.RecordAuthError("missing_credentials")
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "username and password are required"})
	}

	if h.auth.AdminPasswordHash == "" {
		log.Warn("Password login attempted but no admin password is configured")
		prometheus.RecordAuthError("login_disabled")
		return c.JSON(http.StatusServiceUnavailable, echo.Map{"error": "password login is not configured"})
	}

	if req.Username != h.auth.AdminUsername ||
		bcrypt.CompareHashAndPassword([]byte(h.auth.AdminPasswordHash), []byte(req.Password)) != nil {
		log.Warn("Invalid credentials", zap.String("username", req.Username))
		prometheus.RecordAuthError("invalid_credentials")
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid credentials"})
	}

	user, err := h.store.UpsertUser(&model.User{
		OktaID:    "local-" + req.Username,
		Email:     req.Username + "@localhost",
		FirstName: "Admin",
		LastName:  "User",
	})
	if err != nil {
		log.Error("Failed to upsert admin user", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "login failed"})
	}

	resp, err := h.issueSession(user)
	if err != nil {
		log.Error("Failed to issue session", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "login failed"})
	}

	log.Info("User logged in", zap.Uint("user_id", user.ID))
	return c.JSON(http.StatusOK, resp)
}

// OktaCallback upserts a user from verified Okta claims and issues a
// session. The fronting proxy has already verified the OIDC exchange.
func (h *AuthHandler) OktaCallback(c echo.Context) error {
	log := logger.FromContext(c)
	prometheus.AuthAttemptsCounter.Inc()

	var req struct {
		OktaID    string `json:"oktaId"`
		Email     string `json:"email"`
		FirstName string `json:"firstName"`
		LastName  string `json:"lastName"`
	}
	if err := c.Bind(&req); err != nil {
		prometheus.RecordAuthError("invalid_request")
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request"})
	}
	if req.OktaID == "" || req.Email == "" {
		prometheus.RecordAuthError("missing_claims")
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "oktaId and email are required"})
	}

	user, err := h.store.UpsertUser(&model.User{
		OktaID:    req.OktaID,
		Email:     req.Email,
		FirstName: req.FirstName,
		LastName:  req.LastName,
	})
	if err != nil {
		log.Error("Failed to upsert user", zap.String("okta_id", req.OktaID), zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "authentication failed"})
	}

	resp, err := h.issueSession(user)
	if err != nil {
		log.Error("Failed to issue session", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "authentication failed"})
	}

	log.Info("Okta user authenticated",
		zap.Uint("user_id", user.ID), zap.String("okta_id", user.OktaID))
	return c.JSON(http.StatusOK, resp)
}

// Me returns the authenticated user
func (h *AuthHandler) Me(c echo.Context) error {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "authentication required"})
	}
	return c.JSON(http.StatusOK, user)
}

// CanvasAuthorize returns the Canvas OAuth authorization URL. The session
// JWT rides along as state so the callback can attribute the code.
func (h *AuthHandler) CanvasAuthorize(c echo.Context) error {
	_, ok := middleware.CurrentUser(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "authentication required"})
	}

	state := ""
	authHeader := c.Request().Header.Get("Authorization")
	if len(authHeader) > 7 {
		state = authHeader[7:]
	}
	return c.JSON(http.StatusOK, echo.Map{"url": h.oauth.AuthorizationURL(state)})
}

// CanvasCallback finishes the Canvas OAuth flow for the user named by state
func (h *AuthHandler) CanvasCallback(c echo.Context) error {
	log := logger.FromContext(c)

	code := c.QueryParam("code")
	if code == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "missing authorization code"})
	}

	claims, err := jwtutil.ValidateToken(c.QueryParam("state"))
	if err != nil {
		log.Warn("Canvas callback with invalid state", zap.Error(err))
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid state"})
	}

	resp, err := h.oauth.ExchangeCode(c.Request().Context(), code)
	if err != nil {
		log.Error("Canvas code exchange failed", zap.Error(err))
		return c.JSON(http.StatusBadGateway, echo.Map{"error": "canvas authorization failed"})
	}

	if _, err := h.oauth.StoreTokens(claims.UserID, resp); err != nil {
		log.Error("Failed to store Canvas tokens", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to store canvas tokens"})
	}

	log.Info("Canvas authorized", zap.Uint("user_id", claims.UserID))
	return c.JSON(http.StatusOK, echo.Map{"message": "canvas authorization complete"})
}

// CanvasStatus reports whether the caller has authorized Canvas access
func (h *AuthHandler) CanvasStatus(c echo.Context) error {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "authentication required"})
	}
	return c.JSON(http.StatusOK, echo.Map{"authorized": h.oauth.Authorized(user.ID)})
}

// CanvasRevoke revokes and deletes the caller's Canvas token
func (h *AuthHandler) CanvasRevoke(c echo.Context) error {
	log := logger.FromContext(c)
	user, ok := middleware.CurrentUser(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "authentication required"})
	}

	if err := h.oauth.Revoke(c.Request().Context(), user.ID); err != nil {
		log.Error("Failed to revoke Canvas token", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to revoke canvas access"})
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "canvas access revoked"})
}
