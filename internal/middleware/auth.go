package middleware

import (
	"errors"
	"net/http"
	"strings"

	"shell-service/internal/model"
	"shell-service/internal/store"
	"shell-service/pkg/jwtutil"
	"shell-service/pkg/logger"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// UserContextKey is where the auth middleware stores the current user
const UserContextKey = "current_user"

// Auth validates the bearer session token and loads the user onto the
// request context. The JWT must carry a session that still exists and has
// not expired.
func Auth(st store.Store) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			log := logger.FromContext(c)

			// Get the Authorization header
			authHeader := c.Request().Header.Get("Authorization")
			if authHeader == "" {
				log.Warn("Missing Authorization header")
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "missing authorization token"})
			}

			// Check if it's a Bearer token
			parts := strings.Split(authHeader, " ")
			if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
				log.Warn("Invalid Authorization header format")
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid authorization format, expected Bearer token"})
			}

			// Validate the token
			claims, err := jwtutil.ValidateToken(parts[1])
			if err != nil {
				log.Warn("Invalid session token", zap.Error(err))
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid or expired token"})
			}

			// The session row must still exist and be current
			session, err := st.GetUserSessionByToken(claims.SessionToken)
			if err != nil {
				if errors.Is(err, store.ErrNotFound) {
					log.Warn("Session not found", zap.Uint("user_id", claims.UserID))
					return c.JSON(http.StatusUnauthorized, echo.Map{"error": "session not found"})
				}
				log.Error("Failed to load session", zap.Error(err))
				return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to validate session"})
			}
			if session.IsExpired() {
				log.Warn("Session expired", zap.Uint("user_id", session.UserID))
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "session expired"})
			}

			user, err := st.GetUser(session.UserID)
			if err != nil {
				log.Error("Failed to load session user",
					zap.Uint("user_id", session.UserID), zap.Error(err))
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unknown user"})
			}

			c.Set(UserContextKey, user)
			return next(c)
		}
	}
}

// CurrentUser retrieves the authenticated user from the context
func CurrentUser(c echo.Context) (*model.User, bool) {
	user, ok := c.Get(UserContextKey).(*model.User)
	return user, ok
}
