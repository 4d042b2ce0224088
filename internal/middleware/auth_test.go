package middleware

import (
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"shell-service/internal/model"
	"shell-service/internal/store"
	"shell-service/pkg/config"
	"shell-service/pkg/jwtutil"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	jwtutil.Initialize(&config.JWTConfig{SigningKey: "test-signing-key", ExpirationTime: time.Hour})
	os.Exit(m.Run())
}

// invoke runs the auth middleware around a handler that echoes the
// resolved user id
func invoke(t *testing.T, st store.Store, authHeader string) *httptest.ResponseRecorder {
	t.Helper()
	handler := Auth(st)(func(c echo.Context) error {
		user, ok := CurrentUser(c)
		require.True(t, ok)
		return c.JSON(http.StatusOK, echo.Map{"user_id": user.ID})
	})

	req := httptest.NewRequest(http.MethodGet, "/api/auth/me", nil)
	if authHeader != "" {
		req.Header.Set("Authorization", authHeader)
	}
	rec := httptest.NewRecorder()
	c := echo.New().NewContext(req, rec)
	require.NoError(t, handler(c))
	return rec
}

func sessionFor(t *testing.T, st store.Store, ttl time.Duration) (*model.User, string) {
	t.Helper()
	user, err := st.UpsertUser(&model.User{OktaID: "okta-1", Email: "a@example.edu"})
	require.NoError(t, err)

	session := &model.UserSession{UserID: user.ID, ExpiresAt: time.Now().Add(ttl)}
	require.NoError(t, st.CreateUserSession(session))

	token, err := jwtutil.GenerateToken(user.Email, user.ID, session.SessionToken)
	require.NoError(t, err)
	return user, token
}

func TestAuthAcceptsValidSession(t *testing.T) {
	st := store.NewMemoryStore()
	_, token := sessionFor(t, st, time.Hour)

	rec := invoke(t, st, "Bearer "+token)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"user_id"`)
}

func TestAuthRejectsMissingOrMalformedHeader(t *testing.T) {
	st := store.NewMemoryStore()

	cases := []struct {
		name   string
		header string
	}{
		{"no header", ""},
		{"not bearer", "Basic dXNlcjpwYXNz"},
		{"missing token", "Bearer"},
		{"garbage token", "Bearer not.a.jwt"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := invoke(t, st, tc.header)
			assert.Equal(t, http.StatusUnauthorized, rec.Code)
		})
	}
}

func TestAuthRejectsUnknownSession(t *testing.T) {
	st := store.NewMemoryStore()
	user, err := st.UpsertUser(&model.User{OktaID: "okta-1", Email: "a@example.edu"})
	require.NoError(t, err)

	// Valid JWT, but the session row it names was never stored
	token, err := jwtutil.GenerateToken(user.Email, user.ID, "revoked-session")
	require.NoError(t, err)

	rec := invoke(t, st, "Bearer "+token)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "session not found")
}

func TestAuthRejectsExpiredSession(t *testing.T) {
	st := store.NewMemoryStore()
	_, token := sessionFor(t, st, -time.Minute)

	rec := invoke(t, st, "Bearer "+token)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "session expired")
}
