package canvas

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"shell-service/internal/model"
	"shell-service/internal/store"
	"shell-service/pkg/config"
	"shell-service/prometheus"

	"go.uber.org/zap"
)

// oauthScope is the minimal Canvas scope the service needs: listing
// accounts and creating courses under them.
const oauthScope = "url:GET|/api/v1/accounts url:GET|/api/v1/accounts/*/sub_accounts url:POST|/api/v1/accounts/*/courses"

// expiryBuffer refreshes tokens slightly before Canvas would reject them
const expiryBuffer = 5 * time.Minute

// TokenResponse is the Canvas OAuth token endpoint response
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int    `json:"expires_in"`
	Scope        string `json:"scope"`
	TokenType    string `json:"token_type"`
}

// OAuthManager drives the Canvas OAuth flow and keeps per-user tokens in
// the store. It is constructed once in main and injected where needed.
type OAuthManager struct {
	clientID     string
	clientSecret string
	redirectURI  string
	// canvasURL is the instance root, without the /api/v1 suffix
	canvasURL string
	store     store.Store
	http      *http.Client
	log       *zap.Logger
}

// NewOAuthManager creates an OAuth manager from configuration
func NewOAuthManager(cfg *config.CanvasConfig, st store.Store, log *zap.Logger) *OAuthManager {
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &OAuthManager{
		clientID:     cfg.ClientID,
		clientSecret: cfg.ClientSecret,
		redirectURI:  cfg.RedirectURI,
		canvasURL:    strings.TrimSuffix(cfg.APIURL, "/api/v1"),
		store:        st,
		http:         &http.Client{Timeout: timeout},
		log:          log,
	}
}

// AuthorizationURL builds the Canvas authorization redirect target
func (m *OAuthManager) AuthorizationURL(state string) string {
	params := url.Values{}
	params.Set("client_id", m.clientID)
	params.Set("response_type", "code")
	params.Set("redirect_uri", m.redirectURI)
	params.Set("scope", oauthScope)
	if state != "" {
		params.Set("state", state)
	}
	return fmt.Sprintf("%s/login/oauth2/auth?%s", m.canvasURL, params.Encode())
}

// ExchangeCode exchanges an authorization code for tokens
func (m *OAuthManager) ExchangeCode(ctx context.Context, code string) (*TokenResponse, error) {
	params := url.Values{}
	params.Set("grant_type", "authorization_code")
	params.Set("client_id", m.clientID)
	params.Set("client_secret", m.clientSecret)
	params.Set("redirect_uri", m.redirectURI)
	params.Set("code", code)
	return m.requestToken(ctx, params)
}

// RefreshGrant exchanges a refresh token for a new access token
func (m *OAuthManager) RefreshGrant(ctx context.Context, refreshToken string) (*TokenResponse, error) {
	params := url.Values{}
	params.Set("grant_type", "refresh_token")
	params.Set("client_id", m.clientID)
	params.Set("client_secret", m.clientSecret)
	params.Set("refresh_token", refreshToken)
	return m.requestToken(ctx, params)
}

// StoreTokens persists a token response for a user
func (m *OAuthManager) StoreTokens(userID uint, resp *TokenResponse) (*model.CanvasToken, error) {
	tokenType := resp.TokenType
	if tokenType == "" {
		tokenType = "Bearer"
	}
	refresh := resp.RefreshToken
	if refresh == "" {
		// Canvas omits the refresh token on refresh grants; keep the old one
		if existing, err := m.store.GetCanvasToken(userID); err == nil {
			refresh = existing.RefreshToken
		}
	}
	return m.store.UpsertCanvasToken(&model.CanvasToken{
		UserID:       userID,
		AccessToken:  resp.AccessToken,
		RefreshToken: refresh,
		ExpiresAt:    time.Now().Add(time.Duration(resp.ExpiresIn) * time.Second),
		Scope:        resp.Scope,
		TokenType:    tokenType,
	})
}

// ValidToken returns an access token for the user, refreshing it when it
// is expired or about to expire. A failed refresh deletes the stored
// token so the user is asked to re-authorize.
func (m *OAuthManager) ValidToken(ctx context.Context, userID uint) (string, error) {
	token, err := m.store.GetCanvasToken(userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return "", ErrNoToken
		}
		return "", err
	}

	if !token.ExpiresWithin(expiryBuffer) {
		return token.AccessToken, nil
	}

	m.log.Info("Canvas token expiring, refreshing", zap.Uint("user_id", userID))
	resp, err := m.RefreshGrant(ctx, token.RefreshToken)
	if err != nil {
		prometheus.TokenRefreshCounter.WithLabelValues("failure").Inc()
		m.log.Error("Canvas token refresh failed, discarding token",
			zap.Uint("user_id", userID), zap.Error(err))
		if delErr := m.store.DeleteCanvasToken(userID); delErr != nil {
			m.log.Error("Failed to delete Canvas token", zap.Error(delErr))
		}
		return "", fmt.Errorf("canvas token refresh failed: %w", err)
	}
	prometheus.TokenRefreshCounter.WithLabelValues("success").Inc()

	stored, err := m.StoreTokens(userID, resp)
	if err != nil {
		return "", err
	}
	return stored.AccessToken, nil
}

// Authorized reports whether the user has a stored Canvas token
func (m *OAuthManager) Authorized(userID uint) bool {
	_, err := m.store.GetCanvasToken(userID)
	return err == nil
}

// Revoke revokes the user's token with Canvas and removes it locally.
// The local row is removed even when the remote revocation fails.
func (m *OAuthManager) Revoke(ctx context.Context, userID uint) error {
	token, err := m.store.GetCanvasToken(userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, m.canvasURL+"/login/oauth2/token", nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token.AccessToken)
	if resp, err := m.http.Do(req); err != nil {
		m.log.Warn("Canvas token revocation failed", zap.Uint("user_id", userID), zap.Error(err))
	} else {
		resp.Body.Close()
	}

	return m.store.DeleteCanvasToken(userID)
}

// TokenSource returns a refreshable per-user token source for the client
func (m *OAuthManager) TokenSource(userID uint) RefreshableTokenSource {
	return &userTokenSource{manager: m, userID: userID}
}

// ServiceTokenSource returns a token source backed by whichever user most
// recently authorized Canvas. It backs the service-wide connection used
// when no static API token is configured.
func (m *OAuthManager) ServiceTokenSource() RefreshableTokenSource {
	return &serviceTokenSource{manager: m}
}

func (m *OAuthManager) requestToken(ctx context.Context, params url.Values) (*TokenResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		m.canvasURL+"/login/oauth2/token", strings.NewReader(params.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := m.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode != http.StatusOK {
		return nil, &APIError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	var tokenResp TokenResponse
	if err := json.Unmarshal(body, &tokenResp); err != nil {
		return nil, err
	}
	return &tokenResp, nil
}

// serviceTokenSource resolves the service-wide Canvas connection
type serviceTokenSource struct {
	manager *OAuthManager
}

func (s *serviceTokenSource) resolve() (*userTokenSource, error) {
	token, err := s.manager.store.GetLatestCanvasToken()
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrNoToken
		}
		return nil, err
	}
	return &userTokenSource{manager: s.manager, userID: token.UserID}, nil
}

func (s *serviceTokenSource) Token(ctx context.Context) (string, error) {
	source, err := s.resolve()
	if err != nil {
		return "", err
	}
	return source.Token(ctx)
}

func (s *serviceTokenSource) Refresh(ctx context.Context) (string, error) {
	source, err := s.resolve()
	if err != nil {
		return "", err
	}
	return source.Refresh(ctx)
}

// userTokenSource adapts the OAuth manager to the client's TokenSource
type userTokenSource struct {
	manager *OAuthManager
	userID  uint
}

func (s *userTokenSource) Token(ctx context.Context) (string, error) {
	return s.manager.ValidToken(ctx, s.userID)
}

func (s *userTokenSource) Refresh(ctx context.Context) (string, error) {
	token, err := s.manager.store.GetCanvasToken(s.userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return "", ErrNoToken
		}
		return "", err
	}

	resp, err := s.manager.RefreshGrant(ctx, token.RefreshToken)
	if err != nil {
		prometheus.TokenRefreshCounter.WithLabelValues("failure").Inc()
		if delErr := s.manager.store.DeleteCanvasToken(s.userID); delErr != nil {
			s.manager.log.Error("Failed to delete Canvas token", zap.Error(delErr))
		}
		return "", err
	}
	prometheus.TokenRefreshCounter.WithLabelValues("success").Inc()

	stored, err := s.manager.StoreTokens(s.userID, resp)
	if err != nil {
		return "", err
	}
	return stored.AccessToken, nil
}
