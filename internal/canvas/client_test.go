package canvas

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"shell-service/pkg/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestClient(srvURL string, tokens TokenSource) *Client {
	cfg := &config.CanvasConfig{
		APIURL:         srvURL,
		RequestTimeout: 2 * time.Second,
	}
	return NewClient(cfg, tokens, zap.NewNop())
}

func TestCreateCourseSendsWrappedPayload(t *testing.T) {
	var captured struct {
		Course struct {
			Name       string `json:"name"`
			CourseCode string `json:"course_code"`
			StartAt    string `json:"start_at"`
			EndAt      string `json:"end_at"`
		} `json:"course"`
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/accounts/42/courses", r.URL.Path)
		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id": 987, "name": "Biology 101", "course_code": "BIO-101", "account_id": 42, "workflow_state": "unpublished"}`))
	}))
	defer srv.Close()

	client := newTestClient(srv.URL, NewStaticTokenSource("test-token"))

	start := time.Date(2026, 1, 12, 0, 0, 0, 0, time.UTC)
	end := time.Date(2026, 5, 22, 0, 0, 0, 0, time.UTC)
	course, err := client.CreateCourse(context.Background(), "42", CourseSpec{
		Name:       "Biology 101",
		CourseCode: "BIO-101",
		StartAt:    &start,
		EndAt:      &end,
	})
	require.NoError(t, err)

	assert.Equal(t, "987", course.ID.String())
	assert.Equal(t, "42", course.AccountID.String())
	assert.Equal(t, "Biology 101", captured.Course.Name)
	assert.Equal(t, "BIO-101", captured.Course.CourseCode)
	assert.Equal(t, "2026-01-12T00:00:00Z", captured.Course.StartAt)
	assert.Equal(t, "2026-05-22T00:00:00Z", captured.Course.EndAt)
}

func TestCreateCourseOmitsEmptyDates(t *testing.T) {
	var body map[string]map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		w.Write([]byte(`{"id": 1}`))
	}))
	defer srv.Close()

	client := newTestClient(srv.URL, NewStaticTokenSource("test-token"))
	_, err := client.CreateCourse(context.Background(), "1", CourseSpec{Name: "Chem", CourseCode: "CHEM-1"})
	require.NoError(t, err)

	_, hasStart := body["course"]["start_at"]
	_, hasEnd := body["course"]["end_at"]
	assert.False(t, hasStart)
	assert.False(t, hasEnd)
}

func TestSubAccounts(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/accounts/1/sub_accounts", r.URL.Path)
		w.Write([]byte(`[{"id": 2, "name": "Science", "parent_account_id": 1, "workflow_state": "active"}, {"id": "3", "name": "Arts", "parent_account_id": "1", "workflow_state": "active"}]`))
	}))
	defer srv.Close()

	client := newTestClient(srv.URL, NewStaticTokenSource("test-token"))
	accounts, err := client.SubAccounts(context.Background(), "1")
	require.NoError(t, err)
	require.Len(t, accounts, 2)

	// Numeric and string ids both decode
	assert.Equal(t, "2", accounts[0].ID.String())
	assert.Equal(t, "3", accounts[1].ID.String())
	require.NotNil(t, accounts[0].ParentAccountID)
	assert.Equal(t, "1", accounts[0].ParentAccountID.String())
}

func TestNon2xxBecomesAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"errors": [{"message": "name is required"}]}`))
	}))
	defer srv.Close()

	client := newTestClient(srv.URL, NewStaticTokenSource("test-token"))
	_, err := client.CreateCourse(context.Background(), "1", CourseSpec{Name: "", CourseCode: "X"})
	require.Error(t, err)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
	assert.Contains(t, apiErr.Body, "name is required")
	assert.False(t, apiErr.Temporary())
}

func TestAPIErrorTemporary(t *testing.T) {
	cases := []struct {
		status    int
		temporary bool
	}{
		{http.StatusBadRequest, false},
		{http.StatusUnauthorized, false},
		{http.StatusNotFound, false},
		{http.StatusTooManyRequests, true},
		{http.StatusInternalServerError, true},
		{http.StatusServiceUnavailable, true},
	}
	for _, tc := range cases {
		err := &APIError{StatusCode: tc.status}
		assert.Equal(t, tc.temporary, err.Temporary(), "status %d", tc.status)
	}
}

// refreshingSource hands out a stale token until Refresh replaces it
type refreshingSource struct {
	mu        sync.Mutex
	current   string
	refreshes int
}

func (s *refreshingSource) Token(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current, nil
}

func (s *refreshingSource) Refresh(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refreshes++
	s.current = "fresh-token"
	return s.current, nil
}

func TestClientRefreshesOnceOn401(t *testing.T) {
	var requests int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		if r.Header.Get("Authorization") != "Bearer fresh-token" {
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte(`{"errors": [{"message": "Invalid access token."}]}`))
			return
		}
		w.Write([]byte(`{"id": 1, "name": "Root", "workflow_state": "active"}`))
	}))
	defer srv.Close()

	source := &refreshingSource{current: "stale-token"}
	client := newTestClient(srv.URL, source)

	account, err := client.RootAccount(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "1", account.ID.String())
	assert.Equal(t, 1, source.refreshes)
	assert.Equal(t, 2, requests)
}

func TestStaticSourceDoesNotRetry401(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	client := newTestClient(srv.URL, NewStaticTokenSource("revoked"))
	_, err := client.RootAccount(context.Background())

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
}

func TestEmptyStaticTokenFailsBeforeTheWire(t *testing.T) {
	client := newTestClient("http://127.0.0.1:0", NewStaticTokenSource(""))
	_, err := client.RootAccount(context.Background())
	assert.ErrorIs(t, err, ErrNoToken)
}

func TestRequestTimeoutBoundsSlowCalls(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(5 * time.Second):
		}
	}))
	defer srv.Close()

	cfg := &config.CanvasConfig{APIURL: srv.URL, RequestTimeout: 50 * time.Millisecond}
	client := NewClient(cfg, NewStaticTokenSource("test-token"), zap.NewNop())

	_, err := client.RootAccount(context.Background())
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrNoToken))
}
