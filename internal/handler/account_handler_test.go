package handler

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"shell-service/internal/canvas"
	"shell-service/internal/model"
	"shell-service/internal/store"
	"shell-service/pkg/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestDiscoverer(srvURL string) *canvas.Discoverer {
	client := canvas.NewClient(&config.CanvasConfig{
		APIURL:         srvURL,
		RequestTimeout: 2 * time.Second,
	}, canvas.NewStaticTokenSource("test-token"), zap.NewNop())
	return canvas.NewDiscoverer(client, &config.DiscoveryConfig{MaxDepth: 5, Concurrency: 2}, zap.NewNop())
}

func TestListAccountsReturnsAndCachesTree(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/accounts/self":
			w.Write([]byte(`{"id": 1, "name": "University", "workflow_state": "active"}`))
		case "/accounts/1/sub_accounts":
			w.Write([]byte(`[{"id": 2, "name": "Science", "parent_account_id": 1, "root_account_id": 1, "workflow_state": "active"}]`))
		default:
			w.Write([]byte(`[]`))
		}
	}))
	defer srv.Close()

	st := store.NewMemoryStore()
	h := NewAccountHandler(st, newTestDiscoverer(srv.URL))

	c, rec := newRequestContext(t, http.MethodGet, "/api/accounts", nil)
	authedUser(t, st, c, "okta-1")
	require.NoError(t, h.List(c))
	require.Equal(t, http.StatusOK, rec.Code)

	var accounts []canvas.Account
	decodeBody(t, rec, &accounts)
	require.Len(t, accounts, 2)
	assert.Equal(t, "1", accounts[0].ID.String())
	assert.Equal(t, "2", accounts[1].ID.String())

	cached, err := st.ListCanvasAccounts()
	require.NoError(t, err)
	require.Len(t, cached, 2)
	assert.Equal(t, "University", cached[0].Name)
	require.NotNil(t, cached[1].ParentAccountID)
	assert.Equal(t, "1", *cached[1].ParentAccountID)
}

func TestListAccountsRootFailureIs502(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	st := store.NewMemoryStore()
	h := NewAccountHandler(st, newTestDiscoverer(srv.URL))

	c, rec := newRequestContext(t, http.MethodGet, "/api/accounts", nil)
	authedUser(t, st, c, "okta-1")
	require.NoError(t, h.List(c))
	assert.Equal(t, http.StatusBadGateway, rec.Code)

	// Nothing cached on a failed discovery
	cached, err := st.ListCanvasAccounts()
	require.NoError(t, err)
	assert.Empty(t, cached)
}

func TestListAccountsRefreshesStaleCacheEntries(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if r.URL.Path == "/accounts/self" {
			w.Write([]byte(`{"id": 1, "name": "Renamed University", "workflow_state": "active"}`))
			return
		}
		w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	st := store.NewMemoryStore()
	require.NoError(t, st.UpsertCanvasAccount(&model.CanvasAccount{
		CanvasID:      "1",
		Name:          "University",
		WorkflowState: "active",
	}))
	h := NewAccountHandler(st, newTestDiscoverer(srv.URL))

	c, rec := newRequestContext(t, http.MethodGet, "/api/accounts", nil)
	authedUser(t, st, c, "okta-1")
	require.NoError(t, h.List(c))
	require.Equal(t, http.StatusOK, rec.Code)

	cached, err := st.ListCanvasAccounts()
	require.NoError(t, err)
	require.Len(t, cached, 1)
	assert.Equal(t, "Renamed University", cached[0].Name)
}
