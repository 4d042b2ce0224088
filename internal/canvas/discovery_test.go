package canvas

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"shell-service/pkg/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fakeHierarchy serves /accounts/self and /accounts/{id}/sub_accounts from
// a parent-to-children map. Ids listed in failing return a 500.
func fakeHierarchy(root string, children map[string][]string, failing map[string]bool) *httptest.Server {
	account := func(id string) map[string]interface{} {
		return map[string]interface{}{
			"id":             id,
			"name":           "Account " + id,
			"workflow_state": "active",
		}
	}

	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if r.URL.Path == "/accounts/self" {
			if failing[root] {
				w.WriteHeader(http.StatusInternalServerError)
				return
			}
			json.NewEncoder(w).Encode(account(root))
			return
		}

		parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
		if len(parts) != 3 || parts[0] != "accounts" || parts[2] != "sub_accounts" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		id := parts[1]
		if failing[id+"/sub_accounts"] {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		out := make([]map[string]interface{}, 0)
		for _, child := range children[id] {
			out = append(out, account(child))
		}
		json.NewEncoder(w).Encode(out)
	}))
}

func newTestDiscoverer(srvURL string, maxDepth, concurrency int) *Discoverer {
	client := NewClient(&config.CanvasConfig{
		APIURL:         srvURL,
		RequestTimeout: 2 * time.Second,
	}, NewStaticTokenSource("test-token"), zap.NewNop())
	return NewDiscoverer(client, &config.DiscoveryConfig{
		MaxDepth:    maxDepth,
		Concurrency: concurrency,
	}, zap.NewNop())
}

func accountIDs(accounts []Account) []string {
	ids := make([]string, 0, len(accounts))
	for _, a := range accounts {
		ids = append(ids, a.ID.String())
	}
	return ids
}

func TestDiscoverWalksWholeTree(t *testing.T) {
	srv := fakeHierarchy("1", map[string][]string{
		"1": {"2", "3"},
		"2": {"4", "5"},
		"3": {"6"},
	}, nil)
	defer srv.Close()

	d := newTestDiscoverer(srv.URL, 5, 4)
	accounts, err := d.Discover(context.Background())
	require.NoError(t, err)

	// Root first, then each level in parent order
	assert.Equal(t, []string{"1", "2", "3", "4", "5", "6"}, accountIDs(accounts))
}

func TestDiscoverStopsAtMaxDepth(t *testing.T) {
	// A chain deeper than the limit: 1 -> 2 -> 3 -> 4 -> 5
	srv := fakeHierarchy("1", map[string][]string{
		"1": {"2"},
		"2": {"3"},
		"3": {"4"},
		"4": {"5"},
	}, nil)
	defer srv.Close()

	d := newTestDiscoverer(srv.URL, 1, 2)
	accounts, err := d.Discover(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"1", "2", "3"}, accountIDs(accounts))
}

func TestDiscoverPrunesFailedSubtrees(t *testing.T) {
	srv := fakeHierarchy("1", map[string][]string{
		"1": {"2", "3"},
		"2": {"4"},
		"3": {"5"},
	}, map[string]bool{"2/sub_accounts": true})
	defer srv.Close()

	d := newTestDiscoverer(srv.URL, 5, 4)
	accounts, err := d.Discover(context.Background())
	require.NoError(t, err)

	// Account 2 itself is kept, its descendants are not; the sibling
	// subtree under 3 is unaffected
	assert.Equal(t, []string{"1", "2", "3", "5"}, accountIDs(accounts))
}

func TestDiscoverRootFailureIsFatal(t *testing.T) {
	srv := fakeHierarchy("1", nil, map[string]bool{"1": true})
	defer srv.Close()

	d := newTestDiscoverer(srv.URL, 5, 4)
	accounts, err := d.Discover(context.Background())
	require.Error(t, err)
	assert.Nil(t, accounts)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusInternalServerError, apiErr.StatusCode)
}

func TestDiscoverBoundsConcurrentFetches(t *testing.T) {
	const width = 8
	children := map[string][]string{"1": {}}
	for i := 0; i < width; i++ {
		children["1"] = append(children["1"], fmt.Sprintf("c%d", i))
	}

	var inFlight, peak int32
	var mu sync.Mutex
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if r.URL.Path == "/accounts/self" {
			w.Write([]byte(`{"id": "1", "name": "Root", "workflow_state": "active"}`))
			return
		}
		mu.Lock()
		inFlight++
		if inFlight > peak {
			peak = inFlight
		}
		mu.Unlock()
		time.Sleep(20 * time.Millisecond)
		mu.Lock()
		inFlight--
		mu.Unlock()

		if r.URL.Path == "/accounts/1/sub_accounts" {
			out := make([]map[string]interface{}, 0, width)
			for _, child := range children["1"] {
				out = append(out, map[string]interface{}{"id": child, "name": child, "workflow_state": "active"})
			}
			json.NewEncoder(w).Encode(out)
			return
		}
		w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	d := newTestDiscoverer(srv.URL, 2, 2)
	_, err := d.Discover(context.Background())
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	assert.LessOrEqual(t, peak, int32(2))
}
