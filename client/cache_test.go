package client

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newCacheOrigin(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/_next/static/app.js", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/javascript")
		io.WriteString(w, "console.log('app')")
	})
	mux.HandleFunc("/api/categories", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"success":true,"data":[{"id":1,"name":"inbox"}]}`)
	})
	mux.HandleFunc("/offline", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		io.WriteString(w, "<html><body>offline page</body></html>")
	})
	mux.HandleFunc("/dashboard", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		io.WriteString(w, "<html><body>dashboard</body></html>")
	})
	return httptest.NewServer(mux)
}

func openTestCache(t *testing.T, path string, srv *httptest.Server, version string) *CacheTransport {
	t.Helper()
	u, err := url.Parse(srv.URL)
	require.NoError(t, err)
	tr, err := OpenCache(path, CacheConfig{
		Version:    version,
		Origin:     u.Host,
		Precache:   []string{"/offline"},
		OfflineURL: "/offline",
	})
	require.NoError(t, err)
	t.Cleanup(func() { tr.Close() })
	return tr
}

func fetch(t *testing.T, tr *CacheTransport, rawURL string, header http.Header) (*http.Response, string) {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, rawURL, nil)
	require.NoError(t, err)
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	resp, err := tr.RoundTrip(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, string(body)
}

func TestCacheStaticServedWhenOffline(t *testing.T) {
	srv := newCacheOrigin(t)
	path := filepath.Join(t.TempDir(), "cache.db")
	tr := openTestCache(t, path, srv, "v1")

	_, body := fetch(t, tr, srv.URL+"/_next/static/app.js", nil)
	assert.Equal(t, "console.log('app')", body)

	srv.Close()

	resp, body := fetch(t, tr, srv.URL+"/_next/static/app.js", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "console.log('app')", body)
	assert.Equal(t, "hit", resp.Header.Get("X-Pillar-Cache"))
}

func TestCacheAPIFallsBackToCachedRead(t *testing.T) {
	srv := newCacheOrigin(t)
	path := filepath.Join(t.TempDir(), "cache.db")
	tr := openTestCache(t, path, srv, "v1")

	resp, live := fetch(t, tr, srv.URL+"/api/categories", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, resp.Header.Get("X-Pillar-Cache"))

	srv.Close()

	resp, cached := fetch(t, tr, srv.URL+"/api/categories", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, live, cached)
	assert.Equal(t, "hit", resp.Header.Get("X-Pillar-Cache"))
}

func TestCacheAPIOfflineUncachedGetsSynthetic503(t *testing.T) {
	srv := newCacheOrigin(t)
	path := filepath.Join(t.TempDir(), "cache.db")
	tr := openTestCache(t, path, srv, "v1")
	srv.Close()

	resp, body := fetch(t, tr, srv.URL+"/api/tasks", nil)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	var payload struct {
		Success bool `json:"success"`
		Error   struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal([]byte(body), &payload))
	assert.False(t, payload.Success)
	assert.Equal(t, "OFFLINE", payload.Error.Code)
}

func TestCacheAuthIsNeverCached(t *testing.T) {
	srv := newCacheOrigin(t)
	path := filepath.Join(t.TempDir(), "cache.db")
	tr := openTestCache(t, path, srv, "v1")
	srv.Close()

	req, err := http.NewRequest(http.MethodGet, srv.URL+"/api/auth/me", nil)
	require.NoError(t, err)
	_, err = tr.RoundTrip(req)
	assert.Error(t, err, "auth requests bypass the cache entirely")
}

func TestCacheNavigationFallsBackToOfflinePage(t *testing.T) {
	srv := newCacheOrigin(t)
	path := filepath.Join(t.TempDir(), "cache.db")
	// Opening while online precaches /offline.
	tr := openTestCache(t, path, srv, "v1")
	srv.Close()

	htmlAccept := http.Header{"Accept": []string{"text/html,application/xhtml+xml"}}
	resp, body := fetch(t, tr, srv.URL+"/dashboard", htmlAccept)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "offline page")
}

func TestCacheNavigationSyntheticWithoutOfflinePage(t *testing.T) {
	srv := newCacheOrigin(t)
	path := filepath.Join(t.TempDir(), "cache.db")
	u, err := url.Parse(srv.URL)
	require.NoError(t, err)
	srv.Close()

	// Opened offline with nothing precached.
	tr, err := OpenCache(path, CacheConfig{Version: "v1", Origin: u.Host})
	require.NoError(t, err)
	defer tr.Close()

	htmlAccept := http.Header{"Accept": []string{"text/html"}}
	resp, body := fetch(t, tr, srv.URL+"/dashboard", htmlAccept)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/html")
	assert.Contains(t, body, "offline")
}

func TestCacheMutationsPassThrough(t *testing.T) {
	srv := newCacheOrigin(t)
	path := filepath.Join(t.TempDir(), "cache.db")
	tr := openTestCache(t, path, srv, "v1")
	srv.Close()

	req, err := http.NewRequest(http.MethodPost, srv.URL+"/api/tasks", strings.NewReader(`{}`))
	require.NoError(t, err)
	_, err = tr.RoundTrip(req)
	assert.Error(t, err, "writes are the queue's job, never served from cache")
}

func TestCacheCrossOriginPassesThrough(t *testing.T) {
	srv := newCacheOrigin(t)
	path := filepath.Join(t.TempDir(), "cache.db")
	tr := openTestCache(t, path, srv, "v1")

	other := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "other origin")
	}))
	defer other.Close()

	_, body := fetch(t, tr, other.URL+"/_next/static/app.js", nil)
	assert.Equal(t, "other origin", body)

	other.Close()
	req, err := http.NewRequest(http.MethodGet, other.URL+"/_next/static/app.js", nil)
	require.NoError(t, err)
	_, err = tr.RoundTrip(req)
	assert.Error(t, err, "foreign hosts are never cached")
}

func TestCachePurgesUnknownVersions(t *testing.T) {
	srv := newCacheOrigin(t)
	path := filepath.Join(t.TempDir(), "cache.db")

	tr := openTestCache(t, path, srv, "v1")
	fetch(t, tr, srv.URL+"/api/categories", nil)
	require.NoError(t, tr.Close())
	srv.Close()

	// Reopening under v1 still serves the stored copy.
	tr = openTestCache(t, path, srv, "v1")
	resp, _ := fetch(t, tr, srv.URL+"/api/categories", nil)
	assert.Equal(t, "hit", resp.Header.Get("X-Pillar-Cache"))
	require.NoError(t, tr.Close())

	// An upgrade to v2 that does not list v1 purges it.
	tr = openTestCache(t, path, srv, "v2")
	require.NoError(t, tr.Close())

	tr = openTestCache(t, path, srv, "v1")
	resp, _ = fetch(t, tr, srv.URL+"/api/categories", nil)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}
