package client

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"pillar-api/types"

	_ "github.com/mattn/go-sqlite3"
)

// CacheConfig configures the read-cache transport.
type CacheConfig struct {
	// Version namespaces every stored entry. Opening a cache purges all
	// entries from versions outside KnownVersions.
	Version       string
	KnownVersions []string

	// Origin is the host (host[:port]) the cache applies to. Requests to
	// any other host pass straight through.
	Origin string

	// Precache lists paths fetched and stored eagerly at open, the
	// offline fallback page among them.
	Precache   []string
	OfflineURL string

	Base http.RoundTripper
}

// CacheTransport applies the frontend's per-route caching strategy to
// same-origin GETs: static assets are served cache-first with a background
// revalidation, API reads and navigations are network-first with a cached
// (or synthetic) fallback when the network is gone. Everything mutating or
// cross-origin passes through untouched, and any internal cache error
// degrades to a plain network round trip.
type CacheTransport struct {
	db  *sql.DB
	cfg CacheConfig
}

var staticPrefixes = []string{"/_next/static/", "/icons/", "/fonts/"}

// OpenCache opens the durable response cache at path and primes the
// precache manifest. Precache fetch failures are tolerated: when opened
// offline the previous version's entries may already cover the manifest.
func OpenCache(path string, cfg CacheConfig) (*CacheTransport, error) {
	if cfg.Base == nil {
		cfg.Base = http.DefaultTransport
	}
	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, err
	}
	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS cache_entry (
			version   TEXT NOT NULL,
			url       TEXT NOT NULL,
			status    INTEGER NOT NULL,
			header    TEXT NOT NULL,
			body      BLOB,
			stored_at INTEGER NOT NULL,
			PRIMARY KEY (version, url)
		)
	`)
	if err != nil {
		db.Close()
		return nil, err
	}

	t := &CacheTransport{db: db, cfg: cfg}
	t.purgeStale()
	t.precache()
	return t, nil
}

func (t *CacheTransport) Close() error {
	return t.db.Close()
}

// purgeStale drops every cache version not in the known set, the activate
// step of the lifecycle.
func (t *CacheTransport) purgeStale() {
	keep := append([]string{t.cfg.Version}, t.cfg.KnownVersions...)
	args := make([]any, len(keep))
	marks := make([]string, len(keep))
	for i, v := range keep {
		args[i] = v
		marks[i] = "?"
	}
	_, err := t.db.Exec(`DELETE FROM cache_entry WHERE version NOT IN (`+strings.Join(marks, ",")+`)`, args...)
	if err != nil {
		slog.Warn("cache purge failed", "err", err)
	}
}

func (t *CacheTransport) precache() {
	for _, p := range t.cfg.Precache {
		req, err := http.NewRequest(http.MethodGet, "http://"+t.cfg.Origin+p, nil)
		if err != nil {
			continue
		}
		resp, err := t.cfg.Base.RoundTrip(req)
		if err != nil {
			slog.Debug("precache fetch failed", "path", p, "err", err)
			continue
		}
		t.store(req, resp)
		resp.Body.Close()
	}
}

// RoundTrip implements http.RoundTripper.
func (t *CacheTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Method != http.MethodGet || req.URL.Host != t.cfg.Origin {
		return t.cfg.Base.RoundTrip(req)
	}
	path := req.URL.Path
	switch {
	case strings.HasPrefix(path, "/api/auth/"):
		return t.cfg.Base.RoundTrip(req)
	case isStaticPath(path):
		return t.cacheFirst(req)
	case strings.HasPrefix(path, "/api/"):
		return t.networkFirst(req, t.apiFallback)
	case isNavigation(req):
		return t.networkFirst(req, t.navigationFallback)
	default:
		return t.cfg.Base.RoundTrip(req)
	}
}

func isStaticPath(path string) bool {
	for _, p := range staticPrefixes {
		if strings.HasPrefix(path, p) {
			return true
		}
	}
	return false
}

func isNavigation(req *http.Request) bool {
	return strings.Contains(req.Header.Get("Accept"), "text/html")
}

// cacheFirst serves a stored copy immediately and revalidates in the
// background; on a miss it goes to the network and fills the cache.
func (t *CacheTransport) cacheFirst(req *http.Request) (*http.Response, error) {
	if cached := t.lookup(req); cached != nil {
		go t.revalidate(req.Clone(req.Context()))
		return cached, nil
	}
	resp, err := t.cfg.Base.RoundTrip(req)
	if err != nil {
		return nil, err
	}
	t.store(req, resp)
	return resp, nil
}

func (t *CacheTransport) revalidate(req *http.Request) {
	resp, err := t.cfg.Base.RoundTrip(req)
	if err != nil {
		return
	}
	t.store(req, resp)
	resp.Body.Close()
}

// networkFirst tries the network and falls back when it is unreachable.
func (t *CacheTransport) networkFirst(req *http.Request, fallback func(*http.Request) *http.Response) (*http.Response, error) {
	resp, err := t.cfg.Base.RoundTrip(req)
	if err == nil {
		t.store(req, resp)
		return resp, nil
	}
	if cached := t.lookup(req); cached != nil {
		return cached, nil
	}
	return fallback(req), nil
}

func (t *CacheTransport) apiFallback(req *http.Request) *http.Response {
	body, _ := json.Marshal(map[string]any{
		"success": false,
		"error":   map[string]string{"code": types.ErrorCodeOffline, "message": "You are offline and this data is not cached"},
	})
	return syntheticResponse(req, http.StatusServiceUnavailable, "application/json", body)
}

func (t *CacheTransport) navigationFallback(req *http.Request) *http.Response {
	if t.cfg.OfflineURL != "" {
		if cached := t.lookupURL(req, "http://"+t.cfg.Origin+t.cfg.OfflineURL); cached != nil {
			return cached
		}
	}
	return syntheticResponse(req, http.StatusServiceUnavailable, "text/html; charset=utf-8", []byte("<html><body>offline</body></html>"))
}

func syntheticResponse(req *http.Request, status int, contentType string, body []byte) *http.Response {
	return &http.Response{
		StatusCode:    status,
		Status:        http.StatusText(status),
		Header:        http.Header{"Content-Type": []string{contentType}},
		Body:          io.NopCloser(bytes.NewReader(body)),
		ContentLength: int64(len(body)),
		Request:       req,
	}
}

// store caches a successful response body under the current version and
// rewinds the response so the caller can still read it. Errors only get
// logged: a broken cache must never break the request that filled it.
func (t *CacheTransport) store(req *http.Request, resp *http.Response) {
	if resp.StatusCode != http.StatusOK {
		return
	}
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	resp.Body = io.NopCloser(bytes.NewReader(body))
	if err != nil {
		return
	}
	header, err := json.Marshal(resp.Header)
	if err != nil {
		return
	}
	_, err = t.db.Exec(`
		INSERT INTO cache_entry (version, url, status, header, body, stored_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (version, url) DO UPDATE SET
			status = excluded.status, header = excluded.header,
			body = excluded.body, stored_at = excluded.stored_at
	`, t.cfg.Version, req.URL.String(), resp.StatusCode, string(header), body, time.Now().UnixMilli())
	if err != nil {
		slog.Warn("cache store failed", "url", req.URL.String(), "err", err)
	}
}

func (t *CacheTransport) lookup(req *http.Request) *http.Response {
	return t.lookupURL(req, req.URL.String())
}

func (t *CacheTransport) lookupURL(req *http.Request, url string) *http.Response {
	var status int
	var headerRaw string
	var body []byte
	err := t.db.QueryRow(`
		SELECT status, header, body FROM cache_entry
		WHERE version = ? AND url = ?
	`, t.cfg.Version, url).Scan(&status, &headerRaw, &body)
	if err != nil {
		return nil
	}
	header := http.Header{}
	if err := json.Unmarshal([]byte(headerRaw), &header); err != nil {
		return nil
	}
	header.Set("X-Pillar-Cache", "hit")
	return &http.Response{
		StatusCode:    status,
		Status:        http.StatusText(status),
		Header:        header,
		Body:          io.NopCloser(bytes.NewReader(body)),
		ContentLength: int64(len(body)),
		Request:       req,
	}
}
