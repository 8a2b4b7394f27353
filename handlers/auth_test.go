package handlers

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret-test-secret-test-secret!"

func signToken(t *testing.T, secret string, userID int) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"userId": userID,
		"exp":    time.Now().Add(time.Hour).Unix(),
	})
	s, err := token.SignedString([]byte(secret))
	require.NoError(t, err)
	return s
}

func newAuthRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/whoami", AuthMiddleware(testSecret), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"userId": c.GetInt("userId")})
	})
	return r
}

func TestAuthMiddlewareBearerHeader(t *testing.T) {
	r := newAuthRouter()

	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.Header.Set("Authorization", "Bearer "+signToken(t, testSecret, 7))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"userId":7`)
}

func TestAuthMiddlewareQueryToken(t *testing.T) {
	r := newAuthRouter()

	// EventSource cannot set headers, so the token may ride the query string.
	req := httptest.NewRequest(http.MethodGet, "/whoami?token="+signToken(t, testSecret, 7), nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"userId":7`)
}

func TestAuthMiddlewareRejections(t *testing.T) {
	r := newAuthRouter()

	cases := []struct {
		name   string
		header string
		query  string
	}{
		{name: "missing token"},
		{name: "malformed header", header: "Token abc"},
		{name: "wrong secret", header: "Bearer " + signToken(t, "wrong-secret-wrong-secret-wrong!!", 7)},
		{name: "garbage query token", query: "?token=not-a-jwt"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/whoami"+tc.query, nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			assert.Equal(t, http.StatusUnauthorized, w.Code)
		})
	}
}

func TestServeServiceWorkerHeaders(t *testing.T) {
	dir := t.TempDir()
	swPath := filepath.Join(dir, "sw.js")
	require.NoError(t, os.WriteFile(swPath, []byte("self.addEventListener('install', () => {});"), 0o644))
	t.Setenv("SW_PATH", swPath)

	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/sw.js", ServeServiceWorker)

	req := httptest.NewRequest(http.MethodGet, "/sw.js", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "no-cache, no-store, must-revalidate", w.Header().Get("Cache-Control"))
	assert.Equal(t, "/", w.Header().Get("Service-Worker-Allowed"))
	assert.Contains(t, w.Header().Get("Content-Type"), "javascript")
	assert.Contains(t, w.Body.String(), "install")
}
