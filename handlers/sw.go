package handlers

import (
	"net/http"
	"os"

	"github.com/gin-gonic/gin"
)

// ServeServiceWorker serves the service worker script. The script must be
// revalidated on every load and allowed to control the whole origin,
// otherwise a stale worker can pin clients to an old cache version.
func ServeServiceWorker(c *gin.Context) {
	path := os.Getenv("SW_PATH")
	if path == "" {
		path = "web/sw.js"
	}
	c.Header("Cache-Control", "no-cache, no-store, must-revalidate")
	c.Header("Service-Worker-Allowed", "/")
	c.Header("Content-Type", "application/javascript")
	http.ServeFile(c.Writer, c.Request, path)
}
