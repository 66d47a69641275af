package obs

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// HealthHandlers exposes endpoints for liveness and readiness checks.
type HealthHandlers struct {
	Ready func() error
	// Online reports live gateway connections; surfaced on readiness for
	// quick inspection of a node's presence load.
	Online func() int
}

func (h HealthHandlers) Livez(c *gin.Context) {
	c.Status(http.StatusOK)
}

func (h HealthHandlers) Readyz(c *gin.Context) {
	if h.Ready != nil {
		if err := h.Ready(); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not ready", "error": err.Error()})
			return
		}
	}
	if h.Online != nil {
		c.JSON(http.StatusOK, gin.H{"status": "ready", "connections": h.Online()})
		return
	}
	c.Status(http.StatusOK)
}
