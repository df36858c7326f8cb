package gateway

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

const healthProbeTimeout = 2 * time.Second

// handleHealth reports the gateway's own state plus the agent's, degrading
// instead of failing when the agent is unreachable.
func (s *Server) handleHealth(c *gin.Context) {
	resp := gin.H{
		"status":    "ok",
		"uptime":    time.Since(s.startTime).Round(time.Second).String(),
		"timestamp": time.Now().Format(time.RFC3339),
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), healthProbeTimeout)
	defer cancel()
	if health, err := s.agent.Health(ctx); err != nil {
		resp["status"] = "degraded"
		resp["agent"] = gin.H{"status": "unreachable", "error": err.Error()}
	} else {
		resp["agent"] = gin.H{"status": health.Status, "version": health.Version, "active_model": health.ActiveModel}
	}

	c.JSON(http.StatusOK, resp)
}

// handleReady answers 200 only when the agent service is reachable.
func (s *Server) handleReady(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), healthProbeTimeout)
	defer cancel()
	if _, err := s.agent.Health(ctx); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"ready": false, "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ready": true})
}

func (s *Server) handleLive(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"alive": true})
}
