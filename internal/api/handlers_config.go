package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"signalengine/config"
)

// sessionSnapshotKey is the Redis key under which the session task
// publishes its current analysis config, since there is exactly one
// running session (spec's single cooperative session task, §5).
const sessionSnapshotKey = "default"

const configSnapshotTTL = 10 * time.Minute

// GET /config reads the last config snapshot the session task published,
// without touching the session task directly.
func (s *Server) handleGetConfig(c *gin.Context) {
	var snapshot config.AnalysisDefaultConfig
	ok, err := s.cache.ConfigSnapshot(c.Request.Context(), sessionSnapshotKey, &snapshot)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "CACHE_ERROR", "message": err.Error()})
		return
	}
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "NO_SNAPSHOT", "message": "no session config snapshot is available yet"})
		return
	}
	c.JSON(http.StatusOK, snapshot)
}

// POST /config dispatches an UPDATE_PARAMS control command to the
// running session; it does not mutate session state from the handler.
func (s *Server) handleUpdateConfig(c *gin.Context) {
	var req config.AnalysisDefaultConfig
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "VALIDATION_ERROR", "message": err.Error()})
		return
	}

	if err := s.control.UpdateParams(c.Request.Context(), req); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "CONTROL_ERROR", "message": err.Error()})
		return
	}

	_ = s.cache.PutConfigSnapshot(c.Request.Context(), sessionSnapshotKey, req, configSnapshotTTL)
	c.JSON(http.StatusAccepted, gin.H{"status": "accepted"})
}
