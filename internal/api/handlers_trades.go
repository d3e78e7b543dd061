package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

const defaultTradeHistoryLimit = 50

// GET /trades?limit=N.
func (s *Server) handleGetTrades(c *gin.Context) {
	limit := defaultTradeHistoryLimit
	if raw := c.Query("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	trades, err := s.sink.RecentTrades(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "PERSISTENCE_ERROR", "message": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"trades": trades})
}
