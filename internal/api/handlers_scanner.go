package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// POST /scanner/start.
func (s *Server) handleScannerStart(c *gin.Context) {
	if err := s.scanner.Start(c.Request.Context()); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "SCANNER_ERROR", "message": err.Error()})
		return
	}
	c.JSON(http.StatusOK, s.scanner.Status())
}

// POST /scanner/stop.
func (s *Server) handleScannerStop(c *gin.Context) {
	s.scanner.Stop()
	c.JSON(http.StatusOK, s.scanner.Status())
}
