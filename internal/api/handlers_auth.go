package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"signalengine/internal/auth"
)

type loginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type loginResponse struct {
	AccessToken string `json:"access_token"`
}

// POST /auth/login. There is a single operator account, per spec's
// Non-goal of multi-user trading isolation.
func (s *Server) handleLogin(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "VALIDATION_ERROR", "message": err.Error()})
		return
	}

	if req.Username != s.loginUser || !auth.VerifyPassword(s.loginHash, req.Password) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "INVALID_CREDENTIALS", "message": "username or password is incorrect"})
		return
	}

	token, err := s.jwt.GenerateToken(auth.UserClaims{UserID: req.Username, Role: "operator"})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "TOKEN_ERROR", "message": "failed to issue access token"})
		return
	}

	c.JSON(http.StatusOK, loginResponse{AccessToken: token})
}
