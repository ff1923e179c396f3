package rest

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/royalfresh/freshbridge/internal/auth"
	"github.com/royalfresh/freshbridge/internal/types"
)

// POST /api/v1/auth/login
func (s *Server) login(c *gin.Context) {
	var req struct {
		AccessCode string `json:"access_code" binding:"required"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, types.NewErrorResponse("AUTH_400", "Invalid request body", err.Error()))
		return
	}

	token, err := s.authService.SubmitAccessCode(c.Request.Context(), req.AccessCode)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCode) {
			c.JSON(http.StatusUnauthorized, types.NewErrorResponse("AUTH_401", "Incorrect password. Try again.", ""))
			return
		}
		c.JSON(http.StatusInternalServerError, types.NewErrorResponse("AUTH_500", "Login failed", err.Error()))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"access_token": token,
		"token_type":   "Bearer",
	})
}

// GET /api/v1/auth/gate
func (s *Server) gateStatus(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"unlocked_before": s.authService.GateOpen(c.Request.Context()),
	})
}
