package rest

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/royalfresh/freshbridge/internal/types"
	"go.uber.org/zap"
)

// GET /api/v1/grades
func (s *Server) listGrades(c *gin.Context) {
	profiles, err := s.lm.Grades().LoadAll()
	if err != nil {
		s.logger.Error("Failed to load grade profiles", zap.Error(err))
		c.JSON(http.StatusInternalServerError, types.NewErrorResponse("GRADE_500", "Failed to load grade profiles", err.Error()))
		return
	}
	c.JSON(http.StatusOK, gin.H{"grades": profiles})
}
