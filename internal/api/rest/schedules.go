package rest

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/royalfresh/freshbridge/internal/dispatch"
	"github.com/royalfresh/freshbridge/internal/schedule"
	"github.com/royalfresh/freshbridge/internal/types"
	"go.uber.org/zap"
)

// GET /api/v1/schedules
func (s *Server) listSchedules(c *gin.Context) {
	schedules, err := s.lm.Schedules().List(c.Request.Context())
	if err != nil {
		s.logger.Error("Failed to list schedules", zap.Error(err))
		c.JSON(http.StatusInternalServerError, types.NewErrorResponse("SCHEDULE_500", "Failed to load schedules", err.Error()))
		return
	}
	c.JSON(http.StatusOK, gin.H{"schedules": schedules})
}

// POST /api/v1/schedules
func (s *Server) createSchedule(c *gin.Context) {
	form, ok := s.bindScheduleForm(c)
	if !ok {
		return
	}

	res := <-s.lm.Schedules().Insert(form.Build(0))
	if res.Err != nil {
		c.JSON(http.StatusInternalServerError, types.NewErrorResponse("SCHEDULE_500", "Failed to save schedule", res.Err.Error()))
		return
	}

	c.JSON(http.StatusCreated, gin.H{"id": res.ID})
}

// PUT /api/v1/schedules/:id
func (s *Server) updateSchedule(c *gin.Context) {
	id, ok := s.scheduleID(c)
	if !ok {
		return
	}
	form, ok := s.bindScheduleForm(c)
	if !ok {
		return
	}

	// Build always yields an off row, so an edit never keeps a timer active.
	res := <-s.lm.Schedules().Update(form.Build(id))
	if res.Err != nil {
		c.JSON(http.StatusInternalServerError, types.NewErrorResponse("SCHEDULE_500", "Failed to save schedule", res.Err.Error()))
		return
	}

	c.JSON(http.StatusOK, gin.H{"id": id})
}

// DELETE /api/v1/schedules/:id
func (s *Server) deleteSchedule(c *gin.Context) {
	id, ok := s.scheduleID(c)
	if !ok {
		return
	}

	res := <-s.lm.Schedules().Delete(id)
	if res.Err != nil {
		c.JSON(http.StatusInternalServerError, types.NewErrorResponse("SCHEDULE_500", "Failed to delete schedule", res.Err.Error()))
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "schedule deleted"})
}

// POST /api/v1/schedules/:id/toggle
func (s *Server) toggleSchedule(c *gin.Context) {
	id, ok := s.scheduleID(c)
	if !ok {
		return
	}

	var req struct {
		IsOn *bool `json:"is_on" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, types.NewErrorResponse("SCHEDULE_400", "Invalid request body", err.Error()))
		return
	}

	err := s.lm.Dispatcher().Toggle(c.Request.Context(), id, *req.IsOn)
	switch {
	case err == nil:
		c.JSON(http.StatusOK, gin.H{"id": id, "is_on": *req.IsOn})
	case errors.Is(err, dispatch.ErrAnotherActive):
		c.JSON(http.StatusConflict, types.NewErrorResponse("SCHEDULE_409",
			"Another timer is already active. Please turn it off first.", ""))
	case errors.Is(err, dispatch.ErrScheduleNotFound):
		c.JSON(http.StatusNotFound, types.NewErrorResponse("SCHEDULE_404", "Schedule not found", ""))
	case errors.Is(err, dispatch.ErrNotConnected):
		c.JSON(http.StatusConflict, types.NewErrorResponse("SCHEDULE_409",
			"Not connected to a device. Please connect first.", ""))
	default:
		s.logger.Error("Toggle failed", zap.Int64("id", id), zap.Error(err))
		c.JSON(http.StatusInternalServerError, types.NewErrorResponse("SCHEDULE_500", "Toggle failed", err.Error()))
	}
}

func (s *Server) scheduleID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, types.NewErrorResponse("SCHEDULE_400", "Invalid schedule id", c.Param("id")))
		return 0, false
	}
	return id, true
}

func (s *Server) bindScheduleForm(c *gin.Context) (schedule.Form, bool) {
	var form schedule.Form
	if err := c.ShouldBindJSON(&form); err != nil {
		c.JSON(http.StatusBadRequest, types.NewErrorResponse("SCHEDULE_400", "Invalid request body", err.Error()))
		return form, false
	}

	validGrades, err := s.lm.Grades().ValidGrades()
	if err != nil {
		s.logger.Error("Failed to load grade profiles", zap.Error(err))
		c.JSON(http.StatusInternalServerError, types.NewErrorResponse("SCHEDULE_500", "Failed to load grade profiles", err.Error()))
		return form, false
	}

	if err := form.Validate(validGrades); err != nil {
		c.JSON(http.StatusBadRequest, types.NewErrorResponse("SCHEDULE_400", "Invalid schedule", err.Error()))
		return form, false
	}
	return form, true
}
