package rest

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/royalfresh/freshbridge/internal/bluetooth"
	"github.com/royalfresh/freshbridge/internal/types"
	"go.uber.org/zap"
)

// POST /api/v1/bluetooth/initialize
func (s *Server) initializeBluetooth(c *gin.Context) {
	s.lm.Session().Initialize(c.Request.Context())
	c.JSON(http.StatusAccepted, s.lm.Session().Snapshot())
}

// POST /api/v1/bluetooth/scan
func (s *Server) scanDevices(c *gin.Context) {
	s.lm.Session().ScanForPairedDevices(c.Request.Context())
	c.JSON(http.StatusOK, s.lm.Session().Snapshot())
}

// GET /api/v1/bluetooth/status
func (s *Server) getBluetoothStatus(c *gin.Context) {
	c.JSON(http.StatusOK, s.lm.Session().Snapshot())
}

// POST /api/v1/bluetooth/connect
func (s *Server) connectDevice(c *gin.Context) {
	var req struct {
		Address string `json:"address" binding:"required"`
		Name    string `json:"name"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, types.NewErrorResponse("BT_400", "Invalid request body", err.Error()))
		return
	}

	s.lm.Session().ConnectToDevice(c.Request.Context(), types.DeviceDescriptor{
		Address: req.Address,
		Name:    req.Name,
	})

	// The attempt completes in the background; progress arrives over the
	// websocket.
	c.JSON(http.StatusAccepted, s.lm.Session().Snapshot())
}

// POST /api/v1/bluetooth/disconnect
func (s *Server) disconnectDevice(c *gin.Context) {
	s.lm.Session().Disconnect()
	c.JSON(http.StatusOK, s.lm.Session().Snapshot())
}

// POST /api/v1/bluetooth/command
func (s *Server) sendCommand(c *gin.Context) {
	var req struct {
		Command string `json:"command" binding:"required,oneof=on off"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, types.NewErrorResponse("BT_400", "Invalid request body", err.Error()))
		return
	}

	var err error
	if req.Command == "on" {
		err = s.lm.Dispatcher().SendOn(c.Request.Context())
	} else {
		err = s.lm.Dispatcher().SendOff(c.Request.Context())
	}

	if err != nil {
		if errors.Is(err, bluetooth.ErrNotConnected) {
			c.JSON(http.StatusConflict, types.NewErrorResponse("BT_409",
				"Not connected to a device. Please connect first.", ""))
			return
		}
		s.logger.Error("Command failed", zap.String("command", req.Command), zap.Error(err))
		c.JSON(http.StatusInternalServerError, types.NewErrorResponse("BT_500", "Command failed", err.Error()))
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"message": "Command accepted",
		"command": req.Command,
	})
}
