package interfaces

import (
	"context"

	"github.com/royalfresh/freshbridge/internal/bluetooth"
	"github.com/royalfresh/freshbridge/internal/config"
	"github.com/royalfresh/freshbridge/internal/dispatch"
	"github.com/royalfresh/freshbridge/internal/grades"
	"github.com/royalfresh/freshbridge/internal/schedule"
)

// SystemStatus represents the current system state
type SystemStatus struct {
	State            string `json:"state"`
	ConnectionStatus string `json:"connection_status"`
	ConnectedDevice  string `json:"connected_device,omitempty"`
	ScheduleCount    int    `json:"schedule_count"`
}

type LifecycleManager interface {
	Config() *config.Config
	Session() *bluetooth.Session
	Schedules() *schedule.Repository
	Dispatcher() *dispatch.Dispatcher
	Grades() *grades.ProfileLoader
	GetCurrentStatus() SystemStatus
	Shutdown(ctx context.Context) error
}
