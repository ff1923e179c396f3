package dispatch

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/royalfresh/freshbridge/internal/bluetooth"
	"github.com/royalfresh/freshbridge/internal/observability/metrics"
	"github.com/royalfresh/freshbridge/internal/schedule"
	"github.com/royalfresh/freshbridge/internal/types"
	"go.uber.org/zap"
)

const (
	// CommandOn and CommandOff are the single-letter manual control opcodes
	// understood by the peripheral firmware.
	CommandOn  = "A"
	CommandOff = "B"
)

var (
	// ErrAnotherActive is returned when activating a timer while a
	// different one is already on.
	ErrAnotherActive = errors.New("another timer is already active")

	// ErrNotConnected mirrors the session's connection guard.
	ErrNotConnected = bluetooth.ErrNotConnected

	// ErrScheduleNotFound is returned when a toggle names an unknown row.
	ErrScheduleNotFound = errors.New("schedule not found")
)

// Sender is the transmit half of the connection session.
type Sender interface {
	Send(ctx context.Context, payload []byte) error
	Status() bluetooth.Status
}

// Dispatcher formats schedule payloads and pushes them over the active
// connection. Toggle requests are serialized under one mutex so the
// read-check-write behind the exclusivity rule never interleaves.
type Dispatcher struct {
	logger *zap.Logger
	sender Sender
	repo   *schedule.Repository

	toggleMu sync.Mutex
}

func NewDispatcher(logger *zap.Logger, sender Sender, repo *schedule.Repository) *Dispatcher {
	return &Dispatcher{
		logger: logger,
		sender: sender,
		repo:   repo,
	}
}

// EncodeSchedule renders a schedule as the pipe-delimited activation payload.
func EncodeSchedule(s types.Schedule) string {
	return strings.Join([]string{s.TimeRange, s.Frequency, s.DeviceID, s.Grade}, "|")
}

// SendOn transmits the manual on command.
func (d *Dispatcher) SendOn(ctx context.Context) error {
	return d.send(ctx, CommandOn)
}

// SendOff transmits the manual off command.
func (d *Dispatcher) SendOff(ctx context.Context) error {
	return d.send(ctx, CommandOff)
}

func (d *Dispatcher) send(ctx context.Context, payload string) error {
	if err := d.sender.Send(ctx, []byte(payload)); err != nil {
		return err
	}
	d.logger.Info("Command dispatched", zap.String("payload", payload))
	return nil
}

// Toggle flips one schedule. Turning on requires a live connection and no
// other active schedule; the payload is sent before the row is marked on.
// Turning off sends the off command, then clears the flag. The persisted
// state is only updated after a successful send.
func (d *Dispatcher) Toggle(ctx context.Context, id int64, turnOn bool) error {
	d.toggleMu.Lock()
	defer d.toggleMu.Unlock()

	schedules, err := d.repo.List(ctx)
	if err != nil {
		return fmt.Errorf("load schedules: %w", err)
	}

	var target *types.Schedule
	for i := range schedules {
		if schedules[i].ID == id {
			target = &schedules[i]
			break
		}
	}
	if target == nil {
		return ErrScheduleNotFound
	}

	if !turnOn {
		if err := d.send(ctx, CommandOff); err != nil {
			metrics.ToggleRejections.Inc()
			return err
		}
		res := <-d.repo.SetToggle(id, false)
		return res.Err
	}

	for i := range schedules {
		if schedules[i].ID != id && schedules[i].IsOn {
			d.logger.Warn("Toggle rejected, another schedule active",
				zap.Int64("requested", id),
				zap.Int64("active", schedules[i].ID))
			metrics.ToggleRejections.Inc()
			return ErrAnotherActive
		}
	}

	if d.sender.Status() != bluetooth.StatusConnected {
		metrics.ToggleRejections.Inc()
		return ErrNotConnected
	}

	if err := d.send(ctx, EncodeSchedule(*target)); err != nil {
		metrics.ToggleRejections.Inc()
		return err
	}

	res := <-d.repo.SetToggle(id, true)
	return res.Err
}
