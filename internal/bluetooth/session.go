package bluetooth

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/royalfresh/freshbridge/internal/api/websocket"
	"github.com/royalfresh/freshbridge/internal/observability/metrics"
	"github.com/royalfresh/freshbridge/internal/types"
	"go.uber.org/zap"
)

type Status string

const (
	StatusIdle       Status = "idle"
	StatusScanning   Status = "scanning"
	StatusConnecting Status = "connecting"
	StatusConnected  Status = "connected"
	StatusError      Status = "error"
)

// Snapshot is the screen-visible session state.
type Snapshot struct {
	Status        Status                   `json:"status"`
	Devices       []types.DeviceDescriptor `json:"devices"`
	ConnectedName string                   `json:"connected_name,omitempty"`
	ErrorMessage  string                   `json:"error_message,omitempty"`
}

// Session owns the adapter handle, the permission/enable gating flow, and at
// most one live socket. All status mutation happens under one mutex; the
// blocking connect and writes run on background goroutines.
type Session struct {
	logger       *zap.Logger
	provider     Provider
	wsHub        *websocket.Hub
	serviceUUID  string
	writeTimeout time.Duration

	mu            sync.Mutex
	status        Status
	devices       []types.DeviceDescriptor
	connectedName string
	errMsg        string
	stream        io.WriteCloser
	attemptID     uuid.UUID
	connectCancel context.CancelFunc
}

func NewSession(logger *zap.Logger, provider Provider, wsHub *websocket.Hub, serviceUUID string, writeTimeout time.Duration) *Session {
	if serviceUUID == "" {
		serviceUUID = SPPUUID
	}
	return &Session{
		logger:       logger,
		provider:     provider,
		wsHub:        wsHub,
		serviceUUID:  serviceUUID,
		writeTimeout: writeTimeout,
		status:       StatusIdle,
	}
}

// Initialize clears any previous error and walks the gating chain: adapter
// present, permissions granted, adapter enabled, then scan. When a permission
// or enable request is needed the status is left unchanged and the flow
// resumes once the host answers.
func (s *Session) Initialize(ctx context.Context) {
	s.mu.Lock()
	s.errMsg = ""
	s.mu.Unlock()

	if !s.provider.AdapterPresent() {
		s.setError("Device does not support Bluetooth")
		return
	}
	if !s.permissionsGranted() {
		s.requestPermissions(ctx)
		return
	}
	if !s.provider.AdapterEnabled() {
		s.requestEnable(ctx)
		return
	}
	s.ScanForPairedDevices(ctx)
}

func (s *Session) permissionsGranted() bool {
	for _, name := range RequiredPermissions {
		if !s.provider.PermissionGranted(name) {
			return false
		}
	}
	return true
}

// requestPermissions asks the host for the missing permissions and resumes
// the gating flow with the result.
func (s *Session) requestPermissions(ctx context.Context) {
	go func() {
		granted, err := s.provider.RequestPermissions(ctx, RequiredPermissions)
		if err != nil {
			s.logger.Error("Permission request failed", zap.Error(err))
			s.setError("Bluetooth permissions are required for the app to function")
			return
		}
		s.onPermissionResult(ctx, granted)
	}()
}

func (s *Session) onPermissionResult(ctx context.Context, granted map[string]bool) {
	for _, name := range RequiredPermissions {
		if !granted[name] {
			s.logger.Warn("Bluetooth permission denied", zap.String("permission", name))
			s.setError("Bluetooth permissions are required for the app to function")
			return
		}
	}
	// All granted; re-check the enable state from the top.
	s.Initialize(ctx)
}

func (s *Session) requestEnable(ctx context.Context) {
	go func() {
		accepted, err := s.provider.RequestEnable(ctx)
		if err != nil {
			s.logger.Error("Adapter enable request failed", zap.Error(err))
			s.setError("Security error when requesting Bluetooth enable")
			return
		}
		s.onEnableResult(ctx, accepted)
	}()
}

func (s *Session) onEnableResult(ctx context.Context, accepted bool) {
	if !accepted {
		s.logger.Warn("Adapter enable request denied")
		s.setError("Bluetooth must be enabled to use the app")
		return
	}
	s.ScanForPairedDevices(ctx)
}

// checkAdapterAndPermissions re-runs the gating chain before scan/connect.
// When a request to the host is needed it is fired and false is returned;
// the flow resumes through the result handlers.
func (s *Session) checkAdapterAndPermissions(ctx context.Context) bool {
	if !s.provider.AdapterPresent() {
		s.setError("Device does not support Bluetooth")
		return false
	}
	if !s.permissionsGranted() {
		s.setNotice("Bluetooth permissions required")
		s.requestPermissions(ctx)
		return false
	}
	if !s.provider.AdapterEnabled() {
		s.setNotice("Bluetooth must be enabled")
		s.requestEnable(ctx)
		return false
	}
	s.mu.Lock()
	s.errMsg = ""
	s.mu.Unlock()
	return true
}

// ScanForPairedDevices refreshes the device list from the set of bonded
// devices. No inquiry is performed; the caller sees Scanning only for the
// duration of the enumeration, then Idle again.
func (s *Session) ScanForPairedDevices(ctx context.Context) {
	if !s.checkAdapterAndPermissions(ctx) {
		return
	}

	s.transition(StatusScanning)
	s.mu.Lock()
	s.devices = nil
	s.mu.Unlock()

	devices, err := s.provider.BondedDevices(ctx)
	if err != nil {
		if errors.Is(err, ErrPermissionDenied) {
			s.logger.Error("Permission failure during scan", zap.Error(err))
			s.setNotice("Permission error scanning for devices")
			s.requestPermissions(ctx)
		} else {
			s.logger.Error("Bonded device enumeration failed", zap.Error(err))
			s.setNotice("Error scanning for devices")
		}
		devices = nil
	}

	s.mu.Lock()
	s.devices = devices
	if err == nil {
		if len(devices) == 0 {
			s.errMsg = "No paired devices found. Please pair the device first in Bluetooth settings."
		} else {
			s.errMsg = ""
		}
	}
	s.mu.Unlock()

	s.logger.Info("Paired device scan complete", zap.Int("devices", len(devices)))
	s.transition(StatusIdle)

	if s.wsHub != nil {
		s.wsHub.Broadcast(websocket.NewDeviceListMessage(devices))
	}
}

// ConnectToDevice starts a cancellable background connection attempt. A call
// while Connecting or Connected is a no-op; a call during a prior attempt
// supersedes it.
func (s *Session) ConnectToDevice(ctx context.Context, dev types.DeviceDescriptor) {
	if !s.checkAdapterAndPermissions(ctx) {
		return
	}

	s.mu.Lock()
	if s.status == StatusConnecting || s.status == StatusConnected {
		s.mu.Unlock()
		s.logger.Warn("Already connecting or connected")
		return
	}
	cancel := s.connectCancel
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	s.Disconnect()

	// The attempt outlives the caller; only a supersede or an explicit
	// disconnect cancels it.
	attemptCtx, cancelAttempt := context.WithCancel(context.Background())
	attempt := uuid.New()

	s.mu.Lock()
	s.attemptID = attempt
	s.connectCancel = cancelAttempt
	s.errMsg = ""
	s.connectedName = dev.DisplayName()
	s.mu.Unlock()
	s.transition(StatusConnecting)

	metrics.ConnectAttempts.Inc()
	s.logger.Info("Connecting to device",
		zap.String("address", dev.Address),
		zap.String("name", dev.DisplayName()))

	go s.runConnect(attemptCtx, attempt, dev)
}

func (s *Session) runConnect(ctx context.Context, attempt uuid.UUID, dev types.DeviceDescriptor) {
	// Discovery degrades RFCOMM setup; stop it first, best-effort.
	if err := s.provider.CancelDiscovery(ctx); err != nil {
		s.logger.Warn("Could not cancel discovery", zap.Error(err))
	}

	stream, err := s.provider.OpenRFCOMM(ctx, dev, s.serviceUUID)

	s.mu.Lock()
	if s.attemptID != attempt {
		// Superseded or torn down while we were blocked.
		s.mu.Unlock()
		if stream != nil {
			stream.Close()
		}
		return
	}

	if err == nil {
		s.stream = stream
		s.connectCancel = nil
		s.mu.Unlock()
		s.logger.Info("Connection successful", zap.String("name", dev.DisplayName()))
		metrics.ConnectionUp.Set(1)
		s.transition(StatusConnected)
		return
	}

	// Failed attempt: tear down in place.
	s.attemptID = uuid.Nil
	s.connectCancel = nil
	s.connectedName = ""
	if s.status != StatusError {
		s.status = StatusIdle
	}
	s.mu.Unlock()

	switch {
	case errors.Is(err, context.Canceled):
		// Intentional cancellation is never surfaced.
		s.logger.Info("Connection attempt cancelled")
	case errors.Is(err, ErrPermissionDenied):
		s.logger.Error("Permission failure during connect", zap.Error(err))
		s.setNotice("Bluetooth connection permission error")
		s.requestPermissions(context.Background())
	default:
		s.logger.Warn("Connection failed", zap.String("name", dev.DisplayName()), zap.Error(err))
		metrics.ConnectFailures.Inc()
		s.setNotice(fmt.Sprintf("Connection failed to %s. Make sure the device is powered on and in range.", dev.DisplayName()))
	}
	s.broadcastStatus()
}

// Disconnect cancels any in-flight attempt and closes the stream. Close
// failures are logged, never surfaced. Idempotent; an Error status is sticky
// until the next explicit operation.
func (s *Session) Disconnect() {
	s.mu.Lock()
	if s.connectCancel != nil {
		s.connectCancel()
		s.connectCancel = nil
	}
	s.attemptID = uuid.Nil
	stream := s.stream
	s.stream = nil
	s.connectedName = ""
	if s.status != StatusError {
		s.status = StatusIdle
	}
	s.mu.Unlock()

	if stream != nil {
		if err := stream.Close(); err != nil {
			s.logger.Error("Error closing Bluetooth socket", zap.Error(err))
		} else {
			s.logger.Info("Bluetooth socket closed")
		}
	}

	metrics.ConnectionUp.Set(0)
	s.broadcastStatus()
}

type writeDeadliner interface {
	SetWriteDeadline(t time.Time) error
}

// Send writes the payload on a background goroutine. Returns ErrNotConnected
// without writing when no connection is active; write failures surface as a
// notice plus disconnect.
func (s *Session) Send(ctx context.Context, payload []byte) error {
	_ = ctx
	s.mu.Lock()
	if s.status != StatusConnected || s.stream == nil {
		s.errMsg = "Not connected to a device. Please connect first."
		s.mu.Unlock()
		s.logger.Warn("Send requested while not connected")
		s.broadcastNotice("Not connected to a device. Please connect first.")
		return ErrNotConnected
	}
	stream := s.stream
	s.mu.Unlock()

	go func() {
		if d, ok := stream.(writeDeadliner); ok && s.writeTimeout > 0 {
			_ = d.SetWriteDeadline(time.Now().Add(s.writeTimeout))
		}
		if _, err := stream.Write(payload); err != nil {
			s.logger.Error("Error sending command", zap.Error(err))
			metrics.SendFailures.Inc()
			s.setNotice("Error sending command. Try reconnecting.")
			s.Disconnect()
			return
		}
		metrics.CommandsSent.Inc()
		s.logger.Debug("Command sent", zap.Int("bytes", len(payload)))
	}()
	return nil
}

// Snapshot returns the current screen-visible state.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	devices := make([]types.DeviceDescriptor, len(s.devices))
	copy(devices, s.devices)

	return Snapshot{
		Status:        s.status,
		Devices:       devices,
		ConnectedName: s.connectedName,
		ErrorMessage:  s.errMsg,
	}
}

// Status returns the current connection status.
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Close tears down the session and releases the provider.
func (s *Session) Close() error {
	s.Disconnect()
	return s.provider.Close()
}

// transition moves to a new status and broadcasts the change.
func (s *Session) transition(status Status) {
	s.mu.Lock()
	previous := s.status
	s.status = status
	name := s.connectedName
	errMsg := s.errMsg
	s.mu.Unlock()

	s.logger.Info("Connection status changed",
		zap.String("status", string(status)),
		zap.String("previous", string(previous)))

	if s.wsHub != nil {
		s.wsHub.Broadcast(websocket.NewConnectionStatusMessage(string(status), string(previous), name, errMsg))
	}
}

// setError records a fatal session error (sticky Error status).
func (s *Session) setError(msg string) {
	s.mu.Lock()
	s.errMsg = msg
	s.mu.Unlock()
	s.transition(StatusError)
}

// setNotice records a user-facing message without changing status.
func (s *Session) setNotice(msg string) {
	s.mu.Lock()
	s.errMsg = msg
	s.mu.Unlock()
	s.broadcastNotice(msg)
}

func (s *Session) broadcastNotice(msg string) {
	if s.wsHub != nil {
		s.wsHub.Broadcast(websocket.NewErrorNoticeMessage(msg))
	}
}

func (s *Session) broadcastStatus() {
	s.mu.Lock()
	status := s.status
	name := s.connectedName
	errMsg := s.errMsg
	s.mu.Unlock()

	if s.wsHub != nil {
		s.wsHub.Broadcast(websocket.NewConnectionStatusMessage(string(status), string(status), name, errMsg))
	}
}
