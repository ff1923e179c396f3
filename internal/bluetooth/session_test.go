package bluetooth

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/royalfresh/freshbridge/internal/types"
	"go.uber.org/zap"
)

type fakeStream struct {
	mu       sync.Mutex
	writes   [][]byte
	writeErr error
	closes   int
}

func (f *fakeStream) Write(p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.writeErr != nil {
		return 0, f.writeErr
	}
	buf := make([]byte, len(p))
	copy(buf, p)
	f.writes = append(f.writes, buf)
	return len(p), nil
}

func (f *fakeStream) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closes++
	return nil
}

func (f *fakeStream) closeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closes
}

type fakeProvider struct {
	mu sync.Mutex

	adapterPresent bool
	adapterEnabled bool
	permissions    map[string]bool

	grantOnRequest  bool
	enableOnRequest bool

	bonded    []types.DeviceDescriptor
	bondedErr error

	stream     io.WriteCloser
	openErr    error
	openBlocks bool
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{
		adapterPresent: true,
		adapterEnabled: true,
		permissions:    map[string]bool{PermScan: true, PermConnect: true},
	}
}

func (f *fakeProvider) AdapterPresent() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.adapterPresent
}

func (f *fakeProvider) AdapterEnabled() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.adapterEnabled
}

func (f *fakeProvider) PermissionGranted(name string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.permissions[name]
}

func (f *fakeProvider) RequestPermissions(ctx context.Context, names []string) (map[string]bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	granted := make(map[string]bool, len(names))
	for _, name := range names {
		if f.grantOnRequest {
			f.permissions[name] = true
		}
		granted[name] = f.permissions[name]
	}
	return granted, nil
}

func (f *fakeProvider) RequestEnable(ctx context.Context) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.enableOnRequest {
		f.adapterEnabled = true
	}
	return f.adapterEnabled, nil
}

func (f *fakeProvider) BondedDevices(ctx context.Context) ([]types.DeviceDescriptor, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.bonded, f.bondedErr
}

func (f *fakeProvider) CancelDiscovery(ctx context.Context) error { return nil }

func (f *fakeProvider) OpenRFCOMM(ctx context.Context, dev types.DeviceDescriptor, serviceUUID string) (io.WriteCloser, error) {
	f.mu.Lock()
	blocks := f.openBlocks
	stream := f.stream
	openErr := f.openErr
	f.mu.Unlock()

	if blocks {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if openErr != nil {
		return nil, openErr
	}
	return stream, nil
}

func (f *fakeProvider) Close() error { return nil }

func newTestSession(p Provider) *Session {
	return NewSession(zap.NewNop(), p, nil, SPPUUID, time.Second)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestInitializeWithoutAdapter(t *testing.T) {
	p := newFakeProvider()
	p.adapterPresent = false
	s := newTestSession(p)

	s.Initialize(context.Background())

	if got := s.Status(); got != StatusError {
		t.Fatalf("status = %s, want %s", got, StatusError)
	}
	if msg := s.Snapshot().ErrorMessage; msg != "Device does not support Bluetooth" {
		t.Errorf("unexpected error message: %q", msg)
	}
}

func TestInitializeDeniedPermissions(t *testing.T) {
	p := newFakeProvider()
	p.permissions = map[string]bool{}
	s := newTestSession(p)

	s.Initialize(context.Background())

	waitFor(t, func() bool { return s.Status() == StatusError })
	if msg := s.Snapshot().ErrorMessage; !strings.Contains(msg, "permissions are required") {
		t.Errorf("unexpected error message: %q", msg)
	}
}

func TestInitializeGrantsPermissionsThenScans(t *testing.T) {
	p := newFakeProvider()
	p.permissions = map[string]bool{}
	p.grantOnRequest = true
	p.bonded = []types.DeviceDescriptor{{Address: "AA:BB:CC:DD:EE:FF", Name: "Mister"}}
	s := newTestSession(p)

	s.Initialize(context.Background())

	waitFor(t, func() bool { return len(s.Snapshot().Devices) == 1 })
	if got := s.Status(); got != StatusIdle {
		t.Errorf("status = %s, want %s", got, StatusIdle)
	}
}

func TestInitializeEnablesAdapter(t *testing.T) {
	p := newFakeProvider()
	p.adapterEnabled = false
	p.enableOnRequest = true
	s := newTestSession(p)

	s.Initialize(context.Background())

	waitFor(t, func() bool { return s.Status() == StatusIdle })
	if !p.AdapterEnabled() {
		t.Error("adapter was not enabled")
	}
}

func TestInitializeEnableDenied(t *testing.T) {
	p := newFakeProvider()
	p.adapterEnabled = false
	s := newTestSession(p)

	s.Initialize(context.Background())

	waitFor(t, func() bool { return s.Status() == StatusError })
	if msg := s.Snapshot().ErrorMessage; msg != "Bluetooth must be enabled to use the app" {
		t.Errorf("unexpected error message: %q", msg)
	}
}

func TestScanNoPairedDevices(t *testing.T) {
	p := newFakeProvider()
	s := newTestSession(p)

	s.ScanForPairedDevices(context.Background())

	if got := s.Status(); got != StatusIdle {
		t.Fatalf("status = %s, want %s", got, StatusIdle)
	}
	snap := s.Snapshot()
	if len(snap.Devices) != 0 {
		t.Errorf("devices = %v, want empty", snap.Devices)
	}
	if !strings.Contains(snap.ErrorMessage, "No paired devices found") {
		t.Errorf("unexpected message: %q", snap.ErrorMessage)
	}
}

func TestScanClearsStaleDeviceList(t *testing.T) {
	p := newFakeProvider()
	p.bonded = []types.DeviceDescriptor{{Address: "AA:BB:CC:DD:EE:FF"}}
	s := newTestSession(p)

	s.ScanForPairedDevices(context.Background())
	if got := len(s.Snapshot().Devices); got != 1 {
		t.Fatalf("devices = %d, want 1", got)
	}

	p.mu.Lock()
	p.bonded = nil
	p.bondedErr = errors.New("hci timeout")
	p.mu.Unlock()

	s.ScanForPairedDevices(context.Background())
	if got := len(s.Snapshot().Devices); got != 0 {
		t.Errorf("devices = %d after failed scan, want 0", got)
	}
}

func TestConnectSuccess(t *testing.T) {
	p := newFakeProvider()
	p.stream = &fakeStream{}
	s := newTestSession(p)
	dev := types.DeviceDescriptor{Address: "AA:BB:CC:DD:EE:FF", Name: "Mister"}

	s.ConnectToDevice(context.Background(), dev)

	waitFor(t, func() bool { return s.Status() == StatusConnected })
	if name := s.Snapshot().ConnectedName; name != "Mister" {
		t.Errorf("connected name = %q, want Mister", name)
	}
}

func TestConnectFailure(t *testing.T) {
	p := newFakeProvider()
	p.openErr = errors.New("connection refused")
	s := newTestSession(p)
	dev := types.DeviceDescriptor{Address: "AA:BB:CC:DD:EE:FF", Name: "Mister"}

	s.ConnectToDevice(context.Background(), dev)

	waitFor(t, func() bool {
		snap := s.Snapshot()
		return snap.Status == StatusIdle && snap.ErrorMessage != ""
	})
	if msg := s.Snapshot().ErrorMessage; !strings.Contains(msg, "Connection failed to Mister") {
		t.Errorf("unexpected message: %q", msg)
	}
	if name := s.Snapshot().ConnectedName; name != "" {
		t.Errorf("connected name not cleared: %q", name)
	}
}

func TestConnectWhileConnectedIsNoop(t *testing.T) {
	p := newFakeProvider()
	stream := &fakeStream{}
	p.stream = stream
	s := newTestSession(p)
	dev := types.DeviceDescriptor{Address: "AA:BB:CC:DD:EE:FF", Name: "Mister"}

	s.ConnectToDevice(context.Background(), dev)
	waitFor(t, func() bool { return s.Status() == StatusConnected })

	s.ConnectToDevice(context.Background(), types.DeviceDescriptor{Address: "11:22:33:44:55:66", Name: "Other"})

	if got := s.Status(); got != StatusConnected {
		t.Errorf("status = %s, want %s", got, StatusConnected)
	}
	if name := s.Snapshot().ConnectedName; name != "Mister" {
		t.Errorf("connected name = %q, want Mister", name)
	}
	if stream.closeCount() != 0 {
		t.Error("stream was closed by the no-op connect")
	}
}

func TestConnectSupersedesPendingAttempt(t *testing.T) {
	p := newFakeProvider()
	p.openBlocks = true
	s := newTestSession(p)

	s.ConnectToDevice(context.Background(), types.DeviceDescriptor{Address: "AA:BB:CC:DD:EE:FF", Name: "First"})
	waitFor(t, func() bool { return s.Status() == StatusConnecting })

	stream := &fakeStream{}
	p.mu.Lock()
	p.openBlocks = false
	p.stream = stream
	p.mu.Unlock()

	// Superseding while the first attempt is still blocked requires leaving
	// the Connecting state first.
	s.Disconnect()
	s.ConnectToDevice(context.Background(), types.DeviceDescriptor{Address: "11:22:33:44:55:66", Name: "Second"})

	waitFor(t, func() bool { return s.Status() == StatusConnected })
	if name := s.Snapshot().ConnectedName; name != "Second" {
		t.Errorf("connected name = %q, want Second", name)
	}
}

func TestDisconnectIdempotent(t *testing.T) {
	p := newFakeProvider()
	stream := &fakeStream{}
	p.stream = stream
	s := newTestSession(p)

	s.ConnectToDevice(context.Background(), types.DeviceDescriptor{Address: "AA:BB:CC:DD:EE:FF"})
	waitFor(t, func() bool { return s.Status() == StatusConnected })

	s.Disconnect()
	s.Disconnect()

	if got := s.Status(); got != StatusIdle {
		t.Errorf("status = %s, want %s", got, StatusIdle)
	}
	if stream.closeCount() != 1 {
		t.Errorf("close count = %d, want 1", stream.closeCount())
	}
}

func TestSendWithoutConnection(t *testing.T) {
	p := newFakeProvider()
	s := newTestSession(p)

	err := s.Send(context.Background(), []byte("A"))
	if !errors.Is(err, ErrNotConnected) {
		t.Fatalf("err = %v, want ErrNotConnected", err)
	}
	if msg := s.Snapshot().ErrorMessage; !strings.Contains(msg, "Not connected to a device") {
		t.Errorf("unexpected message: %q", msg)
	}
}

func TestSendWritesPayload(t *testing.T) {
	p := newFakeProvider()
	stream := &fakeStream{}
	p.stream = stream
	s := newTestSession(p)

	s.ConnectToDevice(context.Background(), types.DeviceDescriptor{Address: "AA:BB:CC:DD:EE:FF"})
	waitFor(t, func() bool { return s.Status() == StatusConnected })

	if err := s.Send(context.Background(), []byte("A")); err != nil {
		t.Fatalf("Send: %v", err)
	}

	waitFor(t, func() bool {
		stream.mu.Lock()
		defer stream.mu.Unlock()
		return len(stream.writes) == 1
	})
	stream.mu.Lock()
	got := string(stream.writes[0])
	stream.mu.Unlock()
	if got != "A" {
		t.Errorf("payload = %q, want A", got)
	}
}

func TestSendFailureDisconnects(t *testing.T) {
	p := newFakeProvider()
	stream := &fakeStream{writeErr: errors.New("broken pipe")}
	p.stream = stream
	s := newTestSession(p)

	s.ConnectToDevice(context.Background(), types.DeviceDescriptor{Address: "AA:BB:CC:DD:EE:FF"})
	waitFor(t, func() bool { return s.Status() == StatusConnected })

	if err := s.Send(context.Background(), []byte("A")); err != nil {
		t.Fatalf("Send: %v", err)
	}

	waitFor(t, func() bool { return s.Status() == StatusIdle })
	if msg := s.Snapshot().ErrorMessage; !strings.Contains(msg, "Error sending command") {
		t.Errorf("unexpected message: %q", msg)
	}
	if stream.closeCount() != 1 {
		t.Errorf("close count = %d, want 1", stream.closeCount())
	}
}
