//go:build linux

package bluetooth

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	dbus "github.com/godbus/dbus/v5"
	"github.com/royalfresh/freshbridge/internal/types"
	"go.uber.org/zap"
)

const (
	bluezService        = "org.bluez"
	profileIface        = "org.bluez.Profile1"
	profileManagerIface = "org.bluez.ProfileManager1"
	deviceIface         = "org.bluez.Device1"
	adapterIface        = "org.bluez.Adapter1"
	objManagerIface     = "org.freedesktop.DBus.ObjectManager"
	propsIface          = "org.freedesktop.DBus.Properties"
)

var profilePathCounter uint64

// BlueZProvider implements Provider against BlueZ over the system D-Bus.
// Host "permissions" map to D-Bus access to the org.bluez adapter object:
// there is no interactive grant, so RequestPermissions re-probes access.
type BlueZProvider struct {
	logger *zap.Logger

	mu          sync.Mutex
	closed      bool
	bus         *dbus.Conn
	adapterPath dbus.ObjectPath

	clientExported bool
	clientPath     dbus.ObjectPath
	prof           *rfcommProfile

	// cleanup functions run once in reverse order on Close
	cleanup []func()
}

func NewBlueZProvider(logger *zap.Logger) (*BlueZProvider, error) {
	bus, err := dbus.SystemBus()
	if err != nil {
		return nil, fmt.Errorf("connect system bus: %w", err)
	}

	p := &BlueZProvider{logger: logger, bus: bus}
	p.cleanup = append(p.cleanup, func() { bus.Close() })

	if path, err := firstAdapter(bus); err == nil {
		p.adapterPath = path
	} else {
		logger.Warn("No Bluetooth adapter found on system bus", zap.Error(err))
	}

	return p, nil
}

// rfcommProfile implements org.bluez.Profile1 and forwards NewConnection fds.
type rfcommProfile struct {
	mu       sync.Mutex
	pending  chan connResult
	accepted bool
}

type connResult struct {
	fd  int
	err error
}

func (p *rfcommProfile) Release() *dbus.Error                               { return nil }
func (p *rfcommProfile) RequestDisconnection(_ dbus.ObjectPath) *dbus.Error { return nil }

func (p *rfcommProfile) NewConnection(_ dbus.ObjectPath, fd dbus.UnixFD, _ map[string]dbus.Variant) *dbus.Error {
	p.mu.Lock()
	pending := p.pending
	accepted := p.accepted
	if pending != nil && !accepted {
		p.accepted = true
	}
	p.mu.Unlock()

	if pending == nil || accepted {
		_ = os.NewFile(uintptr(fd), "rfcomm").Close()
		return &dbus.Error{Name: "org.bluez.Error.Rejected", Body: []interface{}{"no receiver"}}
	}

	select {
	case pending <- connResult{fd: int(fd)}:
		return nil
	default:
		_ = os.NewFile(uintptr(fd), "rfcomm").Close()
		return &dbus.Error{Name: "org.bluez.Error.Rejected", Body: []interface{}{"no receiver"}}
	}
}

func (p *BlueZProvider) AdapterPresent() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return false
	}
	if p.adapterPath != "" {
		return true
	}
	if path, err := firstAdapter(p.bus); err == nil {
		p.adapterPath = path
		return true
	}
	return false
}

func (p *BlueZProvider) AdapterEnabled() bool {
	powered, err := p.adapterProp("Powered")
	if err != nil {
		return false
	}
	b, _ := powered.(bool)
	return b
}

func (p *BlueZProvider) PermissionGranted(name string) bool {
	_ = name // scan and connect both reduce to adapter access on BlueZ
	_, err := p.adapterProp("Powered")
	return !isAccessDenied(err)
}

func (p *BlueZProvider) RequestPermissions(ctx context.Context, names []string) (map[string]bool, error) {
	_ = ctx
	granted := make(map[string]bool, len(names))
	for _, name := range names {
		granted[name] = p.PermissionGranted(name)
	}
	return granted, nil
}

func (p *BlueZProvider) RequestEnable(ctx context.Context) (bool, error) {
	_ = ctx
	p.mu.Lock()
	if p.closed || p.adapterPath == "" {
		p.mu.Unlock()
		return false, ErrAdapterUnavailable
	}
	obj := p.bus.Object(bluezService, p.adapterPath)
	p.mu.Unlock()

	call := obj.Call(propsIface+".Set", 0, adapterIface, "Powered", dbus.MakeVariant(true))
	if call.Err != nil {
		if isAccessDenied(call.Err) {
			return false, nil
		}
		return false, fmt.Errorf("power on adapter: %w", call.Err)
	}
	return true, nil
}

func (p *BlueZProvider) BondedDevices(ctx context.Context) ([]types.DeviceDescriptor, error) {
	_ = ctx
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, errors.New("provider closed")
	}
	bus := p.bus
	p.mu.Unlock()

	objs, err := managedObjects(bus)
	if err != nil {
		if isAccessDenied(err) {
			return nil, fmt.Errorf("list bonded devices: %w", ErrPermissionDenied)
		}
		return nil, err
	}

	devices := make([]types.DeviceDescriptor, 0)
	for _, ifaces := range objs {
		props, ok := ifaces[deviceIface]
		if !ok {
			continue
		}
		paired, _ := variantBool(props, "Paired")
		if !paired {
			continue
		}
		addr, _ := variantString(props, "Address")
		name, _ := variantString(props, "Name")
		if addr == "" {
			continue
		}
		devices = append(devices, types.DeviceDescriptor{Address: addr, Name: name})
	}

	sort.Slice(devices, func(i, j int) bool { return devices[i].Address < devices[j].Address })
	return devices, nil
}

func (p *BlueZProvider) CancelDiscovery(ctx context.Context) error {
	_ = ctx
	p.mu.Lock()
	if p.closed || p.adapterPath == "" {
		p.mu.Unlock()
		return nil
	}
	obj := p.bus.Object(bluezService, p.adapterPath)
	p.mu.Unlock()

	// "No discovery started" is the common case and not an error here.
	if call := obj.Call(adapterIface+".StopDiscovery", 0); call.Err != nil {
		if isAccessDenied(call.Err) {
			return fmt.Errorf("stop discovery: %w", ErrPermissionDenied)
		}
	}
	return nil
}

// OpenRFCOMM registers a client SPP profile (once) and waits for BlueZ to
// deliver the socket fd through Profile1.NewConnection.
func (p *BlueZProvider) OpenRFCOMM(ctx context.Context, dev types.DeviceDescriptor, serviceUUID string) (io.WriteCloser, error) {
	if dev.Address == "" {
		return nil, errors.New("device address required")
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, errors.New("provider closed")
	}
	if p.adapterPath == "" {
		p.mu.Unlock()
		return nil, ErrAdapterUnavailable
	}
	if err := p.ensureClientProfileLocked(serviceUUID); err != nil {
		p.mu.Unlock()
		return nil, err
	}
	pending := make(chan connResult, 1)
	p.prof.mu.Lock()
	p.prof.pending = pending
	p.prof.accepted = false
	p.prof.mu.Unlock()

	devPath := devicePath(p.adapterPath, dev.Address)
	devObj := p.bus.Object(bluezService, devPath)
	p.mu.Unlock()

	if call := devObj.Call(deviceIface+".ConnectProfile", 0, strings.ToLower(serviceUUID)); call.Err != nil {
		if isAccessDenied(call.Err) {
			return nil, fmt.Errorf("ConnectProfile: %w", ErrPermissionDenied)
		}
		return nil, fmt.Errorf("ConnectProfile: %w", call.Err)
	}

	select {
	case <-ctx.Done():
		// Best-effort teardown of the half-open link.
		_ = devObj.Call(deviceIface+".Disconnect", 0).Err
		return nil, fmt.Errorf("connect cancelled: %w", ctx.Err())
	case res := <-pending:
		if res.err != nil {
			return nil, res.err
		}
		return os.NewFile(uintptr(res.fd), "rfcomm"), nil
	}
}

func (p *BlueZProvider) ensureClientProfileLocked(serviceUUID string) error {
	if p.clientExported {
		return nil
	}

	p.prof = &rfcommProfile{}
	id := atomic.AddUint64(&profilePathCounter, 1)
	p.clientPath = dbus.ObjectPath("/com/royalfresh/freshbridge/client/p" + strconv.FormatUint(id, 10))
	if err := p.bus.Export(p.prof, p.clientPath, profileIface); err != nil {
		return fmt.Errorf("export client profile: %w", err)
	}

	pm := p.bus.Object(bluezService, dbus.ObjectPath("/org/bluez"))
	opts := map[string]dbus.Variant{
		"Role": dbus.MakeVariant("client"),
	}
	if call := pm.Call(profileManagerIface+".RegisterProfile", 0, p.clientPath, strings.ToLower(serviceUUID), opts); call.Err != nil {
		return fmt.Errorf("RegisterProfile(client): %w", call.Err)
	}

	clientPath := p.clientPath
	p.cleanup = append(p.cleanup, func() {
		_ = pm.Call(profileManagerIface+".UnregisterProfile", 0, clientPath).Err
		_ = p.bus.Export(nil, clientPath, profileIface)
	})
	p.clientExported = true
	return nil
}

// Close is idempotent and safe for concurrent use.
func (p *BlueZProvider) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	cleanup := p.cleanup
	p.cleanup = nil
	p.mu.Unlock()

	for i := len(cleanup) - 1; i >= 0; i-- {
		if cleanup[i] != nil {
			cleanup[i]()
		}
	}
	return nil
}

func (p *BlueZProvider) adapterProp(name string) (interface{}, error) {
	p.mu.Lock()
	if p.closed || p.adapterPath == "" {
		p.mu.Unlock()
		return nil, ErrAdapterUnavailable
	}
	obj := p.bus.Object(bluezService, p.adapterPath)
	p.mu.Unlock()

	call := obj.Call(propsIface+".Get", 0, adapterIface, name)
	if call.Err != nil {
		return nil, call.Err
	}
	var v dbus.Variant
	if err := call.Store(&v); err != nil {
		return nil, err
	}
	return v.Value(), nil
}

// Helpers

func firstAdapter(bus *dbus.Conn) (dbus.ObjectPath, error) {
	objs, err := managedObjects(bus)
	if err != nil {
		return "", err
	}
	paths := make([]string, 0, 1)
	for path, ifaces := range objs {
		if _, ok := ifaces[adapterIface]; ok {
			paths = append(paths, string(path))
		}
	}
	if len(paths) == 0 {
		return "", ErrAdapterUnavailable
	}
	sort.Strings(paths)
	return dbus.ObjectPath(paths[0]), nil
}

func managedObjects(bus *dbus.Conn) (map[dbus.ObjectPath]map[string]map[string]dbus.Variant, error) {
	obj := bus.Object(bluezService, dbus.ObjectPath("/"))
	var objs map[dbus.ObjectPath]map[string]map[string]dbus.Variant
	call := obj.Call(objManagerIface+".GetManagedObjects", 0)
	if call.Err != nil {
		return nil, fmt.Errorf("GetManagedObjects: %w", call.Err)
	}
	if err := call.Store(&objs); err != nil {
		return nil, fmt.Errorf("decode GetManagedObjects: %w", err)
	}
	return objs, nil
}

func devicePath(adapter dbus.ObjectPath, address string) dbus.ObjectPath {
	return dbus.ObjectPath(string(adapter) + "/dev_" + strings.ReplaceAll(address, ":", "_"))
}

func variantBool(props map[string]dbus.Variant, key string) (bool, bool) {
	v, ok := props[key]
	if !ok {
		return false, false
	}
	b, ok := v.Value().(bool)
	return b, ok
}

func variantString(props map[string]dbus.Variant, key string) (string, bool) {
	v, ok := props[key]
	if !ok {
		return "", false
	}
	s, ok := v.Value().(string)
	return s, ok
}

func isAccessDenied(err error) bool {
	if err == nil {
		return false
	}
	var dbusErr dbus.Error
	if errors.As(err, &dbusErr) {
		return dbusErr.Name == "org.freedesktop.DBus.Error.AccessDenied" ||
			dbusErr.Name == "org.bluez.Error.NotAuthorized"
	}
	return false
}
