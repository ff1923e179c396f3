package bluetooth

import (
	"context"
	"io"

	"github.com/royalfresh/freshbridge/internal/types"
)

const (
	// SPPUUID is the standard Serial Port Profile service record UUID.
	SPPUUID = "00001101-0000-1000-8000-00805F9B34FB"

	PermScan    = "bluetooth.scan"
	PermConnect = "bluetooth.connect"
)

// RequiredPermissions must all be granted before scanning or connecting.
var RequiredPermissions = []string{PermScan, PermConnect}

// Provider abstracts the host adapter and permission system. The session
// owns the connection lifecycle; the provider only answers questions and
// hands out sockets. Request* calls block until the host answers and are
// awaited from a session goroutine.
type Provider interface {
	AdapterPresent() bool
	AdapterEnabled() bool
	PermissionGranted(name string) bool

	// RequestPermissions asks the host to grant the named permissions and
	// returns the per-permission outcome.
	RequestPermissions(ctx context.Context, names []string) (map[string]bool, error)

	// RequestEnable asks the host to power on the adapter.
	RequestEnable(ctx context.Context) (accepted bool, err error)

	// BondedDevices enumerates already-paired devices. No inquiry is run.
	BondedDevices(ctx context.Context) ([]types.DeviceDescriptor, error)

	// CancelDiscovery stops any in-progress discovery, best-effort.
	CancelDiscovery(ctx context.Context) error

	// OpenRFCOMM opens an RFCOMM channel to the given service record and
	// blocks until the connection is established, fails, or ctx is done.
	OpenRFCOMM(ctx context.Context, dev types.DeviceDescriptor, serviceUUID string) (io.WriteCloser, error)

	Close() error
}
