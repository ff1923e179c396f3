package bluetooth

import "errors"

var (
	// ErrAdapterUnavailable means no adapter exists on this host; the
	// session can never reach a peripheral and stays in StatusError.
	ErrAdapterUnavailable = errors.New("bluetooth adapter unavailable")

	// ErrPermissionDenied marks provider failures caused by missing
	// permissions. Recoverable by re-requesting.
	ErrPermissionDenied = errors.New("bluetooth permission denied")

	// ErrNotConnected is returned by Send when no connection is active.
	ErrNotConnected = errors.New("not connected to a device")
)
