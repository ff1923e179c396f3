//go:build !linux

package bluetooth

import (
	"errors"

	"go.uber.org/zap"
)

// NewBlueZProvider requires the BlueZ system bus, which only exists on Linux.
func NewBlueZProvider(logger *zap.Logger) (Provider, error) {
	_ = logger
	return nil, errors.New("bluez provider requires linux")
}
