package types

// DeviceDescriptor identifies a bonded Bluetooth device.
type DeviceDescriptor struct {
	Address string `json:"address"`
	Name    string `json:"name,omitempty"`
}

// DisplayName returns the human name, falling back to the address.
func (d DeviceDescriptor) DisplayName() string {
	if d.Name != "" {
		return d.Name
	}
	if d.Address != "" {
		return d.Address
	}
	return "Unknown Device"
}
