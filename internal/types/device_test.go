package types

import "testing"

func TestDisplayName(t *testing.T) {
	cases := []struct {
		dev  DeviceDescriptor
		want string
	}{
		{DeviceDescriptor{Address: "AA:BB:CC:DD:EE:FF", Name: "Mister"}, "Mister"},
		{DeviceDescriptor{Address: "AA:BB:CC:DD:EE:FF"}, "AA:BB:CC:DD:EE:FF"},
		{DeviceDescriptor{}, "Unknown Device"},
	}

	for _, tc := range cases {
		if got := tc.dev.DisplayName(); got != tc.want {
			t.Errorf("DisplayName(%+v) = %q, want %q", tc.dev, got, tc.want)
		}
	}
}
