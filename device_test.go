package toys

import (
	"errors"
	"testing"

	"github.com/gogpu/toys/backend/software"
	"github.com/gogpu/toys/gpucore"
)

func testPlatforms() software.Config {
	return software.Config{Platforms: []software.PlatformConfig{
		{Name: "P0", Devices: []gpucore.DeviceInfo{
			{Name: "cpu0", Type: gpucore.DeviceTypeCPU, MaxWorkGroupSize: 1024},
			{Name: "gpu0", Type: gpucore.DeviceTypeGPU, MaxWorkGroupSize: 256},
		}},
		{Name: "P1", Devices: []gpucore.DeviceInfo{
			{Name: "gpu1", Type: gpucore.DeviceTypeGPU, MaxWorkGroupSize: 512},
		}},
	}}
}

func TestSelectDevices(t *testing.T) {
	b := software.New(testPlatforms())
	defer b.Close()

	tests := []struct {
		name   string
		filter gpucore.DeviceType
		max    int
		want   []string
	}{
		{"all", gpucore.DeviceTypeAll, 0, []string{"cpu0", "gpu0", "gpu1"}},
		{"all capped", gpucore.DeviceTypeAll, 2, []string{"cpu0", "gpu0"}},
		{"gpu across platforms", gpucore.DeviceTypeGPU, 8, []string{"gpu0", "gpu1"}},
		{"gpu first", gpucore.DeviceTypeGPU, 1, []string{"gpu0"}},
		{"cpu", gpucore.DeviceTypeCPU, 4, []string{"cpu0"}},
		{"default per platform", gpucore.DeviceTypeDefault, 0, []string{"cpu0", "gpu1"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			devs, err := SelectDevices(b, tt.filter, tt.max)
			if err != nil {
				t.Fatalf("SelectDevices() error = %v", err)
			}
			if len(devs) == 0 || (tt.max > 0 && len(devs) > tt.max) {
				t.Fatalf("len = %d, max %d", len(devs), tt.max)
			}
			if len(devs) != len(tt.want) {
				t.Fatalf("got %d devices, want %v", len(devs), tt.want)
			}
			for i, d := range devs {
				if d.Info().Name != tt.want[i] {
					t.Errorf("device %d = %s, want %s", i, d.Info().Name, tt.want[i])
				}
			}
		})
	}
}

func TestSelectDevicesNone(t *testing.T) {
	b := software.New(software.Config{Platforms: []software.PlatformConfig{
		{Name: "P0", Devices: []gpucore.DeviceInfo{{Name: "cpu0", Type: gpucore.DeviceTypeCPU}}},
	}})
	defer b.Close()

	_, err := SelectDevices(b, gpucore.DeviceTypeGPU, 1)
	if !errors.Is(err, ErrNoDeviceFound) {
		t.Fatalf("error = %v, want ErrNoDeviceFound", err)
	}
	var se *SetupError
	if !errors.As(err, &se) || se.Op != "select devices" {
		t.Errorf("error = %#v, want *SetupError for select devices", err)
	}
}
