package toys

import (
	"fmt"

	"github.com/gogpu/toys/gpucore"
)

// SelectDevices returns up to maxCount devices matching filter, in platform
// enumeration order. A maxCount of 0 or less means no limit.
//
// Each candidate is logged with its compute units and maximum work-group
// size. The log is advisory and never affects the result.
func SelectDevices(b gpucore.Backend, filter gpucore.DeviceType, maxCount int) ([]gpucore.Device, error) {
	platforms, err := b.Platforms()
	if err != nil {
		return nil, &SetupError{Op: "enumerate platforms", Err: err}
	}

	log := Logger()
	var selected []gpucore.Device
	for _, p := range platforms {
		devs, err := p.Devices(filter)
		if err != nil {
			log.Warn("toys: device enumeration failed", "platform", p.Name(), "err", err)
			continue
		}
		for _, d := range devs {
			info := d.Info()
			take := maxCount <= 0 || len(selected) < maxCount
			log.Info("toys: device",
				"platform", p.Name(),
				"name", info.Name,
				"type", info.Type,
				"compute_units", info.ComputeUnits,
				"max_workgroup", info.MaxWorkGroupSize,
				"local_mem", info.LocalMem,
				"selected", take)
			if take {
				selected = append(selected, d)
			}
		}
	}

	if len(selected) == 0 {
		return nil, &SetupError{
			Op:  "select devices",
			Err: fmt.Errorf("%w: backend %s, type %v", ErrNoDeviceFound, b.Name(), filter),
		}
	}
	return selected, nil
}
