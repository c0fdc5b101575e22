package led

import (
	"mmiosim/periph"
	"mmiosim/sched"
)

type Driver struct{}

func (d *Driver) DisplayName() string {
	return "LED latch"
}

func (d *Driver) Open(cfg periph.DeviceConfig, _ *sched.Scheduler) (periph.Device, error) {
	return New(cfg.Name, uint32(cfg.Base)), nil
}

func init() {
	periph.RegisterDriver(driverName, &Driver{})
}
