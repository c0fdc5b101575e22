package uart

import (
	"mmiosim/periph"
	"mmiosim/sched"
)

const driverName = "uart"

type Driver struct{}

func (d *Driver) DisplayName() string {
	return "UART"
}

func (d *Driver) Open(cfg periph.DeviceConfig, s *sched.Scheduler) (periph.Device, error) {
	var opts Options
	if err := periph.DecodeOptions(cfg.Options, &opts); err != nil {
		return nil, err
	}

	return New(cfg.Name, uint32(cfg.Base), opts, s)
}

func init() {
	periph.RegisterDriver(driverName, &Driver{})
}
