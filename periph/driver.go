package periph

import (
	"encoding/json"
	"fmt"
	"mmiosim/interfaces"
	"mmiosim/sched"
	"sort"
	"sync"
)

// DeviceConfig is the configuration of one device instance as found in a machine layout file.
type DeviceConfig struct {
	Driver  string             `json:"driver"`
	Name    string             `json:"name"`
	Base    interfaces.HexWord `json:"base"`
	Options json.RawMessage    `json:"options,omitempty"`
}

type Driver interface {
	DisplayName() string

	// Open creates a device from its configuration. Time-based behavior is queued on s.
	Open(cfg DeviceConfig, s *sched.Scheduler) (Device, error)
}

var (
	driversMu sync.RWMutex
	drivers   = make(map[string]Driver)
)

// RegisterDriver makes a device driver available by the provided name.
// If RegisterDriver is called twice with the same name or if driver is nil,
// it panics.
func RegisterDriver(name string, driver Driver) {
	driversMu.Lock()
	defer driversMu.Unlock()
	if driver == nil {
		panic("periph: RegisterDriver driver is nil")
	}
	if _, dup := drivers[name]; dup {
		panic("periph: RegisterDriver called twice for driver " + name)
	}
	drivers[name] = driver
}

// Drivers returns a sorted list of the names of the registered drivers.
func Drivers() []string {
	driversMu.RLock()
	defer driversMu.RUnlock()
	list := make([]string, 0, len(drivers))
	for name := range drivers {
		list = append(list, name)
	}
	sort.Strings(list)
	return list
}

// Open creates a device using the driver named in cfg.
func Open(cfg DeviceConfig, s *sched.Scheduler) (Device, error) {
	driversMu.RLock()
	driveri, ok := drivers[cfg.Driver]
	driversMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("periph: %w %q (forgotten import?)", ErrUnknownDriver, cfg.Driver)
	}

	dev, err := driveri.Open(cfg, s)
	if err != nil {
		return nil, NewDeviceError(cfg.Name, err)
	}
	return dev, nil
}

// DecodeOptions unmarshals a driver's raw options into v, leaving v untouched when none are given.
func DecodeOptions(raw json.RawMessage, v interface{}) error {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("options: %w", err)
	}
	return nil
}
