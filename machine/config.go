package machine

import (
	"encoding/json"
	"fmt"
	"io/ioutil"
	"mmiosim/interfaces"
	"mmiosim/periph"
	"mmiosim/periph/led"
	"mmiosim/periph/sevenseg"
	"mmiosim/periph/uart"
)

type RegionKind string

const (
	KindRAM   RegionKind = "ram"
	KindStack RegionKind = "stack"
)

type RegionConfig struct {
	Name string     `json:"name"`
	Kind RegionKind `json:"kind"`
	// Base is the first address of a RAM region.
	Base interfaces.HexWord `json:"base,omitempty"`
	// Top is the address just above a stack region; the stack occupies [Top-Size, Top).
	Top  interfaces.HexWord `json:"top,omitempty"`
	Size interfaces.HexWord `json:"size"`
}

// Config describes the memory map of a machine.
type Config struct {
	Regions []RegionConfig        `json:"regions"`
	Devices []periph.DeviceConfig `json:"devices"`
}

// DefaultConfig is the MIPS-style layout: user data, kernel data and a stack below $80000000,
// with the UART and seven-segment display inside user data and the LED latch in the I/O page.
func DefaultConfig() Config {
	return Config{
		Regions: []RegionConfig{
			{Name: "data", Kind: KindRAM, Base: 0x10000000, Size: 0x00100000},
			{Name: "kdata", Kind: KindRAM, Base: 0x90000000, Size: 0x00010000},
			{Name: "stack", Kind: KindStack, Top: 0x80000000, Size: 0x00100000},
		},
		Devices: []periph.DeviceConfig{
			{Driver: "uart", Name: "uart0", Base: interfaces.HexWord(uart.DefaultBase)},
			{Driver: "led", Name: "led0", Base: interfaces.HexWord(led.DefaultBase)},
			{Driver: "sevenseg", Name: "seg0", Base: interfaces.HexWord(sevenseg.DefaultBase)},
		},
	}
}

// LoadConfig reads a JSON machine layout from path.
func LoadConfig(path string) (cfg Config, err error) {
	var b []byte
	b, err = ioutil.ReadFile(path)
	if err != nil {
		return
	}

	err = json.Unmarshal(b, &cfg)
	if err != nil {
		err = fmt.Errorf("machine: config %s: %w", path, err)
		return
	}
	return
}

func (c RegionConfig) validate() error {
	if c.Size == 0 {
		return fmt.Errorf("machine: region %q: zero size", c.Name)
	}
	switch c.Kind {
	case KindRAM:
	case KindStack:
		if c.Top == 0 {
			return fmt.Errorf("machine: stack %q: missing top", c.Name)
		}
		if uint32(c.Size) > uint32(c.Top) {
			return fmt.Errorf("machine: stack %q: size %v exceeds top %v", c.Name, c.Size, c.Top)
		}
	default:
		return fmt.Errorf("machine: region %q: unknown kind %q", c.Name, c.Kind)
	}
	return nil
}
