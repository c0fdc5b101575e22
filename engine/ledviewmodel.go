package engine

import (
	"mmiosim/interfaces"
	"mmiosim/periph"
	"mmiosim/periph/led"
	"sync"
)

type LEDModel struct {
	Name  string             `json:"name"`
	Base  interfaces.HexWord `json:"base"`
	Value uint8              `json:"value"`
	Lamps led.Lamps          `json:"lamps"`
}

type LEDViewModel struct {
	dirty

	d *led.LED

	mu    sync.Mutex
	model LEDModel
}

func NewLEDViewModel(_ *ViewModel, d *led.LED) *LEDViewModel {
	return &LEDViewModel{
		d: d,
		model: LEDModel{
			Name: d.Name(),
			Base: interfaces.HexWord(d.Base()),
		},
	}
}

func (v *LEDViewModel) ViewModel() interface{} {
	defer v.mu.Unlock()
	v.mu.Lock()
	return v.model
}

func (v *LEDViewModel) Update() {
	v.set(v.d.Value())
}

func (v *LEDViewModel) set(value uint8) {
	defer v.mu.Unlock()
	v.mu.Lock()

	if v.model.Value != value {
		v.MarkDirty()
	}
	v.model.Value = value
	v.model.Lamps = led.Decode(value)
}

func (v *LEDViewModel) Owns(addr uint32) bool {
	return periph.Contains(v.d, addr)
}

func (v *LEDViewModel) RegisterChanged(_ uint32, value uint32) {
	v.set(uint8(value))
}
