package engine

import (
	"mmiosim/interfaces"
	"mmiosim/periph"
	"mmiosim/periph/sevenseg"
	"sync"
)

type SevenSegModel struct {
	Name   string                             `json:"name"`
	Base   interfaces.HexWord                 `json:"base"`
	Digits [sevenseg.NumDigits]sevenseg.Digit `json:"digits"`
}

type SevenSegViewModel struct {
	dirty

	d *sevenseg.Display

	mu    sync.Mutex
	model SevenSegModel
}

func NewSevenSegViewModel(_ *ViewModel, d *sevenseg.Display) *SevenSegViewModel {
	v := &SevenSegViewModel{
		d: d,
		model: SevenSegModel{
			Name: d.Name(),
			Base: interfaces.HexWord(d.Base()),
		},
	}
	for i := range v.model.Digits {
		v.model.Digits[i].Name = sevenseg.DigitName(i)
	}
	return v
}

func (v *SevenSegViewModel) ViewModel() interface{} {
	defer v.mu.Unlock()
	v.mu.Lock()
	return v.model
}

func (v *SevenSegViewModel) Update() {
	digits := v.d.Digits()

	defer v.mu.Unlock()
	v.mu.Lock()

	if digits != v.model.Digits {
		v.MarkDirty()
	}
	v.model.Digits = digits
}

func (v *SevenSegViewModel) Owns(addr uint32) bool {
	return periph.Contains(v.d, addr)
}

func (v *SevenSegViewModel) RegisterChanged(addr uint32, value uint32) {
	i := int(addr-v.d.Base()) / sevenseg.DigitStride
	if i < 0 || i >= sevenseg.NumDigits {
		return
	}

	defer v.mu.Unlock()
	v.mu.Lock()

	dg := &v.model.Digits[i]
	if dg.Value != uint8(value) {
		v.MarkDirty()
	}
	dg.Value = uint8(value)
	dg.Segments = sevenseg.Decode(value)
}
