package sevenseg

import (
	"mmiosim/util"
	"testing"
)

func TestDecode(t *testing.T) {
	tests := []struct {
		name     string
		value    uint32
		expected string
	}{
		{name: "8 is every segment", value: 0x7F, expected: "abcdefg"},
		{name: "unknown code is blank", value: 0x02, expected: "-------"},
		{name: "blank", value: 0x00, expected: "-------"},
		{name: "0", value: 0x3F, expected: "abcdef-"},
		{name: "1", value: 0x06, expected: "-bc----"},
		{name: "F", value: 0x71, expected: "a---efg"},
		{name: "upper bits ignored", value: 0xFFFFFF06, expected: "-bc----"},
		{name: "upper bits do not make a code known", value: 0x100, expected: "-------"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if actual := Decode(tt.value).String(); actual != tt.expected {
				t.Errorf("Decode($%x) = %v, expected = %v", tt.value, actual, tt.expected)
			}
		})
	}
}

func TestDecode_Table(t *testing.T) {
	known := 0
	for code := 0; code < 256; code++ {
		if Known(uint8(code)) {
			known++
			continue
		}
		if Decode(uint32(code)) != Blank {
			t.Errorf("code $%02x is not in the table but decodes to %v", code, Decode(uint32(code)))
		}
	}
	if known != 17 {
		t.Errorf("table has %d entries, expected 17", known)
	}
}

func TestDisplay_Digits(t *testing.T) {
	d := New("seg0", DefaultBase)
	d.Logger = util.NewTestingLogger(t)

	for i, code := range []uint32{0x7F, 0x02, 0x3F, 0x1FF} {
		if !d.Write(d.DigitAddress(i), code) {
			t.Fatalf("digit %d write not handled", i)
		}
	}

	digits := d.Digits()
	expected := [NumDigits]Digit{
		{Name: "left", Value: 0x7F, Segments: Pattern{true, true, true, true, true, true, true}},
		{Name: "mid-left", Value: 0x02, Segments: Blank},
		{Name: "mid-right", Value: 0x3F, Segments: Decode(0x3F)},
		{Name: "right", Value: 0xFF, Segments: Blank},
	}
	if digits != expected {
		t.Errorf("digits = %+v, expected = %+v", digits, expected)
	}

	// digits are independent:
	d.Write(d.DigitAddress(1), 0x06)
	if actual := d.Read(d.DigitAddress(0)); actual != 0x7F {
		t.Errorf("left = $%02x after writing mid-left", actual)
	}

	if d.Size() != 0x10 {
		t.Errorf("size = %#x, expected 0x10", d.Size())
	}
	if d.Write(DefaultBase+2, 1) {
		t.Error("unaligned write handled")
	}

	d.Reset()
	for _, dg := range d.Digits() {
		if dg.Value != 0 {
			t.Errorf("%s = $%02x after reset", dg.Name, dg.Value)
		}
	}
}
