package machine

import (
	"encoding/json"
	"errors"
	"io/ioutil"
	"mmiosim/interfaces"
	"mmiosim/periph"
	"mmiosim/periph/uart"
	"mmiosim/util"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"
)

func newDefault(t *testing.T) *Machine {
	t.Helper()
	m, err := New(DefaultConfig())
	if err != nil {
		t.Fatal(err)
	}
	m.SetLogger(util.NewTestingLogger(t))
	return m
}

func TestMachine(t *testing.T) {
	const (
		data   = 0x10000040
		status = 0x10000044
	)

	tests := []struct {
		name   string
		verify func(t *testing.T, m *Machine)
	}{
		{
			name: "default layout",
			verify: func(t *testing.T, m *Machine) {
				var names []string
				for _, dev := range m.Devices() {
					names = append(names, dev.Driver()+":"+dev.Name())
				}
				if expected := []string{"sevenseg:seg0", "uart:uart0", "led:led0"}; !reflect.DeepEqual(names, expected) {
					t.Errorf("devices = %v, expected = %v", names, expected)
				}
				if len(m.Bus.Regions()) != 3 || m.Stack() == nil {
					t.Errorf("regions = %d, stack = %v", len(m.Bus.Regions()), m.Stack())
				}
				if actual := m.Read(status); actual != 0x01 {
					t.Errorf("uart status = $%02x", actual)
				}
			},
		},
		{
			name: "transmitted bytes reach observers",
			verify: func(t *testing.T, m *Machine) {
				var got []Transmitted
				o := interfaces.NewObserver(func(object interface{}) {
					if tx, ok := object.(Transmitted); ok {
						got = append(got, tx)
					}
				})
				m.Subscribe(o)
				m.Write(data, 'o')
				m.Write(data, 'k')
				m.Unsubscribe(o)
				m.Write(data, '!')

				expected := []Transmitted{{Device: "uart0", Byte: 'o'}, {Device: "uart0", Byte: 'k'}}
				if !reflect.DeepEqual(got, expected) {
					t.Errorf("got = %v, expected = %v", got, expected)
				}
			},
		},
		{
			name: "reset clears everything and notifies",
			verify: func(t *testing.T, m *Machine) {
				resets := 0
				m.Subscribe(interfaces.NewObserver(func(object interface{}) {
					if _, ok := object.(Reset); ok {
						resets++
					}
				}))

				u, err := m.UART("")
				if err != nil {
					t.Fatal(err)
				}
				u.ReceiveByte('x')
				m.Write(0x10000000, 5)
				m.Write(0xFFFF0090, 0xFF)
				m.Scheduler.After(time.Second, func() { t.Error("stale event ran after reset") })

				m.Reset()
				m.Advance(2 * time.Second)

				if resets != 1 {
					t.Errorf("resets = %d", resets)
				}
				if _, ok := m.Content(0x10000000); ok {
					t.Error("ram survived reset")
				}
				if actual := m.Read(0xFFFF0090); actual != 0 {
					t.Errorf("led = $%02x", actual)
				}
				if u.IsRxDataAvailable() {
					t.Error("uart still has data")
				}
			},
		},
		{
			name: "callbacks of an earlier session are skipped",
			verify: func(t *testing.T, m *Machine) {
				session := m.Session()
				if !m.InSession(session, func() {}) {
					t.Error("callback of the current session skipped")
				}

				m.Reset()
				if m.Session() == session {
					t.Fatal("reset kept the session")
				}
				if m.InSession(session, func() { t.Error("stale callback ran") }) {
					t.Error("stale callback reported as run")
				}
			},
		},
		{
			name: "reset waits for a callback in flight",
			verify: func(t *testing.T, m *Machine) {
				u, err := m.UART("")
				if err != nil {
					t.Fatal(err)
				}

				started, release := make(chan struct{}), make(chan struct{})
				go m.InSession(m.Session(), func() {
					close(started)
					<-release
					u.ReceiveByte('z')
				})
				<-started

				reset := make(chan struct{})
				go func() {
					m.Reset()
					close(reset)
				}()

				select {
				case <-reset:
					t.Fatal("reset finished while a callback was running")
				case <-time.After(20 * time.Millisecond):
				}

				close(release)
				<-reset
				if u.IsRxDataAvailable() {
					t.Error("byte from the earlier session survived reset")
				}
			},
		},
		{
			name: "load program",
			verify: func(t *testing.T, m *Machine) {
				m.Write(0x10000800, 0xAA)
				err := m.LoadProgram(Program{
					Segments: []Segment{
						{Address: 0x10000000, Words: []interfaces.HexWord{1, 2, 3}},
						{Address: 0x90000000, Words: []interfaces.HexWord{0xCAFEF00D}},
					},
					StackPointer: 0x7FFFFFF0,
				})
				if err != nil {
					t.Fatal(err)
				}
				if _, ok := m.Content(0x10000800); ok {
					t.Error("previous contents survived the load")
				}
				if actual := m.Read(0x10000008); actual != 3 {
					t.Errorf("word = %d", actual)
				}
				if actual := m.Read(0x90000000); actual != 0xCAFEF00D {
					t.Errorf("word = $%08x", actual)
				}
				if actual := m.Stack().StackPointer(); actual != 0x7FFFFFF0 {
					t.Errorf("sp = $%08x", actual)
				}

				err = m.LoadProgram(Program{Segments: []Segment{{Address: 0x00400000, Words: []interfaces.HexWord{1}}}})
				if err == nil {
					t.Error("load into unmapped memory succeeded")
				}
			},
		},
		{
			name: "uart lookup by name",
			verify: func(t *testing.T, m *Machine) {
				if u, err := m.UART("uart0"); err != nil || u.Base() != uart.DefaultBase {
					t.Errorf("uart0 = %v, %v", u, err)
				}
				if _, err := m.UART("uart9"); !errors.Is(err, periph.ErrNoDevice) {
					t.Errorf("err = %v", err)
				}
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.verify(t, newDefault(t))
		})
	}
}

func TestNew_Errors(t *testing.T) {
	tests := []struct {
		name  string
		cfg   Config
		is    error
		isDev bool
	}{
		{
			name: "unknown driver",
			cfg:  Config{Devices: []periph.DeviceConfig{{Driver: "vga", Name: "vga0"}}},
			is:   periph.ErrUnknownDriver,
		},
		{
			name: "overlapping devices",
			cfg: Config{Devices: []periph.DeviceConfig{
				{Driver: "led", Name: "a", Base: 0x1000},
				{Driver: "sevenseg", Name: "b", Base: 0x0FF8},
			}},
			is: periph.ErrAddressOverlap,
		},
		{
			name: "bad driver options",
			cfg: Config{Devices: []periph.DeviceConfig{
				{Driver: "uart", Name: "u", Options: json.RawMessage(`{"fifoCapacity":"big"}`)},
			}},
			isDev: true,
		},
		{
			name: "two stacks",
			cfg: Config{Regions: []RegionConfig{
				{Name: "s1", Kind: KindStack, Top: 0x80000000, Size: 0x100},
				{Name: "s2", Kind: KindStack, Top: 0x70000000, Size: 0x100},
			}},
		},
		{
			name: "unknown region kind",
			cfg:  Config{Regions: []RegionConfig{{Name: "rom", Kind: "rom", Size: 4}}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.cfg)
			if err == nil {
				t.Fatal("expected an error")
			}
			if tt.is != nil && !errors.Is(err, tt.is) {
				t.Errorf("err = %v, expected %v", err, tt.is)
			}
			var derr *periph.DeviceError
			if tt.isDev && !errors.As(err, &derr) {
				t.Errorf("err = %v, expected a DeviceError", err)
			}
		})
	}
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "machine.json")
	err := ioutil.WriteFile(path, []byte(`{
  "regions": [
    {"name": "data", "kind": "ram", "base": "0x20000000", "size": "0x1000"}
  ],
  "devices": [
    {"driver": "uart", "name": "tty", "base": "0x20000100", "options": {"fifoCapacity": 2}}
  ]
}`), 0644)
	if err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatal(err)
	}
	m, err := New(cfg)
	if err != nil {
		t.Fatal(err)
	}
	u, err := m.UART("tty")
	if err != nil {
		t.Fatal(err)
	}
	if u.Base() != 0x20000100 || u.Options().FIFOCapacity != 2 {
		t.Errorf("uart base = $%08x options = %+v", u.Base(), u.Options())
	}
	if err = m.SetStackPointer(0); !errors.Is(err, ErrNoStack) {
		t.Errorf("err = %v, expected ErrNoStack", err)
	}

	if _, err = LoadConfig(filepath.Join(t.TempDir(), "missing.json")); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("err = %v", err)
	}
}
