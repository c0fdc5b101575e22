package bridge

import (
	"bytes"
	"context"
	"errors"
	"mmiosim/machine"
	"mmiosim/periph"
	"mmiosim/periph/uart"
	"mmiosim/util"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"
)

const (
	uartData   = uart.DefaultBase + uart.DataOffset
	uartStatus = uart.DefaultBase + uart.StatusOffset
	ledLatch   = 0xFFFF0090
	leftDigit  = 0x10000020
)

type recorder struct {
	mu      sync.Mutex
	changes map[uint32][]uint32
	sent    []byte
}

func newRecorder() *recorder {
	return &recorder{changes: make(map[uint32][]uint32)}
}

func (r *recorder) RegisterChanged(addr uint32, value uint32) {
	defer r.mu.Unlock()
	r.mu.Lock()
	r.changes[addr] = append(r.changes[addr], value)
}

func (r *recorder) ByteTransmitted(b byte) {
	defer r.mu.Unlock()
	r.mu.Lock()
	r.sent = append(r.sent, b)
}

func (r *recorder) of(addr uint32) []uint32 {
	defer r.mu.Unlock()
	r.mu.Lock()
	return append([]uint32(nil), r.changes[addr]...)
}

type fixture struct {
	m *machine.Machine
	b *Bridge
	r *recorder
}

func newFixture(t *testing.T, opts Options) *fixture {
	t.Helper()

	m, err := machine.New(machine.DefaultConfig())
	if err != nil {
		t.Fatal(err)
	}
	m.SetLogger(util.NewTestingLogger(t))

	f := &fixture{m: m, r: newRecorder()}
	f.b, err = New(m, f.r, opts)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(f.b.Close)
	return f
}

func (f *fixture) drain() []byte {
	var out []byte
	for f.m.Read(uartStatus)&uint32(uart.StatusRxDataAvailable) != 0 {
		out = append(out, byte(f.m.Read(uartData)))
	}
	return out
}

func TestBridge(t *testing.T) {
	tests := []struct {
		name   string
		opts   Options
		verify func(t *testing.T, f *fixture)
	}{
		{
			name: "first sample reports, then only changes",
			verify: func(t *testing.T, f *fixture) {
				f.b.Watch(ledLatch, 100*time.Millisecond)

				if n := f.b.Sample(0); n != 1 {
					t.Errorf("first sample changes = %d", n)
				}
				if n := f.b.Sample(100 * time.Millisecond); n != 0 {
					t.Errorf("unchanged sample changes = %d", n)
				}
				f.m.Write(ledLatch, 0xA1)
				if n := f.b.Sample(150 * time.Millisecond); n != 0 {
					t.Errorf("sample before the period elapsed reported %d", n)
				}
				f.b.Sample(200 * time.Millisecond)
				f.m.Write(ledLatch, 0xA1)
				f.b.Sample(300 * time.Millisecond)

				if actual, expected := f.r.of(ledLatch), []uint32{0, 0xA1}; !reflect.DeepEqual(actual, expected) {
					t.Errorf("changes = %x, expected = %x", actual, expected)
				}
			},
		},
		{
			name: "sampling never consumes uart data",
			verify: func(t *testing.T, f *fixture) {
				f.b.WatchDevices()
				f.b.ReceiveByte('H')
				f.b.ReceiveByte('I')
				for i := 0; i < 5; i++ {
					f.b.Sample(time.Duration(i) * time.Second)
				}
				if actual := f.drain(); string(actual) != "HI" {
					t.Errorf("drained %q", actual)
				}
				if actual, expected := f.r.of(uartData), []uint32{'H'}; !reflect.DeepEqual(actual, expected) {
					t.Errorf("data changes = %v, expected = %v", actual, expected)
				}
			},
		},
		{
			name: "watch devices covers every register",
			verify: func(t *testing.T, f *fixture) {
				f.b.WatchDevices()
				expected := []uint32{
					0x10000020, 0x10000024, 0x10000028, 0x1000002C,
					0x10000040, 0x10000044, 0x10000048,
					0xFFFF0090,
				}
				if actual := f.b.Watched(); !reflect.DeepEqual(actual, expected) {
					t.Errorf("watched = %x, expected = %x", actual, expected)
				}
				// the uart is sampled more often than the displays:
				f.b.Sample(0)
				f.m.Write(leftDigit, 0x3F)
				f.m.Write(uart.DefaultBase+uart.ControlOffset, 3)
				if n := f.b.Sample(DefaultUARTPeriod); n != 1 {
					t.Errorf("changes = %d, expected only the uart", n)
				}
				if n := f.b.Sample(DefaultDisplayPeriod); n != 1 {
					t.Errorf("changes = %d, expected only the digit", n)
				}
			},
		},
		{
			name: "transmitted bytes reach the sink once",
			verify: func(t *testing.T, f *fixture) {
				for _, c := range []byte("ok") {
					f.m.Write(uartData, uint32(c))
				}
				if string(f.r.sent) != "ok" {
					t.Errorf("sent = %q", f.r.sent)
				}
			},
		},
		{
			name: "receive string is paced",
			opts: Options{InterCharDelay: 50 * time.Millisecond},
			verify: func(t *testing.T, f *fixture) {
				if err := f.b.ReceiveString([]byte("abc")); err != nil {
					t.Fatal(err)
				}
				if actual := f.drain(); string(actual) != "a" {
					t.Errorf("immediately = %q", actual)
				}
				f.m.Advance(49 * time.Millisecond)
				if actual := f.drain(); len(actual) != 0 {
					t.Errorf("early = %q", actual)
				}
				f.m.Advance(time.Millisecond)
				if actual := f.drain(); string(actual) != "b" {
					t.Errorf("after one delay = %q", actual)
				}
				f.m.Advance(time.Second)
				if actual := f.drain(); string(actual) != "c" {
					t.Errorf("after two delays = %q", actual)
				}
			},
		},
		{
			name: "unread streamed bytes queue in order",
			verify: func(t *testing.T, f *fixture) {
				f.b.ReceiveString([]byte("hello"))
				f.m.Advance(time.Second)
				if actual := f.drain(); string(actual) != "hello" {
					t.Errorf("drained %q", actual)
				}
			},
		},
		{
			name: "reset abandons a stream",
			verify: func(t *testing.T, f *fixture) {
				f.b.ReceiveString([]byte("xyz"))
				f.m.Reset()
				f.m.Advance(time.Second)
				if actual := f.drain(); len(actual) != 0 {
					t.Errorf("drained %q after reset", actual)
				}
			},
		},
		{
			name: "reset reports every watch again",
			verify: func(t *testing.T, f *fixture) {
				f.b.Watch(ledLatch, time.Second)
				f.b.Sample(0)
				f.m.Reset()
				if n := f.b.Sample(time.Millisecond); n != 1 {
					t.Errorf("changes after reset = %d", n)
				}
			},
		},
		{
			name: "loopback",
			opts: Options{Loopback: true},
			verify: func(t *testing.T, f *fixture) {
				f.m.Write(uartData, 'L')
				f.m.Advance(DefaultLoopbackDelay - time.Millisecond)
				if actual := f.drain(); len(actual) != 0 {
					t.Errorf("early = %q", actual)
				}
				f.m.Advance(time.Millisecond)
				if actual := f.drain(); string(actual) != "L" {
					t.Errorf("looped back %q", actual)
				}

				f.b.SetLoopback(false)
				f.m.Write(uartData, 'M')
				f.m.Advance(time.Second)
				if actual := f.drain(); len(actual) != 0 {
					t.Errorf("loopback disabled but received %q", actual)
				}
			},
		},
		{
			name: "banner",
			opts: Options{Banner: "UART Ready!"},
			verify: func(t *testing.T, f *fixture) {
				f.m.Advance(DefaultBannerDelay)
				f.m.Advance(time.Duration(len("UART Ready!")) * DefaultInterCharDelay)
				if actual := f.drain(); string(actual) != "UART Ready!" {
					t.Errorf("banner = %q", actual)
				}
			},
		},
		{
			name: "receive char rejects strings",
			verify: func(t *testing.T, f *fixture) {
				if err := f.b.ReceiveChar("no"); !errors.Is(err, periph.ErrInvalidInput) {
					t.Errorf("err = %v", err)
				}
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.verify(t, newFixture(t, tt.opts))
		})
	}
}

func TestBridge_NoUART(t *testing.T) {
	m, err := machine.New(machine.Config{})
	if err != nil {
		t.Fatal(err)
	}
	b, err := New(m, NewHub(), Options{})
	if err != nil {
		t.Fatal(err)
	}
	if b.ReceiveByte('x') {
		t.Error("byte accepted without a uart")
	}
	if err = b.ReceiveString([]byte("x")); !errors.Is(err, periph.ErrNoDevice) {
		t.Errorf("err = %v", err)
	}

	if _, err = New(m, NewHub(), Options{UART: "uart7"}); !errors.Is(err, periph.ErrNoDevice) {
		t.Errorf("err = %v", err)
	}
}

func TestBridge_Run(t *testing.T) {
	m, err := machine.New(machine.DefaultConfig())
	if err != nil {
		t.Fatal(err)
	}

	seen := make(chan uint32, 16)
	sink := SinkFuncs{OnRegisterChanged: func(addr uint32, value uint32) {
		if addr == ledLatch {
			seen <- value
		}
	}}
	stats := NewStats(16)
	b, err := New(m, sink, Options{DisplayPeriod: time.Millisecond, Stats: stats})
	if err != nil {
		t.Fatal(err)
	}
	b.WatchDevices()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- b.Run(ctx) }()

	if v := <-seen; v != 0 {
		t.Errorf("first value = %x", v)
	}
	m.Write(ledLatch, 0x0F)
	select {
	case v := <-seen:
		if v != 0x0F {
			t.Errorf("value = %x", v)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("change not observed")
	}

	cancel()
	if err = <-done; !errors.Is(err, context.Canceled) {
		t.Errorf("Run() = %v", err)
	}
	if stats.Passes() == 0 {
		t.Error("no passes recorded")
	}
}

func TestBridge_ResetDuringStream(t *testing.T) {
	f := newFixture(t, Options{InterCharDelay: time.Microsecond})
	u := f.b.UART()

	stop := make(chan struct{})
	advancing := make(chan struct{})
	go func() {
		defer close(advancing)
		for {
			select {
			case <-stop:
				return
			default:
				f.m.Advance(time.Microsecond)
			}
		}
	}()
	defer func() {
		close(stop)
		<-advancing
	}()

	text := bytes.Repeat([]byte("0123456789"), 100)
	for i := 0; i < 300; i++ {
		if err := f.b.ReceiveString(text); err != nil {
			t.Fatal(err)
		}
		if i%2 == 1 {
			time.Sleep(10 * time.Microsecond)
		}
		f.m.Reset()

		if actual, expected := u.State(), (uart.State{Status: uart.StatusTxReady}); actual != expected {
			t.Fatalf("reset %d: state = %+v, expected = %+v", i, actual, expected)
		}
	}
}

func TestHub(t *testing.T) {
	h := NewHub()
	a, b := newRecorder(), newRecorder()
	h.Subscribe(a)
	h.Subscribe(b)
	h.RegisterChanged(1, 2)
	h.Unsubscribe(b)
	h.ByteTransmitted('z')

	if h.Len() != 1 {
		t.Errorf("len = %d", h.Len())
	}
	if !reflect.DeepEqual(a.of(1), []uint32{2}) || !reflect.DeepEqual(b.of(1), []uint32{2}) {
		t.Errorf("a = %v, b = %v", a.of(1), b.of(1))
	}
	if string(a.sent) != "z" || len(b.sent) != 0 {
		t.Errorf("a.sent = %q, b.sent = %q", a.sent, b.sent)
	}
}

func TestStats_WriteHistogram(t *testing.T) {
	s := NewStats(4)
	for i := 1; i <= 6; i++ {
		s.Record(time.Duration(i)*time.Microsecond, i%2)
	}
	if actual, expected := s.Latencies(), []float64{3, 4, 5, 6}; !reflect.DeepEqual(actual, expected) {
		t.Errorf("latencies = %v, expected = %v", actual, expected)
	}

	var buf bytes.Buffer
	if err := s.WriteHistogram(&buf, 2); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	if !strings.HasPrefix(out, "bridge: 6 passes, 3 changes;") {
		t.Errorf("output = %q", out)
	}
	if strings.Count(out, "\n") < 3 {
		t.Errorf("histogram missing:\n%s", out)
	}
}
