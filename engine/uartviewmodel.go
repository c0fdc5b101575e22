package engine

import (
	"fmt"
	"log"
	"mmiosim/interfaces"
	"mmiosim/periph"
	"mmiosim/periph/uart"
	"sync"
)

// maximum number of bytes kept in each terminal log:
const maxTerminalLog = 4096

// Must be JSON serializable
type UARTModel struct {
	Name string             `json:"name"`
	Base interfaces.HexWord `json:"base"`

	Data    uint8 `json:"data"`
	Status  uint8 `json:"status"`
	Control uint8 `json:"control"`

	TxReady         bool `json:"txReady"`
	RxDataAvailable bool `json:"rxDataAvailable"`
	TxBusy          bool `json:"txBusy"`
	RxBusy          bool `json:"rxBusy"`

	Queued int        `json:"queued"`
	Stats  uart.Stats `json:"stats"`

	Loopback bool `json:"loopback"`

	// Transmitted is what the Processor wrote; Sent is what was typed into the receive side.
	Transmitted string `json:"transmitted"`
	Sent        string `json:"sent"`
}

type UARTConfiguration struct {
	Loopback bool `json:"loopback"`
}

type UARTViewModel struct {
	dirty

	root     *ViewModel
	u        *uart.UART
	commands map[string]interfaces.Command

	mu    sync.Mutex
	model UARTModel
}

func NewUARTViewModel(root *ViewModel, u *uart.UART) *UARTViewModel {
	v := &UARTViewModel{
		root: root,
		u:    u,
		model: UARTModel{
			Name: u.Name(),
			Base: interfaces.HexWord(u.Base()),
		},
	}

	v.commands = map[string]interfaces.Command{
		"send":     &uartSendCmd{v},
		"clear":    &uartClearCmd{v},
		"loopback": &uartLoopbackCmd{v},
	}

	return v
}

func (v *UARTViewModel) ViewModel() interface{} {
	defer v.mu.Unlock()
	v.mu.Lock()
	return v.model
}

func (v *UARTViewModel) Update() {
	st := v.u.State()
	stats := v.u.Stats()
	loopback := v.root.b != nil && v.root.b.Loopback()

	defer v.mu.Unlock()
	v.mu.Lock()

	m := &v.model
	if m.Data != st.Data || m.Status != st.Status || m.Control != st.Control || m.Queued != st.Queued ||
		m.Stats != stats || m.Loopback != loopback {
		v.MarkDirty()
	}

	m.Data, m.Status, m.Control, m.Queued = st.Data, st.Status, st.Control, st.Queued
	m.TxReady = st.TxReady()
	m.RxDataAvailable = st.RxDataAvailable()
	m.TxBusy = st.Status&uart.StatusTxBusy != 0
	m.RxBusy = st.Status&uart.StatusRxBusy != 0
	m.Stats = stats
	m.Loopback = loopback
}

func (v *UARTViewModel) Owns(addr uint32) bool {
	return periph.Contains(v.u, addr)
}

func (v *UARTViewModel) RegisterChanged(_ uint32, _ uint32) {
	v.Update()
}

// Transmitted appends a byte written by the Processor to the terminal log.
func (v *UARTViewModel) Transmitted(b byte) {
	defer v.mu.Unlock()
	v.mu.Lock()

	v.model.Transmitted = appendLog(v.model.Transmitted, string([]byte{b}))
	v.MarkDirty()
}

func appendLog(l string, s string) string {
	l += s
	if len(l) > maxTerminalLog {
		l = l[len(l)-maxTerminalLog:]
	}
	return l
}

func (v *UARTViewModel) LoadConfiguration(config *UARTConfiguration) {
	if config == nil {
		log.Printf("uartviewmodel: loadConfiguration: no config\n")
		return
	}

	if v.root.b != nil {
		v.root.b.SetLoopback(config.Loopback)
	}
	v.MarkDirty()
}

func (v *UARTViewModel) SaveConfiguration(config *UARTConfiguration) {
	if config == nil {
		log.Printf("uartviewmodel: saveConfiguration: no config\n")
		return
	}

	config.Loopback = v.root.b != nil && v.root.b.Loopback()
}

func (v *UARTViewModel) CommandFor(command string) (ce interfaces.Command, err error) {
	var ok bool
	ce, ok = v.commands[command]
	if !ok {
		err = fmt.Errorf("no command '%s' found", command)
	}
	return
}

// Commands

type uartSendCmd struct{ v *UARTViewModel }
type uartSendArgs struct {
	Text string `json:"text"`
}

func (c *uartSendCmd) CreateArgs() interfaces.CommandArgs { return &uartSendArgs{} }

func (c *uartSendCmd) Execute(args interfaces.CommandArgs) error {
	a, ok := args.(*uartSendArgs)
	if !ok {
		return fmt.Errorf("invalid args type for command")
	}

	v := c.v
	if v.root.b == nil {
		return fmt.Errorf("uart: send: no bridge")
	}
	if err := v.root.b.ReceiveString([]byte(a.Text)); err != nil {
		return err
	}

	v.mu.Lock()
	v.model.Sent = appendLog(v.model.Sent, a.Text)
	v.mu.Unlock()
	v.MarkDirty()

	v.root.UpdateAndNotifyView()
	return nil
}

type uartClearCmd struct{ v *UARTViewModel }

func (c *uartClearCmd) CreateArgs() interfaces.CommandArgs { return nil }

func (c *uartClearCmd) Execute(_ interfaces.CommandArgs) error {
	v := c.v

	v.mu.Lock()
	v.model.Transmitted = ""
	v.model.Sent = ""
	v.mu.Unlock()
	v.MarkDirty()

	v.root.UpdateAndNotifyView()
	return nil
}

type uartLoopbackCmd struct{ v *UARTViewModel }
type uartLoopbackArgs struct {
	Enabled bool `json:"enabled"`
}

func (c *uartLoopbackCmd) CreateArgs() interfaces.CommandArgs { return &uartLoopbackArgs{} }

func (c *uartLoopbackCmd) Execute(args interfaces.CommandArgs) error {
	a, ok := args.(*uartLoopbackArgs)
	if !ok {
		return fmt.Errorf("invalid args type for command")
	}

	v := c.v
	if v.root.b == nil {
		return fmt.Errorf("uart: loopback: no bridge")
	}
	v.root.b.SetLoopback(a.Enabled)

	defer v.root.SaveConfiguration()
	v.root.UpdateAndNotifyView()
	return nil
}
