package engine

import (
	"encoding/json"
	"fmt"
	"log"
	"mmiosim/interfaces"
	"mmiosim/machine"
	"mmiosim/machine/memory"
	"mmiosim/periph"
	"reflect"
	"sync"
)

const (
	defaultDumpWords = 64
	maxDumpWords     = 1024
)

type RegionModel struct {
	Name    string             `json:"name"`
	Kind    machine.RegionKind `json:"kind"`
	Base    interfaces.HexWord `json:"base"`
	Size    interfaces.HexWord `json:"size"`
	Written int                `json:"written"`
}

type RegisterModel struct {
	Name    string             `json:"name"`
	Address interfaces.HexWord `json:"address"`
	Role    periph.Role        `json:"role"`
	Access  string             `json:"access"`
	Value   interfaces.HexWord `json:"value"`
	Bits    []periph.BitField  `json:"bits,omitempty"`
}

type DeviceModel struct {
	Name      string             `json:"name"`
	Driver    string             `json:"driver"`
	Base      interfaces.HexWord `json:"base"`
	Size      interfaces.HexWord `json:"size"`
	Registers []RegisterModel    `json:"registers"`
}

type WordModel struct {
	Address interfaces.HexWord `json:"address"`
	Value   interfaces.HexWord `json:"value"`
	// Defined is false for words never written, which the view shows blank rather than zero.
	Defined bool `json:"defined"`
}

type MachineModel struct {
	Regions      []RegionModel      `json:"regions"`
	Devices      []DeviceModel      `json:"devices"`
	StackPointer interfaces.HexWord `json:"sp"`

	DumpAddress interfaces.HexWord `json:"dumpAddress"`
	DumpWords   int                `json:"dumpWords"`
	Dump        []WordModel        `json:"dump"`
}

type MachineConfiguration struct {
	DumpAddress interfaces.HexWord `json:"dumpAddress"`
	DumpWords   int                `json:"dumpWords"`
}

type MachineViewModel struct {
	dirty

	root     *ViewModel
	commands map[string]interfaces.Command

	mu    sync.Mutex
	model MachineModel
}

func NewMachineViewModel(root *ViewModel) *MachineViewModel {
	v := &MachineViewModel{
		root: root,
		model: MachineModel{
			DumpWords: defaultDumpWords,
		},
	}
	if regions := root.m.Bus.Regions(); len(regions) > 0 {
		v.model.DumpAddress = interfaces.HexWord(regions[0].Base())
	}

	v.commands = map[string]interfaces.Command{
		"reset": &machineResetCmd{v},
		"dump":  &machineDumpCmd{v},
		"load":  &machineLoadCmd{v},
	}

	return v
}

func (v *MachineViewModel) ViewModel() interface{} {
	defer v.mu.Unlock()
	v.mu.Lock()
	return v.model
}

func (v *MachineViewModel) Update() {
	m := v.root.m

	v.mu.Lock()
	dumpAddress, dumpWords := v.model.DumpAddress, v.model.DumpWords
	v.mu.Unlock()

	next := MachineModel{
		DumpAddress: dumpAddress,
		DumpWords:   dumpWords,
	}

	kinds := make(map[string]machine.RegionKind)
	for _, rc := range m.Config().Regions {
		kinds[rc.Name] = rc.Kind
	}
	for _, r := range m.Bus.Regions() {
		rm := RegionModel{
			Name: r.Name(),
			Kind: kinds[r.Name()],
			Base: interfaces.HexWord(r.Base()),
			Size: interfaces.HexWord(r.Size()),
		}
		if l, ok := r.(interface{ Len() int }); ok {
			rm.Written = l.Len()
		}
		next.Regions = append(next.Regions, rm)
	}

	for _, dev := range m.Devices() {
		dm := DeviceModel{
			Name:   dev.Name(),
			Driver: dev.Driver(),
			Base:   interfaces.HexWord(dev.Base()),
			Size:   interfaces.HexWord(dev.Size()),
		}
		for _, reg := range dev.Registers() {
			addr := dev.Base() + reg.Offset
			value, _ := dev.Peek(addr)
			dm.Registers = append(dm.Registers, RegisterModel{
				Name:    reg.Name,
				Address: interfaces.HexWord(addr),
				Role:    reg.Role,
				Access:  reg.Access.String(),
				Value:   interfaces.HexWord(value),
				Bits:    reg.Bits,
			})
		}
		next.Devices = append(next.Devices, dm)
	}

	if s := m.Stack(); s != nil {
		next.StackPointer = interfaces.HexWord(s.StackPointer())
	}

	for _, w := range memory.Dump(busView{m}, uint32(dumpAddress), dumpWords) {
		next.Dump = append(next.Dump, WordModel{
			Address: interfaces.HexWord(w.Address),
			Value:   interfaces.HexWord(w.Value),
			Defined: w.Defined,
		})
	}

	defer v.mu.Unlock()
	v.mu.Lock()
	if !reflect.DeepEqual(next, v.model) {
		v.model = next
		v.MarkDirty()
	}
}

// busView presents the whole bus as one backing so a dump shows device registers in place.
type busView struct{ m *machine.Machine }

func (b busView) Name() string                          { return "bus" }
func (b busView) Base() uint32                          { return 0 }
func (b busView) Size() uint32                          { return 0xFFFF_FFFF }
func (b busView) Write(_ uint32, _ uint32)              {}
func (b busView) Content(address uint32) (uint32, bool) { return b.m.Content(address) }
func (b busView) Clear()                                {}

func (b busView) Read(address uint32) uint32 {
	v, _ := b.m.Content(address)
	return v
}

func (v *MachineViewModel) Owns(addr uint32) bool {
	return v.root.m.Bus.DeviceAt(addr) != nil
}

func (v *MachineViewModel) RegisterChanged(_ uint32, _ uint32) {
	v.Update()
}

func (v *MachineViewModel) LoadConfiguration(config *MachineConfiguration) {
	if config == nil {
		log.Printf("machineviewmodel: loadConfiguration: no config\n")
		return
	}

	v.setDump(config.DumpAddress, config.DumpWords)
}

func (v *MachineViewModel) SaveConfiguration(config *MachineConfiguration) {
	if config == nil {
		log.Printf("machineviewmodel: saveConfiguration: no config\n")
		return
	}

	defer v.mu.Unlock()
	v.mu.Lock()
	config.DumpAddress = v.model.DumpAddress
	config.DumpWords = v.model.DumpWords
}

func (v *MachineViewModel) setDump(address interfaces.HexWord, words int) {
	if words <= 0 {
		words = defaultDumpWords
	}
	if words > maxDumpWords {
		words = maxDumpWords
	}

	defer v.mu.Unlock()
	v.mu.Lock()
	v.model.DumpAddress = address &^ 3
	v.model.DumpWords = words
	v.MarkDirty()
}

func (v *MachineViewModel) CommandFor(command string) (ce interfaces.Command, err error) {
	var ok bool
	ce, ok = v.commands[command]
	if !ok {
		err = fmt.Errorf("no command '%s' found", command)
	}
	return
}

// Commands

type machineResetCmd struct{ v *MachineViewModel }

func (c *machineResetCmd) CreateArgs() interfaces.CommandArgs { return nil }
func (c *machineResetCmd) Execute(_ interfaces.CommandArgs) error {
	c.v.root.Reset()
	return nil
}

type machineDumpCmd struct{ v *MachineViewModel }
type machineDumpArgs struct {
	Address interfaces.HexWord `json:"address"`
	Words   int                `json:"words"`
}

func (c *machineDumpCmd) CreateArgs() interfaces.CommandArgs { return &machineDumpArgs{} }

func (c *machineDumpCmd) Execute(args interfaces.CommandArgs) error {
	a, ok := args.(*machineDumpArgs)
	if !ok {
		return fmt.Errorf("invalid args type for command")
	}

	c.v.setDump(a.Address, a.Words)

	defer c.v.root.SaveConfiguration()
	c.v.root.UpdateAndNotifyView()
	return nil
}

// machineLoadCmd takes a JSON program image as a binary websocket payload.
type machineLoadCmd struct{ v *MachineViewModel }

func (c *machineLoadCmd) CreateArgs() interfaces.CommandArgs { return nil }

func (c *machineLoadCmd) Execute(args interfaces.CommandArgs) error {
	data, ok := args.([]byte)
	if !ok {
		return fmt.Errorf("load: expected binary program image")
	}

	var p machine.Program
	if err := json.Unmarshal(data, &p); err != nil {
		return fmt.Errorf("load: %w", err)
	}

	root := c.v.root
	err := root.m.LoadProgram(p)
	if err != nil {
		root.setStatus(err.Error())
	} else {
		root.setStatus(fmt.Sprintf("Loaded %d segments", len(p.Segments)))
	}

	for _, view := range root.views {
		root.children[view].MarkDirty()
	}
	root.UpdateAndNotifyView()
	return err
}
