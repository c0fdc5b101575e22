package engine

import (
	"encoding/json"
	"fmt"
	"io/ioutil"
	"log"
	"mmiosim/bridge"
	"mmiosim/interfaces"
	"mmiosim/machine"
	"os"
	"path/filepath"
	"sync"
)

// ViewModel is the root view model. It is a bridge.Sink: register changes and transmitted bytes
// are routed to the child view model owning the address and pushed to the view.
type ViewModel struct {
	m *machine.Machine
	b *bridge.Bridge

	isLoadingConfig bool

	// dependency that notifies view of updated view model:
	viewNotifier interfaces.ViewNotifier

	// View Models:
	viewModels     map[string]interface{}
	viewModelsLock sync.Mutex

	// child view models in a fixed order:
	views    []string
	children map[string]childViewModel

	uartViewModel     *UARTViewModel
	ledViewModel      *LEDViewModel
	sevenSegViewModel *SevenSegViewModel
	machineViewModel  *MachineViewModel
}

var (
	_ interfaces.ViewModelContainer  = (*ViewModel)(nil)
	_ interfaces.ViewCommandHandler  = (*ViewModel)(nil)
	_ interfaces.ConfigurationSystem = (*ViewModel)(nil)
	_ bridge.Sink                    = (*ViewModel)(nil)
)

func NewViewModel(m *machine.Machine) *ViewModel {
	vm := &ViewModel{
		m:          m,
		viewModels: make(map[string]interface{}),
		children:   make(map[string]childViewModel),
	}

	// instantiate each child view model; devices the machine lacks get no view:
	vm.machineViewModel = NewMachineViewModel(vm)
	vm.addChild("machine", vm.machineViewModel)

	if us := m.UARTs(); len(us) > 0 {
		vm.uartViewModel = NewUARTViewModel(vm, us[0])
		vm.addChild("uart", vm.uartViewModel)
	}
	if ls := m.LEDs(); len(ls) > 0 {
		vm.ledViewModel = NewLEDViewModel(vm, ls[0])
		vm.addChild("led", vm.ledViewModel)
	}
	if ds := m.Displays(); len(ds) > 0 {
		vm.sevenSegViewModel = NewSevenSegViewModel(vm, ds[0])
		vm.addChild("sevenseg", vm.sevenSegViewModel)
	}

	vm.viewModels["status"] = "Stopped"

	return vm
}

func (vm *ViewModel) addChild(view string, child childViewModel) {
	vm.views = append(vm.views, view)
	vm.children[view] = child
	vm.viewModels[view] = child
	child.MarkDirty()
}

func (vm *ViewModel) Machine() *machine.Machine { return vm.m }

// ProvideBridge supplies the bridge used for external UART input.
func (vm *ViewModel) ProvideBridge(b *bridge.Bridge) {
	vm.b = b
}

func (vm *ViewModel) ProvideViewNotifier(viewNotifier interfaces.ViewNotifier) {
	vm.viewNotifier = viewNotifier
}

func (vm *ViewModel) GetViewModel(view string) (interface{}, bool) {
	defer vm.viewModelsLock.Unlock()
	vm.viewModelsLock.Lock()

	viewModel, ok := vm.viewModels[view]
	return viewModel, ok
}

func (vm *ViewModel) SetViewModel(view string, viewModel interface{}) {
	defer vm.viewModelsLock.Unlock()
	vm.viewModelsLock.Lock()

	vm.viewModels[view] = viewModel
}

func (vm *ViewModel) NotifyView(view string, model interface{}) {
	defer vm.viewModelsLock.Unlock()
	vm.viewModelsLock.Lock()

	// allow model to customize the instance to be stored as a view model:
	viewModel := model
	if viewModeler, ok := model.(interfaces.ViewModeler); ok {
		viewModel = viewModeler.ViewModel()
	}

	// cache the viewModel for new websocket connections so they get the updates on first connect:
	vm.viewModels[view] = viewModel

	// notify downstream if applicable:
	vn := vm.viewNotifier
	if vn == nil {
		return
	}
	vn.NotifyView(view, viewModel)
}

// initializes all view models:
func (vm *ViewModel) Init() {
	for _, view := range vm.views {
		if i, ok := vm.children[view].(interfaces.Initializable); ok {
			i.Init()
		}
	}

	vm.LoadConfiguration()
	vm.setStatus("Running")
	vm.UpdateAndNotifyView()
}

type Configuration struct {
	UART    *UARTConfiguration    `json:"uart"`
	Machine *MachineConfiguration `json:"machine"`
}

func configPath() (string, error) {
	dir, err := interfaces.ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.json"), nil
}

func (vm *ViewModel) LoadConfiguration() bool {
	if vm.isLoadingConfig {
		return false
	}

	defer func() {
		vm.isLoadingConfig = false
		log.Printf("viewmodel: loadConfiguration: loaded\n")
	}()
	log.Printf("viewmodel: loadConfiguration: loading...\n")
	vm.isLoadingConfig = true

	// load saved config:
	path, err := configPath()
	if err != nil {
		log.Printf("viewmodel: loadConfiguration: could not find configuration directory: %v\n", err)
		return false
	}

	b, err := ioutil.ReadFile(path)
	if err != nil {
		log.Printf("viewmodel: loadConfiguration: could not read configuration file: %v\n", err)
		return false
	}

	var config Configuration
	err = json.Unmarshal(b, &config)
	if err != nil {
		log.Printf("viewmodel: loadConfiguration: could not json unmarshal configuration file: %v\n", err)
		return false
	}

	if vm.uartViewModel != nil {
		vm.uartViewModel.LoadConfiguration(config.UART)
	}
	vm.machineViewModel.LoadConfiguration(config.Machine)

	return true
}

func (vm *ViewModel) SaveConfiguration() bool {
	if vm.isLoadingConfig {
		return false
	}

	log.Printf("viewmodel: saveConfiguration: saving configuration...\n")

	config := Configuration{
		Machine: new(MachineConfiguration),
	}
	if vm.uartViewModel != nil {
		config.UART = new(UARTConfiguration)
		vm.uartViewModel.SaveConfiguration(config.UART)
	}
	vm.machineViewModel.SaveConfiguration(config.Machine)

	b, err := json.MarshalIndent(&config, "", "  ")
	if err != nil {
		log.Printf("viewmodel: saveConfiguration: could not json marshal configuration file: %v\n", err)
		return false
	}

	path, err := configPath()
	if err != nil {
		log.Printf("viewmodel: saveConfiguration: could not find configuration directory: %v\n", err)
		return false
	}

	dir := filepath.Dir(path)
	err = os.MkdirAll(dir, 0755)
	if err != nil {
		log.Printf("viewmodel: saveConfiguration: could not make directories along the path '%s': %v\n", dir, err)
	}

	err = ioutil.WriteFile(path, b, 0644)
	if err != nil {
		log.Printf("viewmodel: saveConfiguration: could not write configuration file '%s': %v\n", path, err)
		return false
	}

	log.Printf("viewmodel: saveConfiguration: saved configuration to file '%s'\n", path)

	return true
}

// updates all view models:
func (vm *ViewModel) Update() {
	for _, view := range vm.views {
		vm.children[view].Update()
	}
}

func (vm *ViewModel) NotifyViewTo(viewNotifier interfaces.ViewNotifier) {
	if viewNotifier == nil {
		return
	}

	vm.viewModelsLock.Lock()
	snapshot := make(map[string]interface{}, len(vm.viewModels))
	for view, model := range vm.viewModels {
		snapshot[view] = model
	}
	vm.viewModelsLock.Unlock()

	// send all view models to this notifier regardless of dirty state:
	for view, model := range snapshot {
		if viewModeler, ok := model.(interfaces.ViewModeler); ok {
			model = viewModeler.ViewModel()
		}
		viewNotifier.NotifyView(view, model)
	}
}

// updates all view models and notifies view:
func (vm *ViewModel) UpdateAndNotifyView() {
	for _, view := range vm.views {
		child := vm.children[view]
		child.Update()
		vm.NotifyViewOf(view, child)
	}

	if status, ok := vm.GetViewModel("status"); ok {
		vm.NotifyView("status", status)
	}
}

func (vm *ViewModel) NotifyViewOf(view string, model interface{}) {
	dirtyable, isDirtyable := model.(interfaces.Dirtyable)
	if isDirtyable && !dirtyable.IsDirty() {
		return
	}

	vm.NotifyView(view, model)

	if isDirtyable {
		dirtyable.ClearDirty()
	}
}

// Implements ViewCommandHandler
func (vm *ViewModel) CommandFor(view, command string) (ce interfaces.Command, err error) {
	svm, ok := vm.children[view]
	if !ok {
		return nil, fmt.Errorf("view=%s,cmd=%s: no view model found to handle command", view, command)
	}

	commandHandler, ok := svm.(interfaces.ViewModelCommandHandler)
	if !ok {
		return nil, fmt.Errorf("view=%s,cmd=%s: view model does not handle commands", view, command)
	}

	ce, err = commandHandler.CommandFor(command)
	if err != nil {
		err = fmt.Errorf("view=%s,cmd=%s: error from command handler: %w", view, command, err)
	}
	return
}

func (vm *ViewModel) setStatus(msg string) {
	log.Printf("notify: %s\n", msg)
	vm.SetViewModel("status", msg)
}

// RegisterChanged implements bridge.Sink.
func (vm *ViewModel) RegisterChanged(addr uint32, value uint32) {
	for _, view := range vm.views {
		child := vm.children[view]
		if !child.Owns(addr) {
			continue
		}
		child.RegisterChanged(addr, value)
		vm.NotifyViewOf(view, child)
	}
}

// ByteTransmitted implements bridge.Sink.
func (vm *ViewModel) ByteTransmitted(b byte) {
	if vm.uartViewModel == nil {
		return
	}
	vm.uartViewModel.Transmitted(b)
	vm.NotifyViewOf("uart", vm.uartViewModel)
}

// Reset resets the machine and refreshes every view.
func (vm *ViewModel) Reset() {
	vm.m.Reset()
	for _, view := range vm.views {
		vm.children[view].MarkDirty()
	}
	vm.setStatus("Reset")
	vm.UpdateAndNotifyView()
}
