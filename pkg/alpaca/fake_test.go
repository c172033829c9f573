package alpaca

import (
	"net/http"
	"sync"
)

// fakeFocuser is an in-memory Focuser.
type fakeFocuser struct {
	mu         sync.Mutex
	number     int
	connected  bool
	position   int
	moving     bool
	tempComp   bool
	actions    []string
	lastAction string
	setupCalls int
}

func (f *fakeFocuser) DeviceInfo() DeviceInfo {
	return DeviceInfo{
		Name:        "Fake focuser",
		Description: "Focuser for tests",
		Type:        DeviceTypeFocuser,
		Number:      f.number,
		UniqueID:    "5f0b6d1c-fake",
	}
}

func (f *fakeFocuser) DriverInfo() DriverInfo {
	return DriverInfo{Name: "Fake driver", Version: "0.1", InterfaceVersion: 4}
}

func (f *fakeFocuser) GetState() []StateProperty {
	f.mu.Lock()
	defer f.mu.Unlock()
	return FocuserStatus{IsMoving: f.moving, Position: f.position, Temperature: 4.5}.ToProperties()
}

func (f *fakeFocuser) Connected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *fakeFocuser) Connecting() bool { return false }

func (f *fakeFocuser) Connect() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connected = true
	return nil
}

func (f *fakeFocuser) Disconnect() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connected = false
	return nil
}

func (f *fakeFocuser) SupportedActions() []string { return f.actions }

func (f *fakeFocuser) Action(name, params string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastAction = name + ":" + params
	return "done", nil
}

func (f *fakeFocuser) check() error {
	if !f.connected {
		return ErrNotConnected
	}
	return nil
}

func (f *fakeFocuser) Absolute() (bool, error) { return true, f.check() }
func (f *fakeFocuser) IsMoving() (bool, error) { return f.moving, f.check() }

func (f *fakeFocuser) MaxIncrement() (int, error) { return 1000, f.check() }
func (f *fakeFocuser) MaxStep() (int, error)      { return 10000, f.check() }
func (f *fakeFocuser) Position() (int, error)     { return f.position, f.check() }
func (f *fakeFocuser) StepSize() (float64, error) { return 0, ErrNotImplemented }
func (f *fakeFocuser) TempComp() (bool, error)    { return f.tempComp, f.check() }

func (f *fakeFocuser) SetTempComp(on bool) error {
	if err := f.check(); err != nil {
		return err
	}
	f.tempComp = on
	return nil
}

func (f *fakeFocuser) TempCompAvailable() (bool, error) { return true, f.check() }
func (f *fakeFocuser) Temperature() (float64, error)    { return 4.5, f.check() }

func (f *fakeFocuser) Halt() error {
	if err := f.check(); err != nil {
		return err
	}
	f.moving = false
	return nil
}

func (f *fakeFocuser) Move(position int) error {
	if err := f.check(); err != nil {
		return err
	}
	if position < 0 || position > 10000 {
		return InvalidValue("position %d out of range", position)
	}
	f.position = position
	return nil
}

func (f *fakeFocuser) HandleSetup(w http.ResponseWriter, r *http.Request) {
	f.setupCalls++
	w.Write([]byte("focuser setup"))
}
