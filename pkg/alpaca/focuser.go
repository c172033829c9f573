package alpaca

import (
	"net/http"

	log "github.com/sirupsen/logrus"
)

// Focuser is the ASCOM IFocuserV4 interface. Every member reports
// ErrNotConnected while the device is disconnected.
type Focuser interface {
	Device

	Absolute() (bool, error)
	IsMoving() (bool, error)
	MaxIncrement() (int, error)
	MaxStep() (int, error)
	Position() (int, error)
	StepSize() (float64, error)
	TempComp() (bool, error)
	SetTempComp(bool) error
	TempCompAvailable() (bool, error)
	Temperature() (float64, error)

	Halt() error
	Move(position int) error
}

// FocuserStatus is the operational state reported by devicestate.
type FocuserStatus struct {
	IsMoving    bool
	Position    int
	Temperature float64
}

func (fs FocuserStatus) ToProperties() []StateProperty {
	return []StateProperty{
		{"IsMoving", fs.IsMoving},
		{"Position", fs.Position},
		{"Temperature", fs.Temperature},
	}
}

type FocuserHandler struct {
	DeviceHandler
	dev Focuser
}

func NewFocuserHandler(dev Focuser, logger log.FieldLogger) *FocuserHandler {
	return &FocuserHandler{
		DeviceHandler: DeviceHandler{dev: dev, logger: logger},
		dev:           dev,
	}
}

func (fh *FocuserHandler) RegisterRoutes(mux *http.ServeMux) {
	fh.DeviceHandler.RegisterRoutes(mux)

	fh.get(mux, "/absolute", func(*Request) (any, error) { return fh.dev.Absolute() })
	fh.get(mux, "/ismoving", func(*Request) (any, error) { return fh.dev.IsMoving() })
	fh.get(mux, "/maxincrement", func(*Request) (any, error) { return fh.dev.MaxIncrement() })
	fh.get(mux, "/maxstep", func(*Request) (any, error) { return fh.dev.MaxStep() })
	fh.get(mux, "/position", func(*Request) (any, error) { return fh.dev.Position() })
	fh.get(mux, "/stepsize", func(*Request) (any, error) { return fh.dev.StepSize() })
	fh.get(mux, "/tempcomp", func(*Request) (any, error) { return fh.dev.TempComp() })
	fh.get(mux, "/tempcompavailable", func(*Request) (any, error) { return fh.dev.TempCompAvailable() })
	fh.get(mux, "/temperature", func(*Request) (any, error) { return fh.dev.Temperature() })

	fh.put(mux, "/tempcomp", fh.handleSetTempComp)
	fh.put(mux, "/halt", fh.handleHalt)
	fh.put(mux, "/move", fh.handleMove)
}

func (fh *FocuserHandler) handleSetTempComp(r *Request) (any, error) {
	on, err := r.BoolParam("TempComp")
	if err != nil {
		return nil, err
	}
	return nil, fh.dev.SetTempComp(on)
}

func (fh *FocuserHandler) handleHalt(r *Request) (any, error) {
	return nil, fh.dev.Halt()
}

func (fh *FocuserHandler) handleMove(r *Request) (any, error) {
	pos, err := r.IntParam("Position")
	if err != nil {
		return nil, err
	}
	return nil, fh.dev.Move(pos)
}
