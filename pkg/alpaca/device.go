package alpaca

import "net/http"

// DeviceType is the Alpaca device type name, as used in URLs and in the
// configured devices list.
type DeviceType string

const (
	DeviceTypeFocuser DeviceType = "Focuser"
)

func (t DeviceType) String() string { return string(t) }

type DeviceInfo struct {
	Name        string     `json:"DeviceName"`
	Description string     `json:"-"`
	Type        DeviceType `json:"DeviceType"`
	Number      int        `json:"DeviceNumber"`
	UniqueID    string     `json:"UniqueID"`
}

type DriverInfo struct {
	Name             string
	Version          string
	InterfaceVersion int
}

type StateProperty struct {
	Name  string
	Value any
}

// Device holds the members common to every Alpaca device.
type Device interface {
	DeviceInfo() DeviceInfo
	DriverInfo() DriverInfo
	GetState() []StateProperty

	Connected() bool
	Connecting() bool
	Connect() error
	Disconnect() error

	SupportedActions() []string
	Action(name, parameters string) (string, error)
}

// SetupHandler is implemented by devices that serve their own setup page.
type SetupHandler interface {
	HandleSetup(w http.ResponseWriter, r *http.Request)
}
