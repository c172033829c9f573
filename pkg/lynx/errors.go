package lynx

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var (
	ErrNotConnected      = errors.New("lynx: not connected")
	ErrTimeout           = errors.New("lynx: timeout waiting for response")
	ErrMalformedResponse = errors.New("lynx: malformed response")
	ErrOutOfRange        = errors.New("lynx: value out of range")
	ErrMotionTimeout     = errors.New("lynx: motion timed out")
	ErrSyncRequired      = errors.New("lynx: focuser must be synced before moving")
	ErrNotAbsolute       = errors.New("lynx: no absolute position reference")
)

// DeviceError is a command rejection reported by the controller.
// The controller answers "ER=<code> <text>" instead of "!" when it refuses a command.
type DeviceError struct {
	Command string
	Code    int
	Message string
}

func (e *DeviceError) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("controller rejected %s: error %d: %s", e.Command, e.Code, e.Message)
	}
	return fmt.Sprintf("controller rejected %s: %s", e.Command, e.Message)
}

// parseDeviceError builds a DeviceError from the first reply line of a refused command.
func parseDeviceError(cmd, line string) *DeviceError {
	de := &DeviceError{Command: cmd, Message: strings.TrimSpace(line)}

	rest, ok := strings.CutPrefix(de.Message, "ER=")
	if !ok {
		return de
	}

	code, msg, _ := strings.Cut(rest, " ")
	n, err := strconv.Atoi(strings.TrimRight(code, ":"))
	if err != nil {
		return de
	}
	de.Code = n
	de.Message = strings.TrimSpace(msg)
	return de
}
