package lynx

import "strings"

// Flags is the set of status indicators reported by GETSTATUS.
type Flags uint8

const (
	FlagMoving Flags = 1 << iota
	FlagHoming
	FlagHomed
	FlagFFDetect
	FlagTempProbe
	FlagRemoteIO
	FlagHandControl
	FlagReverse
)

var flagNames = []struct {
	flag Flags
	name string
	key  string // key in the status block
}{
	{FlagMoving, "MOVING", "IsMoving"},
	{FlagHoming, "HOMING", "IsHoming"},
	{FlagHomed, "HOMED", "IsHomed"},
	{FlagFFDetect, "FF_DETECT", "FFDetect"},
	{FlagTempProbe, "TEMP_PROBE", "TmpProbe"},
	{FlagRemoteIO, "REMOTE_IO", "RemoteIO"},
	{FlagHandControl, "HAND_CONTROL", "Hnd Ctlr"},
	{FlagReverse, "REVERSE", "Reverse"},
}

func (f Flags) Has(flag Flags) bool { return f&flag != 0 }

func (f *Flags) Set(flag Flags, on bool) {
	if on {
		*f |= flag
	} else {
		*f &^= flag
	}
}

// Map returns every flag by name, set or not.
func (f Flags) Map() map[string]bool {
	m := make(map[string]bool, len(flagNames))
	for _, fn := range flagNames {
		m[fn.name] = f.Has(fn.flag)
	}
	return m
}

func (f Flags) String() string {
	var names []string
	for _, fn := range flagNames {
		if f.Has(fn.flag) {
			names = append(names, fn.name)
		}
	}
	if len(names) == 0 {
		return "NONE"
	}
	return strings.Join(names, "|")
}

// Status is the decoded GETSTATUS block.
type Status struct {
	Temperature float64 // Celsius
	Position    uint32
	Target      uint32
	Flags       Flags
}

// Busy reports whether the focuser is moving or seeking home.
func (s Status) Busy() bool {
	return s.Flags.Has(FlagMoving) || s.Flags.Has(FlagHoming)
}
