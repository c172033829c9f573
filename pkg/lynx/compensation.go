package lynx

import (
	"fmt"
	"strings"
)

// CompMode is one of the five temperature compensation modes, 'A' to 'E'.
type CompMode byte

const (
	CompModeA CompMode = 'A'
	CompModeB CompMode = 'B'
	CompModeC CompMode = 'C'
	CompModeD CompMode = 'D'
	CompModeE CompMode = 'E'
)

const compModes = 5

func (m CompMode) Valid() bool { return m >= CompModeA && m <= CompModeE }

func (m CompMode) index() int { return int(m - CompModeA) }

func (m CompMode) String() string { return string(rune(m)) }

// ParseCompMode accepts a single letter A-E (case-insensitive).
func ParseCompMode(s string) (CompMode, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	if len(s) != 1 || !CompMode(s[0]).Valid() {
		return 0, fmt.Errorf("%w: compensation mode %q", ErrOutOfRange, s)
	}
	return CompMode(s[0]), nil
}

// TempCompConfig is the temperature compensation setup of a focuser.
type TempCompConfig struct {
	Enabled      bool
	OnStart      bool
	Mode         CompMode
	Coefficients [compModes]int16 // steps per degree
	Intercepts   [compModes]int32
}

// Coefficient returns the coefficient of mode m.
func (c TempCompConfig) Coefficient(m CompMode) int16 {
	if !m.Valid() {
		return 0
	}
	return c.Coefficients[m.index()]
}

// Intercept returns the intercept of mode m.
func (c TempCompConfig) Intercept(m CompMode) int32 {
	if !m.Valid() {
		return 0
	}
	return c.Intercepts[m.index()]
}

// Backlash is the backlash compensation setup of a focuser.
type Backlash struct {
	Steps   int32
	Enabled bool
}

// Config is the decoded GETCONFIG block.
type Config struct {
	Nickname      string
	MaxPosition   uint32
	DeviceType    string
	TempComp      TempCompConfig
	Backlash      Backlash
	LEDBrightness int
	StepSize      uint16
}
