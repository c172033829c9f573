package lynx

import (
	"fmt"
	"strconv"
	"strings"
)

// block is a multi-line reply: a header line, "key = value" lines and END.
type block struct {
	Header string
	Values map[string]string
}

// Replies have the format:
// "STATUS1"
// "Curr Pos = 001234"
// ...
// "END"
func parseBlock(lines []string) (block, error) {
	var b block

	if len(lines) < 2 {
		return b, fmt.Errorf("%w: block has %d lines", ErrMalformedResponse, len(lines))
	}
	if lines[len(lines)-1] != replyEnd {
		return b, fmt.Errorf("%w: block not terminated: %q", ErrMalformedResponse, lines[len(lines)-1])
	}

	b.Header = strings.TrimSpace(lines[0])
	b.Values = make(map[string]string, len(lines)-2)
	for _, line := range lines[1 : len(lines)-1] {
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			return b, fmt.Errorf("%w: invalid block line: %q", ErrMalformedResponse, line)
		}
		b.Values[strings.TrimSpace(key)] = strings.TrimSpace(value)
	}
	return b, nil
}

func (b block) has(key string) bool {
	_, ok := b.Values[key]
	return ok
}

func (b block) getInt(key string, def int64) (int64, error) {
	v, ok := b.Values[key]
	if !ok {
		return def, nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %s = %q", ErrMalformedResponse, key, v)
	}
	return n, nil
}

func (b block) getUint(key string, def uint64, bits int) (uint64, error) {
	v, ok := b.Values[key]
	if !ok {
		return def, nil
	}
	n, err := strconv.ParseUint(strings.TrimPrefix(v, "+"), 10, bits)
	if err != nil {
		return 0, fmt.Errorf("%w: %s = %q", ErrMalformedResponse, key, v)
	}
	return n, nil
}

func (b block) getBool(key string) (bool, error) {
	v, ok := b.Values[key]
	if !ok {
		return false, nil
	}
	switch v {
	case "0":
		return false, nil
	case "1":
		return true, nil
	}
	return false, fmt.Errorf("%w: %s = %q", ErrMalformedResponse, key, v)
}

func (b block) getFloat(key string) (float64, error) {
	v, ok := b.Values[key]
	if !ok {
		return 0, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %s = %q", ErrMalformedResponse, key, v)
	}
	return f, nil
}

func parseStatus(b block) (Status, error) {
	var st Status
	var err error

	if !b.has("Curr Pos") {
		return st, fmt.Errorf("%w: status without current position", ErrMalformedResponse)
	}

	if st.Temperature, err = b.getFloat("Temp(C)"); err != nil {
		return st, err
	}
	pos, err := b.getUint("Curr Pos", 0, 32)
	if err != nil {
		return st, err
	}
	st.Position = uint32(pos)

	target, err := b.getUint("Targ Pos", 0, 32)
	if err != nil {
		return st, err
	}
	st.Target = uint32(target)

	for _, fn := range flagNames {
		on, err := b.getBool(fn.key)
		if err != nil {
			return st, err
		}
		st.Flags.Set(fn.flag, on)
	}
	return st, nil
}

func parseConfig(b block) (Config, error) {
	var cfg Config

	cfg.Nickname = b.Values["Nickname"]
	cfg.DeviceType = b.Values["DevTyp"]

	maxPos, err := b.getUint("Max Pos", 0, 32)
	if err != nil {
		return cfg, err
	}
	cfg.MaxPosition = uint32(maxPos)

	if cfg.TempComp.Enabled, err = b.getBool("TComp ON"); err != nil {
		return cfg, err
	}
	if cfg.TempComp.OnStart, err = b.getBool("TC@Start"); err != nil {
		return cfg, err
	}

	cfg.TempComp.Mode = CompModeA
	if v, ok := b.Values["TC Mode"]; ok {
		if cfg.TempComp.Mode, err = ParseCompMode(v); err != nil {
			return cfg, fmt.Errorf("%w: TC Mode = %q", ErrMalformedResponse, v)
		}
	}

	for i := 0; i < compModes; i++ {
		letter := string(rune('A' + i))

		coeff, err := b.getInt("TemCo "+letter, 0)
		if err != nil {
			return cfg, err
		}
		if coeff < -maxCoefficient || coeff > maxCoefficient {
			return cfg, fmt.Errorf("%w: TemCo %s = %d", ErrMalformedResponse, letter, coeff)
		}
		cfg.TempComp.Coefficients[i] = int16(coeff)

		inter, err := b.getInt("TemIn "+letter, 0)
		if err != nil {
			return cfg, err
		}
		if inter < -maxIntercept || inter > maxIntercept {
			return cfg, fmt.Errorf("%w: TemIn %s = %d", ErrMalformedResponse, letter, inter)
		}
		cfg.TempComp.Intercepts[i] = int32(inter)
	}

	if cfg.Backlash.Enabled, err = b.getBool("BLC En"); err != nil {
		return cfg, err
	}
	steps, err := b.getInt("BLC Stps", 0)
	if err != nil {
		return cfg, err
	}
	cfg.Backlash.Steps = int32(steps)

	led, err := b.getInt("LED Brt", 0)
	if err != nil {
		return cfg, err
	}
	cfg.LEDBrightness = int(led)

	stepSize, err := b.getUint("StepSize", 0, 16)
	if err != nil {
		return cfg, err
	}
	cfg.StepSize = uint16(stepSize)

	return cfg, nil
}

// HubInfo is the decoded GETHUBINFO block.
type HubInfo struct {
	Firmware string
	Sleeping bool
	WiredIP  string
	WiFiConn bool
}

func parseHubInfo(b block) (HubInfo, error) {
	var info HubInfo
	var err error

	info.Firmware = b.Values["Hub FVer"]
	if info.Firmware == "" {
		return info, fmt.Errorf("%w: hub info without firmware version", ErrMalformedResponse)
	}
	info.WiredIP = b.Values["Wired IP"]
	if info.Sleeping, err = b.getBool("Sleeping"); err != nil {
		return info, err
	}
	if info.WiFiConn, err = b.getBool("WF Conn"); err != nil {
		return info, err
	}
	return info, nil
}

// Version is a hub firmware version.
type Version struct {
	Major, Minor, Sub int
}

func (v Version) String() string {
	return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Sub)
}

// ParseVersion parses "major.minor[.sub]".
func ParseVersion(s string) (Version, error) {
	var v Version

	parts := strings.Split(strings.TrimSpace(s), ".")
	if len(parts) < 2 || len(parts) > 3 {
		return v, fmt.Errorf("%w: version %q", ErrMalformedResponse, s)
	}

	nums := make([]int, 3)
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 {
			return v, fmt.Errorf("%w: version %q", ErrMalformedResponse, s)
		}
		nums[i] = n
	}
	return Version{nums[0], nums[1], nums[2]}, nil
}
