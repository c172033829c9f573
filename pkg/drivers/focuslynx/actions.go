package focuslynx

import (
	"encoding/json"
	"sort"
	"strconv"
	"strings"
	"time"

	"lynx-alpaca/pkg/alpaca"
	"lynx-alpaca/pkg/lynx"
)

// actionFunc runs a device specific action. Setters called with empty
// parameters return the current value instead.
type actionFunc func(d *Driver, f *lynx.Focuser, params string) (string, error)

var actions = map[string]actionFunc{
	"home":            actionHome,
	"center":          actionCenter,
	"sync":            actionSync,
	"movetimed":       actionMoveTimed,
	"maxposition":     actionMaxPosition,
	"reverse":         actionReverse,
	"backlash":        actionBacklash,
	"backlashenabled": actionBacklashEnabled,
	"tempcompmode":    actionTempCompMode,
	"tempcoefficient": actionTempCoefficient,
	"tempintercept":   actionTempIntercept,
	"tempcomponstart": actionTempCompOnStart,
	"stepsize":        actionStepSize,
	"nickname":        actionNickname,
	"devicetype":      actionDeviceType,
	"ledbrightness":   actionLEDBrightness,
	"resetfactory":    actionResetFactory,
	"syncmandatory":   actionSyncMandatory,
	"status":          actionStatus,
}

func (d *Driver) SupportedActions() []string {
	names := make([]string, 0, len(actions))
	for name := range actions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (d *Driver) Action(name, params string) (string, error) {
	fn, ok := actions[strings.ToLower(name)]
	if !ok {
		return "", alpaca.ErrActionNotImplemented
	}
	f, err := d.connected()
	if err != nil {
		return "", err
	}

	result, err := fn(d, f, strings.TrimSpace(params))
	if err != nil {
		return "", translate(err)
	}
	return result, nil
}

const resultOK = "OK"

func actionHome(d *Driver, f *lynx.Focuser, params string) (string, error) {
	return resultOK, f.Home()
}

func actionCenter(d *Driver, f *lynx.Focuser, params string) (string, error) {
	return resultOK, f.Center()
}

func actionSync(d *Driver, f *lynx.Focuser, params string) (string, error) {
	pos, err := strconv.ParseUint(params, 10, 32)
	if err != nil {
		return "", alpaca.InvalidValue("invalid sync position %q", params)
	}
	return resultOK, f.Sync(uint32(pos))
}

// actionMoveTimed expects "in|out,slow|fast,seconds".
func actionMoveTimed(d *Driver, f *lynx.Focuser, params string) (string, error) {
	parts := strings.Split(params, ",")
	if len(parts) != 3 {
		return "", alpaca.InvalidValue("expected direction,speed,seconds: %q", params)
	}

	var dir lynx.Direction
	switch strings.ToLower(strings.TrimSpace(parts[0])) {
	case "in":
		dir = lynx.DirInward
	case "out":
		dir = lynx.DirOutward
	default:
		return "", alpaca.InvalidValue("invalid direction %q", parts[0])
	}

	var speed lynx.Speed
	switch strings.ToLower(strings.TrimSpace(parts[1])) {
	case "slow":
		speed = lynx.SpeedSlow
	case "fast":
		speed = lynx.SpeedFast
	default:
		return "", alpaca.InvalidValue("invalid speed %q", parts[1])
	}

	secs, err := strconv.ParseFloat(strings.TrimSpace(parts[2]), 64)
	if err != nil {
		return "", alpaca.InvalidValue("invalid duration %q", parts[2])
	}
	return resultOK, f.MoveTimed(dir, speed, time.Duration(secs*float64(time.Second)))
}

func actionMaxPosition(d *Driver, f *lynx.Focuser, params string) (string, error) {
	if params == "" {
		return strconv.Itoa(int(f.State().MaxPosition)), nil
	}
	pos, err := strconv.ParseUint(params, 10, 32)
	if err != nil {
		return "", alpaca.InvalidValue("invalid maximum position %q", params)
	}
	return resultOK, f.SetMaxPosition(uint32(pos))
}

func parseBool(params string) (bool, error) {
	on, err := strconv.ParseBool(params)
	if err != nil {
		return false, alpaca.InvalidValue("invalid boolean %q", params)
	}
	return on, nil
}

func actionReverse(d *Driver, f *lynx.Focuser, params string) (string, error) {
	if params == "" {
		return strconv.FormatBool(f.State().Flags.Has(lynx.FlagReverse)), nil
	}
	on, err := parseBool(params)
	if err != nil {
		return "", err
	}
	return resultOK, f.SetReverse(on)
}

func actionBacklash(d *Driver, f *lynx.Focuser, params string) (string, error) {
	if params == "" {
		return strconv.Itoa(int(f.State().Backlash.Steps)), nil
	}
	steps, err := strconv.ParseInt(params, 10, 32)
	if err != nil {
		return "", alpaca.InvalidValue("invalid backlash %q", params)
	}
	return resultOK, f.SetBacklash(int32(steps))
}

func actionBacklashEnabled(d *Driver, f *lynx.Focuser, params string) (string, error) {
	if params == "" {
		return strconv.FormatBool(f.State().Backlash.Enabled), nil
	}
	on, err := parseBool(params)
	if err != nil {
		return "", err
	}
	return resultOK, f.SetBacklashEnabled(on)
}

func actionTempCompMode(d *Driver, f *lynx.Focuser, params string) (string, error) {
	if params == "" {
		return f.State().TempComp.Mode.String(), nil
	}
	mode, err := lynx.ParseCompMode(params)
	if err != nil {
		return "", err
	}
	return resultOK, f.SetTempCompMode(mode)
}

// parseModeValue splits "A" or "A,value".
func parseModeValue(params string) (lynx.CompMode, string, error) {
	letter, value, _ := strings.Cut(params, ",")
	mode, err := lynx.ParseCompMode(letter)
	if err != nil {
		return 0, "", err
	}
	return mode, strings.TrimSpace(value), nil
}

func actionTempCoefficient(d *Driver, f *lynx.Focuser, params string) (string, error) {
	mode, value, err := parseModeValue(params)
	if err != nil {
		return "", err
	}
	if value == "" {
		return strconv.Itoa(int(f.State().TempComp.Coefficient(mode))), nil
	}
	coeff, err := strconv.ParseInt(value, 10, 16)
	if err != nil {
		return "", alpaca.InvalidValue("invalid coefficient %q", value)
	}
	return resultOK, f.SetTempCoefficient(mode, int16(coeff))
}

func actionTempIntercept(d *Driver, f *lynx.Focuser, params string) (string, error) {
	mode, value, err := parseModeValue(params)
	if err != nil {
		return "", err
	}
	if value == "" {
		return strconv.Itoa(int(f.State().TempComp.Intercept(mode))), nil
	}
	intercept, err := strconv.ParseInt(value, 10, 32)
	if err != nil {
		return "", alpaca.InvalidValue("invalid intercept %q", value)
	}
	return resultOK, f.SetTempIntercept(mode, int32(intercept))
}

func actionTempCompOnStart(d *Driver, f *lynx.Focuser, params string) (string, error) {
	if params == "" {
		return strconv.FormatBool(f.State().TempComp.OnStart), nil
	}
	on, err := parseBool(params)
	if err != nil {
		return "", err
	}
	return resultOK, f.SetTempCompOnStart(on)
}

func actionStepSize(d *Driver, f *lynx.Focuser, params string) (string, error) {
	if params == "" {
		return strconv.Itoa(int(f.State().StepSize)), nil
	}
	size, err := strconv.ParseUint(params, 10, 16)
	if err != nil {
		return "", alpaca.InvalidValue("invalid step size %q", params)
	}
	if err := f.SetStepSize(uint16(size)); err != nil {
		return "", err
	}
	return resultOK, d.saveConfig(func(cfg *Config) { cfg.StepSize = uint16(size) })
}

func actionNickname(d *Driver, f *lynx.Focuser, params string) (string, error) {
	if params == "" {
		return f.State().Nickname, nil
	}
	return resultOK, f.SetNickname(params)
}

func actionDeviceType(d *Driver, f *lynx.Focuser, params string) (string, error) {
	if params == "" {
		return f.State().Model.Code, nil
	}
	code := strings.ToUpper(params)
	if err := f.SetDeviceType(code); err != nil {
		return "", err
	}
	return resultOK, d.saveConfig(func(cfg *Config) { cfg.DeviceType = code })
}

func actionLEDBrightness(d *Driver, f *lynx.Focuser, params string) (string, error) {
	if params == "" {
		return strconv.Itoa(f.State().LEDBrightness), nil
	}
	level, err := strconv.Atoi(params)
	if err != nil {
		return "", alpaca.InvalidValue("invalid LED level %q", params)
	}
	if err := f.Hub().SetLEDBrightness(level); err != nil {
		return "", err
	}
	return resultOK, f.Refresh()
}

func actionResetFactory(d *Driver, f *lynx.Focuser, params string) (string, error) {
	return resultOK, f.ResetFactory()
}

// actionSyncMandatory also persists the setting for the next connection, as
// do actionStepSize and actionDeviceType.
func actionSyncMandatory(d *Driver, f *lynx.Focuser, params string) (string, error) {
	if params == "" {
		return strconv.FormatBool(f.State().SyncMandatory), nil
	}
	on, err := parseBool(params)
	if err != nil {
		return "", err
	}
	f.SetSyncMandatory(on)
	return resultOK, d.saveConfig(func(cfg *Config) { cfg.SyncMandatory = on })
}

type statusReport struct {
	Nickname      string          `json:"nickname"`
	Model         string          `json:"model"`
	DeviceType    string          `json:"device_type"`
	Firmware      string          `json:"firmware"`
	Absolute      bool            `json:"absolute"`
	Synced        bool            `json:"synced"`
	SyncMandatory bool            `json:"sync_mandatory"`
	Position      uint32          `json:"position"`
	Target        uint32          `json:"target"`
	MaxPosition   uint32          `json:"max_position"`
	StepSize      uint16          `json:"step_size"`
	Temperature   float64         `json:"temperature"`
	Motion        string          `json:"motion"`
	Flags         map[string]bool `json:"flags"`
	TempComp      tempCompReport  `json:"temp_comp"`
	Backlash      lynx.Backlash   `json:"backlash"`
	LEDBrightness int             `json:"led_brightness"`
}

type tempCompReport struct {
	Enabled      bool    `json:"enabled"`
	OnStart      bool    `json:"on_start"`
	Mode         string  `json:"mode"`
	Coefficients []int16 `json:"coefficients"`
	Intercepts   []int32 `json:"intercepts"`
}

func actionStatus(d *Driver, f *lynx.Focuser, params string) (string, error) {
	st := f.State()
	report := statusReport{
		Nickname:      st.Nickname,
		Model:         st.Model.Name,
		DeviceType:    st.Model.Code,
		Firmware:      st.Firmware,
		Absolute:      st.Absolute,
		Synced:        st.Synced,
		SyncMandatory: st.SyncMandatory,
		Position:      st.Position,
		Target:        st.TargetPosition,
		MaxPosition:   st.MaxPosition,
		StepSize:      st.StepSize,
		Temperature:   st.Temperature,
		Motion:        st.Motion.String(),
		Flags:         st.Flags.Map(),
		TempComp: tempCompReport{
			Enabled:      st.TempComp.Enabled,
			OnStart:      st.TempComp.OnStart,
			Mode:         st.TempComp.Mode.String(),
			Coefficients: st.TempComp.Coefficients[:],
			Intercepts:   st.TempComp.Intercepts[:],
		},
		Backlash:      st.Backlash,
		LEDBrightness: st.LEDBrightness,
	}

	b, err := json.Marshal(report)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
