package lynx

import (
	"fmt"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

// Focuser drives one focuser channel (F1 or F2) of a hub and keeps the
// position, status and configuration model of that channel.
type Focuser struct {
	mu     sync.Mutex
	hub    *Hub
	target Target
	clock  Clock
	logger log.FieldLogger

	configured    bool
	nickname      string
	model         Model
	absolute      bool
	synced        bool
	syncMandatory bool

	config      Config
	status      Status
	temperature float64

	motion       MotionState
	tracker      tracker
	lastReported uint32
	polls        int
}

// State is a snapshot of the focuser model.
type State struct {
	Target        Target
	Nickname      string
	Firmware      string
	Model         Model
	Absolute      bool
	Synced        bool
	SyncMandatory bool

	Position       uint32
	TargetPosition uint32
	MaxPosition    uint32
	StepSize       uint16
	Temperature    float64
	Flags          Flags
	Motion         MotionState

	TempComp      TempCompConfig
	Backlash      Backlash
	LEDBrightness int
}

// Moving reports motion started by this driver or reported by the controller,
// such as a move from the hand controller.
func (s State) Moving() bool {
	return s.Motion == MotionBusy || s.Flags.Has(FlagMoving) || s.Flags.Has(FlagHoming)
}

// Update describes what changed during a Poll.
type Update struct {
	Position           uint32
	PositionChanged    bool
	MotionDone         bool
	Temperature        float64
	TemperatureChanged bool
	Flags              Flags
	FlagsChanged       bool
}

// NewFocuser returns a focuser bound to one channel of hub.
func NewFocuser(hub *Hub, target Target, logger log.FieldLogger) *Focuser {
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &Focuser{
		hub:    hub,
		target: target,
		clock:  hub.Clock(),
		logger: logger.WithField("target", string(target)),
	}
}

func (f *Focuser) Target() Target { return f.target }

func (f *Focuser) Hub() *Hub { return f.hub }

// Handshake reads nickname, configuration and status. No motion command is
// accepted before it succeeds.
func (f *Focuser) Handshake() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	lines, err := f.hub.exchange(helloCommand(f.target))
	if err != nil {
		return fmt.Errorf("focuser %s handshake failed: %w", f.target, err)
	}
	f.nickname = lines[0]

	if err := f.refreshLocked(); err != nil {
		return fmt.Errorf("focuser %s handshake failed: %w", f.target, err)
	}

	f.synced = f.absolute || f.status.Flags.Has(FlagHomed)
	f.lastReported = f.status.Position
	f.temperature = f.status.Temperature
	f.motion = MotionIdle
	f.tracker = tracker{}
	f.configured = true

	f.logger.Infof("Focuser %q (%s) ready at position %d/%d", f.nickname, f.model.Name, f.status.Position, f.config.MaxPosition)
	return nil
}

// Refresh rereads configuration and status from the controller.
func (f *Focuser) Refresh() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.refreshLocked()
}

func (f *Focuser) refreshLocked() error {
	cfg, err := f.readConfig()
	if err != nil {
		return err
	}
	st, err := f.readStatus()
	if err != nil {
		return err
	}

	f.config = cfg
	f.status = st
	if cfg.Nickname != "" {
		f.nickname = cfg.Nickname
	}
	f.setModel(cfg.DeviceType)
	return nil
}

func (f *Focuser) setModel(code string) {
	m, ok := LookupModel(code)
	if !ok {
		f.logger.Warnf("Unknown device type %q, assuming absolute focuser", code)
		m = Model{Code: code, Name: code, Absolute: true}
	}
	f.model = m
	f.absolute = m.Absolute
}

func (f *Focuser) readConfig() (Config, error) {
	lines, err := f.hub.exchange(configCommand(f.target))
	if err != nil {
		return Config{}, err
	}
	b, err := parseBlock(lines)
	if err != nil {
		return Config{}, err
	}
	return parseConfig(b)
}

func (f *Focuser) readStatus() (Status, error) {
	lines, err := f.hub.exchange(statusCommand(f.target))
	if err != nil {
		return Status{}, err
	}
	b, err := parseBlock(lines)
	if err != nil {
		return Status{}, err
	}
	return parseStatus(b)
}

// State returns a snapshot of the focuser model.
func (f *Focuser) State() State {
	f.mu.Lock()
	defer f.mu.Unlock()

	return State{
		Target:         f.target,
		Nickname:       f.nickname,
		Firmware:       f.hub.Version().String(),
		Model:          f.model,
		Absolute:       f.absolute,
		Synced:         f.synced,
		SyncMandatory:  f.syncMandatory,
		Position:       f.status.Position,
		TargetPosition: f.status.Target,
		MaxPosition:    f.config.MaxPosition,
		StepSize:       f.config.StepSize,
		Temperature:    f.temperature,
		Flags:          f.status.Flags,
		Motion:         f.motion,
		TempComp:       f.config.TempComp,
		Backlash:       f.config.Backlash,
		LEDBrightness:  f.config.LEDBrightness,
	}
}

func (f *Focuser) ready() error {
	if !f.configured {
		return ErrNotConnected
	}
	return nil
}

func (f *Focuser) canMove() error {
	if err := f.ready(); err != nil {
		return err
	}
	if f.syncMandatory && !f.synced {
		return ErrSyncRequired
	}
	return nil
}

// hasReference reports whether absolute targets mean anything: the model is
// absolute, or a relative focuser has been synced or homed.
func (f *Focuser) hasReference() error {
	if !f.absolute && !f.synced {
		return fmt.Errorf("%w: sync or home the %s focuser first", ErrNotAbsolute, f.model.Code)
	}
	return nil
}

// MoveAbs starts a move to an absolute position.
func (f *Focuser) MoveAbs(pos uint32) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.canMove(); err != nil {
		return err
	}
	if err := f.hasReference(); err != nil {
		return err
	}
	return f.moveAbsLocked(pos)
}

func (f *Focuser) moveAbsLocked(pos uint32) error {
	if pos > f.config.MaxPosition {
		return fmt.Errorf("%w: position %d above maximum %d", ErrOutOfRange, pos, f.config.MaxPosition)
	}

	cmd, err := moveAbsCommand(f.target, pos)
	if err != nil {
		return err
	}
	if _, err := f.hub.exchange(cmd); err != nil {
		f.rejected()
		return err
	}

	f.startMotion(motionAbsolute, pos)
	f.logger.Debugf("Moving from %d to %d", f.status.Position, pos)
	return nil
}

// rejected records a motion command the controller refused. A move already
// underway keeps being tracked.
func (f *Focuser) rejected() {
	if !f.tracker.active() {
		f.motion = MotionAlert
	}
}

func (f *Focuser) startMotion(kind motionKind, to uint32) {
	f.tracker = tracker{
		kind:     kind,
		start:    f.clock.Now(),
		from:     f.status.Position,
		to:       to,
		expected: expectedDuration(f.status.Position, to),
	}
	f.status.Target = to
	f.status.Flags.Set(FlagMoving, true)
	f.motion = MotionBusy
}

// MoveRel moves ticks steps in dir, clamped to the travel range.
func (f *Focuser) MoveRel(dir Direction, ticks uint32) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.canMove(); err != nil {
		return err
	}
	target := relativeTarget(f.status.Position, f.config.MaxPosition, dir, ticks)
	return f.moveAbsLocked(target)
}

// MoveTimed moves continuously in dir for duration. Poll ends the move once
// the duration has elapsed.
func (f *Focuser) MoveTimed(dir Direction, speed Speed, duration time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.canMove(); err != nil {
		return err
	}
	if duration <= 0 || duration > maxTimedMove {
		return fmt.Errorf("%w: duration %s", ErrOutOfRange, duration)
	}

	if _, err := f.hub.exchange(moveDirCommand(f.target, dir, speed)); err != nil {
		f.rejected()
		return err
	}

	f.tracker = tracker{
		kind:      motionTimed,
		start:     f.clock.Now(),
		from:      f.status.Position,
		dir:       dir,
		requested: duration,
	}
	f.status.Flags.Set(FlagMoving, true)
	f.motion = MotionBusy
	f.logger.Debugf("Moving %s for %s", dir, duration)
	return nil
}

// Abort halts any motion.
func (f *Focuser) Abort() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.ready(); err != nil {
		return err
	}
	if _, err := f.hub.exchange(haltCommand(f.target)); err != nil {
		return err
	}

	f.tracker = tracker{}
	f.motion = MotionIdle
	f.status.Flags.Set(FlagMoving, false)
	f.status.Flags.Set(FlagHoming, false)
	f.logger.Info("Focuser halted")
	return nil
}

// Home seeks the home sensor. The focuser counts as synced once homing ends.
func (f *Focuser) Home() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.ready(); err != nil {
		return err
	}
	if _, err := f.hub.exchange(homeCommand(f.target)); err != nil {
		f.rejected()
		return err
	}

	f.startMotion(motionHoming, 0)
	f.tracker.expected = expectedDuration(0, f.config.MaxPosition)
	f.status.Flags.Set(FlagHoming, true)
	f.logger.Info("Homing focuser")
	return nil
}

// Center moves to half of the travel range.
func (f *Focuser) Center() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.canMove(); err != nil {
		return err
	}
	if err := f.hasReference(); err != nil {
		return err
	}
	if _, err := f.hub.exchange(centerCommand(f.target)); err != nil {
		f.rejected()
		return err
	}

	f.startMotion(motionAbsolute, f.config.MaxPosition/2)
	f.logger.Info("Centering focuser")
	return nil
}

// Sync declares the current position to be pos.
func (f *Focuser) Sync(pos uint32) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.ready(); err != nil {
		return err
	}
	if pos > f.config.MaxPosition {
		return fmt.Errorf("%w: position %d above maximum %d", ErrOutOfRange, pos, f.config.MaxPosition)
	}

	cmd, err := syncCommand(f.target, pos)
	if err != nil {
		return err
	}
	if _, err := f.hub.exchange(cmd); err != nil {
		return err
	}

	f.status.Position = pos
	f.status.Target = pos
	f.lastReported = pos
	f.synced = true
	f.logger.Infof("Focuser synced to %d", pos)
	return nil
}

// SetMaxPosition sets the travel limit.
func (f *Focuser) SetMaxPosition(pos uint32) error {
	return f.set(func() (Command, error) { return maxPositionCommand(f.target, pos) }, func() {
		f.config.MaxPosition = pos
	})
}

// SetReverse reverses the motor direction.
func (f *Focuser) SetReverse(on bool) error {
	return f.set(func() (Command, error) { return boolCommand(f.target, cmdReverse, on), nil }, func() {
		f.status.Flags.Set(FlagReverse, on)
	})
}

// SetBacklash sets the signed backlash compensation steps.
func (f *Focuser) SetBacklash(steps int32) error {
	return f.set(func() (Command, error) { return backlashStepsCommand(f.target, steps) }, func() {
		f.config.Backlash.Steps = steps
	})
}

func (f *Focuser) SetBacklashEnabled(on bool) error {
	return f.set(func() (Command, error) { return boolCommand(f.target, cmdBacklashEn, on), nil }, func() {
		f.config.Backlash.Enabled = on
	})
}

func (f *Focuser) SetTempComp(on bool) error {
	return f.set(func() (Command, error) { return boolCommand(f.target, cmdTempComp, on), nil }, func() {
		f.config.TempComp.Enabled = on
	})
}

func (f *Focuser) SetTempCompOnStart(on bool) error {
	return f.set(func() (Command, error) { return boolCommand(f.target, cmdTempCompStart, on), nil }, func() {
		f.config.TempComp.OnStart = on
	})
}

func (f *Focuser) SetTempCompMode(mode CompMode) error {
	return f.set(func() (Command, error) { return tempCompModeCommand(f.target, mode) }, func() {
		f.config.TempComp.Mode = mode
	})
}

// SetTempCoefficient sets the steps-per-degree coefficient of mode.
func (f *Focuser) SetTempCoefficient(mode CompMode, coeff int16) error {
	return f.set(func() (Command, error) { return tempCoeffCommand(f.target, mode, coeff) }, func() {
		f.config.TempComp.Coefficients[mode.index()] = coeff
	})
}

// SetTempIntercept sets the intercept of mode.
func (f *Focuser) SetTempIntercept(mode CompMode, intercept int32) error {
	return f.set(func() (Command, error) { return tempInterceptCommand(f.target, mode, intercept) }, func() {
		f.config.TempComp.Intercepts[mode.index()] = intercept
	})
}

func (f *Focuser) SetStepSize(size uint16) error {
	return f.set(func() (Command, error) { return stepSizeCommand(f.target, size), nil }, func() {
		f.config.StepSize = size
	})
}

func (f *Focuser) SetNickname(name string) error {
	return f.set(func() (Command, error) { return nicknameCommand(f.target, name) }, func() {
		f.nickname = name
		f.config.Nickname = name
	})
}

// SetDeviceType selects the focuser model. Switching to a relative model
// clears the synced state.
func (f *Focuser) SetDeviceType(code string) error {
	return f.set(func() (Command, error) { return deviceTypeCommand(f.target, code) }, func() {
		f.config.DeviceType = code
		f.setModel(code)
		if !f.absolute && !f.status.Flags.Has(FlagHomed) {
			f.synced = false
		}
	})
}

// SetSyncMandatory makes moves fail with ErrSyncRequired until the focuser
// has been synced or homed.
func (f *Focuser) SetSyncMandatory(on bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.syncMandatory = on
}

// ResetFactory restores factory defaults and reloads the configuration.
func (f *Focuser) ResetFactory() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.ready(); err != nil {
		return err
	}
	if _, err := f.hub.exchange(resetCommand(f.target)); err != nil {
		return err
	}
	f.logger.Warn("Focuser reset to factory settings")
	return f.refreshLocked()
}

// set sends a configuration command and applies it to the model on success.
func (f *Focuser) set(build func() (Command, error), apply func()) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.ready(); err != nil {
		return err
	}
	cmd, err := build()
	if err != nil {
		return err
	}
	if _, err := f.hub.exchange(cmd); err != nil {
		return err
	}
	apply()
	return nil
}

// Poll is called at a fixed cadence. It ends timed moves whose duration has
// elapsed, reads the status block and resolves the pending motion.
func (f *Focuser) Poll() (Update, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var up Update
	if err := f.ready(); err != nil {
		return up, err
	}

	now := f.clock.Now()
	if f.tracker.kind == motionTimed && timeLeft(f.tracker.start, now, f.tracker.requested) <= 0 {
		if _, err := f.hub.exchange(endRelativeCommand(f.target)); err != nil {
			f.motion = MotionAlert
			f.tracker = tracker{}
			return up, fmt.Errorf("failed to end timed move: %w", err)
		}
		f.tracker = tracker{kind: motionStopping, start: now, expected: motionBaseTimeout}
	}

	st, err := f.readStatus()
	if err != nil {
		return up, err
	}

	up.FlagsChanged = st.Flags != f.status.Flags
	f.status = st
	up.Flags = st.Flags
	up.Position = st.Position

	if f.polls%temperatureFreq == 0 && st.Temperature != f.temperature {
		f.temperature = st.Temperature
		up.TemperatureChanged = true
	}
	f.polls++
	up.Temperature = f.temperature

	if absDiff(st.Position, f.lastReported) > positionThreshold {
		f.lastReported = st.Position
		up.PositionChanged = true
	}

	if f.motion != MotionBusy || !f.tracker.active() || f.tracker.kind == motionTimed {
		return up, nil
	}

	if !st.Busy() {
		if f.tracker.kind == motionHoming {
			f.synced = true
		}
		f.tracker = tracker{}
		f.motion = MotionIdle
		f.lastReported = st.Position
		up.PositionChanged = true
		up.MotionDone = true
		f.logger.Debugf("Motion complete at %d", st.Position)
		return up, nil
	}

	if f.tracker.expired(now) {
		elapsed := now.Sub(f.tracker.start)
		f.tracker = tracker{}
		f.motion = MotionAlert
		if _, err := f.hub.exchange(haltCommand(f.target)); err != nil {
			f.logger.Errorf("Failed to halt after motion timeout: %v", err)
		}
		return up, fmt.Errorf("%w: still moving after %s at position %d", ErrMotionTimeout, elapsed.Round(time.Second), st.Position)
	}

	return up, nil
}
