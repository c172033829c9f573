package lynx

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"
)

const (
	defaultSimRate     = 500 // steps per second at fast speed
	defaultSimFirmware = "2.1.1"
	defaultSimMaxPos   = 125440
	defaultSimLED      = 75
	defaultSimTemp     = 20.0
	simSlowDivider     = 4
)

// Simulator is an in-memory FocusLynx hub with two focuser channels. It
// implements Transport, so a Hub drives it exactly like the real controller.
// Motion advances with the injected clock.
type Simulator struct {
	mu       sync.Mutex
	clock    Clock
	rate     float64
	firmware string
	led      int
	closed   bool
	drop     int

	channels map[Target]*simChannel
	pending  []string
}

type simChannel struct {
	config      Config
	temperature float64
	flags       Flags

	position   uint32
	from       uint32
	target     uint32
	start      time.Time
	moving     bool
	homing     bool
	continuous bool
	dir        Direction
	speed      Speed
}

// NewSimulator returns a simulated hub using clock for motion.
func NewSimulator(clock Clock) *Simulator {
	if clock == nil {
		clock = SystemClock{}
	}
	s := &Simulator{
		clock:    clock,
		rate:     defaultSimRate,
		firmware: defaultSimFirmware,
		led:      defaultSimLED,
		channels: map[Target]*simChannel{
			TargetF1: newSimChannel("FocusLynx Foc1"),
			TargetF2: newSimChannel("FocusLynx Foc2"),
		},
	}
	return s
}

func newSimChannel(nickname string) *simChannel {
	c := &simChannel{temperature: defaultSimTemp}
	c.reset(nickname)
	return c
}

func (c *simChannel) reset(nickname string) {
	c.config = Config{
		Nickname:    nickname,
		MaxPosition: defaultSimMaxPos,
		DeviceType:  "OA",
		TempComp: TempCompConfig{
			Mode:         CompModeA,
			Coefficients: [compModes]int16{86, 86, 86, 86, 86},
		},
		Backlash: Backlash{Steps: 40},
		StepSize: 100,
	}
	c.flags = FlagTempProbe
}

// SetRate sets the fast motion rate in steps per second.
func (s *Simulator) SetRate(stepsPerSecond float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if stepsPerSecond > 0 {
		s.rate = stepsPerSecond
	}
}

// SetTemperature sets the probe temperature reported by a channel.
func (s *Simulator) SetTemperature(t Target, celsius float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.channels[t]; ok {
		c.temperature = celsius
	}
}

// SetDeviceType changes the model reported by a channel without a command.
func (s *Simulator) SetDeviceType(t Target, code string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.channels[t]; ok {
		c.config.DeviceType = code
	}
}

// Position returns the simulated position of a channel.
func (s *Simulator) Position(t Target) uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.channels[t]
	if !ok {
		return 0
	}
	s.settle(c)
	return c.position
}

// Stall keeps a channel reporting motion forever, as a jammed motor would.
func (s *Simulator) Stall(t Target) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.channels[t]; ok {
		c.moving = true
		c.continuous = false
		c.from = c.position
		c.target = c.position
		c.start = s.clock.Now().Add(24 * time.Hour)
	}
}

// DropReplies swallows the replies to the next n commands.
func (s *Simulator) DropReplies(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.drop = n
}

func (s *Simulator) Write(cmd string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrNotConnected
	}

	var reply []string
	t, body, err := parseCommand(cmd)
	if err != nil {
		reply = simError(1, "Unrecognized command")
	} else if t == TargetHub {
		reply = s.handleHub(body)
	} else {
		reply = s.handleFocuser(t, s.channels[t], body)
	}

	if s.drop > 0 {
		s.drop--
		return nil
	}
	s.pending = append(s.pending, reply...)
	return nil
}

func (s *Simulator) ReadLine(timeout time.Duration) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return "", ErrNotConnected
	}
	if len(s.pending) == 0 {
		return "", fmt.Errorf("%w: no reply within %s", ErrTimeout, timeout)
	}
	line := s.pending[0]
	s.pending = s.pending[1:]
	return line, nil
}

func (s *Simulator) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending = nil
	return nil
}

func (s *Simulator) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.pending = nil
	return nil
}

func (s *Simulator) handleHub(body string) []string {
	switch {
	case body == cmdHubInfo:
		return []string{
			replyAck,
			"HUB INFO",
			"Hub FVer = " + s.firmware,
			"Sleeping = 0",
			"Wired IP = 127.0.0.1",
			"WF Conn = 0",
			replyEnd,
		}
	case strings.HasPrefix(body, cmdLEDBrightness):
		n, err := simNumber(body[len(cmdLEDBrightness):], 3, false)
		if err != nil || n > maxLEDLevel {
			return simError(3, "Invalid LED level")
		}
		s.led = int(n)
		return simOK(replySet)
	}
	return simError(1, "Unrecognized command")
}

func (s *Simulator) handleFocuser(t Target, c *simChannel, body string) []string {
	now := s.clock.Now()
	s.settle(c)

	switch {
	case body == cmdHello:
		return simOK(c.config.Nickname)

	case body == cmdGetConfig:
		return s.configBlock(t, c)

	case body == cmdGetStatus:
		return s.statusBlock(t, c)

	case strings.HasPrefix(body, cmdMoveAbs):
		n, err := simNumber(body[len(cmdMoveAbs):], 6, false)
		if err != nil {
			return simError(2, "Invalid position")
		}
		if uint32(n) > c.config.MaxPosition {
			return simError(5, "Position out of range")
		}
		s.startMove(c, uint32(n), now)
		return simOK(replyMove)

	case strings.HasPrefix(body, cmdMoveIn), strings.HasPrefix(body, cmdMoveOut):
		arg := body[len(cmdMoveIn):]
		if arg != "0" && arg != "1" {
			return simError(2, "Invalid speed")
		}
		c.dir = DirInward
		if strings.HasPrefix(body, cmdMoveOut) {
			c.dir = DirOutward
		}
		c.speed = Speed(arg[0] - '0')
		c.from = c.position
		c.start = now
		c.moving = true
		c.homing = false
		c.continuous = true
		return simOK(replyMove)

	case body == cmdEndRelative:
		c.moving = false
		c.continuous = false
		c.target = c.position
		return simOK(replyStopped)

	case body == cmdHalt:
		c.moving = false
		c.homing = false
		c.continuous = false
		c.target = c.position
		return simOK(replyHalted)

	case body == cmdHome:
		s.startMove(c, 0, now)
		if c.moving {
			c.homing = true
			c.flags.Set(FlagHomed, false)
		} else {
			c.flags.Set(FlagHomed, true)
		}
		return simOK(replyHome)

	case body == cmdCenter:
		s.startMove(c, c.config.MaxPosition/2, now)
		return simOK(replyMove)

	case strings.HasPrefix(body, cmdSyncPosition):
		n, err := simNumber(body[len(cmdSyncPosition):], 6, false)
		if err != nil || uint32(n) > c.config.MaxPosition {
			return simError(5, "Position out of range")
		}
		if c.moving {
			return simError(6, "Focuser is moving")
		}
		c.position = uint32(n)
		c.target = c.position
		return simOK(replySet)

	case strings.HasPrefix(body, cmdMaxPosition):
		n, err := simNumber(body[len(cmdMaxPosition):], 6, false)
		if err != nil || n == 0 {
			return simError(5, "Position out of range")
		}
		c.config.MaxPosition = uint32(n)
		return simOK(replySet)

	case strings.HasPrefix(body, cmdReverse):
		return simBool(body[len(cmdReverse):], func(on bool) { c.flags.Set(FlagReverse, on) })

	case strings.HasPrefix(body, cmdTempCompMode):
		mode, err := ParseCompMode(body[len(cmdTempCompMode):])
		if err != nil {
			return simError(3, "Invalid mode")
		}
		c.config.TempComp.Mode = mode
		return simOK(replySet)

	case strings.HasPrefix(body, cmdTempCoeff):
		mode, n, err := simModeValue(body[len(cmdTempCoeff):], 4)
		if err != nil {
			return simError(3, "Invalid coefficient")
		}
		c.config.TempComp.Coefficients[mode.index()] = int16(n)
		return simOK(replySet)

	case strings.HasPrefix(body, cmdTempIntercept):
		mode, n, err := simModeValue(body[len(cmdTempIntercept):], 6)
		if err != nil {
			return simError(3, "Invalid intercept")
		}
		c.config.TempComp.Intercepts[mode.index()] = int32(n)
		return simOK(replySet)

	case strings.HasPrefix(body, cmdTempCompStart):
		return simBool(body[len(cmdTempCompStart):], func(on bool) { c.config.TempComp.OnStart = on })

	case strings.HasPrefix(body, cmdTempComp):
		return simBool(body[len(cmdTempComp):], func(on bool) { c.config.TempComp.Enabled = on })

	case strings.HasPrefix(body, cmdBacklashEn):
		return simBool(body[len(cmdBacklashEn):], func(on bool) { c.config.Backlash.Enabled = on })

	case strings.HasPrefix(body, cmdBacklashSteps):
		n, err := simNumber(body[len(cmdBacklashSteps):], 2, true)
		if err != nil {
			return simError(3, "Invalid backlash")
		}
		c.config.Backlash.Steps = int32(n)
		return simOK(replySet)

	case strings.HasPrefix(body, cmdStepSize):
		n, err := simNumber(body[len(cmdStepSize):], 5, false)
		if err != nil || n > 0xffff {
			return simError(3, "Invalid step size")
		}
		c.config.StepSize = uint16(n)
		return simOK(replySet)

	case strings.HasPrefix(body, cmdNickname):
		name := body[len(cmdNickname):]
		if name == "" || len(name) > maxNicknameLen {
			return simError(3, "Invalid nickname")
		}
		c.config.Nickname = name
		return simOK(replySet)

	case strings.HasPrefix(body, cmdDeviceType):
		code := body[len(cmdDeviceType):]
		if _, ok := LookupModel(code); !ok {
			return simError(3, "Invalid device type")
		}
		c.config.DeviceType = code
		return simOK(replySet)

	case body == cmdReset:
		c.reset(fmt.Sprintf("FocusLynx Foc%c", t[1]))
		s.led = defaultSimLED
		return simOK(replySet)
	}

	return simError(1, "Unrecognized command")
}

func (s *Simulator) startMove(c *simChannel, target uint32, now time.Time) {
	c.from = c.position
	c.target = target
	c.start = now
	c.moving = c.position != target
	c.homing = false
	c.continuous = false
	c.speed = SpeedFast
}

// settle advances the channel to the position it has reached by now.
func (s *Simulator) settle(c *simChannel) {
	if !c.moving {
		return
	}

	elapsed := s.clock.Now().Sub(c.start)
	if elapsed < 0 {
		return
	}
	rate := s.rate
	if c.speed == SpeedSlow {
		rate /= simSlowDivider
	}
	travelled := uint64(elapsed.Seconds() * rate)

	if c.continuous {
		if c.dir == DirInward {
			if travelled >= uint64(c.from) {
				c.position = 0
			} else {
				c.position = c.from - uint32(travelled)
			}
		} else {
			next := uint64(c.from) + travelled
			if next > uint64(c.config.MaxPosition) {
				next = uint64(c.config.MaxPosition)
			}
			c.position = uint32(next)
		}
		c.target = c.position
		return
	}

	distance := uint64(absDiff(c.from, c.target))
	if travelled >= distance {
		c.position = c.target
		c.moving = false
		if c.homing {
			c.homing = false
			c.flags.Set(FlagHomed, true)
		}
		return
	}
	if c.target > c.from {
		c.position = c.from + uint32(travelled)
	} else {
		c.position = c.from - uint32(travelled)
	}
}

func (s *Simulator) statusBlock(t Target, c *simChannel) []string {
	flags := c.flags
	flags.Set(FlagMoving, c.moving)
	flags.Set(FlagHoming, c.homing)

	lines := []string{
		replyAck,
		"STATUS" + string(t[1]),
		fmt.Sprintf("Temp(C) = %+.1f", c.temperature),
		fmt.Sprintf("Curr Pos = %06d", c.position),
		fmt.Sprintf("Targ Pos = %06d", c.target),
	}
	for _, fn := range flagNames {
		lines = append(lines, fmt.Sprintf("%s = %d", fn.key, boolToInt(flags.Has(fn.flag))))
	}
	return append(lines, replyEnd)
}

func (s *Simulator) configBlock(t Target, c *simChannel) []string {
	cfg := c.config
	lines := []string{
		replyAck,
		"CONFIG" + string(t[1]),
		"Nickname = " + cfg.Nickname,
		fmt.Sprintf("Max Pos = %06d", cfg.MaxPosition),
		"DevTyp = " + cfg.DeviceType,
		fmt.Sprintf("TComp ON = %d", boolToInt(cfg.TempComp.Enabled)),
	}
	for i := 0; i < compModes; i++ {
		lines = append(lines, fmt.Sprintf("TemCo %c = %+05d", 'A'+i, cfg.TempComp.Coefficients[i]))
	}
	for i := 0; i < compModes; i++ {
		lines = append(lines, fmt.Sprintf("TemIn %c = %+07d", 'A'+i, cfg.TempComp.Intercepts[i]))
	}
	lines = append(lines,
		"TC Mode = "+cfg.TempComp.Mode.String(),
		fmt.Sprintf("BLC En = %d", boolToInt(cfg.Backlash.Enabled)),
		fmt.Sprintf("BLC Stps = %+03d", cfg.Backlash.Steps),
		fmt.Sprintf("LED Brt = %03d", s.led),
		fmt.Sprintf("TC@Start = %d", boolToInt(cfg.TempComp.OnStart)),
		fmt.Sprintf("StepSize = %05d", cfg.StepSize),
		replyEnd,
	)
	return lines
}

func simOK(line string) []string {
	return []string{replyAck, line}
}

func simError(code int, msg string) []string {
	return []string{fmt.Sprintf("ER=%d %s", code, msg)}
}

func simBool(arg string, apply func(bool)) []string {
	switch arg {
	case "0":
		apply(false)
	case "1":
		apply(true)
	default:
		return simError(3, "Invalid value")
	}
	return simOK(replySet)
}

// simNumber parses exactly digits decimal digits, preceded by a sign when signed.
func simNumber(s string, digits int, signed bool) (int64, error) {
	neg := false
	if signed {
		if len(s) == 0 || (s[0] != '+' && s[0] != '-') {
			return 0, ErrMalformedResponse
		}
		neg = s[0] == '-'
		s = s[1:]
	}
	if len(s) != digits {
		return 0, ErrMalformedResponse
	}
	n, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return 0, ErrMalformedResponse
	}
	if neg {
		return -int64(n), nil
	}
	return int64(n), nil
}

func simModeValue(s string, digits int) (CompMode, int64, error) {
	if len(s) < 2 {
		return 0, 0, ErrMalformedResponse
	}
	mode := CompMode(s[0])
	if !mode.Valid() {
		return 0, 0, ErrMalformedResponse
	}
	n, err := simNumber(s[1:], digits, true)
	return mode, n, err
}
