package lynx

import (
	"fmt"
	"strings"
)

// Target selects which part of the hub a command is addressed to.
type Target string

const (
	TargetHub Target = "FH"
	TargetF1  Target = "F1"
	TargetF2  Target = "F2"
)

// ParseTarget accepts "F1", "F2" (case-insensitive) and rejects anything else.
func ParseTarget(s string) (Target, error) {
	switch Target(strings.ToUpper(strings.TrimSpace(s))) {
	case TargetF1:
		return TargetF1, nil
	case TargetF2:
		return TargetF2, nil
	}
	return "", fmt.Errorf("%w: unknown focuser target %q", ErrOutOfRange, s)
}

// Direction of a continuous move.
type Direction int

const (
	DirInward Direction = iota
	DirOutward
)

func (d Direction) String() string {
	if d == DirOutward {
		return "outward"
	}
	return "inward"
}

// Speed of a continuous move.
type Speed int

const (
	SpeedSlow Speed = iota
	SpeedFast
)

// Command bodies
const (
	// Information commands
	cmdHello     = "HELLO"      // Read the focuser nickname
	cmdHubInfo   = "GETHUBINFO" // Read hub firmware and network information
	cmdGetConfig = "GETCONFIG"  // Read focuser configuration block
	cmdGetStatus = "GETSTATUS"  // Read focuser status block

	// Motion commands
	cmdMoveAbs     = "MA"     // Move to absolute position
	cmdMoveIn      = "MIR"    // Start continuous inward move
	cmdMoveOut     = "MOR"    // Start continuous outward move
	cmdEndRelative = "ENDR"   // End continuous move
	cmdHalt        = "HALT"   // Stop any motion
	cmdHome        = "HOME"   // Seek the home sensor
	cmdCenter      = "CENTER" // Move to half of the travel

	// Configuration commands
	cmdSyncPosition  = "SCCP"    // Set current position
	cmdMaxPosition   = "SCMX"    // Set maximum position
	cmdReverse       = "REVERSE" // Reverse motor direction
	cmdTempComp      = "SCTE"    // Enable temperature compensation
	cmdTempCompMode  = "SCTM"    // Select temperature compensation mode
	cmdTempCoeff     = "SCTC"    // Set coefficient of a mode
	cmdTempIntercept = "SCTI"    // Set intercept of a mode
	cmdTempCompStart = "SCTS"    // Compensate at power-up
	cmdBacklashEn    = "SCBE"    // Enable backlash compensation
	cmdBacklashSteps = "SCBS"    // Set backlash compensation steps
	cmdStepSize      = "SCSS"    // Set step size
	cmdNickname      = "SCNN"    // Set focuser nickname
	cmdDeviceType    = "SCDT"    // Set focuser model
	cmdLEDBrightness = "SCLB"    // Set hub LED brightness
	cmdReset         = "RESET"   // Restore factory defaults
)

// Final reply lines confirming a command
const (
	replyAck     = "!"
	replyEnd     = "END"
	replySet     = "SET"
	replyMove    = "M"
	replyHome    = "H"
	replyHalted  = "HALTED"
	replyStopped = "STOPPED"
)

const (
	maxCommandLen  = 64
	maxReplyLen    = 64
	maxBlockLines  = 32
	maxNicknameLen = 16
	maxPosition    = 999999
	maxCoefficient = 9999
	maxIntercept   = 999999
	maxBacklash    = 99
	maxLEDLevel    = 100
)

type replyKind int

const (
	replyExact replyKind = iota // one line equal to Command.Reply
	replyLine                   // one line with any content
	replyBlock                  // header, key = value lines, END
)

// Command is a framed request together with the reply that confirms it.
type Command struct {
	Target Target
	Body   string
	Reply  string
	kind   replyKind
}

// String returns the wire form of the command.
func (c Command) String() string {
	return "<" + string(c.Target) + c.Body + ">"
}

func setCommand(t Target, body string) Command {
	return Command{Target: t, Body: body, Reply: replySet}
}

func helloCommand(t Target) Command {
	return Command{Target: t, Body: cmdHello, kind: replyLine}
}

func hubInfoCommand() Command {
	return Command{Target: TargetHub, Body: cmdHubInfo, kind: replyBlock}
}

func configCommand(t Target) Command {
	return Command{Target: t, Body: cmdGetConfig, kind: replyBlock}
}

func statusCommand(t Target) Command {
	return Command{Target: t, Body: cmdGetStatus, kind: replyBlock}
}

func moveAbsCommand(t Target, pos uint32) (Command, error) {
	if pos > maxPosition {
		return Command{}, fmt.Errorf("%w: position %d", ErrOutOfRange, pos)
	}
	return Command{Target: t, Body: fmt.Sprintf("%s%06d", cmdMoveAbs, pos), Reply: replyMove}, nil
}

func moveDirCommand(t Target, dir Direction, speed Speed) Command {
	body := cmdMoveIn
	if dir == DirOutward {
		body = cmdMoveOut
	}
	s := 0
	if speed == SpeedFast {
		s = 1
	}
	return Command{Target: t, Body: fmt.Sprintf("%s%d", body, s), Reply: replyMove}
}

func endRelativeCommand(t Target) Command {
	return Command{Target: t, Body: cmdEndRelative, Reply: replyStopped}
}

func haltCommand(t Target) Command {
	return Command{Target: t, Body: cmdHalt, Reply: replyHalted}
}

func homeCommand(t Target) Command {
	return Command{Target: t, Body: cmdHome, Reply: replyHome}
}

func centerCommand(t Target) Command {
	return Command{Target: t, Body: cmdCenter, Reply: replyMove}
}

func syncCommand(t Target, pos uint32) (Command, error) {
	if pos > maxPosition {
		return Command{}, fmt.Errorf("%w: position %d", ErrOutOfRange, pos)
	}
	return setCommand(t, fmt.Sprintf("%s%06d", cmdSyncPosition, pos)), nil
}

func maxPositionCommand(t Target, pos uint32) (Command, error) {
	if pos == 0 || pos > maxPosition {
		return Command{}, fmt.Errorf("%w: max position %d", ErrOutOfRange, pos)
	}
	return setCommand(t, fmt.Sprintf("%s%06d", cmdMaxPosition, pos)), nil
}

func boolCommand(t Target, body string, on bool) Command {
	return setCommand(t, fmt.Sprintf("%s%d", body, boolToInt(on)))
}

func tempCompModeCommand(t Target, mode CompMode) (Command, error) {
	if !mode.Valid() {
		return Command{}, fmt.Errorf("%w: compensation mode %q", ErrOutOfRange, rune(mode))
	}
	return setCommand(t, fmt.Sprintf("%s%c", cmdTempCompMode, mode)), nil
}

func tempCoeffCommand(t Target, mode CompMode, coeff int16) (Command, error) {
	if !mode.Valid() {
		return Command{}, fmt.Errorf("%w: compensation mode %q", ErrOutOfRange, rune(mode))
	}
	sign, abs := signed(int64(coeff))
	if abs > maxCoefficient {
		return Command{}, fmt.Errorf("%w: coefficient %d", ErrOutOfRange, coeff)
	}
	return setCommand(t, fmt.Sprintf("%s%c%c%04d", cmdTempCoeff, mode, sign, abs)), nil
}

func tempInterceptCommand(t Target, mode CompMode, intercept int32) (Command, error) {
	if !mode.Valid() {
		return Command{}, fmt.Errorf("%w: compensation mode %q", ErrOutOfRange, rune(mode))
	}
	sign, abs := signed(int64(intercept))
	if abs > maxIntercept {
		return Command{}, fmt.Errorf("%w: intercept %d", ErrOutOfRange, intercept)
	}
	return setCommand(t, fmt.Sprintf("%s%c%c%06d", cmdTempIntercept, mode, sign, abs)), nil
}

func backlashStepsCommand(t Target, steps int32) (Command, error) {
	sign, abs := signed(int64(steps))
	if abs > maxBacklash {
		return Command{}, fmt.Errorf("%w: backlash %d", ErrOutOfRange, steps)
	}
	return setCommand(t, fmt.Sprintf("%s%c%02d", cmdBacklashSteps, sign, abs)), nil
}

func stepSizeCommand(t Target, size uint16) Command {
	return setCommand(t, fmt.Sprintf("%s%05d", cmdStepSize, size))
}

func nicknameCommand(t Target, name string) (Command, error) {
	if name == "" || len(name) > maxNicknameLen {
		return Command{}, fmt.Errorf("%w: nickname must be 1-%d characters", ErrOutOfRange, maxNicknameLen)
	}
	for _, r := range name {
		if r < 0x20 || r > 0x7e || r == '<' || r == '>' {
			return Command{}, fmt.Errorf("%w: nickname contains %q", ErrOutOfRange, r)
		}
	}
	return setCommand(t, cmdNickname+name), nil
}

func deviceTypeCommand(t Target, code string) (Command, error) {
	if _, ok := LookupModel(code); !ok {
		return Command{}, fmt.Errorf("%w: unknown device type %q", ErrOutOfRange, code)
	}
	return setCommand(t, cmdDeviceType+code), nil
}

func ledCommand(level int) (Command, error) {
	if level < 0 || level > maxLEDLevel {
		return Command{}, fmt.Errorf("%w: LED level %d", ErrOutOfRange, level)
	}
	return setCommand(TargetHub, fmt.Sprintf("%s%03d", cmdLEDBrightness, level)), nil
}

func resetCommand(t Target) Command {
	return setCommand(t, cmdReset)
}

// parseCommand splits a wire command into its target and body.
func parseCommand(s string) (Target, string, error) {
	s = strings.TrimSpace(s)
	if len(s) < 4 || s[0] != '<' || s[len(s)-1] != '>' {
		return "", "", fmt.Errorf("%w: bad framing %q", ErrMalformedResponse, s)
	}
	inner := s[1 : len(s)-1]
	t := Target(inner[:2])
	switch t {
	case TargetHub, TargetF1, TargetF2:
	default:
		return "", "", fmt.Errorf("%w: unknown target in %q", ErrMalformedResponse, s)
	}
	return t, inner[2:], nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func signed(v int64) (byte, int64) {
	if v < 0 {
		return '-', -v
	}
	return '+', v
}
