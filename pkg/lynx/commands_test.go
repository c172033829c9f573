package lynx

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCommandEncoding(t *testing.T) {
	must := func(c Command, err error) Command {
		require.NoError(t, err)
		return c
	}

	tests := []struct {
		name  string
		cmd   Command
		wire  string
		reply string
	}{
		{"Hello", helloCommand(TargetF1), "<F1HELLO>", ""},
		{"Hub info", hubInfoCommand(), "<FHGETHUBINFO>", ""},
		{"Move absolute", must(moveAbsCommand(TargetF2, 1234)), "<F2MA001234>", replyMove},
		{"Move inward slow", moveDirCommand(TargetF1, DirInward, SpeedSlow), "<F1MIR0>", replyMove},
		{"Move outward fast", moveDirCommand(TargetF1, DirOutward, SpeedFast), "<F1MOR1>", replyMove},
		{"End relative", endRelativeCommand(TargetF1), "<F1ENDR>", replyStopped},
		{"Halt", haltCommand(TargetF1), "<F1HALT>", replyHalted},
		{"Home", homeCommand(TargetF2), "<F2HOME>", replyHome},
		{"Center", centerCommand(TargetF1), "<F1CENTER>", replyMove},
		{"Sync", must(syncCommand(TargetF1, 500)), "<F1SCCP000500>", replySet},
		{"Max position", must(maxPositionCommand(TargetF1, 125440)), "<F1SCMX125440>", replySet},
		{"Reverse on", boolCommand(TargetF1, cmdReverse, true), "<F1REVERSE1>", replySet},
		{"Temp comp off", boolCommand(TargetF1, cmdTempComp, false), "<F1SCTE0>", replySet},
		{"Comp mode", must(tempCompModeCommand(TargetF1, CompModeC)), "<F1SCTMC>", replySet},
		{"Coefficient", must(tempCoeffCommand(TargetF1, CompModeA, -86)), "<F1SCTCA-0086>", replySet},
		{"Intercept", must(tempInterceptCommand(TargetF1, CompModeE, 1500)), "<F1SCTIE+001500>", replySet},
		{"Backlash", must(backlashStepsCommand(TargetF1, -40)), "<F1SCBS-40>", replySet},
		{"Step size", stepSizeCommand(TargetF1, 250), "<F1SCSS00250>", replySet},
		{"Nickname", must(nicknameCommand(TargetF1, "Main Scope")), "<F1SCNNMain Scope>", replySet},
		{"Device type", must(deviceTypeCommand(TargetF2, "FA")), "<F2SCDTFA>", replySet},
		{"LED", must(ledCommand(5)), "<FHSCLB005>", replySet},
		{"Reset", resetCommand(TargetF1), "<F1RESET>", replySet},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.wire, tc.cmd.String())
			assert.Equal(t, tc.reply, tc.cmd.Reply)
			assert.LessOrEqual(t, len(tc.cmd.String()), maxCommandLen)
		})
	}
}

func TestCommandRangeChecks(t *testing.T) {
	_, err := moveAbsCommand(TargetF1, maxPosition+1)
	assert.ErrorIs(t, err, ErrOutOfRange)

	_, err = maxPositionCommand(TargetF1, 0)
	assert.ErrorIs(t, err, ErrOutOfRange)

	_, err = tempCoeffCommand(TargetF1, CompModeA, 10000)
	assert.ErrorIs(t, err, ErrOutOfRange)

	_, err = tempCoeffCommand(TargetF1, CompMode('F'), 1)
	assert.ErrorIs(t, err, ErrOutOfRange)

	_, err = tempInterceptCommand(TargetF1, CompModeA, -1000000)
	assert.ErrorIs(t, err, ErrOutOfRange)

	_, err = backlashStepsCommand(TargetF1, 100)
	assert.ErrorIs(t, err, ErrOutOfRange)

	_, err = nicknameCommand(TargetF1, "")
	assert.ErrorIs(t, err, ErrOutOfRange)

	_, err = nicknameCommand(TargetF1, "a<b>")
	assert.ErrorIs(t, err, ErrOutOfRange)

	_, err = nicknameCommand(TargetF1, "this name is far too long")
	assert.ErrorIs(t, err, ErrOutOfRange)

	_, err = deviceTypeCommand(TargetF1, "XX")
	assert.ErrorIs(t, err, ErrOutOfRange)

	_, err = ledCommand(101)
	assert.ErrorIs(t, err, ErrOutOfRange)
}

func TestParseCommand(t *testing.T) {
	target, body, err := parseCommand("<F2MA001000>")
	require.NoError(t, err)
	assert.Equal(t, TargetF2, target)
	assert.Equal(t, "MA001000", body)

	for _, bad := range []string{"F1HELLO", "<F3HELLO>", "<F1HELLO", "<>"} {
		_, _, err := parseCommand(bad)
		assert.ErrorIs(t, err, ErrMalformedResponse, bad)
	}
}

func TestParseTarget(t *testing.T) {
	target, err := ParseTarget("f2")
	require.NoError(t, err)
	assert.Equal(t, TargetF2, target)

	_, err = ParseTarget("FH")
	assert.Error(t, err)
}

func TestFlags(t *testing.T) {
	var f Flags
	assert.Equal(t, "NONE", f.String())

	f.Set(FlagMoving, true)
	f.Set(FlagReverse, true)
	assert.True(t, f.Has(FlagMoving))
	assert.False(t, f.Has(FlagHomed))
	assert.Equal(t, "MOVING|REVERSE", f.String())

	m := f.Map()
	assert.Len(t, m, 8)
	assert.True(t, m["REVERSE"])
	assert.False(t, m["HAND_CONTROL"])

	f.Set(FlagMoving, false)
	assert.Equal(t, FlagReverse, f)
}

func TestModels(t *testing.T) {
	m, ok := LookupModel("OA")
	require.True(t, ok)
	assert.True(t, m.Absolute)

	m, ok = LookupModel("SO")
	require.True(t, ok)
	assert.False(t, m.Absolute)

	_, ok = LookupModel("QQ")
	assert.False(t, ok)

	list := Models()
	assert.Len(t, list, 18)
	assert.Equal(t, "FA", list[0].Code)
}
