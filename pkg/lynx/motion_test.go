package lynx

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestExpectedDuration(t *testing.T) {
	assert.Equal(t, motionBaseTimeout, expectedDuration(100, 100))
	assert.Equal(t, motionBaseTimeout+4*time.Second, expectedDuration(0, 1000))
	assert.Equal(t, motionBaseTimeout+4*time.Second, expectedDuration(1000, 0))
}

func TestTrackerExpired(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	tr := tracker{kind: motionAbsolute, start: start, expected: 5 * time.Second}
	assert.False(t, tr.expired(start.Add(5*time.Second)))
	assert.True(t, tr.expired(start.Add(6*time.Second)))

	timed := tracker{kind: motionTimed, start: start, requested: time.Second}
	assert.False(t, timed.expired(start.Add(time.Hour)))

	assert.False(t, tracker{}.active())
	assert.True(t, tr.active())
}

func TestTimeLeft(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, 2*time.Second, timeLeft(start, start.Add(time.Second), 3*time.Second))
	assert.Equal(t, -time.Second, timeLeft(start, start.Add(4*time.Second), 3*time.Second))
}

func TestRelativeTarget(t *testing.T) {
	tests := []struct {
		name     string
		pos      uint32
		dir      Direction
		ticks    uint32
		expected uint32
	}{
		{"Outward", 100, DirOutward, 50, 150},
		{"Inward", 100, DirInward, 50, 50},
		{"Inward clamps at zero", 100, DirInward, 500, 0},
		{"Outward clamps at limit", 900, DirOutward, 500, 1000},
		{"Outward overflow", 900, DirOutward, ^uint32(0), 1000},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, relativeTarget(tc.pos, 1000, tc.dir, tc.ticks))
		})
	}
}

func TestMotionStateString(t *testing.T) {
	assert.Equal(t, "idle", MotionIdle.String())
	assert.Equal(t, "busy", MotionBusy.String())
	assert.Equal(t, "alert", MotionAlert.String())
}
