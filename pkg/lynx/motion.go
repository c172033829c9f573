package lynx

import "time"

// MotionState is the outcome of the last motion request.
type MotionState int

const (
	MotionIdle MotionState = iota
	MotionBusy
	MotionAlert
)

func (s MotionState) String() string {
	switch s {
	case MotionBusy:
		return "busy"
	case MotionAlert:
		return "alert"
	default:
		return "idle"
	}
}

const (
	motionBaseTimeout = 10 * time.Second
	motionRate        = 250 // steps per second, slowest supported motor
	maxTimedMove      = 60 * time.Second
	positionThreshold = 5  // steps before a position change is reported
	temperatureFreq   = 20 // polls between temperature updates
)

type motionKind int

const (
	motionNone motionKind = iota
	motionAbsolute
	motionTimed
	motionStopping
	motionHoming
)

// tracker follows one motion request until the controller reports it finished.
type tracker struct {
	kind      motionKind
	start     time.Time
	from, to  uint32
	dir       Direction
	requested time.Duration // requested duration of a timed move
	expected  time.Duration // deadline for the other kinds
}

func (t tracker) active() bool { return t.kind != motionNone }

// expired reports whether a move has run past its expected duration.
func (t tracker) expired(now time.Time) bool {
	if t.kind == motionTimed {
		return false
	}
	return now.Sub(t.start) > t.expected
}

// expectedDuration estimates how long a move between two positions may take.
func expectedDuration(from, to uint32) time.Duration {
	delta := int64(to) - int64(from)
	if delta < 0 {
		delta = -delta
	}
	return motionBaseTimeout + time.Duration(delta)*time.Second/motionRate
}

// timeLeft returns the remaining time of a timed move requested at start.
func timeLeft(start, now time.Time, requested time.Duration) time.Duration {
	return requested - now.Sub(start)
}

// relativeTarget applies a step offset to pos, clamped to [0, limit].
func relativeTarget(pos, limit uint32, dir Direction, ticks uint32) uint32 {
	if dir == DirInward {
		if ticks > pos {
			return 0
		}
		return pos - ticks
	}
	if uint64(pos)+uint64(ticks) > uint64(limit) {
		return limit
	}
	return pos + ticks
}

func absDiff(a, b uint32) uint32 {
	if a > b {
		return a - b
	}
	return b - a
}
