package lynx

import "time"

// Transport carries framed commands to a FocusLynx hub and returns its reply lines.
//
// ReadLine returns one reply line without its line terminator. When no complete
// line arrives within timeout it returns an error wrapping ErrTimeout.
type Transport interface {
	Write(cmd string) error
	ReadLine(timeout time.Duration) (string, error)
	Flush() error
	Close() error
}

// Clock supplies the elapsed-time source used for motion tracking.
type Clock interface {
	Now() time.Time
}

// SystemClock is the wall clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }
