package lynx

import (
	"errors"
	"time"

	log "github.com/sirupsen/logrus"
)

const (
	defaultReadTimeout = 3 * time.Second
	defaultRetries     = 1
)

// Option configures a Hub.
type Option func(*hubConfig) error

type hubConfig struct {
	readTimeout time.Duration
	retries     int
	clock       Clock
	logger      log.FieldLogger
}

func defaultHubConfig() *hubConfig {
	return &hubConfig{
		readTimeout: defaultReadTimeout,
		retries:     defaultRetries,
		clock:       SystemClock{},
		logger:      log.StandardLogger(),
	}
}

// WithReadTimeout sets how long to wait for each reply line.
// Default is 3 seconds.
func WithReadTimeout(d time.Duration) Option {
	return func(c *hubConfig) error {
		if d <= 0 {
			return errors.New("read timeout must be positive")
		}
		c.readTimeout = d
		return nil
	}
}

// WithRetries sets how many times a command is resent after a read timeout.
// Default is 1.
func WithRetries(n int) Option {
	return func(c *hubConfig) error {
		if n < 0 {
			return errors.New("retries must not be negative")
		}
		c.retries = n
		return nil
	}
}

// WithClock sets the time source used for motion tracking.
func WithClock(clock Clock) Option {
	return func(c *hubConfig) error {
		if clock == nil {
			return errors.New("clock must not be nil")
		}
		c.clock = clock
		return nil
	}
}

// WithLogger sets the logger. Default is the logrus standard logger.
func WithLogger(logger log.FieldLogger) Option {
	return func(c *hubConfig) error {
		if logger == nil {
			return errors.New("logger must not be nil")
		}
		c.logger = logger
		return nil
	}
}
