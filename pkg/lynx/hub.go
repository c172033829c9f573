package lynx

import (
	"errors"
	"fmt"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

// Hub is a connection to a FocusLynx hub. A hub drives up to two focusers
// (F1 and F2) over a single link, so every exchange is serialized here.
type Hub struct {
	mu          sync.Mutex
	transport   Transport
	readTimeout time.Duration
	retries     int
	clock       Clock
	logger      log.FieldLogger

	info    HubInfo
	version Version
}

// NewHub wraps an open transport.
func NewHub(t Transport, opts ...Option) (*Hub, error) {
	if t == nil {
		return nil, ErrNotConnected
	}

	cfg := defaultHubConfig()
	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, fmt.Errorf("invalid option: %w", err)
		}
	}

	return &Hub{
		transport:   t,
		readTimeout: cfg.readTimeout,
		retries:     cfg.retries,
		clock:       cfg.clock,
		logger:      cfg.logger.WithField("component", "hub"),
	}, nil
}

// Close closes the underlying transport.
func (h *Hub) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.transport == nil {
		return nil
	}
	err := h.transport.Close()
	h.transport = nil
	return err
}

// Clock returns the time source shared by the focusers of this hub.
func (h *Hub) Clock() Clock {
	return h.clock
}

// Handshake reads the hub information and firmware version.
func (h *Hub) Handshake() error {
	info, err := h.Info()
	if err != nil {
		return fmt.Errorf("hub handshake failed: %w", err)
	}

	v, err := ParseVersion(info.Firmware)
	if err != nil {
		return fmt.Errorf("hub handshake failed: %w", err)
	}

	h.mu.Lock()
	h.info = info
	h.version = v
	h.mu.Unlock()

	h.logger.Infof("FocusLynx hub firmware version: %s", v)
	return nil
}

// Info queries the hub information block.
func (h *Hub) Info() (HubInfo, error) {
	lines, err := h.exchange(hubInfoCommand())
	if err != nil {
		return HubInfo{}, err
	}
	b, err := parseBlock(lines)
	if err != nil {
		return HubInfo{}, err
	}
	return parseHubInfo(b)
}

// Version returns the firmware version read during Handshake.
func (h *Hub) Version() Version {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.version
}

// SetLEDBrightness sets the hub LED level, 0 to 100.
func (h *Hub) SetLEDBrightness(level int) error {
	cmd, err := ledCommand(level)
	if err != nil {
		return err
	}
	_, err = h.exchange(cmd)
	return err
}

// Raw sends a framed command and returns every reply line received until the
// line timeout expires. It is meant for diagnostics.
func (h *Hub) Raw(cmd string) ([]string, error) {
	if len(cmd) > maxCommandLen {
		return nil, fmt.Errorf("%w: command longer than %d characters", ErrOutOfRange, maxCommandLen)
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.transport == nil {
		return nil, ErrNotConnected
	}

	if err := h.transport.Flush(); err != nil {
		return nil, err
	}
	h.logger.Debugf("Sending raw command: %s", cmd)
	if err := h.transport.Write(cmd); err != nil {
		return nil, err
	}

	var lines []string
	for {
		line, err := h.transport.ReadLine(h.readTimeout)
		if errors.Is(err, ErrTimeout) {
			break
		}
		if err != nil {
			return lines, err
		}
		lines = append(lines, line)
		if line == replyEnd {
			break
		}
	}
	return lines, nil
}

// exchange sends a command and reads its reply. On a read timeout the input is
// flushed and the command resent, up to the configured number of retries.
func (h *Hub) exchange(cmd Command) ([]string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.transport == nil {
		return nil, ErrNotConnected
	}

	wire := cmd.String()
	if len(wire) > maxCommandLen {
		return nil, fmt.Errorf("%w: command longer than %d characters", ErrOutOfRange, maxCommandLen)
	}

	var err error
	for attempt := 0; attempt <= h.retries; attempt++ {
		if attempt > 0 {
			h.logger.Warnf("Retrying %s after timeout (%d/%d)", wire, attempt, h.retries)
			if ferr := h.transport.Flush(); ferr != nil {
				return nil, fmt.Errorf("failed to flush input: %w", ferr)
			}
		}

		h.logger.Debugf("Sending command: %s", wire)
		if err = h.transport.Write(wire); err != nil {
			return nil, fmt.Errorf("failed to send %s: %w", wire, err)
		}

		var lines []string
		lines, err = h.readReply(cmd)
		if err == nil {
			h.logger.Debugf("Response: %q", lines)
			return lines, nil
		}
		if !errors.Is(err, ErrTimeout) {
			return nil, err
		}
	}
	return nil, fmt.Errorf("%s: %w", wire, err)
}

func (h *Hub) readReply(cmd Command) ([]string, error) {
	first, err := h.readLine()
	if err != nil {
		return nil, err
	}
	if first != replyAck {
		return nil, parseDeviceError(cmd.String(), first)
	}

	switch cmd.kind {
	case replyBlock:
		var lines []string
		for {
			line, err := h.readLine()
			if err != nil {
				return nil, err
			}
			lines = append(lines, line)
			if line == replyEnd {
				return lines, nil
			}
			if len(lines) > maxBlockLines {
				return nil, fmt.Errorf("%w: %s reply exceeds %d lines", ErrMalformedResponse, cmd, maxBlockLines)
			}
		}

	case replyLine:
		line, err := h.readLine()
		if err != nil {
			return nil, err
		}
		return []string{line}, nil

	default:
		line, err := h.readLine()
		if err != nil {
			return nil, err
		}
		if line != cmd.Reply {
			return nil, fmt.Errorf("%w: expected %q to %s, got %q", ErrMalformedResponse, cmd.Reply, cmd, line)
		}
		return []string{line}, nil
	}
}

func (h *Hub) readLine() (string, error) {
	line, err := h.transport.ReadLine(h.readTimeout)
	if err != nil {
		return "", err
	}
	if len(line) > maxReplyLen {
		return "", fmt.Errorf("%w: reply longer than %d characters", ErrMalformedResponse, maxReplyLen)
	}
	return line, nil
}
