// Package transport provides the serial and TCP links to a FocusLynx hub.
package transport

import (
	"context"
	"errors"
	"fmt"
	"strings"

	log "github.com/sirupsen/logrus"

	"lynx-alpaca/pkg/lynx"
)

// ErrPortBusy is returned when another process holds the serial device.
var ErrPortBusy = errors.New("serial port is in use")

var errClosed = fmt.Errorf("transport closed: %w", lynx.ErrNotConnected)

// Open connects to a hub. Addresses of the form "tcp://host[:port]" use the
// network link, anything else names a serial device.
func Open(ctx context.Context, address string, logger log.FieldLogger) (lynx.Transport, error) {
	if host, ok := strings.CutPrefix(address, "tcp://"); ok {
		t, err := DialTCP(ctx, host, logger)
		if err != nil {
			return nil, err
		}
		return t, nil
	}
	if address == "" {
		return nil, errors.New("no serial port configured")
	}
	s, err := OpenSerial(address, logger)
	if err != nil {
		return nil, err
	}
	return s, nil
}
