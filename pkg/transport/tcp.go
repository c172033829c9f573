package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

// DefaultTCPPort is the port of the FocusLynx Ethernet and WiFi modules.
const DefaultTCPPort = 9760

const (
	dialTimeout  = 5 * time.Second
	drainTimeout = 20 * time.Millisecond
)

// TCP is a Transport over the network port of a hub.
type TCP struct {
	mu     sync.Mutex
	addr   string
	conn   net.Conn
	buf    lineBuffer
	logger log.FieldLogger
}

// DialTCP connects to a hub. The default port is used when addr has none.
func DialTCP(ctx context.Context, addr string, logger log.FieldLogger) (*TCP, error) {
	if logger == nil {
		logger = log.StandardLogger()
	}
	addr = withDefaultPort(addr)

	d := net.Dialer{Timeout: dialTimeout}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", addr, err)
	}

	logger.Infof("Connected to %s", addr)
	return &TCP{
		addr:   addr,
		conn:   conn,
		logger: logger.WithField("addr", addr),
	}, nil
}

func withDefaultPort(addr string) string {
	if _, _, err := net.SplitHostPort(addr); err == nil {
		return addr
	}
	return net.JoinHostPort(addr, strconv.Itoa(DefaultTCPPort))
}

func (t *TCP) Write(cmd string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.conn == nil {
		return errClosed
	}
	if err := t.conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return err
	}
	if _, err := t.conn.Write([]byte(cmd)); err != nil {
		return fmt.Errorf("tcp write failed: %w", err)
	}
	return nil
}

func (t *TCP) ReadLine(timeout time.Duration) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.conn == nil {
		return "", errClosed
	}
	return t.buf.readLine(t.read, timeout)
}

func (t *TCP) read(p []byte, d time.Duration) (int, error) {
	if err := t.conn.SetReadDeadline(time.Now().Add(d)); err != nil {
		return 0, err
	}
	n, err := t.conn.Read(p)
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return n, nil
	}
	if err != nil {
		return n, fmt.Errorf("tcp read failed: %w", err)
	}
	return n, nil
}

// Flush discards buffered input and anything already waiting on the socket.
func (t *TCP) Flush() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.conn == nil {
		return errClosed
	}
	t.buf.reset()

	var scratch [256]byte
	for {
		n, err := t.read(scratch[:], drainTimeout)
		if err != nil {
			return err
		}
		if n == 0 {
			return nil
		}
	}
}

func (t *TCP) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.conn == nil {
		return nil
	}
	err := t.conn.Close()
	t.conn = nil
	t.logger.Info("Connection closed")
	return err
}
