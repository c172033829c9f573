package transport

import (
	"fmt"
	"io"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"go.bug.st/serial"
)

// BaudRate of the FocusLynx USB and RS-232 ports.
const BaudRate = 115200

const writeTimeout = time.Second

// Serial is a Transport over a serial port. The device is locked for the
// lifetime of the connection so a second driver cannot open it.
type Serial struct {
	mu     sync.Mutex
	name   string
	port   serial.Port
	lock   io.Closer
	buf    lineBuffer
	logger log.FieldLogger
}

// OpenSerial opens and locks a serial device at 115200 8N1.
func OpenSerial(name string, logger log.FieldLogger) (*Serial, error) {
	if logger == nil {
		logger = log.StandardLogger()
	}

	lock, err := lockDevice(name)
	if err != nil {
		return nil, err
	}

	mode := &serial.Mode{
		BaudRate: BaudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	port, err := serial.Open(name, mode)
	if err != nil {
		lock.Close()
		return nil, fmt.Errorf("failed to open serial port %s: %w", name, err)
	}
	if err := port.ResetInputBuffer(); err != nil {
		port.Close()
		lock.Close()
		return nil, fmt.Errorf("failed to reset serial port %s: %w", name, err)
	}

	logger.Infof("Opened serial port %s at %d baud", name, BaudRate)
	return &Serial{
		name:   name,
		port:   port,
		lock:   lock,
		logger: logger.WithField("port", name),
	}, nil
}

// ListPorts returns the serial ports present on the system.
func ListPorts() ([]string, error) {
	return serial.GetPortsList()
}

func (s *Serial) Write(cmd string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.port == nil {
		return errClosed
	}
	n, err := s.port.Write([]byte(cmd))
	if err != nil {
		return fmt.Errorf("serial write failed: %w", err)
	}
	if n != len(cmd) {
		return fmt.Errorf("serial write failed: wrote %d of %d bytes", n, len(cmd))
	}
	return s.port.Drain()
}

func (s *Serial) ReadLine(timeout time.Duration) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.port == nil {
		return "", errClosed
	}
	return s.buf.readLine(s.read, timeout)
}

func (s *Serial) read(p []byte, d time.Duration) (int, error) {
	if err := s.port.SetReadTimeout(d); err != nil {
		return 0, err
	}
	n, err := s.port.Read(p)
	if err != nil {
		return 0, fmt.Errorf("serial read failed: %w", err)
	}
	return n, nil
}

func (s *Serial) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.port == nil {
		return errClosed
	}
	s.buf.reset()
	return s.port.ResetInputBuffer()
}

func (s *Serial) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.port == nil {
		return nil
	}
	err := s.port.Close()
	if lerr := s.lock.Close(); err == nil {
		err = lerr
	}
	s.port = nil
	s.logger.Info("Closed serial port")
	return err
}
