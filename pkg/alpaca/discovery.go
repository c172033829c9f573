package alpaca

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
)

// DiscoveryPort is the UDP port Alpaca clients broadcast to.
const DiscoveryPort = 32227

const discoveryMessage = "alpacadiscovery1"

// DiscoveryResponder responds to Alpaca discovery requests.
type DiscoveryResponder struct {
	conn           *net.UDPConn
	alpacaResponse []byte
	logger         log.FieldLogger
}

// NewDiscoveryResponder binds the discovery socket on addr:port. The reply
// advertises alpacaPort.
func NewDiscoveryResponder(addr string, port, alpacaPort int, logger log.FieldLogger) (*DiscoveryResponder, error) {
	deviceAddress, err := net.ResolveUDPAddr("udp", net.JoinHostPort(addr, fmt.Sprint(port)))
	if err != nil {
		return nil, fmt.Errorf("cannot resolve device address: %v", err)
	}

	conn, err := net.ListenUDP("udp", deviceAddress)
	if err != nil {
		return nil, fmt.Errorf("cannot bind discovery socket: %v", err)
	}

	return &DiscoveryResponder{
		conn:           conn,
		alpacaResponse: []byte(fmt.Sprintf(`{"AlpacaPort":%d}`, alpacaPort)),
		logger:         logger,
	}, nil
}

// LocalAddr returns the bound discovery address.
func (d *DiscoveryResponder) LocalAddr() net.Addr {
	return d.conn.LocalAddr()
}

// Run answers discovery requests until ctx is cancelled, then closes the socket.
func (d *DiscoveryResponder) Run(ctx context.Context) error {
	defer d.conn.Close()

	buf := make([]byte, 1024)
	d.logger.Debugf("Discovery responder started on %s", d.conn.LocalAddr())
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		// Set a read deadline to periodically check for context cancellation
		d.conn.SetReadDeadline(time.Now().Add(500 * time.Millisecond))

		n, addr, err := d.conn.ReadFromUDP(buf)
		if err != nil {
			if errors.Is(err, os.ErrDeadlineExceeded) {
				continue
			}
			if errors.Is(err, net.ErrClosed) {
				return err
			}
			d.logger.Debugf("Error reading from socket: %v", err)
			continue
		}

		data := string(buf[:n])
		d.logger.Debugf("Received %s from %s", data, addr)

		if strings.Contains(data, discoveryMessage) {
			if _, err := d.conn.WriteToUDP(d.alpacaResponse, addr); err != nil {
				d.logger.Errorf("Error writing to socket: %v", err)
			}
		}
	}
}
