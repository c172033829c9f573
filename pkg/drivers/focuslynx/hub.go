package focuslynx

import (
	"context"
	"fmt"
	"strings"
	"sync"

	log "github.com/sirupsen/logrus"

	"lynx-alpaca/pkg/lynx"
	"lynx-alpaca/pkg/transport"
)

// SimulatorAddress selects the built-in simulated hub.
const SimulatorAddress = "sim"

// Opener opens the link to the hub at address.
type Opener func(ctx context.Context, address string, logger log.FieldLogger) (lynx.Transport, error)

// DefaultOpener opens serial and TCP links, or a simulator for SimulatorAddress.
func DefaultOpener(ctx context.Context, address string, logger log.FieldLogger) (lynx.Transport, error) {
	if address == SimulatorAddress {
		return lynx.NewSimulator(lynx.SystemClock{}), nil
	}
	return transport.Open(ctx, address, logger)
}

type sharedHub struct {
	ready chan struct{} // closed when the first Acquire is done opening
	hub   *lynx.Hub
	err   error
	refs  int
}

func (sh *sharedHub) opened() bool {
	select {
	case <-sh.ready:
		return true
	default:
		return false
	}
}

// HubPool shares one hub connection between the F1 and F2 devices. The link
// is opened by the first device that connects and closed by the last one.
// Opening happens outside the pool lock, so a slow serial port only holds up
// callers of the same address.
type HubPool struct {
	mu     sync.Mutex
	open   Opener
	opts   []lynx.Option
	hubs   map[string]*sharedHub
	logger log.FieldLogger
}

func NewHubPool(open Opener, logger log.FieldLogger, opts ...lynx.Option) *HubPool {
	if open == nil {
		open = DefaultOpener
	}
	return &HubPool{
		open:   open,
		opts:   opts,
		hubs:   make(map[string]*sharedHub),
		logger: logger,
	}
}

// Acquire returns the hub at address, connecting and handshaking on first use.
// Concurrent callers for an address being opened wait for that attempt.
func (p *HubPool) Acquire(ctx context.Context, address string) (*lynx.Hub, error) {
	address = strings.TrimSpace(address)

	for {
		p.mu.Lock()
		sh, ok := p.hubs[address]
		if !ok {
			break
		}
		if sh.opened() {
			sh.refs++
			p.mu.Unlock()
			return sh.hub, nil
		}
		p.mu.Unlock()

		select {
		case <-sh.ready:
			if sh.err != nil {
				return nil, sh.err
			}
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	sh := &sharedHub{ready: make(chan struct{})}
	p.hubs[address] = sh
	p.mu.Unlock()

	hub, err := p.connect(ctx, address)

	p.mu.Lock()
	if err != nil {
		sh.err = err
		delete(p.hubs, address)
	} else {
		sh.hub = hub
		sh.refs = 1
	}
	close(sh.ready)
	p.mu.Unlock()

	return hub, err
}

func (p *HubPool) connect(ctx context.Context, address string) (*lynx.Hub, error) {
	logger := p.logger.WithField("hub", address)
	t, err := p.open(ctx, address, logger)
	if err != nil {
		return nil, err
	}

	opts := append([]lynx.Option{lynx.WithLogger(logger)}, p.opts...)
	hub, err := lynx.NewHub(t, opts...)
	if err != nil {
		t.Close()
		return nil, err
	}
	if err := hub.Handshake(); err != nil {
		hub.Close()
		return nil, err
	}
	return hub, nil
}

// Release drops one reference and closes the hub when none remain.
func (p *HubPool) Release(address string) error {
	address = strings.TrimSpace(address)

	p.mu.Lock()
	defer p.mu.Unlock()

	sh, ok := p.hubs[address]
	if !ok || !sh.opened() {
		return fmt.Errorf("hub %s is not open", address)
	}
	sh.refs--
	if sh.refs > 0 {
		return nil
	}
	delete(p.hubs, address)
	p.logger.Infof("Closing hub %s", address)
	return sh.hub.Close()
}

// Refs returns how many devices hold the hub at address.
func (p *HubPool) Refs(address string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	if sh, ok := p.hubs[strings.TrimSpace(address)]; ok {
		return sh.refs
	}
	return 0
}
