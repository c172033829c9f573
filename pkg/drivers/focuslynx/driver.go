package focuslynx

import (
	"context"
	"errors"
	"fmt"
	"html/template"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	bolt "go.etcd.io/bbolt"

	"lynx-alpaca/pkg/alpaca"
	"lynx-alpaca/pkg/lynx"
)

const (
	deviceType       = alpaca.DeviceTypeFocuser
	driverName       = "FocusLynx Alpaca Driver"
	driverVersion    = "1.0"
	interfaceVersion = 4

	pollInterval   = 500 * time.Millisecond
	connectTimeout = 10 * time.Second
)

type connState int

const (
	connStateDisconnected connState = iota
	connStateConnecting
	connStateConnected
)

// Driver is one FocusLynx focuser channel exposed as an Alpaca Focuser.
type Driver struct {
	mu     sync.Mutex
	number int
	store  *store
	pool   *HubPool
	tmpl   *template.Template
	state  connState
	logger log.FieldLogger

	pollInterval time.Duration

	// Created when the driver is connected
	address   string
	focuser   *lynx.Focuser
	telemetry *telemetry
	cancel    context.CancelFunc
	done      chan struct{}
}

func NewDriver(number int, db *bolt.DB, pool *HubPool, tmpl *template.Template, logger log.FieldLogger) (*Driver, error) {
	store, err := newStore(db, number)
	if err != nil {
		return nil, fmt.Errorf("failed to create store: %v", err)
	}

	driver := Driver{
		number:       number,
		store:        store,
		pool:         pool,
		tmpl:         tmpl,
		state:        connStateDisconnected,
		logger:       logger,
		pollInterval: pollInterval,
	}
	return &driver, nil
}

func (d *Driver) Close() {
	d.logger.Info("Closing FocusLynx driver")

	if d.Connected() {
		if err := d.Disconnect(); err != nil {
			d.logger.Errorf("failed to disconnect: %v", err)
		}
	}
}

func (d *Driver) Connect() error {
	cfg, err := d.store.GetConfig()
	if err != nil {
		return fmt.Errorf("failed to get focuser config: %v", err)
	}
	target, err := lynx.ParseTarget(cfg.Target)
	if err != nil {
		return alpaca.InvalidValue("invalid focuser target: %v", err)
	}

	d.mu.Lock()
	if d.state != connStateDisconnected {
		d.mu.Unlock()
		return alpaca.InvalidOperation("driver is already connected")
	}
	d.state = connStateConnecting
	d.mu.Unlock()

	focuser, err := d.open(cfg, target)
	if err != nil {
		d.mu.Lock()
		d.state = connStateDisconnected
		d.mu.Unlock()
		return translate(err)
	}

	var tel *telemetry
	if cfg.MQTT.Enabled {
		client, err := createMQTTClient(cfg.MQTT, fmt.Sprintf("lynx-alpaca-%s", cfg.UniqueID))
		if err != nil {
			d.logger.Warnf("Telemetry disabled: %v", err)
		} else {
			tel = newTelemetry(client, cfg.MQTT.TopicRoot, d.logger.WithField("component", "telemetry"))
		}
	}

	ctx, cancel := context.WithCancel(context.Background())

	d.mu.Lock()
	d.address = cfg.Address
	d.focuser = focuser
	d.telemetry = tel
	d.cancel = cancel
	d.done = make(chan struct{})
	d.state = connStateConnected
	done := d.done
	interval := d.pollInterval
	d.mu.Unlock()

	go func() {
		defer close(done)
		d.run(ctx, focuser, tel, interval)
	}()

	st := focuser.State()
	d.logger.Infof("Connected to %s (%s, firmware %s)", st.Nickname, st.Model.Name, st.Firmware)
	return nil
}

// open acquires the shared hub and handshakes with the focuser channel.
func (d *Driver) open(cfg Config, target lynx.Target) (*lynx.Focuser, error) {
	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()

	hub, err := d.pool.Acquire(ctx, cfg.Address)
	if err != nil {
		return nil, err
	}

	focuser := lynx.NewFocuser(hub, target, d.logger)
	focuser.SetSyncMandatory(cfg.SyncMandatory)
	if err := focuser.Handshake(); err != nil {
		d.pool.Release(cfg.Address)
		return nil, err
	}
	if err := d.applyConfig(focuser, cfg); err != nil {
		d.pool.Release(cfg.Address)
		return nil, err
	}
	return focuser, nil
}

// applyConfig writes the stored model and step size to the controller when
// they differ from what it reports.
func (d *Driver) applyConfig(f *lynx.Focuser, cfg Config) error {
	st := f.State()
	if cfg.DeviceType != "" && cfg.DeviceType != st.Model.Code {
		d.logger.Infof("Setting device type %s (controller had %s)", cfg.DeviceType, st.Model.Code)
		if err := f.SetDeviceType(cfg.DeviceType); err != nil {
			return fmt.Errorf("failed to set device type: %w", err)
		}
	}
	if cfg.StepSize != 0 && cfg.StepSize != st.StepSize {
		d.logger.Infof("Setting step size %d", cfg.StepSize)
		if err := f.SetStepSize(cfg.StepSize); err != nil {
			return fmt.Errorf("failed to set step size: %w", err)
		}
	}
	return nil
}

// saveConfig updates the stored config of the device.
func (d *Driver) saveConfig(update func(*Config)) error {
	cfg, err := d.store.GetConfig()
	if err != nil {
		return err
	}
	update(&cfg)
	return d.store.SetConfig(cfg)
}

func (d *Driver) Disconnect() error {
	d.mu.Lock()
	if d.state != connStateConnected {
		d.mu.Unlock()
		return alpaca.ErrNotConnected
	}
	cancel, done := d.cancel, d.done
	d.mu.Unlock()

	cancel()
	<-done

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.telemetry != nil {
		d.telemetry.close()
		d.telemetry = nil
	}
	err := d.pool.Release(d.address)
	d.focuser = nil
	d.cancel = nil
	d.state = connStateDisconnected
	d.logger.Info("Disconnected from focuser")
	return err
}

// run is the poll loop of a connected focuser.
func (d *Driver) run(ctx context.Context, f *lynx.Focuser, tel *telemetry, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	if tel != nil {
		tel.publishStatus(f.State())
	}

	var lastErr string
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		up, err := f.Poll()
		if err != nil {
			// Log repeated failures once.
			if err.Error() != lastErr {
				d.logger.Errorf("Poll failed: %v", err)
				lastErr = err.Error()
			}
			if tel != nil && errors.Is(err, lynx.ErrMotionTimeout) {
				tel.publishState(stateAlert)
			}
			continue
		}
		if lastErr != "" {
			d.logger.Info("Polling recovered")
			lastErr = ""
		}

		if up.MotionDone {
			d.logger.Debugf("Move complete at %d", up.Position)
		}
		if tel != nil && (up.PositionChanged || up.MotionDone || up.FlagsChanged || up.TemperatureChanged) {
			tel.publishStatus(f.State())
		}
	}
}

func (d *Driver) Connecting() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state == connStateConnecting
}

func (d *Driver) Connected() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state == connStateConnected
}

// connected returns the focuser or ErrNotConnected.
func (d *Driver) connected() (*lynx.Focuser, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.state != connStateConnected {
		return nil, alpaca.ErrNotConnected
	}
	return d.focuser, nil
}

func (d *Driver) GetState() []alpaca.StateProperty {
	props := []alpaca.StateProperty{
		{
			Name:  "TimeStamp",
			Value: time.Now().Format(time.RFC3339),
		},
	}

	f, err := d.connected()
	if err != nil {
		return props
	}
	st := f.State()
	status := alpaca.FocuserStatus{
		IsMoving:    st.Moving(),
		Position:    int(st.Position),
		Temperature: st.Temperature,
	}
	for _, p := range status.ToProperties() {
		// Relative focusers have no position.
		if p.Name == "Position" && !st.Absolute {
			continue
		}
		props = append(props, p)
	}
	return props
}

func (d *Driver) DeviceInfo() alpaca.DeviceInfo {
	cfg, _ := d.store.GetConfig()
	return alpaca.DeviceInfo{
		Name:        fmt.Sprintf("FocusLynx %s", cfg.Target),
		Description: fmt.Sprintf("Optec FocusLynx focuser %s on %s", cfg.Target, cfg.Address),
		Type:        deviceType,
		Number:      d.number,
		UniqueID:    cfg.UniqueID,
	}
}

func (d *Driver) DriverInfo() alpaca.DriverInfo {
	return alpaca.DriverInfo{
		Name:             driverName,
		Version:          driverVersion,
		InterfaceVersion: interfaceVersion,
	}
}

func (d *Driver) Absolute() (bool, error) {
	f, err := d.connected()
	if err != nil {
		return false, err
	}
	return f.State().Absolute, nil
}

func (d *Driver) IsMoving() (bool, error) {
	f, err := d.connected()
	if err != nil {
		return false, err
	}
	return f.State().Moving(), nil
}

// MaxIncrement is the configured limit, or the full travel when unset.
func (d *Driver) MaxIncrement() (int, error) {
	f, err := d.connected()
	if err != nil {
		return 0, err
	}
	return d.maxIncrement(f.State()), nil
}

func (d *Driver) maxIncrement(st lynx.State) int {
	travel := int(st.MaxPosition)
	cfg, err := d.store.GetConfig()
	if err == nil && cfg.MaxIncrement > 0 && cfg.MaxIncrement < travel {
		return cfg.MaxIncrement
	}
	return travel
}

func (d *Driver) MaxStep() (int, error) {
	f, err := d.connected()
	if err != nil {
		return 0, err
	}
	return int(f.State().MaxPosition), nil
}

func (d *Driver) Position() (int, error) {
	f, err := d.connected()
	if err != nil {
		return 0, err
	}
	st := f.State()
	if !st.Absolute {
		return 0, alpaca.ErrNotImplemented
	}
	return int(st.Position), nil
}

// StepSize reports microns per step. The controller stores hundredths of a micron.
func (d *Driver) StepSize() (float64, error) {
	f, err := d.connected()
	if err != nil {
		return 0, err
	}
	st := f.State()
	if st.StepSize == 0 {
		return 0, alpaca.ErrNotImplemented
	}
	return float64(st.StepSize) / 100, nil
}

func (d *Driver) TempComp() (bool, error) {
	f, err := d.connected()
	if err != nil {
		return false, err
	}
	return f.State().TempComp.Enabled, nil
}

func (d *Driver) SetTempComp(on bool) error {
	f, err := d.connected()
	if err != nil {
		return err
	}
	if !f.State().Flags.Has(lynx.FlagTempProbe) {
		return alpaca.ErrNotImplemented
	}
	return translate(f.SetTempComp(on))
}

func (d *Driver) TempCompAvailable() (bool, error) {
	f, err := d.connected()
	if err != nil {
		return false, err
	}
	return f.State().Flags.Has(lynx.FlagTempProbe), nil
}

func (d *Driver) Temperature() (float64, error) {
	f, err := d.connected()
	if err != nil {
		return 0, err
	}
	st := f.State()
	if !st.Flags.Has(lynx.FlagTempProbe) {
		return 0, alpaca.ErrNotImplemented
	}
	return st.Temperature, nil
}

func (d *Driver) Halt() error {
	f, err := d.connected()
	if err != nil {
		return err
	}
	return translate(f.Abort())
}

// Move goes to an absolute position, or by a signed offset on relative models.
func (d *Driver) Move(position int) error {
	f, err := d.connected()
	if err != nil {
		return err
	}
	st := f.State()

	if st.Absolute {
		if position < 0 || position > int(st.MaxPosition) {
			return alpaca.InvalidValue("position %d outside 0-%d", position, st.MaxPosition)
		}
		return translate(f.MoveAbs(uint32(position)))
	}

	dir, ticks := lynx.DirOutward, position
	if position < 0 {
		dir, ticks = lynx.DirInward, -position
	}
	if limit := d.maxIncrement(st); ticks > limit {
		return alpaca.InvalidValue("move of %d steps exceeds the maximum increment %d", position, limit)
	}
	return translate(f.MoveRel(dir, uint32(ticks)))
}

// translate maps controller errors to Alpaca errors.
func translate(err error) error {
	if err == nil {
		return nil
	}

	var de *lynx.DeviceError
	switch {
	case errors.Is(err, lynx.ErrNotConnected):
		return alpaca.ErrNotConnected
	case errors.Is(err, lynx.ErrOutOfRange):
		return alpaca.InvalidValue("%v", err)
	case errors.Is(err, lynx.ErrSyncRequired), errors.Is(err, lynx.ErrNotAbsolute):
		return alpaca.InvalidOperation("%v", err)
	case errors.As(err, &de):
		return &alpaca.Error{Number: alpaca.ErrNumUnspecified, Message: de.Error()}
	}
	return err
}
