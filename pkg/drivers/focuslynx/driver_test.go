package focuslynx

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	bolt "go.etcd.io/bbolt"

	"lynx-alpaca/pkg/alpaca"
	"lynx-alpaca/pkg/lynx"
	"lynx-alpaca/templates"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type testEnv struct {
	db    *bolt.DB
	clock *fakeClock
	sim   *lynx.Simulator
	pool  *HubPool
	opens int
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db, err := bolt.Open(filepath.Join(t.TempDir(), "alpaca.db"), 0600, nil)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	env := &testEnv{
		db:    db,
		clock: &fakeClock{now: time.Date(2024, 6, 1, 23, 0, 0, 0, time.UTC)},
	}
	env.sim = lynx.NewSimulator(env.clock)

	logger := log.New()
	logger.SetLevel(log.WarnLevel)

	open := func(ctx context.Context, address string, logger log.FieldLogger) (lynx.Transport, error) {
		env.opens++
		return env.sim, nil
	}
	env.pool = NewHubPool(open, logger, lynx.WithClock(env.clock), lynx.WithReadTimeout(time.Millisecond))
	return env
}

func (env *testEnv) newDriver(t *testing.T, number int) *Driver {
	t.Helper()

	tmpl, err := templates.LoadTemplates()
	require.NoError(t, err)

	logger := log.New()
	logger.SetLevel(log.WarnLevel)

	d, err := NewDriver(number, env.db, env.pool, tmpl, logger.WithField("device", number))
	require.NoError(t, err)
	d.pollInterval = 5 * time.Millisecond
	return d
}

func (env *testEnv) connect(t *testing.T, number int) *Driver {
	t.Helper()
	d := env.newDriver(t, number)
	require.NoError(t, d.Connect())
	t.Cleanup(d.Close)
	return d
}

func TestDriverConnectDisconnect(t *testing.T) {
	env := newTestEnv(t)
	d := env.newDriver(t, 0)

	assert.False(t, d.Connected())
	require.NoError(t, d.Connect())
	assert.True(t, d.Connected())
	assert.False(t, d.Connecting())
	assert.Equal(t, 1, env.pool.Refs(SimulatorAddress))

	assert.ErrorIs(t, d.Connect(), &alpaca.Error{Number: alpaca.ErrNumInvalidOperation})

	require.NoError(t, d.Disconnect())
	assert.False(t, d.Connected())
	assert.Equal(t, 0, env.pool.Refs(SimulatorAddress))

	assert.ErrorIs(t, d.Disconnect(), alpaca.ErrNotConnected)
}

func TestDriverSharedHub(t *testing.T) {
	env := newTestEnv(t)

	f1 := env.connect(t, 0)
	f2 := env.connect(t, 1)

	assert.Equal(t, 1, env.opens)
	assert.Equal(t, 2, env.pool.Refs(SimulatorAddress))
	assert.Equal(t, "FocusLynx F1", f1.DeviceInfo().Name)
	assert.Equal(t, "FocusLynx F2", f2.DeviceInfo().Name)

	require.NoError(t, f1.Disconnect())
	assert.Equal(t, 1, env.pool.Refs(SimulatorAddress))

	pos, err := f2.MaxStep()
	require.NoError(t, err)
	assert.Positive(t, pos)
}

func TestDriverNotConnected(t *testing.T) {
	env := newTestEnv(t)
	d := env.newDriver(t, 0)

	_, err := d.Position()
	assert.ErrorIs(t, err, alpaca.ErrNotConnected)
	_, err = d.IsMoving()
	assert.ErrorIs(t, err, alpaca.ErrNotConnected)
	_, err = d.Temperature()
	assert.ErrorIs(t, err, alpaca.ErrNotConnected)
	assert.ErrorIs(t, d.Move(10), alpaca.ErrNotConnected)
	assert.ErrorIs(t, d.Halt(), alpaca.ErrNotConnected)

	_, err = d.Action("status", "")
	assert.ErrorIs(t, err, alpaca.ErrNotConnected)

	props := d.GetState()
	require.Len(t, props, 1)
	assert.Equal(t, "TimeStamp", props[0].Name)
}

func TestDriverMove(t *testing.T) {
	env := newTestEnv(t)
	d := env.connect(t, 0)

	absolute, err := d.Absolute()
	require.NoError(t, err)
	assert.True(t, absolute)

	require.NoError(t, d.Move(1000))
	moving, err := d.IsMoving()
	require.NoError(t, err)
	assert.True(t, moving)

	env.clock.Advance(3 * time.Second)
	assert.Eventually(t, func() bool {
		moving, err := d.IsMoving()
		return err == nil && !moving
	}, time.Second, 5*time.Millisecond)

	pos, err := d.Position()
	require.NoError(t, err)
	assert.Equal(t, 1000, pos)

	props := d.GetState()
	assert.Contains(t, props, alpaca.StateProperty{Name: "Position", Value: 1000})
	assert.Contains(t, props, alpaca.StateProperty{Name: "IsMoving", Value: false})
}

func TestDriverMoveInvalid(t *testing.T) {
	env := newTestEnv(t)
	d := env.connect(t, 0)

	invalid := &alpaca.Error{Number: alpaca.ErrNumInvalidValue}
	assert.ErrorIs(t, d.Move(-1), invalid)

	limit, err := d.MaxStep()
	require.NoError(t, err)
	assert.ErrorIs(t, d.Move(limit+1), invalid)
}

func TestDriverHalt(t *testing.T) {
	env := newTestEnv(t)
	d := env.connect(t, 0)

	require.NoError(t, d.Move(50000))
	env.clock.Advance(time.Second)
	require.NoError(t, d.Halt())

	moving, err := d.IsMoving()
	require.NoError(t, err)
	assert.False(t, moving)
	assert.Equal(t, uint32(500), env.sim.Position(lynx.TargetF1))
}

func TestDriverRelativeFocuser(t *testing.T) {
	env := newTestEnv(t)
	d := env.connect(t, 0)

	_, err := d.Action("devicetype", "so")
	require.NoError(t, err)

	absolute, err := d.Absolute()
	require.NoError(t, err)
	assert.False(t, absolute)

	_, err = d.Position()
	assert.ErrorIs(t, err, alpaca.ErrNotImplemented)

	require.NoError(t, d.Move(400))
	env.clock.Advance(time.Second)
	assert.Eventually(t, func() bool {
		moving, err := d.IsMoving()
		return err == nil && !moving
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, uint32(400), env.sim.Position(lynx.TargetF1))

	require.NoError(t, d.Move(-150))
	env.clock.Advance(time.Second)
	assert.Eventually(t, func() bool {
		return env.sim.Position(lynx.TargetF1) == 250
	}, time.Second, 5*time.Millisecond)

	cfg, err := d.store.GetConfig()
	require.NoError(t, err)
	cfg.MaxIncrement = 100
	require.NoError(t, d.store.SetConfig(cfg))

	inc, err := d.MaxIncrement()
	require.NoError(t, err)
	assert.Equal(t, 100, inc)
	assert.ErrorIs(t, d.Move(-101), &alpaca.Error{Number: alpaca.ErrNumInvalidValue})
}

func TestDriverSyncMandatory(t *testing.T) {
	env := newTestEnv(t)
	d := env.connect(t, 0)

	_, err := d.Action("devicetype", "TA")
	require.NoError(t, err)
	_, err = d.Action("syncmandatory", "true")
	require.NoError(t, err)

	assert.ErrorIs(t, d.Move(10), &alpaca.Error{Number: alpaca.ErrNumInvalidOperation})

	_, err = d.Action("sync", "100")
	require.NoError(t, err)
	require.NoError(t, d.Move(10))

	cfg, err := d.store.GetConfig()
	require.NoError(t, err)
	assert.True(t, cfg.SyncMandatory)
}

func TestDriverRejectedMoveStillMoving(t *testing.T) {
	env := newTestEnv(t)
	d := env.connect(t, 0)

	require.NoError(t, d.Move(50000))

	f, err := d.connected()
	require.NoError(t, err)
	_, err = f.Hub().Raw("<F1SCMX000100>")
	require.NoError(t, err)

	assert.ErrorIs(t, d.Move(60000), &alpaca.Error{Number: alpaca.ErrNumUnspecified})

	env.clock.Advance(2 * time.Second)
	assert.Eventually(t, func() bool {
		return env.sim.Position(lynx.TargetF1) == 1000
	}, time.Second, 5*time.Millisecond)

	moving, err := d.IsMoving()
	require.NoError(t, err)
	assert.True(t, moving)
	assert.Contains(t, d.GetState(), alpaca.StateProperty{Name: "IsMoving", Value: true})
}

func TestDriverHandControllerMove(t *testing.T) {
	env := newTestEnv(t)
	d := env.connect(t, 0)

	// A move the driver did not start.
	f, err := d.connected()
	require.NoError(t, err)
	_, err = f.Hub().Raw("<F1MA020000>")
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		moving, err := d.IsMoving()
		return err == nil && moving
	}, time.Second, 5*time.Millisecond)
}

func TestDriverRelativeState(t *testing.T) {
	env := newTestEnv(t)
	d := env.connect(t, 0)

	_, err := d.Action("devicetype", "SQ")
	require.NoError(t, err)

	for _, p := range d.GetState() {
		assert.NotEqual(t, "Position", p.Name)
	}

	_, err = d.Action("center", "")
	assert.ErrorIs(t, err, &alpaca.Error{Number: alpaca.ErrNumInvalidOperation})
}

func TestDriverAppliesStoredModel(t *testing.T) {
	env := newTestEnv(t)
	d := env.newDriver(t, 0)

	cfg, err := d.store.GetConfig()
	require.NoError(t, err)
	cfg.DeviceType = "SO"
	cfg.StepSize = 250
	require.NoError(t, d.store.SetConfig(cfg))

	require.NoError(t, d.Connect())
	t.Cleanup(d.Close)

	absolute, err := d.Absolute()
	require.NoError(t, err)
	assert.False(t, absolute)

	size, err := d.StepSize()
	require.NoError(t, err)
	assert.Equal(t, 2.5, size)

	_, err = d.Position()
	assert.ErrorIs(t, err, alpaca.ErrNotImplemented)
}

func TestDriverActionsPersistModel(t *testing.T) {
	env := newTestEnv(t)
	d := env.connect(t, 1)

	_, err := d.Action("devicetype", "sp")
	require.NoError(t, err)
	_, err = d.Action("stepsize", "120")
	require.NoError(t, err)

	cfg, err := d.store.GetConfig()
	require.NoError(t, err)
	assert.Equal(t, "SP", cfg.DeviceType)
	assert.Equal(t, uint16(120), cfg.StepSize)
}

func TestDriverTemperature(t *testing.T) {
	env := newTestEnv(t)
	d := env.connect(t, 0)

	available, err := d.TempCompAvailable()
	require.NoError(t, err)
	assert.True(t, available)

	temp, err := d.Temperature()
	require.NoError(t, err)
	assert.Equal(t, 20.0, temp)

	require.NoError(t, d.SetTempComp(true))
	on, err := d.TempComp()
	require.NoError(t, err)
	assert.True(t, on)

	size, err := d.StepSize()
	require.NoError(t, err)
	assert.Equal(t, 1.0, size)
}

func TestTranslate(t *testing.T) {
	assert.Nil(t, translate(nil))
	assert.ErrorIs(t, translate(lynx.ErrNotConnected), alpaca.ErrNotConnected)
	assert.ErrorIs(t, translate(lynx.ErrOutOfRange), &alpaca.Error{Number: alpaca.ErrNumInvalidValue})
	assert.ErrorIs(t, translate(lynx.ErrSyncRequired), &alpaca.Error{Number: alpaca.ErrNumInvalidOperation})
	assert.ErrorIs(t, translate(lynx.ErrNotAbsolute), &alpaca.Error{Number: alpaca.ErrNumInvalidOperation})
	assert.ErrorIs(t, translate(&lynx.DeviceError{Code: 5}), &alpaca.Error{Number: alpaca.ErrNumUnspecified})

	other := errors.New("boom")
	assert.Equal(t, other, translate(other))
}
