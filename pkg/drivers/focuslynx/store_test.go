package focuslynx

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStoreDefaults(t *testing.T) {
	env := newTestEnv(t)

	s0, err := newStore(env.db, 0)
	require.NoError(t, err)
	s1, err := newStore(env.db, 1)
	require.NoError(t, err)

	cfg0, err := s0.GetConfig()
	require.NoError(t, err)
	cfg1, err := s1.GetConfig()
	require.NoError(t, err)

	assert.Equal(t, SimulatorAddress, cfg0.Address)
	assert.Equal(t, "F1", cfg0.Target)
	assert.Equal(t, "F2", cfg1.Target)
	assert.Equal(t, "focuslynx/1", cfg1.MQTT.TopicRoot)
	assert.NotEmpty(t, cfg0.UniqueID)
	assert.NotEqual(t, cfg0.UniqueID, cfg1.UniqueID)
}

func TestStoreKeepsUniqueID(t *testing.T) {
	env := newTestEnv(t)

	s, err := newStore(env.db, 0)
	require.NoError(t, err)
	cfg, err := s.GetConfig()
	require.NoError(t, err)
	id := cfg.UniqueID

	cfg.Address = "/dev/ttyUSB0"
	cfg.UniqueID = "something-else"
	require.NoError(t, s.SetConfig(cfg))

	again, err := newStore(env.db, 0)
	require.NoError(t, err)
	cfg, err = again.GetConfig()
	require.NoError(t, err)
	assert.Equal(t, "/dev/ttyUSB0", cfg.Address)
	assert.Equal(t, id, cfg.UniqueID)
}

func TestConfigValidate(t *testing.T) {
	valid := defaultConfig(0)

	tests := []struct {
		name   string
		modify func(*Config)
		ok     bool
	}{
		{"Defaults", func(c *Config) {}, true},
		{"TCP address", func(c *Config) { c.Address = "tcp://10.0.0.5:9760" }, true},
		{"Lowercase target", func(c *Config) { c.Target = "f2" }, true},
		{"Empty address", func(c *Config) { c.Address = "  " }, false},
		{"Hub target", func(c *Config) { c.Target = "FH" }, false},
		{"Negative increment", func(c *Config) { c.MaxIncrement = -1 }, false},
		{"Known model", func(c *Config) { c.DeviceType = "SO" }, true},
		{"Unknown model", func(c *Config) { c.DeviceType = "QQ" }, false},
		{"MQTT without broker", func(c *Config) { c.MQTT.Enabled = true; c.MQTT.Broker = "" }, false},
		{"MQTT wildcard root", func(c *Config) { c.MQTT.Enabled = true; c.MQTT.TopicRoot = "focuser/#" }, false},
		{"MQTT disabled ignores root", func(c *Config) { c.MQTT.TopicRoot = "" }, true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := valid
			tc.modify(&cfg)
			if tc.ok {
				assert.NoError(t, cfg.validate())
			} else {
				assert.Error(t, cfg.validate())
			}
		})
	}
}

func TestStoreModelAndStepSize(t *testing.T) {
	env := newTestEnv(t)

	s, err := newStore(env.db, 0)
	require.NoError(t, err)
	cfg, err := s.GetConfig()
	require.NoError(t, err)
	assert.Empty(t, cfg.DeviceType)
	assert.Zero(t, cfg.StepSize)

	cfg.DeviceType = "TA"
	cfg.StepSize = 350
	require.NoError(t, s.SetConfig(cfg))

	cfg, err = s.GetConfig()
	require.NoError(t, err)
	assert.Equal(t, "TA", cfg.DeviceType)
	assert.Equal(t, uint16(350), cfg.StepSize)
}
