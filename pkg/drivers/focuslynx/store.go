package focuslynx

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	bolt "go.etcd.io/bbolt"

	"lynx-alpaca/pkg/lynx"
)

const bucket = "alpaca"

type MQTTConfig struct {
	Enabled   bool   `json:"enabled"`
	Broker    string `json:"broker"` // tcp://host:port
	Username  string `json:"username"`
	Password  string `json:"password"`
	TopicRoot string `json:"topic_root"`
}

// Config is the persisted setup of one focuser device.
type Config struct {
	Address       string     `json:"address"`     // serial device, tcp://host[:port] or "sim"
	Target        string     `json:"target"`      // F1 or F2
	DeviceType    string     `json:"device_type"` // model code applied on connect, empty keeps the hub's
	StepSize      uint16     `json:"step_size"`   // hundredths of a micron, 0 keeps the hub's
	MaxIncrement  int        `json:"max_increment"`
	SyncMandatory bool       `json:"sync_mandatory"`
	UniqueID      string     `json:"unique_id"`
	MQTT          MQTTConfig `json:"mqtt"`
}

func defaultConfig(number int) Config {
	target := lynx.TargetF1
	if number%2 == 1 {
		target = lynx.TargetF2
	}
	return Config{
		Address: SimulatorAddress,
		Target:  string(target),
		MQTT: MQTTConfig{
			Broker:    "tcp://localhost:1883",
			TopicRoot: fmt.Sprintf("focuslynx/%d", number),
		},
	}
}

func (c Config) validate() error {
	if strings.TrimSpace(c.Address) == "" {
		return fmt.Errorf("connection address cannot be empty")
	}
	if _, err := lynx.ParseTarget(c.Target); err != nil {
		return err
	}
	if c.DeviceType != "" {
		if _, ok := lynx.LookupModel(c.DeviceType); !ok {
			return fmt.Errorf("unknown device type: %q", c.DeviceType)
		}
	}
	if c.MaxIncrement < 0 {
		return fmt.Errorf("invalid max increment: %d", c.MaxIncrement)
	}
	if c.MQTT.Enabled {
		if c.MQTT.Broker == "" {
			return fmt.Errorf("MQTT broker cannot be empty")
		}
		if c.MQTT.TopicRoot == "" || strings.ContainsAny(c.MQTT.TopicRoot, "#+") {
			return fmt.Errorf("invalid MQTT topic root: %q", c.MQTT.TopicRoot)
		}
	}
	return nil
}

type store struct {
	db  *bolt.DB
	key []byte
}

// newStore creates the store of device number and writes the defaults,
// including a fresh unique id, on first use.
func newStore(db *bolt.DB, number int) (*store, error) {
	st := store{db: db, key: []byte(fmt.Sprintf("focuslynx_%d", number))}

	if err := st.setDefaults(number); err != nil {
		return nil, err
	}
	return &st, nil
}

func (s *store) setDefaults(number int) error {
	cfg, err := s.GetConfig()
	if err != nil {
		log.Infof("Setting default config for focuser %d", number)
		cfg = defaultConfig(number)
	}
	if cfg.UniqueID != "" {
		return nil
	}
	cfg.UniqueID = uuid.NewString()
	return s.SetConfig(cfg)
}

// SetConfig saves the device configuration as a json string in the database.
// The unique id is never changed once assigned.
func (s *store) SetConfig(cfg Config) error {
	if err := cfg.validate(); err != nil {
		return err
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists([]byte(bucket))
		if err != nil {
			return err
		}

		var prev Config
		if value := b.Get(s.key); value != nil && json.Unmarshal(value, &prev) == nil && prev.UniqueID != "" {
			cfg.UniqueID = prev.UniqueID
		}

		value, err := json.Marshal(cfg)
		if err != nil {
			return err
		}
		return b.Put(s.key, value)
	})
}

// GetConfig retrieves the device configuration from the database.
func (s *store) GetConfig() (Config, error) {
	var cfg Config

	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucket))
		if b == nil {
			return fmt.Errorf("bucket %s not found", bucket)
		}

		value := b.Get(s.key)
		if value == nil {
			return fmt.Errorf("key %s not found", s.key)
		}

		return json.Unmarshal(value, &cfg)
	})

	return cfg, err
}
