package alpaca

import (
	"encoding/json"
	"fmt"
	"strings"

	log "github.com/sirupsen/logrus"
	bolt "go.etcd.io/bbolt"
)

const (
	bucket    = "alpaca"
	configKey = "server_config"
)

// Config holds the server settings edited on the setup page.
type Config struct {
	ServerName       string `json:"server_name"`
	Location         string `json:"location"`
	DiscoveryEnabled bool   `json:"discovery_enabled"`
}

var defaultConfig = Config{
	ServerName:       "FocusLynx Alpaca Server",
	Location:         "Observatory",
	DiscoveryEnabled: true,
}

func (c Config) validate() error {
	if strings.TrimSpace(c.ServerName) == "" {
		return fmt.Errorf("server name cannot be empty")
	}
	if len(c.ServerName) > 64 || len(c.Location) > 64 {
		return fmt.Errorf("server name and location are limited to 64 characters")
	}
	return nil
}

type Store struct {
	db *bolt.DB
}

// NewStore creates the server store and writes the defaults on first use.
func NewStore(db *bolt.DB) (*Store, error) {
	st := Store{db: db}

	if err := st.setDefaults(); err != nil {
		return nil, err
	}
	return &st, nil
}

func (s *Store) setDefaults() error {
	if _, err := s.GetConfig(); err != nil {
		log.Infof("Setting default server config")
		return s.SetConfig(defaultConfig)
	}
	return nil
}

// SetConfig saves the server configuration as a json string in the database.
func (s *Store) SetConfig(cfg Config) error {
	if err := cfg.validate(); err != nil {
		return err
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists([]byte(bucket))
		if err != nil {
			return err
		}

		value, err := json.Marshal(cfg)
		if err != nil {
			return err
		}
		return b.Put([]byte(configKey), value)
	})
}

// GetConfig retrieves the server configuration from the database.
func (s *Store) GetConfig() (Config, error) {
	var cfg Config

	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucket))
		if b == nil {
			return fmt.Errorf("bucket %s not found", bucket)
		}

		value := b.Get([]byte(configKey))
		if value == nil {
			return fmt.Errorf("key %s not found", configKey)
		}

		return json.Unmarshal(value, &cfg)
	})

	return cfg, err
}
