package config

import (
	"errors"
	"io"
	"os"
	"time"

	pkgerrors "github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

var ErrInvalid = errors.New("invalid configuration")

// Config defines runtime configuration loaded from YAML and/or flags.
type Config struct {
	NodeID         string        `yaml:"node_id"`
	DataDir        string        `yaml:"data_dir"`
	RaftAddr       string        `yaml:"raft_addr"`
	HTTPAddr       string        `yaml:"http_addr"`
	Bootstrap      bool          `yaml:"bootstrap"`
	BarrierTimeout time.Duration `yaml:"barrier_timeout"`

	// Tree geometry, only used when the database file is created.
	Order     int `yaml:"order"`
	KeySize   int `yaml:"key_size"`
	ValueSize int `yaml:"value_size"`

	CacheBlocks int  `yaml:"cache_blocks"`
	SyncWrites  bool `yaml:"sync_writes"`

	LogLevel   string `yaml:"log_level"`
	LogBackend string `yaml:"log_backend"`
}

// Load reads a YAML config file from path. If path is empty or the file
// does not exist, returns an empty Config and nil error.
func Load(path string) (Config, error) {
	var cfg Config
	if path == "" {
		return cfg, nil
	}
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, err
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, pkgerrors.Wrapf(err, "parse %s", path)
	}
	return cfg, nil
}

// Validate rejects settings no tree could be built with. Zero values mean
// "use the default" and are accepted.
func (c Config) Validate() error {
	switch {
	case c.Order != 0 && c.Order < 4:
		return pkgerrors.Wrapf(ErrInvalid, "order %d is below 4", c.Order)
	case c.KeySize < 0:
		return pkgerrors.Wrapf(ErrInvalid, "key_size %d", c.KeySize)
	case c.ValueSize < 0:
		return pkgerrors.Wrapf(ErrInvalid, "value_size %d", c.ValueSize)
	case c.CacheBlocks < 0:
		return pkgerrors.Wrapf(ErrInvalid, "cache_blocks %d", c.CacheBlocks)
	case c.BarrierTimeout < 0:
		return pkgerrors.Wrapf(ErrInvalid, "barrier_timeout %s", c.BarrierTimeout)
	}
	return nil
}
