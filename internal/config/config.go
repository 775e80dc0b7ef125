// internal/config/config.go
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	BackendDir    = "dir"
	BackendBadger = "badger"

	PolicyAll      = "all"      // capture every tracked file, force-approve
	PolicyApproved = "approved" // capture only changes the tracker marked approved
)

type Config struct {
	Storage struct {
		Dir     string `json:"dir" yaml:"dir"`         // relative to the workspace
		Backend string `json:"backend" yaml:"backend"` // dir, badger
	} `json:"storage" yaml:"storage"`

	Snapshots struct {
		CacheSize int `json:"cache_size" yaml:"cache_size"`
	} `json:"snapshots" yaml:"snapshots"`

	Checkpoint struct {
		Policy string `json:"policy" yaml:"policy"`
	} `json:"checkpoint" yaml:"checkpoint"`

	Watch struct {
		DebounceMS int `json:"debounce_ms" yaml:"debounce_ms"`
	} `json:"watch" yaml:"watch"`

	LogLevel string `json:"log_level" yaml:"log_level"` // debug, info, warn, error
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	var c Config
	c.Storage.Dir = ".shadow"
	c.Storage.Backend = BackendDir
	c.Snapshots.CacheSize = 512
	c.Checkpoint.Policy = PolicyAll
	c.Watch.DebounceMS = 200
	c.LogLevel = "info"
	return &c
}

// Load reads a JSON or YAML file (chosen by extension) over the defaults.
// A missing file is not an error.
func Load(path string) (*Config, error) {
	config := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return config, nil
		}
		return nil, fmt.Errorf("reading config: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("parsing yaml config: %w", err)
		}
	default:
		if err := json.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("parsing json config: %w", err)
		}
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

func (c *Config) Validate() error {
	if c.Storage.Dir == "" {
		return fmt.Errorf("storage.dir is required")
	}
	if filepath.IsAbs(c.Storage.Dir) {
		return fmt.Errorf("storage.dir must be relative to the workspace: %s", c.Storage.Dir)
	}
	switch c.Storage.Backend {
	case BackendDir, BackendBadger:
	default:
		return fmt.Errorf("unknown storage.backend %q", c.Storage.Backend)
	}
	if c.Snapshots.CacheSize <= 0 {
		return fmt.Errorf("snapshots.cache_size must be positive")
	}
	switch c.Checkpoint.Policy {
	case PolicyAll, PolicyApproved:
	default:
		return fmt.Errorf("unknown checkpoint.policy %q", c.Checkpoint.Policy)
	}
	if c.Watch.DebounceMS < 0 {
		return fmt.Errorf("watch.debounce_ms cannot be negative")
	}
	return nil
}

func (c *Config) Debounce() time.Duration {
	return time.Duration(c.Watch.DebounceMS) * time.Millisecond
}

// EngineRoot is the private storage tree of one engine instance.
func (c *Config) EngineRoot(workspace, engineType string) string {
	return filepath.Join(workspace, c.Storage.Dir, engineType)
}
