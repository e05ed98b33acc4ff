// Package config loads tripwire's runtime configuration from a TOML, YAML
// or JSON file with TRIPWIRE_* environment overrides on top.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override, e.g. TRIPWIRE_SCHEDULE_LIMIT.
const EnvPrefix = "TRIPWIRE"

const (
	// DataDirName is the default data directory under the user's home.
	DataDirName = ".tripwire"
	// DatabaseFile is the default database file name.
	DatabaseFile = "tripwire.db"
	// ConfigFile is the default config file name.
	ConfigFile = "config.toml"
)

// Config holds the runtime configuration.
type Config struct {
	// Database is the SQLite file holding schedules and trigger progress.
	Database string `toml:"database" json:"database" yaml:"database" envconfig:"DATABASE"`

	// ScheduleLimit caps the number of live schedules.
	ScheduleLimit int `toml:"schedule_limit" json:"schedule_limit" yaml:"schedule_limit" envconfig:"SCHEDULE_LIMIT"`

	// ReadinessTimeout bounds one readiness check on the dispatcher.
	ReadinessTimeout Duration `toml:"readiness_timeout" json:"readiness_timeout" yaml:"readiness_timeout" envconfig:"READINESS_TIMEOUT"`

	// MaxConcurrentActions bounds in-flight action executions.
	MaxConcurrentActions int `toml:"max_concurrent_actions" json:"max_concurrent_actions" yaml:"max_concurrent_actions" envconfig:"MAX_CONCURRENT_ACTIONS"`

	// Inbox, when set, is watched for new schedule documents by "run".
	Inbox string `toml:"inbox" json:"inbox" yaml:"inbox" envconfig:"INBOX"`

	Log LogConfig `toml:"log" json:"log" yaml:"log" envconfig:"LOG"`
}

// LogConfig selects the slog handler.
type LogConfig struct {
	Level  string `toml:"level" json:"level" yaml:"level" envconfig:"LEVEL"`
	Format string `toml:"format" json:"format" yaml:"format" envconfig:"FORMAT"`
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	return &Config{
		Database:             filepath.Join(DataDir(), DatabaseFile),
		ScheduleLimit:        1000,
		ReadinessTimeout:     Duration(5 * time.Second),
		MaxConcurrentActions: 4,
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// DataDir returns TRIPWIRE_HOME or ~/.tripwire.
func DataDir() string {
	if h := strings.TrimSpace(os.Getenv(EnvPrefix + "_HOME")); h != "" {
		return expandHome(h)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return DataDirName
	}
	return filepath.Join(home, DataDirName)
}

// DefaultPath returns the config file looked up when none is given.
func DefaultPath() string {
	return filepath.Join(DataDir(), ConfigFile)
}

func expandHome(p string) string {
	if !strings.HasPrefix(p, "~") {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	return filepath.Join(home, p[1:])
}

// Load reads path (defaults when it does not exist), applies environment
// overrides and validates the result.
func Load(path string) (*Config, error) {
	cfg, err := loadFile(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}
	cfg.Database = expandHome(cfg.Database)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}
	return cfg, nil
}

func loadFile(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		if _, err := toml.Decode(string(data), cfg); err != nil {
			return nil, fmt.Errorf("decode TOML: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("decode JSON: %w", err)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("decode YAML: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported config format %q", filepath.Ext(path))
	}
	return cfg, nil
}

// ApplyEnv overrides fields from TRIPWIRE_* variables. Unset variables
// leave the current value alone.
func (c *Config) ApplyEnv() error {
	if err := envconfig.Process(EnvPrefix, c); err != nil {
		return fmt.Errorf("environment overrides: %w", err)
	}
	return nil
}

// Duration is a time.Duration written as "5s" in every config format.
type Duration time.Duration

// Std returns d as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d Duration) String() string { return time.Duration(d).String() }

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}
