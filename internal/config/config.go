// Package config loads process configuration for nanoflow from defaults,
// an optional nanoflow.yaml, NANOFLOW_* environment variables and flags.
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	flowerr "github.com/coffersTech/nanoflow/pkg/errors"
)

// EnvPrefix namespaces environment overrides, e.g. NANOFLOW_LOG_LEVEL.
const EnvPrefix = "NANOFLOW"

// Config is the process configuration.
type Config struct {
	Listen       string        `mapstructure:"listen"`
	DataDir      string        `mapstructure:"data_dir"`
	SettingsFile string        `mapstructure:"settings_file"`
	APIKeyHash   string        `mapstructure:"api_key_hash"` // bcrypt; empty disables auth
	Log          LogConfig     `mapstructure:"log"`
	Archive      ArchiveConfig `mapstructure:"archive"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// ArchiveConfig controls how long built graphs are kept on disk.
type ArchiveConfig struct {
	Retention     time.Duration `mapstructure:"retention"` // 0 keeps everything
	CleanInterval time.Duration `mapstructure:"clean_interval"`
}

// SetDefaults registers default values for every key.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("listen", "127.0.0.1:8088")
	v.SetDefault("data_dir", "data")
	v.SetDefault("settings_file", "")
	v.SetDefault("api_key_hash", "")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("archive.retention", "168h")
	v.SetDefault("archive.clean_interval", "1h")
}

// SetupEnv maps nested keys to NANOFLOW_ variables.
func SetupEnv(v *viper.Viper) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
}

// ReadFile reads path, or discovers nanoflow.yaml in the working directory
// and $HOME/.config/nanoflow when path is empty. A missing discovered file
// is not an error.
func ReadFile(v *viper.Viper, path string) error {
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return flowerr.Wrap(err, flowerr.CodeConfigLoadReadFailure, "reading config file", flowerr.FieldFile(path))
		}
		return nil
	}

	v.SetConfigName("nanoflow")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.config/nanoflow")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return flowerr.Wrap(err, flowerr.CodeConfigLoadReadFailure, "reading config")
		}
	}
	return nil
}

// FromViper decodes and validates the configuration held by v.
func FromViper(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, flowerr.Wrap(err, flowerr.CodeConfigInvalidValue, "decoding config")
	}
	if cfg.SettingsFile == "" {
		cfg.SettingsFile = filepath.Join(cfg.DataDir, "settings.json")
	}
	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, flowerr.Wrap(errors.Join(errs...), flowerr.CodeConfigInvalidValue, "validating config")
	}
	return &cfg, nil
}

// Load builds a Config in v from defaults, the file at path and the
// environment. Flags bound to v beforehand take precedence over all three.
func Load(v *viper.Viper, path string) (*Config, error) {
	SetDefaults(v)
	SetupEnv(v)
	if err := ReadFile(v, path); err != nil {
		return nil, err
	}
	return FromViper(v)
}

// Validate returns every problem found, not just the first.
func (c *Config) Validate() []error {
	var errs []error

	if c.Listen == "" {
		errs = append(errs, errors.New("listen must not be empty"))
	} else if _, _, err := net.SplitHostPort(c.Listen); err != nil {
		errs = append(errs, fmt.Errorf("listen must be host:port, got %q", c.Listen))
	}
	if c.DataDir == "" {
		errs = append(errs, errors.New("data_dir must not be empty"))
	}
	if _, err := parseLevel(c.Log.Level); err != nil {
		errs = append(errs, err)
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format must be one of [text, json], got %q", c.Log.Format))
	}
	if c.Archive.Retention < 0 {
		errs = append(errs, errors.New("archive.retention must not be negative"))
	}
	if c.Archive.CleanInterval <= 0 {
		errs = append(errs, errors.New("archive.clean_interval must be positive"))
	}

	return errs
}

// NewLogger builds the process logger described by the log section.
func (c *Config) NewLogger(w io.Writer) *slog.Logger {
	level, _ := parseLevel(c.Log.Level)
	opts := &slog.HandlerOptions{Level: level}
	if c.Log.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo, fmt.Errorf("log.level must be one of [debug, info, warn, error], got %q", s)
	}
	return level, nil
}
