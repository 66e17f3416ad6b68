// Package config loads the apkblock command configuration.
//
// Configuration comes from a YAML file named by the --config flag or the
// APKBLOCK_CONFIG environment variable, merged over Default. Command-line flags
// are applied on top by the command itself.
package config

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/arloliu/apkblock/format"
)

// EnvVar names the environment variable holding the config file path.
const EnvVar = "APKBLOCK_CONFIG"

// Config is the command configuration.
type Config struct {
	// Log configures diagnostic output on stderr.
	Log LogConfig `yaml:"log"`

	// Archive configures how APK entries are held while editing.
	Archive ArchiveConfig `yaml:"archive"`

	// Optimize configures the framework optimizer.
	Optimize OptimizeConfig `yaml:"optimize"`
}

// LogConfig configures logging.
type LogConfig struct {
	// Level is one of debug, info, warn, error.
	// Default: info
	Level string `yaml:"level"`

	// Format is text or json.
	// Default: text
	Format string `yaml:"format"`
}

// ArchiveConfig configures the in-memory archive.
type ArchiveConfig struct {
	// Compression is none, zstd, s2 or lz4.
	// Default: none
	Compression format.CompressionType `yaml:"compression"`
}

// OptimizeConfig configures the framework optimizer.
type OptimizeConfig struct {
	// FrameworkName is used when the manifest has no package name.
	// Default: framework
	FrameworkName string `yaml:"framework_name"`

	// Keep lists extra archive entries that survive optimization.
	Keep []string `yaml:"keep"`
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Archive: ArchiveConfig{
			Compression: format.CompressionNone,
		},
		Optimize: OptimizeConfig{
			FrameworkName: "framework",
		},
	}
}

// Load loads the file named by APKBLOCK_CONFIG, or returns Default when the
// variable is unset.
func Load() (*Config, error) {
	path := os.Getenv(EnvVar)
	if path == "" {
		return Default(), nil
	}

	return LoadFile(path)
}

// LoadFile loads configuration from path, merged over Default.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	return Parse(data)
}

// Parse decodes YAML configuration merged over Default and validates it.
// Unknown keys are rejected.
func Parse(data []byte) (*Config, error) {
	cfg := Default()

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && err != io.EOF {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks enumerated fields.
func (c *Config) Validate() error {
	if _, err := c.Log.level(); err != nil {
		return err
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("invalid log format %q: want text or json", c.Log.Format)
	}
	if _, err := c.Archive.Compression.MarshalText(); err != nil {
		return err
	}

	return nil
}

func (l LogConfig) level() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(l.Level)); err != nil {
		return 0, fmt.Errorf("invalid log level %q: %w", l.Level, err)
	}

	return level, nil
}

// NewLogger builds a logger writing to w as configured.
func (l LogConfig) NewLogger(w io.Writer) (*slog.Logger, error) {
	level, err := l.level()
	if err != nil {
		return nil, err
	}

	opts := &slog.HandlerOptions{Level: level}
	if l.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	}

	return slog.New(slog.NewTextHandler(w, opts)), nil
}
