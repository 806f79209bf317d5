// Package config loads the settings shared by the hmi commands.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/aretw0/hmi/pkg/domain"
	"gopkg.in/yaml.v3"
)

// Duration is a time.Duration written as "10s" in YAML and JSON.
type Duration time.Duration

// UnmarshalYAML accepts duration strings.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	return d.parse(node.Value)
}

// UnmarshalJSON accepts duration strings.
func (d *Duration) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("duration must be a string like \"10s\": %w", err)
	}
	return d.parse(s)
}

func (d *Duration) parse(s string) error {
	v, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// Redis holds the goal channel connection.
type Redis struct {
	Addr     string `yaml:"addr" json:"addr"`
	Password string `yaml:"password" json:"password"`
	DB       int    `yaml:"db" json:"db"`
	Prefix   string `yaml:"prefix" json:"prefix"`
}

// HTTP holds the front door settings.
type HTTP struct {
	Addr string `yaml:"addr" json:"addr"`
}

// Config represents hmi.yaml.
type Config struct {
	Endpoint    string   `yaml:"endpoint" json:"endpoint"`
	Redis       Redis    `yaml:"redis" json:"redis"`
	Timeout     Duration `yaml:"timeout" json:"timeout"`
	GracePeriod Duration `yaml:"grace_period" json:"grace_period"`
	LogLevel    string   `yaml:"log_level" json:"log_level"`
	HTTP        HTTP     `yaml:"http" json:"http"`
	Metrics     bool     `yaml:"metrics" json:"metrics"`
}

// Default returns the settings used when no file is given.
func Default() Config {
	return Config{
		Endpoint:    "hmi",
		Redis:       Redis{Addr: "localhost:6379", Prefix: "hmi:"},
		Timeout:     Duration(domain.DefaultTimeout),
		GracePeriod: Duration(domain.DefaultGracePeriod),
		LogLevel:    "info",
		HTTP:        HTTP{Addr: ":8080"},
		Metrics:     true,
	}
}

// Load reads a configuration file (YAML or JSON) over the defaults.
// A missing file yields the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("failed to read config: %w", err)
	}

	if strings.ToLower(filepath.Ext(path)) == ".json" {
		if err := json.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse %s: %w", path, err)
		}
	} else {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse %s: %w", path, err)
		}
	}
	return cfg, cfg.Validate()
}

// Validate rejects settings no command can work with.
func (c Config) Validate() error {
	switch {
	case c.Endpoint == "":
		return fmt.Errorf("%w: endpoint must not be empty", domain.ErrValidation)
	case c.Redis.Addr == "":
		return fmt.Errorf("%w: redis.addr must not be empty", domain.ErrValidation)
	case c.Timeout < 0 || c.GracePeriod < 0:
		return fmt.Errorf("%w: durations must not be negative", domain.ErrValidation)
	}
	return nil
}
