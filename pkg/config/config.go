package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"

	"github.com/papercomputeco/skycast/pkg/dotdir"
)

const (
	configFile = "config.toml"

	// CurrentV is the only config layout version skycast reads. A missing
	// version field is treated as CurrentV.
	CurrentV = 0
)

// Configer reads and writes config.toml inside a resolved .skycast/
// directory.
type Configer struct {
	path string
}

// NewConfiger resolves the .skycast/ directory (override, then ./.skycast,
// then ~/.skycast) and targets its config.toml. The file need not exist yet.
func NewConfiger(override string) (*Configer, error) {
	dir, err := dotdir.NewManager().Target(override)
	if err != nil {
		return nil, err
	}

	path := filepath.Join(dir, configFile)
	if _, err := os.Stat(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	return &Configer{path: path}, nil
}

// GetTarget returns the config.toml path.
func (c *Configer) GetTarget() string {
	return c.path
}

// ValidConfigKeys returns every supported key in TOML section order.
func ValidConfigKeys() []string {
	names := make([]string, len(configKeys))
	for i, k := range configKeys {
		names[i] = k.name
	}
	return names
}

// IsValidConfigKey reports whether key is a supported configuration key.
func IsValidConfigKey(key string) bool {
	_, ok := lookupKey(key)
	return ok
}

// LoadConfig reads config.toml. A missing file yields NewDefaultConfig, and
// fields absent from an existing file keep their defaults.
func (c *Configer) LoadConfig() (*Config, error) {
	data, err := os.ReadFile(c.path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		return NewDefaultConfig(), nil
	case err != nil:
		return nil, fmt.Errorf("reading config: %w", err)
	}

	cfg, err := ParseConfigTOML(data)
	if err != nil {
		return nil, err
	}
	applyDefaults(cfg)
	return cfg, nil
}

// applyDefaults fills zero-valued fields of cfg from NewDefaultConfig.
func applyDefaults(cfg *Config) {
	d := NewDefaultConfig()

	strs := []struct{ dst, def *string }{
		{&cfg.Server.Listen, &d.Server.Listen},
		{&cfg.Agent.Name, &d.Agent.Name},
		{&cfg.Agent.Provider, &d.Agent.Provider},
		{&cfg.Agent.Model, &d.Agent.Model},
		{&cfg.Agent.Upstream, &d.Agent.Upstream},
		{&cfg.Weather.GeocodingURL, &d.Weather.GeocodingURL},
		{&cfg.Weather.ForecastURL, &d.Weather.ForecastURL},
		{&cfg.Weather.Cache, &d.Weather.Cache},
		{&cfg.Weather.CacheTTL, &d.Weather.CacheTTL},
		{&cfg.Storage.Driver, &d.Storage.Driver},
		{&cfg.EventStream.KafkaTopic, &d.EventStream.KafkaTopic},
		{&cfg.Client.Target, &d.Client.Target},
	}
	for _, s := range strs {
		if *s.dst == "" {
			*s.dst = *s.def
		}
	}

	if cfg.Agent.MaxSteps == 0 {
		cfg.Agent.MaxSteps = d.Agent.MaxSteps
	}
	if cfg.Weather.RatePerSecond == 0 {
		cfg.Weather.RatePerSecond = d.Weather.RatePerSecond
	}
}

// SaveConfig writes cfg to config.toml with owner-only permissions, since it
// may carry a Postgres DSN.
func (c *Configer) SaveConfig(cfg *Config) error {
	if cfg == nil {
		return errors.New("cannot save nil config")
	}

	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	if err := os.WriteFile(c.path, buf.Bytes(), 0o600); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	return nil
}

// SetConfigValue validates value for key and persists it.
func (c *Configer) SetConfigValue(key, value string) error {
	k, ok := lookupKey(key)
	if !ok {
		return fmt.Errorf("unknown config key: %q", key)
	}

	cfg, err := c.LoadConfig()
	if err != nil {
		return err
	}
	if err := k.set(cfg, value); err != nil {
		return err
	}
	return c.SaveConfig(cfg)
}

// GetConfigValue returns the effective value of key, defaults included.
func (c *Configer) GetConfigValue(key string) (string, error) {
	k, ok := lookupKey(key)
	if !ok {
		return "", fmt.Errorf("unknown config key: %q", key)
	}

	cfg, err := c.LoadConfig()
	if err != nil {
		return "", err
	}
	return k.get(cfg), nil
}

// ParseConfigTOML decodes raw TOML and rejects versions other than CurrentV.
func ParseConfigTOML(data []byte) (*Config, error) {
	cfg := &Config{}
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config TOML: %w", err)
	}
	if cfg.Version != CurrentV {
		return nil, fmt.Errorf("unsupported config version %d (expected %d)", cfg.Version, CurrentV)
	}
	return cfg, nil
}
