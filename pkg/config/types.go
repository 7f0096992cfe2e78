package config

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"
)

// Config represents the persistent skycast configuration stored as config.toml
// in the .skycast/ directory. The TOML layout uses sections for logical grouping.
type Config struct {
	Version     int               `toml:"version"`
	Server      ServerConfig      `toml:"server"`
	Agent       AgentConfig       `toml:"agent"`
	Weather     WeatherConfig     `toml:"weather"`
	Storage     StorageConfig     `toml:"storage"`
	EventStream EventStreamConfig `toml:"eventstream"`
	Client      ClientConfig      `toml:"client"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Listen string `toml:"listen,omitempty"`
}

// AgentConfig selects and configures the agent that answers requests.
type AgentConfig struct {
	// Name is the registry name of the default agent.
	Name string `toml:"name,omitempty"`

	// Provider is "ollama" or "scripted".
	Provider string `toml:"provider,omitempty"`

	Model    string `toml:"model,omitempty"`
	Upstream string `toml:"upstream,omitempty"`
	MaxSteps int    `toml:"max_steps,omitempty"`
}

// WeatherConfig holds settings for the weather lookup tool.
type WeatherConfig struct {
	GeocodingURL string `toml:"geocoding_url,omitempty"`
	ForecastURL  string `toml:"forecast_url,omitempty"`

	// Cache is "memory", "redis" or "none".
	Cache     string `toml:"cache,omitempty"`
	RedisAddr string `toml:"redis_addr,omitempty"`
	CacheTTL  string `toml:"cache_ttl,omitempty"`

	RatePerSecond float64 `toml:"rate_per_second,omitempty"`
}

// StorageConfig holds turn storage settings.
type StorageConfig struct {
	// Driver is "memory", "sqlite" or "postgres".
	Driver      string `toml:"driver,omitempty"`
	SQLitePath  string `toml:"sqlite_path,omitempty"`
	PostgresDSN string `toml:"postgres_dsn,omitempty"`
}

// EventStreamConfig holds turn event publishing settings. Publishing is
// disabled while KafkaBrokers is empty.
type EventStreamConfig struct {
	KafkaBrokers []string `toml:"kafka_brokers,omitempty"`
	KafkaTopic   string   `toml:"kafka_topic,omitempty"`
}

// ClientConfig holds settings for CLI commands that connect to a running
// server (e.g. skycast ask). Target is a full URL (scheme + host + port).
type ClientConfig struct {
	Target string `toml:"target,omitempty"`
}

// configKey maps a user-facing dotted key to a getter and setter on *Config.
type configKey struct {
	name string
	get  func(c *Config) string
	set  func(c *Config, v string) error
}

func stringKey(name string, field func(c *Config) *string) configKey {
	return configKey{
		name: name,
		get:  func(c *Config) string { return *field(c) },
		set:  func(c *Config, v string) error { *field(c) = v; return nil },
	}
}

func oneOfKey(name string, allowed []string, field func(c *Config) *string) configKey {
	k := stringKey(name, field)
	k.set = func(c *Config, v string) error {
		if !slices.Contains(allowed, v) {
			return fmt.Errorf("invalid value for %s: %q (expected one of %s)", name, v, strings.Join(allowed, ", "))
		}
		*field(c) = v
		return nil
	}
	return k
}

func durationKey(name string, field func(c *Config) *string) configKey {
	k := stringKey(name, field)
	k.set = func(c *Config, v string) error {
		if _, err := time.ParseDuration(v); err != nil {
			return fmt.Errorf("invalid value for %s: %w", name, err)
		}
		*field(c) = v
		return nil
	}
	return k
}

// configKeys lists every supported key in TOML section order.
var configKeys = []configKey{
	stringKey("server.listen", func(c *Config) *string { return &c.Server.Listen }),

	stringKey("agent.name", func(c *Config) *string { return &c.Agent.Name }),
	oneOfKey("agent.provider", ValidProviders(), func(c *Config) *string { return &c.Agent.Provider }),
	stringKey("agent.model", func(c *Config) *string { return &c.Agent.Model }),
	stringKey("agent.upstream", func(c *Config) *string { return &c.Agent.Upstream }),
	{
		name: "agent.max_steps",
		get: func(c *Config) string {
			if c.Agent.MaxSteps == 0 {
				return ""
			}
			return strconv.Itoa(c.Agent.MaxSteps)
		},
		set: func(c *Config, v string) error {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("invalid value for agent.max_steps: %w", err)
			}
			if n < 1 {
				return fmt.Errorf("invalid value for agent.max_steps: %d is less than 1", n)
			}
			c.Agent.MaxSteps = n
			return nil
		},
	},

	stringKey("weather.geocoding_url", func(c *Config) *string { return &c.Weather.GeocodingURL }),
	stringKey("weather.forecast_url", func(c *Config) *string { return &c.Weather.ForecastURL }),
	oneOfKey("weather.cache", []string{"memory", "redis", "none"}, func(c *Config) *string { return &c.Weather.Cache }),
	stringKey("weather.redis_addr", func(c *Config) *string { return &c.Weather.RedisAddr }),
	durationKey("weather.cache_ttl", func(c *Config) *string { return &c.Weather.CacheTTL }),
	{
		name: "weather.rate_per_second",
		get: func(c *Config) string {
			if c.Weather.RatePerSecond == 0 {
				return ""
			}
			return strconv.FormatFloat(c.Weather.RatePerSecond, 'f', -1, 64)
		},
		set: func(c *Config, v string) error {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return fmt.Errorf("invalid value for weather.rate_per_second: %w", err)
			}
			c.Weather.RatePerSecond = f
			return nil
		},
	},

	oneOfKey("storage.driver", ValidStorageDrivers(), func(c *Config) *string { return &c.Storage.Driver }),
	stringKey("storage.sqlite_path", func(c *Config) *string { return &c.Storage.SQLitePath }),
	stringKey("storage.postgres_dsn", func(c *Config) *string { return &c.Storage.PostgresDSN }),

	{
		name: "eventstream.kafka_brokers",
		get:  func(c *Config) string { return strings.Join(c.EventStream.KafkaBrokers, ",") },
		set: func(c *Config, v string) error {
			c.EventStream.KafkaBrokers = splitList(v)
			return nil
		},
	},
	stringKey("eventstream.kafka_topic", func(c *Config) *string { return &c.EventStream.KafkaTopic }),

	stringKey("client.target", func(c *Config) *string { return &c.Client.Target }),
}

func lookupKey(name string) (configKey, bool) {
	i := slices.IndexFunc(configKeys, func(k configKey) bool { return k.name == name })
	if i < 0 {
		return configKey{}, false
	}
	return configKeys[i], true
}

// splitList splits a comma separated value, dropping blanks.
func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
