package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/papercomputeco/skycast/pkg/dotdir"
)

// InitViper creates and returns a configured *viper.Viper.
// It sets defaults from NewDefaultConfig(), reads the config.toml file
// (if found via dotdir resolution), and binds environment variables
// with the SKYCAST_ prefix.
//
// Config precedence (highest to lowest):
//  1. CLI flags (once bound via BindRegisteredFlags)
//  2. Environment variables (SKYCAST_SERVER_LISTEN, SKYCAST_AGENT_MODEL, etc.)
//  3. config.toml file values
//  4. Defaults from NewDefaultConfig()
func InitViper(configDir string) (*viper.Viper, error) {
	v := viper.New()

	setViperDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("toml")

	target, err := dotdir.NewManager().Target(configDir)
	if err != nil {
		return nil, fmt.Errorf("resolving config dir: %w", err)
	}
	v.AddConfigPath(target)

	if err := v.ReadInConfig(); err != nil {
		// Config file not found errors are fine, defaults will apply.
		if !errors.As(err, &viper.ConfigFileNotFoundError{}) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	v.SetEnvPrefix("SKYCAST")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return v, nil
}

// setViperDefaults registers defaults from NewDefaultConfig() into viper
// using dotted-key notation. This keeps defaults.go as the single source of truth.
func setViperDefaults(v *viper.Viper) {
	d := NewDefaultConfig()

	v.SetDefault("version", d.Version)

	v.SetDefault("server.listen", d.Server.Listen)

	v.SetDefault("agent.name", d.Agent.Name)
	v.SetDefault("agent.provider", d.Agent.Provider)
	v.SetDefault("agent.model", d.Agent.Model)
	v.SetDefault("agent.upstream", d.Agent.Upstream)
	v.SetDefault("agent.max_steps", d.Agent.MaxSteps)

	v.SetDefault("weather.geocoding_url", d.Weather.GeocodingURL)
	v.SetDefault("weather.forecast_url", d.Weather.ForecastURL)
	v.SetDefault("weather.cache", d.Weather.Cache)
	v.SetDefault("weather.redis_addr", d.Weather.RedisAddr)
	v.SetDefault("weather.cache_ttl", d.Weather.CacheTTL)
	v.SetDefault("weather.rate_per_second", d.Weather.RatePerSecond)

	v.SetDefault("storage.driver", d.Storage.Driver)
	v.SetDefault("storage.sqlite_path", d.Storage.SQLitePath)
	v.SetDefault("storage.postgres_dsn", d.Storage.PostgresDSN)

	v.SetDefault("eventstream.kafka_brokers", d.EventStream.KafkaBrokers)
	v.SetDefault("eventstream.kafka_topic", d.EventStream.KafkaTopic)

	v.SetDefault("client.target", d.Client.Target)
}

// StringList reads a list-valued key that may come from a TOML array, a
// comma separated env var or a string flag.
func StringList(v *viper.Viper, key string) []string {
	switch raw := v.Get(key).(type) {
	case nil:
		return nil
	case string:
		return splitList(raw)
	case []string:
		return splitList(strings.Join(raw, ","))
	case []any:
		parts := make([]string, 0, len(raw))
		for _, p := range raw {
			parts = append(parts, fmt.Sprint(p))
		}
		return splitList(strings.Join(parts, ","))
	default:
		return splitList(fmt.Sprint(raw))
	}
}
