package config

import (
	"github.com/papercomputeco/skycast/pkg/agent"
	"github.com/papercomputeco/skycast/pkg/agent/ollama"
	"github.com/papercomputeco/skycast/pkg/eventstream/kafka"
	"github.com/papercomputeco/skycast/pkg/weather"
)

const (
	defaultListen       = ":8080"
	defaultClientTarget = "http://localhost:8080"

	defaultProvider = "ollama"

	defaultWeatherCache = "memory"

	defaultStorageDriver = "sqlite"
)

// ValidProviders returns the recognized agent providers.
func ValidProviders() []string {
	return []string{"ollama", "scripted"}
}

// ValidStorageDrivers returns the recognized turn storage drivers.
func ValidStorageDrivers() []string {
	return []string{"memory", "sqlite", "postgres"}
}

// NewDefaultConfig returns a Config with sane defaults for all fields.
// This is the single source of truth for default values.
func NewDefaultConfig() *Config {
	return &Config{
		Version: CurrentV,
		Server: ServerConfig{
			Listen: defaultListen,
		},
		Agent: AgentConfig{
			Name:     ollama.Name,
			Provider: defaultProvider,
			Model:    ollama.DefaultModel,
			Upstream: ollama.DefaultBaseURL,
			MaxSteps: agent.DefaultMaxSteps,
		},
		Weather: WeatherConfig{
			GeocodingURL:  weather.DefaultGeocodingURL,
			ForecastURL:   weather.DefaultForecastURL,
			Cache:         defaultWeatherCache,
			CacheTTL:      weather.DefaultCacheTTL.String(),
			RatePerSecond: weather.DefaultRatePerSecond,
		},
		Storage: StorageConfig{
			Driver: defaultStorageDriver,
		},
		EventStream: EventStreamConfig{
			KafkaTopic: kafka.DefaultTopic,
		},
		Client: ClientConfig{
			Target: defaultClientTarget,
		},
	}
}
