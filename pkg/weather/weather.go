// Package weather looks up current conditions for a named place using the
// Open-Meteo geocoding and forecast APIs. It is the tool the weather agents
// call when a query needs live data.
package weather

import (
	"errors"
	"fmt"
	"time"
)

const (
	// DefaultGeocodingURL is the Open-Meteo geocoding search endpoint.
	DefaultGeocodingURL = "https://geocoding-api.open-meteo.com/v1/search"

	// DefaultForecastURL is the Open-Meteo forecast endpoint.
	DefaultForecastURL = "https://api.open-meteo.com/v1/forecast"

	// DefaultRatePerSecond caps outbound requests to the weather APIs.
	DefaultRatePerSecond = 5.0

	// DefaultCacheTTL is how long a lookup stays cached.
	DefaultCacheTTL = 10 * time.Minute
)

// ErrLocationNotFound is returned when geocoding yields no match.
var ErrLocationNotFound = errors.New("location not found")

// ErrEmptyLocation is returned for a blank location.
var ErrEmptyLocation = errors.New("location is required")

// Conditions is a snapshot of the current weather at a resolved location.
type Conditions struct {
	Location    string    `json:"location"`
	Latitude    float64   `json:"latitude"`
	Longitude   float64   `json:"longitude"`
	Temperature float64   `json:"temperature"`
	FeelsLike   float64   `json:"feelsLike"`
	Humidity    int       `json:"humidity"`
	WindSpeed   float64   `json:"windSpeed"`
	WindGust    float64   `json:"windGust"`
	Code        int       `json:"code"`
	Conditions  string    `json:"conditions"`
	ObservedAt  time.Time `json:"observedAt"`
}

// Summary renders the conditions as a single sentence.
func (c *Conditions) Summary() string {
	return fmt.Sprintf("%s in %s, %.1f°C (feels like %.1f°C), humidity %d%%, wind %.1f km/h",
		c.Conditions, c.Location, c.Temperature, c.FeelsLike, c.Humidity, c.WindSpeed)
}
