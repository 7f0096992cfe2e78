package weather

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/papercomputeco/skycast/pkg/logger"
)

// Client resolves a place name and fetches its current conditions.
type Client struct {
	geocodingURL string
	forecastURL  string
	httpClient   *http.Client
	limiter      *rate.Limiter
	cache        Cache
	logger       *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithGeocodingURL overrides DefaultGeocodingURL.
func WithGeocodingURL(u string) Option {
	return func(c *Client) { c.geocodingURL = u }
}

// WithForecastURL overrides DefaultForecastURL.
func WithForecastURL(u string) Option {
	return func(c *Client) { c.forecastURL = u }
}

// WithHTTPClient sets the client used for outbound requests.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithRateLimit limits outbound requests to perSecond with a burst of one.
// A non-positive rate disables limiting.
func WithRateLimit(perSecond float64) Option {
	return func(c *Client) {
		if perSecond <= 0 {
			c.limiter = nil
			return
		}
		c.limiter = rate.NewLimiter(rate.Limit(perSecond), 1)
	}
}

// WithCache enables caching of lookups.
func WithCache(cache Cache) Option {
	return func(c *Client) { c.cache = cache }
}

// WithLogger sets the client logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// NewClient returns a Client for the public Open-Meteo APIs.
func NewClient(opts ...Option) *Client {
	c := &Client{
		geocodingURL: DefaultGeocodingURL,
		forecastURL:  DefaultForecastURL,
		httpClient:   &http.Client{Timeout: 15 * time.Second},
		limiter:      rate.NewLimiter(rate.Limit(DefaultRatePerSecond), 1),
		logger:       logger.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type geocodingResponse struct {
	Results []struct {
		Name      string  `json:"name"`
		Country   string  `json:"country"`
		Latitude  float64 `json:"latitude"`
		Longitude float64 `json:"longitude"`
	} `json:"results"`
}

type forecastResponse struct {
	Current struct {
		Time                string  `json:"time"`
		Temperature2m       float64 `json:"temperature_2m"`
		ApparentTemperature float64 `json:"apparent_temperature"`
		RelativeHumidity2m  int     `json:"relative_humidity_2m"`
		WindSpeed10m        float64 `json:"wind_speed_10m"`
		WindGusts10m        float64 `json:"wind_gusts_10m"`
		WeatherCode         int     `json:"weather_code"`
	} `json:"current"`
}

// Lookup returns the current conditions at location. Cache failures are
// logged and otherwise ignored.
func (c *Client) Lookup(ctx context.Context, location string) (*Conditions, error) {
	location = strings.TrimSpace(location)
	if location == "" {
		return nil, ErrEmptyLocation
	}

	key := CacheKey(location)
	if c.cache != nil {
		cached, ok, err := c.cache.Get(ctx, key)
		if err != nil {
			c.logger.Warn("weather cache read failed", "location", location, logger.Err(err))
		}
		if ok {
			c.logger.Debug("weather cache hit", "location", location)
			return cached, nil
		}
	}

	conditions, err := c.fetch(ctx, location)
	if err != nil {
		return nil, err
	}

	if c.cache != nil {
		if err := c.cache.Set(ctx, key, conditions); err != nil {
			c.logger.Warn("weather cache write failed", "location", location, logger.Err(err))
		}
	}
	return conditions, nil
}

func (c *Client) fetch(ctx context.Context, location string) (*Conditions, error) {
	geoQuery := url.Values{}
	geoQuery.Set("name", location)
	geoQuery.Set("count", "1")

	var geo geocodingResponse
	if err := c.getJSON(ctx, c.geocodingURL, geoQuery, &geo); err != nil {
		return nil, fmt.Errorf("geocoding %q: %w", location, err)
	}
	if len(geo.Results) == 0 {
		return nil, fmt.Errorf("%w: %q", ErrLocationNotFound, location)
	}
	place := geo.Results[0]

	forecastQuery := url.Values{}
	forecastQuery.Set("latitude", strconv.FormatFloat(place.Latitude, 'f', -1, 64))
	forecastQuery.Set("longitude", strconv.FormatFloat(place.Longitude, 'f', -1, 64))
	forecastQuery.Set("current", "temperature_2m,apparent_temperature,relative_humidity_2m,wind_speed_10m,wind_gusts_10m,weather_code")

	var forecast forecastResponse
	if err := c.getJSON(ctx, c.forecastURL, forecastQuery, &forecast); err != nil {
		return nil, fmt.Errorf("forecast for %q: %w", place.Name, err)
	}

	name := place.Name
	if place.Country != "" {
		name += ", " + place.Country
	}

	observed, _ := time.Parse("2006-01-02T15:04", forecast.Current.Time)

	cur := forecast.Current
	return &Conditions{
		Location:    name,
		Latitude:    place.Latitude,
		Longitude:   place.Longitude,
		Temperature: cur.Temperature2m,
		FeelsLike:   cur.ApparentTemperature,
		Humidity:    cur.RelativeHumidity2m,
		WindSpeed:   cur.WindSpeed10m,
		WindGust:    cur.WindGusts10m,
		Code:        cur.WeatherCode,
		Conditions:  ConditionName(cur.WeatherCode),
		ObservedAt:  observed,
	}, nil
}

func (c *Client) getJSON(ctx context.Context, base string, query url.Values, out any) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("waiting for rate limiter: %w", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+"?"+query.Encode(), nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
