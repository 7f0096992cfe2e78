// Package servecmder provides the serve command that runs the skycast server.
package servecmder

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/papercomputeco/skycast/pkg/agent"
	"github.com/papercomputeco/skycast/pkg/agent/ollama"
	"github.com/papercomputeco/skycast/pkg/agent/scripted"
	"github.com/papercomputeco/skycast/pkg/cliui"
	"github.com/papercomputeco/skycast/pkg/config"
	"github.com/papercomputeco/skycast/pkg/dotdir"
	"github.com/papercomputeco/skycast/pkg/eventstream"
	"github.com/papercomputeco/skycast/pkg/eventstream/kafka"
	"github.com/papercomputeco/skycast/pkg/eventstream/nop"
	"github.com/papercomputeco/skycast/pkg/logger"
	"github.com/papercomputeco/skycast/pkg/storage"
	"github.com/papercomputeco/skycast/pkg/storage/inmemory"
	"github.com/papercomputeco/skycast/pkg/storage/postgres"
	"github.com/papercomputeco/skycast/pkg/storage/sqlite"
	"github.com/papercomputeco/skycast/pkg/weather"
	"github.com/papercomputeco/skycast/server"
)

// sqliteFileName is the default database file inside the .skycast directory.
const sqliteFileName = "skycast.db"

type serveCommander struct {
	configDir string
	debug     bool

	listen   string
	agent    string
	provider string
	model    string
	upstream string
	maxSteps int

	geocodingURL  string
	forecastURL   string
	weatherCache  string
	redisAddr     string
	cacheTTL      time.Duration
	ratePerSecond float64

	storageDriver string
	sqlitePath    string
	postgresDSN   string

	kafkaBrokers []string
	kafkaTopic   string

	logger *slog.Logger
}

// serveFlags are the registry flags bound to viper by the serve command.
var serveFlags = []string{
	config.FlagListen,
	config.FlagAgent,
	config.FlagProvider,
	config.FlagModel,
	config.FlagUpstream,
	config.FlagMaxSteps,
	config.FlagWeatherCache,
	config.FlagRedisAddr,
	config.FlagStorageDriver,
	config.FlagSQLite,
	config.FlagPostgresDSN,
	config.FlagKafkaBrokers,
	config.FlagKafkaTopic,
}

const serveLongDesc string = `Run the skycast server.

The server answers weather questions through the configured agent and relays
streamed answers to clients as server-sent events. Every served turn is
recorded in the configured storage driver and, when Kafka brokers are set,
announced on the turn topic.

Endpoints:
  POST /api/weather-stream      Stream an answer as server-sent events
  POST /api/weather             Answer in one JSON response
  GET  /api/weather?city=       Answer for a city
  POST /api/weather-structured  Structured weather report
  POST /actions/weather         Form submission
  GET  /api/turns               List recorded turns
  GET  /api/turns/:id           Get a recorded turn
  ALL  /mcp                     MCP streamable HTTP endpoint

Examples:
  skycast serve
  skycast serve --provider scripted --storage memory
  skycast serve --model llama3.2 --upstream http://localhost:11434`

const serveShortDesc string = "Run the skycast server"

func NewServeCmd() *cobra.Command {
	cmder := &serveCommander{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: serveShortDesc,
		Long:  serveLongDesc,
		Args:  cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			cmder.configDir, _ = cmd.Flags().GetString("config-dir")

			v, err := config.InitViper(cmder.configDir)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			config.BindRegisteredFlags(v, cmd, config.Flags, serveFlags)

			return cmder.load(v)
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			cmder.debug, err = cmd.Flags().GetBool("debug")
			if err != nil {
				return fmt.Errorf("could not get debug flag: %w", err)
			}

			return cmder.run(cmd.ErrOrStderr())
		},
	}

	// Values are read back from viper in PreRunE so that env vars and
	// config.toml apply when a flag is not set.
	var kafkaBrokers string
	config.AddStringFlag(cmd, config.Flags, config.FlagListen, &cmder.listen)
	config.AddStringFlag(cmd, config.Flags, config.FlagAgent, &cmder.agent)
	config.AddStringFlag(cmd, config.Flags, config.FlagProvider, &cmder.provider)
	config.AddStringFlag(cmd, config.Flags, config.FlagModel, &cmder.model)
	config.AddStringFlag(cmd, config.Flags, config.FlagUpstream, &cmder.upstream)
	config.AddIntFlag(cmd, config.Flags, config.FlagMaxSteps, &cmder.maxSteps)
	config.AddStringFlag(cmd, config.Flags, config.FlagWeatherCache, &cmder.weatherCache)
	config.AddStringFlag(cmd, config.Flags, config.FlagRedisAddr, &cmder.redisAddr)
	config.AddStringFlag(cmd, config.Flags, config.FlagStorageDriver, &cmder.storageDriver)
	config.AddStringFlag(cmd, config.Flags, config.FlagSQLite, &cmder.sqlitePath)
	config.AddStringFlag(cmd, config.Flags, config.FlagPostgresDSN, &cmder.postgresDSN)
	config.AddStringFlag(cmd, config.Flags, config.FlagKafkaBrokers, &kafkaBrokers)
	config.AddStringFlag(cmd, config.Flags, config.FlagKafkaTopic, &cmder.kafkaTopic)

	return cmd
}

// load copies the resolved configuration out of v.
func (c *serveCommander) load(v *viper.Viper) error {
	c.listen = v.GetString("server.listen")
	c.agent = v.GetString("agent.name")
	c.provider = v.GetString("agent.provider")
	c.model = v.GetString("agent.model")
	c.upstream = v.GetString("agent.upstream")
	c.maxSteps = v.GetInt("agent.max_steps")

	c.geocodingURL = v.GetString("weather.geocoding_url")
	c.forecastURL = v.GetString("weather.forecast_url")
	c.weatherCache = v.GetString("weather.cache")
	c.redisAddr = v.GetString("weather.redis_addr")
	c.ratePerSecond = v.GetFloat64("weather.rate_per_second")

	ttl, err := time.ParseDuration(v.GetString("weather.cache_ttl"))
	if err != nil {
		return fmt.Errorf("invalid weather.cache_ttl: %w", err)
	}
	c.cacheTTL = ttl

	c.storageDriver = v.GetString("storage.driver")
	c.sqlitePath = v.GetString("storage.sqlite_path")
	c.postgresDSN = v.GetString("storage.postgres_dsn")

	c.kafkaBrokers = config.StringList(v, "eventstream.kafka_brokers")
	c.kafkaTopic = v.GetString("eventstream.kafka_topic")

	if c.maxSteps < 1 {
		return fmt.Errorf("max steps must be at least 1, got %d", c.maxSteps)
	}
	return nil
}

func (c *serveCommander) run(logOut io.Writer) error {
	c.logger = logger.New(
		logger.WithDebug(c.debug),
		logger.WithWriter(logOut),
		logger.WithPretty(cliui.IsTerminal(logOut)),
		logger.WithJSON(true),
	)

	ctx := context.Background()

	st, err := c.build(ctx)
	if err != nil {
		return err
	}
	defer st.Close()

	c.logger.Info("starting skycast server",
		"listen", c.listen,
		"agent", c.agent,
		"provider", c.provider,
		"storage", c.storageDriver,
	)

	errChan := make(chan error, 1)
	go func() {
		errChan <- st.server.Run()
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case err := <-errChan:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case sig := <-sigChan:
		c.logger.Info("received signal, shutting down", "signal", sig.String())
		return nil
	}
}

// stack is everything a running server owns.
type stack struct {
	server    *server.Server
	driver    storage.Driver
	publisher eventstream.Publisher
	redis     *redis.Client
}

// Close shuts the server down first so queued turns are flushed before the
// driver and publisher close.
func (s *stack) Close() error {
	var errs []error
	if s.server != nil {
		errs = append(errs, s.server.Close())
	}
	if s.publisher != nil {
		errs = append(errs, s.publisher.Close())
	}
	if s.driver != nil {
		errs = append(errs, s.driver.Close())
	}
	if s.redis != nil {
		errs = append(errs, s.redis.Close())
	}
	return errors.Join(errs...)
}

func (c *serveCommander) build(ctx context.Context) (*stack, error) {
	st := &stack{}

	var err error
	st.driver, err = c.newStorageDriver(ctx)
	if err != nil {
		return nil, err
	}

	cache, err := c.newWeatherCache(st)
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	weatherOpts := []weather.Option{
		weather.WithGeocodingURL(c.geocodingURL),
		weather.WithForecastURL(c.forecastURL),
		weather.WithRateLimit(c.ratePerSecond),
		weather.WithLogger(c.logger),
	}
	if cache != nil {
		weatherOpts = append(weatherOpts, weather.WithCache(cache))
	}
	wc := weather.NewClient(weatherOpts...)

	registry, err := c.newRegistry(wc)
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	st.publisher, err = c.newPublisher()
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	st.server, err = server.New(server.Config{
		ListenAddr: c.listen,
		AgentName:  c.agent,
		MaxSteps:   c.maxSteps,
		Registry:   registry,
		Driver:     st.driver,
		Publisher:  st.publisher,
	}, c.logger)
	if err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("creating server: %w", err)
	}

	return st, nil
}

func (c *serveCommander) newStorageDriver(ctx context.Context) (storage.Driver, error) {
	switch c.storageDriver {
	case "memory":
		c.logger.Info("using in-memory storage")
		return inmemory.NewDriver(), nil

	case "sqlite":
		path := c.sqlitePath
		if path == "" {
			var err error
			path, err = dotdir.NewManager().File(c.configDir, sqliteFileName)
			if err != nil {
				return nil, fmt.Errorf("resolving sqlite path: %w", err)
			}
		}
		driver, err := sqlite.NewSQLiteDriver(path)
		if err != nil {
			return nil, fmt.Errorf("failed to create SQLite storer: %w", err)
		}
		c.logger.Info("using SQLite storage", "path", path)
		return driver, nil

	case "postgres":
		if c.postgresDSN == "" {
			return nil, errors.New("postgres storage requires --postgres-dsn")
		}
		driver, err := postgres.NewDriver(ctx, c.postgresDSN)
		if err != nil {
			return nil, fmt.Errorf("failed to create PostgreSQL storer: %w", err)
		}
		c.logger.Info("using PostgreSQL storage")
		return driver, nil

	default:
		return nil, fmt.Errorf("unknown storage driver %q (valid: %s)", c.storageDriver, strings.Join(config.ValidStorageDrivers(), ", "))
	}
}

// newWeatherCache returns nil when caching is disabled.
func (c *serveCommander) newWeatherCache(st *stack) (weather.Cache, error) {
	switch c.weatherCache {
	case "", "none":
		return nil, nil
	case "memory":
		return weather.NewMemoryCache(c.cacheTTL), nil
	case "redis":
		if c.redisAddr == "" {
			return nil, errors.New("redis weather cache requires --redis-addr")
		}
		st.redis = redis.NewClient(&redis.Options{Addr: c.redisAddr})
		c.logger.Info("using redis weather cache", "addr", c.redisAddr)
		return weather.NewRedisCache(st.redis, c.cacheTTL), nil
	default:
		return nil, fmt.Errorf("unknown weather cache %q (valid: memory, redis, none)", c.weatherCache)
	}
}

// newRegistry registers the configured agent under the configured name. A
// scripted agent named "scripted" is always available for offline use.
func (c *serveCommander) newRegistry(wc *weather.Client) (*agent.Registry, error) {
	registry := agent.NewRegistry(scripted.New(
		scripted.WithName("scripted"),
		scripted.WithWeather(wc),
	))

	var primary agent.Agent
	switch c.provider {
	case "ollama":
		primary = ollama.New(ollama.Config{
			Name:    c.agent,
			BaseURL: c.upstream,
			Model:   c.model,
			Weather: wc,
			Logger:  c.logger,
		})
	case "scripted":
		if c.agent == "scripted" {
			return registry, nil
		}
		primary = scripted.New(scripted.WithName(c.agent), scripted.WithWeather(wc))
	default:
		return nil, fmt.Errorf("unknown agent provider %q (valid: %s)", c.provider, strings.Join(config.ValidProviders(), ", "))
	}

	if err := registry.Register(primary); err != nil {
		return nil, err
	}
	return registry, nil
}

func (c *serveCommander) newPublisher() (eventstream.Publisher, error) {
	if len(c.kafkaBrokers) == 0 {
		return nop.NewPublisher(), nil
	}

	p, err := kafka.NewPublisher(kafka.Config{
		Brokers:  c.kafkaBrokers,
		Topic:    c.kafkaTopic,
		ClientID: "skycast",
	})
	if err != nil {
		return nil, fmt.Errorf("creating kafka publisher: %w", err)
	}
	c.logger.Info("publishing turn events to kafka",
		"brokers", c.kafkaBrokers,
		"topic", c.kafkaTopic,
	)
	return p, nil
}
