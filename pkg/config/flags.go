package config

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Flag is the single source of truth for a CLI flag.
// Commands reference flags by registry key rather than hard-coding names,
// shorthands, defaults, and descriptions inline. This prevents flag drift
// when the same logical flag appears on multiple commands (e.g., --agent
// on both "skycast serve" and "skycast ask").
type Flag struct {
	// Name is the long flag name (e.g. "upstream").
	Name string

	// Shorthand is the one-letter short flag (e.g. "u"). Empty for no shorthand.
	Shorthand string

	// ViperKey is the dotted config key this flag maps to (e.g. "agent.upstream").
	ViperKey string

	// Description is the help text shown in --help output.
	Description string
}

// FlagSet is a mapping of flag names to Flag structs that hold their name,
// shorthand, viper key, etc.
type FlagSet map[string]Flag

// Flag registry keys.
// Use these constants when calling AddStringFlag, AddIntFlag,
// and BindRegisteredFlags to avoid typos or drift from one command to another.
const (
	FlagListen        = "listen"
	FlagAgent         = "agent"
	FlagProvider      = "provider"
	FlagModel         = "model"
	FlagUpstream      = "upstream"
	FlagMaxSteps      = "max-steps"
	FlagWeatherCache  = "weather-cache"
	FlagRedisAddr     = "redis-addr"
	FlagStorageDriver = "storage"
	FlagSQLite        = "sqlite"
	FlagPostgresDSN   = "postgres-dsn"
	FlagKafkaBrokers  = "kafka-brokers"
	FlagKafkaTopic    = "kafka-topic"
	FlagTarget        = "target"
)

// Flags is the registry of every skycast CLI flag.
var Flags = FlagSet{
	FlagListen:        {Name: "listen", Shorthand: "l", ViperKey: "server.listen", Description: "Address for the server to listen on"},
	FlagAgent:         {Name: "agent", ViperKey: "agent.name", Description: "Name of the agent that answers requests"},
	FlagProvider:      {Name: "provider", ViperKey: "agent.provider", Description: "Agent provider (ollama, scripted)"},
	FlagModel:         {Name: "model", Shorthand: "m", ViperKey: "agent.model", Description: "Model used by the ollama provider"},
	FlagUpstream:      {Name: "upstream", Shorthand: "u", ViperKey: "agent.upstream", Description: "Ollama base URL"},
	FlagMaxSteps:      {Name: "max-steps", ViperKey: "agent.max_steps", Description: "Maximum agent tool steps per request"},
	FlagWeatherCache:  {Name: "weather-cache", ViperKey: "weather.cache", Description: "Weather lookup cache (memory, redis, none)"},
	FlagRedisAddr:     {Name: "redis-addr", ViperKey: "weather.redis_addr", Description: "Redis address for the weather cache"},
	FlagStorageDriver: {Name: "storage", ViperKey: "storage.driver", Description: "Turn storage driver (memory, sqlite, postgres)"},
	FlagSQLite:        {Name: "sqlite", Shorthand: "s", ViperKey: "storage.sqlite_path", Description: "Path to the SQLite turn database (default: .skycast/skycast.db)"},
	FlagPostgresDSN:   {Name: "postgres-dsn", ViperKey: "storage.postgres_dsn", Description: "PostgreSQL connection string"},
	FlagKafkaBrokers:  {Name: "kafka-brokers", ViperKey: "eventstream.kafka_brokers", Description: "Comma separated Kafka brokers for turn events"},
	FlagKafkaTopic:    {Name: "kafka-topic", ViperKey: "eventstream.kafka_topic", Description: "Kafka topic for turn events"},
	FlagTarget:        {Name: "target", Shorthand: "t", ViperKey: "client.target", Description: "Skycast server URL"},
}

// AddStringFlag registers a string flag on cmd from the given FlagSet.
// The flag's name, shorthand, default, and description all come from the
// FlagSet entry so they cannot drift across commands.
func AddStringFlag(cmd *cobra.Command, fs FlagSet, key string, target *string) {
	def, ok := fs[key]
	if !ok {
		return
	}

	defaultVal := defaultString(def.ViperKey)
	if def.Shorthand != "" {
		cmd.Flags().StringVarP(target, def.Name, def.Shorthand, defaultVal, def.Description)
	} else {
		cmd.Flags().StringVar(target, def.Name, defaultVal, def.Description)
	}
}

// AddIntFlag registers an int flag on cmd from the given FlagSet.
func AddIntFlag(cmd *cobra.Command, fs FlagSet, registryKey string, target *int) {
	def, ok := fs[registryKey]
	if !ok {
		return
	}

	defaultVal := defaultInt(def.ViperKey)
	if def.Shorthand != "" {
		cmd.Flags().IntVarP(target, def.Name, def.Shorthand, defaultVal, def.Description)
	} else {
		cmd.Flags().IntVar(target, def.Name, defaultVal, def.Description)
	}
}

// BindRegisteredFlags binds already-registered flags to viper using definitions
// from the given FlagSet. Call this in PreRunE after InitViper to connect flags
// to the viper precedence chain (flag > env > config file > default).
func BindRegisteredFlags(v *viper.Viper, cmd *cobra.Command, fs FlagSet, registryKeys []string) {
	for _, registryKey := range registryKeys {
		def, ok := fs[registryKey]
		if !ok {
			continue
		}

		f := cmd.Flags().Lookup(def.Name)
		if f == nil {
			continue
		}

		_ = v.BindPFlag(def.ViperKey, f)
	}
}

// defaultString returns the default string value for a viper key from NewDefaultConfig.
func defaultString(viperKey string) string {
	v := viper.New()
	setViperDefaults(v)
	return v.GetString(viperKey)
}

// defaultInt returns the default int value for a viper key from NewDefaultConfig.
func defaultInt(viperKey string) int {
	v := viper.New()
	setViperDefaults(v)
	return v.GetInt(viperKey)
}
