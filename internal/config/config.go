package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the server configuration.
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Logging LoggingConfig `mapstructure:"logging"`
	Match   MatchConfig   `mapstructure:"match"`
	Rules   RulesConfig   `mapstructure:"rules"`
	Storage StorageConfig `mapstructure:"storage"`
}

// ServerConfig holds the listener settings.
type ServerConfig struct {
	WebSocket  WebSocketConfig `mapstructure:"websocket"`
	GRPC       GRPCConfig      `mapstructure:"grpc"`
	MaxMatches int             `mapstructure:"max_matches"`
}

// WebSocketConfig configures the player transport.
type WebSocketConfig struct {
	Address         string        `mapstructure:"address"`
	ReadBufferSize  int           `mapstructure:"read_buffer_size"`
	WriteBufferSize int           `mapstructure:"write_buffer_size"`
	MaxMessageSize  int64         `mapstructure:"max_message_size"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	PingInterval    time.Duration `mapstructure:"ping_interval"`
	SendQueue       int           `mapstructure:"send_queue"`
}

// GRPCConfig configures the health endpoint.
type GRPCConfig struct {
	Address string `mapstructure:"address"`
}

// LoggingConfig selects the log level and encoding.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// MatchConfig holds the lifecycle timings of a match.
type MatchConfig struct {
	ReadinessWindow   time.Duration `mapstructure:"readiness_window"`
	TurnDuration      time.Duration `mapstructure:"turn_duration"`
	InactivityWarning time.Duration `mapstructure:"inactivity_warning"`
	InactivityFinal   time.Duration `mapstructure:"inactivity_final"`
	InactivityForfeit time.Duration `mapstructure:"inactivity_forfeit"`
	ExitGrace         time.Duration `mapstructure:"exit_grace"`
	CleanupDelay      time.Duration `mapstructure:"cleanup_delay"`
	// FatigueTurn is the first turn on which a turn swap costs the new active master 1 hp. 0 disables fatigue.
	FatigueTurn int `mapstructure:"fatigue_turn"`
}

// RulesConfig holds the tunable game numbers.
type RulesConfig struct {
	MaxHP      int            `mapstructure:"max_hp"`
	MaxMana    int            `mapstructure:"max_mana"`
	MaxStamina int            `mapstructure:"max_stamina"`
	SpawnCost  int            `mapstructure:"spawn_cost"`
	Spells     map[string]int `mapstructure:"spells"`
}

// StorageConfig selects where closure records and replays go.
type StorageConfig struct {
	Driver    string `mapstructure:"driver"`
	DSN       string `mapstructure:"dsn"`
	ReplayDir string `mapstructure:"replay_dir"`
}

// Storage drivers.
const (
	DriverNone     = "none"
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Load reads configuration from path, then CELLWARS_* environment variables.
// A missing file is not an error; defaults cover every setting.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("CELLWARS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("failed to read config %s: %w", path, err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.websocket.address", ":8080")
	v.SetDefault("server.websocket.read_buffer_size", 1024)
	v.SetDefault("server.websocket.write_buffer_size", 1024)
	v.SetDefault("server.websocket.max_message_size", 4096)
	v.SetDefault("server.websocket.write_timeout", 10*time.Second)
	v.SetDefault("server.websocket.ping_interval", 30*time.Second)
	v.SetDefault("server.websocket.send_queue", 32)
	v.SetDefault("server.grpc.address", ":9090")
	v.SetDefault("server.max_matches", 1000)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("match.readiness_window", 30*time.Second)
	v.SetDefault("match.turn_duration", 60*time.Second)
	v.SetDefault("match.inactivity_warning", 20*time.Second)
	v.SetDefault("match.inactivity_final", 40*time.Second)
	v.SetDefault("match.inactivity_forfeit", 90*time.Second)
	v.SetDefault("match.exit_grace", 30*time.Second)
	v.SetDefault("match.cleanup_delay", 10*time.Second)
	v.SetDefault("match.fatigue_turn", 60)

	v.SetDefault("rules.max_hp", 5)
	v.SetDefault("rules.max_mana", 10)
	v.SetDefault("rules.max_stamina", 10)
	v.SetDefault("rules.spawn_cost", 1)
	v.SetDefault("rules.spells", map[string]int{
		"diagonal":   2,
		"square":     2,
		"isolation":  2,
		"area_spawn": 1,
		"mine":       3,
	})

	v.SetDefault("storage.driver", DriverNone)
	v.SetDefault("storage.dsn", "")
	v.SetDefault("storage.replay_dir", "")
}

// Validate rejects settings the server cannot run with.
func (c *Config) Validate() error {
	var problems []string
	check := func(ok bool, msg string) {
		if !ok {
			problems = append(problems, msg)
		}
	}

	check(c.Server.WebSocket.Address != "", "server.websocket.address is required")
	check(c.Server.GRPC.Address != "", "server.grpc.address is required")
	check(c.Server.MaxMatches > 0, "server.max_matches must be positive")
	check(c.Server.WebSocket.SendQueue > 0, "server.websocket.send_queue must be positive")

	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		problems = append(problems, fmt.Sprintf("logging.level %q is not one of debug, info, warn, error", c.Logging.Level))
	}
	check(c.Logging.Format == "json" || c.Logging.Format == "console", "logging.format must be json or console")

	m := c.Match
	check(m.ReadinessWindow > 0, "match.readiness_window must be positive")
	check(m.TurnDuration > 0, "match.turn_duration must be positive")
	check(m.InactivityWarning > 0, "match.inactivity_warning must be positive")
	check(m.InactivityWarning < m.InactivityFinal && m.InactivityFinal < m.InactivityForfeit,
		"match inactivity timers must satisfy warning < final < forfeit")
	check(m.ExitGrace > 0, "match.exit_grace must be positive")
	check(m.CleanupDelay >= 0, "match.cleanup_delay must not be negative")
	check(m.FatigueTurn >= 0, "match.fatigue_turn must not be negative")

	r := c.Rules
	check(r.MaxHP > 0 && r.MaxMana > 0 && r.MaxStamina > 0, "rules caps must be positive")
	check(r.SpawnCost >= 0, "rules.spawn_cost must not be negative")
	for id, n := range r.Spells {
		check(n >= 0, fmt.Sprintf("rules.spells.%s must not be negative", id))
	}

	switch c.Storage.Driver {
	case DriverNone:
	case DriverPostgres, DriverSQLite:
		check(c.Storage.DSN != "", "storage.dsn is required for driver "+c.Storage.Driver)
	default:
		problems = append(problems, fmt.Sprintf("storage.driver %q is not one of none, postgres, sqlite", c.Storage.Driver))
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}
	return nil
}
