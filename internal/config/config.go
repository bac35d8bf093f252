// Package config loads the hub configuration from YAML with environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

var ErrInvalid = errors.New("invalid config")

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Spinner   SpinnerConfig   `yaml:"spinner"`
	Active    ActiveConfig    `yaml:"active"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	Archive   ArchiveConfig   `yaml:"archive"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	GRPC      GRPCConfig      `yaml:"grpc"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Log       LogConfig       `yaml:"log"`
}

type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	CORSOrigins     []string      `yaml:"cors_origins"`
}

type SpinnerConfig struct {
	BaseTicks       int           `yaml:"base_ticks"`
	TickJitter      int           `yaml:"tick_jitter"`
	BaseDelay       time.Duration `yaml:"base_delay"`
	DelayStep       time.Duration `yaml:"delay_step"`
	HistoryCapacity int           `yaml:"history_capacity"`
	HistoryLimit    int           `yaml:"history_limit"`
}

type ActiveConfig struct {
	// Completed spins stay listed in the active table this long before a sweep drops them.
	Retention     time.Duration `yaml:"retention"`
	SweepSchedule string        `yaml:"sweep_schedule"`
}

type WebSocketConfig struct {
	SendBuffer   int           `yaml:"send_buffer"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	PingInterval time.Duration `yaml:"ping_interval"`
	ReadLimit    int64         `yaml:"read_limit"`
}

type ArchiveConfig struct {
	Path string `yaml:"path"`
}

type MQTTConfig struct {
	Broker      string `yaml:"broker"`
	ClientID    string `yaml:"client_id"`
	TopicPrefix string `yaml:"topic_prefix"`
	QoS         byte   `yaml:"qos"`
}

type GRPCConfig struct {
	HealthAddr string `yaml:"health_addr"`
}

type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// newConfig seeds the fields where zero is a valid setting, so YAML only
// overrides them when the key is present.
func newConfig() *Config {
	return &Config{
		Spinner: SpinnerConfig{
			TickJitter: 10,
			BaseDelay:  50 * time.Millisecond,
			DelayStep:  20 * time.Millisecond,
		},
		Metrics: MetricsConfig{Enabled: true},
	}
}

// Default returns a config with every default filled in.
func Default() *Config {
	cfg := newConfig()
	_ = cfg.Validate()
	return cfg
}

// Load reads path, applies LIMINAL_* environment overrides and validates.
// A missing file is not an error: defaults and the environment still apply.
func Load(path string) (*Config, error) {
	cfg := newConfig()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.Server.Addr = getEnv("LIMINAL_ADDR", c.Server.Addr)
	c.Server.ShutdownTimeout = getEnvAsDuration("LIMINAL_SHUTDOWN_TIMEOUT", c.Server.ShutdownTimeout)
	if v := os.Getenv("LIMINAL_CORS_ORIGINS"); v != "" {
		c.Server.CORSOrigins = strings.Split(v, ",")
	}
	c.Spinner.HistoryCapacity = getEnvAsInt("LIMINAL_HISTORY_CAPACITY", c.Spinner.HistoryCapacity)
	c.Active.Retention = getEnvAsDuration("LIMINAL_ACTIVE_RETENTION", c.Active.Retention)
	c.Active.SweepSchedule = getEnv("LIMINAL_SWEEP_SCHEDULE", c.Active.SweepSchedule)
	c.Archive.Path = getEnv("LIMINAL_ARCHIVE_PATH", c.Archive.Path)
	c.MQTT.Broker = getEnv("LIMINAL_MQTT_BROKER", c.MQTT.Broker)
	c.GRPC.HealthAddr = getEnv("LIMINAL_GRPC_HEALTH_ADDR", c.GRPC.HealthAddr)
	c.Log.Level = getEnv("LIMINAL_LOG_LEVEL", c.Log.Level)
	c.Log.Format = getEnv("LIMINAL_LOG_FORMAT", c.Log.Format)
}

// Validate fills defaults for unset fields and rejects values that cannot work.
func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		c.Server.Addr = "127.0.0.1:8081"
	}
	if c.Server.ShutdownTimeout <= 0 {
		c.Server.ShutdownTimeout = 30 * time.Second
	}
	if len(c.Server.CORSOrigins) == 0 {
		c.Server.CORSOrigins = []string{"*"}
	}

	if c.Spinner.BaseTicks == 0 {
		c.Spinner.BaseTicks = 15
	}
	if c.Spinner.BaseTicks < 0 {
		return fmt.Errorf("%w: spinner.base_ticks must be > 0", ErrInvalid)
	}
	// tick_jitter and the delays accept 0: no jitter, no delay growth.
	if c.Spinner.TickJitter < 0 {
		return fmt.Errorf("%w: spinner.tick_jitter must be >= 0", ErrInvalid)
	}
	if c.Spinner.BaseDelay < 0 || c.Spinner.DelayStep < 0 {
		return fmt.Errorf("%w: spinner delays must be >= 0", ErrInvalid)
	}
	if c.Spinner.HistoryCapacity <= 0 {
		c.Spinner.HistoryCapacity = 100
	}
	if c.Spinner.HistoryLimit <= 0 {
		c.Spinner.HistoryLimit = 20
	}
	if c.Spinner.HistoryLimit > c.Spinner.HistoryCapacity {
		return fmt.Errorf("%w: spinner.history_limit %d exceeds history_capacity %d",
			ErrInvalid, c.Spinner.HistoryLimit, c.Spinner.HistoryCapacity)
	}

	if c.Active.Retention <= 0 {
		c.Active.Retention = 5 * time.Minute
	}
	if c.Active.SweepSchedule == "" {
		c.Active.SweepSchedule = "@every 1m"
	}

	if c.WebSocket.SendBuffer <= 0 {
		c.WebSocket.SendBuffer = 256
	}
	if c.WebSocket.WriteTimeout <= 0 {
		c.WebSocket.WriteTimeout = 10 * time.Second
	}
	if c.WebSocket.PingInterval < 0 {
		return fmt.Errorf("%w: websocket.ping_interval must be >= 0", ErrInvalid)
	}
	if c.WebSocket.ReadLimit <= 0 {
		c.WebSocket.ReadLimit = 4096
	}

	if c.MQTT.ClientID == "" {
		c.MQTT.ClientID = "liminal-hub"
	}
	if c.MQTT.TopicPrefix == "" {
		c.MQTT.TopicPrefix = "liminal/spinner"
	}
	if c.MQTT.QoS > 2 {
		return fmt.Errorf("%w: mqtt.qos must be 0, 1 or 2", ErrInvalid)
	}

	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("%w: log.level %q", ErrInvalid, c.Log.Level)
	}
	if c.Log.Format == "" {
		c.Log.Format = "json"
	}
	if c.Log.Format != "json" && c.Log.Format != "text" {
		return fmt.Errorf("%w: log.format %q", ErrInvalid, c.Log.Format)
	}
	return nil
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvAsInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.Atoi(val); err == nil {
			return parsed
		}
	}
	return defaultVal
}

func getEnvAsDuration(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if parsed, err := time.ParseDuration(val); err == nil {
			return parsed
		}
	}
	return defaultVal
}
