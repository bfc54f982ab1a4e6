package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/bguthro/seestar-alp/internal/event"
)

// Config is the root configuration structure for alpwatch.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Device    DeviceConfig    `yaml:"device"`
	Database  DatabaseConfig  `yaml:"database"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	API       APIConfig       `yaml:"api"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	InfluxDB  InfluxDBConfig  `yaml:"influxdb"`
	Logging   LoggingConfig   `yaml:"logging"`
	Watchers  WatchersConfig  `yaml:"watchers"`
	Dispatch  DispatchConfig  `yaml:"dispatch"`
}

// DeviceConfig identifies the rig and bounds the commands sent to it.
type DeviceConfig struct {
	// ID is the device segment of the MQTT topics (seestar/{id}/...).
	ID   string `yaml:"id"`
	Name string `yaml:"name"`

	// CommandTimeout is how long to wait for a command response, in seconds.
	CommandTimeout int `yaml:"command_timeout"`

	// CommandRate is the sustained command rate per second; CommandBurst
	// the number of commands allowed back to back.
	CommandRate  float64 `yaml:"command_rate"`
	CommandBurst int     `yaml:"command_burst"`

	// SnapshotTimeout bounds the device state query at startup, in seconds.
	SnapshotTimeout int `yaml:"snapshot_timeout"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig contains MQTT reconnection settings.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
}

// APIConfig contains the ops HTTP server settings.
type APIConfig struct {
	Enabled  bool             `yaml:"enabled"`
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
}

// APITimeoutConfig contains HTTP timeout settings.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// WebSocketConfig contains WebSocket server settings.
type WebSocketConfig struct {
	MaxMessageSize int `yaml:"max_message_size"`
	PingInterval   int `yaml:"ping_interval"`
	PongTimeout    int `yaml:"pong_timeout"`
}

// InfluxDBConfig contains InfluxDB connection settings.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// WatchersConfig configures the rig watchers.
type WatchersConfig struct {
	Battery     BatteryWatchConfig    `yaml:"battery"`
	SensorTemp  SensorTempWatchConfig `yaml:"sensor_temp"`
	UserScripts []UserScriptConfig    `yaml:"user_scripts"`

	// TerminateScriptsOnExit sends SIGTERM to user scripts still running
	// when alpwatch shuts down. By default they are left to finish.
	TerminateScriptsOnExit bool `yaml:"terminate_scripts_on_exit"`
}

// BatteryWatchConfig configures the low battery shutdown.
type BatteryWatchConfig struct {
	Enabled  bool `yaml:"enabled"`
	LowLimit int  `yaml:"battery_low_limit"`
}

// SensorTempWatchConfig configures temperature-triggered recalibration.
type SensorTempWatchConfig struct {
	Enabled     bool    `yaml:"enabled"`
	MaxChange   float64 `yaml:"darks_temp_degrees"`
	Recalibrate bool    `yaml:"darks_temp_recalibrate"`

	// Timeout bounds pause plus calibration, in seconds. 0 means no limit.
	Timeout int `yaml:"timeout"`
}

// UserScriptConfig binds a command line to device events.
type UserScriptConfig struct {
	Name    string   `yaml:"name"`
	Events  []string `yaml:"events"`
	Execute string   `yaml:"execute"`
}

// ScriptName returns the configured name, or the script's index in
// user_scripts when it has none.
func (s UserScriptConfig) ScriptName(index int) string {
	if s.Name != "" {
		return s.Name
	}
	return strconv.Itoa(index)
}

// DispatchConfig configures event delivery to watchers.
type DispatchConfig struct {
	// BacklogWarning is the per-watcher queue depth that logs a warning.
	BacklogWarning int `yaml:"backlog_warning"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: ALPWATCH_SECTION_KEY
// For example: ALPWATCH_DATABASE_PATH, ALPWATCH_MQTT_HOST
//
// Parameters:
//   - path: Path to the YAML configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, fmt.Errorf("applying environment overrides: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Device: DeviceConfig{
			ID:              "seestar",
			Name:            "Seestar",
			CommandTimeout:  10,
			CommandRate:     5,
			CommandBurst:    5,
			SnapshotTimeout: 10,
		},
		Database: DatabaseConfig{
			Path:        "./data/alpwatch.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "alpwatch",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
		},
		API: APIConfig{
			Enabled: true,
			Host:    "127.0.0.1",
			Port:    8090,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
		},
		WebSocket: WebSocketConfig{
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
		InfluxDB: InfluxDBConfig{
			BatchSize:     100,
			FlushInterval: 10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Watchers: WatchersConfig{
			Battery: BatteryWatchConfig{
				Enabled:  true,
				LowLimit: 3,
			},
			SensorTemp: SensorTempWatchConfig{
				Enabled:     true,
				MaxChange:   5,
				Recalibrate: false,
			},
		},
		Dispatch: DispatchConfig{
			BacklogWarning: 64,
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: ALPWATCH_SECTION_KEY
func applyEnvOverrides(cfg *Config) error {
	// Device
	if v := os.Getenv("ALPWATCH_DEVICE_ID"); v != "" {
		cfg.Device.ID = v
	}

	// Database
	if v := os.Getenv("ALPWATCH_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// MQTT
	if v := os.Getenv("ALPWATCH_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("ALPWATCH_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("ALPWATCH_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// API
	if v := os.Getenv("ALPWATCH_API_HOST"); v != "" {
		cfg.API.Host = v
	}

	// InfluxDB
	if v := os.Getenv("ALPWATCH_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	// Watchers
	if v := os.Getenv("ALPWATCH_BATTERY_LOW_LIMIT"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("ALPWATCH_BATTERY_LOW_LIMIT: %w", err)
		}
		cfg.Watchers.Battery.LowLimit = n
	}
	if v := os.Getenv("ALPWATCH_DARKS_TEMP_DEGREES"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("ALPWATCH_DARKS_TEMP_DEGREES: %w", err)
		}
		cfg.Watchers.SensorTemp.MaxChange = f
	}
	if v := os.Getenv("ALPWATCH_DARKS_TEMP_RECALIBRATE"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("ALPWATCH_DARKS_TEMP_RECALIBRATE: %w", err)
		}
		cfg.Watchers.SensorTemp.Recalibrate = b
	}

	return nil
}

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	// Device validation
	if c.Device.ID == "" {
		errs = append(errs, "device.id is required")
	} else if strings.ContainsAny(c.Device.ID, "/+#") {
		errs = append(errs, "device.id must not contain '/', '+' or '#'")
	}
	if c.Device.CommandTimeout < 1 {
		errs = append(errs, "device.command_timeout must be at least 1 second")
	}
	if c.Device.CommandRate <= 0 {
		errs = append(errs, "device.command_rate must be positive")
	}
	if c.Device.CommandBurst < 1 {
		errs = append(errs, "device.command_burst must be at least 1")
	}
	if c.Device.SnapshotTimeout < 1 {
		errs = append(errs, "device.snapshot_timeout must be at least 1 second")
	}

	// Database validation
	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	// MQTT validation
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}

	// API validation
	if c.API.Enabled && (c.API.Port < 1 || c.API.Port > 65535) {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	// InfluxDB validation
	if c.InfluxDB.Enabled && c.InfluxDB.URL == "" {
		errs = append(errs, "influxdb.url is required when influxdb is enabled")
	}

	errs = append(errs, c.Watchers.validate()...)

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

func (w WatchersConfig) validate() []string {
	var errs []string

	if w.Battery.LowLimit < 0 || w.Battery.LowLimit > 100 {
		errs = append(errs, "watchers.battery.battery_low_limit must be between 0 and 100")
	}
	if w.SensorTemp.Enabled && w.SensorTemp.MaxChange <= 0 {
		errs = append(errs, "watchers.sensor_temp.darks_temp_degrees must be positive")
	}
	if w.SensorTemp.Timeout < 0 {
		errs = append(errs, "watchers.sensor_temp.timeout must not be negative")
	}

	seen := make(map[string]int, len(w.UserScripts))
	for i, s := range w.UserScripts {
		name := s.ScriptName(i)
		if strings.ContainsAny(name, "/+#") {
			errs = append(errs, fmt.Sprintf("watchers.user_scripts[%d].name must not contain '/', '+' or '#'", i))
		}
		if prev, dup := seen[name]; dup {
			errs = append(errs, fmt.Sprintf("watchers.user_scripts[%d].name %q duplicates user_scripts[%d]", i, name, prev))
		} else {
			seen[name] = i
		}
		if strings.TrimSpace(s.Execute) == "" {
			errs = append(errs, fmt.Sprintf("watchers.user_scripts[%d].execute is required", i))
		}
		for _, name := range s.Events {
			if _, err := event.ParseKind(name); err != nil {
				errs = append(errs, fmt.Sprintf("watchers.user_scripts[%d].events: unknown event %q", i, name))
			}
		}
	}

	return errs
}

// GetReadTimeout returns the API read timeout as a Duration.
func (c *Config) GetReadTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Read) * time.Second
}

// GetWriteTimeout returns the API write timeout as a Duration.
func (c *Config) GetWriteTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Write) * time.Second
}

// GetIdleTimeout returns the API idle timeout as a Duration.
func (c *Config) GetIdleTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Idle) * time.Second
}

// GetCommandTimeout returns the device command timeout as a Duration.
func (c *Config) GetCommandTimeout() time.Duration {
	return time.Duration(c.Device.CommandTimeout) * time.Second
}

// GetSnapshotTimeout returns the startup snapshot timeout as a Duration.
func (c *Config) GetSnapshotTimeout() time.Duration {
	return time.Duration(c.Device.SnapshotTimeout) * time.Second
}

// GetRecalibrationTimeout returns the sensor temperature step timeout.
func (c *Config) GetRecalibrationTimeout() time.Duration {
	return time.Duration(c.Watchers.SensorTemp.Timeout) * time.Second
}
