package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the whole rig description: identity, storage, sampling
// cadence, the board map, and the optional integrations. Loaded from
// one YAML file with environment overrides on top.
type Config struct {
	Site        SiteConfig        `yaml:"site"`
	Storage     StorageConfig     `yaml:"storage"`
	Acquisition AcquisitionConfig `yaml:"acquisition"`
	Hardware    HardwareConfig    `yaml:"hardware"`
	MQTT        MQTTConfig        `yaml:"mqtt"`
	API         APIConfig         `yaml:"api"`
	WebSocket   WebSocketConfig   `yaml:"websocket"`
	InfluxDB    InfluxDBConfig    `yaml:"influxdb"`
	Logging     LoggingConfig     `yaml:"logging"`
}

// SiteConfig identifies the rig this instance records for.
type SiteConfig struct {
	ID       string `yaml:"id"`
	Name     string `yaml:"name"`
	Timezone string `yaml:"timezone"`
}

// StorageConfig contains settings for the per-session SQLite store.
// Each recording session creates a fresh file in OutputDir; the WAL and
// busy-timeout settings apply to every session file.
type StorageConfig struct {
	OutputDir   string `yaml:"output_dir"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// AcquisitionConfig contains sampling-loop settings.
type AcquisitionConfig struct {
	// IntervalMs is the coordination-loop tick in milliseconds.
	// 20 ms gives the nominal 50 Hz per-sensor cadence.
	IntervalMs int `yaml:"interval_ms"`

	// ReadTimeoutMs bounds a single board read. A read exceeding it counts
	// as a transient failure for that board.
	ReadTimeoutMs int `yaml:"read_timeout_ms"`

	// BufferCapacity is the per-sensor sample buffer size; a full buffer is
	// flushed to the session store as one batch.
	BufferCapacity int `yaml:"buffer_capacity"`

	// FailureThreshold is the number of consecutive failed reads on one
	// board before every sensor on that board is moved to the error state.
	FailureThreshold int `yaml:"failure_threshold"`
}

// HardwareConfig describes the sensor rack.
type HardwareConfig struct {
	// Backend selects the board driver: "i2c" for FT232H/MPR121 hardware
	// via periph.io, "mock" for the synthetic signal generator.
	Backend string `yaml:"backend"`

	Boards []BoardConfig `yaml:"boards"`
}

// BoardConfig describes one interface board and the rack positions wired
// to its odd-numbered electrodes, in electrode order.
type BoardConfig struct {
	ID      string `yaml:"id"`
	Bus     string `yaml:"bus"`
	Address uint16 `yaml:"address"`
	Sensors []int  `yaml:"sensors"`
}

// MQTTConfig is the optional broker link. Disabled by default; the
// rig runs happily API-only.
type MQTTConfig struct {
	Enabled   bool                `yaml:"enabled"`
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`

	// StatusInterval is how often the status snapshot is published,
	// in seconds. Independent of the acquisition cadence.
	StatusInterval int `yaml:"status_interval"`
}

// MQTTBrokerConfig locates the broker, normally Mosquitto on the rig
// Pi itself.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig carries broker credentials. Prefer the environment
// overrides to putting these in the file.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig shapes the backoff after a dropped broker link,
// in seconds. Reconnection retries forever; a rig with no broker is
// still a working rig.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
}

// APIConfig is the HTTP listener the bench UI talks to.
type APIConfig struct {
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	TLS      TLSConfig        `yaml:"tls"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
	CORS     CORSConfig       `yaml:"cors"`
}

// TLSConfig enables HTTPS on the API listener when a cert and key are
// provisioned on the rig.
type TLSConfig struct {
	Enabled  bool   `yaml:"enabled"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// APITimeoutConfig bounds HTTP request handling, in seconds.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// CORSConfig lists the origins the bench UI may be served from. An
// empty origin list admits everything, the right default on a closed
// bench network.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
	AllowedMethods []string `yaml:"allowed_methods"`
	AllowedHeaders []string `yaml:"allowed_headers"`
}

// WebSocketConfig tunes the live stream endpoint. Intervals are in
// seconds.
type WebSocketConfig struct {
	MaxMessageSize int `yaml:"max_message_size"`
	PingInterval   int `yaml:"ping_interval"`
	PongTimeout    int `yaml:"pong_timeout"`
}

// InfluxDBConfig contains settings for the optional live telemetry mirror.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// LoggingConfig selects level, encoding and destination; the logging
// package documents the semantics.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Load reads the YAML file at path and returns a validated Config.
//
// Precedence, lowest to highest: built-in defaults, file values,
// CLIQR_* environment variables. The file must exist even when it
// sets nothing; a rig with no config is a rig someone forgot to
// provision.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

// defaultConfig describes the standard rack: four boards, six rack
// positions per board wired to the odd electrodes, mock backend, all
// integrations off. A bench can run on this with nothing but an
// output directory.
func defaultConfig() *Config {
	return &Config{
		Site: SiteConfig{
			ID:       "rig-001",
			Name:     "CLiQR",
			Timezone: "UTC",
		},
		Storage: StorageConfig{
			OutputDir:   "./data",
			WALMode:     true,
			BusyTimeout: 5,
		},
		Acquisition: AcquisitionConfig{
			IntervalMs:       20,
			ReadTimeoutMs:    100,
			BufferCapacity:   100,
			FailureThreshold: 5,
		},
		Hardware: HardwareConfig{
			Backend: "mock",
			Boards: []BoardConfig{
				{ID: "board0", Bus: "ft232h-0", Address: 0x5A, Sensors: []int{1, 2, 3, 7, 8, 9}},
				{ID: "board1", Bus: "ft232h-1", Address: 0x5A, Sensors: []int{4, 5, 6, 10, 11, 12}},
				{ID: "board2", Bus: "ft232h-2", Address: 0x5A, Sensors: []int{13, 14, 15, 19, 20, 21}},
				{ID: "board3", Bus: "ft232h-3", Address: 0x5A, Sensors: []int{16, 17, 18, 22, 23, 24}},
			},
		},
		MQTT: MQTTConfig{
			Enabled: false,
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "cliqr-core",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
			StatusInterval: 2,
		},
		API: APIConfig{
			Host: "127.0.0.1",
			Port: 8080,
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
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// applyEnvOverrides lays CLIQR_* environment variables over the
// loaded file. Only the fields that differ between deployments, and
// the secrets, get an override; everything else belongs in the file.
func applyEnvOverrides(cfg *Config) {
	overrides := map[string]*string{
		"CLIQR_STORAGE_OUTPUT_DIR": &cfg.Storage.OutputDir,
		"CLIQR_HARDWARE_BACKEND":   &cfg.Hardware.Backend,
		"CLIQR_MQTT_HOST":          &cfg.MQTT.Broker.Host,
		"CLIQR_MQTT_USERNAME":      &cfg.MQTT.Auth.Username,
		"CLIQR_MQTT_PASSWORD":      &cfg.MQTT.Auth.Password,
		"CLIQR_API_HOST":           &cfg.API.Host,
		"CLIQR_INFLUXDB_TOKEN":     &cfg.InfluxDB.Token,
	}
	for name, field := range overrides {
		if v := os.Getenv(name); v != "" {
			*field = v
		}
	}
}

// Validate checks the whole configuration and reports every problem
// at once, so a broken file can be fixed in one pass instead of one
// restart per mistake.
func (c *Config) Validate() error {
	var errs []string

	if c.Site.ID == "" {
		errs = append(errs, "site.id is required")
	}
	if c.Storage.OutputDir == "" {
		errs = append(errs, "storage.output_dir is required")
	}

	if c.Acquisition.IntervalMs < 1 {
		errs = append(errs, "acquisition.interval_ms must be at least 1")
	}
	if c.Acquisition.ReadTimeoutMs < 1 {
		errs = append(errs, "acquisition.read_timeout_ms must be at least 1")
	}
	if c.Acquisition.BufferCapacity < 1 {
		errs = append(errs, "acquisition.buffer_capacity must be at least 1")
	}
	if c.Acquisition.FailureThreshold < 1 {
		errs = append(errs, "acquisition.failure_threshold must be at least 1")
	}

	errs = append(errs, c.validateHardware()...)

	// Integration sections are only checked when enabled; a disabled
	// section may be arbitrarily incomplete.
	if c.MQTT.Enabled {
		if c.MQTT.Broker.Host == "" {
			errs = append(errs, "mqtt.broker.host is required when mqtt is enabled")
		}
		if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
			errs = append(errs, "mqtt.qos must be 0, 1, or 2")
		}
		if c.MQTT.StatusInterval < 1 {
			errs = append(errs, "mqtt.status_interval must be at least 1")
		}
	}

	if c.API.Port < 1 || c.API.Port > 65535 {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	if c.InfluxDB.Enabled {
		if c.InfluxDB.URL == "" {
			errs = append(errs, "influxdb.url is required when influxdb is enabled")
		}
		if c.InfluxDB.Org == "" {
			errs = append(errs, "influxdb.org is required when influxdb is enabled")
		}
		if c.InfluxDB.Bucket == "" {
			errs = append(errs, "influxdb.bucket is required when influxdb is enabled")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// I2C address bounds for 7-bit addressing; the MPR121 family sits at 0x5A-0x5D.
const (
	minI2CAddress = 0x08
	maxI2CAddress = 0x77
)

// maxSensorsPerBoard is the number of electrode channels wired out on each
// board.
const maxSensorsPerBoard = 6

// validateHardware checks the rack description: backend choice, board
// identity, and the global uniqueness of sensor IDs.
func (c *Config) validateHardware() []string {
	var errs []string

	switch c.Hardware.Backend {
	case "i2c", "mock":
	default:
		errs = append(errs, fmt.Sprintf("hardware.backend must be \"i2c\" or \"mock\", got %q", c.Hardware.Backend))
	}

	if len(c.Hardware.Boards) == 0 {
		errs = append(errs, "hardware.boards must list at least one board")
		return errs
	}

	seenBoards := make(map[string]bool)
	seenSensors := make(map[int]string)
	for i, b := range c.Hardware.Boards {
		if b.ID == "" {
			errs = append(errs, fmt.Sprintf("hardware.boards[%d].id is required", i))
			continue
		}
		if seenBoards[b.ID] {
			errs = append(errs, fmt.Sprintf("hardware.boards[%d].id %q is duplicated", i, b.ID))
		}
		seenBoards[b.ID] = true

		if c.Hardware.Backend == "i2c" {
			if b.Bus == "" {
				errs = append(errs, fmt.Sprintf("hardware.boards[%d].bus is required for the i2c backend", i))
			}
			if b.Address < minI2CAddress || b.Address > maxI2CAddress {
				errs = append(errs, fmt.Sprintf("hardware.boards[%d].address 0x%02X is outside the 7-bit range", i, b.Address))
			}
		}

		if len(b.Sensors) == 0 {
			errs = append(errs, fmt.Sprintf("hardware.boards[%d].sensors must list at least one sensor", i))
		}
		if len(b.Sensors) > maxSensorsPerBoard {
			errs = append(errs, fmt.Sprintf("hardware.boards[%d] lists %d sensors, but boards expose %d electrode channels", i, len(b.Sensors), maxSensorsPerBoard))
		}
		for _, id := range b.Sensors {
			if id < 1 {
				errs = append(errs, fmt.Sprintf("hardware.boards[%d] sensor id %d must be positive", i, id))
				continue
			}
			if owner, dup := seenSensors[id]; dup {
				errs = append(errs, fmt.Sprintf("sensor id %d appears on both %q and %q", id, owner, b.ID))
				continue
			}
			seenSensors[id] = b.ID
		}
	}

	return errs
}

// GetAcquisitionInterval returns the coordination-loop tick as a Duration.
func (c *Config) GetAcquisitionInterval() time.Duration {
	return time.Duration(c.Acquisition.IntervalMs) * time.Millisecond
}

// GetReadTimeout returns the per-board read timeout as a Duration.
func (c *Config) GetReadTimeout() time.Duration {
	return time.Duration(c.Acquisition.ReadTimeoutMs) * time.Millisecond
}

// GetStatusInterval returns the MQTT status publish interval as a Duration.
func (c *Config) GetStatusInterval() time.Duration {
	return time.Duration(c.MQTT.StatusInterval) * time.Second
}

// GetAPIReadTimeout returns the API read timeout as a Duration.
func (c *Config) GetAPIReadTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Read) * time.Second
}

// GetAPIWriteTimeout returns the API write timeout as a Duration.
func (c *Config) GetAPIWriteTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Write) * time.Second
}

// GetAPIIdleTimeout returns the API idle timeout as a Duration.
func (c *Config) GetAPIIdleTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Idle) * time.Second
}
