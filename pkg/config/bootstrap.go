package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// BootstrapFileName is the configuration file looked up in the config directory.
const BootstrapFileName = "joypad_config.yaml"

// BootstrapConfig holds the configuration loaded from joypad_config.yaml
type BootstrapConfig struct {
	Logging    LoggingConfig    `yaml:"logging"`
	Server     ServerConfig     `yaml:"server"`
	Robot      RobotConfig      `yaml:"robot"`
	Joystick   JoystickConfig   `yaml:"joystick"`
	Processing ProcessingConfig `yaml:"processing"`
	ZeroMQ     ZeroMQConfig     `yaml:"zeromq"`
	Data       DataConfig       `yaml:"data"`
}

// LoggingConfig holds logging settings
type LoggingConfig struct {
	Level   string `yaml:"level"`
	LogPath string `yaml:"log_path,omitempty"`
}

// ServerConfig holds the console's HTTP server settings
type ServerConfig struct {
	HTTPPort          int `yaml:"http_port"`
	ShutdownTimeoutMs int `yaml:"shutdown_timeout_ms"`
}

// RobotConfig describes the remote device endpoint receiving commands
type RobotConfig struct {
	BaseURL          string `yaml:"base_url"`
	ControlPath      string `yaml:"control_path"`
	StopPath         string `yaml:"stop_path"`
	RequestTimeoutMs int    `yaml:"request_timeout_ms"`
}

// JoystickConfig holds the signal mapping and send loop parameters
type JoystickConfig struct {
	MaxSpeed          int     `yaml:"max_speed"`
	MaxTurn           int     `yaml:"max_turn"`
	MaxDistance       float64 `yaml:"max_distance"`
	ControlIntervalMs int     `yaml:"control_interval_ms"`
	StatusRevertMs    int     `yaml:"status_revert_ms"`
}

// ProcessingConfig sizes the pool that carries outbound requests
type ProcessingConfig struct {
	TransmitWorkers int `yaml:"transmit_workers"`
	QueueSize       int `yaml:"queue_size"`
}

// ZeroMQConfig holds telemetry publishing settings. Publishing is off when
// PublishBindAddress is empty.
type ZeroMQConfig struct {
	PublishBindAddress string `yaml:"publish_bind_address,omitempty"`
}

// DataConfig points at where runtime joystick settings are persisted.
// Empty Directory keeps them in memory only.
type DataConfig struct {
	Directory        string `yaml:"directory,omitempty"`
	SettingsFilename string `yaml:"settings_file,omitempty"`
}

// Defaults used for any zero-valued field after loading.
const (
	DefaultHTTPPort          = 8080
	DefaultShutdownTimeoutMs = 5000
	DefaultControlPath       = "/control"
	DefaultStopPath          = "/stop"
	DefaultRequestTimeoutMs  = 1000
	DefaultMaxSpeed          = 30
	DefaultMaxTurn           = 30
	DefaultMaxDistance       = 100.0
	DefaultControlIntervalMs = 100
	DefaultStatusRevertMs    = 3000
	DefaultTransmitWorkers   = 1
	DefaultQueueSize         = 16
	DefaultSettingsFilename  = "joystick_settings.yaml"
)

// LoadBootstrapConfig loads the configuration from configDir/joypad_config.yaml
func LoadBootstrapConfig(configDir string) (*BootstrapConfig, error) {
	bootstrapConfigPath := filepath.Join(configDir, BootstrapFileName)

	data, err := os.ReadFile(bootstrapConfigPath)
	if err != nil {
		return nil, fmt.Errorf("error reading bootstrap config file '%s': %w", bootstrapConfigPath, err)
	}

	cfg, err := ParseBootstrapConfig(data)
	if err != nil {
		return nil, fmt.Errorf("error loading bootstrap config file '%s': %w", bootstrapConfigPath, err)
	}
	return cfg, nil
}

// ParseBootstrapConfig parses, defaults and validates raw YAML.
func ParseBootstrapConfig(data []byte) (*BootstrapConfig, error) {
	var cfg BootstrapConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("error parsing bootstrap config: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *BootstrapConfig) applyDefaults() {
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Server.HTTPPort == 0 {
		c.Server.HTTPPort = DefaultHTTPPort
	}
	if c.Server.ShutdownTimeoutMs == 0 {
		c.Server.ShutdownTimeoutMs = DefaultShutdownTimeoutMs
	}
	if c.Robot.ControlPath == "" {
		c.Robot.ControlPath = DefaultControlPath
	}
	if c.Robot.StopPath == "" {
		c.Robot.StopPath = DefaultStopPath
	}
	if c.Robot.RequestTimeoutMs == 0 {
		c.Robot.RequestTimeoutMs = DefaultRequestTimeoutMs
	}
	c.Robot.BaseURL = strings.TrimRight(c.Robot.BaseURL, "/")

	if c.Joystick.MaxSpeed == 0 {
		c.Joystick.MaxSpeed = DefaultMaxSpeed
	}
	if c.Joystick.MaxTurn == 0 {
		c.Joystick.MaxTurn = DefaultMaxTurn
	}
	if c.Joystick.MaxDistance == 0 {
		c.Joystick.MaxDistance = DefaultMaxDistance
	}
	if c.Joystick.ControlIntervalMs == 0 {
		c.Joystick.ControlIntervalMs = DefaultControlIntervalMs
	}
	if c.Joystick.StatusRevertMs == 0 {
		c.Joystick.StatusRevertMs = DefaultStatusRevertMs
	}

	if c.Processing.TransmitWorkers == 0 {
		c.Processing.TransmitWorkers = DefaultTransmitWorkers
	}
	if c.Processing.QueueSize == 0 {
		c.Processing.QueueSize = DefaultQueueSize
	}

	if c.Data.Directory != "" && c.Data.SettingsFilename == "" {
		c.Data.SettingsFilename = DefaultSettingsFilename
	}
}

// Validate reports the first missing or out-of-range field.
func (c *BootstrapConfig) Validate() error {
	if c.Robot.BaseURL == "" {
		return fmt.Errorf("missing required field in bootstrap config: robot.base_url")
	}
	if !strings.HasPrefix(c.Robot.BaseURL, "http://") && !strings.HasPrefix(c.Robot.BaseURL, "https://") {
		return fmt.Errorf("invalid robot.base_url '%s': expected an http:// or https:// URL", c.Robot.BaseURL)
	}
	if c.Joystick.MaxSpeed < 1 || c.Joystick.MaxSpeed > MaxSpeedLimit {
		return fmt.Errorf("invalid joystick.max_speed %d: expected 1..%d", c.Joystick.MaxSpeed, MaxSpeedLimit)
	}
	if c.Joystick.MaxTurn < 1 || c.Joystick.MaxTurn > MaxSpeedLimit {
		return fmt.Errorf("invalid joystick.max_turn %d: expected 1..%d", c.Joystick.MaxTurn, MaxSpeedLimit)
	}
	if c.Joystick.MaxDistance <= 0 {
		return fmt.Errorf("invalid joystick.max_distance %v: must be positive", c.Joystick.MaxDistance)
	}
	if c.Joystick.ControlIntervalMs < 0 || c.Joystick.StatusRevertMs < 0 || c.Robot.RequestTimeoutMs < 0 {
		return fmt.Errorf("durations in bootstrap config must be positive")
	}
	if c.Processing.TransmitWorkers < 1 || c.Processing.QueueSize < 1 {
		return fmt.Errorf("processing.transmit_workers and processing.queue_size must be positive")
	}
	return nil
}

// ControlInterval is the send loop period.
func (c JoystickConfig) ControlInterval() time.Duration {
	return time.Duration(c.ControlIntervalMs) * time.Millisecond
}

// StatusRevertDelay is how long the emergency status stays up.
func (c JoystickConfig) StatusRevertDelay() time.Duration {
	return time.Duration(c.StatusRevertMs) * time.Millisecond
}

// RequestTimeout bounds each outbound request.
func (c RobotConfig) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutMs) * time.Millisecond
}

// ShutdownTimeout bounds graceful shutdown of the HTTP server.
func (c ServerConfig) ShutdownTimeout() time.Duration {
	return time.Duration(c.ShutdownTimeoutMs) * time.Millisecond
}

// SettingsPath returns the runtime settings file, or "" when persistence is off.
func (c DataConfig) SettingsPath() string {
	if c.Directory == "" {
		return ""
	}
	return filepath.Join(c.Directory, c.SettingsFilename)
}
