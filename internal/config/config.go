package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// DefaultConfigPath is the path to the canonical defaults file.
const DefaultConfigPath = "config/minihead.defaults.json"

// Config is the root configuration for the minihead server. Every field is
// optional: the Get* methods supply the default for anything left unset, so
// partial files are safe.
type Config struct {
	// Mechanism
	Geometry     *string  `json:"geometry,omitempty"`      // embedded geometry name, e.g. "mini6"
	GeometryFile *string  `json:"geometry_file,omitempty"` // overrides Geometry when set
	MotorIDs     []int    `json:"motor_ids,omitempty"`     // bus ids in branch order
	ArmLength    *float64 `json:"arm_length,omitempty"`    // metres
	RodLength    *float64 `json:"rod_length,omitempty"`    // metres
	FKIterations *int     `json:"fk_iterations,omitempty"`
	FKTolerance  *float64 `json:"fk_tolerance,omitempty"`

	// Link
	SocketURL         *string `json:"socket_url,omitempty"`
	SerialPort        *string `json:"serial_port,omitempty"` // empty: enumerate USB adapters
	BaudRate          *int    `json:"baud_rate,omitempty"`
	DialTimeout       *string `json:"dial_timeout,omitempty"`        // duration string like "2s"
	SocketReadTimeout *string `json:"socket_read_timeout,omitempty"` // duration string like "50ms"
	SerialReadTimeout *string `json:"serial_read_timeout,omitempty"` // duration string like "20ms"

	// Motion
	Cadence           *string `json:"cadence,omitempty"`         // duration string like "10ms"
	ReadWait          *string `json:"read_wait,omitempty"`       // duration string like "10ms"
	ReplayInterval    *string `json:"replay_interval,omitempty"` // duration string like "20ms"
	MaxRecordDuration *string `json:"max_record_duration,omitempty"`

	// Server
	Listen *string `json:"listen,omitempty"`
	DBPath *string `json:"db_path,omitempty"`
}

// Helper functions to create pointers
func ptrFloat64(v float64) *float64 { return &v }
func ptrString(v string) *string    { return &v }
func ptrInt(v int) *int             { return &v }

// EmptyConfig returns a Config with every field unset.
func EmptyConfig() *Config {
	return &Config{}
}

// LoadConfig loads a Config from a JSON file.
// The file is validated to ensure it has a .json extension and is under the max file size.
func LoadConfig(path string) (*Config, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	// Check file size for safety (max 1MB)
	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// MustLoadDefaultConfig loads the canonical defaults from DefaultConfigPath.
// It searches for the file in the current directory and common parent directories.
// Panics if the file cannot be loaded, intended for test setup.
func MustLoadDefaultConfig() *Config {
	candidates := []string{
		DefaultConfigPath,
		"../../" + DefaultConfigPath,    // from internal/config/
		"../../../" + DefaultConfigPath, // from cmd/tools/<tool>/
	}
	for _, path := range candidates {
		if cfg, err := LoadConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate checks that the configuration values are valid.
func (c *Config) Validate() error {
	durations := map[string]*string{
		"dial_timeout":        c.DialTimeout,
		"socket_read_timeout": c.SocketReadTimeout,
		"serial_read_timeout": c.SerialReadTimeout,
		"cadence":             c.Cadence,
		"read_wait":           c.ReadWait,
		"replay_interval":     c.ReplayInterval,
		"max_record_duration": c.MaxRecordDuration,
	}
	for name, v := range durations {
		if v == nil || *v == "" {
			continue
		}
		d, err := time.ParseDuration(*v)
		if err != nil {
			return fmt.Errorf("invalid %s '%s': %w", name, *v, err)
		}
		if d < 0 {
			return fmt.Errorf("%s must be non-negative, got %s", name, *v)
		}
	}
	if c.Cadence != nil && c.GetCadence() <= 0 {
		return fmt.Errorf("cadence must be positive, got %q", *c.Cadence)
	}

	for i, id := range c.MotorIDs {
		if id < 0 || id > 252 {
			return fmt.Errorf("motor_ids[%d] = %d: must be between 0 and 252", i, id)
		}
	}
	if c.ArmLength != nil && *c.ArmLength <= 0 {
		return fmt.Errorf("arm_length must be positive, got %f", *c.ArmLength)
	}
	if c.RodLength != nil && *c.RodLength <= 0 {
		return fmt.Errorf("rod_length must be positive, got %f", *c.RodLength)
	}
	if c.FKIterations != nil && *c.FKIterations < 1 {
		return fmt.Errorf("fk_iterations must be at least 1, got %d", *c.FKIterations)
	}
	if c.BaudRate != nil && *c.BaudRate < 0 {
		return fmt.Errorf("baud_rate must be non-negative, got %d", *c.BaudRate)
	}
	return nil
}

func parseDuration(v *string, def time.Duration) time.Duration {
	if v == nil || *v == "" {
		return def
	}
	d, err := time.ParseDuration(*v)
	if err != nil {
		return def // default on parse error
	}
	return d
}

// GetGeometry returns the embedded geometry name or the default.
func (c *Config) GetGeometry() string {
	if c.Geometry == nil || *c.Geometry == "" {
		return "mini6"
	}
	return *c.Geometry
}

// GetGeometryFile returns the external geometry path, empty when unset.
func (c *Config) GetGeometryFile() string {
	if c.GeometryFile == nil {
		return ""
	}
	return *c.GeometryFile
}

// GetMotorIDs returns the configured bus ids, or nil to number motors 1..n.
func (c *Config) GetMotorIDs() []uint8 {
	if len(c.MotorIDs) == 0 {
		return nil
	}
	ids := make([]uint8, len(c.MotorIDs))
	for i, id := range c.MotorIDs {
		ids[i] = uint8(id)
	}
	return ids
}

// GetArmLength returns the arm_length value or the default.
func (c *Config) GetArmLength() float64 {
	if c.ArmLength == nil {
		return 0.038
	}
	return *c.ArmLength
}

// GetRodLength returns the rod_length value or the default.
func (c *Config) GetRodLength() float64 {
	if c.RodLength == nil {
		return 0.09
	}
	return *c.RodLength
}

// GetFKIterations returns the fk_iterations value or the default.
func (c *Config) GetFKIterations() int {
	if c.FKIterations == nil {
		return 100
	}
	return *c.FKIterations
}

// GetFKTolerance returns the fk_tolerance value or the default.
func (c *Config) GetFKTolerance() float64 {
	if c.FKTolerance == nil {
		return 1e-9
	}
	return *c.FKTolerance
}

// GetSocketURL returns the bridge URL, empty to go straight to serial.
func (c *Config) GetSocketURL() string {
	if c.SocketURL == nil {
		return ""
	}
	return *c.SocketURL
}

// GetSerialPort returns the serial device path, empty to enumerate.
func (c *Config) GetSerialPort() string {
	if c.SerialPort == nil {
		return ""
	}
	return *c.SerialPort
}

// GetBaudRate returns the baud_rate value or the default.
func (c *Config) GetBaudRate() int {
	if c.BaudRate == nil || *c.BaudRate == 0 {
		return 1_000_000
	}
	return *c.BaudRate
}

// GetDialTimeout returns the bridge dial timeout.
func (c *Config) GetDialTimeout() time.Duration {
	return parseDuration(c.DialTimeout, 2*time.Second)
}

// GetSocketReadTimeout returns how long a socket read waits for a message.
func (c *Config) GetSocketReadTimeout() time.Duration {
	return parseDuration(c.SocketReadTimeout, 50*time.Millisecond)
}

// GetSerialReadTimeout returns the serial port read timeout.
func (c *Config) GetSerialReadTimeout() time.Duration {
	return parseDuration(c.SerialReadTimeout, 20*time.Millisecond)
}

// GetCadence returns the record sample period.
func (c *Config) GetCadence() time.Duration {
	return parseDuration(c.Cadence, 10*time.Millisecond)
}

// GetReadWait returns the request-to-read pause.
func (c *Config) GetReadWait() time.Duration {
	return parseDuration(c.ReadWait, 10*time.Millisecond)
}

// GetReplayInterval returns the pause between replayed frames.
func (c *Config) GetReplayInterval() time.Duration {
	return parseDuration(c.ReplayInterval, 20*time.Millisecond)
}

// GetMaxRecordDuration returns the longest recording the API accepts.
func (c *Config) GetMaxRecordDuration() time.Duration {
	return parseDuration(c.MaxRecordDuration, 5*time.Minute)
}

// GetListen returns the HTTP listen address.
func (c *Config) GetListen() string {
	if c.Listen == nil || *c.Listen == "" {
		return ":8090"
	}
	return *c.Listen
}

// GetDBPath returns the recording store path.
func (c *Config) GetDBPath() string {
	if c.DBPath == nil || *c.DBPath == "" {
		return "minihead.db"
	}
	return *c.DBPath
}
