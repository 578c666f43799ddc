// Package config loads the daemon's YAML configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/skytrace/copilot/internal/copilot"
	"gopkg.in/yaml.v3"
)

// EnvPath names the environment variable that overrides the config path.
const EnvPath = "COPILOT_CONFIG"

// DefaultPath is used when neither a flag nor EnvPath names a file.
const DefaultPath = "/etc/copilot/copilot.yaml"

// Config represents the daemon configuration.
type Config struct {
	Schedule ScheduleConfig `yaml:"schedule"`
	Store    StoreConfig    `yaml:"store"`
	GPS      GPSConfig      `yaml:"gps"`
	Radio    RadioConfig    `yaml:"radio"`
	Power    PowerConfig    `yaml:"power"`
	MQTT     MQTTConfig     `yaml:"mqtt"`
	RPC      RPCConfig      `yaml:"rpc"`
	History  HistoryConfig  `yaml:"history"`
	Log      LogConfig      `yaml:"log"`
}

// ScheduleConfig controls window timing.
type ScheduleConfig struct {
	StartMinute     int           `yaml:"start_minute"`
	ScriptAllowance time.Duration `yaml:"script_allowance"`
	Warmup          time.Duration `yaml:"warmup"`
	SlotSpacing     time.Duration `yaml:"slot_spacing"`
	FinalSlotCutoff time.Duration `yaml:"final_slot_cutoff"`
	Compressed      bool          `yaml:"compressed"`
	Slots           []SlotConfig  `yaml:"slots"`
}

// SlotConfig is a slot's fallback when its script does not supply a message.
type SlotConfig struct {
	Default string `yaml:"default"` // "none" or "default"
	Send    string `yaml:"send"`    // "none", "regular" or "basic"
}

// StoreConfig locates slot files.
type StoreConfig struct {
	Dir           string        `yaml:"dir"`
	ScriptTimeout time.Duration `yaml:"script_timeout"`
}

// GPSConfig selects the GPS receiver.
type GPSConfig struct {
	Port     string `yaml:"port"`
	Baud     int    `yaml:"baud"`
	Simulate bool   `yaml:"simulate"`
	// SimulateDelay is how long the simulated receiver takes to lock.
	SimulateDelay time.Duration `yaml:"simulate_delay"`
}

// RadioConfig locates the transmitter enable line.
type RadioConfig struct {
	Enabled bool   `yaml:"enabled"`
	Chip    string `yaml:"chip"`
	Line    int    `yaml:"line"`
}

// PowerConfig locates the cpufreq governor.
type PowerConfig struct {
	Enabled      bool   `yaml:"enabled"`
	GovernorPath string `yaml:"governor_path"`
}

// MQTTConfig is the telemetry uplink.
type MQTTConfig struct {
	Broker   string `yaml:"broker"` // empty disables the uplink
	ClientID string `yaml:"client_id"`
	Topic    string `yaml:"topic"`
}

// RPCConfig is the command surface.
type RPCConfig struct {
	Listen string `yaml:"listen"` // host:port or unix:/path/to.sock
	Secret string `yaml:"secret"` // empty disables RPC
}

// HistoryConfig locates the window history database.
type HistoryConfig struct {
	Path string `yaml:"path"` // empty disables history
}

// LogConfig controls logging.
type LogConfig struct {
	Level   string `yaml:"level"`
	Console bool   `yaml:"console"`
	// File, if set, receives a JSON copy of the daemon's log.
	File string `yaml:"file"`
}

// Default returns a configuration for a bench run: simulated GPS, no radio
// line, no uplink.
func Default() *Config {
	d := copilot.DefaultConfig()
	slots := make([]SlotConfig, copilot.NumSlots)
	for i, s := range d.Slots {
		slots[i] = SlotConfig{Default: s.Disposition.String(), Send: string(s.Send)}
	}
	return &Config{
		Schedule: ScheduleConfig{
			StartMinute:     d.StartMinute,
			ScriptAllowance: d.ScriptAllowance,
			Warmup:          d.Warmup,
			SlotSpacing:     d.SlotSpacing,
			FinalSlotCutoff: d.FinalSlotCutoff,
			Slots:           slots,
		},
		Store: StoreConfig{
			Dir:           "/var/lib/copilot/slots",
			ScriptTimeout: 2 * time.Second,
		},
		GPS: GPSConfig{
			Port:          "/dev/ttyS0",
			Baud:          9600,
			Simulate:      true,
			SimulateDelay: 5 * time.Second,
		},
		Radio: RadioConfig{Chip: "gpiochip0", Line: 17},
		MQTT: MQTTConfig{
			ClientID: "copilot",
			Topic:    "copilot/telemetry",
		},
		RPC: RPCConfig{Listen: "127.0.0.1:9200"},
		Log: LogConfig{Level: "info", Console: true},
	}
}

// Path resolves the config file: the flag value, then EnvPath, then
// DefaultPath.
func Path(flag string) string {
	if flag != "" {
		return flag
	}
	if env := os.Getenv(EnvPath); env != "" {
		return env
	}
	return DefaultPath
}

// Load loads configuration from a YAML file over the defaults. A missing
// file yields the defaults.
func Load(filename string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(filename)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	if _, err := cfg.Copilot(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", filename, err)
	}
	return cfg, nil
}

// Save writes the configuration as YAML.
func (c *Config) Save(filename string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(filename, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// Copilot converts the schedule section to a validated copilot.Config.
func (c *Config) Copilot() (copilot.Config, error) {
	s := c.Schedule
	out := copilot.Config{
		StartMinute:     s.StartMinute,
		ScriptAllowance: s.ScriptAllowance,
		Warmup:          s.Warmup,
		SlotSpacing:     s.SlotSpacing,
		FinalSlotCutoff: s.FinalSlotCutoff,
		Compressed:      s.Compressed,
	}
	if len(s.Slots) > copilot.NumSlots {
		return out, fmt.Errorf("%d slots configured, at most %d", len(s.Slots), copilot.NumSlots)
	}
	for i := range out.Slots {
		out.Slots[i] = copilot.SlotDefault{Disposition: copilot.DispositionNone, Send: copilot.SendNone}
	}
	for i, sc := range s.Slots {
		d, err := copilot.ParseDisposition(sc.Default)
		if err != nil {
			return out, fmt.Errorf("slot%d: %w", i+1, err)
		}
		send := copilot.SendKind(sc.Send)
		if send == "" {
			send = copilot.SendNone
		}
		out.Slots[i] = copilot.SlotDefault{Disposition: d, Send: send}
	}
	return out, out.Validate()
}
