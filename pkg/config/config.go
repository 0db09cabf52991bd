// Package config loads the configuration of the decoder daemon.
package config

import (
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/robotalks/spc.go/pkg/serialport"
	"github.com/robotalks/spc.go/pkg/spc/receiver"
)

// Config is the daemon configuration.
type Config struct {
	// Station identifies this host in published topics.
	Station string `yaml:"station"`
	// MQTTBrokerURL specifies the MQTT broker to publish readings,
	// e.g. mqtt://host:port/topic-prefix
	MQTTBrokerURL string `yaml:"mqtt"`
	// ListenAddr serves live readings over websocket at /readings.
	ListenAddr string `yaml:"listen"`
	// Database is the path of the SQLite reading log.
	Database string `yaml:"database"`
	// Capture is the path of a reading stream capture file.
	Capture string `yaml:"capture"`

	Gauges []GaugeConfig `yaml:"gauges"`
}

// GaugeConfig describes one gauge behind a serial bit bridge.
type GaugeConfig struct {
	Name           string            `yaml:"name"`
	Description    string            `yaml:"description"`
	Port           string            `yaml:"port"`
	Baud           int               `yaml:"baud"`
	StrictBCD      bool              `yaml:"strict_bcd"`
	FrameTimeoutMs *int              `yaml:"frame_timeout_ms"`
	ReadTimeoutMs  int               `yaml:"read_timeout_ms"`
	Labels         map[string]string `yaml:"labels"`
}

// FrameTimeout returns the partial frame timeout, 0 disables it.
func (g GaugeConfig) FrameTimeout() time.Duration {
	if g.FrameTimeoutMs == nil {
		return receiver.DefaultFrameTimeout
	}
	return time.Duration(*g.FrameTimeoutMs) * time.Millisecond
}

// ReadTimeout returns the serial read timeout.
func (g GaugeConfig) ReadTimeout() time.Duration {
	return time.Duration(g.ReadTimeoutMs) * time.Millisecond
}

var (
	configPath    string
	defaultConfig Config
)

func init() {
	if val := os.Getenv("SPC_CONFIG"); val != "" {
		configPath = val
	}
	if val := os.Getenv("SPC_MQTT_URL"); val != "" {
		defaultConfig.MQTTBrokerURL = val
	}
	if val := os.Getenv("SPC_STATION"); val != "" {
		defaultConfig.Station = val
	}
}

// SetupFlags sets command line flags.
func SetupFlags() {
	flag.StringVar(&configPath, "config", configPath, "Config file (YAML).")
	flag.StringVar(&defaultConfig.MQTTBrokerURL, "mqtt", defaultConfig.MQTTBrokerURL, "MQTT broker URL if not in config file.")
	flag.StringVar(&defaultConfig.Station, "station", defaultConfig.Station, "Station ID if not in config file, machine ID if empty.")
}

// NewConfig creates a Config with default configurations.
func NewConfig() *Config {
	conf := defaultConfig
	return &conf
}

// Load reads the YAML file at path over the defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Parse parses YAML over the defaults from flags and environment,
// values in the file win.
func Parse(data []byte) (*Config, error) {
	conf := NewConfig()
	if err := yaml.Unmarshal(data, conf); err != nil {
		return nil, fmt.Errorf("parse config: %v", err)
	}
	conf.applyDefaults()
	return conf, nil
}

func (c *Config) applyDefaults() {
	if c.Station == "" {
		c.Station = MachineID()
	}
	for i := range c.Gauges {
		if c.Gauges[i].Baud == 0 {
			c.Gauges[i].Baud = serialport.DefaultBaudRate
		}
	}
}

// Validate checks configuration correctness.
func (c *Config) Validate() error {
	if len(c.Gauges) == 0 {
		return fmt.Errorf("at least one gauge is required")
	}
	names := make(map[string]bool)
	for n, g := range c.Gauges {
		if g.Name == "" {
			return fmt.Errorf("gauge[%d]: name is required", n)
		}
		if names[g.Name] {
			return fmt.Errorf("gauge %q: duplicated name", g.Name)
		}
		names[g.Name] = true
		if g.Port == "" {
			return fmt.Errorf("gauge %q: port is required", g.Name)
		}
		if g.Baud < 0 {
			return fmt.Errorf("gauge %q: invalid baud %d", g.Name, g.Baud)
		}
		if g.FrameTimeoutMs != nil && *g.FrameTimeoutMs < 0 {
			return fmt.Errorf("gauge %q: frame_timeout_ms must not be negative", g.Name)
		}
		if g.ReadTimeoutMs < 0 {
			return fmt.Errorf("gauge %q: read_timeout_ms must not be negative", g.Name)
		}
	}
	return nil
}

// LoadConfig loads the file given by -config or SPC_CONFIG.
func LoadConfig() (*Config, error) {
	if configPath == "" {
		return nil, fmt.Errorf("config file must be specified with -config or SPC_CONFIG")
	}
	conf, err := Load(configPath)
	if err != nil {
		return nil, err
	}
	if err = conf.Validate(); err != nil {
		return nil, err
	}
	return conf, nil
}

// MustLoad loads the config and fails on error.
func MustLoad() *Config {
	conf, err := LoadConfig()
	if err != nil {
		log.Fatalln(err)
	}
	return conf
}
