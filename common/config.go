package common

import (
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Url  string `yaml:"url"`
	Name string `yaml:"name"`
	Id   string `yaml:"id"`

	Group    GroupConfig    `yaml:"group"`
	Balancer BalancerConfig `yaml:"balancer"`
	Device   DeviceConfig   `yaml:"device"`
	History  HistoryConfig  `yaml:"history"`
}

type GroupConfig struct {
	Enabled              bool          `yaml:"enabled"`
	Bootstrap            bool          `yaml:"bootstrap"`
	HeartbeatPeriode     time.Duration `yaml:"heartbeatPeriode"`
	HeartbeatTimeoutBase time.Duration `yaml:"heartbeatTimeoutBase"`
	AnnouncePeriode      time.Duration `yaml:"announcePeriode"`
}

type BalancerConfig struct {
	RoundInterval    time.Duration `yaml:"roundInterval"`
	MigrationStep    float64       `yaml:"migrationStep"`
	HysteresisMargin float64       `yaml:"hysteresisMargin"`
	InitialPeers     []string      `yaml:"initialPeers"`
}

type DeviceConfig struct {
	Backend           string   `yaml:"backend"`
	SerialPort        string   `yaml:"serialPort"`
	SerialBaud        int      `yaml:"serialBaud"`
	InitialGateway    float64  `yaml:"initialGateway"`
	InitialGeneration float64  `yaml:"initialGeneration"`
	Drift             float64  `yaml:"drift"`
	Breakers          []string `yaml:"breakers"`
}

type HistoryConfig struct {
	MaxEntries int `yaml:"maxEntries"`
}

func NewConfig() *Config {
	return &Config{
		Url:  "",
		Name: "node",
		Id:   uuid.NewString(),
		Group: GroupConfig{
			Enabled:              false,
			Bootstrap:            false,
			HeartbeatPeriode:     1000 * time.Millisecond,
			HeartbeatTimeoutBase: 1200 * time.Millisecond,
			AnnouncePeriode:      2000 * time.Millisecond,
		},
		Balancer: BalancerConfig{
			RoundInterval:    2000 * time.Millisecond,
			// the margin must stay wider than a single migration step so one
			// exchange cannot flip a node from supply straight into demand
			MigrationStep:    2,
			HysteresisMargin: 5,
			InitialPeers:     make([]string, 0),
		},
		Device: DeviceConfig{
			Backend:           "sim",
			SerialPort:        "/dev/ttyUSB0",
			SerialBaud:        9600,
			InitialGateway:    0,
			InitialGeneration: 0,
			Drift:             0,
		},
		History: HistoryConfig{
			MaxEntries: 100,
		},
	}
}

// LoadConfig overlays the defaults from NewConfig with the values of a YAML file.
func LoadConfig(path string) (*Config, error) {
	cfg := NewConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("could not read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("could not parse config file: %w", err)
	}

	return cfg, nil
}
