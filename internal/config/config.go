package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Receivers []ReceiverConfig `yaml:"receivers"`
	Traffic   TrafficConfig    `yaml:"traffic"`
	Sim       SimConfig        `yaml:"sim"`
	Web       WebConfig        `yaml:"web"`
	Weather   WeatherConfig    `yaml:"weather"`
}

// ReceiverConfig is one traffic receiver endpoint on the local network.
type ReceiverConfig struct {
	ID       string `yaml:"id"`
	Addr     string `yaml:"addr"`
	Priority int    `yaml:"priority"`
}

type TrafficConfig struct {
	HeartbeatTimeout  time.Duration `yaml:"heartbeat_timeout"`
	WarningExpiry     time.Duration `yaml:"warning_expiry"`
	CheckInterval     time.Duration `yaml:"check_interval"`
	ReconnectDelay    time.Duration `yaml:"reconnect_delay"`
	ReconnectDelayMax time.Duration `yaml:"reconnect_delay_max"`
}

type SimConfig struct {
	Enable       bool          `yaml:"enable"`
	CenterLatDeg float64       `yaml:"center_lat_deg"`
	CenterLonDeg float64       `yaml:"center_lon_deg"`
	Count        int           `yaml:"count"`
	RadiusNm     float64       `yaml:"radius_nm"`
	AltFeet      int           `yaml:"alt_feet"`
	Period       time.Duration `yaml:"period"`
	Interval     time.Duration `yaml:"interval"`
	Priority     int           `yaml:"priority"`
}

type WebConfig struct {
	Listen       string  `yaml:"listen"`
	WSRatePerSec float64 `yaml:"ws_rate_per_sec"`
}

type WeatherConfig struct {
	METARExpiry time.Duration `yaml:"metar_expiry"`
}

// DefaultReceivers are the well-known endpoints of common onboard
// traffic receiver hardware.
func DefaultReceivers() []ReceiverConfig {
	return []ReceiverConfig{
		{ID: "rx-primary", Addr: "192.168.1.1:2000", Priority: 2},
		{ID: "rx-secondary", Addr: "192.168.10.1:2000", Priority: 1},
	}
}

func Load(path string) (Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}

	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return Config{}, err
	}

	if err := DefaultAndValidate(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func DefaultAndValidate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}

	if cfg.Receivers == nil {
		cfg.Receivers = DefaultReceivers()
	}
	seen := make(map[string]bool, len(cfg.Receivers))
	for i, r := range cfg.Receivers {
		if r.ID == "" {
			return fmt.Errorf("receivers[%d].id is required", i)
		}
		if r.Addr == "" {
			return fmt.Errorf("receiver %s: addr is required", r.ID)
		}
		if seen[r.ID] {
			return fmt.Errorf("duplicate receiver id %q", r.ID)
		}
		seen[r.ID] = true
	}

	if cfg.Traffic.HeartbeatTimeout <= 0 {
		cfg.Traffic.HeartbeatTimeout = 5 * time.Second
	}
	if cfg.Traffic.WarningExpiry <= 0 {
		cfg.Traffic.WarningExpiry = 3 * time.Second
	}
	if cfg.Traffic.CheckInterval <= 0 {
		cfg.Traffic.CheckInterval = 1 * time.Second
	}
	if cfg.Traffic.ReconnectDelay <= 0 {
		cfg.Traffic.ReconnectDelay = 2 * time.Second
	}
	if cfg.Traffic.ReconnectDelayMax <= 0 {
		cfg.Traffic.ReconnectDelayMax = 30 * time.Second
	}
	if cfg.Traffic.ReconnectDelayMax < cfg.Traffic.ReconnectDelay {
		return fmt.Errorf("traffic.reconnect_delay_max must be >= traffic.reconnect_delay")
	}

	// Simulator defaults (safe even if disabled).
	if cfg.Sim.Count <= 0 {
		cfg.Sim.Count = 3
	}
	if cfg.Sim.RadiusNm <= 0 {
		cfg.Sim.RadiusNm = 2.0
	}
	if cfg.Sim.AltFeet == 0 {
		cfg.Sim.AltFeet = 4500
	}
	if cfg.Sim.Period <= 0 {
		cfg.Sim.Period = 90 * time.Second
	}
	if cfg.Sim.Interval <= 0 {
		cfg.Sim.Interval = 1 * time.Second
	}

	if cfg.Web.Listen == "" {
		cfg.Web.Listen = ":8080"
	}
	if cfg.Web.WSRatePerSec <= 0 {
		cfg.Web.WSRatePerSec = 5
	}

	if cfg.Weather.METARExpiry <= 0 {
		cfg.Weather.METARExpiry = 95 * time.Minute
	}

	return nil
}
