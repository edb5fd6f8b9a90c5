package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
	"github.com/NotCoffee418/pzem_monitor/pkg/pathing"
	"github.com/NotCoffee418/pzem_monitor/pkg/pzem"
)

var (
	ActivePzemAPIConfig *PzemAPIConfig
	ActiveMonitorConfig *MonitorConfig
)

func DefaultPzemAPIConfig() *PzemAPIConfig {
	return &PzemAPIConfig{
		Transport:            TransportSerial,
		SerialDevice:         "/dev/ttyUSB0",
		Baudrate:             9600,
		SlaveAddress:         pzem.DefaultAddress,
		SampleCapacity:       50,
		PollIntervalMs:       2000,
		ResponseTimeoutMs:    500,
		MaxConsecutiveErrors: 10,
		ListenAddress:        "0.0.0.0",
		ListenPort:           9040,
		MqttTopic:            "pzem/average",
		LogLevel:             "info",
	}
}

// LoadPzemAPIConfig loads the API config from path, or from the default
// config dir when path is empty. A missing file is created with defaults.
func LoadPzemAPIConfig(path string) error {
	if path == "" {
		path = filepath.Join(pathing.GetConfigDir(), "pzem_api.toml")
	}

	cfg := DefaultPzemAPIConfig()
	if err := loadOrCreate(path, cfg); err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	ActivePzemAPIConfig = cfg
	return nil
}

func LoadMonitorConfig(path string) error {
	if path == "" {
		path = filepath.Join(pathing.GetConfigDir(), "pzem_monitor.toml")
	}

	cfg := &MonitorConfig{
		PzemAPIHost: "localhost:9040",
		TLSEnabled:  false,
	}
	if err := loadOrCreate(path, cfg); err != nil {
		return err
	}
	ActiveMonitorConfig = cfg
	return nil
}

// Validate rejects configurations the poller cannot run with.
// Never defaults silently.
func (c *PzemAPIConfig) Validate() error {
	invalid := func(format string, args ...any) error {
		return fmt.Errorf("%w: %s", pzem.ErrInvalidArgument, fmt.Sprintf(format, args...))
	}

	if c.SlaveAddress == 0x00 {
		return invalid("slave_address 0x00 is the broadcast address")
	}
	if c.SlaveAddress > pzem.GeneralAddress {
		return invalid("slave_address 0x%02X out of range", c.SlaveAddress)
	}
	if c.SampleCapacity < 1 {
		return invalid("sample_capacity must be > 0, got %d", c.SampleCapacity)
	}
	if c.PollIntervalMs <= 0 {
		return invalid("poll_interval_ms must be > 0, got %d", c.PollIntervalMs)
	}
	if c.ResponseTimeoutMs <= 0 {
		return invalid("response_timeout_ms must be > 0, got %d", c.ResponseTimeoutMs)
	}
	if c.MaxConsecutiveErrors < 1 {
		return invalid("max_consecutive_errors must be > 0, got %d", c.MaxConsecutiveErrors)
	}

	switch c.Transport {
	case TransportSerial:
		if c.SerialDevice == "" {
			return invalid("serial_device required for transport %q", c.Transport)
		}
		if c.Baudrate == 0 {
			return invalid("baudrate required for transport %q", c.Transport)
		}
	case TransportTCP:
		if c.GatewayAddress == "" {
			return invalid("gateway_address required for transport %q", c.Transport)
		}
	default:
		return invalid("unknown transport %q", c.Transport)
	}

	if c.MqttBroker != "" && c.MqttTopic == "" {
		return invalid("mqtt_topic required when mqtt_broker is set")
	}
	return nil
}

// loadOrCreate decodes path into cfg, or writes cfg to path if it does not exist.
func loadOrCreate(path string, cfg any) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return err
		}
		cfgFile, err := os.Create(path)
		if err != nil {
			return err
		}
		defer cfgFile.Close()
		return toml.NewEncoder(cfgFile).Encode(cfg)
	}

	_, err := toml.DecodeFile(path, cfg)
	return err
}
