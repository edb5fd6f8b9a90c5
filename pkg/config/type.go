package config

import "time"

const (
	TransportSerial = "serial"
	TransportTCP    = "tcp"
)

type MonitorConfig struct {
	PzemAPIHost string `toml:"pzem_api_host"`
	TLSEnabled  bool   `toml:"tls_enabled"`
}

type PzemAPIConfig struct {
	// serial: PZEM wired to a local UART/USB adapter
	// tcp: PZEM behind a Modbus TCP to RTU gateway
	Transport      string `toml:"transport"`
	SerialDevice   string `toml:"serial_device"`
	Baudrate       uint   `toml:"baudrate"`
	GatewayAddress string `toml:"gateway_address"`

	// 0x01-0xF7, or 0xF8 to reach a single meter regardless of its address
	SlaveAddress         uint8 `toml:"slave_address"`
	SampleCapacity       int   `toml:"sample_capacity"`
	PollIntervalMs       int   `toml:"poll_interval_ms"`
	ResponseTimeoutMs    int   `toml:"response_timeout_ms"`
	MaxConsecutiveErrors int   `toml:"max_consecutive_errors"`

	ListenAddress string `toml:"listen_address"`
	ListenPort    int    `toml:"listen_port"`

	// Optional, leave broker empty to disable
	MqttBroker string `toml:"mqtt_broker"`
	MqttTopic  string `toml:"mqtt_topic"`

	LogLevel string `toml:"log_level"`
}

func (c *PzemAPIConfig) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalMs) * time.Millisecond
}

func (c *PzemAPIConfig) ResponseTimeout() time.Duration {
	return time.Duration(c.ResponseTimeoutMs) * time.Millisecond
}
