package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/NotCoffee418/pzem_monitor/pkg/pzem"
	"github.com/stretchr/testify/require"
)

func TestValidate(t *testing.T) {
	testCases := []struct {
		name   string
		modify func(c *PzemAPIConfig)
		ok     bool
	}{
		{"defaults", func(c *PzemAPIConfig) {}, true},
		{"broadcast address", func(c *PzemAPIConfig) { c.SlaveAddress = 0x00 }, false},
		{"general address", func(c *PzemAPIConfig) { c.SlaveAddress = 0xF8 }, true},
		{"highest address", func(c *PzemAPIConfig) { c.SlaveAddress = 0xF7 }, true},
		{"address out of range", func(c *PzemAPIConfig) { c.SlaveAddress = 0xF9 }, false},
		{"zero capacity", func(c *PzemAPIConfig) { c.SampleCapacity = 0 }, false},
		{"zero interval", func(c *PzemAPIConfig) { c.PollIntervalMs = 0 }, false},
		{"fast interval", func(c *PzemAPIConfig) { c.PollIntervalMs = 5 }, true},
		{"zero timeout", func(c *PzemAPIConfig) { c.ResponseTimeoutMs = 0 }, false},
		{"zero error tolerance", func(c *PzemAPIConfig) { c.MaxConsecutiveErrors = 0 }, false},
		{"no serial device", func(c *PzemAPIConfig) { c.SerialDevice = "" }, false},
		{"no baudrate", func(c *PzemAPIConfig) { c.Baudrate = 0 }, false},
		{"unknown transport", func(c *PzemAPIConfig) { c.Transport = "udp" }, false},
		{"tcp without gateway", func(c *PzemAPIConfig) { c.Transport = TransportTCP }, false},
		{"tcp with gateway", func(c *PzemAPIConfig) {
			c.Transport = TransportTCP
			c.GatewayAddress = "192.168.1.50:502"
			c.SerialDevice = ""
		}, true},
		{"mqtt without topic", func(c *PzemAPIConfig) {
			c.MqttBroker = "tcp://localhost:1883"
			c.MqttTopic = ""
		}, false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultPzemAPIConfig()
			tc.modify(cfg)
			err := cfg.Validate()
			if tc.ok {
				require.NoError(t, err)
			} else {
				require.ErrorIs(t, err, pzem.ErrInvalidArgument)
			}
		})
	}
}

func TestLoadPzemAPIConfigCreatesDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "etc", "pzem_api.toml")

	require.NoError(t, LoadPzemAPIConfig(path))
	require.Equal(t, DefaultPzemAPIConfig(), ActivePzemAPIConfig)
	require.Equal(t, 2*time.Second, ActivePzemAPIConfig.PollInterval())
	require.Equal(t, 500*time.Millisecond, ActivePzemAPIConfig.ResponseTimeout())

	_, err := os.Stat(path)
	require.NoError(t, err)

	// second load reads the written file back
	ActivePzemAPIConfig = nil
	require.NoError(t, LoadPzemAPIConfig(path))
	require.Equal(t, DefaultPzemAPIConfig(), ActivePzemAPIConfig)
}

func TestLoadPzemAPIConfigExisting(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pzem_api.toml")
	content := `
transport = "tcp"
gateway_address = "10.0.0.7:502"
slave_address = 3
sample_capacity = 10
poll_interval_ms = 5
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	require.NoError(t, LoadPzemAPIConfig(path))
	cfg := ActivePzemAPIConfig
	require.Equal(t, TransportTCP, cfg.Transport)
	require.Equal(t, "10.0.0.7:502", cfg.GatewayAddress)
	require.Equal(t, uint8(3), cfg.SlaveAddress)
	require.Equal(t, 10, cfg.SampleCapacity)
	require.Equal(t, 5*time.Millisecond, cfg.PollInterval())
	// unset keys keep defaults
	require.Equal(t, 500, cfg.ResponseTimeoutMs)
}

func TestLoadPzemAPIConfigInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pzem_api.toml")
	require.NoError(t, os.WriteFile(path, []byte("slave_address = 0\n"), 0644))

	err := LoadPzemAPIConfig(path)
	require.ErrorIs(t, err, pzem.ErrInvalidArgument)
}

func TestLoadMonitorConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pzem_monitor.toml")
	require.NoError(t, LoadMonitorConfig(path))
	require.Equal(t, "localhost:9040", ActiveMonitorConfig.PzemAPIHost)
	require.False(t, ActiveMonitorConfig.TLSEnabled)
}
