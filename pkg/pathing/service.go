package pathing

import "os"

const defaultConfigDir = "/etc/pzem_monitor"

// GetConfigDir returns PZEM_CONFIG_DIR if set, else /etc/pzem_monitor.
func GetConfigDir() string {
	if dir := os.Getenv("PZEM_CONFIG_DIR"); dir != "" {
		return dir
	}
	return defaultConfigDir
}
