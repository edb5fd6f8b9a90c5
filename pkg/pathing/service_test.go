package pathing

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGetConfigDir(t *testing.T) {
	t.Setenv("PZEM_CONFIG_DIR", "")
	require.Equal(t, "/etc/pzem_monitor", GetConfigDir())

	t.Setenv("PZEM_CONFIG_DIR", "/tmp/pzem")
	require.Equal(t, "/tmp/pzem", GetConfigDir())
}
