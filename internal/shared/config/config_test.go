package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadSliceManagerConfig(t *testing.T) {
	t.Setenv("SLICEMANAGER_DATABASE_URL", "postgres://localhost/joyastack")
	t.Setenv("JWT_SECRET_KEY", "secret")
	t.Setenv("GATEWAY_IP", "10.20.12.154")
	t.Setenv("SSH_PASSWORD", "hunter2")
	t.Setenv("WORKER_TABLE", "10.0.10.2:5801,10.0.10.3:5811")

	cfg, err := LoadSliceManagerConfig()
	require.NoError(t, err)

	require.Equal(t, 8001, cfg.Port)
	require.Equal(t, "slice-manager", cfg.ServiceName)
	require.Equal(t, []string{"10.0.10.2:5801", "10.0.10.3:5811"}, cfg.WorkerTable)
	require.Equal(t, 60*time.Minute, cfg.TokenTTL)
	require.Equal(t, "br-int", cfg.Bridge)
	require.Equal(t, "ubuntu", cfg.SSHUser)
	require.NotNil(t, cfg.NATS)
}

func TestLoadSliceManagerConfigMissingRequired(t *testing.T) {
	t.Setenv("SLICEMANAGER_DATABASE_URL", "postgres://localhost/joyastack")

	_, err := LoadSliceManagerConfig()
	require.Error(t, err)
}

func TestLoadPlacementConfig(t *testing.T) {
	t.Setenv("JWT_SECRET_KEY", "secret")
	t.Setenv("PLACEMENT_GA_SEED", "42")

	cfg, err := LoadPlacementConfig()
	require.NoError(t, err)

	require.Equal(t, 8002, cfg.Port)
	require.Equal(t, "placement", cfg.ServiceName)
	require.Equal(t, int64(42), cfg.GASeed)
	require.Equal(t, 5*time.Second, cfg.MonitoringTimeout)
}

func TestLoadMonitoringConfigRequiresEndpoint(t *testing.T) {
	t.Setenv("JWT_SECRET_KEY", "secret")

	_, err := LoadMonitoringConfig()
	require.Error(t, err)

	t.Setenv("PROMETHEUS_URL", "http://localhost:9090")
	cfg, err := LoadMonitoringConfig()
	require.NoError(t, err)

	require.Equal(t, 8003, cfg.Port)
	require.Equal(t, "nodes", cfg.PromJob)
	require.Equal(t, 100.0, cfg.PowerIdle)
	require.Equal(t, 250.0, cfg.PowerMax)
}
