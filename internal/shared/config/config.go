package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// BaseConfig contains common configuration for all services
type BaseConfig struct {
	ServiceName string `env:"SERVICE_NAME"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`
	Environment string `env:"ENVIRONMENT" envDefault:"development"` // development, staging, production
}

// SliceManagerConfig contains configuration for the slice manager service.
// It owns the slice controller, the deployment controller and the remote
// executor, so it carries the SSH and worker-fleet settings.
type SliceManagerConfig struct {
	BaseConfig  `envPrefix:"SLICEMANAGER_"`
	Port        int    `env:"SLICEMANAGER_PORT" envDefault:"8001"`
	DatabaseURL string `env:"SLICEMANAGER_DATABASE_URL,required"`

	JWTSecret string        `env:"JWT_SECRET_KEY,required"`
	TokenTTL  time.Duration `env:"JWT_TOKEN_TTL" envDefault:"60m"`

	// Placement engine endpoint. Unreachable => round-robin fallback.
	PlacementURL     string        `env:"PLACEMENT_URL" envDefault:"http://localhost:8002"`
	PlacementTimeout time.Duration `env:"PLACEMENT_TIMEOUT" envDefault:"90s"`

	// All workers are reached through the gateway on per-worker SSH ports.
	GatewayIP   string        `env:"GATEWAY_IP,required"`
	SSHUser     string        `env:"SSH_USER" envDefault:"ubuntu"`
	SSHPassword string        `env:"SSH_PASSWORD,required"`
	SSHTimeout  time.Duration `env:"SSH_CONNECT_TIMEOUT" envDefault:"30s"`

	// Worker table: "ip:sshport" entries; position i is worker id i+1.
	WorkerTable []string `env:"WORKER_TABLE,required" envSeparator:","`

	// Head node stores VM images, reachable over SSH like the workers.
	HeadNodeIP   string `env:"HEADNODE_IP"`
	HeadNodePort int    `env:"HEADNODE_SSH_PORT" envDefault:"22"`
	ImageDir     string `env:"IMAGE_DIR" envDefault:"/home/ubuntu/images"`

	DefaultImagePath string `env:"DEFAULT_IMAGE_PATH" envDefault:"/home/ubuntu/images/cirros-0.6.2-x86_64-disk.img"`
	Bridge           string `env:"VM_BRIDGE" envDefault:"br-int"`
	VMCreateScript   string `env:"VM_CREATE_SCRIPT" envDefault:"/home/ubuntu/joyastack/scripts/vm_create_multi.sh"`

	NATS *NATSConfig `envPrefix:"SLICEMANAGER_"`
}

// PlacementConfig contains configuration for the placement engine service
type PlacementConfig struct {
	BaseConfig `envPrefix:"PLACEMENT_"`
	Port       int `env:"PLACEMENT_PORT" envDefault:"8002"`

	// Shared bearer-token secret; requests arrive with the caller's
	// token forwarded by the slice manager.
	JWTSecret string        `env:"JWT_SECRET_KEY,required"`
	TokenTTL  time.Duration `env:"JWT_TOKEN_TTL" envDefault:"60m"`

	MonitoringURL     string        `env:"MONITORING_URL" envDefault:"http://localhost:8003"`
	MonitoringTimeout time.Duration `env:"MONITORING_TIMEOUT" envDefault:"5s"`

	// Seed for the genetic algorithm RNG. 0 means time-based seeding;
	// a fixed value makes placement deterministic for identical inputs.
	GASeed int64 `env:"PLACEMENT_GA_SEED" envDefault:"0"`
}

// MonitoringConfig contains configuration for the monitoring adapter service
type MonitoringConfig struct {
	BaseConfig `envPrefix:"MONITORING_"`
	Port       int `env:"MONITORING_PORT" envDefault:"8003"`

	// Shared bearer-token secret for authenticating /hosts callers.
	JWTSecret string        `env:"JWT_SECRET_KEY,required"`
	TokenTTL  time.Duration `env:"JWT_TOKEN_TTL" envDefault:"60m"`

	// SSH tunnel to the host running Prometheus. When PrometheusURL is
	// set the tunnel is skipped and the URL is queried directly.
	PrometheusURL  string        `env:"PROMETHEUS_URL"`
	TunnelHost     string        `env:"MONITORING_TUNNEL_HOST"`
	TunnelPort     int           `env:"MONITORING_TUNNEL_PORT" envDefault:"22"`
	TunnelUser     string        `env:"MONITORING_TUNNEL_USER" envDefault:"ubuntu"`
	TunnelPassword string        `env:"MONITORING_TUNNEL_PASSWORD"`
	RemotePromPort int           `env:"MONITORING_REMOTE_PROM_PORT" envDefault:"9090"`
	LocalBindAddr  string        `env:"MONITORING_LOCAL_BIND_ADDR" envDefault:"127.0.0.1:19090"`
	QueryTimeout   time.Duration `env:"MONITORING_QUERY_TIMEOUT" envDefault:"5s"`

	// Prometheus scrape job that labels the worker node exporters.
	PromJob string `env:"MONITORING_PROM_JOB" envDefault:"nodes"`

	// Per-host power constants consumed by the placement energy model.
	PowerIdle float64 `env:"HOST_POWER_IDLE" envDefault:"100"`
	PowerMax  float64 `env:"HOST_POWER_MAX" envDefault:"250"`

	SnapshotTTL time.Duration `env:"MONITORING_SNAPSHOT_TTL" envDefault:"10s"`
}

// NATSConfig contains configuration for NATS messaging. URLs empty means
// event publishing is disabled.
type NATSConfig struct {
	URLs          []string      `env:"NATS_URLS" envSeparator:","`
	MaxReconnects int           `env:"NATS_MAX_RECONNECTS" envDefault:"-1"`
	ReconnectWait time.Duration `env:"NATS_RECONNECT_WAIT_MS" envDefault:"2s"`
	Timeout       time.Duration `env:"NATS_TIMEOUT_MS" envDefault:"5s"`
}

// LoadSliceManagerConfig loads configuration for the slice manager service
func LoadSliceManagerConfig() (*SliceManagerConfig, error) {
	config, err := env.ParseAs[SliceManagerConfig]()
	if err != nil {
		return nil, fmt.Errorf("failed to parse SliceManager config: %w", err)
	}

	if config.ServiceName == "" {
		config.ServiceName = "slice-manager"
	}

	if config.NATS == nil {
		config.NATS = &NATSConfig{}
	}

	return &config, nil
}

// LoadPlacementConfig loads configuration for the placement engine service
func LoadPlacementConfig() (*PlacementConfig, error) {
	config, err := env.ParseAs[PlacementConfig]()
	if err != nil {
		return nil, fmt.Errorf("failed to parse Placement config: %w", err)
	}

	if config.ServiceName == "" {
		config.ServiceName = "placement"
	}

	return &config, nil
}

// LoadMonitoringConfig loads configuration for the monitoring adapter service
func LoadMonitoringConfig() (*MonitoringConfig, error) {
	config, err := env.ParseAs[MonitoringConfig]()
	if err != nil {
		return nil, fmt.Errorf("failed to parse Monitoring config: %w", err)
	}

	if config.ServiceName == "" {
		config.ServiceName = "monitoring"
	}

	if config.PrometheusURL == "" && config.TunnelHost == "" {
		return nil, fmt.Errorf("either PROMETHEUS_URL or MONITORING_TUNNEL_HOST must be set")
	}

	return &config, nil
}
