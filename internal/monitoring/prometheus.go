package monitoring

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/prometheus/client_golang/api"
	promv1 "github.com/prometheus/client_golang/api/prometheus/v1"
	"github.com/prometheus/common/model"

	"github.com/joyastack/joyastack/internal/placement"
	"github.com/joyastack/joyastack/internal/shared/config"
)

const hostsCacheKey = "hosts"

// promAPI is the slice of the Prometheus v1 API the collector needs.
type promAPI interface {
	Query(ctx context.Context, query string, ts time.Time, opts ...promv1.Option) (model.Value, promv1.Warnings, error)
	Targets(ctx context.Context) (promv1.TargetsResult, error)
}

// Collector turns node-exporter metrics into host snapshots for the
// placement engine. Snapshots are cached briefly so a burst of
// placement requests does not hammer Prometheus.
type Collector struct {
	logger *slog.Logger
	api    promAPI

	job          string
	powerIdle    float64
	powerMax     float64
	queryTimeout time.Duration

	cache *gocache.Cache
}

// NewCollector builds a collector backed by the Prometheus endpoint at
// promURL, typically the local side of the SSH tunnel.
func NewCollector(cfg *config.MonitoringConfig, promURL string, logger *slog.Logger) (*Collector, error) {
	client, err := api.NewClient(api.Config{Address: promURL})
	if err != nil {
		return nil, fmt.Errorf("failed to create prometheus client: %w", err)
	}
	return newCollector(promv1.NewAPI(client), cfg, logger), nil
}

func newCollector(papi promAPI, cfg *config.MonitoringConfig, logger *slog.Logger) *Collector {
	return &Collector{
		logger:       logger,
		api:          papi,
		job:          cfg.PromJob,
		powerIdle:    cfg.PowerIdle,
		powerMax:     cfg.PowerMax,
		queryTimeout: cfg.QueryTimeout,
		cache:        gocache.New(cfg.SnapshotTTL, 2*cfg.SnapshotTTL),
	}
}

// Hosts returns a snapshot per healthy worker instance. Any failure
// yields an empty list, never an error.
func (c *Collector) Hosts(ctx context.Context) []placement.HostSnapshot {
	if cached, ok := c.cache.Get(hostsCacheKey); ok {
		return cached.([]placement.HostSnapshot)
	}

	instances, err := c.activeInstances(ctx)
	if err != nil {
		c.logger.Error("Failed to list active instances", "error", err)
		return []placement.HostSnapshot{}
	}

	hosts := make([]placement.HostSnapshot, 0, len(instances))
	for _, inst := range instances {
		hosts = append(hosts, c.snapshot(ctx, inst))
	}

	c.cache.SetDefault(hostsCacheKey, hosts)
	return hosts
}

// activeInstances lists node-exporter targets of the configured job
// that are currently up.
func (c *Collector) activeInstances(ctx context.Context) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.queryTimeout)
	defer cancel()

	targets, err := c.api.Targets(ctx)
	if err != nil {
		return nil, err
	}

	var instances []string
	for _, t := range targets.Active {
		if string(t.Labels[model.JobLabel]) != c.job || t.Health != promv1.HealthGood {
			continue
		}
		instances = append(instances, string(t.Labels[model.InstanceLabel]))
	}
	return instances, nil
}

// snapshot collects the metrics for one instance. Hosts are identified
// by the last octet of the instance IP. Missing metrics degrade to
// zeros rather than failing the whole snapshot.
func (c *Collector) snapshot(ctx context.Context, instance string) placement.HostSnapshot {
	ip := instance
	if i := strings.IndexByte(instance, ':'); i >= 0 {
		ip = instance[:i]
	}
	octets := strings.Split(ip, ".")
	id := "host" + octets[len(octets)-1]

	cores, _ := c.queryScalar(ctx, fmt.Sprintf(`count(node_cpu_seconds_total{mode="idle",instance=%q})`, instance))

	var cpuUsage float64
	if idle, ok := c.queryScalar(ctx, fmt.Sprintf(`avg by (instance) (rate(node_cpu_seconds_total{mode="idle",instance=%q}[2m])) * 100`, instance)); ok {
		cpuUsage = clamp(100-idle, 0, 100)
	}

	memTotal, haveMemTotal := c.queryScalar(ctx, fmt.Sprintf(`node_memory_MemTotal_bytes{instance=%q}`, instance))
	memAvail, haveMemAvail := c.queryScalar(ctx, fmt.Sprintf(`node_memory_MemAvailable_bytes{instance=%q}`, instance))
	var ramUsage float64
	if haveMemTotal && haveMemAvail && memTotal > 0 {
		ramUsage = clamp((memTotal-memAvail)/memTotal*100, 0, 100)
	}

	fsTotal, haveFsTotal := c.queryScalar(ctx, fmt.Sprintf(`node_filesystem_size_bytes{instance=%q,fstype!="tmpfs",fstype!="overlay"}`, instance))
	fsAvail, haveFsAvail := c.queryScalar(ctx, fmt.Sprintf(`node_filesystem_avail_bytes{instance=%q,fstype!="tmpfs",fstype!="overlay"}`, instance))
	var storageUsage float64
	if haveFsTotal && haveFsAvail && fsTotal > 0 {
		storageUsage = clamp((fsTotal-fsAvail)/fsTotal*100, 0, 100)
	}

	availability := 1.0
	if avail, ok := c.queryScalar(ctx, fmt.Sprintf(`avg_over_time(up{instance=%q}[1h])`, instance)); ok {
		availability = clamp(avail, 0, 1)
	}

	// Capacities in the units VM demands use: cores, MB, GB.
	return placement.HostSnapshot{
		ID:           id,
		IP:           ip,
		CPU:          cores,
		RAM:          round2(memTotal / (1024 * 1024)),
		Storage:      round2(fsTotal / 1e9),
		CPUUsage:     round2(cpuUsage),
		RAMUsage:     round2(ramUsage),
		StorageUsage: round2(storageUsage),
		Availability: math.Round(availability*1000) / 1000,
		PowerIdle:    c.powerIdle,
		PowerMax:     c.powerMax,
	}
}

// queryScalar runs an instant query and returns the first sample.
func (c *Collector) queryScalar(ctx context.Context, query string) (float64, bool) {
	ctx, cancel := context.WithTimeout(ctx, c.queryTimeout)
	defer cancel()

	value, _, err := c.api.Query(ctx, query, time.Now())
	if err != nil {
		c.logger.Warn("Prometheus query failed", "query", query, "error", err)
		return 0, false
	}

	vector, ok := value.(model.Vector)
	if !ok || vector.Len() == 0 {
		return 0, false
	}

	v := float64(vector[0].Value)
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

func clamp(v, lo, hi float64) float64 {
	return math.Min(math.Max(v, lo), hi)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
