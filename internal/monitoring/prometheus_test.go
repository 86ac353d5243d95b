package monitoring

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"testing"
	"time"

	promv1 "github.com/prometheus/client_golang/api/prometheus/v1"
	"github.com/prometheus/common/model"

	"github.com/joyastack/joyastack/internal/shared/config"
)

// fakePromAPI answers instant queries by matching on the metric name
// appearing in the query string.
type fakePromAPI struct {
	targets    promv1.TargetsResult
	targetsErr error
	metrics    map[string]float64
	queryErr   error
}

func (f *fakePromAPI) Targets(ctx context.Context) (promv1.TargetsResult, error) {
	return f.targets, f.targetsErr
}

func (f *fakePromAPI) Query(ctx context.Context, query string, ts time.Time, opts ...promv1.Option) (model.Value, promv1.Warnings, error) {
	if f.queryErr != nil {
		return nil, nil, f.queryErr
	}
	for metric, value := range f.metrics {
		if strings.Contains(query, metric) {
			return model.Vector{&model.Sample{Value: model.SampleValue(value)}}, nil, nil
		}
	}
	return model.Vector{}, nil, nil
}

func activeTarget(instance, job string, health promv1.HealthStatus) promv1.ActiveTarget {
	return promv1.ActiveTarget{
		Labels: model.LabelSet{
			model.InstanceLabel: model.LabelValue(instance),
			model.JobLabel:      model.LabelValue(job),
		},
		Health: health,
	}
}

func testConfig() *config.MonitoringConfig {
	return &config.MonitoringConfig{
		PromJob:      "nodes",
		PowerIdle:    100,
		PowerMax:     250,
		QueryTimeout: time.Second,
		SnapshotTTL:  time.Minute,
		JWTSecret:    "test-secret",
		TokenTTL:     time.Hour,
	}
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(&strings.Builder{}, nil))
}

func TestHosts(t *testing.T) {
	papi := &fakePromAPI{
		targets: promv1.TargetsResult{
			Active: []promv1.ActiveTarget{
				activeTarget("10.0.10.2:9100", "nodes", promv1.HealthGood),
				activeTarget("10.0.10.3:9100", "other-job", promv1.HealthGood),
				activeTarget("10.0.10.4:9100", "nodes", promv1.HealthBad),
			},
		},
		metrics: map[string]float64{
			"count(node_cpu_seconds_total":   8,
			"rate(node_cpu_seconds_total":    75, // idle pct, usage 25
			"node_memory_MemTotal_bytes":     16 * 1024 * 1024 * 1024,
			"node_memory_MemAvailable_bytes": 8 * 1024 * 1024 * 1024,
			"node_filesystem_size_bytes":     500e9,
			"node_filesystem_avail_bytes":    400e9,
			"avg_over_time(up":               0.987,
		},
	}

	c := newCollector(papi, testConfig(), testLogger())
	hosts := c.Hosts(context.Background())

	if len(hosts) != 1 {
		t.Fatalf("expected 1 host (filtered by job and health), got %d", len(hosts))
	}

	h := hosts[0]
	if h.ID != "host2" || h.IP != "10.0.10.2" {
		t.Fatalf("unexpected identity: id=%s ip=%s", h.ID, h.IP)
	}
	if h.CPU != 8 {
		t.Fatalf("cpu cores = %v, want 8", h.CPU)
	}
	if h.CPUUsage != 25 {
		t.Fatalf("cpu usage = %v, want 25", h.CPUUsage)
	}
	if h.RAM != 16384 {
		t.Fatalf("ram MB = %v, want 16384", h.RAM)
	}
	if h.RAMUsage != 50 {
		t.Fatalf("ram usage = %v, want 50", h.RAMUsage)
	}
	if h.Storage != 500 {
		t.Fatalf("storage GB = %v, want 500", h.Storage)
	}
	if h.StorageUsage != 20 {
		t.Fatalf("storage usage = %v, want 20", h.StorageUsage)
	}
	if h.Availability != 0.987 {
		t.Fatalf("availability = %v, want 0.987", h.Availability)
	}
	if h.PowerIdle != 100 || h.PowerMax != 250 {
		t.Fatalf("power constants = %v/%v", h.PowerIdle, h.PowerMax)
	}
}

func TestHostsEmptyOnTargetsFailure(t *testing.T) {
	papi := &fakePromAPI{targetsErr: fmt.Errorf("tunnel down")}

	c := newCollector(papi, testConfig(), testLogger())
	hosts := c.Hosts(context.Background())
	if len(hosts) != 0 {
		t.Fatalf("expected empty host list, got %d", len(hosts))
	}
}

func TestHostsDegradeToZeros(t *testing.T) {
	// Metrics missing for an up instance: usage fields go to zero and
	// availability defaults to 1.
	papi := &fakePromAPI{
		targets: promv1.TargetsResult{
			Active: []promv1.ActiveTarget{activeTarget("10.0.10.9:9100", "nodes", promv1.HealthGood)},
		},
	}

	c := newCollector(papi, testConfig(), testLogger())
	hosts := c.Hosts(context.Background())
	if len(hosts) != 1 {
		t.Fatalf("expected 1 host, got %d", len(hosts))
	}

	h := hosts[0]
	if h.ID != "host9" {
		t.Fatalf("id = %s, want host9", h.ID)
	}
	if h.CPU != 0 || h.RAM != 0 || h.Storage != 0 {
		t.Fatalf("expected zero capacities, got %+v", h)
	}
	if h.Availability != 1 {
		t.Fatalf("availability = %v, want 1", h.Availability)
	}
}

func TestHostsCached(t *testing.T) {
	papi := &fakePromAPI{
		targets: promv1.TargetsResult{
			Active: []promv1.ActiveTarget{activeTarget("10.0.10.2:9100", "nodes", promv1.HealthGood)},
		},
	}

	c := newCollector(papi, testConfig(), testLogger())
	first := c.Hosts(context.Background())

	// A targets failure after the first call must not be visible while
	// the snapshot is cached.
	papi.targetsErr = fmt.Errorf("tunnel down")
	second := c.Hosts(context.Background())

	if len(first) != 1 || len(second) != 1 {
		t.Fatalf("cache miss: first=%d second=%d", len(first), len(second))
	}
}
