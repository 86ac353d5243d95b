package placement

import (
	"math"
	"reflect"
	"testing"
)

func testHosts() []HostSnapshot {
	return []HostSnapshot{
		{ID: "host1", IP: "10.0.10.2", CPU: 16, RAM: 32, Storage: 500, Availability: 0.99, PowerIdle: 100, PowerMax: 300},
		{ID: "host2", IP: "10.0.10.3", CPU: 12, RAM: 24, Storage: 400, Availability: 0.95, PowerIdle: 90, PowerMax: 250},
		{ID: "host3", IP: "10.0.10.4", CPU: 20, RAM: 48, Storage: 800, Availability: 0.98, PowerIdle: 120, PowerMax: 350},
	}
}

func testVMs() []VMSpec {
	return []VMSpec{
		{ID: "vm1", CPU: 4, RAM: 8, Storage: 100},
		{ID: "vm2", CPU: 6, RAM: 12, Storage: 80},
		{ID: "vm3", CPU: 8, RAM: 16, Storage: 200},
		{ID: "vm4", CPU: 3, RAM: 4, Storage: 50},
	}
}

func TestPlaceAssignsEveryVMOnce(t *testing.T) {
	result, err := NewEngine(42).Place(testVMs(), testHosts())
	if err != nil {
		t.Fatalf("place failed: %v", err)
	}

	if result.Algorithm != AlgorithmName {
		t.Fatalf("unexpected algorithm: %q", result.Algorithm)
	}
	if len(result.Placements) != 3 {
		t.Fatalf("expected 3 host entries, got %d", len(result.Placements))
	}

	seen := map[string]int{}
	for _, p := range result.Placements {
		for _, vm := range p.AssignedVMs {
			seen[vm]++
		}
	}
	for _, vm := range testVMs() {
		if seen[vm.ID] != 1 {
			t.Fatalf("vm %s assigned %d times, want exactly 1", vm.ID, seen[vm.ID])
		}
	}
	if len(seen) != 4 {
		t.Fatalf("unexpected extra assignments: %v", seen)
	}
}

func TestPlaceDeterministicUnderSeed(t *testing.T) {
	first, err := NewEngine(7).Place(testVMs(), testHosts())
	if err != nil {
		t.Fatalf("place failed: %v", err)
	}
	second, err := NewEngine(7).Place(testVMs(), testHosts())
	if err != nil {
		t.Fatalf("place failed: %v", err)
	}

	if !reflect.DeepEqual(first, second) {
		t.Fatalf("same seed produced different results:\n%+v\n%+v", first, second)
	}
}

func TestPlaceSingleVM(t *testing.T) {
	// |V|=1 exercises the crossover degenerate path.
	result, err := NewEngine(1).Place([]VMSpec{{ID: "vm1", CPU: 2, RAM: 4, Storage: 10}}, testHosts())
	if err != nil {
		t.Fatalf("place failed: %v", err)
	}

	var assigned int
	for _, p := range result.Placements {
		assigned += len(p.AssignedVMs)
	}
	if assigned != 1 {
		t.Fatalf("expected 1 assignment, got %d", assigned)
	}
	if math.IsInf(result.FitnessScore, 0) || result.FitnessScore <= 0 {
		t.Fatalf("unexpected fitness: %v", result.FitnessScore)
	}
}

func TestPlaceZeroHosts(t *testing.T) {
	if _, err := NewEngine(1).Place(testVMs(), nil); err == nil {
		t.Fatal("expected error for zero hosts")
	}
}

func TestPlaceZeroCapacityHosts(t *testing.T) {
	// A fleet whose metrics all degraded to zero cores cannot host
	// anything, so placement must fail instead of reporting a result
	// with infinite fitness.
	hosts := []HostSnapshot{
		{ID: "host1", IP: "10.0.10.2", Availability: 1, PowerIdle: 100, PowerMax: 300},
		{ID: "host2", IP: "10.0.10.3", Availability: 1, PowerIdle: 90, PowerMax: 250},
	}
	if _, err := NewEngine(1).Place(testVMs(), hosts); err == nil {
		t.Fatal("expected error for zero-capacity fleet")
	}
}

func TestPlaceZeroCPUDemand(t *testing.T) {
	// A VM set that demands no CPU activates no host, which would drive
	// the fitness to +Inf. That value cannot be serialized, so it must
	// surface as an error.
	result, err := NewEngine(1).Place([]VMSpec{{ID: "vm1", RAM: 4, Storage: 10}}, testHosts())
	if err == nil {
		t.Fatalf("expected error for zero-cpu demand, got %+v", result)
	}
}

func TestPlaceZeroVMs(t *testing.T) {
	result, err := NewEngine(1).Place(nil, testHosts())
	if err != nil {
		t.Fatalf("place failed: %v", err)
	}
	if len(result.Placements) != 0 {
		t.Fatalf("expected empty placements, got %+v", result.Placements)
	}
}

func TestFitnessPrefersHigherAvailability(t *testing.T) {
	// Two hosts identical except availability. Packing everything on the
	// higher-availability host must score strictly better (lower).
	hosts := prepareHosts([]HostSnapshot{
		{ID: "good", CPU: 16, RAM: 32, Storage: 500, Availability: 0.99, PowerIdle: 100, PowerMax: 250},
		{ID: "bad", CPU: 16, RAM: 32, Storage: 500, Availability: 0.50, PowerIdle: 100, PowerMax: 250},
	})

	var goodIdx, badIdx int
	for i, h := range hosts {
		switch h.ID {
		case "good":
			goodIdx = i
		case "bad":
			badIdx = i
		}
	}

	vms := []VMSpec{
		{ID: "vm1", CPU: 4, RAM: 8, Storage: 10},
		{ID: "vm2", CPU: 4, RAM: 8, Storage: 10},
	}

	onGood := chromosomeFitness([]int{goodIdx, goodIdx}, vms, hosts)
	onBad := chromosomeFitness([]int{badIdx, badIdx}, vms, hosts)
	if onGood >= onBad {
		t.Fatalf("fitness on 0.99 host (%v) not better than on 0.50 host (%v)", onGood, onBad)
	}
}

func TestPrepareHostsOrdering(t *testing.T) {
	hosts := prepareHosts(testHosts())

	for i := 1; i < len(hosts); i++ {
		if hosts[i-1].vham < hosts[i].vham {
			t.Fatalf("hosts not sorted by score: %v then %v", hosts[i-1].vham, hosts[i].vham)
		}
	}

	// host3 has the largest virtual CPU so it should lead.
	if hosts[0].ID != "host3" {
		t.Fatalf("expected host3 first, got %s", hosts[0].ID)
	}

	if got := hosts[0].cpuVirtual; math.Abs(got-24) > 1e-9 {
		t.Fatalf("cpu_virtual = %v, want 24", got)
	}
	if got := hosts[0].ramVirtual; math.Abs(got-72) > 1e-9 {
		t.Fatalf("ram_virtual = %v, want 72", got)
	}
}

func TestHostEnergyCubic(t *testing.T) {
	h := scoredHost{HostSnapshot: HostSnapshot{PowerIdle: 100, PowerMax: 300}}

	if got := hostEnergy(h, 0); got != 100 {
		t.Fatalf("idle energy = %v, want 100", got)
	}
	if got := hostEnergy(h, 1); got != 300 {
		t.Fatalf("full energy = %v, want 300", got)
	}
	if got := hostEnergy(h, 0.5); math.Abs(got-125) > 1e-9 {
		t.Fatalf("half-load energy = %v, want 125", got)
	}
}
