package placement

import (
	"fmt"
	"math"
	"math/rand"
	"sort"
	"time"
)

// Overcommit factors applied to physical capacities before placement.
const (
	cpuOvercommit     = 1.2
	ramOvercommit     = 1.5
	storageOvercommit = 1.0
)

// Genetic algorithm parameters.
const (
	populationSize = 50
	generations    = 100
	eliteSize      = 5
	mutationRate   = 0.2
)

// AlgorithmName identifies the optimizer in placement results.
const AlgorithmName = "I-GA"

// vhamEpsilon keeps the weighted seeding well-defined when a host's
// score comes out non-positive.
const vhamEpsilon = 1e-6

// scoredHost is a HostSnapshot extended with virtual capacities and its
// VHAM score. The sorted slice of scored hosts is the index space for
// chromosomes.
type scoredHost struct {
	HostSnapshot
	cpuVirtual     float64
	ramVirtual     float64
	storageVirtual float64
	vham           float64
}

// prepareHosts computes virtual capacities and VHAM scores, then sorts
// hosts by score descending. Ties break on id so the chromosome index
// space is deterministic.
func prepareHosts(hosts []HostSnapshot) []scoredHost {
	scored := make([]scoredHost, len(hosts))

	var maxCPUVirtual, maxPowerMax float64
	for i, h := range hosts {
		scored[i] = scoredHost{
			HostSnapshot:   h,
			cpuVirtual:     h.CPU * cpuOvercommit,
			ramVirtual:     h.RAM * ramOvercommit,
			storageVirtual: h.Storage * storageOvercommit,
		}
		maxCPUVirtual = math.Max(maxCPUVirtual, scored[i].cpuVirtual)
		maxPowerMax = math.Max(maxPowerMax, h.PowerMax)
	}

	for i := range scored {
		var cpuTerm, powerTerm float64
		if maxCPUVirtual > 0 {
			cpuTerm = scored[i].cpuVirtual / maxCPUVirtual
		}
		if maxPowerMax > 0 {
			powerTerm = scored[i].PowerMax / maxPowerMax
		}
		scored[i].vham = 0.6*cpuTerm + 0.3*scored[i].Availability - 0.1*powerTerm
	}

	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].vham != scored[j].vham {
			return scored[i].vham > scored[j].vham
		}
		return scored[i].ID < scored[j].ID
	})

	return scored
}

// hostEnergy models per-host power draw as a cubic function of the CPU
// utilization ratio.
func hostEnergy(h scoredHost, usageRatio float64) float64 {
	return h.PowerIdle + (h.PowerMax-h.PowerIdle)*math.Pow(usageRatio, 3)
}

// Engine runs the placement optimizer. The random source is injected so
// results are reproducible under a fixed seed.
type Engine struct {
	rng *rand.Rand
}

// NewEngine builds an engine seeded with the given value. A zero seed
// selects a time-based seed.
func NewEngine(seed int64) *Engine {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Engine{rng: rand.New(rand.NewSource(seed))}
}

// Place assigns every VM to a host, minimizing the combined
// energy-and-availability fitness. Zero hosts is an error; zero VMs
// yields an empty result. A fleet without CPU capacity, or a demand set
// that activates no host, is an error rather than an infinite fitness.
func (e *Engine) Place(vms []VMSpec, hosts []HostSnapshot) (*Result, error) {
	if len(hosts) == 0 {
		return nil, fmt.Errorf("no hosts available for placement")
	}
	if len(vms) == 0 {
		return &Result{Placements: []HostPlacement{}, Algorithm: AlgorithmName}, nil
	}

	scored := prepareHosts(hosts)

	usable := false
	for _, h := range scored {
		if h.cpuVirtual > 0 {
			usable = true
			break
		}
	}
	if !usable {
		return nil, fmt.Errorf("no host has cpu capacity")
	}

	best := e.evolve(vms, scored)
	result := buildResult(best, vms, scored)
	if math.IsInf(result.FitnessScore, 0) {
		return nil, fmt.Errorf("placement activated no host")
	}
	return result, nil
}

// evolve runs the fixed-generation GA loop and returns the
// fitness-minimum chromosome of the final population.
func (e *Engine) evolve(vms []VMSpec, hosts []scoredHost) []int {
	population := make([][]int, populationSize)
	for i := range population {
		population[i] = e.seedChromosome(len(vms), hosts)
	}

	for g := 0; g < generations; g++ {
		sort.SliceStable(population, func(i, j int) bool {
			return chromosomeFitness(population[i], vms, hosts) < chromosomeFitness(population[j], vms, hosts)
		})

		elites := population[:eliteSize]
		next := make([][]int, 0, populationSize)
		for _, elite := range elites {
			next = append(next, append([]int(nil), elite...))
		}
		for len(next) < populationSize {
			p1, p2 := e.pickParents(elites)
			child := e.crossover(p1, p2)
			e.mutate(child, len(hosts))
			next = append(next, child)
		}
		population = next
	}

	best := population[0]
	bestFitness := chromosomeFitness(best, vms, hosts)
	for _, chrom := range population[1:] {
		if f := chromosomeFitness(chrom, vms, hosts); f < bestFitness {
			best, bestFitness = chrom, f
		}
	}
	return best
}

// seedChromosome samples a host index per VM with probability
// proportional to the host's VHAM score.
func (e *Engine) seedChromosome(numVMs int, hosts []scoredHost) []int {
	weights := make([]float64, len(hosts))
	var total float64
	for i, h := range hosts {
		weights[i] = math.Max(h.vham, vhamEpsilon)
		total += weights[i]
	}

	chrom := make([]int, numVMs)
	for i := range chrom {
		r := e.rng.Float64() * total
		for j, w := range weights {
			r -= w
			if r < 0 {
				chrom[i] = j
				break
			}
		}
	}
	return chrom
}

// pickParents samples two distinct elites.
func (e *Engine) pickParents(elites [][]int) ([]int, []int) {
	a := e.rng.Intn(len(elites))
	b := e.rng.Intn(len(elites) - 1)
	if b >= a {
		b++
	}
	return elites[a], elites[b]
}

// crossover is single-point with the cut restricted to the first half
// of the chromosome. With fewer than two genes it degenerates to a copy
// of the first parent.
func (e *Engine) crossover(p1, p2 []int) []int {
	n := len(p1)
	if n < 2 {
		return append([]int(nil), p1...)
	}
	point := e.rng.Intn(n / 2)
	child := make([]int, n)
	copy(child, p1[:point])
	copy(child[point:], p2[point:])
	return child
}

// mutate replaces each gene with a uniform random host index with
// probability mutationRate.
func (e *Engine) mutate(chrom []int, numHosts int) {
	for i := range chrom {
		if e.rng.Float64() < mutationRate {
			chrom[i] = e.rng.Intn(numHosts)
		}
	}
}

// chromosomeFitness computes f = 1/G where
// G = 0.5*(E_min/E + availability product over active hosts).
// Lower is better; an empty active set is infinitely bad.
func chromosomeFitness(chrom []int, vms []VMSpec, hosts []scoredHost) float64 {
	cpuUsed := make([]float64, len(hosts))
	for i, vm := range vms {
		cpuUsed[chrom[i]] += vm.CPU
	}

	var totalEnergy float64
	availability := 1.0
	active := false
	for i, h := range hosts {
		if h.cpuVirtual <= 0 {
			continue
		}
		ratio := cpuUsed[i] / h.cpuVirtual
		if ratio > 0 {
			active = true
			totalEnergy += hostEnergy(h, ratio)
			availability *= h.Availability
		}
	}
	if !active {
		return math.Inf(1)
	}

	eMin := hosts[0].PowerIdle
	for _, h := range hosts[1:] {
		eMin = math.Min(eMin, h.PowerIdle)
	}

	g := 0.5 * (eMin/totalEnergy + availability)
	return 1 / g
}

// buildResult expands the winning chromosome into the per-host report.
func buildResult(chrom []int, vms []VMSpec, hosts []scoredHost) *Result {
	assigned := make([][]string, len(hosts))
	cpuUsed := make([]float64, len(hosts))
	for i, vm := range vms {
		assigned[chrom[i]] = append(assigned[chrom[i]], vm.ID)
		cpuUsed[chrom[i]] += vm.CPU
	}

	result := &Result{Algorithm: AlgorithmName}
	availability := 1.0
	active := false
	for i, h := range hosts {
		var ratio, energy float64
		if h.cpuVirtual > 0 {
			ratio = cpuUsed[i] / h.cpuVirtual
		}
		if ratio > 0 {
			energy = hostEnergy(h, ratio)
			availability *= h.Availability
			active = true
		}
		vmIDs := assigned[i]
		if vmIDs == nil {
			vmIDs = []string{}
		}
		result.Placements = append(result.Placements, HostPlacement{
			HostID:       h.ID,
			IP:           h.IP,
			CPUUsage:     round(ratio, 3),
			Energy:       round(energy, 2),
			Availability: h.Availability,
			AssignedVMs:  vmIDs,
		})
		result.TotalEnergy += energy
	}

	result.TotalEnergy = round(result.TotalEnergy, 2)
	if active {
		result.TotalAvailability = round(availability, 4)
	}
	result.FitnessScore = round(chromosomeFitness(chrom, vms, hosts), 4)
	return result
}

func round(v float64, decimals int) float64 {
	if math.IsInf(v, 0) || math.IsNaN(v) {
		return v
	}
	p := math.Pow(10, float64(decimals))
	return math.Round(v*p) / p
}
