package placement

// VMSpec is one VM's resource demand as submitted to the engine.
type VMSpec struct {
	ID      string  `json:"id"`
	VMID    int64   `json:"vm_id,omitempty"`
	CPU     float64 `json:"cpu"`
	RAM     float64 `json:"ram"`
	Storage float64 `json:"storage"`
}

// HostSnapshot is one candidate host as produced by the monitoring
// adapter. CPU/RAM/Storage are physical totals; the usage fields are
// informational and not consumed by the engine.
type HostSnapshot struct {
	ID           string  `json:"id"`
	IP           string  `json:"ip"`
	CPU          float64 `json:"cpu"`
	RAM          float64 `json:"ram"`
	Storage      float64 `json:"storage"`
	CPUUsage     float64 `json:"cpu_usage,omitempty"`
	RAMUsage     float64 `json:"ram_usage,omitempty"`
	StorageUsage float64 `json:"storage_usage,omitempty"`
	Availability float64 `json:"availability"`
	PowerIdle    float64 `json:"power_idle"`
	PowerMax     float64 `json:"power_max"`
}

// HostPlacement is the per-host portion of a placement result.
type HostPlacement struct {
	HostID       string   `json:"host_id"`
	IP           string   `json:"ip"`
	CPUUsage     float64  `json:"cpu_usage"`
	Energy       float64  `json:"energy"`
	Availability float64  `json:"availability"`
	AssignedVMs  []string `json:"assigned_vms"`
}

// Result is the engine's full answer for one placement request.
type Result struct {
	Placements        []HostPlacement `json:"placements"`
	TotalEnergy       float64         `json:"total_energy"`
	TotalAvailability float64         `json:"total_availability"`
	FitnessScore      float64         `json:"fitness_score"`
	Algorithm         string          `json:"algorithm"`
}

// HostFor returns the placement entry holding the given VM id, if any.
func (r *Result) HostFor(vmID string) (HostPlacement, bool) {
	for _, p := range r.Placements {
		for _, v := range p.AssignedVMs {
			if v == vmID {
				return p, true
			}
		}
	}
	return HostPlacement{}, false
}
