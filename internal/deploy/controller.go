// Package deploy drives a slice from PENDING to DEPLOYED: it asks the
// placement engine for a VM-to-worker mapping, provisions each VM over
// SSH and records outcomes per VM.
package deploy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/joyastack/joyastack/internal/database/queries"
	"github.com/joyastack/joyastack/internal/placement"
	"github.com/joyastack/joyastack/internal/remote"
	apierrors "github.com/joyastack/joyastack/internal/shared/errors"
	"github.com/joyastack/joyastack/internal/shared/events"
	"github.com/joyastack/joyastack/internal/workers"
)

// FallbackAlgorithm names the scheduling used when the placement engine
// is unreachable.
const FallbackAlgorithm = "Round-Robin (fallback)"

// Store is the slice of the database layer the controller needs.
// *queries.Queries satisfies it.
type Store interface {
	SliceFindByID(ctx context.Context, id int64) (queries.Slice, error)
	SliceUpdateStatus(ctx context.Context, id int64, status queries.SliceStatus) error
	SliceUpdateName(ctx context.Context, id int64, name string) error
	SliceCountByExactName(ctx context.Context, name string, excludeID int64) (int64, error)
	SliceCountByNamePrefix(ctx context.Context, base string, excludeID int64) (int64, error)

	VMFindPendingBySlice(ctx context.Context, sliceID int64) ([]queries.Vm, error)
	VMUpdateName(ctx context.Context, id int64, name string) error
	VMCountByExactName(ctx context.Context, name string, excludeID int64) (int64, error)
	VMCountByNamePrefix(ctx context.Context, base string, excludeID int64) (int64, error)
	VMRecordDeploy(ctx context.Context, arg queries.VMRecordDeployParams) error

	LinkFindBySlice(ctx context.Context, sliceID int64) ([]queries.Link, error)
	ImageFindByID(ctx context.Context, id int64) (queries.Image, error)
}

// PlacementClient requests a placement for a slice's pending VMs.
type PlacementClient interface {
	PlaceSlice(ctx context.Context, sliceID int64, vms []placement.SliceVM, token string) (*placement.Result, error)
}

// Executor provisions and tears down VMs on workers.
type Executor interface {
	CreateVMMultiVLAN(ctx context.Context, req remote.VMRequest) remote.Result
	Teardown(ctx context.Context, workerPort int, vmName, bridge string)
}

// Config carries the deploy-time settings of the controller.
type Config struct {
	Bridge           string
	DefaultImagePath string
}

// VMResult is the per-VM entry of a deploy report.
type VMResult struct {
	VMID     int64  `json:"vm_id"`
	Name     string `json:"name"`
	WorkerID int    `json:"worker_id"`
	VNCPort  int    `json:"vnc_port"`
	State    string `json:"state"`
	PID      *int   `json:"pid,omitempty"`
}

// Report summarizes one deploy call.
type Report struct {
	SliceID           int64      `json:"slice_id"`
	SliceName         string     `json:"slice_name"`
	Status            string     `json:"status"`
	Algorithm         string     `json:"algorithm"`
	TotalEnergy       float64    `json:"total_energy"`
	TotalAvailability float64    `json:"total_availability"`
	FitnessScore      float64    `json:"fitness_score"`
	VMs               []VMResult `json:"vms"`
}

// Controller owns the deploy state machine for slices.
type Controller struct {
	logger *slog.Logger
	store  Store
	placer PlacementClient
	exec   Executor
	table  workers.Table
	events *events.Publisher
	config Config
	locks  *sliceLocks
}

func NewController(store Store, placer PlacementClient, exec Executor, table workers.Table, pub *events.Publisher, cfg Config, logger *slog.Logger) *Controller {
	return &Controller{
		logger: logger,
		store:  store,
		placer: placer,
		exec:   exec,
		table:  table,
		events: pub,
		config: cfg,
		locks:  newSliceLocks(),
	}
}

// Deploy provisions all pending VMs of a slice. Per-VM failures are
// recorded in the report, not raised; the slice still ends DEPLOYED.
// Only an abnormal abort mid-deploy leaves the slice in ERROR.
func (c *Controller) Deploy(ctx context.Context, sliceID, callerID int64, token string) (*Report, error) {
	unlock := c.locks.Lock(sliceID)
	defer unlock()

	slice, err := c.store.SliceFindByID(ctx, sliceID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apierrors.NewNotFoundError("slice")
		}
		return nil, fmt.Errorf("failed to load slice: %w", err)
	}
	if slice.OwnerID != callerID {
		return nil, apierrors.NewForbiddenError("slice belongs to another user")
	}
	if slice.Status == queries.SliceStatusDeploying {
		return nil, apierrors.NewStateError("slice is already being deployed",
			map[string]interface{}{"slice_id": sliceID})
	}

	sliceName := slice.Name
	if slice.Status == queries.SliceStatusPending {
		sliceName, err = c.ensureUniqueSliceName(ctx, slice)
		if err != nil {
			return nil, err
		}
	}

	pending, err := c.store.VMFindPendingBySlice(ctx, sliceID)
	if err != nil {
		return nil, fmt.Errorf("failed to load pending VMs: %w", err)
	}

	report := &Report{SliceID: sliceID, SliceName: sliceName, VMs: []VMResult{}}

	if len(pending) == 0 {
		if err := c.setStatus(ctx, sliceID, queries.SliceStatusDeployed); err != nil {
			return nil, err
		}
		report.Status = string(queries.SliceStatusDeployed)
		return report, nil
	}

	if err := c.setStatus(ctx, sliceID, queries.SliceStatusDeploying); err != nil {
		return nil, err
	}

	// An abort below this point must not strand the slice in DEPLOYING.
	finished := false
	defer func() {
		if finished {
			return
		}
		if err := c.store.SliceUpdateStatus(context.WithoutCancel(ctx), sliceID, queries.SliceStatusError); err != nil {
			c.logger.Error("Failed to finalize aborted deploy", "slice_id", sliceID, "error", err)
			return
		}
		c.events.PublishSliceStatus(sliceID, string(queries.SliceStatusError))
	}()

	for i, vm := range pending {
		name, err := c.ensureUniqueVMName(ctx, vm)
		if err != nil {
			return nil, err
		}
		pending[i].Name = name
	}

	links, err := c.store.LinkFindBySlice(ctx, sliceID)
	if err != nil {
		return nil, fmt.Errorf("failed to load links: %w", err)
	}

	assignment, algorithm, result := c.placeVMs(ctx, sliceID, pending, token)
	report.Algorithm = algorithm
	if result != nil {
		report.TotalEnergy = result.TotalEnergy
		report.TotalAvailability = result.TotalAvailability
		report.FitnessScore = result.FitnessScore
	}

	for _, vm := range pending {
		worker := assignment[vm.ID]
		vncPort := worker.ID*10000 + int(sliceID%100)*100 + int(vm.ID%100)

		res := c.exec.CreateVMMultiVLAN(ctx, remote.VMRequest{
			WorkerPort: worker.SSHPort,
			Name:       vm.Name,
			Bridge:     c.config.Bridge,
			VLANs:      vmVlans(vm.ID, links),
			VNCPort:    vncPort,
			CPU:        int(vm.Cpu),
			RAMMB:      int(vm.Ram),
			DiskGB:     int(vm.Disk),
			Interfaces: int(vm.NumInterfaces),
			ImagePath:  c.imagePath(ctx, vm),
		})

		state := queries.VmStateDeployed
		if !res.Success {
			state = queries.VmStateError
		}

		update := queries.VMRecordDeployParams{
			ID:       vm.ID,
			State:    state,
			WorkerID: pgtype.Int4{Int32: int32(worker.ID), Valid: true},
			VncPort:  pgtype.Int4{Int32: int32(vncPort), Valid: true},
		}
		if res.PID != nil {
			update.Pid = pgtype.Int4{Int32: int32(*res.PID), Valid: true}
		}
		if err := c.store.VMRecordDeploy(ctx, update); err != nil {
			return nil, fmt.Errorf("failed to record VM %d outcome: %w", vm.ID, err)
		}

		report.VMs = append(report.VMs, VMResult{
			VMID:     vm.ID,
			Name:     vm.Name,
			WorkerID: worker.ID,
			VNCPort:  vncPort,
			State:    string(state),
			PID:      res.PID,
		})
	}

	if err := c.setStatus(ctx, sliceID, queries.SliceStatusDeployed); err != nil {
		return nil, err
	}
	finished = true
	report.Status = string(queries.SliceStatusDeployed)

	c.logger.Info("Slice deployed",
		"slice_id", sliceID,
		"vms", len(report.VMs),
		"algorithm", report.Algorithm,
	)

	return report, nil
}

// placeVMs asks the placement engine for an assignment and falls back
// to round-robin when it is unreachable or answers non-OK. The returned
// map is total over the pending VM ids.
func (c *Controller) placeVMs(ctx context.Context, sliceID int64, pending []queries.Vm, token string) (map[int64]workers.Worker, string, *placement.Result) {
	assignment := make(map[int64]workers.Worker, len(pending))

	specs := make([]placement.SliceVM, len(pending))
	for i, vm := range pending {
		specs[i] = placement.SliceVM{ID: vm.ID, Name: vm.Name, CPU: vm.Cpu, RAM: vm.Ram, Disk: vm.Disk}
	}

	result, err := c.placer.PlaceSlice(ctx, sliceID, specs, token)
	if err != nil {
		c.logger.Warn("Placement engine unavailable, falling back to round-robin",
			"slice_id", sliceID, "error", err)
		for i, vm := range pending {
			assignment[vm.ID] = c.table.RoundRobin(i)
		}
		return assignment, FallbackAlgorithm, nil
	}

	for _, vm := range pending {
		host, ok := result.HostFor(vm.Name)
		if ok {
			if worker, found := c.table.ByIP(host.IP); found {
				assignment[vm.ID] = worker
				continue
			}
		}
		worker, _ := c.table.ByID(1)
		c.logger.Warn("Placement returned unknown host, substituting worker 1",
			"vm_id", vm.ID, "host_id", host.HostID, "host_ip", host.IP)
		assignment[vm.ID] = worker
	}

	return assignment, result.Algorithm, result
}

// imagePath resolves the VM's image path, falling back to the
// configured default when the VM carries no image or the row is gone.
func (c *Controller) imagePath(ctx context.Context, vm queries.Vm) string {
	if !vm.ImageID.Valid {
		return c.config.DefaultImagePath
	}
	image, err := c.store.ImageFindByID(ctx, vm.ImageID.Int64)
	if err != nil {
		c.logger.Warn("Image lookup failed, using default image",
			"vm_id", vm.ID, "image_id", vm.ImageID.Int64, "error", err)
		return c.config.DefaultImagePath
	}
	return image.Path
}

// vmVlans collects the VLAN ids of every link touching the VM, in link
// primary-key order.
func vmVlans(vmID int64, links []queries.Link) []int {
	var vlans []int
	for _, l := range links {
		if l.VmAID == vmID || l.VmBID == vmID {
			vlans = append(vlans, int(l.VlanID))
		}
	}
	return vlans
}

// TeardownSlice best-effort removes every deployed VM of a slice from
// its worker. Called before the rows are deleted.
func (c *Controller) TeardownSlice(ctx context.Context, vms []queries.Vm) {
	for _, vm := range vms {
		if vm.State != queries.VmStateDeployed || !vm.WorkerID.Valid {
			continue
		}
		worker, ok := c.table.ByID(int(vm.WorkerID.Int32))
		if !ok {
			c.logger.Warn("Cannot tear down VM on unknown worker",
				"vm_id", vm.ID, "worker_id", vm.WorkerID.Int32)
			continue
		}
		c.exec.Teardown(ctx, worker.SSHPort, vm.Name, c.config.Bridge)
	}
}

func (c *Controller) setStatus(ctx context.Context, sliceID int64, status queries.SliceStatus) error {
	if err := c.store.SliceUpdateStatus(ctx, sliceID, status); err != nil {
		return fmt.Errorf("failed to set slice status %s: %w", status, err)
	}
	c.events.PublishSliceStatus(sliceID, string(status))
	return nil
}
