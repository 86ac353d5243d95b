package slicemanager

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/joyastack/joyastack/internal/database/queries"
	"github.com/joyastack/joyastack/internal/shared/auth"
	apierrors "github.com/joyastack/joyastack/internal/shared/errors"
)

// vmView is the JSON shape of a VM row.
type vmView struct {
	ID            int64  `json:"id"`
	Name          string `json:"name"`
	ImageID       *int64 `json:"image_id"`
	CPU           int32  `json:"cpu"`
	RAM           int32  `json:"ram"`
	Disk          int32  `json:"disk"`
	NumInterfaces int32  `json:"num_interfaces"`
	State         string `json:"state"`
	WorkerID      *int32 `json:"worker_id"`
	PID           *int32 `json:"pid"`
	VNCPort       *int32 `json:"vnc_port"`
}

func newVMView(vm queries.Vm) vmView {
	v := vmView{
		ID:            vm.ID,
		Name:          vm.Name,
		CPU:           vm.Cpu,
		RAM:           vm.Ram,
		Disk:          vm.Disk,
		NumInterfaces: vm.NumInterfaces,
		State:         string(vm.State),
	}
	if vm.ImageID.Valid {
		v.ImageID = &vm.ImageID.Int64
	}
	if vm.WorkerID.Valid {
		v.WorkerID = &vm.WorkerID.Int32
	}
	if vm.Pid.Valid {
		v.PID = &vm.Pid.Int32
	}
	if vm.VncPort.Valid {
		v.VNCPort = &vm.VncPort.Int32
	}
	return v
}

type linkView struct {
	ID     int64 `json:"id"`
	VmAID  int64 `json:"vm_a_id"`
	VmBID  int64 `json:"vm_b_id"`
	VlanID int32 `json:"vlan_id"`
}

func createdAt(ts pgtype.Timestamptz) *time.Time {
	if !ts.Valid {
		return nil
	}
	t := ts.Time.UTC()
	return &t
}

func (s *Service) handleListSlices(w http.ResponseWriter, r *http.Request) {
	caller := callerFrom(r)

	slices, err := s.db.SliceFindByOwner(r.Context(), caller.ID)
	if err != nil {
		s.logger.Error("Failed to list slices", "user_id", caller.ID, "error", err)
		apierrors.NewInternalError("").WriteJSON(w)
		return
	}

	type sliceRow struct {
		SliceID   int64           `json:"slice_id"`
		SliceName string          `json:"slice_name"`
		Status    string          `json:"status"`
		CreatedAt *time.Time      `json:"created_at"`
		Template  json.RawMessage `json:"template"`
		VMs       []int64         `json:"vms"`
	}

	rows := make([]sliceRow, 0, len(slices))
	for _, sl := range slices {
		rows = append(rows, sliceRow{
			SliceID:   sl.ID,
			SliceName: sl.Name,
			Status:    string(sl.Status),
			CreatedAt: createdAt(sl.CreatedAt),
			Template:  sl.Template,
			VMs:       sl.VmIDs,
		})
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"user":   caller.Username,
		"slices": rows,
	})
}

func (s *Service) handleGetSlice(w http.ResponseWriter, r *http.Request) {
	caller := callerFrom(r)
	sliceID, err := pathID(r)
	if err != nil {
		apierrors.NewValidationError("invalid slice id", nil).WriteJSON(w)
		return
	}

	slice, err := s.loadOwnedSlice(r, sliceID, caller.ID)
	if err != nil {
		apierrors.HandleError(w, err)
		return
	}

	vms, err := s.db.VMFindBySlice(r.Context(), sliceID)
	if err != nil {
		s.logger.Error("Failed to load slice VMs", "slice_id", sliceID, "error", err)
		apierrors.NewInternalError("").WriteJSON(w)
		return
	}
	links, err := s.db.LinkFindBySlice(r.Context(), sliceID)
	if err != nil {
		s.logger.Error("Failed to load slice links", "slice_id", sliceID, "error", err)
		apierrors.NewInternalError("").WriteJSON(w)
		return
	}

	vmViews := make([]vmView, 0, len(vms))
	for _, vm := range vms {
		vmViews = append(vmViews, newVMView(vm))
	}
	linkViews := make([]linkView, 0, len(links))
	for _, l := range links {
		linkViews = append(linkViews, linkView{ID: l.ID, VmAID: l.VmAID, VmBID: l.VmBID, VlanID: l.VlanID})
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"slice_id":   slice.ID,
		"name":       slice.Name,
		"status":     string(slice.Status),
		"created_at": createdAt(slice.CreatedAt),
		"template":   json.RawMessage(slice.Template),
		"vms":        vmViews,
		"links":      linkViews,
	})
}

func (s *Service) handleCreateSlice(w http.ResponseWriter, r *http.Request) {
	caller := callerFrom(r)

	var topo Topology
	if err := json.NewDecoder(r.Body).Decode(&topo); err != nil {
		apierrors.NewValidationError("invalid request body", nil).WriteJSON(w)
		return
	}
	topo.normalize()
	if err := topo.validate(); err != nil {
		apierrors.HandleError(w, err)
		return
	}

	template, err := json.Marshal(struct {
		Nodes []Node `json:"nodes"`
		Links []Edge `json:"links"`
	}{Nodes: topo.Nodes, Links: topo.Links})
	if err != nil {
		apierrors.NewInternalError("").WriteJSON(w)
		return
	}

	var sliceID int64
	linksCreated := 0
	err = s.db.WithTx(r.Context(), func(q *queries.Queries) error {
		slice, err := q.SliceCreate(r.Context(), queries.SliceCreateParams{
			OwnerID:  caller.ID,
			Name:     topo.Name,
			Status:   queries.SliceStatusPending,
			Template: template,
		})
		if err != nil {
			return err
		}
		sliceID = slice.ID

		n, err := insertTopology(r.Context(), q, slice.ID, &topo)
		if err != nil {
			return err
		}
		linksCreated = n
		return nil
	})
	if err != nil {
		s.logger.Error("Failed to create slice", "user_id", caller.ID, "error", err)
		apierrors.NewInternalError("").WriteJSON(w)
		return
	}

	s.logger.Info("Slice created", "slice_id", sliceID, "owner", caller.Username, "vms", len(topo.Nodes), "links", linksCreated)

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"slice_id":      sliceID,
		"message":       fmt.Sprintf("Slice %s saved (PENDING)", topo.Name),
		"owner":         caller.Username,
		"links_created": linksCreated,
	})
}

func (s *Service) handleUpdateSlice(w http.ResponseWriter, r *http.Request) {
	caller := callerFrom(r)
	sliceID, err := pathID(r)
	if err != nil {
		apierrors.NewValidationError("invalid slice id", nil).WriteJSON(w)
		return
	}

	slice, err := s.loadOwnedSlice(r, sliceID, caller.ID)
	if err != nil {
		apierrors.HandleError(w, err)
		return
	}
	if slice.Status != queries.SliceStatusPending && slice.Status != queries.SliceStatusError {
		apierrors.NewStateError("only PENDING or ERROR slices can be updated",
			map[string]interface{}{"slice_id": sliceID, "status": string(slice.Status)}).WriteJSON(w)
		return
	}

	var topo Topology
	if err := json.NewDecoder(r.Body).Decode(&topo); err != nil {
		apierrors.NewValidationError("invalid request body", nil).WriteJSON(w)
		return
	}
	topo.normalize()
	if err := topo.validate(); err != nil {
		apierrors.HandleError(w, err)
		return
	}

	template, err := json.Marshal(struct {
		Nodes []Node `json:"nodes"`
		Links []Edge `json:"links"`
	}{Nodes: topo.Nodes, Links: topo.Links})
	if err != nil {
		apierrors.NewInternalError("").WriteJSON(w)
		return
	}

	// Replace the whole topology: VLAN ids restart at 100.
	err = s.db.WithTx(r.Context(), func(q *queries.Queries) error {
		if err := q.LinkDeleteBySlice(r.Context(), sliceID); err != nil {
			return err
		}
		if err := q.VMDeleteBySlice(r.Context(), sliceID); err != nil {
			return err
		}
		if err := q.SliceReplaceTopology(r.Context(), queries.SliceReplaceTopologyParams{
			ID:       sliceID,
			Name:     topo.Name,
			Template: template,
		}); err != nil {
			return err
		}
		_, err := insertTopology(r.Context(), q, sliceID, &topo)
		return err
	})
	if err != nil {
		s.logger.Error("Failed to update slice", "slice_id", sliceID, "error", err)
		apierrors.NewInternalError("").WriteJSON(w)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":   "updated",
		"slice_id": sliceID,
		"message":  fmt.Sprintf("Slice %s replaced (PENDING)", topo.Name),
	})
}

func (s *Service) handleDeploySlice(w http.ResponseWriter, r *http.Request) {
	caller := callerFrom(r)
	sliceID, err := pathID(r)
	if err != nil {
		apierrors.NewValidationError("invalid slice id", nil).WriteJSON(w)
		return
	}

	report, err := s.deployer.Deploy(r.Context(), sliceID, caller.ID, auth.BearerToken(r))
	if err != nil {
		s.logger.Error("Deploy failed", "slice_id", sliceID, "error", err)
		apierrors.HandleError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, report)
}

func (s *Service) handleDeleteSlice(w http.ResponseWriter, r *http.Request) {
	caller := callerFrom(r)
	sliceID, err := pathID(r)
	if err != nil {
		apierrors.NewValidationError("invalid slice id", nil).WriteJSON(w)
		return
	}

	if _, err := s.loadOwnedSlice(r, sliceID, caller.ID); err != nil {
		apierrors.HandleError(w, err)
		return
	}

	vms, err := s.db.VMFindBySlice(r.Context(), sliceID)
	if err != nil {
		s.logger.Error("Failed to load slice VMs for delete", "slice_id", sliceID, "error", err)
		apierrors.NewInternalError("").WriteJSON(w)
		return
	}

	// Remote cleanup first, best-effort. Row deletion proceeds even if
	// a worker is unreachable.
	s.deployer.TeardownSlice(r.Context(), vms)

	err = s.db.WithTx(r.Context(), func(q *queries.Queries) error {
		if err := q.LinkDeleteBySlice(r.Context(), sliceID); err != nil {
			return err
		}
		if err := q.VMDeleteBySlice(r.Context(), sliceID); err != nil {
			return err
		}
		return q.SliceDelete(r.Context(), sliceID)
	})
	if err != nil {
		s.logger.Error("Failed to delete slice rows", "slice_id", sliceID, "error", err)
		apierrors.NewInternalError("").WriteJSON(w)
		return
	}

	s.events.PublishSliceStatus(sliceID, "DELETED")
	s.logger.Info("Slice deleted", "slice_id", sliceID, "owner", caller.Username)

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":   "deleted",
		"slice_id": sliceID,
	})
}

// loadOwnedSlice loads a slice and enforces ownership.
func (s *Service) loadOwnedSlice(r *http.Request, sliceID, callerID int64) (queries.Slice, error) {
	slice, err := s.db.SliceFindByID(r.Context(), sliceID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return queries.Slice{}, apierrors.NewNotFoundError("slice")
		}
		return queries.Slice{}, apierrors.NewInternalError("")
	}
	if slice.OwnerID != callerID {
		return queries.Slice{}, apierrors.NewForbiddenError("slice belongs to another user")
	}
	return slice, nil
}

// insertTopology inserts the VM and link rows of a topology and returns
// the number of links created. Runs inside the caller's transaction.
func insertTopology(ctx context.Context, q *queries.Queries, sliceID int64, topo *Topology) (int, error) {
	deg := topo.degrees()
	vmIDs := make(map[string]int64, len(topo.Nodes))

	for _, n := range topo.Nodes {
		var imageID pgtype.Int8
		if n.ImageID != nil {
			imageID = pgtype.Int8{Int64: *n.ImageID, Valid: true}
		}
		vm, err := q.VMCreate(ctx, queries.VMCreateParams{
			SliceID:       sliceID,
			Name:          n.Label,
			ImageID:       imageID,
			Cpu:           n.CPU,
			Ram:           n.RAM,
			Disk:          n.Disk,
			NumInterfaces: topo.interfacesFor(n.Label, deg),
			State:         queries.VmStatePending,
		})
		if err != nil {
			return 0, err
		}
		vmIDs[n.Label] = vm.ID
	}

	for k, l := range topo.Links {
		if _, err := q.LinkCreate(ctx, queries.LinkCreateParams{
			SliceID: sliceID,
			VmAID:   vmIDs[l.From],
			VmBID:   vmIDs[l.To],
			VlanID:  vlanID(k),
		}); err != nil {
			return 0, err
		}
	}

	return len(topo.Links), nil
}
