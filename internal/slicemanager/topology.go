package slicemanager

import (
	"fmt"

	apierrors "github.com/joyastack/joyastack/internal/shared/errors"
)

// Topology is the user-submitted slice description: named nodes plus
// undirected edges between them.
type Topology struct {
	Name  string `json:"name"`
	Nodes []Node `json:"nodes"`
	Links []Edge `json:"links"`
}

type Node struct {
	Label   string `json:"label"`
	CPU     int32  `json:"cpu"`
	RAM     int32  `json:"ram"`
	Disk    int32  `json:"disk"`
	ImageID *int64 `json:"image_id,omitempty"`
}

type Edge struct {
	From string `json:"from_vm"`
	To   string `json:"to_vm"`
}

// firstVlanID is the VLAN of a slice's first link; each further link
// gets the next multiple of 100.
const firstVlanID = 100

// vlanID returns the VLAN for the k-th link of a slice (0-indexed).
func vlanID(k int) int32 {
	return firstVlanID + int32(k)*100
}

// normalize applies the defaults for omitted fields.
func (t *Topology) normalize() {
	if t.Name == "" {
		t.Name = "SliceDemo"
	}
	for i := range t.Nodes {
		if t.Nodes[i].CPU <= 0 {
			t.Nodes[i].CPU = 1
		}
		if t.Nodes[i].RAM <= 0 {
			t.Nodes[i].RAM = 256
		}
		if t.Nodes[i].Disk <= 0 {
			t.Nodes[i].Disk = 3
		}
	}
}

// validate rejects topologies whose links reference unknown or
// identical node labels, or whose node labels repeat.
func (t *Topology) validate() error {
	labels := make(map[string]bool, len(t.Nodes))
	for _, n := range t.Nodes {
		if n.Label == "" {
			return apierrors.NewValidationError("node label must not be empty", nil)
		}
		if labels[n.Label] {
			return apierrors.NewValidationError(fmt.Sprintf("duplicate node label %q", n.Label), nil)
		}
		labels[n.Label] = true
	}

	for _, l := range t.Links {
		if !labels[l.From] {
			return apierrors.NewValidationError(fmt.Sprintf("link references unknown node %q", l.From), nil)
		}
		if !labels[l.To] {
			return apierrors.NewValidationError(fmt.Sprintf("link references unknown node %q", l.To), nil)
		}
		if l.From == l.To {
			return apierrors.NewValidationError(fmt.Sprintf("link connects node %q to itself", l.From), nil)
		}
	}

	return nil
}

// degrees counts the links touching each node label.
func (t *Topology) degrees() map[string]int32 {
	deg := make(map[string]int32, len(t.Nodes))
	for _, l := range t.Links {
		deg[l.From]++
		deg[l.To]++
	}
	return deg
}

// interfacesFor is the number of tap interfaces a node needs: its link
// degree with a floor of one.
func (t *Topology) interfacesFor(label string, deg map[string]int32) int32 {
	if n := deg[label]; n > 0 {
		return n
	}
	return 1
}
