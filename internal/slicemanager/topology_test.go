package slicemanager

import (
	"testing"
)

func TestTopologyNormalize(t *testing.T) {
	topo := Topology{Nodes: []Node{{Label: "vm1"}}}
	topo.normalize()

	if topo.Name != "SliceDemo" {
		t.Fatalf("name = %q", topo.Name)
	}
	n := topo.Nodes[0]
	if n.CPU != 1 || n.RAM != 256 || n.Disk != 3 {
		t.Fatalf("defaults not applied: %+v", n)
	}
}

func TestTopologyValidate(t *testing.T) {
	valid := Topology{
		Nodes: []Node{{Label: "a"}, {Label: "b"}},
		Links: []Edge{{From: "a", To: "b"}},
	}
	if err := valid.validate(); err != nil {
		t.Fatalf("valid topology rejected: %v", err)
	}

	bad := []Topology{
		{Nodes: []Node{{Label: "a"}}, Links: []Edge{{From: "a", To: "ghost"}}},
		{Nodes: []Node{{Label: "a"}}, Links: []Edge{{From: "ghost", To: "a"}}},
		{Nodes: []Node{{Label: "a"}, {Label: "b"}}, Links: []Edge{{From: "a", To: "a"}}},
		{Nodes: []Node{{Label: "a"}, {Label: "a"}}},
		{Nodes: []Node{{Label: ""}}},
	}
	for i, topo := range bad {
		if err := topo.validate(); err == nil {
			t.Fatalf("case %d: expected validation error", i)
		}
	}
}

func TestTopologyDegrees(t *testing.T) {
	topo := Topology{
		Nodes: []Node{{Label: "a"}, {Label: "b"}, {Label: "c"}, {Label: "lonely"}},
		Links: []Edge{
			{From: "a", To: "b"},
			{From: "a", To: "c"},
			{From: "b", To: "c"},
		},
	}

	deg := topo.degrees()
	for label, want := range map[string]int32{"a": 2, "b": 2, "c": 2} {
		if topo.interfacesFor(label, deg) != want {
			t.Fatalf("interfaces(%s) = %d, want %d", label, topo.interfacesFor(label, deg), want)
		}
	}
	// An isolated node still gets one interface.
	if topo.interfacesFor("lonely", deg) != 1 {
		t.Fatalf("interfaces(lonely) = %d, want 1", topo.interfacesFor("lonely", deg))
	}
}

func TestVlanID(t *testing.T) {
	for k, want := range []int32{100, 200, 300, 400} {
		if got := vlanID(k); got != want {
			t.Fatalf("vlanID(%d) = %d, want %d", k, got, want)
		}
	}
}
