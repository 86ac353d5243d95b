package workers

import (
	"testing"
)

func TestParse(t *testing.T) {
	table, err := Parse([]string{"10.0.10.2:5801", "10.0.10.3:5811", "10.0.10.4:5821"})
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	if table.Len() != 3 {
		t.Fatalf("expected 3 workers, got %d", table.Len())
	}

	w, ok := table.ByID(2)
	if !ok {
		t.Fatal("worker 2 not found")
	}
	if w.IP != "10.0.10.3" || w.SSHPort != 5811 {
		t.Fatalf("unexpected worker 2: %+v", w)
	}

	w, ok = table.ByIP("10.0.10.4")
	if !ok || w.ID != 3 {
		t.Fatalf("lookup by IP failed: %+v ok=%v", w, ok)
	}

	if _, ok := table.ByID(4); ok {
		t.Fatal("expected lookup of unknown id to fail")
	}
}

func TestParseRejectsBadInput(t *testing.T) {
	if _, err := Parse(nil); err == nil {
		t.Fatal("expected empty table to fail")
	}
	if _, err := Parse([]string{"10.0.10.2"}); err == nil {
		t.Fatal("expected entry without port to fail")
	}

	entries := make([]string, MaxWorkers+1)
	for i := range entries {
		entries[i] = "10.0.10.2:22"
	}
	if _, err := Parse(entries); err == nil {
		t.Fatal("expected oversized table to fail")
	}
}

func TestRoundRobin(t *testing.T) {
	table, err := Parse([]string{"10.0.10.2:5801", "10.0.10.3:5811"})
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	// i-th VM goes to worker (i mod W) + 1
	for i, want := range []int{1, 2, 1, 2, 1} {
		if got := table.RoundRobin(i).ID; got != want {
			t.Fatalf("RoundRobin(%d) = worker %d, want %d", i, got, want)
		}
	}
}
