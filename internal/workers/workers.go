// Package workers holds the static table of hypervisor workers. Workers
// are reached through a single gateway host on per-worker SSH ports, and
// worker ids are the 1-based positions in the configured table.
package workers

import (
	"fmt"
	"net"
	"strconv"
	"strings"
)

// MaxWorkers is bounded by the VNC port scheme: the worker id is the
// leading digit of a five-digit port.
const MaxWorkers = 9

type Worker struct {
	ID      int
	IP      string
	SSHPort int
}

// Table is an immutable, ordered set of workers.
type Table struct {
	workers []Worker
	byIP    map[string]Worker
}

// Parse builds a worker table from "ip:sshport" entries. Entry i becomes
// worker i+1.
func Parse(entries []string) (Table, error) {
	if len(entries) == 0 {
		return Table{}, fmt.Errorf("worker table is empty")
	}
	if len(entries) > MaxWorkers {
		return Table{}, fmt.Errorf("worker table has %d entries, max is %d", len(entries), MaxWorkers)
	}

	t := Table{byIP: make(map[string]Worker, len(entries))}
	for i, entry := range entries {
		host, portStr, err := net.SplitHostPort(strings.TrimSpace(entry))
		if err != nil {
			return Table{}, fmt.Errorf("invalid worker entry %q: %w", entry, err)
		}
		port, err := strconv.Atoi(portStr)
		if err != nil || port <= 0 {
			return Table{}, fmt.Errorf("invalid worker port in %q", entry)
		}

		w := Worker{ID: i + 1, IP: host, SSHPort: port}
		t.workers = append(t.workers, w)
		t.byIP[host] = w
	}

	return t, nil
}

// Len returns the number of workers.
func (t Table) Len() int {
	return len(t.workers)
}

// All returns the workers in id order.
func (t Table) All() []Worker {
	return t.workers
}

// ByID looks up a worker by its 1-based id.
func (t Table) ByID(id int) (Worker, bool) {
	if id < 1 || id > len(t.workers) {
		return Worker{}, false
	}
	return t.workers[id-1], true
}

// ByIP looks up a worker by its IP address.
func (t Table) ByIP(ip string) (Worker, bool) {
	w, ok := t.byIP[ip]
	return w, ok
}

// RoundRobin maps the i-th VM (0-indexed) to worker (i mod W) + 1.
func (t Table) RoundRobin(i int) Worker {
	return t.workers[i%len(t.workers)]
}
