// Package remote runs VM provisioning commands on hypervisor workers
// over SSH. All workers are reached through a single gateway host on
// per-worker ports.
package remote

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/avast/retry-go"
	"golang.org/x/crypto/ssh"
)

// successMarker is printed by the provisioning script when the VM came
// up cleanly.
const successMarker = "creada correctamente"

// Config holds the SSH settings shared by all executor calls.
type Config struct {
	Gateway        string
	User           string
	Password       string
	ConnectTimeout time.Duration
	ScriptPath     string
}

// VMRequest describes one VM to provision on a worker.
type VMRequest struct {
	WorkerPort int
	Name       string
	Bridge     string
	VLANs      []int
	VNCPort    int
	CPU        int
	RAMMB      int
	DiskGB     int
	Interfaces int
	ImagePath  string
}

// Result is the outcome of one provisioning attempt. Failures are data,
// not errors: the executor never propagates SSH or script failures.
type Result struct {
	WorkerPort int    `json:"worker_port"`
	VMName     string `json:"vm_name"`
	Stdout     string `json:"stdout"`
	Stderr     string `json:"stderr"`
	Success    bool   `json:"success"`
	PID        *int   `json:"pid"`
	VLANs      []int  `json:"vlans"`
}

// Executor provisions and tears down VMs over SSH.
type Executor struct {
	logger *slog.Logger
	config Config
}

func NewExecutor(cfg Config, logger *slog.Logger) *Executor {
	return &Executor{logger: logger, config: cfg}
}

// CreateVMMultiVLAN runs the multi-interface provisioning script on the
// worker behind the given gateway port. One tap interface is created
// per VLAN; an empty VLAN list provisions a single unattached
// interface.
func (e *Executor) CreateVMMultiVLAN(ctx context.Context, req VMRequest) Result {
	result := Result{WorkerPort: req.WorkerPort, VMName: req.Name, VLANs: req.VLANs}

	vlans := "0"
	if len(req.VLANs) > 0 {
		parts := make([]string, len(req.VLANs))
		for i, v := range req.VLANs {
			parts[i] = strconv.Itoa(v)
		}
		vlans = strings.Join(parts, ",")
	}

	cmd := fmt.Sprintf("%s %s %s '%s' %d %d %d %d %d %s",
		e.config.ScriptPath, req.Name, req.Bridge, vlans,
		req.VNCPort, req.CPU, req.RAMMB, req.DiskGB, req.Interfaces, req.ImagePath)

	e.logger.Info("Creating VM on worker",
		"vm", req.Name,
		"worker_port", req.WorkerPort,
		"vlans", vlans,
		"vnc_port", req.VNCPort,
	)

	out, err := e.execSudo(ctx, req.WorkerPort, cmd)
	result.Stdout = out.stdout
	result.Stderr = out.stderr
	if err != nil {
		e.logger.Error("VM creation failed", "vm", req.Name, "error", err)
		return result
	}

	result.PID = parsePID(out.stdout)
	result.Success = commandSucceeded(out)
	if !result.Success {
		result.PID = nil
		e.logger.Warn("VM creation script reported failure",
			"vm", req.Name,
			"stderr", strings.TrimSpace(out.stderr),
		)
	}

	return result
}

// commandSucceeded reports whether the provisioning script came up
// cleanly: a zero exit with either a silent stderr or the script's
// success marker on stdout.
func commandSucceeded(out execResult) bool {
	if !out.exitOK {
		return false
	}
	return out.stderr == "" || strings.Contains(out.stdout, successMarker)
}

// Teardown kills the VM's hypervisor process and removes its OvS ports
// and tap interfaces. Best effort: every step is allowed to fail.
func (e *Executor) Teardown(ctx context.Context, workerPort int, vmName, bridge string) {
	commands := []string{
		fmt.Sprintf("pkill -f 'qemu-system-x86_64.*-name %s '", vmName),
		fmt.Sprintf("for p in $(ovs-vsctl list-ports %s | grep '^%s-'); do ovs-vsctl --if-exists del-port %s $p; ip link del $p 2>/dev/null; done",
			bridge, vmName, bridge),
	}

	for _, cmd := range commands {
		if out, err := e.execSudo(ctx, workerPort, cmd); err != nil {
			e.logger.Warn("Teardown command failed",
				"vm", vmName,
				"worker_port", workerPort,
				"error", err,
			)
		} else if out.stderr != "" {
			e.logger.Debug("Teardown command stderr", "vm", vmName, "stderr", strings.TrimSpace(out.stderr))
		}
	}
}

// execResult is the captured output of one remote command.
type execResult struct {
	stdout string
	stderr string
	exitOK bool
}

// execSudo dials the worker and runs one command under sudo, feeding
// the password on stdin. The session is always closed. Transport
// failures return an error; a non-zero exit is recorded in exitOK.
func (e *Executor) execSudo(ctx context.Context, workerPort int, cmd string) (execResult, error) {
	sshConfig := &ssh.ClientConfig{
		User: e.config.User,
		Auth: []ssh.AuthMethod{
			ssh.Password(e.config.Password),
		},
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         e.config.ConnectTimeout,
	}

	addr := fmt.Sprintf("%s:%d", e.config.Gateway, workerPort)

	var client *ssh.Client
	err := retry.Do(
		func() error {
			var dialErr error
			client, dialErr = ssh.Dial("tcp", addr, sshConfig)
			return dialErr
		},
		retry.Attempts(3),
		retry.Delay(time.Second),
		retry.Context(ctx),
		retry.LastErrorOnly(true),
	)
	if err != nil {
		return execResult{}, fmt.Errorf("failed to dial worker %s: %w", addr, err)
	}
	defer client.Close()

	session, err := client.NewSession()
	if err != nil {
		return execResult{}, fmt.Errorf("failed to open session on %s: %w", addr, err)
	}
	defer session.Close()

	var stdout, stderr bytes.Buffer
	session.Stdout = &stdout
	session.Stderr = &stderr
	session.Stdin = strings.NewReader(e.config.Password + "\n")

	// Run errors (non-zero exit) still leave useful output behind, so
	// they are not returned as hard failures.
	out := execResult{exitOK: true}
	if err := session.Run("sudo -S " + cmd); err != nil {
		out.exitOK = false
		e.logger.Debug("Remote command exited with error", "addr", addr, "error", err)
	}

	out.stdout = stdout.String()
	out.stderr = stripSudoPrompt(stderr.String())
	return out, nil
}

// stripSudoPrompt drops the password prompt sudo -S writes to stderr so
// it does not count as a script failure.
func stripSudoPrompt(stderr string) string {
	var kept []string
	for _, line := range strings.Split(stderr, "\n") {
		if strings.HasPrefix(line, "[sudo]") || strings.TrimSpace(line) == "" {
			continue
		}
		kept = append(kept, line)
	}
	return strings.Join(kept, "\n")
}

// parsePID extracts the hypervisor PID from script output. The script
// prints a line containing "PID" whose last field is the pid, possibly
// wrapped in parentheses.
func parsePID(stdout string) *int {
	for _, line := range strings.Split(stdout, "\n") {
		if !strings.Contains(line, "PID") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		last := strings.Trim(fields[len(fields)-1], "()")
		if pid, err := strconv.Atoi(last); err == nil {
			return &pid
		}
	}
	return nil
}
