package monitoring

import (
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"time"

	"golang.org/x/crypto/ssh"
)

// Tunnel forwards a local TCP listener to a port on a remote host over
// SSH. It stands in front of the Prometheus endpoint, which is only
// reachable from inside the cluster network.
type Tunnel struct {
	logger *slog.Logger

	client   *ssh.Client
	listener net.Listener

	remoteAddr string

	mu     sync.Mutex
	closed bool
}

type TunnelConfig struct {
	Host           string
	Port           int
	User           string
	Password       string
	RemotePort     int
	LocalBindAddr  string
	ConnectTimeout time.Duration
}

// StartTunnel dials the SSH endpoint and begins forwarding connections
// from the local bind address to the remote port.
func StartTunnel(cfg TunnelConfig, logger *slog.Logger) (*Tunnel, error) {
	sshConfig := &ssh.ClientConfig{
		User: cfg.User,
		Auth: []ssh.AuthMethod{
			ssh.Password(cfg.Password),
		},
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         cfg.ConnectTimeout,
	}

	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	client, err := ssh.Dial("tcp", addr, sshConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to dial ssh endpoint %s: %w", addr, err)
	}

	listener, err := net.Listen("tcp", cfg.LocalBindAddr)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to bind local tunnel address %s: %w", cfg.LocalBindAddr, err)
	}

	t := &Tunnel{
		logger:     logger,
		client:     client,
		listener:   listener,
		remoteAddr: fmt.Sprintf("127.0.0.1:%d", cfg.RemotePort),
	}

	go t.accept()

	logger.Info("SSH tunnel established",
		"ssh_endpoint", addr,
		"local_addr", listener.Addr().String(),
		"remote_port", cfg.RemotePort,
	)

	return t, nil
}

// Addr returns the local address the tunnel listens on.
func (t *Tunnel) Addr() string {
	return t.listener.Addr().String()
}

// URL returns the local HTTP base URL for the forwarded endpoint.
func (t *Tunnel) URL() string {
	return "http://" + t.Addr()
}

func (t *Tunnel) accept() {
	for {
		conn, err := t.listener.Accept()
		if err != nil {
			t.mu.Lock()
			closed := t.closed
			t.mu.Unlock()
			if !closed {
				t.logger.Error("Tunnel accept failed", "error", err)
			}
			return
		}
		go t.forward(conn)
	}
}

func (t *Tunnel) forward(local net.Conn) {
	defer local.Close()

	remote, err := t.client.Dial("tcp", t.remoteAddr)
	if err != nil {
		t.logger.Error("Tunnel dial to remote failed", "remote", t.remoteAddr, "error", err)
		return
	}
	defer remote.Close()

	done := make(chan struct{}, 2)
	go func() {
		io.Copy(remote, local)
		done <- struct{}{}
	}()
	go func() {
		io.Copy(local, remote)
		done <- struct{}{}
	}()
	<-done
}

// Close tears the tunnel down. Safe to call more than once.
func (t *Tunnel) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	t.mu.Unlock()

	t.listener.Close()
	return t.client.Close()
}
