package probe

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync/atomic"
	"time"

	"golang.org/x/crypto/ssh"
)

var errHostKeySeen = errors.New("host key received")

// SSHDialer checks reachability by running an SSH handshake up to host key
// exchange. No credentials are offered; a server that presents its host key is
// answering.
type SSHDialer struct {
	User    string
	Timeout time.Duration
}

// Reachable dials addr and returns nil once the server has presented a host key.
func (d SSHDialer) Reachable(ctx context.Context, addr string) error {
	timeout := d.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	dialer := net.Dialer{Timeout: timeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("dial %s: %w", addr, err)
	}
	defer conn.Close()
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()
	_ = conn.SetDeadline(time.Now().Add(timeout))

	var seen atomic.Bool
	cfg := &ssh.ClientConfig{
		User: d.User,
		HostKeyCallback: func(string, net.Addr, ssh.PublicKey) error {
			seen.Store(true)
			return errHostKeySeen
		},
		Timeout: timeout,
	}
	client, _, _, err := ssh.NewClientConn(conn, addr, cfg)
	if seen.Load() {
		return nil
	}
	if err == nil {
		_ = client.Close()
		return nil
	}
	return fmt.Errorf("ssh handshake with %s: %w", addr, err)
}
