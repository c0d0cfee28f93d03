package jdwp

import (
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/ctagard/jdb-mcp/internal/jdi"
)

// defaultDialTimeout bounds how long a connector waits for the JDWP agent
// socket to come up.
const defaultDialTimeout = 10 * time.Second

// LaunchingConnector starts a target JVM with a JDWP agent and connects to
// it.
type LaunchingConnector struct {
	// JavaPath is the java binary to spawn. Defaults to "java".
	JavaPath string
	// DialTimeout bounds the connect retry loop. Defaults to 10s.
	DialTimeout time.Duration
}

// Launch spawns the target and dials its JDWP agent. With opts.Suspend the
// agent holds the VM before main so event requests can be installed first.
func (l *LaunchingConnector) Launch(ctx context.Context, opts jdi.LaunchOptions) (jdi.VirtualMachine, error) {
	if len(opts.Command) == 0 {
		return nil, fmt.Errorf("launch: empty command line")
	}
	javaPath := l.JavaPath
	if javaPath == "" {
		javaPath = "java"
	}

	port, err := freePort()
	if err != nil {
		return nil, fmt.Errorf("launch: %w", err)
	}
	address := net.JoinHostPort("127.0.0.1", strconv.Itoa(port))

	suspend := "n"
	if opts.Suspend {
		suspend = "y"
	}
	args := []string{
		fmt.Sprintf("-agentlib:jdwp=transport=dt_socket,server=y,suspend=%s,address=%s", suspend, address),
	}
	if len(opts.Classpath) > 0 {
		args = append(args, "-cp", strings.Join(opts.Classpath, string(os.PathListSeparator)))
	}
	args = append(args, opts.VMArgs...)
	args = append(args, opts.Command...)

	//nolint:gosec // G204: launching the debuggee is this connector's purpose
	cmd := exec.CommandContext(ctx, javaPath, args...)
	cmd.Env = os.Environ()
	setProcAttr(cmd)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("launch: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("launch: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("launch %s: %w", javaPath, err)
	}
	proc := &process{cmd: cmd, stdout: stdout, stderr: stderr}

	timeout := l.DialTimeout
	if timeout == 0 {
		timeout = defaultDialTimeout
	}
	conn, err := dialRetry(ctx, address, timeout)
	if err != nil {
		proc.Kill()
		return nil, fmt.Errorf("connecting to launched VM at %s: %w", address, err)
	}
	c, err := Open(conn)
	if err != nil {
		proc.Kill()
		return nil, err
	}
	return newVM(c, proc), nil
}

// Attach delegates to an AttachingConnector with the same dial timeout, so
// one launching connector serves both launch and attach sessions.
func (l *LaunchingConnector) Attach(ctx context.Context, host string, port int) (jdi.VirtualMachine, error) {
	a := &AttachingConnector{DialTimeout: l.DialTimeout}
	return a.Attach(ctx, host, port)
}

// AttachingConnector connects to a JVM already running with a JDWP agent in
// server mode.
type AttachingConnector struct {
	DialTimeout time.Duration
}

// Attach dials the agent at host:port. The attached VM has no process
// handle; its output stays wherever the target writes it.
func (a *AttachingConnector) Attach(ctx context.Context, host string, port int) (jdi.VirtualMachine, error) {
	if host == "" {
		host = "127.0.0.1"
	}
	timeout := a.DialTimeout
	if timeout == 0 {
		timeout = defaultDialTimeout
	}
	address := net.JoinHostPort(host, strconv.Itoa(port))
	d := net.Dialer{Timeout: timeout}
	conn, err := d.DialContext(ctx, "tcp", address)
	if err != nil {
		return nil, fmt.Errorf("attaching to %s: %w", address, err)
	}
	c, err := Open(conn)
	if err != nil {
		return nil, err
	}
	return newVM(c, nil), nil
}

// Launch is not supported on an attaching connector.
func (a *AttachingConnector) Launch(ctx context.Context, opts jdi.LaunchOptions) (jdi.VirtualMachine, error) {
	return nil, fmt.Errorf("attaching connector cannot launch")
}

// dialRetry dials address until it answers or the timeout passes; the agent
// socket takes a moment to come up after the JVM starts.
func dialRetry(ctx context.Context, address string, timeout time.Duration) (net.Conn, error) {
	deadline := time.Now().Add(timeout)
	var lastErr error
	for time.Now().Before(deadline) {
		d := net.Dialer{Timeout: 500 * time.Millisecond}
		conn, err := d.DialContext(ctx, "tcp", address)
		if err == nil {
			return conn, nil
		}
		lastErr = err
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(100 * time.Millisecond):
		}
	}
	return nil, lastErr
}

// freePort finds an available TCP port by binding to port 0.
func freePort() (int, error) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return 0, err
	}
	defer listener.Close()
	addr, ok := listener.Addr().(*net.TCPAddr)
	if !ok {
		return 0, fmt.Errorf("unexpected listener address %T", listener.Addr())
	}
	return addr.Port, nil
}

// process wraps the launched target for the output relays and teardown.
type process struct {
	cmd    *exec.Cmd
	stdout io.Reader
	stderr io.Reader
}

func (p *process) Stdout() io.Reader { return p.stdout }
func (p *process) Stderr() io.Reader { return p.stderr }

func (p *process) Pid() int {
	if p.cmd.Process == nil {
		return 0
	}
	return p.cmd.Process.Pid
}

// Kill terminates the target and its whole process group.
func (p *process) Kill() error {
	return killProcessGroup(p.Pid(), p.cmd)
}
