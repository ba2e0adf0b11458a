// Package netprobe holds the transport primitives the engines build on:
// ICMP and command based liveness checks, TCP connects, reverse DNS and
// the port to service name table.
package netprobe

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os/exec"
	"runtime"
	"strconv"
	"time"

	probing "github.com/prometheus-community/pro-bing"
)

//go:generate mockgen -destination=mocks/mock_netprobe.go -package=mocks github.com/anstrom/netscope/internal/netprobe Pinger,Resolver,Dialer

// Ping methods.
const (
	MethodCommand = "command"
	MethodICMP    = "icmp"
)

// Pinger checks whether a host answers an echo request.
type Pinger interface {
	// Ping sends one echo request. It returns false with a nil error when the
	// host did not reply in time, and an error when the probe itself failed.
	Ping(ctx context.Context, ip string) (bool, error)
}

// NewPinger returns the pinger for the named method.
func NewPinger(method string, timeout time.Duration, privileged bool) (Pinger, error) {
	switch method {
	case MethodICMP:
		return &ICMPPinger{Timeout: timeout, Privileged: privileged}, nil
	case MethodCommand, "":
		return NewCommandPinger(timeout), nil
	default:
		return nil, fmt.Errorf("unknown ping method %q", method)
	}
}

// ICMPPinger sends a single echo request from within the process.
type ICMPPinger struct {
	Timeout time.Duration
	// Privileged selects raw sockets over unprivileged datagram sockets.
	Privileged bool
}

// Ping implements Pinger.
func (p *ICMPPinger) Ping(ctx context.Context, ip string) (bool, error) {
	pinger, err := probing.NewPinger(ip)
	if err != nil {
		return false, err
	}

	pinger.SetPrivileged(p.Privileged)
	pinger.Count = 1
	pinger.Timeout = p.Timeout

	if err := pinger.RunWithContext(ctx); err != nil {
		return false, err
	}

	return pinger.Statistics().PacketsRecv > 0, nil
}

// CommandRunner runs an external command and reports its exit status.
type CommandRunner func(ctx context.Context, name string, args ...string) error

// CommandPinger shells out to the system ping binary, which needs no
// special socket privileges.
type CommandPinger struct {
	Timeout time.Duration
	run     CommandRunner
	goos    string
}

// NewCommandPinger creates a pinger backed by the system ping command.
func NewCommandPinger(timeout time.Duration) *CommandPinger {
	return &CommandPinger{
		Timeout: timeout,
		run:     runCommand,
		goos:    runtime.GOOS,
	}
}

// WithRunner replaces the command runner. Used by tests.
func (p *CommandPinger) WithRunner(run CommandRunner) *CommandPinger {
	p.run = run
	return p
}

// Ping implements Pinger. A zero exit status means the host replied.
func (p *CommandPinger) Ping(ctx context.Context, ip string) (bool, error) {
	// Bound the process even if ping ignores its own timeout flag.
	ctx, cancel := context.WithTimeout(ctx, p.Timeout+time.Second)
	defer cancel()

	err := p.run(ctx, "ping", pingArgs(p.goos, ip, p.Timeout)...)
	if err == nil {
		return true, nil
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return false, nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return false, ctxErr
	}
	return false, err
}

func pingArgs(goos, ip string, timeout time.Duration) []string {
	switch goos {
	case "windows":
		return []string{"-n", "1", "-w", strconv.FormatInt(timeout.Milliseconds(), 10), ip}
	case "darwin", "freebsd", "openbsd", "netbsd":
		return []string{"-c", "1", "-t", timeoutSeconds(timeout), ip}
	default:
		return []string{"-c", "1", "-W", timeoutSeconds(timeout), ip}
	}
}

// timeoutSeconds rounds up to whole seconds, minimum one.
func timeoutSeconds(d time.Duration) string {
	secs := int(math.Ceil(d.Seconds()))
	if secs < 1 {
		secs = 1
	}
	return strconv.Itoa(secs)
}

func runCommand(ctx context.Context, name string, args ...string) error {
	return exec.CommandContext(ctx, name, args...).Run()
}
