package netprobe

import (
	"context"
	"errors"
	"net"
	"strconv"
	"syscall"
	"time"
)

// Dialer opens network connections. *net.Dialer satisfies it.
type Dialer interface {
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}

// PortState is what a TCP connect attempt revealed about a port.
type PortState int

const (
	// PortOpen means the handshake completed.
	PortOpen PortState = iota
	// PortClosed means the host answered with a reset.
	PortClosed
	// PortFiltered means no answer arrived before the deadline.
	PortFiltered
	// PortUnknown covers every other failure.
	PortUnknown
)

func (s PortState) String() string {
	switch s {
	case PortOpen:
		return "open"
	case PortClosed:
		return "closed"
	case PortFiltered:
		return "filtered"
	default:
		return "unknown"
	}
}

// ConnectTCP attempts a full TCP handshake with ip:port bounded by timeout
// and closes the connection straight away.
func ConnectTCP(ctx context.Context, d Dialer, ip string, port int, timeout time.Duration) (PortState, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	conn, err := d.DialContext(ctx, "tcp", net.JoinHostPort(ip, strconv.Itoa(port)))
	if err != nil {
		return ClassifyDialError(err), err
	}
	_ = conn.Close()
	return PortOpen, nil
}

// ClassifyDialError maps a connect error to a port state.
func ClassifyDialError(err error) PortState {
	if err == nil {
		return PortOpen
	}
	if errors.Is(err, syscall.ECONNREFUSED) {
		return PortClosed
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return PortFiltered
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return PortFiltered
	}
	return PortUnknown
}

// localProbeAddr is never contacted; connecting a UDP socket only asks the
// kernel which source address it would route from.
var localProbeAddr = "8.8.8.8:80"

// LocalIPv4 returns the machine's outbound IPv4 address, or 127.0.0.1 when
// no route exists.
func LocalIPv4() string {
	conn, err := net.Dial("udp4", localProbeAddr)
	if err != nil {
		return "127.0.0.1"
	}
	defer conn.Close()

	if addr, ok := conn.LocalAddr().(*net.UDPAddr); ok && addr.IP.To4() != nil {
		return addr.IP.String()
	}
	return "127.0.0.1"
}
