package netprobe

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os/exec"
	"strconv"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/miekg/dns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/anstrom/netscope/internal/netprobe/mocks"
)

func TestNewPinger(t *testing.T) {
	p, err := NewPinger(MethodICMP, time.Second, true)
	require.NoError(t, err)
	icmp, ok := p.(*ICMPPinger)
	require.True(t, ok)
	assert.True(t, icmp.Privileged)

	p, err = NewPinger(MethodCommand, time.Second, false)
	require.NoError(t, err)
	assert.IsType(t, &CommandPinger{}, p)

	_, err = NewPinger("arp", time.Second, false)
	assert.Error(t, err)
}

func TestPingArgs(t *testing.T) {
	tests := []struct {
		goos    string
		timeout time.Duration
		want    []string
	}{
		{"linux", time.Second, []string{"-c", "1", "-W", "1", "10.0.0.1"}},
		{"linux", 1500 * time.Millisecond, []string{"-c", "1", "-W", "2", "10.0.0.1"}},
		{"linux", 100 * time.Millisecond, []string{"-c", "1", "-W", "1", "10.0.0.1"}},
		{"darwin", 2 * time.Second, []string{"-c", "1", "-t", "2", "10.0.0.1"}},
		{"windows", 750 * time.Millisecond, []string{"-n", "1", "-w", "750", "10.0.0.1"}},
	}

	for _, tt := range tests {
		t.Run(tt.goos+"/"+tt.timeout.String(), func(t *testing.T) {
			assert.Equal(t, tt.want, pingArgs(tt.goos, "10.0.0.1", tt.timeout))
		})
	}
}

func TestCommandPinger(t *testing.T) {
	tests := []struct {
		name      string
		runErr    error
		wantAlive bool
		wantErr   bool
	}{
		{"reply", nil, true, false},
		{"no reply", &exec.ExitError{}, false, false},
		{"binary missing", exec.ErrNotFound, false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var gotName string
			var gotArgs []string
			p := NewCommandPinger(time.Second).WithRunner(func(ctx context.Context, name string, args ...string) error {
				gotName, gotArgs = name, args
				_, hasDeadline := ctx.Deadline()
				assert.True(t, hasDeadline)
				return tt.runErr
			})
			p.goos = "linux"

			alive, err := p.Ping(context.Background(), "192.168.1.7")
			assert.Equal(t, tt.wantAlive, alive)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, "ping", gotName)
			assert.Equal(t, "192.168.1.7", gotArgs[len(gotArgs)-1])
		})
	}
}

func TestConnectTCP(t *testing.T) {
	t.Run("open port", func(t *testing.T) {
		ln, err := net.Listen("tcp", "127.0.0.1:0")
		require.NoError(t, err)
		defer ln.Close()
		go func() {
			for {
				conn, err := ln.Accept()
				if err != nil {
					return
				}
				conn.Close()
			}
		}()

		port := ln.Addr().(*net.TCPAddr).Port
		state, err := ConnectTCP(context.Background(), &net.Dialer{}, "127.0.0.1", port, time.Second)
		require.NoError(t, err)
		assert.Equal(t, PortOpen, state)
	})

	t.Run("closed port", func(t *testing.T) {
		ln, err := net.Listen("tcp", "127.0.0.1:0")
		require.NoError(t, err)
		port := ln.Addr().(*net.TCPAddr).Port
		require.NoError(t, ln.Close())

		state, err := ConnectTCP(context.Background(), &net.Dialer{}, "127.0.0.1", port, time.Second)
		assert.Error(t, err)
		assert.Equal(t, PortClosed, state)
	})

	t.Run("timeout via dialer", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		dialer := mocks.NewMockDialer(ctrl)
		dialer.EXPECT().
			DialContext(gomock.Any(), "tcp", "10.0.0.9:443").
			DoAndReturn(func(ctx context.Context, network, address string) (net.Conn, error) {
				<-ctx.Done()
				return nil, ctx.Err()
			})

		state, err := ConnectTCP(context.Background(), dialer, "10.0.0.9", 443, 20*time.Millisecond)
		assert.ErrorIs(t, err, context.DeadlineExceeded)
		assert.Equal(t, PortFiltered, state)
	})

	t.Run("connection is closed after success", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		dialer := mocks.NewMockDialer(ctrl)
		client, server := net.Pipe()
		defer server.Close()
		dialer.EXPECT().DialContext(gomock.Any(), "tcp", "10.0.0.9:22").Return(client, nil)

		state, err := ConnectTCP(context.Background(), dialer, "10.0.0.9", 22, time.Second)
		require.NoError(t, err)
		assert.Equal(t, PortOpen, state)

		_, err = client.Write([]byte("x"))
		assert.ErrorIs(t, err, io.ErrClosedPipe)
	})
}

type timeoutErr struct{}

func (timeoutErr) Error() string { return "i/o timeout" }

func (timeoutErr) Timeout() bool { return true }

func (timeoutErr) Temporary() bool { return true }

func TestClassifyDialError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want PortState
	}{
		{"nil", nil, PortOpen},
		{"refused", &net.OpError{Op: "dial", Err: syscall.ECONNREFUSED}, PortClosed},
		{"deadline", fmt.Errorf("dial: %w", context.DeadlineExceeded), PortFiltered},
		{"net timeout", &net.OpError{Op: "dial", Err: timeoutErr{}}, PortFiltered},
		{"unreachable", &net.OpError{Op: "dial", Err: syscall.EHOSTUNREACH}, PortUnknown},
		{"other", errors.New("boom"), PortUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ClassifyDialError(tt.err))
		})
	}
}

func TestPortStateString(t *testing.T) {
	assert.Equal(t, "open", PortOpen.String())
	assert.Equal(t, "closed", PortClosed.String())
	assert.Equal(t, "filtered", PortFiltered.String())
	assert.Equal(t, "unknown", PortUnknown.String())
}

func TestLocalIPv4(t *testing.T) {
	ip := LocalIPv4()
	parsed := net.ParseIP(ip)
	require.NotNil(t, parsed, "LocalIPv4 returned %q", ip)
	assert.NotNil(t, parsed.To4())

	original := localProbeAddr
	defer func() { localProbeAddr = original }()
	localProbeAddr = "not-an-address"
	assert.Equal(t, "127.0.0.1", LocalIPv4())
}

func TestParseServices(t *testing.T) {
	db := `
# Network services, Internet style
ftp		21/tcp
ssh		22/tcp				# SSH Remote Login Protocol
ssh		22/udp
domain		53/tcp
domain		53/udp
bootps		67/udp
http		80/tcp		www		# WorldWideWeb HTTP
www-alt		80/tcp
broken		notaport/tcp
toolarge	70000/tcp
`
	got := ParseServices(strings.NewReader(db))
	assert.Equal(t, map[int]string{
		21: "ftp",
		22: "ssh",
		53: "domain",
		80: "http",
	}, got)
}

func TestServiceName(t *testing.T) {
	assert.Equal(t, "ssh", ServiceName(22))
	assert.Equal(t, "http", ServiceName(80))
	assert.Equal(t, UnknownService, ServiceName(0))
}

// startDNSServer runs a PTR responder on a loopback UDP socket.
func startDNSServer(t *testing.T, records map[string]string) string {
	t.Helper()

	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)

	handler := dns.HandlerFunc(func(w dns.ResponseWriter, r *dns.Msg) {
		m := new(dns.Msg)
		m.SetReply(r)
		q := r.Question[0]
		if name, ok := records[q.Name]; ok && q.Qtype == dns.TypePTR {
			m.Answer = append(m.Answer, &dns.PTR{
				Hdr: dns.RR_Header{Name: q.Name, Rrtype: dns.TypePTR, Class: dns.ClassINET, Ttl: 60},
				Ptr: name,
			})
		} else {
			m.Rcode = dns.RcodeNameError
		}
		_ = w.WriteMsg(m)
	})

	started := make(chan struct{})
	server := &dns.Server{PacketConn: pc, Handler: handler, NotifyStartedFunc: func() { close(started) }}
	go func() { _ = server.ActivateAndServe() }()
	<-started
	t.Cleanup(func() { _ = server.Shutdown() })

	return pc.LocalAddr().String()
}

func goResolverVia(addr string) *net.Resolver {
	return &net.Resolver{
		PreferGo: true,
		Dial: func(ctx context.Context, network, _ string) (net.Conn, error) {
			var d net.Dialer
			return d.DialContext(ctx, "udp", addr)
		},
	}
}

func TestDNSResolver(t *testing.T) {
	addr := startDNSServer(t, map[string]string{
		"1.1.168.192.in-addr.arpa.": "router.lan.",
		"9.1.168.192.in-addr.arpa.": "nas.lan.",
	})

	t.Run("direct PTR", func(t *testing.T) {
		r := NewDNSResolver(addr, time.Second)
		assert.Equal(t, []string{addr}, r.Servers())

		name, err := r.LookupPTR(context.Background(), "192.168.1.1")
		require.NoError(t, err)
		assert.Equal(t, "router.lan", name)
	})

	t.Run("server without port gets 53", func(t *testing.T) {
		r := NewDNSResolver("192.0.2.53", time.Second)
		assert.Equal(t, []string{"192.0.2.53:53"}, r.Servers())
	})

	t.Run("fallback resolver", func(t *testing.T) {
		r := NewDNSResolver(addr, time.Second)
		r.servers = nil
		r.fallback = goResolverVia(addr)

		name, err := r.LookupPTR(context.Background(), "192.168.1.9")
		require.NoError(t, err)
		assert.Equal(t, "nas.lan", name)
	})

	t.Run("no record anywhere", func(t *testing.T) {
		r := NewDNSResolver(addr, time.Second)
		r.fallback = goResolverVia(addr)

		_, err := r.LookupPTR(context.Background(), "192.0.2.77")
		assert.Error(t, err)
	})

	t.Run("invalid address", func(t *testing.T) {
		r := NewDNSResolver(addr, time.Second)
		r.fallback = goResolverVia(addr)

		_, err := r.LookupPTR(context.Background(), "not-an-ip")
		assert.Error(t, err)
	})
}

func TestTimeoutSeconds(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want int
	}{
		{0, 1},
		{time.Second, 1},
		{2500 * time.Millisecond, 3},
	}
	for _, tt := range tests {
		assert.Equal(t, strconv.Itoa(tt.want), timeoutSeconds(tt.d))
	}
}
