package portscan

import (
	"context"
	"net"
	"sort"
	"strconv"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/anstrom/netscope/internal/config"
	"github.com/anstrom/netscope/internal/errors"
	metricsmocks "github.com/anstrom/netscope/internal/metrics/mocks"
	"github.com/anstrom/netscope/internal/netprobe/mocks"
)

// fakeDialer answers from a fixed table of open ports.
type fakeDialer struct {
	mu     sync.Mutex
	open   map[int]bool
	hang   map[int]bool
	dialed []int
}

func (d *fakeDialer) DialContext(ctx context.Context, network, address string) (net.Conn, error) {
	_, portStr, _ := net.SplitHostPort(address)
	port, _ := strconv.Atoi(portStr)

	d.mu.Lock()
	d.dialed = append(d.dialed, port)
	d.mu.Unlock()

	if d.hang[port] {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if d.open[port] {
		client, server := net.Pipe()
		server.Close()
		return client, nil
	}
	return nil, &net.OpError{Op: "dial", Net: network, Err: syscall.ECONNREFUSED}
}

func TestScanPortsSortedAndNamed(t *testing.T) {
	dialer := &fakeDialer{open: map[int]bool{443: true, 22: true, 8080: true}}
	engine := NewEngine(dialer, Config{Concurrency: 3})
	engine.services = func(p int) string {
		if p == 8080 {
			return "unknown"
		}
		return map[int]string{22: "ssh", 443: "https"}[p]
	}

	results, err := engine.ScanPorts(context.Background(), "10.0.0.5", []int{8080, 443, 21, 22, 23})
	require.NoError(t, err)
	assert.Equal(t, []PortResult{
		{Port: 22, Service: "ssh"},
		{Port: 443, Service: "https"},
		{Port: 8080, Service: "unknown"},
	}, results)
}

func TestScanPortsDefaultSet(t *testing.T) {
	dialer := &fakeDialer{}
	engine := NewEngine(dialer, Config{})

	results, err := engine.ScanPorts(context.Background(), "10.0.0.5", nil)
	require.NoError(t, err)
	assert.NotNil(t, results)
	assert.Empty(t, results)

	sort.Ints(dialer.dialed)
	expected := append([]int(nil), config.DefaultPorts...)
	sort.Ints(expected)
	assert.Equal(t, expected, dialer.dialed)
	assert.Len(t, dialer.dialed, 20)
}

func TestScanPortsDeduplicates(t *testing.T) {
	dialer := &fakeDialer{open: map[int]bool{80: true}}
	engine := NewEngine(dialer, Config{})

	results, err := engine.ScanPorts(context.Background(), "10.0.0.5", []int{80, 80, 80, 81})
	require.NoError(t, err)
	assert.Len(t, dialer.dialed, 2, "each port must be probed once")
	assert.Equal(t, []PortResult{{Port: 80, Service: "http"}}, results)
}

func TestScanPortsTimeoutsExcluded(t *testing.T) {
	dialer := &fakeDialer{
		open: map[int]bool{22: true},
		hang: map[int]bool{25: true, 110: true},
	}
	engine := NewEngine(dialer, Config{Timeout: 20 * time.Millisecond})

	start := time.Now()
	results, err := engine.ScanPorts(context.Background(), "10.0.0.5", []int{22, 25, 110})
	require.NoError(t, err)
	assert.Less(t, time.Since(start), time.Second)
	require.Len(t, results, 1)
	assert.Equal(t, 22, results[0].Port)
}

func TestScanPortsInvalidInput(t *testing.T) {
	engine := NewEngine(&fakeDialer{}, Config{})

	tests := []struct {
		name   string
		target string
		ports  []int
		code   errors.ErrorCode
	}{
		{"empty target", "", nil, errors.CodeValidation},
		{"hostname", "example.com", nil, errors.CodeTargetInvalid},
		{"ipv6", "::1", nil, errors.CodeTargetInvalid},
		{"port zero", "10.0.0.1", []int{0}, errors.CodeValidation},
		{"port too large", "10.0.0.1", []int{65536}, errors.CodeValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := engine.ScanPorts(context.Background(), tt.target, tt.ports)
			require.Error(t, err)
			assert.Equal(t, tt.code, errors.GetCode(err))
		})
	}
}

func TestScanPortsAgainstLoopback(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	go func() {
		for {
			c, err := ln.Accept()
			if err != nil {
				return
			}
			c.Close()
		}
	}()
	openPort := ln.Addr().(*net.TCPAddr).Port

	closed, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	closedPort := closed.Addr().(*net.TCPAddr).Port
	require.NoError(t, closed.Close())

	engine := NewEngineFromConfig(config.Default().Scanning)
	results, err := engine.ScanPorts(context.Background(), "127.0.0.1", []int{closedPort, openPort})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, openPort, results[0].Port)
	assert.NotEmpty(t, results[0].Service)
}

func TestScanPortsCancellation(t *testing.T) {
	ctrl := gomock.NewController(t)
	dialer := mocks.NewMockDialer(ctrl)

	ctx, cancel := context.WithCancel(context.Background())
	dialer.EXPECT().DialContext(gomock.Any(), "tcp", gomock.Any()).AnyTimes().
		DoAndReturn(func(ctx context.Context, network, address string) (net.Conn, error) {
			cancel()
			<-ctx.Done()
			return nil, ctx.Err()
		})

	engine := NewEngine(dialer, Config{Concurrency: 1, Timeout: time.Second})
	results, err := engine.ScanPorts(ctx, "10.0.0.1", []int{1, 2, 3, 4})
	assert.Nil(t, results)
	assert.True(t, errors.IsCode(err, errors.CodeCanceled))
}

func TestStreamAndMetrics(t *testing.T) {
	ctrl := gomock.NewController(t)
	recorder := metricsmocks.NewMockRecorder(ctrl)
	recorder.EXPECT().AddActiveProbes("tcp", gomock.Any()).AnyTimes()
	recorder.EXPECT().RecordProbe("tcp", "success", gomock.Any()).Times(2)
	recorder.EXPECT().RecordProbe("tcp", "closed", gomock.Any()).Times(1)
	recorder.EXPECT().RecordScan("success", gomock.Any(), 2)

	engine := NewEngine(&fakeDialer{open: map[int]bool{53: true, 3306: true}}, Config{})
	engine.SetRecorder(recorder)

	var streamed []int
	results, err := engine.Stream(context.Background(), "192.168.0.10", []int{3306, 53, 9999},
		func(p PortResult) { streamed = append(streamed, p.Port) })
	require.NoError(t, err)
	assert.Len(t, results, 2)
	assert.ElementsMatch(t, []int{53, 3306}, streamed)
}

func TestParsePorts(t *testing.T) {
	tests := []struct {
		spec    string
		want    []int
		wantErr bool
	}{
		{"22", []int{22}, false},
		{"22,80,443", []int{22, 80, 443}, false},
		{"8000-8003", []int{8000, 8001, 8002, 8003}, false},
		{"80, 22-23 ,80", []int{80, 22, 23}, false},
		{"1,65535", []int{1, 65535}, false},
		{"", nil, true},
		{"0", nil, true},
		{"65536", nil, true},
		{"90-80", nil, true},
		{"http", nil, true},
		{"1-2-3", nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.spec, func(t *testing.T) {
			got, err := ParsePorts(tt.spec)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.IsInvocation(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDefaultPortsCopy(t *testing.T) {
	engine := NewEngine(&fakeDialer{}, Config{})
	ports := engine.DefaultPorts()
	ports[0] = 9
	assert.Equal(t, 21, engine.DefaultPorts()[0])
}
