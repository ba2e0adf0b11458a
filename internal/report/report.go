// Package report shapes engine results into the JSON documents returned by
// the CLI and the HTTP API, and renders the same documents as tables.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strconv"

	"github.com/olekukonko/tablewriter"

	"github.com/anstrom/netscope/internal/capture"
	"github.com/anstrom/netscope/internal/discovery"
	"github.com/anstrom/netscope/internal/errors"
	"github.com/anstrom/netscope/internal/portscan"
)

// Report kinds, also used as collector tags.
const (
	KindNetwork = "network"
	KindPorts   = "ports"
	KindCapture = "capture"
)

// DiscoveryReport is the result of a host discovery.
type DiscoveryReport struct {
	Success bool                   `json:"success"`
	LocalIP string                 `json:"local_ip"`
	Devices []discovery.HostResult `json:"devices"`
}

// PortReport is the result of a port scan.
type PortReport struct {
	Success bool                  `json:"success"`
	Target  string                `json:"target"`
	Ports   []portscan.PortResult `json:"ports"`
}

// CaptureReport is the result of a capture analysis.
type CaptureReport struct {
	Success  bool            `json:"success"`
	Summary  capture.Summary `json:"summary"`
	Packets  []capture.Frame `json:"packets"`
	Timeline map[string]int  `json:"timeline"`
}

// ErrorReport is the single document emitted on failure.
type ErrorReport struct {
	Error string `json:"error"`
}

// Discovery builds a discovery report.
func Discovery(localIP string, hosts []discovery.HostResult) DiscoveryReport {
	if hosts == nil {
		hosts = []discovery.HostResult{}
	}
	return DiscoveryReport{Success: true, LocalIP: localIP, Devices: hosts}
}

// Ports builds a port scan report.
func Ports(target string, ports []portscan.PortResult) PortReport {
	if ports == nil {
		ports = []portscan.PortResult{}
	}
	return PortReport{Success: true, Target: target, Ports: ports}
}

// Capture builds a capture analysis report.
func Capture(result *capture.Result) CaptureReport {
	r := CaptureReport{
		Success:  true,
		Summary:  result.Summary,
		Packets:  result.Packets,
		Timeline: result.Timeline,
	}
	if r.Summary.Protocols == nil {
		r.Summary.Protocols = map[string]int{}
	}
	if r.Packets == nil {
		r.Packets = []capture.Frame{}
	}
	if r.Timeline == nil {
		r.Timeline = map[string]int{}
	}
	return r
}

// Error builds an error report from err.
func Error(err error) ErrorReport {
	return ErrorReport{Error: errors.Message(err)}
}

// WriteJSON encodes v as a single line of JSON.
func WriteJSON(w io.Writer, v any) error {
	return json.NewEncoder(w).Encode(v)
}

// WriteTable renders a report as one or more tables. Unknown values fall
// back to JSON.
func WriteTable(w io.Writer, v any) error {
	switch r := v.(type) {
	case DiscoveryReport:
		return discoveryTable(w, r)
	case PortReport:
		return portTable(w, r)
	case CaptureReport:
		return captureTable(w, r)
	case ErrorReport:
		_, err := fmt.Fprintf(w, "Error: %s\n", r.Error)
		return err
	default:
		return WriteJSON(w, v)
	}
}

func discoveryTable(w io.Writer, r DiscoveryReport) error {
	if _, err := fmt.Fprintf(w, "Local IP: %s\n", r.LocalIP); err != nil {
		return err
	}
	table := tablewriter.NewWriter(w)
	table.Header("IP", "Hostname", "Status")
	for _, h := range r.Devices {
		if err := table.Append([]string{h.IP, h.Hostname, h.Status}); err != nil {
			return err
		}
	}
	return table.Render()
}

func portTable(w io.Writer, r PortReport) error {
	if _, err := fmt.Fprintf(w, "Target: %s\n", r.Target); err != nil {
		return err
	}
	table := tablewriter.NewWriter(w)
	table.Header("Port", "Service")
	for _, p := range r.Ports {
		if err := table.Append([]string{strconv.Itoa(p.Port), p.Service}); err != nil {
			return err
		}
	}
	return table.Render()
}

func captureTable(w io.Writer, r CaptureReport) error {
	s := r.Summary
	if _, err := fmt.Fprintf(w, "Packets: %d  Duration: %.3fs\n", s.TotalPackets, s.Duration); err != nil {
		return err
	}

	protocols := tablewriter.NewWriter(w)
	protocols.Header("Protocol", "Packets")
	names := make([]string, 0, len(s.Protocols))
	for name := range s.Protocols {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if err := protocols.Append([]string{name, strconv.Itoa(s.Protocols[name])}); err != nil {
			return err
		}
	}
	if err := protocols.Render(); err != nil {
		return err
	}

	talkers := tablewriter.NewWriter(w)
	talkers.Header("Rank", "Source", "Packets", "Destination", "Packets")
	rows := max(len(s.TopSources), len(s.TopDestinations))
	for i := 0; i < rows; i++ {
		row := []string{strconv.Itoa(i + 1), "", "", "", ""}
		if i < len(s.TopSources) {
			row[1], row[2] = s.TopSources[i].Address, strconv.Itoa(s.TopSources[i].Count)
		}
		if i < len(s.TopDestinations) {
			row[3], row[4] = s.TopDestinations[i].Address, strconv.Itoa(s.TopDestinations[i].Count)
		}
		if err := talkers.Append(row); err != nil {
			return err
		}
	}
	if err := talkers.Render(); err != nil {
		return err
	}

	timeline := tablewriter.NewWriter(w)
	timeline.Header("Second (UTC)", "Packets")
	buckets := make([]string, 0, len(r.Timeline))
	for k := range r.Timeline {
		buckets = append(buckets, k)
	}
	sort.Strings(buckets)
	for _, k := range buckets {
		if err := timeline.Append([]string{k, strconv.Itoa(r.Timeline[k])}); err != nil {
			return err
		}
	}
	return timeline.Render()
}
