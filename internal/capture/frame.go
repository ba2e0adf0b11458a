package capture

import (
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
)

// Protocol labels.
const (
	ProtocolTCP   = "TCP"
	ProtocolUDP   = "UDP"
	ProtocolICMP  = "ICMP"
	ProtocolOther = "Other"
)

// TimelineLayout renders a one-second timeline bucket.
const TimelineLayout = "2006-01-02 15:04:05"

// Frame is one IPv4 frame echoed back in the report preview.
type Frame struct {
	Time        float64 `json:"time"`
	Source      string  `json:"source"`
	Destination string  `json:"destination"`
	Protocol    string  `json:"protocol"`
	Length      int     `json:"length"`
	Info        string  `json:"info"`
}

// Classify maps an IPv4 protocol number to its label.
func Classify(proto layers.IPProtocol) string {
	switch proto {
	case layers.IPProtocolTCP:
		return ProtocolTCP
	case layers.IPProtocolUDP:
		return ProtocolUDP
	case layers.IPProtocolICMPv4:
		return ProtocolICMP
	default:
		return ProtocolOther
	}
}

// epochSeconds converts a capture timestamp to fractional Unix seconds.
func epochSeconds(ts time.Time) float64 {
	return float64(ts.UnixNano()) / float64(time.Second)
}

// bucketKey is the UTC second a timestamp falls into.
func bucketKey(ts time.Time) string {
	return ts.UTC().Truncate(time.Second).Format(TimelineLayout)
}

// newFrame builds the report view of a decoded packet.
func newFrame(packet gopacket.Packet, ip *layers.IPv4, ci gopacket.CaptureInfo) Frame {
	// Bytes present in the file, matching the bytes that were decoded.
	length := ci.CaptureLength
	if length == 0 {
		length = len(packet.Data())
	}

	return Frame{
		Time:        epochSeconds(ci.Timestamp),
		Source:      ip.SrcIP.String(),
		Destination: ip.DstIP.String(),
		Protocol:    Classify(ip.Protocol),
		Length:      length,
		Info:        describe(packet, ip),
	}
}

// describe renders a one-line summary such as
// "Ethernet / IPv4 / TCP 10.0.0.1:51514 > 10.0.0.2:80 S / Payload".
func describe(packet gopacket.Packet, ip *layers.IPv4) string {
	var parts []string
	for _, layer := range packet.Layers() {
		switch l := layer.(type) {
		case *layers.TCP:
			s := fmt.Sprintf("TCP %s > %s",
				hostPort(ip.SrcIP, uint16(l.SrcPort)),
				hostPort(ip.DstIP, uint16(l.DstPort)))
			if flags := tcpFlags(l); flags != "" {
				s += " " + flags
			}
			parts = append(parts, s)
		case *layers.UDP:
			parts = append(parts, fmt.Sprintf("UDP %s > %s",
				hostPort(ip.SrcIP, uint16(l.SrcPort)),
				hostPort(ip.DstIP, uint16(l.DstPort))))
		case *layers.ICMPv4:
			parts = append(parts, "ICMP "+l.TypeCode.String())
		case *gopacket.DecodeFailure:
			// undecodable tail, the IPv4 header is what counts
		default:
			parts = append(parts, layer.LayerType().String())
		}
	}
	return strings.Join(parts, " / ")
}

func hostPort(ip net.IP, port uint16) string {
	return net.JoinHostPort(ip.String(), strconv.Itoa(int(port)))
}

func tcpFlags(t *layers.TCP) string {
	var b strings.Builder
	for _, f := range []struct {
		set  bool
		code byte
	}{
		{t.FIN, 'F'}, {t.SYN, 'S'}, {t.RST, 'R'}, {t.PSH, 'P'},
		{t.ACK, 'A'}, {t.URG, 'U'}, {t.ECE, 'E'}, {t.CWR, 'C'},
	} {
		if f.set {
			b.WriteByte(f.code)
		}
	}
	return b.String()
}
