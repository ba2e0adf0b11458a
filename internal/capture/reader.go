package capture

import (
	"bufio"
	"bytes"
	"fmt"
	"io"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"

	"github.com/anstrom/netscope/internal/errors"
)

// pcapngMagic is the block type of a pcapng section header. It reads the
// same in both byte orders.
var pcapngMagic = []byte{0x0a, 0x0d, 0x0d, 0x0a}

// decodableLinkTypes are the link layers gopacket can walk down to IPv4.
var decodableLinkTypes = map[layers.LinkType]bool{
	layers.LinkTypeNull:           true,
	layers.LinkTypeEthernet:       true,
	layers.LinkTypePPP:            true,
	layers.LinkTypeRaw:            true,
	layers.LinkTypeLoop:           true,
	layers.LinkTypeIEEE802_11:     true,
	layers.LinkTypeLinuxSLL:       true,
	layers.LinkTypeIEEE80211Radio: true,
	layers.LinkTypeIPv4:           true,
}

// frameSource yields raw records from a capture container.
type frameSource interface {
	ReadPacketData() ([]byte, gopacket.CaptureInfo, error)
	// linkType is the link layer of the record described by ci.
	linkType(ci gopacket.CaptureInfo) (layers.LinkType, error)
}

// Format names the container a capture was read from.
type Format string

const (
	FormatPcap   Format = "pcap"
	FormatPcapNG Format = "pcapng"
)

type pcapSource struct {
	*pcapgo.Reader
}

func (s pcapSource) linkType(gopacket.CaptureInfo) (layers.LinkType, error) {
	return s.LinkType(), nil
}

// ngSource resolves the link type per record since every pcapng interface
// carries its own.
type ngSource struct {
	*pcapgo.NgReader
}

func (s ngSource) linkType(ci gopacket.CaptureInfo) (layers.LinkType, error) {
	iface, err := s.Interface(ci.InterfaceIndex)
	if err != nil {
		return 0, err
	}
	return iface.LinkType, nil
}

// openSource sniffs the container magic and returns the matching reader.
func openSource(r io.Reader) (frameSource, Format, error) {
	br := bufio.NewReader(r)

	magic, err := br.Peek(len(pcapngMagic))
	if err != nil {
		return nil, "", errors.ErrCaptureParse("", fmt.Errorf("reading capture header: %w", err))
	}

	if bytes.Equal(magic, pcapngMagic) {
		ng, err := pcapgo.NewNgReader(br, pcapgo.DefaultNgReaderOptions)
		if err != nil {
			return nil, "", errors.ErrCaptureParse("", err)
		}
		return ngSource{ng}, FormatPcapNG, nil
	}

	pr, err := pcapgo.NewReader(br)
	if err != nil {
		return nil, "", errors.ErrCaptureParse("", err)
	}
	if err := checkLinkType(pr.LinkType()); err != nil {
		return nil, "", err
	}
	return pcapSource{pr}, FormatPcap, nil
}

func checkLinkType(lt layers.LinkType) error {
	if !decodableLinkTypes[lt] {
		return errors.ErrCaptureUnsupported("", lt.String())
	}
	return nil
}
