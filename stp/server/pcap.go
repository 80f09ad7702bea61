// pcap.go
package server

import (
	"github.com/google/gopacket/pcap"
	"github.com/pkg/errors"
	"time"
)

const (
	pcapSnapLen = 65536
	pcapPromisc = false
	pcapTimeout = 50 * time.Millisecond
	// only the bridge group address, TCAs to our own MAC are sent there too
	bpduFilter = "ether dst 01:80:c2:00:00:00"
)

// ErrReadTimeout is returned by ReadFrame when nothing arrived in time
var ErrReadTimeout = errors.New("frame read timeout")

// FrameConn is a raw ethernet endpoint bound to one interface
type FrameConn interface {
	ReadFrame() ([]byte, error)
	WriteFrame(frame []byte) error
	Close() error
}

// Opener opens the frame endpoint of a named interface
type Opener func(ifName string) (FrameConn, error)

type pcapConn struct {
	handle *pcap.Handle
}

// OpenPcap captures inbound BPDUs on ifName
func OpenPcap(ifName string) (FrameConn, error) {
	handle, err := pcap.OpenLive(ifName, pcapSnapLen, pcapPromisc, pcapTimeout)
	if err != nil {
		return nil, errors.Wrapf(err, "opening pcap on %s", ifName)
	}
	if err := handle.SetBPFFilter(bpduFilter); err != nil {
		handle.Close()
		return nil, errors.Wrapf(err, "setting bpf filter on %s", ifName)
	}
	// our own transmissions would otherwise come straight back
	if err := handle.SetDirection(pcap.DirectionIn); err != nil {
		handle.Close()
		return nil, errors.Wrapf(err, "setting capture direction on %s", ifName)
	}
	return &pcapConn{handle: handle}, nil
}

func (c *pcapConn) ReadFrame() ([]byte, error) {
	data, _, err := c.handle.ReadPacketData()
	if err == pcap.NextErrorTimeoutExpired {
		return nil, ErrReadTimeout
	}
	return data, err
}

func (c *pcapConn) WriteFrame(frame []byte) error {
	return c.handle.WritePacketData(frame)
}

func (c *pcapConn) Close() error {
	c.handle.Close()
	return nil
}
