package transport

import (
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"time"

	"golang.org/x/sys/unix"

	"github.com/serveez-go/serveez/internal/socket"
)

// ICMPAppType is the Serveez application-framed ICMP type (spec.md §4.5,
// §6). Any other ICMP type on a Serveez raw socket is rejected.
const ICMPAppType = 42

// ICMP application codes (spec.md §4.5).
type ICMPCode uint8

const (
	ICMPData    ICMPCode = 0
	ICMPReq     ICMPCode = 1
	ICMPAck     ICMPCode = 2
	ICMPClose   ICMPCode = 3
	ICMPConnect ICMPCode = 4
)

// icmpHeaderLen is the 10-byte application header: type, code, checksum,
// ident, sequence, port (spec.md §4.5/§6).
const icmpHeaderLen = 10

// ICMPHeader is the decoded application-level ICMP header. Port is kept
// distinct from the socket's own id per spec.md §9 open question (b): it is
// purely the demultiplex key for virtual ICMP connections sharing one raw
// socket, never a local identifier.
type ICMPHeader struct {
	Type     uint8
	Code     ICMPCode
	Checksum uint16
	Ident    uint16
	Sequence uint16
	Port     uint16
}

// EncodeICMPHeader writes hdr followed by payload into a fresh byte slice,
// computing the checksum over payload only (spec.md §4.5: "checksum ...
// over the payload (not the header)").
func EncodeICMPHeader(hdr ICMPHeader, payload []byte) []byte {
	buf := make([]byte, icmpHeaderLen+len(payload))
	buf[0] = hdr.Type
	buf[1] = uint8(hdr.Code)
	binary.BigEndian.PutUint16(buf[2:4], Checksum16(payload))
	binary.BigEndian.PutUint16(buf[4:6], hdr.Ident)
	binary.BigEndian.PutUint16(buf[6:8], hdr.Sequence)
	binary.BigEndian.PutUint16(buf[8:10], hdr.Port)
	copy(buf[icmpHeaderLen:], payload)
	return buf
}

// DecodeICMPHeader parses the 10-byte application header from buf and
// returns the header plus the remaining payload slice.
func DecodeICMPHeader(buf []byte) (ICMPHeader, []byte, error) {
	if len(buf) < icmpHeaderLen {
		return ICMPHeader{}, nil, fmt.Errorf("icmp: short application header (%d bytes)", len(buf))
	}
	h := ICMPHeader{
		Type:     buf[0],
		Code:     ICMPCode(buf[1]),
		Checksum: binary.BigEndian.Uint16(buf[2:4]),
		Ident:    binary.BigEndian.Uint16(buf[4:6]),
		Sequence: binary.BigEndian.Uint16(buf[6:8]),
		Port:     binary.BigEndian.Uint16(buf[8:10]),
	}
	return h, buf[icmpHeaderLen:], nil
}

// LocalIdent computes the (pid + sock.id) mod 2^16 identifier used to
// reject packets this process itself sent (spec.md §4.5).
func LocalIdent(sockID uint16) uint16 {
	return uint16((os.Getpid() + int(sockID)) & 0xFFFF)
}

// ipv4Header is the subset of the IPv4 header needed for the sanity checks
// spec.md §4.5 requires before looking at the application header.
type ipv4Header struct {
	version    int
	ihl        int // header length in bytes
	totalLen   int
	protocol   int
	headerSpan []byte
}

func parseIPv4Header(buf []byte) (ipv4Header, []byte, error) {
	if len(buf) < 20 {
		return ipv4Header{}, nil, errors.New("icmp: packet shorter than minimum IPv4 header")
	}
	version := int(buf[0] >> 4)
	ihl := int(buf[0]&0x0F) * 4
	totalLen := int(binary.BigEndian.Uint16(buf[2:4]))
	protocol := int(buf[9])

	if version != 4 {
		return ipv4Header{}, nil, fmt.Errorf("icmp: unsupported IP version %d", version)
	}
	if ihl < 20 || ihl > len(buf) {
		return ipv4Header{}, nil, fmt.Errorf("icmp: invalid header length %d", ihl)
	}
	if totalLen > len(buf) {
		return ipv4Header{}, nil, fmt.Errorf("icmp: total length %d exceeds received %d", totalLen, len(buf))
	}
	if protocol != unix.IPPROTO_ICMP {
		return ipv4Header{}, nil, fmt.Errorf("icmp: unexpected protocol %d", protocol)
	}
	if Checksum16(buf[:ihl]) != 0 {
		return ipv4Header{}, nil, errors.New("icmp: header checksum mismatch")
	}

	h := ipv4Header{version: version, ihl: ihl, totalLen: totalLen, protocol: protocol, headerSpan: buf[:ihl]}
	return h, buf[ihl:totalLen], nil
}

// ICMP implements Transport for raw ICMP application-framed sockets.
// ListenerPort is the demux port tag for an ICMP "listener" socket (the one
// bound for accepting new virtual peers); accepted virtual connections carry
// their own RemotePort and are matched against it.
type ICMP struct {
	ListenerPort uint16
	IsListener   bool
}

// NewICMPSocket opens a raw ICMP socket (CAP_NET_RAW required, as in
// malbeclabs-doublezero's uping) and wires the default read/write callbacks.
func NewICMPSocket(portTag uint16, isListener bool) (*socket.Socket, error) {
	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_RAW, unix.IPPROTO_ICMP)
	if err != nil {
		return nil, err
	}
	if err := unix.SetNonblock(fd, true); err != nil {
		unix.Close(fd)
		return nil, err
	}

	s := socket.Alloc(nil)
	s.Proto = socket.ProtoICMP
	s.FD = fd
	s.Flags |= socket.FlagRawSocket | socket.FlagInitialized
	if isListener {
		s.Flags |= socket.FlagListening
	}
	t := &ICMP{ListenerPort: portTag, IsListener: isListener}
	s.Transport = t
	s.CB.Read = t.ReadReady
	s.CB.Write = t.WriteReady
	return s, nil
}

// ErrVirtualClose is returned by ReadReady when a code=close packet arrives;
// callers schedule shutdown of that single virtual connection, not the
// listener (spec.md §4.5, end-to-end scenario 5).
var ErrVirtualClose = errors.New("icmp: virtual connection closed by peer")

// ReadReady receives one datagram, validates the IP header then the
// application header in the order spec.md §4.5 specifies, and on success
// appends only the payload to In.
func (t *ICMP) ReadReady(s *socket.Socket) error {
	scratch := getScratch(scratchSize)
	defer putScratch(scratch)
	n, from, err := unix.Recvfrom(s.FD, scratch, 0)
	if err != nil {
		if errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EWOULDBLOCK) {
			return nil
		}
		return err
	}

	_, icmpBuf, err := parseIPv4Header(scratch[:n])
	if err != nil {
		return nil // malformed IP header: silently drop, not fatal to the socket
	}
	if len(icmpBuf) < icmpHeaderLen {
		return nil
	}
	if icmpBuf[0] != ICMPAppType {
		return nil // not a Serveez-framed packet; ignore
	}

	hdr, payload, err := DecodeICMPHeader(icmpBuf)
	if err != nil {
		return nil
	}
	if Checksum16(payload) != hdr.Checksum {
		return nil
	}
	if hdr.Ident == LocalIdent(s.ID) {
		return nil // our own packet, looped back
	}
	if !t.IsListener && hdr.Port != s.RemotePort {
		return nil
	}

	if in4, ok := from.(*unix.SockaddrInet4); ok {
		s.RemoteIP = in4.Addr
	}

	switch hdr.Code {
	case ICMPConnect:
		// Listener accepts and logs; caller (binding layer) is responsible
		// for allocating the per-peer virtual socket.
		return nil
	case ICMPClose:
		return ErrVirtualClose
	}

	if !s.In.Append(payload) {
		if s.CB.Kicked != nil {
			s.CB.Kicked(s, socket.KickOverflow)
		}
		s.ScheduleShutdown()
		return nil
	}
	s.LastRecv = time.Now()
	s.RecvSeq++
	if accountFlood(s, len(payload)) {
		return nil
	}
	if s.CB.CheckRequest != nil {
		return s.CB.CheckRequest(s)
	}
	return nil
}

// WriteReady pops the leading record (same framing as UDP, spec.md §4.5)
// and sends it as an application-framed ICMP datagram.
func (t *ICMP) WriteReady(s *socket.Socket) error {
	for s.Out.Fill() >= udpRecordHeaderLen {
		header := s.Out.Bytes()[:udpRecordHeaderLen]
		recLen := int(binary.BigEndian.Uint32(header[0:4]))
		if s.Out.Fill() < recLen {
			return nil
		}
		var addrBytes [4]byte
		binary.BigEndian.PutUint32(addrBytes[:], binary.BigEndian.Uint32(header[4:8]))
		port := binary.BigEndian.Uint16(header[8:10])
		payload := s.Out.Bytes()[udpRecordHeaderLen:recLen]

		s.SendSeq++
		frame := EncodeICMPHeader(ICMPHeader{
			Type:     ICMPAppType,
			Code:     ICMPData,
			Ident:    LocalIdent(s.ID),
			Sequence: s.SendSeq,
			Port:     port,
		}, payload)

		sa := &unix.SockaddrInet4{Addr: addrBytes}
		if err := unix.Sendto(s.FD, frame, 0, sa); err != nil {
			if errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EWOULDBLOCK) {
				s.UnavailableUntil = time.Now().Add(1 * time.Second)
				return nil
			}
			return err
		}
		if rerr := s.Out.Reduce(recLen); rerr != nil {
			return rerr
		}
		s.LastSend = time.Now()
	}
	return nil
}

// WriteICMP queues an application payload addressed to peer:port, splitting
// at MaxUDPPayload as udp_write/icmp_write do (spec.md §4.5).
func WriteICMP(s *socket.Socket, peerAddr [4]byte, port uint16, msg []byte) bool {
	return WriteUDP(s, peerAddr, port, msg)
}

// Close releases the ICMP socket's OS handle.
func (t *ICMP) Close(s *socket.Socket) error {
	if s.FD < 0 {
		return nil
	}
	err := unix.Close(s.FD)
	s.FD = -1
	return err
}
