package transport

import (
	"encoding/binary"
	"errors"
	"time"

	"golang.org/x/sys/unix"

	"github.com/serveez-go/serveez/internal/socket"
)

// udpRecordHeaderLen is the internal send-queue prefix: u32 record_length +
// u32 peer_addr + u16 peer_port (spec.md §4.5). This framing never touches
// the wire; it is purely how outbound packets are queued in Out.
const udpRecordHeaderLen = 4 + 4 + 2

// MaxUDPPayload bounds a single outbound UDP application message (spec.md
// §4.5: "split ... into <= 64 KiB records").
const MaxUDPPayload = 64 * 1024

// UDP implements Transport for datagram sockets.
type UDP struct{}

// NewUDPListener creates a non-blocking UDP socket bound to addr:port
// (spec.md §4.5). A UDP "listener" behaves as a long-lived per-peer channel
// rather than a connection acceptor: received datagrams are appended to In
// with peer fields updated per packet, unless FlagFixedPeer is set.
func NewUDPListener(addr [4]byte, port uint16, device string) (*socket.Socket, error) {
	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_DGRAM, 0)
	if err != nil {
		return nil, err
	}
	if err := unix.SetNonblock(fd, true); err != nil {
		unix.Close(fd)
		return nil, err
	}
	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		unix.Close(fd)
		return nil, err
	}
	bindAddr := addr
	if device != "" {
		if err := bindToDevice(fd, device); err == nil {
			bindAddr = [4]byte{}
		}
	}
	sa := &unix.SockaddrInet4{Port: int(port), Addr: bindAddr}
	if err := unix.Bind(fd, sa); err != nil {
		unix.Close(fd)
		return nil, err
	}

	s := socket.Alloc(nil)
	s.Proto = socket.ProtoUDP
	s.FD = fd
	s.LocalIP = addr
	s.LocalPort = port
	s.Flags |= socket.FlagListening | socket.FlagInitialized
	t := &UDP{}
	s.Transport = t
	s.CB.Read = t.ReadReady
	s.CB.Write = t.WriteReady
	return s, nil
}

// QueueSend appends a length-prefixed outbound record to s.Out: the caller
// (udp_write) has already validated payload <= MaxUDPPayload.
func QueueSend(s *socket.Socket, peerAddr [4]byte, peerPort uint16, payload []byte) bool {
	rec := make([]byte, udpRecordHeaderLen+len(payload))
	binary.BigEndian.PutUint32(rec[0:4], uint32(udpRecordHeaderLen+len(payload)))
	binary.BigEndian.PutUint32(rec[4:8], binary.BigEndian.Uint32(peerAddr[:]))
	binary.BigEndian.PutUint16(rec[8:10], peerPort)
	copy(rec[udpRecordHeaderLen:], payload)
	return s.Write(rec)
}

// WriteUDP splits an application message into <= MaxUDPPayload chunks and
// queues each as a record to peer (spec.md §4.5 udp_write). send_seq is
// bumped once per record and wraps mod 2^16.
func WriteUDP(s *socket.Socket, peerAddr [4]byte, peerPort uint16, msg []byte) bool {
	if len(msg) == 0 {
		ok := QueueSend(s, peerAddr, peerPort, msg)
		s.SendSeq++
		return ok
	}
	ok := true
	for off := 0; off < len(msg); off += MaxUDPPayload {
		end := off + MaxUDPPayload
		if end > len(msg) {
			end = len(msg)
		}
		if !QueueSend(s, peerAddr, peerPort, msg[off:end]) {
			ok = false
		}
		s.SendSeq++
	}
	return ok
}

// WriteReady pops the leading record and sends it via sendto, or send if
// FlagFixedPeer is set, then compacts the buffer (spec.md §4.5).
func (t *UDP) WriteReady(s *socket.Socket) error {
	for s.Out.Fill() >= udpRecordHeaderLen {
		header := s.Out.Bytes()[:udpRecordHeaderLen]
		recLen := int(binary.BigEndian.Uint32(header[0:4]))
		if s.Out.Fill() < recLen {
			return nil // partial record still arriving
		}
		var addrBytes [4]byte
		binary.BigEndian.PutUint32(addrBytes[:], binary.BigEndian.Uint32(header[4:8]))
		port := binary.BigEndian.Uint16(header[8:10])
		payload := s.Out.Bytes()[udpRecordHeaderLen:recLen]

		var err error
		if s.Flags.Has(socket.FlagFixedPeer) {
			_, err = unix.Write(s.FD, payload)
		} else {
			sa := &unix.SockaddrInet4{Port: int(port), Addr: addrBytes}
			err = unix.Sendto(s.FD, payload, 0, sa)
		}
		if err != nil {
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

// ReadReady recvfroms into a scratch area and, for UDP, appends the raw
// payload to In after updating the peer fields (unless FlagFixedPeer is
// set), per spec.md §4.5.
func (t *UDP) ReadReady(s *socket.Socket) error {
	scratch := getScratch(scratchSize)
	defer putScratch(scratch)
	n, from, err := unix.Recvfrom(s.FD, scratch, 0)
	if err != nil {
		if errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EWOULDBLOCK) {
			return nil
		}
		return err
	}
	if !s.Flags.Has(socket.FlagFixedPeer) {
		if in4, ok := from.(*unix.SockaddrInet4); ok {
			s.RemoteIP = in4.Addr
			s.RemotePort = uint16(in4.Port)
		}
	}
	if !s.In.Append(scratch[:n]) {
		if s.CB.Kicked != nil {
			s.CB.Kicked(s, socket.KickOverflow)
		}
		s.ScheduleShutdown()
		return nil
	}
	s.LastRecv = time.Now()
	s.RecvSeq++
	if accountFlood(s, n) {
		return nil
	}
	if s.CB.CheckRequest != nil {
		return s.CB.CheckRequest(s)
	}
	return nil
}

// Close releases the UDP socket's OS handle.
func (t *UDP) Close(s *socket.Socket) error {
	if s.FD < 0 {
		return nil
	}
	err := unix.Close(s.FD)
	s.FD = -1
	return err
}
