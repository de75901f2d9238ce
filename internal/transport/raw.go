package transport

import (
	"errors"
	"time"

	"golang.org/x/sys/unix"

	"github.com/serveez-go/serveez/internal/socket"
)

// RAW implements Transport for IP_HDRINCL raw sockets (spec.md §4.5 "raw IP
// sockets"): the caller supplies the full IP header on send, and receives
// the full IP header back on read. Unlike ICMP there is no Serveez
// application framing layered on top; RAW is the thinnest transport and
// exists for protocols the framework does not itself interpret.
type RAW struct {
	Protocol int
}

// NewRawSocket opens an IP_HDRINCL raw socket for the given IP protocol
// number (CAP_NET_RAW required), matching the socket construction style of
// ListenTCP/NewUDPListener.
func NewRawSocket(protocol int) (*socket.Socket, error) {
	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_RAW, protocol)
	if err != nil {
		return nil, err
	}
	if err := unix.SetNonblock(fd, true); err != nil {
		unix.Close(fd)
		return nil, err
	}
	if err := unix.SetsockoptInt(fd, unix.IPPROTO_IP, unix.IP_HDRINCL, 1); err != nil {
		unix.Close(fd)
		return nil, err
	}

	s := socket.Alloc(nil)
	s.Proto = socket.ProtoRAW
	s.FD = fd
	s.Flags |= socket.FlagRawSocket | socket.FlagInitialized
	t := &RAW{Protocol: protocol}
	s.Transport = t
	s.CB.Read = t.ReadReady
	s.CB.Write = t.WriteReady
	return s, nil
}

// ReadReady receives one packet, including its IP header, and appends it to
// In verbatim: RAW sockets do no framing or validation beyond what the
// kernel already performs.
func (t *RAW) ReadReady(s *socket.Socket) error {
	scratch := getScratch(scratchSize)
	defer putScratch(scratch)
	n, from, err := unix.Recvfrom(s.FD, scratch, 0)
	if err != nil {
		if errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EWOULDBLOCK) {
			return nil
		}
		return err
	}
	if in4, ok := from.(*unix.SockaddrInet4); ok {
		s.RemoteIP = in4.Addr
	}
	if !s.In.Append(scratch[:n]) {
		if s.CB.Kicked != nil {
			s.CB.Kicked(s, socket.KickOverflow)
		}
		s.ScheduleShutdown()
		return nil
	}
	s.LastRecv = time.Now()
	if accountFlood(s, n) {
		return nil
	}
	if s.CB.CheckRequest != nil {
		return s.CB.CheckRequest(s)
	}
	return nil
}

// WriteReady sends one fully IP_HDRINCL-formed packet per Out record,
// using the same length-prefixed + peer-address record framing as UDP so
// callers can reuse QueueSend.
func (t *RAW) WriteReady(s *socket.Socket) error {
	for s.Out.Fill() >= udpRecordHeaderLen {
		header := s.Out.Bytes()[:udpRecordHeaderLen]
		recLen := int(header32(header))
		if s.Out.Fill() < recLen {
			return nil
		}
		addrBytes := addrFromRecord(header)
		packet := s.Out.Bytes()[udpRecordHeaderLen:recLen]

		sa := &unix.SockaddrInet4{Addr: addrBytes}
		if err := unix.Sendto(s.FD, packet, 0, sa); err != nil {
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

// WriteRaw queues a fully-formed IP packet (header included) to peer.
func WriteRaw(s *socket.Socket, peerAddr [4]byte, packet []byte) bool {
	return QueueSend(s, peerAddr, 0, packet)
}

// Close releases the raw socket's OS handle.
func (t *RAW) Close(s *socket.Socket) error {
	if s.FD < 0 {
		return nil
	}
	err := unix.Close(s.FD)
	s.FD = -1
	return err
}
