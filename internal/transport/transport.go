// Package transport implements the non-blocking, single-threaded I/O
// primitives for each socket kind (spec.md §4.4, §4.5, §9 design note
// "Variant sockets"). TCP/UDP/ICMP/RAW/Pipe are tagged variants sharing the
// buffer/callback machinery in internal/socket; this package supplies the
// Transport interface each variant implements plus the concrete non-blocking
// syscalls, grounded on the teacher's SO_REUSEPORT control-function idiom
// (internal/server/tcp_server.go, udp_server.go in the teacher) and on
// malbeclabs-doublezero's tools/uping raw-socket usage of
// golang.org/x/sys/unix for the parts the teacher never needed (IP_HDRINCL,
// raw ICMP sockets, manual accept/bind/listen).
package transport

import "github.com/serveez-go/serveez/internal/socket"

// Transport is what a concrete socket kind plugs into the socket's FD and
// Close behavior. ReadReady/WriteReady are invoked by the reactor when
// unix.Poll reports the corresponding readiness; they are expected to
// perform the actual non-blocking syscall and then drive the socket's
// CB.CheckRequest/CB.HandleRequest chain.
type Transport interface {
	ReadReady(s *socket.Socket) error
	WriteReady(s *socket.Socket) error
	Close(s *socket.Socket) error
}

// PollFDs returns the (read fd, write fd, wantRead, wantWrite) tuple the
// reactor should poll for s, per spec.md §4.9 step 2:
//
//   - every listener: read-interest (for accept or pipe-connect advance).
//   - every connected socket with UnavailableUntil <= now: read-interest
//     always, write-interest iff send.Fill() > 0.
//   - pipe sockets contribute their read and/or write handles according to
//     direction.
func PollFDs(s *socket.Socket, nowUnavailable bool) (readFD, writeFD int, wantRead, wantWrite bool) {
	if s.Proto == socket.ProtoPipe {
		if s.Flags.Has(socket.FlagRecvPipe) {
			readFD, wantRead = s.RecvPipeFD, true
		} else {
			readFD = -1
		}
		if s.Flags.Has(socket.FlagSendPipe) && s.Out.Fill() > 0 {
			writeFD, wantWrite = s.SendPipeFD, true
		} else {
			writeFD = -1
		}
		return
	}

	readFD = s.FD
	writeFD = s.FD

	if s.Flags.Has(socket.FlagListening) {
		wantRead = true
		return
	}

	if nowUnavailable {
		return
	}
	wantRead = true
	wantWrite = s.Out.Fill() > 0
	return
}
