//go:build !windows

package transport

import (
	"errors"
	"time"

	"golang.org/x/sys/unix"

	"github.com/serveez-go/serveez/internal/socket"
)

// Pipe implements Transport for named-pipe (FIFO) sockets on POSIX (spec.md
// §4.5, §9(c)). A pipe listener holds a path it reopens for each new client;
// unlike TCP there is no accept() syscall, so "connect advance" on POSIX
// means: the listener's read side is opened O_RDONLY|O_NONBLOCK and becomes
// readable once a writer opens the other end. The listener socket reads the
// client's data itself; no separate connected socket is created. When the
// writer closes its end, Advance reopens the path for the next client.
type Pipe struct {
	RecvPath string
	SendPath string
}

// OpenPipeListener opens recvPath for reading, non-blocking, as the single
// standing listener. The listener only ever holds a RecvPipeFD: a non-empty
// sendPath sets FlagSendPipe but is not opened, here or later, so
// SendPipeFD stays -1 and WriteReady sends nothing for a listener.
func OpenPipeListener(recvPath, sendPath string) (*socket.Socket, error) {
	recvFD, err := unix.Open(recvPath, unix.O_RDONLY|unix.O_NONBLOCK, 0)
	if err != nil {
		return nil, err
	}

	s := socket.Alloc(nil)
	s.Proto = socket.ProtoPipe
	s.RecvPipeFD = recvFD
	s.Flags |= socket.FlagListening | socket.FlagRecvPipe | socket.FlagInitialized
	if sendPath != "" {
		s.Flags |= socket.FlagSendPipe
	}
	t := &Pipe{RecvPath: recvPath, SendPath: sendPath}
	s.Transport = t
	s.CB.Read = t.ReadReady
	s.CB.Write = t.WriteReady
	return s, nil
}

// Advance reopens recvPath to admit the next client once the current one
// disconnects (spec.md §9(c): POSIX FIFOs serve one client between opens).
func (t *Pipe) Advance(s *socket.Socket) error {
	if s.RecvPipeFD >= 0 {
		unix.Close(s.RecvPipeFD)
	}
	fd, err := unix.Open(t.RecvPath, unix.O_RDONLY|unix.O_NONBLOCK, 0)
	if err != nil {
		return err
	}
	s.RecvPipeFD = fd
	return nil
}

// ConnectPipe opens the client side of a FIFO pair: sendPath for writing,
// recvPath for reading, both non-blocking.
func ConnectPipe(recvPath, sendPath string) (*socket.Socket, error) {
	sendFD, err := unix.Open(sendPath, unix.O_WRONLY|unix.O_NONBLOCK, 0)
	if err != nil {
		return nil, err
	}
	recvFD := -1
	if recvPath != "" {
		recvFD, err = unix.Open(recvPath, unix.O_RDONLY|unix.O_NONBLOCK, 0)
		if err != nil {
			unix.Close(sendFD)
			return nil, err
		}
	}

	s := socket.Alloc(nil)
	s.Proto = socket.ProtoPipe
	s.RecvPipeFD = recvFD
	s.SendPipeFD = sendFD
	s.Flags |= socket.FlagConnected | socket.FlagSendPipe | socket.FlagInitialized
	if recvFD >= 0 {
		s.Flags |= socket.FlagRecvPipe
	}
	t := &Pipe{RecvPath: recvPath, SendPath: sendPath}
	s.Transport = t
	s.CB.Read = t.ReadReady
	s.CB.Write = t.WriteReady
	return s, nil
}

// ReadReady drains the recv pipe. A zero-byte read on a FIFO means the
// writer closed its end; ReadReady then calls Advance on a listener to
// admit the next client rather than tearing down the listener socket.
func (t *Pipe) ReadReady(s *socket.Socket) error {
	free := s.In.Free()
	if free == 0 {
		return nil
	}
	scratch := make([]byte, free)
	n, err := unix.Read(s.RecvPipeFD, scratch)
	if err != nil {
		if errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EWOULDBLOCK) {
			return nil
		}
		return err
	}
	if n == 0 {
		if s.Flags.Has(socket.FlagListening) {
			return t.Advance(s)
		}
		s.ScheduleShutdown()
		return nil
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

// WriteReady writes up to socket.MaxWrite bytes to the send pipe.
func (t *Pipe) WriteReady(s *socket.Socket) error {
	n := s.Out.Fill()
	if n == 0 || s.SendPipeFD < 0 {
		return nil
	}
	if n > socket.MaxWrite {
		n = socket.MaxWrite
	}
	sent, err := unix.Write(s.SendPipeFD, s.Out.Bytes()[:n])
	if err != nil {
		if errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EWOULDBLOCK) {
			s.UnavailableUntil = time.Now().Add(1 * time.Second)
			return nil
		}
		return err
	}
	if sent > 0 {
		if err := s.Out.Reduce(sent); err != nil {
			return err
		}
		s.LastSend = time.Now()
	}
	if s.Flags.Has(socket.FlagFinalWrite) && s.Out.Fill() == 0 {
		s.ScheduleShutdown()
	}
	return nil
}

// Close releases both pipe handles.
func (t *Pipe) Close(s *socket.Socket) error {
	var firstErr error
	if s.RecvPipeFD >= 0 {
		if err := unix.Close(s.RecvPipeFD); err != nil {
			firstErr = err
		}
		s.RecvPipeFD = -1
	}
	if s.SendPipeFD >= 0 {
		if err := unix.Close(s.SendPipeFD); err != nil && firstErr == nil {
			firstErr = err
		}
		s.SendPipeFD = -1
	}
	return firstErr
}
