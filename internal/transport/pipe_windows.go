//go:build windows

package transport

import (
	"errors"
	"time"

	"golang.org/x/sys/windows"

	"github.com/serveez-go/serveez/internal/socket"
)

// Pipe implements Transport for Win32 named pipes (spec.md §4.5, §9(c)).
// Unlike the POSIX FIFO variant, the listener holds one Win32 pipe instance
// and uses ConnectNamedPipe/overlapped I/O to detect a client attaching;
// "connect advance" here means DisconnectNamedPipe on that same instance
// followed by a fresh ConnectNamedPipe call for the next client.
type Pipe struct {
	Path     string
	handle   windows.Handle
	overlap  windows.Overlapped
	pending  bool
	listener bool
}

// OpenPipeListener creates a Win32 named pipe instance at path and issues
// the first overlapped ConnectNamedPipe call.
func OpenPipeListener(path, _ string) (*socket.Socket, error) {
	h, err := windows.CreateNamedPipe(
		windows.StringToUTF16Ptr(path),
		windows.PIPE_ACCESS_DUPLEX|windows.FILE_FLAG_OVERLAPPED,
		windows.PIPE_TYPE_BYTE|windows.PIPE_READMODE_BYTE|windows.PIPE_WAIT,
		windows.PIPE_UNLIMITED_INSTANCES,
		uint32(socket.MaxWrite), uint32(socket.MaxWrite), 0, nil)
	if err != nil {
		return nil, err
	}

	t := &Pipe{Path: path, handle: h, listener: true}
	if err := t.beginConnect(); err != nil {
		windows.CloseHandle(h)
		return nil, err
	}

	s := socket.Alloc(nil)
	s.Proto = socket.ProtoPipe
	s.RecvPipeFD = int(h)
	s.SendPipeFD = int(h)
	s.Flags |= socket.FlagListening | socket.FlagRecvPipe | socket.FlagSendPipe | socket.FlagInitialized
	s.Transport = t
	s.CB.Read = t.ReadReady
	s.CB.Write = t.WriteReady
	return s, nil
}

// ConnectPipe opens the client end of an existing named pipe.
func ConnectPipe(path, _ string) (*socket.Socket, error) {
	h, err := windows.CreateFile(
		windows.StringToUTF16Ptr(path),
		windows.GENERIC_READ|windows.GENERIC_WRITE,
		0, nil, windows.OPEN_EXISTING, windows.FILE_FLAG_OVERLAPPED, 0)
	if err != nil {
		return nil, err
	}

	t := &Pipe{Path: path, handle: h}
	s := socket.Alloc(nil)
	s.Proto = socket.ProtoPipe
	s.RecvPipeFD = int(h)
	s.SendPipeFD = int(h)
	s.Flags |= socket.FlagConnected | socket.FlagRecvPipe | socket.FlagSendPipe | socket.FlagInitialized
	s.Transport = t
	s.CB.Read = t.ReadReady
	s.CB.Write = t.WriteReady
	return s, nil
}

func (t *Pipe) beginConnect() error {
	ev, err := windows.CreateEvent(nil, 1, 0, nil)
	if err != nil {
		return err
	}
	t.overlap.HEvent = ev
	err = windows.ConnectNamedPipe(t.handle, &t.overlap)
	if err != nil && !errors.Is(err, windows.ERROR_IO_PENDING) && !errors.Is(err, windows.ERROR_PIPE_CONNECTED) {
		return err
	}
	t.pending = true
	return nil
}

// Advance disconnects the current client and re-arms ConnectNamedPipe for
// the next one (spec.md §9(c) Win32 branch).
func (t *Pipe) Advance(s *socket.Socket) error {
	windows.DisconnectNamedPipe(t.handle)
	return t.beginConnect()
}

// ReadReady polls for connection completion (listener) or drains the pipe
// (connected socket).
func (t *Pipe) ReadReady(s *socket.Socket) error {
	if t.listener && t.pending {
		var n uint32
		err := windows.GetOverlappedResult(t.handle, &t.overlap, &n, false)
		if err != nil {
			if errors.Is(err, windows.ERROR_IO_INCOMPLETE) {
				return nil
			}
			return err
		}
		t.pending = false
		s.Flags |= socket.FlagConnected
		if s.CB.Connected != nil {
			return s.CB.Connected(s)
		}
		return nil
	}

	free := s.In.Free()
	if free == 0 {
		return nil
	}
	scratch := make([]byte, free)
	var n uint32
	err := windows.ReadFile(t.handle, scratch, &n, nil)
	if err != nil {
		if errors.Is(err, windows.ERROR_BROKEN_PIPE) {
			if t.listener {
				return t.Advance(s)
			}
			s.ScheduleShutdown()
			return nil
		}
		return err
	}
	if n == 0 {
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
	if accountFlood(s, int(n)) {
		return nil
	}
	if s.CB.CheckRequest != nil {
		return s.CB.CheckRequest(s)
	}
	return nil
}

// WriteReady writes up to socket.MaxWrite bytes to the pipe handle.
func (t *Pipe) WriteReady(s *socket.Socket) error {
	n := s.Out.Fill()
	if n == 0 {
		return nil
	}
	if n > socket.MaxWrite {
		n = socket.MaxWrite
	}
	var written uint32
	err := windows.WriteFile(t.handle, s.Out.Bytes()[:n], &written, nil)
	if err != nil {
		return err
	}
	if written > 0 {
		if err := s.Out.Reduce(int(written)); err != nil {
			return err
		}
		s.LastSend = time.Now()
	}
	if s.Flags.Has(socket.FlagFinalWrite) && s.Out.Fill() == 0 {
		s.ScheduleShutdown()
	}
	return nil
}

// Close releases the pipe handle.
func (t *Pipe) Close(s *socket.Socket) error {
	if t.handle == 0 {
		return nil
	}
	err := windows.CloseHandle(t.handle)
	t.handle = 0
	s.RecvPipeFD = -1
	s.SendPipeFD = -1
	return err
}
