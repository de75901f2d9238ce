package socket

import (
	"time"

	"github.com/serveez-go/serveez/internal/alloc"
	"github.com/serveez-go/serveez/internal/buffer"
)

// MaxWrite caps a single TCP write() call (spec.md §4.4 "at most 1024 bytes
// per call").
const MaxWrite = 1024

// Socket is one connection, listener, or pipe endpoint (spec.md §3).
//
// The registry is the only owner; every other holder (Referrer, Parent) is a
// weak back-reference that must be cleared on dequeue (spec.md "Ownership").
type Socket struct {
	ID      uint16 // 13-bit id, unique among live sockets
	Version uint16 // generation counter, disambiguates a reused id

	Flags Flags
	Proto Proto

	FD         int // OS socket handle, or -1
	RecvPipeFD int // pipe read handle, or -1
	SendPipeFD int // pipe write handle, or -1

	RemoteIP   [4]byte
	RemotePort uint16
	LocalIP    [4]byte
	LocalPort  uint16

	In  *buffer.Buffer
	Out *buffer.Buffer

	Boundary []byte // optional fixed frame delimiter

	CB Callbacks

	IdleCounter int
	IdleFunc    func(s *Socket) error

	LastRecv time.Time
	LastSend time.Time

	FloodPoints int
	FloodLimit  int

	UnavailableUntil time.Time

	SendSeq  uint16
	RecvSeq  uint16
	Sequence uint16

	Referrer *Socket // weak back-link: listener<->accepted, or passthrough twin
	Parent   *Socket // weak back-link: accepted socket -> its listener

	Data any // detector candidate list, or a listener's binding.List
	Cfg  any // the chosen server instance's config, once detection succeeds

	// Transport holds the transport.Transport implementation backing this
	// socket (TCP/UDP/ICMP/RAW/Pipe). Declared as `any` here to avoid an
	// import cycle; the registry/reactor type-assert it back to
	// transport.Transport to dispatch ReadReady/WriteReady/Close.
	Transport any

	Acct *alloc.Accounting
}

// Alloc returns a freshly initialized socket with default 8 KiB buffers and
// a no-op Disconnected callback (spec.md §4.1). CB.Read and CB.Write are left
// nil; no default read/write callbacks are installed here, the transport
// constructor that opens the socket sets them. ID/Version are left zero; the
// registry assigns them at Enqueue time.
func Alloc(acct *alloc.Accounting) *Socket {
	s := &Socket{
		FD:         -1,
		RecvPipeFD: -1,
		SendPipeFD: -1,
		In:         buffer.New(acct, buffer.DefaultSize),
		Out:        buffer.New(acct, buffer.DefaultSize),
		FloodLimit: DefaultFloodLimit,
		Acct:       acct,
	}
	s.CB.Disconnected = func(*Socket) {}
	return s
}

// DefaultFloodLimit is the default per-socket flood point ceiling (spec.md
// §4.8).
const DefaultFloodLimit = 100

// ScheduleShutdown sets the killed flag. Idempotent: calling it any number
// of times results in exactly one shutdown at end-of-tick (spec.md §4.1,
// §8 Idempotence).
func (s *Socket) ScheduleShutdown() {
	s.Flags |= FlagKilled
}

// Killed reports whether shutdown has been scheduled.
func (s *Socket) Killed() bool {
	return s.Flags.Has(FlagKilled)
}

// Enqueued reports whether the registry currently holds this socket.
func (s *Socket) Enqueued() bool {
	return s.Flags.Has(FlagEnqueued)
}
