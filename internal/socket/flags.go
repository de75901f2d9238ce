package socket

// Flags is the socket kind/state bitmask (spec.md §3 "kind flags").
type Flags uint32

const (
	FlagListening Flags = 1 << iota
	FlagConnected
	FlagConnecting
	FlagKilled
	FlagPriority
	FlagFinalWrite
	FlagRawSocket
	FlagRecvPipe
	FlagSendPipe
	FlagFixedPeer
	FlagNoFlood
	FlagInitialized
	FlagEnqueued
)

// Has reports whether all bits in want are set.
func (f Flags) Has(want Flags) bool { return f&want == want }

// Proto tags a socket's transport kind.
type Proto int

const (
	ProtoTCP Proto = iota
	ProtoUDP
	ProtoICMP
	ProtoRAW
	ProtoPipe
)

func (p Proto) String() string {
	switch p {
	case ProtoTCP:
		return "tcp"
	case ProtoUDP:
		return "udp"
	case ProtoICMP:
		return "icmp"
	case ProtoRAW:
		return "raw"
	case ProtoPipe:
		return "pipe"
	default:
		return "unknown"
	}
}
