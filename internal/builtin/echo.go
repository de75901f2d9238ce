// Package builtin provides the server types Serveez registers itself, the
// way the teacher ships a working DNS resolver rather than a bare library:
// a line-oriented echo service exercising the full detect/connect/
// handle_request/idle path (spec.md §4.1, §4.3) without needing a
// dynamically loaded plugin (internal/loader) just to see the reactor run.
package builtin

import (
	"log/slog"
	"time"

	"github.com/serveez-go/serveez/internal/portcfg"
	"github.com/serveez-go/serveez/internal/server"
	"github.com/serveez-go/serveez/internal/socket"
)

// NewEchoType returns the "echo" server type: every line (delimited by
// '\n', spec.md §4.3 single-byte boundary fast path) is written back
// verbatim. Connections time out after the bound port's detection_wait
// seconds with nothing received, re-using the same IdleCounter/Idle
// convention protocol detection uses.
func NewEchoType(log *slog.Logger) *server.Type {
	return &server.Type{
		Name: "echo",
		CB: server.Callbacks{
			Connect: func(cfg any, s *socket.Socket) error {
				s.Boundary = []byte{'\n'}
				s.CB.CheckRequest = socket.BoundaryCheckRequest
				s.IdleCounter = 1
				if log != nil {
					log.Debug("echo: connected", "socket", s.ID, "remote", s.RemoteIP)
				}
				return nil
			},
			HandleRequest: func(cfg any, s *socket.Socket, frame []byte) error {
				s.Write(frame)
				return nil
			},
			Idle: func(cfg any, s *socket.Socket) error {
				if p, ok := cfg.(portcfg.Port); ok && p.DetectionWait > 0 &&
					time.Since(s.LastRecv) > time.Duration(p.DetectionWait)*time.Second {
					s.ScheduleShutdown()
					return nil
				}
				s.IdleCounter = 1
				return nil
			},
		},
	}
}

// EchoDetectProto matches any candidate stream, since echo has no
// distinguishing preamble of its own (spec.md §4.6 "first candidate to
// return true wins"). NewEchoType does not install it: the echo type's
// DetectProto is left nil, which server.Instance.DetectProto already treats
// as always matching.
func EchoDetectProto(cfg any, s *socket.Socket) bool { return true }

// EchoPort is a convenience default port configuration for the echo type.
// cmd/serveez does not call it; the ports it binds all come from the loaded
// configuration.
func EchoPort(name string, port int) portcfg.Port {
	return portcfg.Port{
		Name:       name,
		Proto:      portcfg.ProtoTCP,
		IPAddr:     portcfg.AnyAddress,
		PortNumber: port,
	}
}
