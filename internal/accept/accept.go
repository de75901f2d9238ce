// Package accept wires a bound listener socket's read callback to the
// transport-specific accept path, the binding layer's access/frequency
// checks, and protocol detection (spec.md §4.4 "accept path": "accept the
// connection, run access and frequency checks, ... arm idle_func =
// protocol-detection-timeout, and invoke check_request once eagerly").
//
// It lives outside internal/binding because internal/detect already
// imports internal/binding (to read binding.List candidates out of
// s.Data); this package imports both one level up instead of creating a
// cycle.
package accept

import (
	"errors"
	"log/slog"
	"net"
	"time"

	"golang.org/x/sys/unix"

	"github.com/serveez-go/serveez/internal/binding"
	"github.com/serveez-go/serveez/internal/detect"
	"github.com/serveez-go/serveez/internal/registry"
	"github.com/serveez-go/serveez/internal/socket"
	"github.com/serveez-go/serveez/internal/status"
	"github.com/serveez-go/serveez/internal/transport"
)

// WireDetection arms s for protocol detection against l's current
// bindings: CheckRequest re-reads l.Bindings on every call (so a binding
// added after s was wired still takes effect for UDP/ICMP/pipe listener
// sockets, which receive data directly rather than spawning children), and
// the detection timeout fires via IdleFunc if nothing wins before
// detectionWait seconds (spec.md §4.6).
func WireDetection(s *socket.Socket, l *binding.Listener, detectionFill, detectionWait int) {
	s.CB.CheckRequest = func(sock *socket.Socket) error {
		sock.Data = l.Bindings()
		return detect.CheckRequest(sock, detectionFill)
	}
	s.IdleFunc = detect.IdleTimeout(detectionWait)
	s.IdleCounter = 1
}

// WireTCPListener replaces listener's read callback with the TCP accept
// loop: drain every pending connection, apply the listener's ACL and
// connect-frequency policy, enqueue survivors, and arm detection on each
// (spec.md §4.4, §4.6, §4.7, §4.8).
func WireTCPListener(reg *registry.Registry, l *binding.Listener, counters *status.Counters, log *slog.Logger) {
	listenerSock := l.Sock
	t, ok := listenerSock.Transport.(*transport.TCP)
	if !ok {
		log.Error("accept: listener socket has no TCP transport", "addr", l.Describe())
		return
	}

	detectionFill, detectionWait, connectFreq := listenerPolicy(l)

	listenerSock.CB.Read = func(s *socket.Socket) error {
		for {
			child, err := t.Accept(s)
			if err != nil {
				if errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EWOULDBLOCK) {
					return nil
				}
				if errors.Is(err, transport.ErrMaxSockets()) {
					log.Warn("accept: max sockets reached", "addr", l.Describe())
					return nil
				}
				log.Debug("accept: error", "addr", l.Describe(), "err", err)
				return nil
			}

			peerIP := net.IP(child.RemoteIP[:]).String()
			decision := l.CheckAccept(peerIP, connectFreq, time.Now())
			if decision != binding.Accept {
				log.Info("accept: rejected", "peer", peerIP, "reason", decision.String())
				recordRejection(counters, decision)
				if ct, ok := child.Transport.(*transport.TCP); ok {
					ct.Close(child)
				}
				continue
			}

			WireDetection(child, l, detectionFill, detectionWait)
			if err := reg.Enqueue(child); err != nil {
				log.Error("accept: enqueue failed", "err", err)
				continue
			}
			if counters != nil {
				counters.RecordAccept()
			}
			if err := child.CB.CheckRequest(child); err != nil {
				child.ScheduleShutdown()
			}
		}
	}
}

func recordRejection(counters *status.Counters, decision binding.AccessDecision) {
	if counters == nil {
		return
	}
	switch decision {
	case binding.RejectDeny, binding.RejectNotAllowed:
		counters.RecordACLReject()
	case binding.RejectFrequency:
		counters.RecordFrequencyReject()
	}
}

// listenerPolicy picks the detection and frequency parameters for a
// listener from its first binding's port configuration; every binding on
// one listener shares the same endpoint, so in practice they agree on
// these values.
func listenerPolicy(l *binding.Listener) (detectionFill, detectionWait, connectFreq int) {
	bindings := l.Bindings()
	if len(bindings) == 0 {
		return 16 * 1024, 30, 0
	}
	p := bindings[0].Port
	return p.DetectionFill, p.DetectionWait, p.ConnectFreq
}
