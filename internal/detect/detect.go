// Package detect implements protocol detection: selecting which bound
// server instance should own a freshly accepted stream (spec.md §4.6).
package detect

import (
	"time"

	"github.com/serveez-go/serveez/internal/binding"
	"github.com/serveez-go/serveez/internal/socket"
)

// CheckRequest is the default check_request installed on an accepted socket
// before any server instance has attached (spec.md §4.3, §4.6). It runs
// each candidate instance's DetectProto in binding order; the first to
// return true wins.
//
// On a winner, the detector state is cleared, the winner's cfg is stored on
// the socket, ConnectSocket is invoked to install handle_request (and
// optionally a boundary or replacement check_request), and check_request is
// re-invoked once so bytes already buffered are processed immediately
// (spec.md §4.6 step 3).
//
// detectionFill bounds how many undetected bytes may accumulate before
// giving up (spec.md §4.6 step 5); the idle-timeout branch (step 6) is
// driven separately by the socket's idle_func/idle_counter machinery, not
// by this function.
func CheckRequest(s *socket.Socket, detectionFill int) error {
	candidates, _ := s.Data.(binding.List)
	if len(candidates) == 0 {
		return nil
	}

	for _, b := range candidates {
		if b.Instance.DetectProto(b.Port, s) {
			s.Data = nil
			s.IdleFunc = nil
			s.Cfg = b.Port
			if err := b.Instance.ConnectSocket(b.Port, s); err != nil {
				return err
			}
			if s.CB.CheckRequest != nil {
				return s.CB.CheckRequest(s)
			}
			return nil
		}
	}

	if s.In.Fill() <= detectionFill {
		return nil
	}
	s.ScheduleShutdown()
	return nil
}

// IdleTimeout is installed as idle_func on an accepted, undetected socket
// (spec.md §4.6 step 6, §4.4 "idle_func = protocol-detection-timeout"). It
// schedules shutdown once now-LastRecv exceeds detectionWait seconds.
func IdleTimeout(detectionWait int) func(s *socket.Socket) error {
	return func(s *socket.Socket) error {
		if time.Since(s.LastRecv) > time.Duration(detectionWait)*time.Second {
			s.ScheduleShutdown()
		}
		return nil
	}
}
