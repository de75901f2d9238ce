package transport

import (
	"github.com/serveez-go/serveez/internal/rate"
	"github.com/serveez-go/serveez/internal/socket"
)

// accountFlood runs one readable event of n bytes through the socket's flood
// counter (spec.md §4.8) and, if it pushed the socket over its flood_limit,
// fires Kicked(flood) and schedules shutdown. It reports whether the socket
// was kicked, so callers can skip the rest of their read path (notably
// CheckRequest) once a shutdown is already scheduled.
func accountFlood(s *socket.Socket, n int) bool {
	if err := rate.Account(&s.FloodPoints, s.FloodLimit, n); err == nil {
		return false
	}
	if s.CB.Kicked != nil {
		s.CB.Kicked(s, socket.KickFlood)
	}
	s.ScheduleShutdown()
	return true
}
