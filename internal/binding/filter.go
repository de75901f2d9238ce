package binding

import (
	"fmt"
	"net"
	"time"
)

// AccessDecision is the outcome of CheckAccept.
type AccessDecision int

const (
	Accept AccessDecision = iota
	RejectDeny
	RejectNotAllowed
	RejectFrequency
)

// String names a decision for logging (spec.md §6 "policy-reject: ...
// close immediately or schedule shutdown; log at notice").
func (d AccessDecision) String() string {
	switch d {
	case Accept:
		return "accept"
	case RejectDeny:
		return "denied by ACL"
	case RejectNotAllowed:
		return "not in allow list"
	case RejectFrequency:
		return "connect frequency reached"
	default:
		return "unknown"
	}
}

// CheckAccept runs the access and frequency checks spec.md §4.4's accept
// path requires ("run access and frequency checks"): deny list first, then
// allow list if non-empty, then the per-peer connect-frequency tracker.
func (l *Listener) CheckAccept(peerIP string, connectFreq int, now time.Time) AccessDecision {
	bindings := l.Bindings()
	for _, b := range bindings {
		if matchesACL(peerIP, b.Port.Deny) {
			return RejectDeny
		}
	}
	anyAllowList := false
	for _, b := range bindings {
		if len(b.Port.Allow) > 0 {
			anyAllowList = true
			if matchesACL(peerIP, b.Port.Allow) {
				return checkFrequency(l, peerIP, connectFreq, now)
			}
		}
	}
	if anyAllowList {
		return RejectNotAllowed
	}
	return checkFrequency(l, peerIP, connectFreq, now)
}

func checkFrequency(l *Listener, peerIP string, connectFreq int, now time.Time) AccessDecision {
	if l.Tracker == nil || connectFreq <= 0 {
		return Accept
	}
	if !l.Tracker.Allow(peerIP, connectFreq, now) {
		return RejectFrequency
	}
	return Accept
}

// matchesACL reports whether ip matches any CIDR-or-bare-address entry.
func matchesACL(ip string, entries []string) bool {
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return false
	}
	for _, e := range entries {
		if e == ip {
			return true
		}
		if _, cidr, err := net.ParseCIDR(e); err == nil && cidr.Contains(parsed) {
			return true
		}
	}
	return false
}

// ErrMaxSockets is a max_sockets error value for the binding layer. Nothing
// in this repository returns it: internal/transport.TCP enforces max_sockets
// via its LiveCount pointer and reports it with transport.ErrMaxSockets(),
// which is what internal/accept checks for.
var ErrMaxSockets = fmt.Errorf("binding: max sockets reached")
