// Package loop implements the single-threaded cooperative event loop
// (spec.md §4.9, §5): one poll-based readiness wait per iteration, dispatch
// of ready callbacks, a periodic 1 Hz tick, round-robin rechaining every 16
// iterations, a bogus-fd sweep, and signal-driven shutdown.
package loop

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"golang.org/x/sys/unix"

	"github.com/serveez-go/serveez/internal/rate"
	"github.com/serveez-go/serveez/internal/registry"
	"github.com/serveez-go/serveez/internal/server"
	"github.com/serveez-go/serveez/internal/socket"
	"github.com/serveez-go/serveez/internal/transport"
)

// RechainEvery is the iteration count between registry.Rechain calls
// (spec.md §4.2, §4.9: "rechain every 16 iterations").
const RechainEvery = 16

// TickInterval is the periodic scheduler period (spec.md §4.9 "1 Hz
// periodic tick").
const TickInterval = 1 * time.Second

// pollTimeout bounds a single unix.Poll call so the loop wakes up often
// enough to service the 1 Hz tick and the signal plane even with no I/O
// activity.
const pollTimeout = 250 * time.Millisecond

// Loop is the reactor. It owns no sockets directly; everything lives in Reg.
type Loop struct {
	Reg *registry.Registry
	Log *slog.Logger

	// Servers is the server-type/instance registry the periodic tick walks
	// to run each live instance's Notify hook (spec.md §2 component table
	// "periodic scheduler: ... + instance notify", §4.9 step 7). Left nil
	// in tests that only exercise per-socket scheduling.
	Servers *server.Registry

	iterations int
	lastTick   time.Time
	stopping   bool
}

// New returns a Loop over reg, logging through log (or slog.Default if nil).
func New(reg *registry.Registry, log *slog.Logger) *Loop {
	if log == nil {
		log = slog.Default()
	}
	return &Loop{Reg: reg, Log: log, lastTick: time.Time{}}
}

// Run drives the reactor until ctx is canceled or a terminating signal
// arrives (SIGINT/SIGTERM), then performs an orderly ShutdownAll and
// returns (spec.md §7 "Shutdown").
func (l *Loop) Run(ctx context.Context) error {
	sigCh := make(chan os.Signal, 8)
	signal.Notify(sigCh, unix.SIGINT, unix.SIGTERM, unix.SIGHUP, unix.SIGPIPE, unix.SIGCHLD)
	defer signal.Stop(sigCh)

	l.lastTick = time.Now()

	for !l.stopping {
		select {
		case <-ctx.Done():
			l.stopping = true
			continue
		case sig := <-sigCh:
			l.handleSignal(sig)
			continue
		default:
		}

		if err := l.iterate(); err != nil {
			return err
		}
	}

	l.Reg.ShutdownAll(l.shutdownSocket)
	return nil
}

func (l *Loop) handleSignal(sig os.Signal) {
	switch sig {
	case unix.SIGINT, unix.SIGTERM:
		l.Log.Info("loop: received termination signal", "signal", sig.String())
		l.stopping = true
	case unix.SIGHUP:
		l.Log.Info("loop: received SIGHUP, ignoring (config reload not wired)")
	case unix.SIGPIPE:
		// Non-blocking sockets surface broken pipes as EPIPE on write; the
		// signal itself carries no extra information, only logged.
		l.Log.Debug("loop: received SIGPIPE")
	case unix.SIGCHLD:
		l.Log.Debug("loop: received SIGCHLD")
	}
}

// iterate runs exactly one reactor turn: build the poll set, wait, dispatch,
// sweep killed sockets, and run periodic maintenance.
func (l *Loop) iterate() error {
	type pending struct {
		sock              *socket.Socket
		wantRead, wantWrite bool
	}

	var fds []unix.PollFd
	var owners []pending

	l.Reg.Each(func(s *socket.Socket) bool {
		nowUnavailable := time.Now().Before(s.UnavailableUntil)
		readFD, writeFD, wantRead, wantWrite := transport.PollFDs(s, nowUnavailable)
		wantRead = wantRead && readFD >= 0
		wantWrite = wantWrite && writeFD >= 0
		if !wantRead && !wantWrite {
			return true
		}

		if wantRead && wantWrite && readFD == writeFD {
			fds = append(fds, unix.PollFd{Fd: int32(readFD), Events: unix.POLLIN | unix.POLLOUT})
			owners = append(owners, pending{sock: s, wantRead: true, wantWrite: true})
			return true
		}
		if wantRead {
			fds = append(fds, unix.PollFd{Fd: int32(readFD), Events: unix.POLLIN})
			owners = append(owners, pending{sock: s, wantRead: true})
		}
		if wantWrite {
			fds = append(fds, unix.PollFd{Fd: int32(writeFD), Events: unix.POLLOUT})
			owners = append(owners, pending{sock: s, wantWrite: true})
		}
		return true
	})

	n, err := unix.Poll(fds, int(pollTimeout/time.Millisecond))
	if err != nil {
		if errors.Is(err, unix.EINTR) {
			return nil
		}
		return err
	}

	if n > 0 {
		for i, pfd := range fds {
			if pfd.Revents == 0 {
				continue
			}
			s := owners[i].sock
			if pfd.Revents&(unix.POLLIN|unix.POLLHUP) != 0 && s.CB.Read != nil {
				if err := s.CB.Read(s); err != nil {
					l.Log.Debug("loop: read callback error", "socket", s.ID, "err", err)
					s.ScheduleShutdown()
				}
			}
			if pfd.Revents&unix.POLLOUT != 0 && s.CB.Write != nil {
				if err := s.CB.Write(s); err != nil {
					l.Log.Debug("loop: write callback error", "socket", s.ID, "err", err)
					s.ScheduleShutdown()
				}
			}
			if pfd.Revents&(unix.POLLERR|unix.POLLNVAL) != 0 {
				s.ScheduleShutdown()
			}
		}
	}

	l.sweepBogusFDs()
	l.drainKilled()

	l.iterations++
	if l.iterations%RechainEvery == 0 {
		l.Reg.Rechain()
	}

	if time.Since(l.lastTick) >= TickInterval {
		l.runTick()
		l.lastTick = time.Now()
	}

	return nil
}

// sweepBogusFDs probes every live socket's FD with a harmless fcntl call;
// an EBADF means the OS handle died out from under the registry (spec.md
// §16 supplement, grounded on the original server-core's bogus-fd check
// preceding each select/poll call).
func (l *Loop) sweepBogusFDs() {
	l.Reg.Each(func(s *socket.Socket) bool {
		if s.FD < 0 {
			return true
		}
		if _, err := unix.FcntlInt(uintptr(s.FD), unix.F_GETFL, 0); err != nil {
			l.Log.Debug("loop: bogus fd detected", "socket", s.ID, "fd", s.FD)
			s.ScheduleShutdown()
		}
		return true
	})
}

// drainKilled shuts down every socket with FlagKilled set, repeatedly,
// since shutdownSocket's Disconnected callback may itself kill other
// sockets (spec.md §4.1 Idempotence; §8).
func (l *Loop) drainKilled() {
	for {
		var victim *socket.Socket
		l.Reg.Each(func(s *socket.Socket) bool {
			if s.Killed() {
				victim = s
				return false
			}
			return true
		})
		if victim == nil {
			return
		}
		l.shutdownSocket(victim)
	}
}

// runTick invokes idle processing for every enqueued socket: IdleFunc (used
// by protocol detection's timeout, spec.md §4.6 step 6), each socket's
// IdleCounter/CB.Idle decrement (spec.md §4.10), and the flood-point decay
// of spec.md §4.8 ("the periodic tick decrements flood_points by 1 per
// second"). It then runs every live server instance's Notify hook once,
// independent of any socket (spec.md §4.9 step 7).
func (l *Loop) runTick() {
	l.Reg.Each(func(s *socket.Socket) bool {
		rate.Decay(&s.FloodPoints)

		if s.IdleFunc != nil {
			if err := s.IdleFunc(s); err != nil {
				s.ScheduleShutdown()
			}
		}
		if s.CB.Idle != nil && s.IdleCounter > 0 {
			s.IdleCounter--
			if s.IdleCounter == 0 {
				if err := s.CB.Idle(s); err != nil {
					s.ScheduleShutdown()
				}
			}
		}
		return true
	})

	if l.Servers == nil {
		return
	}
	for _, inst := range l.Servers.Instances() {
		if err := inst.Notify(); err != nil {
			l.Log.Debug("loop: notify callback error", "instance", inst.Name(), "err", err)
		}
	}
}

// shutdownSocket runs the full teardown sequence (spec.md §7): Disconnected
// callback, dequeue, transport Close, buffer release.
func (l *Loop) shutdownSocket(s *socket.Socket) {
	if s.CB.Disconnected != nil {
		s.CB.Disconnected(s)
	}
	if s.Enqueued() {
		if err := l.Reg.Dequeue(s); err != nil {
			l.Log.Debug("loop: dequeue on shutdown failed", "socket", s.ID, "err", err)
		}
	}
	if t, ok := s.Transport.(transport.Transport); ok {
		if err := t.Close(s); err != nil {
			l.Log.Debug("loop: transport close error", "socket", s.ID, "err", err)
		}
	}
	s.In.Close()
	s.Out.Close()
}
