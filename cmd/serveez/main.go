// Command serveez runs the cooperative multi-protocol server core: it loads
// a port configuration, binds every configured port to the built-in echo
// server instance, and drives the reactor until a termination signal
// arrives (spec.md §1, §4.9, §7).
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/serveez-go/serveez/internal/accept"
	"github.com/serveez-go/serveez/internal/binding"
	"github.com/serveez-go/serveez/internal/builtin"
	"github.com/serveez-go/serveez/internal/loop"
	"github.com/serveez-go/serveez/internal/logging"
	"github.com/serveez-go/serveez/internal/portcfg"
	"github.com/serveez-go/serveez/internal/registry"
	"github.com/serveez-go/serveez/internal/server"
	"github.com/serveez-go/serveez/internal/socket"
	"github.com/serveez-go/serveez/internal/status"
	"github.com/serveez-go/serveez/internal/transport"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
}

// cliFlags holds parsed command-line flag values, overriding the loaded
// config the way the teacher's -host/-port/-json-logs/-debug flags do.
type cliFlags struct {
	configPath string
	jsonLogs   bool
	debug      bool
}

func parseFlags() cliFlags {
	var f cliFlags
	flag.StringVar(&f.configPath, "config", "", "Path to YAML port configuration file")
	flag.BoolVar(&f.jsonLogs, "json-logs", false, "Enable JSON structured logging")
	flag.BoolVar(&f.debug, "debug", false, "Enable debug logging")
	flag.Parse()
	return f
}

func applyCLIOverrides(cfg *portcfg.Config, f cliFlags) {
	if f.jsonLogs {
		cfg.Logging.Structured = true
		cfg.Logging.StructuredFormat = "json"
	}
	if f.debug {
		cfg.Logging.Level = "DEBUG"
	}
}

func run() error {
	flags := parseFlags()

	cfg, err := portcfg.Load(flags.configPath)
	if err != nil {
		return fmt.Errorf("failed to load port configuration: %w", err)
	}
	applyCLIOverrides(cfg, flags)

	logger := logging.Configure(logging.Config{
		Level:            cfg.Logging.Level,
		Structured:       cfg.Logging.Structured,
		StructuredFormat: cfg.Logging.StructuredFormat,
		IncludePID:       cfg.Logging.IncludePID,
		ExtraFields:      cfg.Logging.ExtraFields,
	})
	logger.Info("serveez starting", "config", flags.configPath, "ports", len(cfg.Ports))

	reg := registry.New()
	types := server.NewRegistry()
	types.RegisterType(builtin.NewEchoType(logger))
	mgr := binding.NewManager()
	counters := status.NewCounters()

	if err := bindAll(cfg, reg, types, mgr, counters, logger); err != nil {
		return fmt.Errorf("failed to bind configured ports: %w", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	var statusSrv *status.Server
	if cfg.Status.Enabled {
		statusSrv = status.New(cfg.Status.Host, cfg.Status.Port, counters, reg, logger)
		logger.Info("status endpoint starting", "addr", statusSrv.Addr())
		go func() {
			if err := statusSrv.ListenAndServe(); err != nil {
				logger.Debug("status endpoint stopped", "err", err)
			}
		}()
	}

	l := loop.New(reg, logger)
	l.Servers = types
	runErr := l.Run(ctx)

	if statusSrv != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		_ = statusSrv.Shutdown(shutdownCtx)
		shutdownCancel()
	}

	logger.Info("serveez stopped")
	if runErr != nil {
		return fmt.Errorf("reactor exited with error: %w", runErr)
	}
	return nil
}

// bindAll creates one named server instance per configured port, expands
// any INADDR_ANY address into per-interface port configurations, and binds
// each through the binding manager (spec.md §3, §4.7).
//
// The framework itself is protocol-agnostic about which server type a
// configured port runs; since no plugin is loaded by default (internal/
// loader is for operators supplying their own .so), every instance is
// created against the built-in "echo" type so `serveez` is runnable out of
// the box. cmd/serveez has no flag for loading a plugin; other server types
// are loaded through internal/loader by code that calls it.
func bindAll(cfg *portcfg.Config, reg *registry.Registry, types *server.Registry, mgr *binding.Manager, counters *status.Counters, logger *slog.Logger) error {
	for _, p := range cfg.Ports {
		inst, err := types.NewInstance(p.Name, "echo")
		if err != nil {
			return fmt.Errorf("port %q: %w", p.Name, err)
		}

		expanded, err := portcfg.Expand(p)
		if err != nil {
			return fmt.Errorf("port %q: expand: %w", p.Name, err)
		}
		for _, ep := range expanded {
			if err := bindOne(ep, inst, reg, mgr, counters, logger); err != nil {
				logger.Error("bind failed", "port", ep.Name, "addr", ep.IPAddr, "err", err)
				continue
			}
		}
	}
	return nil
}

func bindOne(p portcfg.Port, inst *server.Instance, reg *registry.Registry, mgr *binding.Manager, counters *status.Counters, logger *slog.Logger) error {
	newBinding := &binding.Binding{Instance: inst, Port: p}

	l, shadowed, err := mgr.Reserve(p)
	if err != nil {
		return err
	}

	if l.Sock != nil {
		// Listener already live (a prior port shares this endpoint): fold
		// this binding in without reopening the socket (spec.md §4.7 "add
		// (server, p) as a binding on that listener").
		l.AddBinding(newBinding)
		return nil
	}

	sock, err := openListenerSocket(p)
	if err != nil {
		return err
	}
	mgr.Attach(l, sock, shadowed, newBinding)

	for _, sh := range shadowed {
		teardownShadowed(sh, reg, logger)
	}

	if err := reg.Enqueue(sock); err != nil {
		return err
	}

	switch p.Proto {
	case portcfg.ProtoTCP:
		accept.WireTCPListener(reg, l, counters, logger)
	default:
		accept.WireDetection(sock, l, p.DetectionFill, p.DetectionWait)
	}

	logger.Info("listening", "proto", p.Proto, "addr", l.Describe())
	return nil
}

// teardownShadowed closes and dequeues an address-specific listener that an
// INADDR_ANY bind has just superseded (spec.md §6 scenario 6). This runs
// before the reactor starts, so the socket is torn down directly rather
// than through loop.Loop's shutdownSocket teardown sequence.
func teardownShadowed(sh *binding.ShadowedListener, reg *registry.Registry, logger *slog.Logger) {
	s := sh.Listener.Sock
	if s == nil {
		return
	}
	if s.Enqueued() {
		if err := reg.Dequeue(s); err != nil {
			logger.Debug("teardown: dequeue failed", "err", err)
		}
	}
	if t, ok := s.Transport.(transport.Transport); ok {
		if err := t.Close(s); err != nil {
			logger.Debug("teardown: close failed", "err", err)
		}
	}
	s.In.Close()
	s.Out.Close()
}

// openListenerSocket opens the OS-level listener/endpoint for one
// address-specific port configuration, dispatching on protocol the way the
// teacher's listenTCPReusePort/listenUDP helpers do.
func openListenerSocket(p portcfg.Port) (*socket.Socket, error) {
	switch p.Proto {
	case portcfg.ProtoTCP:
		addr, err := parseIPv4(p.IPAddr)
		if err != nil {
			return nil, err
		}
		return transport.ListenTCP(addr, p.PortUint16(), p.Backlog, p.Device)
	case portcfg.ProtoUDP:
		addr, err := parseIPv4(p.IPAddr)
		if err != nil {
			return nil, err
		}
		return transport.NewUDPListener(addr, p.PortUint16(), p.Device)
	case portcfg.ProtoICMP:
		return transport.NewICMPSocket(p.PortUint16(), true)
	case portcfg.ProtoRAW:
		// RAW sockets are addressed by IP protocol number, not a TCP/UDP
		// port; the port configuration's port_number field is repurposed to
		// carry it (spec.md §3 leaves RAW's "port" meaning to the
		// implementation, §9).
		return transport.NewRawSocket(p.PortNumber)
	case portcfg.ProtoPipe:
		return transport.OpenPipeListener(p.RecvPipe.Path, p.SendPipe.Path)
	default:
		return nil, fmt.Errorf("unsupported proto %q", p.Proto)
	}
}

func parseIPv4(addr string) ([4]byte, error) {
	if addr == "" || addr == portcfg.AnyAddress {
		return [4]byte{}, nil
	}
	ip := net.ParseIP(addr)
	if ip == nil {
		return [4]byte{}, fmt.Errorf("invalid IPv4 address %q", addr)
	}
	ip4 := ip.To4()
	if ip4 == nil {
		return [4]byte{}, fmt.Errorf("address %q is not IPv4", addr)
	}
	var out [4]byte
	copy(out[:], ip4)
	return out, nil
}
