package status

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"runtime"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/serveez-go/serveez/internal/registry"
)

// Server is the read-only status/introspection HTTP server. It exposes no
// write operations: every route in spec.md's ambient observability surface
// is a GET (spec.md explicit Non-goal: no remote management plane).
type Server struct {
	counters   *Counters
	reg        *registry.Registry
	logger     *slog.Logger
	engine     *gin.Engine
	httpServer *http.Server
	startTime  time.Time
}

// New builds a Server bound to host:port, reporting against counters and
// reg. Panics on a nil counters or reg, matching the teacher's api.New
// nil-config panic.
func New(host string, port int, counters *Counters, reg *registry.Registry, logger *slog.Logger) *Server {
	if counters == nil || reg == nil {
		panic("status.New: counters and reg are required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())

	s := &Server{counters: counters, reg: reg, logger: logger, engine: engine, startTime: time.Now()}
	engine.GET("/health", s.health)
	engine.GET("/stats", s.stats)

	addr := net.JoinHostPort(host, strconv.Itoa(port))
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           engine,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s
}

// Addr returns the configured listen address.
func (s *Server) Addr() string { return s.httpServer.Addr }

// ListenAndServe runs the HTTP server until it errors or is shut down.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// stats reports registry/loop/rate counters plus process stats, following
// the teacher's Stats handler (system memory via gopsutil/mem, CPU via
// gopsutil/cpu sampled over 200ms, then the domain-specific counters).
func (s *Server) stats(c *gin.Context) {
	uptime := time.Since(s.startTime)

	memPercent := 0.0
	memUsedMB := 0.0
	if vm, err := mem.VirtualMemory(); err == nil {
		memUsedMB = float64(vm.Used) / 1024 / 1024
		memPercent = vm.UsedPercent
	}

	cpuPercent := 0.0
	if pct, err := cpu.Percent(200*time.Millisecond, false); err == nil && len(pct) > 0 {
		cpuPercent = pct[0]
	}

	c.JSON(http.StatusOK, gin.H{
		"uptime_seconds": int64(uptime.Seconds()),
		"start_time":     s.startTime,
		"num_cpu":        runtime.NumCPU(),
		"cpu_percent":    cpuPercent,
		"mem_used_mb":    memUsedMB,
		"mem_percent":    memPercent,
		"counters":       s.counters.Snapshot(s.reg.Len()),
	})
}
