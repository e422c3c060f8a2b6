package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shirou/gopsutil/v3/process"
	uatomic "go.uber.org/atomic"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/lk2023060901/garden-chat-go/internal/chat/audit"
	"github.com/lk2023060901/garden-chat-go/internal/chat/auth"
	"github.com/lk2023060901/garden-chat-go/internal/chat/framer"
	"github.com/lk2023060901/garden-chat-go/internal/chat/registry"
	"github.com/lk2023060901/garden-chat-go/pkg/log"
	"github.com/lk2023060901/garden-chat-go/pkg/metrics"
	"github.com/lk2023060901/garden-chat-go/pkg/util/conc"
	"github.com/lk2023060901/garden-chat-go/pkg/util/retry"
)

// Config tunes the chat server.
type Config struct {
	// Addr is the TCP listen address.
	Addr string `mapstructure:"addr"`
	// MetricsAddr serves Prometheus metrics and pprof over HTTP.
	// Empty disables the endpoint.
	MetricsAddr string `mapstructure:"metrics-addr"`
	// MaxFrameSize bounds a single wire frame payload in bytes.
	MaxFrameSize int `mapstructure:"max-frame-size"`
	// MaxConns caps concurrently handled connections.
	MaxConns int `mapstructure:"max-conns"`
	// MetricsInterval is the stats report period.
	MetricsInterval time.Duration `mapstructure:"metrics-interval"`
	// MaxPasswordAttempts terminates a connection after this many wrong
	// passwords.
	MaxPasswordAttempts int `mapstructure:"max-password-attempts"`
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		Addr:                ":5000",
		MaxFrameSize:        framer.DefaultMaxFrameSize,
		MaxConns:            4096,
		MetricsInterval:     5 * time.Second,
		MaxPasswordAttempts: 2,
	}
}

func (c *Config) withDefaults() {
	def := DefaultConfig()
	if c.Addr == "" {
		c.Addr = def.Addr
	}
	if c.MaxFrameSize <= 0 {
		c.MaxFrameSize = def.MaxFrameSize
	}
	if c.MaxConns <= 0 {
		c.MaxConns = def.MaxConns
	}
	if c.MetricsInterval <= 0 {
		c.MetricsInterval = def.MetricsInterval
	}
	if c.MaxPasswordAttempts <= 0 {
		c.MaxPasswordAttempts = def.MaxPasswordAttempts
	}
}

// Server accepts TCP connections and runs one handler per connection on a
// bounded goroutine pool.
type Server struct {
	cfg Config

	creds    *auth.Store
	registry *registry.Registry
	audit    *audit.Logger
	framer   *framer.Framer
	pool     *conc.Pool

	// processed counts inbound chat messages since the last stats report.
	processed uatomic.Int64

	// listenAddr holds the bound net.Addr once Serve is listening.
	listenAddr uatomic.Value

	lg *log.MLogger
}

// New creates a server. creds must not be nil; a nil auditLogger disables
// the audit trail.
func New(cfg Config, creds *auth.Store, auditLogger *audit.Logger) (*Server, error) {
	cfg.withDefaults()
	if auditLogger == nil {
		auditLogger = audit.Nop()
	}

	pool, err := conc.NewPool(cfg.MaxConns, conc.WithNonBlocking(true), conc.WithConcealPanic(true))
	if err != nil {
		return nil, err
	}

	return &Server{
		cfg:      cfg,
		creds:    creds,
		registry: registry.New(),
		audit:    auditLogger,
		framer:   framer.New(cfg.MaxFrameSize),
		pool:     pool,
		lg:       log.With(log.FieldComponent("chatserver")),
	}, nil
}

// Registry exposes the session registry, mainly for tests and stats.
func (s *Server) Registry() *registry.Registry {
	return s.registry
}

// Addr returns the bound listen address, or nil before Serve is listening.
// Useful when cfg.Addr requests an ephemeral port.
func (s *Server) Addr() net.Addr {
	if addr, ok := s.listenAddr.Load().(net.Addr); ok {
		return addr
	}
	return nil
}

// Serve listens on cfg.Addr and runs until ctx is canceled. It owns the
// accept loop, the periodic stats reporter and the optional metrics HTTP
// endpoint; all of them stop together.
func (s *Server) Serve(ctx context.Context) error {
	// The port can linger in TIME_WAIT briefly after a restart; retry the
	// bind instead of failing the process.
	var ln net.Listener
	err := retry.Do(ctx, func() error {
		var err error
		ln, err = net.Listen("tcp", s.cfg.Addr)
		return err
	}, retry.Attempts(5), retry.Sleep(200*time.Millisecond))
	if err != nil {
		return err
	}
	s.listenAddr.Store(ln.Addr())
	s.lg.Info("chat server listening", zap.String("addr", ln.Addr().String()))

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	group, ctx := errgroup.WithContext(ctx)

	group.Go(func() error {
		<-ctx.Done()
		return ln.Close()
	})
	group.Go(func() error {
		return s.acceptLoop(ctx, ln)
	})
	group.Go(func() error {
		s.statsLoop(ctx)
		return nil
	})
	if s.cfg.MetricsAddr != "" {
		group.Go(func() error {
			return s.serveMetrics(ctx)
		})
	}

	err = group.Wait()
	s.pool.Release()
	s.audit.Close()
	if errors.Is(err, net.ErrClosed) || errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (s *Server) acceptLoop(ctx context.Context, ln net.Listener) error {
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return err
		}

		metrics.ConnectionsAccepted.Inc()
		s.audit.Connect(conn.RemoteAddr().String())
		s.lg.Info("client connected", zap.String("remote", conn.RemoteAddr().String()))

		h := newConnHandler(s, conn)
		if err := s.pool.Submit(func() { h.run(ctx) }); err != nil {
			s.lg.Warn("connection pool saturated, rejecting client",
				zap.String("remote", conn.RemoteAddr().String()),
				zap.Error(err))
			_ = conn.Close()
		}
	}
}

// statsLoop reports throughput and process health every MetricsInterval.
// The processed counter is swapped to zero each tick, so the rate covers
// exactly one interval.
func (s *Server) statsLoop(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.MetricsInterval)
	defer ticker.Stop()

	proc, procErr := process.NewProcess(int32(os.Getpid()))

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			processed := s.processed.Swap(0)
			rate := float64(processed) / s.cfg.MetricsInterval.Seconds()

			fields := []zap.Field{
				zap.Float64("msgsPerSec", rate),
				zap.Int("online", s.registry.Count()),
				zap.Int("handlers", s.pool.Running()),
			}
			if procErr == nil {
				if cpu, err := proc.CPUPercent(); err == nil {
					fields = append(fields, zap.Float64("cpuPercent", cpu))
				}
				if mem, err := proc.MemoryInfo(); err == nil {
					fields = append(fields, zap.Uint64("rssMB", mem.RSS/1024/1024))
				}
			}
			s.lg.Info("server stats", fields...)
		}
	}
}

func (s *Server) serveMetrics(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(
		prometheus.DefaultGatherer,
		promhttp.HandlerOpts{EnableOpenMetrics: true},
	))
	mux.Handle("/", http.DefaultServeMux) // pprof registers itself there

	srv := &http.Server{
		Addr:              s.cfg.MetricsAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	s.lg.Info("metrics endpoint listening", zap.String("addr", s.cfg.MetricsAddr))
	if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
