// Package app assembles the reminder runtime: storage, lifecycle service,
// scheduler, admin HTTP API and the gRPC health endpoint.
package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	grpc_health_v1 "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/louisbranch/docwatch/internal/platform/adminauth"
	"github.com/louisbranch/docwatch/internal/platform/logging"
	platformredis "github.com/louisbranch/docwatch/internal/platform/redis"
	"github.com/louisbranch/docwatch/internal/platform/timeouts"
	"github.com/louisbranch/docwatch/internal/services/documents/api/http/admin"
	"github.com/louisbranch/docwatch/internal/services/documents/delivery"
	"github.com/louisbranch/docwatch/internal/services/documents/delivery/telegram"
	"github.com/louisbranch/docwatch/internal/services/documents/domain"
	"github.com/louisbranch/docwatch/internal/services/documents/render"
	"github.com/louisbranch/docwatch/internal/services/documents/scheduler"
	docsqlite "github.com/louisbranch/docwatch/internal/services/documents/storage/sqlite"
)

const (
	defaultPort      = 8095
	defaultHTTPAddr  = ":8096"
	defaultDBPath    = "data/docwatch.db"
	defaultLockKey   = "docwatch:reminders:tick"
	healthServiceKey = "docwatch.reminders"
)

// RuntimeConfig controls reminder runtime startup and loop behavior.
type RuntimeConfig struct {
	// Port serves gRPC health checks.
	Port int
	// HTTPAddr serves the admin API and /metrics.
	HTTPAddr string
	DBPath   string

	TelegramToken   string
	TelegramBaseURL string
	// Sender replaces the Telegram sender when set.
	Sender delivery.Sender

	// AdminKey signs admin bearer tokens. Without it every admin route
	// answers 401.
	AdminKey    []byte
	AdminIssuer string

	RedisURL string
	LockKey  string
	LockTTL  time.Duration

	TickInterval    time.Duration
	RunOnStart      bool
	LookaheadDays   int
	Concurrency     int
	DeliveryTimeout time.Duration

	Policy          domain.Policy
	DefaultWindow   domain.NotificationWindow
	DefaultLocation *time.Location
	DefaultLeadDays int
	// LeadDays overrides the reminder threshold per document type code.
	LeadDays map[string]int
	Rules    domain.RuleTable

	Logger logrus.FieldLogger
	Clock  func() time.Time
}

func (cfg RuntimeConfig) normalized() RuntimeConfig {
	if cfg.Port <= 0 {
		cfg.Port = defaultPort
	}
	if strings.TrimSpace(cfg.HTTPAddr) == "" {
		cfg.HTTPAddr = defaultHTTPAddr
	}
	if strings.TrimSpace(cfg.DBPath) == "" {
		cfg.DBPath = defaultDBPath
	}
	if strings.TrimSpace(cfg.LockKey) == "" {
		cfg.LockKey = defaultLockKey
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = timeouts.LockTTL
	}
	if cfg.DefaultLocation == nil {
		cfg.DefaultLocation = time.UTC
	}
	if cfg.Policy.Cadence == "" {
		cfg.Policy = domain.DefaultPolicy()
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Discard()
	}
	return cfg
}

// Runtime owns every long-lived dependency of the reminder service.
type Runtime struct {
	cfg      RuntimeConfig
	log      logrus.FieldLogger
	store    *docsqlite.Store
	redis    *platformredis.Client
	registry *prometheus.Registry
	service  *domain.Service
	runner   *scheduler.Runner
	handler  http.Handler
}

// New opens storage, bootstraps the document catalog and wires the
// scheduler and admin API. Close releases what New opened.
func New(ctx context.Context, cfg RuntimeConfig) (*Runtime, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg = cfg.normalized()
	log := cfg.Logger

	if dir := filepath.Dir(cfg.DBPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create storage dir: %w", err)
		}
	}
	store, err := docsqlite.Open(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open document store: %w", err)
	}
	rt := &Runtime{cfg: cfg, log: log, store: store}
	if err := rt.wire(ctx); err != nil {
		_ = rt.Close()
		return nil, err
	}
	return rt, nil
}

func (rt *Runtime) wire(ctx context.Context) error {
	cfg := rt.cfg
	if err := rt.store.UpsertDocumentTypes(ctx, domain.DefaultCatalog(cfg.DefaultLeadDays, cfg.LeadDays)); err != nil {
		return fmt.Errorf("bootstrap document catalog: %w", err)
	}

	renderer, err := render.NewRenderer()
	if err != nil {
		return fmt.Errorf("build renderer: %w", err)
	}
	sender := cfg.Sender
	if sender == nil {
		opts := []telegram.Option{}
		if strings.TrimSpace(cfg.TelegramBaseURL) != "" {
			opts = append(opts, telegram.WithBaseURL(cfg.TelegramBaseURL))
		}
		tg, err := telegram.NewSender(cfg.TelegramToken, opts...)
		if err != nil {
			return fmt.Errorf("build telegram sender: %w", err)
		}
		sender = tg
	}

	rt.service = domain.NewService(domain.ServiceDeps{
		Store:    rt.store,
		Prompter: newTravelPrompter(renderer, sender),
		Rules:    cfg.Rules,
		Clock:    cfg.Clock,
		Logger:   rt.log.WithField("component", "lifecycle"),
	})

	rt.registry = prometheus.NewRegistry()
	rt.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := scheduler.NewMetrics(rt.registry)

	sched, err := scheduler.New(scheduler.Config{
		Policy:          cfg.Policy,
		DefaultWindow:   cfg.DefaultWindow,
		DefaultLocation: cfg.DefaultLocation,
		LookaheadDays:   cfg.LookaheadDays,
		Concurrency:     cfg.Concurrency,
		DeliveryTimeout: cfg.DeliveryTimeout,
	}, scheduler.Deps{
		Store:    rt.store,
		Renderer: renderer,
		Sender:   sender,
		Metrics:  metrics,
		Logger:   rt.log.WithField("component", "scheduler"),
		Clock:    cfg.Clock,
	})
	if err != nil {
		return fmt.Errorf("build scheduler: %w", err)
	}

	runnerCfg := scheduler.RunnerConfig{Interval: cfg.TickInterval, RunOnStart: cfg.RunOnStart}
	rt.redis, err = platformredis.New(ctx, platformredis.Config{URL: cfg.RedisURL})
	if err != nil {
		return fmt.Errorf("connect redis: %w", err)
	}
	if rt.redis != nil {
		locker, err := platformredis.NewLocker(rt.redis.Client, cfg.LockKey, cfg.LockTTL)
		if err != nil {
			return fmt.Errorf("build tick lock: %w", err)
		}
		runnerCfg.Guard = locker
		rt.log.WithField("lock_key", cfg.LockKey).Info("distributed tick lock enabled")
	}
	rt.runner, err = scheduler.NewRunner(sched, runnerCfg, metrics, rt.log.WithField("component", "runner"))
	if err != nil {
		return fmt.Errorf("build runner: %w", err)
	}

	var verifier admin.Verifier
	if len(cfg.AdminKey) > 0 {
		auth, err := adminauth.New(cfg.AdminKey, cfg.AdminIssuer)
		if err != nil {
			return fmt.Errorf("build admin authenticator: %w", err)
		}
		verifier = auth
	} else {
		rt.log.Warn("admin signing key not configured; admin API rejects every request")
	}
	rt.handler = admin.New(admin.Deps{
		Service:  rt.service,
		Ticks:    rt.runner,
		Verifier: verifier,
		Metrics:  promhttp.HandlerFor(rt.registry, promhttp.HandlerOpts{Registry: rt.registry}),
		Logger:   rt.log.WithField("component", "admin"),
	}).Router()
	return nil
}

// Handler returns the admin API and metrics handler.
func (rt *Runtime) Handler() http.Handler {
	return rt.handler
}

// Service returns the lifecycle service.
func (rt *Runtime) Service() *domain.Service {
	return rt.service
}

// Runner returns the tick runner.
func (rt *Runtime) Runner() *scheduler.Runner {
	return rt.runner
}

// Serve runs the scheduler, the HTTP server and the gRPC health server until
// ctx is done or one of them fails. It waits for an in-flight tick before
// returning.
func (rt *Runtime) Serve(ctx context.Context) error {
	httpListener, err := net.Listen("tcp", rt.cfg.HTTPAddr)
	if err != nil {
		return fmt.Errorf("listen on http addr %s: %w", rt.cfg.HTTPAddr, err)
	}
	grpcListener, err := net.Listen("tcp", fmt.Sprintf(":%d", rt.cfg.Port))
	if err != nil {
		_ = httpListener.Close()
		return fmt.Errorf("listen on health port %d: %w", rt.cfg.Port, err)
	}
	return rt.serve(ctx, httpListener, grpcListener)
}

func (rt *Runtime) serve(ctx context.Context, httpListener, grpcListener net.Listener) error {
	httpServer := &http.Server{
		Handler:           rt.handler,
		ReadHeaderTimeout: timeouts.ReadHeader,
	}
	grpcServer := grpc.NewServer(grpc.StatsHandler(otelgrpc.NewServerHandler()))
	healthServer := health.NewServer()
	grpc_health_v1.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)
	healthServer.SetServingStatus(healthServiceKey, grpc_health_v1.HealthCheckResponse_SERVING)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return rt.runner.Run(gctx)
	})
	g.Go(func() error {
		rt.log.WithField("addr", httpListener.Addr().String()).Info("admin http listening")
		if err := httpServer.Serve(httpListener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve http: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		rt.log.WithField("addr", grpcListener.Addr().String()).Info("health grpc listening")
		if err := grpcServer.Serve(grpcListener); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			return fmt.Errorf("serve grpc: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		healthServer.Shutdown()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), timeouts.Shutdown)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			rt.log.WithError(err).Warn("http shutdown")
		}
		grpcServer.GracefulStop()
		return nil
	})

	return g.Wait()
}

// Close releases storage and the Redis connection.
func (rt *Runtime) Close() error {
	if rt == nil {
		return nil
	}
	var errs []error
	if err := rt.redis.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close redis: %w", err))
	}
	if err := rt.store.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close document store: %w", err))
	}
	return errors.Join(errs...)
}

// Run starts the reminder runtime and blocks until ctx is done.
func Run(ctx context.Context, cfg RuntimeConfig) error {
	rt, err := New(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := rt.Close(); err != nil {
			rt.log.WithError(err).Warn("close runtime")
		}
	}()
	return rt.Serve(ctx)
}
