package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/tutu-network/cityledger/internal/api"
	"github.com/tutu-network/cityledger/internal/app"
	"github.com/tutu-network/cityledger/internal/app/agents"
	"github.com/tutu-network/cityledger/internal/app/emergency"
	"github.com/tutu-network/cityledger/internal/app/fund"
	"github.com/tutu-network/cityledger/internal/app/governance"
	"github.com/tutu-network/cityledger/internal/app/reputation"
	"github.com/tutu-network/cityledger/internal/domain"
	"github.com/tutu-network/cityledger/internal/health"
	"github.com/tutu-network/cityledger/internal/infra/access"
	"github.com/tutu-network/cityledger/internal/infra/badger"
	"github.com/tutu-network/cityledger/internal/infra/eventbus"
	"github.com/tutu-network/cityledger/internal/infra/memstore"
	"github.com/tutu-network/cityledger/internal/infra/oracle"
	"github.com/tutu-network/cityledger/internal/infra/sqlite"
)

// Daemon is the core cityledger runtime. It wires together all services.
type Daemon struct {
	Config Config
	Store  domain.Store
	Roles  *access.Roles
	Bus    *eventbus.Bus
	Logger *slog.Logger

	Governance *governance.Service
	Fund       *fund.Ledger
	Emergency  *emergency.Service
	Agents     *agents.Registry
	Health     *health.Checker
	Server     *api.Server

	cancel context.CancelFunc
}

// Options adjust how New builds the daemon.
type Options struct {
	Logger       *slog.Logger
	Now          func() time.Time      // Clock; time.Now when nil
	PromRegistry prometheus.Registerer // Event bus metrics; nil disables
}

// New creates a Daemon with every ledger wired to one store.
func New(cfg Config, opts Options) (*Daemon, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	store, err := OpenStore(cfg.Storage, logger)
	if err != nil {
		return nil, err
	}

	roles := access.NewRoles(domain.Identity(cfg.Roles.Admin), domain.Identity(cfg.Roles.Oracle))
	bus := eventbus.New(opts.PromRegistry, logger)

	deps := app.Deps{
		Store:  store,
		Access: roles,
		Events: bus,
		Now:    opts.Now,
		Logger: logger,
	}

	govCfg, repCfg := cfg.GovernanceSettings()
	advisor := oracle.Static{Text: cfg.Governance.Recommendation}
	ledger := fund.New(deps)

	d := &Daemon{
		Config:     cfg,
		Store:      store,
		Roles:      roles,
		Bus:        bus,
		Logger:     logger.With("component", "daemon"),
		Governance: governance.NewService(deps, reputation.New(repCfg), advisor, govCfg),
		Fund:       ledger,
		Emergency: emergency.NewService(deps, ledger, emergency.Config{
			VerifyThreshold: cfg.Emergency.VerifyThreshold,
			MinPayoutVotes:  cfg.Emergency.MinPayoutVotes,
		}),
		Agents: agents.NewRegistry(deps, agents.Config{
			InitialPerformance: cfg.Agents.InitialPerformance,
			InitialConfidence:  cfg.Agents.InitialConfidence,
		}),
	}

	// Health checker
	d.Health = health.NewChecker(store, ledger, cfg.Storage.Dir, logger)
	d.Health.SetInterval(parseDuration(cfg.Telemetry.HealthInterval, health.DefaultInterval))

	// Initialize API server
	d.Server = api.NewServer(api.Services{
		Governance: d.Governance,
		Fund:       d.Fund,
		Emergency:  d.Emergency,
		Agents:     d.Agents,
		Roles:      roles,
		Store:      store,
		Bus:        bus,
		Health:     d.Health,
	}, logger)

	// Enable Prometheus /metrics if configured
	if cfg.Telemetry.Prometheus {
		d.Server.EnableMetrics()
	}

	return d, nil
}

// OpenStore opens the configured storage backend.
func OpenStore(cfg StorageConfig, logger *slog.Logger) (domain.Store, error) {
	switch cfg.Backend {
	case BackendSQLite, "":
		db, err := sqlite.Open(cfg.Dir)
		if err != nil {
			return nil, fmt.Errorf("open database: %w", err)
		}
		return db, nil
	case BackendBadger:
		s, err := badger.Open(cfg.Dir, logger)
		if err != nil {
			return nil, fmt.Errorf("open database: %w", err)
		}
		return s, nil
	case BackendMemory:
		return memstore.New(), nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}

// Serve starts the HTTP server and blocks until ctx is done or a signal
// arrives.
func (d *Daemon) Serve(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	d.cancel = cancel
	defer cancel()

	// Health checker (always runs)
	go d.Health.Run(ctx)

	if interval := parseDuration(d.Config.Governance.AutoResolveInterval, 0); interval > 0 {
		go d.autoResolve(ctx, interval)
	}

	addr := net.JoinHostPort(d.Config.API.Host, strconv.Itoa(d.Config.API.Port))

	httpServer := &http.Server{
		Addr:         addr,
		Handler:      d.Server.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0, // Event streams stay open
		IdleTimeout:  2 * time.Minute,
	}

	// Graceful shutdown on signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	done := make(chan struct{})
	go func() {
		defer close(done)
		select {
		case sig := <-sigCh:
			d.Logger.Info("shutting down", "signal", sig.String())
		case <-ctx.Done():
		}

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		// Streams end when the bus closes.
		d.Bus.Close()
		_ = httpServer.Shutdown(shutdownCtx)
	}()

	d.Logger.Info("serving",
		"addr", "http://"+addr,
		"node", d.Config.Node.ID,
		"backend", d.Config.Storage.Backend,
		"metrics", d.Config.Telemetry.Prometheus,
	)

	err := httpServer.ListenAndServe()
	cancel()
	<-done
	if !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// autoResolve periodically resolves proposals whose voting window closed.
func (d *Daemon) autoResolve(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			resolved, err := d.Governance.ResolveExpired(ctx)
			if err != nil {
				d.Logger.Error("auto-resolve failed", "error", err)
				continue
			}
			for _, p := range resolved {
				d.Logger.Info("proposal auto-resolved", "proposal_id", p.ID, "status", p.Status.String())
			}
		}
	}
}

// Close shuts down all daemon resources.
func (d *Daemon) Close() error {
	if d.cancel != nil {
		d.cancel()
	}
	if d.Bus != nil {
		d.Bus.Close()
	}
	if d.Store != nil {
		return d.Store.Close()
	}
	return nil
}
