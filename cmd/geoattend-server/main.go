package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/yndnr/geoattend-go/internal/core/service"
	"github.com/yndnr/geoattend-go/internal/infra/buildinfo"
	"github.com/yndnr/geoattend-go/internal/infra/confloader"
	"github.com/yndnr/geoattend-go/internal/infra/shutdown"
	"github.com/yndnr/geoattend-go/internal/infra/tlsroots"
	"github.com/yndnr/geoattend-go/internal/server/config"
	"github.com/yndnr/geoattend-go/internal/server/httpserver"
	"github.com/yndnr/geoattend-go/internal/server/httpserver/handler"
	"github.com/yndnr/geoattend-go/internal/storage"
	"github.com/yndnr/geoattend-go/internal/storage/memory"
	"github.com/yndnr/geoattend-go/internal/storage/zonefile"
	"github.com/yndnr/geoattend-go/internal/telemetry/logger"
	"github.com/yndnr/geoattend-go/internal/telemetry/metric"
)

const envPrefix = "GEOATTEND_"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		configFile  = flag.String("config", "", "Path to configuration file")
		showVersion = flag.Bool("version", false, "Show version information")
	)
	flag.Parse()

	if *showVersion {
		info := buildinfo.Get()
		fmt.Printf("geoattend-server %s (commit: %s, built: %s, %s)\n",
			info.Version, info.Commit, info.BuildTime, info.GoVersion)
		return nil
	}

	cfg, err := loadConfig(*configFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log := logger.Setup(cfg.LoggerConfig())
	log.Info("starting geoattend-server",
		"version", buildinfo.Version,
		"commit", buildinfo.Commit,
		"config", *configFile,
		"storage", cfg.Storage.Backend)
	log.Debug("effective configuration", "config", config.Sanitize(cfg))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reg := metric.NewRegistry()
	shut := shutdown.NewHandler(cfg.Server.ShutdownTimeout, log)

	engine, err := storage.Open(ctx, cfg.StorageConfig(reg.Registerer(), log))
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	shut.OnShutdown("storage", func(context.Context) error {
		return engine.Close()
	})

	zones, reloader, err := initZones(cfg, shut, log)
	if err != nil {
		engine.Close()
		return err
	}
	zones.SetObserver(reg)
	zones.Start()
	shut.OnShutdown("zone-registry", func(context.Context) error {
		zones.Stop()
		return nil
	})

	attendance := service.NewAttendanceService(engine.Sessions(), engine.Audit(), zones,
		cfg.AttendanceServiceConfig(), log)
	attendance.SetObserver(reg)
	if err := engine.Recover(ctx, attendance); err != nil {
		engine.Close()
		return err
	}

	auth := service.NewAuthService(engine.APIKeys(), cfg.AuthServiceConfig(), log)
	if n, err := auth.Bootstrap(ctx, cfg.BootstrapKeys()); err != nil {
		engine.Close()
		return fmt.Errorf("bootstrap api keys: %w", err)
	} else if n > 0 {
		log.Info("bootstrap api keys created", "count", n)
	}

	if err := reg.Registerer().Register(metric.NewCollector(func() metric.Stats {
		return metric.Stats{
			Sessions:      int64(engine.SessionCount()),
			AuditRecords:  int64(engine.AuditLen()),
			CachedTenants: int64(zones.Len()),
		}
	})); err != nil {
		log.Warn("engine collector not registered", "error", err)
	}

	srv, err := newHTTPServer(ctx, cfg, &httpserver.RouterConfig{
		AttendanceService:   attendance,
		AuthService:         auth,
		Zones:               reloader,
		Readiness:           map[string]handler.ReadinessCheck{"storage": engine.Ping},
		Metrics:             reg,
		MetricsHandler:      reg.Handler(),
		Logger:              log,
		AdminAllowList:      cfg.Security.AdminAllowlist,
		MetricsAuthRequired: cfg.Security.MetricsAuth,
		CORSAllowedOrigins:  cfg.Server.HTTP.CORSAllowedOrigins,
		GlobalRateLimit:     cfg.Server.HTTP.RateLimit,
		MaxBodyBytes:        cfg.Server.HTTP.MaxBodyBytes,
		TrustProxyHeaders:   cfg.Server.HTTP.TrustProxyHeaders,
		EnableAudit:         true,
		RetryAfter:          cfg.Server.HTTP.RetryAfter,
	}, log)
	if err != nil {
		engine.Close()
		return err
	}
	shut.OnShutdown("http", srv.Shutdown)

	go func() {
		if err := srv.ListenAndServe(); err != nil {
			log.Error("http server error", "error", err)
			shut.Trigger()
		}
	}()

	log.Info("server started", "addr", cfg.Server.HTTP.Addr, "tls", cfg.Server.HTTP.TLS.Enabled)
	if err := shut.Wait(ctx); err != nil {
		log.Error("shutdown error", "error", err)
		return err
	}

	log.Info("server stopped gracefully")
	return nil
}

// loadConfig loads defaults, then the file, then the environment.
func loadConfig(configFile string) (*config.ServerConfig, error) {
	cfg := config.Default()

	opts := []confloader.Option{confloader.WithEnvPrefix(envPrefix)}
	if configFile != "" {
		opts = append(opts, confloader.WithConfigFile(configFile))
	}

	if err := confloader.NewLoader(opts...).Load(cfg); err != nil {
		return nil, err
	}
	if err := config.Verify(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// initZones builds the zone registry over the zone file, or over an empty
// store when no file is configured. The returned reloader is nil in the
// latter case.
func initZones(cfg *config.ServerConfig, shut *shutdown.Handler, log *slog.Logger) (*service.ZoneRegistry, handler.ZoneReloader, error) {
	if cfg.Zones.File == "" {
		log.Warn("no zone file configured, every tenant has zero zones")
		return service.NewZoneRegistry(memory.NewZoneStore(), cfg.ZoneRegistryConfig(), log), nil, nil
	}

	src, err := zonefile.Open(cfg.Zones.File, log)
	if err != nil {
		return nil, nil, fmt.Errorf("open zone file: %w", err)
	}
	zones := service.NewZoneRegistry(src, cfg.ZoneRegistryConfig(), log)
	log.Info("zone file loaded", "path", src.Path(), "tenants", len(src.Tenants()))

	if cfg.Zones.Watch {
		w, err := confloader.NewWatcher(confloader.WithWatcherLogger(log))
		if err != nil {
			return nil, nil, fmt.Errorf("zone watcher: %w", err)
		}
		if err := src.Watch(w, zones.InvalidateAll); err != nil {
			w.Stop()
			return nil, nil, err
		}
		w.StartAsync()
		shut.OnShutdown("zone-watcher", func(context.Context) error {
			return w.Stop()
		})
	}

	reloader := handler.ZoneReloaderFunc(func(context.Context) (int, error) {
		if err := src.Reload(); err != nil {
			return 0, err
		}
		zones.InvalidateAll()
		return len(src.Tenants()), nil
	})
	return zones, reloader, nil
}

// newHTTPServer builds the router and listener, with a reloading
// certificate when TLS is enabled.
func newHTTPServer(ctx context.Context, cfg *config.ServerConfig, rc *httpserver.RouterConfig, log *slog.Logger) (*httpserver.Server, error) {
	h := cfg.Server.HTTP
	opts := httpserver.Options{
		Addr:         h.Addr,
		ReadTimeout:  h.ReadTimeout,
		WriteTimeout: h.WriteTimeout,
		IdleTimeout:  h.IdleTimeout,
		Logger:       log,
	}

	if h.TLS.Enabled {
		w, err := tlsroots.NewCertWatcher(tlsroots.ServerOptions{
			CertFile:     h.TLS.CertFile,
			KeyFile:      h.TLS.KeyFile,
			ClientCAFile: h.TLS.ClientCAFile,
		}, tlsroots.WithLogger(log))
		if err != nil {
			return nil, fmt.Errorf("load tls certificate: %w", err)
		}
		tlsCfg, err := httpserver.NewTLSConfig(w, h.TLS.ClientCAFile)
		if err != nil {
			return nil, fmt.Errorf("tls config: %w", err)
		}
		opts.TLS = tlsCfg
		go func() {
			if err := w.Run(ctx); err != nil && ctx.Err() == nil {
				log.Error("certificate watcher stopped", "error", err)
			}
		}()
	}

	return httpserver.New(opts, httpserver.NewRouter(rc)), nil
}
