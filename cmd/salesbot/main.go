package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/errgroup"

	"github.com/fxcobra/salesbot/internal/catalog"
	"github.com/fxcobra/salesbot/internal/config"
	"github.com/fxcobra/salesbot/internal/currency"
	"github.com/fxcobra/salesbot/internal/database"
	"github.com/fxcobra/salesbot/internal/dispatch"
	"github.com/fxcobra/salesbot/internal/flow"
	"github.com/fxcobra/salesbot/internal/notify"
	"github.com/fxcobra/salesbot/internal/orders"
	"github.com/fxcobra/salesbot/internal/registry"
	"github.com/fxcobra/salesbot/internal/session"
	"github.com/fxcobra/salesbot/internal/transport"
	"github.com/fxcobra/salesbot/internal/version"
)

func main() {
	configPath := flag.String("config", "configs/salesbot.local.yaml", "path to config file")
	flag.Parse()

	// Set up structured logging
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
	slog.SetDefault(logger)

	logger.Info("starting salesbot",
		"version", version.Version,
		"commit", version.Commit,
		"config", *configPath,
	)

	// Load configuration
	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger.Info("configuration loaded",
		"instance_id", cfg.Instance.ID,
		"gateway_url", cfg.Transport.URL,
		"business", cfg.Shop.BusinessName,
	)

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	// Connect to database
	logger.Info("connecting to database",
		"host", cfg.Database.Host,
		"port", cfg.Database.Port,
		"database", cfg.Database.Name,
	)

	db, err := database.Connect(ctx, cfg.Database)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	logger.Info("database connected")

	// Shop data layers
	reg := registry.New()
	resolver := catalog.NewPGResolver(db)
	store := orders.NewPGStore(db)
	cur := currency.NewPGProvider(db, logger)

	var notifier flow.Notifier = notify.Nop{}
	if cfg.SMS.APIKey != "" {
		notifier = notify.NewSMS(cfg.SMS, logger)
		logger.Info("sms notifications enabled", "recipient", cfg.SMS.Recipient)
	}

	// Gateway session
	creds := session.NewCredStore(cfg.Session.CredsDir, cfg.Session.ProfileID)
	mgr := session.NewManager(sessionConfig(cfg), creds, logger)
	mgr.OnReady(func(s *session.Session) {
		logger.Info("session ready", "identity", s.Identity)
	})
	if err := mgr.Start(ctx); err != nil {
		logger.Error("failed to start session manager", "error", err)
		os.Exit(1)
	}

	dispatcher := dispatch.New(dispatch.Config{
		MaxAttempts: cfg.Dispatch.MaxAttempts,
		BaseDelay:   cfg.Dispatch.BaseDelay,
	}, mgr, logger)

	engine := flow.New(
		flow.Config{BusinessName: cfg.Shop.BusinessName},
		reg, resolver, store, cur, notifier, dispatcher, logger,
	)

	// Health server
	healthServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Health.Port),
		Handler: createHealthHandler(db, mgr, reg),
	}
	go func() {
		logger.Info("health server listening", "addr", healthServer.Addr)
		if err := healthServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("health server failed", "error", err)
		}
	}()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		engine.Run(gctx, mgr.Inbound())
		return nil
	})

	g.Go(func() error {
		select {
		case err := <-mgr.Fatal():
			return fmt.Errorf("session: %w", err)
		case <-gctx.Done():
			return nil
		}
	})

	logger.Info("salesbot running",
		"instance_id", cfg.Instance.ID,
		"health_url", fmt.Sprintf("http://localhost:%d/health", cfg.Health.Port),
	)

	runErr := g.Wait()

	logger.Info("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	healthServer.Shutdown(shutdownCtx)
	if err := mgr.Stop(shutdownCtx); err != nil {
		logger.Warn("session manager stop", "error", err)
	}

	if runErr != nil {
		logger.Error("salesbot stopped", "error", runErr)
		os.Exit(1)
	}
	logger.Info("salesbot stopped")
}

// sessionConfig maps file configuration onto the session manager config.
func sessionConfig(cfg *config.BotConfig) session.Config {
	tcfg := transport.DefaultClientConfig()
	tcfg.URL = cfg.Transport.URL
	tcfg.Token = cfg.Transport.Token
	if cfg.Transport.HandshakeTimeout > 0 {
		tcfg.HandshakeTimeout = cfg.Transport.HandshakeTimeout
	}
	if cfg.Transport.PingInterval > 0 {
		tcfg.PingInterval = cfg.Transport.PingInterval
	}
	if cfg.Transport.PingTimeout > 0 {
		tcfg.PingTimeout = cfg.Transport.PingTimeout
	}
	if cfg.Transport.WriteTimeout > 0 {
		tcfg.WriteTimeout = cfg.Transport.WriteTimeout
	}
	if cfg.Transport.AckTimeout > 0 {
		tcfg.AckTimeout = cfg.Transport.AckTimeout
	}
	if cfg.Transport.BufferSize > 0 {
		tcfg.BufferSize = cfg.Transport.BufferSize
	}

	scfg := session.DefaultConfig()
	scfg.Transport = tcfg
	scfg.MaxReconnects = cfg.Session.MaxReconnects
	if cfg.Session.ReconnectBaseDelay > 0 {
		scfg.ReconnectBaseDelay = cfg.Session.ReconnectBaseDelay
	}
	if cfg.Session.ReconnectMaxDelay > 0 {
		scfg.ReconnectMaxDelay = cfg.Session.ReconnectMaxDelay
	}
	if cfg.Session.IdentityWait > 0 {
		scfg.IdentityWait = cfg.Session.IdentityWait
	}
	if cfg.Session.IdentityPoll > 0 {
		scfg.IdentityPoll = cfg.Session.IdentityPoll
	}
	return scfg
}

// createHealthHandler creates the HTTP handler for health checks.
func createHealthHandler(db *pgxpool.Pool, mgr *session.Manager, reg *registry.Registry) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		health := struct {
			Status     string                 `json:"status"`
			Components map[string]interface{} `json:"components"`
		}{
			Status:     "healthy",
			Components: make(map[string]interface{}),
		}

		// Check database
		if err := db.Ping(ctx); err != nil {
			health.Status = "unhealthy"
			health.Components["postgres"] = map[string]string{
				"status": "disconnected",
				"error":  err.Error(),
			}
		} else {
			health.Components["postgres"] = "connected"
		}

		// Check gateway session
		state := mgr.State()
		health.Components["session"] = map[string]interface{}{
			"state":    string(state),
			"attempts": mgr.Attempts(),
		}
		if state != session.StateOpen {
			health.Status = "degraded"
		}

		health.Components["conversations"] = map[string]int{
			"active": reg.Len(),
		}

		// Set response
		w.Header().Set("Content-Type", "application/json")
		if health.Status == "unhealthy" {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		json.NewEncoder(w).Encode(health)
	})

	return mux
}
