package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/charmbracelet/log"
	"github.com/coder/quartz"
	"golang.org/x/sync/errgroup"

	"github.com/lox/hotelling/cmd/hotelling/shared"
	"github.com/lox/hotelling/internal/backup"
	"github.com/lox/hotelling/internal/bot"
	"github.com/lox/hotelling/internal/server"
)

// ServerCmd runs one session.
type ServerCmd struct {
	Config   string `short:"c" default:"hotelling.hcl" help:"Path to HCL configuration file"`
	Addr     string `short:"a" help:"Address to bind to, host:port (overrides config)"`
	LogLevel string `short:"l" help:"Log level (overrides config)"`
	Load     string `help:"Resume from a JSON save file or a sqlite database"`
	Session  string `help:"Session to resume from a sqlite database (default: most recent)"`
}

func (c *ServerCmd) Run() error {
	cfg, err := server.LoadConfig(c.Config)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if err := c.applyOverrides(cfg); err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logger, closeLog, err := shared.SetupLogger(cfg.Server.LogLevel, cfg.Server.LogFile)
	if err != nil {
		return err
	}
	defer closeLog()

	ctx := shared.SetupSignalHandler(logger)
	clock := quartz.NewReal()

	router, store, err := c.openSession(ctx, cfg, clock, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Warn("Failed to close backup store", "error", err)
		}
	}()

	hub := server.NewHub(router, logger)
	gateway := server.NewServer(cfg.Address(), hub, logger)

	bots, err := buildFleet(cfg.BotDevices(), cfg, hub, cfg.Game.Seed, clock, logger)
	if err != nil {
		return err
	}
	defer bots.Close()

	logger.Info("Starting Hotelling server",
		"addr", cfg.Address(),
		"session", router.SessionID(),
		"turn", router.Turn(),
		"firms", cfg.Game.Firms,
		"customers", cfg.Game.Customers,
		"backup", cfg.Backup.Kind,
		"bots", len(bots.players))

	// The hub outlives the gateway so that the final save can go through it.
	hubCtx, stopHub := context.WithCancel(context.Background())
	hubDone := make(chan error, 1)
	go func() { hubDone <- hub.Run(hubCtx) }()
	defer func() {
		stopHub()
		<-hubDone
	}()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(gateway.Start)
	if len(bots.players) > 0 {
		g.Go(func() error {
			if err := bot.RunFleet(gctx, bots.players); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("In-process bots stopped", "error", err)
			}
			return nil
		})
	}
	g.Go(func() error {
		select {
		case <-gctx.Done():
		case <-hub.Ended():
			grace := cfg.ShutdownGrace()
			logger.Info("Game over, shutting down", "grace", grace)
			timer := clock.NewTimer(grace, "server", "grace")
			defer timer.Stop()
			select {
			case <-timer.C:
			case <-gctx.Done():
			}
		}

		logger.Info("Shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := gateway.Shutdown(shutdownCtx); err != nil {
			logger.Warn("Gateway shutdown", "error", err)
		}
		return hub.Do(shutdownCtx, func(ctx context.Context, r *server.Router) error {
			return r.Save(ctx)
		})
	})

	return g.Wait()
}

func (c *ServerCmd) applyOverrides(cfg *server.Config) error {
	if c.Addr != "" {
		host, port, err := net.SplitHostPort(c.Addr)
		if err != nil {
			return fmt.Errorf("--addr: %w", err)
		}
		n, err := strconv.Atoi(port)
		if err != nil {
			return fmt.Errorf("--addr: port %q: %w", port, err)
		}
		cfg.Server.Address = host
		cfg.Server.Port = n
	}
	if c.LogLevel != "" {
		cfg.Server.LogLevel = c.LogLevel
	}
	return nil
}

// openSession starts a fresh session, or resumes the one saved in --load.
// Saves of a resumed session keep going to the store it was loaded from.
func (c *ServerCmd) openSession(ctx context.Context, cfg *server.Config, clock quartz.Clock, logger *log.Logger) (*server.Router, backup.Store, error) {
	if c.Load == "" {
		store, err := cfg.OpenBackup(clock.Now(), "")
		if err != nil {
			return nil, nil, fmt.Errorf("open backup: %w", err)
		}
		router, err := server.NewRouter(ctx, cfg.Session(), store, clock, logger)
		if err != nil {
			_ = store.Close()
			return nil, nil, err
		}
		return router, store, nil
	}

	store, err := openSave(c.Load, c.Session)
	if err != nil {
		return nil, nil, err
	}
	snap, err := store.Load(ctx)
	if err != nil {
		_ = store.Close()
		return nil, nil, fmt.Errorf("load %s: %w", c.Load, err)
	}
	router, err := server.RestoreRouter(snap, store, clock, logger)
	if err != nil {
		_ = store.Close()
		return nil, nil, err
	}
	return router, store, nil
}
