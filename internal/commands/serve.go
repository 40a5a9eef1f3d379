package commands

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/netwrench/netwrench/internal/api"
	"github.com/netwrench/netwrench/internal/config"
	"github.com/netwrench/netwrench/internal/log"
)

// ServeCommand runs the HTTP API server.
type ServeCommand struct {
	fs   *flag.FlagSet
	ctx  *AppContext
	cfg  *config.Config
	core *Core

	bindAddr string
	version  string
}

// CreateServeCommand creates a new serve command. version is baked in at
// build time and reported by the status endpoint.
func CreateServeCommand(version string) *ServeCommand {
	gc := &ServeCommand{
		fs:      flag.NewFlagSet("serve", flag.ExitOnError),
		version: version,
	}

	gc.fs.StringVar(&gc.bindAddr, "bind", "", "Address to bind the HTTP server (default from config)")

	return gc
}

func (g *ServeCommand) Name() string {
	return g.fs.Name()
}

func (g *ServeCommand) Init(args []string, ctx *AppContext) error {
	g.ctx = ctx

	if err := g.fs.Parse(args); err != nil {
		return err
	}

	cfg, err := loadAndValidateConfigOrFail(ctx.ConfigPath)
	if err != nil {
		return err
	}

	// Long-running process, environment wins over the config file.
	if err := cfg.ApplyEnvOverrides(); err != nil {
		return err
	}
	g.cfg = cfg

	if g.bindAddr == "" {
		g.bindAddr = cfg.API.Listen
	}

	if g.core, err = buildCore(cfg, true); err != nil {
		return err
	}

	return nil
}

func (g *ServeCommand) Run() error {
	defer g.core.Close()

	log.Infof("Starting netwrench API server on %s", g.bindAddr)
	log.Infof("Configuration loaded from: %s", g.ctx.ConfigPath)

	server := api.NewServer(api.Deps{
		Catalog:     g.core.Catalog,
		Validator:   g.core.Validator,
		Checkpoints: g.core.Store,
		Applier:     g.core.Orchestrator,
		Prober:      g.core.Prober,
		Version:     g.version,
	}, g.bindAddr)

	runner := NewRestartableRunner(RunnerConfig{Name: "api-server"}, func(ctx context.Context) error {
		errs := make(chan error, 1)
		go func() {
			errs <- server.Start()
		}()

		select {
		case err := <-errs:
			return err
		case <-ctx.Done():
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer cancel()
			return server.Stop(shutdownCtx)
		}
	})

	if err := runner.Start(context.Background()); err != nil {
		return err
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM, syscall.SIGINT)

	sig := <-shutdown
	log.Infof("Received signal %v, shutting down server...", sig)

	if err := runner.Stop(); err != nil {
		log.Errorf("Failed to stop API server: %v", err)
		return err
	}

	log.Infof("Server stopped")
	return nil
}
