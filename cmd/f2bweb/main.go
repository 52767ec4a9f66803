package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/pueblokc/fail2ban/internal/banlog"
	"github.com/pueblokc/fail2ban/internal/command"
	"github.com/pueblokc/fail2ban/internal/config"
	"github.com/pueblokc/fail2ban/internal/dashboard"
	"github.com/pueblokc/fail2ban/internal/enrich"
	"github.com/pueblokc/fail2ban/internal/gate"
	"github.com/pueblokc/fail2ban/internal/logger"
	"github.com/pueblokc/fail2ban/internal/server"
	"github.com/pueblokc/fail2ban/internal/source"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

// Version is set by the build system via -ldflags.
var Version = "dev"

func main() {
	root := &cobra.Command{
		Use:   "f2bweb",
		Short: "Web dashboard backend for fail2ban",
	}

	root.AddCommand(
		runCmd(),
		healthcheckCmd(),
		versionCmd(),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// runCmd is the main daemon command.
func runCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Start the dashboard backend",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDaemon()
		},
	}
}

func runDaemon() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log := buildLogger(cfg)
	log.Info().Str("version", Version).Msg("f2bweb starting")

	store, err := banlog.Open(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open action log: %w", err)
	}
	defer store.Close()

	g, err := gate.Open(cfg.DataDir)
	if err != nil {
		return fmt.Errorf("open rate gate: %w", err)
	}
	defer g.Close()

	enricher := enrich.New(cfg.GeoIPDir)
	defer enricher.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	channel := command.New(cfg.Client, cfg.UseSudo, cfg.SSHHost, cfg.SSHUser, cfg.SSHKey, cfg.CommandTimeout, log)
	src := source.Select(ctx, cfg.Demo, channel, log)

	hub := server.NewHub(log)
	svc := dashboard.New(src, store, enricher, g, dashboard.Config{
		RateLimitWindow:   cfg.RateLimitWindow,
		RateLimitMaxCalls: cfg.RateLimitMaxCalls,
	}, hub, log)

	srv, err := server.New(svc, hub, server.Config{
		ListenAddr:     cfg.ListenAddr,
		HealthAddr:     cfg.HealthAddr,
		MetricsEnabled: cfg.MetricsEnabled,
		MetricsAddr:    cfg.MetricsAddr,
	}, log)
	if err != nil {
		return fmt.Errorf("build server: %w", err)
	}

	eg, gctx := errgroup.WithContext(ctx)
	eg.Go(func() error { return srv.Run(gctx) })

	if cfg.SnapshotInterval > 0 && !src.Demo() {
		snapper := dashboard.NewSnapshotter(src, store, cfg.SnapshotInterval, log)
		eg.Go(func() error { return snapper.Run(gctx) })
	}

	return eg.Wait()
}

// healthcheckCmd exits 0 if the API is reachable.
func healthcheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "healthcheck",
		Short: "Check health endpoint and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			addr := cfg.HealthAddr
			if strings.HasPrefix(addr, ":") {
				addr = "localhost" + addr
			}
			resp, err := http.Get("http://" + addr + "/healthz") //nolint:noctx
			if err != nil {
				fmt.Fprintf(os.Stderr, "healthcheck failed: %v\n", err)
				os.Exit(1)
			}
			defer resp.Body.Close()
			if resp.StatusCode != http.StatusOK {
				fmt.Fprintf(os.Stderr, "healthcheck returned %d\n", resp.StatusCode)
				os.Exit(1)
			}
			fmt.Println("healthy")
			return nil
		},
	}
}

// versionCmd prints the version and exits.
func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version and exit",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("f2bweb %s\n", Version)
		},
	}
}

// buildLogger constructs a zerolog.Logger based on config.
func buildLogger(cfg *config.Config) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}

	var base zerolog.Logger
	if cfg.LogFormat == "text" {
		cw := zerolog.NewConsoleWriter()
		cw.Out = logger.NewRedactWriter(os.Stderr)
		base = zerolog.New(cw).Level(level).With().Timestamp().Logger()
	} else {
		redactWriter := logger.NewRedactWriter(os.Stderr)
		base = zerolog.New(redactWriter).Level(level).With().Timestamp().Logger()
	}
	return base
}
