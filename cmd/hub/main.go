package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/codespacesh/workshop-hub/internal/audit"
	"github.com/codespacesh/workshop-hub/internal/auth"
	"github.com/codespacesh/workshop-hub/internal/config"
	"github.com/codespacesh/workshop-hub/internal/gateway"
	"github.com/codespacesh/workshop-hub/internal/orchestrator"
	"github.com/codespacesh/workshop-hub/internal/platform"
	"github.com/codespacesh/workshop-hub/internal/reaper"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "hub",
		Short: "Runs the workshop-hub gateway: login, reverse proxy, and pod lifecycle",
	}
	rootCmd.AddCommand(serveCmd(), versionCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// version is overridden at build time with -ldflags "-X main.version=...".
var version = "dev"

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the hub's build version",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Println(version)
			return nil
		},
	}
}

func serveCmd() *cobra.Command {
	var dataDir string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the hub server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(dataDir)
		},
	}
	defaultDataDir := "./data"
	if v := os.Getenv("HUB_DATA_DIR"); v != "" {
		defaultDataDir = v
	}
	cmd.Flags().StringVar(&dataDir, "data-dir", defaultDataDir, "Directory for settings.toml, the token secret, and the audit database (default from HUB_DATA_DIR)")
	return cmd
}

func runServe(dataDir string) error {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return fmt.Errorf("creating data dir: %w", err)
	}

	cfg, err := config.Load(dataDir)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	setupLogging(cfg.LogFormat)

	profiles, err := config.LoadProfiles(cfg.ProfilesFile)
	if err != nil {
		return fmt.Errorf("loading workshop profiles: %w", err)
	}

	secret, err := auth.LoadOrGenerateSecret(dataDir)
	if err != nil {
		return fmt.Errorf("loading token secret: %w", err)
	}
	issuer := auth.NewIssuer(secret)

	auditLog, err := audit.Open(dataDir)
	if err != nil {
		return fmt.Errorf("opening audit log: %w", err)
	}
	defer auditLog.Close()

	plat, err := platform.NewInClusterPlatform()
	if err != nil {
		return fmt.Errorf("connecting to cluster: %w", err)
	}

	o := orchestrator.New(plat, orchestrator.Config{
		WorkshopName:     cfg.WorkshopName,
		Namespace:        cfg.WorkshopNamespace,
		TTLSeconds:       cfg.WorkshopTTLSeconds,
		WorkshopImage:    cfg.WorkshopImage,
		WorkshopPort:     cfg.WorkshopPort,
		SidecarImage:     cfg.SidecarImage(),
		PodLimit:         cfg.WorkshopPodLimit,
		CPURequest:       cfg.CPURequest,
		CPULimit:         cfg.CPULimit,
		MemRequest:       cfg.MemRequest,
		MemLimit:         cfg.MemLimit,
		ReadinessTimeout: time.Duration(cfg.ReadinessTimeoutSeconds) * time.Second,
	}, auditLog)

	r := reaper.New(plat, reaper.Config{
		WorkshopName:         cfg.WorkshopName,
		Namespace:            cfg.WorkshopNamespace,
		IdleThresholdSeconds: int64(cfg.WorkshopIdleSeconds),
		SweepInterval:        time.Duration(cfg.ReapIntervalSeconds) * time.Second,
		HealthProbeTimeout:   time.Duration(cfg.HealthProbeTimeoutSeconds) * time.Second,
	}, auditLog)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	go func() {
		<-sigCh
		slog.Info("hub: shutting down")
		cancel()
	}()

	go r.Run(ctx)

	handler := gateway.New(issuer, o, profiles, cfg.WorkshopImage, cfg.WorkshopPort)
	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("hub: graceful shutdown failed", "err", err)
		}
	}()

	slog.Info("hub: listening", "addr", cfg.ListenAddr, "namespace", cfg.WorkshopNamespace)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("serving: %w", err)
	}
	return nil
}

func setupLogging(format string) {
	var handler slog.Handler
	opts := &slog.HandlerOptions{Level: slog.LevelInfo}
	if format == "text" {
		handler = slog.NewTextHandler(os.Stderr, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	}
	slog.SetDefault(slog.New(handler))
}
