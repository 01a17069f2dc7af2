// Command sidecar runs the per-workshop-pod activity sidecar: it listens
// for the browser's byte stream, forwards it to the workshop container over
// TCP or a Unix domain socket, and exposes the last-activity/idle-seconds
// health endpoint the reaper polls.
package main

import (
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/codespacesh/workshop-hub/internal/config"
	"github.com/codespacesh/workshop-hub/internal/sidecar"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.LoadSidecarConfig()
	if err != nil {
		return fmt.Errorf("loading sidecar config: %w", err)
	}

	var upstream sidecar.Upstream
	if cfg.TargetTCP != "" {
		upstream = sidecar.NewTCPUpstream(cfg.TargetTCP)
	} else {
		upstream = sidecar.NewUDSUpstream(cfg.TargetUDS)
	}

	pipe := sidecar.NewPipe(upstream)

	tcpListener, err := net.Listen("tcp", cfg.TCPListen)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", cfg.TCPListen, err)
	}

	mux := http.NewServeMux()
	mux.Handle("GET /health", sidecar.HealthHandler(pipe))
	healthServer := &http.Server{
		Addr:              cfg.HTTPListen,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	go func() {
		<-sigCh
		slog.Info("sidecar: shutting down")
		tcpListener.Close()
		healthServer.Close()
	}()

	errCh := make(chan error, 2)
	go func() {
		slog.Info("sidecar: bridging connections", "listen", cfg.TCPListen, "upstream", upstream.String())
		errCh <- pipe.Serve(tcpListener)
	}()
	go func() {
		slog.Info("sidecar: health endpoint listening", "listen", cfg.HTTPListen)
		err := healthServer.ListenAndServe()
		if err == http.ErrServerClosed {
			err = nil
		}
		errCh <- err
	}()

	if err := <-errCh; err != nil {
		return fmt.Errorf("sidecar: %w", err)
	}
	return nil
}
