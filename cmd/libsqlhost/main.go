package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/tetratelabs/wazero"

	"github.com/tomyedwab/libsqlbridge/host"
	"github.com/tomyedwab/libsqlbridge/wasmhost"
)

func main() {
	wasmFile := flag.String("module", "", "Path to the guest WASM module to run")
	entry := flag.String("entry", "_start", "Comma separated start functions of the guest")
	workers := flag.Int("workers", 0, "Number of bridge workers (0 = number of CPUs)")
	metricsAddr := flag.String("metrics", "", "Listen address for /metrics (empty disables)")
	logLevel := flag.String("log-level", "info", "Log level: debug, info, warn or error")
	flag.Parse()

	var level slog.Level
	if err := level.UnmarshalText([]byte(*logLevel)); err != nil {
		slog.Error("Invalid log level", "level", *logLevel, "error", err)
		os.Exit(2)
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	if *wasmFile == "" {
		logger.Error("-module is required")
		os.Exit(2)
	}
	wasmBytes, err := os.ReadFile(*wasmFile)
	if err != nil {
		logger.Error("Failed to read WASM module", "path", *wasmFile, "error", err)
		os.Exit(1)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	h, err := host.New(host.Config{
		Logger:     logger,
		Workers:    *workers,
		Registerer: registry,
	})
	if err != nil {
		logger.Error("Failed to create bridge host", "error", err)
		os.Exit(1)
	}
	defer h.Close()

	var metricsServer *http.Server
	if *metricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
		metricsServer = &http.Server{Addr: *metricsAddr, Handler: mux}
		go func() {
			logger.Info("Serving metrics", "address", *metricsAddr)
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("Metrics server failed", "error", err)
			}
		}()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case sig := <-sigChan:
			logger.Info("Received signal, stopping guest", "signal", sig.String())
			cancel()
		case <-ctx.Done():
		}
	}()

	r := wazero.NewRuntimeWithConfig(ctx, wazero.NewRuntimeConfig().WithCloseOnContextDone(true))
	defer r.Close(context.Background())

	config := wasmhost.RunConfig{
		Name:           *wasmFile,
		Args:           append([]string{*wasmFile}, flag.Args()...),
		StartFunctions: strings.Split(*entry, ","),
		ModuleConfig: wazero.NewModuleConfig().
			WithStdout(os.Stdout).
			WithStderr(os.Stderr).
			WithSysWalltime().
			WithSysNanotime(),
	}

	logger.Info("Running guest", "module", *wasmFile, "entry", *entry)
	runErr := wasmhost.Run(ctx, r, h, wasmBytes, config, logger)

	if metricsServer != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("Error stopping metrics server", "error", err)
		}
	}

	if runErr != nil {
		logger.Error("Guest failed", "error", runErr)
		h.Close()
		os.Exit(1)
	}
	logger.Info("Guest finished")
}
