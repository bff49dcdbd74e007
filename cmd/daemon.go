// Copyright (C) 2025 Mono Technologies Inc.
//
// This program is free software; you can redistribute it and/or
// modify it under the terms of the GNU General Public License
// as published by the Free Software Foundation; version 2.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU General Public License for more details.

package cmd

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"slices"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"github.com/we-are-mono/fwlogd/daemon"
	"github.com/we-are-mono/fwlogd/daemon/logger"
	"github.com/we-are-mono/fwlogd/engine"
	"github.com/we-are-mono/fwlogd/reload"
	"github.com/we-are-mono/fwlogd/state"
	"github.com/we-are-mono/fwlogd/stats"
	"github.com/we-are-mono/fwlogd/types"
)

var (
	daemonVerbose    bool
	daemonForeground bool
	daemonDebug      string
	daemonFromStart  bool
)

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Run the log daemon",
	Long: `Tails the kernel firewall log, writes the resolved audit log and
serves the status socket until SIGINT or SIGTERM. SIGHUP reloads.`,
	Run: runDaemon,
}

func init() {
	rootCmd.AddCommand(daemonCmd)
	daemonCmd.Flags().BoolVarP(&daemonVerbose, "verbose", "v", false, "Mirror daemon logs to stderr")
	daemonCmd.Flags().BoolVarP(&daemonForeground, "foreground", "n", false, "Log to stderr only, for running under a terminal")
	daemonCmd.Flags().StringVarP(&daemonDebug, "debug", "d", "", "Log level override: 1 (info), 2 (debug) or a level name; 0 keeps the configured level")
	daemonCmd.Flags().BoolVar(&daemonFromStart, "from-start", false, "Process the source log from the beginning")
}

func runDaemon(cmd *cobra.Command, args []string) {
	level, err := debugLevel(daemonDebug)
	if err != nil {
		fmt.Fprintf(os.Stderr, "[ERROR] %v\n", err)
		exitWithError()
		return
	}

	pidFile := os.Getenv("FWLOGD_PID_FILE")
	if pidFile == "" {
		pidFile = "/var/run/fwlogd.pid"
	}
	if err := checkExistingDaemon(pidFile); err != nil {
		fmt.Fprintf(os.Stderr, "[ERROR] %v\n", err)
		exitWithError()
		return
	}

	if err := writePIDFile(pidFile); err != nil {
		fmt.Fprintf(os.Stderr, "[ERROR] Failed to write PID file: %v\n", err)
		exitWithError()
		return
	}

	// The engine loads the configuration again; this copy only sets up
	// logging and the listeners.
	cfg, err := state.LoadLogdConfig(configPath)
	if err != nil {
		os.Remove(pidFile)
		fmt.Fprintf(os.Stderr, "[ERROR] %v\n", err)
		exitWithError()
		return
	}

	if err := initializeLogger(cfg.Logging, level, daemonVerbose, daemonForeground); err != nil {
		os.Remove(pidFile)
		fmt.Fprintf(os.Stderr, "[ERROR] Failed to initialize logger: %v\n", err)
		exitWithError()
		return
	}

	err = serve(cfg, level)
	logger.Close()
	os.Remove(pidFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "[ERROR] %v\n", err)
		exitWithError()
	}
}

// debugLevel turns the --debug value into a logger level. Numbers count
// up in verbosity; names are passed through. "" and "0" mean no override.
func debugLevel(s string) (string, error) {
	if s == "" {
		return "", nil
	}
	if n, err := strconv.Atoi(s); err == nil {
		switch {
		case n < 0:
			return "", fmt.Errorf("invalid debug level %d", n)
		case n == 0:
			return "", nil
		case n == 1:
			return "info", nil
		default:
			return "debug", nil
		}
	}
	switch s = strings.ToLower(s); s {
	case "debug", "info", "warn", "error":
		return s, nil
	}
	return "", fmt.Errorf("invalid debug level %q", s)
}

// serve runs the engine and its listeners until shutdown.
func serve(cfg *types.LogdConfig, level string) error {
	ctx := context.Background()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	eng, err := engine.New(ctx, engine.Options{
		ConfigPath: configPath,
		Metrics:    stats.NewMetrics(reg),
		FromStart:  daemonFromStart,
		LogLevel:   level,
	})
	if err != nil {
		logger.Error("Failed to start engine", logger.Field{Key: "error", Value: err.Error()})
		return err
	}
	defer eng.Close()

	stopSignals := eng.HandleSignals()
	defer stopSignals()

	srv, err := daemon.NewServer(daemon.GetSocketPath(cfg.SocketPath), eng)
	if err != nil {
		logger.Error("Failed to create status socket", logger.Field{Key: "error", Value: err.Error()})
		return err
	}
	go func() {
		if err := srv.Start(); err != nil {
			logger.Error("Status socket failed", logger.Field{Key: "error", Value: err.Error()})
		}
	}()
	defer srv.Stop()

	if cfg.MetricsAddr != "" {
		h := daemon.NewHTTPServer(cfg.MetricsAddr, eng, reg)
		go func() {
			if err := h.Start(); err != nil {
				logger.Error("HTTP endpoint failed", logger.Field{Key: "error", Value: err.Error()})
			}
		}()
		defer func() {
			sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			h.Shutdown(sctx)
		}()
	}

	logger.Info("fwlogd started", logger.Field{Key: "version", Value: Version})
	runErr := eng.Run(ctx)

	eng.Report(os.Stdout)
	if runErr != nil {
		switch {
		case errors.Is(runErr, reload.ErrFatal):
			logger.Error("Fatal reload error, shutting down", logger.Field{Key: "error", Value: runErr.Error()})
		default:
			logger.Error("Ingestion failed", logger.Field{Key: "error", Value: runErr.Error()})
		}
		return runErr
	}
	logger.Info("fwlogd stopped")
	return nil
}

// checkExistingDaemon checks if another daemon is already running
func checkExistingDaemon(pidFile string) error {
	data, err := os.ReadFile(pidFile)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("PID file exists but cannot be read: %w (remove %s manually if daemon is not running)", err, pidFile)
	}

	pidStr := strings.TrimSpace(string(data))
	pid, err := strconv.Atoi(pidStr)
	if err != nil || pid <= 0 {
		return fmt.Errorf("invalid PID in %s: %s (remove file manually if daemon is not running)", pidFile, pidStr)
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		os.Remove(pidFile)
		return nil
	}

	// Signal 0 only checks that the process exists.
	if err := process.Signal(syscall.Signal(0)); err != nil {
		os.Remove(pidFile)
		return nil
	}

	return fmt.Errorf("daemon already running with PID %d (stop it first or remove %s if it's stale)", pid, pidFile)
}

// writePIDFile writes the current process PID to a file
func writePIDFile(pidFile string) error {
	pid := os.Getpid()
	return os.WriteFile(pidFile, []byte(fmt.Sprintf("%d\n", pid)), 0600)
}

// initializeLogger sets up the global logger. journald is preferred with
// the log file as fallback; foreground mode logs to stderr only.
func initializeLogger(lc *types.LoggingConfig, level string, verbose, foreground bool) error {
	config := logger.Config{
		Level:     lc.Level,
		Format:    lc.Format,
		Outputs:   lc.Outputs,
		FilePath:  lc.File,
		Component: "daemon",
	}
	if level != "" {
		config.Level = level
	}

	outputs := config.Outputs
	if foreground {
		outputs = []string{"stderr"}
	} else if len(outputs) == 0 {
		outputs = []string{"journald"}
	}
	if verbose && !slices.Contains(outputs, "stderr") {
		outputs = append(outputs, "stderr")
	}

	var backends []logger.Backend
	var names []string
	for _, out := range outputs {
		switch out {
		case "journald":
			b, err := logger.NewJournaldBackend(config.Format)
			if err != nil {
				log.Printf("[WARN] Could not initialize journald backend: %v, falling back to file", err)
				if slices.Contains(outputs, "file") {
					continue
				}
				fb, ferr := logger.NewFileBackend(config.FilePath, config.Format)
				if ferr != nil {
					return fmt.Errorf("failed to initialize file backend: %w", ferr)
				}
				backends = append(backends, fb)
				names = append(names, "file")
				continue
			}
			backends = append(backends, b)
			names = append(names, out)
		case "file":
			b, err := logger.NewFileBackend(config.FilePath, config.Format)
			if err != nil {
				return fmt.Errorf("failed to initialize file backend: %w", err)
			}
			backends = append(backends, b)
			names = append(names, out)
		case "stderr":
			backends = append(backends, logger.NewWriterBackend(os.Stderr, "text"))
			names = append(names, out)
		default:
			return fmt.Errorf("unknown log output %q", out)
		}
	}

	logger.Init(config, backends)
	logger.Info("Logging initialized",
		logger.Field{Key: "backends", Value: strings.Join(names, ",")},
		logger.Field{Key: "level", Value: config.Level},
		logger.Field{Key: "format", Value: config.Format})
	return nil
}
