package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/chat2doc/chat2doc/internal/api"
	"github.com/chat2doc/chat2doc/internal/artifact"
	"github.com/chat2doc/chat2doc/internal/config"
	"github.com/chat2doc/chat2doc/internal/extract"
	"github.com/chat2doc/chat2doc/internal/insight"
	"github.com/chat2doc/chat2doc/internal/pipeline"
	"github.com/chat2doc/chat2doc/internal/storage"
	"github.com/chat2doc/chat2doc/internal/tracker"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the chat2doc server (foreground)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer()
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running chat2doc server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return stopServer()
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show chat2doc system status",
	RunE: func(cmd *cobra.Command, args []string) error {
		return showStatus()
	},
}

func pidFilePath(dataDir string) string {
	return filepath.Join(dataDir, "chat2doc.pid")
}

func writePIDFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0o644)
}

func readPIDFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(strings.TrimSpace(string(data)))
}

func removePIDFile(path string) {
	os.Remove(path)
}

func runServer() error {
	fmt.Fprintf(os.Stderr, "chat2doc version %s\n", version)

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	// Initialize structured logging.
	logLevel := slog.LevelInfo
	if strings.EqualFold(cfg.Log.Level, "debug") {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})))

	// Write PID file. Check if server is already running via health endpoint.
	pidPath := pidFilePath(cfg.Storage.DataDir)
	healthURL := fmt.Sprintf("http://127.0.0.1:%d/health", cfg.Server.Port)
	healthClient := &http.Client{Timeout: 2 * time.Second}
	if resp, err := healthClient.Get(healthURL); err == nil {
		resp.Body.Close()
		if pid, pidErr := readPIDFile(pidPath); pidErr == nil {
			printWarning("chat2doc is already running (PID %d)", pid)
			return fmt.Errorf("server already running (PID %d)", pid)
		}
		printWarning("chat2doc is already running on port %d", cfg.Server.Port)
		return fmt.Errorf("server already running on port %d", cfg.Server.Port)
	}
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("writing PID file: %w", err)
	}
	defer removePIDFile(pidPath)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Open storage.
	store, err := storage.Open(cfg.Storage.DataDir)
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "warning: closing storage: %v\n", err)
		}
	}()

	artifacts, err := artifact.NewStore(cfg.Storage.ArtifactDir)
	if err != nil {
		return fmt.Errorf("opening artifact store: %w", err)
	}

	// Build conversion pipeline.
	jobs := tracker.New(store, artifacts)
	fetcher := extract.NewFetcher(&http.Client{
		Timeout: time.Duration(cfg.Fetch.TimeoutSeconds) * time.Second,
	})
	coordinator := pipeline.New(jobs, store, artifacts, fetcher)

	// Optional local summarizer.
	var summarizer api.Summarizer
	if cfg.Insight.Enabled {
		s := insight.New(cfg.Insight.BaseURL, cfg.Insight.Model)
		if !s.Available(ctx) {
			printWarning("insight enabled but %s is not reachable; summaries will fail until it is", cfg.Insight.BaseURL)
		}
		summarizer = s
	}

	// Build HTTP handler and server.
	appHandler := api.NewAppHandler(api.AppDeps{
		Coordinator: coordinator,
		Tracker:     jobs,
		Store:       store,
		Artifacts:   artifacts,
		Summarizer:  summarizer,
		Token:       cfg.Auth.Token,
	})

	topRouter := chi.NewRouter()
	topRouter.Mount("/", api.NewHealthHandler())
	topRouter.Mount("/", appHandler)

	addr := fmt.Sprintf("127.0.0.1:%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: topRouter,
	}

	// Build and start MCP server (stdio transport in a goroutine).
	mcpSrv := api.NewMCPServer(api.MCPDeps{
		Coordinator: coordinator,
		Tracker:     jobs,
		Recent:      store,
		Artifacts:   artifacts,
		Summarizer:  summarizer,
	})
	stdioSrv := server.NewStdioServer(mcpSrv)
	go func() {
		if err := stdioSrv.Listen(ctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("MCP stdio server error", "error", err)
		}
	}()
	slog.Info("MCP server started (stdio transport)")

	// Start server in a goroutine.
	errCh := make(chan error, 1)
	go func() {
		fmt.Fprintf(os.Stderr, "chat2doc listening on %s\n", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	// Wait for signal or server error.
	select {
	case <-ctx.Done():
		fmt.Fprintln(os.Stderr, "shutting down...")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	// Graceful shutdown with timeout.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func stopServer() error {
	cfg, err := config.Load()
	if err != nil {
		printError("could not load config: %v", err)
		return err
	}

	pidPath := pidFilePath(cfg.Storage.DataDir)
	pid, err := readPIDFile(pidPath)
	if err != nil {
		printError("chat2doc is not running (no PID file)")
		return fmt.Errorf("not running: %w", err)
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		printError("could not find process %d", pid)
		return err
	}

	if err := process.Signal(syscall.SIGTERM); err != nil {
		printError("could not stop chat2doc (PID %d): %v", pid, err)
		removePIDFile(pidPath)
		return err
	}

	printSuccess("Sent stop signal to chat2doc (PID %d)", pid)
	return nil
}

func showStatus() error {
	cfg, err := config.Load()
	if err != nil {
		// Still show partial status even if config fails.
		printError("config error: %v", err)
		return nil
	}

	// Check server health.
	serverURL := fmt.Sprintf("http://127.0.0.1:%d", cfg.Server.Port)
	client := &http.Client{Timeout: 2 * time.Second}

	resp, err := client.Get(serverURL + "/health")
	if err != nil {
		printStatus("Server", "stopped")
	} else {
		resp.Body.Close()
		if resp.StatusCode == 200 {
			printStatus("Server", "running on port %d", cfg.Server.Port)
		} else {
			printStatus("Server", "error (HTTP %d)", resp.StatusCode)
		}
	}

	// Check the local summarizer if enabled.
	if cfg.Insight.Enabled {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if insight.New(cfg.Insight.BaseURL, cfg.Insight.Model).Available(ctx) {
			printStatus("Insight", "running at %s (model %s)", cfg.Insight.BaseURL, cfg.Insight.Model)
		} else {
			printStatus("Insight", "enabled but not reachable at %s", cfg.Insight.BaseURL)
		}
	} else {
		printStatus("Insight", "disabled")
	}

	printStatus("Data dir", "%s", cfg.Storage.DataDir)
	printStatus("Artifact dir", "%s", cfg.Storage.ArtifactDir)
	return nil
}
