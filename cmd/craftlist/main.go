package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"
	"github.com/lmittmann/tint"
	"github.com/mark3labs/mcp-go/server"

	"github.com/btouchard/craftlist/internal/api"
	"github.com/btouchard/craftlist/internal/api/middleware"
	"github.com/btouchard/craftlist/internal/auth"
	"github.com/btouchard/craftlist/internal/broadcast"
	"github.com/btouchard/craftlist/internal/config"
	"github.com/btouchard/craftlist/internal/feed"
	craftmcp "github.com/btouchard/craftlist/internal/mcp"
	"github.com/btouchard/craftlist/internal/notify"
	"github.com/btouchard/craftlist/internal/snapshot"
	"github.com/btouchard/craftlist/internal/store"
	"github.com/btouchard/craftlist/internal/task"
)

var version = "dev"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	// A missing .env is normal outside development.
	_ = godotenv.Load()

	switch os.Args[1] {
	case "serve":
		cmdServe(os.Args[2:])
	case "version":
		fmt.Printf("craftlist %s\n", version)
	case "check":
		cmdCheck(os.Args[2:])
	case "hash-token":
		cmdHashToken(os.Args[2:])
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintf(os.Stderr, "Usage: craftlist <command> [flags]\n\n")
	fmt.Fprintf(os.Stderr, "Commands:\n")
	fmt.Fprintf(os.Stderr, "  serve       Start the craftlist server\n")
	fmt.Fprintf(os.Stderr, "  check       Validate configuration\n")
	fmt.Fprintf(os.Stderr, "  hash-token  Generate an API token, or hash one given with -token\n")
	fmt.Fprintf(os.Stderr, "  version     Print version\n")
}

func cmdServe(args []string) {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	configPath := fs.String("config", "", "path to config file")
	_ = fs.Parse(args) // ExitOnError handles errors

	cfg, err := loadConfig(*configPath)
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	closeLog := setupLogging(cfg)
	defer closeLog()

	slog.Info("starting craftlist",
		"version", version,
		"host", cfg.Server.Host,
		"port", cfg.Server.Port)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		slog.Error("server error", "error", err)
		closeLog()
		os.Exit(1)
	}
}

func cmdCheck(args []string) {
	fs := flag.NewFlagSet("check", flag.ExitOnError)
	configPath := fs.String("config", "", "path to config file")
	_ = fs.Parse(args) // ExitOnError handles errors

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("configuration is valid")
	fmt.Printf("  database: %s\n", cfg.Database.Path)
	fmt.Printf("  poll interval: %s\n", cfg.Poll.Interval)
	fmt.Printf("  api tokens: %d\n", len(cfg.Auth.APITokens))
}

func cmdHashToken(args []string) {
	fs := flag.NewFlagSet("hash-token", flag.ExitOnError)
	existing := fs.String("token", "", "hash this token instead of generating one")
	_ = fs.Parse(args) // ExitOnError handles errors

	if *existing != "" {
		fmt.Println(auth.HashToken(*existing))
		return
	}

	token, hash, err := auth.GenerateToken()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("token:      %s\n", token)
	fmt.Printf("token_hash: %s\n", hash)
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFromFile(path)
	}
	return config.Load()
}

// setupLogging installs the default logger and returns a function closing the log file.
func setupLogging(cfg *config.Config) func() {
	var level slog.Level
	switch cfg.Server.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	var console slog.Handler
	if cfg.Server.LogFormat == "text" {
		console = tint.NewHandler(os.Stdout, &tint.Options{
			Level:      level,
			TimeFormat: "2006-01-02 15:04:05",
		})
	} else {
		console = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	}
	handlers := []slog.Handler{console}

	var logFile io.Closer
	if cfg.Server.LogFile != "" {
		f, err := os.OpenFile(cfg.Server.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0640)
		if err != nil {
			slog.Warn("failed to open log file, using stdout only", "path", cfg.Server.LogFile, "error", err)
		} else {
			handlers = append(handlers, slog.NewJSONHandler(f, &slog.HandlerOptions{Level: level}))
			logFile = f
		}
	}

	logger := slog.New(slog.NewMultiHandler(handlers...))
	slog.SetDefault(logger)

	return func() {
		if logFile != nil {
			_ = logFile.Close()
		}
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	clock := clockwork.NewRealClock()

	// --- SQLite Store ---
	db, err := store.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() { _ = db.Close() }()

	slog.Info("database opened", "path", cfg.Database.Path)

	// --- Broadcaster ---
	broadcaster := broadcast.New(broadcast.Config{
		PingInterval: cfg.Broadcast.PingInterval,
		BufferSize:   cfg.Broadcast.BufferSize,
	}, clock)
	go broadcaster.Run(ctx)
	defer broadcaster.Close()

	cache := snapshot.New()

	// --- MCP Server ---
	var mcpHandler http.Handler
	notifiers := []notify.Notifier{broadcaster}
	if cfg.MCP.Enabled {
		mcpServer := craftmcp.NewServer(&craftmcp.Deps{
			Store:       db,
			Broadcaster: broadcaster,
			Cache:       cache,
			Version:     version,
		})
		mcpHandler = server.NewStreamableHTTPServer(mcpServer)
		notifiers = append(notifiers, notify.NewMCPNotifier(mcpServer, cfg.MCP.NotifyDebounce, clock))
	}

	// --- Poll Tasks ---
	registry := task.NewRegistry(cache, notify.NewHub(notifiers...), clock, cfg.Poll.Interval)
	if err := feed.Register(registry, db); err != nil {
		return err
	}
	registry.Start(ctx)

	// --- HTTP Router ---
	tokens := auth.NewTokenSet(cfg.Auth.APITokens)
	if tokens.Len() == 0 {
		slog.Warn("no API tokens configured, write endpoints will reject every request")
	}

	router := api.NewRouter(&api.Deps{
		Store:       db,
		Broadcaster: broadcaster,
		Cache:       cache,
		Tokens:      tokens,
		Limiter:     middleware.NewIPRateLimiter(cfg.RateLimit.RequestsPerMinute, cfg.RateLimit.Burst, clock),
		CORSOrigins: cfg.Server.CORSOrigins,
		MCP:         mcpHandler,
		Version:     version,
	})

	// --- HTTP Server ---
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      time.Minute,
		IdleTimeout:       2 * time.Minute,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("craftlist is ready", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	slog.Info("shutting down")

	// Event streams never finish on their own; closing subscribers ends them.
	broadcaster.Close()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	return srv.Shutdown(shutdownCtx)
}
