package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/doc-analyzer/widget/internal/api"
	"github.com/doc-analyzer/widget/internal/backend"
	"github.com/doc-analyzer/widget/internal/config"
	"github.com/doc-analyzer/widget/internal/session"
	"github.com/doc-analyzer/widget/internal/storage"
	"github.com/doc-analyzer/widget/internal/upload"
	"github.com/doc-analyzer/widget/internal/web"
	"github.com/doc-analyzer/widget/internal/widget"
	_ "github.com/joho/godotenv/autoload"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"
)

// Version info (set during build)
var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	// Get the executable's directory for config resolution
	exePath, err := os.Executable()
	if err != nil {
		fmt.Printf("Failed to get executable path: %v\n", err)
		os.Exit(1)
	}
	exeDir := filepath.Dir(exePath)

	// Load XML configuration; PORT, BACKEND_URL, SPOOL_DIR and LOG_LEVEL
	// from the environment or a .env file override it.
	configPath := filepath.Join(exeDir, "DocAnalyzerWidget.config")
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	if err := cfg.EnsureDirectories(); err != nil {
		fmt.Printf("Failed to create directories: %v\n", err)
		os.Exit(1)
	}

	loc, err := cfg.GetLocation()
	if err != nil {
		fmt.Printf("Invalid time zone %q, using local time: %v\n", cfg.Widget.TimeZone, err)
		loc = time.Local
	}

	e := echo.New()
	e.HideBanner = true
	e.Logger.SetLevel(logLevel(cfg.Advanced.LogLevel))
	api.ShowErrorDetails = strings.EqualFold(cfg.Advanced.LogLevel, "debug")

	// Spool for selected files
	spool, err := storage.NewLocalStore(cfg.Storage.SpoolDirectory)
	if err != nil {
		fmt.Printf("Failed to initialize spool: %v\n", err)
		os.Exit(1)
	}
	transfers := upload.NewManager(spool)

	client, err := backend.NewClient(cfg.Backend.BaseURL, backend.WithTimeout(cfg.GetRequestTimeout()))
	if err != nil {
		fmt.Printf("Invalid backend URL: %v\n", err)
		os.Exit(1)
	}

	sessionMgr := session.NewManager(widget.Config{
		Backend:  client,
		Spool:    spool,
		Logger:   e.Logger,
		Location: loc,
	}, cfg.Sessions.MaxSessions)

	// Start background session cleanup
	go func() {
		ticker := time.NewTicker(cfg.GetCleanupInterval())
		defer ticker.Stop()
		for range ticker.C {
			if n := sessionMgr.CleanupOldSessions(cfg.GetSessionTimeout()); n > 0 {
				fmt.Printf("[Cleanup] ended %d idle widget(s)\n", n)
			}
			transfers.CleanupOldTransfers(cfg.GetSessionTimeout())
		}
	}()

	e.HTTPErrorHandler = api.ErrorHandler

	// Configure middleware
	e.Use(middleware.LoggerWithConfig(middleware.LoggerConfig{
		Skipper: func(c echo.Context) bool {
			if !cfg.Advanced.EnableRequestLogging {
				return true
			}
			path := c.Request().URL.Path
			return strings.HasPrefix(path, "/static/") ||
				path == "/api/health"
		},
	}))

	e.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{
		StackSize:         1024 * 4,
		DisablePrintStack: false,
		LogLevel:          log.ERROR,
	}))

	e.Use(middleware.TimeoutWithConfig(middleware.TimeoutConfig{
		Timeout: time.Duration(cfg.Server.ReadTimeout) * time.Second,
		Skipper: func(c echo.Context) bool {
			return isSocket(c) || isProxied(c, cfg.GetProxyPaths())
		},
		ErrorMessage: "Request timeout",
	}))

	e.Use(middleware.GzipWithConfig(middleware.GzipConfig{
		Skipper: func(c echo.Context) bool {
			return isSocket(c) || isProxied(c, cfg.GetProxyPaths())
		},
	}))

	e.Use(middleware.BodyLimit(cfg.Server.BodyLimit))

	if cfg.Server.EnableCORS {
		origins := strings.Split(cfg.Server.AllowOrigins, ",")
		for i := range origins {
			origins[i] = strings.TrimSpace(origins[i])
		}
		if len(origins) == 1 && origins[0] == "" {
			origins = []string{"*"}
		}
		e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
			AllowOrigins: origins,
			AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept},
		}))
	}

	if err := web.RegisterStaticRoutes(e); err != nil {
		fmt.Printf("Failed to register static routes: %v\n", err)
		os.Exit(1)
	}

	deps := &api.Dependencies{
		Sessions:   sessionMgr,
		Transfers:  transfers,
		BackendURL: client.BaseURL(),
		ProxyPaths: cfg.GetProxyPaths(),
		Socket: api.SocketOptions{
			DefaultLang:    cfg.Widget.DefaultLanguage,
			MaxMessageSize: int64(cfg.Advanced.WebSocketMaxMessageSize) * 1024,
			ChunkSize:      cfg.Advanced.ChunkSize * 1024,
			Compress:       true,
		},
		Version: Version,
	}
	api.RegisterRoutes(e, deps, api.NewHandlers(deps))

	// Configure server with settings from XML config
	s := &http.Server{
		Addr:         cfg.GetServerAddr(),
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:  time.Duration(cfg.Server.IdleTimeout) * time.Second,
	}

	fmt.Printf("\n")
	fmt.Printf("╔═══════════════════════════════════════════════════════════╗\n")
	fmt.Printf("║           Document Analysis Widget                        ║\n")
	fmt.Printf("╠═══════════════════════════════════════════════════════════╣\n")
	fmt.Printf("║  Version:    %-45s║\n", Version)
	fmt.Printf("║  Build Time: %-45s║\n", BuildTime)
	fmt.Printf("╠═══════════════════════════════════════════════════════════╣\n")
	fmt.Printf("║  Config:    %-46s║\n", configPath)
	fmt.Printf("║  Listen:    http://%-38s║\n", cfg.GetServerAddr())
	fmt.Printf("║  Backend:   %-46s║\n", cfg.Backend.BaseURL)
	fmt.Printf("║  Spool Dir: %-46s║\n", cfg.Storage.SpoolDirectory)
	fmt.Printf("╚═══════════════════════════════════════════════════════════╝\n")
	fmt.Printf("\n")
	fmt.Printf("Open http://localhost:%d in your browser\n\n", cfg.Server.Port)

	go func() {
		if err := e.StartServer(s); err != nil && !errors.Is(err, http.ErrServerClosed) {
			e.Logger.Fatal(err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	fmt.Println("Shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(ctx); err != nil {
		e.Logger.Error(err)
	}
	sessionMgr.Shutdown()
}

func logLevel(name string) log.Lvl {
	switch strings.ToLower(name) {
	case "debug":
		return log.DEBUG
	case "warn", "warning":
		return log.WARN
	case "error":
		return log.ERROR
	case "off":
		return log.OFF
	default:
		return log.INFO
	}
}

func isSocket(c echo.Context) bool {
	return strings.HasPrefix(c.Request().URL.Path, "/api/ws/")
}

func isProxied(c echo.Context, prefixes []string) bool {
	path := c.Request().URL.Path
	for _, p := range prefixes {
		if path == p || strings.HasPrefix(path, p+"/") {
			return true
		}
	}
	return false
}
