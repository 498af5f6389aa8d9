// Package config provides XML-based configuration for the widget host.
package config

import (
	"encoding/xml"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// AppConfig represents the root XML configuration structure
type AppConfig struct {
	XMLName xml.Name `xml:"DocAnalyzerWidget"`

	// Server configuration
	Server ServerConfig `xml:"Server"`

	// Analysis backend
	Backend BackendConfig `xml:"Backend"`

	// Spool for selected files
	Storage StorageConfig `xml:"Storage"`

	// Widget presentation
	Widget WidgetConfig `xml:"Widget"`

	// Live widget sessions
	Sessions SessionsConfig `xml:"Sessions"`

	// Advanced options
	Advanced AdvancedConfig `xml:"Advanced"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Port         int    `xml:"Port"`
	BindAddress  string `xml:"BindAddress"`
	EnableCORS   bool   `xml:"EnableCORS"`
	AllowOrigins string `xml:"AllowOrigins"`
	ReadTimeout  int    `xml:"ReadTimeoutSeconds"`
	WriteTimeout int    `xml:"WriteTimeoutSeconds"`
	IdleTimeout  int    `xml:"IdleTimeoutSeconds"`
	BodyLimit    string `xml:"BodyLimit"`
}

// BackendConfig points at the analysis service.
type BackendConfig struct {
	BaseURL string `xml:"BaseURL"`
	// 0 means no timeout.
	RequestTimeoutSeconds int `xml:"RequestTimeoutSeconds"`
	// Comma-separated path prefixes forwarded to the backend.
	ProxyPaths string `xml:"ProxyPaths"`
}

// StorageConfig contains spool settings
type StorageConfig struct {
	SpoolDirectory string `xml:"SpoolDirectory"`
}

// WidgetConfig contains presentation settings
type WidgetConfig struct {
	DefaultLanguage string `xml:"DefaultLanguage"`
	// IANA name used to display job dates; empty means the host's zone.
	TimeZone string `xml:"TimeZone"`
}

// SessionsConfig bounds the live widget sessions
type SessionsConfig struct {
	MaxSessions            int `xml:"MaxSessions"`
	SessionTimeoutMinutes  int `xml:"SessionTimeoutMinutes"`
	CleanupIntervalMinutes int `xml:"CleanupIntervalMinutes"`
}

// AdvancedConfig contains advanced/tuning options
type AdvancedConfig struct {
	LogLevel                string `xml:"LogLevel"`
	EnableRequestLogging    bool   `xml:"EnableRequestLogging"`
	WebSocketMaxMessageSize int    `xml:"WebSocketMaxMessageSizeKB"`
	ChunkSize               int    `xml:"ChunkSizeKB"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *AppConfig {
	return &AppConfig{
		Server: ServerConfig{
			Port:         8090,
			BindAddress:  "0.0.0.0",
			EnableCORS:   true,
			AllowOrigins: "*",
			ReadTimeout:  30,
			WriteTimeout: 0,
			IdleTimeout:  120,
			BodyLimit:    "10M",
		},
		Backend: BackendConfig{
			BaseURL:               "http://localhost:5000",
			RequestTimeoutSeconds: 0,
			ProxyPaths:            "/results,/download",
		},
		Storage: StorageConfig{
			SpoolDirectory: "./data/spool",
		},
		Widget: WidgetConfig{
			DefaultLanguage: "fr",
			TimeZone:        "",
		},
		Sessions: SessionsConfig{
			MaxSessions:            100,
			SessionTimeoutMinutes:  60,
			CleanupIntervalMinutes: 5,
		},
		Advanced: AdvancedConfig{
			LogLevel:                "info",
			EnableRequestLogging:    true,
			WebSocketMaxMessageSize: 2048,
			ChunkSize:               512,
		},
	}
}

// LoadConfig loads configuration from XML file
func LoadConfig(configPath string) (*AppConfig, error) {
	config := DefaultConfig()

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		// First run: write the defaults so they can be edited.
		if err := config.Save(configPath); err != nil {
			return nil, fmt.Errorf("failed to create default config: %w", err)
		}
	} else {
		data, err := os.ReadFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := xml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	config.applyEnvironmentOverrides()
	config.resolvePaths(filepath.Dir(configPath))

	return config, nil
}

// Save saves the configuration to XML file
func (c *AppConfig) Save(configPath string) error {
	output, err := xml.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	header := []byte(xml.Header + "\n<!-- Document Analyzer Widget Configuration -->\n<!-- This file is auto-generated on first run -->\n\n")
	content := append(header, output...)

	if err := os.WriteFile(configPath, content, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// applyEnvironmentOverrides allows environment variables to override config values
func (c *AppConfig) applyEnvironmentOverrides() {
	if port := os.Getenv("PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			c.Server.Port = p
		}
	}

	if backendURL := os.Getenv("BACKEND_URL"); backendURL != "" {
		c.Backend.BaseURL = backendURL
	}

	if spoolDir := os.Getenv("SPOOL_DIR"); spoolDir != "" {
		c.Storage.SpoolDirectory = spoolDir
	}

	if level := os.Getenv("LOG_LEVEL"); level != "" {
		c.Advanced.LogLevel = level
	}
}

// resolvePaths converts relative paths to absolute based on config file location
func (c *AppConfig) resolvePaths(configDir string) {
	if !filepath.IsAbs(c.Storage.SpoolDirectory) {
		c.Storage.SpoolDirectory = filepath.Join(configDir, c.Storage.SpoolDirectory)
	}
}

// GetServerAddr returns the server bind address
func (c *AppConfig) GetServerAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.BindAddress, c.Server.Port)
}

// GetProxyPaths returns the configured backend path prefixes.
func (c *AppConfig) GetProxyPaths() []string {
	var paths []string
	for _, p := range strings.Split(c.Backend.ProxyPaths, ",") {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if !strings.HasPrefix(p, "/") {
			p = "/" + p
		}
		paths = append(paths, strings.TrimSuffix(p, "/"))
	}
	return paths
}

// GetRequestTimeout returns the backend request timeout, 0 for none.
func (c *AppConfig) GetRequestTimeout() time.Duration {
	if c.Backend.RequestTimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(c.Backend.RequestTimeoutSeconds) * time.Second
}

// GetSessionTimeout returns how long an idle session is kept.
func (c *AppConfig) GetSessionTimeout() time.Duration {
	return time.Duration(c.Sessions.SessionTimeoutMinutes) * time.Minute
}

// GetCleanupInterval returns the period of the cleanup ticker.
func (c *AppConfig) GetCleanupInterval() time.Duration {
	if c.Sessions.CleanupIntervalMinutes <= 0 {
		return 5 * time.Minute
	}
	return time.Duration(c.Sessions.CleanupIntervalMinutes) * time.Minute
}

// GetLocation returns the zone used to display job dates.
func (c *AppConfig) GetLocation() (*time.Location, error) {
	if c.Widget.TimeZone == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Widget.TimeZone)
	if err != nil {
		return nil, fmt.Errorf("invalid time zone %q: %w", c.Widget.TimeZone, err)
	}
	return loc, nil
}

// EnsureDirectories creates all necessary directories
func (c *AppConfig) EnsureDirectories() error {
	dirs := []string{
		c.Storage.SpoolDirectory,
	}

	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	return nil
}
