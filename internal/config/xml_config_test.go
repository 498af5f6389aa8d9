package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigCreatesDefault(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "DocAnalyzerWidget.config")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "<DocAnalyzerWidget>")
	assert.Contains(t, string(data), "<BaseURL>http://localhost:5000</BaseURL>")

	assert.Equal(t, 8090, cfg.Server.Port)
	assert.Equal(t, filepath.Join(dir, "data/spool"), cfg.Storage.SpoolDirectory)
	assert.Equal(t, time.Duration(0), cfg.GetRequestTimeout())
	assert.Equal(t, []string{"/results", "/download"}, cfg.GetProxyPaths())
}

func TestLoadConfigReadsFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "DocAnalyzerWidget.config")

	xml := `<?xml version="1.0" encoding="UTF-8"?>
<DocAnalyzerWidget>
  <Server><Port>9000</Port><BindAddress>127.0.0.1</BindAddress></Server>
  <Backend><BaseURL>http://analyzer:5000/</BaseURL><RequestTimeoutSeconds>45</RequestTimeoutSeconds></Backend>
  <Storage><SpoolDirectory>/var/spool/widget</SpoolDirectory></Storage>
  <Widget><DefaultLanguage>en</DefaultLanguage><TimeZone>UTC</TimeZone></Widget>
</DocAnalyzerWidget>`
	require.NoError(t, os.WriteFile(path, []byte(xml), 0644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:9000", cfg.GetServerAddr())
	assert.Equal(t, "http://analyzer:5000/", cfg.Backend.BaseURL)
	assert.Equal(t, 45*time.Second, cfg.GetRequestTimeout())
	assert.Equal(t, "/var/spool/widget", cfg.Storage.SpoolDirectory)
	assert.Equal(t, "en", cfg.Widget.DefaultLanguage)

	// Sections absent from the file keep their defaults.
	assert.Equal(t, 100, cfg.Sessions.MaxSessions)
	assert.Equal(t, "info", cfg.Advanced.LogLevel)

	loc, err := cfg.GetLocation()
	require.NoError(t, err)
	assert.Equal(t, time.UTC, loc)
}

func TestLoadConfigInvalidXML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.config")
	require.NoError(t, os.WriteFile(path, []byte("<DocAnalyzerWidget>"), 0644))

	_, err := LoadConfig(path)
	assert.Error(t, err)
}

func TestEnvironmentOverrides(t *testing.T) {
	t.Setenv("PORT", "7777")
	t.Setenv("BACKEND_URL", "http://env-backend:1234")
	t.Setenv("SPOOL_DIR", "/tmp/env-spool")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "DocAnalyzerWidget.config"))
	require.NoError(t, err)

	assert.Equal(t, 7777, cfg.Server.Port)
	assert.Equal(t, "http://env-backend:1234", cfg.Backend.BaseURL)
	assert.Equal(t, "/tmp/env-spool", cfg.Storage.SpoolDirectory)
	assert.Equal(t, "debug", cfg.Advanced.LogLevel)
}

func TestGetProxyPaths(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{"/results,/download", []string{"/results", "/download"}},
		{" results/ , ,/download/ ", []string{"/results", "/download"}},
		{"", nil},
	}

	for _, tt := range tests {
		cfg := DefaultConfig()
		cfg.Backend.ProxyPaths = tt.in
		assert.Equal(t, tt.want, cfg.GetProxyPaths(), "input %q", tt.in)
	}
}

func TestGetLocationInvalid(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Widget.TimeZone = "Nowhere/Invalid"

	_, err := cfg.GetLocation()
	assert.Error(t, err)
}

func TestEnsureDirectories(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Storage.SpoolDirectory = filepath.Join(t.TempDir(), "a", "b")

	require.NoError(t, cfg.EnsureDirectories())
	info, err := os.Stat(cfg.Storage.SpoolDirectory)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "saved.config")
	cfg := DefaultConfig()
	cfg.Sessions.MaxSessions = 7

	require.NoError(t, cfg.Save(path))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "<?xml"))

	loaded, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 7, loaded.Sessions.MaxSessions)
}
