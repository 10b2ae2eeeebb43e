package logger

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	t.Parallel()

	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"WARN":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"verbose": slog.LevelInfo,
	}
	for in, want := range cases {
		require.Equal(t, want, parseLevel(in), in)
	}
}

func TestBuildHandlerFormats(t *testing.T) {
	t.Parallel()

	var text, js bytes.Buffer
	opts := &slog.HandlerOptions{Level: slog.LevelInfo}
	slog.New(buildHandler("text", &text, opts)).Info("connected", slog.String("network", "local"))
	slog.New(buildHandler("json", &js, opts)).Info("connected", slog.String("network", "local"))

	require.Contains(t, text.String(), "network=local")
	require.Contains(t, js.String(), `"network":"local"`)
}

func TestAuditLoggerRequiresPath(t *testing.T) {
	t.Parallel()

	_, _, err := buildAuditLogger(AuditConfig{Enabled: true})
	require.Error(t, err)

	writer, err := newRotatingWriter(filepath.Join(t.TempDir(), "audit", "audit.log"), 0, 0, 0, true)
	require.NoError(t, err)
	require.Equal(t, 100, writer.MaxSize)
	require.True(t, writer.Compress)
	require.NoError(t, writer.Close())
}

// TestInitReplacesLoggers mutates package state and must not run in parallel.
func TestInitReplacesLoggers(t *testing.T) {
	dir := t.TempDir()
	first := filepath.Join(dir, "first.log")
	second := filepath.Join(dir, "second.log")
	audit := filepath.Join(dir, "audit", "audit.log")

	require.NoError(t, Init(Config{Level: "debug", Format: "text", OutputPaths: []string{first}}))
	Named("registry").Debug("enrolled", slog.String("name", "Token"))

	require.NoError(t, Init(Config{
		Level:       "warn",
		OutputPaths: []string{second},
		Audit:       AuditConfig{Enabled: true, Path: audit},
	}))
	L().Info("dropped")
	L().Warn("kept")
	Audit().Info("api_request", slog.String("path", "/api/v1/network"))
	require.NoError(t, Sync())

	data, err := os.ReadFile(first)
	require.NoError(t, err)
	require.Contains(t, string(data), "component=registry")
	require.Contains(t, string(data), "name=Token")

	data, err = os.ReadFile(second)
	require.NoError(t, err)
	require.NotContains(t, string(data), "dropped")
	require.Contains(t, string(data), `"msg":"kept"`)

	data, err = os.ReadFile(audit)
	require.NoError(t, err)
	require.Contains(t, string(data), "/api/v1/network")

	require.Error(t, Init(Config{Audit: AuditConfig{Enabled: true}}))
}
