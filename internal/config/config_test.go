package config

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/arloliu/apkblock/format"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	require.Equal(t, "info", cfg.Log.Level)
	require.Equal(t, format.CompressionNone, cfg.Archive.Compression)
	require.Equal(t, "framework", cfg.Optimize.FrameworkName)
}

func TestParse(t *testing.T) {
	cfg, err := Parse([]byte(`
log:
  level: debug
  format: json
archive:
  compression: zstd
optimize:
  keep:
    - classes.dex
`))
	require.NoError(t, err)
	require.Equal(t, "debug", cfg.Log.Level)
	require.Equal(t, "json", cfg.Log.Format)
	require.Equal(t, format.CompressionZstd, cfg.Archive.Compression)
	require.Equal(t, []string{"classes.dex"}, cfg.Optimize.Keep)
	require.Equal(t, "framework", cfg.Optimize.FrameworkName)

	cfg, err = Parse(nil)
	require.NoError(t, err)
	require.Equal(t, Default(), cfg)
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"unknown key", "logging: {}"},
		{"bad level", "log: {level: loud}"},
		{"bad format", "log: {format: xml}"},
		{"bad compression", "archive: {compression: brotli}"},
		{"not yaml", "log: ["},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			require.Error(t, err)
		})
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "apkblock.yaml")
	require.NoError(t, os.WriteFile(path, []byte("archive: {compression: lz4}\n"), 0o600))

	t.Setenv(EnvVar, path)
	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, format.CompressionLZ4, cfg.Archive.Compression)

	t.Setenv(EnvVar, "")
	cfg, err = Load()
	require.NoError(t, err)
	require.Equal(t, Default(), cfg)

	_, err = LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger, err := LogConfig{Level: "warn", Format: "json"}.NewLogger(&buf)
	require.NoError(t, err)

	logger.Info("hidden")
	logger.Warn("shown")
	require.NotContains(t, buf.String(), "hidden")
	require.Contains(t, buf.String(), `"msg":"shown"`)

	_, err = LogConfig{Level: "nope"}.NewLogger(&buf)
	require.Error(t, err)
}
