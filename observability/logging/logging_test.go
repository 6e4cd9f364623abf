package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSetupRenamesKeys(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	var buf bytes.Buffer
	logger := Setup("nftledger", "test", Options{Output: &buf, Level: slog.LevelDebug})
	logger.Debug("call committed", "method", "mint")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	require.Equal(t, "call committed", line["message"])
	require.Equal(t, "DEBUG", line["severity"])
	require.Equal(t, "nftledger", line["service"])
	require.Equal(t, "test", line["env"])
	require.Contains(t, line, "timestamp")
}

func TestSetupWritesRotatedFile(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	path := filepath.Join(t.TempDir(), "ledger.log")
	var buf bytes.Buffer
	logger := Setup("nftledger", "", Options{Output: &buf, File: path, MaxSizeMB: 1, MaxBackups: 1})
	logger.Info("hello")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(data), `"message":"hello"`)
	require.Equal(t, buf.String(), string(data))
}

func TestMaskField(t *testing.T) {
	require.Equal(t, RedactedValue, MaskField("signature_0", "0xdeadbeef").Value.String())
	require.Equal(t, "mint", MaskField("method", "mint").Value.String())
	require.Equal(t, "", MaskField("signature", "").Value.String())
	require.False(t, IsSensitive("signatures_verified"))
	require.True(t, IsSensitive("Passphrase"))
}

func TestSetupRedactsSensitiveAttrs(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	var buf bytes.Buffer
	logger := Setup("nftledger", "", Options{Output: &buf})
	logger.Info("keystore unlocked", "passphrase", "hunter2", "private_key", []byte{1, 2}, "call_id", "abc")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	require.Equal(t, RedactedValue, line["passphrase"])
	require.Equal(t, RedactedValue, line["private_key"])
	require.Equal(t, "abc", line["call_id"])
}

func TestParseLevel(t *testing.T) {
	require.Equal(t, slog.LevelDebug, ParseLevel("DEBUG"))
	require.Equal(t, slog.LevelWarn, ParseLevel("warning"))
	require.Equal(t, slog.LevelInfo, ParseLevel(""))
}
