package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// chdir mirrors testing.T.Chdir (Go 1.24+): it changes the working directory
// and restores the previous one when the test finishes.
func chdir(t *testing.T, dir string) {
	t.Helper()
	prev, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(prev) })
}

func TestLoadDefaults(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("AI_API_KEY", "")
	t.Setenv("AI_API_URL", "")
	t.Setenv("PORT", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.False(t, cfg.Provider.Enabled())
	assert.Equal(t, DefaultEndpoint, cfg.Provider.Endpoint)
	assert.Equal(t, ":3000", cfg.Server.Addr)
	assert.Equal(t, "frontend", cfg.Server.StaticDir)
	assert.Equal(t, "ai_chat_history", cfg.Storage.HistoryKey)
	assert.Equal(t, "logs", cfg.LogDir)
}

func TestLoadProviderFromEnv(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("AI_API_KEY", "  sk-test  ")
	t.Setenv("AI_API_URL", "http://localhost:8080/v1/chat/completions")
	t.Setenv("PORT", "127.0.0.1:9000")

	cfg, err := Load()
	require.NoError(t, err)

	assert.True(t, cfg.Provider.Enabled())
	assert.Equal(t, "sk-test", cfg.Provider.APIKey)
	assert.Equal(t, "http://localhost:8080/v1/chat/completions", cfg.Provider.Endpoint)
	assert.Equal(t, "127.0.0.1:9000", cfg.Server.Addr)
}

func TestLoadRejectsBadEndpoint(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("AI_API_URL", "not a url")

	_, err := Load()
	assert.Error(t, err)
}

func TestNormalizeAddr(t *testing.T) {
	cases := map[string]string{
		"":          ":3000",
		"8080":      ":8080",
		":8081":     ":8081",
		"0.0.0.0:1": "0.0.0.0:1",
	}
	for in, want := range cases {
		got, err := normalizeAddr(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := normalizeAddr("80 80")
	assert.Error(t, err)
}

func TestProviderEnabledIgnoresWhitespaceKey(t *testing.T) {
	assert.False(t, ProviderConfig{APIKey: "   "}.Enabled())
	assert.True(t, ProviderConfig{APIKey: "k"}.Enabled())
}
