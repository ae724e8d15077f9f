package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("KACHARA_CONFIG", "")
	t.Setenv("KACHARA_API_URL", "")
	cfg := Load("")

	assert.True(t, cfg.DemoMode())
	assert.Equal(t, 6*time.Second, cfg.Live.SendTimeout)
	assert.Equal(t, 15*time.Second, cfg.RequestTimeout)
	assert.Equal(t, "memory", cfg.AvatarStore)
	assert.Equal(t, ":8080", cfg.Demo.ServerAddr)
	assert.True(t, cfg.Demo.Seed)
}

func TestLoadYAMLAndEnvPriority(t *testing.T) {
	path := writeFile(t, "kachara.yaml", `
api_base_url: "https://api.example.com/"
live_send_timeout_ms: 2500
avatar_store: redis
redis:
  url: "redis://cache:6379/2"
demo_seed: false
`)
	t.Setenv("REQUEST_TIMEOUT", "3")
	t.Setenv("DEMO_SERVER_ADDR", "127.0.0.1:9999")

	cfg := Load(path)

	assert.False(t, cfg.DemoMode())
	assert.Equal(t, "https://api.example.com", cfg.APIBaseURL)
	assert.Equal(t, 2500*time.Millisecond, cfg.Live.SendTimeout)
	assert.Equal(t, 3*time.Second, cfg.RequestTimeout)
	assert.Equal(t, "redis", cfg.AvatarStore)
	assert.Equal(t, "redis://cache:6379/2", cfg.Redis.URL)
	assert.Equal(t, "127.0.0.1:9999", cfg.Demo.ServerAddr)
	assert.False(t, cfg.Demo.Seed)
}

func TestLoadBrokenYAMLFallsBackToDefaults(t *testing.T) {
	path := writeFile(t, "broken.yaml", "api_base_url: [unterminated")
	t.Setenv("KACHARA_API_URL", "")
	cfg := Load(path)
	assert.True(t, cfg.DemoMode())
	assert.Equal(t, 6*time.Second, cfg.Live.SendTimeout)
}

func TestNormalize(t *testing.T) {
	cfg := &Config{AvatarStore: "disk", Live: LiveConfig{ReconnectMin: 5 * time.Second, ReconnectMax: time.Second}}
	cfg.normalize()
	assert.Equal(t, "memory", cfg.AvatarStore)
	assert.Equal(t, "memory", cfg.Demo.SessionStore)
	assert.Equal(t, 5*time.Second, cfg.Live.ReconnectMax)
	assert.Equal(t, 6*time.Second, cfg.Live.SendTimeout)
}

func TestEnvHelpers(t *testing.T) {
	t.Setenv("X_INT", "nope")
	t.Setenv("X_BOOL", "true")
	assert.Equal(t, 7, envInt("X_INT", 7))
	assert.True(t, envBool("X_BOOL", false))
	assert.Equal(t, "fallback", envStr("X_MISSING_VALUE", "fallback"))
}
