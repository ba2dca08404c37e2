package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("HTTP_PORT", "9000")
	t.Setenv("COMPLETION_DEADLINE_MS", "1500")
	t.Setenv("UPSTREAM_TIMEOUT_MS", "3000")
	t.Setenv("CORS_ORIGINS", "https://a.example, https://b.example")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 9000, cfg.HTTPPort)
	assert.Equal(t, 8081, cfg.InternalPort)
	assert.Equal(t, 1500*time.Millisecond, cfg.CompletionDeadline)
	assert.Equal(t, 3*time.Second, cfg.UpstreamTimeout)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORSOrigins)
	assert.Equal(t, 10, cfg.ContextWindow)
}

func TestLoadRequiresSecret(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("JWT_SECRET", "")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "JWT_SECRET")
}

func TestValidateDeadlineWithinTransportTimeout(t *testing.T) {
	cfg := Default()
	cfg.JWTSecret = "s"
	cfg.CompletionDeadline = 2 * time.Minute
	cfg.UpstreamTimeout = time.Minute

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "must not exceed")
}

func TestLoadFileWithEnvExpansion(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "gateway.yaml")
	content := `
server:
  http_port: 7000
auth:
  jwt_secret: ${TEST_GATEWAY_SECRET}
sessions:
  context_window: 4
upstream:
  deadline: 5s
  timeout: 10s
models:
  - slug: gpt-4
    name: GPT-4
    chat_webhook_url: http://hooks.local/chat
    is_active: true
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	t.Setenv("TEST_GATEWAY_SECRET", "from-env")
	t.Setenv("CONFIG_FILE", path)
	t.Setenv("JWT_SECRET", "")
	t.Setenv("HTTP_PORT", "")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 7000, cfg.HTTPPort)
	assert.Equal(t, "from-env", cfg.JWTSecret)
	assert.Equal(t, 4, cfg.ContextWindow)
	assert.Equal(t, 5*time.Second, cfg.CompletionDeadline)
	require.Len(t, cfg.Models, 1)
	assert.Equal(t, "gpt-4", cfg.Models[0].Slug)
	assert.True(t, cfg.Models[0].IsActive)
}

func TestParseRejectsBadDuration(t *testing.T) {
	fc, err := Parse([]byte("upstream:\n  deadline: soon\n"))
	require.NoError(t, err)

	err = fc.apply(Default())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "upstream.deadline")
}

func TestParseModelSeedDefaultsToActive(t *testing.T) {
	fc, err := Parse([]byte(`models:
  - slug: implicit
    chat_webhook_url: http://hooks.local/implicit
  - slug: disabled
    chat_webhook_url: http://hooks.local/disabled
    is_active: false
`))
	require.NoError(t, err)

	cfg := Default()
	require.NoError(t, fc.apply(cfg))
	require.Len(t, cfg.Models, 2)
	assert.Equal(t, "implicit", cfg.Models[0].Slug)
	assert.True(t, cfg.Models[0].IsActive)
	assert.Equal(t, "disabled", cfg.Models[1].Slug)
	assert.False(t, cfg.Models[1].IsActive)
}
