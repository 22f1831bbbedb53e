package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("PORT", "")
	t.Setenv("CLAWCREATE_CONFIG", "")

	cfg, err := Load("")
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())
	assert.Equal(t, ":8080", cfg.Addr)
	assert.Equal(t, "http://localhost:8080", cfg.BaseURL)
	assert.Equal(t, 60, cfg.RateLimit.PerMinute)
	assert.Equal(t, time.Minute, cfg.RateLimit.Window)
	assert.Equal(t, "omni-moderation-latest", cfg.Moderation.Model)
	assert.Equal(t, 5*time.Second, cfg.Moderation.Timeout)
	assert.Equal(t, "fail-open", cfg.Moderation.Policy)
	assert.Equal(t, int64(100<<20), cfg.Media.MaxBytes)
}

func TestPrecedenceFileThenEnv(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	path := filepath.Join(dir, "clawcreate.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
addr: ":9000"
base_url: "https://clawcreate.example.com/"
rate_limit:
  per_minute: 30
  window: 30s
  trusted_proxies: ["10.0.0.0/8", "192.0.2.1"]
moderation:
  policy: fail-closed
  api_key: sk-test
  timeout: 2s
`), 0o644))
	t.Setenv("CLAWCREATE_RL_PER_MIN", "90")
	t.Setenv("PORT", "")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())
	assert.Equal(t, ":9000", cfg.Addr)
	assert.Equal(t, "https://clawcreate.example.com", cfg.BaseURL)
	assert.Equal(t, 90, cfg.RateLimit.PerMinute)
	assert.Equal(t, 30*time.Second, cfg.RateLimit.Window)
	assert.Equal(t, "fail-closed", cfg.Moderation.Policy)
	assert.Equal(t, 2*time.Second, cfg.Moderation.Timeout)
	assert.Equal(t, 10, cfg.RateLimit.ClaimPerMinute)
	assert.Equal(t, []string{"10.0.0.0/8", "192.0.2.1"}, cfg.RateLimit.TrustedProxies)
}

func TestDotEnvAndPort(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("CLAWCREATE_LOG_LEVEL=debug\n"), 0o644))
	t.Setenv("PORT", "7070")
	t.Setenv("CLAWCREATE_ADDR", "")
	t.Cleanup(func() { _ = os.Unsetenv("CLAWCREATE_LOG_LEVEL") })

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, ":7070", cfg.Addr)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestValidate(t *testing.T) {
	cases := map[string]func(*Config){
		"driver":   func(c *Config) { c.DB.Driver = "mysql" },
		"pg url":   func(c *Config) { c.DB.Driver = "postgres" },
		"base url": func(c *Config) { c.BaseURL = "clawcreate.example.com" },
		"policy":   func(c *Config) { c.Moderation.Policy = "sometimes" },
		"limit":    func(c *Config) { c.RateLimit.PerMinute = 0 },
		"secret":   func(c *Config) { c.Media.Secret = "" },
		"proxies":  func(c *Config) { c.RateLimit.TrustedProxies = []string{"not-an-ip"} },
		"fail-closed without key": func(c *Config) {
			c.Moderation.Policy = "fail-closed"
			c.Moderation.APIKey = ""
		},
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.BaseURL = "http://localhost:8080"
			cfg.Media.Secret = "configured-secret"
			require.NoError(t, cfg.Validate())
			mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestMediaSecretGeneratedWhenUnset(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("CLAWCREATE_CONFIG", "")
	t.Setenv("CLAWCREATE_MEDIA_SECRET", "")

	first, err := Load("")
	require.NoError(t, err)
	second, err := Load("")
	require.NoError(t, err)
	assert.True(t, first.Media.SecretGenerated)
	assert.Len(t, first.Media.Secret, 64)
	assert.NotEqual(t, first.Media.Secret, second.Media.Secret)
	require.NoError(t, first.Validate())

	t.Setenv("CLAWCREATE_MEDIA_SECRET", "operator-chosen")
	cfg, err := Load("")
	require.NoError(t, err)
	assert.False(t, cfg.Media.SecretGenerated)
	assert.Equal(t, "operator-chosen", cfg.Media.Secret)
}

func TestFailClosedWithAPIKeyIsValid(t *testing.T) {
	cfg := DefaultConfig()
	cfg.BaseURL = "http://localhost:8080"
	cfg.Media.Secret = "configured-secret"
	cfg.Moderation.Policy = "fail-closed"
	cfg.Moderation.APIKey = "sk-test"
	assert.NoError(t, cfg.Validate())
}

func TestParseTrustedProxies(t *testing.T) {
	prefixes, err := ParseTrustedProxies([]string{"10.1.2.3/8", " 192.0.2.1 ", "", "::ffff:198.51.100.7", "2001:db8::/32"})
	require.NoError(t, err)
	require.Len(t, prefixes, 4)
	assert.Equal(t, "10.0.0.0/8", prefixes[0].String())
	assert.Equal(t, "192.0.2.1/32", prefixes[1].String())
	assert.Equal(t, "198.51.100.7/32", prefixes[2].String())
	assert.Equal(t, "2001:db8::/32", prefixes[3].String())

	_, err = ParseTrustedProxies([]string{"10.0.0.0/99"})
	assert.Error(t, err)

	t.Chdir(t.TempDir())
	t.Setenv("CLAWCREATE_CONFIG", "")
	t.Setenv("CLAWCREATE_TRUSTED_PROXIES", "127.0.0.1, 10.0.0.0/8")
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, []string{"127.0.0.1", "10.0.0.0/8"}, cfg.RateLimit.TrustedProxies)
}
