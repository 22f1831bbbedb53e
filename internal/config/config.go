package config

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net/netip"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Addr       string           `yaml:"addr"`
	BaseURL    string           `yaml:"base_url"`
	DB         DBConfig         `yaml:"db"`
	Media      MediaConfig      `yaml:"media"`
	RateLimit  RateLimitConfig  `yaml:"rate_limit"`
	Moderation ModerationConfig `yaml:"moderation"`
	NATS       NATSConfig       `yaml:"nats"`
	Log        LogConfig        `yaml:"log"`
	Version    string           `yaml:"version"`
	Commit     string           `yaml:"commit"`
	BuildTime  string           `yaml:"build_time"`
}

type DBConfig struct {
	// Driver is sqlite or postgres.
	Driver string `yaml:"driver"`
	Path   string `yaml:"path"`
	URL    string `yaml:"url"`
}

type MediaConfig struct {
	Dir       string        `yaml:"dir"`
	Secret    string        `yaml:"secret"`
	MaxBytes  int64         `yaml:"max_bytes"`
	UploadTTL time.Duration `yaml:"upload_ttl"`

	// SecretGenerated is set when Load had to invent a per-process secret.
	SecretGenerated bool `yaml:"-"`
}

type RateLimitConfig struct {
	PerMinute      int           `yaml:"per_minute"`
	Window         time.Duration `yaml:"window"`
	ClaimPerMinute int           `yaml:"claim_per_minute"`
	RedisURL       string        `yaml:"redis_url"`
	SweepInterval  time.Duration `yaml:"sweep_interval"`
	// TrustedProxies lists peers (IPs or CIDRs) whose X-Forwarded-For is
	// honored when keying per-IP limits.
	TrustedProxies []string      `yaml:"trusted_proxies"`
}

type ModerationConfig struct {
	APIKey  string        `yaml:"api_key"`
	BaseURL string        `yaml:"base_url"`
	Model   string        `yaml:"model"`
	Timeout time.Duration `yaml:"timeout"`
	// Policy is fail-open or fail-closed.
	Policy string `yaml:"policy"`
}

type NATSConfig struct {
	// URL empty disables event publishing.
	URL           string `yaml:"url"`
	SubjectPrefix string `yaml:"subject_prefix"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

func DefaultConfig() *Config {
	return &Config{
		Addr: ":8080",
		DB: DBConfig{
			Driver: "sqlite",
			Path:   "clawcreate.db",
		},
		Media: MediaConfig{
			Dir:       "media",
			MaxBytes:  100 << 20,
			UploadTTL: 15 * time.Minute,
		},
		RateLimit: RateLimitConfig{
			PerMinute:      60,
			Window:         time.Minute,
			ClaimPerMinute: 10,
			SweepInterval:  time.Minute,
		},
		Moderation: ModerationConfig{
			Model:   "omni-moderation-latest",
			Timeout: 5 * time.Second,
			Policy:  "fail-open",
		},
		NATS:    NATSConfig{SubjectPrefix: "clawcreate"},
		Log:     LogConfig{Level: "info", Format: "text"},
		Version: "dev",
	}
}

// Load builds the configuration from defaults, an optional YAML file and the
// environment, in that order of precedence. A .env file in the working
// directory is loaded first when present.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := DefaultConfig()
	if path == "" {
		path = os.Getenv("CLAWCREATE_CONFIG")
	}
	if path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}
	cfg.applyEnv()
	if cfg.Media.Secret == "" {
		secret, err := randomSecret()
		if err != nil {
			return nil, err
		}
		cfg.Media.Secret = secret
		cfg.Media.SecretGenerated = true
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL(cfg.Addr)
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}
	return nil
}

func (c *Config) applyEnv() {
	addr := envString("CLAWCREATE_ADDR", "")
	if addr == "" {
		if port := os.Getenv("PORT"); port != "" {
			addr = ":" + port
		}
	}
	if addr != "" {
		c.Addr = addr
	}
	c.BaseURL = envString("CLAWCREATE_BASE_URL", c.BaseURL)

	c.DB.Driver = envString("CLAWCREATE_DB_DRIVER", c.DB.Driver)
	c.DB.Path = envString("CLAWCREATE_DB", c.DB.Path)
	c.DB.URL = envString("CLAWCREATE_DATABASE_URL", envString("DATABASE_URL", c.DB.URL))

	c.Media.Dir = envString("CLAWCREATE_MEDIA_DIR", c.Media.Dir)
	c.Media.Secret = envString("CLAWCREATE_MEDIA_SECRET", c.Media.Secret)
	c.Media.MaxBytes = int64(envInt("CLAWCREATE_MEDIA_MAX_BYTES", int(c.Media.MaxBytes)))
	c.Media.UploadTTL = envDuration("CLAWCREATE_MEDIA_UPLOAD_TTL", c.Media.UploadTTL)

	c.RateLimit.PerMinute = envInt("CLAWCREATE_RL_PER_MIN", c.RateLimit.PerMinute)
	c.RateLimit.Window = envDuration("CLAWCREATE_RL_WINDOW", c.RateLimit.Window)
	c.RateLimit.ClaimPerMinute = envInt("CLAWCREATE_RL_CLAIM_PER_MIN", c.RateLimit.ClaimPerMinute)
	c.RateLimit.RedisURL = envString("CLAWCREATE_REDIS_URL", c.RateLimit.RedisURL)
	c.RateLimit.SweepInterval = envDuration("CLAWCREATE_RL_SWEEP_INTERVAL", c.RateLimit.SweepInterval)
	if v := os.Getenv("CLAWCREATE_TRUSTED_PROXIES"); v != "" {
		c.RateLimit.TrustedProxies = splitList(v)
	}

	c.Moderation.APIKey = envString("CLAWCREATE_OPENAI_API_KEY", envString("OPENAI_API_KEY", c.Moderation.APIKey))
	c.Moderation.BaseURL = envString("CLAWCREATE_OPENAI_BASE_URL", c.Moderation.BaseURL)
	c.Moderation.Model = envString("CLAWCREATE_MODERATION_MODEL", c.Moderation.Model)
	c.Moderation.Timeout = envDuration("CLAWCREATE_MODERATION_TIMEOUT", c.Moderation.Timeout)
	c.Moderation.Policy = envString("CLAWCREATE_MODERATION_POLICY", c.Moderation.Policy)

	c.NATS.URL = envString("CLAWCREATE_NATS_URL", c.NATS.URL)
	c.NATS.SubjectPrefix = envString("CLAWCREATE_NATS_SUBJECT_PREFIX", c.NATS.SubjectPrefix)

	c.Log.Level = envString("CLAWCREATE_LOG_LEVEL", c.Log.Level)
	c.Log.Format = envString("CLAWCREATE_LOG_FORMAT", c.Log.Format)
}

func (c *Config) Validate() error {
	if c.Addr == "" {
		return fmt.Errorf("addr is required")
	}
	switch c.DB.Driver {
	case "sqlite":
		if c.DB.Path == "" {
			return fmt.Errorf("db.path is required for sqlite")
		}
	case "postgres":
		if c.DB.URL == "" {
			return fmt.Errorf("db.url is required for postgres")
		}
	default:
		return fmt.Errorf("db.driver must be sqlite or postgres, got %q", c.DB.Driver)
	}
	if !strings.HasPrefix(c.BaseURL, "http://") && !strings.HasPrefix(c.BaseURL, "https://") {
		return fmt.Errorf("base_url must be an http(s) URL, got %q", c.BaseURL)
	}
	if c.Media.Secret == "" {
		return fmt.Errorf("media.secret is required")
	}
	if c.Media.MaxBytes <= 0 {
		return fmt.Errorf("media.max_bytes must be positive")
	}
	if c.RateLimit.PerMinute <= 0 || c.RateLimit.ClaimPerMinute <= 0 {
		return fmt.Errorf("rate limits must be positive")
	}
	if c.RateLimit.Window <= 0 {
		return fmt.Errorf("rate_limit.window must be positive")
	}
	if _, err := ParseTrustedProxies(c.RateLimit.TrustedProxies); err != nil {
		return err
	}
	if c.Moderation.Timeout <= 0 {
		return fmt.Errorf("moderation.timeout must be positive")
	}
	switch c.Moderation.Policy {
	case "fail-open":
	case "fail-closed":
		if c.Moderation.APIKey == "" {
			return fmt.Errorf("moderation.policy fail-closed requires moderation.api_key")
		}
	default:
		return fmt.Errorf("moderation.policy must be fail-open or fail-closed, got %q", c.Moderation.Policy)
	}
	return nil
}

// ParseTrustedProxies turns IPs and CIDRs into prefixes. A bare IP matches
// only itself.
func ParseTrustedProxies(entries []string) ([]netip.Prefix, error) {
	var prefixes []netip.Prefix
	for _, e := range entries {
		e = strings.TrimSpace(e)
		if e == "" {
			continue
		}
		if strings.Contains(e, "/") {
			p, err := netip.ParsePrefix(e)
			if err != nil {
				return nil, fmt.Errorf("rate_limit.trusted_proxies: %w", err)
			}
			prefixes = append(prefixes, p.Masked())
			continue
		}
		addr, err := netip.ParseAddr(e)
		if err != nil {
			return nil, fmt.Errorf("rate_limit.trusted_proxies: %w", err)
		}
		addr = addr.Unmap()
		prefixes = append(prefixes, netip.PrefixFrom(addr, addr.BitLen()))
	}
	return prefixes, nil
}

func randomSecret() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate media secret: %w", err)
	}
	return hex.EncodeToString(b), nil
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func defaultBaseURL(addr string) string {
	if strings.HasPrefix(addr, ":") {
		return "http://localhost" + addr
	}
	return "http://" + addr
}

func envString(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func envDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
