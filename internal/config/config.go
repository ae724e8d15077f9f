package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/kacharaalert/internal/logger"
)

const defaultJWTSecret = "kachara-demo-secret"

// loadEnv reads the nearest .env (up to five parent directories) outside
// production. Variables already set in the environment win.
func loadEnv() {
	if os.Getenv("APP_ENV") == "production" {
		return
	}
	dir, err := os.Getwd()
	if err != nil {
		return
	}
	for i := 0; i < 5; i++ {
		path := filepath.Join(dir, ".env")
		if _, err := os.Stat(path); err == nil {
			if err := godotenv.Load(path); err != nil {
				logger.Errorf("config: read %s: %v", path, err)
			}
			return
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return
		}
		dir = parent
	}
}

// RedisConfig is used by the avatar blob store and the demo session store
// when their store is "redis".
type RedisConfig struct {
	URL string `yaml:"url"`
}

// LiveConfig tunes the live channel connection.
type LiveConfig struct {
	SendTimeout      time.Duration
	DialTimeout      time.Duration
	ReconnectMin     time.Duration
	ReconnectMax     time.Duration
	WriteTimeout     time.Duration
	PongTimeout      time.Duration
	MaxMessageSize   int64
	SendBufferSize   int
	MaxWSConnections int
}

// DemoConfig configures the in-memory demo backend.
type DemoConfig struct {
	ServerAddr         string
	ReadTimeout        time.Duration
	WriteTimeout       time.Duration
	IdleTimeout        time.Duration
	JWTSecret          string
	AccessTokenTTL     time.Duration
	RefreshTokenTTL    time.Duration
	CookieSecure       bool
	CORSAllowedOrigins string
	SessionStore       string
	Seed               bool
}

// Config holds client, live channel and demo backend settings.
// Priority: environment > YAML file > defaults.
type Config struct {
	// APIBaseURL is the backend root. Empty selects demo mode.
	APIBaseURL     string
	RequestTimeout time.Duration

	Live LiveConfig

	// AvatarStore is "memory" or "redis".
	AvatarStore string
	Redis       RedisConfig

	LogLevel string

	Demo DemoConfig
}

// DemoMode reports whether no backend is configured.
func (c *Config) DemoMode() bool { return strings.TrimSpace(c.APIBaseURL) == "" }

// yamlConfig mirrors the YAML file. Durations are given in seconds, the live
// send timeout in milliseconds.
type yamlConfig struct {
	APIBaseURL            string      `yaml:"api_base_url"`
	RequestTimeout        int         `yaml:"request_timeout"`
	LiveSendTimeoutMS     int         `yaml:"live_send_timeout_ms"`
	LiveDialTimeout       int         `yaml:"live_dial_timeout"`
	LiveReconnectMin      int         `yaml:"live_reconnect_min"`
	LiveReconnectMax      int         `yaml:"live_reconnect_max"`
	WSWriteTimeout        int         `yaml:"ws_write_timeout"`
	WSPongTimeout         int         `yaml:"ws_pong_timeout"`
	WSMaxMessageSize      int         `yaml:"ws_max_message_size"`
	WSSendBufferSize      int         `yaml:"ws_send_buffer_size"`
	MaxWSConnections      int         `yaml:"max_ws_connections"`
	AvatarStore           string      `yaml:"avatar_store"`
	Redis                 RedisConfig `yaml:"redis"`
	LogLevel              string      `yaml:"log_level"`
	DemoServerAddr        string      `yaml:"demo_server_addr"`
	DemoReadTimeout       int         `yaml:"demo_read_timeout"`
	DemoWriteTimeout      int         `yaml:"demo_write_timeout"`
	DemoIdleTimeout       int         `yaml:"demo_idle_timeout"`
	DemoJWTSecret         string      `yaml:"demo_jwt_secret"`
	DemoAccessTokenTTL    int         `yaml:"demo_access_token_ttl"`
	DemoRefreshTokenTTL   int         `yaml:"demo_refresh_token_ttl"`
	DemoCookieSecure      bool        `yaml:"demo_cookie_secure"`
	DemoCORSOrigins       string      `yaml:"demo_cors_allowed_origins"`
	DemoSessionStore      string      `yaml:"demo_session_store"`
	DemoSeed              bool        `yaml:"demo_seed"`
}

func defaults() yamlConfig {
	return yamlConfig{
		RequestTimeout:      15,
		LiveSendTimeoutMS:   6000,
		LiveDialTimeout:     10,
		LiveReconnectMin:    1,
		LiveReconnectMax:    30,
		WSWriteTimeout:      10,
		WSPongTimeout:       60,
		WSMaxMessageSize:    64 << 10,
		WSSendBufferSize:    256,
		MaxWSConnections:    10000,
		AvatarStore:         "memory",
		Redis:               RedisConfig{URL: "redis://localhost:6379"},
		LogLevel:            "info",
		DemoServerAddr:      ":8080",
		DemoReadTimeout:     15,
		DemoWriteTimeout:    15,
		DemoIdleTimeout:     60,
		DemoJWTSecret:       defaultJWTSecret,
		DemoAccessTokenTTL:  900,
		DemoRefreshTokenTTL: 7 * 24 * 3600,
		DemoCORSOrigins:     "*",
		DemoSessionStore:    "memory",
		DemoSeed:            true,
	}
}

// Load reads .env, then the YAML file at path (or KACHARA_CONFIG, or
// config/kachara.yaml), then applies environment overrides.
func Load(path string) *Config {
	loadEnv()
	yc := defaults()

	for _, p := range []string{path, os.Getenv("KACHARA_CONFIG"), "config/kachara.yaml"} {
		if p == "" {
			continue
		}
		data, err := os.ReadFile(p)
		if err != nil {
			if path != "" && p == path {
				logger.Errorf("config: read %s: %v (using defaults)", p, err)
			}
			continue
		}
		if err := yaml.Unmarshal(data, &yc); err != nil {
			logger.Errorf("config: parse %s: %v (using defaults)", p, err)
			yc = defaults()
		} else {
			logger.Debugf("config: loaded %s", p)
		}
		break
	}

	cfg := &Config{
		APIBaseURL:     strings.TrimSuffix(envStr("KACHARA_API_URL", yc.APIBaseURL), "/"),
		RequestTimeout: seconds(envInt("REQUEST_TIMEOUT", yc.RequestTimeout)),
		Live: LiveConfig{
			SendTimeout:      time.Duration(envInt("LIVE_SEND_TIMEOUT_MS", yc.LiveSendTimeoutMS)) * time.Millisecond,
			DialTimeout:      seconds(envInt("LIVE_DIAL_TIMEOUT", yc.LiveDialTimeout)),
			ReconnectMin:     seconds(envInt("LIVE_RECONNECT_MIN", yc.LiveReconnectMin)),
			ReconnectMax:     seconds(envInt("LIVE_RECONNECT_MAX", yc.LiveReconnectMax)),
			WriteTimeout:     seconds(envInt("WS_WRITE_TIMEOUT", yc.WSWriteTimeout)),
			PongTimeout:      seconds(envInt("WS_PONG_TIMEOUT", yc.WSPongTimeout)),
			MaxMessageSize:   int64(envInt("WS_MAX_MESSAGE_SIZE", yc.WSMaxMessageSize)),
			SendBufferSize:   envInt("WS_SEND_BUFFER_SIZE", yc.WSSendBufferSize),
			MaxWSConnections: envInt("MAX_WS_CONNECTIONS", yc.MaxWSConnections),
		},
		AvatarStore: envStr("AVATAR_STORE", yc.AvatarStore),
		Redis:       RedisConfig{URL: envStr("REDIS_URL", yc.Redis.URL)},
		LogLevel:    envStr("LOG_LEVEL", yc.LogLevel),
		Demo: DemoConfig{
			ServerAddr:         envStr("DEMO_SERVER_ADDR", yc.DemoServerAddr),
			ReadTimeout:        seconds(envInt("DEMO_READ_TIMEOUT", yc.DemoReadTimeout)),
			WriteTimeout:       seconds(envInt("DEMO_WRITE_TIMEOUT", yc.DemoWriteTimeout)),
			IdleTimeout:        seconds(envInt("DEMO_IDLE_TIMEOUT", yc.DemoIdleTimeout)),
			JWTSecret:          envStr("DEMO_JWT_SECRET", yc.DemoJWTSecret),
			AccessTokenTTL:     seconds(envInt("DEMO_ACCESS_TOKEN_TTL", yc.DemoAccessTokenTTL)),
			RefreshTokenTTL:    seconds(envInt("DEMO_REFRESH_TOKEN_TTL", yc.DemoRefreshTokenTTL)),
			CookieSecure:       envBool("DEMO_COOKIE_SECURE", yc.DemoCookieSecure),
			CORSAllowedOrigins: envStr("DEMO_CORS_ALLOWED_ORIGINS", yc.DemoCORSOrigins),
			SessionStore:       envStr("DEMO_SESSION_STORE", yc.DemoSessionStore),
			Seed:               envBool("DEMO_SEED", yc.DemoSeed),
		},
	}
	cfg.normalize()

	if os.Getenv("APP_ENV") == "production" && cfg.Demo.JWTSecret == defaultJWTSecret {
		logger.Errorf("config: set DEMO_JWT_SECRET in production (the built-in secret is public)")
	}
	return cfg
}

func (c *Config) normalize() {
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = 15 * time.Second
	}
	if c.Live.SendTimeout <= 0 {
		c.Live.SendTimeout = 6 * time.Second
	}
	if c.Live.ReconnectMin <= 0 {
		c.Live.ReconnectMin = time.Second
	}
	if c.Live.ReconnectMax < c.Live.ReconnectMin {
		c.Live.ReconnectMax = c.Live.ReconnectMin
	}
	if c.Live.SendBufferSize <= 0 {
		c.Live.SendBufferSize = 256
	}
	if c.AvatarStore != "redis" {
		c.AvatarStore = "memory"
	}
	if c.Demo.SessionStore != "redis" {
		c.Demo.SessionStore = "memory"
	}
}

func seconds(n int) time.Duration { return time.Duration(n) * time.Second }

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func envBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}
