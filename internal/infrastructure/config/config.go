package config

import (
	"context"
	"fmt"
	"time"

	"github.com/sethvargo/go-envconfig"
)

// Config is the full gateway configuration, loaded from the environment.
type Config struct {
	Port     string `env:"PORT,      default=8080"`
	Env      string `env:"ENV,       default=development"`
	LogLevel string `env:"LOG_LEVEL, default=info"`

	// CookieSecret signs the browser session cookie.
	CookieSecret string `env:"COOKIE_SECRET"`
	// SessionTTL is the fixed expiry horizon for stored credentials and the
	// session cookie alike.
	SessionTTL time.Duration `env:"SESSION_TTL, default=168h"`

	Upstream UpstreamConfig
	Guard    GuardConfig
	Mongo    MongoConfig
	Redis    RedisConfig
}

// UpstreamConfig points at the remote queue-management authority.
type UpstreamConfig struct {
	// BaseURL of the authority's REST API. The default is the local
	// development backend.
	BaseURL string        `env:"UPSTREAM_BASE_URL, default=http://localhost:4000"`
	Timeout time.Duration `env:"UPSTREAM_TIMEOUT,  default=10s"`
}

// GuardConfig tunes session verification and permission refresh behaviour.
type GuardConfig struct {
	// VerifyCooldown is the minimum interval between two effective
	// verification calls for one token.
	VerifyCooldown time.Duration `env:"VERIFY_COOLDOWN, default=60s"`
	// VerifyFailOpen treats an unreachable verify endpoint as "still
	// valid". Off by default: security over availability.
	VerifyFailOpen bool `env:"VERIFY_FAIL_OPEN, default=false"`
	// CheckDelay is the pause before a guard starts verification,
	// absorbing rapid re-evaluations.
	CheckDelay time.Duration `env:"GUARD_CHECK_DELAY, default=100ms"`
	// ExpiryGrace is how long the license-expiry notice is shown before
	// redirecting to login.
	ExpiryGrace time.Duration `env:"EXPIRY_GRACE, default=3s"`
	// PollInterval is the permission poller's re-read cadence.
	PollInterval time.Duration `env:"PERMISSION_POLL_INTERVAL, default=5s"`
	// RefreshInterval is the cadence of the slow upstream user refresh.
	RefreshInterval time.Duration `env:"USER_REFRESH_INTERVAL, default=60s"`
}

type MongoConfig struct {
	URI      string `env:"MONGO_URI, default=mongodb://localhost:27017"`
	Database string `env:"MONGO_DB,  default=dashboard_gateway"`
}

type RedisConfig struct {
	Addr     string `env:"REDIS_ADDR,     default=localhost:6379"`
	DB       int    `env:"REDIS_DB,       default=0"`
	Password string `env:"REDIS_PASSWORD"`
	// PoolSize of 0 lets the client pick its session-workload default.
	PoolSize     int           `env:"REDIS_POOL_SIZE,     default=0"`
	ReadTimeout  time.Duration `env:"REDIS_READ_TIMEOUT,  default=2s"`
	WriteTimeout time.Duration `env:"REDIS_WRITE_TIMEOUT, default=2s"`
}

// Load reads configuration from environment variables using go-envconfig.
func Load(ctx context.Context) (*Config, error) {
	var cfg Config
	if err := envconfig.Process(ctx, &cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return &cfg, nil
}
