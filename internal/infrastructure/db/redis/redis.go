package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	defaultPingTimeout = 5 * time.Second
	defaultOpTimeout   = 2 * time.Second
	defaultPoolSize    = 20
)

// Config holds the connection settings for the session workload. One client
// serves the credential medium, the change signal, and the ticket announcer.
type Config struct {
	Addr     string
	DB       int
	Password string
	// PoolSize sizes the connection pool. Credential reads sit on the hot
	// path of every guarded request, so the pool defaults generously.
	PoolSize int
	// ReadTimeout and WriteTimeout bound individual commands; a stalled
	// Redis must fail a request, not hang it.
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	// PingTimeout bounds the startup connectivity check only.
	PingTimeout time.Duration
}

// options folds the zero-value fallbacks into client options.
func (cfg Config) options() *redis.Options {
	opts := &redis.Options{
		Addr:         cfg.Addr,
		DB:           cfg.DB,
		Password:     cfg.Password,
		PoolSize:     cfg.PoolSize,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}
	if opts.PoolSize <= 0 {
		opts.PoolSize = defaultPoolSize
	}
	if opts.ReadTimeout <= 0 {
		opts.ReadTimeout = defaultOpTimeout
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = defaultOpTimeout
	}
	return opts
}

// Connect opens the shared client and proves connectivity with a ping before
// handing it out.
func Connect(ctx context.Context, cfg Config) (*redis.Client, error) {
	client := redis.NewClient(cfg.options())

	pingTimeout := cfg.PingTimeout
	if pingTimeout <= 0 {
		pingTimeout = defaultPingTimeout
	}
	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return client, nil
}
