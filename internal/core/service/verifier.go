package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/queuedesk/dashboard-gateway/internal/api/metrics"
	"github.com/queuedesk/dashboard-gateway/internal/core/domain"
	"github.com/queuedesk/dashboard-gateway/internal/core/ports"
)

const defaultCooldown = 60 * time.Second

// VerifierConfig tunes the session verifier.
type VerifierConfig struct {
	// Cooldown is the minimum interval between two effective network
	// verifications of the same token. Calls inside the window reuse the
	// last result unless forced.
	Cooldown time.Duration
	// FailOpen flips the policy for network errors during verification.
	// Default is fail-closed: an unreachable authority invalidates the
	// session. Fail-open keeps it valid at the cost of accepting a token
	// the authority might have revoked.
	FailOpen bool
}

// Verifier wraps the authority's verify endpoint with a per-token cool-down
// cache and collapses concurrent calls for the same token into one request.
type Verifier struct {
	authority ports.Authority
	cooldown  time.Duration
	failOpen  bool
	log       zerolog.Logger
	now       func() time.Time

	group singleflight.Group

	mu    sync.Mutex
	cache map[string]domain.ValidationResult
}

// NewVerifier returns a Verifier. A non-positive cooldown falls back to the
// 60-second default.
func NewVerifier(authority ports.Authority, cfg VerifierConfig, log zerolog.Logger) *Verifier {
	cooldown := cfg.Cooldown
	if cooldown <= 0 {
		cooldown = defaultCooldown
	}
	return &Verifier{
		authority: authority,
		cooldown:  cooldown,
		failOpen:  cfg.FailOpen,
		log:       log,
		now:       time.Now,
		cache:     make(map[string]domain.ValidationResult),
	}
}

// Verify checks the token against the authority. Inside the cool-down window
// the cached result is returned without a network call, except when force is
// set. A network failure yields an invalid result under the default
// fail-closed policy; the underlying error is returned for logging either way.
func (v *Verifier) Verify(ctx context.Context, token string, force bool) (domain.ValidationResult, error) {
	if domain.IsBlankToken(token) {
		return domain.ValidationResult{Valid: false, Timestamp: v.now()}, domain.ErrNoSession
	}

	key := tokenKey(token)

	if !force {
		v.mu.Lock()
		cached, ok := v.cache[key]
		v.mu.Unlock()
		if ok && cached.FreshWithin(v.cooldown, v.now()) {
			metrics.VerificationsTotal.WithLabelValues(resultLabel(cached, nil), "cache").Inc()
			return cached, nil
		}
	}

	res, err, _ := v.group.Do(key, func() (any, error) {
		result, verr := v.authority.Verify(ctx, token)
		if verr != nil {
			// Policy decision: the endpoint being unreachable is not proof
			// the token is good. Default stance is security over
			// availability, so the result reads invalid unless fail-open
			// was configured.
			result = domain.ValidationResult{Valid: v.failOpen}
			v.log.Warn().Err(verr).Bool("fail_open", v.failOpen).
				Msg("verification request failed")
		}
		result.Timestamp = v.now()

		v.mu.Lock()
		v.cache[key] = result
		v.mu.Unlock()

		metrics.VerificationsTotal.WithLabelValues(resultLabel(result, verr), "network").Inc()
		return result, verr
	})

	return res.(domain.ValidationResult), err
}

func resultLabel(result domain.ValidationResult, err error) string {
	switch {
	case err != nil:
		return "error"
	case result.LicenseExpired:
		return "license_expired"
	case result.Valid:
		return "valid"
	default:
		return "invalid"
	}
}

// Forget drops the cached result for a token. Called after logout so a
// re-login with the same token is never answered from a stale cache entry.
func (v *Verifier) Forget(token string) {
	v.mu.Lock()
	delete(v.cache, tokenKey(token))
	v.mu.Unlock()
}

// tokenKey hashes the bearer token so raw credentials never sit in the cache
// as map keys.
func tokenKey(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
