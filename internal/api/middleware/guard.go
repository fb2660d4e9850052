package middleware

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/queuedesk/dashboard-gateway/internal/api/metrics"
	"github.com/queuedesk/dashboard-gateway/internal/core/domain"
	"github.com/queuedesk/dashboard-gateway/internal/core/ports"
	"github.com/queuedesk/dashboard-gateway/internal/core/service"
)

// ctxSession is the echo context key the guard stores the verified session
// under for downstream handlers.
const ctxSession = "session"

// GuardConfig tunes the guard middleware.
type GuardConfig struct {
	CheckDelay  time.Duration
	ExpiryGrace time.Duration
}

// Guard gates every role-segmented dashboard route. Each request is one mount
// lifecycle of the guard state machine: resolve the session, run the check
// sequence, then execute exactly one of redirect, denial view, or handler
// chain.
type Guard struct {
	auth     ports.AuthService
	verifier ports.SessionVerifier
	cfg      GuardConfig
	log      zerolog.Logger

	// base bounds the grace timers so they die with the server, not with
	// the request that scheduled them.
	base context.Context
}

func NewGuard(base context.Context, auth ports.AuthService, verifier ports.SessionVerifier, cfg GuardConfig, log zerolog.Logger) *Guard {
	return &Guard{auth: auth, verifier: verifier, cfg: cfg, log: log, base: base}
}

// denialResponse is the in-place access-denied view. DefaultRoute is the
// "go to your dashboard" target.
type denialResponse struct {
	Error        string `json:"error"`
	Reason       string `json:"reason"`
	DefaultRoute string `json:"default_route,omitempty"`
	// GraceMs tells the client how long the expiry notice stays up before
	// it must navigate to login.
	GraceMs int64 `json:"grace_ms,omitempty"`
}

// Middleware returns the echo middleware enforcing the guard for the role
// segment named by the :segment path parameter.
func (g *Guard) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			seg := domain.Segment(c.Param("segment"))
			sid := SessionID(c)

			var sess *domain.Session
			if sid != "" {
				loaded, err := g.auth.Session(c.Request().Context(), sid)
				if err != nil && !errors.Is(err, domain.ErrNoSession) {
					return err
				}
				sess = loaded
			}

			runner := service.NewGuardRunner(g.verifier, g.cfg.CheckDelay, g.log)
			dec, err := runner.Run(c.Request().Context(), seg, sess, false)
			if err != nil {
				return err
			}

			g.observe(seg, dec)

			switch dec.Effect.Kind {
			case service.EffectRedirect:
				if dec.Effect.ClearSession && sid != "" {
					g.auth.ForceLogout(c.Request().Context(), sid, string(dec.Reason))
					metrics.SessionsEndedTotal.WithLabelValues(string(dec.Reason)).Inc()
				}
				return c.Redirect(http.StatusFound, dec.Effect.Target)

			case service.EffectRenderDenial:
				if dec.Reason == service.DenyLicenseExpired {
					// Show the expiry notice now; destroy the session once
					// the grace period has elapsed.
					g.ScheduleForcedLogout(sid)
					return c.JSON(http.StatusPaymentRequired, denialResponse{
						Error:        "license expired",
						Reason:       string(dec.Reason),
						DefaultRoute: dec.Effect.Target,
						GraceMs:      g.cfg.ExpiryGrace.Milliseconds(),
					})
				}
				// Role mismatch: session stays intact.
				return c.JSON(http.StatusForbidden, denialResponse{
					Error:        "access denied",
					Reason:       string(dec.Reason),
					DefaultRoute: dec.Effect.Target,
				})

			case service.EffectRenderChildren:
				c.Set(ctxSession, sess)
				return next(c)
			}

			// The machine guarantees a terminal effect; reaching here means
			// the decision carried none, which only happens on a cancelled
			// context.
			return c.NoContent(http.StatusServiceUnavailable)
		}
	}
}

// ScheduleForcedLogout clears the session after the expiry grace period. The
// timer hangs off the server's base context so shutdown cancels it. Handlers
// that detect expiry outside a guarded route use the same sequence.
func (g *Guard) ScheduleForcedLogout(sid string) {
	if sid == "" {
		return
	}
	grace := g.cfg.ExpiryGrace
	if grace <= 0 {
		grace = 3 * time.Second
	}
	go func() {
		timer := time.NewTimer(grace)
		defer timer.Stop()
		select {
		case <-g.base.Done():
			return
		case <-timer.C:
			g.auth.ForceLogout(g.base, sid, string(service.DenyLicenseExpired))
			metrics.SessionsEndedTotal.WithLabelValues("license_expired").Inc()
		}
	}()
}

func (g *Guard) observe(seg domain.Segment, dec service.Decision) {
	outcome := "allowed"
	if dec.State == service.StateDenied {
		outcome = string(dec.Reason)
	}
	metrics.GuardDecisionsTotal.WithLabelValues(string(seg), outcome).Inc()
}

// CurrentSession returns the session the guard attached for downstream
// handlers, or nil outside guarded routes.
func CurrentSession(c echo.Context) *domain.Session {
	sess, _ := c.Get(ctxSession).(*domain.Session)
	return sess
}
