package service

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/queuedesk/dashboard-gateway/internal/core/domain"
	"github.com/queuedesk/dashboard-gateway/internal/core/ports"
)

// Guard defaults.
const (
	// defaultCheckDelay is the pause before verification starts, absorbing
	// rapid re-evaluations into a single check.
	defaultCheckDelay = 100 * time.Millisecond
	// defaultGracePeriod is how long the license-expiry notice stays on
	// screen before the redirect to login.
	defaultGracePeriod = 3 * time.Second
)

// GuardState is the guard's position in its lifecycle.
type GuardState int

const (
	StateUnmounted GuardState = iota
	StateChecking
	StateDenied
	StateAllowed
)

func (s GuardState) String() string {
	switch s {
	case StateUnmounted:
		return "unmounted"
	case StateChecking:
		return "checking"
	case StateDenied:
		return "denied"
	case StateAllowed:
		return "allowed"
	default:
		return "unknown"
	}
}

// DenyReason explains a Denied state.
type DenyReason string

const (
	DenyNoSession      DenyReason = "no_session"
	DenyLicenseExpired DenyReason = "license_expired"
	DenyRoleMismatch   DenyReason = "role_mismatch"
)

// EffectKind names the single output a terminal guard state produces.
type EffectKind int

const (
	EffectNone EffectKind = iota
	EffectRedirect
	EffectRenderDenial
	EffectRenderChildren
)

// Effect is the command a guard decision emits. Navigation is always
// expressed here, never performed inside Evaluate, so the machine stays
// testable without a router.
type Effect struct {
	Kind EffectKind
	// Target is the redirect destination, or the "go to your dashboard"
	// route offered by a denial view.
	Target string
	// Delay postpones the redirect; used for the license-expiry grace.
	Delay time.Duration
	// ClearSession commands the caller to destroy local credentials.
	ClearSession bool
}

// GuardInput is everything one guard evaluation looks at.
type GuardInput struct {
	Segment domain.Segment
	// Session is the locally held credentials, nil or incomplete when absent.
	Session *domain.Session
	// Mounted gates all evaluation: nothing runs before the mount signal,
	// which keeps server-side rendering from ever acting on the guard.
	Mounted bool
	// Verification is nil while the network check is outstanding.
	Verification *domain.ValidationResult
	// VerifiedToken is the token Verification was obtained for. A result
	// for a token that is no longer the session's token is stale (a login
	// completed underneath the check) and must not clear fresh credentials.
	VerifiedToken string
}

// Decision is the outcome of one evaluation.
type Decision struct {
	State  GuardState
	Reason DenyReason
	Effect Effect
	// SuppressLoading is set when user data is already present, so a forced
	// re-check must not flash a loading view before its outcome.
	SuppressLoading bool
}

// Evaluate runs the guard state machine once. It is pure: same input, same
// decision, no side effects.
func Evaluate(in GuardInput) Decision {
	if !in.Mounted {
		return Decision{State: StateUnmounted}
	}

	if !in.Session.IsComplete() {
		return Decision{
			State:  StateDenied,
			Reason: DenyNoSession,
			Effect: Effect{Kind: EffectRedirect, Target: domain.LoginRoute, ClearSession: true},
		}
	}

	suppress := in.Session.User != nil

	if in.Verification == nil {
		return Decision{State: StateChecking, SuppressLoading: suppress}
	}

	// A verification that raced a login and checked a superseded token says
	// nothing about the current session. Stay in Checking until a result
	// for the active token arrives.
	if in.VerifiedToken != in.Session.Token {
		return Decision{State: StateChecking, SuppressLoading: suppress}
	}

	if in.Verification.LicenseExpired {
		return Decision{
			State:           StateDenied,
			Reason:          DenyLicenseExpired,
			SuppressLoading: suppress,
			Effect: Effect{
				Kind:         EffectRenderDenial,
				Target:       domain.LoginRoute,
				Delay:        defaultGracePeriod,
				ClearSession: true,
			},
		}
	}

	if !in.Verification.Valid {
		return Decision{
			State:           StateDenied,
			Reason:          DenyNoSession,
			SuppressLoading: suppress,
			Effect:          Effect{Kind: EffectRedirect, Target: domain.LoginRoute, ClearSession: true},
		}
	}

	role := in.Session.User.Role
	if _, err := domain.AllowedRoles(in.Segment); err != nil {
		// Unknown segment: never render, send the user somewhere valid.
		return Decision{
			State:           StateDenied,
			Reason:          DenyRoleMismatch,
			SuppressLoading: suppress,
			Effect:          Effect{Kind: EffectRedirect, Target: domain.DefaultRoute(role)},
		}
	}
	if !domain.SegmentAdmits(in.Segment, role) {
		return Decision{
			State:           StateDenied,
			Reason:          DenyRoleMismatch,
			SuppressLoading: suppress,
			Effect:          Effect{Kind: EffectRenderDenial, Target: domain.DefaultRoute(role)},
		}
	}

	return Decision{
		State:           StateAllowed,
		SuppressLoading: suppress,
		Effect:          Effect{Kind: EffectRenderChildren},
	}
}

// GuardRunner drives the machine for one mount lifecycle: mount signal, check
// delay, verification, and at-most-once effect execution. All timers stop
// when the context is cancelled.
type GuardRunner struct {
	verifier   ports.SessionVerifier
	checkDelay time.Duration
	log        zerolog.Logger

	effectFired bool
}

// NewGuardRunner builds a runner. A non-positive delay uses the default.
func NewGuardRunner(verifier ports.SessionVerifier, checkDelay time.Duration, log zerolog.Logger) *GuardRunner {
	if checkDelay <= 0 {
		checkDelay = defaultCheckDelay
	}
	return &GuardRunner{verifier: verifier, checkDelay: checkDelay, log: log}
}

// Run evaluates the guard for a mounted view: it waits out the check delay,
// verifies the session token (cool-down applied by the verifier), and returns
// the terminal decision. The zero-session and stale-token short circuits
// never touch the network.
func (g *GuardRunner) Run(ctx context.Context, seg domain.Segment, sess *domain.Session, force bool) (Decision, error) {
	pre := Evaluate(GuardInput{Segment: seg, Session: sess, Mounted: true})
	if pre.State == StateDenied {
		return g.commit(pre), nil
	}

	select {
	case <-ctx.Done():
		return Decision{State: StateChecking}, ctx.Err()
	case <-time.After(g.checkDelay):
	}

	result, err := g.verifier.Verify(ctx, sess.Token, force)
	if err != nil {
		g.log.Debug().Err(err).Msg("verification completed with error")
	}

	dec := Evaluate(GuardInput{
		Segment:       seg,
		Session:       sess,
		Mounted:       true,
		Verification:  &result,
		VerifiedToken: sess.Token,
	})
	return g.commit(dec), nil
}

// commit enforces the at-most-once rule for side-effecting redirects within
// one mount lifecycle. Re-fired transitions after the first redirect keep
// their state but carry no effect.
func (g *GuardRunner) commit(dec Decision) Decision {
	if dec.Effect.Kind == EffectRedirect || dec.Effect.Kind == EffectRenderDenial {
		if g.effectFired {
			dec.Effect = Effect{}
			return dec
		}
		g.effectFired = true
	}
	return dec
}
