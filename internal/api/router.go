package api

import (
	"context"
	"errors"
	"time"

	"github.com/labstack/echo-contrib/echoprometheus"
	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/queuedesk/dashboard-gateway/internal/api/handler"
	"github.com/queuedesk/dashboard-gateway/internal/api/middleware"
	"github.com/queuedesk/dashboard-gateway/internal/core/domain"
	"github.com/queuedesk/dashboard-gateway/internal/core/ports"
	"github.com/queuedesk/dashboard-gateway/internal/core/service"
	"github.com/queuedesk/dashboard-gateway/internal/core/state"
	"github.com/queuedesk/dashboard-gateway/internal/infrastructure/config"
	"github.com/queuedesk/dashboard-gateway/internal/infrastructure/credstore"
	mongodb "github.com/queuedesk/dashboard-gateway/internal/infrastructure/db/mongo"
	redisdb "github.com/queuedesk/dashboard-gateway/internal/infrastructure/db/redis"
	"github.com/queuedesk/dashboard-gateway/internal/infrastructure/queue"
	"github.com/queuedesk/dashboard-gateway/internal/infrastructure/upstream"
)

// ProfileRefresher re-fetches a session's user record from the authority and
// reports the forced navigation a revoked permission requires.
type ProfileRefresher interface {
	Refresh(ctx context.Context, sid, currentView string) (redirect string, err error)
}

// Runtime holds the long-running pieces the router wires up; main starts them
// once and they stop with the context.
type Runtime struct {
	Poller    *service.PermissionPoller
	Refresher ProfileRefresher
	Audit     *queue.AuditDispatcher

	refreshInterval time.Duration
	log             zerolog.Logger
}

// Start launches the audit workers, the permission poll loop, and the slow
// profile-refresh loop.
func (r *Runtime) Start(ctx context.Context) {
	r.Audit.Start(ctx)
	go func() {
		if err := r.Poller.Run(ctx); err != nil && ctx.Err() == nil {
			r.log.Error().Err(err).Msg("permission poller stopped")
		}
	}()
	go r.refreshLoop(ctx)
}

// refreshLoop re-fetches every tracked session's user record from the
// authority on a slow cadence, so revoked roles and permissions converge even
// when the dashboard never triggers an explicit refresh. Sessions that no
// longer exist (expired TTL, cleared elsewhere) are evicted from tracking
// here, so the tracked set cannot outgrow the live sessions.
func (r *Runtime) refreshLoop(ctx context.Context) {
	ticker := time.NewTicker(r.refreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, sid := range r.Poller.Tracked() {
				_, err := r.Refresher.Refresh(ctx, sid, "")
				if errors.Is(err, domain.ErrNoSession) {
					r.Poller.Untrack(sid)
					continue
				}
				if err != nil {
					r.log.Debug().Err(err).Str("session_id", sid).Msg("background refresh failed")
				}
			}
		}
	}
}

// NewRouter builds the Echo instance with all routes registered, plus the
// Runtime carrying the background loops.
func NewRouter(base context.Context, cfg *config.Config, db *mongo.Database, rdb *redis.Client, log zerolog.Logger) (*echo.Echo, *Runtime) {
	e := echo.New()
	e.HideBanner = true
	e.HTTPErrorHandler = NewHTTPErrorHandler(log)
	e.Validator = handler.NewValidator()

	// --- Global middleware ---
	e.Use(echomiddleware.Recover())
	e.Use(echomiddleware.RequestID())
	e.Use(echomiddleware.Logger())
	e.Use(echoprometheus.NewMiddleware("dashboard_gateway"))

	// --- Dependencies ---
	authority := upstream.NewClient(cfg.Upstream.BaseURL, cfg.Upstream.Timeout, log)

	signal := redisdb.NewChangeSignal(rdb)
	store := credstore.New(
		[]ports.CredentialMedium{
			redisdb.NewCredentialMedium(rdb),
			mongodb.NewCredentialMedium(db),
		},
		signal,
		cfg.SessionTTL,
		log,
	)

	states := state.NewRegistry()
	auditRepo := mongodb.NewAuditRepository(db)
	audit := queue.NewAuditDispatcher(0, auditRepo, log)

	verifier := service.NewVerifier(authority, service.VerifierConfig{
		Cooldown: cfg.Guard.VerifyCooldown,
		FailOpen: cfg.Guard.VerifyFailOpen,
	}, log)
	authService := service.NewAuthService(authority, store, verifier, audit, states, log)
	permService := service.NewPermissionService(store, log)
	poller := service.NewPermissionPoller(permService, signal, cfg.Guard.PollInterval, log)
	authService.Tracker = poller
	syncStateOnChange(poller, states, log)
	refresher := service.NewUserRefresher(authority, store, states, log)

	cookies := middleware.NewCookieManager(cfg.CookieSecret, cfg.SessionTTL)
	guard := middleware.NewGuard(base, authService, verifier, middleware.GuardConfig{
		CheckDelay:  cfg.Guard.CheckDelay,
		ExpiryGrace: cfg.Guard.ExpiryGrace,
	}, log)

	authHandler := handler.NewAuthHandler(authService, verifier, permService, cookies)
	authHandler.Tracker = poller
	authHandler.Expiry = guard
	refreshHandler := handler.NewRefreshHandler(refresher)
	dashHandler := handler.NewDashboardHandler()
	announcer := redisdb.NewTicketAnnouncer(rdb, log)
	ticketHandler := handler.NewTicketHandler(authority, announcer.Announce, log)

	e.Use(middleware.Session(cookies))

	// --- Auth routes ---
	e.POST("/auth/login", authHandler.Login)
	e.POST("/auth/admin/login", authHandler.AdminLogin)
	e.POST("/auth/internal/sa-login", authHandler.SuperAdminLogin)
	e.POST("/auth/logout", authHandler.Logout)
	e.GET("/auth/session", authHandler.Session)
	e.GET("/auth/permissions", authHandler.Permissions)
	e.POST("/auth/refresh", refreshHandler.Refresh)

	// --- Guarded dashboard areas ---
	area := e.Group("/dashboard/:segment", guard.Middleware())
	area.GET("", dashHandler.Area)
	area.GET("/*", dashHandler.Area)
	area.POST("/tickets/next", ticketHandler.CallNext)

	// --- Health probes and metrics (no auth required) ---
	healthHandler := handler.NewHealthHandler()
	healthDepsHandler := handler.NewHealthDependenciesHandler(db, rdb)

	e.GET("/health", healthHandler.Liveness)            // liveness  – is the process alive?
	e.GET("/health/ready", healthDepsHandler.Readiness) // readiness – are dependencies up?
	e.GET("/metrics", echoprometheus.NewHandler())

	rt := &Runtime{
		Poller:          poller,
		Refresher:       refresher,
		Audit:           audit,
		refreshInterval: cfg.Guard.RefreshInterval,
		log:             log,
	}
	return e, rt
}

// syncStateOnChange pushes permission changes the poller observes into the
// session's in-memory state. The change signal is cross-instance: a save on
// another gateway lands here and the local snapshot converges without a
// network round trip.
func syncStateOnChange(poller *service.PermissionPoller, states *state.Registry, log zerolog.Logger) {
	poller.OnChange = func(sid string, perms domain.PermissionMap) {
		st := states.Peek(sid)
		if st == nil || perms == nil {
			return
		}
		if err := st.UpdateUser(domain.UserPatch{Permissions: perms}); err != nil {
			log.Debug().Err(err).Str("session_id", sid).Msg("state permission sync skipped")
		}
	}
}
