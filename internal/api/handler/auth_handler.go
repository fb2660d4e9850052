package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/queuedesk/dashboard-gateway/internal/api/metrics"
	"github.com/queuedesk/dashboard-gateway/internal/api/middleware"
	"github.com/queuedesk/dashboard-gateway/internal/core/domain"
	"github.com/queuedesk/dashboard-gateway/internal/core/ports"
)

// SessionTracker follows sessions whose permissions should be kept fresh.
// The permission poller implements it. Untracking is not mirrored here: the
// auth service forgets destroyed sessions on every destruction path,
// including forced ones.
type SessionTracker interface {
	Track(ctx context.Context, sid string)
}

// ExpiryScheduler destroys a session once the license-expiry grace period
// has elapsed. The guard middleware implements it.
type ExpiryScheduler interface {
	ScheduleForcedLogout(sid string)
}

// AuthHandler exposes the session lifecycle over HTTP.
type AuthHandler struct {
	auth     ports.AuthService
	verifier ports.SessionVerifier
	perms    ports.PermissionReader
	cookies  *middleware.CookieManager

	// Tracker, when set, is told about session creation.
	Tracker SessionTracker
	// Expiry, when set, schedules the forced logout a detected license
	// expiry requires.
	Expiry ExpiryScheduler
}

func NewAuthHandler(auth ports.AuthService, verifier ports.SessionVerifier, perms ports.PermissionReader, cookies *middleware.CookieManager) *AuthHandler {
	return &AuthHandler{auth: auth, verifier: verifier, perms: perms, cookies: cookies}
}

type loginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type sessionResponse struct {
	Authenticated bool         `json:"authenticated"`
	User          *domain.User `json:"user,omitempty"`
}

// Login authenticates against the authority's regular endpoint and creates a
// gateway session.
//
// @Summary      Login
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        body  body      loginRequest  true  "Login credentials"
// @Success      200   {object}  sessionResponse
// @Failure      400   {object}  map[string]string
// @Failure      401   {object}  map[string]string
// @Router       /auth/login [post]
func (h *AuthHandler) Login(c echo.Context) error {
	return h.login(c, ports.LoginRegular)
}

// AdminLogin authenticates against the authority's admin endpoint.
//
// @Summary      Admin login
// @Tags         auth
// @Router       /auth/admin/login [post]
func (h *AuthHandler) AdminLogin(c echo.Context) error {
	return h.login(c, ports.LoginAdmin)
}

// SuperAdminLogin authenticates against the unadvertised super-admin
// endpoint.
func (h *AuthHandler) SuperAdminLogin(c echo.Context) error {
	return h.login(c, ports.LoginSuperAdmin)
}

func (h *AuthHandler) login(c echo.Context, kind ports.LoginKind) error {
	var req loginRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid payload")
	}
	if err := c.Validate(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	sid, sess, err := h.auth.Login(c.Request().Context(), ports.LoginInput{
		Username: req.Username,
		Password: req.Password,
		Kind:     kind,
	})
	if err != nil {
		return err
	}

	if err := h.cookies.Issue(c, sid); err != nil {
		return err
	}

	metrics.SessionsCreatedTotal.WithLabelValues(string(sess.User.Role)).Inc()
	if h.Tracker != nil {
		h.Tracker.Track(c.Request().Context(), sid)
	}

	return c.JSON(http.StatusOK, sessionResponse{Authenticated: true, User: sess.User})
}

// Logout destroys the gateway session. The local clear is guaranteed even
// when the authority cannot be reached, so logout never fails for the
// browser.
//
// @Summary      Logout
// @Tags         auth
// @Success      204
// @Router       /auth/logout [post]
func (h *AuthHandler) Logout(c echo.Context) error {
	sid := middleware.SessionID(c)
	if sid != "" {
		if err := h.auth.Logout(c.Request().Context(), sid); err != nil {
			return err
		}
		metrics.SessionsEndedTotal.WithLabelValues("logout").Inc()
	}
	h.cookies.Revoke(c)
	return c.NoContent(http.StatusNoContent)
}

// Session returns the current session snapshot. With ?revalidate=1 the held
// token is re-checked against the authority first. This is the endpoint the
// dashboard hits when a tab regains focus, so the cool-down applies and the
// login view never calls it.
//
// @Summary      Current session
// @Tags         auth
// @Produce      json
// @Success      200  {object}  sessionResponse
// @Failure      401  {object}  map[string]string
// @Router       /auth/session [get]
func (h *AuthHandler) Session(c echo.Context) error {
	sid := middleware.SessionID(c)
	if sid == "" {
		return domain.ErrNoSession
	}

	sess, err := h.auth.Session(c.Request().Context(), sid)
	if err != nil {
		if errors.Is(err, domain.ErrNoSession) {
			h.cookies.Revoke(c)
		}
		return err
	}

	if c.QueryParam("revalidate") != "" {
		result, _ := h.verifier.Verify(c.Request().Context(), sess.Token, false)

		// The session may have been replaced while the check ran; a stale
		// result must not clobber fresh credentials.
		current, curErr := h.auth.Session(c.Request().Context(), sid)
		if curErr != nil || current.Token != sess.Token {
			return c.JSON(http.StatusOK, sessionResponse{Authenticated: curErr == nil, User: userOrNil(current)})
		}

		if result.LicenseExpired {
			// Same grace-then-destroy sequence the route guard runs: the
			// notice goes out now, the session dies when the grace elapses.
			if h.Expiry != nil {
				h.Expiry.ScheduleForcedLogout(sid)
			}
			return domain.ErrLicenseExpired
		}
		if !result.Valid {
			h.auth.ForceLogout(c.Request().Context(), sid, "invalid_session")
			metrics.SessionsEndedTotal.WithLabelValues("invalid_session").Inc()
			h.cookies.Revoke(c)
			return domain.ErrInvalidSession
		}
	}

	return c.JSON(http.StatusOK, sessionResponse{Authenticated: true, User: sess.User})
}

// Permissions returns the cached permission map for the current session.
//
// @Summary      Current permissions
// @Tags         auth
// @Produce      json
// @Success      200  {object}  map[string]bool
// @Router       /auth/permissions [get]
func (h *AuthHandler) Permissions(c echo.Context) error {
	sid := middleware.SessionID(c)
	if sid == "" {
		return domain.ErrNoSession
	}
	perms := h.perms.CurrentPermissions(c.Request().Context(), sid)
	if perms == nil {
		perms = domain.PermissionMap{}
	}
	return c.JSON(http.StatusOK, perms)
}

func userOrNil(sess *domain.Session) *domain.User {
	if sess == nil {
		return nil
	}
	return sess.User
}
