package handler

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/queuedesk/dashboard-gateway/internal/api/middleware"
	"github.com/queuedesk/dashboard-gateway/internal/core/domain"
)

// Refresher is the slow reconciliation flow: fetch the fresh user from the
// authority, persist it, and report a redirect when the current view's
// gating permission was revoked.
type Refresher interface {
	Refresh(ctx context.Context, sid, currentView string) (redirect string, err error)
}

// RefreshHandler exposes the reconciliation flow to the dashboard, which
// calls it on its slow cycle with the view it is currently showing.
type RefreshHandler struct {
	refresher Refresher
}

func NewRefreshHandler(refresher Refresher) *RefreshHandler {
	return &RefreshHandler{refresher: refresher}
}

type refreshRequest struct {
	CurrentView string `json:"current_view"`
}

type refreshResponse struct {
	// Redirect names where the dashboard must navigate, empty to stay put.
	Redirect string `json:"redirect,omitempty"`
}

// Refresh re-fetches the session's user record and answers with an optional
// forced navigation.
//
// @Summary      Refresh cached user and permissions
// @Tags         auth
// @Accept       json
// @Produce      json
// @Success      200  {object}  refreshResponse
// @Router       /auth/refresh [post]
func (h *RefreshHandler) Refresh(c echo.Context) error {
	sid := middleware.SessionID(c)
	if sid == "" {
		return domain.ErrNoSession
	}

	var req refreshRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid payload")
	}

	redirect, err := h.refresher.Refresh(c.Request().Context(), sid, req.CurrentView)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, refreshResponse{Redirect: redirect})
}
