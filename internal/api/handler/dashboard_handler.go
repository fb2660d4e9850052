package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/queuedesk/dashboard-gateway/internal/api/middleware"
	"github.com/queuedesk/dashboard-gateway/internal/core/domain"
)

// DashboardHandler serves the guarded area landing data. What renders inside
// an area is the frontend's business; the gateway only proves the caller may
// be there and hands back the affordances the role and permissions allow.
type DashboardHandler struct{}

func NewDashboardHandler() *DashboardHandler {
	return &DashboardHandler{}
}

type areaResponse struct {
	Segment      string               `json:"segment"`
	User         *domain.User         `json:"user"`
	DefaultRoute string               `json:"default_route"`
	Permissions  domain.PermissionMap `json:"permissions,omitempty"`
}

// Area answers any request inside a guarded role segment. The guard
// middleware has already admitted the session by the time this runs.
//
// @Summary      Dashboard area
// @Tags         dashboard
// @Produce      json
// @Success      200  {object}  areaResponse
// @Router       /dashboard/{segment} [get]
func (h *DashboardHandler) Area(c echo.Context) error {
	sess := middleware.CurrentSession(c)
	if sess == nil {
		// Unreachable behind the guard; kept as a hard stop for misrouting.
		return domain.ErrNoSession
	}

	return c.JSON(http.StatusOK, areaResponse{
		Segment:      c.Param("segment"),
		User:         sess.User,
		DefaultRoute: domain.DefaultRoute(sess.User.Role),
		Permissions:  sess.User.Permissions,
	})
}
