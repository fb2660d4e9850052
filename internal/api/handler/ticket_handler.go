package handler

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/queuedesk/dashboard-gateway/internal/api/middleware"
	"github.com/queuedesk/dashboard-gateway/internal/core/domain"
	"github.com/queuedesk/dashboard-gateway/internal/core/ports"
)

// Announcer broadcasts a ticket call to anything rendering the queue (display
// boards, other dashboard tabs). Implementations must not block.
type Announcer func(sid string, call ports.TicketCall)

// TicketHandler proxies the call-next-ticket action. The visible update is
// deliberately optimistic: the announcement goes out before the authority
// answers, and the authoritative counter assignment overwrites it when the
// response lands. The receptionist's screen must never wait on the round
// trip.
type TicketHandler struct {
	authority ports.Authority
	announce  Announcer
	log       zerolog.Logger
}

func NewTicketHandler(authority ports.Authority, announce Announcer, log zerolog.Logger) *TicketHandler {
	return &TicketHandler{authority: authority, announce: announce, log: log}
}

type callNextRequest struct {
	ServiceID string `json:"service_id" validate:"required"`
}

// CallNext calls the next ticket for a service.
//
// @Summary      Call next ticket
// @Tags         tickets
// @Accept       json
// @Produce      json
// @Param        body  body      callNextRequest  true  "Service to call for"
// @Success      200   {object}  ports.TicketCall
// @Router       /tickets/next [post]
func (h *TicketHandler) CallNext(c echo.Context) error {
	sess := middleware.CurrentSession(c)
	if sess == nil {
		return domain.ErrNoSession
	}

	var req callNextRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid payload")
	}
	if err := c.Validate(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	sid := middleware.SessionID(c)

	// Optimistic announcement first: counter pending, call in flight.
	if h.announce != nil {
		h.announce(sid, ports.TicketCall{
			ServiceID: req.ServiceID,
			Counter:   "",
			CalledAt:  time.Now().UTC(),
		})
	}

	call, err := h.authority.CallNextTicket(c.Request().Context(), sess.Token, req.ServiceID)
	if err != nil {
		return err
	}

	// Authoritative value overwrites the optimistic one.
	if h.announce != nil {
		h.announce(sid, *call)
	}

	return c.JSON(http.StatusOK, call)
}
