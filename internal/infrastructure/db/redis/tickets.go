package redis

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/queuedesk/dashboard-gateway/internal/core/ports"
)

// ticketChannel carries ticket-call announcements to display boards and to
// other gateway instances rendering the same queue.
const ticketChannel = "tickets:called"

// announceTimeout bounds one publish; a slow broker must never hold up the
// receptionist's screen.
const announceTimeout = 2 * time.Second

// ticketAnnouncement is the wire form of one call. An empty counter marks the
// optimistic announcement; the authoritative one follows with the counter
// assigned by the backend.
type ticketAnnouncement struct {
	SessionID    string    `json:"session_id"`
	ServiceID    string    `json:"service_id"`
	TicketNumber string    `json:"ticket_number,omitempty"`
	Counter      string    `json:"counter,omitempty"`
	CalledAt     time.Time `json:"called_at"`
}

// TicketAnnouncer broadcasts ticket calls over pub/sub.
type TicketAnnouncer struct {
	client *redis.Client
	log    zerolog.Logger
}

func NewTicketAnnouncer(client *redis.Client, log zerolog.Logger) *TicketAnnouncer {
	return &TicketAnnouncer{client: client, log: log}
}

// Announce publishes one call. It returns immediately; publish failures are
// logged, a dropped announcement only costs a display update.
func (a *TicketAnnouncer) Announce(sid string, call ports.TicketCall) {
	payload, err := announcementPayload(sid, call)
	if err != nil {
		a.log.Warn().Err(err).Str("session_id", sid).Msg("ticket announcement encode failed")
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), announceTimeout)
		defer cancel()
		if err := a.client.Publish(ctx, ticketChannel, payload).Err(); err != nil {
			a.log.Warn().Err(err).Str("session_id", sid).Msg("ticket announcement publish failed")
		}
	}()
}

func announcementPayload(sid string, call ports.TicketCall) ([]byte, error) {
	return json.Marshal(ticketAnnouncement{
		SessionID:    sid,
		ServiceID:    call.ServiceID,
		TicketNumber: call.TicketNumber,
		Counter:      call.Counter,
		CalledAt:     call.CalledAt,
	})
}
