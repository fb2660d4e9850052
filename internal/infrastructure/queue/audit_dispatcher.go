// Package queue provides the asynchronous writer for the auth audit trail.
// Events are sharded to a fixed set of workers by session ID, so the trail
// preserves per-session ordering without serialising unrelated sessions.
package queue

import (
	"context"
	"hash/fnv"

	"github.com/rs/zerolog"

	"github.com/queuedesk/dashboard-gateway/internal/core/domain"
	"github.com/queuedesk/dashboard-gateway/internal/core/ports"
)

const (
	defaultWorkers = 4
	channelBuffer  = 128
)

// AuditDispatcher fans auth events out to worker goroutines that persist them.
type AuditDispatcher struct {
	workers []chan *domain.AuthEvent
	repo    ports.AuditRepository
	log     zerolog.Logger
}

// NewAuditDispatcher creates a dispatcher with numWorkers sharded workers.
// If numWorkers <= 0, defaultWorkers is used.
func NewAuditDispatcher(numWorkers int, repo ports.AuditRepository, log zerolog.Logger) *AuditDispatcher {
	if numWorkers <= 0 {
		numWorkers = defaultWorkers
	}
	d := &AuditDispatcher{
		workers: make([]chan *domain.AuthEvent, numWorkers),
		repo:    repo,
		log:     log,
	}
	for i := range d.workers {
		d.workers[i] = make(chan *domain.AuthEvent, channelBuffer)
	}
	return d
}

// Start launches all worker goroutines. Workers stop when ctx is cancelled.
func (d *AuditDispatcher) Start(ctx context.Context) {
	for i, ch := range d.workers {
		go d.runWorker(ctx, i, ch)
	}
}

// Record enqueues an event for persistence. When the responsible worker's
// buffer is full the event is dropped with a log line: the audit trail is
// observability, a full buffer must never block a login or logout.
func (d *AuditDispatcher) Record(ev *domain.AuthEvent) {
	ch := d.workers[d.shardIndex(ev.SessionID)]
	select {
	case ch <- ev:
	default:
		d.log.Warn().Str("session_id", ev.SessionID).Str("action", ev.Action).
			Msg("audit buffer full, event dropped")
	}
}

// shardIndex maps a session ID deterministically to a worker index.
func (d *AuditDispatcher) shardIndex(sid string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(sid))
	return int(h.Sum32()) % len(d.workers)
}

func (d *AuditDispatcher) runWorker(ctx context.Context, id int, ch <-chan *domain.AuthEvent) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			if err := d.repo.Insert(ctx, ev); err != nil {
				d.log.Error().Err(err).
					Str("session_id", ev.SessionID).
					Int("worker_id", id).
					Msg("audit event persistence failed")
			}
		}
	}
}
