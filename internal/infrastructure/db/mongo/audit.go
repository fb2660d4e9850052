package mongo

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/mongo"

	"github.com/queuedesk/dashboard-gateway/internal/core/domain"
)

const auditCollection = "auth_events"

// AuditRepository persists the auth audit trail (logins, logouts, forced
// logouts with their causes).
type AuditRepository struct {
	coll *mongo.Collection
}

func NewAuditRepository(db *mongo.Database) *AuditRepository {
	return &AuditRepository{coll: db.Collection(auditCollection)}
}

type auditDoc struct {
	ID        string `bson:"_id"`
	SessionID string `bson:"session_id"`
	UserID    string `bson:"user_id,omitempty"`
	Action    string `bson:"action"`
	Cause     string `bson:"cause,omitempty"`
	Timestamp int64  `bson:"timestamp"`
}

func (r *AuditRepository) Insert(ctx context.Context, ev *domain.AuthEvent) error {
	doc := auditDoc{
		ID:        ev.ID,
		SessionID: ev.SessionID,
		UserID:    ev.UserID,
		Action:    ev.Action,
		Cause:     ev.Cause,
		Timestamp: ev.Timestamp.Unix(),
	}
	if _, err := r.coll.InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("insert auth event: %w", err)
	}
	return nil
}
