package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/queuedesk/dashboard-gateway/internal/core/domain"
)

const credentialCollection = "sessions"

// CredentialMedium is the secondary credential backend: slower than Redis
// but independent of it, so a session survives either medium being down.
// Documents carry an expires_at field intended for a TTL index on the
// collection.
type CredentialMedium struct {
	coll *mongo.Collection
}

func NewCredentialMedium(db *mongo.Database) *CredentialMedium {
	return &CredentialMedium{coll: db.Collection(credentialCollection)}
}

type sessionDoc struct {
	SID       string    `bson:"_id"`
	Token     string    `bson:"token"`
	User      []byte    `bson:"user"`
	ExpiresAt time.Time `bson:"expires_at"`
	UpdatedAt time.Time `bson:"updated_at"`
}

func (m *CredentialMedium) Name() string { return "mongo" }

// WriteSession upserts the whole session document. The write replaces the
// previous value atomically, matching the whole-value replacement semantics
// the change signal assumes.
func (m *CredentialMedium) WriteSession(ctx context.Context, sid, token string, user []byte, ttl time.Duration) error {
	now := time.Now().UTC()
	doc := sessionDoc{
		SID:       sid,
		Token:     token,
		User:      user,
		ExpiresAt: now.Add(ttl),
		UpdatedAt: now,
	}

	opts := options.Replace().SetUpsert(true)
	if _, err := m.coll.ReplaceOne(ctx, bson.M{"_id": sid}, doc, opts); err != nil {
		return fmt.Errorf("mongo write session: %w", err)
	}
	return nil
}

func (m *CredentialMedium) ReadToken(ctx context.Context, sid string) (string, error) {
	doc, err := m.find(ctx, sid)
	if err != nil {
		return "", err
	}
	return doc.Token, nil
}

func (m *CredentialMedium) ReadUser(ctx context.Context, sid string) ([]byte, error) {
	doc, err := m.find(ctx, sid)
	if err != nil {
		return nil, err
	}
	return doc.User, nil
}

// DeleteSession removes the session document. Idempotent: deleting an absent
// document succeeds.
func (m *CredentialMedium) DeleteSession(ctx context.Context, sid string) error {
	if _, err := m.coll.DeleteOne(ctx, bson.M{"_id": sid}); err != nil {
		return fmt.Errorf("mongo delete session: %w", err)
	}
	return nil
}

func (m *CredentialMedium) find(ctx context.Context, sid string) (*sessionDoc, error) {
	var doc sessionDoc
	err := m.coll.FindOne(ctx, bson.M{"_id": sid}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, domain.ErrNoSession
	}
	if err != nil {
		return nil, fmt.Errorf("mongo read session: %w", err)
	}
	// An expired document not yet reaped by the TTL monitor is absent.
	if !doc.ExpiresAt.IsZero() && doc.ExpiresAt.Before(time.Now().UTC()) {
		return nil, domain.ErrNoSession
	}
	return &doc, nil
}
