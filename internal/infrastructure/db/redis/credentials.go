package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/queuedesk/dashboard-gateway/internal/core/domain"
)

// Key layout: session:<sid>:token and session:<sid>:user. Older gateway
// builds also wrote session:<sid>:remember; Clear removes it too.
const (
	tokenKeyFmt  = "session:%s:token"
	userKeyFmt   = "session:%s:user"
	legacyKeyFmt = "session:%s:remember"

	changeChannel = "credentials:changed"
)

// CredentialMedium is the primary (fast) credential storage backend.
type CredentialMedium struct {
	client *redis.Client
}

func NewCredentialMedium(client *redis.Client) *CredentialMedium {
	return &CredentialMedium{client: client}
}

func (m *CredentialMedium) Name() string { return "redis" }

// WriteSession stores token and user under the session's keys, both expiring
// on the fixed horizon.
func (m *CredentialMedium) WriteSession(ctx context.Context, sid, token string, user []byte, ttl time.Duration) error {
	pipe := m.client.TxPipeline()
	pipe.Set(ctx, fmt.Sprintf(tokenKeyFmt, sid), token, ttl)
	pipe.Set(ctx, fmt.Sprintf(userKeyFmt, sid), user, ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis write session: %w", err)
	}
	return nil
}

func (m *CredentialMedium) ReadToken(ctx context.Context, sid string) (string, error) {
	token, err := m.client.Get(ctx, fmt.Sprintf(tokenKeyFmt, sid)).Result()
	if errors.Is(err, redis.Nil) {
		return "", domain.ErrNoSession
	}
	if err != nil {
		return "", fmt.Errorf("redis read token: %w", err)
	}
	return token, nil
}

func (m *CredentialMedium) ReadUser(ctx context.Context, sid string) ([]byte, error) {
	data, err := m.client.Get(ctx, fmt.Sprintf(userKeyFmt, sid)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, domain.ErrNoSession
	}
	if err != nil {
		return nil, fmt.Errorf("redis read user: %w", err)
	}
	return data, nil
}

// DeleteSession removes the session's keys including the legacy one. Deleting
// keys that do not exist is not an error, so the call is idempotent.
func (m *CredentialMedium) DeleteSession(ctx context.Context, sid string) error {
	err := m.client.Del(ctx,
		fmt.Sprintf(tokenKeyFmt, sid),
		fmt.Sprintf(userKeyFmt, sid),
		fmt.Sprintf(legacyKeyFmt, sid),
	).Err()
	if err != nil {
		return fmt.Errorf("redis delete session: %w", err)
	}
	return nil
}

// ChangeSignal broadcasts credential mutations over a pub/sub channel. It is
// the gateway's stand-in for the browser's cross-tab storage event: listeners
// only care that something changed for a session, not what.
type ChangeSignal struct {
	client *redis.Client
}

func NewChangeSignal(client *redis.Client) *ChangeSignal {
	return &ChangeSignal{client: client}
}

func (s *ChangeSignal) Publish(ctx context.Context, sid string) error {
	if err := s.client.Publish(ctx, changeChannel, sid).Err(); err != nil {
		return fmt.Errorf("redis publish change: %w", err)
	}
	return nil
}

// Subscribe delivers changed session IDs until ctx is cancelled. The channel
// closes on cancellation.
func (s *ChangeSignal) Subscribe(ctx context.Context) (<-chan string, error) {
	sub := s.client.Subscribe(ctx, changeChannel)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, fmt.Errorf("redis subscribe: %w", err)
	}

	out := make(chan string, 16)
	go func() {
		defer close(out)
		defer func() { _ = sub.Close() }()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-sub.Channel():
				if !ok {
					return
				}
				select {
				case out <- msg.Payload:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}
