package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"campaign-orchestrator/internal/common/logger"
	"campaign-orchestrator/internal/models"

	"github.com/redis/go-redis/v9"
)

var (
	ErrSessionStoreFailed = errors.New("SESSION_STORE_FAILED")
	ErrTurnSuperseded     = errors.New("TURN_SUPERSEDED")
)

// RedisSessionStore keeps one append-only transcript list per session.
// Message ids are tracked in a companion set so re-appends under retry are
// no-ops, and the latest turn id fences out writes from superseded turns.
type RedisSessionStore struct {
	client *redis.Client
	ttl    time.Duration
	logger logger.Logger
}

func NewRedisSessionStore(client *redis.Client, ttl time.Duration, log logger.Logger) *RedisSessionStore {
	return &RedisSessionStore{
		client: client,
		ttl:    ttl,
		logger: log.WithFields(map[string]interface{}{"component": "session-store"}),
	}
}

func messagesKey(sessionID string) string { return "session:" + sessionID + ":messages" }
func seenKey(sessionID string) string     { return "session:" + sessionID + ":msgids" }
func turnKey(sessionID string) string     { return "session:" + sessionID + ":turn" }

// BeginTurn marks turnID as the session's current turn. Any older in-flight
// turn becomes superseded and its writes are rejected.
func (s *RedisSessionStore) BeginTurn(ctx context.Context, sessionID, turnID string) error {
	if err := s.client.Set(ctx, turnKey(sessionID), turnID, s.ttl).Err(); err != nil {
		return fmt.Errorf("%w: begin turn: %v", ErrSessionStoreFailed, err)
	}
	return nil
}

func (s *RedisSessionStore) Append(ctx context.Context, sessionID, turnID string, msg models.SessionMessage) error {
	current, err := s.client.Get(ctx, turnKey(sessionID)).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("%w: read turn fence: %v", ErrSessionStoreFailed, err)
	}
	if current != "" && current != turnID {
		return fmt.Errorf("%w: turn %s superseded by %s", ErrTurnSuperseded, turnID, current)
	}

	added, err := s.client.SAdd(ctx, seenKey(sessionID), msg.ID).Result()
	if err != nil {
		return fmt.Errorf("%w: dedupe check: %v", ErrSessionStoreFailed, err)
	}
	if added == 0 {
		s.logger.Debug("duplicate message append skipped", map[string]interface{}{
			"sessionId": sessionID,
			"messageId": msg.ID,
		})
		return nil
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("%w: encode message: %v", ErrSessionStoreFailed, err)
	}

	pipe := s.client.TxPipeline()
	pipe.RPush(ctx, messagesKey(sessionID), payload)
	pipe.Expire(ctx, messagesKey(sessionID), s.ttl)
	pipe.Expire(ctx, seenKey(sessionID), s.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("%w: append message: %v", ErrSessionStoreFailed, err)
	}

	return nil
}

func (s *RedisSessionStore) Messages(ctx context.Context, sessionID string, lastN int) ([]models.SessionMessage, error) {
	start := int64(0)
	if lastN > 0 {
		start = int64(-lastN)
	}

	raw, err := s.client.LRange(ctx, messagesKey(sessionID), start, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: read messages: %v", ErrSessionStoreFailed, err)
	}

	messages := make([]models.SessionMessage, 0, len(raw))
	for _, item := range raw {
		var msg models.SessionMessage
		if err := json.Unmarshal([]byte(item), &msg); err != nil {
			s.logger.Warn("skipping undecodable session message", map[string]interface{}{
				"sessionId": sessionID,
				"error":     err.Error(),
			})
			continue
		}
		messages = append(messages, msg)
	}

	return messages, nil
}
