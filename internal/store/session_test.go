package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"

	"campaign-orchestrator/internal/models"
)

func newTestSessionStore(t *testing.T) (*RedisSessionStore, *miniredis.Miniredis) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	return NewRedisSessionStore(client, 24*time.Hour, createTestLogger(t)), mr
}

func testMessage(id, role, content string) models.SessionMessage {
	return models.SessionMessage{
		ID:        id,
		Role:      role,
		Content:   content,
		Timestamp: time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestRedisSessionStore_AppendAndMessages(t *testing.T) {
	s, _ := newTestSessionStore(t)
	ctx := context.Background()

	assert.NoError(t, s.BeginTurn(ctx, "sess-1", "turn-1"))
	assert.NoError(t, s.Append(ctx, "sess-1", "turn-1", testMessage("msg-1", "user", "plan a spring campaign")))
	assert.NoError(t, s.Append(ctx, "sess-1", "turn-1", testMessage("msg-2", "assistant", "here is a draft")))

	messages, err := s.Messages(ctx, "sess-1", 0)
	assert.NoError(t, err)
	assert.Len(t, messages, 2)
	assert.Equal(t, "msg-1", messages[0].ID)
	assert.Equal(t, "user", messages[0].Role)
	assert.Equal(t, "here is a draft", messages[1].Content)
}

func TestRedisSessionStore_AppendIdempotent(t *testing.T) {
	s, _ := newTestSessionStore(t)
	ctx := context.Background()

	assert.NoError(t, s.BeginTurn(ctx, "sess-1", "turn-1"))

	msg := testMessage("msg-1", "user", "hello")
	assert.NoError(t, s.Append(ctx, "sess-1", "turn-1", msg))
	// retried append with the same message id is a no-op
	assert.NoError(t, s.Append(ctx, "sess-1", "turn-1", msg))

	messages, err := s.Messages(ctx, "sess-1", 0)
	assert.NoError(t, err)
	assert.Len(t, messages, 1)
}

func TestRedisSessionStore_SupersededTurnCannotWrite(t *testing.T) {
	s, _ := newTestSessionStore(t)
	ctx := context.Background()

	assert.NoError(t, s.BeginTurn(ctx, "sess-1", "turn-1"))
	assert.NoError(t, s.BeginTurn(ctx, "sess-1", "turn-2"))

	err := s.Append(ctx, "sess-1", "turn-1", testMessage("msg-stale", "assistant", "late result"))
	assert.Error(t, err)
	assert.True(t, errors.Is(err, ErrTurnSuperseded))

	assert.NoError(t, s.Append(ctx, "sess-1", "turn-2", testMessage("msg-fresh", "assistant", "current result")))

	messages, err := s.Messages(ctx, "sess-1", 0)
	assert.NoError(t, err)
	assert.Len(t, messages, 1)
	assert.Equal(t, "msg-fresh", messages[0].ID)
}

func TestRedisSessionStore_MessagesLastN(t *testing.T) {
	s, _ := newTestSessionStore(t)
	ctx := context.Background()

	assert.NoError(t, s.BeginTurn(ctx, "sess-1", "turn-1"))
	assert.NoError(t, s.Append(ctx, "sess-1", "turn-1", testMessage("msg-1", "user", "first")))
	assert.NoError(t, s.Append(ctx, "sess-1", "turn-1", testMessage("msg-2", "assistant", "second")))
	assert.NoError(t, s.Append(ctx, "sess-1", "turn-1", testMessage("msg-3", "user", "third")))

	messages, err := s.Messages(ctx, "sess-1", 2)
	assert.NoError(t, err)
	assert.Len(t, messages, 2)
	assert.Equal(t, "msg-2", messages[0].ID)
	assert.Equal(t, "msg-3", messages[1].ID)
}

func TestRedisSessionStore_EmptySession(t *testing.T) {
	s, _ := newTestSessionStore(t)

	messages, err := s.Messages(context.Background(), "sess-unknown", 10)
	assert.NoError(t, err)
	assert.Empty(t, messages)
}

func TestRedisSessionStore_SkipsUndecodableEntries(t *testing.T) {
	s, mr := newTestSessionStore(t)
	ctx := context.Background()

	assert.NoError(t, s.BeginTurn(ctx, "sess-1", "turn-1"))
	assert.NoError(t, s.Append(ctx, "sess-1", "turn-1", testMessage("msg-1", "user", "hello")))
	mr.Lpush(messagesKey("sess-1"), "not-json")

	messages, err := s.Messages(ctx, "sess-1", 0)
	assert.NoError(t, err)
	assert.Len(t, messages, 1)
	assert.Equal(t, "msg-1", messages[0].ID)
}
