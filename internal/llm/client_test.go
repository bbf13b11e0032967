package llm

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChatRetriesTransientFailures(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write(finalAnswer("recovered"))
	}))
	t.Cleanup(server.Close)

	client := NewClient(&Config{
		BaseURL:     server.URL,
		Model:       "test-model",
		MaxAttempts: 3,
		BackoffBase: time.Millisecond,
	}, createTestLogger(t))

	resp, err := client.Chat(context.Background(), &ChatRequest{
		Messages: []Message{{Role: RoleUser, Content: "hello"}},
	})

	require.NoError(t, err)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
	assert.Equal(t, "recovered", resp.Content())
}

func TestChatExhaustedAttemptsReturnsAPIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	t.Cleanup(server.Close)

	client := NewClient(&Config{
		BaseURL:     server.URL,
		Model:       "test-model",
		MaxAttempts: 3,
		BackoffBase: time.Millisecond,
	}, createTestLogger(t))

	_, err := client.Chat(context.Background(), &ChatRequest{
		Messages: []Message{{Role: RoleUser, Content: "hello"}},
	})

	assert.ErrorIs(t, err, ErrAPIFailed)
}

func TestChatConfigTimeoutBoundsTheCall(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		w.Write(finalAnswer("too late"))
	}))
	t.Cleanup(server.Close)

	client := NewClient(&Config{
		BaseURL:     server.URL,
		Model:       "test-model",
		Timeout:     20 * time.Millisecond,
		MaxAttempts: 3,
		BackoffBase: time.Millisecond,
	}, createTestLogger(t))

	start := time.Now()
	_, err := client.Chat(context.Background(), &ChatRequest{
		Messages: []Message{{Role: RoleUser, Content: "hello"}},
	})

	assert.ErrorIs(t, err, ErrAPITimeout)
	assert.Less(t, time.Since(start), 150*time.Millisecond)
}

func TestParseJSONStripsFencesAndProse(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr bool
	}{
		{name: "bare object", content: `{"intent": "research"}`},
		{name: "fenced", content: "```json\n{\"intent\": \"research\"}\n```"},
		{name: "surrounded by prose", content: "Here you go:\n{\"intent\": \"research\"}\nHope that helps."},
		{name: "no json at all", content: "I cannot answer that.", wantErr: true},
		{name: "empty", content: "   ", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out struct {
				Intent string `json:"intent"`
			}
			err := ParseJSON(tt.content, &out)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrResponseParse)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "research", out.Intent)
		})
	}
}
