package classify

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap/zaptest"

	"campaign-orchestrator/internal/common/logger"
	"campaign-orchestrator/internal/llm"
	"campaign-orchestrator/internal/models"
)

func createTestLogger(t *testing.T) logger.Logger {
	return logger.NewZapAdapter(zaptest.NewLogger(t))
}

func fakeGateway(t *testing.T, handler http.HandlerFunc) *llm.Client {
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	return llm.NewClient(&llm.Config{
		BaseURL:     server.URL,
		Model:       "test-model",
		MaxAttempts: 1,
		BackoffBase: time.Millisecond,
	}, createTestLogger(t))
}

func completion(content string) []byte {
	resp := map[string]interface{}{
		"id":    "resp-1",
		"model": "test-model",
		"choices": []map[string]interface{}{
			{"index": 0, "message": map[string]interface{}{"role": "assistant", "content": content}, "finish_reason": "stop"},
		},
	}
	payload, _ := json.Marshal(resp)
	return payload
}

func TestHandler_Classify(t *testing.T) {
	tests := []struct {
		name              string
		response          string
		wantIntent        models.Intent
		wantConfidence    float64
		wantFallback      bool
		wantLowConfidence bool
	}{
		{
			name:           "campaign generation",
			response:       `{"intent": "campaign_generation", "confidence": 0.95, "reasoning": "wants a new campaign"}`,
			wantIntent:     models.IntentCampaignGeneration,
			wantConfidence: 0.95,
		},
		{
			name:           "search wrapped in markdown fences",
			response:       "```json\n{\"intent\": \"search\", \"confidence\": 0.9, \"reasoning\": \"looking for items\"}\n```",
			wantIntent:     models.IntentSearch,
			wantConfidence: 0.9,
		},
		{
			name:              "low confidence keeps the classified intent",
			response:          `{"intent": "campaign_generation", "confidence": 0.3, "reasoning": "ambiguous"}`,
			wantIntent:        models.IntentCampaignGeneration,
			wantConfidence:    0.3,
			wantLowConfidence: true,
		},
		{
			name:         "unknown intent falls back to research",
			response:     `{"intent": "tax_advice", "confidence": 0.9, "reasoning": "??"}`,
			wantIntent:   models.IntentResearch,
			wantFallback: true,
		},
		{
			name:         "unparseable content falls back to research",
			response:     `I think the user wants a campaign.`,
			wantIntent:   models.IntentResearch,
			wantFallback: true,
		},
		{
			name:           "confidence clamped to valid range",
			response:       `{"intent": "research", "confidence": 1.7, "reasoning": "very sure"}`,
			wantIntent:     models.IntentResearch,
			wantConfidence: 1.0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gateway := fakeGateway(t, func(w http.ResponseWriter, r *http.Request) {
				w.Write(completion(tt.response))
			})

			handler := NewHandler(DefaultConfig(), gateway, createTestLogger(t))
			result, err := handler.Classify(context.Background(),
				models.Prompt{Text: "set up something for spring"}, nil)

			assert.NoError(t, err)
			assert.Equal(t, tt.wantIntent, result.Intent)
			if tt.wantConfidence > 0 {
				assert.Equal(t, tt.wantConfidence, result.Confidence)
			}
			if tt.wantFallback {
				assert.Contains(t, result.Reasoning, "fell back to research")
			}
			assert.Equal(t, tt.wantFallback || tt.wantLowConfidence, result.LowConfidence)
			if tt.wantLowConfidence {
				assert.Contains(t, result.Reasoning, "low confidence")
			}
		})
	}
}

func TestHandler_Classify_SendsContext(t *testing.T) {
	var received llm.ChatRequest
	gateway := fakeGateway(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&received)
		w.Write(completion(`{"intent": "research", "confidence": 0.9, "reasoning": "follow-up"}`))
	})

	handler := NewHandler(DefaultConfig(), gateway, createTestLogger(t))

	history := []models.SessionMessage{
		{ID: "m1", Role: "user", Content: "plan a spring campaign"},
		{ID: "m2", Role: "assistant", Content: "here is a draft"},
		{ID: "m3", Role: "system", Content: "internal note"},
	}
	_, err := handler.Classify(context.Background(), models.Prompt{Text: "what about the audience?"}, history)

	assert.NoError(t, err)
	// system prompt + two replayable history turns + the new prompt
	assert.Len(t, received.Messages, 4)
	assert.Equal(t, llm.RoleSystem, received.Messages[0].Role)
	assert.Equal(t, "plan a spring campaign", received.Messages[1].Content)
	assert.Equal(t, llm.RoleAssistant, received.Messages[2].Role)
	assert.Equal(t, "what about the audience?", received.Messages[3].Content)
}

func TestHandler_Classify_TrimsHistoryToContextTurns(t *testing.T) {
	var received llm.ChatRequest
	gateway := fakeGateway(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&received)
		w.Write(completion(`{"intent": "research", "confidence": 0.9, "reasoning": "ok"}`))
	})

	config := DefaultConfig()
	config.ContextTurns = 2

	handler := NewHandler(config, gateway, createTestLogger(t))

	history := make([]models.SessionMessage, 0, 10)
	for i := 0; i < 10; i++ {
		history = append(history, models.SessionMessage{Role: "user", Content: "turn"})
	}
	_, err := handler.Classify(context.Background(), models.Prompt{Text: "latest"}, history)

	assert.NoError(t, err)
	assert.Len(t, received.Messages, 4) // system + 2 history + prompt
}

func TestHandler_Classify_IncludesDocuments(t *testing.T) {
	var received llm.ChatRequest
	gateway := fakeGateway(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&received)
		w.Write(completion(`{"intent": "research", "confidence": 0.9, "reasoning": "ok"}`))
	})

	handler := NewHandler(DefaultConfig(), gateway, createTestLogger(t))

	prompt := models.Prompt{
		Text: "analyze this brief",
		Documents: []models.Document{
			{ID: "doc-1", Title: "Brand guidelines", Content: "always use blue"},
		},
	}
	_, err := handler.Classify(context.Background(), prompt, nil)

	assert.NoError(t, err)
	last := received.Messages[len(received.Messages)-1]
	assert.Contains(t, last.Content, "Brand guidelines")
	assert.Contains(t, last.Content, "always use blue")
}

func TestHandler_Classify_GatewayError(t *testing.T) {
	gateway := fakeGateway(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	handler := NewHandler(DefaultConfig(), gateway, createTestLogger(t))
	result, err := handler.Classify(context.Background(), models.Prompt{Text: "anything"}, nil)

	assert.Error(t, err)
	assert.True(t, errors.Is(err, ErrClassificationFailed))
	assert.Nil(t, result)
}
