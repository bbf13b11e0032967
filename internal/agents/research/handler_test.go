package research

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap/zaptest"

	"campaign-orchestrator/internal/common/logger"
	"campaign-orchestrator/internal/llm"
	"campaign-orchestrator/internal/store"
	"campaign-orchestrator/internal/tools"
)

func createTestLogger(t *testing.T) logger.Logger {
	return logger.NewZapAdapter(zaptest.NewLogger(t))
}

type stubRecordStore struct {
	campaigns []store.Campaign
	segments  []store.Segment
	failWith  error
}

func (s *stubRecordStore) Campaigns(ctx context.Context, f store.CampaignFilter) ([]store.Campaign, error) {
	return s.campaigns, s.failWith
}

func (s *stubRecordStore) Segments(ctx context.Context, f store.SegmentFilter) ([]store.Segment, error) {
	return s.segments, s.failWith
}

func (s *stubRecordStore) CampaignMetrics(ctx context.Context, campaignID string) (*store.CampaignMetrics, error) {
	return &store.CampaignMetrics{CampaignID: campaignID}, s.failWith
}

func (s *stubRecordStore) SegmentExists(ctx context.Context, segmentID string) (bool, error) {
	return true, nil
}

func (s *stubRecordStore) SearchCampaigns(ctx context.Context, query string) ([]store.Campaign, error) {
	return s.campaigns, s.failWith
}

func (s *stubRecordStore) SearchSegments(ctx context.Context, query string) ([]store.Segment, error) {
	return s.segments, s.failWith
}

type stubKnowledge struct{}

func (s *stubKnowledge) SearchKnowledge(ctx context.Context, query string, limit int) ([]store.KnowledgeArticle, error) {
	return nil, nil
}

// scriptedGateway replies with each canned response body in turn.
func scriptedGateway(t *testing.T, responses ...string) *llm.Client {
	var calls int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt64(&calls, 1) - 1
		if int(n) >= len(responses) {
			n = int64(len(responses) - 1)
		}
		w.Write([]byte(responses[n]))
	}))
	t.Cleanup(server.Close)

	return llm.NewClient(&llm.Config{
		BaseURL:     server.URL,
		Model:       "test-model",
		MaxAttempts: 1,
		BackoffBase: time.Millisecond,
	}, createTestLogger(t))
}

func finalCompletion(content string) string {
	resp := map[string]interface{}{
		"choices": []map[string]interface{}{
			{"index": 0, "message": map[string]interface{}{"role": "assistant", "content": content}, "finish_reason": "stop"},
		},
	}
	payload, _ := json.Marshal(resp)
	return string(payload)
}

func toolCallCompletion(name, arguments string) string {
	resp := map[string]interface{}{
		"choices": []map[string]interface{}{
			{
				"index": 0,
				"message": map[string]interface{}{
					"role":    "assistant",
					"content": "",
					"tool_calls": []map[string]interface{}{
						{"id": "call-1", "type": "function", "function": map[string]interface{}{
							"name": name, "arguments": arguments,
						}},
					},
				},
				"finish_reason": "tool_calls",
			},
		},
	}
	payload, _ := json.Marshal(resp)
	return string(payload)
}

const researchAnswer = `{
	"analysis": {
		"optimal_goal": ["increase_sales"],
		"recommended_schedule": {"startDate": "2026-09-01", "endDate": "2026-09-30", "duration": 30, "rationale": "month-long push"},
		"recommended_channels": ["email", "sms"],
		"channel_rationale": {"email": "best historical open rates"},
		"audience_recommendations": {
			"existing_segments": [{"id": "seg-1", "name": "High Value", "rationale": "strong conversion"}]
		}
	},
	"evidence": {
		"historical_campaigns": [{"id": "camp-1", "name": "Spring Sale"}],
		"historical_performance": {"open_rate": 0.4}
	},
	"rationale": "High Value converted at 8% in comparable campaigns."
}`

func newTestHandler(t *testing.T, gateway *llm.Client, records *stubRecordStore) *Handler {
	registry := tools.NewRegistry(records, &stubKnowledge{}, createTestLogger(t))
	return NewHandler(DefaultConfig(), gateway, registry, createTestLogger(t))
}

func TestHandler_Execute_WithToolCalls(t *testing.T) {
	gateway := scriptedGateway(t,
		toolCallCompletion("get_campaigns", `{"status": "completed", "limit": 5}`),
		finalCompletion(researchAnswer),
	)
	records := &stubRecordStore{
		campaigns: []store.Campaign{{ID: "camp-1", Name: "Spring Sale", Status: "completed"}},
	}

	output, err := newTestHandler(t, gateway, records).Execute(context.Background(), &Input{
		Prompt: "what channels work best for a sales push?",
	})

	assert.NoError(t, err)
	assert.Equal(t, 2, output.Rounds)
	assert.Empty(t, output.FailedTools)
	assert.Equal(t, []string{"increase_sales"}, []string(output.Result.Analysis.OptimalGoal))
	assert.Equal(t, []string{"email", "sms"}, output.Result.Analysis.RecommendedChannels)
	assert.Equal(t, "2026-09-01", output.Result.Analysis.RecommendedSchedule.StartDate)
	assert.NotEmpty(t, output.Result.Rationale)
}

func TestHandler_Execute_DirectAnswer(t *testing.T) {
	gateway := scriptedGateway(t, finalCompletion(researchAnswer))

	output, err := newTestHandler(t, gateway, &stubRecordStore{}).Execute(context.Background(), &Input{
		Prompt: "recommend a campaign schedule",
	})

	assert.NoError(t, err)
	assert.Equal(t, 1, output.Rounds)
	assert.Len(t, output.Result.Analysis.AudienceRecommendations.ExistingSegments, 1)
}

func TestHandler_Execute_ToolFailureDegradesGracefully(t *testing.T) {
	gateway := scriptedGateway(t,
		toolCallCompletion("get_campaigns", `{"limit": 5}`),
		finalCompletion(researchAnswer),
	)
	records := &stubRecordStore{failWith: errors.New("connection refused")}

	output, err := newTestHandler(t, gateway, records).Execute(context.Background(), &Input{
		Prompt: "what worked before?",
	})

	assert.NoError(t, err)
	assert.Equal(t, []string{"get_campaigns"}, output.FailedTools)
	assert.NotNil(t, output.Result)
}

func TestHandler_Execute_CapturesArtifacts(t *testing.T) {
	gateway := scriptedGateway(t,
		toolCallCompletion("create_chart",
			`{"chart_type": "bar", "title": "Conversion by segment", "data": [{"label": "High Value", "value": 0.08}]}`),
		finalCompletion(researchAnswer),
	)

	output, err := newTestHandler(t, gateway, &stubRecordStore{}).Execute(context.Background(), &Input{
		Prompt: "chart segment conversion",
	})

	assert.NoError(t, err)
	assert.Len(t, output.Artifacts.Charts, 1)
	assert.Equal(t, "Conversion by segment", output.Artifacts.Charts[0].Title)
}

func TestHandler_Execute_Errors(t *testing.T) {
	t.Run("empty prompt", func(t *testing.T) {
		gateway := scriptedGateway(t, finalCompletion(researchAnswer))
		_, err := newTestHandler(t, gateway, &stubRecordStore{}).Execute(context.Background(), &Input{})

		assert.Error(t, err)
		assert.True(t, errors.Is(err, ErrResearchFailed))
	})

	t.Run("unparseable answer", func(t *testing.T) {
		gateway := scriptedGateway(t, finalCompletion("let me think about that"))
		_, err := newTestHandler(t, gateway, &stubRecordStore{}).Execute(context.Background(), &Input{
			Prompt: "recommend something",
		})

		assert.Error(t, err)
		assert.True(t, errors.Is(err, ErrResearchFailed))
	})

	t.Run("nil input", func(t *testing.T) {
		gateway := scriptedGateway(t, finalCompletion(researchAnswer))
		_, err := newTestHandler(t, gateway, &stubRecordStore{}).Execute(context.Background(), nil)

		assert.Error(t, err)
	})
}
