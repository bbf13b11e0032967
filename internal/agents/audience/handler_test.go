package audience

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
	"campaign-orchestrator/internal/store"
	"campaign-orchestrator/internal/tools"
)

func createTestLogger(t *testing.T) logger.Logger {
	return logger.NewZapAdapter(zaptest.NewLogger(t))
}

type stubRecordStore struct {
	segments []store.Segment
}

func (s *stubRecordStore) Campaigns(ctx context.Context, f store.CampaignFilter) ([]store.Campaign, error) {
	return nil, nil
}

func (s *stubRecordStore) Segments(ctx context.Context, f store.SegmentFilter) ([]store.Segment, error) {
	return s.segments, nil
}

func (s *stubRecordStore) CampaignMetrics(ctx context.Context, campaignID string) (*store.CampaignMetrics, error) {
	return nil, store.ErrCampaignNotFound
}

func (s *stubRecordStore) SegmentExists(ctx context.Context, segmentID string) (bool, error) {
	return true, nil
}

func (s *stubRecordStore) SearchCampaigns(ctx context.Context, query string) ([]store.Campaign, error) {
	return nil, nil
}

func (s *stubRecordStore) SearchSegments(ctx context.Context, query string) ([]store.Segment, error) {
	return s.segments, nil
}

type stubKnowledge struct{}

func (s *stubKnowledge) SearchKnowledge(ctx context.Context, query string, limit int) ([]store.KnowledgeArticle, error) {
	return nil, nil
}

func fakeGateway(t *testing.T, content string) *llm.Client {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		resp := map[string]interface{}{
			"choices": []map[string]interface{}{
				{"index": 0, "message": map[string]interface{}{"role": "assistant", "content": content}, "finish_reason": "stop"},
			},
		}
		json.NewEncoder(w).Encode(resp)
	}))
	t.Cleanup(server.Close)

	return llm.NewClient(&llm.Config{
		BaseURL:     server.URL,
		Model:       "test-model",
		MaxAttempts: 1,
		BackoffBase: time.Millisecond,
	}, createTestLogger(t))
}

func newTestHandler(t *testing.T, gateway *llm.Client) *Handler {
	registry := tools.NewRegistry(&stubRecordStore{}, &stubKnowledge{}, createTestLogger(t))
	return NewHandler(DefaultConfig(), gateway, registry, createTestLogger(t))
}

func TestHandler_Execute_GeneratesSegment(t *testing.T) {
	gateway := fakeGateway(t, `{
		"segment": {
			"name": "Lapsed High Spenders",
			"description": "No purchase in 90 days, lifetime spend above $500",
			"filters": {
				"demographics": {"age_min": 25},
				"behaviors": {"days_since_purchase": {"gte": 90}},
				"custom_attributes": {"lifetime_spend": {"gte": 500}}
			},
			"estimated_size": 8200,
			"rationale": "High spenders respond well to winback offers"
		},
		"recommendations": {
			"alternative_segments": [
				{"name": "Recent Browsers", "description": "Visited in last 7 days", "estimated_size": 15000}
			],
			"segmentation_strategy": "start narrow, widen if volume is low"
		}
	}`)

	output, err := newTestHandler(t, gateway).Execute(context.Background(), &Input{
		Prompt: "build an audience for a winback campaign",
	})

	assert.NoError(t, err)
	assert.Nil(t, output.Clarification)
	assert.Equal(t, "Lapsed High Spenders", output.Result.Segment.Name)
	assert.Equal(t, 8200, output.Result.Segment.EstimatedSize)
	assert.NotNil(t, output.Result.Segment.Filters.Behaviors)
	assert.Len(t, output.Result.Recommendations.AlternativeSegments, 1)
}

func TestHandler_Execute_MissingGoalRequestsClarification(t *testing.T) {
	gateway := fakeGateway(t, `{
		"error": true,
		"message": "Campaign goal is required to generate audience segment",
		"requested_info": ["campaign_goal", "target_demographics"]
	}`)

	output, err := newTestHandler(t, gateway).Execute(context.Background(), &Input{
		Prompt: "make me an audience",
	})

	assert.NoError(t, err)
	assert.Nil(t, output.Result)
	assert.True(t, output.Clarification.Error)
	assert.Equal(t, []string{"campaign_goal", "target_demographics"}, output.Clarification.RequestedInfo)
	assert.Contains(t, output.Clarification.Message, "goal")
}

// toolCallGateway always answers with a get_segments tool call, so the tool
// loop can never finish.
func toolCallGateway(t *testing.T, content string) *llm.Client {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		resp := map[string]interface{}{
			"choices": []map[string]interface{}{
				{"index": 0, "message": map[string]interface{}{
					"role":    "assistant",
					"content": content,
					"tool_calls": []map[string]interface{}{
						{"id": "call-1", "type": "function", "function": map[string]interface{}{"name": "get_segments", "arguments": "{}"}},
					},
				}, "finish_reason": "tool_calls"},
			},
		}
		json.NewEncoder(w).Encode(resp)
	}))
	t.Cleanup(server.Close)

	return llm.NewClient(&llm.Config{
		BaseURL:     server.URL,
		Model:       "test-model",
		MaxAttempts: 1,
		BackoffBase: time.Millisecond,
	}, createTestLogger(t))
}

func TestHandler_Execute_ToolRoundCap(t *testing.T) {
	t.Run("no final answer is a terminal round-cap error", func(t *testing.T) {
		config := DefaultConfig()
		config.MaxToolRounds = 2
		registry := tools.NewRegistry(&stubRecordStore{}, &stubKnowledge{}, createTestLogger(t))
		handler := NewHandler(config, toolCallGateway(t, ""), registry, createTestLogger(t))

		_, err := handler.Execute(context.Background(), &Input{Prompt: "audience please"})

		assert.Error(t, err)
		assert.True(t, errors.Is(err, ErrAudienceFailed))
		assert.True(t, errors.Is(err, llm.ErrToolRoundsExceeded))
	})

	t.Run("parseable last answer is returned flagged incomplete", func(t *testing.T) {
		content := `{"segment": {"name": "Partial Segment", "description": "best effort", "estimated_size": 100, "rationale": "cap hit"}}`
		config := DefaultConfig()
		config.MaxToolRounds = 1
		registry := tools.NewRegistry(&stubRecordStore{}, &stubKnowledge{}, createTestLogger(t))
		handler := NewHandler(config, toolCallGateway(t, content), registry, createTestLogger(t))

		output, err := handler.Execute(context.Background(), &Input{Prompt: "audience please"})

		assert.NoError(t, err)
		assert.True(t, output.Incomplete)
		assert.Equal(t, "Partial Segment", output.Result.Segment.Name)
	})
}

func TestHandler_Execute_Errors(t *testing.T) {
	t.Run("segment missing from response", func(t *testing.T) {
		gateway := fakeGateway(t, `{"recommendations": {"segmentation_strategy": "unclear"}}`)

		_, err := newTestHandler(t, gateway).Execute(context.Background(), &Input{Prompt: "audience please"})

		assert.Error(t, err)
		assert.True(t, errors.Is(err, ErrAudienceFailed))
	})

	t.Run("unparseable response", func(t *testing.T) {
		gateway := fakeGateway(t, "sure, here is an audience")

		_, err := newTestHandler(t, gateway).Execute(context.Background(), &Input{Prompt: "audience please"})

		assert.Error(t, err)
		assert.True(t, errors.Is(err, ErrAudienceFailed))
	})

	t.Run("empty prompt", func(t *testing.T) {
		gateway := fakeGateway(t, "{}")

		_, err := newTestHandler(t, gateway).Execute(context.Background(), &Input{})

		assert.Error(t, err)
		assert.True(t, errors.Is(err, ErrAudienceFailed))
	})
}
