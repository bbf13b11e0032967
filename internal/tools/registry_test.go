package tools

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap/zaptest"

	"campaign-orchestrator/internal/common/logger"
	"campaign-orchestrator/internal/models"
	"campaign-orchestrator/internal/store"
)

type stubRecordStore struct {
	campaigns   []store.Campaign
	segments    []store.Segment
	metrics     *store.CampaignMetrics
	failWith    error
	lastCFilter store.CampaignFilter
	lastSFilter store.SegmentFilter
}

func (s *stubRecordStore) Campaigns(ctx context.Context, f store.CampaignFilter) ([]store.Campaign, error) {
	s.lastCFilter = f
	return s.campaigns, s.failWith
}

func (s *stubRecordStore) Segments(ctx context.Context, f store.SegmentFilter) ([]store.Segment, error) {
	s.lastSFilter = f
	return s.segments, s.failWith
}

func (s *stubRecordStore) CampaignMetrics(ctx context.Context, campaignID string) (*store.CampaignMetrics, error) {
	if s.failWith != nil {
		return nil, s.failWith
	}
	return s.metrics, nil
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

type stubKnowledge struct {
	articles []store.KnowledgeArticle
	failWith error
}

func (s *stubKnowledge) SearchKnowledge(ctx context.Context, query string, limit int) ([]store.KnowledgeArticle, error) {
	return s.articles, s.failWith
}

func newTestRegistry(t *testing.T, records *stubRecordStore, knowledge *stubKnowledge) *Registry {
	return NewRegistry(records, knowledge, logger.NewZapAdapter(zaptest.NewLogger(t)))
}

func TestInvocation_Definitions(t *testing.T) {
	registry := newTestRegistry(t, &stubRecordStore{}, &stubKnowledge{})

	tests := []struct {
		kind      models.SpecialistKind
		wantTools []string
	}{
		{models.SpecialistResearch, []string{
			ToolGetCampaigns, ToolGetSegments, ToolGetCampaignMetrics,
			ToolWebSearch, ToolCreateChart, ToolShowRecommendations,
		}},
		{models.SpecialistAudience, []string{ToolGetSegments, ToolGetCampaigns}},
		{models.SpecialistCampaign, []string{ToolGetCampaigns, ToolGetSegments, ToolGetCampaignMetrics}},
		{models.SpecialistJourney, []string{ToolGetCampaigns, ToolGetCampaignMetrics}},
	}

	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			inv := registry.ForAgent(tt.kind)
			defs := inv.Definitions()

			names := make([]string, len(defs))
			for i, d := range defs {
				assert.Equal(t, "function", d.Type)
				assert.NotEmpty(t, d.Function.Description)
				assert.NotNil(t, d.Function.Parameters)
				names[i] = d.Function.Name
			}
			assert.Equal(t, tt.wantTools, names)
		})
	}
}

func TestInvocation_Execute_GetCampaigns(t *testing.T) {
	records := &stubRecordStore{
		campaigns: []store.Campaign{
			{ID: "camp-1", Name: "Spring Sale", Status: "active"},
		},
	}
	inv := newTestRegistry(t, records, &stubKnowledge{}).ForAgent(models.SpecialistResearch)

	result, err := inv.Execute(context.Background(), ToolGetCampaigns,
		`{"goal": "sales", "status": "active", "limit": 5}`)

	assert.NoError(t, err)
	assert.Equal(t, store.CampaignFilter{Goal: "sales", Status: "active", Limit: 5}, records.lastCFilter)

	var parsed map[string]interface{}
	assert.NoError(t, json.Unmarshal([]byte(result), &parsed))
	assert.Equal(t, true, parsed["success"])
	assert.Equal(t, float64(1), parsed["count"])
}

func TestInvocation_Execute_GetSegments(t *testing.T) {
	records := &stubRecordStore{
		segments: []store.Segment{
			{ID: "seg-1", Name: "High Value", PastConversionRate: 0.08},
			{ID: "seg-2", Name: "New Signups", PastConversionRate: 0.03},
		},
	}
	inv := newTestRegistry(t, records, &stubKnowledge{}).ForAgent(models.SpecialistAudience)

	result, err := inv.Execute(context.Background(), ToolGetSegments,
		`{"min_conversion_rate": 0.02}`)

	assert.NoError(t, err)
	assert.Equal(t, 0.02, records.lastSFilter.MinConversionRate)
	assert.Contains(t, result, "High Value")
}

func TestInvocation_Execute_GetCampaignMetrics(t *testing.T) {
	t.Run("found", func(t *testing.T) {
		records := &stubRecordStore{
			metrics: &store.CampaignMetrics{CampaignID: "camp-1", Delivered: 1000, OpenRate: 0.4},
		}
		inv := newTestRegistry(t, records, &stubKnowledge{}).ForAgent(models.SpecialistResearch)

		result, err := inv.Execute(context.Background(), ToolGetCampaignMetrics,
			`{"campaign_id": "camp-1"}`)

		assert.NoError(t, err)
		assert.Contains(t, result, `"success":true`)
		assert.Contains(t, result, "camp-1")
	})

	t.Run("missing campaign reported as unsuccessful result", func(t *testing.T) {
		records := &stubRecordStore{failWith: store.ErrCampaignNotFound}
		inv := newTestRegistry(t, records, &stubKnowledge{}).ForAgent(models.SpecialistResearch)

		result, err := inv.Execute(context.Background(), ToolGetCampaignMetrics,
			`{"campaign_id": "camp-nope"}`)

		assert.NoError(t, err)
		assert.Contains(t, result, `"success":false`)
	})

	t.Run("missing required argument", func(t *testing.T) {
		inv := newTestRegistry(t, &stubRecordStore{}, &stubKnowledge{}).ForAgent(models.SpecialistResearch)

		_, err := inv.Execute(context.Background(), ToolGetCampaignMetrics, `{}`)

		assert.Error(t, err)
		assert.True(t, errors.Is(err, ErrInvalidToolArgs))
	})
}

func TestInvocation_Execute_WebSearch(t *testing.T) {
	knowledge := &stubKnowledge{
		articles: []store.KnowledgeArticle{
			{ID: "kb-1", Title: "Email timing benchmarks", Score: 2.1},
		},
	}
	inv := newTestRegistry(t, &stubRecordStore{}, knowledge).ForAgent(models.SpecialistResearch)

	result, err := inv.Execute(context.Background(), ToolWebSearch,
		`{"query": "email timing"}`)

	assert.NoError(t, err)
	assert.Contains(t, result, "Email timing benchmarks")
}

func TestInvocation_Execute_PresentationTools(t *testing.T) {
	inv := newTestRegistry(t, &stubRecordStore{}, &stubKnowledge{}).ForAgent(models.SpecialistResearch)

	chartArgs := `{
		"chart_type": "bar",
		"title": "Conversion by segment",
		"data": [{"label": "High Value", "value": 0.08}, {"label": "New Signups", "value": 0.03}]
	}`
	result, err := inv.Execute(context.Background(), ToolCreateChart, chartArgs)
	assert.NoError(t, err)
	assert.Contains(t, result, `"success":true`)

	recArgs := `{"recommendations": [{"title": "Send Tuesday morning", "description": "Open rates peak then"}]}`
	_, err = inv.Execute(context.Background(), ToolShowRecommendations, recArgs)
	assert.NoError(t, err)

	artifacts := inv.Artifacts()
	assert.Len(t, artifacts.Charts, 1)
	assert.Equal(t, "bar", artifacts.Charts[0].ChartType)
	assert.Len(t, artifacts.Charts[0].Data, 2)
	assert.Len(t, artifacts.Recommendations, 1)
	assert.Equal(t, "Send Tuesday morning", artifacts.Recommendations[0].Title)
}

func TestInvocation_Execute_Errors(t *testing.T) {
	t.Run("unknown tool", func(t *testing.T) {
		inv := newTestRegistry(t, &stubRecordStore{}, &stubKnowledge{}).ForAgent(models.SpecialistResearch)

		_, err := inv.Execute(context.Background(), "drop_tables", `{}`)

		assert.Error(t, err)
		assert.True(t, errors.Is(err, ErrUnknownTool))
	})

	t.Run("tool outside the agent's set", func(t *testing.T) {
		inv := newTestRegistry(t, &stubRecordStore{}, &stubKnowledge{}).ForAgent(models.SpecialistJourney)

		_, err := inv.Execute(context.Background(), ToolWebSearch, `{"query": "anything"}`)

		assert.Error(t, err)
		assert.True(t, errors.Is(err, ErrUnknownTool))
	})

	t.Run("invalid enum value", func(t *testing.T) {
		inv := newTestRegistry(t, &stubRecordStore{}, &stubKnowledge{}).ForAgent(models.SpecialistResearch)

		_, err := inv.Execute(context.Background(), ToolCreateChart,
			`{"chart_type": "sparkline", "title": "x", "data": []}`)

		assert.Error(t, err)
		assert.True(t, errors.Is(err, ErrInvalidToolArgs))
	})

	t.Run("store failure", func(t *testing.T) {
		records := &stubRecordStore{failWith: errors.New("connection refused")}
		inv := newTestRegistry(t, records, &stubKnowledge{}).ForAgent(models.SpecialistResearch)

		_, err := inv.Execute(context.Background(), ToolGetCampaigns, `{}`)

		assert.Error(t, err)
		assert.True(t, errors.Is(err, ErrToolFailed))
	})
}
