// Package tools implements the tool registry the specialist agents expose to
// the model: data tools backed by the record store and knowledge index, and
// presentation tools whose output is captured as turn artifacts instead of
// being fed back to the model.
package tools

import (
	"errors"

	"campaign-orchestrator/internal/common/logger"
	"campaign-orchestrator/internal/models"
	"campaign-orchestrator/internal/store"
)

// Tool names as declared to the model.
const (
	ToolGetCampaigns        = "get_campaigns"
	ToolGetSegments         = "get_segments"
	ToolGetCampaignMetrics  = "get_campaign_metrics"
	ToolWebSearch           = "web_search"
	ToolCreateChart         = "create_chart"
	ToolShowRecommendations = "show_recommendations"
)

var (
	ErrUnknownTool     = errors.New("UNKNOWN_TOOL")
	ErrInvalidToolArgs = errors.New("INVALID_TOOL_ARGS")
	ErrToolFailed      = errors.New("TOOL_ERROR")
)

// agentTools maps each specialist to the tools it may call. Research gets the
// full set including presentation tools; the generators only query records.
var agentTools = map[models.SpecialistKind][]string{
	models.SpecialistResearch: {
		ToolGetCampaigns, ToolGetSegments, ToolGetCampaignMetrics,
		ToolWebSearch, ToolCreateChart, ToolShowRecommendations,
	},
	models.SpecialistAudience: {ToolGetSegments, ToolGetCampaigns},
	models.SpecialistCampaign: {ToolGetCampaigns, ToolGetSegments, ToolGetCampaignMetrics},
	models.SpecialistJourney:  {ToolGetCampaigns, ToolGetCampaignMetrics},
}

// Registry wires tool implementations to their backing stores. It is shared
// across turns; per-invocation state lives on Invocation.
type Registry struct {
	records   store.RecordStore
	knowledge store.KnowledgeSearcher
	logger    logger.Logger
}

func NewRegistry(records store.RecordStore, knowledge store.KnowledgeSearcher, log logger.Logger) *Registry {
	return &Registry{
		records:   records,
		knowledge: knowledge,
		logger:    log.WithFields(map[string]interface{}{"component": "tool-registry"}),
	}
}

// ForAgent returns a fresh invocation scoped to the given specialist's tool
// set. Artifacts captured by presentation tools accumulate on the invocation.
func (r *Registry) ForAgent(kind models.SpecialistKind) *Invocation {
	names := agentTools[kind]
	defs := definitionsFor(names)

	return &Invocation{
		registry: r,
		allowed:  toSet(names),
		defs:     defs,
	}
}

func toSet(names []string) map[string]struct{} {
	set := make(map[string]struct{}, len(names))
	for _, n := range names {
		set[n] = struct{}{}
	}
	return set
}
