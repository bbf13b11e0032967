package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"campaign-orchestrator/internal/common/metrics"
	"campaign-orchestrator/internal/llm"
	"campaign-orchestrator/internal/store"

	"github.com/xeipuuv/gojsonschema"
)

// ChartPoint is one labeled value in a chart artifact.
type ChartPoint struct {
	Label string  `json:"label"`
	Value float64 `json:"value"`
}

// ChartSpec is the payload of a create_chart call, captured as an artifact.
type ChartSpec struct {
	ChartType string       `json:"chart_type"`
	Title     string       `json:"title"`
	Data      []ChartPoint `json:"data"`
}

// Recommendation is one entry of a show_recommendations call.
type Recommendation struct {
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
}

// Artifacts collects presentation-tool output over one agent invocation.
// Data tools feed results back to the model; presentation tools land here
// and are consumed by the response formatter instead.
type Artifacts struct {
	Charts          []ChartSpec
	Recommendations []Recommendation
}

// Invocation is one agent's scoped view of the registry. It implements the
// model gateway's tool executor contract and is not safe for concurrent use.
type Invocation struct {
	registry  *Registry
	allowed   map[string]struct{}
	defs      []llm.ToolDef
	artifacts Artifacts
}

func (inv *Invocation) Definitions() []llm.ToolDef { return inv.defs }

// Artifacts returns the presentation output captured so far.
func (inv *Invocation) Artifacts() Artifacts { return inv.artifacts }

// Execute validates the argument payload against the tool's declared schema
// and dispatches it. The returned string is the JSON fed back to the model.
func (inv *Invocation) Execute(ctx context.Context, name, arguments string) (string, error) {
	if _, ok := inv.allowed[name]; !ok {
		metrics.ToolCalls.WithLabelValues(name, "unknown").Inc()
		return "", fmt.Errorf("%w: %s", ErrUnknownTool, name)
	}

	if arguments == "" {
		arguments = "{}"
	}
	if err := validateArgs(name, arguments); err != nil {
		metrics.ToolCalls.WithLabelValues(name, "invalid_args").Inc()
		return "", err
	}

	result, err := inv.dispatch(ctx, name, arguments)
	if err != nil {
		metrics.ToolCalls.WithLabelValues(name, "error").Inc()
		inv.registry.logger.WithError(err).Warn("tool call failed", map[string]interface{}{
			"tool": name,
		})
		return "", err
	}

	metrics.ToolCalls.WithLabelValues(name, "success").Inc()
	return result, nil
}

func validateArgs(name, arguments string) error {
	schema, ok := paramSchemas[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownTool, name)
	}

	result, err := gojsonschema.Validate(
		gojsonschema.NewGoLoader(schema),
		gojsonschema.NewStringLoader(arguments),
	)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalidToolArgs, name, err)
	}
	if !result.Valid() {
		errs := make([]string, len(result.Errors()))
		for i, desc := range result.Errors() {
			errs[i] = desc.String()
		}
		return fmt.Errorf("%w: %s: %v", ErrInvalidToolArgs, name, errs)
	}
	return nil
}

func (inv *Invocation) dispatch(ctx context.Context, name, arguments string) (string, error) {
	switch name {
	case ToolGetCampaigns:
		return inv.getCampaigns(ctx, arguments)
	case ToolGetSegments:
		return inv.getSegments(ctx, arguments)
	case ToolGetCampaignMetrics:
		return inv.getCampaignMetrics(ctx, arguments)
	case ToolWebSearch:
		return inv.webSearch(ctx, arguments)
	case ToolCreateChart:
		return inv.createChart(arguments)
	case ToolShowRecommendations:
		return inv.showRecommendations(arguments)
	default:
		return "", fmt.Errorf("%w: %s", ErrUnknownTool, name)
	}
}

func (inv *Invocation) getCampaigns(ctx context.Context, arguments string) (string, error) {
	var args struct {
		Goal   string `json:"goal"`
		Status string `json:"status"`
		Limit  int    `json:"limit"`
	}
	if err := json.Unmarshal([]byte(arguments), &args); err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidToolArgs, err)
	}

	campaigns, err := inv.registry.records.Campaigns(ctx, store.CampaignFilter{
		Goal:   args.Goal,
		Status: args.Status,
		Limit:  args.Limit,
	})
	if err != nil {
		return "", fmt.Errorf("%w: get_campaigns: %v", ErrToolFailed, err)
	}

	return encodeResult(map[string]interface{}{
		"success":   true,
		"count":     len(campaigns),
		"campaigns": campaigns,
	})
}

func (inv *Invocation) getSegments(ctx context.Context, arguments string) (string, error) {
	var args struct {
		Name              string  `json:"name"`
		MinConversionRate float64 `json:"min_conversion_rate"`
		Limit             int     `json:"limit"`
	}
	if err := json.Unmarshal([]byte(arguments), &args); err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidToolArgs, err)
	}

	segments, err := inv.registry.records.Segments(ctx, store.SegmentFilter{
		Name:              args.Name,
		MinConversionRate: args.MinConversionRate,
		Limit:             args.Limit,
	})
	if err != nil {
		return "", fmt.Errorf("%w: get_segments: %v", ErrToolFailed, err)
	}

	return encodeResult(map[string]interface{}{
		"success":  true,
		"count":    len(segments),
		"segments": segments,
	})
}

func (inv *Invocation) getCampaignMetrics(ctx context.Context, arguments string) (string, error) {
	var args struct {
		CampaignID string `json:"campaign_id"`
	}
	if err := json.Unmarshal([]byte(arguments), &args); err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidToolArgs, err)
	}

	m, err := inv.registry.records.CampaignMetrics(ctx, args.CampaignID)
	if err != nil {
		if errors.Is(err, store.ErrCampaignNotFound) {
			// a missing campaign is an answer, not a tool failure
			return encodeResult(map[string]interface{}{
				"success": false,
				"error":   fmt.Sprintf("no metrics recorded for campaign %s", args.CampaignID),
			})
		}
		return "", fmt.Errorf("%w: get_campaign_metrics: %v", ErrToolFailed, err)
	}

	return encodeResult(map[string]interface{}{
		"success": true,
		"metrics": m,
	})
}

func (inv *Invocation) webSearch(ctx context.Context, arguments string) (string, error) {
	var args struct {
		Query string `json:"query"`
		Limit int    `json:"limit"`
	}
	if err := json.Unmarshal([]byte(arguments), &args); err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidToolArgs, err)
	}

	articles, err := inv.registry.knowledge.SearchKnowledge(ctx, args.Query, args.Limit)
	if err != nil {
		return "", fmt.Errorf("%w: web_search: %v", ErrToolFailed, err)
	}

	return encodeResult(map[string]interface{}{
		"success": true,
		"count":   len(articles),
		"results": articles,
	})
}

func (inv *Invocation) createChart(arguments string) (string, error) {
	var spec ChartSpec
	if err := json.Unmarshal([]byte(arguments), &spec); err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidToolArgs, err)
	}

	inv.artifacts.Charts = append(inv.artifacts.Charts, spec)

	return encodeResult(map[string]interface{}{
		"success": true,
		"note":    "chart captured for the final response",
	})
}

func (inv *Invocation) showRecommendations(arguments string) (string, error) {
	var args struct {
		Recommendations []Recommendation `json:"recommendations"`
	}
	if err := json.Unmarshal([]byte(arguments), &args); err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidToolArgs, err)
	}

	inv.artifacts.Recommendations = append(inv.artifacts.Recommendations, args.Recommendations...)

	return encodeResult(map[string]interface{}{
		"success": true,
		"note":    "recommendations captured for the final response",
	})
}

func encodeResult(v map[string]interface{}) (string, error) {
	payload, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("%w: encode result: %v", ErrToolFailed, err)
	}
	return string(payload), nil
}
