// Package audience implements the segment-generation specialist. It turns a
// campaign goal into a filter-defined audience segment, or asks for
// clarification when the goal is missing.
package audience

import (
	"context"
	"errors"
	"fmt"
	"time"

	"campaign-orchestrator/internal/common/logger"
	"campaign-orchestrator/internal/common/metrics"
	"campaign-orchestrator/internal/llm"
	"campaign-orchestrator/internal/models"
	"campaign-orchestrator/internal/tools"
)

const AgentName = "audience"

var ErrAudienceFailed = errors.New("AUDIENCE_FAILED")

const systemPrompt = `You are an Audience Agent that creates marketing audience segments.

Requirements:
1. Analyze the campaign goal to determine target audience
2. Create segment filters based on demographics, behaviors, and attributes
3. Provide estimated segment size
4. Explain your segmentation rationale

If the campaign goal is missing or unclear, return an error requesting clarification.

Return a JSON object with:
- "segment": object with:
  - "name": segment name
  - "description": segment description
  - "filters": object with demographics, behaviors, custom_attributes
  - "estimated_size": integer
  - "rationale": string explaining the segmentation
- "recommendations": object with alternative_segments and segmentation_strategy

If goal is missing, return:
{
  "error": true,
  "message": "Campaign goal is required to generate audience segment",
  "requested_info": ["campaign_goal", "target_demographics"]
}`

// Input is one audience-generation request.
type Input struct {
	Prompt  string
	Context []models.ChatTurn
}

// Output is either a generated segment or a clarification request; exactly
// one of the two fields is set.
type Output struct {
	Result        *models.AudienceResult
	Clarification *models.Clarification

	// Incomplete marks a result parsed from the last answer after the tool
	// round cap was hit.
	Incomplete bool
}

type Handler struct {
	config   *Config
	gateway  *llm.Client
	registry *tools.Registry
	logger   logger.Logger
}

func NewHandler(config *Config, gateway *llm.Client, registry *tools.Registry, log logger.Logger) *Handler {
	return &Handler{
		config:   config,
		gateway:  gateway,
		registry: registry,
		logger:   log.WithFields(map[string]interface{}{"agent": AgentName}),
	}
}

func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	if input == nil || input.Prompt == "" {
		return nil, fmt.Errorf("%w: empty prompt", ErrAudienceFailed)
	}

	if h.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.config.Timeout)
		defer cancel()
	}

	start := time.Now()
	defer func() {
		metrics.AgentDuration.WithLabelValues(AgentName).Observe(time.Since(start).Seconds())
	}()

	messages := []llm.Message{{Role: llm.RoleSystem, Content: systemPrompt}}
	for _, turn := range input.Context {
		messages = append(messages, llm.Message{Role: turn.Role, Content: turn.Content})
	}
	messages = append(messages, llm.Message{Role: llm.RoleUser, Content: input.Prompt})

	inv := h.registry.ForAgent(models.SpecialistAudience)

	conv, err := h.gateway.RunConversation(ctx, &llm.ChatRequest{
		Model:       h.gateway.Model(),
		Messages:    messages,
		Temperature: h.config.Temperature,
		MaxTokens:   h.config.MaxTokens,
	}, inv, h.config.MaxToolRounds)
	capped := errors.Is(err, llm.ErrToolRoundsExceeded)
	if err != nil && !capped {
		metrics.AgentInvocations.WithLabelValues(AgentName, "error").Inc()
		return nil, fmt.Errorf("%w: %w", ErrAudienceFailed, err)
	}

	content := conv.Final.Content()

	var clarification models.Clarification
	if err := llm.ParseJSON(content, &clarification); err == nil && clarification.Error {
		metrics.AgentInvocations.WithLabelValues(AgentName, "clarification").Inc()
		h.logger.Info("audience agent requested clarification", map[string]interface{}{
			"requestedInfo": clarification.RequestedInfo,
		})
		return &Output{Clarification: &clarification}, nil
	}

	var result models.AudienceResult
	if parseErr := llm.ParseJSON(content, &result); parseErr != nil {
		metrics.AgentInvocations.WithLabelValues(AgentName, "error").Inc()
		if capped {
			return nil, fmt.Errorf("%w: no final answer within the tool round cap: %w", ErrAudienceFailed, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrAudienceFailed, parseErr)
	}
	if result.Segment.Name == "" {
		metrics.AgentInvocations.WithLabelValues(AgentName, "error").Inc()
		if capped {
			return nil, fmt.Errorf("%w: no final answer within the tool round cap: %w", ErrAudienceFailed, err)
		}
		return nil, fmt.Errorf("%w: segment missing from response", ErrAudienceFailed)
	}

	metrics.AgentInvocations.WithLabelValues(AgentName, "success").Inc()
	h.logger.Info("audience segment generated", map[string]interface{}{
		"segment":       result.Segment.Name,
		"estimatedSize": result.Segment.EstimatedSize,
	})

	return &Output{Result: &result, Incomplete: capped}, nil
}
