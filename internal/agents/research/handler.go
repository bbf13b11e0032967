// Package research implements the evidence-gathering specialist. It drives a
// tool-calling conversation over the record store and knowledge index and
// returns structured campaign recommendations.
package research

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

const AgentName = "research"

var ErrResearchFailed = errors.New("RESEARCH_FAILED")

const systemPrompt = `You are a Research Agent specializing in marketing campaign analysis.
Your role is to:
1. Analyze historical campaign and audience data using tool calls
2. Provide evidence-based recommendations
3. Explain your rationale with specific data points
4. Suggest optimal campaign configurations

Always ground your recommendations in historical evidence.
Use tool calling to access campaign and audience databases.
Provide detailed rationale for each recommendation.

Return a JSON object with:
- "analysis": object containing:
  - "optimal_goal": string or array of campaign goals
  - "recommended_schedule": object with startDate, endDate, duration, rationale
  - "recommended_channels": array of channel names
  - "channel_rationale": object with rationale for each channel
  - "journey_variants": array of variant suggestions
  - "audience_recommendations": object with existing_segments and new_segment_suggestions
- "evidence": object with:
  - "historical_campaigns": array of relevant campaigns
  - "historical_performance": object with performance data
- "rationale": string explaining the analysis`

// Input is one research request.
type Input struct {
	Prompt  string
	Context []models.ChatTurn
}

// Output carries the parsed result plus the presentation artifacts and
// degradation flags gathered during the tool conversation.
type Output struct {
	Result      *models.ResearchResult
	Artifacts   tools.Artifacts
	Rounds      int
	FailedTools []string

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

// Execute runs the research conversation. Failed tools degrade the evidence
// rather than the whole step; hitting the tool-round cap is an error only
// when the final answer cannot be parsed.
func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	if input == nil || input.Prompt == "" {
		return nil, fmt.Errorf("%w: empty prompt", ErrResearchFailed)
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

	inv := h.registry.ForAgent(models.SpecialistResearch)

	conv, err := h.gateway.RunConversation(ctx, &llm.ChatRequest{
		Model:       h.gateway.Model(),
		Messages:    messages,
		Temperature: h.config.Temperature,
		MaxTokens:   h.config.MaxTokens,
	}, inv, h.config.MaxToolRounds)

	capped := errors.Is(err, llm.ErrToolRoundsExceeded)
	if err != nil && !capped {
		metrics.AgentInvocations.WithLabelValues(AgentName, "error").Inc()
		return nil, fmt.Errorf("%w: %w", ErrResearchFailed, err)
	}
	if capped {
		h.logger.Warn("tool round cap hit, parsing last answer as-is", map[string]interface{}{
			"rounds": conv.Rounds,
		})
	}

	var result models.ResearchResult
	if parseErr := llm.ParseJSON(conv.Final.Content(), &result); parseErr != nil {
		metrics.AgentInvocations.WithLabelValues(AgentName, "error").Inc()
		if capped {
			return nil, fmt.Errorf("%w: no final answer within the tool round cap: %w", ErrResearchFailed, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrResearchFailed, parseErr)
	}

	metrics.AgentInvocations.WithLabelValues(AgentName, "success").Inc()
	h.logger.Info("research completed", map[string]interface{}{
		"rounds":      conv.Rounds,
		"failedTools": len(conv.FailedTools),
		"channels":    result.Analysis.RecommendedChannels,
	})

	return &Output{
		Result:      &result,
		Artifacts:   inv.Artifacts(),
		Rounds:      conv.Rounds,
		FailedTools: conv.FailedTools,
		Incomplete:  capped,
	}, nil
}
