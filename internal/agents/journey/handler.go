// Package journey implements the funnel-design specialist. It produces
// multi-variant journeys with message, delay and condition steps plus a
// control group.
package journey

import (
	"context"
	"errors"
	"fmt"
	"time"

	"campaign-orchestrator/internal/common/logger"
	"campaign-orchestrator/internal/common/metrics"
	"campaign-orchestrator/internal/llm"
	"campaign-orchestrator/internal/models"
)

const AgentName = "journey"

var ErrJourneyFailed = errors.New("JOURNEY_FAILED")

const systemPrompt = `You are a Journey Agent that creates multi-stage marketing funnels.

Requirements:
1. Create multiple variants for A/B testing (typically 2-3 variants)
2. Design sequential, parallel, or conditional flows
3. Include logical blocks (delays, conditions) and message blocks
4. Support multiple channels (email, SMS, push, paid_media)
5. Define control group (typically 10-20% of audience)
6. Provide clear rationale for journey design

Consider:
- Campaign goal when designing conversion points
- Audience segment characteristics for message personalization
- Campaign duration for timing optimization
- Channel effectiveness for goal achievement

Return a JSON object with:
- "journey": object with:
  - "variants": array of variant objects, each with:
    - "variant_name": string
    - "variant_id": string
    - "split_percentage": float (must sum to 100% across variants)
    - "steps": array of step objects with step_id, step_type, order, channel, message_config, conditions
    - "flow_type": "sequential" | "parallel" | "conditional"
  - "control_group": object with percentage and description
  - "rationale": string explaining the journey design`

// Input names the campaign context the journey is designed against.
type Input struct {
	CampaignGoal string
	SegmentName  string
	DurationDays int
	Context      []models.ChatTurn
}

type Handler struct {
	config  *Config
	gateway *llm.Client
	logger  logger.Logger
}

func NewHandler(config *Config, gateway *llm.Client, log logger.Logger) *Handler {
	return &Handler{
		config:  config,
		gateway: gateway,
		logger:  log.WithFields(map[string]interface{}{"agent": AgentName}),
	}
}

func (h *Handler) Execute(ctx context.Context, input *Input) (*models.JourneyResult, error) {
	if input == nil || input.CampaignGoal == "" {
		return nil, fmt.Errorf("%w: campaign goal is required", ErrJourneyFailed)
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

	segment := input.SegmentName
	if segment == "" {
		segment = "Unknown"
	}

	prompt := fmt.Sprintf(`Create a marketing journey with:
Campaign Goal: %s
Audience Segment: %s
Campaign Duration: %d days

Generate a complete journey configuration.`, input.CampaignGoal, segment, input.DurationDays)

	messages := []llm.Message{{Role: llm.RoleSystem, Content: systemPrompt}}
	for _, turn := range input.Context {
		messages = append(messages, llm.Message{Role: turn.Role, Content: turn.Content})
	}
	messages = append(messages, llm.Message{Role: llm.RoleUser, Content: prompt})

	resp, err := h.gateway.Chat(ctx, &llm.ChatRequest{
		Model:       h.gateway.Model(),
		Messages:    messages,
		Temperature: h.config.Temperature,
		MaxTokens:   h.config.MaxTokens,
	})
	if err != nil {
		metrics.AgentInvocations.WithLabelValues(AgentName, "error").Inc()
		return nil, fmt.Errorf("%w: %w", ErrJourneyFailed, err)
	}

	var wrapper struct {
		Journey models.JourneyResult `json:"journey"`
	}
	if err := llm.ParseJSON(resp.Content(), &wrapper); err != nil {
		metrics.AgentInvocations.WithLabelValues(AgentName, "error").Inc()
		return nil, fmt.Errorf("%w: %v", ErrJourneyFailed, err)
	}

	result := wrapper.Journey
	if len(result.Variants) == 0 {
		metrics.AgentInvocations.WithLabelValues(AgentName, "error").Inc()
		return nil, fmt.Errorf("%w: no variants in response", ErrJourneyFailed)
	}

	if result.ControlGroup.Percentage <= 0 {
		result.ControlGroup = models.ControlGroup{
			Percentage:  h.config.ControlGroupPercent,
			Description: "held out from all journey variants",
		}
	}
	for i := range result.Variants {
		if result.Variants[i].FlowType == "" {
			result.Variants[i].FlowType = models.FlowTypeSequential
		}
	}

	metrics.AgentInvocations.WithLabelValues(AgentName, "success").Inc()
	h.logger.Info("journey generated", map[string]interface{}{
		"variants":     len(result.Variants),
		"controlGroup": result.ControlGroup.Percentage,
	})

	return &result, nil
}
