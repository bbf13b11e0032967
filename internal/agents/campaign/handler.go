// Package campaign implements the campaign-assembly specialist. It generates
// a complete campaign configuration in one model call, falling back to the
// audience and journey specialists for pieces the inline generation missed.
package campaign

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"campaign-orchestrator/internal/agents/audience"
	"campaign-orchestrator/internal/agents/journey"
	"campaign-orchestrator/internal/common/logger"
	"campaign-orchestrator/internal/common/metrics"
	"campaign-orchestrator/internal/llm"
	"campaign-orchestrator/internal/models"
	"campaign-orchestrator/internal/tools"
)

const AgentName = "campaign"

var ErrCampaignFailed = errors.New("CAMPAIGN_FAILED")

const systemPrompt = `You are a Campaign Agent that generates structured campaign configurations with analysis.

Process:
1. Use research results (if provided) to inform campaign design
2. Extract campaign information from user prompt and research
3. Generate audience segment inline if missing (include in segmentIds and create segment object)
4. Generate journey/userFlowConfig inline if missing (include complete userFlowConfig with variants, steps, flowType)
5. Construct complete campaign structure with rationale

Return a JSON object with:
- "rationale": string - Human-readable analysis explaining the campaign design, recommendations, and key decisions. This will be displayed in the dialog panel.
- "campaign": object with:
  - "name": string
  - "description": string
  - "goals": array of goal strings
  - "startDate": string (ISO format)
  - "endDate": string (ISO format)
  - "segmentIds": array of segment IDs (generate inline if missing)
  - "channels": array of channel names
  - "estimatedAudienceSize": integer
  - "progress": float (0.0-1.0)
  - "userFlowConfig": object with flowType, steps, variants (generate inline if missing)
  - "creatives": array of creative objects, each with:
    - "channel": string (e.g., "WhatsApp", "Google Ads", "Meta Ads")
    - "photos": array of photo URLs or placeholder image URLs
    - "copy": string (ad copy text)
  - "controlGroup": object
- "audience_segment": object (when a segment was generated inline)
- "missing_information": array of missing fields
- "recommendations": string with recommendations

IMPORTANT: Generate audience segments and journeys inline as part of the campaign structure. Only use separate agent calls if the inline generation fails or is too complex.

Output must be structured JSON ready for UI population. The rationale field is critical for user understanding.`

// Input is one campaign-generation request. Research carries the previous
// plan step's output when the plan ran research first.
type Input struct {
	Prompt   string
	Research *models.ResearchResult
	Context  []models.ChatTurn
}

// Output is either an assembled campaign or a clarification request.
type Output struct {
	Result        *models.CampaignResult
	Clarification *models.Clarification
	Artifacts     tools.Artifacts

	// Incomplete marks a result parsed from the last answer after the tool
	// round cap was hit.
	Incomplete bool
}

type Handler struct {
	config   *Config
	gateway  *llm.Client
	registry *tools.Registry
	audience *audience.Handler
	journey  *journey.Handler
	logger   logger.Logger
}

func NewHandler(config *Config, gateway *llm.Client, registry *tools.Registry,
	audienceAgent *audience.Handler, journeyAgent *journey.Handler, log logger.Logger) *Handler {
	return &Handler{
		config:   config,
		gateway:  gateway,
		registry: registry,
		audience: audienceAgent,
		journey:  journeyAgent,
		logger:   log.WithFields(map[string]interface{}{"agent": AgentName}),
	}
}

func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	if input == nil || input.Prompt == "" {
		return nil, fmt.Errorf("%w: empty prompt", ErrCampaignFailed)
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
	messages = append(messages, llm.Message{Role: llm.RoleUser, Content: buildPrompt(input)})

	inv := h.registry.ForAgent(models.SpecialistCampaign)

	conv, err := h.gateway.RunConversation(ctx, &llm.ChatRequest{
		Model:       h.gateway.Model(),
		Messages:    messages,
		Temperature: h.config.Temperature,
		MaxTokens:   h.config.MaxTokens,
	}, inv, h.config.MaxToolRounds)
	capped := errors.Is(err, llm.ErrToolRoundsExceeded)
	if err != nil && !capped {
		metrics.AgentInvocations.WithLabelValues(AgentName, "error").Inc()
		return nil, fmt.Errorf("%w: %w", ErrCampaignFailed, err)
	}

	content := conv.Final.Content()

	var clarification models.Clarification
	if err := llm.ParseJSON(content, &clarification); err == nil && clarification.Error {
		metrics.AgentInvocations.WithLabelValues(AgentName, "clarification").Inc()
		return &Output{Clarification: &clarification, Artifacts: inv.Artifacts()}, nil
	}

	var result models.CampaignResult
	if parseErr := llm.ParseJSON(content, &result); parseErr != nil {
		metrics.AgentInvocations.WithLabelValues(AgentName, "error").Inc()
		if capped {
			return nil, fmt.Errorf("%w: no final answer within the tool round cap: %w", ErrCampaignFailed, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrCampaignFailed, parseErr)
	}
	if result.Campaign.Name == "" {
		metrics.AgentInvocations.WithLabelValues(AgentName, "error").Inc()
		if capped {
			return nil, fmt.Errorf("%w: no final answer within the tool round cap: %w", ErrCampaignFailed, err)
		}
		return nil, fmt.Errorf("%w: campaign missing from response", ErrCampaignFailed)
	}

	h.fillAudience(ctx, input, &result)
	h.fillJourney(ctx, &result)

	if result.Rationale == "" {
		result.Rationale = fmt.Sprintf("Generated campaign %q targeting goals %s.",
			result.Campaign.Name, strings.Join(result.Campaign.Goals, ", "))
	}

	metrics.AgentInvocations.WithLabelValues(AgentName, "success").Inc()
	h.logger.Info("campaign assembled", map[string]interface{}{
		"campaign":    result.Campaign.Name,
		"channels":    result.Campaign.Channels,
		"missingInfo": result.MissingInformation,
	})

	return &Output{Result: &result, Artifacts: inv.Artifacts(), Incomplete: capped}, nil
}

// fillAudience backfills the audience segment through the audience specialist
// when the inline generation produced neither segment ids nor a segment.
func (h *Handler) fillAudience(ctx context.Context, input *Input, result *models.CampaignResult) {
	if len(result.Campaign.SegmentIDs) > 0 || result.AudienceSegment != nil {
		return
	}

	h.logger.Info("inline audience missing, falling back to audience agent", nil)

	prompt := fmt.Sprintf("Create an audience segment for this campaign.\nCampaign goals: %s\nOriginal request: %s",
		strings.Join(result.Campaign.Goals, ", "), input.Prompt)

	out, err := h.audience.Execute(ctx, &audience.Input{Prompt: prompt})
	if err != nil || out.Clarification != nil {
		result.MissingInformation = appendMissing(result.MissingInformation, "segmentIds")
		if err != nil {
			h.logger.WithError(err).Warn("audience fallback failed", nil)
		}
		return
	}

	result.AudienceSegment = &out.Result.Segment
	if result.Campaign.EstimatedAudienceSize == 0 {
		result.Campaign.EstimatedAudienceSize = out.Result.Segment.EstimatedSize
	}
}

// fillJourney backfills the user flow through the journey specialist when the
// inline generation left it out.
func (h *Handler) fillJourney(ctx context.Context, result *models.CampaignResult) {
	if result.Campaign.UserFlowConfig != nil && len(result.Campaign.UserFlowConfig.Variants) > 0 {
		return
	}

	h.logger.Info("inline journey missing, falling back to journey agent", nil)

	goal := ""
	if len(result.Campaign.Goals) > 0 {
		goal = result.Campaign.Goals[0]
	}
	segmentName := ""
	if result.AudienceSegment != nil {
		segmentName = result.AudienceSegment.Name
	}

	flow, err := h.journey.Execute(ctx, &journey.Input{
		CampaignGoal: goal,
		SegmentName:  segmentName,
		DurationDays: h.durationDays(result.Campaign.StartDate, result.Campaign.EndDate),
	})
	if err != nil {
		result.MissingInformation = appendMissing(result.MissingInformation, "userFlowConfig")
		h.logger.WithError(err).Warn("journey fallback failed", nil)
		return
	}

	result.Campaign.UserFlowConfig = flow
	if result.Campaign.ControlGroup == nil {
		result.Campaign.ControlGroup = &flow.ControlGroup
	}
}

// durationDays derives the campaign length from its dates, defaulting when
// either date is absent or unparseable.
func (h *Handler) durationDays(startDate, endDate string) int {
	start, err1 := parseDate(startDate)
	end, err2 := parseDate(endDate)
	if err1 != nil || err2 != nil || !end.After(start) {
		return h.config.DefaultDurationDays
	}
	return int(end.Sub(start).Hours() / 24)
}

func parseDate(value string) (time.Time, error) {
	for _, layout := range []string{"2006-01-02", time.RFC3339} {
		if t, err := time.Parse(layout, value); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable date %q", value)
}

func appendMissing(existing []string, field string) []string {
	for _, f := range existing {
		if f == field {
			return existing
		}
	}
	return append(existing, field)
}

func buildPrompt(input *Input) string {
	var b strings.Builder
	fmt.Fprintf(&b, "User Request: %s\n\n", input.Prompt)

	if input.Research != nil {
		research, _ := json.MarshalIndent(input.Research, "", "  ")
		fmt.Fprintf(&b, "Research Analysis:\n%s\n\n", research)
		b.WriteString("Based on the user request and research analysis above, generate a complete campaign configuration. Include:\n")
	} else {
		b.WriteString("Generate a complete campaign configuration. Include:\n")
	}

	b.WriteString(`1. A detailed rationale explaining your campaign design decisions and recommendations
2. A complete campaign structure with all fields populated
3. Audience segment information (generate inline if not specified)
4. User journey/flow configuration (generate inline if not specified)

Generate everything in a single response with both analysis text and structured data.`)

	return b.String()
}
