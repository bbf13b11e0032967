// Package classify assigns one of the four intents to a user prompt.
package classify

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"campaign-orchestrator/internal/common/logger"
	"campaign-orchestrator/internal/llm"
	"campaign-orchestrator/internal/models"
)

const AgentName = "classification"

var ErrClassificationFailed = errors.New("CLASSIFICATION_FAILED")

const systemPrompt = `You are a classification agent. Classify user prompts into one of these categories:
1. research - User seeks analysis, recommendations, or insights about campaigns
2. campaign_generation - User wants to create a new marketing campaign
3. audience_generation - User wants to create or modify audience segments
4. search - User is searching for existing items (campaigns, segments, or knowledge articles)

Return a JSON object with:
- "intent": one of the four categories above
- "confidence": a float between 0.0 and 1.0 indicating confidence
- "reasoning": a brief explanation of the classification

Example response:
{
  "intent": "campaign_generation",
  "confidence": 0.95,
  "reasoning": "User explicitly wants to create a new campaign"
}`

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

// Classify assigns an intent to the prompt. Prior session turns are replayed
// so follow-up prompts classify in context. A transport failure surfaces as
// an error; an unparseable answer falls back to research. A low-confidence
// answer keeps its intent but carries the LowConfidence flag so planning
// proceeds and validation annotates.
func (h *Handler) Classify(ctx context.Context, prompt models.Prompt, history []models.SessionMessage) (*models.Classification, error) {
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	if h.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.config.Timeout)
		defer cancel()
	}

	messages := h.buildMessages(prompt, history)

	resp, err := h.gateway.Chat(ctx, &llm.ChatRequest{
		Model:       h.gateway.Model(),
		Messages:    messages,
		Temperature: h.config.Temperature,
		MaxTokens:   h.config.MaxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrClassificationFailed, err)
	}

	var classification models.Classification
	if err := llm.ParseJSON(resp.Content(), &classification); err != nil {
		h.logger.WithError(err).Warn("unparseable classification, falling back to research", nil)
		return fallback("classification response could not be parsed"), nil
	}

	if classification.Confidence < 0 {
		classification.Confidence = 0
	}
	if classification.Confidence > 1 {
		classification.Confidence = 1
	}

	if !classification.Intent.Valid() {
		h.logger.Warn("unknown intent, falling back to research", map[string]interface{}{
			"intent": string(classification.Intent),
		})
		return fallback(fmt.Sprintf("unknown intent %q", classification.Intent)), nil
	}

	if classification.Confidence < h.config.LowConfidenceThreshold {
		h.logger.Info("low-confidence classification", map[string]interface{}{
			"intent":     string(classification.Intent),
			"confidence": classification.Confidence,
		})
		classification.LowConfidence = true
		classification.Reasoning = fmt.Sprintf("low confidence %.2f: %s",
			classification.Confidence, classification.Reasoning)
		return &classification, nil
	}

	h.logger.Info("prompt classified", map[string]interface{}{
		"intent":     string(classification.Intent),
		"confidence": classification.Confidence,
	})

	return &classification, nil
}

func (h *Handler) buildMessages(prompt models.Prompt, history []models.SessionMessage) []llm.Message {
	messages := []llm.Message{{Role: llm.RoleSystem, Content: systemPrompt}}

	turns := history
	if h.config.ContextTurns > 0 && len(turns) > h.config.ContextTurns {
		turns = turns[len(turns)-h.config.ContextTurns:]
	}
	for _, turn := range turns {
		role := turn.Role
		if role != llm.RoleUser && role != llm.RoleAssistant {
			continue
		}
		messages = append(messages, llm.Message{Role: role, Content: turn.Content})
	}

	// inline prior-turn context supplied with the prompt itself
	for _, turn := range prompt.Context {
		messages = append(messages, llm.Message{Role: turn.Role, Content: turn.Content})
	}

	text := prompt.Text
	if len(prompt.Documents) > 0 {
		var b strings.Builder
		b.WriteString(text)
		b.WriteString("\n\nAttached documents:\n")
		for _, doc := range prompt.Documents {
			fmt.Fprintf(&b, "- %s: %s\n", doc.Title, doc.Content)
		}
		text = b.String()
	}

	return append(messages, llm.Message{Role: llm.RoleUser, Content: text})
}

func fallback(reason string) *models.Classification {
	return &models.Classification{
		Intent:        models.IntentResearch,
		Confidence:    0,
		Reasoning:     "fell back to research: " + reason,
		LowConfidence: true,
	}
}
