// Package orchestrator drives one conversational turn end to end:
// classification, planning, specialist execution, validation, formatting
// and session write-back.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"campaign-orchestrator/internal/agents/audience"
	"campaign-orchestrator/internal/agents/campaign"
	"campaign-orchestrator/internal/agents/classify"
	"campaign-orchestrator/internal/agents/plan"
	"campaign-orchestrator/internal/agents/research"
	"campaign-orchestrator/internal/common/logger"
	"campaign-orchestrator/internal/common/metrics"
	"campaign-orchestrator/internal/format"
	"campaign-orchestrator/internal/llm"
	"campaign-orchestrator/internal/models"
	"campaign-orchestrator/internal/store"
	"campaign-orchestrator/internal/tools"
	"campaign-orchestrator/internal/validate"

	"github.com/google/uuid"
)

var ErrEmptyPrompt = errors.New("EMPTY_PROMPT")

// External error taxonomy. Every degraded manifest carries one of these.
const (
	ErrorTypeValidation    = "validation_error"
	ErrorTypeAPI           = "api_error"
	ErrorTypeTool          = "tool_error"
	ErrorTypeTimeout       = "timeout"
	ErrorTypeClarification = "clarification_needed"
)

// Config bounds the per-turn context window and browse page size.
type Config struct {
	HistoryMessages int
	BrowseLimit     int
}

func DefaultConfig() *Config {
	return &Config{
		HistoryMessages: 10,
		BrowseLimit:     20,
	}
}

// Deps bundles the orchestrator's collaborators.
type Deps struct {
	Classifier *classify.Handler
	Research   *research.Handler
	Audience   *audience.Handler
	Campaign   *campaign.Handler
	Records    store.RecordStore
	Knowledge  store.KnowledgeSearcher
	Sessions   store.SessionStore
	Validator  *validate.Validator
	Formatter  *format.Formatter
}

// TurnRequest is one user submission.
type TurnRequest struct {
	SessionID string            `json:"session_id"`
	Prompt    string            `json:"prompt"`
	Documents []models.Document `json:"documents,omitempty"`
}

// SessionSummary reports the session state after the turn.
type SessionSummary struct {
	SessionID    string `json:"session_id"`
	MessageCount int    `json:"message_count"`
}

// TurnResponse is the final artifact of a turn. The manifest is always
// well-formed; failures surface as an error component, never as a raw
// transport error.
type TurnResponse struct {
	TurnID     string                 `json:"turn_id"`
	Intent     models.Intent          `json:"intent,omitempty"`
	Manifest   *format.Manifest       `json:"manifest"`
	Primary    format.ComponentType   `json:"primary_component"`
	Reasoning  []models.ReasoningStep `json:"reasoning,omitempty"`
	Validation *validate.Report       `json:"validation,omitempty"`

	// Incomplete marks a turn whose specialist hit its tool round cap; the
	// manifest carries the partial result it managed to parse.
	Incomplete bool `json:"incomplete,omitempty"`

	Session SessionSummary `json:"session"`
}

type Orchestrator struct {
	config     *Config
	classifier *classify.Handler
	research   *research.Handler
	audience   *audience.Handler
	campaign   *campaign.Handler
	records    store.RecordStore
	knowledge  store.KnowledgeSearcher
	sessions   store.SessionStore
	validator  *validate.Validator
	formatter  *format.Formatter
	logger     logger.Logger
}

func New(config *Config, deps Deps, log logger.Logger) *Orchestrator {
	if config == nil {
		config = DefaultConfig()
	}
	return &Orchestrator{
		config:     config,
		classifier: deps.Classifier,
		research:   deps.Research,
		audience:   deps.Audience,
		campaign:   deps.Campaign,
		records:    deps.Records,
		knowledge:  deps.Knowledge,
		sessions:   deps.Sessions,
		validator:  deps.Validator,
		formatter:  deps.Formatter,
		logger:     log.WithFields(map[string]interface{}{"component": "orchestrator"}),
	}
}

// turn is the transient state of one ProcessTurn call.
type turn struct {
	id             string
	sessionID      string
	request        *TurnRequest
	history        []models.SessionMessage
	classification *models.Classification
	reasoning      []models.ReasoningStep
	incomplete     bool
}

// ProcessTurn runs the full pipeline for one prompt. It returns an error
// only for an unusable request; every pipeline failure still produces a
// response with a degraded manifest and a session write-back.
func (o *Orchestrator) ProcessTurn(ctx context.Context, req *TurnRequest) (*TurnResponse, error) {
	if req == nil || strings.TrimSpace(req.Prompt) == "" {
		return nil, fmt.Errorf("%w: prompt is required", ErrEmptyPrompt)
	}

	t := &turn{
		id:        uuid.NewString(),
		sessionID: req.SessionID,
		request:   req,
	}
	if t.sessionID == "" {
		t.sessionID = uuid.NewString()
	}

	start := time.Now()

	o.logger.Info("turn started", map[string]interface{}{
		"turnId":    t.id,
		"sessionId": t.sessionID,
	})

	// Fence the session so a superseded turn cannot write back. A session
	// store outage degrades to a stateless turn.
	if err := o.sessions.BeginTurn(ctx, t.sessionID, t.id); err != nil {
		o.logger.WithError(err).Warn("session fencing unavailable, continuing stateless", nil)
	}
	history, err := o.sessions.Messages(ctx, t.sessionID, o.config.HistoryMessages)
	if err != nil {
		o.logger.WithError(err).Warn("session history unavailable", nil)
	}
	t.history = history

	classification, err := o.classifier.Classify(ctx, models.Prompt{
		Text:      req.Prompt,
		Documents: req.Documents,
	}, t.history)
	if err != nil {
		return o.failTurn(ctx, t, err, "could not understand the request"), nil
	}
	t.classification = classification

	defer func() {
		metrics.TurnDuration.WithLabelValues(string(classification.Intent)).Observe(time.Since(start).Seconds())
	}()

	execPlan, err := plan.Build(classification.Intent)
	if err != nil {
		return o.failTurn(ctx, t, err, "no execution plan for the request"), nil
	}

	o.logger.Info("plan built", map[string]interface{}{
		"turnId": t.id,
		"intent": string(classification.Intent),
		"steps":  execPlan.EstimatedSteps(),
	})

	if len(execPlan.Steps) == 1 && execPlan.Steps[0].Search {
		return o.runBrowse(ctx, t)
	}
	return o.runSpecialists(ctx, t, execPlan)
}

// runBrowse serves the search intent straight from the stores, without a
// specialist.
func (o *Orchestrator) runBrowse(ctx context.Context, t *turn) (*TurnResponse, error) {
	browse, err := o.browse(ctx, t.request.Prompt)
	if err != nil {
		return o.failTurn(ctx, t, err, "could not fetch the requested records"), nil
	}

	count := len(browse.Campaigns) + len(browse.Segments) + len(browse.Knowledge)
	t.reasoning = append(t.reasoning, models.ReasoningStep{
		Step:    1,
		Agent:   "search",
		Summary: fmt.Sprintf("fetched %d records", count),
		Success: true,
	})

	manifest := o.formatter.Format(&format.Input{Browse: browse})
	return o.finishTurn(ctx, t, manifest, nil, summarizeBrowse(browse)), nil
}

func (o *Orchestrator) browse(ctx context.Context, prompt string) (*format.Browse, error) {
	lower := strings.ToLower(prompt)
	browse := &format.Browse{}
	query := searchQuery(lower)

	switch {
	case strings.Contains(lower, "segment") || strings.Contains(lower, "audience"):
		var (
			segments []store.Segment
			err      error
		)
		if query != "" {
			segments, err = o.records.SearchSegments(ctx, query)
		} else {
			segments, err = o.records.Segments(ctx, store.SegmentFilter{Limit: o.config.BrowseLimit})
		}
		if err != nil {
			return nil, err
		}
		if strings.Contains(lower, "conversion") {
			sort.SliceStable(segments, func(i, j int) bool {
				return segments[i].PastConversionRate > segments[j].PastConversionRate
			})
		}
		browse.Segments = segments

	case strings.Contains(lower, "campaign"):
		var (
			campaigns []store.Campaign
			err       error
		)
		if query != "" {
			campaigns, err = o.records.SearchCampaigns(ctx, query)
		} else {
			campaigns, err = o.records.Campaigns(ctx, store.CampaignFilter{Limit: o.config.BrowseLimit})
		}
		if err != nil {
			return nil, err
		}
		browse.Campaigns = campaigns

	default:
		articles, err := o.knowledge.SearchKnowledge(ctx, prompt, o.config.BrowseLimit)
		if err != nil {
			return nil, err
		}
		browse.Knowledge = articles
	}

	return browse, nil
}

// browseStopwords are filler words stripped from a browse prompt before the
// remainder is used as a record-store search query. Record kinds and sort
// cues count as filler; they steer the branch, not the match.
var browseStopwords = map[string]struct{}{
	"show": {}, "me": {}, "my": {}, "our": {}, "the": {}, "a": {}, "an": {},
	"all": {}, "any": {}, "list": {}, "find": {}, "search": {}, "for": {},
	"of": {}, "in": {}, "with": {}, "please": {}, "what": {}, "which": {},
	"are": {}, "is": {}, "do": {}, "we": {}, "have": {}, "give": {},
	"get": {}, "display": {}, "about": {}, "matching": {}, "named": {},
	"called": {},
	"segment": {}, "segments": {}, "audience": {}, "audiences": {},
	"campaign": {}, "campaigns": {}, "record": {}, "records": {},
	"by": {}, "sort": {}, "sorted": {}, "order": {}, "ordered": {},
	"conversion": {}, "rate": {}, "rates": {}, "top": {}, "best": {},
	"highest": {}, "past": {}, "recent": {}, "latest": {},
}

// searchQuery reduces a lowercased browse prompt to its distinguishing
// terms. An empty result means the prompt asked for everything and the
// unfiltered list is served instead.
func searchQuery(lower string) string {
	var kept []string
	for _, word := range strings.Fields(lower) {
		word = strings.Trim(word, ".,!?:;\"'")
		if word == "" {
			continue
		}
		if _, filler := browseStopwords[word]; filler {
			continue
		}
		kept = append(kept, word)
	}
	return strings.Join(kept, " ")
}

// runSpecialists executes the plan steps in order, feeding each step's
// result forward into the next.
func (o *Orchestrator) runSpecialists(ctx context.Context, t *turn, execPlan *plan.Plan) (*TurnResponse, error) {
	var (
		researchOut *research.Output
		finalResult *models.SpecialistResult
		artifacts   tools.Artifacts
	)
	contextTurns := chatTurns(t.history)

	for _, step := range execPlan.Steps {
		switch step.Agent {
		case models.SpecialistResearch:
			out, err := o.research.Execute(ctx, &research.Input{
				Prompt:  t.request.Prompt,
				Context: contextTurns,
			})
			if err != nil {
				t.reasoning = append(t.reasoning, failedStep(step, err))
				return o.failTurn(ctx, t, err, "research failed"), nil
			}
			researchOut = out
			t.incomplete = t.incomplete || out.Incomplete
			mergeArtifacts(&artifacts, out.Artifacts)
			finalResult = &models.SpecialistResult{Kind: models.SpecialistResearch, Research: out.Result}
			t.reasoning = append(t.reasoning, models.ReasoningStep{
				Step:    step.Number,
				Agent:   string(step.Agent),
				Summary: researchSummary(out),
				Success: true,
			})

		case models.SpecialistAudience:
			out, err := o.audience.Execute(ctx, &audience.Input{
				Prompt:  t.request.Prompt,
				Context: contextTurns,
			})
			if err != nil {
				t.reasoning = append(t.reasoning, failedStep(step, err))
				return o.failTurn(ctx, t, err, "audience generation failed"), nil
			}
			if out.Clarification != nil {
				return o.clarifyTurn(ctx, t, step, out.Clarification), nil
			}
			t.incomplete = t.incomplete || out.Incomplete
			finalResult = &models.SpecialistResult{Kind: models.SpecialistAudience, Audience: out.Result}
			t.reasoning = append(t.reasoning, models.ReasoningStep{
				Step:    step.Number,
				Agent:   string(step.Agent),
				Summary: fmt.Sprintf("generated segment %q", out.Result.Segment.Name),
				Success: true,
			})

		case models.SpecialistCampaign:
			in := &campaign.Input{
				Prompt:  t.request.Prompt,
				Context: contextTurns,
			}
			if researchOut != nil {
				in.Research = researchOut.Result
			}
			out, err := o.campaign.Execute(ctx, in)
			if err != nil {
				t.reasoning = append(t.reasoning, failedStep(step, err))
				return o.failTurn(ctx, t, err, "campaign generation failed"), nil
			}
			if out.Clarification != nil {
				return o.clarifyTurn(ctx, t, step, out.Clarification), nil
			}
			t.incomplete = t.incomplete || out.Incomplete
			mergeArtifacts(&artifacts, out.Artifacts)
			finalResult = &models.SpecialistResult{Kind: models.SpecialistCampaign, Campaign: out.Result}
			t.reasoning = append(t.reasoning, models.ReasoningStep{
				Step:    step.Number,
				Agent:   string(step.Agent),
				Summary: fmt.Sprintf("assembled campaign %q", out.Result.Campaign.Name),
				Success: true,
			})

		default:
			err := fmt.Errorf("%w: unsupported step agent %q", plan.ErrPlanningFailed, step.Agent)
			return o.failTurn(ctx, t, err, "internal planning error"), nil
		}
	}

	report, err := o.validator.Validate(ctx, t.request.Prompt, finalResult)
	if err != nil {
		o.logger.WithError(err).Warn("validation unavailable for turn", map[string]interface{}{"turnId": t.id})
	} else if t.classification.LowConfidence {
		report.LowConfidenceHint = t.classification.Reasoning
	}

	manifest := o.formatter.Format(&format.Input{Result: finalResult, Artifacts: artifacts})
	return o.finishTurn(ctx, t, manifest, report, summarizeResult(finalResult)), nil
}

// finishTurn assembles the successful response and writes the turn back to
// the session under its fence.
func (o *Orchestrator) finishTurn(ctx context.Context, t *turn, manifest *format.Manifest,
	report *validate.Report, assistantContent string) *TurnResponse {

	o.appendTranscript(ctx, t, assistantContent)
	metrics.TurnsProcessed.WithLabelValues(string(t.classification.Intent), "success").Inc()

	return &TurnResponse{
		TurnID:     t.id,
		Intent:     t.classification.Intent,
		Manifest:   manifest,
		Primary:    manifest.PrimaryComponent,
		Reasoning:  t.reasoning,
		Validation: report,
		Incomplete: t.incomplete,
		Session: SessionSummary{
			SessionID:    t.sessionID,
			MessageCount: len(t.history) + 2,
		},
	}
}

// clarifyTurn returns the specialist's clarification request to the caller.
// Clarification payloads are never validated.
func (o *Orchestrator) clarifyTurn(ctx context.Context, t *turn, step plan.Step,
	clarification *models.Clarification) *TurnResponse {

	t.reasoning = append(t.reasoning, models.ReasoningStep{
		Step:    step.Number,
		Agent:   string(step.Agent),
		Summary: "requested clarification: " + clarification.Message,
		Success: true,
	})

	manifest := o.formatter.FormatError(ErrorTypeClarification, clarification.Message,
		clarification.RequestedInfo, false)

	o.appendTranscript(ctx, t, clarification.Message)
	metrics.TurnsProcessed.WithLabelValues(string(t.classification.Intent), "clarification").Inc()

	return &TurnResponse{
		TurnID:    t.id,
		Intent:    t.classification.Intent,
		Manifest:  manifest,
		Primary:   manifest.PrimaryComponent,
		Reasoning: t.reasoning,
		Session: SessionSummary{
			SessionID:    t.sessionID,
			MessageCount: len(t.history) + 2,
		},
	}
}

// failTurn terminates the turn early with a degraded manifest and a clear
// assistant-facing message.
func (o *Orchestrator) failTurn(ctx context.Context, t *turn, cause error, message string) *TurnResponse {
	errorType, retryAvailable := errorKind(cause)

	o.logger.WithError(cause).Error("turn terminated", map[string]interface{}{
		"turnId":    t.id,
		"errorType": errorType,
	})

	manifest := o.formatter.FormatError(errorType, message, nil, retryAvailable)
	o.appendTranscript(ctx, t, "Sorry, "+message+".")

	intent := models.Intent("")
	if t.classification != nil {
		intent = t.classification.Intent
	}
	metrics.TurnsProcessed.WithLabelValues(string(intent), errorType).Inc()

	return &TurnResponse{
		TurnID:    t.id,
		Intent:    intent,
		Manifest:  manifest,
		Primary:   manifest.PrimaryComponent,
		Reasoning: t.reasoning,
		Session: SessionSummary{
			SessionID:    t.sessionID,
			MessageCount: len(t.history) + 2,
		},
	}
}

// appendTranscript persists the user/assistant pair under the turn fence.
// Message ids are turn-scoped so a retried write is idempotent; a superseded
// turn stops writing at the first fence rejection.
func (o *Orchestrator) appendTranscript(ctx context.Context, t *turn, assistantContent string) {
	now := time.Now().UTC()
	messages := []models.SessionMessage{
		{
			ID:        t.id + ":user",
			Role:      "user",
			Content:   t.request.Prompt,
			Timestamp: now,
		},
		{
			ID:        t.id + ":assistant",
			Role:      "assistant",
			Content:   assistantContent,
			Reasoning: t.reasoning,
			Timestamp: now,
		},
	}

	for _, msg := range messages {
		if err := o.sessions.Append(ctx, t.sessionID, t.id, msg); err != nil {
			if errors.Is(err, store.ErrTurnSuperseded) {
				o.logger.Warn("turn superseded, skipping session write-back", map[string]interface{}{
					"turnId":    t.id,
					"sessionId": t.sessionID,
				})
				return
			}
			o.logger.WithError(err).Warn("session write-back failed", map[string]interface{}{"turnId": t.id})
		}
	}
}

// errorKind maps a pipeline error onto the external taxonomy.
func errorKind(err error) (string, bool) {
	switch {
	case errors.Is(err, llm.ErrToolRoundsExceeded):
		// round-cap overflow is terminal, retrying would loop again
		return ErrorTypeTimeout, false
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, llm.ErrAPITimeout):
		return ErrorTypeTimeout, true
	case errors.Is(err, llm.ErrAPIFailed):
		return ErrorTypeAPI, true
	case errors.Is(err, tools.ErrToolFailed):
		return ErrorTypeTool, false
	default:
		return ErrorTypeValidation, false
	}
}

func failedStep(step plan.Step, err error) models.ReasoningStep {
	return models.ReasoningStep{
		Step:    step.Number,
		Agent:   string(step.Agent),
		Summary: err.Error(),
		Success: false,
	}
}

func chatTurns(history []models.SessionMessage) []models.ChatTurn {
	turns := make([]models.ChatTurn, 0, len(history))
	for _, msg := range history {
		if msg.Role != "user" && msg.Role != "assistant" {
			continue
		}
		turns = append(turns, models.ChatTurn{Role: msg.Role, Content: msg.Content})
	}
	return turns
}

func mergeArtifacts(dst *tools.Artifacts, src tools.Artifacts) {
	dst.Charts = append(dst.Charts, src.Charts...)
	dst.Recommendations = append(dst.Recommendations, src.Recommendations...)
}

func researchSummary(out *research.Output) string {
	summary := fmt.Sprintf("research completed in %d rounds", out.Rounds)
	if len(out.FailedTools) > 0 {
		summary += ", degraded tools: " + strings.Join(out.FailedTools, ", ")
	}
	return summary
}

func summarizeResult(result *models.SpecialistResult) string {
	switch result.Kind {
	case models.SpecialistResearch:
		return "Research analysis ready. " + truncate(result.Research.Rationale, 200)
	case models.SpecialistAudience:
		segment := result.Audience.Segment
		return fmt.Sprintf("Generated audience segment %q with an estimated size of %d.",
			segment.Name, segment.EstimatedSize)
	case models.SpecialistCampaign:
		c := result.Campaign.Campaign
		return fmt.Sprintf("Prepared campaign draft %q across channels %s.",
			c.Name, strings.Join(c.Channels, ", "))
	}
	return "Done."
}

func summarizeBrowse(browse *format.Browse) string {
	switch {
	case browse.Segments != nil:
		return fmt.Sprintf("Found %d segments.", len(browse.Segments))
	case browse.Campaigns != nil:
		return fmt.Sprintf("Found %d campaigns.", len(browse.Campaigns))
	default:
		return fmt.Sprintf("Found %d knowledge articles.", len(browse.Knowledge))
	}
}

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[:limit] + "…"
}
