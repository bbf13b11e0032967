// Package models defines the types shared across pipeline stages: intents,
// prompts, specialist results, and session messages.
package models

import (
	"encoding/json"
	"time"
)

// Intent is the fixed category assigned to a user prompt.
type Intent string

const (
	IntentResearch           Intent = "research"
	IntentCampaignGeneration Intent = "campaign_generation"
	IntentAudienceGeneration Intent = "audience_generation"
	IntentSearch             Intent = "search"
)

// AllIntents lists every valid intent in routing order.
var AllIntents = []Intent{
	IntentResearch,
	IntentCampaignGeneration,
	IntentAudienceGeneration,
	IntentSearch,
}

func (i Intent) Valid() bool {
	switch i {
	case IntentResearch, IntentCampaignGeneration, IntentAudienceGeneration, IntentSearch:
		return true
	}
	return false
}

// SpecialistKind identifies one of the four specialist agents.
type SpecialistKind string

const (
	SpecialistResearch SpecialistKind = "research"
	SpecialistAudience SpecialistKind = "audience"
	SpecialistCampaign SpecialistKind = "campaign"
	SpecialistJourney  SpecialistKind = "journey"
)

// Document is a reference document attached to a prompt.
type Document struct {
	ID      string `json:"id"`
	Title   string `json:"title"`
	Content string `json:"content"`
}

// ChatTurn is one prior-turn {role, content} pair.
type ChatTurn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Prompt is the immutable user submission for one turn.
type Prompt struct {
	Text      string     `json:"text"`
	Context   []ChatTurn `json:"context,omitempty"`
	Documents []Document `json:"documents,omitempty"`
}

// Classification is the result of the classification stage.
type Classification struct {
	Intent     Intent  `json:"intent"`
	Confidence float64 `json:"confidence"`
	Reasoning  string  `json:"reasoning"`

	// LowConfidence marks a classification below the confidence threshold
	// or a fallback. Planning proceeds with the intent as classified; the
	// flag is surfaced on the validation report.
	LowConfidence bool `json:"low_confidence,omitempty"`
}

// Clarification is the explicit error a specialist returns when it lacks
// required input. Error is always true when present.
type Clarification struct {
	Error         bool     `json:"error"`
	Message       string   `json:"message"`
	RequestedInfo []string `json:"requested_info"`
}

// StringList accepts either a JSON string or an array of strings. The model
// frequently returns a bare string where the schema asks for an array.
type StringList []string

func (s *StringList) UnmarshalJSON(data []byte) error {
	var many []string
	if err := json.Unmarshal(data, &many); err == nil {
		*s = many
		return nil
	}
	var one string
	if err := json.Unmarshal(data, &one); err != nil {
		return err
	}
	if one == "" {
		*s = nil
		return nil
	}
	*s = []string{one}
	return nil
}

// Schedule is a recommended campaign window.
type Schedule struct {
	StartDate    string `json:"startDate"`
	EndDate      string `json:"endDate"`
	DurationDays int    `json:"duration,omitempty"`
	Rationale    string `json:"rationale,omitempty"`
}

// SegmentSuggestion references an existing or proposed audience segment.
type SegmentSuggestion struct {
	ID            string `json:"id,omitempty"`
	Name          string `json:"name"`
	Rationale     string `json:"rationale,omitempty"`
	EstimatedSize int    `json:"estimated_size,omitempty"`
}

// AudienceRecommendations groups segment suggestions from research.
type AudienceRecommendations struct {
	ExistingSegments      []SegmentSuggestion `json:"existing_segments,omitempty"`
	NewSegmentSuggestions []SegmentSuggestion `json:"new_segment_suggestions,omitempty"`
}

// VariantSketch is a journey variant outline suggested by research.
type VariantSketch struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// ResearchAnalysis is the structured analysis portion of a research result.
type ResearchAnalysis struct {
	OptimalGoal             StringList              `json:"optimal_goal"`
	RecommendedSchedule     Schedule                `json:"recommended_schedule"`
	RecommendedChannels     []string                `json:"recommended_channels"`
	ChannelRationale        map[string]string       `json:"channel_rationale,omitempty"`
	JourneyVariants         []VariantSketch         `json:"journey_variants,omitempty"`
	AudienceRecommendations AudienceRecommendations `json:"audience_recommendations"`
}

// ResearchEvidence holds the raw supporting data behind recommendations.
type ResearchEvidence struct {
	HistoricalCampaigns   []map[string]interface{} `json:"historical_campaigns,omitempty"`
	HistoricalPerformance map[string]interface{}   `json:"historical_performance,omitempty"`
}

// ResearchResult is the Research specialist output.
type ResearchResult struct {
	Analysis  ResearchAnalysis `json:"analysis"`
	Evidence  ResearchEvidence `json:"evidence"`
	Rationale string           `json:"rationale"`
}

// SegmentFilters is the filter tree defining an audience segment.
type SegmentFilters struct {
	Demographics     map[string]interface{} `json:"demographics,omitempty"`
	Behaviors        map[string]interface{} `json:"behaviors,omitempty"`
	CustomAttributes map[string]interface{} `json:"custom_attributes,omitempty"`
}

// GeneratedSegment is a segment produced by the Audience specialist.
type GeneratedSegment struct {
	Name          string         `json:"name"`
	Description   string         `json:"description"`
	Filters       SegmentFilters `json:"filters"`
	EstimatedSize int            `json:"estimated_size"`
	Rationale     string         `json:"rationale"`
}

// AudienceAlternatives carries the alternative suggestions alongside the
// primary segment.
type AudienceAlternatives struct {
	AlternativeSegments  []GeneratedSegment `json:"alternative_segments,omitempty"`
	SegmentationStrategy string             `json:"segmentation_strategy,omitempty"`
}

// AudienceResult is the Audience specialist output.
type AudienceResult struct {
	Segment         GeneratedSegment     `json:"segment"`
	Recommendations AudienceAlternatives `json:"recommendations"`
}

// JourneyStep is one block within a journey variant. Message steps carry a
// channel and message config; condition steps carry next/fallback references
// that must resolve to step ids within the same variant.
type JourneyStep struct {
	StepID        string                 `json:"step_id"`
	StepType      string                 `json:"step_type"`
	Order         int                    `json:"order"`
	Channel       string                 `json:"channel,omitempty"`
	MessageConfig map[string]interface{} `json:"message_config,omitempty"`
	DelayHours    int                    `json:"delay_hours,omitempty"`
	Condition     string                 `json:"condition,omitempty"`
	NextStep      string                 `json:"next_step,omitempty"`
	Fallback      string                 `json:"fallback,omitempty"`
}

// Step types used by journey variants.
const (
	StepTypeMessage   = "message"
	StepTypeDelay     = "delay"
	StepTypeCondition = "condition"
)

// Flow types for a journey variant.
const (
	FlowTypeSequential  = "sequential"
	FlowTypeParallel    = "parallel"
	FlowTypeConditional = "conditional"
)

// JourneyVariant is one A/B variant of a journey.
type JourneyVariant struct {
	VariantID       string        `json:"variant_id"`
	VariantName     string        `json:"variant_name"`
	SplitPercentage float64       `json:"split_percentage"`
	FlowType        string        `json:"flow_type"`
	Steps           []JourneyStep `json:"steps"`
}

// ControlGroup is the audience fraction excluded from treatment.
type ControlGroup struct {
	Percentage  float64 `json:"percentage"`
	Description string  `json:"description,omitempty"`
}

// JourneyResult is the Journey specialist output.
type JourneyResult struct {
	Variants     []JourneyVariant `json:"variants"`
	ControlGroup ControlGroup     `json:"control_group"`
	Rationale    string           `json:"rationale"`
}

// Creative is channel-specific campaign creative content.
type Creative struct {
	Channel string   `json:"channel"`
	Photos  []string `json:"photos,omitempty"`
	Copy    string   `json:"copy"`
}

// CampaignConfig is the assembled campaign structure. Field names follow the
// UI contract, hence the camelCase tags.
type CampaignConfig struct {
	Name                  string         `json:"name"`
	Description           string         `json:"description"`
	Goals                 StringList     `json:"goals"`
	StartDate             string         `json:"startDate"`
	EndDate               string         `json:"endDate"`
	SegmentIDs            []string       `json:"segmentIds"`
	Channels              []string       `json:"channels"`
	EstimatedAudienceSize int            `json:"estimatedAudienceSize"`
	Progress              float64        `json:"progress,omitempty"`
	UserFlowConfig        *JourneyResult `json:"userFlowConfig,omitempty"`
	Creatives             []Creative     `json:"creatives,omitempty"`
	ControlGroup          *ControlGroup  `json:"controlGroup,omitempty"`
}

// CampaignResult is the Campaign specialist output.
type CampaignResult struct {
	Rationale          string            `json:"rationale"`
	Campaign           CampaignConfig    `json:"campaign"`
	AudienceSegment    *GeneratedSegment `json:"audience_segment,omitempty"`
	MissingInformation []string          `json:"missing_information,omitempty"`
	Recommendations    string            `json:"recommendations,omitempty"`
}

// SpecialistResult is the tagged variant carried between pipeline stages.
// Exactly one payload pointer is non-nil for a given Kind; Clarification is
// set instead of a payload when the specialist requested more input.
type SpecialistResult struct {
	Kind          SpecialistKind
	Research      *ResearchResult
	Audience      *AudienceResult
	Campaign      *CampaignResult
	Journey       *JourneyResult
	Clarification *Clarification
}

// IsClarification reports whether the result is a clarification error.
func (r *SpecialistResult) IsClarification() bool {
	return r != nil && r.Clarification != nil
}

// ReasoningStep summarizes one executed plan step for the session transcript.
type ReasoningStep struct {
	Step    int    `json:"step"`
	Agent   string `json:"agent"`
	Summary string `json:"summary"`
	Success bool   `json:"success"`
}

// SessionMessage is one entry of a session transcript. ID is step-scoped so
// re-appending under retry is idempotent.
type SessionMessage struct {
	ID        string          `json:"id"`
	Role      string          `json:"role"`
	Content   string          `json:"content"`
	Reasoning []ReasoningStep `json:"reasoning,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}
