package validate

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strings"
	"time"

	"campaign-orchestrator/internal/models"

	"github.com/xeipuuv/gojsonschema"
)

const splitTolerance = 1.0

// logicalConsistency flags contradictory fields: inverted date ranges,
// variant splits that do not sum to ~100%, control groups outside [0,100],
// self-contradictory numeric filter bounds.
func (v *Validator) logicalConsistency(result *models.SpecialistResult) Check {
	var issues []string

	switch result.Kind {
	case models.SpecialistCampaign:
		c := result.Campaign.Campaign
		issues = append(issues, checkDateOrder(c.StartDate, c.EndDate)...)
		if c.UserFlowConfig != nil {
			issues = append(issues, checkJourneyConsistency(c.UserFlowConfig)...)
		}
		if c.ControlGroup != nil && (c.ControlGroup.Percentage < 0 || c.ControlGroup.Percentage > 100) {
			issues = append(issues, fmt.Sprintf("control group percentage %.1f outside [0,100]", c.ControlGroup.Percentage))
		}

	case models.SpecialistJourney:
		issues = append(issues, checkJourneyConsistency(result.Journey)...)

	case models.SpecialistResearch:
		s := result.Research.Analysis.RecommendedSchedule
		issues = append(issues, checkDateOrder(s.StartDate, s.EndDate)...)

	case models.SpecialistAudience:
		issues = append(issues, checkFilterBounds(result.Audience.Segment.Filters)...)
	}

	return scoreCheck(CheckLogicalConsistency, issues)
}

func checkDateOrder(startDate, endDate string) []string {
	if startDate == "" || endDate == "" {
		return nil
	}
	start, err1 := parseDate(startDate)
	end, err2 := parseDate(endDate)
	if err1 != nil || err2 != nil {
		return nil // unparseable dates are data-quality issues, not contradictions
	}
	if !end.After(start) {
		return []string{fmt.Sprintf("end date %s is not after start date %s", endDate, startDate)}
	}
	return nil
}

func checkJourneyConsistency(j *models.JourneyResult) []string {
	var issues []string

	if len(j.Variants) > 0 {
		var total float64
		for _, variant := range j.Variants {
			total += variant.SplitPercentage
		}
		if math.Abs(total-100) > splitTolerance {
			issues = append(issues, fmt.Sprintf("variant splits sum to %.1f%%, expected ~100%%", total))
		}
	}

	if j.ControlGroup.Percentage < 0 || j.ControlGroup.Percentage > 100 {
		issues = append(issues, fmt.Sprintf("control group percentage %.1f outside [0,100]", j.ControlGroup.Percentage))
	}

	for _, variant := range j.Variants {
		seen := map[int]bool{}
		for _, step := range variant.Steps {
			if seen[step.Order] {
				issues = append(issues, fmt.Sprintf("variant %s has duplicate step order %d", variant.VariantID, step.Order))
			}
			seen[step.Order] = true
		}
	}

	return issues
}

// checkFilterBounds looks for min/max pairs that exclude every possible
// value, e.g. {"age_min": 60, "age_max": 25}.
func checkFilterBounds(filters models.SegmentFilters) []string {
	var issues []string
	for _, group := range []map[string]interface{}{filters.Demographics, filters.Behaviors, filters.CustomAttributes} {
		for key, raw := range group {
			if !strings.HasSuffix(key, "_min") {
				continue
			}
			maxKey := strings.TrimSuffix(key, "_min") + "_max"
			minVal, okMin := toFloat(raw)
			maxVal, okMax := toFloat(group[maxKey])
			if okMin && okMax && minVal > maxVal {
				issues = append(issues, fmt.Sprintf("filter %s=%.0f exceeds %s=%.0f", key, minVal, maxKey, maxVal))
			}
		}
	}
	return issues
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

// resultSchemas is the structural contract per specialist kind, enforced by
// gojsonschema over the marshaled result payload.
var resultSchemas = map[models.SpecialistKind]map[string]interface{}{
	models.SpecialistResearch: {
		"type":     "object",
		"required": []string{"analysis", "rationale"},
		"properties": map[string]interface{}{
			"rationale": map[string]interface{}{"type": "string"},
			"analysis":  map[string]interface{}{"type": "object"},
		},
	},
	models.SpecialistAudience: {
		"type":     "object",
		"required": []string{"segment"},
		"properties": map[string]interface{}{
			"segment": map[string]interface{}{
				"type":     "object",
				"required": []string{"name", "filters", "estimated_size"},
			},
		},
	},
	models.SpecialistCampaign: {
		"type":     "object",
		"required": []string{"rationale", "campaign"},
		"properties": map[string]interface{}{
			"campaign": map[string]interface{}{
				"type":     "object",
				"required": []string{"name", "goals", "channels"},
			},
		},
	},
	models.SpecialistJourney: {
		"type":     "object",
		"required": []string{"variants", "control_group"},
		"properties": map[string]interface{}{
			"variants": map[string]interface{}{"type": "array", "minItems": 1},
		},
	},
}

// coherence verifies the result matches its structural schema and that every
// referenced id resolves, in the result itself or in the record store.
func (v *Validator) coherence(ctx context.Context, result *models.SpecialistResult) Check {
	var issues []string

	payload := resultPayload(result)
	if schema, ok := resultSchemas[result.Kind]; ok && payload != nil {
		doc, err := json.Marshal(payload)
		if err == nil {
			validation, err := gojsonschema.Validate(
				gojsonschema.NewGoLoader(schema),
				gojsonschema.NewBytesLoader(doc),
			)
			if err == nil && !validation.Valid() {
				for _, desc := range validation.Errors() {
					issues = append(issues, desc.String())
				}
			}
		}
	}

	switch result.Kind {
	case models.SpecialistResearch:
		for _, suggestion := range result.Research.Analysis.AudienceRecommendations.ExistingSegments {
			if suggestion.ID == "" {
				continue
			}
			exists, err := v.records.SegmentExists(ctx, suggestion.ID)
			if err == nil && !exists {
				issues = append(issues, fmt.Sprintf("referenced segment %s does not exist", suggestion.ID))
			}
		}
		issues = append(issues, checkEvidenceGrounding(result.Research)...)

	case models.SpecialistCampaign:
		c := result.Campaign
		for _, id := range c.Campaign.SegmentIDs {
			exists, err := v.records.SegmentExists(ctx, id)
			if err == nil && !exists {
				issues = append(issues, fmt.Sprintf("referenced segment %s does not exist", id))
			}
		}
		if c.Campaign.UserFlowConfig != nil {
			issues = append(issues, checkStepRefs(c.Campaign.UserFlowConfig)...)
		}

	case models.SpecialistJourney:
		issues = append(issues, checkStepRefs(result.Journey)...)
	}

	return scoreCheck(CheckCoherence, issues)
}

// checkEvidenceGrounding flags research recommendations that carry no
// supporting evidence. A recommendation without an evidence entry is a
// contract violation.
func checkEvidenceGrounding(r *models.ResearchResult) []string {
	if len(r.Evidence.HistoricalCampaigns) > 0 || len(r.Evidence.HistoricalPerformance) > 0 {
		return nil
	}

	a := r.Analysis
	var ungrounded []string
	if len(a.RecommendedChannels) > 0 {
		ungrounded = append(ungrounded, fmt.Sprintf("recommended channels [%s]", strings.Join(a.RecommendedChannels, ", ")))
	}
	if a.RecommendedSchedule.StartDate != "" || a.RecommendedSchedule.EndDate != "" {
		ungrounded = append(ungrounded, fmt.Sprintf("recommended schedule %s to %s",
			a.RecommendedSchedule.StartDate, a.RecommendedSchedule.EndDate))
	}
	for _, suggestion := range a.AudienceRecommendations.ExistingSegments {
		ungrounded = append(ungrounded, fmt.Sprintf("segment recommendation %q", suggestion.Name))
	}
	for _, suggestion := range a.AudienceRecommendations.NewSegmentSuggestions {
		ungrounded = append(ungrounded, fmt.Sprintf("segment suggestion %q", suggestion.Name))
	}

	issues := make([]string, 0, len(ungrounded))
	for _, item := range ungrounded {
		issues = append(issues, item+" has no supporting evidence")
	}
	return issues
}

// checkStepRefs verifies conditional steps' next/fallback point at step ids
// within the same variant.
func checkStepRefs(j *models.JourneyResult) []string {
	var issues []string
	for _, variant := range j.Variants {
		ids := map[string]bool{}
		for _, step := range variant.Steps {
			ids[step.StepID] = true
		}
		for _, step := range variant.Steps {
			if step.StepType != models.StepTypeCondition {
				continue
			}
			for _, ref := range []string{step.NextStep, step.Fallback} {
				if ref != "" && !ids[ref] {
					issues = append(issues, fmt.Sprintf("variant %s step %s references unknown step %s",
						variant.VariantID, step.StepID, ref))
				}
			}
		}
	}
	return issues
}

var (
	knownChannels = []string{"email", "sms", "push", "whatsapp", "paid_media", "paid media", "google ads", "meta ads"}
	isoDateRe     = regexp.MustCompile(`\d{4}-\d{2}-\d{2}`)
	descriptorRe  = regexp.MustCompile(`(?i)\b(high[- ]value|lapsed|loyal|new|vip|premium|churned)\b[\w -]{0,20}\b(customers?|users?|subscribers?|audience)\b`)
)

// requirementAlignment extracts explicit requirements from the prompt
// (channel names, ISO dates, audience descriptors) and verifies each shows
// up in the result.
func (v *Validator) requirementAlignment(prompt string, result *models.SpecialistResult) Check {
	var issues []string

	payload, _ := json.Marshal(resultPayload(result))
	haystack := strings.ToLower(string(payload))
	promptLower := strings.ToLower(prompt)

	for _, channel := range knownChannels {
		if strings.Contains(promptLower, channel) && !strings.Contains(haystack, normalizeChannel(channel)) {
			issues = append(issues, fmt.Sprintf("prompt requests channel %q, absent from result", channel))
		}
	}

	for _, date := range isoDateRe.FindAllString(prompt, -1) {
		if !strings.Contains(haystack, date) {
			issues = append(issues, fmt.Sprintf("prompt names date %s, absent from result", date))
		}
	}

	for _, m := range descriptorRe.FindAllString(prompt, -1) {
		descriptor := strings.ToLower(strings.Fields(m)[0])
		if !strings.Contains(haystack, strings.ReplaceAll(descriptor, " ", "-")) &&
			!strings.Contains(haystack, strings.ReplaceAll(descriptor, "-", " ")) &&
			!strings.Contains(haystack, descriptor) {
			issues = append(issues, fmt.Sprintf("prompt describes audience %q, absent from result", strings.ToLower(m)))
		}
	}

	return scoreCheck(CheckRequirementAlign, issues)
}

func normalizeChannel(channel string) string {
	return strings.ReplaceAll(channel, "paid media", "paid_media")
}

// dataQuality flags values outside sane ranges and empty required strings.
func (v *Validator) dataQuality(result *models.SpecialistResult) Check {
	var issues []string

	switch result.Kind {
	case models.SpecialistResearch:
		r := result.Research
		if r.Rationale == "" {
			issues = append(issues, "rationale is empty")
		}
		issues = append(issues, checkParseableDates(r.Analysis.RecommendedSchedule.StartDate, r.Analysis.RecommendedSchedule.EndDate)...)

	case models.SpecialistAudience:
		a := result.Audience
		if a.Segment.Name == "" {
			issues = append(issues, "segment name is empty")
		}
		if a.Segment.EstimatedSize <= 0 {
			issues = append(issues, fmt.Sprintf("estimated segment size %d is not positive", a.Segment.EstimatedSize))
		}
		if a.Segment.Rationale == "" {
			issues = append(issues, "segment rationale is empty")
		}

	case models.SpecialistCampaign:
		c := result.Campaign
		if c.Campaign.Name == "" {
			issues = append(issues, "campaign name is empty")
		}
		if c.Rationale == "" {
			issues = append(issues, "rationale is empty")
		}
		if len(c.Campaign.Channels) == 0 {
			issues = append(issues, "no channels specified")
		}
		if c.Campaign.EstimatedAudienceSize < 0 {
			issues = append(issues, "estimated audience size is negative")
		}
		issues = append(issues, checkParseableDates(c.Campaign.StartDate, c.Campaign.EndDate)...)

	case models.SpecialistJourney:
		j := result.Journey
		if j.Rationale == "" {
			issues = append(issues, "rationale is empty")
		}
		for _, variant := range j.Variants {
			if variant.SplitPercentage < 0 || variant.SplitPercentage > 100 {
				issues = append(issues, fmt.Sprintf("variant %s split %.1f outside [0,100]", variant.VariantID, variant.SplitPercentage))
			}
			if len(variant.Steps) == 0 {
				issues = append(issues, fmt.Sprintf("variant %s has no steps", variant.VariantID))
			}
		}
	}

	return scoreCheck(CheckDataQuality, issues)
}

func checkParseableDates(startDate, endDate string) []string {
	var issues []string
	for _, date := range []string{startDate, endDate} {
		if date == "" {
			continue
		}
		if _, err := parseDate(date); err != nil {
			issues = append(issues, fmt.Sprintf("unparseable date %q", date))
		}
	}
	return issues
}

func parseDate(value string) (time.Time, error) {
	for _, layout := range []string{"2006-01-02", time.RFC3339} {
		if t, err := time.Parse(layout, value); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable date %q", value)
}

// resultPayload returns the kind-specific payload for marshaling.
func resultPayload(result *models.SpecialistResult) interface{} {
	switch result.Kind {
	case models.SpecialistResearch:
		return result.Research
	case models.SpecialistAudience:
		return result.Audience
	case models.SpecialistCampaign:
		return result.Campaign
	case models.SpecialistJourney:
		return result.Journey
	default:
		return nil
	}
}
