// Package validate scores specialist results with four deterministic checks.
// No model call is involved: the same result always produces the same report.
package validate

import (
	"context"
	"errors"
	"fmt"

	"campaign-orchestrator/internal/common/logger"
	"campaign-orchestrator/internal/models"
	"campaign-orchestrator/internal/store"
)

var ErrClarificationPayload = errors.New("VALIDATION_ERROR: clarification payloads are not validated")

// Check names, in report order.
const (
	CheckLogicalConsistency = "logical_consistency"
	CheckCoherence          = "coherence"
	CheckRequirementAlign   = "requirement_alignment"
	CheckDataQuality        = "data_quality"
)

// Check is one scored sub-check.
type Check struct {
	Name   string   `json:"name"`
	Passed bool     `json:"passed"`
	Score  float64  `json:"score"`
	Issues []string `json:"issues,omitempty"`
}

// Report is the validation outcome for one specialist result. Validation
// annotates, it never mutates the result.
type Report struct {
	Valid        bool    `json:"valid"`
	OverallScore float64 `json:"overall_score"`
	Checks       []Check `json:"checks"`

	// Recommendations are human-readable pointers derived from failed
	// checks, surfaced alongside the result.
	Recommendations []string `json:"recommendations,omitempty"`

	// LowConfidenceHint carries the classification stage's warning when the
	// turn was planned under a low-confidence intent.
	LowConfidenceHint string `json:"low_confidence_hint,omitempty"`
}

// CheckByName returns the named sub-check, or nil.
func (r *Report) CheckByName(name string) *Check {
	for i := range r.Checks {
		if r.Checks[i].Name == name {
			return &r.Checks[i]
		}
	}
	return nil
}

// Validator runs the four checks against a specialist result.
type Validator struct {
	records   store.RecordStore
	threshold float64
	logger    logger.Logger
}

func NewValidator(records store.RecordStore, threshold float64, log logger.Logger) *Validator {
	if threshold <= 0 {
		threshold = 0.6
	}
	return &Validator{
		records:   records,
		threshold: threshold,
		logger:    log.WithFields(map[string]interface{}{"component": "validation"}),
	}
}

// Validate scores the result against the original prompt. Clarification
// payloads are a contract violation here; the orchestrator returns them to
// the user without validation.
func (v *Validator) Validate(ctx context.Context, prompt string, result *models.SpecialistResult) (*Report, error) {
	if result == nil {
		return nil, fmt.Errorf("%w", ErrClarificationPayload)
	}
	if result.IsClarification() {
		return nil, ErrClarificationPayload
	}

	checks := []Check{
		v.logicalConsistency(result),
		v.coherence(ctx, result),
		v.requirementAlignment(prompt, result),
		v.dataQuality(result),
	}

	var sum float64
	allPassed := true
	for _, c := range checks {
		sum += c.Score
		if !c.Passed {
			allPassed = false
		}
	}
	overall := sum / float64(len(checks))

	report := &Report{
		Valid:        allPassed && overall >= v.threshold,
		OverallScore: overall,
		Checks:       checks,
	}
	for _, c := range checks {
		for _, issue := range c.Issues {
			report.Recommendations = append(report.Recommendations,
				fmt.Sprintf("%s: %s", c.Name, issue))
		}
	}

	v.logger.Info("result validated", map[string]interface{}{
		"kind":         string(result.Kind),
		"valid":        report.Valid,
		"overallScore": report.OverallScore,
	})

	return report, nil
}

// scoreCheck converts an issue list into a sub-check: a clean check scores
// 1.0, each issue costs 0.25 down to a floor of 0.
func scoreCheck(name string, issues []string) Check {
	score := 1.0 - 0.25*float64(len(issues))
	if score < 0 {
		score = 0
	}
	return Check{
		Name:   name,
		Passed: len(issues) == 0,
		Score:  score,
		Issues: issues,
	}
}
