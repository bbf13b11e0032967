// Package plan maps a classified intent to its fixed execution plan. The
// routing table is deterministic: the same intent always yields the same
// step sequence.
package plan

import (
	"errors"
	"fmt"

	"campaign-orchestrator/internal/models"
)

var ErrPlanningFailed = errors.New("PLANNING_FAILED")

// Step is one unit of plan execution. Agent is empty for the search
// short-circuit, which the orchestrator serves without a specialist.
type Step struct {
	Number int                   `json:"step"`
	Agent  models.SpecialistKind `json:"agent,omitempty"`
	Action string                `json:"action"`
	Search bool                  `json:"search,omitempty"`
}

// Plan is the ordered step list for one turn.
type Plan struct {
	Intent models.Intent `json:"intent"`
	Steps  []Step        `json:"plan"`
}

// EstimatedSteps returns the total step count.
func (p *Plan) EstimatedSteps() int { return len(p.Steps) }

// Build returns the execution plan for the given intent.
//
// campaign_generation runs research first so the campaign agent can ground
// its configuration in evidence; every other intent is a single step.
func Build(intent models.Intent) (*Plan, error) {
	switch intent {
	case models.IntentResearch:
		return &Plan{
			Intent: intent,
			Steps: []Step{
				{Number: 1, Agent: models.SpecialistResearch, Action: "Analyze campaign requirements and historical data"},
			},
		}, nil

	case models.IntentCampaignGeneration:
		return &Plan{
			Intent: intent,
			Steps: []Step{
				{Number: 1, Agent: models.SpecialistResearch, Action: "Analyze campaign requirements and historical data"},
				{Number: 2, Agent: models.SpecialistCampaign, Action: "Generate campaign configuration from research results"},
			},
		}, nil

	case models.IntentAudienceGeneration:
		return &Plan{
			Intent: intent,
			Steps: []Step{
				{Number: 1, Agent: models.SpecialistAudience, Action: "Generate audience segment from campaign goals"},
			},
		}, nil

	case models.IntentSearch:
		return &Plan{
			Intent: intent,
			Steps: []Step{
				{Number: 1, Search: true, Action: "Search existing campaigns, segments and knowledge articles"},
			},
		}, nil

	default:
		return nil, fmt.Errorf("%w: no plan for intent %q", ErrPlanningFailed, intent)
	}
}
