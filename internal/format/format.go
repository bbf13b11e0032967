// Package format turns a turn's final result into a renderer-agnostic
// component manifest. Detection is an ordered list of predicate+constructor
// pairs; the first pair that fires decides the primary component.
package format

import (
	"campaign-orchestrator/internal/common/logger"
	"campaign-orchestrator/internal/models"
	"campaign-orchestrator/internal/store"
	"campaign-orchestrator/internal/tools"
)

// ComponentType tags a manifest entry for the renderer.
type ComponentType string

const (
	ComponentChart            ComponentType = "chart"
	ComponentRecommendations  ComponentType = "recommendations"
	ComponentCampaignList     ComponentType = "campaign_list"
	ComponentSegmentList      ComponentType = "segment_list"
	ComponentKnowledgeList    ComponentType = "knowledge_list"
	ComponentCampaignForm     ComponentType = "campaign_form"
	ComponentCampaign         ComponentType = "campaign"
	ComponentSegment          ComponentType = "segment"
	ComponentKnowledge        ComponentType = "knowledge"
	ComponentResearchAnalysis ComponentType = "research_analysis"
	ComponentGeneric          ComponentType = "generic"
	ComponentError            ComponentType = "error"
)

// Component is one renderable panel of a turn's result.
type Component struct {
	Type ComponentType `json:"type"`
	Data interface{}   `json:"data"`
}

// Manifest is the ordered component list plus the primary selection.
// PrimaryComponent always names the type of an entry in Components.
type Manifest struct {
	Components       []Component   `json:"components"`
	PrimaryComponent ComponentType `json:"primaryComponent"`
}

// ErrorPayload is the data of an error component, following the external
// error contract.
type ErrorPayload struct {
	Error          bool     `json:"error"`
	ErrorType      string   `json:"error_type"`
	Message        string   `json:"message"`
	RequestedInfo  []string `json:"requested_info,omitempty"`
	RetryAvailable bool     `json:"retry_available"`
}

// RecommendationsPayload is the data of a recommendations component.
type RecommendationsPayload struct {
	Type  string        `json:"type"` // campaign, segment or mixed
	Items []interface{} `json:"items"`
}

// Browse is a raw record-store fetch, rendered without specialist output.
type Browse struct {
	Campaigns []store.Campaign
	Segments  []store.Segment
	Knowledge []store.KnowledgeArticle
}

// Input is everything a finished turn hands the formatter.
type Input struct {
	Result    *models.SpecialistResult
	Artifacts tools.Artifacts
	Browse    *Browse
}

// detector is one predicate+constructor pair. It returns the components it
// detects in the input, or nil when its shape is absent.
type detector struct {
	name   string
	detect func(in *Input) []Component
}

// Formatter builds component manifests. Detector order is the priority
// order for primary selection.
type Formatter struct {
	detectors []detector
	logger    logger.Logger
}

func NewFormatter(log logger.Logger) *Formatter {
	return &Formatter{
		detectors: []detector{
			{name: "chart", detect: detectCharts},
			{name: "recommendations", detect: detectRecommendations},
			{name: "list", detect: detectLists},
			{name: "detail", detect: detectDetail},
			{name: "campaign_form", detect: detectCampaignForm},
		},
		logger: log.WithFields(map[string]interface{}{"component": "formatter"}),
	}
}

// Format runs the detector chain over the input. The first detector that
// fires decides the primary component; if none fires the raw payload is
// emitted under a generic component rather than failing.
func (f *Formatter) Format(in *Input) *Manifest {
	if in == nil {
		in = &Input{}
	}

	manifest := &Manifest{}
	for _, d := range f.detectors {
		components := d.detect(in)
		if len(components) == 0 {
			continue
		}
		if manifest.PrimaryComponent == "" {
			manifest.PrimaryComponent = components[0].Type
		}
		manifest.Components = append(manifest.Components, components...)
	}

	if len(manifest.Components) == 0 {
		manifest.Components = []Component{{Type: ComponentGeneric, Data: genericPayload(in)}}
		manifest.PrimaryComponent = ComponentGeneric
		f.logger.Debug("no component shape detected, emitting generic payload", nil)
	}

	return manifest
}

// FormatError builds the degraded manifest for a terminated turn. The
// caller always receives a well-formed manifest, never a bare error.
func (f *Formatter) FormatError(errorType, message string, requestedInfo []string, retryAvailable bool) *Manifest {
	return &Manifest{
		Components: []Component{{
			Type: ComponentError,
			Data: ErrorPayload{
				Error:          true,
				ErrorType:      errorType,
				Message:        message,
				RequestedInfo:  requestedInfo,
				RetryAvailable: retryAvailable,
			},
		}},
		PrimaryComponent: ComponentError,
	}
}

func detectCharts(in *Input) []Component {
	var components []Component
	for _, chart := range in.Artifacts.Charts {
		components = append(components, Component{Type: ComponentChart, Data: chart})
	}
	return components
}

func detectRecommendations(in *Input) []Component {
	var components []Component

	if len(in.Artifacts.Recommendations) > 0 {
		payload := RecommendationsPayload{Type: "mixed"}
		for _, rec := range in.Artifacts.Recommendations {
			payload.Items = append(payload.Items, rec)
		}
		components = append(components, Component{Type: ComponentRecommendations, Data: payload})
	}

	if in.Result == nil {
		return components
	}

	switch in.Result.Kind {
	case models.SpecialistResearch:
		recs := in.Result.Research.Analysis.AudienceRecommendations
		if len(recs.ExistingSegments) > 0 || len(recs.NewSegmentSuggestions) > 0 {
			payload := RecommendationsPayload{Type: "segment"}
			for _, s := range recs.ExistingSegments {
				payload.Items = append(payload.Items, s)
			}
			for _, s := range recs.NewSegmentSuggestions {
				payload.Items = append(payload.Items, s)
			}
			components = append(components, Component{Type: ComponentRecommendations, Data: payload})
		}

	case models.SpecialistAudience:
		alternatives := in.Result.Audience.Recommendations.AlternativeSegments
		if len(alternatives) > 0 {
			payload := RecommendationsPayload{Type: "segment"}
			for _, s := range alternatives {
				payload.Items = append(payload.Items, s)
			}
			components = append(components, Component{Type: ComponentRecommendations, Data: payload})
		}
	}

	return components
}

// detectLists renders browse fetches. A single-record fetch is left for the
// detail detector.
func detectLists(in *Input) []Component {
	if in.Browse == nil {
		return nil
	}

	var components []Component
	if n := len(in.Browse.Campaigns); n > 0 && n != 1 {
		components = append(components, Component{Type: ComponentCampaignList, Data: in.Browse.Campaigns})
	}
	if n := len(in.Browse.Segments); n > 0 && n != 1 {
		components = append(components, Component{Type: ComponentSegmentList, Data: in.Browse.Segments})
	}
	if n := len(in.Browse.Knowledge); n > 0 && n != 1 {
		components = append(components, Component{Type: ComponentKnowledgeList, Data: in.Browse.Knowledge})
	}
	return components
}

func detectDetail(in *Input) []Component {
	var components []Component

	if in.Browse != nil {
		if len(in.Browse.Campaigns) == 1 {
			components = append(components, Component{Type: ComponentCampaign, Data: in.Browse.Campaigns[0]})
		}
		if len(in.Browse.Segments) == 1 {
			components = append(components, Component{Type: ComponentSegment, Data: in.Browse.Segments[0]})
		}
		if len(in.Browse.Knowledge) == 1 {
			components = append(components, Component{Type: ComponentKnowledge, Data: in.Browse.Knowledge[0]})
		}
	}

	if in.Result == nil {
		return components
	}

	switch in.Result.Kind {
	case models.SpecialistAudience:
		components = append(components, Component{Type: ComponentSegment, Data: in.Result.Audience.Segment})
	case models.SpecialistResearch:
		components = append(components, Component{Type: ComponentResearchAnalysis, Data: in.Result.Research})
	}

	return components
}

func detectCampaignForm(in *Input) []Component {
	if in.Result == nil || in.Result.Kind != models.SpecialistCampaign {
		return nil
	}
	return []Component{{Type: ComponentCampaignForm, Data: in.Result.Campaign}}
}

func genericPayload(in *Input) interface{} {
	if in.Result == nil {
		return map[string]interface{}{}
	}
	switch in.Result.Kind {
	case models.SpecialistResearch:
		return in.Result.Research
	case models.SpecialistAudience:
		return in.Result.Audience
	case models.SpecialistCampaign:
		return in.Result.Campaign
	case models.SpecialistJourney:
		return in.Result.Journey
	}
	return map[string]interface{}{}
}
