package tools

import "campaign-orchestrator/internal/llm"

// paramSchemas holds the JSON-schema parameter declaration for each tool.
// The same map is sent to the model and used to validate argument payloads
// before dispatch.
var paramSchemas = map[string]map[string]interface{}{
	ToolGetCampaigns: {
		"type": "object",
		"properties": map[string]interface{}{
			"goal": map[string]interface{}{
				"type":        "string",
				"description": "Filter campaigns whose goals match this text",
			},
			"status": map[string]interface{}{
				"type":        "string",
				"description": "Filter by campaign status",
				"enum":        []string{"draft", "active", "paused", "completed"},
			},
			"limit": map[string]interface{}{
				"type":        "integer",
				"description": "Maximum number of campaigns to return",
				"minimum":     1,
				"maximum":     50,
			},
		},
	},
	ToolGetSegments: {
		"type": "object",
		"properties": map[string]interface{}{
			"name": map[string]interface{}{
				"type":        "string",
				"description": "Filter segments whose name matches this text",
			},
			"min_conversion_rate": map[string]interface{}{
				"type":        "number",
				"description": "Only return segments with at least this past conversion rate",
				"minimum":     0,
				"maximum":     1,
			},
			"limit": map[string]interface{}{
				"type":        "integer",
				"description": "Maximum number of segments to return",
				"minimum":     1,
				"maximum":     50,
			},
		},
	},
	ToolGetCampaignMetrics: {
		"type": "object",
		"properties": map[string]interface{}{
			"campaign_id": map[string]interface{}{
				"type":        "string",
				"description": "The campaign to fetch performance metrics for",
			},
		},
		"required": []string{"campaign_id"},
	},
	ToolWebSearch: {
		"type": "object",
		"properties": map[string]interface{}{
			"query": map[string]interface{}{
				"type":        "string",
				"description": "Search query for marketing knowledge and benchmarks",
			},
			"limit": map[string]interface{}{
				"type":        "integer",
				"description": "Maximum number of results to return",
				"minimum":     1,
				"maximum":     20,
			},
		},
		"required": []string{"query"},
	},
	ToolCreateChart: {
		"type": "object",
		"properties": map[string]interface{}{
			"chart_type": map[string]interface{}{
				"type":        "string",
				"description": "Visualization type",
				"enum":        []string{"bar", "line", "pie"},
			},
			"title": map[string]interface{}{
				"type":        "string",
				"description": "Chart title",
			},
			"data": map[string]interface{}{
				"type":        "array",
				"description": "Labeled data points to plot",
				"items": map[string]interface{}{
					"type": "object",
					"properties": map[string]interface{}{
						"label": map[string]interface{}{"type": "string"},
						"value": map[string]interface{}{"type": "number"},
					},
					"required": []string{"label", "value"},
				},
			},
		},
		"required": []string{"chart_type", "title", "data"},
	},
	ToolShowRecommendations: {
		"type": "object",
		"properties": map[string]interface{}{
			"recommendations": map[string]interface{}{
				"type":        "array",
				"description": "Actionable recommendations to surface to the user",
				"items": map[string]interface{}{
					"type": "object",
					"properties": map[string]interface{}{
						"title":       map[string]interface{}{"type": "string"},
						"description": map[string]interface{}{"type": "string"},
					},
					"required": []string{"title"},
				},
			},
		},
		"required": []string{"recommendations"},
	},
}

var toolDescriptions = map[string]string{
	ToolGetCampaigns:        "Look up existing campaigns, optionally filtered by goal or status",
	ToolGetSegments:         "Look up audience segments, optionally filtered by name or conversion rate",
	ToolGetCampaignMetrics:  "Fetch delivery and conversion metrics for one campaign",
	ToolWebSearch:           "Search the marketing knowledge base for benchmarks and best practices",
	ToolCreateChart:         "Render a chart from labeled data points for the final response",
	ToolShowRecommendations: "Surface a list of recommendations in the final response",
}

func definitionsFor(names []string) []llm.ToolDef {
	defs := make([]llm.ToolDef, 0, len(names))
	for _, name := range names {
		defs = append(defs, llm.ToolDef{
			Type: "function",
			Function: llm.FunctionDef{
				Name:        name,
				Description: toolDescriptions[name],
				Parameters:  paramSchemas[name],
			},
		})
	}
	return defs
}
