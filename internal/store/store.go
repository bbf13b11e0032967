// Package store implements the record and session store collaborators the
// orchestrator depends on: campaigns, segments and metrics in PostgreSQL,
// knowledge articles in Elasticsearch, session transcripts in Redis.
package store

import (
	"context"

	"campaign-orchestrator/internal/models"
)

// Campaign is a stored campaign record.
type Campaign struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Goals       []string `json:"goals"`
	Status      string   `json:"status"`
	StartDate   string   `json:"startDate"`
	EndDate     string   `json:"endDate"`
	Channels    []string `json:"channels"`
	SegmentIDs  []string `json:"segmentIds"`
}

// Segment is a stored audience segment record.
type Segment struct {
	ID                 string  `json:"id"`
	Name               string  `json:"name"`
	Description        string  `json:"description"`
	Size               int     `json:"size"`
	PastConversionRate float64 `json:"pastConversionRate"`
}

// CampaignMetrics is the performance record for one campaign.
type CampaignMetrics struct {
	CampaignID     string  `json:"campaign_id"`
	Delivered      int     `json:"delivered"`
	Opened         int     `json:"opened"`
	Clicked        int     `json:"clicked"`
	Converted      int     `json:"converted"`
	OpenRate       float64 `json:"open_rate"`
	ClickRate      float64 `json:"click_rate"`
	ConversionRate float64 `json:"conversion_rate"`
}

// KnowledgeArticle is a stored knowledge-base article.
type KnowledgeArticle struct {
	ID      string  `json:"id"`
	Title   string  `json:"title"`
	Content string  `json:"content"`
	Score   float64 `json:"score,omitempty"`
}

// CampaignFilter narrows campaign queries. Zero values mean no filter.
type CampaignFilter struct {
	Goal   string
	Status string
	Limit  int
}

// SegmentFilter narrows segment queries. Zero values mean no filter.
type SegmentFilter struct {
	Name              string
	MinConversionRate float64
	Limit             int
}

// RecordStore provides read access to campaigns, segments and metrics.
type RecordStore interface {
	Campaigns(ctx context.Context, filter CampaignFilter) ([]Campaign, error)
	Segments(ctx context.Context, filter SegmentFilter) ([]Segment, error)
	CampaignMetrics(ctx context.Context, campaignID string) (*CampaignMetrics, error)
	SegmentExists(ctx context.Context, segmentID string) (bool, error)
	SearchCampaigns(ctx context.Context, query string) ([]Campaign, error)
	SearchSegments(ctx context.Context, query string) ([]Segment, error)
}

// KnowledgeSearcher provides full-text search over knowledge articles.
type KnowledgeSearcher interface {
	SearchKnowledge(ctx context.Context, query string, limit int) ([]KnowledgeArticle, error)
}

// SessionStore persists conversation transcripts. Append is idempotent on
// the message id, and writes are fenced by turn id so a superseded turn
// cannot write back into the session.
type SessionStore interface {
	BeginTurn(ctx context.Context, sessionID, turnID string) error
	Append(ctx context.Context, sessionID, turnID string, msg models.SessionMessage) error
	Messages(ctx context.Context, sessionID string, lastN int) ([]models.SessionMessage, error)
}
