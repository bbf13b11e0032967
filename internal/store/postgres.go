package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"campaign-orchestrator/internal/common/logger"

	"github.com/lib/pq"
)

var (
	ErrRecordStoreFailed = errors.New("RECORD_STORE_FAILED")
	ErrCampaignNotFound  = errors.New("CAMPAIGN_NOT_FOUND")
)

// PostgresRecordStore backs campaigns, segments and metrics with PostgreSQL.
type PostgresRecordStore struct {
	db     *sql.DB
	logger logger.Logger
}

func NewPostgresRecordStore(db *sql.DB, log logger.Logger) *PostgresRecordStore {
	return &PostgresRecordStore{
		db:     db,
		logger: log.WithFields(map[string]interface{}{"component": "record-store"}),
	}
}

func (s *PostgresRecordStore) Campaigns(ctx context.Context, filter CampaignFilter) ([]Campaign, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 10
	}

	query := `
		SELECT id, name, description, goals, status, start_date, end_date, channels, segment_ids
		FROM campaigns
		WHERE ($1 = '' OR EXISTS (SELECT 1 FROM unnest(goals) g WHERE g ILIKE '%' || $1 || '%'))
		  AND ($2 = '' OR status = $2)
		ORDER BY start_date DESC
		LIMIT $3`

	rows, err := s.db.QueryContext(ctx, query, filter.Goal, filter.Status, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: query campaigns: %v", ErrRecordStoreFailed, err)
	}
	defer rows.Close()

	return scanCampaigns(rows)
}

func (s *PostgresRecordStore) Segments(ctx context.Context, filter SegmentFilter) ([]Segment, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 10
	}

	query := `
		SELECT id, name, description, size, past_conversion_rate
		FROM segments
		WHERE ($1 = '' OR name ILIKE '%' || $1 || '%')
		  AND past_conversion_rate >= $2
		ORDER BY past_conversion_rate DESC
		LIMIT $3`

	rows, err := s.db.QueryContext(ctx, query, filter.Name, filter.MinConversionRate, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: query segments: %v", ErrRecordStoreFailed, err)
	}
	defer rows.Close()

	return scanSegments(rows)
}

func (s *PostgresRecordStore) CampaignMetrics(ctx context.Context, campaignID string) (*CampaignMetrics, error) {
	query := `
		SELECT campaign_id, delivered, opened, clicked, converted
		FROM campaign_metrics
		WHERE campaign_id = $1`

	var m CampaignMetrics
	err := s.db.QueryRowContext(ctx, query, campaignID).Scan(
		&m.CampaignID, &m.Delivered, &m.Opened, &m.Clicked, &m.Converted,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrCampaignNotFound, campaignID)
		}
		return nil, fmt.Errorf("%w: query metrics: %v", ErrRecordStoreFailed, err)
	}

	if m.Delivered > 0 {
		m.OpenRate = float64(m.Opened) / float64(m.Delivered)
		m.ClickRate = float64(m.Clicked) / float64(m.Delivered)
		m.ConversionRate = float64(m.Converted) / float64(m.Delivered)
	}

	return &m, nil
}

func (s *PostgresRecordStore) SegmentExists(ctx context.Context, segmentID string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM segments WHERE id = $1)`, segmentID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("%w: segment exists: %v", ErrRecordStoreFailed, err)
	}
	return exists, nil
}

func (s *PostgresRecordStore) SearchCampaigns(ctx context.Context, query string) ([]Campaign, error) {
	q := strings.TrimSpace(query)

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, description, goals, status, start_date, end_date, channels, segment_ids
		FROM campaigns
		WHERE name ILIKE '%' || $1 || '%' OR description ILIKE '%' || $1 || '%'
		ORDER BY start_date DESC
		LIMIT 20`, q)
	if err != nil {
		return nil, fmt.Errorf("%w: search campaigns: %v", ErrRecordStoreFailed, err)
	}
	defer rows.Close()

	return scanCampaigns(rows)
}

func (s *PostgresRecordStore) SearchSegments(ctx context.Context, query string) ([]Segment, error) {
	q := strings.TrimSpace(query)

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, description, size, past_conversion_rate
		FROM segments
		WHERE name ILIKE '%' || $1 || '%' OR description ILIKE '%' || $1 || '%'
		ORDER BY past_conversion_rate DESC
		LIMIT 20`, q)
	if err != nil {
		return nil, fmt.Errorf("%w: search segments: %v", ErrRecordStoreFailed, err)
	}
	defer rows.Close()

	return scanSegments(rows)
}

func scanCampaigns(rows *sql.Rows) ([]Campaign, error) {
	campaigns := []Campaign{}
	for rows.Next() {
		var c Campaign
		if err := rows.Scan(
			&c.ID, &c.Name, &c.Description, pq.Array(&c.Goals), &c.Status,
			&c.StartDate, &c.EndDate, pq.Array(&c.Channels), pq.Array(&c.SegmentIDs),
		); err != nil {
			return nil, fmt.Errorf("%w: scan campaign: %v", ErrRecordStoreFailed, err)
		}
		campaigns = append(campaigns, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRecordStoreFailed, err)
	}
	return campaigns, nil
}

func scanSegments(rows *sql.Rows) ([]Segment, error) {
	segments := []Segment{}
	for rows.Next() {
		var seg Segment
		if err := rows.Scan(&seg.ID, &seg.Name, &seg.Description, &seg.Size, &seg.PastConversionRate); err != nil {
			return nil, fmt.Errorf("%w: scan segment: %v", ErrRecordStoreFailed, err)
		}
		segments = append(segments, seg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRecordStoreFailed, err)
	}
	return segments, nil
}
