package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"campaign-orchestrator/internal/common/logger"

	"github.com/elastic/go-elasticsearch/v8"
)

var ErrSearchQueryFailed = errors.New("SEARCH_QUERY_FAILED")

// ElasticKnowledgeStore searches knowledge articles in Elasticsearch.
type ElasticKnowledgeStore struct {
	client *elasticsearch.Client
	index  string
	logger logger.Logger
}

func NewElasticKnowledgeStore(client *elasticsearch.Client, index string, log logger.Logger) *ElasticKnowledgeStore {
	return &ElasticKnowledgeStore{
		client: client,
		index:  index,
		logger: log.WithFields(map[string]interface{}{"component": "knowledge-store"}),
	}
}

func (s *ElasticKnowledgeStore) SearchKnowledge(ctx context.Context, query string, limit int) ([]KnowledgeArticle, error) {
	if limit <= 0 {
		limit = 10
	}

	body := map[string]interface{}{
		"size": limit,
		"query": map[string]interface{}{
			"multi_match": map[string]interface{}{
				"query":  query,
				"fields": []string{"title^2", "content"},
			},
		},
	}

	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(body); err != nil {
		return nil, fmt.Errorf("%w: encode query: %v", ErrSearchQueryFailed, err)
	}

	res, err := s.client.Search(
		s.client.Search.WithContext(ctx),
		s.client.Search.WithIndex(s.index),
		s.client.Search.WithBody(&buf),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSearchQueryFailed, err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return nil, fmt.Errorf("%w: %s", ErrSearchQueryFailed, res.Status())
	}

	var parsed struct {
		Hits struct {
			Hits []struct {
				ID     string           `json:"_id"`
				Score  float64          `json:"_score"`
				Source KnowledgeArticle `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("%w: decode response: %v", ErrSearchQueryFailed, err)
	}

	articles := make([]KnowledgeArticle, 0, len(parsed.Hits.Hits))
	for _, hit := range parsed.Hits.Hits {
		article := hit.Source
		if article.ID == "" {
			article.ID = hit.ID
		}
		article.Score = hit.Score
		articles = append(articles, article)
	}

	return articles, nil
}
