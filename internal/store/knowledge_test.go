package store

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/stretchr/testify/assert"
)

func newTestKnowledgeStore(t *testing.T, handler http.HandlerFunc) *ElasticKnowledgeStore {
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: []string{server.URL},
	})
	if err != nil {
		t.Fatalf("failed to create client: %v", err)
	}

	return NewElasticKnowledgeStore(client, "knowledge", createTestLogger(t))
}

func TestElasticKnowledgeStore_SearchKnowledge(t *testing.T) {
	store := newTestKnowledgeStore(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.URL.Path, "/knowledge/_search")

		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("X-Elastic-Product", "Elasticsearch")
		w.Write([]byte(`{
			"hits": {
				"hits": [
					{"_id": "kb-1", "_score": 2.4, "_source": {"title": "Email timing benchmarks", "content": "Tuesday mornings perform best"}},
					{"_id": "kb-2", "_score": 1.1, "_source": {"id": "kb-2", "title": "SMS opt-in rules", "content": "Explicit consent required"}}
				]
			}
		}`))
	})

	articles, err := store.SearchKnowledge(context.Background(), "email timing", 5)

	assert.NoError(t, err)
	assert.Len(t, articles, 2)
	assert.Equal(t, "kb-1", articles[0].ID)
	assert.Equal(t, "Email timing benchmarks", articles[0].Title)
	assert.Equal(t, 2.4, articles[0].Score)
	assert.Equal(t, "kb-2", articles[1].ID)
}

func TestElasticKnowledgeStore_SearchError(t *testing.T) {
	store := newTestKnowledgeStore(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("X-Elastic-Product", "Elasticsearch")
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"error": {"reason": "shard failure"}}`))
	})

	articles, err := store.SearchKnowledge(context.Background(), "anything", 5)

	assert.Error(t, err)
	assert.True(t, errors.Is(err, ErrSearchQueryFailed))
	assert.Nil(t, articles)
}

func TestElasticKnowledgeStore_NoResults(t *testing.T) {
	store := newTestKnowledgeStore(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("X-Elastic-Product", "Elasticsearch")
		w.Write([]byte(`{"hits": {"hits": []}}`))
	})

	articles, err := store.SearchKnowledge(context.Background(), "nothing here", 5)

	assert.NoError(t, err)
	assert.Empty(t, articles)
}
