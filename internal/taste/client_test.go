package taste

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	stderrors "tastemate/internal/common/errors"
	"tastemate/internal/common/logger"
	"tastemate/internal/models"
)

// ==========================
// Test Helper Functions
// ==========================

func newTestClient(t *testing.T, baseURL string) *Client {
	return NewClient(&Config{
		BaseURL:    baseURL,
		APIKey:     "test-key",
		Timeout:    2 * time.Second,
		MaxRetries: 2,
	}, logger.NewZapAdapter(zaptest.NewLogger(t)))
}

const entityEnvelope = `{"results":{"entities":[{"entity_id":"urn:entity:place:osteria","name":"Osteria","type":"urn:entity:place"}]}}`

// ==========================
// Query Encoding Tests
// ==========================

func TestClient_Recommend_QueryEncoding(t *testing.T) {
	var gotQuery map[string][]string
	var gotKey string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v2/insights", r.URL.Path)
		gotQuery = r.URL.Query()
		gotKey = r.Header.Get("X-Api-Key")
		w.Write([]byte(`{"results":{"entities":[]}}`))
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	_, err := client.Recommend(context.Background(), RecommendQuery{
		Category:       models.CategoryPlace,
		EntitySignals:  []string{"urn:entity:a", "urn:entity:b"},
		TagSignals:     []string{"urn:tag:cuisine:italian"},
		FilterTags:     []string{"urn:tag:ambience:cozy"},
		LocationQuery:  "Paris",
		Take:           5,
		Reason:         "italian restaurants",
		Explainability: true,
	})
	require.NoError(t, err)

	assert.Equal(t, "test-key", gotKey)
	assert.Equal(t, "urn:entity:place", gotQuery["filter.type"][0])
	assert.Equal(t, "urn:entity:a,urn:entity:b", gotQuery["signal.interests.entities"][0])
	assert.Equal(t, "urn:tag:cuisine:italian", gotQuery["signal.interests.tags"][0])
	assert.Equal(t, "urn:tag:ambience:cozy", gotQuery["filter.tags"][0])
	assert.Equal(t, "Paris", gotQuery["filter.location.query"][0])
	assert.Equal(t, "5", gotQuery["take"][0])
	assert.Equal(t, "true", gotQuery["feature.explainability"][0])
}

func TestClient_SearchTags_QueryEncoding(t *testing.T) {
	var gotQuery map[string][]string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v2/tags", r.URL.Path)
		gotQuery = r.URL.Query()
		w.Write([]byte(`{"results":{"tags":[]}}`))
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	_, err := client.SearchTags(context.Background(), TagQuery{
		Query:         "cozy",
		ParentType:    models.CategoryPlace,
		TypoTolerance: true,
	})
	require.NoError(t, err)

	assert.Equal(t, "cozy", gotQuery["filter.query"][0])
	assert.Equal(t, "urn:entity:place", gotQuery["filter.parents.types"][0])
	assert.Equal(t, "true", gotQuery["feature.typo_tolerance"][0])
}

func TestClient_SearchEntities_ClampsTake(t *testing.T) {
	var gotTake string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotTake = r.URL.Query().Get("take")
		w.Write([]byte(`{"results":{"entities":[]}}`))
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	_, err := client.SearchEntities(context.Background(), SearchQuery{Query: "osteria", Take: 0})
	require.NoError(t, err)

	assert.Equal(t, "2", gotTake)
}

// ==========================
// Retry and Error Tests
// ==========================

func TestClient_RetriesOnServerError(t *testing.T) {
	var attempts int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&attempts, 1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte(entityEnvelope))
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	payload, err := client.SearchEntities(context.Background(), SearchQuery{Query: "osteria", Take: 3})
	require.NoError(t, err)
	assert.NotNil(t, payload)
	assert.Equal(t, int32(3), atomic.LoadInt32(&attempts))
}

func TestClient_ExhaustedRetriesReturnUpstreamError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	_, err := client.SearchEntities(context.Background(), SearchQuery{Query: "osteria", Take: 3})
	require.Error(t, err)
	assert.True(t, stderrors.HasCode(err, stderrors.ErrCodeUpstreamError))
}

func TestClient_DeadlineReturnsTimeoutError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(300 * time.Millisecond)
		w.Write([]byte(entityEnvelope))
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := client.SearchEntities(ctx, SearchQuery{Query: "osteria", Take: 3})
	require.Error(t, err)
	assert.True(t, stderrors.HasCode(err, stderrors.ErrCodeUpstreamTimeout))
}

func TestClient_MalformedBodyReturnsUpstreamError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`not json`))
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	_, err := client.SearchEntities(context.Background(), SearchQuery{Query: "osteria", Take: 3})
	require.Error(t, err)
	assert.True(t, stderrors.HasCode(err, stderrors.ErrCodeUpstreamError))
}

// ==========================
// LookupEntity Tests
// ==========================

func TestClient_LookupEntity(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "osteria", r.URL.Query().Get("query"))
		w.Write([]byte(entityEnvelope))
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	ref, err := client.LookupEntity(context.Background(), "osteria", models.CategoryPlace)
	require.NoError(t, err)
	require.NotNil(t, ref)

	assert.Equal(t, "urn:entity:place:osteria", ref.ID)
	assert.Equal(t, "Osteria", ref.Name)
	assert.Equal(t, models.CategoryPlace, ref.Category)
}

func TestClient_LookupEntity_NothingFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"results":{"entities":[]}}`))
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	ref, err := client.LookupEntity(context.Background(), "nonexistent", "")
	require.NoError(t, err)
	assert.Nil(t, ref)
}

// ==========================
// Tag Extraction Tests
// ==========================

func TestTags(t *testing.T) {
	tests := []struct {
		name     string
		envelope map[string]interface{}
		want     []Tag
	}{
		{
			name: "results.tags shape",
			envelope: map[string]interface{}{
				"results": map[string]interface{}{
					"tags": []interface{}{
						map[string]interface{}{"tag_id": "urn:tag:a", "name": "cozy"},
					},
				},
			},
			want: []Tag{{ID: "urn:tag:a", Name: "cozy"}},
		},
		{
			name: "results array shape",
			envelope: map[string]interface{}{
				"results": []interface{}{
					map[string]interface{}{"id": "urn:tag:b", "name": "lively"},
				},
			},
			want: []Tag{{ID: "urn:tag:b", Name: "lively"}},
		},
		{
			name: "idless tags dropped",
			envelope: map[string]interface{}{
				"results": []interface{}{
					map[string]interface{}{"name": "orphan"},
				},
			},
			want: []Tag{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Tags(&Payload{Envelope: tt.envelope}))
		})
	}

	assert.Nil(t, Tags(nil))
}
